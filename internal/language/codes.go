package language

import (
	"sort"
	"strings"

	"github.com/polylate/polylate/internal/apperrors"
)

// nameToCode maps human language names to provider target codes. The table is
// static: requests name languages ("French"), providers want codes ("FR").
var nameToCode = map[string]string{
	"Arabic":                  "AR",
	"Bulgarian":               "BG",
	"Czech":                   "CS",
	"Danish":                  "DA",
	"German":                  "DE",
	"Greek":                   "EL",
	"English":                 "EN",
	"English (British)":       "EN-GB",
	"English (American)":      "EN-US",
	"Spanish":                 "ES",
	"Estonian":                "ET",
	"Finnish":                 "FI",
	"French":                  "FR",
	"Hungarian":               "HU",
	"Indonesian":              "ID",
	"Italian":                 "IT",
	"Japanese":                "JA",
	"Korean":                  "KO",
	"Lithuanian":              "LT",
	"Latvian":                 "LV",
	"Norwegian Bokmål":        "NB",
	"Dutch":                   "NL",
	"Polish":                  "PL",
	"Portuguese":              "PT",
	"Portuguese (Brazilian)":  "PT-BR",
	"Portuguese (European)":   "PT-PT",
	"Romanian":                "RO",
	"Russian":                 "RU",
	"Slovak":                  "SK",
	"Slovenian":               "SL",
	"Swedish":                 "SV",
	"Turkish":                 "TR",
	"Ukrainian":               "UK",
	"Chinese":                 "ZH",
	"Chinese (Simplified)":    "ZH-HANS",
	"Chinese (Traditional)":   "ZH-HANT",
}

// formalitySupported lists the target codes that honor a formality setting.
var formalitySupported = map[string]struct{}{
	"DE":    {},
	"FR":    {},
	"IT":    {},
	"ES":    {},
	"NL":    {},
	"PL":    {},
	"PT-BR": {},
	"PT-PT": {},
	"JA":    {},
	"RU":    {},
}

// Formality values accepted by the gateway. The prefer variants fall back to
// default output when the target language has no formal register, so they are
// valid for every target.
const (
	FormalityDefault    = "default"
	FormalityMore       = "more"
	FormalityLess       = "less"
	FormalityPreferMore = "prefer_more"
	FormalityPreferLess = "prefer_less"
)

// Code resolves a language name to its target code. Lookup is
// case-insensitive on the name.
func Code(name string) (string, bool) {
	trimmed := strings.TrimSpace(name)
	if trimmed == "" {
		return "", false
	}
	if code, ok := nameToCode[trimmed]; ok {
		return code, true
	}
	for candidate, code := range nameToCode {
		if strings.EqualFold(candidate, trimmed) {
			return code, true
		}
	}
	return "", false
}

// Names returns the supported language names in sorted order.
func Names() []string {
	names := make([]string, 0, len(nameToCode))
	for name := range nameToCode {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// FormalitySupported reports whether the target code honors formality.
func FormalitySupported(code string) bool {
	_, ok := formalitySupported[strings.ToUpper(strings.TrimSpace(code))]
	return ok
}

// ValidateFormality rejects "more"/"less" for target codes outside the
// formality-supported set. "default", "prefer_more", "prefer_less" and blank
// always pass. This check runs before any provider call.
func ValidateFormality(formality, targetCode string) error {
	normalized := strings.ToLower(strings.TrimSpace(formality))
	switch normalized {
	case "", FormalityDefault, FormalityPreferMore, FormalityPreferLess:
		return nil
	case FormalityMore, FormalityLess:
		if !FormalitySupported(targetCode) {
			return apperrors.InvalidRequest(
				"formality %q is not supported for target language %q", normalized, targetCode)
		}
		return nil
	default:
		return apperrors.InvalidRequest(
			"formality must be one of default, more, less, prefer_more, prefer_less")
	}
}

// NormalizeCode lowercases a target code for use in blob names
// (for example "PT-BR" becomes "pt-br").
func NormalizeCode(code string) string {
	return strings.ToLower(strings.TrimSpace(code))
}
