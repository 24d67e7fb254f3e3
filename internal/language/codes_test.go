package language

import (
	"testing"

	"github.com/polylate/polylate/internal/apperrors"
)

func TestCodeResolvesKnownNames(t *testing.T) {
	t.Parallel()

	for _, name := range Names() {
		code, ok := Code(name)
		if !ok {
			t.Fatalf("expected %q to resolve", name)
		}
		if code == "" {
			t.Fatalf("expected non-empty code for %q", name)
		}
	}

	if got, _ := Code("French"); got != "FR" {
		t.Fatalf("unexpected code for French: %q", got)
	}
	if got, _ := Code(" chinese (simplified) "); got != "ZH-HANS" {
		t.Fatalf("expected case-insensitive lookup, got %q", got)
	}
}

func TestCodeRejectsUnknownNames(t *testing.T) {
	t.Parallel()

	if _, ok := Code("Klingon"); ok {
		t.Fatal("expected unknown language to be rejected")
	}
	if _, ok := Code(""); ok {
		t.Fatal("expected blank language to be rejected")
	}
}

func TestValidateFormalityGating(t *testing.T) {
	t.Parallel()

	// "default" and the prefer variants pass regardless of target code.
	for _, formality := range []string{"default", "prefer_more", "prefer_less"} {
		for _, code := range []string{"EN", "DE", "ZH-HANT", ""} {
			if err := ValidateFormality(formality, code); err != nil {
				t.Fatalf("formality %q rejected for %q: %v", formality, code, err)
			}
		}
	}

	// "more"/"less" only for the supported set.
	for _, formality := range []string{"more", "less"} {
		if err := ValidateFormality(formality, "DE"); err != nil {
			t.Fatalf("formality %q rejected for DE: %v", formality, err)
		}
		err := ValidateFormality(formality, "EN")
		if err == nil {
			t.Fatalf("expected formality %q to be rejected for EN", formality)
		}
		if !apperrors.Is(err, apperrors.KindInvalidRequest) {
			t.Fatalf("expected invalid request error, got %v", err)
		}
	}

	if err := ValidateFormality("shouty", "DE"); err == nil {
		t.Fatal("expected unknown formality value to be rejected")
	}
}

func TestNormalizeCode(t *testing.T) {
	t.Parallel()

	if got := NormalizeCode(" PT-BR "); got != "pt-br" {
		t.Fatalf("unexpected normalized code: %q", got)
	}
	if got := NormalizeCode("fr"); got != "fr" {
		t.Fatalf("unexpected normalized code: %q", got)
	}
}
