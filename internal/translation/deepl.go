package translation

import (
	"bytes"
	"context"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"path"
	"strings"
	"time"

	"github.com/polylate/polylate/internal/apperrors"
	"github.com/polylate/polylate/internal/poll"
)

// DefaultDeepLAPIURL is the production DeepL v2 API base.
const DefaultDeepLAPIURL = "https://api.deepl.com/v2"

// DeepLClient talks to the DeepL v2 API: text translation, asynchronous
// document translation and glossary management.
type DeepLClient struct {
	apiURL string
	apiKey string
	client *http.Client
}

// NewDeepLClient builds a client for the given API base URL and key.
func NewDeepLClient(apiURL, apiKey string) *DeepLClient {
	base := strings.TrimRight(strings.TrimSpace(apiURL), "/")
	if base == "" {
		base = DefaultDeepLAPIURL
	}
	return &DeepLClient{
		apiURL: base,
		apiKey: strings.TrimSpace(apiKey),
		client: &http.Client{
			Timeout: 60 * time.Second,
		},
	}
}

func (c *DeepLClient) Name() string {
	return "deepl"
}

func (c *DeepLClient) authorize(req *http.Request) {
	req.Header.Set("Authorization", "DeepL-Auth-Key "+c.apiKey)
}

type deeplTranslateRequest struct {
	Text               []string `json:"text"`
	TargetLang         string   `json:"target_lang"`
	SourceLang         string   `json:"source_lang,omitempty"`
	Formality          string   `json:"formality,omitempty"`
	PreserveFormatting bool     `json:"preserve_formatting"`
}

type deeplTranslateResponse struct {
	Translations []struct {
		DetectedSourceLanguage string `json:"detected_source_language"`
		Text                   string `json:"text"`
	} `json:"translations"`
}

// TranslateText performs one synchronous text translation. Formatting is
// always preserved.
func (c *DeepLClient) TranslateText(ctx context.Context, req TextRequest) (*TextResponse, error) {
	if strings.TrimSpace(req.Text) == "" {
		return nil, apperrors.InvalidRequest("text is required")
	}
	if strings.TrimSpace(req.TargetCode) == "" {
		return nil, apperrors.InvalidRequest("target language is required")
	}

	body, err := json.Marshal(deeplTranslateRequest{
		Text:               []string{req.Text},
		TargetLang:         req.TargetCode,
		SourceLang:         req.SourceCode,
		Formality:          req.Formality,
		PreserveFormatting: true,
	})
	if err != nil {
		return nil, fmt.Errorf("marshal translate request: %w", err)
	}

	started := time.Now()
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.apiURL+"/translate", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build translate request: %w", err)
	}
	c.authorize(httpReq)
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(httpReq)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.KindSubmissionFailed, "send translate request", err)
	}
	defer resp.Body.Close()

	payload, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read translate response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, providerError(apperrors.KindSubmissionFailed, "deepl translate", resp.StatusCode, payload)
	}

	var decoded deeplTranslateResponse
	if err := json.Unmarshal(payload, &decoded); err != nil {
		return nil, fmt.Errorf("decode translate response: %w", err)
	}
	if len(decoded.Translations) == 0 {
		return nil, apperrors.New(apperrors.KindSubmissionFailed, "deepl returned no translations")
	}

	source := req.SourceCode
	if source == "" {
		source = decoded.Translations[0].DetectedSourceLanguage
	}
	return &TextResponse{
		Text:         decoded.Translations[0].Text,
		SourceCode:   source,
		TargetCode:   req.TargetCode,
		ProviderName: c.Name(),
		LatencyMs:    time.Since(started).Milliseconds(),
	}, nil
}

type deeplDocumentSubmitResponse struct {
	DocumentID  string `json:"document_id"`
	DocumentKey string `json:"document_key"`
}

// SubmitDocument uploads one document and returns the tracking job. The
// returned access key must accompany every follow-up call for that job.
func (c *DeepLClient) SubmitDocument(ctx context.Context, doc Document, opts DocumentOptions) (Job, error) {
	if len(doc.Content) == 0 {
		return Job{}, apperrors.InvalidRequest("document content is empty")
	}
	if strings.TrimSpace(opts.TargetCode) == "" {
		return Job{}, apperrors.InvalidRequest("target language is required")
	}

	var buf bytes.Buffer
	form := multipart.NewWriter(&buf)

	part, err := form.CreateFormFile("file", doc.FileName)
	if err != nil {
		return Job{}, fmt.Errorf("build document form: %w", err)
	}
	if _, err := part.Write(doc.Content); err != nil {
		return Job{}, fmt.Errorf("write document form: %w", err)
	}

	fields := map[string]string{
		"target_lang": opts.TargetCode,
	}
	if opts.SourceCode != "" {
		fields["source_lang"] = opts.SourceCode
	}
	if opts.Formality != "" {
		fields["formality"] = opts.Formality
	}
	if opts.GlossaryID != "" {
		fields["glossary_id"] = opts.GlossaryID
	}
	for name, value := range fields {
		if err := form.WriteField(name, value); err != nil {
			return Job{}, fmt.Errorf("write form field %s: %w", name, err)
		}
	}
	if err := form.Close(); err != nil {
		return Job{}, fmt.Errorf("close document form: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.apiURL+"/document", &buf)
	if err != nil {
		return Job{}, fmt.Errorf("build document request: %w", err)
	}
	c.authorize(httpReq)
	httpReq.Header.Set("Content-Type", form.FormDataContentType())

	resp, err := c.client.Do(httpReq)
	if err != nil {
		return Job{}, apperrors.Wrap(apperrors.KindSubmissionFailed, "submit document", err)
	}
	defer resp.Body.Close()

	payload, err := io.ReadAll(resp.Body)
	if err != nil {
		return Job{}, fmt.Errorf("read document response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return Job{}, providerError(apperrors.KindSubmissionFailed, "deepl document upload", resp.StatusCode, payload)
	}

	var decoded deeplDocumentSubmitResponse
	if err := json.Unmarshal(payload, &decoded); err != nil {
		return Job{}, fmt.Errorf("decode document response: %w", err)
	}
	if decoded.DocumentID == "" {
		return Job{}, apperrors.New(apperrors.KindSubmissionFailed, "deepl returned no document id")
	}

	return Job{
		ID:         decoded.DocumentID,
		AccessKey:  decoded.DocumentKey,
		TargetCode: opts.TargetCode,
		SourceCode: opts.SourceCode,
		CreatedAt:  time.Now().UTC(),
	}, nil
}

type deeplDocumentStatusResponse struct {
	Status       string `json:"status"`
	ErrorMessage string `json:"error_message"`
}

// DocumentStatus issues one status check for a submitted document.
func (c *DeepLClient) DocumentStatus(ctx context.Context, job Job) (poll.Status, error) {
	payload, status, err := c.documentCall(ctx, job, "")
	if err != nil {
		return poll.Status{}, err
	}
	if status != http.StatusOK {
		return poll.Status{}, providerError(apperrors.KindSubmissionFailed, "deepl document status", status, payload)
	}

	var decoded deeplDocumentStatusResponse
	if err := json.Unmarshal(payload, &decoded); err != nil {
		return poll.Status{}, fmt.Errorf("decode status response: %w", err)
	}

	switch decoded.Status {
	case "queued":
		return poll.Status{State: poll.StateQueued}, nil
	case "translating":
		return poll.Status{State: poll.StateInProgress}, nil
	case "done":
		return poll.Status{State: poll.StateDone}, nil
	case "error":
		return poll.Status{State: poll.StateFailed, Detail: decoded.ErrorMessage}, nil
	default:
		return poll.Status{State: poll.StateInProgress, Detail: decoded.Status}, nil
	}
}

// DocumentResult downloads the translated document bytes.
func (c *DeepLClient) DocumentResult(ctx context.Context, job Job) ([]byte, error) {
	payload, status, err := c.documentCall(ctx, job, "/result")
	if err != nil {
		return nil, err
	}
	if status != http.StatusOK {
		return nil, providerError(apperrors.KindDownloadFailed, "deepl document result", status, payload)
	}
	return payload, nil
}

func (c *DeepLClient) documentCall(ctx context.Context, job Job, suffix string) ([]byte, int, error) {
	body, err := json.Marshal(map[string]string{"document_key": job.AccessKey})
	if err != nil {
		return nil, 0, fmt.Errorf("marshal document key: %w", err)
	}

	url := c.apiURL + "/document/" + job.ID + suffix
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, 0, fmt.Errorf("build document request: %w", err)
	}
	c.authorize(httpReq)
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(httpReq)
	if err != nil {
		return nil, 0, apperrors.Wrap(apperrors.KindDownloadFailed, "call document endpoint", err)
	}
	defer resp.Body.Close()

	payload, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, 0, fmt.Errorf("read document endpoint response: %w", err)
	}
	return payload, resp.StatusCode, nil
}

type deeplGlossaryRequest struct {
	Name          string `json:"name"`
	SourceLang    string `json:"source_lang"`
	TargetLang    string `json:"target_lang"`
	Entries       string `json:"entries"`
	EntriesFormat string `json:"entries_format"`
}

type deeplGlossaryResponse struct {
	GlossaryID string `json:"glossary_id"`
	Name       string `json:"name"`
	EntryCount int    `json:"entry_count"`
}

// Glossary is a created term-mapping table.
type Glossary struct {
	ID         string
	Name       string
	EntryCount int
}

// CreateGlossary uploads a CSV or TSV term table and registers it with the
// provider. The file format is inferred from the file name extension.
func (c *DeepLClient) CreateGlossary(ctx context.Context, name, sourceCode, targetCode, fileName string, contents []byte) (Glossary, error) {
	entries, err := GlossaryEntries(fileName, contents)
	if err != nil {
		return Glossary{}, err
	}
	if strings.TrimSpace(name) == "" {
		name = "glossary"
	}

	body, err := json.Marshal(deeplGlossaryRequest{
		Name:          name,
		SourceLang:    sourceCode,
		TargetLang:    targetCode,
		Entries:       entries,
		EntriesFormat: "tsv",
	})
	if err != nil {
		return Glossary{}, fmt.Errorf("marshal glossary request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.apiURL+"/glossaries", bytes.NewReader(body))
	if err != nil {
		return Glossary{}, fmt.Errorf("build glossary request: %w", err)
	}
	c.authorize(httpReq)
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(httpReq)
	if err != nil {
		return Glossary{}, apperrors.Wrap(apperrors.KindSubmissionFailed, "create glossary", err)
	}
	defer resp.Body.Close()

	payload, err := io.ReadAll(resp.Body)
	if err != nil {
		return Glossary{}, fmt.Errorf("read glossary response: %w", err)
	}
	if resp.StatusCode != http.StatusCreated {
		return Glossary{}, providerError(apperrors.KindSubmissionFailed, "deepl glossary", resp.StatusCode, payload)
	}

	var decoded deeplGlossaryResponse
	if err := json.Unmarshal(payload, &decoded); err != nil {
		return Glossary{}, fmt.Errorf("decode glossary response: %w", err)
	}
	return Glossary{
		ID:         decoded.GlossaryID,
		Name:       decoded.Name,
		EntryCount: decoded.EntryCount,
	}, nil
}

// GlossaryEntries converts a CSV or TSV term file into the tab-separated
// entries string the provider expects. Rows with fewer than two columns are
// skipped.
func GlossaryEntries(fileName string, contents []byte) (string, error) {
	var delimiter rune
	switch strings.ToLower(path.Ext(fileName)) {
	case ".csv":
		delimiter = ','
	case ".tsv":
		delimiter = '\t'
	default:
		return "", apperrors.InvalidRequest("unsupported glossary format: use a .csv or .tsv file")
	}

	reader := csv.NewReader(bytes.NewReader(contents))
	reader.Comma = delimiter
	reader.FieldsPerRecord = -1

	var builder strings.Builder
	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return "", apperrors.Wrap(apperrors.KindInvalidRequest, "parse glossary file", err)
		}
		if len(record) < 2 {
			continue
		}
		source := strings.TrimSpace(record[0])
		target := strings.TrimSpace(record[1])
		if source == "" || target == "" {
			continue
		}
		if builder.Len() > 0 {
			builder.WriteByte('\n')
		}
		builder.WriteString(source)
		builder.WriteByte('\t')
		builder.WriteString(target)
	}

	if builder.Len() == 0 {
		return "", apperrors.InvalidRequest("glossary file contains no usable entries")
	}
	return builder.String(), nil
}

func providerError(kind apperrors.Kind, operation string, status int, body []byte) error {
	detail := strings.TrimSpace(string(body))
	if len(detail) > 512 {
		detail = detail[:512]
	}
	if detail == "" {
		return apperrors.Newf(kind, "%s returned status %d", operation, status)
	}
	return apperrors.Newf(kind, "%s returned status %d: %s", operation, status, detail)
}
