package translation

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/polylate/polylate/internal/apperrors"
	"github.com/polylate/polylate/internal/poll"
)

const (
	azureTextAPIVersion  = "3.0"
	azureBatchAPIVersion = "2024-05-01"
)

// AzureClient talks to the Azure Translator service: synchronous text
// translation plus the asynchronous batch document API. The supported
// languages map is fetched from the service and cached per client, since the
// gateway resolves language names against the live list rather than a static
// table.
type AzureClient struct {
	textEndpoint string
	docEndpoint  string
	apiKey       string
	region       string
	client       *http.Client

	mu        sync.Mutex
	languages map[string]string
}

// NewAzureClient builds a client from per-admin settings. Endpoints come
// from the settings row, not from global state.
func NewAzureClient(textEndpoint, docEndpoint, apiKey, region string) *AzureClient {
	return &AzureClient{
		textEndpoint: strings.TrimRight(strings.TrimSpace(textEndpoint), "/"),
		docEndpoint:  strings.TrimRight(strings.TrimSpace(docEndpoint), "/"),
		apiKey:       strings.TrimSpace(apiKey),
		region:       strings.TrimSpace(region),
		client: &http.Client{
			Timeout: 60 * time.Second,
		},
	}
}

func (c *AzureClient) Name() string {
	return "azure"
}

func (c *AzureClient) headers(req *http.Request) {
	req.Header.Set("Ocp-Apim-Subscription-Key", c.apiKey)
	if c.region != "" {
		req.Header.Set("Ocp-Apim-Subscription-Region", c.region)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-ClientTraceId", uuid.NewString())
}

type azureLanguagesResponse struct {
	Translation map[string]struct {
		Name       string `json:"name"`
		NativeName string `json:"nativeName"`
	} `json:"translation"`
}

// SupportedLanguages returns the service's language-name-to-code map. Both
// English and native names are keyed, lowercased. The map is fetched once
// per client.
func (c *AzureClient) SupportedLanguages(ctx context.Context) (map[string]string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.languages != nil {
		return c.languages, nil
	}

	endpoint := fmt.Sprintf("%s/languages?api-version=%s", c.textEndpoint, azureTextAPIVersion)
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("build languages request: %w", err)
	}
	c.headers(httpReq)

	resp, err := c.client.Do(httpReq)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.KindSubmissionFailed, "list supported languages", err)
	}
	defer resp.Body.Close()

	payload, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read languages response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, providerError(apperrors.KindSubmissionFailed, "azure languages", resp.StatusCode, payload)
	}

	var decoded azureLanguagesResponse
	if err := json.Unmarshal(payload, &decoded); err != nil {
		return nil, fmt.Errorf("decode languages response: %w", err)
	}

	languages := make(map[string]string, len(decoded.Translation)*2)
	for code, names := range decoded.Translation {
		if name := strings.ToLower(strings.TrimSpace(names.Name)); name != "" {
			languages[name] = code
		}
		if native := strings.ToLower(strings.TrimSpace(names.NativeName)); native != "" {
			languages[native] = code
		}
	}
	c.languages = languages
	return languages, nil
}

// CodeForName resolves a language name (English or native) to the service
// code. The second return is false when the name is unknown.
func (c *AzureClient) CodeForName(ctx context.Context, name string) (string, bool, error) {
	languages, err := c.SupportedLanguages(ctx)
	if err != nil {
		return "", false, err
	}
	code, ok := languages[strings.ToLower(strings.TrimSpace(name))]
	return code, ok, nil
}

type azureTranslateResponse []struct {
	DetectedLanguage struct {
		Language string `json:"language"`
	} `json:"detectedLanguage"`
	Translations []struct {
		Text string `json:"text"`
		To   string `json:"to"`
	} `json:"translations"`
}

// TranslateText performs one synchronous text translation.
func (c *AzureClient) TranslateText(ctx context.Context, req TextRequest) (*TextResponse, error) {
	if strings.TrimSpace(req.Text) == "" {
		return nil, apperrors.InvalidRequest("text is required")
	}
	if strings.TrimSpace(req.TargetCode) == "" {
		return nil, apperrors.InvalidRequest("target language is required")
	}

	params := url.Values{}
	params.Set("api-version", azureTextAPIVersion)
	params.Set("to", req.TargetCode)
	if req.SourceCode != "" {
		params.Set("from", req.SourceCode)
	}

	body, err := json.Marshal([]map[string]string{{"text": req.Text}})
	if err != nil {
		return nil, fmt.Errorf("marshal translate request: %w", err)
	}

	started := time.Now()
	endpoint := c.textEndpoint + "/translate?" + params.Encode()
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build translate request: %w", err)
	}
	c.headers(httpReq)

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
		return nil, providerError(apperrors.KindSubmissionFailed, "azure translate", resp.StatusCode, payload)
	}

	var decoded azureTranslateResponse
	if err := json.Unmarshal(payload, &decoded); err != nil {
		return nil, fmt.Errorf("decode translate response: %w", err)
	}
	if len(decoded) == 0 || len(decoded[0].Translations) == 0 {
		return nil, apperrors.New(apperrors.KindSubmissionFailed, "azure returned no translations")
	}

	source := req.SourceCode
	if source == "" {
		source = decoded[0].DetectedLanguage.Language
	}
	return &TextResponse{
		Text:         decoded[0].Translations[0].Text,
		SourceCode:   source,
		TargetCode:   decoded[0].Translations[0].To,
		ProviderName: c.Name(),
		LatencyMs:    time.Since(started).Milliseconds(),
	}, nil
}

// BatchGlossary points a batch translation at an uploaded glossary file.
type BatchGlossary struct {
	URL    string
	Format string
}

// BatchInput describes one batch document translation: all readable
// documents under SourceURL are translated into TargetURL.
type BatchInput struct {
	SourceURL  string
	TargetURL  string
	SourceCode string
	TargetCode string
	Glossary   *BatchGlossary
}

type azureBatchSource struct {
	SourceURL string `json:"sourceUrl"`
	Language  string `json:"language,omitempty"`
}

type azureBatchGlossary struct {
	GlossaryURL string `json:"glossaryUrl"`
	Format      string `json:"format"`
}

type azureBatchTarget struct {
	TargetURL  string               `json:"targetUrl"`
	Language   string               `json:"language"`
	Glossaries []azureBatchGlossary `json:"glossaries,omitempty"`
}

type azureBatchRequest struct {
	Inputs []struct {
		Source  azureBatchSource   `json:"source"`
		Targets []azureBatchTarget `json:"targets"`
	} `json:"inputs"`
}

// SubmitBatch starts one batch document translation and returns the
// tracking job.
func (c *AzureClient) SubmitBatch(ctx context.Context, input BatchInput) (Job, error) {
	if input.SourceURL == "" || input.TargetURL == "" {
		return Job{}, apperrors.InvalidRequest("batch source and target container URLs are required")
	}
	if strings.TrimSpace(input.TargetCode) == "" {
		return Job{}, apperrors.InvalidRequest("target language is required")
	}

	target := azureBatchTarget{
		TargetURL: input.TargetURL,
		Language:  input.TargetCode,
	}
	if input.Glossary != nil {
		target.Glossaries = []azureBatchGlossary{{
			GlossaryURL: input.Glossary.URL,
			Format:      input.Glossary.Format,
		}}
	}

	var request azureBatchRequest
	request.Inputs = append(request.Inputs, struct {
		Source  azureBatchSource   `json:"source"`
		Targets []azureBatchTarget `json:"targets"`
	}{
		Source: azureBatchSource{
			SourceURL: input.SourceURL,
			Language:  input.SourceCode,
		},
		Targets: []azureBatchTarget{target},
	})

	body, err := json.Marshal(request)
	if err != nil {
		return Job{}, fmt.Errorf("marshal batch request: %w", err)
	}

	endpoint := fmt.Sprintf("%s/translator/document/batches?api-version=%s", c.docEndpoint, azureBatchAPIVersion)
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return Job{}, fmt.Errorf("build batch request: %w", err)
	}
	c.headers(httpReq)

	resp, err := c.client.Do(httpReq)
	if err != nil {
		return Job{}, apperrors.Wrap(apperrors.KindSubmissionFailed, "submit batch translation", err)
	}
	defer resp.Body.Close()

	payload, err := io.ReadAll(resp.Body)
	if err != nil {
		return Job{}, fmt.Errorf("read batch response: %w", err)
	}
	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusAccepted {
		return Job{}, providerError(apperrors.KindSubmissionFailed, "azure batch submit", resp.StatusCode, payload)
	}

	var decoded struct {
		ID string `json:"id"`
	}
	if err := json.Unmarshal(payload, &decoded); err != nil {
		return Job{}, fmt.Errorf("decode batch response: %w", err)
	}
	jobID := decoded.ID
	if jobID == "" {
		// Some deployments only return the job URL in Operation-Location.
		location := resp.Header.Get("Operation-Location")
		if idx := strings.LastIndex(location, "/"); idx >= 0 {
			jobID = strings.SplitN(location[idx+1:], "?", 2)[0]
		}
	}
	if jobID == "" {
		return Job{}, apperrors.New(apperrors.KindSubmissionFailed, "azure returned no batch job id")
	}

	return Job{
		ID:         jobID,
		TargetCode: input.TargetCode,
		SourceCode: input.SourceCode,
		CreatedAt:  time.Now().UTC(),
	}, nil
}

type azureBatchStatusResponse struct {
	Status string `json:"status"`
	Error  struct {
		Message string `json:"message"`
	} `json:"error"`
}

// BatchStatus issues one status check for a batch translation job.
func (c *AzureClient) BatchStatus(ctx context.Context, job Job) (poll.Status, error) {
	endpoint := fmt.Sprintf("%s/translator/document/batches/%s?api-version=%s", c.docEndpoint, job.ID, azureBatchAPIVersion)
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return poll.Status{}, fmt.Errorf("build batch status request: %w", err)
	}
	c.headers(httpReq)

	resp, err := c.client.Do(httpReq)
	if err != nil {
		return poll.Status{}, apperrors.Wrap(apperrors.KindSubmissionFailed, "check batch status", err)
	}
	defer resp.Body.Close()

	payload, err := io.ReadAll(resp.Body)
	if err != nil {
		return poll.Status{}, fmt.Errorf("read batch status response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return poll.Status{}, providerError(apperrors.KindSubmissionFailed, "azure batch status", resp.StatusCode, payload)
	}

	var decoded azureBatchStatusResponse
	if err := json.Unmarshal(payload, &decoded); err != nil {
		return poll.Status{}, fmt.Errorf("decode batch status response: %w", err)
	}

	switch decoded.Status {
	case "NotStarted":
		return poll.Status{State: poll.StateQueued}, nil
	case "Running", "Cancelling":
		return poll.Status{State: poll.StateInProgress}, nil
	case "Succeeded":
		return poll.Status{State: poll.StateDone}, nil
	case "Cancelled":
		return poll.Status{State: poll.StateCancelled, Detail: decoded.Error.Message}, nil
	case "Failed", "ValidationFailed":
		return poll.Status{State: poll.StateFailed, Detail: decoded.Error.Message}, nil
	default:
		return poll.Status{State: poll.StateInProgress, Detail: decoded.Status}, nil
	}
}
