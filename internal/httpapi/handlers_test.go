package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/polylate/polylate/internal/apperrors"
	"github.com/polylate/polylate/internal/db"
	"github.com/polylate/polylate/internal/pipeline"
	"github.com/polylate/polylate/internal/poll"
	"github.com/polylate/polylate/internal/settings"
	"github.com/polylate/polylate/internal/storage"
	"github.com/polylate/polylate/internal/translation"
)

type stubDeepL struct {
	mu           sync.Mutex
	lastText     translation.TextRequest
	glossaryID   string
	translateErr error
	submitted    int
	failSubmit   map[string]bool
	keysUsed     []string
}

func (d *stubDeepL) TranslateText(_ context.Context, req translation.TextRequest) (*translation.TextResponse, error) {
	d.lastText = req
	if d.translateErr != nil {
		return nil, d.translateErr
	}
	return &translation.TextResponse{
		Text:         "bonjour",
		SourceCode:   req.SourceCode,
		TargetCode:   req.TargetCode,
		ProviderName: "deepl",
		LatencyMs:    12,
	}, nil
}

func (d *stubDeepL) CreateGlossary(_ context.Context, name, _, _, fileName string, contents []byte) (translation.Glossary, error) {
	if _, err := translation.GlossaryEntries(fileName, contents); err != nil {
		return translation.Glossary{}, err
	}
	id := d.glossaryID
	if id == "" {
		id = "g-1"
	}
	return translation.Glossary{ID: id, Name: name, EntryCount: 1}, nil
}

func (d *stubDeepL) SubmitDocument(_ context.Context, doc translation.Document, _ translation.DocumentOptions) (translation.Job, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.failSubmit[doc.FileName] {
		return translation.Job{}, apperrors.Newf(apperrors.KindSubmissionFailed, "rejected %s", doc.FileName)
	}
	d.submitted++
	return translation.Job{ID: fmt.Sprintf("J%d", d.submitted)}, nil
}

func (d *stubDeepL) DocumentStatus(_ context.Context, _ translation.Job) (poll.Status, error) {
	return poll.Status{State: poll.StateDone}, nil
}

func (d *stubDeepL) DocumentResult(_ context.Context, _ translation.Job) ([]byte, error) {
	return []byte("translated"), nil
}

func (d *stubDeepL) Name() string { return "deepl" }

type stubAzure struct {
	names     map[string]string
	lastText  translation.TextRequest
	lastBatch translation.BatchInput
}

func (a *stubAzure) CodeForName(_ context.Context, name string) (string, bool, error) {
	code, ok := a.names[strings.ToLower(strings.TrimSpace(name))]
	return code, ok, nil
}

func (a *stubAzure) TranslateText(_ context.Context, req translation.TextRequest) (*translation.TextResponse, error) {
	a.lastText = req
	return &translation.TextResponse{
		Text:         "hola",
		SourceCode:   req.SourceCode,
		TargetCode:   req.TargetCode,
		ProviderName: "azure",
	}, nil
}

func (a *stubAzure) SubmitBatch(_ context.Context, input translation.BatchInput) (translation.Job, error) {
	a.lastBatch = input
	return translation.Job{ID: "B1", TargetCode: input.TargetCode, CreatedAt: time.Now().UTC()}, nil
}

func (a *stubAzure) BatchStatus(_ context.Context, _ translation.Job) (poll.Status, error) {
	return poll.Status{State: poll.StateDone}, nil
}

type memStore struct {
	mu    sync.Mutex
	blobs map[string][]string
}

func newMemStore() *memStore {
	return &memStore{blobs: map[string][]string{}}
}

func (m *memStore) EnsureContainer(_ context.Context, name string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.blobs[name]; !ok {
		m.blobs[name] = nil
	}
	return nil
}

func (m *memStore) Upload(_ context.Context, container, blobName, _ string, _ []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.blobs[container] = append(m.blobs[container], blobName)
	return nil
}

func (m *memStore) SignedURL(_ context.Context, container, blobName string, _ time.Duration) (string, error) {
	return fmt.Sprintf("https://blobs.example/%s/%s?sig=1", container, blobName), nil
}

func (m *memStore) ContainerURL(container string) string {
	return "https://blobs.example/" + container
}

func (m *memStore) ListContainers(_ context.Context) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	names := make([]string, 0, len(m.blobs))
	for name := range m.blobs {
		names = append(names, name)
	}
	return names, nil
}

func (m *memStore) RemoveContainer(_ context.Context, name string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.blobs, name)
	return nil
}

type memSettingsStore struct {
	rows map[string]*db.AdminSettings
}

func (s *memSettingsStore) UpsertAdminSettings(_ context.Context, row *db.AdminSettings) (*db.AdminSettings, error) {
	stored := *row
	stored.UpdatedAt = time.Now().UTC()
	s.rows[row.AdminID] = &stored
	return &stored, nil
}

func (s *memSettingsStore) GetAdminSettings(_ context.Context, adminID string) (*db.AdminSettings, error) {
	row, ok := s.rows[adminID]
	if !ok {
		return nil, db.ErrNoRows
	}
	return row, nil
}

type memFeedback struct {
	rows []db.Feedback
}

func (f *memFeedback) InsertFeedback(_ context.Context, adminID string, rating int, comment string) (*db.Feedback, error) {
	row := db.Feedback{
		FeedbackID: fmt.Sprintf("f-%d", len(f.rows)+1),
		AdminID:    adminID,
		Rating:     rating,
		Comment:    comment,
		CreatedAt:  time.Now().UTC(),
	}
	f.rows = append(f.rows, row)
	return &row, nil
}

func (f *memFeedback) ListFeedback(_ context.Context, adminID string, _ int) ([]db.Feedback, error) {
	var out []db.Feedback
	for _, row := range f.rows {
		if row.AdminID == adminID {
			out = append(out, row)
		}
	}
	return out, nil
}

type testHarness struct {
	server   *Server
	deepl    *stubDeepL
	azure    *stubAzure
	store    *memStore
	feedback *memFeedback
	settings *memSettingsStore
}

func newHarness() *testHarness {
	deepl := &stubDeepL{failSubmit: map[string]bool{}}
	azure := &stubAzure{names: map[string]string{
		"spanish": "es",
		"german":  "de",
	}}
	store := newMemStore()
	feedback := &memFeedback{}
	settingsStore := &memSettingsStore{rows: map[string]*db.AdminSettings{}}

	instantSleep := func(context.Context, time.Duration) error { return nil }
	poller := poll.New(poll.Policy{
		InitialInterval: time.Millisecond,
		MaxInterval:     time.Millisecond,
		MaxAttempts:     5,
	}, poll.WithSleep(instantSleep))

	publisher := storage.NewPublisher(store, time.Hour)
	namer := storage.NewContainerNamer()
	orchestrator := pipeline.NewOrchestrator(deepl, poller, publisher, namer, 2, zerolog.Nop())
	svc := settings.NewService(settingsStore, time.Hour, zerolog.Nop())

	server := &Server{
		settings:     svc,
		deepl:        deepl,
		orchestrator: orchestrator,
		poller:       poller,
		store:        store,
		publisher:    publisher,
		namer:        namer,
		cleaner:      storage.NewCleaner(store, time.Hour, zerolog.Nop()),
		feedback:     feedback,
		logger:       zerolog.Nop(),
	}
	server.azureClients = func(*db.AdminSettings) azureAPI { return azure }
	server.deeplClients = func(apiKey string) deepLAPI {
		deepl.mu.Lock()
		deepl.keysUsed = append(deepl.keysUsed, apiKey)
		deepl.mu.Unlock()
		return deepl
	}

	return &testHarness{
		server:   server,
		deepl:    deepl,
		azure:    azure,
		store:    store,
		feedback: feedback,
		settings: settingsStore,
	}
}

func (h *testHarness) seedSettings(adminID string) {
	h.settings.rows[adminID] = &db.AdminSettings{
		AdminID:          adminID,
		APIKey:           "key",
		TextEndpoint:     "https://api.cognitive.example",
		DocumentEndpoint: "https://docs.cognitive.example",
		Region:           "westeurope",
		UpdatedAt:        time.Now().UTC(),
	}
}

func (h *testHarness) seedDeepLKey(adminID, apiKey string) {
	h.settings.rows[adminID] = &db.AdminSettings{
		AdminID:     adminID,
		DeepLAPIKey: apiKey,
		UpdatedAt:   time.Now().UTC(),
	}
}

func jsonContext(t *testing.T, method, target string, payload any) (echo.Context, *httptest.ResponseRecorder) {
	t.Helper()
	body, err := json.Marshal(payload)
	if err != nil {
		t.Fatalf("marshal payload: %v", err)
	}
	req := httptest.NewRequest(method, target, bytes.NewReader(body))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec := httptest.NewRecorder()
	return echo.New().NewContext(req, rec), rec
}

func multipartContext(t *testing.T, target string, fields map[string]string, files map[string][]string) (echo.Context, *httptest.ResponseRecorder) {
	t.Helper()
	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)
	for key, value := range fields {
		if err := writer.WriteField(key, value); err != nil {
			t.Fatalf("write field %s: %v", key, err)
		}
	}
	for field, names := range files {
		for _, name := range names {
			part, err := writer.CreateFormFile(field, name)
			if err != nil {
				t.Fatalf("create file part: %v", err)
			}
			if _, err := part.Write([]byte("source," + name + "\n")); err != nil {
				t.Fatalf("write file part: %v", err)
			}
		}
	}
	if err := writer.Close(); err != nil {
		t.Fatalf("close multipart writer: %v", err)
	}

	req := httptest.NewRequest(http.MethodPost, target, &buf)
	req.Header.Set(echo.HeaderContentType, writer.FormDataContentType())
	rec := httptest.NewRecorder()
	return echo.New().NewContext(req, rec), rec
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var decoded map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &decoded); err != nil {
		t.Fatalf("decode response %q: %v", rec.Body.String(), err)
	}
	return decoded
}

func TestTranslateTextResolvesLanguageNames(t *testing.T) {
	t.Parallel()

	h := newHarness()
	c, rec := jsonContext(t, http.MethodPost, "/api/v1/translate/text", map[string]any{
		"text":            "hello",
		"target_language": "French",
		"source_language": "English",
		"formality":       "more",
	})
	if err := h.server.handleTranslateText(c); err != nil {
		t.Fatalf("handler error: %v", err)
	}
	if rec.Code != http.StatusOK {
		t.Fatalf("unexpected status %d: %s", rec.Code, rec.Body.String())
	}
	if h.deepl.lastText.TargetCode != "FR" || h.deepl.lastText.SourceCode != "EN" {
		t.Fatalf("expected resolved codes, got %+v", h.deepl.lastText)
	}
	body := decodeBody(t, rec)
	if body["translated_text"] != "bonjour" {
		t.Fatalf("unexpected body: %v", body)
	}
}

func TestTranslateTextRejectsUnknownLanguage(t *testing.T) {
	t.Parallel()

	h := newHarness()
	c, rec := jsonContext(t, http.MethodPost, "/api/v1/translate/text", map[string]any{
		"text":            "hello",
		"target_language": "Klingon",
	})
	if err := h.server.handleTranslateText(c); err != nil {
		t.Fatalf("handler error: %v", err)
	}
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
	if body := decodeBody(t, rec); body["error"] == "" {
		t.Fatalf("expected error message, got %v", body)
	}
}

func TestTranslateTextRejectsFormalityForUnsupportedTarget(t *testing.T) {
	t.Parallel()

	h := newHarness()
	c, rec := jsonContext(t, http.MethodPost, "/api/v1/translate/text", map[string]any{
		"text":            "hello",
		"target_language": "English (British)",
		"formality":       "less",
	})
	if err := h.server.handleTranslateText(c); err != nil {
		t.Fatalf("handler error: %v", err)
	}
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d: %s", rec.Code, rec.Body.String())
	}
	if h.deepl.lastText.Text != "" {
		t.Fatal("provider must not be called when formality validation fails")
	}
}

func TestTranslateTextAzureUsesRemoteLanguageMap(t *testing.T) {
	t.Parallel()

	h := newHarness()
	h.seedSettings("a1")
	c, rec := jsonContext(t, http.MethodPost, "/api/v1/translate/text/azure", map[string]any{
		"text":            "hello",
		"target_language": "Spanish",
		"admin_id":        "a1",
	})
	if err := h.server.handleTranslateTextAzure(c); err != nil {
		t.Fatalf("handler error: %v", err)
	}
	if rec.Code != http.StatusOK {
		t.Fatalf("unexpected status %d: %s", rec.Code, rec.Body.String())
	}
	if h.azure.lastText.TargetCode != "es" {
		t.Fatalf("expected remote-resolved code, got %+v", h.azure.lastText)
	}
}

func TestTranslateTextAzureWithoutSettingsIsNotFound(t *testing.T) {
	t.Parallel()

	h := newHarness()
	c, rec := jsonContext(t, http.MethodPost, "/api/v1/translate/text/azure", map[string]any{
		"text":            "hello",
		"target_language": "Spanish",
		"admin_id":        "ghost",
	})
	if err := h.server.handleTranslateTextAzure(c); err != nil {
		t.Fatalf("handler error: %v", err)
	}
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rec.Code)
	}
}

func TestTranslateDocumentsReturnsPartialResults(t *testing.T) {
	t.Parallel()

	h := newHarness()
	h.deepl.failSubmit["broken.txt"] = true
	c, rec := multipartContext(t, "/api/v1/translate/documents",
		map[string]string{"target_language": "German"},
		map[string][]string{"files": {"one.txt", "broken.txt"}})
	if err := h.server.handleTranslateDocuments(c); err != nil {
		t.Fatalf("handler error: %v", err)
	}
	if rec.Code != http.StatusOK {
		t.Fatalf("unexpected status %d: %s", rec.Code, rec.Body.String())
	}

	var decoded documentsResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &decoded); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if len(decoded.Files) != 2 {
		t.Fatalf("expected two file entries, got %d", len(decoded.Files))
	}
	if decoded.Files[0].AccessURL == "" || decoded.Files[1].Error == "" {
		t.Fatalf("expected one success and one failure, got %+v", decoded.Files)
	}
}

func TestTranslateDocumentsUploadsGlossaryFirst(t *testing.T) {
	t.Parallel()

	h := newHarness()
	h.deepl.glossaryID = "g-42"
	c, rec := multipartContext(t, "/api/v1/translate/documents",
		map[string]string{"target_language": "German", "source_language": "English"},
		map[string][]string{
			"files":         {"one.txt"},
			"glossary_file": {"terms.csv"},
		})
	if err := h.server.handleTranslateDocuments(c); err != nil {
		t.Fatalf("handler error: %v", err)
	}
	if rec.Code != http.StatusOK {
		t.Fatalf("unexpected status %d: %s", rec.Code, rec.Body.String())
	}
}

func TestTranslateDocumentsAzureBatch(t *testing.T) {
	t.Parallel()

	h := newHarness()
	h.seedSettings("a1")
	c, rec := multipartContext(t, "/api/v1/translate/documents/azure",
		map[string]string{"target_language": "German", "admin_id": "a1"},
		map[string][]string{"files": {"contract.txt"}})
	if err := h.server.handleTranslateDocumentsAzure(c); err != nil {
		t.Fatalf("handler error: %v", err)
	}
	if rec.Code != http.StatusOK {
		t.Fatalf("unexpected status %d: %s", rec.Code, rec.Body.String())
	}

	if !strings.HasPrefix(h.azure.lastBatch.SourceURL, "https://blobs.example/source-") {
		t.Fatalf("expected source container URL, got %q", h.azure.lastBatch.SourceURL)
	}
	if !strings.HasPrefix(h.azure.lastBatch.TargetURL, "https://blobs.example/destination-") {
		t.Fatalf("expected destination container URL, got %q", h.azure.lastBatch.TargetURL)
	}
	if h.azure.lastBatch.Glossary != nil {
		t.Fatalf("expected no glossary without an upload, got %+v", h.azure.lastBatch.Glossary)
	}

	var decoded documentsResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &decoded); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if len(decoded.Files) != 1 || decoded.Files[0].AccessURL == "" {
		t.Fatalf("expected a signed output URL, got %+v", decoded.Files)
	}
}

func TestTranslateDocumentsAzureBatchForwardsGlossary(t *testing.T) {
	t.Parallel()

	h := newHarness()
	h.seedSettings("a1")
	c, rec := multipartContext(t, "/api/v1/translate/documents/azure",
		map[string]string{"target_language": "German", "admin_id": "a1"},
		map[string][]string{
			"files":         {"contract.txt"},
			"glossary_file": {"terms.csv"},
		})
	if err := h.server.handleTranslateDocumentsAzure(c); err != nil {
		t.Fatalf("handler error: %v", err)
	}
	if rec.Code != http.StatusOK {
		t.Fatalf("unexpected status %d: %s", rec.Code, rec.Body.String())
	}

	glossary := h.azure.lastBatch.Glossary
	if glossary == nil {
		t.Fatal("expected the uploaded glossary on the batch input")
	}
	if !strings.HasPrefix(glossary.URL, "https://blobs.example/glossary-") {
		t.Fatalf("expected a signed glossary container URL, got %q", glossary.URL)
	}
	if glossary.Format != "csv" {
		t.Fatalf("expected csv format, got %q", glossary.Format)
	}
}

func TestGlossaryFormatFollowsExtension(t *testing.T) {
	t.Parallel()

	cases := map[string]string{
		"terms.csv":  "csv",
		"terms.tsv":  "tsv",
		"TERMS.TSV":  "tsv",
		"terms":      "csv",
		"terms.xlsx": "csv",
	}
	for fileName, want := range cases {
		if got := glossaryFormat(fileName); got != want {
			t.Fatalf("glossaryFormat(%q) = %q, want %q", fileName, got, want)
		}
	}
}

func TestTranslateTextUsesStoredDeepLKey(t *testing.T) {
	t.Parallel()

	h := newHarness()
	h.seedDeepLKey("a1", "tenant-key")
	c, rec := jsonContext(t, http.MethodPost, "/api/v1/translate/text", map[string]any{
		"text":            "hello",
		"target_language": "French",
		"admin_id":        "a1",
	})
	if err := h.server.handleTranslateText(c); err != nil {
		t.Fatalf("handler error: %v", err)
	}
	if rec.Code != http.StatusOK {
		t.Fatalf("unexpected status %d: %s", rec.Code, rec.Body.String())
	}
	if len(h.deepl.keysUsed) != 1 || h.deepl.keysUsed[0] != "tenant-key" {
		t.Fatalf("expected the stored key to build the client, got %v", h.deepl.keysUsed)
	}
}

func TestTranslateTextWithoutAdminFallsBackToGlobalClient(t *testing.T) {
	t.Parallel()

	h := newHarness()
	c, rec := jsonContext(t, http.MethodPost, "/api/v1/translate/text", map[string]any{
		"text":            "hello",
		"target_language": "French",
	})
	if err := h.server.handleTranslateText(c); err != nil {
		t.Fatalf("handler error: %v", err)
	}
	if rec.Code != http.StatusOK {
		t.Fatalf("unexpected status %d: %s", rec.Code, rec.Body.String())
	}
	if len(h.deepl.keysUsed) != 0 {
		t.Fatalf("expected no per-admin client, got keys %v", h.deepl.keysUsed)
	}
}

func TestCreateGlossaryFromCSV(t *testing.T) {
	t.Parallel()

	h := newHarness()
	c, rec := multipartContext(t, "/api/v1/glossaries",
		map[string]string{
			"name":            "legal",
			"target_language": "German",
			"source_language": "English",
		},
		map[string][]string{"file": {"terms.csv"}})
	if err := h.server.handleCreateGlossary(c); err != nil {
		t.Fatalf("handler error: %v", err)
	}
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rec.Code, rec.Body.String())
	}
	if body := decodeBody(t, rec); body["glossary_id"] != "g-1" {
		t.Fatalf("unexpected body: %v", body)
	}
}

func TestSaveSettingsOmitsSecretsFromResponse(t *testing.T) {
	t.Parallel()

	h := newHarness()
	c, rec := jsonContext(t, http.MethodPost, "/api/v1/settings", map[string]any{
		"admin_id":                      "a1",
		"api_key":                       "secret",
		"text_translation_endpoint":     "https://api.cognitive.example",
		"document_translation_endpoint": "https://docs.cognitive.example",
		"region":                        "westeurope",
		"storage_connection_string":     "conn",
	})
	if err := h.server.handleSaveSettings(c); err != nil {
		t.Fatalf("handler error: %v", err)
	}
	if rec.Code != http.StatusOK {
		t.Fatalf("unexpected status %d: %s", rec.Code, rec.Body.String())
	}
	if strings.Contains(rec.Body.String(), "secret") || strings.Contains(rec.Body.String(), "conn") {
		t.Fatalf("credentials must not appear in the response: %s", rec.Body.String())
	}
}

func TestGetSettingsUnknownAdmin(t *testing.T) {
	t.Parallel()

	h := newHarness()
	req := httptest.NewRequest(http.MethodGet, "/api/v1/settings?admin_id=ghost", nil)
	rec := httptest.NewRecorder()
	c := echo.New().NewContext(req, rec)
	if err := h.server.handleGetSettings(c); err != nil {
		t.Fatalf("handler error: %v", err)
	}
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rec.Code)
	}
}

func TestSubmitFeedbackValidatesRating(t *testing.T) {
	t.Parallel()

	h := newHarness()
	c, rec := jsonContext(t, http.MethodPost, "/api/v1/feedback", map[string]any{
		"admin_id": "a1",
		"rating":   9,
		"comment":  "too enthusiastic",
	})
	if err := h.server.handleSubmitFeedback(c); err != nil {
		t.Fatalf("handler error: %v", err)
	}
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
	if len(h.feedback.rows) != 0 {
		t.Fatal("invalid feedback must not be stored")
	}
}

func TestCleanupExpiredSweepsOldContainers(t *testing.T) {
	t.Parallel()

	h := newHarness()
	expired := "destination-" + time.Now().UTC().Add(-3*time.Hour).Format("20060102150405")
	fresh := "destination-" + time.Now().UTC().Format("20060102150405")
	h.store.blobs[expired] = nil
	h.store.blobs[fresh] = nil

	req := httptest.NewRequest(http.MethodDelete, "/api/v1/storage/containers/expired", nil)
	rec := httptest.NewRecorder()
	c := echo.New().NewContext(req, rec)
	if err := h.server.handleCleanupExpired(c); err != nil {
		t.Fatalf("handler error: %v", err)
	}
	if rec.Code != http.StatusOK {
		t.Fatalf("unexpected status %d: %s", rec.Code, rec.Body.String())
	}

	if _, ok := h.store.blobs[expired]; ok {
		t.Fatal("expired container must be removed")
	}
	if _, ok := h.store.blobs[fresh]; !ok {
		t.Fatal("fresh container must survive")
	}
}
