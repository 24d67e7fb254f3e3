package translation

import (
	"context"
	"time"

	"github.com/polylate/polylate/internal/poll"
)

// TextRequest describes one text translation request. Language fields carry
// provider codes, already resolved from names by the caller.
type TextRequest struct {
	Text       string
	SourceCode string
	TargetCode string
	Formality  string
}

// TextResponse contains translated text and provider metadata.
type TextResponse struct {
	Text         string
	SourceCode   string
	TargetCode   string
	ProviderName string
	LatencyMs    int64
}

// Document is one file payload submitted for translation.
type Document struct {
	FileName    string
	ContentType string
	Content     []byte
}

// DocumentOptions carries the per-request translation parameters shared by
// every file in a batch.
type DocumentOptions struct {
	TargetCode string
	SourceCode string
	Formality  string
	GlossaryID string
}

// Job tracks one submitted document translation until it reaches a terminal
// state. AccessKey is the provider-issued key required on follow-up calls;
// empty when the provider does not use one.
type Job struct {
	ID         string
	AccessKey  string
	TargetCode string
	SourceCode string
	CreatedAt  time.Time
}

// DocumentProvider is the submit/poll/fetch surface of a document
// translation backend.
type DocumentProvider interface {
	SubmitDocument(ctx context.Context, doc Document, opts DocumentOptions) (Job, error)
	DocumentStatus(ctx context.Context, job Job) (poll.Status, error)
	DocumentResult(ctx context.Context, job Job) ([]byte, error)
}

// TextProvider translates free-form text between languages.
type TextProvider interface {
	TranslateText(ctx context.Context, req TextRequest) (*TextResponse, error)
	Name() string
}
