package storage

import (
	"context"
	"time"

	"github.com/polylate/polylate/internal/apperrors"
)

// Prefixes for the per-batch containers.
const (
	SourceContainerPrefix      = "source"
	DestinationContainerPrefix = "destination"
	GlossaryContainerPrefix    = "glossary"
)

// DefaultAccessTTL bounds the lifetime of a published signed URL.
const DefaultAccessTTL = time.Hour

// Artifact is one translated document ready for publication. The publisher
// owns the bytes until upload; nothing retains them afterwards.
type Artifact struct {
	OwningJobID string
	FileName    string
	ContentType string
	Contents    []byte
}

// AccessGrant is a read-only, time-bounded URL to one published blob.
type AccessGrant struct {
	Container string
	BlobName  string
	URL       string
	ExpiresAt time.Time
}

// Publisher persists artifacts and signs access URLs.
type Publisher struct {
	store     ObjectStore
	accessTTL time.Duration
}

func NewPublisher(store ObjectStore, accessTTL time.Duration) *Publisher {
	if accessTTL <= 0 {
		accessTTL = DefaultAccessTTL
	}
	return &Publisher{store: store, accessTTL: accessTTL}
}

// Publish ensures the container exists, uploads the artifact (last write
// wins) and returns a signed read-only URL. Failures surface as
// PublishFailed and are not retried here; retry policy belongs to the
// caller.
func (p *Publisher) Publish(ctx context.Context, container string, artifact Artifact) (AccessGrant, error) {
	if err := p.store.EnsureContainer(ctx, container); err != nil {
		return AccessGrant{}, apperrors.Wrap(apperrors.KindPublishFailed, "prepare container", err)
	}
	if err := p.store.Upload(ctx, container, artifact.FileName, artifact.ContentType, artifact.Contents); err != nil {
		return AccessGrant{}, apperrors.Wrap(apperrors.KindPublishFailed, "upload artifact", err)
	}
	signed, err := p.store.SignedURL(ctx, container, artifact.FileName, p.accessTTL)
	if err != nil {
		return AccessGrant{}, apperrors.Wrap(apperrors.KindPublishFailed, "sign access url", err)
	}
	return AccessGrant{
		Container: container,
		BlobName:  artifact.FileName,
		URL:       signed,
		ExpiresAt: time.Now().UTC().Add(p.accessTTL),
	}, nil
}

// AccessTTL reports the configured signed URL lifetime.
func (p *Publisher) AccessTTL() time.Duration {
	return p.accessTTL
}
