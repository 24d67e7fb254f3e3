// Package storage publishes translated artifacts to blob storage and sweeps
// expired containers. Containers are named from a UTC timestamp; signed URLs
// grant time-limited read access to one blob.
package storage

import (
	"context"
	"time"
)

// ObjectStore is the blob storage surface the gateway consumes. The minio
// implementation backs production; tests substitute a fake.
type ObjectStore interface {
	// EnsureContainer creates the container when it does not exist yet.
	EnsureContainer(ctx context.Context, name string) error
	// Upload writes blob bytes with overwrite semantics.
	Upload(ctx context.Context, container, blobName, contentType string, contents []byte) error
	// SignedURL produces a read-only URL valid for ttl.
	SignedURL(ctx context.Context, container, blobName string, ttl time.Duration) (string, error)
	// ContainerURL returns the container's base URL for batch providers
	// that read and write whole containers.
	ContainerURL(container string) string
	// ListContainers returns all container names in the account.
	ListContainers(ctx context.Context) ([]string, error)
	// RemoveContainer deletes a container and its blobs.
	RemoveContainer(ctx context.Context, name string) error
}
