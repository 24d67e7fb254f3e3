package storage

import (
	"bytes"
	"context"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

// MinioStore implements ObjectStore on an S3-compatible endpoint. Buckets
// play the role of containers.
type MinioStore struct {
	client *minio.Client
}

// MinioOption customizes store construction.
type MinioOption func(*minioConfig)

type minioConfig struct {
	endpoint  string
	accessKey string
	secretKey string
	useSSL    bool
}

func WithEndpoint(endpoint string) MinioOption {
	return func(c *minioConfig) {
		c.endpoint = endpoint
	}
}

func WithCredentials(accessKey, secretKey string) MinioOption {
	return func(c *minioConfig) {
		c.accessKey = accessKey
		c.secretKey = secretKey
	}
}

func WithSSL(useSSL bool) MinioOption {
	return func(c *minioConfig) {
		c.useSSL = useSSL
	}
}

// NewMinioStore connects to the configured object storage endpoint.
func NewMinioStore(opts ...MinioOption) (*MinioStore, error) {
	cfg := &minioConfig{}
	for _, opt := range opts {
		opt(cfg)
	}
	if cfg.endpoint == "" {
		return nil, fmt.Errorf("storage endpoint is required")
	}

	client, err := minio.New(cfg.endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.accessKey, cfg.secretKey, ""),
		Secure: cfg.useSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("connect object storage: %w", err)
	}
	return &MinioStore{client: client}, nil
}

func (s *MinioStore) EnsureContainer(ctx context.Context, name string) error {
	exists, err := s.client.BucketExists(ctx, name)
	if err != nil {
		return fmt.Errorf("check container %s: %w", name, err)
	}
	if exists {
		return nil
	}
	if err := s.client.MakeBucket(ctx, name, minio.MakeBucketOptions{}); err != nil {
		return fmt.Errorf("create container %s: %w", name, err)
	}
	return nil
}

func (s *MinioStore) Upload(ctx context.Context, container, blobName, contentType string, contents []byte) error {
	_, err := s.client.PutObject(ctx, container, blobName, bytes.NewReader(contents), int64(len(contents)), minio.PutObjectOptions{
		ContentType: contentType,
	})
	if err != nil {
		return fmt.Errorf("upload %s/%s: %w", container, blobName, err)
	}
	return nil
}

func (s *MinioStore) SignedURL(ctx context.Context, container, blobName string, ttl time.Duration) (string, error) {
	signed, err := s.client.PresignedGetObject(ctx, container, blobName, ttl, url.Values{})
	if err != nil {
		return "", fmt.Errorf("sign %s/%s: %w", container, blobName, err)
	}
	return signed.String(), nil
}

func (s *MinioStore) ContainerURL(container string) string {
	base := strings.TrimRight(s.client.EndpointURL().String(), "/")
	return base + "/" + container
}

func (s *MinioStore) ListContainers(ctx context.Context) ([]string, error) {
	buckets, err := s.client.ListBuckets(ctx)
	if err != nil {
		return nil, fmt.Errorf("list containers: %w", err)
	}
	names := make([]string, 0, len(buckets))
	for _, bucket := range buckets {
		names = append(names, bucket.Name)
	}
	return names, nil
}

func (s *MinioStore) RemoveContainer(ctx context.Context, name string) error {
	// Buckets must be empty before removal.
	objects := s.client.ListObjects(ctx, name, minio.ListObjectsOptions{Recursive: true})
	for object := range objects {
		if object.Err != nil {
			return fmt.Errorf("list blobs in %s: %w", name, object.Err)
		}
		if err := s.client.RemoveObject(ctx, name, object.Key, minio.RemoveObjectOptions{}); err != nil {
			return fmt.Errorf("remove blob %s/%s: %w", name, object.Key, err)
		}
	}
	if err := s.client.RemoveBucket(ctx, name); err != nil {
		return fmt.Errorf("remove container %s: %w", name, err)
	}
	return nil
}
