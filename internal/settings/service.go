// Package settings serves per-admin provider credentials with a small
// read-through cache in front of Postgres.
package settings

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/polylate/polylate/internal/apperrors"
	"github.com/polylate/polylate/internal/db"
)

// Store is the persistence surface the service needs. *db.Pool satisfies it.
type Store interface {
	UpsertAdminSettings(ctx context.Context, settings *db.AdminSettings) (*db.AdminSettings, error)
	GetAdminSettings(ctx context.Context, adminID string) (*db.AdminSettings, error)
}

type cacheEntry struct {
	settings  *db.AdminSettings
	expiresAt time.Time
}

// Service caches admin settings for a short TTL. Saving settings refreshes
// the cached entry so the next request sees the new credentials immediately.
type Service struct {
	store  Store
	ttl    time.Duration
	logger zerolog.Logger
	now    func() time.Time

	mu    sync.Mutex
	cache map[string]cacheEntry
}

func NewService(store Store, ttl time.Duration, logger zerolog.Logger) *Service {
	return &Service{
		store:  store,
		ttl:    ttl,
		logger: logger,
		now:    time.Now,
		cache:  map[string]cacheEntry{},
	}
}

// Save validates and persists the credentials for one admin. A row may carry
// Azure credentials, a DeepL key, or both; the Azure fields travel as a
// complete group.
func (s *Service) Save(ctx context.Context, settings *db.AdminSettings) (*db.AdminSettings, error) {
	if settings == nil {
		return nil, apperrors.InvalidRequest("settings payload is required")
	}
	if strings.TrimSpace(settings.AdminID) == "" {
		return nil, apperrors.InvalidRequest("admin_id is required")
	}

	hasAzure := strings.TrimSpace(settings.APIKey) != "" ||
		strings.TrimSpace(settings.TextEndpoint) != "" ||
		strings.TrimSpace(settings.DocumentEndpoint) != "" ||
		strings.TrimSpace(settings.Region) != ""
	hasDeepL := strings.TrimSpace(settings.DeepLAPIKey) != ""
	if !hasAzure && !hasDeepL {
		return nil, apperrors.InvalidRequest("at least one provider credential is required")
	}
	if hasAzure {
		if strings.TrimSpace(settings.APIKey) == "" {
			return nil, apperrors.InvalidRequest("api_key is required")
		}
		if strings.TrimSpace(settings.TextEndpoint) == "" {
			return nil, apperrors.InvalidRequest("text_translation_endpoint is required")
		}
		if strings.TrimSpace(settings.DocumentEndpoint) == "" {
			return nil, apperrors.InvalidRequest("document_translation_endpoint is required")
		}
		if strings.TrimSpace(settings.Region) == "" {
			return nil, apperrors.InvalidRequest("region is required")
		}
	}

	saved, err := s.store.UpsertAdminSettings(ctx, settings)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.KindDatabaseUnavailable, "save admin settings failed", err)
	}

	s.mu.Lock()
	s.cache[saved.AdminID] = cacheEntry{settings: saved, expiresAt: s.now().Add(s.ttl)}
	s.mu.Unlock()

	s.logger.Info().Str("admin_id", saved.AdminID).Msg("admin settings saved")
	return saved, nil
}

// Get returns the credentials for one admin, from cache when fresh.
func (s *Service) Get(ctx context.Context, adminID string) (*db.AdminSettings, error) {
	adminID = strings.TrimSpace(adminID)
	if adminID == "" {
		return nil, apperrors.InvalidRequest("admin_id is required")
	}

	s.mu.Lock()
	entry, ok := s.cache[adminID]
	s.mu.Unlock()
	if ok && s.now().Before(entry.expiresAt) {
		return entry.settings, nil
	}

	row, err := s.store.GetAdminSettings(ctx, adminID)
	if err != nil {
		if db.IsNoRows(err) {
			return nil, apperrors.Newf(apperrors.KindNotFound, "no settings stored for admin %s", adminID)
		}
		return nil, apperrors.Wrap(apperrors.KindDatabaseUnavailable, "load admin settings failed", err)
	}

	s.mu.Lock()
	s.cache[adminID] = cacheEntry{settings: row, expiresAt: s.now().Add(s.ttl)}
	s.mu.Unlock()

	return row, nil
}
