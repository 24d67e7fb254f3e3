package storage

import (
	"context"
	"time"

	"github.com/rs/zerolog"
)

// Cleaner removes containers whose name timestamp is older than the
// configured retention. Deletion is best-effort: one failure is logged and
// excluded from the result, the sweep continues.
type Cleaner struct {
	store     ObjectStore
	retention time.Duration
	logger    zerolog.Logger
	now       func() time.Time
}

func NewCleaner(store ObjectStore, retention time.Duration, logger zerolog.Logger) *Cleaner {
	if retention <= 0 {
		retention = time.Hour
	}
	return &Cleaner{
		store:     store,
		retention: retention,
		logger:    logger,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// Sweep deletes expired containers and returns the names actually removed.
// Containers outside the gateway's naming scheme are skipped.
func (c *Cleaner) Sweep(ctx context.Context) ([]string, error) {
	names, err := c.store.ListContainers(ctx)
	if err != nil {
		return nil, err
	}

	cutoff := c.now().Add(-c.retention)
	deleted := make([]string, 0, len(names))

	for _, name := range names {
		stamp, ok := ContainerTimestamp(name)
		if !ok {
			c.logger.Debug().Str("container", name).Msg("container name has no timestamp, skipping")
			continue
		}
		if !stamp.Before(cutoff) {
			continue
		}
		if err := c.store.RemoveContainer(ctx, name); err != nil {
			c.logger.Error().Err(err).Str("container", name).Msg("failed to delete expired container")
			continue
		}
		c.logger.Info().Str("container", name).Msg("deleted expired container")
		deleted = append(deleted, name)
	}

	return deleted, nil
}
