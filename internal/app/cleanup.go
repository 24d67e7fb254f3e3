package app

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/polylate/polylate/internal/cli"
	"github.com/polylate/polylate/internal/config"
	"github.com/polylate/polylate/internal/logging"
	"github.com/polylate/polylate/internal/storage"
)

// runCleanup performs one sweep of expired storage containers and exits.
func runCleanup(args []string) int {
	fs := flag.NewFlagSet("cleanup", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)

	envLoader := cli.AddEnvFlag(fs, ".env", "Path to the .env file")
	timeout := fs.Duration("timeout", 5*time.Minute, "Sweep timeout")
	retention := fs.Duration("retention", 0, "Override the configured container retention")

	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return 0
		}
		return 2
	}

	if envLoader != nil {
		if _, err := envLoader.Load(); err != nil {
			fmt.Fprintf(os.Stderr, "Warning: %v\n", err)
		}
	}

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		return 1
	}

	logger, err := logging.New(cfg.Environment, cfg.LogLevel)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
		return 1
	}

	store, err := storage.NewMinioStore(
		storage.WithEndpoint(cfg.StorageEndpoint),
		storage.WithCredentials(cfg.StorageAccessKey, cfg.StorageSecretKey),
		storage.WithSSL(cfg.StorageUseSSL),
	)
	if err != nil {
		logger.Error().Err(err).Msg("cleanup failed to connect to object storage")
		fmt.Fprintf(os.Stderr, "Failed to connect to object storage: %v\n", err)
		return 1
	}

	effectiveRetention := cfg.BlobRetention
	if *retention > 0 {
		effectiveRetention = *retention
	}

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	cleaner := storage.NewCleaner(store, effectiveRetention, logger)
	deleted, err := cleaner.Sweep(ctx)
	if err != nil {
		logger.Error().Err(err).Msg("container sweep failed")
		fmt.Fprintf(os.Stderr, "Sweep failed: %v\n", err)
		return 1
	}

	logger.Info().
		Int("deleted", len(deleted)).
		Dur("retention", effectiveRetention).
		Msg("container sweep finished")
	fmt.Printf("ok: deleted %d expired container(s)\n", len(deleted))
	return 0
}
