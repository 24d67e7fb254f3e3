package app

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/polylate/polylate/internal/cli"
	"github.com/polylate/polylate/internal/config"
	"github.com/polylate/polylate/internal/db"
	"github.com/polylate/polylate/internal/logging"
	"github.com/polylate/polylate/internal/storage"
)

// runHealth verifies every backing service serve depends on: the database
// always, object storage when an endpoint is configured.
func runHealth(args []string) int {
	fs := flag.NewFlagSet("health", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)

	envLoader := cli.AddEnvFlag(fs, ".env", "Path to the .env file")
	timeout := fs.Duration("timeout", 5*time.Second, "Database ping timeout")

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

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	pool, err := db.NewPool(ctx, cfg)
	if err != nil {
		logger.Error().Err(err).Msg("database health check failed")
		fmt.Fprintf(os.Stderr, "Health check failed: %v\n", err)
		return 1
	}
	defer pool.Close()
	fmt.Println("ok: database ping successful")

	if strings.TrimSpace(cfg.StorageEndpoint) != "" {
		store, err := storage.NewMinioStore(
			storage.WithEndpoint(cfg.StorageEndpoint),
			storage.WithCredentials(cfg.StorageAccessKey, cfg.StorageSecretKey),
			storage.WithSSL(cfg.StorageUseSSL),
		)
		if err == nil {
			_, err = store.ListContainers(ctx)
		}
		if err != nil {
			logger.Error().Err(err).Msg("object storage health check failed")
			fmt.Fprintf(os.Stderr, "Health check failed: %v\n", err)
			return 1
		}
		fmt.Println("ok: object storage reachable")
	}

	logger.Info().
		Dur("timeout", *timeout).
		Msg("health check passed")
	return 0
}
