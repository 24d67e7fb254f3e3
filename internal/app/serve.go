package app

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/polylate/polylate/internal/cli"
	"github.com/polylate/polylate/internal/config"
	"github.com/polylate/polylate/internal/db"
	"github.com/polylate/polylate/internal/httpapi"
	"github.com/polylate/polylate/internal/logging"
	"github.com/polylate/polylate/internal/pipeline"
	"github.com/polylate/polylate/internal/poll"
	"github.com/polylate/polylate/internal/samlauth"
	"github.com/polylate/polylate/internal/settings"
	"github.com/polylate/polylate/internal/storage"
	"github.com/polylate/polylate/internal/translation"
)

func runServe(args []string) int {
	fs := flag.NewFlagSet("serve", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)

	envLoader := cli.AddEnvFlag(fs, ".env", "Path to the .env file")
	host := fs.String("host", "", "Host interface to bind (overrides LISTEN_ADDR)")
	port := fs.Int("port", 0, "HTTP port (overrides LISTEN_ADDR)")
	readTimeout := fs.Duration("read-timeout", 10*time.Second, "HTTP read timeout")
	writeTimeout := fs.Duration("write-timeout", 15*time.Minute, "HTTP write timeout")
	shutdownTimeout := fs.Duration("shutdown-timeout", 10*time.Second, "Graceful shutdown timeout")

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
	if strings.TrimSpace(cfg.StorageEndpoint) == "" {
		fmt.Fprintln(os.Stderr, "STORAGE_ENDPOINT is required for serve")
		return 1
	}

	bindHost, bindPort, err := resolveBindAddr(cfg.ListenAddr, *host, *port)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Invalid bind address: %v\n", err)
		return 2
	}

	logger, err := logging.New(cfg.Environment, cfg.LogLevel)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
		return 1
	}

	dbCtx, dbCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer dbCancel()

	pool, err := db.NewPool(dbCtx, cfg)
	if err != nil {
		logger.Error().Err(err).Msg("serve failed to connect to database")
		fmt.Fprintf(os.Stderr, "Failed to connect to database: %v\n", err)
		return 1
	}
	defer pool.Close()

	store, err := storage.NewMinioStore(
		storage.WithEndpoint(cfg.StorageEndpoint),
		storage.WithCredentials(cfg.StorageAccessKey, cfg.StorageSecretKey),
		storage.WithSSL(cfg.StorageUseSSL),
	)
	if err != nil {
		logger.Error().Err(err).Msg("serve failed to connect to object storage")
		fmt.Fprintf(os.Stderr, "Failed to connect to object storage: %v\n", err)
		return 1
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigCh)

	go func() {
		<-sigCh
		cancel()
	}()

	deepl := translation.NewDeepLClient(cfg.DeepLAPIURL, cfg.DeepLAPIKey)
	poller := poll.New(poll.Policy{
		InitialInterval: cfg.PollInitialInterval,
		MaxInterval:     cfg.PollMaxInterval,
		MaxAttempts:     cfg.PollMaxAttempts,
	})
	publisher := storage.NewPublisher(store, storage.DefaultAccessTTL)
	namer := storage.NewContainerNamer()
	orchestrator := pipeline.NewOrchestrator(deepl, poller, publisher, namer, cfg.TranslateWorkers, logger)
	settingsService := settings.NewService(pool, cfg.SettingsCacheTTL, logger)
	cleaner := storage.NewCleaner(store, cfg.BlobRetention, logger)

	var samlProvider *samlauth.Provider
	if cfg.SAMLEnabled() {
		samlProvider, err = samlauth.New(ctx, cfg)
		if err != nil {
			logger.Error().Err(err).Msg("serve failed to initialize single sign-on")
			fmt.Fprintf(os.Stderr, "Failed to initialize single sign-on: %v\n", err)
			return 1
		}
	}

	if schedule := strings.TrimSpace(cfg.CleanupSchedule); schedule != "" {
		scheduler := cron.New()
		if _, err := scheduler.AddFunc(schedule, func() {
			sweepCtx, sweepCancel := context.WithTimeout(ctx, 5*time.Minute)
			defer sweepCancel()
			if _, err := cleaner.Sweep(sweepCtx); err != nil {
				logger.Error().Err(err).Msg("scheduled container sweep failed")
			}
		}); err != nil {
			logger.Error().Err(err).Str("schedule", schedule).Msg("invalid cleanup schedule")
			fmt.Fprintf(os.Stderr, "Invalid CLEANUP_SCHEDULE: %v\n", err)
			return 1
		}
		scheduler.Start()
		defer scheduler.Stop()
		logger.Info().Str("schedule", schedule).Msg("container cleanup scheduled")
	}

	srv := httpapi.NewServer(httpapi.Dependencies{
		Config:       cfg,
		Pool:         pool,
		Settings:     settingsService,
		DeepL:        deepl,
		Orchestrator: orchestrator,
		Poller:       poller,
		Store:        store,
		Publisher:    publisher,
		Namer:        namer,
		Cleaner:      cleaner,
		SAML:         samlProvider,
		Logger:       logger,
	}, httpapi.Options{
		Host:            bindHost,
		Port:            bindPort,
		ReadTimeout:     *readTimeout,
		WriteTimeout:    *writeTimeout,
		ShutdownTimeout: *shutdownTimeout,
		AllowedOrigins:  cfg.CORSAllowedOriginsList(),
	})

	if err := srv.Start(ctx); err != nil {
		logger.Error().Err(err).Str("host", bindHost).Int("port", bindPort).Msg("server failed")
		fmt.Fprintf(os.Stderr, "Server failed: %v\n", err)
		return 1
	}

	return 0
}

// resolveBindAddr merges the --host/--port flags with LISTEN_ADDR. Flags win
// over the configured address; an empty host binds every interface.
func resolveBindAddr(listenAddr, flagHost string, flagPort int) (string, int, error) {
	host := strings.TrimSpace(flagHost)
	port := flagPort

	if host == "" || port == 0 {
		cfgHost, cfgPort, err := net.SplitHostPort(strings.TrimSpace(listenAddr))
		if err != nil {
			return "", 0, fmt.Errorf("parse LISTEN_ADDR %q: %w", listenAddr, err)
		}
		if host == "" {
			host = cfgHost
		}
		if port == 0 {
			port, err = strconv.Atoi(cfgPort)
			if err != nil {
				return "", 0, fmt.Errorf("parse LISTEN_ADDR port %q: %w", cfgPort, err)
			}
		}
	}

	if host == "" {
		host = "0.0.0.0"
	}
	if port <= 0 || port > 65535 {
		return "", 0, fmt.Errorf("port %d is out of range", port)
	}
	return host, port, nil
}
