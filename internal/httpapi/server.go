// Package httpapi serves the gateway surface: text and document translation,
// glossaries, per-admin settings, feedback and storage cleanup. Failure
// responses carry {"error": message} with the status the error kind dictates.
package httpapi

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/rs/zerolog"

	"github.com/polylate/polylate/internal/apperrors"
	"github.com/polylate/polylate/internal/config"
	"github.com/polylate/polylate/internal/db"
	"github.com/polylate/polylate/internal/pipeline"
	"github.com/polylate/polylate/internal/poll"
	"github.com/polylate/polylate/internal/samlauth"
	"github.com/polylate/polylate/internal/settings"
	"github.com/polylate/polylate/internal/storage"
	"github.com/polylate/polylate/internal/translation"
)

type Options struct {
	Host            string
	Port            int
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	ShutdownTimeout time.Duration
	AllowedOrigins  []string
}

// deepLAPI is the DeepL surface the handlers consume. It is a superset of
// translation.DocumentProvider so a resolved client can drive the document
// pipeline directly.
type deepLAPI interface {
	TranslateText(ctx context.Context, req translation.TextRequest) (*translation.TextResponse, error)
	CreateGlossary(ctx context.Context, name, sourceCode, targetCode, fileName string, contents []byte) (translation.Glossary, error)
	SubmitDocument(ctx context.Context, doc translation.Document, opts translation.DocumentOptions) (translation.Job, error)
	DocumentStatus(ctx context.Context, job translation.Job) (poll.Status, error)
	DocumentResult(ctx context.Context, job translation.Job) ([]byte, error)
	Name() string
}

// azureAPI is the Azure Translator surface, built per request from the
// admin's stored credentials.
type azureAPI interface {
	CodeForName(ctx context.Context, name string) (string, bool, error)
	TranslateText(ctx context.Context, req translation.TextRequest) (*translation.TextResponse, error)
	SubmitBatch(ctx context.Context, input translation.BatchInput) (translation.Job, error)
	BatchStatus(ctx context.Context, job translation.Job) (poll.Status, error)
}

type feedbackStore interface {
	InsertFeedback(ctx context.Context, adminID string, rating int, comment string) (*db.Feedback, error)
	ListFeedback(ctx context.Context, adminID string, limit int) ([]db.Feedback, error)
}

type healthPinger interface {
	Ping(ctx context.Context) error
}

// Dependencies wires the server to the rest of the gateway.
type Dependencies struct {
	Config       *config.Config
	Pool         *db.Pool
	Settings     *settings.Service
	DeepL        *translation.DeepLClient
	Orchestrator *pipeline.Orchestrator
	Poller       *poll.Poller
	Store        storage.ObjectStore
	Publisher    *storage.Publisher
	Namer        *storage.ContainerNamer
	Cleaner      *storage.Cleaner
	SAML         *samlauth.Provider
	Logger       zerolog.Logger
}

type Server struct {
	cfg          *config.Config
	settings     *settings.Service
	deepl        deepLAPI
	deeplClients func(apiKey string) deepLAPI
	azureClients func(row *db.AdminSettings) azureAPI
	orchestrator *pipeline.Orchestrator
	poller       *poll.Poller
	store        storage.ObjectStore
	publisher    *storage.Publisher
	namer        *storage.ContainerNamer
	cleaner      *storage.Cleaner
	saml         *samlauth.Provider
	feedback     feedbackStore
	pinger       healthPinger
	logger       zerolog.Logger
	opts         Options
}

func NewServer(deps Dependencies, opts Options) *Server {
	host := strings.TrimSpace(opts.Host)
	if host == "" {
		host = "0.0.0.0"
	}
	port := opts.Port
	if port <= 0 {
		port = 8080
	}
	readTimeout := opts.ReadTimeout
	if readTimeout <= 0 {
		readTimeout = 10 * time.Second
	}
	writeTimeout := opts.WriteTimeout
	if writeTimeout <= 0 {
		// Document pipelines hold the request open until the job finishes.
		writeTimeout = 15 * time.Minute
	}
	shutdownTimeout := opts.ShutdownTimeout
	if shutdownTimeout <= 0 {
		shutdownTimeout = 10 * time.Second
	}

	s := &Server{
		cfg:          deps.Config,
		settings:     deps.Settings,
		deepl:        deps.DeepL,
		orchestrator: deps.Orchestrator,
		poller:       deps.Poller,
		store:        deps.Store,
		publisher:    deps.Publisher,
		namer:        deps.Namer,
		cleaner:      deps.Cleaner,
		saml:         deps.SAML,
		logger:       deps.Logger,
		opts: Options{
			Host:            host,
			Port:            port,
			ReadTimeout:     readTimeout,
			WriteTimeout:    writeTimeout,
			ShutdownTimeout: shutdownTimeout,
			AllowedOrigins:  opts.AllowedOrigins,
		},
	}
	if deps.Pool != nil {
		s.feedback = deps.Pool
		s.pinger = deps.Pool
	}
	s.azureClients = func(row *db.AdminSettings) azureAPI {
		return translation.NewAzureClient(row.TextEndpoint, row.DocumentEndpoint, row.APIKey, row.Region)
	}
	deeplAPIURL := ""
	if deps.Config != nil {
		deeplAPIURL = deps.Config.DeepLAPIURL
	}
	s.deeplClients = func(apiKey string) deepLAPI {
		return translation.NewDeepLClient(deeplAPIURL, apiKey)
	}
	return s
}

// deeplFor resolves the DeepL client for a request: when the admin has a
// stored DeepL key the call runs under it, otherwise the service-wide client
// handles it. A blank admin id is not an error on DeepL routes.
func (s *Server) deeplFor(ctx context.Context, adminID string) deepLAPI {
	id := strings.TrimSpace(adminID)
	if id == "" || s.settings == nil {
		return s.deepl
	}
	row, err := s.settings.Get(ctx, id)
	if err != nil || strings.TrimSpace(row.DeepLAPIKey) == "" {
		return s.deepl
	}
	return s.deeplClients(row.DeepLAPIKey)
}

// azureFor loads the admin's Azure credentials and builds a client from them.
// A settings row holding only a DeepL key reports as not found here.
func (s *Server) azureFor(ctx context.Context, adminID string) (azureAPI, error) {
	row, err := s.settings.Get(ctx, adminID)
	if err != nil {
		return nil, err
	}
	if strings.TrimSpace(row.APIKey) == "" {
		return nil, apperrors.NotFound("no azure translator credentials stored for admin %s", adminID)
	}
	return s.azureClients(row), nil
}

func (s *Server) Start(ctx context.Context) error {
	if s == nil {
		return fmt.Errorf("server is not initialized")
	}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.HTTPErrorHandler = s.httpErrorHandler

	e.Use(middleware.Recover())
	e.Use(middleware.RequestID())
	origins := s.opts.AllowedOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}
	e.Use(middleware.CORSWithConfig(middleware.CORSConfig{
		AllowOrigins: origins,
		AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodDelete, http.MethodOptions},
		AllowHeaders: []string{"Origin", "Content-Type", "Accept"},
		MaxAge:       3600,
	}))
	e.Use(middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
		LogStatus:    true,
		LogURI:       true,
		LogMethod:    true,
		LogLatency:   true,
		LogRemoteIP:  true,
		LogRequestID: true,
		LogError:     true,
		LogValuesFunc: func(c echo.Context, v middleware.RequestLoggerValues) error {
			if v.Error != nil {
				s.logger.Error().
					Err(v.Error).
					Str("method", v.Method).
					Str("uri", v.URI).
					Int("status", v.Status).
					Dur("latency", v.Latency).
					Str("remote_ip", v.RemoteIP).
					Str("request_id", v.RequestID).
					Msg("http request failed")
				return nil
			}

			s.logger.Info().
				Str("method", v.Method).
				Str("uri", v.URI).
				Int("status", v.Status).
				Dur("latency", v.Latency).
				Str("remote_ip", v.RemoteIP).
				Str("request_id", v.RequestID).
				Msg("http request")
			return nil
		},
	}))

	s.registerRoutes(e)

	addr := fmt.Sprintf("%s:%d", s.opts.Host, s.opts.Port)
	httpServer := &http.Server{
		Addr:         addr,
		Handler:      e,
		ReadTimeout:  s.opts.ReadTimeout,
		WriteTimeout: s.opts.WriteTimeout,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), s.opts.ShutdownTimeout)
		defer cancel()
		if shutdownErr := e.Shutdown(shutdownCtx); shutdownErr != nil {
			s.logger.Error().Err(shutdownErr).Msg("server shutdown failed")
		}
	}()

	s.logger.Info().Str("addr", addr).Msg("translation gateway started")

	if err := e.StartServer(httpServer); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("start server: %w", err)
	}
	s.logger.Info().Msg("translation gateway stopped")
	return nil
}

func (s *Server) registerRoutes(e *echo.Echo) {
	api := e.Group("/api/v1")
	api.GET("/health", s.handleHealth)

	api.POST("/translate/text", s.handleTranslateText)
	api.POST("/translate/text/azure", s.handleTranslateTextAzure)
	api.POST("/translate/document", s.handleTranslateDocument)
	api.POST("/translate/documents", s.handleTranslateDocuments)
	api.POST("/translate/documents/azure", s.handleTranslateDocumentsAzure)
	api.POST("/glossaries", s.handleCreateGlossary)

	api.POST("/settings", s.handleSaveSettings)
	api.GET("/settings", s.handleGetSettings)
	api.POST("/feedback", s.handleSubmitFeedback)
	api.GET("/feedback", s.handleListFeedback)

	api.DELETE("/storage/containers/expired", s.handleCleanupExpired)

	if s.saml != nil {
		e.GET("/saml/login", s.handleSAMLLogin)
		e.POST("/saml/callback", echo.WrapHandler(http.HandlerFunc(s.saml.ServeACS)))
		e.GET("/saml/metadata", echo.WrapHandler(http.HandlerFunc(s.saml.ServeMetadata)))
	}
}

func (s *Server) httpErrorHandler(err error, c echo.Context) {
	if c.Response().Committed {
		return
	}

	status := http.StatusInternalServerError
	message := "internal server error"
	if he, ok := err.(*echo.HTTPError); ok {
		status = he.Code
		if text, ok := he.Message.(string); ok && strings.TrimSpace(text) != "" {
			message = text
		} else if text := strings.TrimSpace(http.StatusText(status)); text != "" {
			message = text
		}
	} else if err != nil {
		message = err.Error()
	}

	_ = c.JSON(status, errorResponse{Error: message})
}

func (s *Server) handleHealth(c echo.Context) error {
	database := "ok"
	if s.pinger != nil {
		if err := s.pinger.Ping(c.Request().Context()); err != nil {
			database = "unreachable"
		}
	}
	return success(c, map[string]any{
		"service":  "polylate",
		"database": database,
		"time":     time.Now().UTC(),
	})
}
