package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
)

type Config struct {
	Environment string `envconfig:"ENVIRONMENT" default:"local"`
	LogLevel    string `envconfig:"LOG_LEVEL" default:"info"`

	ListenAddr string `envconfig:"LISTEN_ADDR" default:":8080"`
	RootURL    string `envconfig:"ROOT_URL" default:"http://localhost:8080"`

	DatabaseURL string `envconfig:"DATABASE_URL" required:"true"`
	DBMinConns  int32  `envconfig:"PL_DB_MIN_CONNS" default:"1"`
	DBMaxConns  int32  `envconfig:"PL_DB_MAX_CONNS" default:"8"`

	StorageEndpoint  string `envconfig:"STORAGE_ENDPOINT" default:""`
	StorageAccessKey string `envconfig:"STORAGE_ACCESS_KEY" default:""`
	StorageSecretKey string `envconfig:"STORAGE_SECRET_KEY" default:""`
	StorageUseSSL    bool   `envconfig:"STORAGE_USE_SSL" default:"true"`

	BlobRetention   time.Duration `envconfig:"STORAGE_RETENTION" default:"1h"`
	CleanupSchedule string        `envconfig:"CLEANUP_SCHEDULE" default:"*/15 * * * *"`

	PollInitialInterval time.Duration `envconfig:"POLL_INITIAL_INTERVAL" default:"10s"`
	PollMaxInterval     time.Duration `envconfig:"POLL_MAX_INTERVAL" default:"5m"`
	PollMaxAttempts     int           `envconfig:"POLL_MAX_ATTEMPTS" default:"20"`

	TranslateWorkers int `envconfig:"TRANSLATE_WORKERS" default:"4"`

	DeepLAPIURL string `envconfig:"DEEPL_API_URL" default:"https://api.deepl.com/v2"`
	DeepLAPIKey string `envconfig:"DEEPL_API_KEY" default:""`

	SAMLIDPMetadataURL string `envconfig:"SAML_IDP_METADATA_URL" default:""`
	SAMLCertFile       string `envconfig:"SAML_CERT_FILE" default:""`
	SAMLKeyFile        string `envconfig:"SAML_KEY_FILE" default:""`
	SAMLEntityID       string `envconfig:"SAML_ENTITY_ID" default:""`

	SettingsCacheTTL time.Duration `envconfig:"SETTINGS_CACHE_TTL" default:"5m"`

	CORSAllowedOrigins string `envconfig:"CORS_ALLOWED_ORIGINS" default:""`
}

func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}
	return &cfg, nil
}

func (c *Config) Validate() error {
	if strings.TrimSpace(c.DatabaseURL) == "" {
		return fmt.Errorf("DATABASE_URL is required")
	}
	if c.DBMinConns < 0 {
		return fmt.Errorf("PL_DB_MIN_CONNS must be >= 0")
	}
	if c.DBMaxConns < 1 {
		return fmt.Errorf("PL_DB_MAX_CONNS must be >= 1")
	}
	if c.DBMinConns > c.DBMaxConns {
		return fmt.Errorf("PL_DB_MIN_CONNS (%d) cannot exceed PL_DB_MAX_CONNS (%d)", c.DBMinConns, c.DBMaxConns)
	}
	if strings.TrimSpace(c.ListenAddr) == "" {
		return fmt.Errorf("LISTEN_ADDR is required")
	}
	if c.BlobRetention < time.Minute {
		return fmt.Errorf("STORAGE_RETENTION must be at least 1m")
	}
	if c.PollInitialInterval <= 0 {
		return fmt.Errorf("POLL_INITIAL_INTERVAL must be positive")
	}
	if c.PollMaxInterval < c.PollInitialInterval {
		return fmt.Errorf("POLL_MAX_INTERVAL cannot be below POLL_INITIAL_INTERVAL")
	}
	if c.PollMaxAttempts < 1 {
		return fmt.Errorf("POLL_MAX_ATTEMPTS must be >= 1")
	}
	if c.TranslateWorkers < 1 {
		return fmt.Errorf("TRANSLATE_WORKERS must be >= 1")
	}
	if c.SettingsCacheTTL < 0 {
		return fmt.Errorf("SETTINGS_CACHE_TTL cannot be negative")
	}
	return nil
}

// SAMLEnabled reports whether the SSO delegation surface is configured. The
// translation endpoints keep working without it.
func (c *Config) SAMLEnabled() bool {
	return strings.TrimSpace(c.SAMLIDPMetadataURL) != "" &&
		strings.TrimSpace(c.SAMLCertFile) != "" &&
		strings.TrimSpace(c.SAMLKeyFile) != ""
}

func (c *Config) CORSAllowedOriginsList() []string {
	if c == nil {
		return nil
	}

	parts := strings.Split(c.CORSAllowedOrigins, ",")
	origins := make([]string, 0, len(parts))
	seen := make(map[string]struct{}, len(parts))
	for _, part := range parts {
		origin := strings.TrimSpace(part)
		if origin == "" {
			continue
		}
		if _, exists := seen[origin]; exists {
			continue
		}
		seen[origin] = struct{}{}
		origins = append(origins, origin)
	}
	return origins
}
