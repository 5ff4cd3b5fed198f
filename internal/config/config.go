// Package config provides centralized configuration management for the service.
// It loads configuration from environment variables with sensible defaults and
// validates all settings on startup to fail fast on misconfiguration.
package config

import (
	"fmt"
	"time"
)

// Config holds all application configuration.
// All settings can be configured via environment variables.
type Config struct {
	Server   ServerConfig
	Database DatabaseConfig
	Upload   UploadConfig
	Extract  ExtractConfig
	Sources  SourcesConfig
	Rate     RateLimitConfig
	Security SecurityConfig
	Logging  LoggingConfig
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	// Host is the interface to bind to (default: 0.0.0.0)
	Host string `env:"SERVER_HOST" default:"0.0.0.0"`

	// Port is the port to listen on (default: 8080)
	Port int `env:"SERVER_PORT" default:"8080"`

	// ReadTimeout is the maximum duration for reading the request body (default: 15s)
	ReadTimeout time.Duration `env:"SERVER_READ_TIMEOUT" default:"15s"`

	// WriteTimeout is the maximum duration for writing the response (default: 30s)
	WriteTimeout time.Duration `env:"SERVER_WRITE_TIMEOUT" default:"30s"`

	// IdleTimeout is the keep-alive timeout (default: 60s)
	IdleTimeout time.Duration `env:"SERVER_IDLE_TIMEOUT" default:"60s"`

	// ShutdownTimeout is the maximum duration to wait for graceful shutdown (default: 30s)
	ShutdownTimeout time.Duration `env:"SERVER_SHUTDOWN_TIMEOUT" default:"30s"`

	// RequestTimeout is the middleware timeout for requests (default: 60s)
	RequestTimeout time.Duration `env:"SERVER_REQUEST_TIMEOUT" default:"60s"`
}

// DatabaseConfig holds database connection settings. An empty URL selects
// the in-memory store, which keeps records only for the lifetime of the
// process.
type DatabaseConfig struct {
	// URL is the PostgreSQL connection string (optional)
	// Supports both DATABASE_URL and DB_URL env vars for compatibility
	URL string `env:"DATABASE_URL" envAlt:"DB_URL"`

	// MaxConns is the maximum number of connections in the pool (default: 20)
	MaxConns int `env:"DB_MAX_CONNS" default:"20"`

	// MinConns is the minimum number of connections to keep open (default: 4)
	MinConns int `env:"DB_MIN_CONNS" default:"4"`

	// MaxConnLifetime is the maximum lifetime of a connection (default: 1h)
	MaxConnLifetime time.Duration `env:"DB_MAX_CONN_LIFETIME" default:"1h"`

	// MaxConnIdleTime is the maximum idle time before a connection is closed (default: 30m)
	MaxConnIdleTime time.Duration `env:"DB_MAX_CONN_IDLE_TIME" default:"30m"`
}

// UploadConfig holds import pipeline settings.
type UploadConfig struct {
	// MaxFileSize is the maximum allowed file size in bytes (default: 25MB)
	MaxFileSize int64 `env:"UPLOAD_MAX_FILE_SIZE" default:"26214400"`

	// MaxConcurrent is the maximum number of parallel import pipelines (default: 1)
	MaxConcurrent int `env:"UPLOAD_MAX_CONCURRENT" default:"1"`

	// MaxWaitTime is how long to wait for a pipeline slot (default: 10s)
	MaxWaitTime time.Duration `env:"UPLOAD_MAX_WAIT_TIME" default:"10s"`

	// StoreURL is the base URL of the file store service (optional)
	// When empty, uploaded bytes are held in memory instead.
	StoreURL string `env:"UPLOAD_STORE_URL"`

	// Timeout is the maximum duration for the upload-through-analyze leg (default: 10m)
	Timeout time.Duration `env:"UPLOAD_TIMEOUT" default:"10m"`

	// SaveTimeout is the maximum duration for the commit leg (default: 2m)
	SaveTimeout time.Duration `env:"UPLOAD_SAVE_TIMEOUT" default:"2m"`

	// SessionRetention is how long finished sessions stay queryable (default: 30m)
	SessionRetention time.Duration `env:"UPLOAD_SESSION_RETENTION" default:"30m"`
}

// ExtractConfig holds candidate extraction settings. MapperURL and
// UploadConfig.StoreURL select the remote pipeline together; when both are
// empty, files are parsed in process.
type ExtractConfig struct {
	// MapperURL is the base URL of the extraction service (optional)
	MapperURL string `env:"EXTRACT_MAPPER_URL"`

	// Timeout is the per-request timeout for the extraction service (default: 2m)
	Timeout time.Duration `env:"EXTRACT_TIMEOUT" default:"2m"`
}

// SourcesConfig holds upstream catalog source settings. A schedule is a
// cron expression ("0 3 * * *", "@daily", "@every 12h"); an empty schedule
// leaves that source manual-trigger only.
type SourcesConfig struct {
	// FetchLimit is the maximum records fetched per source run (default: 500)
	FetchLimit int `env:"SOURCES_FETCH_LIMIT" default:"500"`

	// PageDelay is the pause between successive page fetches (default: 500ms)
	PageDelay time.Duration `env:"SOURCES_PAGE_DELAY" default:"500ms"`

	// OpenFDAURL overrides the openFDA base URL (optional)
	OpenFDAURL string `env:"SOURCES_OPENFDA_URL"`

	// OpenFDASchedule is the cron schedule for the openFDA drug sync (optional)
	OpenFDASchedule string `env:"SOURCES_OPENFDA_SCHEDULE"`

	// ClinicalTablesURL overrides the Clinical Tables base URL (optional)
	ClinicalTablesURL string `env:"SOURCES_CLINICALTABLES_URL"`

	// ClinicalTablesSchedule is the cron schedule for the condition sync (optional)
	ClinicalTablesSchedule string `env:"SOURCES_CLINICALTABLES_SCHEDULE"`

	// ClinicalTablesTerms is a comma-separated override for the search terms
	// walked by the condition sync (optional)
	ClinicalTablesTerms []string `env:"SOURCES_CLINICALTABLES_TERMS"`
}

// RateLimitConfig holds rate limiting settings per time window.
type RateLimitConfig struct {
	// Enabled controls whether rate limiting is active (default: true)
	Enabled bool `env:"RATE_LIMIT_ENABLED" default:"true"`

	// RequestsPerMinute is the rate limit per IP (default: 100)
	RequestsPerMinute int `env:"RATE_LIMIT_REQUESTS_PER_MINUTE" default:"100"`
}

// SecurityConfig holds security-related settings.
type SecurityConfig struct {
	// RequireAPIKey controls whether API requests must carry X-API-Key (default: false)
	RequireAPIKey bool `env:"REQUIRE_API_KEY" default:"false"`

	// APIKeys is a comma-separated list of accepted API keys
	APIKeys []string `env:"API_KEYS"`

	// TrustedProxies is a comma-separated list of trusted proxy CIDRs
	TrustedProxies []string `env:"TRUSTED_PROXIES"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	// Level is the minimum log level: debug, info, warn, error (default: info)
	Level string `env:"LOG_LEVEL" default:"info"`

	// Format is the log format: text or json (default: text)
	Format string `env:"LOG_FORMAT" default:"text"`
}

// Addr returns the server listen address in host:port format.
func (c *ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// RemoteExtraction reports whether the remote upload/extract pair is
// configured.
func (c *Config) RemoteExtraction() bool {
	return c.Upload.StoreURL != "" && c.Extract.MapperURL != ""
}
