// Package config provides centralized configuration management for the application.
// It loads configuration from defaults, an optional TOML file and environment
// variables, and validates all settings on startup to fail fast on
// misconfiguration.
package config

import (
	"strconv"
	"time"
)

// Config holds all application configuration.
// Every setting can be configured via environment variables or the TOML file.
type Config struct {
	Server   ServerConfig    `toml:"server"`
	Load     LoadConfig      `toml:"load"`
	Session  SessionConfig   `toml:"session"`
	Mechanic MechanicConfig  `toml:"mechanic"`
	Rate     RateLimitConfig `toml:"rate"`
	Security SecurityConfig  `toml:"security"`
	Logging  LoggingConfig   `toml:"logging"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	// Host is the interface to bind to (default: 0.0.0.0)
	Host string `toml:"host" env:"SERVER_HOST" default:"0.0.0.0"`

	// Port is the port to listen on (default: 8080)
	Port int `toml:"port" env:"SERVER_PORT" default:"8080"`

	// ReadTimeout is the maximum duration for reading request body (default: 60s)
	ReadTimeout time.Duration `toml:"read_timeout" env:"SERVER_READ_TIMEOUT" default:"60s"`

	// WriteTimeout is the maximum duration for writing response (default: 0, exports stream)
	WriteTimeout time.Duration `toml:"write_timeout" env:"SERVER_WRITE_TIMEOUT" default:"0s"`

	// IdleTimeout is the keep-alive timeout (default: 60s)
	IdleTimeout time.Duration `toml:"idle_timeout" env:"SERVER_IDLE_TIMEOUT" default:"60s"`

	// ShutdownTimeout is the maximum duration to wait for graceful shutdown (default: 30s)
	ShutdownTimeout time.Duration `toml:"shutdown_timeout" env:"SERVER_SHUTDOWN_TIMEOUT" default:"30s"`

	// RequestTimeout is the middleware timeout for requests (default: 2m)
	RequestTimeout time.Duration `toml:"request_timeout" env:"SERVER_REQUEST_TIMEOUT" default:"2m"`
}

// LoadConfig holds dataset loading settings.
type LoadConfig struct {
	// MaxFileSize is the maximum accepted file size in bytes (default: 100MB)
	MaxFileSize int64 `toml:"max_file_size" env:"LOAD_MAX_FILE_SIZE" envAlt:"UPLOAD_MAX_FILE_SIZE" default:"104857600"`

	// MaxConcurrent is the maximum number of parallel loads (default: 4)
	MaxConcurrent int `toml:"max_concurrent" env:"LOAD_MAX_CONCURRENT" default:"4"`

	// MaxWaitTime is how long to wait for a load slot (default: 30s)
	MaxWaitTime time.Duration `toml:"max_wait_time" env:"LOAD_MAX_WAIT_TIME" default:"30s"`

	// ProgressInterval is bytes between progress reports (default: 1MB)
	ProgressInterval int64 `toml:"progress_interval" env:"LOAD_PROGRESS_INTERVAL" default:"1048576"`

	// SampleRows is how many rows type inference samples (default: 100)
	SampleRows int `toml:"sample_rows" env:"LOAD_SAMPLE_ROWS" default:"100"`
}

// SessionConfig holds session lifecycle settings.
type SessionConfig struct {
	// MaxSessions caps open sessions (default: 64)
	MaxSessions int `toml:"max_sessions" env:"SESSION_MAX" default:"64"`

	// IdleTimeout is how long an unused session survives (default: 30m)
	IdleTimeout time.Duration `toml:"idle_timeout" env:"SESSION_IDLE_TIMEOUT" default:"30m"`

	// JanitorInterval is how often idle sessions are swept (default: 1m)
	JanitorInterval time.Duration `toml:"janitor_interval" env:"SESSION_JANITOR_INTERVAL" default:"1m"`

	// HistoryLimit is the journal size per session (default: 500)
	HistoryLimit int `toml:"history_limit" env:"SESSION_HISTORY_LIMIT" default:"500"`
}

// MechanicConfig bounds suggestion analysis.
type MechanicConfig struct {
	// MaxRows is how many rows one analysis scans (default: 50000)
	MaxRows int `toml:"max_rows" env:"MECHANIC_MAX_ROWS" default:"50000"`

	// MaxUniqueInvalid caps distinct invalid values collected (default: 30000)
	MaxUniqueInvalid int `toml:"max_unique_invalid" env:"MECHANIC_MAX_UNIQUE_INVALID" default:"30000"`

	// Workers is parallel column analyses for all-column suggestions (default: 4)
	Workers int `toml:"workers" env:"MECHANIC_WORKERS" default:"4"`
}

// RateLimitConfig holds rate limiting settings per time window.
type RateLimitConfig struct {
	// Enabled controls whether rate limiting is active (default: true)
	Enabled bool `toml:"enabled" env:"RATE_LIMIT_ENABLED" default:"true"`

	// RequestsPerMinute is the default rate limit per IP (default: 300)
	RequestsPerMinute int `toml:"requests_per_minute" env:"RATE_LIMIT_REQUESTS_PER_MINUTE" default:"300"`

	// LoadLimit is requests per minute for load endpoints (default: 10)
	LoadLimit int `toml:"load_limit" env:"RATE_LIMIT_LOAD" envAlt:"RATE_LIMIT_UPLOAD" default:"10"`
}

// SecurityConfig holds security-related settings.
type SecurityConfig struct {
	// TrustedProxies is a comma-separated list of trusted proxy CIDRs
	TrustedProxies []string `toml:"trusted_proxies" env:"TRUSTED_PROXIES"`

	// EnableCSP enables Content-Security-Policy headers (default: true)
	EnableCSP bool `toml:"enable_csp" env:"SECURITY_ENABLE_CSP" default:"true"`

	// RequireAPIKey turns on X-API-Key checking for /api (default: false)
	RequireAPIKey bool `toml:"require_api_key" env:"REQUIRE_API_KEY" default:"false"`

	// APIKeys is a comma-separated list of accepted keys
	APIKeys []string `toml:"api_keys" env:"API_KEYS"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	// Level is the minimum log level: debug, info, warn, error (default: info)
	Level string `toml:"level" env:"LOG_LEVEL" default:"info"`

	// Format is the log format: text or json (default: text)
	Format string `toml:"format" env:"LOG_FORMAT" default:"text"`
}

// Addr returns the server listen address in host:port format.
func (c *ServerConfig) Addr() string {
	return c.Host + ":" + strconv.Itoa(c.Port)
}
