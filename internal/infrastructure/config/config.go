package config

import (
	"fmt"
	"time"

	"github.com/kelseyhightower/envconfig"
)

// Config holds all application configuration.
type Config struct {
	Server    ServerConfig
	Scraper   ScraperConfig
	Output    OutputConfig
	Archive   ArchiveConfig
	Fetch     FetchConfig
	Logging   LogConfig
	RateLimit RateLimitConfig
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	Port            string        `envconfig:"PORT" default:"8000"`
	Host            string        `envconfig:"HOST" default:"0.0.0.0"`
	ShutdownTimeout time.Duration `envconfig:"SHUTDOWN_TIMEOUT" default:"10s"`
}

// Addr returns host:port.
func (s ServerConfig) Addr() string {
	return s.Host + ":" + s.Port
}

// ScraperConfig locates the site rule files.
type ScraperConfig struct {
	ConfigPath string `envconfig:"SCRAPER_CONFIG" default:"config.toml"`
	// SitesGlob, when set, loads every matching file under SitesRoot instead
	SitesGlob string `envconfig:"SCRAPER_SITES_GLOB"`
	SitesRoot string `envconfig:"SCRAPER_SITES_ROOT" default:"."`
}

// OutputConfig holds result file settings.
type OutputConfig struct {
	Dir    string `envconfig:"OUTPUT_DIR" default:"output"`
	Format string `envconfig:"OUTPUT_FORMAT" default:"toml"`
}

// ArchiveConfig holds result history settings.
type ArchiveConfig struct {
	DSN     string `envconfig:"ARCHIVE_DSN" default:"data/archive.db"`
	Enabled bool   `envconfig:"ARCHIVE_ENABLED" default:"false"`
}

// FetchConfig holds outbound HTTP settings.
type FetchConfig struct {
	RequestsPerSecond float64       `envconfig:"FETCH_RPS" default:"2"`
	Burst             int           `envconfig:"FETCH_BURST" default:"4"`
	UserAgent         string        `envconfig:"FETCH_USER_AGENT" default:"facility-scraper/1.0"`
	RetryWaitMin      time.Duration `envconfig:"FETCH_RETRY_WAIT_MIN" default:"1s"`
	RetryWaitMax      time.Duration `envconfig:"FETCH_RETRY_WAIT_MAX" default:"30s"`
	BreakerFailures   uint32        `envconfig:"FETCH_BREAKER_FAILURES" default:"5"`
	BreakerTimeout    time.Duration `envconfig:"FETCH_BREAKER_TIMEOUT" default:"60s"`
}

// LogConfig holds logging configuration.
type LogConfig struct {
	Level       string `envconfig:"LOG_LEVEL" default:"info"`
	Development bool   `envconfig:"LOG_DEV" default:"false"`
}

// RateLimitConfig holds API rate limiting configuration.
type RateLimitConfig struct {
	RequestsPerSecond int  `envconfig:"RATE_LIMIT_RPS" default:"20"`
	Burst             int  `envconfig:"RATE_LIMIT_BURST" default:"40"`
	Enabled           bool `envconfig:"RATE_LIMIT_ENABLED" default:"true"`
}

// Load loads configuration from environment variables.
func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	return &cfg, nil
}

// LoadOrDefault loads configuration from environment or returns default.
func LoadOrDefault() *Config {
	cfg, err := Load()
	if err != nil {
		return Default()
	}
	return cfg
}

// Default returns default configuration.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Port:            "8000",
			Host:            "0.0.0.0",
			ShutdownTimeout: 10 * time.Second,
		},
		Scraper: ScraperConfig{
			ConfigPath: "config.toml",
			SitesRoot:  ".",
		},
		Output: OutputConfig{
			Dir:    "output",
			Format: "toml",
		},
		Archive: ArchiveConfig{
			DSN: "data/archive.db",
		},
		Fetch: FetchConfig{
			RequestsPerSecond: 2,
			Burst:             4,
			UserAgent:         "facility-scraper/1.0",
			RetryWaitMin:      time.Second,
			RetryWaitMax:      30 * time.Second,
			BreakerFailures:   5,
			BreakerTimeout:    60 * time.Second,
		},
		Logging: LogConfig{
			Level: "info",
		},
		RateLimit: RateLimitConfig{
			RequestsPerSecond: 20,
			Burst:             40,
			Enabled:           true,
		},
	}
}
