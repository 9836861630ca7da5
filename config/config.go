// Package config loads runtime settings from the environment.
package config

import (
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
)

// DefaultSourceURL is the public associate list consumed by the importer.
const DefaultSourceURL = "https://raw.githubusercontent.com/managerrojo/COAVANCOL-Prueba-T-cnica-/refs/heads/main/IndexAsociados"

// Config holds every setting shared by the api server and pipelinectl.
type Config struct {
	DatabaseURL       string        `env:"DATABASE_URL"`
	HTTPAddr          string        `env:"ASSOCIATEFLOW_HTTP_ADDR" envDefault:":8080"`
	SourceURL         string        `env:"ASSOCIATEFLOW_SOURCE_URL" envDefault:"https://raw.githubusercontent.com/managerrojo/COAVANCOL-Prueba-T-cnica-/refs/heads/main/IndexAsociados"`
	FetchTimeout      time.Duration `env:"ASSOCIATEFLOW_FETCH_TIMEOUT" envDefault:"10s"`
	ImportConcurrency int           `env:"ASSOCIATEFLOW_IMPORT_CONCURRENCY" envDefault:"4"`
	DBMaxConns        int32         `env:"ASSOCIATEFLOW_DB_MAX_CONNS" envDefault:"16"`
	LogLevel          string        `env:"ASSOCIATEFLOW_LOG_LEVEL" envDefault:"info"`
	ShutdownTimeout   time.Duration `env:"ASSOCIATEFLOW_SHUTDOWN_TIMEOUT" envDefault:"10s"`
}

// Load parses the environment into a Config and validates it.
func Load() (Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("config: parse env: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate rejects settings that cannot work.
func (c Config) Validate() error {
	if c.ImportConcurrency <= 0 {
		return fmt.Errorf("config: import concurrency must be positive, got %d", c.ImportConcurrency)
	}
	if c.DBMaxConns <= 0 {
		return fmt.Errorf("config: db max conns must be positive, got %d", c.DBMaxConns)
	}
	if c.FetchTimeout <= 0 {
		return fmt.Errorf("config: fetch timeout must be positive")
	}
	if _, err := ParseLevel(c.LogLevel); err != nil {
		return err
	}
	return nil
}

// RequireDatabase returns an error when no DATABASE_URL was provided.
func (c Config) RequireDatabase() error {
	if strings.TrimSpace(c.DatabaseURL) == "" {
		return fmt.Errorf("config: DATABASE_URL is required")
	}
	return nil
}

// ParseLevel maps a textual log level onto slog.
func ParseLevel(level string) (slog.Level, error) {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "", "info":
		return slog.LevelInfo, nil
	case "debug":
		return slog.LevelDebug, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return slog.LevelInfo, fmt.Errorf("config: unknown log level %q", level)
	}
}
