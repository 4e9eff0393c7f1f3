// Package config loads sessiond configuration from a YAML file with
// environment variable overrides.
//
// Every field sits one level below its section, so the SESSIOND_ env
// mapping stays mechanical: SESSIOND_SERVER_PORT -> server.port,
// SESSIOND_STORE_POSTGRES_DSN -> store.postgres_dsn.
package config

import (
	"fmt"
	"time"
)

// Config holds the complete sessiond configuration.
type Config struct {
	Server    ServerConfig    `koanf:"server"`
	Import    ImportConfig    `koanf:"import"`
	Store     StoreConfig     `koanf:"store"`
	Events    EventsConfig    `koanf:"events"`
	Logging   LoggingConfig   `koanf:"logging"`
	Telemetry TelemetryConfig `koanf:"telemetry"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Host            string   `koanf:"host"`
	Port            int      `koanf:"port"`
	ReadTimeout     Duration `koanf:"read_timeout"`
	WriteTimeout    Duration `koanf:"write_timeout"`
	IdleTimeout     Duration `koanf:"idle_timeout"`
	ShutdownTimeout Duration `koanf:"shutdown_timeout"`
}

// Addr returns the listen address in host:port form.
func (c ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// ImportConfig holds upload handling settings.
type ImportConfig struct {
	// MaxUploadBytes caps the size of an uploaded document.
	MaxUploadBytes int64 `koanf:"max_upload_bytes"`
	// RateLimit is the sustained per-session-key request rate.
	RateLimit float64 `koanf:"rate_limit"`
	// RateBurst is the per-session-key burst allowance.
	RateBurst int `koanf:"rate_burst"`
}

// StoreConfig selects and tunes the session store backend.
type StoreConfig struct {
	// Provider is "memory" or "postgres".
	Provider string `koanf:"provider"`

	PostgresDSN            Secret   `koanf:"postgres_dsn"`
	PostgresMaxConns       int32    `koanf:"postgres_max_conns"`
	PostgresConnectTimeout Duration `koanf:"postgres_connect_timeout"`
}

// EventsConfig holds NATS publisher settings.
type EventsConfig struct {
	Enabled       bool   `koanf:"enabled"`
	URL           string `koanf:"url"`
	SubjectPrefix string `koanf:"subject_prefix"`
}

// LoggingConfig holds the log knobs exposed through daemon config. The
// logging package owns the full configuration; these fields override its
// defaults at startup.
type LoggingConfig struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format"`

	FileEnabled    bool   `koanf:"file_enabled"`
	FilePath       string `koanf:"file_path"`
	FileMaxSizeMB  int    `koanf:"file_max_size_mb"`
	FileMaxBackups int    `koanf:"file_max_backups"`
	FileMaxAgeDays int    `koanf:"file_max_age_days"`
	FileCompress   bool   `koanf:"file_compress"`
}

// TelemetryConfig holds the OTLP knobs exposed through daemon config. The
// telemetry package owns the full configuration.
type TelemetryConfig struct {
	Enabled         bool     `koanf:"enabled"`
	Endpoint        string   `koanf:"endpoint"`
	Protocol        string   `koanf:"protocol"`
	Insecure        bool     `koanf:"insecure"`
	SampleRate      float64  `koanf:"sample_rate"`
	MetricsInterval Duration `koanf:"metrics_interval"`
}

// Store provider names.
const (
	StoreProviderMemory   = "memory"
	StoreProviderPostgres = "postgres"
)

// applyDefaults fills in defaults for unset fields.
func applyDefaults(cfg *Config) {
	if cfg.Server.Host == "" {
		cfg.Server.Host = "0.0.0.0"
	}
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 9090
	}
	if cfg.Server.ReadTimeout == 0 {
		cfg.Server.ReadTimeout = Duration(10 * time.Second)
	}
	if cfg.Server.WriteTimeout == 0 {
		cfg.Server.WriteTimeout = Duration(10 * time.Second)
	}
	if cfg.Server.IdleTimeout == 0 {
		cfg.Server.IdleTimeout = Duration(120 * time.Second)
	}
	if cfg.Server.ShutdownTimeout == 0 {
		cfg.Server.ShutdownTimeout = Duration(10 * time.Second)
	}

	if cfg.Import.MaxUploadBytes == 0 {
		cfg.Import.MaxUploadBytes = 10 << 20
	}
	if cfg.Import.RateLimit == 0 {
		cfg.Import.RateLimit = 10
	}
	if cfg.Import.RateBurst == 0 {
		cfg.Import.RateBurst = 20
	}

	if cfg.Store.Provider == "" {
		cfg.Store.Provider = StoreProviderMemory
	}
	if cfg.Store.PostgresMaxConns == 0 {
		cfg.Store.PostgresMaxConns = 8
	}
	if cfg.Store.PostgresConnectTimeout == 0 {
		cfg.Store.PostgresConnectTimeout = Duration(5 * time.Second)
	}

	if cfg.Events.URL == "" {
		cfg.Events.URL = "nats://localhost:4222"
	}
	if cfg.Events.SubjectPrefix == "" {
		cfg.Events.SubjectPrefix = "sessiond"
	}

	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = "json"
	}
	if cfg.Logging.FileMaxSizeMB == 0 {
		cfg.Logging.FileMaxSizeMB = 10
	}
	if cfg.Logging.FileMaxBackups == 0 {
		cfg.Logging.FileMaxBackups = 5
	}
	if cfg.Logging.FileMaxAgeDays == 0 {
		cfg.Logging.FileMaxAgeDays = 30
	}

	if cfg.Telemetry.Endpoint == "" {
		cfg.Telemetry.Endpoint = "localhost:4317"
	}
	if cfg.Telemetry.Protocol == "" {
		cfg.Telemetry.Protocol = "grpc"
	}
	if cfg.Telemetry.SampleRate == 0 {
		cfg.Telemetry.SampleRate = 1.0
	}
	if cfg.Telemetry.MetricsInterval == 0 {
		cfg.Telemetry.MetricsInterval = Duration(60 * time.Second)
	}
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d (must be 1-65535)", c.Server.Port)
	}
	if c.Server.ShutdownTimeout.Duration() <= 0 {
		return fmt.Errorf("shutdown timeout must be positive")
	}

	if c.Import.MaxUploadBytes <= 0 {
		return fmt.Errorf("max upload bytes must be positive, got %d", c.Import.MaxUploadBytes)
	}
	if c.Import.RateLimit <= 0 {
		return fmt.Errorf("rate limit must be positive, got %v", c.Import.RateLimit)
	}
	if c.Import.RateBurst < 1 {
		return fmt.Errorf("rate burst must be at least 1, got %d", c.Import.RateBurst)
	}

	switch c.Store.Provider {
	case StoreProviderMemory:
	case StoreProviderPostgres:
		if !c.Store.PostgresDSN.IsSet() {
			return fmt.Errorf("store.postgres_dsn is required for the postgres provider")
		}
	default:
		return fmt.Errorf("unknown store provider %q (supported: memory, postgres)", c.Store.Provider)
	}

	if c.Events.Enabled && c.Events.URL == "" {
		return fmt.Errorf("events.url is required when events are enabled")
	}

	switch c.Logging.Format {
	case "json", "console":
	default:
		return fmt.Errorf("logging format must be 'json' or 'console', got %q", c.Logging.Format)
	}
	switch c.Logging.Level {
	case "trace", "debug", "info", "warn", "error", "dpanic", "panic", "fatal":
	default:
		return fmt.Errorf("unknown logging level %q", c.Logging.Level)
	}
	if c.Logging.FileEnabled && c.Logging.FilePath == "" {
		return fmt.Errorf("logging.file_path is required when file output is enabled")
	}

	if c.Telemetry.Enabled {
		if c.Telemetry.Endpoint == "" {
			return fmt.Errorf("telemetry.endpoint is required when telemetry is enabled")
		}
		switch c.Telemetry.Protocol {
		case "grpc", "http/protobuf":
		default:
			return fmt.Errorf("telemetry protocol must be 'grpc' or 'http/protobuf', got %q", c.Telemetry.Protocol)
		}
		if c.Telemetry.SampleRate < 0 || c.Telemetry.SampleRate > 1 {
			return fmt.Errorf("telemetry sample rate must be in [0,1], got %v", c.Telemetry.SampleRate)
		}
	}

	return nil
}
