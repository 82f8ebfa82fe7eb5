// Package config defines the top-level configuration for the optfolio
// backend and provides validation helpers.
package config

import (
	"fmt"
	"strings"
	"time"
)

// Config is the root configuration structure. Fields are populated from a
// TOML file and then optionally overridden by OPTFOLIO_* environment
// variables.
type Config struct {
	Varex    VarexConfig    `toml:"varex"`
	Postgres PostgresConfig `toml:"postgres"`
	Redis    RedisConfig    `toml:"redis"`
	S3       S3Config       `toml:"s3"`
	Engine   EngineConfig   `toml:"engine"`
	Market   MarketConfig   `toml:"market"`
	Archive  ArchiveConfig  `toml:"archive"`
	Server   ServerConfig   `toml:"server"`
	LogLevel string         `toml:"log_level"`
}

// VarexConfig holds endpoints and credentials for the Varex pricing service.
type VarexConfig struct {
	BaseURL        string   `toml:"base_url"`
	WsURL          string   `toml:"ws_url"`
	ApiKey         string   `toml:"api_key"`
	RequestTimeout duration `toml:"request_timeout"`
	StreamEnabled  bool     `toml:"stream_enabled"`
}

// PostgresConfig holds PostgreSQL connection parameters. When Enabled is
// false positions live in the in-memory session store.
type PostgresConfig struct {
	Enabled       bool   `toml:"enabled"`
	DSN           string `toml:"dsn"`
	Host          string `toml:"host"`
	Port          int    `toml:"port"`
	Database      string `toml:"database"`
	User          string `toml:"user"`
	Password      string `toml:"password"`
	SSLMode       string `toml:"ssl_mode"`
	PoolMaxConns  int    `toml:"pool_max_conns"`
	PoolMinConns  int    `toml:"pool_min_conns"`
	RunMigrations bool   `toml:"run_migrations"`
}

// RedisConfig holds Redis connection parameters for the shared quote cache.
type RedisConfig struct {
	Enabled    bool   `toml:"enabled"`
	Addr       string `toml:"addr"`
	Password   string `toml:"password"`
	DB         int    `toml:"db"`
	PoolSize   int    `toml:"pool_size"`
	MaxRetries int    `toml:"max_retries"`
	TLSEnabled bool   `toml:"tls_enabled"`
}

// S3Config holds S3-compatible object storage parameters for snapshot
// archival.
type S3Config struct {
	Enabled        bool   `toml:"enabled"`
	Endpoint       string `toml:"endpoint"`
	Region         string `toml:"region"`
	Bucket         string `toml:"bucket"`
	AccessKey      string `toml:"access_key"`
	SecretKey      string `toml:"secret_key"`
	UseSSL         bool   `toml:"use_ssl"`
	ForcePathStyle bool   `toml:"force_path_style"`
}

// EngineConfig tunes the calculation orchestrator.
type EngineConfig struct {
	MaxRetries   int      `toml:"max_retries"`
	RetryDelay   duration `toml:"retry_delay"`
	ProbeTimeout duration `toml:"probe_timeout"`
}

// MarketConfig tunes the market-aware chain cache.
type MarketConfig struct {
	Timezone  string   `toml:"timezone"`
	OpenTTL   duration `toml:"open_ttl"`
	ClosedTTL duration `toml:"closed_ttl"`
}

// ArchiveConfig tunes snapshotting and cold-storage archival.
type ArchiveConfig struct {
	SnapshotInterval duration `toml:"snapshot_interval"`
	RetainFor        duration `toml:"retain_for"`
}

// ServerConfig holds HTTP server parameters.
type ServerConfig struct {
	Port        int      `toml:"port"`
	CORSOrigins []string `toml:"cors_origins"`
	APIKey      string   `toml:"api_key"`
}

// duration is a wrapper around time.Duration that supports TOML string
// decoding (e.g. "5m", "30s").
type duration struct {
	time.Duration
}

// UnmarshalText implements encoding.TextUnmarshaler so the TOML decoder can
// parse duration strings like "5m" or "30s".
func (d *duration) UnmarshalText(text []byte) error {
	var err error
	d.Duration, err = time.ParseDuration(string(text))
	return err
}

// MarshalText implements encoding.TextMarshaler for round-trip encoding.
func (d duration) MarshalText() ([]byte, error) {
	return []byte(d.Duration.String()), nil
}

// Defaults returns a Config populated with reasonable default values.
func Defaults() Config {
	return Config{
		Varex: VarexConfig{
			BaseURL:        "http://localhost:8720/v1",
			WsURL:          "ws://localhost:8720/v1/stream/quotes",
			RequestTimeout: duration{15 * time.Second},
			StreamEnabled:  false,
		},
		Postgres: PostgresConfig{
			Enabled:       false,
			Host:          "localhost",
			Port:          5432,
			Database:      "optfolio",
			User:          "postgres",
			SSLMode:       "disable",
			PoolMaxConns:  10,
			PoolMinConns:  2,
			RunMigrations: true,
		},
		Redis: RedisConfig{
			Enabled:    false,
			Addr:       "localhost:6379",
			PoolSize:   20,
			MaxRetries: 3,
		},
		S3: S3Config{
			Enabled:        false,
			Endpoint:       "http://localhost:9000",
			Region:         "us-east-1",
			Bucket:         "optfolio-data",
			ForcePathStyle: true,
		},
		Engine: EngineConfig{
			MaxRetries:   3,
			RetryDelay:   duration{time.Second},
			ProbeTimeout: duration{5 * time.Second},
		},
		Market: MarketConfig{
			Timezone:  "America/New_York",
			OpenTTL:   duration{time.Minute},
			ClosedTTL: duration{15 * time.Minute},
		},
		Archive: ArchiveConfig{
			SnapshotInterval: duration{time.Hour},
			RetainFor:        duration{30 * 24 * time.Hour},
		},
		Server: ServerConfig{
			Port:        8080,
			CORSOrigins: []string{"*"},
		},
		LogLevel: "info",
	}
}

var validLogLevels = map[string]bool{
	"debug": true,
	"info":  true,
	"warn":  true,
	"error": true,
}

// Validate checks the configuration for internal consistency and returns an
// error listing every problem found.
func (c *Config) Validate() error {
	var errs []string

	if !validLogLevels[strings.ToLower(c.LogLevel)] {
		errs = append(errs, fmt.Sprintf("unknown log_level %q (valid: debug, info, warn, error)", c.LogLevel))
	}

	if c.Varex.BaseURL == "" {
		errs = append(errs, "varex: base_url must not be empty")
	}
	if c.Varex.StreamEnabled && c.Varex.WsURL == "" {
		errs = append(errs, "varex: ws_url is required when stream_enabled is true")
	}
	if c.Varex.RequestTimeout.Duration < 0 {
		errs = append(errs, "varex: request_timeout must not be negative")
	}

	if c.Postgres.Enabled {
		if strings.TrimSpace(c.Postgres.DSN) == "" {
			if c.Postgres.Host == "" {
				errs = append(errs, "postgres: host must not be empty (or set postgres.dsn)")
			}
			if c.Postgres.Port <= 0 || c.Postgres.Port > 65535 {
				errs = append(errs, fmt.Sprintf("postgres: port must be 1-65535, got %d", c.Postgres.Port))
			}
			if c.Postgres.Database == "" {
				errs = append(errs, "postgres: database must not be empty")
			}
		}
		if c.Postgres.PoolMaxConns < 1 {
			errs = append(errs, "postgres: pool_max_conns must be >= 1")
		}
	}

	if c.Redis.Enabled && c.Redis.Addr == "" {
		errs = append(errs, "redis: addr must not be empty")
	}

	if c.S3.Enabled {
		if c.S3.Bucket == "" {
			errs = append(errs, "s3: bucket must not be empty")
		}
		if c.S3.Region == "" {
			errs = append(errs, "s3: region must not be empty")
		}
	}

	if c.Engine.MaxRetries < 0 {
		errs = append(errs, "engine: max_retries must not be negative")
	}
	if c.Engine.RetryDelay.Duration < 0 {
		errs = append(errs, "engine: retry_delay must not be negative")
	}

	if c.Market.OpenTTL.Duration < 0 || c.Market.ClosedTTL.Duration < 0 {
		errs = append(errs, "market: ttls must not be negative")
	}
	if _, err := time.LoadLocation(c.Market.Timezone); c.Market.Timezone != "" && err != nil {
		errs = append(errs, fmt.Sprintf("market: unknown timezone %q", c.Market.Timezone))
	}

	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		errs = append(errs, fmt.Sprintf("server: port must be 1-65535, got %d", c.Server.Port))
	}

	if len(errs) > 0 {
		return fmt.Errorf("config: %s", strings.Join(errs, "; "))
	}
	return nil
}
