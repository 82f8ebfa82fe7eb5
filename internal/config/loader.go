package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
)

// Load reads a TOML configuration file at path, merges it on top of the
// built-in defaults, applies OPTFOLIO_* environment variable overrides, and
// returns the final Config. The returned Config has NOT been validated; the
// caller should invoke Config.Validate() after Load.
func Load(path string) (*Config, error) {
	cfg := Defaults()

	if path != "" {
		if _, err := toml.DecodeFile(path, &cfg); err != nil {
			return nil, err
		}
	}

	// Load .env file if present (silently ignore if missing).
	_ = godotenv.Load()

	applyEnvOverrides(&cfg)

	return &cfg, nil
}

// applyEnvOverrides reads well-known OPTFOLIO_* environment variables and
// overwrites the corresponding Config fields when a variable is set. This
// lets operators inject secrets at deploy time without touching the TOML
// file.
func applyEnvOverrides(cfg *Config) {
	// ── Varex ──
	setStr(&cfg.Varex.BaseURL, "OPTFOLIO_VAREX_BASE_URL")
	setStr(&cfg.Varex.WsURL, "OPTFOLIO_VAREX_WS_URL")
	setStr(&cfg.Varex.ApiKey, "OPTFOLIO_VAREX_API_KEY")
	setDuration(&cfg.Varex.RequestTimeout, "OPTFOLIO_VAREX_REQUEST_TIMEOUT")
	setBool(&cfg.Varex.StreamEnabled, "OPTFOLIO_VAREX_STREAM_ENABLED")

	// ── Postgres ──
	setBool(&cfg.Postgres.Enabled, "OPTFOLIO_POSTGRES_ENABLED")
	setStr(&cfg.Postgres.DSN, "OPTFOLIO_POSTGRES_DSN")
	setStr(&cfg.Postgres.Host, "OPTFOLIO_POSTGRES_HOST")
	setInt(&cfg.Postgres.Port, "OPTFOLIO_POSTGRES_PORT")
	setStr(&cfg.Postgres.Database, "OPTFOLIO_POSTGRES_DATABASE")
	setStr(&cfg.Postgres.User, "OPTFOLIO_POSTGRES_USER")
	setStr(&cfg.Postgres.Password, "OPTFOLIO_POSTGRES_PASSWORD")
	setStr(&cfg.Postgres.SSLMode, "OPTFOLIO_POSTGRES_SSL_MODE")
	setInt(&cfg.Postgres.PoolMaxConns, "OPTFOLIO_POSTGRES_POOL_MAX_CONNS")
	setInt(&cfg.Postgres.PoolMinConns, "OPTFOLIO_POSTGRES_POOL_MIN_CONNS")
	setBool(&cfg.Postgres.RunMigrations, "OPTFOLIO_POSTGRES_RUN_MIGRATIONS")

	// ── Redis ──
	setBool(&cfg.Redis.Enabled, "OPTFOLIO_REDIS_ENABLED")
	setStr(&cfg.Redis.Addr, "OPTFOLIO_REDIS_ADDR")
	setStr(&cfg.Redis.Password, "OPTFOLIO_REDIS_PASSWORD")
	setInt(&cfg.Redis.DB, "OPTFOLIO_REDIS_DB")
	setInt(&cfg.Redis.PoolSize, "OPTFOLIO_REDIS_POOL_SIZE")
	setInt(&cfg.Redis.MaxRetries, "OPTFOLIO_REDIS_MAX_RETRIES")
	setBool(&cfg.Redis.TLSEnabled, "OPTFOLIO_REDIS_TLS_ENABLED")

	// ── S3 ──
	setBool(&cfg.S3.Enabled, "OPTFOLIO_S3_ENABLED")
	setStr(&cfg.S3.Endpoint, "OPTFOLIO_S3_ENDPOINT")
	setStr(&cfg.S3.Region, "OPTFOLIO_S3_REGION")
	setStr(&cfg.S3.Bucket, "OPTFOLIO_S3_BUCKET")
	setStr(&cfg.S3.AccessKey, "OPTFOLIO_S3_ACCESS_KEY")
	setStr(&cfg.S3.SecretKey, "OPTFOLIO_S3_SECRET_KEY")
	setBool(&cfg.S3.UseSSL, "OPTFOLIO_S3_USE_SSL")
	setBool(&cfg.S3.ForcePathStyle, "OPTFOLIO_S3_FORCE_PATH_STYLE")

	// ── Engine ──
	setInt(&cfg.Engine.MaxRetries, "OPTFOLIO_ENGINE_MAX_RETRIES")
	setDuration(&cfg.Engine.RetryDelay, "OPTFOLIO_ENGINE_RETRY_DELAY")
	setDuration(&cfg.Engine.ProbeTimeout, "OPTFOLIO_ENGINE_PROBE_TIMEOUT")

	// ── Market ──
	setStr(&cfg.Market.Timezone, "OPTFOLIO_MARKET_TIMEZONE")
	setDuration(&cfg.Market.OpenTTL, "OPTFOLIO_MARKET_OPEN_TTL")
	setDuration(&cfg.Market.ClosedTTL, "OPTFOLIO_MARKET_CLOSED_TTL")

	// ── Archive ──
	setDuration(&cfg.Archive.SnapshotInterval, "OPTFOLIO_ARCHIVE_SNAPSHOT_INTERVAL")
	setDuration(&cfg.Archive.RetainFor, "OPTFOLIO_ARCHIVE_RETAIN_FOR")

	// ── Server ──
	setInt(&cfg.Server.Port, "OPTFOLIO_SERVER_PORT")
	setStringSlice(&cfg.Server.CORSOrigins, "OPTFOLIO_SERVER_CORS_ORIGINS")
	setStr(&cfg.Server.APIKey, "OPTFOLIO_SERVER_API_KEY")

	setStr(&cfg.LogLevel, "OPTFOLIO_LOG_LEVEL")
}

func setStr(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func setInt(dst *int, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func setBool(dst *bool, key string) {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			*dst = b
		}
	}
}

func setDuration(dst *duration, key string) {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			dst.Duration = d
		}
	}
}

func setStringSlice(dst *[]string, key string) {
	if v := os.Getenv(key); v != "" {
		parts := strings.Split(v, ",")
		cleaned := make([]string, 0, len(parts))
		for _, p := range parts {
			p = strings.TrimSpace(p)
			if p != "" {
				cleaned = append(cleaned, p)
			}
		}
		if len(cleaned) > 0 {
			*dst = cleaned
		}
	}
}
