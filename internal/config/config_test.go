package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaults_Valid(t *testing.T) {
	cfg := Defaults()

	require.NoError(t, cfg.Validate())
	assert.Equal(t, "http://localhost:8720/v1", cfg.Varex.BaseURL)
	assert.Equal(t, 15*time.Second, cfg.Varex.RequestTimeout.Duration)
	assert.Equal(t, 3, cfg.Engine.MaxRetries)
	assert.Equal(t, time.Second, cfg.Engine.RetryDelay.Duration)
	assert.Equal(t, "America/New_York", cfg.Market.Timezone)
	assert.Equal(t, time.Minute, cfg.Market.OpenTTL.Duration)
	assert.Equal(t, 15*time.Minute, cfg.Market.ClosedTTL.Duration)
	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, "info", cfg.LogLevel)
	assert.False(t, cfg.Postgres.Enabled)
	assert.False(t, cfg.Redis.Enabled)
	assert.False(t, cfg.S3.Enabled)
}

func TestLoad_TOMLOverridesDefaults(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.toml")
	data := `
log_level = "debug"

[varex]
base_url = "https://pricing.example.com/v1"
request_timeout = "30s"

[engine]
max_retries = 5

[server]
port = 9090
cors_origins = ["https://app.example.com"]
`
	require.NoError(t, os.WriteFile(path, []byte(data), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "debug", cfg.LogLevel)
	assert.Equal(t, "https://pricing.example.com/v1", cfg.Varex.BaseURL)
	assert.Equal(t, 30*time.Second, cfg.Varex.RequestTimeout.Duration)
	assert.Equal(t, 5, cfg.Engine.MaxRetries)
	assert.Equal(t, 9090, cfg.Server.Port)
	assert.Equal(t, []string{"https://app.example.com"}, cfg.Server.CORSOrigins)

	// Untouched sections keep their defaults.
	assert.Equal(t, time.Minute, cfg.Market.OpenTTL.Duration)
}

func TestLoad_MissingFileError(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.toml"))
	assert.Error(t, err)
}

func TestLoad_EnvOverridesWin(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.toml")
	data := `
[varex]
base_url = "https://from-file.example.com"

[engine]
max_retries = 5
`
	require.NoError(t, os.WriteFile(path, []byte(data), 0o600))

	t.Setenv("OPTFOLIO_VAREX_BASE_URL", "https://from-env.example.com")
	t.Setenv("OPTFOLIO_VAREX_API_KEY", "sk-env")
	t.Setenv("OPTFOLIO_ENGINE_MAX_RETRIES", "7")
	t.Setenv("OPTFOLIO_ENGINE_RETRY_DELAY", "2s")
	t.Setenv("OPTFOLIO_SERVER_CORS_ORIGINS", "https://a.example.com, https://b.example.com")
	t.Setenv("OPTFOLIO_POSTGRES_ENABLED", "true")
	t.Setenv("OPTFOLIO_POSTGRES_DSN", "postgres://u:p@db:5432/optfolio")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "https://from-env.example.com", cfg.Varex.BaseURL)
	assert.Equal(t, "sk-env", cfg.Varex.ApiKey)
	assert.Equal(t, 7, cfg.Engine.MaxRetries)
	assert.Equal(t, 2*time.Second, cfg.Engine.RetryDelay.Duration)
	assert.Equal(t, []string{"https://a.example.com", "https://b.example.com"}, cfg.Server.CORSOrigins)
	assert.True(t, cfg.Postgres.Enabled)
	assert.Equal(t, "postgres://u:p@db:5432/optfolio", cfg.Postgres.DSN)
}

func TestLoad_BadEnvValueIgnored(t *testing.T) {
	t.Setenv("OPTFOLIO_ENGINE_MAX_RETRIES", "lots")
	t.Setenv("OPTFOLIO_ENGINE_RETRY_DELAY", "soon")

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, 3, cfg.Engine.MaxRetries)
	assert.Equal(t, time.Second, cfg.Engine.RetryDelay.Duration)
}

func TestValidate_CollectsAllProblems(t *testing.T) {
	cfg := Defaults()
	cfg.LogLevel = "verbose"
	cfg.Varex.BaseURL = ""
	cfg.Server.Port = 0
	cfg.Market.Timezone = "Mars/Olympus_Mons"

	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "log_level")
	assert.Contains(t, err.Error(), "base_url")
	assert.Contains(t, err.Error(), "port")
	assert.Contains(t, err.Error(), "timezone")
}

func TestValidate_StreamRequiresWsURL(t *testing.T) {
	cfg := Defaults()
	cfg.Varex.StreamEnabled = true
	cfg.Varex.WsURL = ""

	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "ws_url")
}

func TestValidate_PostgresDSNSkipsHostChecks(t *testing.T) {
	cfg := Defaults()
	cfg.Postgres.Enabled = true
	cfg.Postgres.Host = ""
	cfg.Postgres.Database = ""
	cfg.Postgres.DSN = "postgres://u:p@db:5432/optfolio"

	assert.NoError(t, cfg.Validate())
}

func TestRedactedConfig_MasksSecrets(t *testing.T) {
	cfg := Defaults()
	cfg.Varex.ApiKey = "sk-live"
	cfg.Postgres.Password = "hunter2"
	cfg.Postgres.DSN = "postgres://u:hunter2@db/optfolio"
	cfg.Redis.Password = "r3d1s"
	cfg.S3.AccessKey = "AKIA123"
	cfg.S3.SecretKey = "shhh"
	cfg.Server.APIKey = "api-key"

	red := RedactedConfig(&cfg)

	assert.Equal(t, "***", red.Varex.ApiKey)
	assert.Equal(t, "***", red.Postgres.Password)
	assert.Equal(t, "***", red.Postgres.DSN)
	assert.Equal(t, "***", red.Redis.Password)
	assert.Equal(t, "***", red.S3.AccessKey)
	assert.Equal(t, "***", red.S3.SecretKey)
	assert.Equal(t, "***", red.Server.APIKey)

	// Original untouched.
	assert.Equal(t, "sk-live", cfg.Varex.ApiKey)

	// Empty secrets stay empty rather than being replaced.
	plain := Defaults()
	assert.Empty(t, RedactedConfig(&plain).Varex.ApiKey)
}
