package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Sternrassler/marketbars/pkg/alpaca"
	"github.com/Sternrassler/marketbars/pkg/logging"
)

// clearEnv isolates a test from the caller's environment and any .env file.
func clearEnv(t *testing.T) {
	t.Helper()
	for _, k := range []string{EnvKeyID, EnvSecretKey, EnvRedisURL, EnvCacheDir, EnvLogLevel, EnvUserAgent} {
		t.Setenv(k, "")
	}
	t.Chdir(t.TempDir())
}

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoad_Defaults(t *testing.T) {
	clearEnv(t)

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, alpaca.DefaultAPIHost, cfg.Alpaca.APIHost)
	assert.Equal(t, alpaca.DefaultDataHost, cfg.Alpaca.DataHost)
	assert.Equal(t, "cache", cfg.Cache.Dir)
	assert.Equal(t, "file", cfg.Cache.Store)
	assert.Equal(t, 21, cfg.Build.TradingPeriods)
	assert.Equal(t, 50, cfg.Build.LookbackDays)
	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, 3, cfg.Fetch.MaxRetries)
	assert.ErrorIs(t, cfg.RequireCredentials(), ErrMissingCredentials)
}

func TestLoad_YAMLFile(t *testing.T) {
	clearEnv(t)

	path := writeFile(t, "marketbars.yaml", `
alpaca:
  key_id: file-key
  secret_key: file-secret
  requests_per_minute: 100
fetch:
  max_retries: 5
  backoff_unit: 250ms
  inactivity_timeout: 30s
cache:
  dir: /var/cache/bars
build:
  concurrency: 2
  symbols: [AAPL, MSFT]
  schedule: "0 6 * * 1-5"
log:
  level: debug
  file: /var/log/marketbars.log
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "file-key", cfg.Alpaca.KeyID)
	assert.Equal(t, 100, cfg.Alpaca.RequestsPerMinute)
	assert.Equal(t, alpaca.DefaultBurst, cfg.Alpaca.Burst, "unset fields keep defaults")
	assert.Equal(t, 250*time.Millisecond, cfg.Fetch.BackoffUnit)
	assert.Equal(t, 30*time.Second, cfg.Fetch.InactivityTimeout)
	assert.Equal(t, []string{"AAPL", "MSFT"}, cfg.Build.Symbols)
	assert.Equal(t, "0 6 * * 1-5", cfg.Build.Schedule)
	assert.NoError(t, cfg.RequireCredentials())

	fc := cfg.FetchClientConfig()
	assert.Equal(t, 5, fc.Retry.MaxRetries)
	assert.Equal(t, 250*time.Millisecond, fc.Retry.BackoffUnit)
	assert.Equal(t, 30*time.Second, fc.Pool.InactivityTimeout)

	bc := cfg.BuilderConfig()
	assert.Equal(t, 2, bc.Batch.MaxConcurrency)
	assert.Equal(t, []string{"AAPL", "MSFT"}, bc.Symbols)

	lc := cfg.LoggingConfig()
	assert.Equal(t, logging.LevelDebug, lc.Level)
	assert.Equal(t, "/var/log/marketbars.log", lc.File.Path)
	assert.Equal(t, 5, lc.File.MaxSizeMB)
}

func TestLoad_EnvOverridesFile(t *testing.T) {
	clearEnv(t)
	path := writeFile(t, "marketbars.yaml", "alpaca:\n  key_id: file-key\ncache:\n  dir: from-file\n")

	t.Setenv(EnvKeyID, "env-key")
	t.Setenv(EnvSecretKey, "env-secret")
	t.Setenv(EnvCacheDir, "from-env")
	t.Setenv(EnvLogLevel, "WARN")
	t.Setenv(EnvUserAgent, "bars-bot/2.0")
	t.Setenv(EnvRedisURL, "redis://localhost:6379/1")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "env-key", cfg.Alpaca.KeyID)
	assert.Equal(t, "env-secret", cfg.Alpaca.SecretKey)
	assert.Equal(t, "from-env", cfg.Cache.Dir)
	assert.Equal(t, "warn", cfg.Log.Level)
	assert.Equal(t, "bars-bot/2.0", cfg.Fetch.UserAgent)
	assert.Equal(t, "redis://localhost:6379/1", cfg.Redis.URL)

	ac := cfg.AlpacaClientConfig()
	assert.Equal(t, "env-key", ac.KeyID)
	assert.Equal(t, "env-secret", ac.SecretKey)
}

func TestLoad_DotEnv(t *testing.T) {
	clearEnv(t)
	require.NoError(t, os.WriteFile(".env", []byte(EnvKeyID+"=dotenv-key\n"+EnvSecretKey+"=dotenv-secret\n"), 0o644))
	// godotenv does not override variables already present, even empty ones
	os.Unsetenv(EnvKeyID)
	os.Unsetenv(EnvSecretKey)
	t.Cleanup(func() {
		os.Unsetenv(EnvKeyID)
		os.Unsetenv(EnvSecretKey)
	})

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "dotenv-key", cfg.Alpaca.KeyID)
	assert.Equal(t, "dotenv-secret", cfg.Alpaca.SecretKey)
}

func TestLoad_Errors(t *testing.T) {
	tests := []struct {
		name    string
		yaml    string
		env     map[string]string
		wantErr string
	}{
		{name: "bad yaml", yaml: "alpaca: [", wantErr: "failed to parse config file"},
		{name: "bad log level", yaml: "log:\n  level: loud\n", wantErr: "Config.Log.Level"},
		{name: "bad log level from env", env: map[string]string{EnvLogLevel: "verbose"}, wantErr: "Config.Log.Level"},
		{name: "zero concurrency", yaml: "build:\n  concurrency: 0\n", wantErr: "Config.Build.Concurrency"},
		{name: "bad store", yaml: "cache:\n  store: s3\n", wantErr: "Config.Cache.Store"},
		{name: "redis store without url", yaml: "cache:\n  store: redis\n", wantErr: "requires redis.url"},
		{name: "bad host", yaml: "alpaca:\n  api_host: not a url\n", wantErr: "Config.Alpaca.APIHost"},
		{name: "negative retries", yaml: "fetch:\n  max_retries: -1\n", wantErr: "Config.Fetch.MaxRetries"},
		{name: "empty symbol", yaml: "build:\n  symbols: [AAPL, \"\"]\n", wantErr: "Config.Build.Symbols[1]"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			clearEnv(t)
			for k, v := range tt.env {
				t.Setenv(k, v)
			}
			path := ""
			if tt.yaml != "" {
				path = writeFile(t, "marketbars.yaml", tt.yaml)
			}

			_, err := Load(path)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestLoad_MissingFile(t *testing.T) {
	clearEnv(t)
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)
	assert.ErrorIs(t, err, os.ErrNotExist)
}
