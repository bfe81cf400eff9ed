// Package config loads the marketbars configuration: defaults, then an
// optional YAML file, then environment variables (with .env support).
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/Sternrassler/marketbars/pkg/alpaca"
	"github.com/Sternrassler/marketbars/pkg/barcache"
	"github.com/Sternrassler/marketbars/pkg/batch"
	"github.com/Sternrassler/marketbars/pkg/fetch"
	"github.com/Sternrassler/marketbars/pkg/logging"
)

// Environment variables read by Load.
const (
	EnvKeyID     = "APCA_API_KEY_ID"
	EnvSecretKey = "APCA_API_SECRET_KEY"
	EnvRedisURL  = "REDIS_URL"
	EnvCacheDir  = "CACHE_DIR"
	EnvLogLevel  = "LOG_LEVEL"
	EnvUserAgent = "USER_AGENT"
)

// ErrMissingCredentials is returned by RequireCredentials.
var ErrMissingCredentials = errors.New("alpaca credentials missing: set " + EnvKeyID + " and " + EnvSecretKey)

// Config holds the application configuration.
type Config struct {
	Alpaca AlpacaConfig `yaml:"alpaca"`
	Fetch  FetchConfig  `yaml:"fetch"`
	Redis  RedisConfig  `yaml:"redis"`
	Cache  CacheConfig  `yaml:"cache"`
	Build  BuildConfig  `yaml:"build"`
	Log    LogConfig    `yaml:"log"`
	Server ServerConfig `yaml:"server"`
}

type AlpacaConfig struct {
	KeyID             string `yaml:"key_id"`
	SecretKey         string `yaml:"secret_key"`
	APIHost           string `yaml:"api_host" validate:"required,url"`
	DataHost          string `yaml:"data_host" validate:"required,url"`
	RequestsPerMinute int    `yaml:"requests_per_minute" validate:"gte=1"`
	Burst             int    `yaml:"burst" validate:"gte=1"`
}

type FetchConfig struct {
	UserAgent         string        `yaml:"user_agent" validate:"required"`
	MaxConnections    int           `yaml:"max_connections" validate:"gte=1"`
	MaxRetries        int           `yaml:"max_retries" validate:"gte=0"`
	BackoffUnit       time.Duration `yaml:"backoff_unit" validate:"gte=0"`
	InactivityTimeout time.Duration `yaml:"inactivity_timeout" validate:"gt=0"`
	IdleTimeout       time.Duration `yaml:"idle_timeout" validate:"gt=0"`
}

type RedisConfig struct {
	// URL enables redis, e.g. redis://localhost:6379/0. Empty disables it.
	URL string `yaml:"url" validate:"omitempty,url"`
	// CookieTTL bounds how long the proxy's shared cookies live.
	CookieTTL time.Duration `yaml:"cookie_ttl" validate:"gte=0"`
}

type CacheConfig struct {
	Dir string `yaml:"dir" validate:"required"`
	// Store selects the backend; redis requires redis.url.
	Store string        `yaml:"store" validate:"oneof=file redis"`
	TTL   time.Duration `yaml:"ttl" validate:"gte=0"`
}

type BuildConfig struct {
	Concurrency    int      `yaml:"concurrency" validate:"gte=1"`
	LookbackDays   int      `yaml:"lookback_days" validate:"gte=1"`
	TradingPeriods int      `yaml:"trading_periods" validate:"gte=1"`
	Symbols        []string `yaml:"symbols" validate:"dive,required"`
	// Schedule is a cron expression; empty runs once.
	Schedule string `yaml:"schedule"`
}

type LogConfig struct {
	Level      string `yaml:"level" validate:"oneof=debug info warn error"`
	Pretty     bool   `yaml:"pretty"`
	File       string `yaml:"file"`
	MaxSizeMB  int    `yaml:"max_size_mb" validate:"gte=0"`
	MaxBackups int    `yaml:"max_backups" validate:"gte=0"`
	MaxAgeDays int    `yaml:"max_age_days" validate:"gte=0"`
}

type ServerConfig struct {
	Addr string `yaml:"addr" validate:"required"`
}

// Default returns the built-in configuration.
func Default() *Config {
	fetchDefaults := fetch.DefaultConfig("marketbars/1.0")
	builderDefaults := barcache.DefaultBuilderConfig()
	logDefaults := logging.DefaultConfig()

	return &Config{
		Alpaca: AlpacaConfig{
			APIHost:           alpaca.DefaultAPIHost,
			DataHost:          alpaca.DefaultDataHost,
			RequestsPerMinute: alpaca.DefaultRequestsPerMinute,
			Burst:             alpaca.DefaultBurst,
		},
		Fetch: FetchConfig{
			UserAgent:         fetchDefaults.UserAgent,
			MaxConnections:    fetchDefaults.Pool.MaxConnsPerScheme,
			MaxRetries:        fetchDefaults.Retry.MaxRetries,
			BackoffUnit:       fetchDefaults.Retry.BackoffUnit,
			InactivityTimeout: fetchDefaults.Pool.InactivityTimeout,
			IdleTimeout:       fetchDefaults.Pool.IdleTimeout,
		},
		Redis: RedisConfig{
			CookieTTL: 24 * time.Hour,
		},
		Cache: CacheConfig{
			Dir:   "cache",
			Store: "file",
		},
		Build: BuildConfig{
			Concurrency:    builderDefaults.Batch.MaxConcurrency,
			LookbackDays:   builderDefaults.LookbackDays,
			TradingPeriods: builderDefaults.TradingPeriods,
		},
		Log: LogConfig{
			Level:      string(logDefaults.Level),
			MaxSizeMB:  logDefaults.File.MaxSizeMB,
			MaxBackups: logDefaults.File.MaxBackups,
			MaxAgeDays: logDefaults.File.MaxAgeDays,
		},
		Server: ServerConfig{
			Addr: ":8080",
		},
	}
}

var validate = validator.New()

// Load builds the configuration. path may be empty; a missing .env file is
// ignored.
func Load(path string) (*Config, error) {
	_ = godotenv.Load()

	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file: %w", err)
		}
	}

	cfg.applyEnv()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyEnv() {
	setenv(&c.Alpaca.KeyID, EnvKeyID)
	setenv(&c.Alpaca.SecretKey, EnvSecretKey)
	setenv(&c.Redis.URL, EnvRedisURL)
	setenv(&c.Cache.Dir, EnvCacheDir)
	setenv(&c.Fetch.UserAgent, EnvUserAgent)
	if v := os.Getenv(EnvLogLevel); v != "" {
		c.Log.Level = strings.ToLower(v)
	}
}

func setenv(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

// Validate checks field constraints and cross-field rules.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			msgs := make([]string, 0, len(verrs))
			for _, fe := range verrs {
				msgs = append(msgs, fmt.Sprintf("%s failed %q", fe.Namespace(), fe.Tag()))
			}
			return fmt.Errorf("invalid configuration: %s", strings.Join(msgs, "; "))
		}
		return fmt.Errorf("invalid configuration: %w", err)
	}
	if c.Cache.Store == "redis" && c.Redis.URL == "" {
		return errors.New("invalid configuration: cache.store redis requires redis.url")
	}
	return nil
}

// RequireCredentials fails unless both API keys are set. Commands that only
// touch the local cache do not call it.
func (c *Config) RequireCredentials() error {
	if c.Alpaca.KeyID == "" || c.Alpaca.SecretKey == "" {
		return ErrMissingCredentials
	}
	return nil
}

// FetchClientConfig maps the fetch section onto the HTTP core configuration.
func (c *Config) FetchClientConfig() fetch.Config {
	cfg := fetch.DefaultConfig(c.Fetch.UserAgent)
	cfg.Pool.MaxConnsPerScheme = c.Fetch.MaxConnections
	cfg.Pool.InactivityTimeout = c.Fetch.InactivityTimeout
	cfg.Pool.IdleTimeout = c.Fetch.IdleTimeout
	cfg.Retry.MaxRetries = c.Fetch.MaxRetries
	cfg.Retry.BackoffUnit = c.Fetch.BackoffUnit
	return cfg
}

// AlpacaClientConfig maps the alpaca section onto the API client configuration.
func (c *Config) AlpacaClientConfig() alpaca.Config {
	return alpaca.Config{
		KeyID:             c.Alpaca.KeyID,
		SecretKey:         c.Alpaca.SecretKey,
		APIHost:           c.Alpaca.APIHost,
		DataHost:          c.Alpaca.DataHost,
		RequestsPerMinute: c.Alpaca.RequestsPerMinute,
		Burst:             c.Alpaca.Burst,
	}
}

// BuilderConfig maps the build section onto the cache builder configuration.
func (c *Config) BuilderConfig() barcache.BuilderConfig {
	cfg := barcache.DefaultBuilderConfig()
	cfg.LookbackDays = c.Build.LookbackDays
	cfg.TradingPeriods = c.Build.TradingPeriods
	cfg.Symbols = c.Build.Symbols
	cfg.Batch = batch.DefaultConfig()
	cfg.Batch.MaxConcurrency = c.Build.Concurrency
	return cfg
}

// LoggingConfig maps the log section onto the logger configuration.
func (c *Config) LoggingConfig() logging.Config {
	cfg := logging.DefaultConfig()
	cfg.Level = logging.LogLevel(c.Log.Level)
	cfg.Pretty = c.Log.Pretty
	cfg.File.Path = c.Log.File
	if c.Log.MaxSizeMB > 0 {
		cfg.File.MaxSizeMB = c.Log.MaxSizeMB
	}
	if c.Log.MaxBackups > 0 {
		cfg.File.MaxBackups = c.Log.MaxBackups
	}
	if c.Log.MaxAgeDays > 0 {
		cfg.File.MaxAgeDays = c.Log.MaxAgeDays
	}
	return cfg
}
