package cli

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/Sternrassler/marketbars/internal/config"
	"github.com/Sternrassler/marketbars/pkg/alpaca"
	"github.com/Sternrassler/marketbars/pkg/barcache"
	"github.com/Sternrassler/marketbars/pkg/fetch"
	"github.com/Sternrassler/marketbars/pkg/logging"
	"github.com/Sternrassler/marketbars/pkg/ratelimit"
)

// app holds the collaborators of one command invocation.
type app struct {
	cfg     *config.Config
	logger  zerolog.Logger
	redis   *redis.Client // nil when redis.url is empty
	http    *fetch.Client
	tracker *ratelimit.Tracker
	alpaca  *alpaca.Client
	store   barcache.Store
}

// connectRedis returns nil when redis is not configured.
func connectRedis(ctx context.Context, cfg *config.Config) (*redis.Client, error) {
	if cfg.Redis.URL == "" {
		return nil, nil
	}
	opts, err := redis.ParseURL(cfg.Redis.URL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	client := redis.NewClient(opts)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("connect to redis: %w", err)
	}
	return client, nil
}

// newStoreApp wires only what the local cache commands need.
func newStoreApp(ctx context.Context, cfg *config.Config) (*app, error) {
	a := &app{cfg: cfg, logger: logging.NewLogger("cli")}

	rc, err := connectRedis(ctx, cfg)
	if err != nil {
		return nil, err
	}
	a.redis = rc

	switch cfg.Cache.Store {
	case "redis":
		a.store = barcache.NewRedisStore(rc, cfg.Cache.TTL)
	default:
		a.store = barcache.NewFileStore(cfg.Cache.Dir)
	}
	return a, nil
}

// newAPIApp additionally wires the HTTP core and the API client.
func newAPIApp(ctx context.Context, cfg *config.Config) (*app, error) {
	if err := cfg.RequireCredentials(); err != nil {
		return nil, err
	}

	a, err := newStoreApp(ctx, cfg)
	if err != nil {
		return nil, err
	}

	a.http, err = fetch.New(cfg.FetchClientConfig())
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("create http client: %w", err)
	}

	// nil redis keeps the quota state in memory
	a.tracker = ratelimit.NewTracker(a.redis, logging.NewLogger("ratelimit"))

	a.alpaca, err = alpaca.New(cfg.AlpacaClientConfig(), a.http,
		alpaca.WithTracker(a.tracker),
		alpaca.WithLogger(logging.NewLogger("alpaca")),
	)
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("create alpaca client: %w", err)
	}
	return a, nil
}

// Close releases the connection pool and the redis client.
func (a *app) Close() error {
	var errs []error
	if a.http != nil {
		errs = append(errs, a.http.Close())
	}
	if a.redis != nil {
		errs = append(errs, a.redis.Close())
	}
	return errors.Join(errs...)
}
