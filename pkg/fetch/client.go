// Package fetch provides a resilient HTTP request core: per-scheme keep-alive
// connection pooling, transparent gzip/deflate/brotli decompression, optional
// cookie jars, streaming request bodies and bounded retry on connection resets.
package fetch

import (
	"context"
	"fmt"
	"net/http"

	"github.com/rs/zerolog/log"
)

// Client is the process-scoped entry point. It owns the connection pool; create
// one per process, share it, and Close it at shutdown.
type Client struct {
	pool     *Pool
	executor *Executor
	retrier  *Retrier
	config   Config
}

// Config holds the client configuration.
type Config struct {
	// User-Agent header sent on every request (REQUIRED).
	UserAgent string

	Pool  PoolConfig
	Retry RetryConfig
}

// DefaultConfig returns a safe default configuration.
func DefaultConfig(userAgent string) Config {
	return Config{
		UserAgent: userAgent,
		Pool:      DefaultPoolConfig(),
		Retry:     DefaultRetryConfig(),
	}
}

// New creates a new client and its connection pool.
func New(cfg Config) (*Client, error) {
	if cfg.UserAgent == "" {
		return nil, fmt.Errorf("user-agent is required")
	}
	if cfg.Retry.MaxRetries < 0 {
		return nil, fmt.Errorf("max_retries must be >= 0 (got %d)", cfg.Retry.MaxRetries)
	}

	logger := log.With().Str("component", "fetch").Logger()

	pool := NewPool(cfg.Pool)
	executor := NewExecutor(pool, cfg.UserAgent, logger)

	return &Client{
		pool:     pool,
		executor: executor,
		retrier:  NewRetrier(executor, cfg.Retry, logger),
		config:   cfg,
	}, nil
}

// Do performs req with retries on transport resets.
func (c *Client) Do(ctx context.Context, req *Request) (*Response, error) {
	return c.retrier.Do(ctx, req)
}

// Get performs a GET request to rawURL.
func (c *Client) Get(ctx context.Context, rawURL string, opts ...Option) (*Response, error) {
	return c.Do(ctx, NewRequest(rawURL, append([]Option{WithMethod(http.MethodGet)}, opts...)...))
}

// Post performs a POST request to rawURL.
func (c *Client) Post(ctx context.Context, rawURL string, opts ...Option) (*Response, error) {
	return c.Do(ctx, NewRequest(rawURL, append([]Option{WithMethod(http.MethodPost)}, opts...)...))
}

// Close releases the connection pool.
func (c *Client) Close() error {
	c.pool.Close()
	return nil
}

// Pool returns the client's connection pool.
func (c *Client) Pool() *Pool {
	return c.pool
}
