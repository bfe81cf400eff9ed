// Package alpaca is a thin client for the Alpaca trading and market-data APIs.
// Every call goes through the shared fetch core, is paced by a local token
// bucket, and optionally by the quota reported in the API's rate limit headers.
package alpaca

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/Sternrassler/marketbars/pkg/fetch"
	"github.com/Sternrassler/marketbars/pkg/ratelimit"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"golang.org/x/time/rate"
)

// Default endpoints and pacing.
const (
	DefaultAPIHost           = "https://api.alpaca.markets"
	DefaultDataHost          = "https://data.alpaca.markets"
	DefaultRequestsPerMinute = 200
	DefaultBurst             = 10
)

// Layouts used in query parameters.
const (
	// TimeLayout is RFC 3339 with a numeric offset, as the API expects.
	TimeLayout = "2006-01-02T15:04:05-07:00"
	DateLayout = "2006-01-02"
)

// Auth headers sent on every call.
const (
	HeaderKeyID     = "APCA-API-KEY-ID"
	HeaderSecretKey = "APCA-API-SECRET-KEY"
)

// Config holds the API credentials and hosts.
type Config struct {
	KeyID     string
	SecretKey string

	// APIHost serves account, assets, calendar and clock.
	APIHost string
	// DataHost serves quotes, trades, snapshots and bars.
	DataHost string

	RequestsPerMinute int
	Burst             int
}

// Option configures a Client.
type Option func(*Client)

// WithTracker gates every call on the shared rate limit state.
func WithTracker(t *ratelimit.Tracker) Option {
	return func(c *Client) { c.tracker = t }
}

// WithLocation sets the zone used to format timestamps and decide "today".
func WithLocation(loc *time.Location) Option {
	return func(c *Client) { c.loc = loc }
}

// WithNow overrides the clock.
func WithNow(now func() time.Time) Option {
	return func(c *Client) { c.now = now }
}

// WithLogger overrides the component logger.
func WithLogger(logger zerolog.Logger) Option {
	return func(c *Client) { c.logger = logger }
}

// Client calls the Alpaca REST endpoints.
type Client struct {
	config  Config
	http    *fetch.Client
	limiter *rate.Limiter
	tracker *ratelimit.Tracker
	loc     *time.Location
	now     func() time.Time
	logger  zerolog.Logger
}

// New creates an API client on top of httpClient.
func New(cfg Config, httpClient *fetch.Client, opts ...Option) (*Client, error) {
	if cfg.KeyID == "" {
		return nil, fmt.Errorf("api key id is required")
	}
	if cfg.SecretKey == "" {
		return nil, fmt.Errorf("api secret key is required")
	}
	if httpClient == nil {
		return nil, fmt.Errorf("fetch client is required")
	}
	if cfg.APIHost == "" {
		cfg.APIHost = DefaultAPIHost
	}
	if cfg.DataHost == "" {
		cfg.DataHost = DefaultDataHost
	}
	cfg.APIHost = strings.TrimRight(cfg.APIHost, "/")
	cfg.DataHost = strings.TrimRight(cfg.DataHost, "/")
	if cfg.RequestsPerMinute <= 0 {
		cfg.RequestsPerMinute = DefaultRequestsPerMinute
	}
	if cfg.Burst <= 0 {
		cfg.Burst = DefaultBurst
	}

	c := &Client{
		config:  cfg,
		http:    httpClient,
		limiter: rate.NewLimiter(rate.Every(time.Minute/time.Duration(cfg.RequestsPerMinute)), cfg.Burst),
		loc:     time.Local,
		now:     time.Now,
		logger:  log.With().Str("component", "alpaca").Logger(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// FormatTime renders t in the client's zone using TimeLayout.
func (c *Client) FormatTime(t time.Time) string {
	return t.In(c.loc).Format(TimeLayout)
}

// getJSON issues an authenticated GET and decodes a 200 answer into out.
func (c *Client) getJSON(ctx context.Context, op, rawURL string, out any) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("%s: wait for rate limiter: %w", op, err)
	}
	if c.tracker != nil {
		if err := c.tracker.Wait(ctx); err != nil {
			return fmt.Errorf("%s: wait for rate limit reset: %w", op, err)
		}
	}

	resp, err := c.http.Get(ctx, rawURL,
		fetch.WithHeader(HeaderKeyID, c.config.KeyID),
		fetch.WithHeader(HeaderSecretKey, c.config.SecretKey),
		fetch.WithHeader("Accept", "application/json"),
	)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	if c.tracker != nil {
		if err := c.tracker.UpdateFromHeaders(ctx, resp.Header); err != nil {
			c.logger.Warn().Err(err).Str("op", op).Msg("Failed to record rate limit headers")
		}
	}

	if resp.StatusCode != http.StatusOK {
		statusErr := &StatusError{Op: op, StatusCode: resp.StatusCode, Message: apiMessage(resp.Body)}
		c.logger.Debug().
			Str("op", op).
			Int("status_code", resp.StatusCode).
			Msg("Unexpected API status")
		return statusErr
	}

	if err := json.Unmarshal(resp.Body, out); err != nil {
		return fmt.Errorf("%s: decode response: %w", op, err)
	}
	return nil
}

// apiMessage extracts the "message" field of an API error body.
func apiMessage(body []byte) string {
	var payload struct {
		Message string `json:"message"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		return ""
	}
	return payload.Message
}

// IsRateLimited reports whether err is a 429 answer.
func IsRateLimited(err error) bool {
	return errors.Is(err, ErrRateLimited)
}
