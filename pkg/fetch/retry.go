package fetch

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// RetryConfig holds the configuration for retry logic.
type RetryConfig struct {
	// MaxRetries is the number of retries allowed after the first attempt.
	MaxRetries int

	// BackoffUnit is multiplied by the retry number to get the wait before it
	// (1, 2, 3 units for successive retries).
	BackoffUnit time.Duration
}

// DefaultRetryConfig returns the default retry configuration.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxRetries:  3,
		BackoffUnit: 1 * time.Second,
	}
}

// RequestExecutor performs a single attempt of a request.
type RequestExecutor interface {
	Execute(ctx context.Context, req *Request) (*Response, error)
}

// Retrier re-issues a request after transport resets, waiting a linearly
// increasing backoff, up to MaxRetries times.
type Retrier struct {
	exec   RequestExecutor
	config RetryConfig
	logger zerolog.Logger
	sleep  func(ctx context.Context, d time.Duration) error
}

// NewRetrier wraps exec with the retry policy in cfg.
func NewRetrier(exec RequestExecutor, cfg RetryConfig, logger zerolog.Logger) *Retrier {
	if cfg.MaxRetries < 0 {
		cfg.MaxRetries = 0
	}
	if cfg.BackoffUnit <= 0 {
		cfg.BackoffUnit = DefaultRetryConfig().BackoffUnit
	}
	return &Retrier{
		exec:   exec,
		config: cfg,
		logger: logger,
		sleep:  sleepContext,
	}
}

// Do runs req until it succeeds, fails fatally or exhausts its retries.
// Every attempt reuses the identical request; callers issuing non-idempotent
// writes must tolerate duplicates.
func (r *Retrier) Do(ctx context.Context, req *Request) (*Response, error) {
	logger := r.logger.With().
		Str("call_id", uuid.NewString()).
		Str("url", req.URL).
		Logger()

	rewind, replayable := streamRewinder(req)

	var lastErr error
	attempts := 0
	for retries := 0; retries <= r.config.MaxRetries; retries++ {
		if retries > 0 {
			if err := rewind(); err != nil {
				replayable = false
				break
			}
		}

		attempts++
		resp, err := r.exec.Execute(ctx, req)
		if err == nil {
			if retries > 0 {
				logger.Info().
					Int("attempt", attempts).
					Msg("Request succeeded after retry")
			}
			return resp, nil
		}

		lastErr = err
		if !shouldRetry(classOf(err)) {
			return nil, err
		}
		if retries == r.config.MaxRetries || !replayable {
			break
		}

		backoff := time.Duration(retries+1) * r.config.BackoffUnit
		retriesTotal.WithLabelValues(codeOf(err)).Inc()
		retryBackoffSeconds.Observe(backoff.Seconds())

		logger.Warn().
			Err(err).
			Int("attempt", attempts).
			Dur("backoff", backoff).
			Msg("Retrying request after backoff")

		if err := r.sleep(ctx, backoff); err != nil {
			logger.Warn().
				Int("attempt", attempts).
				Msg("Context cancelled during retry backoff")
			return nil, fmt.Errorf("%w: %v", ErrContextCancelled, err)
		}
	}

	retryExhaustedTotal.Inc()
	logger.Error().
		Err(lastErr).
		Int("attempts", attempts).
		Bool("replayable", replayable).
		Msg("Retry attempts exhausted")

	cause := lastErr
	if !replayable {
		cause = fmt.Errorf("%w: %w", ErrStreamNotReplayable, lastErr)
	}
	return nil, &Error{
		Class:    ErrorClassRetryExhausted,
		URL:      req.URL,
		Code:     codeOf(lastErr),
		Attempts: attempts,
		Err:      cause,
	}
}

func codeOf(err error) string {
	if fe, ok := err.(*Error); ok {
		return fe.Code
	}
	return ""
}

// streamRewinder reports whether req can be sent again. A streamed body is
// replayable only when it can seek back to where the first attempt started.
func streamRewinder(req *Request) (rewind func() error, replayable bool) {
	noop := func() error { return nil }
	if req.Stream == nil || !req.allowsBody() {
		return noop, true
	}
	seeker, ok := req.Stream.(io.Seeker)
	if !ok {
		return noop, false
	}
	start, err := seeker.Seek(0, io.SeekCurrent)
	if err != nil {
		return noop, false
	}
	return func() error {
		_, err := seeker.Seek(start, io.SeekStart)
		return err
	}, true
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
