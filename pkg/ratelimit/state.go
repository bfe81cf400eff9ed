// Package ratelimit tracks the market-data API request quota and gates
// requests on it. It reads the X-RateLimit-Limit, X-RateLimit-Remaining and
// X-RateLimit-Reset headers so that every process sharing an API key backs off
// together before the server starts answering 429.
package ratelimit

import (
	"time"
)

// Redis keys for rate limit state storage.
const (
	RedisKeyLimit          = "marketbars:rate_limit:limit"
	RedisKeyRemaining      = "marketbars:rate_limit:remaining"
	RedisKeyResetTimestamp = "marketbars:rate_limit:reset_timestamp"
	RedisKeyLastUpdate     = "marketbars:rate_limit:last_update"
)

// Response headers carrying the quota.
const (
	HeaderLimit     = "X-RateLimit-Limit"
	HeaderRemaining = "X-RateLimit-Remaining"
	HeaderReset     = "X-RateLimit-Reset"
)

// Thresholds for rate limit decisions.
const (
	// RemainingThresholdCritical blocks requests until the window resets when
	// remaining requests fall below this value.
	RemainingThresholdCritical = 3

	// RemainingThresholdWarning throttles requests below this value.
	RemainingThresholdWarning = 20

	// RemainingThresholdHealthy indicates normal operation.
	RemainingThresholdHealthy = 50
)

// RateLimitState is the quota as last reported by the API.
type RateLimitState struct {
	// Limit is the request budget per window (X-RateLimit-Limit).
	Limit int `json:"limit"`

	// Remaining is the number of requests left in the window (X-RateLimit-Remaining).
	Remaining int `json:"remaining"`

	// ResetAt is when the window resets (X-RateLimit-Reset, unix seconds).
	ResetAt time.Time `json:"reset_at"`

	LastUpdate time.Time `json:"last_update"`

	// IsHealthy is true when Remaining >= RemainingThresholdHealthy.
	IsHealthy bool `json:"is_healthy"`
}

// IsStale returns true if the state data is older than the given duration.
func (s *RateLimitState) IsStale(maxAge time.Duration) bool {
	return time.Since(s.LastUpdate) > maxAge
}

// NeedsCriticalBlock returns true if requests should wait for the window reset.
// A window that has already reset never blocks.
func (s *RateLimitState) NeedsCriticalBlock() bool {
	return s.Remaining < RemainingThresholdCritical && s.TimeUntilReset() > 0
}

// NeedsThrottling returns true if requests should be slowed down.
func (s *RateLimitState) NeedsThrottling() bool {
	return s.Remaining < RemainingThresholdWarning && !s.NeedsCriticalBlock() && s.TimeUntilReset() > 0
}

// TimeUntilReset returns the duration until the window resets.
// Returns 0 if the reset time has already passed.
func (s *RateLimitState) TimeUntilReset() time.Duration {
	duration := time.Until(s.ResetAt)
	if duration < 0 {
		return 0
	}
	return duration
}

// UpdateHealth updates the IsHealthy field based on current Remaining.
func (s *RateLimitState) UpdateHealth() {
	s.IsHealthy = s.Remaining >= RemainingThresholdHealthy
}

func defaultState() *RateLimitState {
	now := time.Now()
	return &RateLimitState{
		Limit:      200,
		Remaining:  200,
		ResetAt:    now.Add(60 * time.Second),
		LastUpdate: now,
		IsHealthy:  true,
	}
}
