package ratelimit

import (
	"testing"
	"time"
)

func TestRateLimitState_IsStale(t *testing.T) {
	tests := []struct {
		name     string
		state    *RateLimitState
		maxAge   time.Duration
		expected bool
	}{
		{
			name: "fresh state",
			state: &RateLimitState{
				LastUpdate: time.Now(),
			},
			maxAge:   5 * time.Minute,
			expected: false,
		},
		{
			name: "stale state",
			state: &RateLimitState{
				LastUpdate: time.Now().Add(-10 * time.Minute),
			},
			maxAge:   5 * time.Minute,
			expected: true,
		},
		{
			name: "just under max age",
			state: &RateLimitState{
				LastUpdate: time.Now().Add(-4 * time.Minute),
			},
			maxAge:   5 * time.Minute,
			expected: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := tt.state.IsStale(tt.maxAge)
			if result != tt.expected {
				t.Errorf("IsStale() = %v, want %v", result, tt.expected)
			}
		})
	}
}

func TestRateLimitState_NeedsCriticalBlock(t *testing.T) {
	future := time.Now().Add(30 * time.Second)

	tests := []struct {
		name      string
		remaining int
		resetAt   time.Time
		expected  bool
	}{
		{
			name:      "well above critical threshold",
			remaining: 150,
			resetAt:   future,
			expected:  false,
		},
		{
			name:      "at critical threshold",
			remaining: RemainingThresholdCritical,
			resetAt:   future,
			expected:  false,
		},
		{
			name:      "just below critical threshold",
			remaining: RemainingThresholdCritical - 1,
			resetAt:   future,
			expected:  true,
		},
		{
			name:      "zero remaining",
			remaining: 0,
			resetAt:   future,
			expected:  true,
		},
		{
			name:      "zero remaining but window already reset",
			remaining: 0,
			resetAt:   time.Now().Add(-time.Second),
			expected:  false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			state := &RateLimitState{Remaining: tt.remaining, ResetAt: tt.resetAt}
			if got := state.NeedsCriticalBlock(); got != tt.expected {
				t.Errorf("NeedsCriticalBlock() = %v, want %v", got, tt.expected)
			}
		})
	}
}

func TestRateLimitState_NeedsThrottling(t *testing.T) {
	future := time.Now().Add(30 * time.Second)

	tests := []struct {
		name      string
		remaining int
		expected  bool
	}{
		{"healthy", RemainingThresholdHealthy, false},
		{"at warning threshold", RemainingThresholdWarning, false},
		{"just below warning threshold", RemainingThresholdWarning - 1, true},
		{"at critical threshold", RemainingThresholdCritical, true},
		{"critical blocks instead of throttling", RemainingThresholdCritical - 1, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			state := &RateLimitState{Remaining: tt.remaining, ResetAt: future}
			if got := state.NeedsThrottling(); got != tt.expected {
				t.Errorf("NeedsThrottling() = %v, want %v", got, tt.expected)
			}
		})
	}
}

func TestRateLimitState_TimeUntilReset(t *testing.T) {
	past := &RateLimitState{ResetAt: time.Now().Add(-time.Minute)}
	if got := past.TimeUntilReset(); got != 0 {
		t.Errorf("TimeUntilReset() for past reset = %v, want 0", got)
	}

	future := &RateLimitState{ResetAt: time.Now().Add(time.Minute)}
	if got := future.TimeUntilReset(); got <= 50*time.Second || got > time.Minute {
		t.Errorf("TimeUntilReset() = %v, want about 1m", got)
	}
}

func TestRateLimitState_UpdateHealth(t *testing.T) {
	tests := []struct {
		remaining int
		expected  bool
	}{
		{200, true},
		{RemainingThresholdHealthy, true},
		{RemainingThresholdHealthy - 1, false},
		{0, false},
	}

	for _, tt := range tests {
		state := &RateLimitState{Remaining: tt.remaining}
		state.UpdateHealth()
		if state.IsHealthy != tt.expected {
			t.Errorf("UpdateHealth() with %d remaining: IsHealthy = %v, want %v", tt.remaining, state.IsHealthy, tt.expected)
		}
	}
}
