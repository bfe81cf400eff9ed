package alpaca

import (
	"errors"
	"fmt"
	"net/http"
)

var (
	// ErrRateLimited is returned when the API answers 429 Too Many Requests.
	ErrRateLimited = errors.New("rate limit exceeded")

	// ErrUnexpectedStatus is returned for any other non-200 answer.
	ErrUnexpectedStatus = errors.New("unexpected status")

	// ErrNoSymbols is returned by LatestTrades when called without symbols.
	ErrNoSymbols = errors.New("at least one symbol is required")
)

// StatusError describes a non-200 API answer.
type StatusError struct {
	Op         string
	StatusCode int
	Message    string
}

// Error implements the error interface.
func (e *StatusError) Error() string {
	msg := fmt.Sprintf("%s: %d %s", e.Op, e.StatusCode, http.StatusText(e.StatusCode))
	if e.Message != "" {
		msg += ": " + e.Message
	}
	return msg
}

// Is matches ErrRateLimited for 429 and ErrUnexpectedStatus otherwise.
func (e *StatusError) Is(target error) bool {
	if e.StatusCode == http.StatusTooManyRequests {
		return target == ErrRateLimited
	}
	return target == ErrUnexpectedStatus
}
