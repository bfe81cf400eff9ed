package fetch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/url"
	"syscall"
)

// Common errors returned by the fetch core.
var (
	// ErrRetryExhausted is matched by errors.Is when all retry attempts are exhausted.
	ErrRetryExhausted = errors.New("retry attempts exhausted")

	// ErrContextCancelled is returned when the context is cancelled during retry backoff.
	ErrContextCancelled = errors.New("context cancelled")

	// ErrInactivityTimeout is the cancellation cause of a request that saw no traffic
	// within its timeout window.
	ErrInactivityTimeout = errors.New("inactivity timeout")

	// ErrStreamNotReplayable is matched by errors.Is when a retryable failure
	// could not be retried because the streamed body cannot seek back.
	ErrStreamNotReplayable = errors.New("stream body cannot be replayed")

	// ErrMultipleBodies is returned when a request sets more than one body variant.
	ErrMultipleBodies = errors.New("form, json and stream are mutually exclusive")
)

// ErrorClass represents a classification of request failures.
type ErrorClass string

const (
	// ErrorClassTransportReset is a dropped, aborted or timed out connection. Retryable.
	ErrorClassTransportReset ErrorClass = "transport_reset"

	// ErrorClassProtocol is a malformed response, decode failure or any other
	// transport failure that is not a reset. Fatal.
	ErrorClassProtocol ErrorClass = "protocol"

	// ErrorClassJar is a cookie jar failure. Fatal.
	ErrorClassJar ErrorClass = "jar"

	// ErrorClassRetryExhausted is derived after the retry cap is reached. Fatal.
	ErrorClassRetryExhausted ErrorClass = "retry_exhausted"
)

// Transport error codes carried in Error.Code.
const (
	CodeConnReset    = "ECONNRESET"
	CodeTimedOut     = "ETIMEDOUT"
	CodeConnRefused  = "ECONNREFUSED"
	CodeConnAborted  = "ECONNABORTED"
	CodeBrokenPipe   = "EPIPE"
	CodeHostNotFound = "ENOTFOUND"
)

// Error is a classified request failure.
type Error struct {
	Class ErrorClass
	// URL is the originating request URL.
	URL string
	// Code is the transport error code when known (e.g. ECONNRESET).
	Code string
	// Attempts is the number of attempts made, set on RetryExhausted.
	Attempts int
	Err      error
}

// Error implements the error interface.
func (e *Error) Error() string {
	msg := fmt.Sprintf("fetch %s error", e.Class)
	if e.Code != "" {
		msg += " (" + e.Code + ")"
	}
	if e.Attempts > 0 {
		msg += fmt.Sprintf(" after %d attempts", e.Attempts)
	}
	msg += ": " + e.URL
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

// Unwrap implements error unwrapping for errors.Is/As.
func (e *Error) Unwrap() error {
	return e.Err
}

// Is reports exhaustion as ErrRetryExhausted.
func (e *Error) Is(target error) bool {
	return target == ErrRetryExhausted && e.Class == ErrorClassRetryExhausted
}

// Type returns the tagged failure discriminator: "abort" for resets and
// exhaustion, "http-error" for everything else.
func (e *Error) Type() string {
	switch e.Class {
	case ErrorClassTransportReset, ErrorClassRetryExhausted:
		return "abort"
	default:
		return "http-error"
	}
}

// shouldRetry determines if an error should be retried based on its classification.
func shouldRetry(errorClass ErrorClass) bool {
	return errorClass == ErrorClassTransportReset
}

// classOf returns the class of err, or "" when err is not an *Error.
func classOf(err error) ErrorClass {
	var fe *Error
	if errors.As(err, &fe) {
		return fe.Class
	}
	return ""
}

func protocolError(rawURL string, err error) *Error {
	return &Error{Class: ErrorClassProtocol, URL: rawURL, Err: err}
}

func jarError(rawURL string, err error) *Error {
	return &Error{Class: ErrorClassJar, URL: rawURL, Err: err}
}

// classifyTransport turns a failure from the transport or from reading the
// response body into a classified *Error. cause is the request context cause,
// used to recognize the inactivity watchdog.
func classifyTransport(rawURL string, err error, cause error) *Error {
	if errors.Is(cause, ErrInactivityTimeout) {
		return &Error{Class: ErrorClassTransportReset, URL: rawURL, Code: CodeTimedOut, Err: ErrInactivityTimeout}
	}

	var ue *url.Error
	if errors.As(err, &ue) {
		err = ue.Err
	}

	switch {
	case errors.Is(err, syscall.ECONNRESET):
		return &Error{Class: ErrorClassTransportReset, URL: rawURL, Code: CodeConnReset, Err: err}
	case errors.Is(err, syscall.ECONNABORTED):
		return &Error{Class: ErrorClassTransportReset, URL: rawURL, Code: CodeConnAborted, Err: err}
	case errors.Is(err, syscall.EPIPE):
		return &Error{Class: ErrorClassTransportReset, URL: rawURL, Code: CodeBrokenPipe, Err: err}
	case errors.Is(err, io.EOF), errors.Is(err, io.ErrUnexpectedEOF):
		// Peer hung up before or while sending the response.
		return &Error{Class: ErrorClassTransportReset, URL: rawURL, Code: CodeConnReset, Err: err}
	case errors.Is(err, syscall.ECONNREFUSED):
		return &Error{Class: ErrorClassProtocol, URL: rawURL, Code: CodeConnRefused, Err: err}
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return &Error{Class: ErrorClassProtocol, URL: rawURL, Err: err}
	}

	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		return &Error{Class: ErrorClassProtocol, URL: rawURL, Code: CodeHostNotFound, Err: err}
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return &Error{Class: ErrorClassTransportReset, URL: rawURL, Code: CodeTimedOut, Err: err}
	}

	return &Error{Class: ErrorClassProtocol, URL: rawURL, Err: err}
}
