package fetch

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// Executor performs exactly one attempt of a Request over the pool. It never
// retries; see Retrier.
type Executor struct {
	pool      *Pool
	userAgent string
	logger    zerolog.Logger
}

// NewExecutor creates an executor sending userAgent on every request.
func NewExecutor(pool *Pool, userAgent string, logger zerolog.Logger) *Executor {
	return &Executor{
		pool:      pool,
		userAgent: userAgent,
		logger:    logger,
	}
}

// Execute sends req once and returns the fully decoded response or a
// classified *Error.
func (e *Executor) Execute(ctx context.Context, req *Request) (*Response, error) {
	method := req.method()

	u, err := url.Parse(req.URL)
	if err != nil {
		return nil, e.fail(method, protocolError(req.URL, fmt.Errorf("parse url: %w", err)))
	}
	if !u.IsAbs() || u.Host == "" {
		return nil, e.fail(method, protocolError(req.URL, fmt.Errorf("url must be absolute")))
	}
	if req.allowsBody() && req.bodyVariants() > 1 {
		return nil, e.fail(method, protocolError(req.URL, ErrMultipleBodies))
	}

	header := e.buildHeader(req)

	if req.Jar != nil {
		cookies, err := req.Jar.Cookies(ctx, u)
		if err != nil {
			return nil, e.fail(method, jarError(req.URL, fmt.Errorf("get cookies: %w", err)))
		}
		if len(cookies) > 0 {
			header.Set("Cookie", cookieHeader(cookies))
		}
	}

	ctx, cancel := context.WithCancelCause(ctx)
	defer cancel(nil)

	lease, err := e.pool.Acquire(ctx, u.Scheme)
	if err != nil {
		return nil, e.fail(method, protocolError(req.URL, err))
	}
	defer lease.Release()

	wd := startWatchdog(req.timeout(), func() { cancel(ErrInactivityTimeout) })
	defer wd.stop()

	body, contentLength, err := e.buildBody(req, header, wd)
	if err != nil {
		return nil, e.fail(method, protocolError(req.URL, err))
	}

	httpReq, err := http.NewRequestWithContext(ctx, method, u.String(), body)
	if err != nil {
		return nil, e.fail(method, protocolError(req.URL, fmt.Errorf("create request: %w", err)))
	}
	httpReq.Header = header
	httpReq.ContentLength = contentLength

	e.logger.Debug().
		Str("url", req.URL).
		Str("method", method).
		Str("scheme", lease.Scheme).
		Msg("Sending request")

	start := time.Now()
	resp, err := lease.RoundTrip(httpReq)
	if err != nil {
		requestDuration.WithLabelValues(method).Observe(time.Since(start).Seconds())
		return nil, e.fail(method, classifyTransport(req.URL, err, context.Cause(ctx)))
	}
	defer resp.Body.Close()
	wd.touch()

	data, text, err := Decode(&activityReader{r: resp.Body, touch: wd.touch}, resp.Header.Get("Content-Encoding"), req.encoding())
	requestDuration.WithLabelValues(method).Observe(time.Since(start).Seconds())
	if err != nil {
		var bre *bodyReadError
		if errors.As(err, &bre) {
			return nil, e.fail(method, classifyTransport(req.URL, bre.err, context.Cause(ctx)))
		}
		return nil, e.fail(method, protocolError(req.URL, err))
	}

	if req.Jar != nil {
		if cookies := responseCookies(resp.Header); len(cookies) > 0 {
			if err := req.Jar.SetCookies(ctx, u, cookies); err != nil {
				return nil, e.fail(method, jarError(req.URL, fmt.Errorf("set cookies: %w", err)))
			}
		}
	}

	requestsTotal.WithLabelValues(method, strconv.Itoa(resp.StatusCode)).Inc()
	e.logger.Debug().
		Str("url", req.URL).
		Int("status_code", resp.StatusCode).
		Int("bytes", len(data)).
		Dur("duration", time.Since(start)).
		Msg("Request complete")

	return &Response{
		StatusCode: resp.StatusCode,
		Header:     resp.Header,
		Body:       data,
		Text:       text,
		URL:        req.URL,
	}, nil
}

// buildHeader merges caller headers with the computed ones; computed headers win.
func (e *Executor) buildHeader(req *Request) http.Header {
	header := req.Header.Clone()
	if header == nil {
		header = make(http.Header)
	}
	header.Set("User-Agent", e.userAgent)
	header.Set("Accept-Encoding", AcceptEncoding)
	return header
}

// buildBody returns the body reader and its exact length, or -1 for streams.
func (e *Executor) buildBody(req *Request, header http.Header, wd *watchdog) (io.Reader, int64, error) {
	if !req.allowsBody() {
		return nil, 0, nil
	}

	switch {
	case req.Form != nil:
		encoded := req.Form.Encode()
		header.Set("Content-Type", "application/x-www-form-urlencoded")
		return strings.NewReader(encoded), int64(len(encoded)), nil

	case req.JSON != nil:
		var buf bytes.Buffer
		enc := json.NewEncoder(&buf)
		enc.SetEscapeHTML(false)
		if err := enc.Encode(req.JSON); err != nil {
			return nil, 0, fmt.Errorf("encode json body: %w", err)
		}
		data := bytes.TrimSuffix(buf.Bytes(), []byte("\n"))
		header.Set("Content-Type", "application/json")
		return bytes.NewReader(data), int64(len(data)), nil

	case req.Stream != nil:
		return &activityReader{r: req.Stream, touch: wd.touch}, -1, nil
	}

	return nil, 0, nil
}

func (e *Executor) fail(method string, err *Error) error {
	requestsTotal.WithLabelValues(method, "error").Inc()
	errorsTotal.WithLabelValues(string(err.Class)).Inc()
	e.logger.Debug().
		Str("url", err.URL).
		Str("error_class", string(err.Class)).
		Str("code", err.Code).
		Err(err.Err).
		Msg("Request failed")
	return err
}

// watchdog cancels a request when no traffic is seen for d.
type watchdog struct {
	timer *time.Timer
	d     time.Duration
}

func startWatchdog(d time.Duration, fire func()) *watchdog {
	return &watchdog{timer: time.AfterFunc(d, fire), d: d}
}

func (w *watchdog) touch() { w.timer.Reset(w.d) }
func (w *watchdog) stop()  { w.timer.Stop() }

// activityReader reports every successful read to touch.
type activityReader struct {
	r     io.Reader
	touch func()
}

func (a *activityReader) Read(p []byte) (int, error) {
	n, err := a.r.Read(p)
	if n > 0 {
		a.touch()
	}
	return n, err
}
