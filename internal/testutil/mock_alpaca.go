// Package testutil provides testing utilities for the market-data client and cache.
package testutil

import (
	"bytes"
	"encoding/json"
	"net"
	"net/http"
	"net/http/httptest"
	"strconv"
	"sync"
	"time"

	"github.com/andybalholm/brotli"
	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zlib"
)

// MockResponse defines the behavior for a mock endpoint response.
type MockResponse struct {
	StatusCode int
	Body       string
	Headers    map[string]string
	Delay      time.Duration

	// ContentEncoding compresses Body with gzip, deflate or br before sending.
	ContentEncoding string
}

// MockAlpaca is a configurable mock of the trading and market-data API.
// Both hosts are served by the same server; handlers are keyed by path.
type MockAlpaca struct {
	server   *httptest.Server
	mu       sync.RWMutex
	handlers map[string]http.HandlerFunc

	// Tracking
	RequestCount      int
	PathCounts        map[string]int
	LastRequestHeader http.Header
}

// NewMockAlpaca creates a new mock API server.
func NewMockAlpaca() *MockAlpaca {
	mock := &MockAlpaca{
		handlers:   make(map[string]http.HandlerFunc),
		PathCounts: make(map[string]int),
	}

	mock.server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mock.mu.Lock()
		mock.RequestCount++
		mock.PathCounts[r.URL.Path]++
		mock.LastRequestHeader = r.Header.Clone()
		handler, exists := mock.handlers[r.URL.Path]
		mock.mu.Unlock()

		if exists {
			handler(w, r)
			return
		}

		mock.defaultHandler(w, r)
	}))

	return mock
}

// URL returns the mock server URL.
func (m *MockAlpaca) URL() string {
	return m.server.URL
}

// Close shuts down the mock server.
func (m *MockAlpaca) Close() {
	m.server.Close()
}

// Reset clears all tracking counters.
func (m *MockAlpaca) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.RequestCount = 0
	m.PathCounts = make(map[string]int)
	m.LastRequestHeader = nil
}

// SetHandler sets a custom handler for a specific path.
func (m *MockAlpaca) SetHandler(path string, handler http.HandlerFunc) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.handlers[path] = handler
}

// SetResponse configures a simple response for a path.
func (m *MockAlpaca) SetResponse(path string, resp MockResponse) {
	m.SetHandler(path, resp.ServeHTTP)
}

// SetJSON serves v as a 200 JSON response on path.
func (m *MockAlpaca) SetJSON(path string, v any) {
	m.SetResponse(path, NewJSONResponse(v))
}

// GetRequestCount returns the number of requests made to the server.
func (m *MockAlpaca) GetRequestCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.RequestCount
}

// GetPathCount returns the number of requests made to path.
func (m *MockAlpaca) GetPathCount(path string) int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.PathCounts[path]
}

// GetLastRequestHeader returns the headers of the most recent request.
func (m *MockAlpaca) GetLastRequestHeader() http.Header {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.LastRequestHeader.Clone()
}

// ServeHTTP writes the configured response.
func (resp MockResponse) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if resp.Delay > 0 {
		select {
		case <-time.After(resp.Delay):
		case <-r.Context().Done():
			return
		}
	}

	for key, value := range resp.Headers {
		w.Header().Set(key, value)
	}

	body := []byte(resp.Body)
	if resp.ContentEncoding != "" && len(body) > 0 {
		body = Compress(resp.ContentEncoding, body)
		w.Header().Set("Content-Encoding", resp.ContentEncoding)
	}

	w.WriteHeader(resp.StatusCode)
	if len(body) > 0 {
		w.Write(body)
	}
}

// Compress encodes data with the named content coding (gzip, deflate, br).
// Unknown codings return data unchanged.
func Compress(encoding string, data []byte) []byte {
	var buf bytes.Buffer
	switch encoding {
	case "gzip":
		zw := gzip.NewWriter(&buf)
		zw.Write(data)
		zw.Close()
	case "deflate":
		zw := zlib.NewWriter(&buf)
		zw.Write(data)
		zw.Close()
	case "br":
		bw := brotli.NewWriter(&buf)
		bw.Write(data)
		bw.Close()
	default:
		return data
	}
	return buf.Bytes()
}

// defaultHandler answers unknown paths like the API does.
func (m *MockAlpaca) defaultHandler(w http.ResponseWriter, r *http.Request) {
	setQuotaHeaders(w.Header(), 199)
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(http.StatusNotFound)
	w.Write([]byte(`{"code":40410000,"message":"endpoint not found"}`))
}

func setQuotaHeaders(h http.Header, remaining int) {
	h.Set("X-RateLimit-Limit", "200")
	h.Set("X-RateLimit-Remaining", strconv.Itoa(remaining))
	h.Set("X-RateLimit-Reset", strconv.FormatInt(time.Now().Add(time.Minute).Unix(), 10))
}

func quotaHeaderMap(remaining int) map[string]string {
	h := http.Header{}
	setQuotaHeaders(h, remaining)
	out := make(map[string]string, len(h))
	for k := range h {
		out[k] = h.Get(k)
	}
	return out
}

// NewJSONResponse creates a standard 200 OK JSON response with quota headers.
func NewJSONResponse(v any) MockResponse {
	data, err := json.Marshal(v)
	if err != nil {
		panic(err)
	}
	headers := quotaHeaderMap(199)
	headers["Content-Type"] = "application/json; charset=utf-8"
	return MockResponse{
		StatusCode: http.StatusOK,
		Body:       string(data),
		Headers:    headers,
	}
}

// NewRateLimitResponse creates a 429 Too Many Requests response.
func NewRateLimitResponse() MockResponse {
	headers := quotaHeaderMap(0)
	headers["Content-Type"] = "application/json; charset=utf-8"
	return MockResponse{
		StatusCode: http.StatusTooManyRequests,
		Body:       `{"message":"too many requests."}`,
		Headers:    headers,
	}
}

// NewServerErrorResponse creates a 500 Internal Server Error response.
func NewServerErrorResponse() MockResponse {
	headers := quotaHeaderMap(195)
	headers["Content-Type"] = "application/json; charset=utf-8"
	return MockResponse{
		StatusCode: http.StatusInternalServerError,
		Body:       `{"message":"internal server error"}`,
		Headers:    headers,
	}
}

// NewResetHandler drops the connection without a response for the first
// resets requests, then delegates to next.
func NewResetHandler(resets int, next http.HandlerFunc) http.HandlerFunc {
	var (
		mu   sync.Mutex
		seen int
	)
	return func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		seen++
		drop := seen <= resets
		mu.Unlock()

		if !drop {
			next(w, r)
			return
		}

		hj, ok := w.(http.Hijacker)
		if !ok {
			http.Error(w, "hijacking not supported", http.StatusInternalServerError)
			return
		}
		conn, _, err := hj.Hijack()
		if err != nil {
			return
		}
		if tcp, ok := conn.(*net.TCPConn); ok {
			tcp.SetLinger(0)
		}
		conn.Close()
	}
}

// NewCookieHandler sets name=value on the response and serves body.
func NewCookieHandler(name, value, body string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		http.SetCookie(w, &http.Cookie{Name: name, Value: value, Path: "/"})
		w.Write([]byte(body))
	}
}

// RequireCookie serves next only when the request carries name=value.
func RequireCookie(name, value string, next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		c, err := r.Cookie(name)
		if err != nil || c.Value != value {
			http.Error(w, `{"message":"unauthorized"}`, http.StatusUnauthorized)
			return
		}
		next(w, r)
	}
}
