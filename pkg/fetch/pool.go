package fetch

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/semaphore"
)

// Pool defaults.
const (
	DefaultIdleTimeout       = 60 * time.Second
	DefaultInactivityTimeout = 120 * time.Second
	DefaultMaxConnsPerScheme = 64
	DefaultDialTimeout       = 30 * time.Second
)

// ErrPoolClosed is returned by Acquire after Close.
var ErrPoolClosed = errors.New("connection pool closed")

// PoolConfig holds the connection pool configuration.
type PoolConfig struct {
	// IdleTimeout retires keep-alive connections idle for this long.
	IdleTimeout time.Duration

	// InactivityTimeout force-closes any connection with no reads or writes for this long.
	InactivityTimeout time.Duration

	// MaxConnsPerScheme caps in-flight requests per scheme; further
	// acquisitions queue first-in-first-out.
	MaxConnsPerScheme int

	DialTimeout time.Duration

	// RoundTripper replaces the per-scheme transports (testing).
	RoundTripper http.RoundTripper
}

// DefaultPoolConfig returns the default pool configuration.
func DefaultPoolConfig() PoolConfig {
	return PoolConfig{
		IdleTimeout:       DefaultIdleTimeout,
		InactivityTimeout: DefaultInactivityTimeout,
		MaxConnsPerScheme: DefaultMaxConnsPerScheme,
		DialTimeout:       DefaultDialTimeout,
	}
}

// Pool holds one keep-alive transport and one FIFO admission queue per scheme.
// It is created once per process and shared by every call site.
type Pool struct {
	config     PoolConfig
	transports map[string]http.RoundTripper
	slots      map[string]*semaphore.Weighted
	closed     atomic.Bool
}

// Lease is one admitted slot on a scheme's transport. It must be released
// once the response body has been consumed.
type Lease struct {
	Scheme     string
	transport  http.RoundTripper
	release    func()
	once       sync.Once
	acquiredAt time.Time
}

// RoundTrip sends req over the leased transport.
func (l *Lease) RoundTrip(req *http.Request) (*http.Response, error) {
	return l.transport.RoundTrip(req)
}

// Release returns the slot to the pool. Safe to call more than once.
func (l *Lease) Release() {
	l.once.Do(func() {
		poolHoldSeconds.WithLabelValues(l.Scheme).Observe(time.Since(l.acquiredAt).Seconds())
		l.release()
	})
}

// NewPool creates a connection pool for the http and https schemes.
func NewPool(cfg PoolConfig) *Pool {
	if cfg.IdleTimeout <= 0 {
		cfg.IdleTimeout = DefaultIdleTimeout
	}
	if cfg.InactivityTimeout <= 0 {
		cfg.InactivityTimeout = DefaultInactivityTimeout
	}
	if cfg.MaxConnsPerScheme <= 0 {
		cfg.MaxConnsPerScheme = DefaultMaxConnsPerScheme
	}
	if cfg.DialTimeout <= 0 {
		cfg.DialTimeout = DefaultDialTimeout
	}

	p := &Pool{
		config:     cfg,
		transports: make(map[string]http.RoundTripper, 2),
		slots:      make(map[string]*semaphore.Weighted, 2),
	}
	for _, scheme := range []string{"http", "https"} {
		if cfg.RoundTripper != nil {
			p.transports[scheme] = cfg.RoundTripper
		} else {
			p.transports[scheme] = newSchemeTransport(cfg)
		}
		p.slots[scheme] = semaphore.NewWeighted(int64(cfg.MaxConnsPerScheme))
	}
	return p
}

// newSchemeTransport builds a keep-alive HTTP/1.1 transport whose connections
// are closed after InactivityTimeout without traffic.
func newSchemeTransport(cfg PoolConfig) *http.Transport {
	dialer := &net.Dialer{
		Timeout:   cfg.DialTimeout,
		KeepAlive: 30 * time.Second,
	}
	return &http.Transport{
		Proxy: nil,
		DialContext: func(ctx context.Context, network, addr string) (net.Conn, error) {
			conn, err := dialer.DialContext(ctx, network, addr)
			if err != nil {
				return nil, err
			}
			return &inactivityConn{Conn: conn, timeout: cfg.InactivityTimeout}, nil
		},
		MaxIdleConns:        cfg.MaxConnsPerScheme,
		MaxIdleConnsPerHost: cfg.MaxConnsPerScheme,
		IdleConnTimeout:     cfg.IdleTimeout,
		TLSHandshakeTimeout: 10 * time.Second,
		DisableCompression:  true,
		// Empty map disables HTTP/2 negotiation.
		TLSNextProto: make(map[string]func(string, *tls.Conn) http.RoundTripper),
	}
}

// Acquire waits for a slot on the scheme's transport. Waiters are served in
// arrival order.
func (p *Pool) Acquire(ctx context.Context, scheme string) (*Lease, error) {
	if p.closed.Load() {
		return nil, ErrPoolClosed
	}
	slots, ok := p.slots[scheme]
	if !ok {
		return nil, fmt.Errorf("unsupported scheme %q", scheme)
	}

	start := time.Now()
	if err := slots.Acquire(ctx, 1); err != nil {
		return nil, fmt.Errorf("acquire %s connection: %w", scheme, err)
	}
	poolAcquireWaitSeconds.WithLabelValues(scheme).Observe(time.Since(start).Seconds())
	poolInUse.WithLabelValues(scheme).Inc()

	return &Lease{
		Scheme:    scheme,
		transport: p.transports[scheme],
		release: func() {
			poolInUse.WithLabelValues(scheme).Dec()
			slots.Release(1)
		},
		acquiredAt: time.Now(),
	}, nil
}

// Close rejects further acquisitions and closes idle connections.
// In-flight requests finish on their own connections.
func (p *Pool) Close() {
	if p.closed.Swap(true) {
		return
	}
	for _, rt := range p.transports {
		if ci, ok := rt.(interface{ CloseIdleConnections() }); ok {
			ci.CloseIdleConnections()
		}
	}
}

// inactivityConn pushes the connection deadline forward on every read and
// write, so a connection silent for timeout fails with a net timeout.
type inactivityConn struct {
	net.Conn
	timeout time.Duration
}

func (c *inactivityConn) Read(b []byte) (int, error) {
	if err := c.Conn.SetDeadline(time.Now().Add(c.timeout)); err != nil {
		return 0, err
	}
	return c.Conn.Read(b)
}

func (c *inactivityConn) Write(b []byte) (int, error) {
	if err := c.Conn.SetDeadline(time.Now().Add(c.timeout)); err != nil {
		return 0, err
	}
	return c.Conn.Write(b)
}
