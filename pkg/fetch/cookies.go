package fetch

import (
	"context"
	"fmt"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"strings"
	"sync"

	"golang.org/x/net/publicsuffix"
)

// CookieJar is the capability a request uses to load cookies before sending
// and to persist Set-Cookie directives after receiving. Implementations are
// shared by reference across every request of one session.
type CookieJar interface {
	Cookies(ctx context.Context, u *url.URL) ([]*http.Cookie, error)
	SetCookies(ctx context.Context, u *url.URL, cookies []*http.Cookie) error
}

// Jar adapts a net/http cookie jar to CookieJar.
type Jar struct {
	jar http.CookieJar
}

// NewJar creates an in-memory jar using the public suffix list for domain scoping.
func NewJar() (*Jar, error) {
	jar, err := cookiejar.New(&cookiejar.Options{PublicSuffixList: publicsuffix.List})
	if err != nil {
		return nil, fmt.Errorf("create cookie jar: %w", err)
	}
	return &Jar{jar: jar}, nil
}

// WrapJar adapts an existing http.CookieJar.
func WrapJar(jar http.CookieJar) *Jar {
	return &Jar{jar: jar}
}

// Cookies implements CookieJar.
func (j *Jar) Cookies(_ context.Context, u *url.URL) ([]*http.Cookie, error) {
	return j.jar.Cookies(u), nil
}

// SetCookies implements CookieJar.
func (j *Jar) SetCookies(_ context.Context, u *url.URL, cookies []*http.Cookie) error {
	j.jar.SetCookies(u, cookies)
	return nil
}

// serializedJar guards every jar call with one mutex.
type serializedJar struct {
	mu  sync.Mutex
	jar CookieJar
}

// Serialize wraps jar so that each individual Cookies or SetCookies call runs
// alone. The read-before-send and write-after-receive pair of one request is
// still not atomic with respect to other requests sharing the jar.
func Serialize(jar CookieJar) CookieJar {
	if _, ok := jar.(*serializedJar); ok {
		return jar
	}
	return &serializedJar{jar: jar}
}

func (s *serializedJar) Cookies(ctx context.Context, u *url.URL) ([]*http.Cookie, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.jar.Cookies(ctx, u)
}

func (s *serializedJar) SetCookies(ctx context.Context, u *url.URL, cookies []*http.Cookie) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.jar.SetCookies(ctx, u, cookies)
}

// cookieHeader renders cookies as a single Cookie header value.
func cookieHeader(cookies []*http.Cookie) string {
	parts := make([]string, 0, len(cookies))
	for _, c := range cookies {
		parts = append(parts, (&http.Cookie{Name: c.Name, Value: c.Value}).String())
	}
	return strings.Join(parts, "; ")
}

// responseCookies parses the Set-Cookie directives of a response header.
func responseCookies(h http.Header) []*http.Cookie {
	return (&http.Response{Header: h}).Cookies()
}
