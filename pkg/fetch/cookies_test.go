package fetch

import (
	"context"
	"net/http"
	"net/url"
	"sync"
	"testing"
)

func mustURL(t *testing.T, raw string) *url.URL {
	t.Helper()
	u, err := url.Parse(raw)
	if err != nil {
		t.Fatalf("parse %q: %v", raw, err)
	}
	return u
}

func TestJar_HostScoping(t *testing.T) {
	jar, err := NewJar()
	if err != nil {
		t.Fatalf("NewJar() error = %v", err)
	}
	ctx := context.Background()

	origin := mustURL(t, "https://paper-api.alpaca.markets/v2/account")
	if err := jar.SetCookies(ctx, origin, []*http.Cookie{{Name: "session", Value: "abc", Path: "/"}}); err != nil {
		t.Fatalf("SetCookies() error = %v", err)
	}

	got, err := jar.Cookies(ctx, mustURL(t, "https://paper-api.alpaca.markets/v2/clock"))
	if err != nil {
		t.Fatalf("Cookies() error = %v", err)
	}
	if len(got) != 1 || got[0].Value != "abc" {
		t.Errorf("same host cookies = %v, want session=abc", got)
	}

	other, err := jar.Cookies(ctx, mustURL(t, "https://data.alpaca.markets/v2/stocks"))
	if err != nil {
		t.Fatalf("Cookies() error = %v", err)
	}
	if len(other) != 0 {
		t.Errorf("host-only cookie leaked to sibling host: %v", other)
	}
}

func TestSerialize(t *testing.T) {
	jar, err := NewJar()
	if err != nil {
		t.Fatalf("NewJar() error = %v", err)
	}

	s := Serialize(jar)
	if Serialize(s) != s {
		t.Error("Serialize must not wrap an already serialized jar twice")
	}

	ctx := context.Background()
	u := mustURL(t, "http://example.com/")

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			name := "c" + string(rune('a'+i))
			if err := s.SetCookies(ctx, u, []*http.Cookie{{Name: name, Value: "v"}}); err != nil {
				t.Errorf("SetCookies() error = %v", err)
			}
			if _, err := s.Cookies(ctx, u); err != nil {
				t.Errorf("Cookies() error = %v", err)
			}
		}(i)
	}
	wg.Wait()

	got, err := s.Cookies(ctx, u)
	if err != nil {
		t.Fatalf("Cookies() error = %v", err)
	}
	if len(got) != 20 {
		t.Errorf("len(cookies) = %d, want 20", len(got))
	}
}

func TestCookieHeader(t *testing.T) {
	cookies := []*http.Cookie{
		{Name: "a", Value: "1", Path: "/", HttpOnly: true},
		{Name: "b", Value: "two"},
	}
	if got := cookieHeader(cookies); got != "a=1; b=two" {
		t.Errorf("cookieHeader() = %q, want %q", got, "a=1; b=two")
	}
}

func TestResponseCookies(t *testing.T) {
	h := http.Header{}
	h.Add("Set-Cookie", "a=1; Path=/; HttpOnly")
	h.Add("Set-Cookie", "b=2; Max-Age=0")

	got := responseCookies(h)
	if len(got) != 2 {
		t.Fatalf("len = %d, want 2", len(got))
	}
	if got[0].Name != "a" || got[0].Value != "1" || got[0].Path != "/" {
		t.Errorf("cookie[0] = %+v", got[0])
	}
	if got[1].MaxAge >= 0 {
		t.Errorf("Max-Age=0 should parse as a deletion, got MaxAge %d", got[1].MaxAge)
	}
}

func TestDefaultPath(t *testing.T) {
	tests := []struct {
		raw  string
		want string
	}{
		{"http://example.com", "/"},
		{"http://example.com/", "/"},
		{"http://example.com/login", "/"},
		{"http://example.com/v2/account", "/v2"},
		{"http://example.com/v2/account/", "/v2/account"},
	}
	for _, tt := range tests {
		t.Run(tt.raw, func(t *testing.T) {
			if got := defaultPath(mustURL(t, tt.raw)); got != tt.want {
				t.Errorf("defaultPath() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestPathMatch(t *testing.T) {
	tests := []struct {
		reqPath    string
		cookiePath string
		want       bool
	}{
		{"/", "/", true},
		{"/v2/account", "/", true},
		{"/v2/account", "/v2", true},
		{"/v2/account", "/v2/", true},
		{"/v22", "/v2", false},
		{"/v1", "/v2", false},
	}
	for _, tt := range tests {
		if got := pathMatch(tt.reqPath, tt.cookiePath); got != tt.want {
			t.Errorf("pathMatch(%q, %q) = %v, want %v", tt.reqPath, tt.cookiePath, got, tt.want)
		}
	}
}
