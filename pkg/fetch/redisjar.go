package fetch

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisKeyPrefix prefixes every per-host cookie hash.
const RedisKeyPrefix = "fetch:cookies:"

// storedCookie is the redis representation of one cookie.
type storedCookie struct {
	Name    string    `json:"name"`
	Value   string    `json:"value"`
	Path    string    `json:"path"`
	Secure  bool      `json:"secure"`
	Expires time.Time `json:"expires,omitempty"`
}

// RedisJar keeps session cookies in redis so that several processes can share
// one session. Cookies are scoped to the exact request host; Domain attributes
// are not expanded to sibling hosts.
type RedisJar struct {
	redis *redis.Client
	ttl   time.Duration
}

// NewRedisJar creates a redis-backed jar. ttl bounds how long a host's cookie
// hash lives after its last update; zero keeps it until deleted.
func NewRedisJar(redisClient *redis.Client, ttl time.Duration) *RedisJar {
	if redisClient == nil {
		panic("redis client cannot be nil")
	}
	return &RedisJar{redis: redisClient, ttl: ttl}
}

func hostKey(u *url.URL) string {
	return RedisKeyPrefix + strings.ToLower(u.Hostname())
}

func fieldName(name, path string) string {
	return path + "|" + name
}

// Cookies implements CookieJar.
func (j *RedisJar) Cookies(ctx context.Context, u *url.URL) ([]*http.Cookie, error) {
	entries, err := j.redis.HGetAll(ctx, hostKey(u)).Result()
	if err != nil {
		return nil, fmt.Errorf("redis hgetall: %w", err)
	}

	now := time.Now()
	reqPath := u.EscapedPath()
	if reqPath == "" {
		reqPath = "/"
	}

	var cookies []*http.Cookie
	for _, raw := range entries {
		var sc storedCookie
		if err := json.Unmarshal([]byte(raw), &sc); err != nil {
			return nil, fmt.Errorf("decode stored cookie: %w", err)
		}
		if !sc.Expires.IsZero() && now.After(sc.Expires) {
			continue
		}
		if sc.Secure && u.Scheme != "https" {
			continue
		}
		if !pathMatch(reqPath, sc.Path) {
			continue
		}
		cookies = append(cookies, &http.Cookie{Name: sc.Name, Value: sc.Value})
	}
	return cookies, nil
}

// SetCookies implements CookieJar.
func (j *RedisJar) SetCookies(ctx context.Context, u *url.URL, cookies []*http.Cookie) error {
	if len(cookies) == 0 {
		return nil
	}

	key := hostKey(u)
	now := time.Now()
	pipe := j.redis.TxPipeline()
	for _, c := range cookies {
		path := c.Path
		if path == "" || !strings.HasPrefix(path, "/") {
			path = defaultPath(u)
		}

		sc := storedCookie{Name: c.Name, Value: c.Value, Path: path, Secure: c.Secure}
		switch {
		case c.MaxAge < 0:
			pipe.HDel(ctx, key, fieldName(c.Name, path))
			continue
		case c.MaxAge > 0:
			sc.Expires = now.Add(time.Duration(c.MaxAge) * time.Second)
		case !c.Expires.IsZero():
			if !c.Expires.After(now) {
				pipe.HDel(ctx, key, fieldName(c.Name, path))
				continue
			}
			sc.Expires = c.Expires
		}

		data, err := json.Marshal(sc)
		if err != nil {
			return fmt.Errorf("marshal cookie: %w", err)
		}
		pipe.HSet(ctx, key, fieldName(c.Name, path), data)
	}
	if j.ttl > 0 {
		pipe.Expire(ctx, key, j.ttl)
	}

	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("store cookies in redis: %w", err)
	}
	return nil
}

// defaultPath is the RFC 6265 default-path of a request URL.
func defaultPath(u *url.URL) string {
	p := u.EscapedPath()
	if p == "" || p[0] != '/' {
		return "/"
	}
	i := strings.LastIndex(p, "/")
	if i == 0 {
		return "/"
	}
	return p[:i]
}

// pathMatch implements RFC 6265 path-match.
func pathMatch(reqPath, cookiePath string) bool {
	if reqPath == cookiePath {
		return true
	}
	if !strings.HasPrefix(reqPath, cookiePath) {
		return false
	}
	return strings.HasSuffix(cookiePath, "/") || reqPath[len(cookiePath)] == '/'
}
