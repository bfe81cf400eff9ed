package barcache

import (
	"fmt"
	"path/filepath"
	"strings"
	"time"
)

// DateLayout is the trading-day format used in keys and file names.
const DateLayout = "2006-01-02"

// RedisKeyPrefix prefixes every redis cache key.
const RedisKeyPrefix = "bars"

// Key identifies the minute bars of one symbol on one trading day.
type Key struct {
	Symbol string
	Date   string
}

// NewKey builds a key for symbol on the calendar date of day.
func NewKey(symbol string, day time.Time) Key {
	return Key{Symbol: symbol, Date: day.Format(DateLayout)}
}

// String generates the redis key.
// Format: bars:SYMBOL:YYYY-MM-DD
//
// Example:
//
//	bars:AAPL:2024-01-02
func (k Key) String() string {
	return strings.Join([]string{RedisKeyPrefix, k.Symbol, k.Date}, ":")
}

// Validate rejects keys that cannot be stored safely.
func (k Key) Validate() error {
	if k.Symbol == "" {
		return fmt.Errorf("%w: empty symbol", ErrInvalidKey)
	}
	if strings.ContainsAny(k.Symbol, `/\:`) || k.Symbol == "." || k.Symbol == ".." {
		return fmt.Errorf("%w: symbol %q", ErrInvalidKey, k.Symbol)
	}
	if _, err := time.Parse(DateLayout, k.Date); err != nil {
		return fmt.Errorf("%w: date %q", ErrInvalidKey, k.Date)
	}
	return nil
}

// Path returns the file location of the key under dir:
// <dir>/<SYMBOL>/<YYYY-MM-DD>.json
func (k Key) Path(dir string) string {
	return filepath.Join(dir, k.Symbol, k.Date+".json")
}

// parseRedisKey is the inverse of Key.String.
func parseRedisKey(s string) (Key, bool) {
	parts := strings.Split(s, ":")
	if len(parts) != 3 || parts[0] != RedisKeyPrefix {
		return Key{}, false
	}
	k := Key{Symbol: parts[1], Date: parts[2]}
	return k, k.Validate() == nil
}
