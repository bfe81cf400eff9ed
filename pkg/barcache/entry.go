package barcache

import (
	"context"
	"errors"
	"time"

	"github.com/Sternrassler/marketbars/pkg/alpaca"
)

var (
	// ErrNotFound indicates the requested day is not cached.
	ErrNotFound = errors.New("bars not cached")

	// ErrInvalidEntry indicates the cached data is corrupted.
	ErrInvalidEntry = errors.New("invalid cache entry")

	// ErrInvalidKey indicates a key that cannot name a cache entry.
	ErrInvalidKey = errors.New("invalid cache key")
)

// Store persists bar lists by key. A saved empty list is a valid entry: it
// records a day without trades so the builder does not fetch it again.
type Store interface {
	Exists(ctx context.Context, key Key) (bool, error)
	Load(ctx context.Context, key Key) ([]alpaca.Bar, error)
	Save(ctx context.Context, key Key, bars []alpaca.Bar) error
	Delete(ctx context.Context, key Key) error
	// Keys lists every cached key, ordered by symbol then date.
	Keys(ctx context.Context) ([]Key, error)
}

// Entry is the redis representation of one cached day.
type Entry struct {
	Bars     []alpaca.Bar `json:"bars"`
	CachedAt time.Time    `json:"cached_at"`
}

// IsEmpty reports whether the day has no bars.
func (e *Entry) IsEmpty() bool {
	return len(e.Bars) == 0
}
