package barcache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/Sternrassler/marketbars/pkg/alpaca"
)

// scanBatch is the COUNT hint for SCAN.
const scanBatch = 500

// RedisStore keeps cached days in redis, one JSON Entry per key, so several
// builders can share one cache.
type RedisStore struct {
	redis *redis.Client
	ttl   time.Duration
	now   func() time.Time
}

// NewRedisStore creates a redis backed store. A ttl of zero keeps entries
// until they are deleted.
func NewRedisStore(redisClient *redis.Client, ttl time.Duration) *RedisStore {
	if redisClient == nil {
		panic("redis client cannot be nil")
	}
	return &RedisStore{
		redis: redisClient,
		ttl:   ttl,
		now:   time.Now,
	}
}

// Exists reports whether the day is cached.
func (s *RedisStore) Exists(ctx context.Context, key Key) (bool, error) {
	if err := key.Validate(); err != nil {
		return false, err
	}
	n, err := s.redis.Exists(ctx, key.String()).Result()
	if err != nil {
		CacheErrors.WithLabelValues("redis", "exists").Inc()
		return false, fmt.Errorf("redis exists: %w", err)
	}
	return n > 0, nil
}

// Get retrieves the full cache entry of a day.
// Returns ErrNotFound if the key doesn't exist.
func (s *RedisStore) Get(ctx context.Context, key Key) (*Entry, error) {
	if err := key.Validate(); err != nil {
		return nil, err
	}

	data, err := s.redis.Get(ctx, key.String()).Bytes()
	if err != nil {
		if err == redis.Nil {
			CacheMisses.WithLabelValues("redis").Inc()
			return nil, ErrNotFound
		}
		CacheErrors.WithLabelValues("redis", "load").Inc()
		return nil, fmt.Errorf("redis get: %w", err)
	}

	var entry Entry
	if err := json.Unmarshal(data, &entry); err != nil {
		CacheErrors.WithLabelValues("redis", "load").Inc()
		return nil, fmt.Errorf("%w: %v", ErrInvalidEntry, err)
	}
	if entry.Bars == nil {
		entry.Bars = []alpaca.Bar{}
	}

	CacheHits.WithLabelValues("redis").Inc()
	return &entry, nil
}

// Load reads the bars of a cached day.
func (s *RedisStore) Load(ctx context.Context, key Key) ([]alpaca.Bar, error) {
	entry, err := s.Get(ctx, key)
	if err != nil {
		return nil, err
	}
	return entry.Bars, nil
}

// Save stores the bars of a day with the store's TTL.
func (s *RedisStore) Save(ctx context.Context, key Key, bars []alpaca.Bar) error {
	if err := key.Validate(); err != nil {
		return err
	}
	if bars == nil {
		bars = []alpaca.Bar{}
	}

	data, err := json.Marshal(Entry{Bars: bars, CachedAt: s.now().UTC()})
	if err != nil {
		CacheErrors.WithLabelValues("redis", "save").Inc()
		return fmt.Errorf("marshal cache entry: %w", err)
	}

	if err := s.redis.Set(ctx, key.String(), data, s.ttl).Err(); err != nil {
		CacheErrors.WithLabelValues("redis", "save").Inc()
		return fmt.Errorf("redis set: %w", err)
	}

	BytesWritten.WithLabelValues("redis").Add(float64(len(data)))
	return nil
}

// Delete removes a cached day.
func (s *RedisStore) Delete(ctx context.Context, key Key) error {
	if err := key.Validate(); err != nil {
		return err
	}
	if err := s.redis.Del(ctx, key.String()).Err(); err != nil {
		CacheErrors.WithLabelValues("redis", "delete").Inc()
		return fmt.Errorf("redis del: %w", err)
	}
	return nil
}

// Keys scans every bars:* key. Keys that do not parse are skipped.
func (s *RedisStore) Keys(ctx context.Context) ([]Key, error) {
	var keys []Key
	iter := s.redis.Scan(ctx, 0, RedisKeyPrefix+":*", scanBatch).Iterator()
	for iter.Next(ctx) {
		if k, ok := parseRedisKey(iter.Val()); ok {
			keys = append(keys, k)
		}
	}
	if err := iter.Err(); err != nil {
		CacheErrors.WithLabelValues("redis", "keys").Inc()
		return nil, fmt.Errorf("redis scan: %w", err)
	}

	sortKeys(keys)
	return keys, nil
}
