//go:build integration

package barcache

import (
	"context"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

// setupRedisContainer creates a Redis container for integration testing.
func setupRedisContainer(t *testing.T) *redis.Client {
	t.Helper()

	ctx := context.Background()

	req := testcontainers.ContainerRequest{
		Image:        "redis:7-alpine",
		ExposedPorts: []string{"6379/tcp"},
		WaitingFor:   wait.ForLog("Ready to accept connections"),
	}

	redisContainer, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	require.NoError(t, err, "start redis container")

	host, err := redisContainer.Host(ctx)
	require.NoError(t, err)
	port, err := redisContainer.MappedPort(ctx, "6379")
	require.NoError(t, err)

	client := redis.NewClient(&redis.Options{Addr: host + ":" + port.Port()})
	t.Cleanup(func() {
		client.Close()
		redisContainer.Terminate(ctx)
	})
	return client
}

func TestIntegration_RedisStoreRoundTrip(t *testing.T) {
	client := setupRedisContainer(t)
	ctx := context.Background()

	store := NewRedisStore(client, 0)
	cachedAt := time.Date(2024, 3, 16, 8, 0, 0, 0, time.UTC)
	store.now = func() time.Time { return cachedAt }

	key := Key{Symbol: "AAPL", Date: "2024-01-02"}

	_, err := store.Load(ctx, key)
	assert.ErrorIs(t, err, ErrNotFound)

	require.NoError(t, store.Save(ctx, key, sampleBars(3)))

	exists, err := store.Exists(ctx, key)
	require.NoError(t, err)
	assert.True(t, exists)

	entry, err := store.Get(ctx, key)
	require.NoError(t, err)
	assert.Len(t, entry.Bars, 3)
	assert.True(t, cachedAt.Equal(entry.CachedAt))

	ttl, err := client.TTL(ctx, key.String()).Result()
	require.NoError(t, err)
	assert.Equal(t, time.Duration(-1), ttl, "no expiry without a ttl")

	require.NoError(t, store.Delete(ctx, key))
	exists, err = store.Exists(ctx, key)
	require.NoError(t, err)
	assert.False(t, exists)
}

func TestIntegration_RedisStoreTTL(t *testing.T) {
	client := setupRedisContainer(t)
	ctx := context.Background()

	store := NewRedisStore(client, time.Hour)
	key := Key{Symbol: "MSFT", Date: "2024-01-02"}
	require.NoError(t, store.Save(ctx, key, nil))

	ttl, err := client.TTL(ctx, key.String()).Result()
	require.NoError(t, err)
	assert.Greater(t, ttl, 59*time.Minute)

	bars, err := store.Load(ctx, key)
	require.NoError(t, err)
	assert.NotNil(t, bars)
	assert.Empty(t, bars)
}

func TestIntegration_RedisStoreKeysAndPrune(t *testing.T) {
	client := setupRedisContainer(t)
	ctx := context.Background()
	store := NewRedisStore(client, 0)

	require.NoError(t, store.Save(ctx, Key{Symbol: "MSFT", Date: "2024-01-02"}, sampleBars(1)))
	require.NoError(t, store.Save(ctx, Key{Symbol: "AAPL", Date: "2024-01-03"}, nil))
	require.NoError(t, store.Save(ctx, Key{Symbol: "AAPL", Date: "2024-01-02"}, sampleBars(2)))
	require.NoError(t, client.Set(ctx, "bars:broken", "x", 0).Err())
	require.NoError(t, client.Set(ctx, "other:key", "x", 0).Err())

	keys, err := store.Keys(ctx)
	require.NoError(t, err)
	assert.Equal(t, []Key{
		{Symbol: "AAPL", Date: "2024-01-02"},
		{Symbol: "AAPL", Date: "2024-01-03"},
		{Symbol: "MSFT", Date: "2024-01-02"},
	}, keys)

	report, err := Prune(ctx, store)
	require.NoError(t, err)
	assert.Equal(t, []Key{{Symbol: "AAPL", Date: "2024-01-03"}}, report.Deleted)

	summary, err := Summarize(ctx, store)
	require.NoError(t, err)
	assert.Equal(t, []SymbolSummary{
		{Symbol: "AAPL", Days: 1, First: "2024-01-02", Last: "2024-01-02"},
		{Symbol: "MSFT", Days: 1, First: "2024-01-02", Last: "2024-01-02"},
	}, summary)
}
