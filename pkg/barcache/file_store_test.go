package barcache

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Sternrassler/marketbars/pkg/alpaca"
)

func sampleBars(n int) []alpaca.Bar {
	bars := make([]alpaca.Bar, n)
	base := time.Date(2024, 1, 2, 14, 30, 0, 0, time.UTC)
	for i := range bars {
		bars[i] = alpaca.Bar{
			Timestamp: base.Add(time.Duration(i) * time.Minute),
			Open:      100 + float64(i),
			High:      101 + float64(i),
			Low:       99 + float64(i),
			Close:     100.5 + float64(i),
			Volume:    1000,
		}
	}
	return bars
}

func TestNewFileStore_Panic(t *testing.T) {
	assert.Panics(t, func() { NewFileStore("") })
}

func TestFileStore_SaveAndLoad(t *testing.T) {
	ctx := context.Background()
	store := NewFileStore(filepath.Join(t.TempDir(), "cache"))
	key := Key{Symbol: "AAPL", Date: "2024-01-02"}

	exists, err := store.Exists(ctx, key)
	require.NoError(t, err)
	assert.False(t, exists)

	_, err = store.Load(ctx, key)
	assert.ErrorIs(t, err, ErrNotFound)

	bars := sampleBars(3)
	require.NoError(t, store.Save(ctx, key, bars))

	exists, err = store.Exists(ctx, key)
	require.NoError(t, err)
	assert.True(t, exists)

	got, err := store.Load(ctx, key)
	require.NoError(t, err)
	require.Len(t, got, 3)
	assert.True(t, bars[2].Timestamp.Equal(got[2].Timestamp))
	assert.InDelta(t, bars[2].Close, got[2].Close, 1e-9)

	// no temp files left behind
	entries, err := os.ReadDir(filepath.Join(store.Dir(), "AAPL"))
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "2024-01-02.json", entries[0].Name())
}

func TestFileStore_SaveEmptyDay(t *testing.T) {
	ctx := context.Background()
	store := NewFileStore(t.TempDir())
	key := Key{Symbol: "ZZZZ", Date: "2024-01-02"}

	require.NoError(t, store.Save(ctx, key, nil))

	data, err := os.ReadFile(key.Path(store.Dir()))
	require.NoError(t, err)
	assert.Equal(t, "[]", string(data))

	got, err := store.Load(ctx, key)
	require.NoError(t, err)
	assert.NotNil(t, got)
	assert.Empty(t, got)
}

func TestFileStore_LoadInvalid(t *testing.T) {
	ctx := context.Background()
	store := NewFileStore(t.TempDir())

	for name, content := range map[string]string{
		"2024-01-02": "{not json",
		"2024-01-03": "null",
		"2024-01-04": `{"bars":[]}`,
	} {
		t.Run(name, func(t *testing.T) {
			key := Key{Symbol: "AAPL", Date: name}
			require.NoError(t, os.MkdirAll(filepath.Dir(key.Path(store.Dir())), 0o755))
			require.NoError(t, os.WriteFile(key.Path(store.Dir()), []byte(content), 0o644))

			_, err := store.Load(ctx, key)
			assert.ErrorIs(t, err, ErrInvalidEntry)
		})
	}
}

func TestFileStore_Delete(t *testing.T) {
	ctx := context.Background()
	store := NewFileStore(t.TempDir())
	key := Key{Symbol: "AAPL", Date: "2024-01-02"}

	require.NoError(t, store.Save(ctx, key, sampleBars(1)))
	require.NoError(t, store.Delete(ctx, key))

	exists, err := store.Exists(ctx, key)
	require.NoError(t, err)
	assert.False(t, exists)

	assert.NoError(t, store.Delete(ctx, key), "deleting a missing day")
}

func TestFileStore_InvalidKey(t *testing.T) {
	ctx := context.Background()
	store := NewFileStore(t.TempDir())
	bad := Key{Symbol: "../x", Date: "2024-01-02"}

	_, err := store.Exists(ctx, bad)
	assert.ErrorIs(t, err, ErrInvalidKey)
	_, err = store.Load(ctx, bad)
	assert.ErrorIs(t, err, ErrInvalidKey)
	assert.ErrorIs(t, store.Save(ctx, bad, nil), ErrInvalidKey)
	assert.ErrorIs(t, store.Delete(ctx, bad), ErrInvalidKey)
}

func TestFileStore_Keys(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	store := NewFileStore(dir)

	for _, k := range []Key{
		{Symbol: "MSFT", Date: "2024-01-03"},
		{Symbol: "AAPL", Date: "2024-01-03"},
		{Symbol: "AAPL", Date: "2024-01-02"},
	} {
		require.NoError(t, store.Save(ctx, k, sampleBars(1)))
	}

	// noise the listing must skip
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".DS_Store"), []byte("x"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "README"), []byte("x"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "AAPL", ".DS_Store"), []byte("x"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "AAPL", "notes.txt"), []byte("x"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "AAPL", "latest.json"), []byte("[]"), 0o644))
	require.NoError(t, os.Mkdir(filepath.Join(dir, "AAPL", "2024-01-04.json"), 0o755))

	keys, err := store.Keys(ctx)
	require.NoError(t, err)
	assert.Equal(t, []Key{
		{Symbol: "AAPL", Date: "2024-01-02"},
		{Symbol: "AAPL", Date: "2024-01-03"},
		{Symbol: "MSFT", Date: "2024-01-03"},
	}, keys)
}

func TestFileStore_KeysMissingDir(t *testing.T) {
	store := NewFileStore(filepath.Join(t.TempDir(), "missing"))
	keys, err := store.Keys(context.Background())
	require.NoError(t, err)
	assert.Empty(t, keys)
}

func TestFileStore_CancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	store := NewFileStore(t.TempDir())
	err := store.Save(ctx, Key{Symbol: "AAPL", Date: "2024-01-02"}, nil)
	assert.ErrorIs(t, err, context.Canceled)
}
