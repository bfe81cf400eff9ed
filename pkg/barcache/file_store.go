package barcache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/Sternrassler/marketbars/pkg/alpaca"
)

// FileStore keeps one JSON array of bars per file:
// <dir>/<SYMBOL>/<YYYY-MM-DD>.json
type FileStore struct {
	dir string
}

// NewFileStore creates a file store rooted at dir. The directory is created
// on the first Save.
func NewFileStore(dir string) *FileStore {
	if dir == "" {
		panic("cache directory cannot be empty")
	}
	return &FileStore{dir: dir}
}

// Dir returns the cache root.
func (s *FileStore) Dir() string {
	return s.dir
}

// Exists reports whether the day is cached.
func (s *FileStore) Exists(ctx context.Context, key Key) (bool, error) {
	if err := key.Validate(); err != nil {
		return false, err
	}
	if err := ctx.Err(); err != nil {
		return false, err
	}
	_, err := os.Stat(key.Path(s.dir))
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, fs.ErrNotExist):
		return false, nil
	default:
		return false, fmt.Errorf("stat %s: %w", key, err)
	}
}

// Load reads the bars of a cached day.
// Returns ErrNotFound if the file doesn't exist, ErrInvalidEntry if it is not
// a JSON array of bars.
func (s *FileStore) Load(ctx context.Context, key Key) ([]alpaca.Bar, error) {
	if err := key.Validate(); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	data, err := os.ReadFile(key.Path(s.dir))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			CacheMisses.WithLabelValues("file").Inc()
			return nil, ErrNotFound
		}
		CacheErrors.WithLabelValues("file", "load").Inc()
		return nil, fmt.Errorf("read %s: %w", key, err)
	}

	bars := []alpaca.Bar{}
	if err := json.Unmarshal(data, &bars); err != nil {
		CacheErrors.WithLabelValues("file", "load").Inc()
		return nil, fmt.Errorf("%w: %s: %v", ErrInvalidEntry, key, err)
	}
	if bars == nil {
		// a literal null
		return nil, fmt.Errorf("%w: %s: null", ErrInvalidEntry, key)
	}

	CacheHits.WithLabelValues("file").Inc()
	return bars, nil
}

// Save writes the bars of a day, replacing any previous file. A nil or empty
// list is written as [].
func (s *FileStore) Save(ctx context.Context, key Key, bars []alpaca.Bar) error {
	if err := key.Validate(); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	if bars == nil {
		bars = []alpaca.Bar{}
	}

	data, err := json.Marshal(bars)
	if err != nil {
		CacheErrors.WithLabelValues("file", "save").Inc()
		return fmt.Errorf("marshal %s: %w", key, err)
	}

	path := key.Path(s.dir)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		CacheErrors.WithLabelValues("file", "save").Inc()
		return fmt.Errorf("create symbol directory: %w", err)
	}

	// Write next to the target and rename so readers never see a partial day.
	tmp, err := os.CreateTemp(filepath.Dir(path), "."+key.Date+"-*.tmp")
	if err != nil {
		CacheErrors.WithLabelValues("file", "save").Inc()
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		CacheErrors.WithLabelValues("file", "save").Inc()
		return fmt.Errorf("write %s: %w", key, err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		CacheErrors.WithLabelValues("file", "save").Inc()
		return fmt.Errorf("close %s: %w", key, err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		CacheErrors.WithLabelValues("file", "save").Inc()
		return fmt.Errorf("rename %s: %w", key, err)
	}

	BytesWritten.WithLabelValues("file").Add(float64(len(data)))
	return nil
}

// Delete removes a cached day. Deleting a missing day is not an error.
func (s *FileStore) Delete(ctx context.Context, key Key) error {
	if err := key.Validate(); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := os.Remove(key.Path(s.dir)); err != nil && !errors.Is(err, fs.ErrNotExist) {
		CacheErrors.WithLabelValues("file", "delete").Inc()
		return fmt.Errorf("remove %s: %w", key, err)
	}
	return nil
}

// Keys lists every cached day. Entries that are not symbol directories
// (.DS_Store and friends) or not <date>.json files are skipped.
func (s *FileStore) Keys(ctx context.Context) ([]Key, error) {
	symbols, err := os.ReadDir(s.dir)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		CacheErrors.WithLabelValues("file", "keys").Inc()
		return nil, fmt.Errorf("read cache directory: %w", err)
	}

	var keys []Key
	for _, sym := range symbols {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if !sym.IsDir() || strings.HasPrefix(sym.Name(), ".") {
			continue
		}

		files, err := os.ReadDir(filepath.Join(s.dir, sym.Name()))
		if err != nil {
			CacheErrors.WithLabelValues("file", "keys").Inc()
			return nil, fmt.Errorf("read symbol directory %s: %w", sym.Name(), err)
		}
		for _, f := range files {
			name := f.Name()
			if f.IsDir() || !strings.HasSuffix(name, ".json") {
				continue
			}
			k := Key{Symbol: sym.Name(), Date: strings.TrimSuffix(name, ".json")}
			if k.Validate() != nil {
				continue
			}
			keys = append(keys, k)
		}
	}

	sortKeys(keys)
	return keys, nil
}

func sortKeys(keys []Key) {
	sort.Slice(keys, func(i, j int) bool {
		if keys[i].Symbol != keys[j].Symbol {
			return keys[i].Symbol < keys[j].Symbol
		}
		return keys[i].Date < keys[j].Date
	})
}
