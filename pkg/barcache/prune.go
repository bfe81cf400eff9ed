package barcache

import (
	"context"
	"errors"
	"fmt"

	"github.com/Sternrassler/marketbars/pkg/logging"
)

// PruneReport describes one prune pass.
type PruneReport struct {
	Scanned int
	Deleted []Key
	// Invalid lists entries that could not be decoded. They are left in place.
	Invalid []Key
}

// Prune deletes every cached day whose bar list is empty.
func Prune(ctx context.Context, store Store) (*PruneReport, error) {
	logger := logging.NewLogger("barcache")

	keys, err := store.Keys(ctx)
	if err != nil {
		return nil, fmt.Errorf("list cache: %w", err)
	}

	report := &PruneReport{}
	for _, key := range keys {
		if err := ctx.Err(); err != nil {
			return report, err
		}
		report.Scanned++

		bars, err := store.Load(ctx, key)
		switch {
		case errors.Is(err, ErrInvalidEntry):
			logger.Warn().Err(err).Str("key", key.String()).Msg("Skipping invalid cache entry")
			report.Invalid = append(report.Invalid, key)
			continue
		case errors.Is(err, ErrNotFound):
			// expired or removed since listing
			continue
		case err != nil:
			return report, fmt.Errorf("load %s: %w", key, err)
		}

		if len(bars) > 0 {
			continue
		}
		if err := store.Delete(ctx, key); err != nil {
			return report, fmt.Errorf("delete %s: %w", key, err)
		}
		DaysPruned.Inc()
		report.Deleted = append(report.Deleted, key)
		logger.Info().Str("key", key.String()).Msg("Deleted empty trading day")
	}

	return report, nil
}
