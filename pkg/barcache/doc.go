// Package barcache keeps the minute bars of every equity symbol for the most
// recent trading days.
//
// Each symbol-day is one entry holding a JSON array of bars. An empty array
// is a valid entry: it records a day the symbol did not trade, so later
// builds do not fetch it again. Prune removes those entries once they are no
// longer wanted.
//
// Two stores are provided:
//
//   - FileStore: <dir>/<SYMBOL>/<YYYY-MM-DD>.json, written atomically
//   - RedisStore: bars:<SYMBOL>:<YYYY-MM-DD>, optional TTL, shared between hosts
//
// # Building
//
//	store := barcache.NewFileStore("cache")
//	builder := barcache.NewBuilder(alpacaClient, store, barcache.DefaultBuilderConfig())
//
//	report, err := builder.Build(ctx)
//	if err != nil {
//		return err
//	}
//	if err := report.Summary.Err(); err != nil {
//		log.Warn().Err(err).Msg("some symbols failed")
//	}
//
// Trading days are the last 21 completed sessions found in the past 50
// calendar days. A session dated today is treated as incomplete and skipped.
// Bars are requested between the calendar's session_open and session_close.
//
// # Maintenance
//
//	report, err := barcache.Prune(ctx, store)  // delete empty days
//	stats, err := barcache.Summarize(ctx, store) // cached days per symbol
//
// # Metrics
//
//   - barcache_hits_total{store}
//   - barcache_misses_total{store}
//   - barcache_bytes_written_total{store}
//   - barcache_errors_total{store,operation}
//   - barcache_days_built_total
//   - barcache_days_pruned_total
package barcache
