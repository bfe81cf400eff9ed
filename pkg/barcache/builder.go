package barcache

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"github.com/Sternrassler/marketbars/pkg/alpaca"
	"github.com/Sternrassler/marketbars/pkg/batch"
	"github.com/Sternrassler/marketbars/pkg/logging"
)

const (
	// DefaultLookbackDays is the calendar window searched for trading days.
	DefaultLookbackDays = 50

	// DefaultTradingPeriods is the number of completed sessions cached per symbol.
	DefaultTradingPeriods = 21

	// BarTimeframe is the resolution of cached bars.
	BarTimeframe = "1Min"
)

// ErrEmptyCalendar is returned when the lookback window holds no completed
// sessions.
var ErrEmptyCalendar = errors.New("no trading days in lookback window")

// MarketData is the part of the market-data API the builder needs.
// *alpaca.Client implements it.
type MarketData interface {
	EquityAssets(ctx context.Context) ([]alpaca.Asset, error)
	Calendar(ctx context.Context, start, end time.Time) ([]alpaca.CalendarDay, error)
	Bars(ctx context.Context, symbol string, start, end time.Time, timeframe string) ([]alpaca.Bar, error)
}

// BuilderConfig holds builder configuration
type BuilderConfig struct {
	LookbackDays   int
	TradingPeriods int
	// Symbols restricts the build to these symbols. Empty means every
	// equity asset.
	Symbols []string
	Batch   batch.Config
}

// DefaultBuilderConfig returns the default builder configuration
func DefaultBuilderConfig() BuilderConfig {
	return BuilderConfig{
		LookbackDays:   DefaultLookbackDays,
		TradingPeriods: DefaultTradingPeriods,
		Batch:          batch.DefaultConfig(),
	}
}

// Report describes one build.
type Report struct {
	Days    []alpaca.CalendarDay
	Symbols int
	// Fetched counts symbol-days downloaded and saved.
	Fetched int64
	// Cached counts symbol-days that were already present.
	Cached int64
	// Empty counts fetched symbol-days without bars.
	Empty   int64
	Summary batch.Summary
}

// Builder fills a Store with the minute bars of recent trading days.
type Builder struct {
	market MarketData
	store  Store
	config BuilderConfig
	runner *batch.Runner
	logger zerolog.Logger
	now    func() time.Time
}

// BuilderOption customizes a Builder.
type BuilderOption func(*Builder)

// WithClock overrides the builder's time source.
func WithClock(now func() time.Time) BuilderOption {
	return func(b *Builder) { b.now = now }
}

// WithBuilderLogger overrides the builder's logger.
func WithBuilderLogger(logger zerolog.Logger) BuilderOption {
	return func(b *Builder) { b.logger = logger }
}

// NewBuilder creates a builder writing to store.
func NewBuilder(market MarketData, store Store, config BuilderConfig, opts ...BuilderOption) *Builder {
	if market == nil || store == nil {
		panic("market data and store cannot be nil")
	}
	defaults := DefaultBuilderConfig()
	if config.LookbackDays <= 0 {
		config.LookbackDays = defaults.LookbackDays
	}
	if config.TradingPeriods <= 0 {
		config.TradingPeriods = defaults.TradingPeriods
	}

	b := &Builder{
		market: market,
		store:  store,
		config: config,
		runner: batch.NewRunner(config.Batch),
		logger: logging.NewLogger("barcache"),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// TradingDays returns the most recent sessions, newest first. When the
// newest session is today it is still in progress: it is skipped and one
// extra older session is taken in its place.
func (b *Builder) TradingDays(ctx context.Context) ([]alpaca.CalendarDay, error) {
	now := b.now()
	calendar, err := b.market.Calendar(ctx, now.AddDate(0, 0, -b.config.LookbackDays), now)
	if err != nil {
		return nil, fmt.Errorf("get calendar: %w", err)
	}
	if len(calendar) == 0 {
		return nil, ErrEmptyCalendar
	}

	days := slices.Clone(calendar)
	slices.Reverse(days)

	start, n := 0, b.config.TradingPeriods
	if days[0].Date == now.UTC().Format(DateLayout) {
		start, n = 1, b.config.TradingPeriods+1
	}
	end := min(start+n, len(days))
	if start >= end {
		// only today's unfinished session is in range
		return nil, ErrEmptyCalendar
	}
	return days[start:end], nil
}

// Build fetches every missing symbol-day. Per-symbol failures are collected
// in the report summary; the returned error is non-nil when the build could
// not start or was interrupted.
func (b *Builder) Build(ctx context.Context) (*Report, error) {
	days, err := b.TradingDays(ctx)
	if err != nil {
		return nil, err
	}

	symbols, err := b.symbols(ctx)
	if err != nil {
		return nil, err
	}

	report := &Report{Days: days, Symbols: len(symbols)}
	b.logger.Info().
		Int("symbols", len(symbols)).
		Int("days", len(days)).
		Str("newest", days[0].Date).
		Str("oldest", days[len(days)-1].Date).
		Msg("Building bar cache")

	var fetched, cached, empty atomic.Int64
	tasks := make([]batch.Task, 0, len(symbols))
	for _, symbol := range symbols {
		tasks = append(tasks, batch.Task{
			Name: symbol,
			Run: func(ctx context.Context) error {
				return b.buildSymbol(ctx, symbol, days, &fetched, &cached, &empty)
			},
		})
	}

	summary, runErr := b.runner.Run(ctx, "build-cache", tasks)
	report.Summary = summary
	report.Fetched = fetched.Load()
	report.Cached = cached.Load()
	report.Empty = empty.Load()

	b.logger.Info().
		Int64("fetched", report.Fetched).
		Int64("cached", report.Cached).
		Int64("empty", report.Empty).
		Int("failed", summary.Failed).
		Dur("duration", summary.Duration).
		Msg("Bar cache build finished")

	return report, runErr
}

func (b *Builder) symbols(ctx context.Context) ([]string, error) {
	if len(b.config.Symbols) > 0 {
		return b.config.Symbols, nil
	}

	assets, err := b.market.EquityAssets(ctx)
	if err != nil {
		return nil, fmt.Errorf("get equity assets: %w", err)
	}
	symbols := make([]string, 0, len(assets))
	for _, a := range assets {
		symbols = append(symbols, a.Symbol)
	}
	return symbols, nil
}

func (b *Builder) buildSymbol(ctx context.Context, symbol string, days []alpaca.CalendarDay, fetched, cached, empty *atomic.Int64) error {
	for _, day := range days {
		key := Key{Symbol: symbol, Date: day.Date}

		exists, err := b.store.Exists(ctx, key)
		if err != nil {
			return fmt.Errorf("check %s: %w", key, err)
		}
		if exists {
			cached.Add(1)
			continue
		}

		start, end, err := day.SessionWindow()
		if err != nil {
			return err
		}

		bars, err := b.market.Bars(ctx, symbol, start, end, BarTimeframe)
		if err != nil {
			return fmt.Errorf("get bars %s: %w", key, err)
		}
		if err := b.store.Save(ctx, key, bars); err != nil {
			return fmt.Errorf("save %s: %w", key, err)
		}

		fetched.Add(1)
		if len(bars) == 0 {
			empty.Add(1)
		}
		DaysBuilt.Inc()
		b.logger.Debug().
			Str("key", key.String()).
			Int("bars", len(bars)).
			Msg("Cached trading day")
	}
	return nil
}
