package cli

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/Sternrassler/marketbars/pkg/barcache"
	"github.com/Sternrassler/marketbars/pkg/logging"
)

type buildOptions struct {
	schedule    string
	concurrency int
	symbols     []string
}

func newBuildCommand(root *rootOptions) *cobra.Command {
	opts := &buildOptions{}

	cmd := &cobra.Command{
		Use:   "build",
		Short: "Fetch missing trading days into the cache",
		Long: `Fetch one-minute bars for every equity symbol and each of the most recent
completed trading sessions that is not cached yet.

Examples:
  marketbars build                              Build once
  marketbars build --symbols AAPL,MSFT          Build two symbols only
  marketbars build --schedule "30 6 * * 1-5"    Rebuild every weekday morning`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runBuild(cmd, root, opts)
		},
	}

	cmd.Flags().StringVar(&opts.schedule, "schedule", "", "Cron expression; keep running and build on schedule")
	cmd.Flags().IntVar(&opts.concurrency, "concurrency", 0, "Symbols fetched at once (default from config)")
	cmd.Flags().StringSliceVar(&opts.symbols, "symbols", nil, "Restrict the build to these symbols")
	return cmd
}

func runBuild(cmd *cobra.Command, root *rootOptions, opts *buildOptions) error {
	cfg := root.cfg
	if opts.concurrency > 0 {
		cfg.Build.Concurrency = opts.concurrency
	}
	if len(opts.symbols) > 0 {
		cfg.Build.Symbols = normalizeSymbols(opts.symbols)
	}
	if opts.schedule != "" {
		cfg.Build.Schedule = opts.schedule
	}

	ctx := cmd.Context()
	a, err := newAPIApp(ctx, cfg)
	if err != nil {
		return err
	}
	defer a.Close()

	builder := barcache.NewBuilder(a.alpaca, a.store, cfg.BuilderConfig())
	out := cmd.OutOrStdout()

	if cfg.Build.Schedule == "" {
		return buildOnce(ctx, builder, out)
	}
	return buildOnSchedule(ctx, cfg.Build.Schedule, builder, out, a.logger)
}

func buildOnce(ctx context.Context, builder *barcache.Builder, out io.Writer) error {
	report, err := builder.Build(ctx)
	if err != nil {
		return err
	}

	fmt.Fprintf(out, "Trading days: %d (%s .. %s)\n",
		len(report.Days), report.Days[len(report.Days)-1].Date, report.Days[0].Date)
	fmt.Fprintf(out, "Symbols:      %d\n", report.Symbols)
	fmt.Fprintf(out, "Fetched:      %d (%d without bars)\n", report.Fetched, report.Empty)
	fmt.Fprintf(out, "Cached:       %d\n", report.Cached)
	if report.Summary.Failed > 0 {
		fmt.Fprintf(out, "Failed:       %d\n", report.Summary.Failed)
		return fmt.Errorf("%d symbols failed: %w", report.Summary.Failed, report.Summary.Err())
	}
	return nil
}

// buildOnSchedule runs a build on every cron tick until ctx is done. A tick
// that fires while the previous build is still running is skipped.
func buildOnSchedule(ctx context.Context, spec string, builder *barcache.Builder, out io.Writer, logger zerolog.Logger) error {
	cronLog := cronLogger{logger: logging.NewLogger("scheduler")}
	c := cron.New(
		cron.WithLogger(cronLog),
		cron.WithChain(cron.Recover(cronLog), cron.SkipIfStillRunning(cronLog)),
	)

	if _, err := c.AddFunc(spec, func() {
		if err := buildOnce(ctx, builder, out); err != nil {
			logger.Error().Err(err).Msg("Scheduled build failed")
		}
	}); err != nil {
		return fmt.Errorf("invalid schedule %q: %w", spec, err)
	}

	c.Start()
	logger.Info().
		Str("schedule", spec).
		Time("next", c.Entries()[0].Next).
		Msg("Waiting for scheduled builds")

	<-ctx.Done()
	<-c.Stop().Done()
	logger.Info().Msg("Scheduler stopped")
	return nil
}

// cronLogger adapts zerolog to cron.Logger.
type cronLogger struct {
	logger zerolog.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.logger.Debug().Fields(keysAndValues).Msg(msg)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.logger.Error().Err(err).Fields(keysAndValues).Msg(msg)
}

func normalizeSymbols(in []string) []string {
	out := make([]string, 0, len(in))
	for _, s := range in {
		if s = strings.ToUpper(strings.TrimSpace(s)); s != "" {
			out = append(out, s)
		}
	}
	return out
}
