// Package cli implements the marketbars command line.
package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/Sternrassler/marketbars/internal/config"
	"github.com/Sternrassler/marketbars/pkg/logging"
)

// rootOptions is shared by every subcommand.
type rootOptions struct {
	configPath string
	logLevel   string
	pretty     bool
	cfg        *config.Config
}

// NewRootCommand creates the marketbars command tree.
func NewRootCommand(version string) *cobra.Command {
	opts := &rootOptions{}

	cmd := &cobra.Command{
		Use:   "marketbars",
		Short: "Cache minute bars of recent trading days",
		Long: `marketbars downloads one-minute bars for every tradable US equity over the
most recent trading sessions and keeps them in a local (or redis) cache.

Get started:
  marketbars build            Fill the cache with missing trading days
  marketbars clean            Delete cached days without bars
  marketbars stats            Show cached days per symbol
  marketbars quote AAPL       Print the latest quote of a symbol
  marketbars serve            Run the health, metrics and API proxy server`,
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return opts.load()
		},
		PersistentPostRunE: func(_ *cobra.Command, _ []string) error {
			return logging.Close()
		},
	}
	cmd.CompletionOptions.DisableDefaultCmd = true

	flags := cmd.PersistentFlags()
	flags.StringVarP(&opts.configPath, "config", "c", "", "YAML configuration file")
	flags.StringVar(&opts.logLevel, "log-level", "", "Log level (debug, info, warn, error)")
	flags.BoolVar(&opts.pretty, "pretty", false, "Human-readable console logs")

	cmd.AddCommand(
		newBuildCommand(opts),
		newCleanCommand(opts),
		newStatsCommand(opts),
		newQuoteCommand(opts),
		newClockCommand(opts),
		newServeCommand(opts),
	)
	return cmd
}

func (o *rootOptions) load() error {
	cfg, err := config.Load(o.configPath)
	if err != nil {
		return err
	}
	if o.logLevel != "" {
		cfg.Log.Level = o.logLevel
	}
	if o.pretty {
		cfg.Log.Pretty = true
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	logging.Setup(cfg.LoggingConfig())
	o.cfg = cfg
	return nil
}

// Execute runs the command tree until it finishes or the process is
// interrupted.
func Execute(version string) {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := NewRootCommand(version).ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		stop()
		os.Exit(1)
	}
}
