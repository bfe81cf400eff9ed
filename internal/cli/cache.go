package cli

import (
	"encoding/json"
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/Sternrassler/marketbars/pkg/barcache"
)

func newCleanCommand(root *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "clean",
		Short: "Delete cached days without bars",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			a, err := newStoreApp(ctx, root.cfg)
			if err != nil {
				return err
			}
			defer a.Close()

			report, err := barcache.Prune(ctx, a.store)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			for _, k := range report.Deleted {
				fmt.Fprintf(out, "Deleted %s/%s\n", k.Symbol, k.Date)
			}
			fmt.Fprintf(out, "Scanned %d, deleted %d, invalid %d\n",
				report.Scanned, len(report.Deleted), len(report.Invalid))
			return nil
		},
	}
}

func newStatsCommand(root *rootOptions) *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "stats",
		Short: "Show cached days per symbol",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			a, err := newStoreApp(ctx, root.cfg)
			if err != nil {
				return err
			}
			defer a.Close()

			summary, err := barcache.Summarize(ctx, a.store)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if asJSON {
				enc := json.NewEncoder(out)
				enc.SetIndent("", "  ")
				if summary == nil {
					summary = []barcache.SymbolSummary{}
				}
				return enc.Encode(summary)
			}

			tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "SYMBOL\tDAYS\tFIRST\tLAST")
			total := 0
			for _, s := range summary {
				fmt.Fprintf(tw, "%s\t%d\t%s\t%s\n", s.Symbol, s.Days, s.First, s.Last)
				total += s.Days
			}
			if err := tw.Flush(); err != nil {
				return err
			}
			fmt.Fprintf(out, "%d symbols, %d days\n", len(summary), total)
			return nil
		},
	}

	cmd.Flags().BoolVar(&asJSON, "json", false, "Output as JSON")
	return cmd
}
