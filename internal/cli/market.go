package cli

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"
)

func newQuoteCommand(root *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "quote SYMBOL",
		Short: "Print the latest quote and trade of a symbol",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			a, err := newAPIApp(ctx, root.cfg)
			if err != nil {
				return err
			}
			defer a.Close()

			symbol := strings.ToUpper(args[0])
			quote, err := a.alpaca.LatestQuote(ctx, symbol)
			if err != nil {
				return err
			}
			trade, err := a.alpaca.LatestTrade(ctx, symbol)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "%s\n", quote.Symbol)
			fmt.Fprintf(out, "  bid   %.4f x %d\n", quote.Quote.BidPrice, quote.Quote.BidSize)
			fmt.Fprintf(out, "  ask   %.4f x %d\n", quote.Quote.AskPrice, quote.Quote.AskSize)
			fmt.Fprintf(out, "  last  %.4f x %d at %s\n", trade.Trade.Price, trade.Trade.Size, a.alpaca.FormatTime(trade.Trade.Timestamp))
			return nil
		},
	}
}

func newClockCommand(root *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "clock",
		Short: "Show whether the market is open",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			a, err := newAPIApp(ctx, root.cfg)
			if err != nil {
				return err
			}
			defer a.Close()

			clock, err := a.alpaca.Clock(ctx)
			if err != nil {
				return err
			}

			state := "closed"
			if clock.IsOpen {
				state = "open"
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Market is %s\n", state)
			fmt.Fprintf(out, "  next open   %s\n", clock.NextOpen.Format(time.RFC3339))
			fmt.Fprintf(out, "  next close  %s\n", clock.NextClose.Format(time.RFC3339))
			return nil
		},
	}
}
