package barcache

import (
	"context"
	"fmt"
)

// SymbolSummary counts the cached days of one symbol.
type SymbolSummary struct {
	Symbol string `json:"symbol"`
	Days   int    `json:"days"`
	First  string `json:"first"`
	Last   string `json:"last"`
}

// Summarize lists the cached days per symbol, ordered by symbol.
func Summarize(ctx context.Context, store Store) ([]SymbolSummary, error) {
	keys, err := store.Keys(ctx)
	if err != nil {
		return nil, fmt.Errorf("list cache: %w", err)
	}

	var out []SymbolSummary
	for _, k := range keys {
		if n := len(out); n > 0 && out[n-1].Symbol == k.Symbol {
			out[n-1].Days++
			out[n-1].Last = k.Date
			continue
		}
		out = append(out, SymbolSummary{Symbol: k.Symbol, Days: 1, First: k.Date, Last: k.Date})
	}
	return out, nil
}
