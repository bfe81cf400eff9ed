package alpaca

import (
	"context"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"
)

// Bar request defaults.
const (
	DefaultTimeframe = "1Min"
	BarsPageLimit    = 10000
	BarsAdjustment   = "all"
)

func (c *Client) stockURL(symbol, suffix string) string {
	return c.config.DataHost + "/v2/stocks/" + url.PathEscape(symbol) + suffix
}

// LatestQuote returns the latest quote of symbol.
func (c *Client) LatestQuote(ctx context.Context, symbol string) (*LatestQuote, error) {
	var out LatestQuote
	if err := c.getJSON(ctx, "latest quote", c.stockURL(symbol, "/quotes/latest"), &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// LatestTrades returns the latest trade of every symbol in one call.
func (c *Client) LatestTrades(ctx context.Context, symbols []string) (*LatestTrades, error) {
	if len(symbols) == 0 {
		return nil, ErrNoSymbols
	}

	params := url.Values{"symbols": {strings.Join(symbols, ",")}}
	rawURL := c.config.DataHost + "/v2/stocks/trades/latest?" + params.Encode()

	var out LatestTrades
	if err := c.getJSON(ctx, "latest trades", rawURL, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// LatestTrade returns the latest trade of symbol.
func (c *Client) LatestTrade(ctx context.Context, symbol string) (*LatestTrade, error) {
	var out LatestTrade
	if err := c.getJSON(ctx, "latest trade", c.stockURL(symbol, "/trades/latest"), &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Snapshot returns the last completed daily bar of symbol: the previous daily
// bar when the current daily bar belongs to today, else the daily bar.
func (c *Client) Snapshot(ctx context.Context, symbol string) (*Bar, error) {
	var out Snapshot
	if err := c.getJSON(ctx, "snapshot", c.stockURL(symbol, "/snapshot"), &out); err != nil {
		return nil, err
	}
	if out.DailyBar == nil {
		return nil, fmt.Errorf("snapshot %s: no daily bar", symbol)
	}

	if sameDay(out.DailyBar.Timestamp, c.now(), c.loc) {
		if out.PrevDailyBar == nil {
			return nil, fmt.Errorf("snapshot %s: no previous daily bar", symbol)
		}
		return out.PrevDailyBar, nil
	}
	return out.DailyBar, nil
}

func sameDay(a, b time.Time, loc *time.Location) bool {
	ay, am, ad := a.In(loc).Date()
	by, bm, bd := b.In(loc).Date()
	return ay == by && am == bm && ad == bd
}

// Bars returns every bar of symbol between start and end, following
// next_page_token until the API reports no further page.
func (c *Client) Bars(ctx context.Context, symbol string, start, end time.Time, timeframe string) ([]Bar, error) {
	if timeframe == "" {
		timeframe = DefaultTimeframe
	}

	params := url.Values{
		"timeframe":  {timeframe},
		"start":      {c.FormatTime(start)},
		"end":        {c.FormatTime(end)},
		"limit":      {strconv.Itoa(BarsPageLimit)},
		"adjustment": {BarsAdjustment},
	}

	bars := []Bar{}
	pages := 0
	for {
		var page barsPage
		if err := c.getJSON(ctx, "bars", c.stockURL(symbol, "/bars")+"?"+params.Encode(), &page); err != nil {
			return nil, err
		}
		pages++
		bars = append(bars, page.Bars...)

		if page.NextPageToken == nil || *page.NextPageToken == "" {
			break
		}
		params.Set("page_token", *page.NextPageToken)
	}

	c.logger.Debug().
		Str("symbol", symbol).
		Int("bars", len(bars)).
		Int("pages", pages).
		Msg("Bars loaded")

	return bars, nil
}
