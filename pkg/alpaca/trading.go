package alpaca

import (
	"context"
	"net/url"
	"slices"
	"time"
)

// BigBoard lists the exchanges whose assets count as equities.
var BigBoard = []string{"ARCA", "NASDAQ", "NYSE", "BATS"}

// AccountHistory returns the account's portfolio history.
func (c *Client) AccountHistory(ctx context.Context, req HistoryRequest) (*PortfolioHistory, error) {
	params := url.Values{}
	if req.Period != "" {
		params.Set("period", req.Period)
	}
	if req.Timeframe != "" {
		params.Set("timeframe", req.Timeframe)
	}
	if !req.DateEnd.IsZero() {
		params.Set("date_end", req.DateEnd.In(c.loc).Format(DateLayout))
	}

	rawURL := c.config.APIHost + "/v2/account/portfolio/history"
	if len(params) > 0 {
		rawURL += "?" + params.Encode()
	}

	var out PortfolioHistory
	if err := c.getJSON(ctx, "account history", rawURL, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Asset returns a single asset by id or symbol.
func (c *Client) Asset(ctx context.Context, id string) (*Asset, error) {
	var out Asset
	if err := c.getJSON(ctx, "asset", c.config.APIHost+"/v2/assets/"+url.PathEscape(id), &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Assets returns every asset known to the API.
func (c *Client) Assets(ctx context.Context) ([]Asset, error) {
	var out []Asset
	if err := c.getJSON(ctx, "assets", c.config.APIHost+"/v2/assets", &out); err != nil {
		return nil, err
	}
	return out, nil
}

// EquityAssets returns the active, tradable assets listed on BigBoard exchanges.
func (c *Client) EquityAssets(ctx context.Context) ([]Asset, error) {
	all, err := c.Assets(ctx)
	if err != nil {
		return nil, err
	}
	return FilterEquities(all), nil
}

// FilterEquities keeps the active, tradable assets listed on BigBoard exchanges.
func FilterEquities(assets []Asset) []Asset {
	out := make([]Asset, 0, len(assets))
	for _, a := range assets {
		if !a.Tradable || a.Status != "active" {
			continue
		}
		if !slices.Contains(BigBoard, a.Exchange) {
			continue
		}
		out = append(out, a)
	}
	return out
}

// Calendar returns the market sessions between start and end, oldest first.
func (c *Client) Calendar(ctx context.Context, start, end time.Time) ([]CalendarDay, error) {
	params := url.Values{
		"start": {c.FormatTime(start)},
		"end":   {c.FormatTime(end)},
	}

	var out []CalendarDay
	if err := c.getJSON(ctx, "calendar", c.config.APIHost+"/v2/calendar?"+params.Encode(), &out); err != nil {
		return nil, err
	}
	return out, nil
}

// Clock returns the market clock.
func (c *Client) Clock(ctx context.Context) (*Clock, error) {
	var out Clock
	if err := c.getJSON(ctx, "clock", c.config.APIHost+"/v2/clock", &out); err != nil {
		return nil, err
	}
	return &out, nil
}
