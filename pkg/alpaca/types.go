package alpaca

import (
	"fmt"
	"strconv"
	"time"
)

// Bar is one OHLCV aggregate.
type Bar struct {
	Timestamp  time.Time `json:"t"`
	Open       float64   `json:"o"`
	High       float64   `json:"h"`
	Low        float64   `json:"l"`
	Close      float64   `json:"c"`
	Volume     int64     `json:"v"`
	TradeCount int64     `json:"n,omitempty"`
	VWAP       float64   `json:"vw,omitempty"`
}

// Quote is a top-of-book quote.
type Quote struct {
	Timestamp   time.Time `json:"t"`
	AskExchange string    `json:"ax"`
	AskPrice    float64   `json:"ap"`
	AskSize     int64     `json:"as"`
	BidExchange string    `json:"bx"`
	BidPrice    float64   `json:"bp"`
	BidSize     int64     `json:"bs"`
	Conditions  []string  `json:"c,omitempty"`
	Tape        string    `json:"z,omitempty"`
}

// Trade is a single print.
type Trade struct {
	Timestamp  time.Time `json:"t"`
	Exchange   string    `json:"x"`
	Price      float64   `json:"p"`
	Size       int64     `json:"s"`
	ID         int64     `json:"i"`
	Conditions []string  `json:"c,omitempty"`
	Tape       string    `json:"z,omitempty"`
}

// LatestQuote is the answer of the latest-quote endpoint.
type LatestQuote struct {
	Symbol string `json:"symbol"`
	Quote  Quote  `json:"quote"`
}

// LatestTrade is the answer of the single-symbol latest-trade endpoint.
type LatestTrade struct {
	Symbol string `json:"symbol"`
	Trade  Trade  `json:"trade"`
}

// LatestTrades is the answer of the multi-symbol latest-trades endpoint.
type LatestTrades struct {
	Trades map[string]Trade `json:"trades"`
}

// Snapshot bundles the latest data points of one symbol.
type Snapshot struct {
	LatestTrade  *Trade `json:"latestTrade"`
	LatestQuote  *Quote `json:"latestQuote"`
	MinuteBar    *Bar   `json:"minuteBar"`
	DailyBar     *Bar   `json:"dailyBar"`
	PrevDailyBar *Bar   `json:"prevDailyBar"`
}

// Asset is a tradable instrument.
type Asset struct {
	ID           string `json:"id"`
	Class        string `json:"class"`
	Exchange     string `json:"exchange"`
	Symbol       string `json:"symbol"`
	Name         string `json:"name"`
	Status       string `json:"status"`
	Tradable     bool   `json:"tradable"`
	Marginable   bool   `json:"marginable"`
	Shortable    bool   `json:"shortable"`
	EasyToBorrow bool   `json:"easy_to_borrow"`
	Fractionable bool   `json:"fractionable"`
}

// CalendarDay is one market session.
type CalendarDay struct {
	Date           string `json:"date"`
	Open           string `json:"open"`
	Close          string `json:"close"`
	SessionOpen    string `json:"session_open"`
	SessionClose   string `json:"session_close"`
	SettlementDate string `json:"settlement_date,omitempty"`
}

// SessionWindow returns the extended session bounds of the day. Session times
// are HHMM and are applied in UTC on the session date.
func (d CalendarDay) SessionWindow() (start, end time.Time, err error) {
	day, err := time.Parse(DateLayout, d.Date)
	if err != nil {
		return time.Time{}, time.Time{}, fmt.Errorf("parse calendar date %q: %w", d.Date, err)
	}
	if start, err = atHHMM(day, d.SessionOpen); err != nil {
		return time.Time{}, time.Time{}, fmt.Errorf("session open: %w", err)
	}
	if end, err = atHHMM(day, d.SessionClose); err != nil {
		return time.Time{}, time.Time{}, fmt.Errorf("session close: %w", err)
	}
	return start, end, nil
}

func atHHMM(day time.Time, hhmm string) (time.Time, error) {
	if len(hhmm) != 4 {
		return time.Time{}, fmt.Errorf("invalid HHMM %q", hhmm)
	}
	h, err := strconv.Atoi(hhmm[:2])
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid HHMM %q: %w", hhmm, err)
	}
	m, err := strconv.Atoi(hhmm[2:])
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid HHMM %q: %w", hhmm, err)
	}
	return time.Date(day.Year(), day.Month(), day.Day(), h, m, 0, 0, time.UTC), nil
}

// Clock is the market clock.
type Clock struct {
	Timestamp time.Time `json:"timestamp"`
	IsOpen    bool      `json:"is_open"`
	NextOpen  time.Time `json:"next_open"`
	NextClose time.Time `json:"next_close"`
}

// PortfolioHistory is the account equity time series.
type PortfolioHistory struct {
	Timestamp     []int64   `json:"timestamp"`
	Equity        []float64 `json:"equity"`
	ProfitLoss    []float64 `json:"profit_loss"`
	ProfitLossPct []float64 `json:"profit_loss_pct"`
	BaseValue     float64   `json:"base_value"`
	Timeframe     string    `json:"timeframe"`
}

// HistoryRequest selects the portfolio history window. Empty fields are
// left to the API defaults.
type HistoryRequest struct {
	Period    string
	Timeframe string
	DateEnd   time.Time
}

type barsPage struct {
	Bars          []Bar   `json:"bars"`
	Symbol        string  `json:"symbol"`
	NextPageToken *string `json:"next_page_token"`
}
