// Package market fetches daily closing prices for exchange-listed tickers.
package market

import (
	"context"
	"sort"
	"strings"
	"time"

	"github.com/dgnsrekt/psx_forecast/internal/types"
	"github.com/shopspring/decimal"
)

// DefaultSuffix is the Yahoo suffix for the Pakistan Stock Exchange.
const DefaultSuffix = ".KA"

// InvalidTickerMessage is reported whenever a ticker resolves to no prices.
const InvalidTickerMessage = "Invalid ticker symbol."

// Bar is one daily close.
type Bar struct {
	Date  time.Time       `json:"date"`
	Close decimal.Decimal `json:"close"`
}

// Source returns daily closes for a fully qualified symbol (e.g. "HUBC.KA").
type Source interface {
	History(ctx context.Context, symbol string, from, to time.Time) ([]Bar, error)
}

// NormalizeTicker trims and upper-cases a user supplied ticker and strips a
// trailing exchange suffix if the user typed one.
func NormalizeTicker(ticker, suffix string) string {
	t := strings.ToUpper(strings.TrimSpace(ticker))
	if s := strings.ToUpper(suffix); s != "" {
		t = strings.TrimSuffix(t, s)
	}
	return t
}

// Symbol qualifies a user ticker with the exchange suffix exactly once.
func Symbol(ticker, suffix string) string {
	t := NormalizeTicker(ticker, suffix)
	if t == "" {
		return ""
	}
	return t + strings.ToUpper(suffix)
}

// Period returns the [from, to] window covering the given number of years up to now.
func Period(now time.Time, years int) (time.Time, time.Time) {
	return now.AddDate(-years, 0, 0), now
}

// LatestClose returns the most recent close for symbol over the last week.
func LatestClose(ctx context.Context, src Source, symbol string, now time.Time) (decimal.Decimal, error) {
	bars, err := src.History(ctx, symbol, now.AddDate(0, 0, -7), now)
	if err != nil {
		return decimal.Zero, err
	}
	if len(bars) == 0 {
		return decimal.Zero, types.NewError(types.CodeInvalidTicker, InvalidTickerMessage, nil)
	}
	return bars[len(bars)-1].Close, nil
}

// sortBars orders bars by date and drops duplicate days, keeping the last seen.
func sortBars(bars []Bar) []Bar {
	sort.SliceStable(bars, func(i, j int) bool { return bars[i].Date.Before(bars[j].Date) })
	out := bars[:0]
	for _, b := range bars {
		if n := len(out); n > 0 && sameDay(out[n-1].Date, b.Date) {
			out[n-1] = b
			continue
		}
		out = append(out, b)
	}
	return out
}

func sameDay(a, b time.Time) bool {
	ay, am, ad := a.Date()
	by, bm, bd := b.Date()
	return ay == by && am == bm && ad == bd
}
