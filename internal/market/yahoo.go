package market

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	finance "github.com/piquette/finance-go"
	"github.com/piquette/finance-go/chart"
	"github.com/piquette/finance-go/datetime"

	"github.com/dgnsrekt/psx_forecast/internal/types"
)

// barIterator is the subset of *chart.Iter consumed by collect.
type barIterator interface {
	Next() bool
	Bar() *finance.ChartBar
	Err() error
}

// YahooSource reads daily bars from Yahoo Finance.
type YahooSource struct {
	timeout time.Duration
	open    func(p *chart.Params) barIterator
}

// remoteErrorMarker prefixes finance-go errors built from a Yahoo response,
// such as a 404 for an unknown symbol or a chart without results.
const remoteErrorMarker = "code: remote-error"

// upstreamError is a Yahoo response that signals an outage rather than a
// bad symbol.
type upstreamError struct {
	Status int
}

func (e *upstreamError) Error() string {
	return fmt.Sprintf("yahoo upstream status %d", e.Status)
}

// statusTransport fails requests whose response is a server error or a rate
// limit, so they surface as transport errors instead of finance-go's generic
// remote error.
type statusTransport struct {
	base http.RoundTripper
}

func (t statusTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	resp, err := t.base.RoundTrip(req)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode >= http.StatusInternalServerError || resp.StatusCode == http.StatusTooManyRequests {
		resp.Body.Close()
		return nil, &upstreamError{Status: resp.StatusCode}
	}
	return resp, nil
}

// NewYahooSource creates a Yahoo backed Source. timeout bounds each request.
func NewYahooSource(timeout time.Duration) *YahooSource {
	return newYahooSourceAt(timeout, finance.YFinURL)
}

func newYahooSourceAt(timeout time.Duration, baseURL string) *YahooSource {
	client := chart.Client{B: &finance.BackendConfiguration{
		Type:       finance.YFinBackend,
		URL:        baseURL,
		HTTPClient: &http.Client{Transport: statusTransport{base: http.DefaultTransport}},
	}}
	return &YahooSource{
		timeout: timeout,
		open:    func(p *chart.Params) barIterator { return client.Get(p) },
	}
}

func (y *YahooSource) History(ctx context.Context, symbol string, from, to time.Time) ([]Bar, error) {
	if symbol == "" {
		return nil, types.NewError(types.CodeValidation, "ticker is required", nil)
	}
	if y.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, y.timeout)
		defer cancel()
	}

	p := &chart.Params{
		Symbol:   symbol,
		Start:    datetime.New(&from),
		End:      datetime.New(&to),
		Interval: datetime.OneDay,
	}
	p.Context = &ctx

	start := time.Now()
	bars, err := collect(y.open(p))
	if err != nil {
		slog.Warn("market history failed", "symbol", symbol, "error", err)
		return nil, classify(ctx, err)
	}
	slog.Debug("market history fetched", "symbol", symbol, "bars", len(bars), "duration_ms", time.Since(start).Milliseconds())
	return bars, nil
}

func collect(iter barIterator) ([]Bar, error) {
	var bars []Bar
	for iter.Next() {
		b := iter.Bar()
		if b == nil || b.Close.IsZero() {
			continue
		}
		bars = append(bars, Bar{
			Date:  time.Unix(int64(b.Timestamp), 0).UTC(),
			Close: b.Close,
		})
	}
	if err := iter.Err(); err != nil {
		return nil, err
	}
	return sortBars(bars), nil
}

// classify separates a symbol Yahoo does not know from a failure to reach
// Yahoo at all.
func classify(ctx context.Context, err error) error {
	if ctx.Err() != nil {
		return types.NewError(types.CodeMarketUnavailable, "market data request timed out", err)
	}
	var yfin *finance.YfinError
	if errors.As(err, &yfin) {
		return types.NewError(types.CodeInvalidTicker, InvalidTickerMessage, err)
	}
	var upstream *upstreamError
	if errors.As(err, &upstream) {
		return types.NewError(types.CodeMarketUnavailable, "market data service unavailable", err)
	}
	if strings.Contains(err.Error(), remoteErrorMarker) {
		return types.NewError(types.CodeInvalidTicker, InvalidTickerMessage, err)
	}
	return types.NewError(types.CodeMarketUnavailable, "market data service unavailable", err)
}
