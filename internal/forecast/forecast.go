// Package forecast turns a ticker into a monthly SARIMA forecast and a
// hold/sell recommendation.
package forecast

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/shopspring/decimal"
	"gonum.org/v1/gonum/stat"

	"github.com/dgnsrekt/psx_forecast/internal/market"
	"github.com/dgnsrekt/psx_forecast/internal/sarima"
	"github.com/dgnsrekt/psx_forecast/internal/timeseries"
	"github.com/dgnsrekt/psx_forecast/internal/types"
)

// DefaultOrder is the seasonal model fitted to monthly closes.
var DefaultOrder = sarima.Order{P: 1, D: 1, Q: 1, SP: 1, SD: 1, SQ: 1, Period: 12}

const ljungBoxLags = 12

const (
	TrendUp   = "up"
	TrendDown = "down"

	upAdvice   = "The forecast suggests a potential upward trend. Consider holding or buying."
	downAdvice = "The forecast suggests a potential downward trend. Consider selling or monitoring closely."
)

// Point is one forecast month.
type Point struct {
	Date    time.Time `json:"date"`
	Display string    `json:"display"`
	Value   float64   `json:"value"`
}

// Recommendation compares the last forecast value to the last observed month.
type Recommendation struct {
	Trend   string `json:"trend"`
	Message string `json:"message"`
}

// Diagnostics summarises the fitted model.
type Diagnostics struct {
	Order        string              `json:"order"`
	Coefficients sarima.Coefficients `json:"coefficients"`
	Sigma2       float64             `json:"sigma2"`
	AIC          float64             `json:"aic"`
	BIC          float64             `json:"bic"`
	Observations int                 `json:"observations"`

	// LjungBox is the portmanteau Q of the residuals up to LjungBoxLags.
	LjungBox     float64 `json:"ljung_box_q"`
	LjungBoxLags int     `json:"ljung_box_lags"`
}

// Result is a complete forecast run.
type Result struct {
	Ticker         string            `json:"ticker"`
	Symbol         string            `json:"symbol"`
	CurrentPrice   decimal.Decimal   `json:"current_price"`
	History        timeseries.Series `json:"history"`
	Forecast       []Point           `json:"forecast"`
	Recommendation Recommendation    `json:"recommendation"`
	Diagnostics    Diagnostics       `json:"diagnostics"`
	GeneratedAt    time.Time         `json:"generated_at"`
}

// Settings configure a Forecaster.
type Settings struct {
	Suffix       string
	HistoryYears int
	Steps        int
	Order        sarima.Order
}

// Forecaster runs the fetch, resample, fit and forecast pipeline.
type Forecaster struct {
	src      market.Source
	settings Settings
	now      func() time.Time
}

// New creates a Forecaster. Zero settings fall back to the dashboard defaults.
func New(src market.Source, settings Settings) *Forecaster {
	if settings.Suffix == "" {
		settings.Suffix = market.DefaultSuffix
	}
	if settings.HistoryYears <= 0 {
		settings.HistoryYears = 5
	}
	if settings.Steps <= 0 {
		settings.Steps = 6
	}
	if settings.Order == (sarima.Order{}) {
		settings.Order = DefaultOrder
	}
	return &Forecaster{src: src, settings: settings, now: time.Now}
}

// Steps reports the configured horizon.
func (f *Forecaster) Steps() int { return f.settings.Steps }

// Run forecasts ticker with the configured horizon.
func (f *Forecaster) Run(ctx context.Context, ticker string) (Result, error) {
	return f.RunSteps(ctx, ticker, f.settings.Steps)
}

// RunSteps forecasts ticker for steps months.
func (f *Forecaster) RunSteps(ctx context.Context, ticker string, steps int) (Result, error) {
	name := market.NormalizeTicker(ticker, f.settings.Suffix)
	if name == "" {
		return Result{}, types.NewError(types.CodeValidation, "ticker is required", nil)
	}
	if steps <= 0 || steps > 24 {
		return Result{}, types.NewError(types.CodeValidation, "steps must be between 1 and 24", nil)
	}
	symbol := market.Symbol(name, f.settings.Suffix)

	now := f.now()
	from, to := market.Period(now, f.settings.HistoryYears)
	bars, err := f.src.History(ctx, symbol, from, to)
	if err != nil {
		return Result{}, err
	}
	if len(bars) == 0 {
		return Result{}, types.NewError(types.CodeInvalidTicker, market.InvalidTickerMessage, nil)
	}
	current := bars[len(bars)-1].Close

	monthly := timeseries.ResampleMonthly(timeseries.FromBars(bars))
	model := sarima.New(f.settings.Order)
	start := time.Now()
	if err := model.Fit(monthly.Values()); err != nil {
		if errors.Is(err, sarima.ErrTooShort) {
			return Result{}, types.NewError(types.CodeValidation,
				fmt.Sprintf("not enough price history for %s: %d months, need %d", name, len(monthly), f.settings.Order.MinObservations()), err)
		}
		return Result{}, types.NewError(types.CodeModelFailure, "model fit failed", err)
	}
	values, err := model.Predict(steps)
	if err != nil {
		return Result{}, types.NewError(types.CodeModelFailure, "forecast failed", err)
	}
	slog.Debug("forecast fitted", "ticker", name, "months", len(monthly), "order", f.settings.Order.String(),
		"sigma2", model.Sigma2, "duration_ms", time.Since(start).Milliseconds())

	last, _ := monthly.Last()
	dates := timeseries.MonthEnds(last.Date, steps)
	points := make([]Point, steps)
	for i := range points {
		points[i] = Point{Date: dates[i], Display: dates[i].Format(timeseries.DisplayDateLayout), Value: values[i]}
	}

	return Result{
		Ticker:         name,
		Symbol:         symbol,
		CurrentPrice:   current,
		History:        monthly,
		Forecast:       points,
		Recommendation: Recommend(last.Value, values[len(values)-1]),
		Diagnostics: Diagnostics{
			Order:        f.settings.Order.String(),
			Coefficients: model.Coef,
			Sigma2:       model.Sigma2,
			AIC:          model.AIC,
			BIC:          model.BIC,
			Observations: len(monthly),
			LjungBox:     ljungBox(model.Residuals(), ljungBoxLags),
			LjungBoxLags: ljungBoxLags,
		},
		GeneratedAt: now.UTC(),
	}, nil
}

// Recommend is "up" when the final forecast exceeds the last observed value.
func Recommend(lastObserved, lastForecast float64) Recommendation {
	if lastForecast > lastObserved {
		return Recommendation{Trend: TrendUp, Message: upAdvice}
	}
	return Recommendation{Trend: TrendDown, Message: downAdvice}
}

// ljungBox returns the Ljung-Box Q statistic of resid over lags 1..lags.
// Leading zero residuals, which the fit leaves before its first full
// window, are skipped.
func ljungBox(resid []float64, lags int) float64 {
	start := 0
	for start < len(resid) && resid[start] == 0 {
		start++
	}
	x := resid[start:]
	n := len(x)
	if n < 3 {
		return 0
	}
	if lags > n-1 {
		lags = n - 1
	}
	mean := stat.Mean(x, nil)
	denom := 0.0
	for _, v := range x {
		denom += (v - mean) * (v - mean)
	}
	if denom == 0 {
		return 0
	}
	q := 0.0
	for k := 1; k <= lags; k++ {
		num := 0.0
		for t := k; t < n; t++ {
			num += (x[t] - mean) * (x[t-k] - mean)
		}
		rho := num / denom
		q += rho * rho / float64(n-k)
	}
	return float64(n) * float64(n+2) * q
}
