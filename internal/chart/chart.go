// Package chart renders forecast results as interactive ECharts pages.
package chart

import (
	"io"

	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/opts"

	"github.com/dgnsrekt/psx_forecast/internal/forecast"
)

const (
	historyColor  = "blue"
	forecastColor = "red"
	dateLayout    = "2006-01-02"
)

// Forecast builds the historical plus forecast line chart for res.
func Forecast(res forecast.Result) *charts.Line {
	line := charts.NewLine()
	line.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{
			PageTitle: "Forecast for " + res.Ticker,
			Width:     "100%",
			Height:    "460px",
		}),
		charts.WithTitleOpts(opts.Title{Title: "Forecast for " + res.Ticker}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true), Trigger: "axis"}),
		charts.WithLegendOpts(opts.Legend{Show: opts.Bool(true), Orient: "horizontal", Top: "top", Right: "4%"}),
		charts.WithXAxisOpts(opts.XAxis{Name: "Date"}),
		charts.WithYAxisOpts(opts.YAxis{Name: "Closing Price", Scale: opts.Bool(true)}),
	)

	axis, historical, future := Series(res)
	line.SetXAxis(axis).
		AddSeries("Historical Data", historical,
			charts.WithLineStyleOpts(opts.LineStyle{Color: historyColor}),
			charts.WithItemStyleOpts(opts.ItemStyle{Color: historyColor}),
			charts.WithLineChartOpts(opts.LineChart{ShowSymbol: opts.Bool(false)}),
		).
		AddSeries("Future Forecast", future,
			charts.WithLineStyleOpts(opts.LineStyle{Color: forecastColor, Type: "dashed"}),
			charts.WithItemStyleOpts(opts.ItemStyle{Color: forecastColor}),
			charts.WithLineChartOpts(opts.LineChart{ShowSymbol: opts.Bool(true)}),
		)
	return line
}

// Series lays history and forecast on one date axis. Each series is padded
// with "-" (an ECharts gap) where it has no value; the forecast starts at the
// last historical point so the two lines join.
func Series(res forecast.Result) ([]string, []opts.LineData, []opts.LineData) {
	n := len(res.History) + len(res.Forecast)
	axis := make([]string, 0, n)
	historical := make([]opts.LineData, 0, n)
	future := make([]opts.LineData, 0, n)

	for i, p := range res.History {
		axis = append(axis, p.Date.Format(dateLayout))
		historical = append(historical, opts.LineData{Value: round2(p.Value)})
		if i == len(res.History)-1 && len(res.Forecast) > 0 {
			future = append(future, opts.LineData{Value: round2(p.Value)})
		} else {
			future = append(future, opts.LineData{Value: "-"})
		}
	}
	for _, p := range res.Forecast {
		axis = append(axis, p.Date.Format(dateLayout))
		historical = append(historical, opts.LineData{Value: "-"})
		future = append(future, opts.LineData{Value: round2(p.Value)})
	}
	return axis, historical, future
}

// Render writes a standalone HTML page for res.
func Render(w io.Writer, res forecast.Result) error {
	return Forecast(res).Render(w)
}

func round2(v float64) float64 {
	if v < 0 {
		return -float64(int64(-v*100+0.5)) / 100
	}
	return float64(int64(v*100+0.5)) / 100
}
