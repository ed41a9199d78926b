package chart

import (
	"bytes"
	"regexp"
	"strings"
	"testing"
	"time"

	"github.com/dgnsrekt/psx_forecast/internal/forecast"
	"github.com/dgnsrekt/psx_forecast/internal/timeseries"
)

func sampleResult() forecast.Result {
	month := func(m time.Month) time.Time { return timeseries.MonthEnd(time.Date(2024, m, 1, 0, 0, 0, 0, time.UTC)) }
	return forecast.Result{
		Ticker: "HUBC",
		History: timeseries.Series{
			{Date: month(1), Value: 101.234},
			{Date: month(2), Value: 102.5},
		},
		Forecast: []forecast.Point{
			{Date: month(3), Value: 103.456},
			{Date: month(4), Value: 104},
		},
	}
}

func TestSeriesAlignment(t *testing.T) {
	axis, hist, fut := Series(sampleResult())
	if len(axis) != 4 || len(hist) != 4 || len(fut) != 4 {
		t.Fatalf("Series() lengths = %d/%d/%d; want 4/4/4", len(axis), len(hist), len(fut))
	}
	if axis[0] != "2024-01-31" || axis[3] != "2024-04-30" {
		t.Fatalf("axis = %v", axis)
	}
	if hist[0].Value != 101.23 || hist[2].Value != "-" {
		t.Fatalf("historical = %v", hist)
	}
	if fut[0].Value != "-" || fut[1].Value != 102.5 || fut[2].Value != 103.46 {
		t.Fatalf("forecast = %v", fut)
	}
}

func TestRenderIncludesSeriesNames(t *testing.T) {
	var buf bytes.Buffer
	if err := Render(&buf, sampleResult()); err != nil {
		t.Fatalf("Render() error = %v", err)
	}
	out := buf.String()
	for _, want := range []string{"Forecast for HUBC", "Historical Data", "Future Forecast", "dashed"} {
		if !strings.Contains(out, want) {
			t.Fatalf("rendered chart missing %q", want)
		}
	}
}

func TestRenderLegendAboveRight(t *testing.T) {
	var buf bytes.Buffer
	if err := Render(&buf, sampleResult()); err != nil {
		t.Fatalf("Render() error = %v", err)
	}
	legend := regexp.MustCompile(`"legend":\{[^{}]*\}`).FindString(buf.String())
	if legend == "" {
		t.Fatalf("rendered chart has no legend options")
	}
	for _, want := range []string{`"top":"top"`, `"right":"4%"`, `"orient":"horizontal"`} {
		if !strings.Contains(legend, want) {
			t.Fatalf("legend = %s; missing %s", legend, want)
		}
	}
}
