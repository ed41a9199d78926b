// Package timeseries holds the dated float series fed to the forecasting model.
package timeseries

import (
	"sort"
	"time"

	"github.com/dgnsrekt/psx_forecast/internal/market"
)

// Observation is one dated value.
type Observation struct {
	Date  time.Time `json:"date"`
	Value float64   `json:"value"`
}

// Series is ordered by Date ascending.
type Series []Observation

// DisplayDateLayout is the day-first format used in forecast tables.
const DisplayDateLayout = "02-01-2006"

// FromBars converts market bars into a sorted series.
func FromBars(bars []market.Bar) Series {
	s := make(Series, 0, len(bars))
	for _, b := range bars {
		v, _ := b.Close.Float64()
		s = append(s, Observation{Date: b.Date, Value: v})
	}
	sort.SliceStable(s, func(i, j int) bool { return s[i].Date.Before(s[j].Date) })
	return s
}

// Values returns the observation values in order.
func (s Series) Values() []float64 {
	out := make([]float64, len(s))
	for i, p := range s {
		out[i] = p.Value
	}
	return out
}

// Last returns the final point. ok is false for an empty series.
func (s Series) Last() (Observation, bool) {
	if len(s) == 0 {
		return Observation{}, false
	}
	return s[len(s)-1], true
}

// MonthEnd returns the last calendar day of t's month, at midnight UTC.
func MonthEnd(t time.Time) time.Time {
	y, m, _ := t.UTC().Date()
	return time.Date(y, m+1, 0, 0, 0, 0, 0, time.UTC)
}

// MonthEnds returns the n month-end dates strictly after after.
func MonthEnds(after time.Time, n int) []time.Time {
	out := make([]time.Time, 0, n)
	cur := MonthEnd(after)
	if !cur.After(after) {
		y, m, _ := cur.Date()
		cur = time.Date(y, m+2, 0, 0, 0, 0, 0, time.UTC)
	}
	for len(out) < n {
		out = append(out, cur)
		y, m, _ := cur.Date()
		cur = time.Date(y, m+2, 0, 0, 0, 0, 0, time.UTC)
	}
	return out
}

// ResampleMonthly keeps the last observation of each calendar month,
// labelled with the month end. Months inside the range that have no
// observation repeat the previous month's value.
func ResampleMonthly(s Series) Series {
	if len(s) == 0 {
		return nil
	}
	var out Series
	for _, p := range s {
		label := MonthEnd(p.Date)
		if n := len(out); n > 0 && out[n-1].Date.Equal(label) {
			out[n-1].Value = p.Value
			continue
		}
		if n := len(out); n > 0 {
			// forward fill gaps
			for _, gap := range MonthEnds(out[n-1].Date, monthsBetween(out[n-1].Date, label)-1) {
				out = append(out, Observation{Date: gap, Value: out[len(out)-1].Value})
			}
		}
		out = append(out, Observation{Date: label, Value: p.Value})
	}
	return out
}

func monthsBetween(a, b time.Time) int {
	ay, am, _ := a.Date()
	by, bm, _ := b.Date()
	return (by-ay)*12 + int(bm-am)
}
