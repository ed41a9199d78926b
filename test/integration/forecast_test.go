//go:build integration

package integration

import (
	"net/http"
	"regexp"
	"testing"
)

var displayDate = regexp.MustCompile(`^\d{2}-\d{2}-\d{4}$`)

type forecastRun struct {
	ID     string `json:"id"`
	Result struct {
		Ticker   string `json:"ticker"`
		Symbol   string `json:"symbol"`
		Forecast []struct {
			Display string  `json:"display"`
			Value   float64 `json:"value"`
		} `json:"forecast"`
		Recommendation struct {
			Trend   string `json:"trend"`
			Message string `json:"message"`
		} `json:"recommendation"`
	} `json:"result"`
}

func TestForecastLifecycle(t *testing.T) {
	resp := env.POST(t, "/api/v1/forecast", map[string]string{"ticker": env.Ticker})
	requireStatus(t, resp, http.StatusOK)
	run := decodeJSON[forecastRun](t, resp)

	requireField(t, run.Result.Symbol, env.Ticker+".KA", "symbol")
	if len(run.Result.Forecast) == 0 {
		t.Fatalf("forecast has no points")
	}
	for _, p := range run.Result.Forecast {
		if !displayDate.MatchString(p.Display) {
			t.Fatalf("forecast date %q not DD-MM-YYYY", p.Display)
		}
	}
	if tr := run.Result.Recommendation.Trend; tr != "up" && tr != "down" {
		t.Fatalf("trend = %q; want up or down", tr)
	}

	resp = env.GET(t, "/api/v1/forecasts?ticker="+env.Ticker)
	requireStatus(t, resp, http.StatusOK)
	listing := decodeJSON[struct {
		Forecasts []struct {
			ID string `json:"id"`
		} `json:"forecasts"`
	}](t, resp)
	found := false
	for _, f := range listing.Forecasts {
		found = found || f.ID == run.ID
	}
	if !found {
		t.Fatalf("forecast %s missing from archive listing", run.ID)
	}

	resp = env.GET(t, "/forecasts/"+run.ID+"/chart")
	requireStatus(t, resp, http.StatusOK)
	resp.Body.Close()

	resp = env.DELETE(t, "/api/v1/forecasts/"+run.ID)
	requireStatus(t, resp, http.StatusOK)
	resp.Body.Close()

	resp = env.GET(t, "/api/v1/forecasts/"+run.ID)
	requireStatus(t, resp, http.StatusNotFound)
	resp.Body.Close()
}

func TestForecastUnknownTicker(t *testing.T) {
	resp := env.POST(t, "/api/v1/forecast", map[string]string{"ticker": "ZZZZNOTATICKER"})
	requireStatus(t, resp, http.StatusUnprocessableEntity)
	resp.Body.Close()
}
