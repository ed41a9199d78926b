package portfolio

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/dgnsrekt/psx_forecast/internal/forecast"
	"github.com/dgnsrekt/psx_forecast/internal/market"
	"github.com/dgnsrekt/psx_forecast/internal/types"
)

type memRepo struct {
	mu   sync.Mutex
	docs map[string][]Holding
}

func (m *memRepo) GetPortfolio(ctx context.Context, email string) ([]Holding, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	h, ok := m.docs[email]
	if !ok {
		return nil, ErrNotFound
	}
	return append([]Holding(nil), h...), nil
}

func (m *memRepo) SavePortfolio(ctx context.Context, email string, holdings []Holding) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.docs[email] = append([]Holding(nil), holdings...)
	return nil
}

type priceSource struct {
	prices map[string]float64
}

func (p *priceSource) History(ctx context.Context, symbol string, from, to time.Time) ([]market.Bar, error) {
	v, ok := p.prices[symbol]
	if !ok {
		return nil, nil
	}
	return []market.Bar{{Date: to, Close: decimal.NewFromFloat(v)}}, nil
}

type trendForecaster struct {
	trends map[string]string
}

func (f *trendForecaster) Run(ctx context.Context, ticker string) (forecast.Result, error) {
	trend, ok := f.trends[ticker]
	if !ok {
		return forecast.Result{}, types.NewError(types.CodeInvalidTicker, "Invalid ticker symbol.", nil)
	}
	last, fc := 100.0, 110.0
	if trend == forecast.TrendDown {
		fc = 90
	}
	return forecast.Result{
		Ticker:         ticker,
		Forecast:       []forecast.Point{{Value: fc}},
		Recommendation: forecast.Recommend(last, fc),
	}, nil
}

func newTestService(fc Forecaster, alert AlertFunc) (*Service, *memRepo, *priceSource) {
	repo := &memRepo{docs: map[string][]Holding{}}
	src := &priceSource{prices: map[string]float64{"HUBC.KA": 120.5, "OGDC.KA": 200}}
	s := NewService(repo, src, market.DefaultSuffix, fc, alert)
	s.now = func() time.Time { return time.Date(2024, 6, 14, 12, 0, 0, 0, time.UTC) }
	return s, repo, src
}

func TestAddComputesValues(t *testing.T) {
	s, repo, _ := newTestService(nil, nil)
	h, all, err := s.Add(context.Background(), "a@b.com", AddRequest{Ticker: "hubc", Quantity: 10, PurchasePrice: decimal.NewFromFloat(100)})
	if err != nil {
		t.Fatalf("Add() error = %v", err)
	}
	if h.Ticker != "HUBC" || h.PurchaseDate != "2024-06-14" {
		t.Fatalf("Add() holding = %+v", h)
	}
	if !h.PurchaseValue.Equal(decimal.NewFromInt(1000)) || !h.CurrentValue.Equal(decimal.NewFromInt(1205)) {
		t.Fatalf("Add() values = %s/%s; want 1000/1205", h.PurchaseValue, h.CurrentValue)
	}
	if len(all) != 1 || len(repo.docs["a@b.com"]) != 1 {
		t.Fatalf("portfolio not saved: %+v", repo.docs)
	}
}

func TestAddValidation(t *testing.T) {
	s, _, _ := newTestService(nil, nil)
	ctx := context.Background()
	cases := []AddRequest{
		{Ticker: "", Quantity: 1, PurchasePrice: decimal.NewFromInt(1)},
		{Ticker: "HUBC", Quantity: 0, PurchasePrice: decimal.NewFromInt(1)},
		{Ticker: "HUBC", Quantity: 1, PurchasePrice: decimal.Zero},
		{Ticker: "HUBC", Quantity: 1, PurchasePrice: decimal.NewFromInt(1), PurchaseDate: "14/06/2024"},
	}
	for _, req := range cases {
		if _, _, err := s.Add(ctx, "a@b.com", req); types.CodeOf(err) != types.CodeValidation {
			t.Fatalf("Add(%+v) error = %v; want %s", req, err, types.CodeValidation)
		}
	}
	_, _, err := s.Add(ctx, "a@b.com", AddRequest{Ticker: "NOPE", Quantity: 1, PurchasePrice: decimal.NewFromInt(5)})
	if types.CodeOf(err) != types.CodeInvalidTicker || types.MessageOf(err) != "Invalid ticker symbol." {
		t.Fatalf("Add(unknown) error = %v", err)
	}
}

func TestRemoveAndSummary(t *testing.T) {
	s, _, _ := newTestService(nil, nil)
	ctx := context.Background()
	for _, req := range []AddRequest{
		{Ticker: "HUBC", Quantity: 10, PurchasePrice: decimal.NewFromInt(100)},
		{Ticker: "OGDC", Quantity: 1, PurchasePrice: decimal.NewFromInt(250)},
	} {
		if _, _, err := s.Add(ctx, "a@b.com", req); err != nil {
			t.Fatalf("Add() error = %v", err)
		}
	}
	all, err := s.List(ctx, "a@b.com")
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	sum := Summarize(all)
	if got := FormatPKR(sum.TotalValue); got != "PKR 1405.00" {
		t.Fatalf("TotalValue = %s", got)
	}
	if got := FormatPKR(sum.TotalPurchaseValue); got != "PKR 1250.00" {
		t.Fatalf("TotalPurchaseValue = %s", got)
	}
	if got := FormatPKR(sum.TotalGainLoss); got != "PKR 155.00" {
		t.Fatalf("TotalGainLoss = %s", got)
	}
	if got := FormatPKR(sum.Lines[1].GainLoss); got != "PKR -50.00" {
		t.Fatalf("OGDC gain/loss = %s", got)
	}

	removed, rest, err := s.Remove(ctx, "a@b.com", 0)
	if err != nil {
		t.Fatalf("Remove() error = %v", err)
	}
	if removed.Ticker != "HUBC" || len(rest) != 1 || rest[0].Ticker != "OGDC" {
		t.Fatalf("Remove() = %+v, %+v", removed, rest)
	}
	if _, _, err := s.Remove(ctx, "a@b.com", 5); types.CodeOf(err) != types.CodeNotFound {
		t.Fatalf("Remove(out of range) error = %v; want %s", err, types.CodeNotFound)
	}
}

func TestListMissingIsEmpty(t *testing.T) {
	s, _, _ := newTestService(nil, nil)
	got, err := s.List(context.Background(), "new@b.com")
	if err != nil || got == nil || len(got) != 0 {
		t.Fatalf("List() = %v, %v; want empty, nil", got, err)
	}
	sum := Summarize(got)
	if !sum.TotalValue.IsZero() || len(sum.Lines) != 0 {
		t.Fatalf("Summarize(empty) = %+v", sum)
	}
}

func TestRefreshKeepsValueOnFailure(t *testing.T) {
	s, repo, src := newTestService(nil, nil)
	repo.docs["a@b.com"] = []Holding{
		{Ticker: "HUBC", Quantity: 2, PurchaseValue: decimal.NewFromInt(200), CurrentValue: decimal.NewFromInt(210)},
		{Ticker: "GONE", Quantity: 1, PurchaseValue: decimal.NewFromInt(5), CurrentValue: decimal.NewFromInt(7)},
	}
	src.prices["HUBC.KA"] = 130
	got, err := s.Refresh(context.Background(), "a@b.com")
	if err != nil {
		t.Fatalf("Refresh() error = %v", err)
	}
	if !got[0].CurrentValue.Equal(decimal.NewFromInt(260)) {
		t.Fatalf("HUBC current = %s; want 260", got[0].CurrentValue)
	}
	if !got[1].CurrentValue.Equal(decimal.NewFromInt(7)) {
		t.Fatalf("GONE current = %s; want 7 (unchanged)", got[1].CurrentValue)
	}
}

func TestReviewAlertsOnDowntrend(t *testing.T) {
	var alerts []string
	alert := func(ctx context.Context, msg string) error {
		alerts = append(alerts, msg)
		return nil
	}
	fc := &trendForecaster{trends: map[string]string{"HUBC": forecast.TrendUp, "OGDC": forecast.TrendDown}}
	s, repo, _ := newTestService(fc, alert)
	repo.docs["a@b.com"] = []Holding{{Ticker: "OGDC", Quantity: 1}, {Ticker: "HUBC", Quantity: 1}, {Ticker: "OGDC", Quantity: 3}, {Ticker: "XXX", Quantity: 1}}

	items, err := s.Review(context.Background(), "a@b.com")
	if err != nil {
		t.Fatalf("Review() error = %v", err)
	}
	if len(items) != 3 {
		t.Fatalf("Review() returned %d items; want 3", len(items))
	}
	if items[0].Ticker != "HUBC" || items[0].Recommendation.Trend != forecast.TrendUp {
		t.Fatalf("items[0] = %+v", items[0])
	}
	if items[1].Ticker != "OGDC" || items[1].Recommendation.Trend != forecast.TrendDown || items[1].LastForecast != 90 {
		t.Fatalf("items[1] = %+v", items[1])
	}
	if items[2].Ticker != "XXX" || items[2].Error == "" {
		t.Fatalf("items[2] = %+v", items[2])
	}
	if len(alerts) != 1 || !strings.Contains(alerts[0], "OGDC") || strings.Contains(alerts[0], "HUBC") {
		t.Fatalf("alerts = %v", alerts)
	}
}

func TestReviewWithoutForecaster(t *testing.T) {
	s, _, _ := newTestService(nil, nil)
	if _, err := s.Review(context.Background(), "a@b.com"); err == nil {
		t.Fatalf("Review() = nil; want error")
	}
}

func TestListStorageError(t *testing.T) {
	s := NewService(failingRepo{}, &priceSource{}, "", nil, nil)
	if _, err := s.List(context.Background(), "a@b.com"); types.CodeOf(err) != types.CodeStorage {
		t.Fatalf("List() error = %v; want %s", err, types.CodeStorage)
	}
}

type failingRepo struct{}

func (failingRepo) GetPortfolio(ctx context.Context, email string) ([]Holding, error) {
	return nil, errors.New("disk on fire")
}
func (failingRepo) SavePortfolio(ctx context.Context, email string, holdings []Holding) error {
	return errors.New("disk on fire")
}
