package portfolio

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"

	"github.com/dgnsrekt/psx_forecast/internal/forecast"
	"github.com/dgnsrekt/psx_forecast/internal/market"
	"github.com/dgnsrekt/psx_forecast/internal/types"
)

const reviewConcurrency = 4

// Forecaster is the subset of forecast.Forecaster used by Review.
type Forecaster interface {
	Run(ctx context.Context, ticker string) (forecast.Result, error)
}

// AlertFunc delivers a plain text alert. It is optional.
type AlertFunc func(ctx context.Context, message string) error

// AddRequest describes a new holding as entered by the user.
type AddRequest struct {
	Ticker        string          `json:"ticker"`
	Quantity      int             `json:"quantity"`
	PurchasePrice decimal.Decimal `json:"purchase_price"`
	PurchaseDate  string          `json:"purchase_date,omitempty"`
}

// ReviewItem is the forecast verdict for one held ticker.
type ReviewItem struct {
	Ticker         string                  `json:"ticker"`
	Recommendation forecast.Recommendation `json:"recommendation"`
	LastForecast   float64                 `json:"last_forecast,omitempty"`
	Error          string                  `json:"error,omitempty"`
}

// Service manages portfolios.
type Service struct {
	repo     Repository
	src      market.Source
	suffix   string
	forecast Forecaster
	alert    AlertFunc
	now      func() time.Time

	locksMu sync.Mutex
	locks   map[string]*sync.Mutex
}

// NewService creates a portfolio service. fc and alert may be nil.
func NewService(repo Repository, src market.Source, suffix string, fc Forecaster, alert AlertFunc) *Service {
	if suffix == "" {
		suffix = market.DefaultSuffix
	}
	return &Service{
		repo:     repo,
		src:      src,
		suffix:   suffix,
		forecast: fc,
		alert:    alert,
		now:      time.Now,
		locks:    make(map[string]*sync.Mutex),
	}
}

// userLock serialises read-modify-write cycles on one user's document.
func (s *Service) userLock(email string) *sync.Mutex {
	s.locksMu.Lock()
	defer s.locksMu.Unlock()
	mu, ok := s.locks[email]
	if !ok {
		mu = &sync.Mutex{}
		s.locks[email] = mu
	}
	return mu
}

// List returns the user's holdings; a missing document is an empty portfolio.
func (s *Service) List(ctx context.Context, email string) ([]Holding, error) {
	holdings, err := s.repo.GetPortfolio(ctx, email)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return []Holding{}, nil
		}
		return nil, types.NewError(types.CodeStorage, "load portfolio failed", err)
	}
	return holdings, nil
}

// Add prices and appends a holding, then saves the portfolio.
func (s *Service) Add(ctx context.Context, email string, req AddRequest) (Holding, []Holding, error) {
	ticker := market.NormalizeTicker(req.Ticker, s.suffix)
	if ticker == "" {
		return Holding{}, nil, types.NewError(types.CodeValidation, "ticker is required", nil)
	}
	if req.Quantity < 1 {
		return Holding{}, nil, types.NewError(types.CodeValidation, "quantity must be at least 1", nil)
	}
	if !req.PurchasePrice.IsPositive() {
		return Holding{}, nil, types.NewError(types.CodeValidation, "purchase price must be greater than 0", nil)
	}
	date := strings.TrimSpace(req.PurchaseDate)
	if date == "" {
		date = s.now().Format(DateLayout)
	} else if _, err := time.Parse(DateLayout, date); err != nil {
		return Holding{}, nil, types.NewError(types.CodeValidation, "purchase date must be YYYY-MM-DD", err)
	}

	value, err := s.currentValue(ctx, ticker, req.Quantity)
	if err != nil {
		return Holding{}, nil, err
	}

	qty := decimal.NewFromInt(int64(req.Quantity))
	h := Holding{
		Ticker:        ticker,
		Quantity:      req.Quantity,
		PurchaseValue: req.PurchasePrice.Mul(qty),
		PurchaseDate:  date,
		CurrentValue:  value,
	}

	mu := s.userLock(email)
	mu.Lock()
	defer mu.Unlock()

	holdings, err := s.List(ctx, email)
	if err != nil {
		return Holding{}, nil, err
	}
	holdings = append(holdings, h)
	if err := s.repo.SavePortfolio(ctx, email, holdings); err != nil {
		return Holding{}, nil, types.NewError(types.CodeStorage, "save portfolio failed", err)
	}
	slog.Info("portfolio holding added", "email", email, "ticker", ticker, "quantity", req.Quantity)
	return h, holdings, nil
}

// Remove deletes the holding at index and saves the portfolio.
func (s *Service) Remove(ctx context.Context, email string, index int) (Holding, []Holding, error) {
	mu := s.userLock(email)
	mu.Lock()
	defer mu.Unlock()

	holdings, err := s.List(ctx, email)
	if err != nil {
		return Holding{}, nil, err
	}
	if index < 0 || index >= len(holdings) {
		return Holding{}, nil, types.NewError(types.CodeNotFound, fmt.Sprintf("no holding at index %d", index), nil)
	}
	removed := holdings[index]
	holdings = append(holdings[:index:index], holdings[index+1:]...)
	if err := s.repo.SavePortfolio(ctx, email, holdings); err != nil {
		return Holding{}, nil, types.NewError(types.CodeStorage, "save portfolio failed", err)
	}
	slog.Info("portfolio holding removed", "email", email, "ticker", removed.Ticker, "index", index)
	return removed, holdings, nil
}

// Refresh re-prices every holding. Holdings whose price cannot be fetched
// keep their previous value.
func (s *Service) Refresh(ctx context.Context, email string) ([]Holding, error) {
	mu := s.userLock(email)
	mu.Lock()
	defer mu.Unlock()

	holdings, err := s.List(ctx, email)
	if err != nil {
		return nil, err
	}
	prices := make(map[string]decimal.Decimal)
	for i, h := range holdings {
		price, ok := prices[h.Ticker]
		if !ok {
			p, err := market.LatestClose(ctx, s.src, market.Symbol(h.Ticker, s.suffix), s.now())
			if err != nil {
				slog.Warn("portfolio refresh price failed", "ticker", h.Ticker, "error", err)
				continue
			}
			price = p
			prices[h.Ticker] = p
		}
		holdings[i].CurrentValue = price.Mul(decimal.NewFromInt(int64(h.Quantity)))
	}
	if err := s.repo.SavePortfolio(ctx, email, holdings); err != nil {
		return nil, types.NewError(types.CodeStorage, "save portfolio failed", err)
	}
	return holdings, nil
}

// Review forecasts each distinct held ticker and alerts on downtrends.
func (s *Service) Review(ctx context.Context, email string) ([]ReviewItem, error) {
	if s.forecast == nil {
		return nil, types.NewError(types.CodeModelFailure, "forecasting is not configured", nil)
	}
	holdings, err := s.List(ctx, email)
	if err != nil {
		return nil, err
	}

	seen := make(map[string]bool)
	var tickers []string
	for _, h := range holdings {
		if !seen[h.Ticker] {
			seen[h.Ticker] = true
			tickers = append(tickers, h.Ticker)
		}
	}
	sort.Strings(tickers)

	items := make([]ReviewItem, len(tickers))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(reviewConcurrency)
	for i, ticker := range tickers {
		g.Go(func() error {
			item := ReviewItem{Ticker: ticker}
			res, err := s.forecast.Run(gctx, ticker)
			if err != nil {
				item.Error = types.MessageOf(err)
			} else {
				item.Recommendation = res.Recommendation
				if n := len(res.Forecast); n > 0 {
					item.LastForecast = res.Forecast[n-1].Value
				}
			}
			items[i] = item
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	if s.alert != nil {
		if msg := downtrendAlert(email, items); msg != "" {
			if err := s.alert(ctx, msg); err != nil {
				slog.Warn("portfolio review alert failed", "email", email, "error", err)
			}
		}
	}
	return items, nil
}

func (s *Service) currentValue(ctx context.Context, ticker string, quantity int) (decimal.Decimal, error) {
	price, err := market.LatestClose(ctx, s.src, market.Symbol(ticker, s.suffix), s.now())
	if err != nil {
		if types.CodeOf(err) == types.CodeMarketUnavailable {
			return decimal.Zero, err
		}
		return decimal.Zero, types.NewError(types.CodeInvalidTicker, market.InvalidTickerMessage, err)
	}
	value := price.Mul(decimal.NewFromInt(int64(quantity)))
	if !value.IsPositive() {
		return decimal.Zero, types.NewError(types.CodeInvalidTicker, market.InvalidTickerMessage, nil)
	}
	return value, nil
}

func downtrendAlert(email string, items []ReviewItem) string {
	var down []string
	for _, it := range items {
		if it.Error == "" && it.Recommendation.Trend == forecast.TrendDown {
			down = append(down, it.Ticker)
		}
	}
	if len(down) == 0 {
		return ""
	}
	return fmt.Sprintf("Portfolio %s: downward forecast for %s. Consider selling or monitoring closely.", email, strings.Join(down, ", "))
}
