// Package controller is the application service shared by the JSON API and
// the HTML dashboard.
package controller

import (
	"context"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/dgnsrekt/psx_forecast/internal/archive"
	"github.com/dgnsrekt/psx_forecast/internal/audit"
	"github.com/dgnsrekt/psx_forecast/internal/auth"
	"github.com/dgnsrekt/psx_forecast/internal/forecast"
	"github.com/dgnsrekt/psx_forecast/internal/portfolio"
	"github.com/dgnsrekt/psx_forecast/internal/relay"
	"github.com/dgnsrekt/psx_forecast/internal/types"
	"github.com/dgnsrekt/psx_forecast/internal/watchlist"
)

// Forecaster runs forecasts for a ticker.
type Forecaster interface {
	Steps() int
	RunSteps(ctx context.Context, ticker string, steps int) (forecast.Result, error)
}

// Exporter renders an archived forecast to PNG.
type Exporter interface {
	Capture(ctx context.Context, id string) ([]byte, error)
}

// Pinger reports database health.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Deps are the collaborators of a Service. Audit, Events, Exporter and DB
// are optional.
type Deps struct {
	Auth      *auth.Service
	Forecast  Forecaster
	Portfolio *portfolio.Service
	Archive   *archive.Store
	Audit     audit.Recorder
	Events    relay.Publisher
	Exporter  Exporter
	DB        Pinger
	Watchlist []watchlist.Entry
}

// ForecastRun is a completed, archived forecast.
type ForecastRun struct {
	ID     string          `json:"id"`
	Result forecast.Result `json:"result"`
}

// Health is the service status.
type Health struct {
	Status   string `json:"status"`
	Database string `json:"database"`
	Clients  int    `json:"clients"`
	Export   bool   `json:"export"`
}

// Service wires auth, forecasting, archive and portfolio operations.
type Service struct {
	auth      *auth.Service
	forecast  Forecaster
	portfolio *portfolio.Service
	archive   *archive.Store
	audit     audit.Recorder
	events    relay.Publisher
	exporter  Exporter
	db        Pinger
	watchlist []watchlist.Entry

	clients func() int
	exports sync.WaitGroup
}

func NewService(d Deps) *Service {
	s := &Service{
		auth:      d.Auth,
		forecast:  d.Forecast,
		portfolio: d.Portfolio,
		archive:   d.Archive,
		audit:     d.Audit,
		events:    d.Events,
		exporter:  d.Exporter,
		db:        d.DB,
		watchlist: d.Watchlist,
	}
	if s.audit == nil {
		s.audit = audit.Discard{}
	}
	if s.watchlist == nil {
		s.watchlist = watchlist.Default()
	}
	if b, ok := d.Events.(*relay.Broker); ok && b != nil {
		s.clients = b.ClientCount
	}
	return s
}

// Wait blocks until background chart exports have finished.
func (s *Service) Wait() {
	s.exports.Wait()
}

func (s *Service) requireNonEmpty(value, fieldName string) error {
	if strings.TrimSpace(value) == "" {
		return types.NewError(types.CodeValidation, fieldName+" is required", nil)
	}
	return nil
}

func (s *Service) record(ev audit.Event) {
	if err := s.audit.Record(ev); err != nil {
		slog.Debug("audit record dropped", "kind", ev.Kind, "error", err)
	}
}

func (s *Service) publish(owner, eventType string, v any) {
	if s.events != nil {
		s.events.PublishJSON(owner, eventType, v)
	}
}

// Register creates an account.
func (s *Service) Register(ctx context.Context, email, password, phone string) (auth.User, error) {
	u, err := s.auth.Register(ctx, email, password, phone)
	if err != nil {
		return auth.User{}, err
	}
	s.record(audit.Event{Kind: audit.KindRegister, Email: u.Email})
	s.publish(u.Email, relay.TypeUserRegistered, map[string]string{"email": u.Email, "plan": u.Plan})
	return u, nil
}

// Login opens a session.
func (s *Service) Login(ctx context.Context, email, password string) (auth.Session, auth.User, error) {
	sess, u, err := s.auth.Login(ctx, email, password)
	if err != nil {
		if types.CodeOf(err) == types.CodeInvalidCredentials {
			s.record(audit.Event{Kind: audit.KindLoginFailed, Email: auth.NormalizeEmail(email)})
		}
		return auth.Session{}, auth.User{}, err
	}
	s.record(audit.Event{Kind: audit.KindLogin, Email: u.Email})
	return sess, u, nil
}

// Logout closes the session behind token.
func (s *Service) Logout(ctx context.Context, token string) error {
	u, authErr := s.auth.Authenticate(ctx, token)
	if err := s.auth.Logout(ctx, token); err != nil {
		return err
	}
	if authErr == nil {
		s.record(audit.Event{Kind: audit.KindLogout, Email: u.Email})
	}
	return nil
}

// Authenticate resolves a session token.
func (s *Service) Authenticate(ctx context.Context, token string) (auth.User, error) {
	return s.auth.Authenticate(ctx, token)
}

// PurgeSessions removes expired sessions.
func (s *Service) PurgeSessions(ctx context.Context) (int64, error) {
	return s.auth.PurgeExpired(ctx)
}

// Forecast runs and archives a forecast for ticker. steps <= 0 uses the
// configured horizon.
func (s *Service) Forecast(ctx context.Context, user auth.User, ticker string, steps int) (ForecastRun, error) {
	if err := s.requireNonEmpty(ticker, "ticker"); err != nil {
		return ForecastRun{}, err
	}
	if steps <= 0 {
		steps = s.forecast.Steps()
	}

	res, err := s.forecast.RunSteps(ctx, ticker, steps)
	if err != nil {
		slog.Info("forecast failed", "ticker", ticker, "code", types.CodeOf(err), "error", err)
		return ForecastRun{}, err
	}

	id := uuid.NewString()
	rec := archive.Record{
		Meta: archive.Meta{
			ID:        id,
			Ticker:    res.Ticker,
			Symbol:    res.Symbol,
			Email:     user.Email,
			Trend:     res.Recommendation.Trend,
			CreatedAt: res.GeneratedAt,
		},
		Result: res,
	}
	if err := s.archive.Save(rec); err != nil {
		return ForecastRun{}, types.NewError(types.CodeStorage, "archive forecast failed", err)
	}

	s.record(audit.Event{
		Kind:   audit.KindForecast,
		Email:  user.Email,
		Ticker: res.Ticker,
		Detail: map[string]any{"id": id, "steps": steps, "trend": res.Recommendation.Trend},
	})
	s.publish(user.Email, relay.TypeForecastCompleted, map[string]any{
		"id":            id,
		"ticker":        res.Ticker,
		"trend":         res.Recommendation.Trend,
		"current_price": res.CurrentPrice,
	})

	if s.exporter != nil {
		s.exports.Add(1)
		go s.export(context.WithoutCancel(ctx), id)
	}
	return ForecastRun{ID: id, Result: res}, nil
}

func (s *Service) export(ctx context.Context, id string) {
	defer s.exports.Done()
	png, err := s.exporter.Capture(ctx, id)
	if err != nil {
		slog.Warn("chart export failed", "id", id, "error", err)
		return
	}
	if err := s.archive.AttachImage(id, png); err != nil {
		slog.Warn("chart export save failed", "id", id, "error", err)
	}
}

// ListForecasts returns the user's archived runs, newest first.
func (s *Service) ListForecasts(ctx context.Context, user auth.User, ticker string) ([]archive.Meta, error) {
	metas, err := s.archive.List(strings.TrimSpace(ticker))
	if err != nil {
		return nil, types.NewError(types.CodeStorage, "list forecasts failed", err)
	}
	out := make([]archive.Meta, 0, len(metas))
	for _, m := range metas {
		if m.Email == user.Email {
			out = append(out, m)
		}
	}
	return out, nil
}

// GetForecast loads an archived run owned by user.
func (s *Service) GetForecast(ctx context.Context, user auth.User, id string) (archive.Record, error) {
	rec, err := s.lookup(id)
	if err != nil {
		return archive.Record{}, err
	}
	if rec.Meta.Email != user.Email {
		return archive.Record{}, types.NewError(types.CodeNotFound, "forecast not found: "+id, nil)
	}
	return rec, nil
}

// ChartRecord loads an archived run without an ownership check. The chart
// page is fetched by the export browser, which holds no session.
func (s *Service) ChartRecord(ctx context.Context, id string) (archive.Record, error) {
	return s.lookup(id)
}

func (s *Service) lookup(id string) (archive.Record, error) {
	if err := s.requireNonEmpty(id, "id"); err != nil {
		return archive.Record{}, err
	}
	return s.archive.Get(strings.TrimSpace(id))
}

// DeleteForecast removes an archived run owned by user.
func (s *Service) DeleteForecast(ctx context.Context, user auth.User, id string) error {
	if _, err := s.GetForecast(ctx, user, id); err != nil {
		return err
	}
	return s.archive.Delete(strings.TrimSpace(id))
}

// ForecastImage returns the exported PNG of an archived run owned by user.
func (s *Service) ForecastImage(ctx context.Context, user auth.User, id string) ([]byte, error) {
	if _, err := s.GetForecast(ctx, user, id); err != nil {
		return nil, err
	}
	return s.archive.ReadImage(strings.TrimSpace(id))
}

// Portfolio summarises the user's holdings.
func (s *Service) Portfolio(ctx context.Context, user auth.User) (portfolio.Summary, error) {
	holdings, err := s.portfolio.List(ctx, user.Email)
	if err != nil {
		return portfolio.Summary{}, err
	}
	return portfolio.Summarize(holdings), nil
}

// AddHolding prices and stores a new holding.
func (s *Service) AddHolding(ctx context.Context, user auth.User, req portfolio.AddRequest) (portfolio.Holding, portfolio.Summary, error) {
	h, holdings, err := s.portfolio.Add(ctx, user.Email, req)
	if err != nil {
		return portfolio.Holding{}, portfolio.Summary{}, err
	}
	s.record(audit.Event{
		Kind:   audit.KindHoldingAdd,
		Email:  user.Email,
		Ticker: h.Ticker,
		Detail: map[string]any{"quantity": h.Quantity, "purchase_value": h.PurchaseValue.String()},
	})
	summary := portfolio.Summarize(holdings)
	s.publishPortfolio(user, "add", summary)
	return h, summary, nil
}

// RemoveHolding drops the holding at index.
func (s *Service) RemoveHolding(ctx context.Context, user auth.User, index int) (portfolio.Holding, portfolio.Summary, error) {
	h, holdings, err := s.portfolio.Remove(ctx, user.Email, index)
	if err != nil {
		return portfolio.Holding{}, portfolio.Summary{}, err
	}
	s.record(audit.Event{Kind: audit.KindHoldingDrop, Email: user.Email, Ticker: h.Ticker, Detail: map[string]any{"index": index}})
	summary := portfolio.Summarize(holdings)
	s.publishPortfolio(user, "remove", summary)
	return h, summary, nil
}

// RefreshPortfolio re-prices every holding.
func (s *Service) RefreshPortfolio(ctx context.Context, user auth.User) (portfolio.Summary, error) {
	holdings, err := s.portfolio.Refresh(ctx, user.Email)
	if err != nil {
		return portfolio.Summary{}, err
	}
	s.record(audit.Event{Kind: audit.KindRefresh, Email: user.Email, Detail: map[string]any{"holdings": len(holdings)}})
	summary := portfolio.Summarize(holdings)
	s.publishPortfolio(user, "refresh", summary)
	return summary, nil
}

// ReviewPortfolio forecasts every held ticker.
func (s *Service) ReviewPortfolio(ctx context.Context, user auth.User) ([]portfolio.ReviewItem, error) {
	items, err := s.portfolio.Review(ctx, user.Email)
	if err != nil {
		return nil, err
	}
	down := 0
	for _, it := range items {
		if it.Error == "" && it.Recommendation.Trend == forecast.TrendDown {
			down++
		}
	}
	s.record(audit.Event{Kind: audit.KindReview, Email: user.Email, Detail: map[string]any{"tickers": len(items), "down": down}})
	return items, nil
}

func (s *Service) publishPortfolio(user auth.User, action string, summary portfolio.Summary) {
	s.publish(user.Email, relay.TypePortfolioUpdated, map[string]any{
		"email":       user.Email,
		"action":      action,
		"holdings":    len(summary.Lines),
		"total_value": summary.TotalValue,
	})
}

// Watchlist returns the recommended stocks.
func (s *Service) Watchlist() []watchlist.Entry {
	return s.watchlist
}

// Health pings the database and reports live client counts.
func (s *Service) Health(ctx context.Context) Health {
	h := Health{Status: "ok", Database: "ok", Export: s.exporter != nil}
	if s.db != nil {
		pingCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
		defer cancel()
		if err := s.db.Ping(pingCtx); err != nil {
			h.Status = "degraded"
			h.Database = err.Error()
		}
	}
	if s.clients != nil {
		h.Clients = s.clients()
	}
	return h
}
