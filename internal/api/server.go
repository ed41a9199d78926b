package api

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/danielgtaylor/huma/v2"
	"github.com/danielgtaylor/huma/v2/adapters/humachi"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/dgnsrekt/psx_forecast/internal/archive"
	"github.com/dgnsrekt/psx_forecast/internal/auth"
	"github.com/dgnsrekt/psx_forecast/internal/controller"
	"github.com/dgnsrekt/psx_forecast/internal/portfolio"
	"github.com/dgnsrekt/psx_forecast/internal/relay"
	"github.com/dgnsrekt/psx_forecast/internal/types"
	"github.com/dgnsrekt/psx_forecast/internal/watchlist"
)

// SessionCookie carries the session token for browser clients.
const SessionCookie = "psx_session"

type Service interface {
	Register(ctx context.Context, email, password, phone string) (auth.User, error)
	Login(ctx context.Context, email, password string) (auth.Session, auth.User, error)
	Logout(ctx context.Context, token string) error
	Authenticate(ctx context.Context, token string) (auth.User, error)
	Forecast(ctx context.Context, user auth.User, ticker string, steps int) (controller.ForecastRun, error)
	ListForecasts(ctx context.Context, user auth.User, ticker string) ([]archive.Meta, error)
	GetForecast(ctx context.Context, user auth.User, id string) (archive.Record, error)
	DeleteForecast(ctx context.Context, user auth.User, id string) error
	ForecastImage(ctx context.Context, user auth.User, id string) ([]byte, error)
	Portfolio(ctx context.Context, user auth.User) (portfolio.Summary, error)
	AddHolding(ctx context.Context, user auth.User, req portfolio.AddRequest) (portfolio.Holding, portfolio.Summary, error)
	RemoveHolding(ctx context.Context, user auth.User, index int) (portfolio.Holding, portfolio.Summary, error)
	RefreshPortfolio(ctx context.Context, user auth.User) (portfolio.Summary, error)
	ReviewPortfolio(ctx context.Context, user auth.User) ([]portfolio.ReviewItem, error)
	Watchlist() []watchlist.Entry
	Health(ctx context.Context) controller.Health
}

// Options add optional surfaces next to the JSON API.
type Options struct {
	// Broker enables /events (SSE) and /ws/events (WebSocket).
	Broker *relay.Broker
	// Mount registers extra routes, such as the HTML dashboard.
	Mount func(r chi.Router)
	// SecureCookies marks the session cookie Secure.
	SecureCookies bool
}

// SessionAuth is embedded by every operation that needs a logged in user.
type SessionAuth struct {
	Authorization string `header:"Authorization" doc:"Bearer session token"`
	Session       string `cookie:"psx_session" doc:"Session cookie set by login"`
}

func (a SessionAuth) token() string {
	if v := strings.TrimSpace(a.Authorization); v != "" {
		if len(v) > 7 && strings.EqualFold(v[:7], "bearer ") {
			return strings.TrimSpace(v[7:])
		}
		return v
	}
	return strings.TrimSpace(a.Session)
}

type statusOutput struct {
	Body struct {
		Status string `json:"status"`
	}
}

func NewServer(svc Service, opts Options) http.Handler {
	router := chi.NewMux()
	router.Use(middleware.RequestID)
	router.Use(requestLogger)
	router.Use(middleware.Recoverer)

	cfg := huma.DefaultConfig("PSX Forecast Dashboard API", "1.0.0")
	cfg.DocsPath = ""
	api := humachi.New(router, cfg)

	router.Get("/docs", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		if _, err := w.Write([]byte(docsHTML)); err != nil {
			slog.Debug("docs response write failed", "error", err)
		}
	})
	router.Get("/docs/events", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		if _, err := w.Write([]byte(eventsDocsHTML)); err != nil {
			slog.Debug("events docs response write failed", "error", err)
		}
	})

	if opts.Broker != nil {
		authn := eventsAuthenticator(svc)
		router.Get("/events", relay.SSEHandler(opts.Broker, authn))
		router.Get("/ws/events", relay.WSHandler(opts.Broker, authn))
	}

	registerAuthHandlers(api, svc, opts.SecureCookies)
	registerForecastHandlers(api, svc)
	registerPortfolioHandlers(api, svc)
	registerMiscHandlers(api, svc)

	if opts.Mount != nil {
		opts.Mount(router)
	}
	return router
}

func requireUser(ctx context.Context, svc Service, in SessionAuth) (auth.User, error) {
	return svc.Authenticate(ctx, in.token())
}

// eventsAuthenticator subscribes live-event clients as their session user.
func eventsAuthenticator(svc Service) relay.Authenticator {
	return func(r *http.Request) (string, error) {
		in := SessionAuth{Authorization: r.Header.Get("Authorization")}
		if c, err := r.Cookie(SessionCookie); err == nil {
			in.Session = c.Value
		}
		u, err := requireUser(r.Context(), svc, in)
		if err != nil {
			return "", err
		}
		return u.Email, nil
	}
}

func mapErr(err error) error {
	if err == nil {
		return nil
	}
	var coded *types.CodedError
	if errors.As(err, &coded) {
		switch coded.Code {
		case types.CodeValidation:
			return huma.Error400BadRequest(coded.Message)
		case types.CodeUnauthorized, types.CodeInvalidCredentials:
			return huma.Error401Unauthorized(coded.Message)
		case types.CodeNotFound:
			return huma.Error404NotFound(coded.Message)
		case types.CodeConflict:
			return huma.Error409Conflict(coded.Message)
		case types.CodeInvalidTicker:
			return huma.Error422UnprocessableEntity(coded.Message)
		case types.CodeMarketUnavailable:
			return huma.Error502BadGateway(coded.Message)
		case types.CodeExportUnavailable:
			return huma.Error503ServiceUnavailable(coded.Message)
		default:
			return huma.Error500InternalServerError(fmt.Sprintf("%s: %s", coded.Code, coded.Message))
		}
	}
	return huma.Error500InternalServerError(err.Error())
}
