// Package web serves the single-page HTML dashboard.
package web

import (
	"context"
	"embed"
	"html/template"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"github.com/dgnsrekt/psx_forecast/internal/archive"
	"github.com/dgnsrekt/psx_forecast/internal/auth"
	"github.com/dgnsrekt/psx_forecast/internal/chart"
	"github.com/dgnsrekt/psx_forecast/internal/controller"
	"github.com/dgnsrekt/psx_forecast/internal/portfolio"
	"github.com/dgnsrekt/psx_forecast/internal/types"
	"github.com/dgnsrekt/psx_forecast/internal/watchlist"
)

const (
	// SessionCookie matches the cookie set by the JSON API login.
	SessionCookie = "psx_session"
	flashCookie   = "psx_flash"

	// DefaultTicker prefills the forecast form.
	DefaultTicker = "HUBC"

	loginPrompt = "Please login/register to proceed with forecasting, portfolio management and stock recommendations..."
)

//go:embed templates/*.html
var templateFS embed.FS

// Service is the subset of the application service used by the dashboard.
type Service interface {
	Register(ctx context.Context, email, password, phone string) (auth.User, error)
	Login(ctx context.Context, email, password string) (auth.Session, auth.User, error)
	Logout(ctx context.Context, token string) error
	Authenticate(ctx context.Context, token string) (auth.User, error)
	Forecast(ctx context.Context, user auth.User, ticker string, steps int) (controller.ForecastRun, error)
	GetForecast(ctx context.Context, user auth.User, id string) (archive.Record, error)
	ChartRecord(ctx context.Context, id string) (archive.Record, error)
	Portfolio(ctx context.Context, user auth.User) (portfolio.Summary, error)
	AddHolding(ctx context.Context, user auth.User, req portfolio.AddRequest) (portfolio.Holding, portfolio.Summary, error)
	RemoveHolding(ctx context.Context, user auth.User, index int) (portfolio.Holding, portfolio.Summary, error)
	RefreshPortfolio(ctx context.Context, user auth.User) (portfolio.Summary, error)
	Watchlist() []watchlist.Entry
}

// Handler renders the dashboard and handles its form posts.
type Handler struct {
	svc           Service
	tmpl          *template.Template
	secureCookies bool
	now           func() time.Time
}

// Flash is a one-shot status message shown after a redirect.
type Flash struct {
	Kind    string
	Message string
}

type page struct {
	Title     string
	Prompt    string
	Mode      string
	Flash     *Flash
	User      *auth.User
	Today     string
	Ticker    string
	Portfolio portfolio.Summary
	Forecast  *archive.Record
	Watchlist []watchlist.Entry
}

// New parses the embedded templates.
func New(svc Service, secureCookies bool) (*Handler, error) {
	tmpl, err := template.New("").Funcs(template.FuncMap{
		"pkr":   portfolio.FormatPKR,
		"price": func(d decimal.Decimal) string { return d.StringFixed(2) },
		"f2":    func(v float64) string { return strconv.FormatFloat(v, 'f', 2, 64) },
		"inc":   func(i int) int { return i + 1 },
		"neg":   func(d decimal.Decimal) bool { return d.IsNegative() },
	}).ParseFS(templateFS, "templates/*.html")
	if err != nil {
		return nil, err
	}
	return &Handler{svc: svc, tmpl: tmpl, secureCookies: secureCookies, now: time.Now}, nil
}

// Mount registers the dashboard routes on r.
func (h *Handler) Mount(r chi.Router) {
	r.Get("/", h.index)
	r.Post("/login", h.login)
	r.Post("/register", h.register)
	r.Post("/logout", h.logout)
	r.Post("/forecast", h.forecast)
	r.Post("/portfolio/add", h.addHolding)
	r.Post("/portfolio/refresh", h.refresh)
	r.Post("/portfolio/{index}/remove", h.removeHolding)
	r.Get("/forecasts/{id}/chart", h.chart)
}

func (h *Handler) currentUser(r *http.Request) (auth.User, string, bool) {
	c, err := r.Cookie(SessionCookie)
	if err != nil || c.Value == "" {
		return auth.User{}, "", false
	}
	u, err := h.svc.Authenticate(r.Context(), c.Value)
	if err != nil {
		return auth.User{}, c.Value, false
	}
	return u, c.Value, true
}

func (h *Handler) index(w http.ResponseWriter, r *http.Request) {
	p := page{
		Title:     "PSX Stock Forecasting & Portfolio Manager",
		Prompt:    loginPrompt,
		Mode:      "login",
		Flash:     h.takeFlash(w, r),
		Today:     h.now().Format(portfolio.DateLayout),
		Ticker:    DefaultTicker,
		Watchlist: h.svc.Watchlist(),
	}
	if r.URL.Query().Get("mode") == "register" {
		p.Mode = "register"
	}

	u, _, ok := h.currentUser(r)
	if ok {
		p.User = &u
		summary, err := h.svc.Portfolio(r.Context(), u)
		if err != nil {
			slog.Warn("dashboard portfolio load failed", "email", u.Email, "error", err)
			p.Flash = &Flash{Kind: "error", Message: types.MessageOf(err)}
		}
		p.Portfolio = summary

		if id := r.URL.Query().Get("forecast"); id != "" {
			rec, err := h.svc.GetForecast(r.Context(), u, id)
			if err != nil {
				p.Flash = &Flash{Kind: "error", Message: types.MessageOf(err)}
			} else {
				p.Forecast = &rec
				p.Ticker = rec.Result.Ticker
			}
		}
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := h.tmpl.ExecuteTemplate(w, "dashboard.html", p); err != nil {
		slog.Error("dashboard render failed", "error", err)
	}
}

func (h *Handler) login(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		h.redirect(w, r, "/", Flash{Kind: "error", Message: "invalid form"})
		return
	}
	sess, _, err := h.svc.Login(r.Context(), r.PostForm.Get("email"), r.PostForm.Get("password"))
	if err != nil {
		h.redirect(w, r, "/", Flash{Kind: "error", Message: types.MessageOf(err)})
		return
	}
	http.SetCookie(w, &http.Cookie{
		Name:     SessionCookie,
		Value:    sess.Token,
		Path:     "/",
		Expires:  sess.ExpiresAt,
		HttpOnly: true,
		Secure:   h.secureCookies,
		SameSite: http.SameSiteLaxMode,
	})
	h.redirect(w, r, "/", Flash{Kind: "success", Message: "Logged in successfully!"})
}

func (h *Handler) register(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		h.redirect(w, r, "/?mode=register", Flash{Kind: "error", Message: "invalid form"})
		return
	}
	_, err := h.svc.Register(r.Context(), r.PostForm.Get("email"), r.PostForm.Get("password"), r.PostForm.Get("phone"))
	if err != nil {
		h.redirect(w, r, "/?mode=register", Flash{Kind: "error", Message: types.MessageOf(err)})
		return
	}
	h.redirect(w, r, "/", Flash{Kind: "success", Message: "Registered successfully! Please log in."})
}

func (h *Handler) logout(w http.ResponseWriter, r *http.Request) {
	if _, token, _ := h.currentUser(r); token != "" {
		if err := h.svc.Logout(r.Context(), token); err != nil {
			slog.Warn("logout failed", "error", err)
		}
	}
	http.SetCookie(w, &http.Cookie{Name: SessionCookie, Value: "", Path: "/", MaxAge: -1, Expires: time.Unix(0, 0)})
	h.redirect(w, r, "/", Flash{})
}

func (h *Handler) forecast(w http.ResponseWriter, r *http.Request) {
	u, _, ok := h.currentUser(r)
	if !ok {
		h.redirect(w, r, "/", Flash{Kind: "error", Message: loginPrompt})
		return
	}
	if err := r.ParseForm(); err != nil {
		h.redirect(w, r, "/", Flash{Kind: "error", Message: "invalid form"})
		return
	}
	run, err := h.svc.Forecast(r.Context(), u, r.PostForm.Get("ticker"), 0)
	if err != nil {
		h.redirect(w, r, "/", Flash{Kind: "error", Message: types.MessageOf(err)})
		return
	}
	h.redirect(w, r, "/?forecast="+url.QueryEscape(run.ID), Flash{})
}

func (h *Handler) addHolding(w http.ResponseWriter, r *http.Request) {
	u, _, ok := h.currentUser(r)
	if !ok {
		h.redirect(w, r, "/", Flash{Kind: "error", Message: loginPrompt})
		return
	}
	if err := r.ParseForm(); err != nil {
		h.redirect(w, r, "/", Flash{Kind: "error", Message: "invalid form"})
		return
	}
	req, err := addRequest(r.PostForm)
	if err != nil {
		h.redirect(w, r, "/", Flash{Kind: "error", Message: types.MessageOf(err)})
		return
	}
	hold, _, err := h.svc.AddHolding(r.Context(), u, req)
	if err != nil {
		h.redirect(w, r, "/", Flash{Kind: "error", Message: types.MessageOf(err)})
		return
	}
	h.redirect(w, r, "/", Flash{Kind: "success", Message: "Added " + hold.Ticker + " to portfolio!"})
}

func addRequest(form url.Values) (portfolio.AddRequest, error) {
	req := portfolio.AddRequest{
		Ticker:       form.Get("ticker"),
		PurchaseDate: strings.TrimSpace(form.Get("purchase_date")),
	}
	if q := strings.TrimSpace(form.Get("quantity")); q != "" {
		n, err := strconv.Atoi(q)
		if err != nil {
			return req, types.NewError(types.CodeValidation, "quantity must be a whole number", err)
		}
		req.Quantity = n
	}
	if p := strings.TrimSpace(form.Get("purchase_price")); p != "" {
		d, err := decimal.NewFromString(p)
		if err != nil {
			return req, types.NewError(types.CodeValidation, "purchase price must be a number", err)
		}
		req.PurchasePrice = d
	}
	return req, nil
}

func (h *Handler) removeHolding(w http.ResponseWriter, r *http.Request) {
	u, _, ok := h.currentUser(r)
	if !ok {
		h.redirect(w, r, "/", Flash{Kind: "error", Message: loginPrompt})
		return
	}
	index, err := strconv.Atoi(chi.URLParam(r, "index"))
	if err != nil {
		h.redirect(w, r, "/", Flash{Kind: "error", Message: "invalid holding"})
		return
	}
	hold, _, err := h.svc.RemoveHolding(r.Context(), u, index)
	if err != nil {
		h.redirect(w, r, "/", Flash{Kind: "error", Message: types.MessageOf(err)})
		return
	}
	h.redirect(w, r, "/", Flash{Kind: "success", Message: "Removed " + hold.Ticker + " from portfolio!"})
}

func (h *Handler) refresh(w http.ResponseWriter, r *http.Request) {
	u, _, ok := h.currentUser(r)
	if !ok {
		h.redirect(w, r, "/", Flash{Kind: "error", Message: loginPrompt})
		return
	}
	if _, err := h.svc.RefreshPortfolio(r.Context(), u); err != nil {
		h.redirect(w, r, "/", Flash{Kind: "error", Message: types.MessageOf(err)})
		return
	}
	h.redirect(w, r, "/", Flash{Kind: "success", Message: "Portfolio prices refreshed."})
}

// chart serves the standalone ECharts page embedded by the dashboard and
// captured by the PNG exporter.
func (h *Handler) chart(w http.ResponseWriter, r *http.Request) {
	rec, err := h.svc.ChartRecord(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		status := http.StatusInternalServerError
		switch types.CodeOf(err) {
		case types.CodeNotFound:
			status = http.StatusNotFound
		case types.CodeValidation:
			status = http.StatusBadRequest
		}
		http.Error(w, types.MessageOf(err), status)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := chart.Render(w, rec.Result); err != nil {
		slog.Error("chart render failed", "id", rec.Meta.ID, "error", err)
	}
}

func (h *Handler) redirect(w http.ResponseWriter, r *http.Request, target string, f Flash) {
	if f.Message != "" {
		http.SetCookie(w, &http.Cookie{
			Name:     flashCookie,
			Value:    encodeFlash(f),
			Path:     "/",
			MaxAge:   60,
			HttpOnly: true,
			SameSite: http.SameSiteLaxMode,
		})
	}
	http.Redirect(w, r, target, http.StatusSeeOther)
}

func (h *Handler) takeFlash(w http.ResponseWriter, r *http.Request) *Flash {
	c, err := r.Cookie(flashCookie)
	if err != nil {
		return nil
	}
	http.SetCookie(w, &http.Cookie{Name: flashCookie, Value: "", Path: "/", MaxAge: -1})
	f, ok := decodeFlash(c.Value)
	if !ok {
		return nil
	}
	return &f
}

func encodeFlash(f Flash) string {
	return url.QueryEscape(f.Kind + ":" + f.Message)
}

func decodeFlash(v string) (Flash, bool) {
	raw, err := url.QueryUnescape(v)
	if err != nil {
		return Flash{}, false
	}
	kind, msg, ok := strings.Cut(raw, ":")
	if !ok || msg == "" {
		return Flash{}, false
	}
	return Flash{Kind: kind, Message: msg}, true
}
