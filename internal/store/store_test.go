package store

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/shopspring/decimal"

	"github.com/dgnsrekt/psx_forecast/internal/auth"
	"github.com/dgnsrekt/psx_forecast/internal/portfolio"
)

func openTest(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "db", "dashboard.db"))
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestUsers(t *testing.T) {
	ctx := context.Background()
	s := openTest(t)
	u := auth.User{Email: "a@b.com", PasswordHash: "hash", Phone: "0300", Plan: "Free", CreatedAt: time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)}
	if err := s.CreateUser(ctx, u); err != nil {
		t.Fatalf("CreateUser() error = %v", err)
	}
	if err := s.CreateUser(ctx, u); !errors.Is(err, auth.ErrDuplicate) {
		t.Fatalf("CreateUser(duplicate) error = %v; want auth.ErrDuplicate", err)
	}
	got, err := s.FindUserByEmail(ctx, "a@b.com")
	if err != nil {
		t.Fatalf("FindUserByEmail() error = %v", err)
	}
	if diff := cmp.Diff(u, got); diff != "" {
		t.Fatalf("FindUserByEmail() mismatch (-want +got):\n%s", diff)
	}
	if _, err := s.FindUserByEmail(ctx, "x@b.com"); !errors.Is(err, auth.ErrNotFound) {
		t.Fatalf("FindUserByEmail(missing) error = %v; want auth.ErrNotFound", err)
	}
	if err := s.UpdatePasswordHash(ctx, "a@b.com", "new"); err != nil {
		t.Fatalf("UpdatePasswordHash() error = %v", err)
	}
	if got, _ := s.FindUserByEmail(ctx, "a@b.com"); got.PasswordHash != "new" {
		t.Fatalf("PasswordHash = %q; want new", got.PasswordHash)
	}
	if err := s.UpdatePasswordHash(ctx, "x@b.com", "new"); !errors.Is(err, auth.ErrNotFound) {
		t.Fatalf("UpdatePasswordHash(missing) error = %v; want auth.ErrNotFound", err)
	}
}

func TestSessions(t *testing.T) {
	ctx := context.Background()
	s := openTest(t)
	now := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	live := auth.Session{Token: "live", Email: "a@b.com", ExpiresAt: now.Add(time.Hour)}
	dead := auth.Session{Token: "dead", Email: "a@b.com", ExpiresAt: now.Add(-time.Second)}
	for _, sess := range []auth.Session{live, dead} {
		if err := s.CreateSession(ctx, sess); err != nil {
			t.Fatalf("CreateSession() error = %v", err)
		}
	}
	got, err := s.GetSession(ctx, "live")
	if err != nil {
		t.Fatalf("GetSession() error = %v", err)
	}
	if !got.ExpiresAt.Equal(live.ExpiresAt) || got.Email != "a@b.com" {
		t.Fatalf("GetSession() = %+v", got)
	}
	n, err := s.DeleteExpiredSessions(ctx, now)
	if err != nil || n != 1 {
		t.Fatalf("DeleteExpiredSessions() = %d, %v; want 1, nil", n, err)
	}
	if _, err := s.GetSession(ctx, "dead"); !errors.Is(err, auth.ErrNotFound) {
		t.Fatalf("GetSession(dead) error = %v; want auth.ErrNotFound", err)
	}
	if err := s.DeleteSession(ctx, "live"); err != nil {
		t.Fatalf("DeleteSession() error = %v", err)
	}
	if _, err := s.GetSession(ctx, "live"); !errors.Is(err, auth.ErrNotFound) {
		t.Fatalf("GetSession(after delete) error = %v; want auth.ErrNotFound", err)
	}
}

func TestPortfolioDocument(t *testing.T) {
	ctx := context.Background()
	s := openTest(t)
	if _, err := s.GetPortfolio(ctx, "a@b.com"); !errors.Is(err, portfolio.ErrNotFound) {
		t.Fatalf("GetPortfolio(missing) error = %v; want portfolio.ErrNotFound", err)
	}
	holdings := []portfolio.Holding{
		{Ticker: "HUBC", Quantity: 10, PurchaseValue: decimal.RequireFromString("1000.50"), PurchaseDate: "2024-06-14", CurrentValue: decimal.RequireFromString("1205")},
	}
	if err := s.SavePortfolio(ctx, "a@b.com", holdings); err != nil {
		t.Fatalf("SavePortfolio() error = %v", err)
	}
	got, err := s.GetPortfolio(ctx, "a@b.com")
	if err != nil {
		t.Fatalf("GetPortfolio() error = %v", err)
	}
	if len(got) != 1 || got[0].Ticker != "HUBC" || !got[0].PurchaseValue.Equal(holdings[0].PurchaseValue) {
		t.Fatalf("GetPortfolio() = %+v", got)
	}

	if err := s.SavePortfolio(ctx, "a@b.com", nil); err != nil {
		t.Fatalf("SavePortfolio(nil) error = %v", err)
	}
	got, err = s.GetPortfolio(ctx, "a@b.com")
	if err != nil || len(got) != 0 {
		t.Fatalf("GetPortfolio() after clear = %+v, %v", got, err)
	}
}

func TestOpenMemory(t *testing.T) {
	s, err := Open(":memory:")
	if err != nil {
		t.Fatalf("Open(:memory:) error = %v", err)
	}
	defer s.Close()
	if err := s.Ping(context.Background()); err != nil {
		t.Fatalf("Ping() error = %v", err)
	}
}
