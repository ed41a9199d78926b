// Package store persists users, sessions and portfolio documents in SQLite.
package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"github.com/dgnsrekt/psx_forecast/internal/auth"
	"github.com/dgnsrekt/psx_forecast/internal/portfolio"
)

const schema = `
CREATE TABLE IF NOT EXISTS users (
	email TEXT PRIMARY KEY,
	password TEXT NOT NULL,
	phone TEXT NOT NULL,
	plan TEXT NOT NULL DEFAULT 'Free',
	created_at TEXT NOT NULL
);
CREATE TABLE IF NOT EXISTS portfolios (
	email TEXT PRIMARY KEY,
	stocks TEXT NOT NULL,
	updated_at TEXT NOT NULL
);
CREATE TABLE IF NOT EXISTS sessions (
	token TEXT PRIMARY KEY,
	email TEXT NOT NULL,
	expires_at TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_sessions_email ON sessions(email);
CREATE INDEX IF NOT EXISTS idx_sessions_expires ON sessions(expires_at);
`

// timeLayout is fixed width so stored timestamps compare lexically.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

// Store is the SQLite backed repository for auth and portfolio data.
type Store struct {
	db   *sql.DB
	path string
}

// Open opens (creating if needed) the database at path. ":memory:" opens a
// private in-memory database.
func Open(path string) (*Store, error) {
	dsn := path
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("store: mkdir %s: %w", filepath.Dir(path), err)
		}
		dsn = "file:" + path + "?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)"
	}
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("store: open %s: %w", path, err)
	}
	// SQLite allows a single writer; one connection also keeps :memory: shared.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("store: create schema: %w", err)
	}
	return &Store{db: db, path: path}, nil
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

// Ping checks the database connection.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *Store) CreateUser(ctx context.Context, u auth.User) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO users (email, password, phone, plan, created_at) VALUES (?, ?, ?, ?, ?)`,
		u.Email, u.PasswordHash, u.Phone, u.Plan, u.CreatedAt.UTC().Format(timeLayout))
	if err != nil {
		if isUniqueViolation(err) {
			return auth.ErrDuplicate
		}
		return fmt.Errorf("store: insert user: %w", err)
	}
	return nil
}

func (s *Store) FindUserByEmail(ctx context.Context, email string) (auth.User, error) {
	var (
		u       auth.User
		created string
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT email, password, phone, plan, created_at FROM users WHERE email = ? LIMIT 1`, email).
		Scan(&u.Email, &u.PasswordHash, &u.Phone, &u.Plan, &created)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return auth.User{}, auth.ErrNotFound
		}
		return auth.User{}, fmt.Errorf("store: select user: %w", err)
	}
	u.CreatedAt, _ = time.Parse(timeLayout, created)
	return u, nil
}

func (s *Store) UpdatePasswordHash(ctx context.Context, email, hash string) error {
	res, err := s.db.ExecContext(ctx, `UPDATE users SET password = ? WHERE email = ?`, hash, email)
	if err != nil {
		return fmt.Errorf("store: update password: %w", err)
	}
	return requireRow(res, auth.ErrNotFound)
}

func (s *Store) CreateSession(ctx context.Context, sess auth.Session) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO sessions (token, email, expires_at) VALUES (?, ?, ?)`,
		sess.Token, sess.Email, sess.ExpiresAt.UTC().Format(timeLayout))
	if err != nil {
		return fmt.Errorf("store: insert session: %w", err)
	}
	return nil
}

func (s *Store) GetSession(ctx context.Context, token string) (auth.Session, error) {
	var (
		sess    auth.Session
		expires string
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT token, email, expires_at FROM sessions WHERE token = ?`, token).
		Scan(&sess.Token, &sess.Email, &expires)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return auth.Session{}, auth.ErrNotFound
		}
		return auth.Session{}, fmt.Errorf("store: select session: %w", err)
	}
	sess.ExpiresAt, err = time.Parse(timeLayout, expires)
	if err != nil {
		return auth.Session{}, fmt.Errorf("store: parse session expiry: %w", err)
	}
	return sess, nil
}

func (s *Store) DeleteSession(ctx context.Context, token string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM sessions WHERE token = ?`, token); err != nil {
		return fmt.Errorf("store: delete session: %w", err)
	}
	return nil
}

func (s *Store) DeleteExpiredSessions(ctx context.Context, now time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM sessions WHERE expires_at <= ?`, now.UTC().Format(timeLayout))
	if err != nil {
		return 0, fmt.Errorf("store: delete expired sessions: %w", err)
	}
	return res.RowsAffected()
}

func (s *Store) GetPortfolio(ctx context.Context, email string) ([]portfolio.Holding, error) {
	var raw string
	err := s.db.QueryRowContext(ctx, `SELECT stocks FROM portfolios WHERE email = ?`, email).Scan(&raw)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, portfolio.ErrNotFound
		}
		return nil, fmt.Errorf("store: select portfolio: %w", err)
	}
	holdings := []portfolio.Holding{}
	if err := json.Unmarshal([]byte(raw), &holdings); err != nil {
		return nil, fmt.Errorf("store: decode portfolio: %w", err)
	}
	return holdings, nil
}

// SavePortfolio replaces the whole portfolio document for email.
func (s *Store) SavePortfolio(ctx context.Context, email string, holdings []portfolio.Holding) error {
	if holdings == nil {
		holdings = []portfolio.Holding{}
	}
	raw, err := json.Marshal(holdings)
	if err != nil {
		return fmt.Errorf("store: encode portfolio: %w", err)
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO portfolios (email, stocks, updated_at) VALUES (?, ?, ?)
		 ON CONFLICT(email) DO UPDATE SET stocks = excluded.stocks, updated_at = excluded.updated_at`,
		email, string(raw), time.Now().UTC().Format(timeLayout))
	if err != nil {
		return fmt.Errorf("store: upsert portfolio: %w", err)
	}
	return nil
}

func requireRow(res sql.Result, notFound error) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return notFound
	}
	return nil
}

func isUniqueViolation(err error) bool {
	return strings.Contains(err.Error(), "UNIQUE constraint failed") ||
		strings.Contains(err.Error(), "constraint failed: UNIQUE")
}
