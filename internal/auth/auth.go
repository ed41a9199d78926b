// Package auth registers users, checks credentials and manages login sessions.
package auth

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"log/slog"
	"net/mail"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/dgnsrekt/psx_forecast/internal/types"
)

const (
	DefaultPlan = "Free"

	msgMandatory    = "All fields are mandatory."
	msgExists       = "User already exists."
	msgInvalidCreds = "Invalid credentials."
	msgNoSession    = "Please login/register to proceed."
)

// ErrNotFound is returned by a Repository when no row matches.
var ErrNotFound = errors.New("auth: not found")

// ErrDuplicate is returned by a Repository when the email is taken.
var ErrDuplicate = errors.New("auth: duplicate user")

// User is a registered account.
type User struct {
	Email        string    `json:"email"`
	PasswordHash string    `json:"-"`
	Phone        string    `json:"phone"`
	Plan         string    `json:"plan"`
	CreatedAt    time.Time `json:"created_at"`
}

// Session is an authenticated login.
type Session struct {
	Token     string    `json:"token"`
	Email     string    `json:"email"`
	ExpiresAt time.Time `json:"expires_at"`
}

// Repository persists users and sessions.
type Repository interface {
	CreateUser(ctx context.Context, u User) error
	FindUserByEmail(ctx context.Context, email string) (User, error)
	UpdatePasswordHash(ctx context.Context, email, hash string) error
	CreateSession(ctx context.Context, s Session) error
	GetSession(ctx context.Context, token string) (Session, error)
	DeleteSession(ctx context.Context, token string) error
	DeleteExpiredSessions(ctx context.Context, now time.Time) (int64, error)
}

// Service implements registration and login.
type Service struct {
	repo Repository
	ttl  time.Duration
	cost int
	now  func() time.Time
}

// NewService creates an auth service. ttl is the session lifetime.
func NewService(repo Repository, ttl time.Duration) *Service {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &Service{repo: repo, ttl: ttl, cost: bcrypt.DefaultCost, now: time.Now}
}

// WithCost sets the bcrypt cost used for new hashes.
func (s *Service) WithCost(cost int) *Service {
	if cost >= bcrypt.MinCost && cost <= bcrypt.MaxCost {
		s.cost = cost
	}
	return s
}

// NormalizeEmail lower-cases and trims an email address.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// Register creates a new user on the Free plan.
func (s *Service) Register(ctx context.Context, email, password, phone string) (User, error) {
	email = NormalizeEmail(email)
	phone = strings.TrimSpace(phone)
	if email == "" || password == "" || phone == "" {
		return User{}, types.NewError(types.CodeValidation, msgMandatory, nil)
	}
	if _, err := mail.ParseAddress(email); err != nil {
		return User{}, types.NewError(types.CodeValidation, "Invalid email address.", err)
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), s.cost)
	if err != nil {
		return User{}, types.NewError(types.CodeValidation, "password cannot be hashed", err)
	}
	u := User{
		Email:        email,
		PasswordHash: string(hash),
		Phone:        phone,
		Plan:         DefaultPlan,
		CreatedAt:    s.now().UTC(),
	}
	if err := s.repo.CreateUser(ctx, u); err != nil {
		if errors.Is(err, ErrDuplicate) {
			return User{}, types.NewError(types.CodeConflict, msgExists, err)
		}
		return User{}, types.NewError(types.CodeStorage, "register failed", err)
	}
	slog.Info("user registered", "email", email)
	return u, nil
}

// Login verifies credentials and opens a session.
func (s *Service) Login(ctx context.Context, email, password string) (Session, User, error) {
	email = NormalizeEmail(email)
	u, err := s.repo.FindUserByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return Session{}, User{}, types.NewError(types.CodeInvalidCredentials, msgInvalidCreds, nil)
		}
		return Session{}, User{}, types.NewError(types.CodeStorage, "login failed", err)
	}
	ok, legacy := checkPassword(u.PasswordHash, password)
	if !ok {
		slog.Info("login rejected", "email", email)
		return Session{}, User{}, types.NewError(types.CodeInvalidCredentials, msgInvalidCreds, nil)
	}
	if legacy {
		s.upgradeHash(ctx, &u, password)
	}

	sess := Session{
		Token:     uuid.NewString(),
		Email:     u.Email,
		ExpiresAt: s.now().Add(s.ttl).UTC(),
	}
	if err := s.repo.CreateSession(ctx, sess); err != nil {
		return Session{}, User{}, types.NewError(types.CodeStorage, "login failed", err)
	}
	slog.Info("user logged in", "email", u.Email)
	return sess, u, nil
}

// Logout ends the session. Unknown tokens are ignored.
func (s *Service) Logout(ctx context.Context, token string) error {
	if strings.TrimSpace(token) == "" {
		return nil
	}
	if err := s.repo.DeleteSession(ctx, token); err != nil && !errors.Is(err, ErrNotFound) {
		return types.NewError(types.CodeStorage, "logout failed", err)
	}
	return nil
}

// Authenticate resolves a session token to its user.
func (s *Service) Authenticate(ctx context.Context, token string) (User, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return User{}, types.NewError(types.CodeUnauthorized, msgNoSession, nil)
	}
	sess, err := s.repo.GetSession(ctx, token)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return User{}, types.NewError(types.CodeUnauthorized, msgNoSession, nil)
		}
		return User{}, types.NewError(types.CodeStorage, "session lookup failed", err)
	}
	if !s.now().Before(sess.ExpiresAt) {
		if err := s.repo.DeleteSession(ctx, token); err != nil {
			slog.Debug("expired session delete failed", "error", err)
		}
		return User{}, types.NewError(types.CodeUnauthorized, msgNoSession, nil)
	}
	u, err := s.repo.FindUserByEmail(ctx, sess.Email)
	if err != nil {
		return User{}, types.NewError(types.CodeUnauthorized, msgNoSession, err)
	}
	return u, nil
}

// PurgeExpired removes sessions past their expiry.
func (s *Service) PurgeExpired(ctx context.Context) (int64, error) {
	return s.repo.DeleteExpiredSessions(ctx, s.now())
}

func (s *Service) upgradeHash(ctx context.Context, u *User, password string) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), s.cost)
	if err != nil {
		slog.Warn("password hash upgrade failed", "email", u.Email, "error", err)
		return
	}
	if err := s.repo.UpdatePasswordHash(ctx, u.Email, string(hash)); err != nil {
		slog.Warn("password hash upgrade failed", "email", u.Email, "error", err)
		return
	}
	u.PasswordHash = string(hash)
	slog.Info("password hash upgraded", "email", u.Email)
}

// checkPassword reports whether password matches hash. legacy is true when
// the stored hash is an unsalted SHA-256 hex digest.
func checkPassword(hash, password string) (ok, legacy bool) {
	if isLegacyHash(hash) {
		sum := sha256.Sum256([]byte(password))
		return hex.EncodeToString(sum[:]) == strings.ToLower(hash), true
	}
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)) == nil, false
}

func isLegacyHash(hash string) bool {
	if len(hash) != sha256.Size*2 {
		return false
	}
	_, err := hex.DecodeString(hash)
	return err == nil
}
