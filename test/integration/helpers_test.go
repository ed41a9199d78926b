//go:build integration

package integration

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"testing"
	"time"
)

var env *Env

// Env holds shared state for all integration tests.
type Env struct {
	BaseURL string
	Client  *http.Client
	Email   string // registered in TestMain
	Token   string // session for Email
	Ticker  string // forecast and portfolio subject
}

// checkHealth verifies the dashboard answers /api/v1/health.
func (e *Env) checkHealth() error {
	resp, err := e.Client.Get(e.BaseURL + "/api/v1/health")
	if err != nil {
		return fmt.Errorf("dashboard not reachable at %s: %w", e.BaseURL, err)
	}
	defer resp.Body.Close()
	var h struct {
		Status   string `json:"status"`
		Database string `json:"database"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&h); err != nil {
		return fmt.Errorf("decode health: %w", err)
	}
	if h.Status != "ok" {
		return fmt.Errorf("dashboard unhealthy: status=%s database=%s", h.Status, h.Database)
	}
	return nil
}

// signUp registers a throwaway account and opens a session for it.
func (e *Env) signUp() error {
	e.Email = fmt.Sprintf("integration-%d@example.com", time.Now().UnixNano())
	const password = "integration-pass"

	resp, err := e.doJSON(http.MethodPost, "/api/v1/auth/register", map[string]string{
		"email": e.Email, "password": password, "phone": "03001234567",
	})
	if err != nil {
		return fmt.Errorf("register: %w", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusCreated {
		return fmt.Errorf("register: status %d", resp.StatusCode)
	}

	resp, err = e.doJSON(http.MethodPost, "/api/v1/auth/login", map[string]string{
		"email": e.Email, "password": password,
	})
	if err != nil {
		return fmt.Errorf("login: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("login: status %d: %s", resp.StatusCode, body)
	}
	var out struct {
		Token string `json:"token"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return fmt.Errorf("decode login: %w", err)
	}
	e.Token = out.Token
	return nil
}

// doJSON performs an HTTP request with a JSON body and the session token.
func (e *Env) doJSON(method, path string, body any) (*http.Response, error) {
	var r io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("marshal body: %w", err)
		}
		r = bytes.NewReader(b)
	}
	req, err := http.NewRequest(method, e.BaseURL+path, r)
	if err != nil {
		return nil, fmt.Errorf("new request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if e.Token != "" {
		req.Header.Set("Authorization", "Bearer "+e.Token)
	}
	return e.Client.Do(req)
}

func TestMain(m *testing.M) {
	baseURL := os.Getenv("DASHBOARD_URL")
	if baseURL == "" {
		baseURL = "http://127.0.0.1:8501"
	}
	ticker := os.Getenv("INTEGRATION_TICKER")
	if ticker == "" {
		ticker = "HUBC"
	}

	env = &Env{
		BaseURL: baseURL,
		Client:  &http.Client{Timeout: 60 * time.Second},
		Ticker:  ticker,
	}

	if err := env.checkHealth(); err != nil {
		fmt.Fprintf(os.Stderr, "%v\n", err)
		os.Exit(1)
	}
	if err := env.signUp(); err != nil {
		fmt.Fprintf(os.Stderr, "integration: sign up failed: %v\n", err)
		os.Exit(1)
	}
	fmt.Fprintf(os.Stdout, "integration: %s at %s\n", env.Email, env.BaseURL)

	code := m.Run()
	if resp, err := env.doJSON(http.MethodPost, "/api/v1/auth/logout", nil); err == nil {
		resp.Body.Close()
	}
	os.Exit(code)
}

// --- HTTP helpers ---

func (e *Env) GET(t *testing.T, path string) *http.Response {
	t.Helper()
	return e.do(t, http.MethodGet, path, nil)
}

func (e *Env) POST(t *testing.T, path string, body any) *http.Response {
	t.Helper()
	return e.do(t, http.MethodPost, path, body)
}

func (e *Env) DELETE(t *testing.T, path string) *http.Response {
	t.Helper()
	return e.do(t, http.MethodDelete, path, nil)
}

func (e *Env) do(t *testing.T, method, path string, body any) *http.Response {
	t.Helper()
	resp, err := e.doJSON(method, path, body)
	if err != nil {
		t.Fatalf("%s %s: %v", method, path, err)
	}
	return resp
}

// --- Assertion helpers ---

func requireStatus(t *testing.T, resp *http.Response, want int) {
	t.Helper()
	if resp.StatusCode != want {
		body, _ := io.ReadAll(resp.Body)
		t.Fatalf("status = %d, want %d; body: %s", resp.StatusCode, want, body)
	}
}

func decodeJSON[T any](t *testing.T, resp *http.Response) T {
	t.Helper()
	defer resp.Body.Close()
	var v T
	if err := json.NewDecoder(resp.Body).Decode(&v); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	return v
}

func requireField[T comparable](t *testing.T, got, want T, name string) {
	t.Helper()
	if got != want {
		t.Fatalf("%s = %v, want %v", name, got, want)
	}
}
