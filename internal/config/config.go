// Package config loads dashboard settings from the environment.
package config

import (
	"fmt"
	"log/slog"
	"net"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"github.com/dgnsrekt/psx_forecast/internal/netutil"
)

// Config holds all configuration for the dashboard and the forecast CLI.
type Config struct {
	BindAddr         string
	PortCandidates   []string
	PortAutoFallback bool
	PublicURL        string
	LogLevel         string
	LogFile          string

	DBPath        string
	ArchiveDir    string
	AuditDir      string
	WatchlistFile string
	SessionTTL    time.Duration

	TickerSuffix  string
	HistoryYears  int
	MarketTimeout time.Duration
	ForecastSteps int

	NTFYEndpoint string

	CDPAddress         string
	CDPPort            int
	ChartExportEnabled bool
	ChartExportTimeout time.Duration
	// ChartExportLaunch starts a headless Chromium when none listens on the CDP port.
	ChartExportLaunch     bool
	ChartExportProfileDir string
}

// Load reads configuration from environment variables and optional .env file.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil {
		slog.Debug("failed to load .env file", "error", err)
	}

	cfg := &Config{
		BindAddr:           getEnvOrDefault("DASHBOARD_BIND_ADDR", "127.0.0.1:8501"),
		PortCandidates:     getEnvListOrDefault("DASHBOARD_PORT_CANDIDATES", []string{"127.0.0.1:8502", "127.0.0.1:8503"}),
		PortAutoFallback:   getEnvBoolOrDefault("DASHBOARD_PORT_AUTO_FALLBACK", true),
		PublicURL:          strings.TrimRight(os.Getenv("DASHBOARD_PUBLIC_URL"), "/"),
		LogLevel:           strings.ToLower(getEnvOrDefault("DASHBOARD_LOG_LEVEL", "info")),
		LogFile:            getEnvOrDefault("DASHBOARD_LOG_FILE", "logs/dashboard.log"),
		DBPath:             getEnvOrDefault("DASHBOARD_DB_PATH", "./data/dashboard.db"),
		ArchiveDir:         getEnvOrDefault("DASHBOARD_ARCHIVE_DIR", "./data/forecasts"),
		AuditDir:           getEnvOrDefault("DASHBOARD_AUDIT_DIR", "./data/audit"),
		WatchlistFile:      os.Getenv("DASHBOARD_WATCHLIST_FILE"),
		TickerSuffix:       getEnvOrDefault("MARKET_TICKER_SUFFIX", ".KA"),
		NTFYEndpoint:       os.Getenv("NTFY_ENDPOINT"),
		CDPAddress:         getEnvOrDefault("CHROMIUM_CDP_ADDRESS", "127.0.0.1"),
		CDPPort:            getEnvIntOrDefault("CHROMIUM_CDP_PORT", 9220),
		ChartExportEnabled: getEnvBoolOrDefault("CHART_EXPORT_ENABLED", false),
	}
	cfg.ChartExportLaunch = getEnvBoolOrDefault("CHART_EXPORT_LAUNCH_BROWSER", false)
	cfg.ChartExportProfileDir = getEnvOrDefault("CHART_EXPORT_PROFILE_DIR", "./data/chromium")

	ttlHours := getEnvIntOrDefault("DASHBOARD_SESSION_TTL_HOURS", 24)
	if ttlHours < 1 {
		ttlHours = 1
	}
	cfg.SessionTTL = time.Duration(ttlHours) * time.Hour

	cfg.HistoryYears = getEnvIntOrDefault("MARKET_HISTORY_YEARS", 5)
	if cfg.HistoryYears < 3 {
		cfg.HistoryYears = 3
	}

	timeoutMS := getEnvIntOrDefault("MARKET_TIMEOUT_MS", 15000)
	if timeoutMS < 1000 {
		timeoutMS = 1000
	}
	cfg.MarketTimeout = time.Duration(timeoutMS) * time.Millisecond

	cfg.ForecastSteps = getEnvIntOrDefault("FORECAST_STEPS", 6)
	if cfg.ForecastSteps < 1 {
		cfg.ForecastSteps = 1
	}
	if cfg.ForecastSteps > 24 {
		cfg.ForecastSteps = 24
	}

	exportMS := getEnvIntOrDefault("CHART_EXPORT_TIMEOUT_MS", 30000)
	if exportMS < 5000 {
		exportMS = 5000
	}
	cfg.ChartExportTimeout = time.Duration(exportMS) * time.Millisecond

	if !strings.HasPrefix(cfg.TickerSuffix, ".") && cfg.TickerSuffix != "" {
		cfg.TickerSuffix = "." + cfg.TickerSuffix
	}
	return cfg, nil
}

// CDPURL returns the CDP HTTP endpoint used for chart export.
func (c *Config) CDPURL() string {
	return fmt.Sprintf("http://%s:%d", c.CDPAddress, c.CDPPort)
}

// BindCandidates returns the fallback listen addresses. Bare ports in
// DASHBOARD_PORT_CANDIDATES take the host of DASHBOARD_BIND_ADDR.
func (c *Config) BindCandidates() []string {
	host, _, err := net.SplitHostPort(c.BindAddr)
	if err != nil {
		host = "127.0.0.1"
	}
	return netutil.CandidateAddrs(host, c.PortCandidates)
}

// BaseURL is the address the export browser uses to reach the dashboard.
// It falls back to the bound address when DASHBOARD_PUBLIC_URL is unset.
func (c *Config) BaseURL(boundAddr string) string {
	if c.PublicURL != "" {
		return c.PublicURL
	}
	return "http://" + boundAddr
}

// LogValue summarises the configuration for the startup log line.
func (c *Config) LogValue() slog.Value {
	return slog.GroupValue(
		slog.String("bind_addr", c.BindAddr),
		slog.String("db_path", c.DBPath),
		slog.String("archive_dir", c.ArchiveDir),
		slog.String("audit_dir", c.AuditDir),
		slog.String("ticker_suffix", c.TickerSuffix),
		slog.Int("history_years", c.HistoryYears),
		slog.Int("forecast_steps", c.ForecastSteps),
		slog.Duration("session_ttl", c.SessionTTL),
		slog.Bool("ntfy", c.NTFYEndpoint != ""),
		slog.Bool("chart_export", c.ChartExportEnabled),
	)
}

func getEnvOrDefault(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}

func getEnvIntOrDefault(key string, defaultVal int) int {
	if val := os.Getenv(key); val != "" {
		if i, err := strconv.Atoi(val); err == nil {
			return i
		}
	}
	return defaultVal
}

func getEnvBoolOrDefault(key string, defaultVal bool) bool {
	if val := os.Getenv(key); val != "" {
		if b, err := strconv.ParseBool(val); err == nil {
			return b
		}
	}
	return defaultVal
}

func getEnvListOrDefault(key string, defaultVal []string) []string {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal
	}
	var out []string
	for _, part := range strings.Split(val, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
