package main

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/dgnsrekt/psx_forecast/internal/api"
	"github.com/dgnsrekt/psx_forecast/internal/archive"
	"github.com/dgnsrekt/psx_forecast/internal/audit"
	"github.com/dgnsrekt/psx_forecast/internal/auth"
	"github.com/dgnsrekt/psx_forecast/internal/config"
	"github.com/dgnsrekt/psx_forecast/internal/controller"
	"github.com/dgnsrekt/psx_forecast/internal/forecast"
	"github.com/dgnsrekt/psx_forecast/internal/market"
	"github.com/dgnsrekt/psx_forecast/internal/netutil"
	"github.com/dgnsrekt/psx_forecast/internal/notify"
	"github.com/dgnsrekt/psx_forecast/internal/portfolio"
	"github.com/dgnsrekt/psx_forecast/internal/relay"
	"github.com/dgnsrekt/psx_forecast/internal/render"
	"github.com/dgnsrekt/psx_forecast/internal/store"
	"github.com/dgnsrekt/psx_forecast/internal/watchlist"
	"github.com/dgnsrekt/psx_forecast/internal/web"
)

const sessionPurgeInterval = time.Hour

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load dashboard config", "error", err)
		os.Exit(1)
	}

	if err := setupLogger(cfg.LogLevel, cfg.LogFile); err != nil {
		_, _ = io.WriteString(os.Stderr, "logger setup failed: "+err.Error()+"\n")
		os.Exit(1)
	}
	slog.Info("dashboard config loaded", "config", cfg)

	bindAddr, err := netutil.SelectBindAddr(cfg.BindAddr, cfg.BindCandidates(), cfg.PortAutoFallback)
	if err != nil {
		slog.Error("failed to select bind address", "preferred", cfg.BindAddr, "error", err)
		os.Exit(1)
	}

	db, err := store.Open(cfg.DBPath)
	if err != nil {
		slog.Error("failed to open database", "path", cfg.DBPath, "error", err)
		os.Exit(1)
	}
	defer func() {
		if err := db.Close(); err != nil {
			slog.Warn("database close failed", "error", err)
		}
	}()

	forecasts, err := archive.NewStore(cfg.ArchiveDir)
	if err != nil {
		slog.Error("failed to open forecast archive", "dir", cfg.ArchiveDir, "error", err)
		os.Exit(1)
	}

	stocks, err := watchlist.Load(cfg.WatchlistFile)
	if err != nil {
		slog.Error("failed to load watch list", "file", cfg.WatchlistFile, "error", err)
		os.Exit(1)
	}

	auditWriter := audit.NewWriter(cfg.AuditDir, 256, 25)
	defer func() {
		if err := auditWriter.Close(); err != nil {
			slog.Warn("audit writer close failed", "error", err)
		}
	}()

	src := market.NewYahooSource(cfg.MarketTimeout)
	forecaster := forecast.New(src, forecast.Settings{
		Suffix:       cfg.TickerSuffix,
		HistoryYears: cfg.HistoryYears,
		Steps:        cfg.ForecastSteps,
	})

	var alert portfolio.AlertFunc
	if n := notify.New(cfg.NTFYEndpoint, nil); n != nil {
		alert = n.Alert
	}

	broker := relay.NewBroker()
	deps := controller.Deps{
		Auth:      auth.NewService(db, cfg.SessionTTL),
		Forecast:  forecaster,
		Portfolio: portfolio.NewService(db, src, cfg.TickerSuffix, forecaster, alert),
		Archive:   forecasts,
		Audit:     auditWriter,
		Events:    broker,
		DB:        db,
		Watchlist: stocks,
	}
	if cfg.ChartExportEnabled {
		deps.Exporter = render.New(render.Config{
			CDPAddress: cfg.CDPAddress,
			CDPPort:    cfg.CDPPort,
			BaseURL:    cfg.BaseURL(bindAddr),
			Timeout:    cfg.ChartExportTimeout,
		})
		slog.Info("chart export enabled", "cdp_url", cfg.CDPURL())

		if cfg.ChartExportLaunch {
			launcher := render.NewLauncher(render.LaunchConfig{
				CDPAddress: cfg.CDPAddress,
				CDPPort:    cfg.CDPPort,
				ProfileDir: cfg.ChartExportProfileDir,
			})
			if err := launcher.Launch(context.Background()); err != nil {
				slog.Error("failed to launch export browser", "error", err)
				os.Exit(1)
			}
			defer launcher.Stop()
		}
	}
	svc := controller.NewService(deps)

	secure := strings.HasPrefix(cfg.PublicURL, "https://")
	dashboard, err := web.New(svc, secure)
	if err != nil {
		slog.Error("failed to parse dashboard templates", "error", err)
		os.Exit(1)
	}
	h := api.NewServer(svc, api.Options{
		Broker:        broker,
		SecureCookies: secure,
		Mount:         dashboard.Mount,
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go purgeSessions(ctx, svc)

	srv := &http.Server{Addr: bindAddr, Handler: h, ReadHeaderTimeout: 10 * time.Second}

	go func() {
		slog.Info("dashboard listening", "addr", bindAddr, "ui", "http://"+bindAddr+"/", "docs", "http://"+bindAddr+"/docs")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("dashboard server failed", "error", err)
			os.Exit(1)
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("dashboard shutdown failed", "error", err)
	}
	svc.Wait()
}

func purgeSessions(ctx context.Context, svc *controller.Service) {
	ticker := time.NewTicker(sessionPurgeInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := svc.PurgeSessions(ctx)
			if err != nil {
				slog.Warn("session purge failed", "error", err)
				continue
			}
			if n > 0 {
				slog.Info("expired sessions purged", "count", n)
			}
		}
	}
}

func setupLogger(level, filename string) error {
	if err := os.MkdirAll(filepath.Dir(filename), 0o755); err != nil {
		return err
	}

	logWriter := &lumberjack.Logger{
		Filename:   filename,
		MaxSize:    25,
		MaxBackups: 10,
		MaxAge:     14,
		Compress:   true,
	}

	var slogLevel slog.Level
	switch level {
	case "debug":
		slogLevel = slog.LevelDebug
	case "warn":
		slogLevel = slog.LevelWarn
	case "error":
		slogLevel = slog.LevelError
	default:
		slogLevel = slog.LevelInfo
	}

	h := slog.NewTextHandler(io.MultiWriter(os.Stdout, logWriter), &slog.HandlerOptions{Level: slogLevel})
	slog.SetDefault(slog.New(h))
	return nil
}
