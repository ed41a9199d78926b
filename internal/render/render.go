// Package render exports forecast charts to PNG through a remote Chromium
// reached over the DevTools protocol.
package render

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"time"

	"github.com/chromedp/cdproto/emulation"
	"github.com/chromedp/cdproto/page"
	"github.com/chromedp/chromedp"

	"github.com/dgnsrekt/psx_forecast/internal/types"
)

// Config holds export settings.
type Config struct {
	CDPAddress string
	CDPPort    int
	// BaseURL is where the browser reaches the dashboard, e.g. http://127.0.0.1:8501.
	BaseURL string
	Width   int64
	Height  int64
	Timeout time.Duration
	// Settle is how long to wait after the canvas appears for chart animations.
	Settle time.Duration
}

// Renderer captures chart pages. A nil Renderer reports exports as unavailable.
type Renderer struct {
	cfg Config
}

// New returns a Renderer with defaults applied.
func New(cfg Config) *Renderer {
	if cfg.Width <= 0 {
		cfg.Width = 1000
	}
	if cfg.Height <= 0 {
		cfg.Height = 600
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.Settle <= 0 {
		cfg.Settle = 800 * time.Millisecond
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	return &Renderer{cfg: cfg}
}

// CDPURL is the DevTools HTTP endpoint of the browser.
func (r *Renderer) CDPURL() string {
	return fmt.Sprintf("http://%s:%d", r.cfg.CDPAddress, r.cfg.CDPPort)
}

// ChartURL is the dashboard page that renders forecast id.
func (r *Renderer) ChartURL(id string) string {
	return r.cfg.BaseURL + "/forecasts/" + url.PathEscape(id) + "/chart"
}

// Capture loads the chart page for id and returns a PNG screenshot.
func (r *Renderer) Capture(ctx context.Context, id string) ([]byte, error) {
	if r == nil {
		return nil, types.NewError(types.CodeExportUnavailable, "chart export is disabled", nil)
	}

	ctx, cancel := context.WithTimeout(ctx, r.cfg.Timeout)
	defer cancel()

	allocCtx, allocCancel := chromedp.NewRemoteAllocator(ctx, r.CDPURL())
	defer allocCancel()
	tabCtx, tabCancel := chromedp.NewContext(allocCtx)
	defer tabCancel()

	target := r.ChartURL(id)
	start := time.Now()
	var buf []byte
	err := chromedp.Run(tabCtx,
		emulation.SetDeviceMetricsOverride(r.cfg.Width, r.cfg.Height, 1, false),
		chromedp.Navigate(target),
		chromedp.WaitVisible("canvas", chromedp.ByQuery),
		chromedp.Sleep(r.cfg.Settle),
		chromedp.ActionFunc(func(ctx context.Context) error {
			var err error
			buf, err = page.CaptureScreenshot().
				WithFormat(page.CaptureScreenshotFormatPng).
				Do(ctx)
			return err
		}),
	)
	if err != nil {
		return nil, types.NewError(types.CodeExportUnavailable, "chart export failed", fmt.Errorf("render %s: %w", target, err))
	}
	slog.Debug("chart exported", "id", id, "bytes", len(buf), "duration_ms", time.Since(start).Milliseconds())
	return buf, nil
}
