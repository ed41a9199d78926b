package render

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/exec"
	"runtime"
	"strconv"
	"syscall"
	"time"
)

// LaunchConfig describes the headless browser started for chart export.
type LaunchConfig struct {
	CDPAddress string
	CDPPort    int
	ProfileDir string
	// Binary overrides browser detection when set.
	Binary     string
	ReadyAfter time.Duration
}

// Launcher owns a headless Chromium process used only for screenshots.
type Launcher struct {
	cfg     LaunchConfig
	cmd     *exec.Cmd
	running bool
}

func NewLauncher(cfg LaunchConfig) *Launcher {
	if cfg.ReadyAfter <= 0 {
		cfg.ReadyAfter = 15 * time.Second
	}
	return &Launcher{cfg: cfg}
}

func detectBrowser() (string, error) {
	for _, name := range []string{"chromium-browser", "chromium", "google-chrome", "headless-shell"} {
		if path, err := exec.LookPath(name); err == nil {
			return path, nil
		}
	}
	if runtime.GOOS == "darwin" {
		macPath := "/Applications/Google Chrome.app/Contents/MacOS/Google Chrome"
		if _, err := os.Stat(macPath); err == nil {
			return macPath, nil
		}
	}
	return "", fmt.Errorf("no headless browser found (tried chromium-browser, chromium, google-chrome, headless-shell)")
}

func portInUse(address string, port int) bool {
	conn, err := net.DialTimeout("tcp", net.JoinHostPort(address, strconv.Itoa(port)), time.Second)
	if err != nil {
		return false
	}
	_ = conn.Close()
	return true
}

// Launch starts headless Chromium with remote debugging. A browser already
// listening on the CDP port is reused.
func (l *Launcher) Launch(ctx context.Context) error {
	if portInUse(l.cfg.CDPAddress, l.cfg.CDPPort) {
		slog.Info("export browser already running", "address", l.cfg.CDPAddress, "port", l.cfg.CDPPort)
		return nil
	}

	path := l.cfg.Binary
	if path == "" {
		var err error
		if path, err = detectBrowser(); err != nil {
			return err
		}
	}
	if err := os.MkdirAll(l.cfg.ProfileDir, 0o755); err != nil {
		return fmt.Errorf("create export profile dir: %w", err)
	}

	args := []string{
		"--headless=new",
		fmt.Sprintf("--remote-debugging-port=%d", l.cfg.CDPPort),
		fmt.Sprintf("--remote-debugging-address=%s", l.cfg.CDPAddress),
		fmt.Sprintf("--user-data-dir=%s", l.cfg.ProfileDir),
		"--no-first-run",
		"--disable-gpu",
		"--disable-dev-shm-usage",
		"--disable-breakpad",
		"--hide-scrollbars",
		"about:blank",
	}
	l.cmd = exec.Command(path, args...)
	if err := l.cmd.Start(); err != nil {
		return fmt.Errorf("start export browser: %w", err)
	}
	l.running = true
	slog.Info("export browser started", "path", path, "pid", l.cmd.Process.Pid)

	if err := l.waitReady(ctx); err != nil {
		l.Stop()
		return fmt.Errorf("waiting for export browser: %w", err)
	}
	return nil
}

// waitReady polls /json/version until the DevTools endpoint answers.
func (l *Launcher) waitReady(ctx context.Context) error {
	url := fmt.Sprintf("http://%s/json/version", net.JoinHostPort(l.cfg.CDPAddress, strconv.Itoa(l.cfg.CDPPort)))
	deadline := time.After(l.cfg.ReadyAfter)
	ticker := time.NewTicker(250 * time.Millisecond)
	defer ticker.Stop()

	client := &http.Client{Timeout: time.Second}
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-deadline:
			return fmt.Errorf("devtools not ready within %s at %s", l.cfg.ReadyAfter, url)
		case <-ticker.C:
			resp, err := client.Get(url)
			if err != nil {
				continue
			}
			_ = resp.Body.Close()
			if resp.StatusCode == http.StatusOK {
				return nil
			}
		}
	}
}

// Running reports whether this launcher spawned the browser.
func (l *Launcher) Running() bool {
	return l.running
}

// Stop sends SIGTERM and escalates to SIGKILL after five seconds.
func (l *Launcher) Stop() {
	if l.cmd == nil || l.cmd.Process == nil {
		return
	}
	_ = l.cmd.Process.Signal(syscall.SIGTERM)

	done := make(chan struct{})
	go func() {
		_ = l.cmd.Wait()
		close(done)
	}()

	select {
	case <-done:
		slog.Info("export browser stopped")
	case <-time.After(5 * time.Second):
		slog.Warn("export browser did not exit, sending SIGKILL")
		_ = l.cmd.Process.Kill()
		<-done
	}
	l.running = false
}
