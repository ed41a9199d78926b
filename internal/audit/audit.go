// Package audit appends dashboard activity to date-partitioned JSON lines
// files in the background.
package audit

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"gopkg.in/natefinch/lumberjack.v2"
)

// Event kinds written by the dashboard.
const (
	KindRegister    = "user.register"
	KindLogin       = "user.login"
	KindLoginFailed = "user.login_failed"
	KindLogout      = "user.logout"
	KindForecast    = "forecast.run"
	KindHoldingAdd  = "portfolio.add"
	KindHoldingDrop = "portfolio.remove"
	KindRefresh     = "portfolio.refresh"
	KindReview      = "portfolio.review"
)

var (
	ErrClosed     = errors.New("audit writer is closed")
	ErrBufferFull = errors.New("audit buffer full")
)

// Event is one audit line.
type Event struct {
	Time   time.Time      `json:"time"`
	Kind   string         `json:"kind"`
	Email  string         `json:"email,omitempty"`
	Ticker string         `json:"ticker,omitempty"`
	Detail map[string]any `json:"detail,omitempty"`
}

// Recorder accepts audit events.
type Recorder interface {
	Record(ev Event) error
}

// Discard drops every event.
type Discard struct{}

func (Discard) Record(Event) error { return nil }

// Writer queues events and writes them to <dir>/<yyyy-mm-dd>/audit.jsonl.
type Writer struct {
	baseDir     string
	maxSizeMB   int
	writeCh     chan Event
	done        chan struct{}
	closeOnce   sync.Once
	wg          sync.WaitGroup
	currentDate string
	logger      *lumberjack.Logger
	mu          sync.Mutex
	now         func() time.Time
}

// NewWriter starts the background writer.
func NewWriter(baseDir string, bufferSize, maxSizeMB int) *Writer {
	if bufferSize <= 0 {
		bufferSize = 256
	}
	if maxSizeMB <= 0 {
		maxSizeMB = 25
	}
	w := &Writer{
		baseDir:   baseDir,
		maxSizeMB: maxSizeMB,
		writeCh:   make(chan Event, bufferSize),
		done:      make(chan struct{}),
		now:       time.Now,
	}
	w.wg.Add(1)
	go w.writeLoop()
	return w
}

// Record queues ev without blocking. A zero Time is stamped with the current time.
func (w *Writer) Record(ev Event) error {
	if ev.Time.IsZero() {
		ev.Time = w.now().UTC()
	}
	select {
	case <-w.done:
		return ErrClosed
	default:
	}
	select {
	case w.writeCh <- ev:
		return nil
	default:
		slog.Warn("audit buffer full, dropping event", "kind", ev.Kind)
		return ErrBufferFull
	}
}

// Close flushes queued events and closes the current file.
func (w *Writer) Close() error {
	w.closeOnce.Do(func() { close(w.done) })
	w.wg.Wait()

	timeout := time.After(5 * time.Second)
drain:
	for {
		select {
		case ev := <-w.writeCh:
			w.writeEvent(ev)
		case <-timeout:
			slog.Warn("audit writer close timeout, some events may be lost")
			break drain
		default:
			break drain
		}
	}

	w.mu.Lock()
	defer w.mu.Unlock()
	if w.logger != nil {
		return w.logger.Close()
	}
	return nil
}

func (w *Writer) writeLoop() {
	defer w.wg.Done()
	for {
		select {
		case ev := <-w.writeCh:
			w.writeEvent(ev)
		case <-w.done:
			return
		}
	}
}

func (w *Writer) writeEvent(ev Event) {
	data, err := json.Marshal(ev)
	if err != nil {
		slog.Error("audit marshal failed", "error", err, "kind", ev.Kind)
		return
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	date := ev.Time.UTC().Format("2006-01-02")
	if date != w.currentDate || w.logger == nil {
		if err := w.rotateForDate(date); err != nil {
			slog.Error("audit rotate failed", "error", err, "date", date)
			return
		}
	}
	if _, err := w.logger.Write(append(data, '\n')); err != nil {
		slog.Error("audit write failed", "error", err, "kind", ev.Kind)
	}
}

func (w *Writer) rotateForDate(date string) error {
	if w.logger != nil {
		_ = w.logger.Close()
		w.logger = nil
	}
	dir := filepath.Join(w.baseDir, date)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("mkdir %s: %w", dir, err)
	}
	filename := filepath.Join(dir, "audit.jsonl")
	w.logger = &lumberjack.Logger{
		Filename:   filename,
		MaxSize:    w.maxSizeMB,
		MaxBackups: 30,
		MaxAge:     90,
		Compress:   true,
	}
	w.currentDate = date
	slog.Debug("audit file opened", "file", filename)
	return nil
}
