// Package archive keeps completed forecast runs on disk as JSON files with an
// optional PNG rendering of the chart.
package archive

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/dgnsrekt/psx_forecast/internal/forecast"
	"github.com/dgnsrekt/psx_forecast/internal/types"
)

var uuidRe = regexp.MustCompile(`^[0-9a-f]{8}-[0-9a-f]{4}-[0-9a-f]{4}-[0-9a-f]{4}-[0-9a-f]{12}$`)

// Meta describes an archived forecast.
type Meta struct {
	ID        string    `json:"id"`
	Ticker    string    `json:"ticker"`
	Symbol    string    `json:"symbol"`
	Email     string    `json:"email,omitempty"`
	Trend     string    `json:"trend"`
	CreatedAt time.Time `json:"created_at"`
	HasImage  bool      `json:"has_image"`
}

// Record is the on-disk document.
type Record struct {
	Meta   Meta            `json:"meta"`
	Result forecast.Result `json:"result"`
}

// Store manages archived forecasts in a directory.
type Store struct {
	dir string
	mu  sync.RWMutex
}

// NewStore creates a Store and ensures the directory exists.
func NewStore(dir string) (*Store, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("archive store: mkdir %s: %w", dir, err)
	}
	return &Store{dir: dir}, nil
}

func (s *Store) validateID(id string) error {
	if !uuidRe.MatchString(id) {
		return types.NewError(types.CodeValidation, fmt.Sprintf("invalid forecast id: %q", id), nil)
	}
	return nil
}

func (s *Store) jsonPath(id string) string { return filepath.Join(s.dir, id+".json") }
func (s *Store) pngPath(id string) string  { return filepath.Join(s.dir, id+".png") }

// Save writes the record document.
func (s *Store) Save(rec Record) error {
	if err := s.validateID(rec.Meta.ID); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	return s.write(rec)
}

// AttachImage stores a PNG rendering for an existing record. The record
// check and both writes happen under one lock, so a concurrent Delete
// either wins outright or removes the image along with the record.
func (s *Store) AttachImage(id string, png []byte) error {
	if err := s.validateID(id); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	rec, err := s.read(id)
	if err != nil {
		return err
	}
	if err := os.WriteFile(s.pngPath(id), png, 0o644); err != nil {
		return fmt.Errorf("archive store: write image: %w", err)
	}
	rec.Meta.HasImage = true
	if err := s.write(rec); err != nil {
		s.removeQuiet(s.pngPath(id))
		return err
	}
	return nil
}

// Get reads a record by ID.
func (s *Store) Get(id string) (Record, error) {
	if err := s.validateID(id); err != nil {
		return Record{}, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.read(id)
}

// read loads a record. Callers hold s.mu.
func (s *Store) read(id string) (Record, error) {
	data, err := os.ReadFile(s.jsonPath(id))
	if err != nil {
		if os.IsNotExist(err) {
			return Record{}, types.NewError(types.CodeNotFound, "forecast not found: "+id, nil)
		}
		return Record{}, fmt.Errorf("archive store: read record: %w", err)
	}
	var rec Record
	if err := json.Unmarshal(data, &rec); err != nil {
		return Record{}, fmt.Errorf("archive store: unmarshal record: %w", err)
	}
	return rec, nil
}

// write stores a record. Callers hold s.mu for writing.
func (s *Store) write(rec Record) error {
	data, err := json.MarshalIndent(rec, "", "  ")
	if err != nil {
		return fmt.Errorf("archive store: marshal record: %w", err)
	}
	if err := os.WriteFile(s.jsonPath(rec.Meta.ID), data, 0o644); err != nil {
		return fmt.Errorf("archive store: write record: %w", err)
	}
	return nil
}

// List returns archived forecasts newest first. A non-empty ticker filters
// on the ticker, case-insensitively.
func (s *Store) List(ticker string) ([]Meta, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	matches, err := filepath.Glob(filepath.Join(s.dir, "*.json"))
	if err != nil {
		return nil, fmt.Errorf("archive store: glob: %w", err)
	}

	metas := make([]Meta, 0, len(matches))
	for _, path := range matches {
		data, err := os.ReadFile(path)
		if err != nil {
			slog.Debug("archive record unreadable", "path", path, "error", err)
			continue
		}
		var rec Record
		if err := json.Unmarshal(data, &rec); err != nil {
			slog.Debug("archive record corrupt", "path", path, "error", err)
			continue
		}
		if ticker != "" && !strings.EqualFold(rec.Meta.Ticker, ticker) {
			continue
		}
		metas = append(metas, rec.Meta)
	}

	sort.Slice(metas, func(i, j int) bool {
		return metas[i].CreatedAt.After(metas[j].CreatedAt)
	})
	return metas, nil
}

// ReadImage returns the PNG for id.
func (s *Store) ReadImage(id string) ([]byte, error) {
	if err := s.validateID(id); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, err := s.read(id)
	if err != nil {
		return nil, err
	}
	if !rec.Meta.HasImage {
		return nil, types.NewError(types.CodeNotFound, "forecast image not found: "+id, nil)
	}
	data, err := os.ReadFile(s.pngPath(id))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, types.NewError(types.CodeNotFound, "forecast image not found: "+id, nil)
		}
		return nil, fmt.Errorf("archive store: read image: %w", err)
	}
	return data, nil
}

// Delete removes the record and its image.
func (s *Store) Delete(id string) error {
	if err := s.validateID(id); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if err := os.Remove(s.jsonPath(id)); err != nil {
		if os.IsNotExist(err) {
			return types.NewError(types.CodeNotFound, "forecast not found: "+id, nil)
		}
		return fmt.Errorf("archive store: delete record: %w", err)
	}
	s.removeQuiet(s.pngPath(id))
	return nil
}

func (s *Store) removeQuiet(path string) {
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		slog.Debug("archive image cleanup failed", "path", path, "error", err)
	}
}
