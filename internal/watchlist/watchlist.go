// Package watchlist holds the curated "stocks to watch" shown on the dashboard.
package watchlist

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// Entry is one recommended stock.
type Entry struct {
	Ticker string `yaml:"ticker" json:"ticker"`
	Note   string `yaml:"note" json:"note"`
}

// File is the YAML layout of a watch list override.
type File struct {
	Stocks []Entry `yaml:"stocks"`
}

// Default is the built-in list.
func Default() []Entry {
	return []Entry{
		{Ticker: "HUBC", Note: "A strong performer with consistent growth."},
		{Ticker: "OGDC", Note: "Promising due to the increasing oil prices."},
		{Ticker: "PSO", Note: "A major player in the oil sector."},
		{Ticker: "Ufone", Note: "Excellent growth potential in the telecom sector."},
	}
}

// Load reads a watch list file. An empty path returns the default list.
func Load(path string) ([]Entry, error) {
	if strings.TrimSpace(path) == "" {
		return Default(), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("watchlist: %w", err)
	}
	return Parse(data)
}

// Parse decodes and validates YAML watch list content.
func Parse(data []byte) ([]Entry, error) {
	var f File
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("watchlist: %w", err)
	}
	if len(f.Stocks) == 0 {
		return nil, fmt.Errorf("watchlist: no stocks listed")
	}
	for i, e := range f.Stocks {
		if strings.TrimSpace(e.Ticker) == "" {
			return nil, fmt.Errorf("watchlist: stocks[%d] missing ticker", i)
		}
	}
	return f.Stocks, nil
}
