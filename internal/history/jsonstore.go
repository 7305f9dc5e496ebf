package history

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/rs/zerolog/log"

	"github.com/hawkeye-trading/hawkeye/internal/learner"
)

// ---------------------------------------------------------------------------
// JSON file store — outcome history and learned patterns across restarts
// ---------------------------------------------------------------------------

const (
	historyFile  = "performance_history.json"
	patternsFile = "winning_patterns.json"
)

// JSONStore persists learner state as JSON files in a data directory.
type JSONStore struct {
	dir string
}

// NewJSONStore creates the data directory if needed.
func NewJSONStore(dir string) (*JSONStore, error) {
	if dir == "" {
		return nil, fmt.Errorf("history: data directory not set")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("history: create data dir: %w", err)
	}
	return &JSONStore{dir: dir}, nil
}

// LoadHistory reads the outcome history. A missing file is an empty history.
func (s *JSONStore) LoadHistory() ([]learner.Outcome, error) {
	var out []learner.Outcome
	if err := s.read(historyFile, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// SaveHistory writes the outcome history.
func (s *JSONStore) SaveHistory(history []learner.Outcome) error {
	return s.write(historyFile, history)
}

// LoadPatterns reads the learned patterns. A missing file yields nil.
func (s *JSONStore) LoadPatterns() (*learner.Patterns, error) {
	var p learner.Patterns
	if err := s.read(patternsFile, &p); err != nil {
		return nil, err
	}
	if p.TotalTrades == 0 {
		return nil, nil
	}
	return &p, nil
}

// SavePatterns writes the learned patterns.
func (s *JSONStore) SavePatterns(p learner.Patterns) error {
	return s.write(patternsFile, p)
}

func (s *JSONStore) read(name string, v any) error {
	data, err := os.ReadFile(filepath.Join(s.dir, name))
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("history: read %s: %w", name, err)
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("history: parse %s: %w", name, err)
	}
	return nil
}

// write replaces the file atomically so a crash mid-write never leaves a
// truncated history behind.
func (s *JSONStore) write(name string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("history: marshal %s: %w", name, err)
	}

	path := filepath.Join(s.dir, name)
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("history: write %s: %w", name, err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("history: replace %s: %w", name, err)
	}

	log.Debug().Str("file", name).Int("bytes", len(data)).Msg("history: saved")
	return nil
}
