// Package store persists listener-facing state on disk: saved noise
// floors per frequency, bookmarks and the recordings directory.
package store

import (
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strconv"
	"sync"
)

// SquelchStore maps frequencies (Hz, decimal string keys) to saved noise
// floors in a JSON file.
type SquelchStore struct {
	path string

	mu     sync.RWMutex
	floors map[string]float64
}

// OpenSquelch loads path, starting empty when it does not exist yet.
func OpenSquelch(path string) (*SquelchStore, error) {
	s := &SquelchStore{path: path, floors: make(map[string]float64)}
	b, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		log.Printf("[INFO] store: new squelch file %s", path)
		return s, nil
	}
	if err != nil {
		return nil, fmt.Errorf("store: read %s: %w", path, err)
	}
	if err := json.Unmarshal(b, &s.floors); err != nil {
		return nil, fmt.Errorf("store: parse %s: %w", path, err)
	}
	log.Printf("[INFO] store: loaded %d squelch floors", len(s.floors))
	return s, nil
}

// Get returns the saved floor for freq.
func (s *SquelchStore) Get(freq uint32) (float64, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	f, ok := s.floors[strconv.FormatUint(uint64(freq), 10)]
	return f, ok
}

// Put saves floor for freq and rewrites the file.
func (s *SquelchStore) Put(freq uint32, floor float64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.floors[strconv.FormatUint(uint64(freq), 10)] = floor
	return s.flush()
}

func (s *SquelchStore) flush() error {
	return writeJSON(s.path, s.floors)
}

// writeJSON replaces path with v, indented, through a temp file in the
// same directory.
func writeJSON(path string, v any) error {
	b, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	tmp, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+"-*")
	if err != nil {
		return fmt.Errorf("store: %w", err)
	}
	if _, err := tmp.Write(b); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return fmt.Errorf("store: write: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("store: write: %w", err)
	}
	return os.Rename(tmp.Name(), path)
}
