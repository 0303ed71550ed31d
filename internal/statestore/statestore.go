// Package statestore persists the extractor's cursor triple as a single
// JSON file, written atomically so a crash mid-write never leaves a
// mix of old and new cursor values on disk.
package statestore

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
)

// Store is a durable key→string mapping backed by one file. The
// mapping is cached in memory after Load (or the first Set) so Get
// never has to re-read, and can never confuse "file absent" with
// "file present but corrupted".
type Store struct {
	path string

	mu     sync.Mutex
	values map[string]string
}

// New returns a Store backed by the file at path. Load must be called
// once before Get returns anything persisted by a prior run.
func New(path string) *Store { return &Store{path: path} }

// Load reads the backing file once and caches its contents. A missing
// file is not an error — it means no prior sync has run — but a
// present file that fails to parse as JSON is a fatal error: the
// caller must not silently treat corruption as "no cursor yet" and
// resync the whole catalog.
func (s *Store) Load() error {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			s.mu.Lock()
			s.values = map[string]string{}
			s.mu.Unlock()
			return nil
		}
		return fmt.Errorf("statestore: reading %s: %w", s.path, err)
	}

	var values map[string]string
	if err := json.Unmarshal(data, &values); err != nil {
		return fmt.Errorf("statestore: %s is corrupted: %w", s.path, err)
	}

	s.mu.Lock()
	s.values = values
	s.mu.Unlock()
	return nil
}

// Get returns the cached value for key, and false if it was never set.
func (s *Store) Get(key string) (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.values[key]
	return v, ok
}

// Set atomically replaces the persisted state with values: the whole
// mapping is written to a temp file in the same directory, fsynced,
// then renamed over the target path, so readers never observe a
// partial write.
func (s *Store) Set(values map[string]string) error {
	data, err := json.MarshalIndent(values, "", "  ")
	if err != nil {
		return err
	}

	dir := filepath.Dir(s.path)
	tmp, err := os.CreateTemp(dir, filepath.Base(s.path)+".tmp-*")
	if err != nil {
		return err
	}
	tmpPath := tmp.Name()
	defer func() { _ = os.Remove(tmpPath) }() // no-op once the rename below succeeds

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		return err
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	if err := os.Rename(tmpPath, s.path); err != nil {
		return err
	}

	s.mu.Lock()
	s.values = values
	s.mu.Unlock()
	return nil
}
