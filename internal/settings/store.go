// Package settings persists the global display options across sessions.
package settings

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
)

// Store is a hierarchical key-value store. Set only mutates memory; callers
// flush with Save, at the latest on teardown.
type Store interface {
	Get(path ...string) (any, bool)
	Set(path []string, value any)
	Save() error
}

// FileStore keeps the settings tree in memory and writes it as JSON on Save.
type FileStore struct {
	path string
	tree map[string]any
	mu   sync.RWMutex
}

// NewFileStore creates a store backed by <dataDir>/settings.json, seeded with
// defaults. Call Load to merge the persisted values.
func NewFileStore(dataDir string, defaults map[string]any) *FileStore {
	return &FileStore{
		path: filepath.Join(dataDir, "settings.json"),
		tree: clone(defaults),
	}
}

// Path returns the backing file.
func (s *FileStore) Path() string {
	return s.path
}

// Load merges the persisted tree over the defaults. A missing file is not an
// error; an unreadable one leaves the defaults in place.
func (s *FileStore) Load() error {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("reading settings: %w", err)
	}

	var stored map[string]any
	if err := json.Unmarshal(data, &stored); err != nil {
		return fmt.Errorf("parsing settings %s: %w", s.path, err)
	}

	s.mu.Lock()
	merge(s.tree, stored)
	s.mu.Unlock()
	return nil
}

// Get walks path through nested objects.
func (s *FileStore) Get(path ...string) (any, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var cur any = s.tree
	for _, key := range path {
		m, ok := cur.(map[string]any)
		if !ok {
			return nil, false
		}
		if cur, ok = m[key]; !ok {
			return nil, false
		}
	}
	return cur, true
}

// Set stores value at path, creating intermediate objects.
func (s *FileStore) Set(path []string, value any) {
	if len(path) == 0 {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	m := s.tree
	for _, key := range path[:len(path)-1] {
		next, ok := m[key].(map[string]any)
		if !ok {
			next = make(map[string]any)
			m[key] = next
		}
		m = next
	}
	m[path[len(path)-1]] = value
}

// Save writes the tree to disk.
func (s *FileStore) Save() error {
	s.mu.RLock()
	data, err := json.MarshalIndent(s.tree, "", "  ")
	s.mu.RUnlock()
	if err != nil {
		return err
	}

	if err := os.MkdirAll(filepath.Dir(s.path), 0755); err != nil {
		return err
	}

	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return err
	}
	return os.Rename(tmp, s.path)
}

func clone(src map[string]any) map[string]any {
	out := make(map[string]any, len(src))
	for k, v := range src {
		if m, ok := v.(map[string]any); ok {
			out[k] = clone(m)
			continue
		}
		out[k] = v
	}
	return out
}

// merge copies src into dst, descending into objects present on both sides.
func merge(dst, src map[string]any) {
	for k, v := range src {
		sm, srcIsMap := v.(map[string]any)
		dm, dstIsMap := dst[k].(map[string]any)
		if srcIsMap && dstIsMap {
			merge(dm, sm)
			continue
		}
		if srcIsMap {
			dst[k] = clone(sm)
			continue
		}
		dst[k] = v
	}
}
