// Package config provides the runtime configuration store surfaced
// through the config.get / config.patch host commands.
//
// The document is a free-form map persisted as YAML with atomic writes.
// Keys are dotted paths ("voice.wake_word"); reads may instead use a jq
// expression (anything starting with '.') for structured queries.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/goccy/go-yaml"
	"github.com/itchyny/gojq"
)

// ErrNotFound is returned when a requested key has no value.
var ErrNotFound = errors.New("config: key not found")

// Store holds the runtime config document. A Store with an empty path is
// memory-only: Patch updates the document but persists nothing, which is
// what the runtime uses when no data directory is configured.
type Store struct {
	mu   sync.RWMutex
	path string
	doc  map[string]any
}

// Open loads (or initializes) the config document at dir/config.yaml.
// An empty dir yields a memory-only store.
func Open(dir string) (*Store, error) {
	s := &Store{doc: map[string]any{}}
	if dir == "" {
		return s, nil
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("config: create dir: %w", err)
	}
	s.path = filepath.Join(dir, "config.yaml")

	data, err := os.ReadFile(s.path)
	if errors.Is(err, os.ErrNotExist) {
		return s, nil
	}
	if err != nil {
		return nil, fmt.Errorf("config: read %s: %w", s.path, err)
	}
	if len(data) > 0 {
		if err := yaml.Unmarshal(data, &s.doc); err != nil {
			return nil, fmt.Errorf("config: parse %s: %w", s.path, err)
		}
	}
	if s.doc == nil {
		s.doc = map[string]any{}
	}
	return s, nil
}

// Document returns a deep copy of the whole config document.
func (s *Store) Document() map[string]any {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return copyMap(s.doc)
}

// Get returns the value at a dotted key path. An empty key returns the
// whole document.
func (s *Store) Get(key string) (any, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if key == "" {
		return copyMap(s.doc), nil
	}
	cur := any(s.doc)
	for _, seg := range strings.Split(key, ".") {
		m, ok := cur.(map[string]any)
		if !ok {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, key)
		}
		cur, ok = m[seg]
		if !ok {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, key)
		}
	}
	return copyValue(cur), nil
}

// Query evaluates a jq expression against the document and returns the
// first result. Invalid expressions and empty results are errors.
func (s *Store) Query(expr string) (any, error) {
	q, err := gojq.Parse(expr)
	if err != nil {
		return nil, fmt.Errorf("config: parse query %q: %w", expr, err)
	}
	doc := s.Document()

	iter := q.Run(any(doc))
	v, ok := iter.Next()
	if !ok {
		return nil, fmt.Errorf("%w: query %q produced no result", ErrNotFound, expr)
	}
	if qerr, isErr := v.(error); isErr {
		return nil, fmt.Errorf("config: run query %q: %w", expr, qerr)
	}
	return v, nil
}

// Patch sets the value at a dotted key path, creating intermediate maps
// as needed, and persists the document.
func (s *Store) Patch(key string, value any) error {
	if key == "" {
		return errors.New("config: patch key cannot be empty")
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	segs := strings.Split(key, ".")
	m := s.doc
	for _, seg := range segs[:len(segs)-1] {
		next, ok := m[seg].(map[string]any)
		if !ok {
			next = map[string]any{}
			m[seg] = next
		}
		m = next
	}
	m[segs[len(segs)-1]] = value

	return s.persistLocked()
}

// Reset discards the whole document and persists the empty state.
func (s *Store) Reset() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.doc = map[string]any{}
	return s.persistLocked()
}

// persistLocked writes the document atomically: full write to a temp file
// in the same directory, then rename.
func (s *Store) persistLocked() error {
	if s.path == "" {
		return nil
	}
	data, err := yaml.Marshal(s.doc)
	if err != nil {
		return fmt.Errorf("config: encode: %w", err)
	}
	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("config: write %s: %w", tmp, err)
	}
	if err := os.Rename(tmp, s.path); err != nil {
		return fmt.Errorf("config: rename %s: %w", tmp, err)
	}
	return nil
}

func copyMap(m map[string]any) map[string]any {
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = copyValue(v)
	}
	return out
}

// copyValue deep-copies the containers a JSON/YAML document is made of;
// scalars are returned as-is.
func copyValue(v any) any {
	switch t := v.(type) {
	case map[string]any:
		return copyMap(t)
	case []any:
		out := make([]any, len(t))
		for i, e := range t {
			out[i] = copyValue(e)
		}
		return out
	default:
		return v
	}
}
