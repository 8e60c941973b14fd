// Package state keeps incremental bookmarks: for every stream and context
// partition, the largest normalized replication-key value seen so far.
package state

import (
	"os"
	"path/filepath"
	"sync"

	"github.com/ajitpratap0/nebula-omnivore/pkg/errors"
	"github.com/ajitpratap0/nebula-omnivore/pkg/json"
	"github.com/ajitpratap0/nebula-omnivore/pkg/stream"
)

// Bookmarks maps stream name to partition key to cursor value.
type Bookmarks map[string]map[string]int64

// State is safe for concurrent use.
type State struct {
	mu        sync.RWMutex
	bookmarks Bookmarks
}

type document struct {
	Bookmarks Bookmarks `json:"bookmarks"`
}

// New returns an empty state.
func New() *State {
	return &State{bookmarks: make(Bookmarks)}
}

// Load reads a state file. A missing file yields an empty state.
func Load(path string) (*State, error) {
	data, err := os.ReadFile(path) //nolint:gosec // G304: path comes from the operator
	if os.IsNotExist(err) {
		return New(), nil
	}
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeFile, "failed to read state file")
	}
	return Parse(data)
}

// Parse decodes a state document.
func Parse(data []byte) (*State, error) {
	var doc document
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeValidation, "failed to decode state")
	}
	s := New()
	for name, parts := range doc.Bookmarks {
		s.bookmarks[name] = make(map[string]int64, len(parts))
		for k, v := range parts {
			s.bookmarks[name][k] = v
		}
	}
	return s, nil
}

// Get returns the bookmark of stream for the partition described by ctx.
func (s *State) Get(name string, ctx stream.Context) (int64, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.bookmarks[name][ctx.Key()]
	return v, ok
}

// Advance moves the bookmark forward to value. It reports whether the
// bookmark changed; a value not beyond the current bookmark is ignored.
func (s *State) Advance(name string, ctx stream.Context, value int64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	parts, ok := s.bookmarks[name]
	if !ok {
		parts = make(map[string]int64)
		s.bookmarks[name] = parts
	}
	key := ctx.Key()
	if current, ok := parts[key]; ok && current >= value {
		return false
	}
	parts[key] = value
	return true
}

// Snapshot returns a deep copy suitable for a STATE message.
func (s *State) Snapshot() map[string]interface{} {
	s.mu.RLock()
	defer s.mu.RUnlock()

	copied := make(Bookmarks, len(s.bookmarks))
	for name, parts := range s.bookmarks {
		copied[name] = make(map[string]int64, len(parts))
		for k, v := range parts {
			copied[name][k] = v
		}
	}
	return map[string]interface{}{"bookmarks": copied}
}

// Save writes the state to path via a temporary file and rename so readers
// never see a partial document.
func (s *State) Save(path string) error {
	s.mu.RLock()
	data, err := json.MarshalIndent(document{Bookmarks: s.bookmarks}, "", "  ")
	s.mu.RUnlock()
	if err != nil {
		return errors.Wrap(err, errors.ErrorTypeInternal, "failed to encode state")
	}

	tmp, err := os.CreateTemp(filepath.Dir(path), filepath.Base(path)+".*.tmp")
	if err != nil {
		return errors.Wrap(err, errors.ErrorTypeFile, "failed to create state file")
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return errors.Wrap(err, errors.ErrorTypeFile, "failed to write state file")
	}
	if err := tmp.Close(); err != nil {
		return errors.Wrap(err, errors.ErrorTypeFile, "failed to close state file")
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return errors.Wrap(err, errors.ErrorTypeFile, "failed to replace state file")
	}
	return nil
}
