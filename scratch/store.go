package scratch

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// ErrDestroyed is returned when a store is used after Destroy.
var ErrDestroyed = errors.New("scratch store destroyed")

// entry maps one user-visible file name to its staged artifact on disk. A
// single ordered slice holds both halves of the mapping, so they cannot fall
// out of sync.
type entry struct {
	name string
	path string
}

// Store owns one session's staging directory for uploaded documents. A store
// is active from New until Destroy; Clear replaces the backing directory but
// keeps the store usable. Not safe for concurrent use; callers serialize
// operations per session.
type Store struct {
	dir       string
	entries   []entry
	allowed   map[string]bool
	destroyed bool
}

// New creates a store backed by a fresh, exclusively-owned temporary
// directory. allowedExts is the upload extension allow-list (".pdf", ".txt").
func New(allowedExts []string) (*Store, error) {
	dir, err := os.MkdirTemp("", "policychat-scratch-*")
	if err != nil {
		return nil, fmt.Errorf("failed to create staging directory: %w", err)
	}
	allowed := make(map[string]bool, len(allowedExts))
	for _, ext := range allowedExts {
		allowed[strings.ToLower(ext)] = true
	}
	return &Store{dir: dir, allowed: allowed}, nil
}

// Stage persists data as a new artifact and records the name under it. Empty
// names, names already staged, and disallowed extensions are skipped without
// error; the bool reports whether anything was staged. An I/O failure leaves
// no artifact and no mapping entry behind.
func (s *Store) Stage(name string, data []byte) (bool, error) {
	if s.destroyed {
		return false, ErrDestroyed
	}
	if name == "" {
		return false, nil
	}
	ext := strings.ToLower(filepath.Ext(name))
	if !s.allowed[ext] {
		return false, nil
	}
	for _, e := range s.entries {
		if e.name == name {
			return false, nil
		}
	}

	f, err := os.CreateTemp(s.dir, "staged-*"+ext)
	if err != nil {
		return false, fmt.Errorf("failed to create staged artifact: %w", err)
	}
	if _, err := f.Write(data); err != nil {
		f.Close()
		os.Remove(f.Name())
		return false, fmt.Errorf("failed to write staged artifact: %w", err)
	}
	if err := f.Close(); err != nil {
		os.Remove(f.Name())
		return false, fmt.Errorf("failed to close staged artifact: %w", err)
	}

	s.entries = append(s.entries, entry{name: name, path: f.Name()})
	return true, nil
}

// Allowed reports whether name carries an extension on the allow-list.
func (s *Store) Allowed(name string) bool {
	return s.allowed[strings.ToLower(filepath.Ext(name))]
}

// Has reports whether name is already staged.
func (s *Store) Has(name string) bool {
	for _, e := range s.entries {
		if e.name == name {
			return true
		}
	}
	return false
}

// Names returns the staged file names in insertion order.
func (s *Store) Names() []string {
	names := make([]string, len(s.entries))
	for i, e := range s.entries {
		names[i] = e.name
	}
	return names
}

// Count returns the number of staged entries.
func (s *Store) Count() int {
	return len(s.entries)
}

// Dir returns the directory backing all staged artifacts. The value is stable
// until Clear or Destroy.
func (s *Store) Dir() string {
	return s.dir
}

// Remove deletes the named entry together with its backing artifact. If the
// artifact cannot be deleted the entry is retained, so the mapping never
// points at a missing file. Removing an unknown name is a no-op.
func (s *Store) Remove(name string) error {
	if s.destroyed {
		return ErrDestroyed
	}
	for i, e := range s.entries {
		if e.name != name {
			continue
		}
		if err := os.Remove(e.path); err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("failed to delete staged artifact: %w", err)
		}
		s.entries = append(s.entries[:i], s.entries[i+1:]...)
		return nil
	}
	return nil
}

// Clear deletes the backing directory with every artifact in it, then
// reinitializes the store at a fresh, independent location. Safe on an empty
// store. A deletion failure is returned so callers can warn about leaked disk
// space, but the store still moves to the new location.
func (s *Store) Clear() error {
	if s.destroyed {
		return ErrDestroyed
	}
	removeErr := os.RemoveAll(s.dir)

	// The old location is gone either way; drop the mapping before trying to
	// recreate, so a MkdirTemp failure never leaves entries pointing at
	// deleted artifacts.
	s.entries = nil
	s.dir = ""

	dir, err := os.MkdirTemp("", "policychat-scratch-*")
	if err != nil {
		return fmt.Errorf("failed to recreate staging directory: %w", err)
	}
	s.dir = dir

	if removeErr != nil {
		return fmt.Errorf("failed to delete staging directory: %w", removeErr)
	}
	return nil
}

// Destroy removes the backing directory and marks the store unusable. Calling
// Destroy again is a no-op; the destroyed location's identity is never reused.
func (s *Store) Destroy() error {
	if s.destroyed {
		return nil
	}
	s.destroyed = true
	s.entries = nil
	if err := os.RemoveAll(s.dir); err != nil {
		return fmt.Errorf("failed to delete staging directory: %w", err)
	}
	return nil
}

// Destroyed reports whether Destroy has been called.
func (s *Store) Destroyed() bool {
	return s.destroyed
}
