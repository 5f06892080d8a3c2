// Package session tracks per-conversation state: the chat history and the
// scratch store holding documents staged for the next query. Sessions live in
// memory only; both halves can be cleared independently.
package session

import (
	"errors"
	"sync"

	"github.com/charmbracelet/log"

	"policychat-backend/models"
	"policychat-backend/scratch"
)

// Session holds the mutable state of one conversation. Handlers must hold the
// session lock across any read-modify sequence that spans history and
// storage.
type Session struct {
	ID string

	mu          sync.Mutex
	history     []models.HistoryEntry
	scratch     *scratch.Store
	allowedExts []string
}

func newSession(id string, allowedExts []string) *Session {
	return &Session{ID: id, allowedExts: allowedExts}
}

// Lock acquires the session's mutex.
func (s *Session) Lock() { s.mu.Lock() }

// Unlock releases the session's mutex.
func (s *Session) Unlock() { s.mu.Unlock() }

// EnsureScratch returns the session's scratch store, creating one if the
// session has none or the previous one was destroyed. Caller must hold the
// lock.
func (s *Session) EnsureScratch() (*scratch.Store, error) {
	if s.scratch == nil || s.scratch.Destroyed() {
		store, err := scratch.New(s.allowedExts)
		if err != nil {
			return nil, err
		}
		s.scratch = store
	}
	return s.scratch, nil
}

// Scratch returns the current scratch store, or nil if none has been created
// since the last ClearStorage. Caller must hold the lock.
func (s *Session) Scratch() *scratch.Store {
	if s.scratch != nil && s.scratch.Destroyed() {
		return nil
	}
	return s.scratch
}

// History returns a copy of the conversation so far. Caller must hold the
// lock.
func (s *Session) History() []models.HistoryEntry {
	out := make([]models.HistoryEntry, len(s.history))
	copy(out, s.history)
	return out
}

// AppendExchange records one completed question/answer pair, in that order.
// Caller must hold the lock.
func (s *Session) AppendExchange(question, answer string) {
	s.history = append(s.history,
		models.HistoryEntry{Role: models.RoleQuestion, Text: question},
		models.HistoryEntry{Role: models.RoleAnswer, Text: answer},
	)
}

// ClearHistory drops the conversation history. Staged documents are
// untouched. Caller must hold the lock.
func (s *Session) ClearHistory() {
	s.history = nil
}

// ClearStorage destroys the scratch store and detaches it from the session.
// Safe to call when no store exists. A best-effort cleanup error is returned
// but the store is dropped regardless. Caller must hold the lock.
func (s *Session) ClearStorage() error {
	if s.scratch == nil {
		return nil
	}
	err := s.scratch.Destroy()
	s.scratch = nil
	return err
}

// Manager owns every live session, keyed by ID.
type Manager struct {
	mu          sync.RWMutex
	sessions    map[string]*Session
	allowedExts []string
}

// NewManager creates a session manager whose scratch stores accept the given
// file extensions.
func NewManager(allowedExts []string) *Manager {
	return &Manager{sessions: make(map[string]*Session), allowedExts: allowedExts}
}

// GetOrCreate returns the session for id, creating it on first use.
func (m *Manager) GetOrCreate(id string) *Session {
	m.mu.RLock()
	s, ok := m.sessions[id]
	m.mu.RUnlock()
	if ok {
		return s
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if s, ok := m.sessions[id]; ok {
		return s
	}
	s = newSession(id, m.allowedExts)
	m.sessions[id] = s
	return s
}

// Teardown destroys a session's storage and forgets it. Unknown IDs are a
// no-op.
func (m *Manager) Teardown(id string) error {
	m.mu.Lock()
	s, ok := m.sessions[id]
	delete(m.sessions, id)
	m.mu.Unlock()
	if !ok {
		return nil
	}

	s.Lock()
	defer s.Unlock()
	return s.ClearStorage()
}

// TeardownAll destroys every session's storage, typically at shutdown.
func (m *Manager) TeardownAll() error {
	m.mu.Lock()
	sessions := m.sessions
	m.sessions = make(map[string]*Session)
	m.mu.Unlock()

	var errs []error
	for id, s := range sessions {
		s.Lock()
		if err := s.ClearStorage(); err != nil {
			log.Warn("session teardown left artifacts behind", "session_id", id, "error", err)
			errs = append(errs, err)
		}
		s.Unlock()
	}
	return errors.Join(errs...)
}
