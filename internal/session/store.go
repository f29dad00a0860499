// Package session owns per-analysis-job state and drives the stage sequence.
package session

import (
	"sync"

	"github.com/sentrastack/sentra-diag/internal/models"
	"github.com/sentrastack/sentra-diag/internal/utils"
)

// Store abstracts session persistence. Writes are single-writer-per-session
// (the coordinator goroutine owning the job); reads observe a snapshot.
type Store interface {
	Create(session models.Session) error
	Get(id string) (models.Session, bool)
	Update(id string, mutate func(*models.Session)) error
	Delete(id string)
	List() []models.Session
}

// MemoryStore is the in-process Store implementation.
type MemoryStore struct {
	mu       sync.RWMutex
	sessions map[string]*models.Session
}

// NewMemoryStore constructs an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{sessions: make(map[string]*models.Session)}
}

// Create inserts a new session; the id must be unused.
func (s *MemoryStore) Create(session models.Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.sessions[session.ID]; ok {
		return utils.NewAppError("session.Create", utils.KindInternal, "session id already exists", nil)
	}
	stored := session
	s.sessions[session.ID] = &stored
	return nil
}

// Get returns a snapshot copy of the session.
func (s *MemoryStore) Get(id string) (models.Session, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	session, ok := s.sessions[id]
	if !ok {
		return models.Session{}, false
	}
	return *session, true
}

// Update applies mutate under the lock. Percent is clamped so observed
// values never decrease within one session.
func (s *MemoryStore) Update(id string, mutate func(*models.Session)) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	session, ok := s.sessions[id]
	if !ok {
		return utils.NewAppError("session.Update", utils.KindNotFound, "unknown session "+id, nil)
	}
	before := session.Percent
	mutate(session)
	if session.Percent < before {
		session.Percent = before
	}
	return nil
}

// Delete removes the session record; missing ids are ignored.
func (s *MemoryStore) Delete(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.sessions, id)
}

// List returns snapshot copies of all sessions.
func (s *MemoryStore) List() []models.Session {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sessions := make([]models.Session, 0, len(s.sessions))
	for _, session := range s.sessions {
		sessions = append(sessions, *session)
	}
	return sessions
}
