package memory

import (
	"sync"

	"rater-tracker-service/internal/app"
)

// SessionStore is an in-memory implementation of app.SessionStore, keyed by
// user: each user has at most one open session.
type SessionStore struct {
	mu       sync.RWMutex
	sessions map[string]*app.Session
}

func NewSessionStore() *SessionStore {
	return &SessionStore{
		sessions: make(map[string]*app.Session),
	}
}

func (s *SessionStore) Active(userID string) (*app.Session, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	session, ok := s.sessions[userID]
	return session, ok
}

// GetOrCreate returns the user's open session, creating one when absent. The
// boolean reports whether the callback's session was installed, so a retried
// NEXT that loses the race is applied to the winner instead.
func (s *SessionStore) GetOrCreate(userID string, create func() *app.Session) (*app.Session, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if session, ok := s.sessions[userID]; ok {
		return session, false
	}
	session := create()
	s.sessions[userID] = session
	return session, true
}

func (s *SessionStore) Remove(userID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.sessions, userID)
}
