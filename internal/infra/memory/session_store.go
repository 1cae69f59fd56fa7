package memory

import (
	"context"
	"sync"

	"chat-quiz-service/internal/app"
	"chat-quiz-service/internal/domain"
)

// SessionStore is an in-memory implementation of app.SessionRepository.
// Sessions live until Delete or process exit.
type SessionStore struct {
	mu       sync.RWMutex
	sessions map[string]*app.Session
}

func NewSessionStore() *SessionStore {
	return &SessionStore{
		sessions: make(map[string]*app.Session),
	}
}

func (s *SessionStore) GetOrCreate(_ context.Context, sessionID string) (*app.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if session, ok := s.sessions[sessionID]; ok {
		return session, nil
	}
	session := app.NewSession(sessionID)
	s.sessions[sessionID] = session
	return session, nil
}

func (s *SessionStore) Get(_ context.Context, sessionID string) (*app.Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	session, ok := s.sessions[sessionID]
	if !ok {
		return nil, domain.ErrSessionNotFound
	}
	return session, nil
}

// Save is a no-op: the map already holds the live session.
func (s *SessionStore) Save(_ context.Context, _ *app.Session) error {
	return nil
}

func (s *SessionStore) Delete(_ context.Context, sessionID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.sessions, sessionID)
	return nil
}
