package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"chat-quiz-service/internal/app"
	"chat-quiz-service/internal/domain"
	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/singleflight"
)

// SessionStore is a Redis-backed implementation of app.SessionRepository.
// Notes:
//   - Live sessions stay in a local map so subscribers and the busy flag keep
//     working in-process.
//   - Redis holds a JSON snapshot (transcript + quiz record) per session with a
//     sliding TTL, so a restarted process picks the conversation back up.
//   - API keys and model settings are never written to Redis.
type SessionStore struct {
	client   *redis.Client
	ttl      time.Duration
	sf       singleflight.Group
	mu       sync.RWMutex
	sessions map[string]*app.Session
}

func NewSessionStore(client *redis.Client, ttl time.Duration) *SessionStore {
	return &SessionStore{
		client:   client,
		ttl:      ttl,
		sessions: make(map[string]*app.Session),
	}
}

func (s *SessionStore) GetOrCreate(ctx context.Context, sessionID string) (*app.Session, error) {
	session, err := s.Get(ctx, sessionID)
	if err == nil {
		return session, nil
	}
	if !errors.Is(err, domain.ErrSessionNotFound) {
		return nil, err
	}

	result, err, _ := s.sf.Do("create:"+sessionID, func() (interface{}, error) {
		s.mu.Lock()
		if session, ok := s.sessions[sessionID]; ok {
			s.mu.Unlock()
			return session, nil
		}
		session := app.NewSession(sessionID)
		s.sessions[sessionID] = session
		s.mu.Unlock()

		if err := s.Save(ctx, session); err != nil {
			return nil, err
		}
		return session, nil
	})
	if err != nil {
		return nil, err
	}
	return result.(*app.Session), nil
}

// Get returns the live session or restores it from its Redis snapshot.
func (s *SessionStore) Get(ctx context.Context, sessionID string) (*app.Session, error) {
	s.mu.RLock()
	session, ok := s.sessions[sessionID]
	s.mu.RUnlock()
	if ok {
		return session, nil
	}

	result, err, _ := s.sf.Do("restore:"+sessionID, func() (interface{}, error) {
		s.mu.RLock()
		if session, ok := s.sessions[sessionID]; ok {
			s.mu.RUnlock()
			return session, nil
		}
		s.mu.RUnlock()

		raw, err := s.client.Get(ctx, s.key(sessionID)).Bytes()
		if errors.Is(err, redis.Nil) {
			return nil, domain.ErrSessionNotFound
		}
		if err != nil {
			return nil, fmt.Errorf("load session: %w", err)
		}
		var snap domain.Snapshot
		if err := json.Unmarshal(raw, &snap); err != nil {
			return nil, fmt.Errorf("unmarshal session: %w", err)
		}

		restored := app.RestoreSession(snap)
		s.mu.Lock()
		if existing, ok := s.sessions[sessionID]; ok {
			restored = existing
		} else {
			s.sessions[sessionID] = restored
		}
		s.mu.Unlock()
		return restored, nil
	})
	if err != nil {
		return nil, err
	}
	return result.(*app.Session), nil
}

// Save writes the snapshot and refreshes its TTL.
func (s *SessionStore) Save(ctx context.Context, session *app.Session) error {
	data, err := json.Marshal(session.Snapshot())
	if err != nil {
		return fmt.Errorf("marshal session: %w", err)
	}
	if err := s.client.Set(ctx, s.key(session.ID()), data, s.ttl).Err(); err != nil {
		return fmt.Errorf("save session: %w", err)
	}
	return nil
}

func (s *SessionStore) Delete(ctx context.Context, sessionID string) error {
	s.mu.Lock()
	delete(s.sessions, sessionID)
	s.mu.Unlock()
	return s.client.Del(ctx, s.key(sessionID)).Err()
}

func (s *SessionStore) key(sessionID string) string {
	return "chat:session:" + sessionID
}
