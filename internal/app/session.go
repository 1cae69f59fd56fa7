package app

import (
	"sync"
	"time"

	"chat-quiz-service/internal/domain"
)

// Session is the in-memory state of one chat: transcript, quiz record,
// model config and the user's API key.
type Session struct {
	id          string
	now         func() time.Time
	mu          sync.RWMutex
	messages    []domain.Message
	quiz        domain.QuizState
	config      *domain.ModelConfig
	apiKey      string
	busy        bool
	updatedAt   time.Time
	subscribers map[chan domain.Event]struct{}
}

// NewSession is exported for infrastructure layers that need to seed sessions.
func NewSession(id string) *Session {
	return newSessionWithClock(id, time.Now)
}

// RestoreSession rebuilds a session from a persisted snapshot.
func RestoreSession(snap domain.Snapshot) *Session {
	s := newSessionWithClock(snap.SessionID, time.Now)
	s.messages = append(s.messages, snap.Messages...)
	s.quiz = snap.Quiz.Clone()
	s.updatedAt = snap.UpdatedAt
	return s
}

func newSessionWithClock(id string, now func() time.Time) *Session {
	created := now()
	return &Session{
		id:          id,
		now:         now,
		updatedAt:   created,
		subscribers: make(map[chan domain.Event]struct{}),
	}
}

// ID returns the session identifier.
func (s *Session) ID() string {
	return s.id
}

// Snapshot copies the persistable state.
func (s *Session) Snapshot() domain.Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.snapshotLocked()
}

// Messages returns a copy of the transcript.
func (s *Session) Messages() []domain.Message {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]domain.Message(nil), s.messages...)
}

// Quiz returns a copy of the quiz record.
func (s *Session) Quiz() domain.QuizState {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.quiz.Clone()
}

func (s *Session) snapshotLocked() domain.Snapshot {
	return domain.Snapshot{
		SessionID: s.id,
		Messages:  append([]domain.Message(nil), s.messages...),
		Quiz:      s.quiz.Clone(),
		UpdatedAt: s.updatedAt,
	}
}

// begin claims the session for one input-handling pass.
func (s *Session) begin() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.busy {
		return domain.ErrSessionBusy
	}
	s.busy = true
	return nil
}

func (s *Session) finish() {
	s.mu.Lock()
	s.busy = false
	s.mu.Unlock()
}

func (s *Session) credentials() (string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.apiKey, s.apiKey != ""
}

func (s *Session) setAPIKey(key string) {
	s.mu.Lock()
	s.apiKey = key
	s.mu.Unlock()
}

func (s *Session) modelConfig(fallback domain.ModelConfig) domain.ModelConfig {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.config == nil {
		return fallback
	}
	return *s.config
}

func (s *Session) setModelConfig(cfg domain.ModelConfig) {
	s.mu.Lock()
	s.config = &cfg
	s.mu.Unlock()
}

func (s *Session) quizActive() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.quiz.Active
}

// appendMessages stamps, stores and broadcasts msgs.
func (s *Session) appendMessages(msgs ...domain.Message) []domain.Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.appendLocked(msgs...)
}

func (s *Session) appendLocked(msgs ...domain.Message) []domain.Message {
	now := s.now()
	out := make([]domain.Message, 0, len(msgs))
	for _, msg := range msgs {
		msg.CreatedAt = now
		s.messages = append(s.messages, msg)
		out = append(out, msg)
		stored := msg
		s.broadcastLocked(domain.Event{Type: domain.EventMessage, Message: &stored})
	}
	s.updatedAt = now
	return out
}

// mutateQuiz runs fn against the quiz record under the lock and appends what it returns.
func (s *Session) mutateQuiz(fn func(q *domain.QuizState) ([]domain.Message, error)) ([]domain.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	q := s.quiz.Clone()
	replies, err := fn(&q)
	if err != nil {
		return nil, err
	}
	s.quiz = q
	out := s.appendLocked(replies...)
	state := s.quiz.Clone()
	s.broadcastLocked(domain.Event{Type: domain.EventQuiz, Quiz: &state})
	return out, nil
}

func (s *Session) publishDelta(text string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.broadcastLocked(domain.Event{Type: domain.EventDelta, Delta: text})
}

func (s *Session) subscribe() (<-chan domain.Event, func()) {
	ch := make(chan domain.Event, 64)

	s.mu.Lock()
	s.subscribers[ch] = struct{}{}
	s.mu.Unlock()

	cancel := func() {
		s.mu.Lock()
		if _, ok := s.subscribers[ch]; ok {
			delete(s.subscribers, ch)
			close(ch)
		}
		s.mu.Unlock()
	}
	return ch, cancel
}

func (s *Session) broadcastLocked(ev domain.Event) {
	for ch := range s.subscribers {
		select {
		case ch <- ev:
		default:
			// Slow subscriber: drop its oldest event instead of blocking the session.
			select {
			case <-ch:
			default:
			}
			ch <- ev
		}
	}
}
