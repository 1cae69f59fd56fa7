package app

import (
	"context"
	"fmt"
	"log"
	"strings"
	"time"

	"chat-quiz-service/internal/domain"
	"chat-quiz-service/internal/quiz"
)

// SessionRepository abstracts how chat sessions are stored (in-memory, Redis, etc).
type SessionRepository interface {
	GetOrCreate(ctx context.Context, sessionID string) (*Session, error)
	Get(ctx context.Context, sessionID string) (*Session, error)
	Save(ctx context.Context, session *Session) error
	Delete(ctx context.Context, sessionID string) error
}

// ResultStore records finished quizzes.
type ResultStore interface {
	RecordResult(ctx context.Context, result domain.QuizResult) error
	ListResults(ctx context.Context, sessionID string) ([]domain.QuizResult, error)
}

// CompletionClient opens a streaming chat completion on behalf of a user key.
type CompletionClient interface {
	Stream(ctx context.Context, apiKey string, req domain.CompletionRequest) (ChunkStream, error)
}

// ChunkStream yields completion text incrementally.
type ChunkStream interface {
	Next() bool
	Content() string
	Err() error
	Close() error
}

// ChatService contains the chat and quiz use cases.
type ChatService struct {
	sessions    SessionRepository
	results     ResultStore
	completions CompletionClient
	quiz        *quiz.Machine
	defaults    domain.ModelConfig
	now         func() time.Time
}

// NewChatService wires the use cases. A nil machine draws from math/rand and a
// zero defaults value falls back to domain.DefaultModelConfig.
func NewChatService(store SessionRepository, results ResultStore, completions CompletionClient, machine *quiz.Machine, defaults domain.ModelConfig) *ChatService {
	if machine == nil {
		machine = quiz.NewMachine(nil)
	}
	if defaults == (domain.ModelConfig{}) {
		defaults = domain.DefaultModelConfig()
	}
	return &ChatService{
		sessions:    store,
		results:     results,
		completions: completions,
		quiz:        machine,
		defaults:    defaults,
		now:         time.Now,
	}
}

// Defaults returns the model config new sessions start with.
func (s *ChatService) Defaults() domain.ModelConfig {
	return s.defaults
}

// Open returns the session, creating it on first use.
func (s *ChatService) Open(ctx context.Context, sessionID string) (domain.Snapshot, error) {
	session, err := s.sessions.GetOrCreate(ctx, sessionID)
	if err != nil {
		return domain.Snapshot{}, err
	}
	return session.Snapshot(), nil
}

// Snapshot returns the transcript and quiz record of an existing session.
func (s *ChatService) Snapshot(ctx context.Context, sessionID string) (domain.Snapshot, error) {
	session, err := s.sessions.Get(ctx, sessionID)
	if err != nil {
		return domain.Snapshot{}, err
	}
	return session.Snapshot(), nil
}

// Reset drops the session; its transcript is gone for good.
func (s *ChatService) Reset(ctx context.Context, sessionID string) error {
	if _, err := s.sessions.Get(ctx, sessionID); err != nil {
		return err
	}
	return s.sessions.Delete(ctx, sessionID)
}

// SetAPIKey stores the user's key on the session. It is never persisted.
func (s *ChatService) SetAPIKey(ctx context.Context, sessionID, apiKey string) error {
	session, err := s.sessions.Get(ctx, sessionID)
	if err != nil {
		return err
	}
	session.setAPIKey(strings.TrimSpace(apiKey))
	return nil
}

// HasAPIKey reports whether chat is unlocked for the session.
func (s *ChatService) HasAPIKey(ctx context.Context, sessionID string) (bool, error) {
	session, err := s.sessions.Get(ctx, sessionID)
	if err != nil {
		return false, err
	}
	_, ok := session.credentials()
	return ok, nil
}

// Configure validates and applies the model settings used by the next completion.
func (s *ChatService) Configure(ctx context.Context, sessionID string, cfg domain.ModelConfig) error {
	if err := cfg.Validate(); err != nil {
		return err
	}
	session, err := s.sessions.Get(ctx, sessionID)
	if err != nil {
		return err
	}
	session.setModelConfig(cfg)
	return nil
}

// Config returns the session's current model settings.
func (s *ChatService) Config(ctx context.Context, sessionID string) (domain.ModelConfig, error) {
	session, err := s.sessions.Get(ctx, sessionID)
	if err != nil {
		return domain.ModelConfig{}, err
	}
	return session.modelConfig(s.defaults), nil
}

// StartQuiz switches the session into quiz mode and poses the first question.
func (s *ChatService) StartQuiz(ctx context.Context, sessionID string) ([]domain.Message, error) {
	session, err := s.sessions.Get(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if err := session.begin(); err != nil {
		return nil, err
	}
	defer session.finish()

	out, err := session.mutateQuiz(s.quiz.Start)
	if err != nil {
		return nil, err
	}
	return out, s.sessions.Save(ctx, session)
}

// EndQuiz reports the final score, leaves quiz mode and records the result.
func (s *ChatService) EndQuiz(ctx context.Context, sessionID string) ([]domain.Message, error) {
	session, err := s.sessions.Get(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if err := session.begin(); err != nil {
		return nil, err
	}
	defer session.finish()

	var final domain.QuizState
	out, err := session.mutateQuiz(func(q *domain.QuizState) ([]domain.Message, error) {
		msg, err := s.quiz.End(q)
		if err != nil {
			return nil, err
		}
		final = q.Clone()
		return []domain.Message{msg}, nil
	})
	if err != nil {
		return nil, err
	}

	if s.results != nil {
		result := domain.QuizResult{
			SessionID:     sessionID,
			ScoreUser:     final.ScoreUser,
			ScoreBot:      final.ScoreBot,
			QuestionCount: final.QuestionCount,
			EndedAt:       s.now(),
		}
		if err := s.results.RecordResult(ctx, result); err != nil {
			log.Printf("record quiz result for %s: %v", sessionID, err)
		}
	}
	return out, s.sessions.Save(ctx, session)
}

// Submit handles one user input. In quiz mode it is resolved locally and blank
// input counts as a miss; otherwise it is relayed to the completion endpoint
// and the streamed reply is recorded. The returned messages are those appended
// during this pass.
func (s *ChatService) Submit(ctx context.Context, sessionID, input string) ([]domain.Message, error) {
	session, err := s.sessions.Get(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if err := session.begin(); err != nil {
		return nil, err
	}
	defer session.finish()

	var out []domain.Message
	if session.quizActive() {
		out, err = s.handleQuiz(session, input)
	} else {
		out, err = s.relay(ctx, session, input)
	}
	if saveErr := s.sessions.Save(ctx, session); saveErr != nil && err == nil {
		err = saveErr
	}
	return out, err
}

// Subscribe returns a channel of session events.
// The caller must invoke the returned cancel function to avoid leaks.
func (s *ChatService) Subscribe(ctx context.Context, sessionID string) (<-chan domain.Event, func(), error) {
	session, err := s.sessions.Get(ctx, sessionID)
	if err != nil {
		return nil, nil, err
	}
	ch, cancel := session.subscribe()
	return ch, cancel, nil
}

// Results lists the recorded quizzes of a session, newest first.
func (s *ChatService) Results(ctx context.Context, sessionID string) ([]domain.QuizResult, error) {
	if s.results == nil {
		return nil, nil
	}
	return s.results.ListResults(ctx, sessionID)
}

func (s *ChatService) handleQuiz(session *Session, input string) ([]domain.Message, error) {
	return session.mutateQuiz(func(q *domain.QuizState) ([]domain.Message, error) {
		replies, err := s.quiz.Handle(q, input)
		if err != nil {
			return nil, err
		}
		msgs := []domain.Message{{Role: domain.RoleUser, Content: input}}
		return append(msgs, replies...), nil
	})
}

func (s *ChatService) relay(ctx context.Context, session *Session, input string) ([]domain.Message, error) {
	if strings.TrimSpace(input) == "" {
		return nil, domain.ErrEmptyInput
	}
	apiKey, ok := session.credentials()
	if !ok {
		return nil, domain.ErrMissingAPIKey
	}
	cfg := session.modelConfig(s.defaults)

	out := session.appendMessages(domain.Message{Role: domain.RoleUser, Content: input})
	req := domain.BuildCompletionRequest(cfg, session.Messages())

	reply, err := s.collect(ctx, session, apiKey, req)
	if err != nil {
		return out, fmt.Errorf("completion: %w", err)
	}
	out = append(out, session.appendMessages(domain.Message{Role: domain.RoleAssistant, Content: reply})...)
	return out, nil
}

// collect drains the stream, publishing every chunk as it arrives.
func (s *ChatService) collect(ctx context.Context, session *Session, apiKey string, req domain.CompletionRequest) (string, error) {
	stream, err := s.completions.Stream(ctx, apiKey, req)
	if err != nil {
		return "", err
	}
	defer stream.Close()

	var reply strings.Builder
	for stream.Next() {
		chunk := stream.Content()
		if chunk == "" {
			continue
		}
		reply.WriteString(chunk)
		session.publishDelta(chunk)
	}
	if err := stream.Err(); err != nil {
		return "", err
	}
	return reply.String(), nil
}
