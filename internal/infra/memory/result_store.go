package memory

import (
	"context"
	"sort"
	"sync"

	"chat-quiz-service/internal/domain"
)

// ResultStore keeps finished quizzes in memory (useful for tests/demos).
type ResultStore struct {
	mu      sync.RWMutex
	results map[string][]domain.QuizResult
}

func NewResultStore() *ResultStore {
	return &ResultStore{results: make(map[string][]domain.QuizResult)}
}

func (r *ResultStore) RecordResult(_ context.Context, result domain.QuizResult) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.results[result.SessionID] = append(r.results[result.SessionID], result)
	return nil
}

// ListResults returns the session's results, newest first.
func (r *ResultStore) ListResults(_ context.Context, sessionID string) ([]domain.QuizResult, error) {
	r.mu.RLock()
	recorded := r.results[sessionID]
	out := make([]domain.QuizResult, 0, len(recorded))
	for i := len(recorded) - 1; i >= 0; i-- {
		out = append(out, recorded[i])
	}
	r.mu.RUnlock()

	// Equal timestamps keep the later recording first.
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].EndedAt.After(out[j].EndedAt)
	})
	return out, nil
}
