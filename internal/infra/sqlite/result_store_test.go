package sqlite

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"chat-quiz-service/internal/domain"
)

func TestResultStoreRoundTrip(t *testing.T) {
	ctx := context.Background()
	store, err := Open(ctx, filepath.Join(t.TempDir(), "results.db"))
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer store.Close()

	base := time.Date(2024, 11, 22, 10, 0, 0, 0, time.UTC)
	for i, r := range []domain.QuizResult{
		{SessionID: "s1", ScoreUser: 3, ScoreBot: 2, QuestionCount: 4, EndedAt: base},
		{SessionID: "s1", ScoreUser: 5, ScoreBot: 5, QuestionCount: 6, EndedAt: base.Add(time.Hour)},
		{SessionID: "s2", ScoreUser: 1, ScoreBot: 0, QuestionCount: 1, EndedAt: base},
	} {
		if err := store.RecordResult(ctx, r); err != nil {
			t.Fatalf("record %d: %v", i, err)
		}
	}

	got, err := store.ListResults(ctx, "s1")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("expected 2 results, got %+v", got)
	}
	if got[0].ScoreUser != 5 || !got[0].EndedAt.Equal(base.Add(time.Hour)) {
		t.Fatalf("expected newest first, got %+v", got[0])
	}
	if got[1].QuestionCount != 4 || got[1].ScoreBot != 2 {
		t.Fatalf("unexpected second result %+v", got[1])
	}
}
