package postgres

import (
	"context"
	"fmt"

	"chat-quiz-service/internal/domain"
	"github.com/jackc/pgx/v4/pgxpool"
)

// ResultStore persists finished quizzes in the quiz_results table.
type ResultStore struct {
	pool *pgxpool.Pool
}

func NewResultStore(pool *pgxpool.Pool) *ResultStore {
	return &ResultStore{pool: pool}
}

func (s *ResultStore) RecordResult(ctx context.Context, result domain.QuizResult) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO quiz_results (session_id, score_user, score_bot, question_count, ended_at)
		 VALUES ($1, $2, $3, $4, $5)`,
		result.SessionID, result.ScoreUser, result.ScoreBot, result.QuestionCount, result.EndedAt)
	if err != nil {
		return fmt.Errorf("insert quiz result: %w", err)
	}
	return nil
}

func (s *ResultStore) ListResults(ctx context.Context, sessionID string) ([]domain.QuizResult, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT session_id, score_user, score_bot, question_count, ended_at
		 FROM quiz_results WHERE session_id=$1 ORDER BY ended_at DESC, id DESC`, sessionID)
	if err != nil {
		return nil, fmt.Errorf("query quiz results: %w", err)
	}
	defer rows.Close()

	var out []domain.QuizResult
	for rows.Next() {
		var r domain.QuizResult
		if err := rows.Scan(&r.SessionID, &r.ScoreUser, &r.ScoreBot, &r.QuestionCount, &r.EndedAt); err != nil {
			return nil, fmt.Errorf("scan quiz result: %w", err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}
