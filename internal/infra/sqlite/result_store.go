package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"chat-quiz-service/internal/domain"
	_ "modernc.org/sqlite" // driver: sqlite
)

const schema = `
CREATE TABLE IF NOT EXISTS quiz_results (
  id INTEGER PRIMARY KEY AUTOINCREMENT,
  session_id TEXT NOT NULL,
  score_user INTEGER NOT NULL,
  score_bot INTEGER NOT NULL,
  question_count INTEGER NOT NULL,
  ended_at INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS quiz_results_session_idx ON quiz_results (session_id, ended_at);
`

// ResultStore keeps finished quizzes in a local SQLite file.
type ResultStore struct {
	db *sql.DB
}

// Open opens (or creates) the database at path and ensures the schema exists.
func Open(ctx context.Context, path string) (*ResultStore, error) {
	dsn := "file:" + path + "?cache=shared&mode=rwc&_pragma=busy_timeout(5000)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, err
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	if _, err := db.ExecContext(ctx, schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ensure schema: %w", err)
	}
	return &ResultStore{db: db}, nil
}

func (s *ResultStore) Close() error {
	return s.db.Close()
}

func (s *ResultStore) RecordResult(ctx context.Context, result domain.QuizResult) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO quiz_results (session_id, score_user, score_bot, question_count, ended_at)
		 VALUES (?, ?, ?, ?, ?)`,
		result.SessionID, result.ScoreUser, result.ScoreBot, result.QuestionCount, result.EndedAt.UnixNano())
	if err != nil {
		return fmt.Errorf("insert quiz result: %w", err)
	}
	return nil
}

func (s *ResultStore) ListResults(ctx context.Context, sessionID string) ([]domain.QuizResult, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT session_id, score_user, score_bot, question_count, ended_at
		 FROM quiz_results WHERE session_id = ? ORDER BY ended_at DESC, id DESC`, sessionID)
	if err != nil {
		return nil, fmt.Errorf("query quiz results: %w", err)
	}
	defer rows.Close()

	var out []domain.QuizResult
	for rows.Next() {
		var (
			r     domain.QuizResult
			ended int64
		)
		if err := rows.Scan(&r.SessionID, &r.ScoreUser, &r.ScoreBot, &r.QuestionCount, &ended); err != nil {
			return nil, fmt.Errorf("scan quiz result: %w", err)
		}
		r.EndedAt = time.Unix(0, ended).UTC()
		out = append(out, r)
	}
	return out, rows.Err()
}
