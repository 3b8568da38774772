package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// InsertDeadLetter persists a background task that exhausted its retries.
func (s *Store) InsertDeadLetter(ctx context.Context, letter *DeadLetter) error {
	if letter == nil {
		return errors.New("dead letter is nil")
	}
	if letter.ID == "" {
		letter.ID = uuid.NewString()
	}
	if letter.CreatedAt.IsZero() {
		letter.CreatedAt = time.Now().UTC()
	}
	_, err := s.execWithRetry(ctx,
		`INSERT INTO dead_letters (id, task, workflow_id, kind, error_message, attempts, created_at)
         VALUES (?, ?, ?, ?, ?, ?, ?)`,
		letter.ID,
		letter.Task,
		nullableString(letter.WorkflowID),
		nullableString(string(letter.Kind)),
		letter.ErrorMessage,
		letter.Attempts,
		formatTime(letter.CreatedAt),
	)
	if err != nil {
		return fmt.Errorf("insert dead letter: %w", err)
	}
	return nil
}

// ListDeadLetters returns the most recent dead letters, newest first.
func (s *Store) ListDeadLetters(ctx context.Context, limit int) ([]DeadLetter, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ensureContext(ctx),
		`SELECT id, task, workflow_id, kind, error_message, attempts, created_at
         FROM dead_letters ORDER BY created_at DESC, id LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("list dead letters: %w", err)
	}
	defer rows.Close()

	var out []DeadLetter
	for rows.Next() {
		var (
			letter     DeadLetter
			workflowID sql.NullString
			kind       sql.NullString
			createdRaw string
		)
		if err := rows.Scan(&letter.ID, &letter.Task, &workflowID, &kind, &letter.ErrorMessage, &letter.Attempts, &createdRaw); err != nil {
			return nil, fmt.Errorf("scan dead letter: %w", err)
		}
		letter.WorkflowID = workflowID.String
		letter.Kind = Kind(kind.String)
		if t, err := parseTimeString(createdRaw); err == nil {
			letter.CreatedAt = t
		}
		out = append(out, letter)
	}
	return out, rows.Err()
}
