package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

// SaveFeedHealth replaces the single cached feed health snapshot.
func (s *Store) SaveFeedHealth(ctx context.Context, snapshot FeedHealthSnapshot) error {
	if len(snapshot.Payload) == 0 {
		return errors.New("feed health payload is empty")
	}
	_, err := s.execWithRetry(ctx,
		`INSERT INTO feed_health (id, checked_at, payload_json) VALUES (1, ?, ?)
         ON CONFLICT(id) DO UPDATE SET checked_at = excluded.checked_at, payload_json = excluded.payload_json`,
		formatTime(snapshot.CheckedAt), string(snapshot.Payload))
	if err != nil {
		return fmt.Errorf("save feed health: %w", err)
	}
	return nil
}

// LatestFeedHealth returns the cached snapshot, or nil when no check has run.
func (s *Store) LatestFeedHealth(ctx context.Context) (*FeedHealthSnapshot, error) {
	var checkedRaw, payload string
	err := s.db.QueryRowContext(ensureContext(ctx),
		`SELECT checked_at, payload_json FROM feed_health WHERE id = 1`).Scan(&checkedRaw, &payload)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load feed health: %w", err)
	}
	snapshot := &FeedHealthSnapshot{Payload: []byte(payload)}
	if t, err := parseTimeString(checkedRaw); err == nil {
		snapshot.CheckedAt = t
	}
	return snapshot, nil
}
