package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Create inserts a new workflow record. Missing ids, statuses and timestamps
// are filled in; the stored record is returned.
func (s *Store) Create(ctx context.Context, rec *Record) (*Record, error) {
	if rec == nil {
		return nil, errors.New("record is nil")
	}
	if !rec.Kind.Valid() {
		return nil, fmt.Errorf("%w: %q", ErrUnknownKind, rec.Kind)
	}
	if strings.TrimSpace(rec.Script) == "" {
		return nil, errors.New("script is required")
	}
	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}
	if rec.Status == "" {
		rec.Status = StatusQueued
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now().UTC()
	}
	if rec.UpdatedAt.IsZero() {
		rec.UpdatedAt = rec.CreatedAt
	}
	if rec.StatusChangedAt.IsZero() {
		rec.StatusChangedAt = rec.CreatedAt
	}

	_, err := s.execWithRetry(ctx,
		`INSERT INTO `+rec.Kind.Table()+` (`+recordColumns+`)
         VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.ID,
		rec.Kind,
		rec.Status,
		nullableString(rec.RenderCorrelationID),
		nullableString(rec.CaptionCorrelationID),
		encodeStrings(rec.DistributionPostIDs),
		encodeStrings(rec.DistributionErrors),
		rec.Script,
		nullableString(rec.CaptionText),
		nullableString(rec.Title),
		nullableString(rec.RenderVideoURL),
		nullableString(rec.RelayedVideoURL),
		nullableString(rec.FinalVideoURL),
		nullableTime(rec.ScheduledFor),
		nullableString(rec.ErrorMessage),
		rec.RetryCount,
		formatTime(rec.CreatedAt),
		formatTime(rec.UpdatedAt),
		formatTime(rec.StatusChangedAt),
		nullableTime(rec.CompletedAt),
	)
	if err != nil {
		return nil, fmt.Errorf("insert %s record: %w", rec.Kind, err)
	}
	return s.Get(ctx, rec.Ref())
}

// Get fetches a record by partition and id. A missing record returns nil, nil.
func (s *Store) Get(ctx context.Context, ref Ref) (*Record, error) {
	if !ref.Kind.Valid() {
		return nil, fmt.Errorf("%w: %q", ErrUnknownKind, ref.Kind)
	}
	row := s.db.QueryRowContext(ensureContext(ctx),
		`SELECT `+recordColumns+` FROM `+ref.Kind.Table()+` WHERE id = ?`, ref.ID)
	rec, err := scanRecord(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get record %s: %w", ref, err)
	}
	return rec, nil
}

// FindByCorrelationID searches every partition for the record carrying id in
// the given correlation field. A miss returns nil, nil.
func (s *Store) FindByCorrelationID(ctx context.Context, field CorrelationField, id string) (*Record, error) {
	if !field.valid() {
		return nil, fmt.Errorf("unknown correlation field %q", field)
	}
	id = strings.TrimSpace(id)
	if id == "" {
		return nil, nil
	}
	ctx = ensureContext(ctx)
	for _, kind := range allKinds {
		row := s.db.QueryRowContext(ctx,
			`SELECT `+recordColumns+` FROM `+kind.Table()+` WHERE `+string(field)+` = ? LIMIT 1`, id)
		rec, err := scanRecord(row)
		if errors.Is(err, sql.ErrNoRows) {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("find by %s in %s: %w", field, kind, err)
		}
		return rec, nil
	}
	return nil, nil
}

// ListByStatus returns records in one partition with the given status, oldest
// status change first.
func (s *Store) ListByStatus(ctx context.Context, kind Kind, status Status) ([]*Record, error) {
	if !kind.Valid() {
		return nil, fmt.Errorf("%w: %q", ErrUnknownKind, kind)
	}
	rows, err := s.db.QueryContext(ensureContext(ctx),
		`SELECT `+recordColumns+` FROM `+kind.Table()+` WHERE status = ? ORDER BY status_changed_at, id`, status)
	if err != nil {
		return nil, fmt.Errorf("query %s by status: %w", kind, err)
	}
	defer rows.Close()
	return collectRecords(rows)
}

// ListAll returns records from every partition, filtered by status set (or all
// records when no status is provided), newest first.
func (s *Store) ListAll(ctx context.Context, statuses ...Status) ([]*Record, error) {
	ctx = ensureContext(ctx)
	var out []*Record
	for _, kind := range allKinds {
		query := `SELECT ` + recordColumns + ` FROM ` + kind.Table()
		args := make([]any, 0, len(statuses))
		if len(statuses) > 0 {
			query += ` WHERE status IN (` + makePlaceholders(len(statuses)) + `)`
			for _, status := range statuses {
				args = append(args, status)
			}
		}
		rows, err := s.db.QueryContext(ctx, query, args...)
		if err != nil {
			return nil, fmt.Errorf("list %s records: %w", kind, err)
		}
		recs, err := collectRecords(rows)
		rows.Close()
		if err != nil {
			return nil, err
		}
		out = append(out, recs...)
	}
	slices.SortFunc(out, func(a, b *Record) int {
		if c := b.CreatedAt.Compare(a.CreatedAt); c != 0 {
			return c
		}
		return strings.Compare(a.ID, b.ID)
	})
	return out, nil
}

// CompareAndSwap writes next only if the stored status still equals expected.
// Correlation ids are written at most once: a stored value always wins. The
// stored record after the write is returned. ErrNotFound reports a missing
// record and ErrConflict a lost race.
func (s *Store) CompareAndSwap(ctx context.Context, next *Record, expected Status) (*Record, error) {
	if next == nil {
		return nil, errors.New("record is nil")
	}
	if !next.Kind.Valid() {
		return nil, fmt.Errorf("%w: %q", ErrUnknownKind, next.Kind)
	}
	now := next.UpdatedAt
	if now.IsZero() {
		now = time.Now()
	}
	stamp := formatTime(now)
	res, err := s.execWithRetry(ctx,
		`UPDATE `+next.Kind.Table()+`
         SET status = ?,
             render_correlation_id = COALESCE(render_correlation_id, ?),
             caption_correlation_id = COALESCE(caption_correlation_id, ?),
             distribution_post_ids = ?, distribution_errors = ?,
             render_video_url = ?, relayed_video_url = ?, final_video_url = ?,
             scheduled_for = ?, error_message = ?, retry_count = ?,
             updated_at = ?,
             status_changed_at = CASE WHEN status <> ? THEN ? ELSE status_changed_at END,
             completed_at = ?
         WHERE id = ? AND status = ?`,
		next.Status,
		nullableString(next.RenderCorrelationID),
		nullableString(next.CaptionCorrelationID),
		encodeStrings(next.DistributionPostIDs),
		encodeStrings(next.DistributionErrors),
		nullableString(next.RenderVideoURL),
		nullableString(next.RelayedVideoURL),
		nullableString(next.FinalVideoURL),
		nullableTime(next.ScheduledFor),
		nullableString(next.ErrorMessage),
		next.RetryCount,
		stamp,
		next.Status, stamp,
		nullableTime(next.CompletedAt),
		next.ID,
		expected,
	)
	if err != nil {
		return nil, fmt.Errorf("compare-and-swap %s: %w", next.Ref(), err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return nil, fmt.Errorf("compare-and-swap rows affected: %w", err)
	}
	if affected == 0 {
		current, getErr := s.Get(ctx, next.Ref())
		if getErr != nil {
			return nil, getErr
		}
		if current == nil {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, next.Ref())
		}
		return current, fmt.Errorf("%w: %s is %s, expected %s", ErrConflict, next.Ref(), current.Status, expected)
	}
	stored, err := s.Get(ctx, next.Ref())
	if err != nil {
		return nil, err
	}
	if stored == nil {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, next.Ref())
	}
	return stored, nil
}

func collectRecords(rows *sql.Rows) ([]*Record, error) {
	var out []*Record
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

func makePlaceholders(count int) string {
	if count <= 0 {
		return ""
	}
	return strings.TrimSuffix(strings.Repeat("?,", count), ",")
}
