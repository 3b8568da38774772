package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

const alertColumns = "id, type, severity, message, details_json, workflow_id, kind, stack, resolved, created_at, resolved_at"

// InsertAlert appends an alert. The id and creation time are filled in when empty.
func (s *Store) InsertAlert(ctx context.Context, alert *Alert) error {
	if alert == nil {
		return errors.New("alert is nil")
	}
	if alert.ID == "" {
		alert.ID = uuid.NewString()
	}
	if alert.CreatedAt.IsZero() {
		alert.CreatedAt = time.Now().UTC()
	}
	details, err := encodeDetails(alert.Details)
	if err != nil {
		return fmt.Errorf("encode alert details: %w", err)
	}
	_, err = s.execWithRetry(ctx,
		`INSERT INTO alerts (`+alertColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		alert.ID,
		alert.Type,
		alert.Severity,
		alert.Message,
		details,
		nullableString(alert.WorkflowID),
		nullableString(string(alert.Kind)),
		nullableString(alert.Stack),
		boolToInt(alert.Resolved),
		formatTime(alert.CreatedAt),
		nullableTime(alert.ResolvedAt),
	)
	if err != nil {
		return fmt.Errorf("insert alert: %w", err)
	}
	return nil
}

// ListUnresolvedAlerts returns one page of unresolved alerts, newest first,
// along with the total number of unresolved alerts.
func (s *Store) ListUnresolvedAlerts(ctx context.Context, limit, offset int) ([]Alert, int, error) {
	ctx = ensureContext(ctx)
	if limit <= 0 {
		limit = 50
	}
	if offset < 0 {
		offset = 0
	}
	var total int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(1) FROM alerts WHERE resolved = 0`).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count unresolved alerts: %w", err)
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+alertColumns+` FROM alerts WHERE resolved = 0 ORDER BY created_at DESC, id LIMIT ? OFFSET ?`,
		limit, offset)
	if err != nil {
		return nil, 0, fmt.Errorf("list unresolved alerts: %w", err)
	}
	defer rows.Close()
	alerts, err := collectAlerts(rows)
	if err != nil {
		return nil, 0, err
	}
	return alerts, total, nil
}

// ResolveAlert marks an alert resolved. Resolving twice keeps the first
// resolution time.
func (s *Store) ResolveAlert(ctx context.Context, id string, at time.Time) error {
	res, err := s.execWithRetry(ctx,
		`UPDATE alerts SET resolved = 1, resolved_at = COALESCE(resolved_at, ?) WHERE id = ?`,
		formatTime(at), id)
	if err != nil {
		return fmt.Errorf("resolve alert: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("resolve alert rows affected: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("%w: alert %s", ErrNotFound, id)
	}
	return nil
}

// AlertsSince returns every alert created at or after since, newest first.
func (s *Store) AlertsSince(ctx context.Context, since time.Time) ([]Alert, error) {
	rows, err := s.db.QueryContext(ensureContext(ctx),
		`SELECT `+alertColumns+` FROM alerts WHERE created_at >= ? ORDER BY created_at DESC, id`,
		formatTime(since))
	if err != nil {
		return nil, fmt.Errorf("alerts since: %w", err)
	}
	defer rows.Close()
	return collectAlerts(rows)
}

func collectAlerts(rows *sql.Rows) ([]Alert, error) {
	var out []Alert
	for rows.Next() {
		var (
			alert      Alert
			details    sql.NullString
			workflowID sql.NullString
			kind       sql.NullString
			stack      sql.NullString
			resolved   int
			createdRaw string
			resolvedAt sql.NullString
		)
		if err := rows.Scan(
			&alert.ID,
			&alert.Type,
			&alert.Severity,
			&alert.Message,
			&details,
			&workflowID,
			&kind,
			&stack,
			&resolved,
			&createdRaw,
			&resolvedAt,
		); err != nil {
			return nil, fmt.Errorf("scan alert: %w", err)
		}
		alert.Details = decodeDetails(details)
		alert.WorkflowID = workflowID.String
		alert.Kind = Kind(kind.String)
		alert.Stack = stack.String
		alert.Resolved = resolved != 0
		if t, err := parseTimeString(createdRaw); err == nil {
			alert.CreatedAt = t
		}
		alert.ResolvedAt = parseNullableTime(resolvedAt)
		out = append(out, alert)
	}
	return out, rows.Err()
}
