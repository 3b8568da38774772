package store

import (
	"context"
	_ "embed"
	"fmt"
)

//go:embed schema.sql
var schemaSQL string

// schemaVersion is the current schema version. Bump this when the schema changes.
const schemaVersion = 1

// workflowTableDDL is instantiated once per partition.
const workflowTableDDL = `
CREATE TABLE IF NOT EXISTS %[1]s (
    id TEXT PRIMARY KEY,
    kind TEXT NOT NULL,
    status TEXT NOT NULL,
    render_correlation_id TEXT,
    caption_correlation_id TEXT,
    distribution_post_ids TEXT NOT NULL DEFAULT '[]',
    distribution_errors TEXT NOT NULL DEFAULT '[]',
    script TEXT NOT NULL,
    caption_text TEXT,
    title TEXT,
    render_video_url TEXT,
    relayed_video_url TEXT,
    final_video_url TEXT,
    scheduled_for TEXT,
    error_message TEXT,
    retry_count INTEGER NOT NULL DEFAULT 0,
    created_at TEXT NOT NULL,
    updated_at TEXT NOT NULL,
    status_changed_at TEXT NOT NULL,
    completed_at TEXT
);
CREATE INDEX IF NOT EXISTS idx_%[1]s_status ON %[1]s(status, status_changed_at);
CREATE UNIQUE INDEX IF NOT EXISTS idx_%[1]s_render_cid ON %[1]s(render_correlation_id) WHERE render_correlation_id IS NOT NULL;
CREATE UNIQUE INDEX IF NOT EXISTS idx_%[1]s_caption_cid ON %[1]s(caption_correlation_id) WHERE caption_correlation_id IS NOT NULL;
`

func (s *Store) initSchema(ctx context.Context) error {
	var tableExists int
	err := s.db.QueryRowContext(ctx,
		"SELECT COUNT(1) FROM sqlite_master WHERE type='table' AND name='schema_version'",
	).Scan(&tableExists)
	if err != nil {
		return fmt.Errorf("check schema_version table: %w", err)
	}

	if tableExists == 0 {
		return s.createSchema(ctx)
	}

	var version int
	err = s.db.QueryRowContext(ctx, "SELECT version FROM schema_version LIMIT 1").Scan(&version)
	if err != nil {
		return fmt.Errorf("read schema version: %w", err)
	}
	if version != schemaVersion {
		return fmt.Errorf("%w: database has version %d, expected %d (move the database aside to recreate it)",
			ErrSchemaMismatch, version, schemaVersion)
	}
	return nil
}

func (s *Store) createSchema(ctx context.Context) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin schema tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, schemaSQL); err != nil {
		return fmt.Errorf("create schema: %w", err)
	}
	for _, kind := range Kinds() {
		if _, err := tx.ExecContext(ctx, fmt.Sprintf(workflowTableDDL, kind.Table())); err != nil {
			return fmt.Errorf("create %s partition: %w", kind, err)
		}
	}
	if _, err := tx.ExecContext(ctx, "INSERT INTO schema_version (version) VALUES (?)", schemaVersion); err != nil {
		return fmt.Errorf("record schema version: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit schema: %w", err)
	}
	return nil
}
