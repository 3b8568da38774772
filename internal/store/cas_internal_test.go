package store

import (
	"context"
	"database/sql/driver"
	"errors"
	"regexp"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
)

func casArgs(id string, expected Status) []driver.Value {
	args := make([]driver.Value, 0, 17)
	for i := 0; i < 15; i++ {
		args = append(args, sqlmock.AnyArg())
	}
	return append(args, id, string(expected))
}

func recordRow(id string, status Status) *sqlmock.Rows {
	cols := []string{
		"id", "kind", "status", "render_correlation_id", "caption_correlation_id",
		"distribution_post_ids", "distribution_errors", "script", "caption_text", "title",
		"render_video_url", "relayed_video_url", "final_video_url", "scheduled_for",
		"error_message", "retry_count", "created_at", "updated_at", "status_changed_at", "completed_at",
	}
	stamp := "2026-03-04T10:00:00.000000000Z"
	return sqlmock.NewRows(cols).AddRow(
		id, "property", string(status), "render-1", nil,
		"[]", "[]", "script", nil, nil,
		nil, nil, nil, nil,
		nil, 0, stamp, stamp, stamp, nil,
	)
}

func TestCompareAndSwapIsSingleGuardedUpdate(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock: %v", err)
	}
	defer db.Close()
	st := newFromDB(db)

	mock.ExpectExec(regexp.QuoteMeta("WHERE id = ? AND status = ?")).
		WithArgs(casArgs("wf-1", StatusRendering)...).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectQuery(`SELECT (.+) FROM workflows_property WHERE id = \?`).
		WithArgs("wf-1").
		WillReturnRows(recordRow("wf-1", StatusCaptionProcessing))

	next := &Record{ID: "wf-1", Kind: KindProperty, Status: StatusCaptionProcessing}
	stored, err := st.CompareAndSwap(context.Background(), next, StatusRendering)
	if err != nil {
		t.Fatalf("CompareAndSwap: %v", err)
	}
	if stored.Status != StatusCaptionProcessing || stored.RenderCorrelationID != "render-1" {
		t.Fatalf("unexpected stored record %+v", stored)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestCompareAndSwapReportsConflict(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock: %v", err)
	}
	defer db.Close()
	st := newFromDB(db)

	mock.ExpectExec("UPDATE workflows_property").
		WithArgs(casArgs("wf-1", StatusRendering)...).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery(`SELECT (.+) FROM workflows_property WHERE id = \?`).
		WithArgs("wf-1").
		WillReturnRows(recordRow("wf-1", StatusDistributing))

	next := &Record{ID: "wf-1", Kind: KindProperty, Status: StatusCaptionProcessing}
	current, err := st.CompareAndSwap(context.Background(), next, StatusRendering)
	if !errors.Is(err, ErrConflict) {
		t.Fatalf("expected ErrConflict, got %v", err)
	}
	if current == nil || current.Status != StatusDistributing {
		t.Fatalf("expected current record on conflict, got %+v", current)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestCompareAndSwapReportsMissingRecord(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock: %v", err)
	}
	defer db.Close()
	st := newFromDB(db)

	mock.ExpectExec("UPDATE workflows_market_update").
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery(`SELECT (.+) FROM workflows_market_update WHERE id = \?`).
		WithArgs("gone").
		WillReturnRows(sqlmock.NewRows([]string{"id"}))

	next := &Record{ID: "gone", Kind: KindMarketUpdate, Status: StatusFailed}
	if _, err := st.CompareAndSwap(context.Background(), next, StatusQueued); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestCompareAndSwapRejectsUnknownKind(t *testing.T) {
	st := newFromDB(nil)
	next := &Record{ID: "x", Kind: Kind("villa"), Status: StatusFailed}
	if _, err := st.CompareAndSwap(context.Background(), next, StatusQueued); !errors.Is(err, ErrUnknownKind) {
		t.Fatalf("expected ErrUnknownKind, got %v", err)
	}
}
