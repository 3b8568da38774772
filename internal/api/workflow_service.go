package api

import (
	"context"

	"reelcast/internal/store"
)

// WorkflowReader abstracts the record queries needed for API reads.
type WorkflowReader interface {
	Get(ctx context.Context, ref store.Ref) (*store.Record, error)
	ListAll(ctx context.Context, statuses ...store.Status) ([]*store.Record, error)
}

// WorkflowService exposes read-only workflow operations returning API DTOs.
type WorkflowService struct {
	store WorkflowReader
}

// NewWorkflowService constructs a WorkflowService around the provided reader.
func NewWorkflowService(store WorkflowReader) *WorkflowService {
	if store == nil {
		return nil
	}
	return &WorkflowService{store: store}
}

// List returns workflows across every partition filtered by status, with
// per-status counts of the returned set.
func (s *WorkflowService) List(ctx context.Context, statuses ...store.Status) (WorkflowListResponse, error) {
	if s == nil || s.store == nil {
		return WorkflowListResponse{Workflows: []Workflow{}, Counts: StatusCounts(nil)}, nil
	}
	records, err := s.store.ListAll(ctx, statuses...)
	if err != nil {
		return WorkflowListResponse{}, err
	}
	return WorkflowListResponse{Workflows: FromRecords(records), Counts: StatusCounts(records)}, nil
}

// Describe fetches a single workflow. A missing record returns nil, nil.
func (s *WorkflowService) Describe(ctx context.Context, ref store.Ref) (*Workflow, error) {
	if s == nil || s.store == nil {
		return nil, nil
	}
	rec, err := s.store.Get(ctx, ref)
	if err != nil || rec == nil {
		return nil, err
	}
	dto := FromRecord(rec)
	return &dto, nil
}
