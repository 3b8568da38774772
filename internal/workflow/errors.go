package workflow

import (
	"errors"

	"reelcast/internal/store"
)

var (
	// ErrIllegalTransition marks an event that cannot apply to the record's
	// current status under any ordering.
	ErrIllegalTransition = errors.New("illegal workflow transition")
	// ErrDuplicateOrStale marks an event for a record that already advanced
	// past it. Callers treat it as a no-op.
	ErrDuplicateOrStale = errors.New("duplicate or stale event")
	// ErrMissingCorrelationID marks a stage that never received a provider
	// correlation id.
	ErrMissingCorrelationID = errors.New("no correlation id received")
	// ErrMissingResultURL marks a completion event without a result URL.
	ErrMissingResultURL = errors.New("completion event carried no result url")
	// ErrPartialDistribution marks a distribution where some platform calls
	// failed. It is recorded, never fatal.
	ErrPartialDistribution = errors.New("partial distribution failure")
	// ErrUnknownKind marks a record whose kind has no strategy.
	ErrUnknownKind = store.ErrUnknownKind
)
