package store

import "errors"

var (
	// ErrNotFound indicates the addressed row does not exist.
	ErrNotFound = errors.New("not found")
	// ErrConflict indicates a compare-and-swap lost: the stored status no
	// longer matched the expected predecessor.
	ErrConflict = errors.New("status conflict")
	// ErrSchemaMismatch indicates the database schema version doesn't match the expected version.
	ErrSchemaMismatch = errors.New("schema version mismatch")
	// ErrUnknownKind indicates a kind outside the partition table.
	ErrUnknownKind = errors.New("unknown workflow kind")
)
