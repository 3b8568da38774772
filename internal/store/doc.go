// Package store persists workflow records in SQLite, one table per brand
// partition, together with the alert log, the cached feed health snapshot,
// and dead-lettered background tasks.
//
// Every status change goes through CompareAndSwap, a single conditional
// UPDATE guarded on the expected predecessor status. Webhook handlers and
// reconciliation passes may race on the same record; exactly one of them
// observes a successful swap and the rest receive ErrConflict.
package store
