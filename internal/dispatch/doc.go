// Package dispatch runs background continuations on a bounded worker pool.
//
// Webhook handlers acknowledge providers immediately and hand the slow part
// of a transition (media relay, next provider submission, distribution) to a
// Dispatcher. Each task is retried with exponential backoff; a task that
// exhausts its retries is written to the dead-letter table and reported to
// the dead-letter hook so the owning workflow can be failed durably.
package dispatch
