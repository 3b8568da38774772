// Package workflow drives a content item through render, caption and
// distribution.
//
// Transition is a pure function from a record and a provider event to the
// next record and the side effects it requires. The Engine commits each
// outcome with a status-guarded compare-and-swap, so a webhook and a
// concurrent failsafe poll delivering the same signal produce exactly one
// state change. Webhook handlers and the reconciler both feed events through
// Engine.Handle, which guarantees they converge on the same result.
//
// Per-kind behavior (target platforms, posting mode, request shaping) lives
// in the KindStrategy table resolved with Lookup.
package workflow
