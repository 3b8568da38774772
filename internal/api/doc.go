// Package api defines wire-format types and converters for the HTTP API and
// the CLI. It translates store records, alerts and reports into
// transport-friendly DTOs so handlers and table renderers never touch
// internal types directly.
//
// # Key Types
//
// Workflow: transport representation of a workflow record with its provider
// correlation ids, media URLs and distribution outcome.
//
// AlertPage/AlertStats: paginated unresolved alerts and the rolling summary.
//
// WebhookAck: the acknowledgement body returned to providers.
//
// # Design Notes
//
// DTOs use camelCase JSON tags. Enums are exposed as lowercase strings and
// timestamps use RFC3339 with milliseconds.
package api
