// Package alerts records pipeline failures and operational notices.
//
// LogAlert persists an alert, writes a structured log line at a level
// matching its severity, captures a stack trace for critical alerts, and
// pushes critical alerts to ntfy. The read side lists unresolved alerts,
// resolves them, and aggregates counts over a rolling seven-day window.
package alerts
