// Package logging assembles structured slog loggers and formatting helpers used
// across reelcast.
//
// It owns the console and JSON handlers, level parsing, and output plumbing
// (stdout plus an optional JSON log file), and exposes context-aware helpers
// so pipeline code tags log lines with workflow ids, kinds, stages, and
// request ids. A no-op logger is provided for tests and wiring code.
package logging
