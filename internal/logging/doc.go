// Package logging assembles structured slog loggers and formatting helpers used
// across spool components.
//
// It owns the console and JSON handlers, centralizes level and output
// plumbing, and exposes attribute helpers so queue, IPC, and lookup code tag
// their log lines with the same keys (component, queue, queue_id, service,
// event_type). A no-op logger is provided for tests and wiring code that
// cannot fail.
package logging
