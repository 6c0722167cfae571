// Package logging provides a structured logging system for AEON with unified
// log handling across the CLI and embedded execution modes.
//
// The logger wraps log/slog with a subsystem tag per entry so that output can
// be filtered by component (Orchestrator, Lifecycle, Config, StateStore, ...).
// Two modes are supported:
//
//   - CLI mode: entries are written directly to the configured io.Writer
//     through a slog.TextHandler, honoring the configured level filter.
//   - Channel mode: entries are delivered on a buffered channel for a host
//     process to render; the channel never blocks the caller (full channel
//     falls back to stderr).
//
// Security-sensitive operations (config overrides, secret writes) are logged
// through Audit, which emits a single [AUDIT] line in key=value form.
package logging
