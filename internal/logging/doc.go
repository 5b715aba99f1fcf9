// Package logging assembles the structured slog loggers used across the
// tapedeck core.
//
// It owns the console/JSON handlers, centralizes level and output plumbing,
// and exposes component-tagged helpers so catalog, remote, and refresher code
// emit log lines with the same shape. A no-op logger is provided for tests
// and wiring code that cannot fail.
package logging
