// Package logging assembles the structured slog loggers used across
// lockwatch components.
//
// It centralizes level and output plumbing, exposes attr helper
// constructors so components emit fields with consistent keys, and
// provides a no-op logger for tests and wiring code that cannot fail.
package logging
