// Package daemon assembles the lock-enforcement pipeline and enforces
// single-instance execution. It owns the lifecycle of the notification
// consumer, the debounce scheduler, the lock worker pool, and the outcome
// journal, and tears them down in reverse order on shutdown.
package daemon
