// Package locker applies WORM locks to cluster files: an idempotent
// applier with bounded retry, a sharded keyed mutex that guarantees one
// in-flight apply per file, and the bounded worker pool that executes
// debounced triggers.
package locker
