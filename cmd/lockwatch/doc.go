// Package main hosts the lockwatch CLI entrypoint and command graph.
//
// The Cobra-based command tree covers out-of-band lock verification against
// the cluster, inspection of the apply-outcome journal the daemon writes,
// and configuration scaffolding. Commands resolve configuration once and
// talk to the cluster or the journal database directly; the daemon itself
// runs as the separate lockwatchd binary.
package main
