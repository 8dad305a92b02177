// Package qumulo is a minimal REST client for the storage cluster: session
// login, file attribute lookup, WORM lock get/set, and the live
// change-notification stream.
//
// Every request carries a bounded timeout. Failures are tagged with the
// shared error taxonomy so callers can decide between retry and surfacing.
package qumulo
