// Package config loads, normalizes, and validates the lockwatch TOML
// configuration. Load applies repository defaults, environment credential
// overrides, and tilde expansion so the rest of the system consumes
// already-validated values.
package config
