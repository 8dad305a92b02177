// Package testsupport provides shared fixtures for package tests.
package testsupport

import (
	"path/filepath"
	"testing"

	"lockwatch/internal/config"
)

// ConfigOption allows callers to customize the generated test configuration.
type ConfigOption func(*config.Config)

// NewConfig produces a validated-shape config seeded with unique temp
// directories per test. It watches /vault with a zero debounce window so
// pipeline tests run without timers.
func NewConfig(t testing.TB, opts ...ConfigOption) *config.Config {
	t.Helper()

	base := t.TempDir()
	cfg := config.Default()
	cfg.Cluster.Endpoint = "https://cluster.example.com:8000"
	cfg.Cluster.Username = "admin"
	cfg.Cluster.Password = "password"
	cfg.Watch.DirectoryPath = "/vault"
	cfg.Watch.Recursive = true
	cfg.Watch.IntervalSeconds = 0
	cfg.Lock.LegalHold = true
	cfg.Lock.Retention = "1d"
	cfg.Workers.Count = 1
	cfg.Paths.LogDir = filepath.Join(base, "logs")
	cfg.Paths.JournalPath = filepath.Join(base, "journal.db")

	for _, opt := range opts {
		opt(&cfg)
	}

	return &cfg
}

// WithEndpoint points the config at a test server.
func WithEndpoint(endpoint string) ConfigOption {
	return func(cfg *config.Config) {
		cfg.Cluster.Endpoint = endpoint
	}
}
