package config_test

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"lockwatch/internal/config"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.toml")
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

const minimalConfig = `
[cluster]
endpoint = "https://cluster.example.com:8000"
username = "svc-worm"
password = "secret"

[watch]
directory_path = "/vault/incoming"
`

func TestLoadAppliesDefaults(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	cfg, resolved, exists, err := config.Load(writeConfig(t, minimalConfig))
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if !exists || resolved == "" {
		t.Fatal("expected config file to resolve")
	}

	if cfg.Watch.IntervalSeconds != 15 {
		t.Fatalf("interval default = %d, want 15", cfg.Watch.IntervalSeconds)
	}
	if cfg.Watch.DebouncePolicy != "first-event" {
		t.Fatalf("policy default = %q", cfg.Watch.DebouncePolicy)
	}
	if cfg.Lock.Retention != "1d" {
		t.Fatalf("retention default = %q", cfg.Lock.Retention)
	}
	if cfg.Workers.Count != 4 || cfg.Workers.MaxAttempts != 3 {
		t.Fatalf("worker defaults = %+v", cfg.Workers)
	}
	if !strings.HasSuffix(cfg.Paths.JournalPath, filepath.Join("lockwatch", "journal.db")) {
		t.Fatalf("journal path not expanded: %q", cfg.Paths.JournalPath)
	}
	if cfg.WatchRef().Path != "/vault/incoming" {
		t.Fatalf("watch ref = %+v", cfg.WatchRef())
	}
}

func TestLoadRejectsMissingEndpoint(t *testing.T) {
	_, _, _, err := config.Load(writeConfig(t, `
[watch]
directory_path = "/vault"
`))
	if err == nil || !strings.Contains(err.Error(), "cluster.endpoint") {
		t.Fatalf("expected endpoint error, got %v", err)
	}
}

func TestLoadRejectsUnknownNotificationKind(t *testing.T) {
	_, _, _, err := config.Load(writeConfig(t, minimalConfig+`
kinds = ["child_file_added", "child_sparkle_emitted"]
`))
	if err == nil || !strings.Contains(err.Error(), "child_sparkle_emitted") {
		t.Fatalf("expected unknown kind error, got %v", err)
	}
}

func TestLoadRejectsEmptyLockSpec(t *testing.T) {
	_, _, _, err := config.Load(writeConfig(t, minimalConfig+`
[lock]
legal_hold = false
retention = ""
`))
	if err == nil || !strings.Contains(err.Error(), "lock spec") {
		t.Fatalf("expected lock spec error, got %v", err)
	}
}

func TestLoadRejectsMalformedRetention(t *testing.T) {
	_, _, _, err := config.Load(writeConfig(t, minimalConfig+`
[lock]
retention = "5x"
`))
	if err == nil || !strings.Contains(err.Error(), "retention duration") {
		t.Fatalf("expected retention error, got %v", err)
	}
}

func TestLoadRejectsAmbiguousWatchTarget(t *testing.T) {
	_, _, _, err := config.Load(writeConfig(t, minimalConfig+`
file_id = 12
`))
	if err == nil || !strings.Contains(err.Error(), "mutually exclusive") {
		t.Fatalf("expected ambiguity error, got %v", err)
	}
}

func TestCredentialsFromEnvironment(t *testing.T) {
	t.Setenv("LOCKWATCH_USERNAME", "env-user")
	t.Setenv("LOCKWATCH_PASSWORD", "env-pass")

	cfg, _, _, err := config.Load(writeConfig(t, `
[cluster]
endpoint = "https://cluster.example.com:8000"

[watch]
file_id = 42
`))
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if cfg.Cluster.Username != "env-user" || cfg.Cluster.Password != "env-pass" {
		t.Fatalf("credentials not taken from environment: %+v", cfg.Cluster)
	}
	if cfg.WatchRef().ID != 42 {
		t.Fatalf("watch ref = %+v", cfg.WatchRef())
	}
}

func TestCreateSampleRefusesOverwrite(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	if err := config.CreateSample(path); err != nil {
		t.Fatalf("CreateSample returned error: %v", err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read sample: %v", err)
	}
	if !strings.Contains(string(data), "[cluster]") {
		t.Fatal("sample config missing cluster section")
	}
	if err := config.CreateSample(path); err == nil {
		t.Fatal("expected refusal to overwrite existing config")
	}
}

func TestAccessorsRoundTrip(t *testing.T) {
	cfg, _, _, err := config.Load(writeConfig(t, minimalConfig))
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}

	kinds, err := cfg.KindSet()
	if err != nil {
		t.Fatalf("KindSet returned error: %v", err)
	}
	if len(kinds) != 3 {
		t.Fatalf("kind set size = %d, want 3", len(kinds))
	}

	spec, err := cfg.LockSpec()
	if err != nil {
		t.Fatalf("LockSpec returned error: %v", err)
	}
	if spec.LegalHold || !spec.WantsRetention() {
		t.Fatalf("unexpected lock spec: %s", spec)
	}

	cluster := cfg.ClusterConfig()
	if cluster.BaseURL != "https://cluster.example.com:8000" {
		t.Fatalf("cluster base url = %q", cluster.BaseURL)
	}
}
