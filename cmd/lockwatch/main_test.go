package main

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"lockwatch/internal/journal"
	"lockwatch/internal/locker"
	"lockwatch/internal/lockstatus"
)

type cliTestEnv struct {
	baseDir     string
	configPath  string
	journalPath string
}

// setupCLITestEnv writes a valid config pointing at endpoint and returns
// the paths commands will resolve from it.
func setupCLITestEnv(t *testing.T, endpoint string) *cliTestEnv {
	t.Helper()

	base := t.TempDir()
	journalPath := filepath.Join(base, "journal.db")
	configPath := filepath.Join(base, "config.toml")

	body := fmt.Sprintf(`
[cluster]
endpoint = %q
username = "admin"
password = "password"

[watch]
directory_path = "/vault"

[paths]
log_dir = %q
journal_path = %q
`, endpoint, filepath.Join(base, "logs"), journalPath)
	if err := os.WriteFile(configPath, []byte(body), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}

	return &cliTestEnv{baseDir: base, configPath: configPath, journalPath: journalPath}
}

func runCLI(t *testing.T, args []string, configPath string) (string, int, error) {
	t.Helper()
	cmd, ctx := newRootCommand()
	var stdout, stderr bytes.Buffer
	cmd.SetOut(&stdout)
	cmd.SetErr(&stderr)
	if configPath != "" {
		args = append([]string{"--config", configPath}, args...)
	}
	cmd.SetArgs(args)
	err := cmd.Execute()
	return stdout.String(), ctx.exitCode, err
}

func requireContains(t *testing.T, haystack, needle string) {
	t.Helper()
	if !strings.Contains(haystack, needle) {
		t.Fatalf("output %q does not contain %q", haystack, needle)
	}
}

func TestConfigInitAndValidate(t *testing.T) {
	env := setupCLITestEnv(t, "https://cluster.example.com:8000")

	out, _, err := runCLI(t, []string{"config", "validate"}, env.configPath)
	if err != nil {
		t.Fatalf("config validate: %v", err)
	}
	requireContains(t, out, "Configuration valid")
	requireContains(t, out, "/vault")

	target := filepath.Join(t.TempDir(), "config.toml")
	out, _, err = runCLI(t, []string{"config", "init", "--path", target}, "")
	if err != nil {
		t.Fatalf("config init: %v", err)
	}
	requireContains(t, out, "Wrote sample configuration")
	if _, err := os.Stat(target); err != nil {
		t.Fatalf("expected config file at %s: %v", target, err)
	}

	if _, _, err := runCLI(t, []string{"config", "init", "--path", target}, ""); err == nil {
		t.Fatal("expected init to refuse overwriting an existing file")
	}
}

func TestConfigShowRedactsPassword(t *testing.T) {
	env := setupCLITestEnv(t, "https://cluster.example.com:8000")

	out, _, err := runCLI(t, []string{"config", "show"}, env.configPath)
	if err != nil {
		t.Fatalf("config show: %v", err)
	}
	requireContains(t, out, "cluster.example.com")
	requireContains(t, out, "[redacted]")
	if strings.Contains(out, "password = 'password'") || strings.Contains(out, `password = "password"`) {
		t.Fatalf("config show leaked the password: %q", out)
	}
}

func TestConfigPathPrintsResolvedLocation(t *testing.T) {
	env := setupCLITestEnv(t, "https://cluster.example.com:8000")

	out, _, err := runCLI(t, []string{"config", "path"}, env.configPath)
	if err != nil {
		t.Fatalf("config path: %v", err)
	}
	requireContains(t, out, env.configPath)
}

func TestVersionCommand(t *testing.T) {
	out, _, err := runCLI(t, []string{"version"}, "")
	if err != nil {
		t.Fatalf("version: %v", err)
	}
	requireContains(t, out, "lockwatch")
}

func TestVerifyCommandClassifiesAndSetsExitCode(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /v1/session/login", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"bearer_token":"test-token"}`)
	})
	mux.HandleFunc("GET /v1/files/77/info/lock", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"lock":{"legal_hold":true,"retention_period":"2027-01-01T00:00:00Z"}}`)
	})
	server := httptest.NewServer(mux)
	defer server.Close()

	env := setupCLITestEnv(t, server.URL)

	out, code, err := runCLI(t, []string{"verify", "77"}, env.configPath)
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	requireContains(t, out, "BOTH_SET")
	if code != lockstatus.BothSet.Code() {
		t.Fatalf("exit code = %d, want %d", code, lockstatus.BothSet.Code())
	}

	out, code, err = runCLI(t, []string{"verify", "77", "--json"}, env.configPath)
	if err != nil {
		t.Fatalf("verify --json: %v", err)
	}
	requireContains(t, out, `"code": 1`)
	requireContains(t, out, `"retention_period": "2027-01-01T00:00:00Z"`)
	if code != 1 {
		t.Fatalf("exit code = %d, want 1", code)
	}
}

func TestVerifyCommandReportsInvalidResponse(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /v1/session/login", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"bearer_token":"test-token"}`)
	})
	mux.HandleFunc("GET /v1/files/77/info/lock", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `<html>broken</html>`)
	})
	server := httptest.NewServer(mux)
	defer server.Close()

	env := setupCLITestEnv(t, server.URL)

	out, code, err := runCLI(t, []string{"verify", "77"}, env.configPath)
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	requireContains(t, out, "INVALID_RESPONSE")
	if code != lockstatus.InvalidResponse.Code() {
		t.Fatalf("exit code = %d, want %d", code, lockstatus.InvalidResponse.Code())
	}
}

func TestVerifyRecordWritesJournalEntry(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /v1/session/login", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"bearer_token":"test-token"}`)
	})
	mux.HandleFunc("GET /v1/files/77/info/lock", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"lock":{"legal_hold":true,"retention_period":null}}`)
	})
	mux.HandleFunc("GET /v1/files/77/info/attributes", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"id":"77","path":"/vault/held.bin","type":"FS_FILE_TYPE_FILE"}`)
	})
	server := httptest.NewServer(mux)
	defer server.Close()

	env := setupCLITestEnv(t, server.URL)

	_, code, err := runCLI(t, []string{"verify", "77", "--record"}, env.configPath)
	if err != nil {
		t.Fatalf("verify --record: %v", err)
	}
	if code != lockstatus.LegalHoldOnly.Code() {
		t.Fatalf("exit code = %d, want %d", code, lockstatus.LegalHoldOnly.Code())
	}

	store, err := journal.Open(env.journalPath)
	if err != nil {
		t.Fatalf("journal.Open: %v", err)
	}
	defer store.Close()
	entry, err := store.LatestForFile(context.Background(), 77)
	if err != nil {
		t.Fatalf("LatestForFile: %v", err)
	}
	if entry == nil || entry.Category != lockstatus.LegalHoldOnly || entry.Path != "/vault/held.bin" {
		t.Fatalf("unexpected journal entry: %+v", entry)
	}
}

func TestVerifyCommandRejectsBadReference(t *testing.T) {
	env := setupCLITestEnv(t, "https://cluster.example.com:8000")
	if _, _, err := runCLI(t, []string{"verify", "not-a-ref"}, env.configPath); err == nil {
		t.Fatal("expected a reference parse error")
	}
}

func TestJournalCommandListsOutcomes(t *testing.T) {
	env := setupCLITestEnv(t, "https://cluster.example.com:8000")

	store, err := journal.Open(env.journalPath)
	if err != nil {
		t.Fatalf("journal.Open: %v", err)
	}
	ctx := context.Background()
	ok := locker.Outcome{
		Category: lockstatus.BothSet, Mutated: true, Attempts: 1,
		FileID: 100, Path: "/vault/a.bin", CorrelationID: "c1",
	}
	if err := store.RecordOutcome(ctx, ok, nil); err != nil {
		t.Fatalf("RecordOutcome: %v", err)
	}
	failed := locker.Outcome{
		Category: lockstatus.NoneSet, Attempts: 3,
		FileID: 101, Path: "/vault/b.bin", CorrelationID: "c2",
	}
	if err := store.RecordOutcome(ctx, failed, fmt.Errorf("lock not reflected")); err != nil {
		t.Fatalf("RecordOutcome: %v", err)
	}
	if err := store.Close(); err != nil {
		t.Fatalf("close journal: %v", err)
	}

	out, _, err := runCLI(t, []string{"journal"}, env.configPath)
	if err != nil {
		t.Fatalf("journal: %v", err)
	}
	requireContains(t, out, "/vault/a.bin")
	requireContains(t, out, "BOTH_SET")
	requireContains(t, out, "FAILED")

	out, _, err = runCLI(t, []string{"journal", "--failed"}, env.configPath)
	if err != nil {
		t.Fatalf("journal --failed: %v", err)
	}
	if strings.Contains(out, "/vault/a.bin") {
		t.Fatalf("failed-only output includes successful entry: %q", out)
	}
	requireContains(t, out, "/vault/b.bin")

	out, _, err = runCLI(t, []string{"journal", "summary"}, env.configPath)
	if err != nil {
		t.Fatalf("journal summary: %v", err)
	}
	requireContains(t, out, "BOTH_SET")
}
