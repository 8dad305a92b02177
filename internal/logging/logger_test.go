package logging_test

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"lockwatch/internal/logging"
)

func TestNewWritesJSONToFile(t *testing.T) {
	dir := t.TempDir()
	logPath := filepath.Join(dir, "lockwatch.log")

	logger, err := logging.New(logging.Options{
		Level:       "debug",
		Format:      "json",
		OutputPaths: []string{logPath},
	})
	if err != nil {
		t.Fatalf("New returned error: %v", err)
	}

	logger.Info("lock applied", logging.Args(
		logging.Uint64(logging.FieldFileID, 42),
		logging.String(logging.FieldCategory, "BOTH_SET"),
	)...)

	data, err := os.ReadFile(logPath)
	if err != nil {
		t.Fatalf("read log file: %v", err)
	}
	line := string(data)
	if !strings.Contains(line, `"msg":"lock applied"`) {
		t.Fatalf("missing message in output: %s", line)
	}
	if !strings.Contains(line, `"file_id":42`) {
		t.Fatalf("missing file_id attr in output: %s", line)
	}
}

func TestNewRejectsUnknownFormat(t *testing.T) {
	if _, err := logging.New(logging.Options{Format: "xml"}); err == nil {
		t.Fatal("expected error for unsupported format")
	}
}

func TestComponentLoggerToleratesNilBase(t *testing.T) {
	logger := logging.NewComponentLogger(nil, "watcher")
	if logger == nil {
		t.Fatal("expected non-nil logger")
	}
	logger.Info("should be discarded")
}
