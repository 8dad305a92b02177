// Package journal persists terminal lock outcomes to SQLite so operators
// and the verification CLI can audit what the daemon did after the fact.
package journal

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"lockwatch/internal/locker"
	"lockwatch/internal/lockstatus"
)

// Store manages outcome persistence backed by SQLite.
type Store struct {
	db   *sql.DB
	path string
}

// Open initializes or connects to the journal database and applies
// migrations.
func Open(path string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("ensure journal directory: %w", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA foreign_keys = ON",
		"PRAGMA busy_timeout = 5000",
	}
	for _, pragma := range pragmas {
		if _, execErr := db.Exec(pragma); execErr != nil {
			_ = db.Close()
			return nil, fmt.Errorf("apply pragma %q: %w", pragma, execErr)
		}
	}

	store := &Store{db: db, path: path}
	if err := store.applyMigrations(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	return store, nil
}

// Path returns the database file location.
func (s *Store) Path() string { return s.path }

// Close closes the underlying database connection.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Entry is one recorded lock outcome.
type Entry struct {
	ID            int64
	FileID        uint64
	Path          string
	Category      lockstatus.Category
	Mutated       bool
	Attempts      int
	CorrelationID string
	Error         string
	RecordedAt    time.Time
}

// Failed reports whether the entry recorded an apply failure.
func (e Entry) Failed() bool { return e.Error != "" }

// RecordOutcome persists one terminal apply result. It satisfies
// locker.Recorder.
func (s *Store) RecordOutcome(ctx context.Context, outcome locker.Outcome, applyErr error) error {
	errText := ""
	if applyErr != nil {
		errText = applyErr.Error()
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO lock_outcomes (
            file_id, path, category, mutated, attempts, correlation_id, error, recorded_at
        ) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		int64(outcome.FileID),
		outcome.Path,
		outcome.Category.Code(),
		boolToInt(outcome.Mutated),
		outcome.Attempts,
		outcome.CorrelationID,
		nullableString(errText),
		time.Now().UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("insert lock outcome: %w", err)
	}
	return nil
}

// Recent returns the newest entries, optionally restricted to failures.
func (s *Store) Recent(ctx context.Context, limit int, failedOnly bool) ([]Entry, error) {
	if limit <= 0 {
		limit = 50
	}

	query := `SELECT id, file_id, path, category, mutated, attempts, correlation_id, error, recorded_at
        FROM lock_outcomes`
	if failedOnly {
		query += ` WHERE error IS NOT NULL`
	}
	query += ` ORDER BY id DESC LIMIT ?`

	rows, err := s.db.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("query lock outcomes: %w", err)
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		entry, err := scanEntry(rows)
		if err != nil {
			return nil, err
		}
		entries = append(entries, entry)
	}
	return entries, rows.Err()
}

// LatestForFile returns the most recent entry for a file id.
func (s *Store) LatestForFile(ctx context.Context, fileID uint64) (*Entry, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, file_id, path, category, mutated, attempts, correlation_id, error, recorded_at
        FROM lock_outcomes WHERE file_id = ? ORDER BY id DESC LIMIT 1`, int64(fileID))
	entry, err := scanEntry(row)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}
	return &entry, nil
}

// CountByCategory aggregates successful outcomes per classification.
func (s *Store) CountByCategory(ctx context.Context) (map[lockstatus.Category]int, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT category, COUNT(*) FROM lock_outcomes WHERE error IS NULL GROUP BY category`)
	if err != nil {
		return nil, fmt.Errorf("aggregate outcomes: %w", err)
	}
	defer rows.Close()

	counts := make(map[lockstatus.Category]int)
	for rows.Next() {
		var code, count int
		if err := rows.Scan(&code, &count); err != nil {
			return nil, fmt.Errorf("scan aggregate row: %w", err)
		}
		if category, ok := lockstatus.ParseCategory(code); ok {
			counts[category] = count
		}
	}
	return counts, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanEntry(row rowScanner) (Entry, error) {
	var (
		entry      Entry
		fileID     int64
		category   int
		mutated    int
		errText    sql.NullString
		recordedAt string
	)
	if err := row.Scan(&entry.ID, &fileID, &entry.Path, &category, &mutated,
		&entry.Attempts, &entry.CorrelationID, &errText, &recordedAt); err != nil {
		if err == sql.ErrNoRows {
			return Entry{}, err
		}
		return Entry{}, fmt.Errorf("scan lock outcome: %w", err)
	}

	entry.FileID = uint64(fileID)
	entry.Mutated = mutated != 0
	// Failed applies that never reached classification persist code 0;
	// keep it verbatim rather than inventing a category.
	entry.Category = lockstatus.Category(category)
	if errText.Valid {
		entry.Error = errText.String
	}
	if parsed, err := time.Parse(time.RFC3339Nano, strings.TrimSpace(recordedAt)); err == nil {
		entry.RecordedAt = parsed
	}
	return entry, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func nullableString(value string) any {
	if strings.TrimSpace(value) == "" {
		return nil
	}
	return value
}
