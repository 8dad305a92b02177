package journal

import (
	"context"
	"fmt"
)

// migrations run in order; the schema version is tracked with
// PRAGMA user_version so upgrades apply exactly once.
var migrations = []string{
	`CREATE TABLE IF NOT EXISTS lock_outcomes (
        id INTEGER PRIMARY KEY AUTOINCREMENT,
        file_id INTEGER NOT NULL,
        path TEXT NOT NULL,
        category INTEGER NOT NULL,
        mutated INTEGER NOT NULL DEFAULT 0,
        attempts INTEGER NOT NULL DEFAULT 0,
        correlation_id TEXT NOT NULL,
        error TEXT,
        recorded_at TEXT NOT NULL
    )`,
	`CREATE INDEX IF NOT EXISTS idx_lock_outcomes_file_id ON lock_outcomes(file_id)`,
	`CREATE INDEX IF NOT EXISTS idx_lock_outcomes_recorded_at ON lock_outcomes(recorded_at)`,
}

func (s *Store) applyMigrations(ctx context.Context) error {
	var version int
	if err := s.db.QueryRowContext(ctx, "PRAGMA user_version").Scan(&version); err != nil {
		return fmt.Errorf("read schema version: %w", err)
	}

	for i := version; i < len(migrations); i++ {
		if _, err := s.db.ExecContext(ctx, migrations[i]); err != nil {
			return fmt.Errorf("apply migration %d: %w", i+1, err)
		}
		if _, err := s.db.ExecContext(ctx, fmt.Sprintf("PRAGMA user_version = %d", i+1)); err != nil {
			return fmt.Errorf("bump schema version: %w", err)
		}
	}
	return nil
}
