package store

import (
	"context"
	"database/sql"
	"fmt"
)

type Migration struct {
	Version int
	UpSQL   string
}

var migrations = []Migration{
	{
		Version: 1,
		UpSQL: `
CREATE TABLE IF NOT EXISTS results (
	test_id TEXT PRIMARY KEY,
	subject TEXT NOT NULL,
	requester_id TEXT NOT NULL DEFAULT '',
	target INTEGER NOT NULL CHECK(target > 0),
	units_sent INTEGER NOT NULL CHECK(units_sent >= 0 AND units_sent <= target),
	units_verified INTEGER NOT NULL CHECK(units_verified >= 0 AND units_verified <= units_sent),
	success_rate REAL NOT NULL,
	status TEXT NOT NULL CHECK(status IN ('completed','stopped','failed')),
	error TEXT NOT NULL DEFAULT '',
	started_at TEXT,
	finished_at TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_results_finished_at ON results(finished_at DESC);
CREATE INDEX IF NOT EXISTS idx_results_requester ON results(requester_id, finished_at DESC);
`,
	},
}

// ApplyMigrations brings the schema up to date. Applied versions are skipped.
func ApplyMigrations(ctx context.Context, db *sql.DB) error {
	if _, err := db.ExecContext(ctx, `CREATE TABLE IF NOT EXISTS schema_migrations(version INTEGER PRIMARY KEY, applied_at TEXT NOT NULL)`); err != nil {
		return fmt.Errorf("create schema_migrations: %w", err)
	}

	for _, m := range migrations {
		var exists int
		err := db.QueryRowContext(ctx, `SELECT 1 FROM schema_migrations WHERE version = ?`, m.Version).Scan(&exists)
		if err == nil {
			continue
		}
		if err != sql.ErrNoRows {
			return fmt.Errorf("check migration %d: %w", m.Version, err)
		}

		tx, err := db.BeginTx(ctx, nil)
		if err != nil {
			return fmt.Errorf("begin tx for migration %d: %w", m.Version, err)
		}
		if _, err := tx.ExecContext(ctx, m.UpSQL); err != nil {
			tx.Rollback() //nolint:errcheck
			return fmt.Errorf("apply migration %d: %w", m.Version, err)
		}
		if _, err := tx.ExecContext(ctx, `INSERT INTO schema_migrations(version, applied_at) VALUES (?, datetime('now'))`, m.Version); err != nil {
			tx.Rollback() //nolint:errcheck
			return fmt.Errorf("record migration %d: %w", m.Version, err)
		}
		if err := tx.Commit(); err != nil {
			return fmt.Errorf("commit migration %d: %w", m.Version, err)
		}
	}
	return nil
}
