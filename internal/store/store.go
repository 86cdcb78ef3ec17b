// Package store persists final dispatch results in SQLite.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"github.com/torosent/batchpace/internal/session"
)

var ErrNotFound = errors.New("not found")

type Store struct {
	db *sql.DB
}

// Open opens (creating if needed) the database at path and applies
// migrations.
func Open(ctx context.Context, path string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return nil, fmt.Errorf("create db dir: %w", err)
	}
	dsn := fmt.Sprintf("file:%s?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)", path)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	db.SetMaxOpenConns(1)
	if err := db.PingContext(ctx); err != nil {
		db.Close() //nolint:errcheck
		return nil, fmt.Errorf("ping sqlite: %w", err)
	}
	if err := os.Chmod(path, 0o600); err != nil && !errors.Is(err, os.ErrNotExist) {
		db.Close() //nolint:errcheck
		return nil, fmt.Errorf("chmod db path: %w", err)
	}
	if err := ApplyMigrations(ctx, db); err != nil {
		db.Close() //nolint:errcheck
		return nil, err
	}
	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Finalize records a final result. A second result for the same test id
// replaces the first.
func (s *Store) Finalize(ctx context.Context, res session.Result) error {
	if res.TestID == "" {
		return fmt.Errorf("test_id is required")
	}
	if !res.Status.Terminal() {
		return fmt.Errorf("result %s has non-terminal status %q", res.TestID, res.Status)
	}
	var startedAt any
	if !res.StartedAt.IsZero() {
		startedAt = ts(res.StartedAt)
	}
	finishedAt := res.Timestamp
	if finishedAt.IsZero() {
		finishedAt = time.Now().UTC()
	}
	_, err := s.db.ExecContext(ctx, `
INSERT INTO results(test_id, subject, requester_id, target, units_sent, units_verified, success_rate, status, error, started_at, finished_at)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
ON CONFLICT(test_id) DO UPDATE SET
	subject=excluded.subject,
	requester_id=excluded.requester_id,
	target=excluded.target,
	units_sent=excluded.units_sent,
	units_verified=excluded.units_verified,
	success_rate=excluded.success_rate,
	status=excluded.status,
	error=excluded.error,
	started_at=excluded.started_at,
	finished_at=excluded.finished_at
`, res.TestID, res.Subject, res.RequesterID, res.Target, res.UnitsSent, res.UnitsVerified, res.SuccessRatePercent, string(res.Status), res.Error, startedAt, ts(finishedAt))
	if err != nil {
		return fmt.Errorf("insert result: %w", err)
	}
	return nil
}

const selectResult = `SELECT test_id, subject, requester_id, target, units_sent, units_verified, success_rate, status, error, started_at, finished_at FROM results`

func (s *Store) Get(ctx context.Context, testID string) (session.Result, error) {
	row := s.db.QueryRowContext(ctx, selectResult+` WHERE test_id = ?`, testID)
	res, err := scanResult(row)
	if errors.Is(err, sql.ErrNoRows) {
		return session.Result{}, ErrNotFound
	}
	if err != nil {
		return session.Result{}, fmt.Errorf("get result %s: %w", testID, err)
	}
	return res, nil
}

// Recent returns up to n results, newest first.
func (s *Store) Recent(ctx context.Context, n int) ([]session.Result, error) {
	if n <= 0 {
		return nil, nil
	}
	rows, err := s.db.QueryContext(ctx, selectResult+` ORDER BY finished_at DESC, test_id DESC LIMIT ?`, n)
	if err != nil {
		return nil, fmt.Errorf("list results: %w", err)
	}
	defer rows.Close()

	var out []session.Result
	for rows.Next() {
		res, err := scanResult(rows)
		if err != nil {
			return nil, fmt.Errorf("scan result: %w", err)
		}
		out = append(out, res)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list results: %w", err)
	}
	return out, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanResult(row scanner) (session.Result, error) {
	var (
		res        session.Result
		status     string
		startedAt  sql.NullString
		finishedAt string
	)
	if err := row.Scan(&res.TestID, &res.Subject, &res.RequesterID, &res.Target, &res.UnitsSent, &res.UnitsVerified,
		&res.SuccessRatePercent, &status, &res.Error, &startedAt, &finishedAt); err != nil {
		return session.Result{}, err
	}
	res.Status = session.Status(status)
	if startedAt.Valid {
		t, err := parseTS(startedAt.String)
		if err != nil {
			return session.Result{}, fmt.Errorf("parse started_at: %w", err)
		}
		res.StartedAt = t
	}
	t, err := parseTS(finishedAt)
	if err != nil {
		return session.Result{}, fmt.Errorf("parse finished_at: %w", err)
	}
	res.Timestamp = t
	return res, nil
}

// tsLayout keeps every stored timestamp the same width so that text order
// in ORDER BY matches time order.
const tsLayout = "2006-01-02T15:04:05.000000000Z07:00"

func ts(t time.Time) string {
	return t.UTC().Format(tsLayout)
}

// parseTS also accepts the trimmed RFC 3339 form, which time.Parse allows
// for any fractional width.
func parseTS(s string) (time.Time, error) {
	return time.Parse(time.RFC3339Nano, s)
}
