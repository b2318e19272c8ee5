package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"github.com/hazz-dev/devprobe/internal/checker"
)

// InMemory opens a private database that disappears on Close.
const InMemory = ":memory:"

// timeLayout is fixed-width so checked_at sorts lexically.
const timeLayout = "2006-01-02T15:04:05.000000000Z"

const schema = `
CREATE TABLE IF NOT EXISTS checks (
    id          INTEGER PRIMARY KEY AUTOINCREMENT,
    service     TEXT    NOT NULL,
    kind        TEXT    NOT NULL,
    target      TEXT    NOT NULL,
    status      TEXT    NOT NULL CHECK(status IN ('up', 'down', 'error')),
    status_code INTEGER NOT NULL DEFAULT 0,
    latency_ms  REAL,
    detail      TEXT    NOT NULL DEFAULT '',
    checked_at  TEXT    NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_checks_checked_at ON checks(checked_at DESC);
CREATE INDEX IF NOT EXISTS idx_checks_service_checked ON checks(service, checked_at DESC);
`

const checkColumns = `id, service, kind, target, status, status_code, latency_ms, detail, checked_at`

// Check is a stored check result.
type Check struct {
	ID         int64     `json:"id"`
	Service    string    `json:"service"`
	Kind       string    `json:"kind"`
	Target     string    `json:"target"`
	Status     string    `json:"status"`
	StatusCode int       `json:"status_code,omitempty"`
	LatencyMs  *float64  `json:"latency_ms,omitempty"`
	Detail     string    `json:"detail,omitempty"`
	CheckedAt  time.Time `json:"checked_at"`
}

// DB wraps a SQLite database.
type DB struct {
	db *sql.DB
}

// Open opens (or creates) the SQLite database at path and applies the schema.
func Open(path string) (*DB, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening sqlite at %q: %w", path, err)
	}
	// Every connection to :memory: is a separate database.
	db.SetMaxOpenConns(1)

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA cache_size=5000",
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			db.Close()
			return nil, fmt.Errorf("applying pragma %q: %w", p, err)
		}
	}

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("applying schema: %w", err)
	}

	return &DB{db: db}, nil
}

// Close closes the underlying database connection.
func (d *DB) Close() error {
	return d.db.Close()
}

const insertCheck = `INSERT INTO checks (service, kind, target, status, status_code, latency_ms, detail, checked_at) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`

func insertArgs(r checker.CheckResult) []any {
	var latency any
	if ms, ok := r.LatencyMillis(); ok {
		latency = ms
	}
	return []any{
		r.ServiceName,
		string(r.Kind),
		r.Target,
		string(r.Status),
		r.StatusCode,
		latency,
		r.Detail,
		r.CheckedAt.UTC().Format(timeLayout),
	}
}

// InsertCheck records a check result.
func (d *DB) InsertCheck(ctx context.Context, r checker.CheckResult) error {
	if _, err := d.db.ExecContext(ctx, insertCheck, insertArgs(r)...); err != nil {
		return fmt.Errorf("inserting check for %q: %w", r.ServiceName, err)
	}
	return nil
}

// InsertResults records a batch in one transaction.
func (d *DB) InsertResults(ctx context.Context, results []checker.CheckResult) error {
	tx, err := d.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning insert: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, insertCheck)
	if err != nil {
		return fmt.Errorf("preparing insert: %w", err)
	}
	defer stmt.Close()

	for _, r := range results {
		if _, err := stmt.ExecContext(ctx, insertArgs(r)...); err != nil {
			return fmt.Errorf("inserting check for %q: %w", r.ServiceName, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing insert: %w", err)
	}
	return nil
}

// LatestCheck returns the most recent check for the given service, or nil if none.
func (d *DB) LatestCheck(ctx context.Context, service string) (*Check, error) {
	row := d.db.QueryRowContext(ctx,
		`SELECT `+checkColumns+` FROM checks WHERE service = ? ORDER BY checked_at DESC, id DESC LIMIT 1`,
		service,
	)
	c, err := scanCheck(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("querying latest check for %q: %w", service, err)
	}
	return c, nil
}

// History returns up to limit checks for a service, newest first.
func (d *DB) History(ctx context.Context, service string, limit int) ([]Check, error) {
	rows, err := d.db.QueryContext(ctx,
		`SELECT `+checkColumns+` FROM checks WHERE service = ? ORDER BY checked_at DESC, id DESC LIMIT ?`,
		service, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("querying history for %q: %w", service, err)
	}
	defer rows.Close()
	return scanChecks(rows)
}

// AllLatest returns the most recent check for each service.
func (d *DB) AllLatest(ctx context.Context) ([]Check, error) {
	rows, err := d.db.QueryContext(ctx, `
		SELECT `+checkColumns+`
		FROM checks
		WHERE id IN (
			SELECT MAX(id) FROM checks GROUP BY service
		)
		ORDER BY service
	`)
	if err != nil {
		return nil, fmt.Errorf("querying all latest: %w", err)
	}
	defer rows.Close()
	return scanChecks(rows)
}

// UptimePercent returns the percentage of "up" checks among the last N
// checks for a service recorded at or after since.
func (d *DB) UptimePercent(ctx context.Context, service string, since time.Time, last int) (float64, error) {
	var total int
	var upCount sql.NullInt64
	err := d.db.QueryRowContext(ctx, `
		SELECT COUNT(*), SUM(CASE WHEN status = 'up' THEN 1 ELSE 0 END)
		FROM (
			SELECT status FROM checks
			WHERE service = ? AND checked_at >= ?
			ORDER BY checked_at DESC, id DESC LIMIT ?
		)
	`, service, since.UTC().Format(timeLayout), last).Scan(&total, &upCount)
	if err != nil {
		return 0, fmt.Errorf("calculating uptime for %q: %w", service, err)
	}
	if total == 0 {
		return 0, nil
	}
	return float64(upCount.Int64) / float64(total) * 100, nil
}

// Prune deletes checks older than before and, when keep is positive,
// all but the newest keep checks of each service.
func (d *DB) Prune(ctx context.Context, before time.Time, keep int) (int64, error) {
	res, err := d.db.ExecContext(ctx,
		`DELETE FROM checks WHERE checked_at < ?`, before.UTC().Format(timeLayout))
	if err != nil {
		return 0, fmt.Errorf("pruning expired checks: %w", err)
	}
	removed, _ := res.RowsAffected()

	if keep > 0 {
		res, err = d.db.ExecContext(ctx, `
			DELETE FROM checks WHERE id IN (
				SELECT id FROM (
					SELECT id, ROW_NUMBER() OVER (PARTITION BY service ORDER BY checked_at DESC, id DESC) AS rn
					FROM checks
				) WHERE rn > ?
			)
		`, keep)
		if err != nil {
			return removed, fmt.Errorf("pruning excess checks: %w", err)
		}
		n, _ := res.RowsAffected()
		removed += n
	}
	return removed, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanCheck(row scanner) (*Check, error) {
	var c Check
	var latency sql.NullFloat64
	var checkedAt string
	err := row.Scan(&c.ID, &c.Service, &c.Kind, &c.Target, &c.Status, &c.StatusCode, &latency, &c.Detail, &checkedAt)
	if err != nil {
		return nil, err
	}
	if latency.Valid {
		ms := latency.Float64
		c.LatencyMs = &ms
	}
	t, err := time.Parse(timeLayout, checkedAt)
	if err != nil {
		return nil, fmt.Errorf("parsing checked_at %q: %w", checkedAt, err)
	}
	c.CheckedAt = t
	return &c, nil
}

func scanChecks(rows *sql.Rows) ([]Check, error) {
	checks := []Check{}
	for rows.Next() {
		c, err := scanCheck(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning check row: %w", err)
		}
		checks = append(checks, *c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating check rows: %w", err)
	}
	return checks, nil
}
