// Package sqlite provides the SQLite-backed boost cycle journal.
// Uses WAL mode for concurrent reads and crash-safe writes.
package sqlite

import (
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite" // Pure-Go SQLite driver (no CGO required)

	"github.com/tutu-network/wakeboost/internal/domain"
)

// FileName is the journal database file inside the data directory.
const FileName = "journal.db"

// ErrCycleNotFound is returned by EndCycle for an unknown cycle ID.
var ErrCycleNotFound = errors.New("boost cycle not found")

// DB wraps a SQLite connection with WAL mode and migrations. It implements
// domain.CycleJournal.
type DB struct {
	db *sql.DB
}

// Open creates or opens the SQLite database at dir/journal.db.
// Enables WAL mode and a 5-second busy timeout.
func Open(dir string) (*DB, error) {
	if err := os.MkdirAll(dir, 0700); err != nil {
		return nil, fmt.Errorf("create data dir: %w", err)
	}

	dbPath := filepath.Join(dir, FileName)
	dsn := dbPath + "?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)"

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping sqlite: %w", err)
	}

	// SQLite is single-writer
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	d := &DB{db: db}
	if err := d.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}

	return d, nil
}

// Close cleanly shuts down the database.
func (d *DB) Close() error {
	return d.db.Close()
}

// Ping checks database connectivity.
func (d *DB) Ping() error {
	return d.db.Ping()
}

// migrate runs idempotent schema migrations.
func (d *DB) migrate() error {
	migrations := []string{
		`CREATE TABLE IF NOT EXISTS cycles (
			id          TEXT PRIMARY KEY,
			origin      TEXT NOT NULL,
			duration_ms INTEGER NOT NULL,
			started_at  INTEGER NOT NULL,
			ended_at    INTEGER,
			outcome     TEXT NOT NULL DEFAULT ''
		)`,
		`CREATE INDEX IF NOT EXISTS idx_cycles_started ON cycles(started_at)`,
	}

	for _, m := range migrations {
		if _, err := d.db.Exec(m); err != nil {
			return fmt.Errorf("exec migration: %w", err)
		}
	}
	return nil
}

// ─── Cycles ─────────────────────────────────────────────────────────────────

// StartCycle records an open boost cycle.
func (d *DB) StartCycle(c domain.BoostCycle) error {
	_, err := d.db.Exec(
		`INSERT INTO cycles (id, origin, duration_ms, started_at) VALUES (?, ?, ?, ?)`,
		c.ID, string(c.Trigger), c.DurationMS, c.StartedAt.UnixMilli(),
	)
	return err
}

// EndCycle closes a cycle with the reason it ended.
func (d *DB) EndCycle(id string, outcome domain.CycleOutcome) error {
	result, err := d.db.Exec(
		`UPDATE cycles SET ended_at = ?, outcome = ? WHERE id = ?`,
		time.Now().UnixMilli(), string(outcome), id,
	)
	if err != nil {
		return err
	}
	n, _ := result.RowsAffected()
	if n == 0 {
		return fmt.Errorf("%w: %s", ErrCycleNotFound, id)
	}
	return nil
}

// GetCycle retrieves a single cycle. Returns nil, nil if it does not exist.
func (d *DB) GetCycle(id string) (*domain.BoostCycle, error) {
	row := d.db.QueryRow(
		`SELECT id, origin, duration_ms, started_at, ended_at, outcome
		 FROM cycles WHERE id = ?`, id,
	)
	return scanCycle(row)
}

// Recent returns up to limit cycles, newest first.
func (d *DB) Recent(limit int) ([]domain.BoostCycle, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := d.db.Query(
		`SELECT id, origin, duration_ms, started_at, ended_at, outcome
		 FROM cycles ORDER BY started_at DESC, rowid DESC LIMIT ?`, limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var cycles []domain.BoostCycle
	for rows.Next() {
		c, err := scanCycle(rows)
		if err != nil {
			return nil, err
		}
		cycles = append(cycles, *c)
	}
	return cycles, rows.Err()
}

// Count returns the number of recorded cycles.
func (d *DB) Count() (int, error) {
	var n int
	err := d.db.QueryRow(`SELECT COUNT(*) FROM cycles`).Scan(&n)
	return n, err
}

// Prune keeps the newest retain cycles and deletes the rest. A retain of
// zero or less keeps everything.
func (d *DB) Prune(retain int) (int64, error) {
	if retain <= 0 {
		return 0, nil
	}
	result, err := d.db.Exec(
		`DELETE FROM cycles WHERE rowid NOT IN (
			SELECT rowid FROM cycles ORDER BY started_at DESC, rowid DESC LIMIT ?
		)`, retain,
	)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}

// ─── Helpers ────────────────────────────────────────────────────────────────

// scanner is satisfied by both *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...any) error
}

func scanCycle(s scanner) (*domain.BoostCycle, error) {
	var c domain.BoostCycle
	var trigger, outcome string
	var startedAt int64
	var endedAt sql.NullInt64

	err := s.Scan(&c.ID, &trigger, &c.DurationMS, &startedAt, &endedAt, &outcome)
	if err == sql.ErrNoRows {
		return nil, nil // Not found, no error
	}
	if err != nil {
		return nil, err
	}

	c.Trigger = domain.BoostTrigger(trigger)
	c.Outcome = domain.CycleOutcome(outcome)
	c.StartedAt = time.UnixMilli(startedAt)
	if endedAt.Valid {
		t := time.UnixMilli(endedAt.Int64)
		c.EndedAt = &t
	}
	return &c, nil
}
