// Package store keeps a sqlite ledger of extraction jobs.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

// Job statuses.
const (
	StatusRunning   = "running"
	StatusCompleted = "completed"
	StatusFailed    = "failed"
)

// ErrNotFound is returned for an unknown job ID.
var ErrNotFound = errors.New("job not found")

// Job is one ledger row.
type Job struct {
	ID         string     `json:"id"`
	Output     string     `json:"output"`
	Input      string     `json:"input"`
	Collection string     `json:"collection"`
	MaxObjects int        `json:"max_objects"`
	Status     string     `json:"status"`
	Events     int        `json:"events"`
	Rows       int        `json:"rows"`
	Error      string     `json:"error,omitempty"`
	StartedAt  time.Time  `json:"started_at"`
	FinishedAt *time.Time `json:"finished_at,omitempty"`
}

// Ledger records job starts and completions.
type Ledger struct {
	db *sql.DB
}

const schema = `
CREATE TABLE IF NOT EXISTS jobs (
	id          TEXT PRIMARY KEY,
	output      TEXT NOT NULL,
	input       TEXT NOT NULL,
	collection  TEXT NOT NULL,
	max_objects INTEGER NOT NULL,
	status      TEXT NOT NULL,
	event_count INTEGER NOT NULL DEFAULT 0,
	row_count   INTEGER NOT NULL DEFAULT 0,
	error       TEXT NOT NULL DEFAULT '',
	started_at  DATETIME NOT NULL,
	finished_at DATETIME
);
`

// Open opens (creating if needed) the ledger database at path.
func Open(path string) (*Ledger, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("open ledger %s: %w", path, err)
	}
	db.SetMaxOpenConns(1)
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("init ledger %s: %w", path, err)
	}
	return &Ledger{db: db}, nil
}

// Close releases the database.
func (l *Ledger) Close() error { return l.db.Close() }

// StartJob inserts j with status running.
func (l *Ledger) StartJob(ctx context.Context, j Job) error {
	if j.StartedAt.IsZero() {
		j.StartedAt = time.Now().UTC()
	}
	_, err := l.db.ExecContext(ctx,
		`INSERT INTO jobs (id, output, input, collection, max_objects, status, started_at) VALUES (?, ?, ?, ?, ?, ?, ?)`,
		j.ID, j.Output, j.Input, j.Collection, j.MaxObjects, StatusRunning, j.StartedAt)
	if err != nil {
		return fmt.Errorf("start job %s: %w", j.ID, err)
	}
	return nil
}

// FinishJob records the final counters. A non-nil jobErr marks the job failed.
func (l *Ledger) FinishJob(ctx context.Context, id string, events, rows int, jobErr error) error {
	status, msg := StatusCompleted, ""
	if jobErr != nil {
		status, msg = StatusFailed, jobErr.Error()
	}
	res, err := l.db.ExecContext(ctx,
		`UPDATE jobs SET status = ?, event_count = ?, row_count = ?, error = ?, finished_at = ? WHERE id = ?`,
		status, events, rows, msg, time.Now().UTC(), id)
	if err != nil {
		return fmt.Errorf("finish job %s: %w", id, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("finish job %s: %w", id, ErrNotFound)
	}
	return nil
}

// GetJob fetches one job.
func (l *Ledger) GetJob(ctx context.Context, id string) (*Job, error) {
	row := l.db.QueryRowContext(ctx,
		`SELECT id, output, input, collection, max_objects, status, event_count, row_count, error, started_at, finished_at FROM jobs WHERE id = ?`, id)
	j, err := scanJob(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	return j, err
}

// ListJobs returns jobs, newest first.
func (l *Ledger) ListJobs(ctx context.Context, limit int) ([]*Job, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := l.db.QueryContext(ctx,
		`SELECT id, output, input, collection, max_objects, status, event_count, row_count, error, started_at, finished_at FROM jobs ORDER BY started_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var jobs []*Job
	for rows.Next() {
		j, err := scanJob(rows)
		if err != nil {
			return nil, err
		}
		jobs = append(jobs, j)
	}
	return jobs, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanJob(s scanner) (*Job, error) {
	var j Job
	var finished sql.NullTime
	if err := s.Scan(&j.ID, &j.Output, &j.Input, &j.Collection, &j.MaxObjects, &j.Status,
		&j.Events, &j.Rows, &j.Error, &j.StartedAt, &finished); err != nil {
		return nil, err
	}
	if finished.Valid {
		t := finished.Time
		j.FinishedAt = &t
	}
	return &j, nil
}
