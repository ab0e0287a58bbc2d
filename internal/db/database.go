package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

const timeLayout = time.RFC3339

// ErrNotFound is returned when no snapshot exists for a date.
var ErrNotFound = errors.New("snapshot not found")

// Snapshot is one stored gear report.
type Snapshot struct {
	ID        string
	Date      string
	FetchedAt time.Time
	Meetings  int
	Runners   int
	Payload   []byte
}

// SQLiteDatabase stores gear snapshots in SQLite
type SQLiteDatabase struct {
	db *sql.DB
}

// NewDatabase creates a new SQLite database connection
func NewDatabase(path string) (*SQLiteDatabase, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := createSchema(db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to create schema: %w", err)
	}

	return &SQLiteDatabase{db: db}, nil
}

// Close closes the database connection
func (d *SQLiteDatabase) Close() error {
	return d.db.Close()
}

// createSchema creates the database schema
func createSchema(db *sql.DB) error {
	schema := `
	CREATE TABLE IF NOT EXISTS gear_snapshots (
		id TEXT PRIMARY KEY,
		date TEXT NOT NULL,
		fetched_at TEXT NOT NULL,
		meetings INTEGER NOT NULL DEFAULT 0,
		runners INTEGER NOT NULL DEFAULT 0,
		payload BLOB NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_gear_snapshots_date ON gear_snapshots(date);
	CREATE INDEX IF NOT EXISTS idx_gear_snapshots_fetched_at ON gear_snapshots(fetched_at);
	`

	if _, err := db.Exec(schema); err != nil {
		return fmt.Errorf("failed to create schema: %w", err)
	}

	return nil
}

const selectColumns = "SELECT id, date, fetched_at, meetings, runners, payload FROM gear_snapshots"

// Insert stores a new snapshot row
func (d *SQLiteDatabase) Insert(ctx context.Context, s Snapshot) error {
	_, err := d.db.ExecContext(ctx,
		"INSERT INTO gear_snapshots (id, date, fetched_at, meetings, runners, payload) VALUES (?, ?, ?, ?, ?, ?)",
		s.ID, s.Date, s.FetchedAt.UTC().Format(timeLayout), s.Meetings, s.Runners, s.Payload,
	)
	if err != nil {
		return fmt.Errorf("failed to insert snapshot %s: %w", s.ID, err)
	}
	return nil
}

// Touch updates the fetch time of an existing snapshot
func (d *SQLiteDatabase) Touch(ctx context.Context, id string, fetchedAt time.Time) error {
	_, err := d.db.ExecContext(ctx, "UPDATE gear_snapshots SET fetched_at = ? WHERE id = ?",
		fetchedAt.UTC().Format(timeLayout), id)
	if err != nil {
		return fmt.Errorf("failed to update snapshot %s: %w", id, err)
	}
	return nil
}

// Latest returns the most recently fetched snapshot for a date
func (d *SQLiteDatabase) Latest(ctx context.Context, date string) (*Snapshot, error) {
	rows, err := d.db.QueryContext(ctx, selectColumns+" WHERE date = ? ORDER BY fetched_at DESC LIMIT 1", date)
	if err != nil {
		return nil, fmt.Errorf("failed to get latest snapshot: %w", err)
	}
	defer rows.Close()

	snapshots, err := scanSnapshots(rows)
	if err != nil {
		return nil, err
	}
	if len(snapshots) == 0 {
		return nil, ErrNotFound
	}
	return &snapshots[0], nil
}

// GetAll returns every snapshot, newest first
func (d *SQLiteDatabase) GetAll(ctx context.Context) ([]Snapshot, error) {
	return d.GetAllPaginated(ctx, 0, 0)
}

// GetAllPaginated returns a page of snapshots, newest first. A pageSize of 0
// disables pagination.
func (d *SQLiteDatabase) GetAllPaginated(ctx context.Context, page, pageSize int) ([]Snapshot, error) {
	query := selectColumns + " ORDER BY fetched_at DESC"
	var args []any
	if pageSize > 0 {
		if page < 1 {
			page = 1
		}
		query += " LIMIT ? OFFSET ?"
		args = append(args, pageSize, (page-1)*pageSize)
	}
	rows, err := d.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to get snapshots: %w", err)
	}
	defer rows.Close()

	return scanSnapshots(rows)
}

// GetByDate returns every snapshot for a date, newest first
func (d *SQLiteDatabase) GetByDate(ctx context.Context, date string) ([]Snapshot, error) {
	rows, err := d.db.QueryContext(ctx, selectColumns+" WHERE date = ? ORDER BY fetched_at DESC", date)
	if err != nil {
		return nil, fmt.Errorf("failed to get snapshots for %s: %w", date, err)
	}
	defer rows.Close()

	return scanSnapshots(rows)
}

// scanSnapshots converts database rows to Snapshot values
func scanSnapshots(rows *sql.Rows) ([]Snapshot, error) {
	var snapshots []Snapshot

	for rows.Next() {
		var s Snapshot
		var fetchedAt string

		if err := rows.Scan(&s.ID, &s.Date, &fetchedAt, &s.Meetings, &s.Runners, &s.Payload); err != nil {
			return nil, fmt.Errorf("failed to scan snapshot: %w", err)
		}

		parsed, err := time.Parse(timeLayout, fetchedAt)
		if err != nil {
			return nil, fmt.Errorf("failed to parse fetched_at of snapshot %s: %w", s.ID, err)
		}
		s.FetchedAt = parsed
		snapshots = append(snapshots, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate snapshots: %w", err)
	}

	return snapshots, nil
}
