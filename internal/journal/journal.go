// Package journal records dispatch outcomes and per-session tool-call
// counts in a local SQLite database. It exists for the status command
// and the advisory counter; the stores never depend on it.
package journal

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"
)

const schema = `
CREATE TABLE IF NOT EXISTS dispatches (
	id TEXT PRIMARY KEY,
	session_id TEXT NOT NULL DEFAULT '',
	event_type TEXT NOT NULL,
	outcome TEXT NOT NULL,
	detail TEXT NOT NULL DEFAULT '',
	duration_ms INTEGER NOT NULL DEFAULT 0,
	created_at TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_dispatches_created ON dispatches(created_at);

CREATE TABLE IF NOT EXISTS tool_counts (
	session_id TEXT PRIMARY KEY,
	count INTEGER NOT NULL DEFAULT 0,
	updated_at TEXT NOT NULL
);
`

// Dispatch is one journal row describing a handled trigger event.
type Dispatch struct {
	ID        string
	SessionID string
	EventType string
	Outcome   string
	Detail    string
	Duration  time.Duration
	CreatedAt time.Time
}

// Journal wraps the SQLite database.
type Journal struct {
	db *sql.DB
}

// Open initializes the database at path, creating the directory and
// schema as needed.
func Open(path string) (*Journal, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("failed to create journal directory: %w", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open journal: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize journal schema: %w", err)
	}
	return &Journal{db: db}, nil
}

// Close releases the database handle.
func (j *Journal) Close() error {
	return j.db.Close()
}

// RecordDispatch appends one dispatch row.
func (j *Journal) RecordDispatch(d Dispatch) error {
	if d.CreatedAt.IsZero() {
		d.CreatedAt = time.Now()
	}
	_, err := j.db.Exec(
		`INSERT INTO dispatches (id, session_id, event_type, outcome, detail, duration_ms, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		d.ID, d.SessionID, d.EventType, d.Outcome, d.Detail,
		d.Duration.Milliseconds(), d.CreatedAt.UTC().Format(time.RFC3339),
	)
	if err != nil {
		return fmt.Errorf("failed to record dispatch: %w", err)
	}
	return nil
}

// RecentDispatches returns up to limit rows, newest first.
func (j *Journal) RecentDispatches(limit int) ([]Dispatch, error) {
	rows, err := j.db.Query(
		`SELECT id, session_id, event_type, outcome, detail, duration_ms, created_at
		 FROM dispatches ORDER BY created_at DESC, rowid DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query dispatches: %w", err)
	}
	defer rows.Close()

	var out []Dispatch
	for rows.Next() {
		var d Dispatch
		var durationMs int64
		var createdAt string
		if err := rows.Scan(&d.ID, &d.SessionID, &d.EventType, &d.Outcome,
			&d.Detail, &durationMs, &createdAt); err != nil {
			return nil, fmt.Errorf("failed to scan dispatch row: %w", err)
		}
		d.Duration = time.Duration(durationMs) * time.Millisecond
		if ts, err := time.Parse(time.RFC3339, createdAt); err == nil {
			d.CreatedAt = ts
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

// IncrementToolCount bumps the session's tool-call counter and returns
// the new value.
func (j *Journal) IncrementToolCount(sessionID string) (int, error) {
	now := time.Now().UTC().Format(time.RFC3339)
	_, err := j.db.Exec(
		`INSERT INTO tool_counts (session_id, count, updated_at) VALUES (?, 1, ?)
		 ON CONFLICT(session_id) DO UPDATE SET count = count + 1, updated_at = excluded.updated_at`,
		sessionID, now)
	if err != nil {
		return 0, fmt.Errorf("failed to increment tool count: %w", err)
	}
	return j.ToolCount(sessionID)
}

// ToolCount reads the session's counter; an unknown session is zero.
func (j *Journal) ToolCount(sessionID string) (int, error) {
	var count int
	err := j.db.QueryRow(
		`SELECT count FROM tool_counts WHERE session_id = ?`, sessionID).Scan(&count)
	if err == sql.ErrNoRows {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("failed to read tool count: %w", err)
	}
	return count, nil
}

// ResetToolCount zeroes the session's counter after a save captures
// the work it was measuring.
func (j *Journal) ResetToolCount(sessionID string) error {
	_, err := j.db.Exec(
		`UPDATE tool_counts SET count = 0, updated_at = ? WHERE session_id = ?`,
		time.Now().UTC().Format(time.RFC3339), sessionID)
	if err != nil {
		return fmt.Errorf("failed to reset tool count: %w", err)
	}
	return nil
}
