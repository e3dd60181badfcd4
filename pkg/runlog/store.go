// Package runlog persists run history and the latest resume token per
// conversation thread in a local SQLite database. The bridge writes as runs
// start and finish; the CLI and dashboard read.
package runlog

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite" // SQLite driver

	"tanuki/pkg/event"
)

// schemaDDL defines the runlog schema. Tables: runs, tokens.
const schemaDDL = `
-- One row per engine invocation
CREATE TABLE IF NOT EXISTS runs (
    id INTEGER PRIMARY KEY,
    thread TEXT NOT NULL,
    engine TEXT NOT NULL,
    prompt TEXT NOT NULL,
    status TEXT NOT NULL DEFAULT 'running',
    answer TEXT,
    resume TEXT,
    truncated INTEGER NOT NULL DEFAULT 0,
    started_at TEXT NOT NULL DEFAULT (datetime('now')),
    finished_at TEXT
);

CREATE INDEX IF NOT EXISTS runs_thread_idx ON runs(thread, id DESC);

-- Latest continuation token per thread
CREATE TABLE IF NOT EXISTS tokens (
    thread TEXT PRIMARY KEY,
    engine TEXT NOT NULL,
    raw TEXT NOT NULL,
    updated_at TEXT NOT NULL DEFAULT (datetime('now'))
);
`

// Run statuses.
const (
	StatusRunning   = "running"
	StatusDone      = "done"
	StatusTruncated = "truncated"
	StatusFailed    = "failed"
)

// Run is one row of the runs table.
type Run struct {
	ID         int64
	Thread     event.ThreadID
	Engine     string
	Prompt     string
	Status     string
	Answer     string
	Resume     string
	Truncated  bool
	StartedAt  time.Time
	FinishedAt time.Time
}

// Store is the read-write handle to the runlog database.
type Store struct {
	db *sql.DB
}

// Open opens or creates the database at dbPath and applies the schema. WAL
// mode lets the dashboard read while the bridge writes.
func Open(dbPath string) (*Store, error) {
	if dir := filepath.Dir(dbPath); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create db dir: %w", err)
		}
	}
	db, err := sql.Open("sqlite", fmt.Sprintf("file:%s?_journal_mode=WAL", dbPath))
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if _, err := db.Exec(schemaDDL); err != nil {
		db.Close()
		return nil, fmt.Errorf("apply schema: %w", err)
	}
	return &Store{db: db}, nil
}

// Close releases the database connection. Safe to call multiple times.
func (s *Store) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// RecordStart inserts a running row and returns its id.
func (s *Store) RecordStart(ctx context.Context, thread event.ThreadID, engine, prompt string) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		"INSERT INTO runs (thread, engine, prompt) VALUES (?, ?, ?)",
		string(thread), engine, prompt)
	if err != nil {
		return 0, fmt.Errorf("record start: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("record start: %w", err)
	}
	return id, nil
}

// RecordFinish closes out a run row. A non-empty errText marks the run
// failed regardless of truncated.
func (s *Store) RecordFinish(ctx context.Context, id int64, answer string, resume *event.ResumeToken, truncated bool, errText string) error {
	status := StatusDone
	switch {
	case errText != "":
		status = StatusFailed
		answer = errText
	case truncated:
		status = StatusTruncated
	}
	raw := ""
	if resume != nil {
		raw = resume.Raw
	}
	_, err := s.db.ExecContext(ctx,
		"UPDATE runs SET status = ?, answer = ?, resume = ?, truncated = ?, finished_at = datetime('now') WHERE id = ?",
		status, answer, raw, boolInt(truncated), id)
	if err != nil {
		return fmt.Errorf("record finish: %w", err)
	}
	return nil
}

// SaveToken upserts the latest continuation token for a thread.
func (s *Store) SaveToken(ctx context.Context, token event.ResumeToken) error {
	thread := token.Thread
	if thread == "" {
		thread = event.General
	}
	_, err := s.db.ExecContext(ctx, `
INSERT INTO tokens (thread, engine, raw, updated_at) VALUES (?, ?, ?, datetime('now'))
ON CONFLICT(thread) DO UPDATE SET engine = excluded.engine, raw = excluded.raw, updated_at = excluded.updated_at`,
		string(thread), token.Engine, token.Raw)
	if err != nil {
		return fmt.Errorf("save token: %w", err)
	}
	return nil
}

// LastToken returns the latest continuation token recorded for a thread, or
// nil if the thread has never completed a run.
func (s *Store) LastToken(ctx context.Context, thread event.ThreadID) (*event.ResumeToken, error) {
	if thread == "" {
		thread = event.General
	}
	row := s.db.QueryRowContext(ctx,
		"SELECT engine, raw FROM tokens WHERE thread = ?", string(thread))
	var engine, raw string
	if err := row.Scan(&engine, &raw); err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("last token: %w", err)
	}
	return &event.ResumeToken{Engine: engine, Thread: thread, Raw: raw}, nil
}

// ClearToken forgets the stored continuation token for a thread, so the next
// run starts a fresh session.
func (s *Store) ClearToken(ctx context.Context, thread event.ThreadID) error {
	if thread == "" {
		thread = event.General
	}
	if _, err := s.db.ExecContext(ctx, "DELETE FROM tokens WHERE thread = ?", string(thread)); err != nil {
		return fmt.Errorf("clear token: %w", err)
	}
	return nil
}

// RecentRuns returns up to limit runs, newest first, optionally filtered to
// one thread.
func (s *Store) RecentRuns(ctx context.Context, thread event.ThreadID, limit int) ([]Run, error) {
	if limit <= 0 {
		limit = 20
	}
	query := "SELECT id, thread, engine, prompt, status, COALESCE(answer,''), COALESCE(resume,''), truncated, started_at, COALESCE(finished_at,'') FROM runs"
	var args []any
	if thread != "" {
		query += " WHERE thread = ?"
		args = append(args, string(thread))
	}
	query += fmt.Sprintf(" ORDER BY id DESC LIMIT %d", limit)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query runs: %w", err)
	}
	defer rows.Close()

	var runs []Run
	for rows.Next() {
		var r Run
		var thr, started, finished string
		var truncated int
		if err := rows.Scan(&r.ID, &thr, &r.Engine, &r.Prompt, &r.Status, &r.Answer, &r.Resume, &truncated, &started, &finished); err != nil {
			return nil, fmt.Errorf("scan run: %w", err)
		}
		r.Thread = event.ThreadID(thr)
		r.Truncated = truncated != 0
		r.StartedAt = parseSQLiteTime(started)
		r.FinishedAt = parseSQLiteTime(finished)
		runs = append(runs, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate runs: %w", err)
	}
	return runs, nil
}

// ActiveRuns returns runs still marked running, oldest first.
func (s *Store) ActiveRuns(ctx context.Context) ([]Run, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT id, thread, engine, prompt, started_at FROM runs WHERE status = ? ORDER BY id ASC", StatusRunning)
	if err != nil {
		return nil, fmt.Errorf("query active runs: %w", err)
	}
	defer rows.Close()

	var runs []Run
	for rows.Next() {
		var r Run
		var thr, started string
		if err := rows.Scan(&r.ID, &thr, &r.Engine, &r.Prompt, &started); err != nil {
			return nil, fmt.Errorf("scan run: %w", err)
		}
		r.Thread = event.ThreadID(thr)
		r.Status = StatusRunning
		r.StartedAt = parseSQLiteTime(started)
		runs = append(runs, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate active runs: %w", err)
	}
	return runs, nil
}

// parseSQLiteTime parses the datetime('now') format, falling back to RFC3339.
func parseSQLiteTime(s string) time.Time {
	if s == "" {
		return time.Time{}
	}
	if t, err := time.Parse("2006-01-02 15:04:05", s); err == nil {
		return t
	}
	t, _ := time.Parse(time.RFC3339, s)
	return t
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

// DefaultDBPath returns the default runlog database location.
func DefaultDBPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "tanuki.db"
	}
	return filepath.Join(home, ".tanuki", "runlog.db")
}
