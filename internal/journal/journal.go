// Package journal provides a local SQLite journal of report outcomes,
// so delivery history survives server restarts and failed traces can be
// audited without Langfuse access.
package journal

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	_ "modernc.org/sqlite"
)

// Delivery outcomes recorded per report.
const (
	StatusDelivered = "delivered"
	StatusFailed    = "failed"
)

const defaultRecentLimit = 50

const schema = `
CREATE TABLE IF NOT EXISTS reports (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	trace_id TEXT NOT NULL DEFAULT '',
	user_id TEXT NOT NULL DEFAULT '',
	session_id TEXT NOT NULL DEFAULT '',
	project TEXT NOT NULL DEFAULT '',
	model TEXT NOT NULL DEFAULT '',
	input_tokens INTEGER NOT NULL DEFAULT 0,
	output_tokens INTEGER NOT NULL DEFAULT 0,
	duration_ms INTEGER NOT NULL DEFAULT 0,
	tool_count INTEGER NOT NULL DEFAULT 0,
	status TEXT NOT NULL DEFAULT '',
	error TEXT NOT NULL DEFAULT '',
	created_at TEXT NOT NULL,
	created_at_epoch INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_reports_created_at_epoch ON reports(created_at_epoch);
CREATE INDEX IF NOT EXISTS idx_reports_user_id ON reports(user_id);
`

// Entry is one journaled report outcome.
type Entry struct {
	ID           int64
	TraceID      string
	UserID       string
	SessionID    string
	Project      string
	Model        string
	InputTokens  int64
	OutputTokens int64
	DurationMS   int64
	ToolCount    int
	Status       string
	Error        string
	CreatedAt    time.Time
}

// Config configures the journal store.
type Config struct {
	Path string
}

// Journal is a report journal backed by a single SQLite file.
type Journal struct {
	db *sql.DB

	mu    sync.RWMutex
	stmts map[string]*sql.Stmt
}

// New opens (creating if needed) the journal at cfg.Path.
func New(cfg Config) (*Journal, error) {
	if err := os.MkdirAll(filepath.Dir(cfg.Path), 0o750); err != nil {
		return nil, fmt.Errorf("create journal dir: %w", err)
	}

	dsn := cfg.Path + "?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open journal: %w", err)
	}
	// modernc sqlite allows one writer; a single connection avoids
	// SQLITE_BUSY between the handlers.
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping journal: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("init journal schema: %w", err)
	}

	return &Journal{db: db, stmts: make(map[string]*sql.Stmt)}, nil
}

// Record appends one report outcome. A zero CreatedAt is stamped with
// the current time.
func (j *Journal) Record(ctx context.Context, e Entry) error {
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now()
	}

	const query = `
		INSERT INTO reports
		(trace_id, user_id, session_id, project, model, input_tokens, output_tokens,
		 duration_ms, tool_count, status, error, created_at, created_at_epoch)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`
	stmt, err := j.getStmt(query)
	if err != nil {
		return err
	}
	_, err = stmt.ExecContext(ctx,
		e.TraceID, e.UserID, e.SessionID, e.Project, e.Model,
		e.InputTokens, e.OutputTokens, e.DurationMS, e.ToolCount,
		e.Status, e.Error,
		e.CreatedAt.Format(time.RFC3339), e.CreatedAt.UnixMilli(),
	)
	return err
}

// Recent returns the newest entries, newest first. A non-positive limit
// uses the default of 50.
func (j *Journal) Recent(ctx context.Context, limit int) ([]Entry, error) {
	if limit <= 0 {
		limit = defaultRecentLimit
	}

	const query = `
		SELECT id, trace_id, user_id, session_id, project, model,
		       input_tokens, output_tokens, duration_ms, tool_count,
		       status, error, created_at
		FROM reports
		ORDER BY created_at_epoch DESC, id DESC
		LIMIT ?
	`
	stmt, err := j.getStmt(query)
	if err != nil {
		return nil, err
	}
	rows, err := stmt.QueryContext(ctx, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var e Entry
		var createdAt string
		if err := rows.Scan(
			&e.ID, &e.TraceID, &e.UserID, &e.SessionID, &e.Project, &e.Model,
			&e.InputTokens, &e.OutputTokens, &e.DurationMS, &e.ToolCount,
			&e.Status, &e.Error, &createdAt,
		); err != nil {
			return nil, err
		}
		e.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// CountByStatus returns entry counts grouped by delivery status.
func (j *Journal) CountByStatus(ctx context.Context) (map[string]int64, error) {
	const query = `SELECT status, COUNT(*) FROM reports GROUP BY status`

	stmt, err := j.getStmt(query)
	if err != nil {
		return nil, err
	}
	rows, err := stmt.QueryContext(ctx)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	counts := make(map[string]int64)
	for rows.Next() {
		var status string
		var count int64
		if err := rows.Scan(&status, &count); err != nil {
			return nil, err
		}
		counts[status] = count
	}
	return counts, rows.Err()
}

// Ping checks the underlying connection.
func (j *Journal) Ping() error {
	return j.db.Ping()
}

// Close releases cached statements and the database handle.
func (j *Journal) Close() error {
	j.mu.Lock()
	for _, stmt := range j.stmts {
		_ = stmt.Close()
	}
	j.stmts = make(map[string]*sql.Stmt)
	j.mu.Unlock()

	return j.db.Close()
}

// getStmt returns a cached prepared statement for query, preparing it
// on first use.
func (j *Journal) getStmt(query string) (*sql.Stmt, error) {
	j.mu.RLock()
	stmt, ok := j.stmts[query]
	j.mu.RUnlock()
	if ok {
		return stmt, nil
	}

	j.mu.Lock()
	defer j.mu.Unlock()
	if stmt, ok := j.stmts[query]; ok {
		return stmt, nil
	}

	stmt, err := j.db.Prepare(query)
	if err != nil {
		return nil, err
	}
	j.stmts[query] = stmt
	return stmt, nil
}
