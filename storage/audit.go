package storage

import (
	"database/sql"
	"fmt"
	"time"

	_ "modernc.org/sqlite"
)

const auditCap = 200

// AuditLog is a rolling record of tool executions backed by SQLite.
// Only the newest entries are kept; the log answers "what did the
// agent just do", not long-term analytics.
type AuditLog struct {
	db *sql.DB
}

// AuditEntry is one recorded tool execution.
type AuditEntry struct {
	Timestamp time.Time
	Tool      string
	OK        bool
	Error     string
}

// OpenAuditLog opens (creating if needed) the audit database at path.
func OpenAuditLog(path string) (*AuditLog, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open audit log: %w", err)
	}

	_, err = db.Exec(`CREATE TABLE IF NOT EXISTS tool_log (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		ts TEXT NOT NULL,
		tool TEXT NOT NULL,
		ok INTEGER NOT NULL,
		error TEXT NOT NULL DEFAULT ''
	)`)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create tool_log table: %w", err)
	}

	return &AuditLog{db: db}, nil
}

// Record appends an entry and prunes the log to the newest entries.
func (a *AuditLog) Record(tool string, ok bool, errText string) error {
	_, err := a.db.Exec(
		`INSERT INTO tool_log (ts, tool, ok, error) VALUES (?, ?, ?, ?)`,
		time.Now().UTC().Format(time.RFC3339), tool, boolToInt(ok), errText,
	)
	if err != nil {
		return fmt.Errorf("failed to record tool call: %w", err)
	}

	_, err = a.db.Exec(
		`DELETE FROM tool_log WHERE id NOT IN (
			SELECT id FROM tool_log ORDER BY id DESC LIMIT ?
		)`, auditCap,
	)
	if err != nil {
		return fmt.Errorf("failed to prune tool log: %w", err)
	}
	return nil
}

// Recent returns the newest n entries, newest first.
func (a *AuditLog) Recent(n int) ([]AuditEntry, error) {
	if n <= 0 {
		n = auditCap
	}
	rows, err := a.db.Query(
		`SELECT ts, tool, ok, error FROM tool_log ORDER BY id DESC LIMIT ?`, n,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query tool log: %w", err)
	}
	defer rows.Close()

	var entries []AuditEntry
	for rows.Next() {
		var ts string
		var entry AuditEntry
		var ok int
		if err := rows.Scan(&ts, &entry.Tool, &ok, &entry.Error); err != nil {
			return nil, err
		}
		entry.OK = ok != 0
		if parsed, err := time.Parse(time.RFC3339, ts); err == nil {
			entry.Timestamp = parsed
		}
		entries = append(entries, entry)
	}
	return entries, rows.Err()
}

// Close releases the database handle.
func (a *AuditLog) Close() error {
	return a.db.Close()
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
