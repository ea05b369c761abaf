// Package audit records settled confirmations in a SQLite-backed journal.
// The journal is observability only: the coordinator never reads it, and
// decisions are not reused across restarts.
package audit

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/toolgate/toolgate/internal/confirm"

	_ "modernc.org/sqlite" // SQLite driver registration
)

const defaultBusyTimeout = 5000 // milliseconds

const schema = `
CREATE TABLE IF NOT EXISTS decisions (
	id           INTEGER PRIMARY KEY AUTOINCREMENT,
	server_id    TEXT NOT NULL,
	tool_ids     TEXT NOT NULL,
	tool_count   INTEGER NOT NULL,
	result       TEXT NOT NULL,
	requested_at TIMESTAMP NOT NULL,
	settled_at   TIMESTAMP NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_decisions_server ON decisions(server_id);
CREATE INDEX IF NOT EXISTS idx_decisions_settled ON decisions(settled_at);
`

// Decision is one journal row.
type Decision struct {
	ID          int64          `json:"id"`
	ServerID    string         `json:"server_id"`
	ToolIDs     []string       `json:"tool_ids"`
	Result      confirm.Result `json:"result"`
	RequestedAt time.Time      `json:"requested_at"`
	SettledAt   time.Time      `json:"settled_at"`
}

// Journal writes one row per settled confirmation. It implements
// confirm.Observer.
type Journal struct {
	mu     sync.Mutex
	db     *sql.DB
	logger *slog.Logger
	now    func() time.Time
}

// Open opens (or creates) the journal database at path. The database uses
// WAL mode, a busy timeout, and a single connection (SQLite serialises
// writes). The schema is migrated automatically.
func Open(path string, logger *slog.Logger) (*Journal, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o700); err != nil {
			return nil, fmt.Errorf("audit: create directory %s: %w", dir, err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("audit: open %s: %w", path, err)
	}
	db.SetMaxOpenConns(1)

	ctx := context.Background()
	if _, err := db.ExecContext(ctx, "PRAGMA journal_mode=WAL"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("audit: enable WAL: %w", err)
	}
	if _, err := db.ExecContext(ctx, fmt.Sprintf("PRAGMA busy_timeout=%d", defaultBusyTimeout)); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("audit: set busy_timeout: %w", err)
	}
	if _, err := db.ExecContext(ctx, schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("audit: migrate schema: %w", err)
	}

	return &Journal{
		db:     db,
		logger: logger.With("component", "audit"),
		now:    time.Now,
	}, nil
}

// Close closes the underlying database.
func (j *Journal) Close() error {
	return j.db.Close()
}

// ConfirmationRequested implements confirm.Observer. Requests are not
// journaled; only settlements are.
func (j *Journal) ConfirmationRequested(_ confirm.Pending) {}

// ConfirmationSettled implements confirm.Observer. Failures to write are
// logged, never propagated. The journal must not break settlement.
func (j *Journal) ConfirmationSettled(p confirm.Pending, result confirm.Result) {
	j.mu.Lock()
	defer j.mu.Unlock()

	_, err := j.db.Exec(
		`INSERT INTO decisions (server_id, tool_ids, tool_count, result, requested_at, settled_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		p.ServerID,
		strings.Join(p.ToolIDs, ","),
		len(p.ToolIDs),
		string(result),
		p.RequestedAt.UTC(),
		j.now().UTC(),
	)
	if err != nil {
		j.logger.Error("audit: write decision", "server", p.ServerID, "error", err)
	}
}

// Recent returns up to limit decisions, newest first.
func (j *Journal) Recent(ctx context.Context, limit int) ([]Decision, error) {
	if limit <= 0 {
		limit = 50
	}

	rows, err := j.db.QueryContext(ctx,
		`SELECT id, server_id, tool_ids, result, requested_at, settled_at
		 FROM decisions ORDER BY id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("audit: query decisions: %w", err)
	}
	defer rows.Close()

	var out []Decision
	for rows.Next() {
		var d Decision
		var toolIDs string
		if err := rows.Scan(&d.ID, &d.ServerID, &toolIDs, &d.Result, &d.RequestedAt, &d.SettledAt); err != nil {
			return nil, fmt.Errorf("audit: scan decision: %w", err)
		}
		if toolIDs != "" {
			d.ToolIDs = strings.Split(toolIDs, ",")
		}
		out = append(out, d)
	}
	return out, rows.Err()
}
