// Package ledger records a history of shepherd runs in SQLite so
// operators can answer "what was assembled, verified, or merged, and
// when". Recording is best-effort: a broken ledger degrades the
// history command, never the run itself.
package ledger

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"
)

// openDB is a package-level var to allow test injection.
var openDB = sql.Open

// timeNow is a package-level var to allow test injection.
var timeNow = time.Now

// Run is one recorded invocation of a shepherd operation.
type Run struct {
	ID         int64  `json:"id"`
	Operation  string `json:"operation"`
	StartedAt  string `json:"started_at"`
	FinishedAt string `json:"finished_at"`
	ExitCode   int    `json:"exit_code"`
	Detail     string `json:"detail,omitempty"`
}

// RunRecord is the input for recording a finished run. Detail holds a
// small operation-specific payload (source ids, claim counts, plan
// sizes) and is marshaled to JSON.
type RunRecord struct {
	Operation string
	StartedAt time.Time
	ExitCode  int
	Detail    any
}

// Config holds ledger configuration.
type Config struct {
	DataDir string
}

// DefaultConfig places the ledger under the user's home directory.
func DefaultConfig() Config {
	home, _ := os.UserHomeDir()
	return Config{DataDir: filepath.Join(home, ".shepherd")}
}

// Store is the run history backed by SQLite.
type Store struct {
	db *sql.DB
}

// New creates the data directory if needed, opens SQLite with WAL
// mode, and runs migrations. An empty DataDir falls back to
// DefaultConfig.
func New(cfg Config) (*Store, error) {
	if cfg.DataDir == "" {
		cfg = DefaultConfig()
	}
	if err := os.MkdirAll(cfg.DataDir, 0700); err != nil {
		return nil, fmt.Errorf("ledger: create data dir: %w", err)
	}

	dbPath := filepath.Join(cfg.DataDir, "ledger.db")
	db, err := openDB("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("ledger: open database: %w", err)
	}

	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA busy_timeout = 5000",
		"PRAGMA synchronous = NORMAL",
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			db.Close()
			return nil, fmt.Errorf("ledger: pragma %q: %w", p, err)
		}
	}

	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ledger: migration: %w", err)
	}
	return s, nil
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) migrate() error {
	schema := `
		CREATE TABLE IF NOT EXISTS runs (
			id          INTEGER PRIMARY KEY AUTOINCREMENT,
			operation   TEXT    NOT NULL,
			started_at  TEXT    NOT NULL,
			finished_at TEXT    NOT NULL DEFAULT (datetime('now')),
			exit_code   INTEGER NOT NULL DEFAULT 0,
			detail      TEXT
		);

		CREATE INDEX IF NOT EXISTS idx_runs_operation ON runs(operation);
		CREATE INDEX IF NOT EXISTS idx_runs_started   ON runs(started_at DESC);
	`
	_, err := s.db.Exec(schema)
	return err
}

// Record appends a finished run to the ledger.
func (s *Store) Record(rec RunRecord) (int64, error) {
	var detail []byte
	if rec.Detail != nil {
		var err error
		detail, err = json.Marshal(rec.Detail)
		if err != nil {
			return 0, fmt.Errorf("ledger: marshal detail: %w", err)
		}
	}

	res, err := s.db.Exec(
		`INSERT INTO runs (operation, started_at, finished_at, exit_code, detail)
		 VALUES (?, ?, ?, ?, ?)`,
		rec.Operation,
		rec.StartedAt.UTC().Format(time.RFC3339),
		timeNow().UTC().Format(time.RFC3339),
		rec.ExitCode,
		nullable(string(detail)),
	)
	if err != nil {
		return 0, fmt.Errorf("ledger: record run: %w", err)
	}
	return res.LastInsertId()
}

// Recent returns the most recent runs, newest first. An operation
// filter of "" matches all operations.
func (s *Store) Recent(operation string, limit int) ([]Run, error) {
	if limit <= 0 {
		limit = 20
	}

	query := `SELECT id, operation, started_at, finished_at, exit_code, COALESCE(detail, '')
	          FROM runs`
	args := []any{}
	if operation != "" {
		query += ` WHERE operation = ?`
		args = append(args, operation)
	}
	query += ` ORDER BY started_at DESC, id DESC LIMIT ?`
	args = append(args, limit)

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("ledger: list runs: %w", err)
	}
	defer rows.Close()

	var runs []Run
	for rows.Next() {
		var r Run
		if err := rows.Scan(&r.ID, &r.Operation, &r.StartedAt, &r.FinishedAt, &r.ExitCode, &r.Detail); err != nil {
			return nil, fmt.Errorf("ledger: scan run: %w", err)
		}
		runs = append(runs, r)
	}
	return runs, rows.Err()
}

func nullable(s string) any {
	if s == "" {
		return nil
	}
	return s
}
