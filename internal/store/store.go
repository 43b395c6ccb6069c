// Package store persists the terminal record of every call in SQLite.
package store

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"github.com/voxflow-go/voxflow/pkg/engine/call"
)

// CallRecord is one persisted call outcome.
type CallRecord struct {
	CallID     string
	Number     string
	Scenario   string
	Outcome    string
	Score      float64
	Lead       bool
	DurationMS int64
	Error      string
	CreatedAt  time.Time
}

// SQLiteStore is the call-outcome log. A single writer per process.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLite opens (and creates if needed) the outcome database with
// WAL mode enabled.
func NewSQLite(dbPath string) (*SQLiteStore, error) {
	if dir := filepath.Dir(dbPath); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("create database directory: %w", err)
		}
	}

	dsn := dbPath + "?_journal=WAL&_sync=NORMAL&_busy_timeout=5000"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	db.SetMaxOpenConns(4)
	db.SetMaxIdleConns(2)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("ping database: %w", err)
	}

	s := &SQLiteStore{db: db}
	if err := s.initSchema(); err != nil {
		return nil, fmt.Errorf("initialize schema: %w", err)
	}
	return s, nil
}

func (s *SQLiteStore) initSchema() error {
	query := `
	PRAGMA busy_timeout = 5000;
	CREATE TABLE IF NOT EXISTS call_outcomes (
		call_id TEXT PRIMARY KEY,
		number TEXT NOT NULL,
		scenario TEXT NOT NULL,
		outcome TEXT NOT NULL,
		score REAL NOT NULL,
		lead INTEGER NOT NULL,
		duration_ms INTEGER NOT NULL,
		error TEXT,
		created_at INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_call_outcomes_outcome ON call_outcomes(outcome);
	CREATE INDEX IF NOT EXISTS idx_call_outcomes_created ON call_outcomes(created_at);
	`
	if _, err := s.db.Exec(query); err != nil {
		return fmt.Errorf("create schema: %w", err)
	}
	return nil
}

// RecordOutcome satisfies call.OutcomeSink.
func (s *SQLiteStore) RecordOutcome(ctx context.Context, res call.Result) error {
	errText := ""
	if res.Err != nil {
		errText = res.Err.Error()
	}
	lead := 0
	if res.Lead {
		lead = 1
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT OR REPLACE INTO call_outcomes
			(call_id, number, scenario, outcome, score, lead, duration_ms, error, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		res.CallID, res.Number, res.Scenario, string(res.Outcome),
		res.Score, lead, res.Duration.Milliseconds(), errText, time.Now().Unix())
	if err != nil {
		return fmt.Errorf("record outcome: %w", err)
	}
	return nil
}

// Recent returns the newest outcomes, most recent first.
func (s *SQLiteStore) Recent(ctx context.Context, limit int) ([]CallRecord, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT call_id, number, scenario, outcome, score, lead, duration_ms, error, created_at
		FROM call_outcomes ORDER BY created_at DESC, call_id LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("query outcomes: %w", err)
	}
	defer rows.Close()

	var out []CallRecord
	for rows.Next() {
		var r CallRecord
		var lead int
		var created int64
		if err := rows.Scan(&r.CallID, &r.Number, &r.Scenario, &r.Outcome, &r.Score, &lead, &r.DurationMS, &r.Error, &created); err != nil {
			return nil, fmt.Errorf("scan outcome: %w", err)
		}
		r.Lead = lead != 0
		r.CreatedAt = time.Unix(created, 0)
		out = append(out, r)
	}
	return out, rows.Err()
}

// CountByOutcome aggregates stored calls per terminal status.
func (s *SQLiteStore) CountByOutcome(ctx context.Context) (map[string]int, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT outcome, COUNT(*) FROM call_outcomes GROUP BY outcome`)
	if err != nil {
		return nil, fmt.Errorf("count outcomes: %w", err)
	}
	defer rows.Close()

	counts := make(map[string]int)
	for rows.Next() {
		var outcome string
		var n int
		if err := rows.Scan(&outcome, &n); err != nil {
			return nil, fmt.Errorf("scan count: %w", err)
		}
		counts[outcome] = n
	}
	return counts, rows.Err()
}

func (s *SQLiteStore) Close() error { return s.db.Close() }
