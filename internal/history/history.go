// Package history keeps a SQLite ledger of export runs.
package history

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/goccy/go-json"
	_ "modernc.org/sqlite"

	"github.com/takak2166/confluence2openwebui/internal/exporter"
)

// openDB is a package-level var to allow test injection.
var openDB = sql.Open

// Entry is one recorded container group of a run
type Entry struct {
	ID                int64
	RunID             string
	SpaceKey          string
	KnowledgeBaseName string
	KnowledgeBaseID   string
	Successful        int
	Failed            int
	Canceled          int
	Filtered          int
	Registered        int
	Duplicates        int
	RegistrationFails int
	Aborted           bool
	Errors            []string
	StartTime         time.Time
	EndTime           time.Time
}

// Store writes and reads history entries
type Store struct {
	db *sql.DB
}

// Open opens or creates the database at path and runs migrations
func Open(path string) (*Store, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o700); err != nil {
			return nil, fmt.Errorf("history: create data dir: %w", err)
		}
	}

	db, err := openDB("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("history: open database: %w", err)
	}

	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA busy_timeout = 5000",
		"PRAGMA synchronous = NORMAL",
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			db.Close()
			return nil, fmt.Errorf("history: pragma %q: %w", p, err)
		}
	}

	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("history: migration: %w", err)
	}
	return s, nil
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) migrate() error {
	schema := `
		CREATE TABLE IF NOT EXISTS exports (
			id                  INTEGER PRIMARY KEY AUTOINCREMENT,
			run_id              TEXT NOT NULL,
			space_key           TEXT NOT NULL,
			kb_name             TEXT NOT NULL,
			kb_id               TEXT NOT NULL DEFAULT '',
			successful          INTEGER NOT NULL DEFAULT 0,
			failed              INTEGER NOT NULL DEFAULT 0,
			canceled            INTEGER NOT NULL DEFAULT 0,
			filtered            INTEGER NOT NULL DEFAULT 0,
			registered          INTEGER NOT NULL DEFAULT 0,
			duplicates          INTEGER NOT NULL DEFAULT 0,
			registration_fails  INTEGER NOT NULL DEFAULT 0,
			aborted             INTEGER NOT NULL DEFAULT 0,
			errors              TEXT NOT NULL DEFAULT '[]',
			started_at          TEXT NOT NULL,
			ended_at            TEXT NOT NULL
		);

		CREATE INDEX IF NOT EXISTS idx_exports_run ON exports(run_id);
		CREATE INDEX IF NOT EXISTS idx_exports_space ON exports(space_key, started_at);
	`
	_, err := s.db.Exec(schema)
	return err
}

// Record stores one group summary
func (s *Store) Record(ctx context.Context, sum *exporter.Summary) (int64, error) {
	errs := sum.Errors
	if errs == nil {
		errs = []string{}
	}
	encoded, err := json.Marshal(errs)
	if err != nil {
		return 0, fmt.Errorf("history: encode errors: %w", err)
	}

	res, err := s.db.ExecContext(ctx,
		`INSERT INTO exports (run_id, space_key, kb_name, kb_id, successful, failed, canceled, filtered,
			registered, duplicates, registration_fails, aborted, errors, started_at, ended_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		sum.RunID, sum.SpaceKey, sum.KnowledgeBaseName, sum.KnowledgeBaseID,
		sum.TotalSuccessful(), sum.TotalFailed(), sum.TotalCanceled(), sum.Filtered,
		sum.Registered, sum.Duplicates, sum.RegistrationFails, sum.Aborted, string(encoded),
		formatTime(sum.StartTime), formatTime(sum.EndTime),
	)
	if err != nil {
		return 0, fmt.Errorf("history: record %s: %w", sum.SpaceKey, err)
	}
	return res.LastInsertId()
}

// RecordResult stores every summary of a run
func (s *Store) RecordResult(ctx context.Context, result *exporter.Result) error {
	for _, sum := range result.Summaries {
		if sum == nil {
			continue
		}
		if _, err := s.Record(ctx, sum); err != nil {
			return err
		}
	}
	return nil
}

// Recent returns up to limit entries, newest first
func (s *Store) Recent(ctx context.Context, limit int) ([]Entry, error) {
	if limit <= 0 {
		limit = 20
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT id, run_id, space_key, kb_name, kb_id, successful, failed, canceled, filtered,
			registered, duplicates, registration_fails, aborted, errors, started_at, ended_at
		 FROM exports ORDER BY id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("history: query: %w", err)
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var e Entry
		var errs, started, ended string
		if err := rows.Scan(&e.ID, &e.RunID, &e.SpaceKey, &e.KnowledgeBaseName, &e.KnowledgeBaseID,
			&e.Successful, &e.Failed, &e.Canceled, &e.Filtered, &e.Registered, &e.Duplicates,
			&e.RegistrationFails, &e.Aborted, &errs, &started, &ended); err != nil {
			return nil, fmt.Errorf("history: scan: %w", err)
		}
		if err := json.Unmarshal([]byte(errs), &e.Errors); err != nil {
			return nil, fmt.Errorf("history: decode errors of entry %d: %w", e.ID, err)
		}
		e.StartTime = parseTime(started)
		e.EndTime = parseTime(ended)
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339Nano)
}

func parseTime(v string) time.Time {
	t, err := time.Parse(time.RFC3339Nano, v)
	if err != nil {
		return time.Time{}
	}
	return t
}
