package checkpoint

import (
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite" // Pure-Go SQLite driver (no CGO required)

	"github.com/manabi-dev/manabi/internal/task"
)

// SQLiteStore is a Store backed by an embedded SQLite database. It keeps the
// same append-only discipline as the CSV store: rows are only ever inserted,
// and the highest rowid wins per key.
type SQLiteStore struct {
	db   *sql.DB
	path string
}

// NewSQLiteStore creates or opens a checkpoint database at path.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	if path == "" {
		return nil, errors.New("checkpoint: sqlite path must not be empty")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("creating checkpoint directory: %w", err)
	}

	dsn := path + "?_journal_mode=WAL&_busy_timeout=5000"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("opening checkpoint db: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close() //nolint:errcheck
		return nil, fmt.Errorf("pinging checkpoint db: %w", err)
	}

	// SQLite is single-writer
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	const schema = `CREATE TABLE IF NOT EXISTS results (
		id            INTEGER PRIMARY KEY AUTOINCREMENT,
		student_id    TEXT NOT NULL,
		kc_name       TEXT NOT NULL,
		outcome       TEXT NOT NULL DEFAULT '',
		detail        TEXT NOT NULL DEFAULT '',
		extra         TEXT NOT NULL DEFAULT '',
		raw_response  TEXT NOT NULL DEFAULT '',
		system_prompt TEXT NOT NULL DEFAULT '',
		user_prompt   TEXT NOT NULL DEFAULT '',
		created_at    INTEGER NOT NULL
	)`
	if _, err := db.Exec(schema); err != nil {
		db.Close() //nolint:errcheck
		return nil, fmt.Errorf("migrating checkpoint db: %w", err)
	}

	return &SQLiteStore{db: db, path: path}, nil
}

func (s *SQLiteStore) Path() string { return s.path }

func (s *SQLiteStore) Close() error { return s.db.Close() }

// Records returns every row in insertion order.
func (s *SQLiteStore) Records() ([]ResultRecord, error) {
	rows, err := s.db.Query(`SELECT student_id, kc_name, outcome, detail, extra, raw_response, system_prompt, user_prompt
		FROM results ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("reading checkpoint db: %w", err)
	}
	defer rows.Close() //nolint:errcheck

	var records []ResultRecord
	for rows.Next() {
		var rec ResultRecord
		if err := rows.Scan(
			&rec.Key.StudentID, &rec.Key.KCName,
			&rec.Outcome, &rec.Detail, &rec.Extra,
			&rec.RawResponse, &rec.SystemPrompt, &rec.UserPrompt,
		); err != nil {
			return nil, fmt.Errorf("scanning checkpoint row: %w", err)
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating checkpoint rows: %w", err)
	}
	return records, nil
}

// DoneKeys reports completion state per key; iterating in id order makes the
// most recently inserted record win.
func (s *SQLiteStore) DoneKeys() (map[task.Key]Done, error) {
	records, err := s.Records()
	if err != nil {
		return nil, err
	}
	done := make(map[task.Key]Done, len(records))
	for _, rec := range records {
		done[rec.Key] = Done{Complete: rec.Outcome != "", Failed: rec.Failed()}
	}
	return done, nil
}

// Append inserts records inside one transaction so a crash cannot leave a
// partially written batch.
func (s *SQLiteStore) Append(records []ResultRecord) error {
	if len(records) == 0 {
		return nil
	}

	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("beginning checkpoint append: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	stmt, err := tx.Prepare(`INSERT INTO results
		(student_id, kc_name, outcome, detail, extra, raw_response, system_prompt, user_prompt, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("preparing checkpoint insert: %w", err)
	}
	defer stmt.Close() //nolint:errcheck

	now := time.Now().Unix()
	for _, rec := range records {
		if _, err := stmt.Exec(
			rec.Key.StudentID, rec.Key.KCName,
			rec.Outcome, rec.Detail, rec.Extra,
			rec.RawResponse, rec.SystemPrompt, rec.UserPrompt,
			now,
		); err != nil {
			return fmt.Errorf("inserting checkpoint row for %s: %w", rec.Key, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing checkpoint append: %w", err)
	}
	return nil
}
