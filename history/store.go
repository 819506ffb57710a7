package history

import (
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"github.com/gkatanacio/batch-downloader/download"
)

// ErrNotFound is returned when no batch has the requested ID.
var ErrNotFound = errors.New("batch not found")

const schema = `
CREATE TABLE IF NOT EXISTS batches (
	id          TEXT PRIMARY KEY,
	started_at  INTEGER NOT NULL,
	finished_at INTEGER NOT NULL,
	total       INTEGER NOT NULL,
	ok          INTEGER NOT NULL,
	failed      INTEGER NOT NULL,
	bytes       INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS outcomes (
	batch_id       TEXT    NOT NULL REFERENCES batches(id) ON DELETE CASCADE,
	position       INTEGER NOT NULL,
	url            TEXT    NOT NULL,
	ok             INTEGER NOT NULL,
	path           TEXT    NOT NULL DEFAULT '',
	bytes          INTEGER NOT NULL DEFAULT 0,
	content_length INTEGER NOT NULL DEFAULT 0,
	sha256         TEXT    NOT NULL DEFAULT '',
	error          TEXT    NOT NULL DEFAULT '',
	elapsed_ns     INTEGER NOT NULL,
	attempts       INTEGER NOT NULL,
	PRIMARY KEY (batch_id, position)
);
`

// Summary is the per-batch row listed by List.
type Summary struct {
	ID         string
	StartedAt  time.Time
	FinishedAt time.Time
	Total      int
	OK         int
	Failed     int
	Bytes      int64
}

// Store keeps finished batch reports in SQLite. It records results only;
// nothing is ever resumed from it.
type Store struct {
	db *sql.DB
}

// Open opens (creating if needed) the history database at dbPath.
func Open(dbPath string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath+"?_pragma=journal_mode(WAL)&_pragma=synchronous(NORMAL)&_pragma=busy_timeout(5000)&_pragma=foreign_keys(1)")
	if err != nil {
		return nil, fmt.Errorf("failed to open sqlite: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to sqlite: %w", err)
	}

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("could not migrate database: %w", err)
	}

	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

// Save persists a report and all of its outcomes in one transaction.
func (s *Store) Save(report *download.Report) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.Exec(`INSERT OR REPLACE INTO batches (id, started_at, finished_at, total, ok, failed, bytes)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		report.ID,
		report.StartedAt.UnixNano(),
		report.FinishedAt.UnixNano(),
		len(report.Outcomes),
		report.Succeeded(),
		report.Failed(),
		report.BytesWritten(),
	)
	if err != nil {
		return fmt.Errorf("failed to save batch %s: %w", report.ID, err)
	}

	if _, err := tx.Exec(`DELETE FROM outcomes WHERE batch_id = ?`, report.ID); err != nil {
		return fmt.Errorf("failed to clear outcomes for %s: %w", report.ID, err)
	}

	stmt, err := tx.Prepare(`INSERT INTO outcomes
		(batch_id, position, url, ok, path, bytes, content_length, sha256, error, elapsed_ns, attempts)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for i, o := range report.Outcomes {
		_, err := stmt.Exec(report.ID, i, o.URL, o.OK, o.Path, o.BytesWritten, o.ContentLength,
			o.SHA256, o.Error, int64(o.Elapsed), o.Attempts)
		if err != nil {
			return fmt.Errorf("failed to save outcome %d of %s: %w", i, report.ID, err)
		}
	}

	return tx.Commit()
}

// List returns the most recent batches first, at most limit of them.
func (s *Store) List(limit int) ([]Summary, error) {
	rows, err := s.db.Query(`SELECT id, started_at, finished_at, total, ok, failed, bytes
		FROM batches ORDER BY id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list batches: %w", err)
	}
	defer rows.Close()

	var summaries []Summary
	for rows.Next() {
		var (
			sum               Summary
			started, finished int64
		)
		if err := rows.Scan(&sum.ID, &started, &finished, &sum.Total, &sum.OK, &sum.Failed, &sum.Bytes); err != nil {
			return nil, err
		}
		sum.StartedAt = time.Unix(0, started)
		sum.FinishedAt = time.Unix(0, finished)
		summaries = append(summaries, sum)
	}

	return summaries, rows.Err()
}

// Get loads a full report by batch ID.
func (s *Store) Get(id string) (*download.Report, error) {
	var started, finished int64

	err := s.db.QueryRow(`SELECT started_at, finished_at FROM batches WHERE id = ? LIMIT 1`, id).
		Scan(&started, &finished)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%s: %w", id, ErrNotFound)
		}
		return nil, fmt.Errorf("failed to fetch batch %s: %w", id, err)
	}

	report := &download.Report{
		ID:         id,
		StartedAt:  time.Unix(0, started),
		FinishedAt: time.Unix(0, finished),
		Outcomes:   []download.Outcome{},
	}

	rows, err := s.db.Query(`SELECT url, ok, path, bytes, content_length, sha256, error, elapsed_ns, attempts
		FROM outcomes WHERE batch_id = ? ORDER BY position ASC`, id)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch outcomes for %s: %w", id, err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			o       download.Outcome
			elapsed int64
		)
		if err := rows.Scan(&o.URL, &o.OK, &o.Path, &o.BytesWritten, &o.ContentLength,
			&o.SHA256, &o.Error, &elapsed, &o.Attempts); err != nil {
			return nil, err
		}
		o.Elapsed = time.Duration(elapsed)
		report.Outcomes = append(report.Outcomes, o)
	}

	return report, rows.Err()
}
