package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/seantiz/healthstat/internal/model"

	_ "modernc.org/sqlite"
)

const createResultsTable = `
CREATE TABLE IF NOT EXISTS job_results (
    job_id      INTEGER PRIMARY KEY,
    kind        TEXT NOT NULL,
    status      TEXT NOT NULL,
    result      BLOB,
    error       TEXT NOT NULL DEFAULT '',
    run_id      TEXT NOT NULL DEFAULT '',
    finished_at DATETIME NOT NULL
)`

const createFinishedIndex = `
CREATE INDEX IF NOT EXISTS idx_job_results_finished_at ON job_results (finished_at)`

// job_id_watermark holds the highest job id ever persisted. Prune leaves it
// alone so ids stay unique after old rows are gone.
const createWatermarkTable = `
CREATE TABLE IF NOT EXISTS job_id_watermark (
    singleton   INTEGER PRIMARY KEY CHECK (singleton = 1),
    last_job_id INTEGER NOT NULL
)`

// Compile-time interface satisfaction check.
var _ Store = (*SQLiteStore)(nil)

// SQLiteStore implements Store using SQLite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore opens the SQLite database at dbPath and runs migrations.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	// An in-memory database exists per connection.
	if dbPath == ":memory:" {
		db.SetMaxOpenConns(1)
	}

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("set WAL mode: %w", err)
	}

	if _, err := db.Exec("PRAGMA busy_timeout = 5000"); err != nil {
		db.Close()
		return nil, fmt.Errorf("set busy timeout: %w", err)
	}

	if _, err := db.Exec(createResultsTable); err != nil {
		db.Close()
		return nil, fmt.Errorf("create job_results table: %w", err)
	}

	if _, err := db.Exec(createFinishedIndex); err != nil {
		db.Close()
		return nil, fmt.Errorf("create finished_at index: %w", err)
	}

	if _, err := db.Exec(createWatermarkTable); err != nil {
		db.Close()
		return nil, fmt.Errorf("create job_id_watermark table: %w", err)
	}

	return &SQLiteStore{db: db}, nil
}

// Close closes the underlying database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// Persist upserts the outcome row for o.JobID and raises the id watermark
// in the same transaction.
func (s *SQLiteStore) Persist(ctx context.Context, o *model.Outcome) error {
	var result []byte
	if len(o.Result) > 0 {
		result = o.Result
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin persist: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx,
		`INSERT INTO job_results (job_id, kind, status, result, error, run_id, finished_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(job_id) DO UPDATE SET
			kind = excluded.kind,
			status = excluded.status,
			result = excluded.result,
			error = excluded.error,
			run_id = excluded.run_id,
			finished_at = excluded.finished_at`,
		o.JobID, o.Kind, o.Status, result, o.Error, o.RunID, o.FinishedAt.UTC(),
	)
	if err != nil {
		return fmt.Errorf("upsert job result: %w", err)
	}

	_, err = tx.ExecContext(ctx,
		`INSERT INTO job_id_watermark (singleton, last_job_id) VALUES (1, ?)
		ON CONFLICT(singleton) DO UPDATE SET
			last_job_id = MAX(last_job_id, excluded.last_job_id)`,
		o.JobID,
	)
	if err != nil {
		return fmt.Errorf("raise job id watermark: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit persist: %w", err)
	}
	return nil
}

// Get retrieves the outcome stored for jobID.
func (s *SQLiteStore) Get(ctx context.Context, jobID int64) (*model.Outcome, error) {
	o := &model.Outcome{}
	var result []byte
	err := s.db.QueryRowContext(ctx,
		`SELECT job_id, kind, status, result, error, run_id, finished_at
		FROM job_results WHERE job_id = ?`, jobID,
	).Scan(&o.JobID, &o.Kind, &o.Status, &result, &o.Error, &o.RunID, &o.FinishedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get job result: %w", err)
	}
	if len(result) > 0 {
		o.Result = result
	}
	return o, nil
}

// LastJobID returns the highest job id ever persisted, including ids whose
// rows were pruned.
func (s *SQLiteStore) LastJobID(ctx context.Context) (int64, error) {
	var last int64
	err := s.db.QueryRowContext(ctx,
		`SELECT MAX(
			COALESCE((SELECT MAX(job_id) FROM job_results), 0),
			COALESCE((SELECT last_job_id FROM job_id_watermark WHERE singleton = 1), 0)
		)`,
	).Scan(&last)
	if err != nil {
		return 0, fmt.Errorf("max job id: %w", err)
	}
	return last, nil
}

// Prune deletes rows that finished before the given time.
func (s *SQLiteStore) Prune(ctx context.Context, before time.Time) (int, error) {
	result, err := s.db.ExecContext(ctx,
		"DELETE FROM job_results WHERE finished_at < ?", before.UTC(),
	)
	if err != nil {
		return 0, fmt.Errorf("prune job results: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("check rows affected: %w", err)
	}
	return int(rowsAffected), nil
}
