package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"github.com/okian/trainingbot/internal/domain/model"
	"github.com/okian/trainingbot/pkg/metrics"
)

const (
	sqliteDriver  = "sqlite"
	timeLayout    = "2006-01-02T15:04:05.000000000Z07:00" // fixed width so text order is time order
	lookupChunk   = 500
	stateDirPerms = 0o750
)

// SQLiteStore keeps history in a SQLite database file.
type SQLiteStore struct {
	db *sql.DB
}

// OpenSQLite opens (creating if needed) the database at path and migrates it.
func OpenSQLite(ctx context.Context, path string) (*SQLiteStore, error) {
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), stateDirPerms); err != nil {
			return nil, fmt.Errorf("create history dir: %w", err)
		}
	}
	db, err := sql.Open(sqliteDriver, path)
	if err != nil {
		return nil, fmt.Errorf("open history db: %w", err)
	}
	// One connection keeps ":memory:" databases alive and serializes writers.
	db.SetMaxOpenConns(1)

	s := &SQLiteStore{db: db}
	if err := s.migrate(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

func (s *SQLiteStore) migrate(ctx context.Context) error {
	stmts := []string{
		`PRAGMA busy_timeout = 5000`,
		`CREATE TABLE IF NOT EXISTS runs (
			id TEXT PRIMARY KEY,
			run_date TEXT NOT NULL,
			policy TEXT NOT NULL DEFAULT '',
			started_at TEXT NOT NULL,
			finished_at TEXT NOT NULL,
			dry_run INTEGER NOT NULL DEFAULT 0,
			attempted INTEGER NOT NULL,
			succeeded INTEGER NOT NULL,
			failed INTEGER NOT NULL,
			abort_stage TEXT NOT NULL DEFAULT '',
			abort_error TEXT NOT NULL DEFAULT '',
			payload JSON NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS runs_started_at ON runs (started_at)`,
		`CREATE TABLE IF NOT EXISTS assignments (
			assignment_id TEXT PRIMARY KEY,
			run_id TEXT NOT NULL REFERENCES runs (id),
			run_date TEXT NOT NULL,
			personnel_id TEXT NOT NULL,
			personnel_name TEXT NOT NULL,
			unit TEXT NOT NULL DEFAULT '',
			module_id TEXT NOT NULL,
			module_title TEXT NOT NULL DEFAULT '',
			succeeded INTEGER NOT NULL,
			attempts INTEGER NOT NULL,
			error TEXT NOT NULL DEFAULT '',
			recorded_at TEXT NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS assignments_personnel ON assignments (personnel_id, recorded_at)`,
	}
	for _, q := range stmts {
		if _, err := s.db.ExecContext(ctx, q); err != nil {
			return fmt.Errorf("migrate history db: %w", err)
		}
	}
	return nil
}

func (s *SQLiteStore) SaveRun(ctx context.Context, r model.RunResult) (err error) {
	start := time.Now()
	defer func() {
		metrics.RecordRepositoryQueryLatency("save_run", float64(time.Since(start).Microseconds())/1000)
	}()

	payload, err := json.Marshal(r)
	if err != nil {
		return fmt.Errorf("encode run: %w", err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	_, err = tx.ExecContext(ctx, `INSERT INTO runs (
		id, run_date, policy, started_at, finished_at, dry_run, attempted, succeeded, failed, abort_stage, abort_error, payload
	) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		r.ID, r.RunDate, r.Policy, r.StartedAt.UTC().Format(timeLayout), r.FinishedAt.UTC().Format(timeLayout),
		boolInt(r.DryRun), r.Attempted, r.Succeeded, r.Failed, string(r.AbortStage), r.AbortError, string(payload),
	)
	if err != nil {
		return fmt.Errorf("insert run: %w", err)
	}

	if !r.DryRun {
		recorded := r.FinishedAt.UTC().Format(timeLayout)
		for _, o := range r.Outcomes {
			_, err = tx.ExecContext(ctx, `INSERT INTO assignments (
				assignment_id, run_id, run_date, personnel_id, personnel_name, unit, module_id, module_title, succeeded, attempts, error, recorded_at
			) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
				o.AssignmentID, r.ID, r.RunDate, o.PersonnelID, o.PersonnelName, o.Unit, o.ModuleID, o.ModuleTitle,
				boolInt(o.Succeeded), o.Attempts, o.Error, recorded,
			)
			if err != nil {
				return fmt.Errorf("insert assignment %s: %w", o.AssignmentID, err)
			}
		}
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}

	var n int
	if qerr := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM runs`).Scan(&n); qerr == nil {
		metrics.UpdateRepositoryRunsTotal(n)
	}
	return nil
}

func (s *SQLiteStore) Run(ctx context.Context, id string) (model.RunResult, error) {
	var payload string
	err := s.db.QueryRowContext(ctx, `SELECT payload FROM runs WHERE id = ?`, id).Scan(&payload)
	if errors.Is(err, sql.ErrNoRows) {
		metrics.RecordErrorByComponent("repository", "not_found")
		return model.RunResult{}, ErrNotFound
	}
	if err != nil {
		return model.RunResult{}, fmt.Errorf("query run: %w", err)
	}
	var r model.RunResult
	if err := json.Unmarshal([]byte(payload), &r); err != nil {
		return model.RunResult{}, fmt.Errorf("decode run %s: %w", id, err)
	}
	return r, nil
}

func (s *SQLiteStore) Recent(ctx context.Context, limit int) ([]model.RunResult, error) {
	if limit <= 0 {
		metrics.RecordErrorByComponent("repository", "invalid_limit")
		return nil, ErrInvalidLimit
	}
	start := time.Now()
	defer func() {
		metrics.RecordRepositoryQueryLatency("recent", float64(time.Since(start).Microseconds())/1000)
	}()

	rows, err := s.db.QueryContext(ctx, `SELECT payload FROM runs ORDER BY started_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("query runs: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []model.RunResult
	for rows.Next() {
		var payload string
		if err := rows.Scan(&payload); err != nil {
			return nil, err
		}
		var r model.RunResult
		if err := json.Unmarshal([]byte(payload), &r); err != nil {
			return nil, fmt.Errorf("decode run: %w", err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func (s *SQLiteStore) LastModules(ctx context.Context, personnelIDs []string) (map[string]string, error) {
	out := make(map[string]string, len(personnelIDs))
	for len(personnelIDs) > 0 {
		n := min(lookupChunk, len(personnelIDs))
		chunk := personnelIDs[:n]
		personnelIDs = personnelIDs[n:]

		args := make([]any, len(chunk))
		for i, id := range chunk {
			args[i] = id
		}
		q := `SELECT personnel_id, module_id FROM assignments
			WHERE succeeded = 1 AND personnel_id IN (?` + strings.Repeat(", ?", len(chunk)-1) + `)
			ORDER BY recorded_at ASC`
		rows, err := s.db.QueryContext(ctx, q, args...)
		if err != nil {
			return nil, fmt.Errorf("query last modules: %w", err)
		}
		for rows.Next() {
			var pid, mid string
			if err := rows.Scan(&pid, &mid); err != nil {
				_ = rows.Close()
				return nil, err
			}
			out[pid] = mid
		}
		err = rows.Err()
		_ = rows.Close()
		if err != nil {
			return nil, err
		}
	}
	return out, nil
}

func (s *SQLiteStore) Stats(ctx context.Context, topN int) (Stats, error) {
	var (
		st      Stats
		lastAt  sql.NullString
		lastID  sql.NullString
		attempt sql.NullInt64
		success sql.NullInt64
		failed  sql.NullInt64
	)
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*),
		COALESCE(SUM(CASE WHEN abort_stage != '' THEN 1 ELSE 0 END), 0),
		SUM(attempted), SUM(succeeded), SUM(failed)
		FROM runs`).Scan(&st.Runs, &st.Aborted, &attempt, &success, &failed)
	if err != nil {
		return Stats{}, fmt.Errorf("query stats: %w", err)
	}
	st.Attempted, st.Succeeded, st.Failed = int(attempt.Int64), int(success.Int64), int(failed.Int64)

	err = s.db.QueryRowContext(ctx, `SELECT id, started_at FROM runs ORDER BY started_at DESC LIMIT 1`).Scan(&lastID, &lastAt)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return Stats{}, fmt.Errorf("query last run: %w", err)
	}
	if lastAt.Valid {
		st.LastRunID = lastID.String
		st.LastRunAt, _ = time.Parse(timeLayout, lastAt.String)
	}

	if err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(DISTINCT personnel_id) FROM assignments WHERE succeeded = 1`).Scan(&st.Personnel); err != nil {
		return Stats{}, fmt.Errorf("query personnel: %w", err)
	}

	rows, err := s.db.QueryContext(ctx, `SELECT module_id, MAX(module_title), COUNT(*)
		FROM assignments WHERE succeeded = 1 GROUP BY module_id`)
	if err != nil {
		return Stats{}, fmt.Errorf("query module counts: %w", err)
	}
	defer func() { _ = rows.Close() }()
	counts := map[string]*ModuleCount{}
	for rows.Next() {
		var c ModuleCount
		if err := rows.Scan(&c.ModuleID, &c.ModuleTitle, &c.Count); err != nil {
			return Stats{}, err
		}
		counts[c.ModuleID] = &c
	}
	if err := rows.Err(); err != nil {
		return Stats{}, err
	}
	finishStats(&st, counts, topN)
	return st, nil
}

// Close closes the database.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
