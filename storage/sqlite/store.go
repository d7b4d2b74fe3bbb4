// Copyright 2025 Poiesic Systems
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/poiesic/docingest/core"
	"github.com/poiesic/docingest/retry"
	"github.com/poiesic/docingest/storage"
	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"
)

const busyTimeoutMillis = 5000

// JobStore implements storage.JobStore on a SQLite jobs table.
// All access goes through a single connection, so SQLite itself serializes writers.
type JobStore struct {
	db     *sql.DB
	policy retry.Policy
	logger *slog.Logger
	closed atomic.Bool

	// mu keeps claims from interleaving between read and update.
	mu sync.Mutex
}

var _ storage.JobStore = (*JobStore)(nil)

// Option configures a JobStore.
type Option func(*JobStore)

// WithRetryPolicy sets the policy used when the database reports SQLITE_BUSY or SQLITE_LOCKED.
func WithRetryPolicy(p retry.Policy) Option {
	return func(s *JobStore) {
		s.policy = p
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *JobStore) {
		s.logger = logger
	}
}

// NewJobStore opens (creating if needed) a SQLite job store at path.
func NewJobStore(path string, opts ...Option) (storage.JobStore, error) {
	return open(path, true, opts...)
}

// NewMemoryJobStore creates an in-memory job store for testing.
func NewMemoryJobStore(opts ...Option) (storage.JobStore, error) {
	return open(":memory:", false, opts...)
}

func open(dsn string, wal bool, opts ...Option) (*JobStore, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, err
	}
	// One connection is the single writer; it also keeps an in-memory database alive.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	s := &JobStore{
		db:     db,
		policy: retry.StorePolicy(),
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = s.logger.With("component", "job-store", "backend", "sqlite")

	pragmas := []string{fmt.Sprintf("PRAGMA busy_timeout = %d", busyTimeoutMillis)}
	if wal {
		pragmas = append(pragmas, "PRAGMA journal_mode = WAL", "PRAGMA synchronous = NORMAL")
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			db.Close()
			return nil, fmt.Errorf("%s: %w", p, err)
		}
	}

	if err := Migrate(db, s.logger); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

// Close closes the database.
func (s *JobStore) Close() error {
	if s.closed.Swap(true) {
		return nil
	}
	return s.db.Close()
}

// isBusy reports whether err is SQLite lock contention.
func isBusy(err error) bool {
	var sqliteErr *sqlite.Error
	if !errors.As(err, &sqliteErr) {
		return false
	}
	code := sqliteErr.Code() & 0xff
	return code == sqlite3.SQLITE_BUSY || code == sqlite3.SQLITE_LOCKED
}

// withTx runs fn in a transaction, retrying the whole transaction on contention.
func (s *JobStore) withTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	if s.closed.Load() {
		return storage.ErrStorageClosed
	}
	err := s.policy.Do(ctx, func(attempt int) error {
		err := s.runTx(ctx, fn)
		if err == nil || isBusy(err) {
			if err != nil {
				s.logger.Debug("database busy", "attempt", attempt)
			}
			return err
		}
		return retry.Permanent(err)
	})
	if isBusy(err) {
		return fmt.Errorf("%w: %w", storage.ErrStoreUnavailable, err)
	}
	return err
}

func (s *JobStore) runTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	return tx.Commit()
}

// Hydrate inserts one PENDING job per source in a single transaction.
func (s *JobStore) Hydrate(ctx context.Context, sources []core.Source) (int, error) {
	for i, src := range sources {
		if err := core.ValidateSource(src); err != nil {
			return 0, fmt.Errorf("source %d: %w", i+1, err)
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	err := s.withTx(ctx, func(tx *sql.Tx) error {
		var existing int
		if err := tx.QueryRowContext(ctx, `SELECT COUNT(*) FROM jobs`).Scan(&existing); err != nil {
			return err
		}
		if existing > 0 {
			return storage.ErrAlreadyHydrated
		}

		stmt, err := tx.PrepareContext(ctx, `INSERT INTO jobs (id, url, code, status) VALUES (?, ?, ?, ?)`)
		if err != nil {
			return err
		}
		defer stmt.Close()

		for i, src := range sources {
			if _, err := stmt.ExecContext(ctx, i+1, src.URL, src.Code, string(core.StatusPending)); err != nil {
				return fmt.Errorf("inserting job %d: %w", i+1, err)
			}
		}
		return nil
	})
	if err != nil {
		return 0, err
	}

	if len(sources) > 0 {
		s.logger.Info("job store hydrated", "jobs", len(sources))
	}
	return len(sources), nil
}

// ClaimPending moves up to limit PENDING jobs to PROCESSING.
func (s *JobStore) ClaimPending(ctx context.Context, limit int) ([]core.Job, error) {
	return s.ClaimPendingAfter(ctx, 0, limit)
}

// ClaimPendingAfter moves up to limit PENDING jobs with ID > after to PROCESSING.
func (s *JobStore) ClaimPendingAfter(ctx context.Context, after core.ID, limit int) ([]core.Job, error) {
	if limit <= 0 {
		return nil, nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	var claimed []core.Job
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		claimed = claimed[:0]
		rows, err := tx.QueryContext(ctx,
			`SELECT id, url, code, error FROM jobs WHERE status = ? AND id > ? ORDER BY id LIMIT ?`,
			string(core.StatusPending), int64(after), limit)
		if err != nil {
			return err
		}
		for rows.Next() {
			var (
				job    core.Job
				id     int64
				errMsg sql.NullString
			)
			if err := rows.Scan(&id, &job.URL, &job.Code, &errMsg); err != nil {
				rows.Close()
				return err
			}
			job.ID = core.ID(id)
			job.Status = core.StatusProcessing
			job.Error = errMsg.String
			claimed = append(claimed, job)
		}
		if err := rows.Close(); err != nil {
			return err
		}
		if err := rows.Err(); err != nil {
			return err
		}
		if len(claimed) == 0 {
			return nil
		}

		args := make([]any, 0, len(claimed)+1)
		args = append(args, string(core.StatusProcessing))
		for _, job := range claimed {
			args = append(args, int64(job.ID))
		}
		query := `UPDATE jobs SET status = ? WHERE id IN (` + placeholders(len(claimed)) + `)`
		_, err = tx.ExecContext(ctx, query, args...)
		return err
	})
	if err != nil {
		return nil, err
	}
	return claimed, nil
}

func placeholders(n int) string {
	return strings.TrimSuffix(strings.Repeat("?,", n), ",")
}

// CommitBatch moves ids from PROCESSING to status.
func (s *JobStore) CommitBatch(ctx context.Context, ids []core.ID, status core.JobStatus, errorsByID map[core.ID]string) error {
	transitions := make([]core.Transition, len(ids))
	for i, id := range ids {
		transitions[i] = core.Transition{ID: id, Status: status, Error: errorsByID[id]}
	}
	return s.Commit(ctx, transitions...)
}

// Commit applies transitions atomically.
func (s *JobStore) Commit(ctx context.Context, transitions ...core.Transition) error {
	if len(transitions) == 0 {
		return nil
	}
	for _, t := range transitions {
		if err := core.ValidateTransition(t); err != nil {
			return fmt.Errorf("%w: job %d: %w", storage.ErrInvalidTransition, t.ID, err)
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	return s.withTx(ctx, func(tx *sql.Tx) error {
		stmt, err := tx.PrepareContext(ctx,
			`UPDATE jobs SET status = ?, error = ? WHERE id = ? AND status = ?`)
		if err != nil {
			return err
		}
		defer stmt.Close()

		for _, t := range transitions {
			res, err := stmt.ExecContext(ctx, string(t.Status), nullable(t.Error), int64(t.ID), string(core.StatusProcessing))
			if err != nil {
				return err
			}
			n, err := res.RowsAffected()
			if err != nil {
				return err
			}
			if n == 1 {
				continue
			}

			var current string
			err = tx.QueryRowContext(ctx, `SELECT status FROM jobs WHERE id = ?`, int64(t.ID)).Scan(&current)
			if errors.Is(err, sql.ErrNoRows) {
				return fmt.Errorf("job %d: %w", t.ID, storage.ErrNotFound)
			}
			if err != nil {
				return err
			}
			return fmt.Errorf("%w: job %d is %s", storage.ErrInvalidTransition, t.ID, current)
		}
		return nil
	})
}

func nullable(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

// ResetOrphans moves every PROCESSING job back to PENDING.
func (s *JobStore) ResetOrphans(ctx context.Context) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var reset int64
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, `UPDATE jobs SET status = ? WHERE status = ?`,
			string(core.StatusPending), string(core.StatusProcessing))
		if err != nil {
			return err
		}
		reset, err = res.RowsAffected()
		return err
	})
	if err != nil {
		return 0, err
	}
	if reset > 0 {
		s.logger.Info("reset orphaned jobs", "jobs", reset)
	}
	return int(reset), nil
}

// StatusCounts returns the number of jobs in each status.
func (s *JobStore) StatusCounts(ctx context.Context) (core.StatusCounts, error) {
	counts := make(core.StatusCounts, len(core.AllStatuses))
	for _, status := range core.AllStatuses {
		counts[status] = 0
	}

	err := s.withTx(ctx, func(tx *sql.Tx) error {
		rows, err := tx.QueryContext(ctx, `SELECT status, COUNT(*) FROM jobs GROUP BY status`)
		if err != nil {
			return err
		}
		defer rows.Close()
		for rows.Next() {
			var (
				status string
				n      int
			)
			if err := rows.Scan(&status, &n); err != nil {
				return err
			}
			counts[core.JobStatus(status)] = n
		}
		return rows.Err()
	})
	if err != nil {
		return nil, err
	}
	return counts, nil
}

// GetJob retrieves a single job by ID.
func (s *JobStore) GetJob(ctx context.Context, id core.ID) (*core.Job, error) {
	job := &core.Job{ID: id}
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		var (
			status string
			errMsg sql.NullString
		)
		err := tx.QueryRowContext(ctx, `SELECT url, code, status, error FROM jobs WHERE id = ?`, int64(id)).
			Scan(&job.URL, &job.Code, &status, &errMsg)
		if errors.Is(err, sql.ErrNoRows) {
			return storage.ErrNotFound
		}
		if err != nil {
			return err
		}
		job.Status = core.JobStatus(status)
		job.Error = errMsg.String
		return nil
	})
	if err != nil {
		return nil, err
	}
	return job, nil
}
