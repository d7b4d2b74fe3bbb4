package badger

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/dgraph-io/badger/v4"
	"github.com/poiesic/docingest/core"
	"github.com/poiesic/docingest/retry"
	"github.com/poiesic/docingest/storage"
)

// writeChunkSize bounds the number of jobs written per transaction so that
// hydration and orphan recovery stay below badger's transaction size limit.
const writeChunkSize = 1000

// JobStore implements storage.JobStore for BadgerDB.
type JobStore struct {
	backend  *Backend
	policy   retry.Policy
	logger   *slog.Logger
	ownsBase bool

	// mu serializes every write so claims never race each other.
	mu sync.Mutex
}

var _ storage.JobStore = (*JobStore)(nil)

// Option configures a JobStore.
type Option func(*JobStore)

// WithRetryPolicy sets the policy used when a commit conflicts with another writer.
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

// NewJobStore opens a BadgerDB job store at path.
func NewJobStore(path string, opts ...Option) (storage.JobStore, error) {
	backend, err := OpenBackend(path, false)
	if err != nil {
		return nil, err
	}
	store := newJobStore(backend, opts...)
	store.ownsBase = true
	return store, nil
}

// NewMemoryJobStore creates an in-memory job store for testing.
func NewMemoryJobStore(opts ...Option) (storage.JobStore, error) {
	backend, err := OpenBackend("", true)
	if err != nil {
		return nil, err
	}
	store := newJobStore(backend, opts...)
	store.ownsBase = true
	return store, nil
}

// NewJobStoreWithBackend creates a job store on an already open backend.
// Closing the store does not close the backend.
func NewJobStoreWithBackend(backend *Backend, opts ...Option) *JobStore {
	return newJobStore(backend, opts...)
}

func newJobStore(backend *Backend, opts ...Option) *JobStore {
	s := &JobStore{
		backend: backend,
		policy:  retry.StorePolicy(),
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = s.logger.With("component", "job-store", "backend", "badger")
	return s
}

// Close closes the backend if the store opened it.
func (s *JobStore) Close() error {
	if !s.ownsBase || s.backend.IsClosed() {
		return nil
	}
	return s.backend.Close()
}

// Hydrate inserts one PENDING job per source.
func (s *JobStore) Hydrate(ctx context.Context, sources []core.Source) (int, error) {
	for i, src := range sources {
		if err := core.ValidateSource(src); err != nil {
			return 0, fmt.Errorf("source %d: %w", i+1, err)
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	hydrated, err := s.isHydrated()
	if err != nil {
		return 0, err
	}
	if hydrated {
		return 0, storage.ErrAlreadyHydrated
	}
	if len(sources) == 0 {
		return 0, nil
	}

	// A previous hydration that died before writing the marker is simply repeated:
	// IDs are list positions, so rewriting them is deterministic.
	for start := 0; start < len(sources); start += writeChunkSize {
		end := min(start+writeChunkSize, len(sources))
		err := s.backend.Update(ctx, s.policy, func(tx *badger.Txn) error {
			for i := start; i < end; i++ {
				job := core.Job{
					ID:     core.ID(i + 1),
					URL:    sources[i].URL,
					Code:   sources[i].Code,
					Status: core.StatusPending,
				}
				old, err := readJob(tx, job.ID)
				if err != nil {
					return err
				}
				if err := putJob(tx, old, &job); err != nil {
					return err
				}
			}
			return nil
		})
		if err != nil {
			return 0, fmt.Errorf("hydrating jobs %d-%d: %w", start+1, end, err)
		}
	}

	err = s.backend.Update(ctx, s.policy, func(tx *badger.Txn) error {
		return tx.Set([]byte(hydratedKey), storage.MarshalCount(len(sources)))
	})
	if err != nil {
		return 0, err
	}

	s.logger.Info("job store hydrated", "jobs", len(sources))
	return len(sources), nil
}

func (s *JobStore) isHydrated() (bool, error) {
	found := false
	err := s.backend.View(func(tx *badger.Txn) error {
		_, err := tx.Get([]byte(hydratedKey))
		if errors.Is(err, badger.ErrKeyNotFound) {
			return nil
		}
		if err != nil {
			return err
		}
		found = true
		return nil
	})
	return found, err
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
	err := s.backend.Update(ctx, s.policy, func(tx *badger.Txn) error {
		claimed = claimed[:0]
		ids := scanStatus(tx, core.StatusPending, after+1, limit)
		for _, id := range ids {
			job, err := readJob(tx, id)
			if err != nil {
				return err
			}
			if job == nil || job.Status != core.StatusPending {
				return fmt.Errorf("status index out of sync for job %d", id)
			}
			next := *job
			next.Status = core.StatusProcessing
			if err := putJob(tx, job, &next); err != nil {
				return err
			}
			claimed = append(claimed, next)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return claimed, nil
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

	return s.backend.Update(ctx, s.policy, func(tx *badger.Txn) error {
		for _, t := range transitions {
			job, err := readJob(tx, t.ID)
			if err != nil {
				return err
			}
			if job == nil {
				return fmt.Errorf("job %d: %w", t.ID, storage.ErrNotFound)
			}
			if job.Status != core.StatusProcessing {
				return fmt.Errorf("%w: job %d is %s", storage.ErrInvalidTransition, t.ID, job.Status)
			}
			next := *job
			next.Status = t.Status
			next.Error = t.Error
			if err := putJob(tx, job, &next); err != nil {
				return err
			}
		}
		return nil
	})
}

// ResetOrphans moves every PROCESSING job back to PENDING.
func (s *JobStore) ResetOrphans(ctx context.Context) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	reset := 0
	for {
		var moved int
		err := s.backend.Update(ctx, s.policy, func(tx *badger.Txn) error {
			moved = 0
			for _, id := range scanStatus(tx, core.StatusProcessing, 0, writeChunkSize) {
				job, err := readJob(tx, id)
				if err != nil {
					return err
				}
				if job == nil {
					return fmt.Errorf("status index out of sync for job %d", id)
				}
				next := *job
				next.Status = core.StatusPending
				if err := putJob(tx, job, &next); err != nil {
					return err
				}
				moved++
			}
			return nil
		})
		if err != nil {
			return reset, err
		}
		reset += moved
		if moved < writeChunkSize {
			break
		}
	}

	if reset > 0 {
		s.logger.Info("reset orphaned jobs", "jobs", reset)
	}
	return reset, nil
}

// StatusCounts returns the number of jobs in each status.
func (s *JobStore) StatusCounts(ctx context.Context) (core.StatusCounts, error) {
	counts := make(core.StatusCounts, len(core.AllStatuses))
	err := s.backend.View(func(tx *badger.Txn) error {
		for _, status := range core.AllStatuses {
			if err := ctx.Err(); err != nil {
				return err
			}
			counts[status] = countStatus(tx, status)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return counts, nil
}

// GetJob retrieves a single job by ID.
func (s *JobStore) GetJob(ctx context.Context, id core.ID) (*core.Job, error) {
	var job *core.Job
	err := s.backend.View(func(tx *badger.Txn) error {
		var err error
		job, err = readJob(tx, id)
		return err
	})
	if err != nil {
		return nil, err
	}
	if job == nil {
		return nil, storage.ErrNotFound
	}
	return job, nil
}

// readJob returns nil without error when the job doesn't exist.
func readJob(tx *badger.Txn, id core.ID) (*core.Job, error) {
	item, err := tx.Get(makeJobKey(id))
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var job *core.Job
	err = item.Value(func(val []byte) error {
		job, err = storage.UnmarshalJob(val)
		return err
	})
	return job, err
}

// putJob stores job and moves its status index entry away from old's status.
func putJob(tx *badger.Txn, old, job *core.Job) error {
	if old != nil && old.Status != job.Status {
		if err := tx.Delete(makeStatusKey(old.Status, old.ID)); err != nil {
			return err
		}
	}
	if err := tx.Set(makeJobKey(job.ID), storage.MarshalJob(job)); err != nil {
		return err
	}
	return tx.Set(makeStatusKey(job.Status, job.ID), nil)
}

// scanStatus returns up to limit IDs >= from in the status index, in ID order.
func scanStatus(tx *badger.Txn, status core.JobStatus, from core.ID, limit int) []core.ID {
	opts := badger.DefaultIteratorOptions
	opts.PrefetchValues = false
	opts.Prefix = makeStatusPrefix(status)
	iter := tx.NewIterator(opts)
	defer iter.Close()

	ids := make([]core.ID, 0, limit)
	for iter.Seek(makeStatusKey(status, from)); iter.Valid() && len(ids) < limit; iter.Next() {
		ids = append(ids, idFromStatusKey(iter.Item().Key()))
	}
	return ids
}

func countStatus(tx *badger.Txn, status core.JobStatus) int {
	opts := badger.DefaultIteratorOptions
	opts.PrefetchValues = false
	opts.Prefix = makeStatusPrefix(status)
	iter := tx.NewIterator(opts)
	defer iter.Close()

	n := 0
	for iter.Rewind(); iter.Valid(); iter.Next() {
		n++
	}
	return n
}
