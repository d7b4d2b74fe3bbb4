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

package storage

import (
	"context"

	"github.com/poiesic/docingest/core"
)

// JobStore provides durable bookkeeping of the job lifecycle.
// Implementations must be thread-safe and support concurrent access.
type JobStore interface {
	// Hydrate inserts one PENDING job per source, with IDs assigned from list
	// position starting at 1. Returns ErrAlreadyHydrated without writing anything
	// if the store already holds jobs. Callers should treat that as a skip.
	Hydrate(ctx context.Context, sources []core.Source) (int, error)

	// ClaimPending atomically moves up to limit PENDING jobs to PROCESSING and
	// returns them in ID order. Returns an empty slice when nothing is pending.
	ClaimPending(ctx context.Context, limit int) ([]core.Job, error)

	// ClaimPendingAfter is ClaimPending restricted to jobs with ID > after.
	ClaimPendingAfter(ctx context.Context, after core.ID, limit int) ([]core.Job, error)

	// CommitBatch moves every id from PROCESSING to status in one atomic operation.
	// errorsByID supplies optional per-job error text.
	// Returns ErrInvalidTransition if any id is not PROCESSING; nothing is applied in that case.
	CommitBatch(ctx context.Context, ids []core.ID, status core.JobStatus, errorsByID map[core.ID]string) error

	// Commit applies transitions with mixed target statuses in one atomic operation.
	Commit(ctx context.Context, transitions ...core.Transition) error

	// ResetOrphans moves every PROCESSING job back to PENDING and returns how many moved.
	ResetOrphans(ctx context.Context) (int, error)

	// StatusCounts returns the number of jobs in each status.
	// Every status in core.AllStatuses is present in the result.
	StatusCounts(ctx context.Context) (core.StatusCounts, error)

	// GetJob retrieves a single job. Returns ErrNotFound if the job doesn't exist.
	GetJob(ctx context.Context, id core.ID) (*core.Job, error)

	// Close releases the underlying storage.
	Close() error
}
