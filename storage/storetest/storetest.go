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

// Package storetest holds the behavioral test suite every storage.JobStore
// backend must pass.
package storetest

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"testing"

	"github.com/poiesic/docingest/core"
	"github.com/poiesic/docingest/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Factory returns a fresh, empty store. The suite closes it.
type Factory func(t *testing.T) storage.JobStore

// Sources builds n distinct hydration sources.
func Sources(n int) []core.Source {
	sources := make([]core.Source, n)
	for i := range sources {
		sources[i] = core.Source{
			URL:  fmt.Sprintf("https://example.com/docs/%04d.pdf", i+1),
			Code: fmt.Sprintf("%06d", 600000+i),
		}
	}
	return sources
}

// Run executes the suite against stores created by newStore.
func Run(t *testing.T, newStore Factory) {
	tests := []struct {
		name string
		fn   func(t *testing.T, s storage.JobStore)
	}{
		{"HydrateAssignsPositions", testHydrateAssignsPositions},
		{"HydrateIsIdempotent", testHydrateIsIdempotent},
		{"HydrateRejectsInvalidSource", testHydrateRejectsInvalidSource},
		{"HydrateEmptyList", testHydrateEmptyList},
		{"ClaimPending", testClaimPending},
		{"ClaimPendingAfter", testClaimPendingAfter},
		{"CommitMixed", testCommitMixed},
		{"CommitBatch", testCommitBatch},
		{"CommitIsAtomic", testCommitIsAtomic},
		{"CommitRejectsProcessingTarget", testCommitRejectsProcessingTarget},
		{"CommitUnknownJob", testCommitUnknownJob},
		{"ResetOrphans", testResetOrphans},
		{"GetJobNotFound", testGetJobNotFound},
		{"ConcurrentClaims", testConcurrentClaims},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := newStore(t)
			t.Cleanup(func() { _ = s.Close() })
			tt.fn(t, s)
		})
	}
}

// RequireCounts asserts per-status counts and that they partition total.
func RequireCounts(t *testing.T, s storage.JobStore, total int, want map[core.JobStatus]int) {
	t.Helper()
	counts, err := s.StatusCounts(context.Background())
	require.NoError(t, err)
	for _, status := range core.AllStatuses {
		assert.Equal(t, want[status], counts[status], "status %s", status)
	}
	assert.Equal(t, total, counts.Total(), "status counts must partition all jobs")
}

func hydrate(t *testing.T, s storage.JobStore, n int) {
	t.Helper()
	count, err := s.Hydrate(context.Background(), Sources(n))
	require.NoError(t, err)
	require.Equal(t, n, count)
}

func ids(jobs []core.Job) []core.ID {
	out := make([]core.ID, len(jobs))
	for i, j := range jobs {
		out[i] = j.ID
	}
	return out
}

func testHydrateAssignsPositions(t *testing.T, s storage.JobStore) {
	ctx := context.Background()
	hydrate(t, s, 3)

	for i, src := range Sources(3) {
		job, err := s.GetJob(ctx, core.ID(i+1))
		require.NoError(t, err)
		assert.Equal(t, src.URL, job.URL)
		assert.Equal(t, src.Code, job.Code)
		assert.Equal(t, core.StatusPending, job.Status)
		assert.Empty(t, job.Error)
	}
	RequireCounts(t, s, 3, map[core.JobStatus]int{core.StatusPending: 3})
}

func testHydrateIsIdempotent(t *testing.T, s storage.JobStore) {
	hydrate(t, s, 5)

	count, err := s.Hydrate(context.Background(), Sources(8))
	assert.ErrorIs(t, err, storage.ErrAlreadyHydrated)
	assert.Zero(t, count)
	RequireCounts(t, s, 5, map[core.JobStatus]int{core.StatusPending: 5})
}

func testHydrateRejectsInvalidSource(t *testing.T, s storage.JobStore) {
	sources := Sources(3)
	sources[1].URL = "ftp://example.com/file.pdf"

	_, err := s.Hydrate(context.Background(), sources)
	assert.ErrorIs(t, err, core.ErrInvalidSource)
	RequireCounts(t, s, 0, nil)

	hydrate(t, s, 2)
}

func testHydrateEmptyList(t *testing.T, s storage.JobStore) {
	count, err := s.Hydrate(context.Background(), nil)
	require.NoError(t, err)
	assert.Zero(t, count)

	hydrate(t, s, 2)
}

func testClaimPending(t *testing.T, s storage.JobStore) {
	ctx := context.Background()
	hydrate(t, s, 5)

	first, err := s.ClaimPending(ctx, 3)
	require.NoError(t, err)
	assert.Equal(t, []core.ID{1, 2, 3}, ids(first))
	for _, job := range first {
		assert.Equal(t, core.StatusProcessing, job.Status)
	}

	second, err := s.ClaimPending(ctx, 3)
	require.NoError(t, err)
	assert.Equal(t, []core.ID{4, 5}, ids(second))

	empty, err := s.ClaimPending(ctx, 3)
	require.NoError(t, err)
	assert.Empty(t, empty)

	none, err := s.ClaimPending(ctx, 0)
	require.NoError(t, err)
	assert.Empty(t, none)

	RequireCounts(t, s, 5, map[core.JobStatus]int{core.StatusProcessing: 5})
}

func testClaimPendingAfter(t *testing.T, s storage.JobStore) {
	ctx := context.Background()
	hydrate(t, s, 6)

	claimed, err := s.ClaimPendingAfter(ctx, 0, 2)
	require.NoError(t, err)
	require.Equal(t, []core.ID{1, 2}, ids(claimed))

	// Requeue job 1: a cursor past it must not see it again.
	require.NoError(t, s.Commit(ctx, core.Transition{ID: 1, Status: core.StatusPending}))

	next, err := s.ClaimPendingAfter(ctx, 2, 10)
	require.NoError(t, err)
	assert.Equal(t, []core.ID{3, 4, 5, 6}, ids(next))

	again, err := s.ClaimPending(ctx, 10)
	require.NoError(t, err)
	assert.Equal(t, []core.ID{1}, ids(again))
}

func testCommitMixed(t *testing.T, s storage.JobStore) {
	ctx := context.Background()
	hydrate(t, s, 4)
	_, err := s.ClaimPending(ctx, 4)
	require.NoError(t, err)

	err = s.Commit(ctx,
		core.Transition{ID: 1, Status: core.StatusCompleted},
		core.Transition{ID: 2, Status: core.StatusFailed, Error: "max retries: status 404"},
		core.Transition{ID: 3, Status: core.StatusSkippedEmpty, Error: core.ErrTagEmpty},
		core.Transition{ID: 4, Status: core.StatusPending, Error: "backend unavailable"},
	)
	require.NoError(t, err)

	failed, err := s.GetJob(ctx, 2)
	require.NoError(t, err)
	assert.Equal(t, core.StatusFailed, failed.Status)
	assert.Equal(t, "max retries: status 404", failed.Error)

	RequireCounts(t, s, 4, map[core.JobStatus]int{
		core.StatusCompleted:    1,
		core.StatusFailed:       1,
		core.StatusSkippedEmpty: 1,
		core.StatusPending:      1,
	})
}

func testCommitBatch(t *testing.T, s storage.JobStore) {
	ctx := context.Background()
	hydrate(t, s, 5)
	_, err := s.ClaimPending(ctx, 5)
	require.NoError(t, err)

	err = s.CommitBatch(ctx, []core.ID{1, 2, 3, 4, 5}, core.StatusFailed, map[core.ID]string{
		3: core.ErrTagContextLength,
	})
	require.NoError(t, err)

	job, err := s.GetJob(ctx, 3)
	require.NoError(t, err)
	assert.Equal(t, core.ErrTagContextLength, job.Error)

	RequireCounts(t, s, 5, map[core.JobStatus]int{core.StatusFailed: 5})
}

func testCommitIsAtomic(t *testing.T, s storage.JobStore) {
	ctx := context.Background()
	hydrate(t, s, 3)
	_, err := s.ClaimPending(ctx, 2)
	require.NoError(t, err)

	// Job 3 was never claimed, so the whole commit must be rejected.
	err = s.CommitBatch(ctx, []core.ID{1, 2, 3}, core.StatusCompleted, nil)
	assert.ErrorIs(t, err, storage.ErrInvalidTransition)

	RequireCounts(t, s, 3, map[core.JobStatus]int{
		core.StatusProcessing: 2,
		core.StatusPending:    1,
	})
}

func testCommitRejectsProcessingTarget(t *testing.T, s storage.JobStore) {
	ctx := context.Background()
	hydrate(t, s, 1)
	_, err := s.ClaimPending(ctx, 1)
	require.NoError(t, err)

	err = s.Commit(ctx, core.Transition{ID: 1, Status: core.StatusProcessing})
	assert.ErrorIs(t, err, storage.ErrInvalidTransition)
}

func testCommitUnknownJob(t *testing.T, s storage.JobStore) {
	hydrate(t, s, 1)
	err := s.Commit(context.Background(), core.Transition{ID: 99, Status: core.StatusCompleted})
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func testResetOrphans(t *testing.T, s storage.JobStore) {
	ctx := context.Background()
	hydrate(t, s, 12)
	claimed, err := s.ClaimPending(ctx, 10)
	require.NoError(t, err)
	require.Len(t, claimed, 10)
	require.NoError(t, s.Commit(ctx, core.Transition{ID: 1, Status: core.StatusCompleted}))

	n, err := s.ResetOrphans(ctx)
	require.NoError(t, err)
	assert.Equal(t, 9, n)
	RequireCounts(t, s, 12, map[core.JobStatus]int{
		core.StatusPending:   11,
		core.StatusCompleted: 1,
	})

	n, err = s.ResetOrphans(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func testGetJobNotFound(t *testing.T, s storage.JobStore) {
	_, err := s.GetJob(context.Background(), 42)
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func testConcurrentClaims(t *testing.T, s storage.JobStore) {
	ctx := context.Background()
	const total = 200
	hydrate(t, s, total)

	var (
		mu  sync.Mutex
		all []core.ID
		wg  sync.WaitGroup
	)
	for range 8 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				jobs, err := s.ClaimPending(ctx, 7)
				if !assert.NoError(t, err) || len(jobs) == 0 {
					return
				}
				mu.Lock()
				all = append(all, ids(jobs)...)
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	require.Len(t, all, total)
	sort.Slice(all, func(i, j int) bool { return all[i] < all[j] })
	for i, id := range all {
		assert.Equal(t, core.ID(i+1), id, "every job claimed exactly once")
	}
	RequireCounts(t, s, total, map[core.JobStatus]int{core.StatusProcessing: total})
}
