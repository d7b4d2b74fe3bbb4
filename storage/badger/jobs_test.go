package badger

import (
	"context"
	"testing"

	"github.com/dgraph-io/badger/v4"
	"github.com/poiesic/docingest/core"
	"github.com/poiesic/docingest/storage"
	"github.com/poiesic/docingest/storage/storetest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestJobStore(t *testing.T) {
	storetest.Run(t, func(t *testing.T) storage.JobStore {
		store, err := NewMemoryJobStore()
		require.NoError(t, err)
		return store
	})
}

func TestJobStore_PartialHydrationIsRepeated(t *testing.T) {
	store, backend, err := NewMemoryJobStoreWithBackend()
	require.NoError(t, err)
	defer store.Close()

	// Simulate a crash after the first chunk: jobs exist but the marker does not.
	err = backend.Update(context.Background(), store.policy, func(tx *badger.Txn) error {
		stale := &core.Job{ID: 1, URL: "https://stale.example.com/1.pdf", Status: core.StatusProcessing}
		return putJob(tx, nil, stale)
	})
	require.NoError(t, err)

	n, err := store.Hydrate(context.Background(), storetest.Sources(3))
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	job, err := store.GetJob(context.Background(), 1)
	require.NoError(t, err)
	assert.Equal(t, storetest.Sources(1)[0].URL, job.URL)
	storetest.RequireCounts(t, store, 3, map[core.JobStatus]int{core.StatusPending: 3})
}

func TestJobStore_LargeHydrationSpansChunks(t *testing.T) {
	store, err := NewMemoryJobStore()
	require.NoError(t, err)
	defer store.Close()

	total := writeChunkSize*2 + 17
	n, err := store.Hydrate(context.Background(), storetest.Sources(total))
	require.NoError(t, err)
	assert.Equal(t, total, n)

	_, err = store.ClaimPending(context.Background(), writeChunkSize+5)
	require.NoError(t, err)
	reset, err := store.ResetOrphans(context.Background())
	require.NoError(t, err)
	assert.Equal(t, writeChunkSize+5, reset)
	storetest.RequireCounts(t, store, total, map[core.JobStatus]int{core.StatusPending: total})
}

func TestJobStore_SurvivesRestart(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()

	store, err := NewJobStore(dir)
	require.NoError(t, err)
	_, err = store.Hydrate(ctx, storetest.Sources(12))
	require.NoError(t, err)
	claimed, err := store.ClaimPending(ctx, 10)
	require.NoError(t, err)
	require.Len(t, claimed, 10)
	require.NoError(t, store.Close())

	reopened, err := NewJobStore(dir)
	require.NoError(t, err)
	defer reopened.Close()

	_, err = reopened.Hydrate(ctx, storetest.Sources(12))
	assert.ErrorIs(t, err, storage.ErrAlreadyHydrated)
	storetest.RequireCounts(t, reopened, 12, map[core.JobStatus]int{
		core.StatusProcessing: 10,
		core.StatusPending:    2,
	})

	n, err := reopened.ResetOrphans(ctx)
	require.NoError(t, err)
	assert.Equal(t, 10, n)
	storetest.RequireCounts(t, reopened, 12, map[core.JobStatus]int{core.StatusPending: 12})
}

func TestJobStore_ClosedStore(t *testing.T) {
	store, err := NewMemoryJobStore()
	require.NoError(t, err)
	require.NoError(t, store.Close())
	require.NoError(t, store.Close(), "closing twice is harmless")

	_, err = store.ClaimPending(context.Background(), 1)
	assert.ErrorIs(t, err, storage.ErrStorageClosed)
	_, err = store.StatusCounts(context.Background())
	assert.ErrorIs(t, err, storage.ErrStorageClosed)
}

func TestKeys(t *testing.T) {
	key := makeStatusKey(core.StatusPending, 258)
	assert.Equal(t, core.ID(258), idFromStatusKey(key))
	assert.True(t, string(makeJobKey(1)) < string(makeJobKey(256)), "job keys sort by ID")
	assert.NotEqual(t, string(makeStatusPrefix(core.StatusPending)), string(makeStatusPrefix(core.StatusProcessing)))
}
