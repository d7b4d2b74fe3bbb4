package report

import (
	"bytes"
	"context"
	"testing"

	"github.com/poiesic/docingest/columnar"
	"github.com/poiesic/docingest/core"
	badgerstore "github.com/poiesic/docingest/storage/badger"
	"github.com/poiesic/docingest/storage/storetest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
)

func seededStatus(t *testing.T) Status {
	t.Helper()
	ctx := context.Background()

	store, err := badgerstore.NewMemoryJobStore()
	require.NoError(t, err)
	defer store.Close()

	_, err = store.Hydrate(ctx, storetest.Sources(5))
	require.NoError(t, err)
	_, err = store.ClaimPending(ctx, 3)
	require.NoError(t, err)
	require.NoError(t, store.Commit(ctx,
		core.Transition{ID: 1, Status: core.StatusCompleted},
		core.Transition{ID: 2, Status: core.StatusFailed, Error: core.ErrTagMaxRetries},
	))

	dir := t.TempDir()
	w, err := columnar.NewWriter(dir)
	require.NoError(t, err)
	_, err = w.Write(0, []columnar.Row{{ID: 1, URL: "https://example.com/1.pdf", Code: "600000", Text: "board resolution on dividend distribution", Vector: []int8{1, -2, 3}}})
	require.NoError(t, err)

	status, err := Collect(ctx, store, dir)
	require.NoError(t, err)
	return status
}

func TestCollect(t *testing.T) {
	status := seededStatus(t)

	assert.Equal(t, 5, status.Counts.Total())
	assert.Equal(t, 2, status.Counts[core.StatusPending])
	assert.Equal(t, 1, status.Counts[core.StatusProcessing])
	require.Len(t, status.Batches, 1)
	assert.Equal(t, int64(1), status.Rows())

	require.NotNil(t, status.Latest)
	assert.Equal(t, 1, status.Latest.Rows)
	assert.Equal(t, 3, status.Latest.Dimension)
	assert.Equal(t, "board resolution on dividend distribution", status.Latest.Preview)
}

func TestCollect_NoBatches(t *testing.T) {
	store, err := badgerstore.NewMemoryJobStore()
	require.NoError(t, err)
	defer store.Close()

	status, err := Collect(context.Background(), store, t.TempDir()+"/missing")
	require.NoError(t, err)
	assert.Empty(t, status.Batches)
	assert.Nil(t, status.Latest)

	var buf bytes.Buffer
	require.NoError(t, WriteText(&buf, status))
	assert.Contains(t, buf.String(), "No batch files found.")
}

func TestWriteText(t *testing.T) {
	status := seededStatus(t)

	var buf bytes.Buffer
	require.NoError(t, WriteText(&buf, status))
	out := buf.String()

	for _, s := range core.AllStatuses {
		assert.Contains(t, out, s.String())
	}
	assert.Contains(t, out, status.Batches[0].Name)
	assert.Contains(t, out, "Batch files: 1 (1 rows)")
	assert.Contains(t, out, "vector dimension: 3")
}

func TestWriteXLSX(t *testing.T) {
	status := seededStatus(t)

	var buf bytes.Buffer
	require.NoError(t, WriteXLSX(&buf, status))

	f, err := excelize.OpenReader(&buf)
	require.NoError(t, err)
	defer f.Close()

	assert.Equal(t, []string{"Jobs", "Batches"}, f.GetSheetList())

	jobs, err := f.GetRows("Jobs")
	require.NoError(t, err)
	require.Len(t, jobs, len(core.AllStatuses)+2)
	assert.Equal(t, []string{"Status", "Jobs"}, jobs[0])
	assert.Equal(t, []string{"PENDING", "2"}, jobs[1])
	assert.Equal(t, []string{"Total", "5"}, jobs[len(jobs)-1])

	batches, err := f.GetRows("Batches")
	require.NoError(t, err)
	require.Len(t, batches, 2)
	assert.Equal(t, status.Batches[0].Name, batches[1][0])
	assert.Equal(t, "1", batches[1][2])
}
