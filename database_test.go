package docingest

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/poiesic/docingest/ai"
	"github.com/poiesic/docingest/ai/mock"
	"github.com/poiesic/docingest/core"
	"github.com/poiesic/docingest/extract/extracttest"
	"github.com/poiesic/docingest/pipeline"
	"github.com/poiesic/docingest/retry"
	"github.com/poiesic/docingest/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOpen(t *testing.T) {
	t.Run("create new badger database", func(t *testing.T) {
		tmpDir := filepath.Join(t.TempDir(), "test_db")
		db, err := Open(tmpDir)
		require.NoError(t, err)
		require.NotNil(t, db)
		defer db.Close()

		assert.NotNil(t, db.Store())
		assert.Equal(t, StoreBadger, db.Kind())
		assert.NotNil(t, db.logger)
	})

	t.Run("create new sqlite database", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "state", "jobs.db")
		db, err := Open(path, WithStore(StoreSQLite))
		require.NoError(t, err)
		defer db.Close()

		assert.Equal(t, StoreSQLite, db.Kind())
		_, err = os.Stat(path)
		assert.NoError(t, err)
	})

	t.Run("error with invalid path", func(t *testing.T) {
		// Try to create a database at a file path instead of directory
		tmpFile := filepath.Join(t.TempDir(), "not_a_dir")
		err := os.WriteFile(tmpFile, []byte("test"), 0644)
		require.NoError(t, err)

		db, err := Open(tmpFile)
		assert.Error(t, err)
		assert.Nil(t, db)
	})

	t.Run("error with unknown store", func(t *testing.T) {
		db, err := Open(t.TempDir(), WithStore("postgres"))
		assert.ErrorIs(t, err, ErrUnknownStore)
		assert.Nil(t, db)
	})

	t.Run("error with invalid retry policy", func(t *testing.T) {
		db, err := Open(t.TempDir(), WithStoreRetryPolicy(retry.Policy{}))
		assert.ErrorIs(t, err, retry.ErrInvalidMaxAttempts)
		assert.Nil(t, db)
	})
}

func TestDatabase_Close(t *testing.T) {
	provider := mock.NewMockProvider(1)
	db, err := Open(t.TempDir(), WithProvider(provider))
	require.NoError(t, err)

	assert.NoError(t, db.Close())
	assert.True(t, provider.(*mock.MockProvider).Closed())
}

func TestDatabase_Hydrate(t *testing.T) {
	db, err := Open(t.TempDir(), WithProvider(mock.NewMockProvider(1)))
	require.NoError(t, err)
	defer db.Close()

	ctx := context.Background()
	sources := []core.Source{
		{URL: "https://example.com/a.pdf", Code: "600000"},
		{URL: "https://example.com/b.pdf", Code: "600001"},
	}
	n, err := db.Hydrate(ctx, sources)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	_, err = db.Hydrate(ctx, sources)
	assert.ErrorIs(t, err, storage.ErrAlreadyHydrated)

	status, err := db.Status(ctx, t.TempDir())
	require.NoError(t, err)
	assert.Equal(t, 2, status.Counts.Total())
}

func TestDatabase_PipelineBatchLimitedByAIConfig(t *testing.T) {
	cfg := ai.NewConfig(
		ai.WithEmbeddingHost("http://127.0.0.1:1"),
		ai.WithEmbeddingModel("test-model"),
		ai.WithBatchSize(4),
	)
	db, err := Open(filepath.Join(t.TempDir(), "db"), WithAIConfig(cfg))
	require.NoError(t, err)
	defer db.Close()

	pcfg := pipeline.DefaultConfig()
	pcfg.OutputDir = t.TempDir()
	pcfg.BatchSize = 5
	_, err = db.NewPipeline(pipeline.WithConfig(pcfg))
	assert.ErrorIs(t, err, pipeline.ErrBatchTooLarge)

	pcfg.BatchSize = 4
	p, err := db.NewPipeline(pipeline.WithConfig(pcfg))
	require.NoError(t, err)
	p.Release()
}

func TestDatabase_RunPipeline(t *testing.T) {
	for _, kind := range []StoreKind{StoreBadger, StoreSQLite} {
		t.Run(string(kind), func(t *testing.T) {
			doc := extracttest.PDF("Notice of the annual general meeting of shareholders and agenda.")
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
				w.Write(doc)
			}))
			defer srv.Close()

			path := filepath.Join(t.TempDir(), "jobs")
			db, err := Open(path, WithStore(kind), WithProvider(mock.NewMockProvider(2)))
			require.NoError(t, err)
			defer db.Close()

			ctx := context.Background()
			_, err = db.Hydrate(ctx, []core.Source{
				{URL: srv.URL + "/1.pdf", Code: "1"},
				{URL: srv.URL + "/2.pdf", Code: "2"},
				{URL: srv.URL + "/3.pdf", Code: "3"},
			})
			require.NoError(t, err)

			cfg := pipeline.DefaultConfig()
			cfg.OutputDir = t.TempDir()
			cfg.DownloadPolicy = retry.Policy{MaxAttempts: 1}
			cfg.BatchSize = 2
			p, err := db.NewPipeline(pipeline.WithConfig(cfg))
			require.NoError(t, err)
			defer p.Release()

			summary, err := p.Run(ctx)
			require.NoError(t, err)
			assert.Equal(t, 3, summary.Resolved[core.StatusCompleted])

			status, err := db.Status(ctx, cfg.OutputDir)
			require.NoError(t, err)
			assert.Equal(t, 3, status.Counts[core.StatusCompleted])
			assert.Equal(t, int64(3), status.Rows())
		})
	}
}
