package pipeline

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"sync/atomic"
	"testing"

	"github.com/poiesic/docingest/ai/mock"
	"github.com/poiesic/docingest/columnar"
	"github.com/poiesic/docingest/core"
	"github.com/poiesic/docingest/extract"
	"github.com/poiesic/docingest/extract/extracttest"
	"github.com/poiesic/docingest/retry"
	"github.com/poiesic/docingest/storage"
	"github.com/poiesic/docingest/storage/storetest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestDownloader(t *testing.T, cfg Config) *downloader {
	t.Helper()
	ext, err := newExtractor(cfg.ExtractorPoolSize, cfg.Limits)
	require.NoError(t, err)
	t.Cleanup(ext.release)
	return &downloader{
		client:     http.DefaultClient,
		policy:     cfg.DownloadPolicy,
		userAgents: cfg.UserAgents,
		maxBytes:   cfg.MaxDocumentBytes,
		maxErrLen:  cfg.Limits.MaxErrorLen,
		extractor:  ext,
		stats:      newStats(),
		logger:     slog.Default(),
	}
}

func TestIsThrottled(t *testing.T) {
	assert.True(t, isThrottled(&StatusError{Code: http.StatusTooManyRequests}))
	assert.True(t, isThrottled(fmt.Errorf("wrapped: %w", &StatusError{Code: http.StatusForbidden})))
	assert.False(t, isThrottled(&StatusError{Code: http.StatusServiceUnavailable}))
	assert.False(t, isThrottled(errors.New("connection reset")))

	policy := retry.DownloadPolicy(isThrottled)
	assert.Equal(t, policy.CoolDown, policy.Delay(&StatusError{Code: 429}, 1))
	assert.Equal(t, policy.BaseDelay, policy.Delay(&StatusError{Code: 502}, 1))
}

func TestDownloader_ThrottledThenSucceeds(t *testing.T) {
	srv := newDocServer(t)
	doc := extracttest.PDF(extracttest.Text(60))
	var calls atomic.Int32
	url := srv.route("/slow.pdf", func(w http.ResponseWriter, _ *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		w.Write(doc)
	})

	d := newTestDownloader(t, testConfig(t))
	out, err := d.process(context.Background(), core.Job{ID: 1, URL: url})
	require.NoError(t, err)
	assert.Equal(t, core.StatusCompleted, out.Status)
	assert.Equal(t, extracttest.Text(60), out.Text)
	assert.Equal(t, 3, srv.hitCount("/slow.pdf"))
}

func TestDownloader_ExhaustedRetriesFailOnce(t *testing.T) {
	srv := newDocServer(t)
	url := srv.status("/down.pdf", http.StatusServiceUnavailable)

	d := newTestDownloader(t, testConfig(t))
	out, err := d.process(context.Background(), core.Job{ID: 7, URL: url})
	require.NoError(t, err)
	assert.Equal(t, core.StatusFailed, out.Status)
	assert.Equal(t, core.ID(7), out.Job.ID)
	assert.Equal(t, "max retries: http status 503", out.Error)
	assert.Equal(t, 3, srv.hitCount("/down.pdf"))
}

func TestDownloader_RotatesUserAgents(t *testing.T) {
	srv := newDocServer(t)
	url := srv.status("/blocked.pdf", http.StatusForbidden)

	cfg := testConfig(t)
	cfg.UserAgents = []string{"agent-a", "agent-b"}
	d := newTestDownloader(t, cfg)
	_, err := d.process(context.Background(), core.Job{ID: 1, URL: url})
	require.NoError(t, err)

	assert.Equal(t, []string{"agent-a", "agent-b", "agent-a"}, srv.userAgents())
}

func TestDownloader_DocumentTooLarge(t *testing.T) {
	srv := newDocServer(t)
	url := srv.pdf("/huge.pdf", extracttest.Text(2000))

	cfg := testConfig(t)
	cfg.MaxDocumentBytes = 512
	d := newTestDownloader(t, cfg)
	out, err := d.process(context.Background(), core.Job{ID: 1, URL: url})
	require.NoError(t, err)
	assert.Equal(t, core.StatusFailed, out.Status)
	assert.Contains(t, out.Error, "document too large")
	assert.Equal(t, 1, srv.hitCount("/huge.pdf"), "oversized documents are not retried")
}

func TestDownloader_CanceledJobIsAbandoned(t *testing.T) {
	srv := newDocServer(t)
	url := srv.status("/down.pdf", http.StatusBadGateway)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	d := newTestDownloader(t, testConfig(t))
	_, err := d.process(ctx, core.Job{ID: 1, URL: url})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestExtractor_HandOff(t *testing.T) {
	ext, err := newExtractor(1, extract.DefaultLimits())
	require.NoError(t, err)
	defer ext.release()

	job := core.Job{ID: 3}
	out, err := ext.extract(context.Background(), job, []byte("not a pdf"))
	require.NoError(t, err)
	assert.Equal(t, core.StatusFailed, out.Status)
	assert.LessOrEqual(t, len([]rune(out.Error)), extract.MaxErrorLen)

	out, err = ext.extract(context.Background(), job, extracttest.PDF(extracttest.Text(70)))
	require.NoError(t, err)
	assert.True(t, out.Extracted())
}

func TestLoader_NeverClaimsPastQueueCapacity(t *testing.T) {
	const n = 25
	store := newStore(t)
	hydrate(t, store, storetest.Sources(n))

	work := make(chan core.Job, 4)
	l := &loader{
		store:        store,
		work:         work,
		pageSize:     3,
		pollInterval: 1,
		stats:        newStats(),
		logger:       slog.Default(),
	}
	done := make(chan error, 1)
	go func() { done <- l.run(context.Background()) }()

	var got []core.ID
	for job := range work {
		got = append(got, job.ID)
		c := counts(t, store)
		assert.LessOrEqual(t, c[core.StatusProcessing], len(got)+cap(work))
	}
	require.NoError(t, <-done)

	require.Len(t, got, n)
	for i, id := range got {
		assert.Equal(t, core.ID(i+1), id, "jobs are claimed in id order")
	}
	assert.Equal(t, n, counts(t, store)[core.StatusProcessing])
}

func TestLoader_SkipsJobsRequeuedDuringRun(t *testing.T) {
	store := newStore(t)
	hydrate(t, store, storetest.Sources(3))

	work := make(chan core.Job, 10)
	l := &loader{store: store, work: work, pageSize: 1, pollInterval: 1, stats: newStats(), logger: slog.Default()}

	done := make(chan error, 1)
	go func() { done <- l.run(context.Background()) }()

	var got []core.ID
	for job := range work {
		got = append(got, job.ID)
		// requeue immediately, as a dispatcher does when the backend is down
		require.NoError(t, store.Commit(context.Background(), core.Transition{ID: job.ID, Status: core.StatusPending}))
	}
	require.NoError(t, <-done)
	assert.Equal(t, []core.ID{1, 2, 3}, got)
}

func TestDispatcher_BatchesBySize(t *testing.T) {
	const n = 7
	store := newStore(t)
	hydrate(t, store, storetest.Sources(n))
	claimed, err := store.ClaimPending(context.Background(), n)
	require.NoError(t, err)

	files, err := columnar.NewWriter(t.TempDir())
	require.NoError(t, err)
	embedder := mock.NewMockEmbedder()
	d := &dispatcher{
		embedder:  embedder,
		batchSize: 3,
		policy:    retry.Policy{MaxAttempts: 1},
		writer: &batchWriter{
			files:  files,
			store:  store,
			policy: retry.Policy{MaxAttempts: 1},
			stats:  newStats(),
			logger: slog.Default(),
		},
		logger: slog.Default(),
	}

	results := make(chan core.Outcome, n+1)
	for _, job := range claimed {
		results <- core.Outcome{Job: job, Status: core.StatusCompleted, Text: fmt.Sprintf("text of %d", job.ID)}
	}
	close(results)

	require.NoError(t, d.run(context.Background(), results))

	var sizes []int
	for _, b := range embedder.Batches() {
		sizes = append(sizes, len(b))
	}
	assert.Equal(t, []int{3, 3, 1}, sizes)
	assert.Equal(t, n, counts(t, store)[core.StatusCompleted])
}

func TestBatchWriter_WriteFailureLeavesJobsProcessing(t *testing.T) {
	store := newStore(t)
	hydrate(t, store, storetest.Sources(3))
	_, err := store.ClaimPending(context.Background(), 3)
	require.NoError(t, err)

	dir := t.TempDir()
	files, err := columnar.NewWriter(dir)
	require.NoError(t, err)
	require.NoError(t, os.RemoveAll(dir))

	var logs bytes.Buffer
	stats := newStats()
	w := &batchWriter{
		files:  files,
		store:  store,
		policy: retry.Policy{MaxAttempts: 1},
		stats:  stats,
		logger: newBufferLogger(&logs),
	}
	rows := []columnar.Row{
		{ID: 1, Text: "one", Vector: []int8{1}},
		{ID: 2, Text: "two", Vector: []int8{2}},
	}
	carried := []core.Transition{{ID: 3, Status: core.StatusSkippedEmpty, Error: core.ErrTagEmpty}}

	require.NoError(t, w.persist(context.Background(), 0, rows, carried))

	c := counts(t, store)
	assert.Equal(t, 2, c[core.StatusProcessing], "embedded jobs wait for the orphan reset")
	assert.Equal(t, 1, c[core.StatusSkippedEmpty])
	assert.Equal(t, 1, stats.summary().WriteFailures)
	assert.Contains(t, logs.String(), "writing batch file failed")

	reset, err := store.ResetOrphans(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, reset)
}

func TestBatchWriter_FileExistsBeforeCommit(t *testing.T) {
	store := newStore(t)
	hydrate(t, store, storetest.Sources(1))
	_, err := store.ClaimPending(context.Background(), 1)
	require.NoError(t, err)

	dir := t.TempDir()
	files, err := columnar.NewWriter(dir)
	require.NoError(t, err)

	w := &batchWriter{
		files:  files,
		store:  &observingStore{JobStore: store, dir: dir, t: t},
		policy: retry.Policy{MaxAttempts: 1},
		stats:  newStats(),
		logger: slog.Default(),
	}
	require.NoError(t, w.persist(context.Background(), 0, []columnar.Row{{ID: 1, Text: "x", Vector: []int8{1}}}, nil))
	assert.Equal(t, 1, counts(t, store)[core.StatusCompleted])
}

func TestConfig_Validate(t *testing.T) {
	assert.NoError(t, DefaultConfig().Validate())

	tests := []struct {
		name   string
		modify func(*Config)
		want   error
	}{
		{"no downloaders", func(c *Config) { c.Downloaders = 0 }, ErrInvalidWorkerCount},
		{"no pool", func(c *Config) { c.ExtractorPoolSize = 0 }, ErrInvalidWorkerCount},
		{"no queue", func(c *Config) { c.WorkQueueSize = 0 }, ErrInvalidQueueSize},
		{"no page", func(c *Config) { c.PageSize = 0 }, ErrInvalidQueueSize},
		{"no batch", func(c *Config) { c.BatchSize = 0 }, ErrInvalidBatchSize},
		{"no poll", func(c *Config) { c.PollInterval = 0 }, ErrInvalidInterval},
		{"no timeout", func(c *Config) { c.DownloadTimeout = 0 }, ErrInvalidInterval},
		{"no size cap", func(c *Config) { c.MaxDocumentBytes = 0 }, ErrInvalidDocumentLimit},
		{"negative rate", func(c *Config) { c.RateLimit = -1 }, ErrInvalidRateLimit},
		{"rate without burst", func(c *Config) { c.RateLimit = 2; c.RateBurst = 0 }, ErrInvalidRateLimit},
		{"no output", func(c *Config) { c.OutputDir = "" }, ErrOutputDirRequired},
		{"bad limits", func(c *Config) { c.Limits.MaxTextLen = 0 }, extract.ErrInvalidLimits},
		{"bad policy", func(c *Config) { c.EmbedPolicy.MaxAttempts = 0 }, retry.ErrInvalidMaxAttempts},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.modify(&cfg)
			assert.ErrorIs(t, cfg.Validate(), tt.want)
		})
	}
}

// observingStore checks that a batch file is on disk before any commit.
type observingStore struct {
	storage.JobStore
	dir string
	t   *testing.T
}

func (s *observingStore) Commit(ctx context.Context, transitions ...core.Transition) error {
	files, err := columnar.ListBatches(s.dir)
	require.NoError(s.t, err)
	require.Len(s.t, files, 1, "batch file must exist before the commit")
	return s.JobStore.Commit(ctx, transitions...)
}
