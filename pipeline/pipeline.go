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

package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/google/uuid"
	"github.com/poiesic/docingest/ai"
	"github.com/poiesic/docingest/columnar"
	"github.com/poiesic/docingest/core"
	"github.com/poiesic/docingest/metrics"
	"github.com/poiesic/docingest/storage"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"
)

// Pipeline downloads, extracts and embeds every pending job in a store.
type Pipeline struct {
	store     storage.JobStore
	embedders []ai.Embedder
	config    Config
	client    *http.Client
	extractor *extractor
	logger    *slog.Logger
}

// Option configures a Pipeline.
type Option func(*Pipeline) error

// WithConfig replaces the whole configuration.
func WithConfig(config Config) Option {
	return func(p *Pipeline) error {
		p.config = config
		return nil
	}
}

// WithPoolSize sets the extractor pool size.
// Default is runtime.NumCPU().
func WithPoolSize(size int) Option {
	return func(p *Pipeline) error {
		if size < 1 {
			size = 1
		}
		p.config.ExtractorPoolSize = size
		return nil
	}
}

// WithOutputDir sets the directory batch files are written to.
func WithOutputDir(dir string) Option {
	return func(p *Pipeline) error {
		p.config.OutputDir = dir
		return nil
	}
}

// WithHTTPClient sets the client used for downloads.
// Default is a client with Config.DownloadTimeout.
func WithHTTPClient(client *http.Client) Option {
	return func(p *Pipeline) error {
		p.client = client
		return nil
	}
}

// WithLogger sets a custom logger.
// Default is slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(p *Pipeline) error {
		if logger == nil {
			logger = slog.Default()
		}
		p.logger = logger
		return nil
	}
}

// NewPipeline creates a pipeline that runs one dispatcher per embedder of provider.
func NewPipeline(store storage.JobStore, provider ai.AIProvider, opts ...Option) (*Pipeline, error) {
	if store == nil {
		return nil, ErrStoreRequired
	}
	if provider == nil {
		return nil, ErrAIProviderRequired
	}
	embedders := provider.Embedders()
	if len(embedders) == 0 {
		return nil, ErrNoEmbedders
	}

	p := &Pipeline{
		store:     store,
		embedders: embedders,
		config:    DefaultConfig(),
		logger:    slog.Default(),
	}
	for _, opt := range opts {
		if err := opt(p); err != nil {
			return nil, err
		}
	}
	if err := p.config.Validate(); err != nil {
		return nil, err
	}
	for i, e := range embedders {
		limiter, ok := e.(ai.BatchLimiter)
		if !ok {
			continue
		}
		if limit := limiter.MaxBatchSize(); limit > 0 && p.config.BatchSize > limit {
			return nil, fmt.Errorf("%w: embedder %d accepts %d inputs, batch size is %d", ErrBatchTooLarge, i, limit, p.config.BatchSize)
		}
	}
	if p.client == nil {
		p.client = &http.Client{Timeout: p.config.DownloadTimeout}
	}

	ext, err := newExtractor(p.config.ExtractorPoolSize, p.config.Limits)
	if err != nil {
		return nil, err
	}
	p.extractor = ext
	return p, nil
}

// Config returns the effective configuration.
func (p *Pipeline) Config() Config {
	return p.config
}

// Run resets orphaned jobs, then processes every pending job once.
// Jobs requeued during the run are left PENDING for the next run.
// Per-job failures are recorded in the store; the returned error reports
// store failures and cancellation only, after every stage has stopped.
func (p *Pipeline) Run(ctx context.Context) (Summary, error) {
	runID := uuid.NewString()
	base := p.logger.With("run", runID)
	logger := base.With("component", "pipeline")

	reset, err := p.store.ResetOrphans(ctx)
	if err != nil {
		return Summary{RunID: runID}, fmt.Errorf("resetting orphaned jobs: %w", err)
	}
	if reset > 0 {
		logger.Info("orphaned jobs returned to pending", "count", reset)
	}

	counts, err := p.store.StatusCounts(ctx)
	if err != nil {
		return Summary{RunID: runID, Reset: reset}, err
	}
	done := counts[core.StatusCompleted] + counts[core.StatusFailed] + counts[core.StatusSkippedEmpty]
	logger.Info("starting run",
		"pending", counts[core.StatusPending],
		"done", done,
		"total", counts.Total(),
		"embedders", len(p.embedders))

	files, err := columnar.NewWriter(p.config.OutputDir, columnar.WithLogger(base))
	if err != nil {
		return Summary{RunID: runID, Reset: reset}, err
	}

	var limiter *rate.Limiter
	if p.config.RateLimit > 0 {
		limiter = rate.NewLimiter(rate.Limit(p.config.RateLimit), p.config.RateBurst)
	}

	stats := newStats()
	progress := NewProgress(logger, counts.Total(), done, p.config.ReportInterval)
	progress.Start()

	work := make(chan core.Job, p.config.WorkQueueSize)
	results := make(chan core.Outcome, p.config.ResultQueueSize)

	ldr := &loader{
		store:        p.store,
		work:         work,
		pageSize:     p.config.PageSize,
		pollInterval: p.config.PollInterval,
		stats:        stats,
		logger:       base.With("component", "loader"),
	}
	dl := &downloader{
		client:     p.client,
		limiter:    limiter,
		policy:     p.config.DownloadPolicy,
		userAgents: p.config.UserAgents,
		maxBytes:   p.config.MaxDocumentBytes,
		maxErrLen:  p.config.Limits.MaxErrorLen,
		extractor:  p.extractor,
		stats:      stats,
		logger:     base.With("component", "downloader"),
	}
	bw := &batchWriter{
		files:    files,
		store:    p.store,
		policy:   p.config.CommitPolicy,
		stats:    stats,
		progress: progress,
		logger:   base.With("component", "batch-writer"),
	}

	var g errgroup.Group
	g.Go(func() error {
		return ldr.run(ctx)
	})

	var downloaders errgroup.Group
	for i := 0; i < p.config.Downloaders; i++ {
		downloaders.Go(func() error {
			dl.run(ctx, i, work, results)
			return nil
		})
	}
	g.Go(func() error {
		_ = downloaders.Wait()
		close(results)
		return nil
	})

	dispatchErrs := make([]error, len(p.embedders))
	var dispatchers errgroup.Group
	for i, embedder := range p.embedders {
		d := &dispatcher{
			node:      i,
			embedder:  embedder,
			batchSize: p.config.BatchSize,
			policy:    p.config.EmbedPolicy,
			writer:    bw,
			logger:    base.With("component", "dispatcher", "node", i),
		}
		dispatchers.Go(func() error {
			dispatchErrs[i] = d.run(ctx, results)
			return nil
		})
	}

	_ = dispatchers.Wait()
	loadErr := g.Wait()
	progress.Finish()

	summary := stats.summary()
	summary.RunID = runID
	summary.Reset = reset

	runErr := errors.Join(loadErr, errors.Join(dispatchErrs...))
	if final, err := p.store.StatusCounts(context.WithoutCancel(ctx)); err == nil {
		summary.Counts = final
		for _, status := range core.AllStatuses {
			metrics.UpdateJobStatusCount(status.String(), final[status])
		}
	}

	logger.Info("run complete",
		"downloaded", summary.Downloaded,
		"batches", summary.Batches,
		"completed", summary.Resolved[core.StatusCompleted],
		"failed", summary.Resolved[core.StatusFailed],
		"skipped", summary.Resolved[core.StatusSkippedEmpty],
		"requeued", summary.Resolved[core.StatusPending],
		"writeFailures", summary.WriteFailures,
		"elapsed", progress.Elapsed())
	if runErr != nil {
		logger.Error("run finished with errors", "err", runErr)
	}
	return summary, runErr
}

// Release releases resources including the extractor pool.
// The pipeline should not be used after calling Release.
func (p *Pipeline) Release() {
	if p.extractor != nil {
		p.extractor.release()
	}
}
