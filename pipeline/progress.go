package pipeline

import (
	"log/slog"
	"sync"
	"time"
)

// Progress tracks resolved jobs against the size of the job table and logs
// throughput. It starts from the number of jobs already resolved by earlier
// runs, so a resumed run reports overall completion.
type Progress struct {
	logger         *slog.Logger
	total          int
	initial        int
	current        int
	reportInterval int
	lastReported   int
	startTime      time.Time
	started        bool
	mu             sync.Mutex
}

// NewProgress creates a tracker.
// total: number of jobs in the store
// done: jobs already resolved before this run
// reportInterval: log every N resolved jobs
func NewProgress(logger *slog.Logger, total, done, reportInterval int) *Progress {
	if logger == nil {
		logger = slog.Default()
	}
	if reportInterval < 1 {
		reportInterval = 1
	}
	return &Progress{
		logger:         logger,
		total:          total,
		initial:        done,
		reportInterval: reportInterval,
	}
}

// Start begins tracking progress.
func (p *Progress) Start() {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.startTime = time.Now()
	p.started = true
	p.current = p.initial
	p.lastReported = p.initial
}

// Increment records delta newly resolved jobs.
func (p *Progress) Increment(delta int) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if !p.started {
		return
	}

	p.current += delta
	if p.current > p.total {
		p.current = p.total
	}

	if p.current-p.lastReported >= p.reportInterval {
		p.report("progress")
		p.lastReported = p.current
	}
}

// Finish logs the final progress line.
func (p *Progress) Finish() {
	p.mu.Lock()
	defer p.mu.Unlock()

	if !p.started {
		return
	}
	p.report("run finished")
}

// Current returns the number of resolved jobs, including earlier runs.
func (p *Progress) Current() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.current
}

// Elapsed returns the time elapsed since Start was called.
func (p *Progress) Elapsed() time.Duration {
	p.mu.Lock()
	defer p.mu.Unlock()

	if !p.started {
		return 0
	}
	return time.Since(p.startTime)
}

// report logs the current progress. Must be called with lock held.
func (p *Progress) report(msg string) {
	elapsed := time.Since(p.startTime)
	rate := 0.0
	if elapsed > 0 {
		rate = float64(p.current-p.initial) / elapsed.Seconds()
	}

	percentage := 0.0
	if p.total > 0 {
		percentage = float64(p.current) / float64(p.total) * 100.0
	}

	p.logger.Info(msg,
		"done", p.current,
		"total", p.total,
		"percent", percentage,
		"jobsPerSec", rate)
}
