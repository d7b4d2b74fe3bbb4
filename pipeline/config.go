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
	"runtime"
	"time"

	"github.com/poiesic/docingest/extract"
	"github.com/poiesic/docingest/retry"
)

// DefaultUserAgents are rotated across download attempts.
var DefaultUserAgents = []string{
	"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0.0.0 Safari/537.36",
	"Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/605.1.15 (KHTML, like Gecko) Version/17.4 Safari/605.1.15",
	"Mozilla/5.0 (X11; Linux x86_64; rv:125.0) Gecko/20100101 Firefox/125.0",
	"Mozilla/5.0 (Windows NT 10.0; Win64; x64; rv:125.0) Gecko/20100101 Firefox/125.0",
}

// Config holds the tuning knobs of a pipeline run.
type Config struct {
	// Downloaders is the number of concurrent download workers.
	Downloaders int
	// ExtractorPoolSize is the number of text extraction workers.
	ExtractorPoolSize int

	// WorkQueueSize bounds the claimed jobs waiting for a downloader.
	WorkQueueSize int
	// ResultQueueSize bounds the outcomes waiting for a dispatcher.
	ResultQueueSize int
	// PageSize is the most jobs the loader claims at once.
	PageSize int
	// PollInterval is how long the loader waits when the work queue is full.
	PollInterval time.Duration

	// BatchSize is the number of extracted documents embedded per request.
	BatchSize int
	Limits    extract.Limits

	DownloadTimeout  time.Duration
	MaxDocumentBytes int64
	UserAgents       []string
	// RateLimit caps download attempts per second across all workers. Zero disables it.
	RateLimit float64
	RateBurst int

	DownloadPolicy retry.Policy
	EmbedPolicy    retry.Policy
	// CommitPolicy retries batch commits that the store reports as unavailable.
	CommitPolicy retry.Policy

	// OutputDir receives the batch files.
	OutputDir string
	// ReportInterval is the number of resolved jobs between progress log lines.
	ReportInterval int
}

// DefaultConfig returns a Config with default values.
func DefaultConfig() Config {
	poolSize := runtime.NumCPU()
	if poolSize < 1 {
		poolSize = 1
	}
	return Config{
		Downloaders:       8,
		ExtractorPoolSize: poolSize,
		WorkQueueSize:     200,
		ResultQueueSize:   100,
		PageSize:          100,
		PollInterval:      500 * time.Millisecond,
		BatchSize:         50,
		Limits:            extract.DefaultLimits(),
		DownloadTimeout:   30 * time.Second,
		MaxDocumentBytes:  64 << 20,
		UserAgents:        DefaultUserAgents,
		RateBurst:         1,
		DownloadPolicy:    retry.DownloadPolicy(isThrottled),
		EmbedPolicy:       retry.EmbedPolicy(),
		CommitPolicy:      retry.StorePolicy(),
		OutputDir:         "output",
		ReportInterval:    100,
	}
}

// Validate checks the configuration for consistency.
func (c Config) Validate() error {
	if c.Downloaders < 1 || c.ExtractorPoolSize < 1 {
		return ErrInvalidWorkerCount
	}
	if c.WorkQueueSize < 1 || c.ResultQueueSize < 1 || c.PageSize < 1 {
		return ErrInvalidQueueSize
	}
	if c.BatchSize < 1 {
		return ErrInvalidBatchSize
	}
	if c.PollInterval <= 0 || c.DownloadTimeout <= 0 {
		return ErrInvalidInterval
	}
	if c.MaxDocumentBytes <= 0 {
		return ErrInvalidDocumentLimit
	}
	if c.RateLimit < 0 || (c.RateLimit > 0 && c.RateBurst < 1) {
		return ErrInvalidRateLimit
	}
	if c.OutputDir == "" {
		return ErrOutputDirRequired
	}
	if err := c.Limits.Validate(); err != nil {
		return err
	}
	for _, p := range []retry.Policy{c.DownloadPolicy, c.EmbedPolicy, c.CommitPolicy} {
		if err := p.Validate(); err != nil {
			return err
		}
	}
	return nil
}
