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
	"io"
	"log/slog"
	"net/http"
	"sync/atomic"

	"github.com/poiesic/docingest/core"
	"github.com/poiesic/docingest/metrics"
	"github.com/poiesic/docingest/retry"
	"golang.org/x/time/rate"
)

// StatusError reports a non-200 download response.
type StatusError struct {
	Code int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("http status %d", e.Code)
}

// isThrottled reports whether err means the remote side wants us to slow down.
func isThrottled(err error) bool {
	var se *StatusError
	if !errors.As(err, &se) {
		return false
	}
	return se.Code == http.StatusTooManyRequests || se.Code == http.StatusForbidden
}

// downloader fetches documents for claimed jobs and hands them to the
// extractor. Every job taken from the work queue produces exactly one outcome
// unless the run is canceled.
type downloader struct {
	client     *http.Client
	limiter    *rate.Limiter
	policy     retry.Policy
	userAgents []string
	nextAgent  atomic.Uint64
	maxBytes   int64
	maxErrLen  int
	extractor  *extractor
	stats      *Stats
	logger     *slog.Logger
}

// run consumes work until it is closed.
func (d *downloader) run(ctx context.Context, worker int, work <-chan core.Job, results chan<- core.Outcome) {
	logger := d.logger.With("worker", worker)
	for job := range work {
		if ctx.Err() != nil {
			// drain so the loader never stalls; the job stays PROCESSING
			continue
		}
		out, err := d.process(ctx, job)
		if err != nil {
			logger.Debug("job abandoned", "job", job.ID, "err", err)
			continue
		}
		select {
		case results <- out:
			d.stats.observeQueue(queueResults, len(results))
		case <-ctx.Done():
		}
	}
}

func (d *downloader) process(ctx context.Context, job core.Job) (core.Outcome, error) {
	data, err := d.download(ctx, job)
	if err != nil {
		if ctx.Err() != nil {
			return core.Outcome{}, ctx.Err()
		}
		d.logger.Warn("download failed", "job", job.ID, "url", job.URL, "err", err)
		reason := err.Error()
		if !errors.Is(err, ErrDocumentTooLarge) {
			reason = fmt.Sprintf("%s: %v", core.ErrTagMaxRetries, err)
		}
		return core.Outcome{
			Job:    job,
			Status: core.StatusFailed,
			Error:  core.Truncate(reason, d.maxErrLen),
		}, nil
	}
	d.stats.downloaded()
	return d.extractor.extract(ctx, job, data)
}

// download fetches job.URL under the retry policy.
func (d *downloader) download(ctx context.Context, job core.Job) ([]byte, error) {
	var data []byte
	err := d.policy.Do(ctx, func(attempt int) error {
		if d.limiter != nil {
			if err := d.limiter.Wait(ctx); err != nil {
				return retry.Permanent(err)
			}
		}
		body, err := d.fetch(ctx, job.URL)
		switch {
		case err == nil:
			metrics.IncreaseDownloadAttempts(metrics.DownloadOK)
			data = body
			return nil
		case isThrottled(err):
			metrics.IncreaseDownloadAttempts(metrics.DownloadThrottled)
		case errors.Is(err, ErrDocumentTooLarge):
			metrics.IncreaseDownloadAttempts(metrics.DownloadHTTPError)
			return retry.Permanent(err)
		case errors.As(err, new(*StatusError)):
			metrics.IncreaseDownloadAttempts(metrics.DownloadHTTPError)
		default:
			metrics.IncreaseDownloadAttempts(metrics.DownloadNetError)
		}
		d.logger.Debug("download attempt failed", "job", job.ID, "attempt", attempt, "err", err)
		return err
	})
	return data, err
}

func (d *downloader) fetch(ctx context.Context, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, retry.Permanent(err)
	}
	req.Header.Set("User-Agent", d.userAgent())
	req.Header.Set("Accept", "application/pdf,*/*;q=0.8")

	resp, err := d.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))
		return nil, &StatusError{Code: resp.StatusCode}
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, d.maxBytes+1))
	if err != nil {
		return nil, err
	}
	if int64(len(body)) > d.maxBytes {
		return nil, fmt.Errorf("%w: more than %d bytes", ErrDocumentTooLarge, d.maxBytes)
	}
	return body, nil
}

// userAgent rotates through the configured user agents.
func (d *downloader) userAgent() string {
	if len(d.userAgents) == 0 {
		return ""
	}
	n := d.nextAgent.Add(1) - 1
	return d.userAgents[n%uint64(len(d.userAgents))]
}
