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
	"fmt"
	"log/slog"
	"time"

	"github.com/poiesic/docingest/core"
	"github.com/poiesic/docingest/retry"
	"github.com/poiesic/docingest/storage"
)

// loader claims pending jobs into the work queue. It is the only producer of
// the queue, so a claim never exceeds the free space observed before it and a
// push never blocks.
type loader struct {
	store        storage.JobStore
	work         chan<- core.Job
	pageSize     int
	pollInterval time.Duration
	stats        *Stats
	logger       *slog.Logger
}

// run claims until nothing is pending, then closes the work queue.
// Jobs are claimed in ID order past a cursor so that jobs requeued during this
// run are left for the next one.
func (l *loader) run(ctx context.Context) error {
	defer close(l.work)

	var (
		cursor  core.ID
		claimed int
	)
	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		free := cap(l.work) - len(l.work)
		if free == 0 {
			if err := retry.Sleep(ctx, l.pollInterval); err != nil {
				return err
			}
			continue
		}

		jobs, err := l.store.ClaimPendingAfter(ctx, cursor, min(l.pageSize, free))
		if err != nil {
			return fmt.Errorf("claiming jobs: %w", err)
		}
		if len(jobs) == 0 {
			l.logger.Debug("no pending jobs left", "claimed", claimed)
			return nil
		}

		for _, job := range jobs {
			l.work <- job
		}
		cursor = jobs[len(jobs)-1].ID
		claimed += len(jobs)
		l.stats.observeQueue(queueWork, len(l.work))
		l.logger.Debug("claimed jobs", "count", len(jobs), "cursor", cursor)
	}
}
