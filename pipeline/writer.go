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

	"github.com/poiesic/docingest/columnar"
	"github.com/poiesic/docingest/core"
	"github.com/poiesic/docingest/retry"
	"github.com/poiesic/docingest/storage"
)

// batchWriter makes embedded rows durable and then commits job transitions.
type batchWriter struct {
	files    *columnar.Writer
	store    storage.JobStore
	policy   retry.Policy
	stats    *Stats
	progress *Progress
	logger   *slog.Logger
}

// persist writes rows as one batch file and commits them as COMPLETED together
// with the other transitions. If the file cannot be written the embedded jobs
// get no transition and stay PROCESSING until the next orphan reset; the other
// transitions are still committed.
func (w *batchWriter) persist(ctx context.Context, node int, rows []columnar.Row, transitions []core.Transition) error {
	if len(rows) > 0 {
		file, err := w.files.Write(node, rows)
		if err != nil {
			w.stats.batchFailed()
			w.logger.Error("writing batch file failed, leaving jobs for orphan reset", "node", node, "jobs", len(rows), "err", err)
		} else {
			w.stats.batchWritten()
			w.logger.Info("batch written", "node", node, "file", file.Name, "rows", file.Rows)
			for _, row := range rows {
				transitions = append(transitions, core.Transition{ID: core.ID(row.ID), Status: core.StatusCompleted})
			}
		}
	}
	if len(transitions) == 0 {
		return nil
	}

	err := w.policy.Do(ctx, func(attempt int) error {
		err := w.store.Commit(ctx, transitions...)
		if err != nil && !errors.Is(err, storage.ErrStoreUnavailable) {
			return retry.Permanent(err)
		}
		return err
	})
	if err != nil {
		w.logger.Error("committing batch failed", "node", node, "jobs", len(transitions), "err", err)
		return fmt.Errorf("committing %d transitions: %w", len(transitions), err)
	}

	w.stats.resolve(transitions)
	if w.progress != nil {
		resolved := 0
		for _, t := range transitions {
			if t.Status.Terminal() {
				resolved++
			}
		}
		w.progress.Increment(resolved)
	}
	return nil
}
