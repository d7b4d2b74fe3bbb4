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

	"github.com/poiesic/docingest/ai"
	"github.com/poiesic/docingest/columnar"
	"github.com/poiesic/docingest/core"
	"github.com/poiesic/docingest/metrics"
	"github.com/poiesic/docingest/retry"
)

// dispatcher batches outcomes from the shared result queue, embeds the
// extracted ones on its own endpoint and passes the batch to the writer.
type dispatcher struct {
	node      int
	embedder  ai.Embedder
	batchSize int
	policy    retry.Policy
	writer    *batchWriter
	logger    *slog.Logger
}

// batch holds the outcomes of one dispatch.
type batch struct {
	extracted []core.Outcome
	carried   []core.Outcome
}

func (b *batch) add(out core.Outcome) {
	if out.Extracted() {
		b.extracted = append(b.extracted, out)
		return
	}
	b.carried = append(b.carried, out)
}

func (b *batch) empty() bool {
	return len(b.extracted) == 0 && len(b.carried) == 0
}

// run consumes results until the queue is closed, flushing whenever the batch
// reaches its target size and once more for the remainder.
func (d *dispatcher) run(ctx context.Context, results <-chan core.Outcome) error {
	var (
		current batch
		errs    []error
	)
	flush := func() {
		if current.empty() {
			return
		}
		if err := d.dispatch(ctx, current); err != nil {
			errs = append(errs, err)
		}
		current = batch{}
	}

	for out := range results {
		current.add(out)
		if len(current.extracted) >= d.batchSize || len(current.carried) >= d.batchSize {
			flush()
		}
	}
	flush()
	return errors.Join(errs...)
}

// dispatch decides the status of every job in b and commits it.
// Only store failures are returned.
func (d *dispatcher) dispatch(ctx context.Context, b batch) error {
	if ctx.Err() != nil {
		return nil
	}

	transitions := make([]core.Transition, 0, len(b.extracted)+len(b.carried))
	for _, out := range b.carried {
		transitions = append(transitions, out.Transition())
	}

	var rows []columnar.Row
	if len(b.extracted) > 0 {
		vectors, err := d.embed(ctx, b.extracted)
		switch {
		case ctx.Err() != nil:
			return nil
		case errors.Is(err, ai.ErrContextLengthExceeded):
			d.logger.Warn("batch exceeds backend context length", "jobs", len(b.extracted), "err", err)
			for _, out := range b.extracted {
				transitions = append(transitions, core.Transition{ID: out.Job.ID, Status: core.StatusFailed, Error: core.ErrTagContextLength})
			}
		case err != nil:
			d.logger.Warn("embedding backend unavailable, requeueing batch", "jobs", len(b.extracted), "err", err)
			for _, out := range b.extracted {
				transitions = append(transitions, core.Transition{ID: out.Job.ID, Status: core.StatusPending})
			}
		default:
			rows = make([]columnar.Row, len(b.extracted))
			for i, out := range b.extracted {
				rows[i] = columnar.Row{
					ID:     int64(out.Job.ID),
					URL:    out.Job.URL,
					Code:   out.Job.Code,
					Text:   out.Text,
					Vector: columnar.Quantize(vectors[i]),
				}
			}
		}
	}

	return d.writer.persist(ctx, d.node, rows, transitions)
}

// embed sends every extracted text in one request, retrying transient failures.
func (d *dispatcher) embed(ctx context.Context, extracted []core.Outcome) ([][]float32, error) {
	texts := make([]string, len(extracted))
	for i, out := range extracted {
		texts[i] = out.Text
	}

	var vectors [][]float32
	err := d.policy.Do(ctx, func(attempt int) error {
		v, err := d.embedder.EmbedTexts(ctx, texts)
		switch {
		case errors.Is(err, ai.ErrContextLengthExceeded):
			metrics.IncreaseEmbedRequests(metrics.EmbedContextLength)
			return retry.Permanent(err)
		case err != nil:
			metrics.IncreaseEmbedRequests(metrics.EmbedUnavailable)
			return err
		case len(v) != len(texts):
			metrics.IncreaseEmbedRequests(metrics.EmbedUnavailable)
			return fmt.Errorf("%w: %w: got %d vectors for %d texts", ai.ErrBackendUnavailable, ai.ErrEmbeddingCountMismatch, len(v), len(texts))
		}
		metrics.IncreaseEmbedRequests(metrics.EmbedOK)
		vectors = v
		return nil
	})
	return vectors, err
}
