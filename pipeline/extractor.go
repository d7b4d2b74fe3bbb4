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

	"github.com/panjf2000/ants/v2"
	"github.com/poiesic/docingest/core"
	"github.com/poiesic/docingest/extract"
)

// extractor runs text extraction on a bounded worker pool. Callers hand over
// the document bytes and wait for the outcome on a reply channel; the pool
// sees nothing but its inputs.
type extractor struct {
	pool   *ants.Pool
	limits extract.Limits
}

func newExtractor(size int, limits extract.Limits) (*extractor, error) {
	pool, err := ants.NewPool(size)
	if err != nil {
		return nil, err
	}
	return &extractor{pool: pool, limits: limits}, nil
}

// extract classifies data for job. Submit blocks while every worker is busy.
func (e *extractor) extract(ctx context.Context, job core.Job, data []byte) (core.Outcome, error) {
	reply := make(chan core.Outcome, 1)
	err := e.pool.Submit(func() {
		reply <- extract.Classify(job, data, e.limits)
	})
	if err != nil {
		return core.Outcome{
			Job:    job,
			Status: core.StatusFailed,
			Error:  core.Truncate(fmt.Sprintf("extraction: %v", err), e.limits.MaxErrorLen),
		}, nil
	}

	select {
	case out := <-reply:
		return out, nil
	case <-ctx.Done():
		return core.Outcome{}, ctx.Err()
	}
}

func (e *extractor) release() {
	e.pool.Release()
}
