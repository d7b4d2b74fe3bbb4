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
	"sync"

	"github.com/poiesic/docingest/core"
	"github.com/poiesic/docingest/metrics"
)

// Queue names used in stats and metrics.
const (
	queueWork    = "work"
	queueResults = "results"
)

// Stats collects counters for one run. It is safe for concurrent use.
type Stats struct {
	mu            sync.Mutex
	resolved      core.StatusCounts
	downloads     int
	batches       int
	writeFailures int
	highWater     map[string]int
}

func newStats() *Stats {
	return &Stats{
		resolved:  make(core.StatusCounts),
		highWater: make(map[string]int),
	}
}

func (s *Stats) resolve(transitions []core.Transition) {
	counts := make(map[core.JobStatus]int)
	for _, t := range transitions {
		counts[t.Status]++
	}

	s.mu.Lock()
	for status, n := range counts {
		s.resolved[status] += n
	}
	s.mu.Unlock()

	for status, n := range counts {
		metrics.IncreaseJobsResolved(status.String(), n)
	}
}

func (s *Stats) downloaded() {
	s.mu.Lock()
	s.downloads++
	s.mu.Unlock()
}

func (s *Stats) batchWritten() {
	s.mu.Lock()
	s.batches++
	s.mu.Unlock()
	metrics.IncreaseBatchesWritten()
}

func (s *Stats) batchFailed() {
	s.mu.Lock()
	s.writeFailures++
	s.mu.Unlock()
}

// observeQueue records the current depth of a queue.
func (s *Stats) observeQueue(name string, depth int) {
	s.mu.Lock()
	if depth > s.highWater[name] {
		s.highWater[name] = depth
	}
	s.mu.Unlock()
	metrics.UpdateQueueDepth(name, depth)
}

// Summary describes a finished run.
type Summary struct {
	RunID string
	// Reset is the number of orphaned jobs returned to PENDING before the run.
	Reset int
	// Resolved counts committed transitions by target status.
	Resolved core.StatusCounts
	// Downloaded is the number of documents fetched successfully.
	Downloaded int
	Batches    int
	// WriteFailures counts batches whose file could not be written; their
	// embedded jobs were left PROCESSING.
	WriteFailures  int
	MaxWorkDepth   int
	MaxResultDepth int
	Counts         core.StatusCounts
}

func (s *Stats) summary() Summary {
	s.mu.Lock()
	defer s.mu.Unlock()

	resolved := make(core.StatusCounts, len(s.resolved))
	for status, n := range s.resolved {
		resolved[status] = n
	}
	return Summary{
		Resolved:       resolved,
		Downloaded:     s.downloads,
		Batches:        s.batches,
		WriteFailures:  s.writeFailures,
		MaxWorkDepth:   s.highWater[queueWork],
		MaxResultDepth: s.highWater[queueResults],
	}
}
