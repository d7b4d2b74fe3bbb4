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

package core

import (
	"encoding/binary"

	"github.com/go-crypt/x/blake2b"
)

// ID is a unique identifier for a job.
// Job IDs are assigned from the position of the source in the hydration list, starting at 1.
type ID uint64

// IDFromContent generates a deterministic ID from text content using BLAKE2b hashing.
// This ensures that identical content produces identical IDs.
func IDFromContent(text string) ID {
	h, _ := blake2b.New(8, nil) // 8 bytes = 64 bits
	h.Write([]byte(text))
	sum := h.Sum(nil)
	return ID(binary.LittleEndian.Uint64(sum))
}

// JobStatus is the lifecycle state of a job.
type JobStatus string

const (
	// StatusPending marks a job waiting to be claimed.
	StatusPending JobStatus = "PENDING"
	// StatusProcessing marks a job claimed by a running pipeline.
	StatusProcessing JobStatus = "PROCESSING"
	// StatusCompleted marks a job whose vector has been written to a batch file.
	StatusCompleted JobStatus = "COMPLETED"
	// StatusFailed marks a job that cannot be processed without operator action.
	StatusFailed JobStatus = "FAILED"
	// StatusSkippedEmpty marks a document with no extractable text.
	StatusSkippedEmpty JobStatus = "SKIPPED_EMPTY"
)

// AllStatuses lists every status in lifecycle order.
var AllStatuses = []JobStatus{
	StatusPending,
	StatusProcessing,
	StatusCompleted,
	StatusFailed,
	StatusSkippedEmpty,
}

// Valid reports whether s is a known status.
func (s JobStatus) Valid() bool {
	switch s {
	case StatusPending, StatusProcessing, StatusCompleted, StatusFailed, StatusSkippedEmpty:
		return true
	}
	return false
}

// Terminal reports whether s is a final outcome that is never retried.
func (s JobStatus) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed || s == StatusSkippedEmpty
}

func (s JobStatus) String() string {
	return string(s)
}

// Short error tags recorded on jobs.
const (
	ErrTagMaxRetries    = "max retries"
	ErrTagContextLength = "context_length_exceeded"
	ErrTagEmpty         = "empty"
)

// Source is one entry of the external priority list consumed at hydration time.
type Source struct {
	URL  string
	Code string // domain identifier, e.g. a stock code
}

// Job is a unit of work: a document URL to download, parse and embed.
type Job struct {
	ID     ID
	URL    string
	Code   string
	Status JobStatus
	Error  string // empty unless the last transition recorded a reason
}

// Transition moves a claimed job to its next status.
type Transition struct {
	ID     ID
	Status JobStatus
	Error  string
}

// Outcome is the in-memory result of downloading and extracting one job.
// Only outcomes with Status == StatusCompleted carry text; they become COMPLETED
// once their batch has been written.
type Outcome struct {
	Job    Job
	Text   string
	Status JobStatus
	Error  string
}

// Extracted reports whether the outcome holds text ready for embedding.
func (o Outcome) Extracted() bool {
	return o.Status == StatusCompleted
}

// Transition returns the job status change described by the outcome.
func (o Outcome) Transition() Transition {
	return Transition{ID: o.Job.ID, Status: o.Status, Error: o.Error}
}

// StatusCounts holds the number of jobs per status.
type StatusCounts map[JobStatus]int

// Total returns the sum over all statuses.
func (c StatusCounts) Total() int {
	total := 0
	for _, n := range c {
		total += n
	}
	return total
}
