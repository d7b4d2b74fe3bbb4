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

package storage

import (
	"fmt"

	"github.com/mus-format/mus-go/ord"
	"github.com/mus-format/mus-go/varint"
	"github.com/poiesic/docingest/core"
)

// JobMUS is the MUS serializer for core.Job.
// Field order: ID, URL, Code, Status, Error.
var JobMUS = jobMUS{}

type jobMUS struct{}

func (s jobMUS) Marshal(v core.Job, bs []byte) (n int) {
	n = varint.Uint64.Marshal(uint64(v.ID), bs)
	n += ord.String.Marshal(v.URL, bs[n:])
	n += ord.String.Marshal(v.Code, bs[n:])
	n += ord.String.Marshal(string(v.Status), bs[n:])
	return n + ord.String.Marshal(v.Error, bs[n:])
}

func (s jobMUS) Unmarshal(bs []byte) (v core.Job, n int, err error) {
	id, n, err := varint.Uint64.Unmarshal(bs)
	if err != nil {
		return
	}
	v.ID = core.ID(id)
	var n1 int
	v.URL, n1, err = ord.String.Unmarshal(bs[n:])
	n += n1
	if err != nil {
		return
	}
	v.Code, n1, err = ord.String.Unmarshal(bs[n:])
	n += n1
	if err != nil {
		return
	}
	var status string
	status, n1, err = ord.String.Unmarshal(bs[n:])
	n += n1
	if err != nil {
		return
	}
	v.Status = core.JobStatus(status)
	v.Error, n1, err = ord.String.Unmarshal(bs[n:])
	n += n1
	return
}

func (s jobMUS) Size(v core.Job) (size int) {
	size = varint.Uint64.Size(uint64(v.ID))
	size += ord.String.Size(v.URL)
	size += ord.String.Size(v.Code)
	size += ord.String.Size(string(v.Status))
	return size + ord.String.Size(v.Error)
}

func (s jobMUS) Skip(bs []byte) (n int, err error) {
	n, err = varint.Uint64.Skip(bs)
	if err != nil {
		return
	}
	for range 4 {
		var n1 int
		n1, err = ord.String.Skip(bs[n:])
		n += n1
		if err != nil {
			return
		}
	}
	return
}

// MarshalJob serializes a Job to bytes.
func MarshalJob(job *core.Job) []byte {
	buf := make([]byte, JobMUS.Size(*job))
	JobMUS.Marshal(*job, buf)
	return buf
}

// UnmarshalJob deserializes a Job from bytes.
func UnmarshalJob(data []byte) (*core.Job, error) {
	job, _, err := JobMUS.Unmarshal(data)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrSerializationFailed, err)
	}
	if !job.Status.Valid() {
		return nil, fmt.Errorf("%w: unknown status %q", ErrSerializationFailed, job.Status)
	}
	return &job, nil
}

// MarshalCount serializes a counter value.
func MarshalCount(n int) []byte {
	buf := make([]byte, varint.Uint64.Size(uint64(n)))
	varint.Uint64.Marshal(uint64(n), buf)
	return buf
}

// UnmarshalCount deserializes a counter value.
func UnmarshalCount(data []byte) (int, error) {
	n, _, err := varint.Uint64.Unmarshal(data)
	if err != nil {
		return 0, fmt.Errorf("%w: %w", ErrSerializationFailed, err)
	}
	return int(n), nil
}
