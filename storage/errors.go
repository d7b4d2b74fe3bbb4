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

import "errors"

var (
	// ErrNotFound indicates that the requested record was not found.
	ErrNotFound = errors.New("record not found")

	// ErrAlreadyHydrated indicates that hydration was requested against a store that already holds jobs.
	ErrAlreadyHydrated = errors.New("job store already hydrated")

	// ErrStoreUnavailable indicates that storage contention outlasted the retry budget.
	ErrStoreUnavailable = errors.New("job store unavailable")

	// ErrInvalidTransition indicates a transition of a job that is not PROCESSING,
	// or to a status that cannot be committed.
	ErrInvalidTransition = errors.New("invalid job transition")

	// ErrStorageClosed indicates that the storage backend is closed.
	ErrStorageClosed = errors.New("storage is closed")

	// ErrSerializationFailed indicates a serialization/deserialization failure.
	ErrSerializationFailed = errors.New("serialization failed")
)
