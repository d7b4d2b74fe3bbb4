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

// Package storage defines the job store contract for docingest.
//
// The JobStore interface decouples the pipeline from the storage engine so that
// the BadgerDB backend (the default, see storage/badger) and the SQLite backend
// (storage/sqlite) can be used interchangeably.
//
// # Constructor Return Type Pattern
//
// Public backend constructors return the storage.JobStore interface:
//
//	store, err := badger.NewJobStore(path)  // returns storage.JobStore
//
// Internal helpers (OpenBackend, newJobStore, etc.) may return concrete types
// since they're only used within the implementation package.
//
// # Lifecycle
//
// Jobs are created once by Hydrate and never deleted:
//
//	PENDING -> PROCESSING          ClaimPending / ClaimPendingAfter
//	PROCESSING -> COMPLETED        Commit / CommitBatch
//	PROCESSING -> FAILED           Commit / CommitBatch
//	PROCESSING -> SKIPPED_EMPTY    Commit / CommitBatch
//	PROCESSING -> PENDING          Commit / CommitBatch (requeue), ResetOrphans
//
// ResetOrphans must run before new work is claimed after a restart.
//
// # Contention
//
// Backends retry storage contention with retry.StorePolicy. When the budget is
// exhausted the returned error wraps ErrStoreUnavailable and nothing has been
// applied.
//
// # Thread Safety
//
// All implementations must be safe for concurrent use.
package storage
