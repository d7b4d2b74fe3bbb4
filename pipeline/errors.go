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

import "errors"

var (
	// ErrStoreRequired indicates that a job store was not provided.
	ErrStoreRequired = errors.New("job store is required")

	// ErrAIProviderRequired indicates that an AI provider was not provided.
	ErrAIProviderRequired = errors.New("AI provider is required")

	// ErrNoEmbedders indicates that the provider has no embedding endpoints.
	ErrNoEmbedders = errors.New("at least one embedder is required")

	// ErrInvalidWorkerCount indicates a non-positive worker or pool size.
	ErrInvalidWorkerCount = errors.New("worker counts must be positive")

	// ErrInvalidQueueSize indicates a non-positive queue capacity or page size.
	ErrInvalidQueueSize = errors.New("queue sizes must be positive")

	// ErrInvalidBatchSize indicates a non-positive batch size.
	ErrInvalidBatchSize = errors.New("batch size must be positive")

	// ErrInvalidInterval indicates a non-positive poll interval or timeout.
	ErrInvalidInterval = errors.New("intervals and timeouts must be positive")

	// ErrInvalidDocumentLimit indicates a non-positive document size cap.
	ErrInvalidDocumentLimit = errors.New("max document size must be positive")

	// ErrInvalidRateLimit indicates a negative rate or a rate without burst.
	ErrInvalidRateLimit = errors.New("invalid download rate limit")

	// ErrOutputDirRequired indicates that no output directory was configured.
	ErrOutputDirRequired = errors.New("output directory is required")

	// ErrBatchTooLarge indicates a batch size above what an embedder sends in one request.
	ErrBatchTooLarge = errors.New("batch size exceeds embedder request limit")

	// ErrDocumentTooLarge indicates a response body above MaxDocumentBytes.
	ErrDocumentTooLarge = errors.New("document too large")
)
