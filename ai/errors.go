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

package ai

import "errors"

var (
	// ErrContextLengthExceeded indicates the backend rejected the input as too large.
	// It is permanent for the given input.
	ErrContextLengthExceeded = errors.New("context length exceeded")

	// ErrBackendUnavailable indicates the backend could not serve the request
	// (timeout, connection failure, server error). The same input may succeed later.
	ErrBackendUnavailable = errors.New("embedding backend unavailable")

	// ErrEmbeddingCountMismatch indicates a response with a different number of
	// vectors than inputs.
	ErrEmbeddingCountMismatch = errors.New("embedding count does not match input count")
)
