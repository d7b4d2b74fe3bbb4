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

// Package ai provides abstractions for the embedding services used by docingest.
//
// The Embedder interface hides the wire protocol from the pipeline. Backends
// classify their failures so the pipeline can decide job outcomes without
// inspecting transport details:
//
//   - ErrContextLengthExceeded: the input is too large; resending it is pointless
//   - ErrBackendUnavailable: anything else; the same input may succeed later
//
// # Implementation Packages
//
//   - ai/openai: Production implementation using OpenAI-compatible APIs
//   - ai/mock: Test doubles for unit testing without external dependencies
//
// # Constructor Return Type Pattern
//
// Public constructors (openai.NewProvider, openai.NewEmbedder) return interface
// types. Test utility constructors (mock.NewMockEmbedder) return concrete types
// to enable assertions and behavior injection.
//
// # Usage Example
//
//	config := ai.NewConfig(ai.WithEmbeddingHosts("http://gpu1:8000", "http://gpu2:8000"))
//	provider, err := openai.NewProvider(config)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer provider.Close()
//
//	for _, embedder := range provider.Embedders() {
//	    vectors, err := embedder.EmbedTexts(ctx, texts)
//	    ...
//	}
package ai
