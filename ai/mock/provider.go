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

package mock

import "github.com/poiesic/docingest/ai"

// MockProvider is a test double for ai.AIProvider.
// It aggregates one mock embedder per simulated endpoint.
type MockProvider struct {
	embedders []*MockEmbedder
	closed    bool
}

// NewMockProvider creates a provider with n default mock embedders (at least one).
//
// Returns ai.AIProvider interface for consistency with production constructors.
// Use GetMockEmbedder() to access concrete types for test assertions.
func NewMockProvider(n int) ai.AIProvider {
	if n < 1 {
		n = 1
	}
	embedders := make([]*MockEmbedder, n)
	for i := range embedders {
		embedders[i] = NewMockEmbedder()
	}
	return &MockProvider{embedders: embedders}
}

// NewMockProviderWithServices creates a mock provider with custom mock embedders.
func NewMockProviderWithServices(embedders ...*MockEmbedder) ai.AIProvider {
	return &MockProvider{embedders: embedders}
}

// Embedders returns the mock embedders.
func (p *MockProvider) Embedders() []ai.Embedder {
	out := make([]ai.Embedder, len(p.embedders))
	for i, e := range p.embedders {
		out[i] = e
	}
	return out
}

// Close marks the provider closed.
func (p *MockProvider) Close() error {
	p.closed = true
	return nil
}

// Closed reports whether Close was called.
func (p *MockProvider) Closed() bool {
	return p.closed
}

// GetMockEmbedder returns the i-th mock embedder for test assertions.
func (p *MockProvider) GetMockEmbedder(i int) *MockEmbedder {
	return p.embedders[i]
}
