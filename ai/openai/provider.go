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

package openai

import (
	"log/slog"

	"github.com/poiesic/docingest/ai"
)

// Provider implements ai.AIProvider using OpenAI-compatible services.
// It manages one embedder per configured host.
type Provider struct {
	config    *ai.Config
	embedders []*Embedder
	logger    *slog.Logger
}

var _ ai.AIProvider = (*Provider)(nil)

// NewProvider creates a new AI provider with OpenAI-compatible services.
// The config is validated and normalized before use.
//
// Returns ai.AIProvider interface (not *Provider) to enforce abstraction
// and prevent coupling to OpenAI-specific implementation details.
func NewProvider(config *ai.Config) (ai.AIProvider, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}

	embedders := make([]*Embedder, 0, len(config.EmbeddingHosts))
	for _, host := range config.EmbeddingHosts {
		embedder, err := newEmbedder(config, host)
		if err != nil {
			return nil, err
		}
		embedders = append(embedders, embedder)
	}

	logger := slog.Default().With("component", "openai-provider")
	logger.Debug("embedding provider ready", "hosts", len(embedders), "model", config.EmbeddingModel)

	return &Provider{
		config:    config,
		embedders: embedders,
		logger:    logger,
	}, nil
}

// Embedders returns one embedder per configured host.
func (p *Provider) Embedders() []ai.Embedder {
	out := make([]ai.Embedder, len(p.embedders))
	for i, e := range p.embedders {
		out[i] = e
	}
	return out
}

// Close releases resources held by the provider.
// Currently a no-op as the underlying clients don't require explicit cleanup.
func (p *Provider) Close() error {
	p.logger.Debug("closing OpenAI provider")
	return nil
}
