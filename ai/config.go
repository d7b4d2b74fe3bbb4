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

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// Config holds configuration for the embedding backends.
type Config struct {
	// EmbeddingHosts are the base URLs of the embedding services. Each host gets
	// its own embedder and its own dispatcher.
	// Example: "http://gpu-node-1:8000/v1" for a vLLM server
	EmbeddingHosts []string

	// EmbeddingModel is the model identifier to use for text embeddings.
	// Example: "intfloat/e5-mistral-7b-instruct", "text-embedding-3-small"
	EmbeddingModel string

	// APIKey is sent as the bearer token. Local OpenAI-compatible servers
	// usually accept any value.
	APIKey string

	// Instruction is prepended to every input, as instruct-style embedding
	// models expect. Empty means inputs are sent unchanged.
	Instruction string

	// Timeout bounds each embedding HTTP request.
	Timeout time.Duration

	// BatchSize is the maximum number of inputs per embedding request.
	// It should be at least the pipeline batch size so each batch is one request.
	BatchSize int
}

// ConfigOption is a functional option for configuring a Config.
type ConfigOption func(*Config)

// WithEmbeddingHosts replaces the embedding service hosts.
func WithEmbeddingHosts(hosts ...string) ConfigOption {
	return func(c *Config) {
		c.EmbeddingHosts = append([]string(nil), hosts...)
	}
}

// WithEmbeddingHost sets a single embedding service host.
func WithEmbeddingHost(host string) ConfigOption {
	return WithEmbeddingHosts(host)
}

// WithEmbeddingModel sets the embedding model identifier.
func WithEmbeddingModel(model string) ConfigOption {
	return func(c *Config) {
		c.EmbeddingModel = model
	}
}

// WithAPIKey sets the bearer token.
func WithAPIKey(key string) ConfigOption {
	return func(c *Config) {
		c.APIKey = key
	}
}

// WithInstruction sets the prefix applied to every input.
func WithInstruction(instruction string) ConfigOption {
	return func(c *Config) {
		c.Instruction = instruction
	}
}

// WithTimeout sets the per-request timeout.
func WithTimeout(timeout time.Duration) ConfigOption {
	return func(c *Config) {
		c.Timeout = timeout
	}
}

// WithBatchSize sets the maximum number of inputs per request.
func WithBatchSize(size int) ConfigOption {
	return func(c *Config) {
		c.BatchSize = size
	}
}

// DefaultConfig returns a Config with sensible defaults for a local vLLM server.
func DefaultConfig() *Config {
	return &Config{
		EmbeddingHosts: []string{"http://localhost:8000/v1"},
		EmbeddingModel: "intfloat/e5-mistral-7b-instruct",
		APIKey:         "none",
		Timeout:        2 * time.Minute,
		BatchSize:      512,
	}
}

// NewConfig creates a Config with the default values and applies the provided options.
//
// Example:
//
//	cfg := NewConfig(
//	    WithEmbeddingHosts("http://gpu1:8000", "http://gpu2:8000"),
//	    WithInstruction("Instruct: Retrieve financial insights.\nQuery: "),
//	)
func NewConfig(opts ...ConfigOption) *Config {
	cfg := DefaultConfig()
	for _, opt := range opts {
		opt(cfg)
	}
	return cfg
}

// Normalize ensures the configuration is in a canonical form.
// It trims blank hosts and adds the /v1 suffix where missing, which is
// required by most OpenAI-compatible APIs (Ollama, LocalAI, vLLM, etc).
func (c *Config) Normalize() {
	hosts := c.EmbeddingHosts[:0]
	for _, host := range c.EmbeddingHosts {
		host = strings.TrimSpace(host)
		if host == "" {
			continue
		}
		if !strings.HasSuffix(host, "/v1") {
			host = strings.TrimSuffix(host, "/") + "/v1"
		}
		hosts = append(hosts, host)
	}
	c.EmbeddingHosts = hosts
}

// Validate checks that the configuration is valid and complete.
// It automatically normalizes the configuration before validation.
func (c *Config) Validate() error {
	c.Normalize()

	if len(c.EmbeddingHosts) == 0 {
		return errors.New("ai config: at least one EmbeddingHost is required")
	}
	seen := make(map[string]bool, len(c.EmbeddingHosts))
	for _, host := range c.EmbeddingHosts {
		if seen[host] {
			return fmt.Errorf("ai config: duplicate EmbeddingHost %q", host)
		}
		seen[host] = true
	}
	if c.EmbeddingModel == "" {
		return errors.New("ai config: EmbeddingModel is required")
	}
	if c.APIKey == "" {
		return errors.New("ai config: APIKey is required (use any value for servers without auth)")
	}
	if c.Timeout <= 0 {
		return errors.New("ai config: Timeout must be positive")
	}
	if c.BatchSize <= 0 {
		return errors.New("ai config: BatchSize must be positive")
	}
	return nil
}
