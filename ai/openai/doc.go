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

// Package openai provides the ai.Embedder implementation for OpenAI-compatible
// embedding APIs such as vLLM, Ollama, LocalAI or OpenAI itself.
//
// Requests go through langchaingo; failures are classified into
// ai.ErrContextLengthExceeded and ai.ErrBackendUnavailable.
//
// # Usage
//
//	config := ai.NewConfig(
//	    ai.WithEmbeddingHosts("http://gpu1:8000", "http://gpu2:8000"), // /v1 added automatically
//	    ai.WithEmbeddingModel("intfloat/e5-mistral-7b-instruct"),
//	)
//
//	provider, err := openai.NewProvider(config)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer provider.Close()
//
//	vectors, err := provider.Embedders()[0].EmbedTexts(ctx, texts)
package openai
