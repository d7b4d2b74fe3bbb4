package openai

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/poiesic/docingest/ai"
	"github.com/tmc/langchaingo/embeddings"
	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/openai"
)

// Embedder implements ai.Embedder using an OpenAI-compatible embedding API.
type Embedder struct {
	embedder    embeddings.Embedder
	host        string
	instruction string
	batchSize   int
	logger      *slog.Logger
}

var (
	_ ai.Embedder     = (*Embedder)(nil)
	_ ai.BatchLimiter = (*Embedder)(nil)
)

// newEmbedder is an internal constructor that returns the concrete type.
// Used by Provider to manage one instance per host.
func newEmbedder(config *ai.Config, host string) (*Embedder, error) {
	client, err := openai.New(
		openai.WithBaseURL(host),
		openai.WithToken(config.APIKey),
		openai.WithEmbeddingModel(config.EmbeddingModel),
		openai.WithHTTPClient(&http.Client{Timeout: config.Timeout}),
	)
	if err != nil {
		return nil, err
	}

	// Newlines carry layout in extracted documents, so they are sent as-is.
	embedder, err := embeddings.NewEmbedder(client,
		embeddings.WithStripNewLines(false),
		embeddings.WithBatchSize(config.BatchSize),
	)
	if err != nil {
		return nil, err
	}

	return &Embedder{
		embedder:    embedder,
		host:        host,
		instruction: config.Instruction,
		batchSize:   config.BatchSize,
		logger:      slog.Default().With("component", "openai-embedder", "host", host),
	}, nil
}

// NewEmbedder creates an embedder for the first configured host.
//
// Returns ai.Embedder interface to enforce abstraction.
func NewEmbedder(config *ai.Config) (ai.Embedder, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}
	return newEmbedder(config, config.EmbeddingHosts[0])
}

// MaxBatchSize returns the most inputs sent in one backend request.
func (e *Embedder) MaxBatchSize() int {
	return e.batchSize
}

// Host returns the base URL this embedder talks to.
func (e *Embedder) Host() string {
	return e.host
}

// EmbedText generates a vector embedding for a single text string.
func (e *Embedder) EmbedText(ctx context.Context, text string) ([]float32, error) {
	vectors, err := e.EmbedTexts(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vectors[0], nil
}

// EmbedTexts generates vector embeddings for multiple text strings in a batch.
func (e *Embedder) EmbedTexts(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return [][]float32{}, nil
	}
	e.logger.Debug("generating embeddings for texts", "count", len(texts))

	inputs := texts
	if e.instruction != "" {
		inputs = make([]string, len(texts))
		for i, text := range texts {
			inputs[i] = e.instruction + text
		}
	}

	vectors, err := e.embedder.EmbedDocuments(ctx, inputs)
	if err != nil {
		err = classify(err)
		e.logger.Warn("failed to generate embeddings", "count", len(texts), "err", err)
		return nil, err
	}
	if len(vectors) != len(texts) {
		return nil, fmt.Errorf("%w: %w: got %d for %d inputs",
			ai.ErrBackendUnavailable, ai.ErrEmbeddingCountMismatch, len(vectors), len(texts))
	}

	return vectors, nil
}

// classify wraps err with ai.ErrContextLengthExceeded when the backend rejected
// the input as too large, and with ai.ErrBackendUnavailable otherwise.
//
// OpenAI reports oversized input with a context-length message. vLLM answers
// with a bare 400 whose body doesn't decode as an OpenAI error, so a 400 or 413
// status is treated the same way.
func classify(err error) error {
	if errors.Is(err, ai.ErrContextLengthExceeded) || errors.Is(err, ai.ErrBackendUnavailable) {
		return err
	}
	msg := strings.ToLower(err.Error())
	if llms.IsTokenLimitError(openai.MapError(err)) ||
		strings.Contains(msg, "status code: 400") ||
		strings.Contains(msg, "status code: 413") {
		return fmt.Errorf("%w: %w", ai.ErrContextLengthExceeded, err)
	}
	return fmt.Errorf("%w: %w", ai.ErrBackendUnavailable, err)
}
