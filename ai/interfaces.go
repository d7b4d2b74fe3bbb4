package ai

import "context"

// Embedder generates vector embeddings from text.
// Implementations must be thread-safe for concurrent use.
//
// Errors are classified: an error wrapping ErrContextLengthExceeded means the
// backend rejected the input and resending it will fail the same way; any
// other failure wraps ErrBackendUnavailable.
type Embedder interface {
	// EmbedText generates a vector embedding for a single text string.
	EmbedText(ctx context.Context, text string) ([]float32, error)

	// EmbedTexts generates vector embeddings for multiple text strings in one request.
	// The returned slice contains embeddings in the same order as the input texts.
	EmbedTexts(ctx context.Context, texts []string) ([][]float32, error)
}

// BatchLimiter is implemented by embedders that split requests larger than
// MaxBatchSize into several backend calls. A result of 0 means no limit.
type BatchLimiter interface {
	MaxBatchSize() int
}

// AIProvider aggregates the embedding backends for initialization and lifecycle management.
type AIProvider interface {
	// Embedders returns one embedder per configured endpoint, in configuration order.
	// Every returned Embedder is safe for concurrent use.
	Embedders() []Embedder

	// Close releases resources held by the provider and its services.
	// After Close is called, the provider and its services should not be used.
	Close() error
}
