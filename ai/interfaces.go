package ai

import "context"

// Embedder generates vector embeddings from text for semantic similarity search.
// Implementations must be thread-safe for concurrent use.
type Embedder interface {
	// EmbedText generates a vector embedding for a single text string.
	EmbedText(ctx context.Context, text string) ([]float32, error)

	// EmbedTexts generates vector embeddings for multiple text strings in a batch.
	// The returned slice contains embeddings in the same order as the input texts.
	// Returns an error if any embedding generation fails; partial results are never returned.
	EmbedTexts(ctx context.Context, texts []string) ([][]float32, error)
}

// GenerateOptions tunes a single text generation call.
type GenerateOptions struct {
	// Temperature is the sampling temperature for this call.
	Temperature float64

	// MaxTokens caps the response length. Zero uses the model default.
	MaxTokens int

	// JSON asks the model for a JSON response.
	JSON bool
}

// Generator produces text completions from a prompt.
// Implementations must be thread-safe for concurrent use.
//
// Errors should wrap core.ErrRateLimit, core.ErrTimeout or core.ErrInvalidResponse
// where the failure is recognizable, so callers can pick a retry strategy.
type Generator interface {
	Generate(ctx context.Context, prompt string, opts GenerateOptions) (string, error)
}

// AIProvider aggregates AI services for convenient initialization and lifecycle management.
type AIProvider interface {
	// Embedder returns the text embedding service.
	Embedder() Embedder

	// Generator returns the text generation service.
	Generator() Generator

	// Close releases resources held by the provider and its services.
	Close() error
}
