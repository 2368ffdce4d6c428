package embedding

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/poiesic/lexis/ai"
	"github.com/poiesic/lexis/core"
	"github.com/poiesic/lexis/retry"
	"golang.org/x/time/rate"
)

// DefaultBatchSize is the number of texts sent per provider call.
const DefaultBatchSize = 20

// Batcher submits texts to an embedding provider in bounded batches with retry.
type Batcher struct {
	embedder   ai.Embedder
	batchSize  int
	dimensions int
	policy     retry.Policy
	limiter    *rate.Limiter
	logger     *slog.Logger
}

// Option configures a Batcher.
type Option func(*Batcher) error

// WithBatchSize sets the number of texts per provider call.
func WithBatchSize(size int) Option {
	return func(b *Batcher) error {
		if size <= 0 {
			return fmt.Errorf("%w: batch size must be positive, got %d", core.ErrConfiguration, size)
		}
		b.batchSize = size
		return nil
	}
}

// WithPolicy sets the retry policy for each batch.
func WithPolicy(policy retry.Policy) Option {
	return func(b *Batcher) error {
		if err := policy.Validate(); err != nil {
			return err
		}
		b.policy = policy
		return nil
	}
}

// WithDimensions rejects vectors whose width differs from dim. Zero disables the check.
func WithDimensions(dim int) Option {
	return func(b *Batcher) error {
		if dim < 0 {
			return fmt.Errorf("%w: dimensions cannot be negative", core.ErrConfiguration)
		}
		b.dimensions = dim
		return nil
	}
}

// WithRateLimit throttles provider calls to rps requests per second.
func WithRateLimit(rps float64, burst int) Option {
	return func(b *Batcher) error {
		if rps <= 0 || burst <= 0 {
			return fmt.Errorf("%w: rate limit needs positive rate and burst", core.ErrConfiguration)
		}
		b.limiter = rate.NewLimiter(rate.Limit(rps), burst)
		return nil
	}
}

// WithLogger sets the logger for the batcher.
func WithLogger(logger *slog.Logger) Option {
	return func(b *Batcher) error {
		b.logger = logger
		return nil
	}
}

// NewBatcher creates a batcher over the given embedder.
func NewBatcher(embedder ai.Embedder, opts ...Option) (*Batcher, error) {
	if embedder == nil {
		return nil, fmt.Errorf("%w: embedder required", core.ErrConfiguration)
	}
	b := &Batcher{
		embedder:   embedder,
		batchSize:  DefaultBatchSize,
		dimensions: ai.DefaultDimensions,
		policy:     retry.DefaultPolicy(),
		logger:     slog.Default(),
	}
	for _, opt := range opts {
		if err := opt(b); err != nil {
			return nil, err
		}
	}
	b.logger = b.logger.With("component", "embedding-batcher")
	return b, nil
}

// BatchSize returns the number of texts per provider call.
func (b *Batcher) BatchSize() int {
	return b.batchSize
}

// EmbedBatch embeds at most BatchSize texts with one provider call per attempt.
// The result has the same length and order as texts. A batch is never
// partially applied: any failure returns no vectors.
//
// After the retry budget is spent the error wraps core.ErrEmbedding and a
// *core.ExhaustedRetriesError.
func (b *Batcher) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}
	if len(texts) > b.batchSize {
		return nil, fmt.Errorf("%w: batch of %d exceeds batch size %d", core.ErrConfiguration, len(texts), b.batchSize)
	}

	var vectors [][]float32
	err := retry.Do(ctx, b.policy, func(ctx context.Context, attempt retry.Attempt) error {
		if b.limiter != nil {
			if err := b.limiter.Wait(ctx); err != nil {
				return err
			}
		}
		result, err := b.embedder.EmbedTexts(ctx, texts)
		if err != nil {
			b.logger.Warn("embedding attempt failed", "attempt", attempt.Number, "texts", len(texts), "err", err)
			return err
		}
		if err := b.check(texts, result); err != nil {
			b.logger.Warn("invalid embedding response", "attempt", attempt.Number, "err", err)
			return err
		}
		vectors = result
		return nil
	})
	if err != nil {
		if ctx.Err() != nil {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %w", core.ErrEmbedding, err)
	}
	return vectors, nil
}

// EmbedAll embeds any number of texts, one batch after another.
func (b *Batcher) EmbedAll(ctx context.Context, texts []string) ([][]float32, error) {
	vectors := make([][]float32, 0, len(texts))
	for _, batch := range Split(texts, b.batchSize) {
		result, err := b.EmbedBatch(ctx, batch)
		if err != nil {
			return nil, err
		}
		vectors = append(vectors, result...)
	}
	return vectors, nil
}

func (b *Batcher) check(texts []string, vectors [][]float32) error {
	if len(vectors) != len(texts) {
		return fmt.Errorf("%w: expected %d embeddings, got %d", core.ErrInvalidResponse, len(texts), len(vectors))
	}
	for i, v := range vectors {
		if len(v) == 0 {
			return fmt.Errorf("%w: embedding %d is empty", core.ErrInvalidResponse, i)
		}
		if b.dimensions > 0 && len(v) != b.dimensions {
			return fmt.Errorf("%w: embedding %d has %d dimensions, expected %d",
				core.ErrInvalidResponse, i, len(v), b.dimensions)
		}
	}
	return nil
}

// Split cuts items into consecutive batches of at most size elements.
func Split[T any](items []T, size int) [][]T {
	if size <= 0 || len(items) == 0 {
		return nil
	}
	batches := make([][]T, 0, (len(items)+size-1)/size)
	for start := 0; start < len(items); start += size {
		end := min(start+size, len(items))
		batches = append(batches, items[start:end])
	}
	return batches
}
