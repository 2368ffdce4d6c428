package embedding

import (
	"context"
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"github.com/poiesic/lexis/ai/mock"
	"github.com/poiesic/lexis/core"
	"github.com/poiesic/lexis/retry"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fastPolicy() retry.Policy {
	p := retry.DefaultPolicy()
	p.BackoffUnit = time.Millisecond
	p.Timeout = 0
	return p
}

func newBatcher(t *testing.T, embedder *mock.MockEmbedder, opts ...Option) *Batcher {
	t.Helper()
	opts = append([]Option{WithPolicy(fastPolicy()), WithDimensions(mock.DefaultDimensions)}, opts...)
	b, err := NewBatcher(embedder, opts...)
	require.NoError(t, err)
	return b
}

func TestEmbedBatch_PreservesOrder(t *testing.T) {
	embedder := mock.NewMockEmbedder()
	b := newBatcher(t, embedder)

	texts := []string{"alpha", "beta", "gamma"}
	vectors, err := b.EmbedBatch(context.Background(), texts)
	require.NoError(t, err)
	require.Len(t, vectors, 3)
	for i, text := range texts {
		assert.Equal(t, mock.DeterministicVector(text, mock.DefaultDimensions), vectors[i])
	}
	assert.Equal(t, 1, embedder.CallCount(), "one provider call per batch")
}

func TestEmbedBatch_Empty(t *testing.T) {
	embedder := mock.NewMockEmbedder()
	b := newBatcher(t, embedder)

	vectors, err := b.EmbedBatch(context.Background(), nil)
	require.NoError(t, err)
	assert.Nil(t, vectors)
	assert.Zero(t, embedder.CallCount())
}

func TestEmbedBatch_TooLarge(t *testing.T) {
	b := newBatcher(t, mock.NewMockEmbedder(), WithBatchSize(2))
	_, err := b.EmbedBatch(context.Background(), []string{"a", "b", "c"})
	assert.ErrorIs(t, err, core.ErrConfiguration)
}

func TestEmbedBatch_RetriesRateLimit(t *testing.T) {
	embedder := mock.NewMockEmbedder()
	var calls atomic.Int32
	embedder.EmbedTextsFunc = func(ctx context.Context, texts []string) ([][]float32, error) {
		if calls.Add(1) < 3 {
			return nil, fmt.Errorf("%w: 429", core.ErrRateLimit)
		}
		out := make([][]float32, len(texts))
		for i, text := range texts {
			out[i] = mock.DeterministicVector(text, mock.DefaultDimensions)
		}
		return out, nil
	}
	b := newBatcher(t, embedder)

	vectors, err := b.EmbedBatch(context.Background(), []string{"one"})
	require.NoError(t, err)
	assert.Len(t, vectors, 1)
	assert.Equal(t, int32(3), calls.Load())
}

func TestEmbedBatch_Exhausted(t *testing.T) {
	embedder := mock.NewMockEmbedder()
	embedder.EmbedTextsFunc = func(ctx context.Context, texts []string) ([][]float32, error) {
		return nil, fmt.Errorf("%w: provider busy", core.ErrRateLimit)
	}
	b := newBatcher(t, embedder)

	vectors, err := b.EmbedBatch(context.Background(), []string{"one", "two"})
	require.Error(t, err)
	assert.Nil(t, vectors, "a failed batch yields no vectors")
	assert.ErrorIs(t, err, core.ErrEmbedding)
	assert.ErrorIs(t, err, core.ErrExhaustedRetries)
	assert.ErrorIs(t, err, core.ErrRateLimit)

	var exhausted *core.ExhaustedRetriesError
	require.ErrorAs(t, err, &exhausted)
	assert.Equal(t, 3, exhausted.Attempts)
	assert.Equal(t, 3, embedder.CallCount())
}

func TestEmbedBatch_RejectsShortResponse(t *testing.T) {
	embedder := mock.NewMockEmbedder()
	embedder.EmbedTextsFunc = func(ctx context.Context, texts []string) ([][]float32, error) {
		return [][]float32{mock.DeterministicVector("x", mock.DefaultDimensions)}, nil
	}
	b := newBatcher(t, embedder)

	_, err := b.EmbedBatch(context.Background(), []string{"one", "two"})
	require.Error(t, err)
	assert.ErrorIs(t, err, core.ErrInvalidResponse)
}

func TestEmbedBatch_RejectsWrongDimensions(t *testing.T) {
	embedder := mock.NewMockEmbedder()
	embedder.Dimensions = 4
	b := newBatcher(t, embedder)

	_, err := b.EmbedBatch(context.Background(), []string{"one"})
	require.Error(t, err)
	assert.ErrorIs(t, err, core.ErrInvalidResponse)

	relaxed := newBatcher(t, embedder, WithDimensions(0))
	vectors, err := relaxed.EmbedBatch(context.Background(), []string{"one"})
	require.NoError(t, err)
	assert.Len(t, vectors[0], 4)
}

func TestEmbedBatch_Canceled(t *testing.T) {
	embedder := mock.NewMockEmbedder()
	b := newBatcher(t, embedder)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := b.EmbedBatch(ctx, []string{"one"})
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
	assert.NotErrorIs(t, err, core.ErrEmbedding)
}

func TestEmbedAll_SplitsIntoBatches(t *testing.T) {
	embedder := mock.NewMockEmbedder()
	b := newBatcher(t, embedder, WithBatchSize(2))

	texts := []string{"a", "b", "c", "d", "e"}
	vectors, err := b.EmbedAll(context.Background(), texts)
	require.NoError(t, err)
	require.Len(t, vectors, 5)
	assert.Equal(t, 3, embedder.CallCount())
	assert.Equal(t, texts, embedder.Texts())
	assert.Equal(t, mock.DeterministicVector("e", mock.DefaultDimensions), vectors[4])
}

func TestEmbedBatch_RateLimited(t *testing.T) {
	embedder := mock.NewMockEmbedder()
	b := newBatcher(t, embedder, WithBatchSize(1), WithRateLimit(1000, 1))

	vectors, err := b.EmbedAll(context.Background(), []string{"a", "b", "c"})
	require.NoError(t, err)
	assert.Len(t, vectors, 3)
}

func TestNewBatcher_InvalidOptions(t *testing.T) {
	_, err := NewBatcher(nil)
	assert.ErrorIs(t, err, core.ErrConfiguration)

	_, err = NewBatcher(mock.NewMockEmbedder(), WithBatchSize(0))
	assert.ErrorIs(t, err, core.ErrConfiguration)

	_, err = NewBatcher(mock.NewMockEmbedder(), WithRateLimit(0, 1))
	assert.ErrorIs(t, err, core.ErrConfiguration)

	bad := retry.DefaultPolicy()
	bad.MaxRetries = 0
	_, err = NewBatcher(mock.NewMockEmbedder(), WithPolicy(bad))
	assert.ErrorIs(t, err, core.ErrConfiguration)
}

func TestSplit(t *testing.T) {
	assert.Nil(t, Split([]int{}, 3))
	assert.Equal(t, [][]int{{1, 2}, {3, 4}, {5}}, Split([]int{1, 2, 3, 4, 5}, 2))
	assert.Equal(t, [][]int{{1, 2}}, Split([]int{1, 2}, 20))
}
