package openai

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/poiesic/lexis/ai"
	"github.com/poiesic/lexis/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClassify(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		target error
	}{
		{name: "rate limit status", err: errors.New("API returned unexpected status code: 429"), target: core.ErrRateLimit},
		{name: "rate limit message", err: errors.New("Rate limit exceeded for model"), target: core.ErrRateLimit},
		{name: "unavailable", err: errors.New("API returned unexpected status code: 503"), target: core.ErrRateLimit},
		{name: "deadline", err: fmt.Errorf("post: %w", context.DeadlineExceeded), target: core.ErrTimeout},
		{name: "bad key", err: errors.New("Incorrect API key provided"), target: core.ErrConfiguration},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := classify(tt.err)
			assert.ErrorIs(t, got, tt.target)
			assert.ErrorIs(t, got, tt.err, "original error should stay in the chain")
		})
	}
}

func TestClassify_PassThrough(t *testing.T) {
	assert.NoError(t, classify(nil))
	assert.Equal(t, context.Canceled, classify(context.Canceled))

	plain := errors.New("connection reset by peer")
	got := classify(plain)
	assert.Equal(t, plain, got)
}

func TestNewProvider_InvalidConfig(t *testing.T) {
	cfg := ai.NewConfig(ai.WithEmbeddingModel(""))
	_, err := NewProvider(cfg)
	require.Error(t, err)
	assert.ErrorIs(t, err, core.ErrConfiguration)
}

func TestNewProvider(t *testing.T) {
	provider, err := NewProvider(ai.NewConfig(ai.WithRequestsPerSecond(2)))
	require.NoError(t, err)
	defer provider.Close()

	assert.NotNil(t, provider.Embedder())
	assert.NotNil(t, provider.Generator())
}

func TestNewLimiter(t *testing.T) {
	assert.Nil(t, newLimiter(ai.NewConfig()))

	limiter := newLimiter(ai.NewConfig(ai.WithRequestsPerSecond(0.5)))
	require.NotNil(t, limiter)
	assert.Equal(t, 1, limiter.Burst())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, wait(ctx, nil), context.Canceled)
}
