package reembed

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/poiesic/lexis/ai/mock"
	"github.com/poiesic/lexis/core"
	"github.com/poiesic/lexis/embedding"
	"github.com/poiesic/lexis/extract"
	"github.com/poiesic/lexis/ingestion"
	"github.com/poiesic/lexis/retry"
	"github.com/poiesic/lexis/storage/badger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fastPolicy() retry.Policy {
	policy := retry.DefaultPolicy()
	policy.BackoffUnit = time.Millisecond
	policy.Timeout = time.Second
	return policy
}

// setupIndexed returns repositories holding one indexed document per text.
func setupIndexed(t *testing.T, texts ...string) *badger.MemoryRepositories {
	t.Helper()
	repos, err := badger.NewMemoryRepositories(nil)
	require.NoError(t, err)
	t.Cleanup(func() { repos.Close() })

	batcher, err := embedding.NewBatcher(mock.NewMockEmbedder(),
		embedding.WithDimensions(mock.DefaultDimensions),
		embedding.WithPolicy(fastPolicy()),
	)
	require.NoError(t, err)
	extractor, err := extract.New()
	require.NoError(t, err)
	pipeline, err := ingestion.NewPipeline(repos.Documents, repos.Chunks, extractor, batcher)
	require.NoError(t, err)
	t.Cleanup(pipeline.Release)

	if len(texts) == 0 {
		return repos
	}

	ctx := context.Background()
	for _, text := range texts {
		_, err := pipeline.Enqueue(ctx, []byte(text), "text/plain", "", core.SourcePaste)
		require.NoError(t, err)
	}
	report, err := pipeline.ProcessBatch(ctx, len(texts))
	require.NoError(t, err)
	require.Equal(t, len(texts), report.Successful)
	return repos
}

func constantVector(value float32) []float32 {
	v := make([]float32, mock.DefaultDimensions)
	for i := range v {
		v[i] = value
	}
	return v
}

type fakeEmbedder struct {
	fn func(ctx context.Context, texts []string) ([][]float32, error)
}

func (f *fakeEmbedder) EmbedAll(ctx context.Context, texts []string) ([][]float32, error) {
	return f.fn(ctx, texts)
}

func TestNewReembedder(t *testing.T) {
	repos := setupIndexed(t)
	embedder := &fakeEmbedder{}

	_, err := NewReembedder(nil, repos.Chunks, embedder, nil, nil)
	assert.ErrorIs(t, err, ErrDocumentRepositoryRequired)

	_, err = NewReembedder(repos.Documents, nil, embedder, nil, nil)
	assert.ErrorIs(t, err, ErrChunkRepositoryRequired)

	_, err = NewReembedder(repos.Documents, repos.Chunks, nil, nil, nil)
	assert.ErrorIs(t, err, ErrEmbedderRequired)

	_, err = NewReembedder(repos.Documents, repos.Chunks, embedder, &Config{BatchSize: -1}, nil)
	assert.ErrorIs(t, err, core.ErrConfiguration)
}

func TestReembedder_Run(t *testing.T) {
	repos := setupIndexed(t, "Grain exports fell.", "Fuel prices rose.", "Rates were held.")
	ctx := context.Background()

	replacement := mock.NewMockEmbedder()
	replacement.EmbedTextsFunc = func(ctx context.Context, texts []string) ([][]float32, error) {
		vectors := make([][]float32, len(texts))
		for i := range texts {
			vectors[i] = constantVector(0.5)
		}
		return vectors, nil
	}
	batcher, err := embedding.NewBatcher(replacement,
		embedding.WithDimensions(mock.DefaultDimensions),
		embedding.WithPolicy(fastPolicy()),
	)
	require.NoError(t, err)

	var progress strings.Builder
	r, err := NewReembedder(repos.Documents, repos.Chunks, batcher, &Config{BatchSize: 2, ReportInterval: 1}, &progress)
	require.NoError(t, err)

	report, err := r.Run(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, report.Documents)
	assert.Equal(t, 3, report.Chunks)
	assert.Empty(t, report.Failed)
	assert.Contains(t, progress.String(), "3/3 chunks")

	docs, err := repos.Documents.ListByStatus(ctx, core.StatusIndexed, 0)
	require.NoError(t, err)
	for _, doc := range docs {
		chunks, err := repos.Chunks.GetChunks(ctx, doc.Id)
		require.NoError(t, err)
		for _, chunk := range chunks {
			assert.Equal(t, constantVector(0.5), chunk.Vector)
		}
	}

	counts, err := repos.Chunks.CountChunks(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, counts.Indexed)
}

func TestReembedder_FailedDocumentKeepsVectors(t *testing.T) {
	repos := setupIndexed(t, "Grain exports fell.", "poison pill", "Rates were held.")
	ctx := context.Background()

	embedder := &fakeEmbedder{fn: func(ctx context.Context, texts []string) ([][]float32, error) {
		for _, text := range texts {
			if strings.Contains(text, "poison") {
				return nil, errors.New("model rejected input")
			}
		}
		vectors := make([][]float32, len(texts))
		for i := range texts {
			vectors[i] = constantVector(1)
		}
		return vectors, nil
	}}

	r, err := NewReembedder(repos.Documents, repos.Chunks, embedder, nil, nil)
	require.NoError(t, err)

	report, err := r.Run(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, report.Documents)
	require.Len(t, report.Failed, 1)

	chunks, err := repos.Chunks.GetChunks(ctx, report.Failed[0])
	require.NoError(t, err)
	require.Len(t, chunks, 1)
	assert.Equal(t, mock.DeterministicVector("poison pill", mock.DefaultDimensions), chunks[0].Vector)
}

func TestReembedder_Cancelled(t *testing.T) {
	repos := setupIndexed(t, "one", "two")
	ctx, cancel := context.WithCancel(context.Background())

	embedder := &fakeEmbedder{fn: func(ctx context.Context, texts []string) ([][]float32, error) {
		cancel()
		return nil, ctx.Err()
	}}
	r, err := NewReembedder(repos.Documents, repos.Chunks, embedder, nil, nil)
	require.NoError(t, err)

	report, err := r.Run(ctx)
	assert.ErrorIs(t, err, context.Canceled)
	require.NotNil(t, report)
	assert.Zero(t, report.Documents)
	assert.Empty(t, report.Failed)
}

func TestReembedder_EmptyStore(t *testing.T) {
	repos := setupIndexed(t)
	r, err := NewReembedder(repos.Documents, repos.Chunks, &fakeEmbedder{}, nil, nil)
	require.NoError(t, err)

	report, err := r.Run(context.Background())
	require.NoError(t, err)
	assert.Zero(t, report.Documents)
}

func TestReembedder_KeepsChunkIdentity(t *testing.T) {
	repos := setupIndexed(t, "Grain exports fell.")
	ctx := context.Background()

	docs, err := repos.Documents.ListByStatus(ctx, core.StatusIndexed, 0)
	require.NoError(t, err)
	require.Len(t, docs, 1)
	before, err := repos.Chunks.GetChunks(ctx, docs[0].Id)
	require.NoError(t, err)

	embedder := &fakeEmbedder{fn: func(ctx context.Context, texts []string) ([][]float32, error) {
		return [][]float32{constantVector(2)}, nil
	}}
	r, err := NewReembedder(repos.Documents, repos.Chunks, embedder, nil, nil)
	require.NoError(t, err)
	_, err = r.Run(ctx)
	require.NoError(t, err)

	after, err := repos.Chunks.GetChunks(ctx, docs[0].Id)
	require.NoError(t, err)
	require.Len(t, after, len(before))
	assert.Equal(t, before[0].Id, after[0].Id)
	assert.Equal(t, before[0].Content, after[0].Content)
	assert.Equal(t, before[0].Start, after[0].Start)
	assert.Equal(t, before[0].End, after[0].End)
	assert.True(t, after[0].Indexed)
	assert.Equal(t, constantVector(2), after[0].Vector)
}
