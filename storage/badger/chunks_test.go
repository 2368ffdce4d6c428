package badger

import (
	"context"
	"testing"

	"github.com/poiesic/lexis/core"
	"github.com/poiesic/lexis/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// indexDocument stores chunks with the given vectors and finalises the document.
func indexDocument(t *testing.T, repos *MemoryRepositories, title string, vectors ...[]float32) *core.Document {
	t.Helper()
	ctx := context.Background()

	doc := advance(t, repos, createDocument(t, repos, title))
	chunks := make([]*core.Chunk, len(vectors))
	batch := make(map[int][]float32, len(vectors))
	for i, vector := range vectors {
		chunks[i] = &core.Chunk{Content: title, End: len(title)}
		batch[i] = vector
	}
	_, err := repos.Chunks.ReplaceChunks(ctx, doc.Id, chunks)
	require.NoError(t, err)
	require.NoError(t, repos.Chunks.SetVectors(ctx, doc.Id, batch))

	doc, err = repos.Documents.Transition(ctx, doc.Id, core.StatusEmbedding, core.StatusIndexed, nil)
	require.NoError(t, err)
	return doc
}

func TestReplaceChunks(t *testing.T) {
	repos := newTestRepositories(t)
	ctx := context.Background()

	doc := advance(t, repos, createDocument(t, repos, "chunks"))

	stored, err := repos.Chunks.ReplaceChunks(ctx, doc.Id, []*core.Chunk{
		{Content: "alpha", Start: 0, End: 5},
		{Content: "beta", Start: 4, End: 8},
		{Content: "gamma", Start: 7, End: 12},
	})
	require.NoError(t, err)
	require.Len(t, stored, 3)
	for i, chunk := range stored {
		assert.Equal(t, i, chunk.Sequence)
		assert.Equal(t, doc.Id, chunk.DocumentId)
		assert.Equal(t, core.ChunkIDFor(doc.Id, i), chunk.Id)
	}

	chunks, err := repos.Chunks.GetChunks(ctx, doc.Id)
	require.NoError(t, err)
	require.Len(t, chunks, 3)
	assert.Equal(t, "beta", chunks[1].Content)
	assert.Equal(t, 4, chunks[1].Start)

	t.Run("shorter segmentation removes stale chunks", func(t *testing.T) {
		_, err := repos.Chunks.ReplaceChunks(ctx, doc.Id, []*core.Chunk{{Content: "whole", End: 12}})
		require.NoError(t, err)

		chunks, err := repos.Chunks.GetChunks(ctx, doc.Id)
		require.NoError(t, err)
		require.Len(t, chunks, 1)
		assert.Equal(t, "whole", chunks[0].Content)
		assert.Equal(t, core.ChunkIDFor(doc.Id, 0), chunks[0].Id)
	})
}

func TestGetChunks_SequenceOrderBeyondByteRange(t *testing.T) {
	repos := newTestRepositories(t)
	ctx := context.Background()

	doc := advance(t, repos, createDocument(t, repos, "long"))
	chunks := make([]*core.Chunk, 300)
	for i := range chunks {
		chunks[i] = &core.Chunk{Content: "c"}
	}
	_, err := repos.Chunks.ReplaceChunks(ctx, doc.Id, chunks)
	require.NoError(t, err)

	stored, err := repos.Chunks.GetChunks(ctx, doc.Id)
	require.NoError(t, err)
	require.Len(t, stored, 300)
	for i, chunk := range stored {
		assert.Equal(t, i, chunk.Sequence)
	}
}

func TestSetVectors(t *testing.T) {
	repos := newTestRepositories(t)
	ctx := context.Background()

	doc := advance(t, repos, createDocument(t, repos, "vectors"))
	_, err := repos.Chunks.ReplaceChunks(ctx, doc.Id, []*core.Chunk{{Content: "a"}, {Content: "b"}, {Content: "c"}})
	require.NoError(t, err)

	// Batches land independently and in any order.
	require.NoError(t, repos.Chunks.SetVectors(ctx, doc.Id, map[int][]float32{2: {0, 0, 1}}))
	require.NoError(t, repos.Chunks.SetVectors(ctx, doc.Id, map[int][]float32{0: {1, 0, 0}}))

	chunks, err := repos.Chunks.GetChunks(ctx, doc.Id)
	require.NoError(t, err)
	assert.True(t, chunks[0].Embedded())
	assert.False(t, chunks[1].Embedded())
	assert.Equal(t, []float32{0, 0, 1}, chunks[2].Vector)
	for _, chunk := range chunks {
		assert.False(t, chunk.Indexed, "chunks of an unindexed document are never indexed")
	}

	t.Run("missing chunk rejects the whole batch", func(t *testing.T) {
		err := repos.Chunks.SetVectors(ctx, doc.Id, map[int][]float32{1: {0, 1, 0}, 9: {1, 1, 1}})
		assert.ErrorIs(t, err, storage.ErrNotFound)

		chunks, err := repos.Chunks.GetChunks(ctx, doc.Id)
		require.NoError(t, err)
		assert.False(t, chunks[1].Embedded())
	})
}

func TestIndexedIsDerivedFromDocument(t *testing.T) {
	repos := newTestRepositories(t)
	ctx := context.Background()

	doc := indexDocument(t, repos, "indexed", []float32{1, 0}, []float32{0, 1})

	chunks, err := repos.Chunks.GetChunks(ctx, doc.Id)
	require.NoError(t, err)
	require.Len(t, chunks, 2)
	for _, chunk := range chunks {
		assert.True(t, chunk.Indexed)
		assert.NotEmpty(t, chunk.Vector)
	}

	counts, err := repos.Chunks.CountChunks(ctx)
	require.NoError(t, err)
	assert.Equal(t, core.ChunkCounts{Total: 2, Indexed: 2}, counts)
}

func TestSearchChunks(t *testing.T) {
	repos := newTestRepositories(t)
	ctx := context.Background()

	near := indexDocument(t, repos, "near", []float32{1, 0}, []float32{0.9, 0.1})
	far := indexDocument(t, repos, "far", []float32{0, 1})

	// Embedded but not finalised: must stay invisible to search.
	hidden := advance(t, repos, createDocument(t, repos, "hidden"))
	_, err := repos.Chunks.ReplaceChunks(ctx, hidden.Id, []*core.Chunk{{Content: "hidden"}})
	require.NoError(t, err)
	require.NoError(t, repos.Chunks.SetVectors(ctx, hidden.Id, map[int][]float32{0: {1, 0}}))

	hits, err := repos.Chunks.SearchChunks(ctx, []float32{1, 0}, 10)
	require.NoError(t, err)
	require.Len(t, hits, 3)

	assert.Equal(t, near.Id, hits[0].Chunk.DocumentId)
	assert.Equal(t, 0, hits[0].Chunk.Sequence)
	assert.InDelta(t, 0, hits[0].Distance, 0.0001)
	assert.Equal(t, near.Id, hits[1].Chunk.DocumentId)
	assert.Equal(t, far.Id, hits[2].Chunk.DocumentId)
	assert.InDelta(t, 1, hits[2].Distance, 0.0001)
	for _, hit := range hits {
		assert.True(t, hit.Chunk.Indexed)
	}

	t.Run("limit", func(t *testing.T) {
		hits, err := repos.Chunks.SearchChunks(ctx, []float32{1, 0}, 1)
		require.NoError(t, err)
		require.Len(t, hits, 1)
		assert.Equal(t, near.Id, hits[0].Chunk.DocumentId)
	})

	t.Run("ties break by chunk id", func(t *testing.T) {
		hits, err := repos.Chunks.SearchChunks(ctx, []float32{-1, -1}, 10)
		require.NoError(t, err)
		for i := 1; i < len(hits); i++ {
			if hits[i].Distance == hits[i-1].Distance {
				assert.Less(t, hits[i-1].Chunk.Id, hits[i].Chunk.Id)
			}
		}
	})

	t.Run("invalid query", func(t *testing.T) {
		_, err := repos.Chunks.SearchChunks(ctx, nil, 10)
		assert.ErrorIs(t, err, storage.ErrInvalidQuery)
		_, err = repos.Chunks.SearchChunks(ctx, []float32{1, 0}, 0)
		assert.ErrorIs(t, err, storage.ErrInvalidQuery)
	})

	counts, err := repos.Chunks.CountChunks(ctx)
	require.NoError(t, err)
	assert.Equal(t, 4, counts.Total)
	assert.Equal(t, 3, counts.Indexed)
}
