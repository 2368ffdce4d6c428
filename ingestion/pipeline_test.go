package ingestion

import (
	"context"
	"errors"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/poiesic/lexis/ai/mock"
	"github.com/poiesic/lexis/chunking"
	"github.com/poiesic/lexis/core"
	"github.com/poiesic/lexis/embedding"
	"github.com/poiesic/lexis/extract"
	"github.com/poiesic/lexis/retry"
	"github.com/poiesic/lexis/storage"
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

func setupTestRepositories(t *testing.T) *badger.MemoryRepositories {
	repos, err := badger.NewMemoryRepositories(nil)
	require.NoError(t, err)
	t.Cleanup(func() { repos.Close() })
	return repos
}

func setupTestPipeline(t *testing.T, repos *badger.MemoryRepositories, embedder *mock.MockEmbedder, batchSize int, opts ...Option) *Pipeline {
	t.Helper()

	batcher, err := embedding.NewBatcher(embedder,
		embedding.WithBatchSize(batchSize),
		embedding.WithDimensions(mock.DefaultDimensions),
		embedding.WithPolicy(fastPolicy()),
	)
	require.NoError(t, err)

	extractor, err := extract.New()
	require.NoError(t, err)

	p, err := NewPipeline(repos.Documents, repos.Chunks, extractor, batcher, opts...)
	require.NoError(t, err)
	t.Cleanup(p.Release)
	return p
}

func TestNewPipeline_Validation(t *testing.T) {
	repos := setupTestRepositories(t)
	extractor, err := extract.New()
	require.NoError(t, err)
	batcher, err := embedding.NewBatcher(mock.NewMockEmbedder())
	require.NoError(t, err)

	_, err = NewPipeline(nil, repos.Chunks, extractor, batcher)
	assert.ErrorIs(t, err, ErrDocumentRepositoryRequired)

	_, err = NewPipeline(repos.Documents, nil, extractor, batcher)
	assert.ErrorIs(t, err, ErrChunkRepositoryRequired)

	_, err = NewPipeline(repos.Documents, repos.Chunks, nil, batcher)
	assert.ErrorIs(t, err, ErrExtractorRequired)

	_, err = NewPipeline(repos.Documents, repos.Chunks, extractor, nil)
	assert.ErrorIs(t, err, ErrEmbedderRequired)

	_, err = NewPipeline(repos.Documents, repos.Chunks, extractor, batcher,
		WithChunking(chunking.Options{Size: 100, Overlap: 100}))
	assert.ErrorIs(t, err, core.ErrConfiguration)

	_, err = NewPipeline(repos.Documents, repos.Chunks, extractor, batcher, WithStaleAfter(0))
	assert.ErrorIs(t, err, core.ErrConfiguration)
}

func TestEnqueue(t *testing.T) {
	repos := setupTestRepositories(t)
	embedder := mock.NewMockEmbedder()
	p := setupTestPipeline(t, repos, embedder, 20)
	ctx := context.Background()

	t.Run("stores a pending document", func(t *testing.T) {
		doc, err := p.Enqueue(ctx, []byte("hello world"), "text/plain; charset=utf-8", "greeting", core.SourcePaste)
		require.NoError(t, err)
		assert.Equal(t, core.StatusPending, doc.Status)
		assert.Equal(t, core.ContentTypeText, doc.ContentType)
		assert.Equal(t, core.SourcePaste, doc.SourceType)
		assert.Equal(t, 11, doc.Size)
	})

	t.Run("normalizes aliases", func(t *testing.T) {
		doc, err := p.Enqueue(ctx, []byte("<p>hi</p>"), "text/htm", "page", core.SourceWebSearch)
		require.NoError(t, err)
		assert.Equal(t, core.ContentTypeHTML, doc.ContentType)
	})

	t.Run("detects missing content type", func(t *testing.T) {
		doc, err := p.Enqueue(ctx, []byte("just some words"), "", "", "")
		require.NoError(t, err)
		assert.Equal(t, core.ContentTypeText, doc.ContentType)
		assert.Equal(t, core.SourceUpload, doc.SourceType)
		assert.Equal(t, defaultTitle, doc.Title)
	})

	t.Run("rejects oversized payloads", func(t *testing.T) {
		_, err := p.Enqueue(ctx, make([]byte, core.MaxDocumentSize+1), "text/plain", "big", core.SourceUpload)
		assert.ErrorIs(t, err, core.ErrPayloadTooLarge)
		assert.ErrorIs(t, err, core.ErrValidation)
	})

	t.Run("rejects unsupported content types", func(t *testing.T) {
		_, err := p.Enqueue(ctx, []byte("x"), "image/png", "img", core.SourceUpload)
		assert.ErrorIs(t, err, core.ErrUnsupportedContentType)
	})

	t.Run("rejects unknown sources", func(t *testing.T) {
		_, err := p.Enqueue(ctx, []byte("x"), "text/plain", "x", core.SourceType("carrier-pigeon"))
		assert.ErrorIs(t, err, core.ErrUnsupportedSourceType)
	})

	assert.Zero(t, embedder.CallCount(), "enqueue must not call the provider")
}

func TestProcessBatch_EndToEnd(t *testing.T) {
	repos := setupTestRepositories(t)
	embedder := mock.NewMockEmbedder()
	p := setupTestPipeline(t, repos, embedder, 20)
	ctx := context.Background()

	text := strings.Repeat("abcdefghij", 300)
	doc, err := p.Enqueue(ctx, []byte(text), "text/plain", "report", core.SourceUpload)
	require.NoError(t, err)

	report, err := p.ProcessBatch(ctx, 10)
	require.NoError(t, err)
	assert.NotEmpty(t, report.RunId)
	assert.Equal(t, 1, report.Processed)
	assert.Equal(t, 1, report.Successful)
	assert.Zero(t, report.Failed)
	assert.Empty(t, report.Errors)
	require.Len(t, report.Results, 1)
	assert.Equal(t, core.DocumentResult{DocumentId: doc.Id, Status: core.StatusIndexed, Chunks: 2}, report.Results[0])

	stored, err := p.Document(ctx, doc.Id)
	require.NoError(t, err)
	assert.Equal(t, core.StatusIndexed, stored.Status)
	assert.NotNil(t, stored.ProcessedAt)
	assert.Empty(t, stored.Error)

	chunks, err := p.Chunks(ctx, doc.Id)
	require.NoError(t, err)
	require.Len(t, chunks, 2)
	assert.Equal(t, [2]int{0, 2000}, [2]int{chunks[0].Start, chunks[0].End})
	assert.Equal(t, [2]int{1800, 3000}, [2]int{chunks[1].Start, chunks[1].End})
	for _, chunk := range chunks {
		assert.Len(t, chunk.Vector, mock.DefaultDimensions)
		assert.True(t, chunk.Indexed)
	}

	t.Run("indexed documents are never reprocessed", func(t *testing.T) {
		calls := embedder.CallCount()
		report, err := p.ProcessBatch(ctx, 10)
		require.NoError(t, err)
		assert.Zero(t, report.Processed)
		assert.Equal(t, calls, embedder.CallCount())
	})

	stats, err := p.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Documents.Total)
	assert.Equal(t, 1, stats.Documents.Indexed)
	assert.Equal(t, core.ChunkCounts{Total: 2, Indexed: 2}, stats.Chunks)
}

func TestProcessBatch_IsolatesBadDocuments(t *testing.T) {
	repos := setupTestRepositories(t)
	p := setupTestPipeline(t, repos, mock.NewMockEmbedder(), 20)
	ctx := context.Background()

	good1, err := p.Enqueue(ctx, []byte("first good document"), "text/plain", "one", core.SourceUpload)
	require.NoError(t, err)
	empty, err := p.Enqueue(ctx, []byte("   \n\t  "), "text/plain", "blank", core.SourceUpload)
	require.NoError(t, err)
	good2, err := p.Enqueue(ctx, []byte("second good document"), "text/plain", "two", core.SourceUpload)
	require.NoError(t, err)

	report, err := p.ProcessBatch(ctx, 3)
	require.NoError(t, err)
	assert.Equal(t, 3, report.Processed)
	assert.Equal(t, 2, report.Successful)
	assert.Equal(t, 1, report.Failed)
	assert.Empty(t, report.Errors, "content failures are not systemic")

	for _, id := range []core.ID{good1.Id, good2.Id} {
		doc, err := p.Document(ctx, id)
		require.NoError(t, err)
		assert.Equal(t, core.StatusIndexed, doc.Status)
	}

	failed, err := p.Document(ctx, empty.Id)
	require.NoError(t, err)
	assert.Equal(t, core.StatusFailed, failed.Status)
	assert.Equal(t, core.FailurePermanent, failed.FailureKind)
	assert.True(t, strings.HasPrefix(failed.Error, "parsing: ExtractionError: "), failed.Error)
	assert.Contains(t, failed.Error, "no extractable text")
}

func TestProcessBatch_OldestFirstWithinLimit(t *testing.T) {
	repos := setupTestRepositories(t)
	p := setupTestPipeline(t, repos, mock.NewMockEmbedder(), 20)
	ctx := context.Background()

	var ids []core.ID
	for _, text := range []string{"one", "two", "three"} {
		doc, err := p.Enqueue(ctx, []byte(text), "text/plain", text, core.SourceUpload)
		require.NoError(t, err)
		ids = append(ids, doc.Id)
	}

	report, err := p.ProcessBatch(ctx, 2)
	require.NoError(t, err)
	require.Len(t, report.Results, 2)
	assert.Equal(t, ids[0], report.Results[0].DocumentId)
	assert.Equal(t, ids[1], report.Results[1].DocumentId)

	last, err := p.Document(ctx, ids[2])
	require.NoError(t, err)
	assert.Equal(t, core.StatusPending, last.Status)

	_, err = p.ProcessBatch(ctx, 0)
	assert.ErrorIs(t, err, core.ErrValidation)
}

func TestProcessBatch_EmbeddingFailureKeepsProgress(t *testing.T) {
	repos := setupTestRepositories(t)
	embedder := mock.NewMockEmbedder()
	p := setupTestPipeline(t, repos, embedder, 1,
		WithPoolSize(1),
		WithChunking(chunking.Options{Size: 10, Overlap: 0}))
	ctx := context.Background()

	const poison = "bbbbbbbbbb"
	var healed atomic.Bool
	embedder.EmbedTextsFunc = func(ctx context.Context, texts []string) ([][]float32, error) {
		if !healed.Load() && texts[0] == poison {
			return nil, core.ErrRateLimit
		}
		vectors := make([][]float32, len(texts))
		for i, text := range texts {
			vectors[i] = mock.DeterministicVector(text, mock.DefaultDimensions)
		}
		return vectors, nil
	}

	doc, err := p.Enqueue(ctx, []byte("aaaaaaaaaa"+poison+"cccccccccc"), "text/plain", "flaky", core.SourceUpload)
	require.NoError(t, err)

	report, err := p.ProcessBatch(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, 1, report.Failed)
	require.Len(t, report.Errors, 1, "provider exhaustion is reported as systemic")
	assert.ErrorIs(t, report.Errors[0], core.ErrEmbedding)

	failed, err := p.Document(ctx, doc.Id)
	require.NoError(t, err)
	assert.Equal(t, core.StatusFailed, failed.Status)
	assert.Equal(t, core.FailureTransient, failed.FailureKind)
	assert.True(t, strings.HasPrefix(failed.Error, "embedding: ExhaustedRetriesError: "), failed.Error)

	chunks, err := p.Chunks(ctx, doc.Id)
	require.NoError(t, err)
	require.Len(t, chunks, 3)
	assert.False(t, chunks[1].Embedded())
	missing := 0
	for _, chunk := range chunks {
		assert.False(t, chunk.Indexed)
		if !chunk.Embedded() {
			missing++
		}
	}

	// Transient failures are retried; the rerun embeds only what is missing.
	reset, err := p.RetryFailed(ctx, 10)
	require.NoError(t, err)
	assert.Equal(t, 1, reset)

	healed.Store(true)
	before := len(embedder.Texts())

	report, err = p.ProcessBatch(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, 1, report.Successful)
	assert.Equal(t, missing, len(embedder.Texts())-before)

	chunks, err = p.Chunks(ctx, doc.Id)
	require.NoError(t, err)
	for _, chunk := range chunks {
		assert.True(t, chunk.Indexed)
	}
}

func TestRetryFailed(t *testing.T) {
	repos := setupTestRepositories(t)
	embedder := mock.NewMockEmbedder()
	p := setupTestPipeline(t, repos, embedder, 20)
	ctx := context.Background()

	indexed, err := p.Enqueue(ctx, []byte("fine"), "text/plain", "fine", core.SourceUpload)
	require.NoError(t, err)
	blank, err := p.Enqueue(ctx, []byte(" "), "text/plain", "blank", core.SourceUpload)
	require.NoError(t, err)
	_, err = p.ProcessBatch(ctx, 10)
	require.NoError(t, err)

	embedder.EmbedTextsFunc = func(ctx context.Context, texts []string) ([][]float32, error) {
		return nil, errors.New("connection refused")
	}
	transient, err := p.Enqueue(ctx, []byte("unlucky"), "text/plain", "unlucky", core.SourceUpload)
	require.NoError(t, err)
	_, err = p.ProcessBatch(ctx, 10)
	require.NoError(t, err)

	pending, err := p.Enqueue(ctx, []byte("waiting"), "text/plain", "waiting", core.SourceUpload)
	require.NoError(t, err)

	t.Run("skip permanent failures when configured", func(t *testing.T) {
		p.skipPermanent = true
		defer func() { p.skipPermanent = false }()

		reset, err := p.RetryFailed(ctx, 10)
		require.NoError(t, err)
		assert.Equal(t, 1, reset, "only the transient failure is reset")

		expected := map[core.ID]core.DocumentStatus{
			indexed.Id:   core.StatusIndexed,
			blank.Id:     core.StatusFailed,
			transient.Id: core.StatusPending,
			pending.Id:   core.StatusPending,
		}
		for id, status := range expected {
			doc, err := p.Document(ctx, id)
			require.NoError(t, err)
			assert.Equal(t, status, doc.Status, "document %d", id)
		}

		retried, err := p.Document(ctx, transient.Id)
		require.NoError(t, err)
		assert.Empty(t, retried.Error)
		assert.Empty(t, retried.FailureKind)
	})

	reset, err := p.RetryFailed(ctx, 10)
	require.NoError(t, err)
	assert.Equal(t, 1, reset, "permanent failures are reset by default")

	doc, err := p.Document(ctx, blank.Id)
	require.NoError(t, err)
	assert.Equal(t, core.StatusPending, doc.Status)
	assert.Empty(t, doc.FailureKind)

	_, err = p.RetryFailed(ctx, 0)
	assert.ErrorIs(t, err, core.ErrValidation)
}

func TestProcessBatch_CancellationLeavesStatus(t *testing.T) {
	repos := setupTestRepositories(t)
	embedder := mock.NewMockEmbedder()
	p := setupTestPipeline(t, repos, embedder, 20)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var cancelled atomic.Bool
	embedder.EmbedTextsFunc = func(ctx context.Context, texts []string) ([][]float32, error) {
		if cancelled.CompareAndSwap(false, true) {
			cancel()
		}
		<-ctx.Done()
		return nil, ctx.Err()
	}

	doc, err := p.Enqueue(context.Background(), []byte("interrupted text"), "text/plain", "slow", core.SourceUpload)
	require.NoError(t, err)
	_, err = p.Enqueue(context.Background(), []byte("never started"), "text/plain", "next", core.SourceUpload)
	require.NoError(t, err)

	report, err := p.ProcessBatch(ctx, 10)
	assert.ErrorIs(t, err, context.Canceled)
	require.NotNil(t, report)
	assert.Equal(t, 1, report.Processed)
	assert.Equal(t, 1, report.Interrupted)
	assert.Zero(t, report.Failed)

	stored, err := p.Document(context.Background(), doc.Id)
	require.NoError(t, err)
	assert.Equal(t, core.StatusEmbedding, stored.Status, "cancellation must not fail the document")
	assert.Empty(t, stored.Error)

	t.Run("fresh intermediate documents are left alone", func(t *testing.T) {
		embedder.EmbedTextsFunc = nil
		report, err := p.ProcessBatch(context.Background(), 10)
		require.NoError(t, err)
		assert.Equal(t, 1, report.Processed, "only the pending document is taken")

		stored, err := p.Document(context.Background(), doc.Id)
		require.NoError(t, err)
		assert.Equal(t, core.StatusEmbedding, stored.Status)
	})

	t.Run("stale documents resume from their stage", func(t *testing.T) {
		p.now = func() time.Time { return time.Now().UTC().Add(DefaultStaleAfter + time.Minute) }

		report, err := p.ProcessBatch(context.Background(), 10)
		require.NoError(t, err)
		require.Equal(t, 1, report.Processed)
		assert.Equal(t, doc.Id, report.Results[0].DocumentId)
		assert.Equal(t, core.StatusIndexed, report.Results[0].Status)
	})
}

func TestProcessBatch_ConcurrentWorkers(t *testing.T) {
	repos := setupTestRepositories(t)
	embedder := mock.NewMockEmbedder()
	first := setupTestPipeline(t, repos, embedder, 20)
	second := setupTestPipeline(t, repos, embedder, 20)
	ctx := context.Background()

	const documents = 8
	for i := 0; i < documents; i++ {
		_, err := first.Enqueue(ctx, []byte(strings.Repeat("word ", 50+i)), "text/plain", "doc", core.SourceUpload)
		require.NoError(t, err)
	}

	var (
		wg      sync.WaitGroup
		reports [2]*core.ProcessingReport
	)
	for i, p := range []*Pipeline{first, second} {
		wg.Add(1)
		go func() {
			defer wg.Done()
			report, err := p.ProcessBatch(ctx, documents)
			assert.NoError(t, err)
			reports[i] = report
		}()
	}
	wg.Wait()

	require.NotNil(t, reports[0])
	require.NotNil(t, reports[1])
	assert.Equal(t, documents, reports[0].Processed+reports[1].Processed)
	assert.Equal(t, documents, reports[0].Successful+reports[1].Successful)

	stats, err := first.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, documents, stats.Documents.Indexed)
	assert.Equal(t, stats.Chunks.Total, len(embedder.Texts()), "each chunk is embedded exactly once")
}

func TestDelete(t *testing.T) {
	repos := setupTestRepositories(t)
	p := setupTestPipeline(t, repos, mock.NewMockEmbedder(), 20)
	ctx := context.Background()

	doc, err := p.Enqueue(ctx, []byte("short lived"), "text/plain", "tmp", core.SourceUpload)
	require.NoError(t, err)
	_, err = p.ProcessBatch(ctx, 1)
	require.NoError(t, err)

	require.NoError(t, p.Delete(ctx, doc.Id))
	_, err = p.Document(ctx, doc.Id)
	assert.ErrorIs(t, err, storage.ErrNotFound)

	stats, err := p.Stats(ctx)
	require.NoError(t, err)
	assert.Zero(t, stats.Chunks.Total)
}
