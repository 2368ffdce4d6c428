package ingestion

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/panjf2000/ants/v2"
	"github.com/poiesic/lexis/core"
	"github.com/poiesic/lexis/embedding"
	"github.com/poiesic/lexis/storage"
)

// embeddingProcessor generates vectors for a document's chunks and marks it indexed.
type embeddingProcessor struct {
	documents storage.DocumentRepository
	chunks    storage.ChunkRepository
	embedder  BatchEmbedder
	pool      *ants.Pool
	logger    *slog.Logger
}

var _ processor = (*embeddingProcessor)(nil)

func newEmbeddingProcessor(documents storage.DocumentRepository, chunks storage.ChunkRepository, embedder BatchEmbedder, pool *ants.Pool, logger *slog.Logger) *embeddingProcessor {
	return &embeddingProcessor{
		documents: documents,
		chunks:    chunks,
		embedder:  embedder,
		pool:      pool,
		logger:    logger.With("processor", "embeddings"),
	}
}

func (ep *embeddingProcessor) status() core.DocumentStatus {
	return core.StatusEmbedding
}

// process embeds every chunk still lacking a vector. Chunks embedded by an
// earlier, interrupted run are skipped.
func (ep *embeddingProcessor) process(ctx context.Context, j *job) error {
	if j.chunks == nil {
		chunks, err := ep.chunks.GetChunks(ctx, j.doc.Id)
		if err != nil {
			return err
		}
		j.chunks = chunks
	}
	if len(j.chunks) == 0 {
		return fmt.Errorf("%w: %w", core.ErrExtraction, core.ErrNoChunks)
	}

	var pending []*core.Chunk
	for _, chunk := range j.chunks {
		if !chunk.Embedded() {
			pending = append(pending, chunk)
		}
	}

	batches := embedding.Split(pending, ep.embedder.BatchSize())
	ep.logger.Info("embedding chunks", "document", j.doc.Id, "chunks", len(j.chunks),
		"pending", len(pending), "batches", len(batches))

	if err := ep.embedBatches(ctx, j.doc.Id, batches); err != nil {
		return err
	}

	doc, err := transition(ctx, ep.documents, j.doc, core.StatusIndexed)
	if err != nil {
		return err
	}
	j.doc = doc
	return nil
}

// embedBatches runs batches on the pool and waits for all of them. Each batch
// writes its own vectors, so completed batches survive a sibling's failure.
// The first failure cancels batches that have not called the provider yet.
func (ep *embeddingProcessor) embedBatches(ctx context.Context, documentID core.ID, batches [][]*core.Chunk) error {
	if len(batches) == 0 {
		return nil
	}

	batchCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		firstErr error
	)
	fail := func(err error) {
		mu.Lock()
		defer mu.Unlock()
		if firstErr == nil {
			firstErr = err
			cancel()
		}
	}

	for i, batch := range batches {
		wg.Add(1)
		err := ep.pool.Submit(func() {
			defer wg.Done()
			if err := batchCtx.Err(); err != nil {
				return
			}
			if err := ep.embedBatch(batchCtx, documentID, batch); err != nil {
				ep.logger.Warn("embedding batch failed", "document", documentID, "batch", i, "err", err)
				fail(err)
			}
		})
		if err != nil {
			wg.Done()
			fail(err)
			break
		}
	}
	wg.Wait()

	if err := ctx.Err(); err != nil {
		return err
	}
	return firstErr
}

func (ep *embeddingProcessor) embedBatch(ctx context.Context, documentID core.ID, batch []*core.Chunk) error {
	texts := make([]string, len(batch))
	for i, chunk := range batch {
		texts[i] = chunk.Content
	}

	vectors, err := ep.embedder.EmbedBatch(ctx, texts)
	if err != nil {
		return err
	}
	if len(vectors) != len(batch) {
		return fmt.Errorf("%w: expected %d embeddings, got %d", core.ErrInvalidResponse, len(batch), len(vectors))
	}

	updates := make(map[int][]float32, len(batch))
	for i, chunk := range batch {
		updates[chunk.Sequence] = vectors[i]
	}
	if err := ep.chunks.SetVectors(ctx, documentID, updates); err != nil {
		return err
	}

	for i, chunk := range batch {
		chunk.Vector = vectors[i]
	}
	return nil
}
