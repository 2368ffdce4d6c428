package ingestion

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/poiesic/lexis/chunking"
	"github.com/poiesic/lexis/core"
	"github.com/poiesic/lexis/storage"
)

// chunkProcessor splits extracted text into overlapping chunks.
type chunkProcessor struct {
	documents storage.DocumentRepository
	chunks    storage.ChunkRepository
	parser    *parseProcessor
	options   chunking.Options
	logger    *slog.Logger
}

var _ processor = (*chunkProcessor)(nil)

func newChunkProcessor(documents storage.DocumentRepository, chunks storage.ChunkRepository, parser *parseProcessor, options chunking.Options, logger *slog.Logger) *chunkProcessor {
	return &chunkProcessor{
		documents: documents,
		chunks:    chunks,
		parser:    parser,
		options:   options,
		logger:    logger.With("processor", "chunking"),
	}
}

func (cp *chunkProcessor) status() core.DocumentStatus {
	return core.StatusChunking
}

func (cp *chunkProcessor) process(ctx context.Context, j *job) error {
	if err := cp.parser.load(ctx, j); err != nil {
		return err
	}

	segments, err := chunking.ChunkWith(j.text, cp.options)
	if err != nil {
		return err
	}
	if len(segments) == 0 {
		return fmt.Errorf("%w: %w", core.ErrExtraction, core.ErrNoChunks)
	}

	existing, err := cp.chunks.GetChunks(ctx, j.doc.Id)
	if err != nil {
		return err
	}

	if sameSegmentation(existing, segments) {
		cp.logger.Debug("reusing stored chunks", "document", j.doc.Id, "chunks", len(existing))
		j.chunks = existing
	} else {
		chunks := make([]*core.Chunk, len(segments))
		for i, seg := range segments {
			chunks[i] = &core.Chunk{
				Content: seg.Content,
				Start:   seg.Start,
				End:     seg.End,
			}
		}
		stored, err := cp.chunks.ReplaceChunks(ctx, j.doc.Id, chunks)
		if err != nil {
			return err
		}
		cp.logger.Debug("stored chunks", "document", j.doc.Id, "chunks", len(stored), "replaced", len(existing))
		j.chunks = stored
	}

	doc, err := transition(ctx, cp.documents, j.doc, core.StatusEmbedding)
	if err != nil {
		return err
	}
	j.doc = doc
	return nil
}

// sameSegmentation reports whether stored chunks already match the segments.
func sameSegmentation(stored []*core.Chunk, segments []chunking.Segment) bool {
	if len(stored) != len(segments) {
		return false
	}
	for i, seg := range segments {
		chunk := stored[i]
		if chunk.Sequence != seg.Index || chunk.Start != seg.Start || chunk.End != seg.End || chunk.Content != seg.Content {
			return false
		}
	}
	return true
}
