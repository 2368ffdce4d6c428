// Copyright 2025 Poiesic Systems
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package reembed

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/poiesic/lexis/core"
	"github.com/poiesic/lexis/storage"
)

// ChunkEmbedder embeds any number of texts, preserving order.
type ChunkEmbedder interface {
	EmbedAll(ctx context.Context, texts []string) ([][]float32, error)
}

// Config holds configuration for a reembedding run.
type Config struct {
	// BatchSize is the number of documents loaded per iteration step
	BatchSize int

	// ReportInterval is how often to report progress, in chunks
	ReportInterval int
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		BatchSize:      DefaultBatchSize,
		ReportInterval: 100,
	}
}

// Report summarizes a reembedding run.
type Report struct {
	Documents int
	Chunks    int
	Failed    []core.ID // Documents whose vectors were left untouched
	Elapsed   time.Duration
}

// Reembedder regenerates vectors for the chunks of every indexed document.
type Reembedder struct {
	documents storage.DocumentRepository
	chunks    storage.ChunkRepository
	embedder  ChunkEmbedder
	config    *Config
	progress  io.Writer
	iterator  *DocumentIterator
	logger    *slog.Logger
}

// NewReembedder creates a new reembedder.
// progress: where to write progress output (typically os.Stderr), may be nil
func NewReembedder(documents storage.DocumentRepository, chunks storage.ChunkRepository, embedder ChunkEmbedder, config *Config, progress io.Writer) (*Reembedder, error) {
	if documents == nil {
		return nil, ErrDocumentRepositoryRequired
	}
	if chunks == nil {
		return nil, ErrChunkRepositoryRequired
	}
	if embedder == nil {
		return nil, ErrEmbedderRequired
	}
	if config == nil {
		config = DefaultConfig()
	}
	if config.BatchSize < 0 || config.ReportInterval < 0 {
		return nil, fmt.Errorf("%w: reembed batch size and report interval cannot be negative", core.ErrConfiguration)
	}

	return &Reembedder{
		documents: documents,
		chunks:    chunks,
		embedder:  embedder,
		config:    config,
		progress:  progress,
		iterator:  NewDocumentIterator(documents, config.BatchSize),
		logger:    slog.Default().With("component", "reembedder"),
	}, nil
}

// Run reembeds the chunks of all indexed documents.
//
// A document whose chunks cannot be embedded keeps its old vectors and is
// listed in the report; the run continues with the next one. When ctx is
// done the partial report is returned with ctx.Err().
func (r *Reembedder) Run(ctx context.Context) (*Report, error) {
	counts, err := r.chunks.CountChunks(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to count chunks: %w", err)
	}

	report := &Report{}
	if counts.Indexed == 0 {
		r.logger.Info("no indexed chunks to reembed")
		return report, nil
	}

	r.logger.Info("starting reembedding", "chunks", counts.Indexed, "batchSize", r.config.BatchSize)
	tracker := NewProgressTracker(r.progress, counts.Indexed, r.config.ReportInterval)
	tracker.Start()

	err = r.iterator.ForEach(ctx, func(docs []*core.Document) error {
		for _, doc := range docs {
			n, err := r.reembedDocument(ctx, doc.Id)
			if err != nil {
				if ctx.Err() != nil {
					return ctx.Err()
				}
				r.logger.Warn("failed to reembed document", "document", doc.Id, "err", err)
				report.Failed = append(report.Failed, doc.Id)
				continue
			}
			report.Documents++
			report.Chunks += n
			tracker.Add(n)
		}
		return nil
	})

	tracker.Finish()
	report.Elapsed = tracker.Elapsed()
	r.logger.Info("reembedding finished", "documents", report.Documents, "chunks", report.Chunks,
		"failed", len(report.Failed), "duration", report.Elapsed.Round(time.Millisecond))
	return report, err
}

func (r *Reembedder) reembedDocument(ctx context.Context, documentID core.ID) (int, error) {
	chunks, err := r.chunks.GetChunks(ctx, documentID)
	if err != nil {
		return 0, err
	}
	if len(chunks) == 0 {
		return 0, nil
	}

	texts := make([]string, len(chunks))
	for i, chunk := range chunks {
		texts[i] = chunk.Content
	}
	vectors, err := r.embedder.EmbedAll(ctx, texts)
	if err != nil {
		return 0, err
	}

	// Vectors are never updated in place: the chunks are recreated with the
	// same segmentation, so their IDs are unchanged.
	fresh := make([]*core.Chunk, len(chunks))
	for i, chunk := range chunks {
		fresh[i] = &core.Chunk{
			Content: chunk.Content,
			Start:   chunk.Start,
			End:     chunk.End,
			Vector:  vectors[i],
		}
	}
	if _, err := r.chunks.ReplaceChunks(ctx, documentID, fresh); err != nil {
		return 0, err
	}
	return len(chunks), nil
}
