package ingestion

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime"
	"slices"
	"time"

	"github.com/google/uuid"
	"github.com/panjf2000/ants/v2"
	"github.com/poiesic/lexis/chunking"
	"github.com/poiesic/lexis/core"
	"github.com/poiesic/lexis/extract"
	"github.com/poiesic/lexis/storage"
)

// DefaultStaleAfter is how long a document may sit in an intermediate status
// before another worker may reclaim it.
const DefaultStaleAfter = 10 * time.Minute

const defaultTitle = "Untitled"

// Pipeline orchestrates the processing of documents into indexed chunks.
// Documents are processed one at a time; the chunks of one document are
// embedded concurrently.
type Pipeline struct {
	documents      storage.DocumentRepository
	chunks         storage.ChunkRepository
	embeddingPool  *ants.Pool
	processors     map[core.DocumentStatus]processor
	chunking       chunking.Options
	staleAfter     time.Duration
	skipPermanent  bool
	logger         *slog.Logger
	now            func() time.Time
}

// Option configures a Pipeline.
type Option func(*Pipeline) error

// WithPoolSize sets the worker pool size for concurrent embedding batches.
// Default is runtime.NumCPU() / 2, with a minimum of 1.
func WithPoolSize(size int) Option {
	return func(p *Pipeline) error {
		if size < 1 {
			size = 1
		}

		// Release old pool
		if p.embeddingPool != nil {
			p.embeddingPool.Release()
		}

		embeddingPool, err := ants.NewPool(size)
		if err != nil {
			return err
		}
		p.embeddingPool = embeddingPool
		return nil
	}
}

// WithLogger sets a custom logger.
// Default is slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(p *Pipeline) error {
		if logger == nil {
			logger = slog.Default()
		}
		p.logger = logger
		return nil
	}
}

// WithChunking sets the chunk size and overlap.
// Invalid options fail pipeline construction with core.ErrConfiguration.
func WithChunking(opts chunking.Options) Option {
	return func(p *Pipeline) error {
		if err := opts.Validate(); err != nil {
			return err
		}
		p.chunking = opts
		return nil
	}
}

// WithStaleAfter sets how long an intermediate document is left alone before
// ProcessBatch reclaims it.
func WithStaleAfter(d time.Duration) Option {
	return func(p *Pipeline) error {
		if d <= 0 {
			return fmt.Errorf("%w: stale threshold must be positive", core.ErrConfiguration)
		}
		p.staleAfter = d
		return nil
	}
}

// WithSkipPermanent makes RetryFailed leave documents whose failure was
// caused by their content in failed.
func WithSkipPermanent(skip bool) Option {
	return func(p *Pipeline) error {
		p.skipPermanent = skip
		return nil
	}
}

// NewPipeline creates a new document pipeline.
func NewPipeline(
	documents storage.DocumentRepository,
	chunks storage.ChunkRepository,
	extractor TextExtractor,
	embedder BatchEmbedder,
	opts ...Option,
) (*Pipeline, error) {
	if documents == nil {
		return nil, ErrDocumentRepositoryRequired
	}
	if chunks == nil {
		return nil, ErrChunkRepositoryRequired
	}
	if extractor == nil {
		return nil, ErrExtractorRequired
	}
	if embedder == nil {
		return nil, ErrEmbedderRequired
	}

	// Default pool size
	poolSize := runtime.NumCPU() / 2
	if poolSize < 1 {
		poolSize = 1
	}

	embeddingPool, err := ants.NewPool(poolSize)
	if err != nil {
		return nil, err
	}

	p := &Pipeline{
		documents:     documents,
		chunks:        chunks,
		embeddingPool: embeddingPool,
		chunking:      chunking.DefaultOptions(),
		staleAfter:    DefaultStaleAfter,
		logger:        slog.Default(),
		now:           func() time.Time { return time.Now().UTC() },
	}

	// Apply options (may override defaults)
	for _, opt := range opts {
		if optErr := opt(p); optErr != nil {
			p.Release()
			return nil, optErr
		}
	}
	p.logger = p.logger.With("component", "pipeline")

	// Create processors after options are applied (so they get final config)
	parser := newParseProcessor(documents, extractor, p.logger)
	p.processors = make(map[core.DocumentStatus]processor)
	for _, proc := range []processor{
		parser,
		newChunkProcessor(documents, chunks, parser, p.chunking, p.logger),
		newEmbeddingProcessor(documents, chunks, embedder, p.embeddingPool, p.logger),
	} {
		p.processors[proc.status()] = proc
	}

	return p, nil
}

// Enqueue validates raw content and stores it as a pending document.
// An empty contentType is detected from the content. No text is extracted
// and no provider is called.
func (p *Pipeline) Enqueue(ctx context.Context, raw []byte, contentType, title string, source core.SourceType) (*core.Document, error) {
	if err := core.ValidatePayload(raw); err != nil {
		return nil, err
	}

	var (
		ct  core.ContentType
		err error
	)
	if contentType == "" {
		ct, err = extract.Sniff(raw)
	} else {
		ct, err = core.ParseContentType(contentType)
	}
	if err != nil {
		return nil, err
	}

	source, err = core.ValidateSourceType(source)
	if err != nil {
		return nil, err
	}

	if title == "" {
		title = defaultTitle
	}

	doc, err := p.documents.CreateDocument(ctx, &core.Document{
		Title:       title,
		ContentType: ct,
		SourceType:  source,
	}, raw)
	if err != nil {
		return nil, err
	}

	p.logger.Info("enqueued document", "document", doc.Id, "contentType", ct, "bytes", len(raw))
	return doc, nil
}

// ProcessBatch claims up to limit documents and drives each to indexed or failed.
//
// Pending documents are taken oldest first. When there are fewer than limit,
// documents left in an intermediate status for longer than the stale
// threshold are reclaimed and resumed from their current stage.
//
// A failing document never stops the batch. When ctx is done the document in
// flight keeps its last persisted status, is counted as interrupted, and the
// partial report is returned with ctx.Err().
func (p *Pipeline) ProcessBatch(ctx context.Context, limit int) (*core.ProcessingReport, error) {
	if limit <= 0 {
		return nil, fmt.Errorf("%w: batch limit must be positive, got %d", core.ErrValidation, limit)
	}

	report := &core.ProcessingReport{RunId: uuid.NewString()}
	logger := p.logger.With("run", report.RunId)

	candidates, err := p.documents.ListByStatus(ctx, core.StatusPending, limit)
	if err != nil {
		return nil, err
	}
	if len(candidates) < limit {
		stale, err := p.staleDocuments(ctx, limit-len(candidates))
		if err != nil {
			return nil, err
		}
		candidates = append(candidates, stale...)
	}

	logger.Info("processing batch", "candidates", len(candidates), "limit", limit)

	for _, candidate := range candidates {
		if err := ctx.Err(); err != nil {
			break
		}

		doc, err := p.documents.Claim(ctx, candidate.Id, candidate.Status, candidate.UpdatedAt)
		if err != nil {
			if errors.Is(err, storage.ErrConflict) || errors.Is(err, storage.ErrNotFound) {
				logger.Debug("document taken by another worker", "document", candidate.Id)
				continue
			}
			report.Errors = append(report.Errors, fmt.Errorf("claim document %d: %w", candidate.Id, err))
			continue
		}
		if candidate.Status != core.StatusPending {
			logger.Info("resuming stale document", "document", doc.Id, "status", doc.Status)
		}

		result, systemErr := p.processDocument(ctx, doc, logger)
		report.Processed++
		report.Results = append(report.Results, result)
		switch {
		case result.Status == core.StatusIndexed:
			report.Successful++
		case result.Status == core.StatusFailed:
			report.Failed++
		default:
			report.Interrupted++
		}
		if systemErr != nil {
			report.Errors = append(report.Errors, systemErr)
		}
	}

	logger.Info("batch complete", "processed", report.Processed, "successful", report.Successful,
		"failed", report.Failed, "interrupted", report.Interrupted)

	if err := ctx.Err(); err != nil {
		return report, err
	}
	return report, nil
}

// processDocument runs the stages from the document's current status.
// The returned error is a non-content failure for the report's error list.
func (p *Pipeline) processDocument(ctx context.Context, doc *core.Document, logger *slog.Logger) (core.DocumentResult, error) {
	j := &job{doc: doc}
	for !j.doc.Status.Terminal() {
		proc, ok := p.processors[j.doc.Status]
		if !ok {
			return resultFor(j), fmt.Errorf("document %d: no processor for status %s", j.doc.Id, j.doc.Status)
		}

		stage := j.doc.Status
		if err := proc.process(ctx, j); err != nil {
			if ctx.Err() != nil {
				logger.Info("document interrupted", "document", j.doc.Id, "status", j.doc.Status)
				return resultFor(j), nil
			}
			if errors.Is(err, ErrLostClaim) {
				logger.Warn("document reclaimed by another worker", "document", j.doc.Id, "status", stage)
				return resultFor(j), fmt.Errorf("document %d: %w", j.doc.Id, err)
			}
			return p.fail(ctx, j, stage, err, logger)
		}
	}

	logger.Info("document indexed", "document", j.doc.Id, "chunks", len(j.chunks))
	return resultFor(j), nil
}

// fail records a stage failure on the document.
func (p *Pipeline) fail(ctx context.Context, j *job, stage core.DocumentStatus, cause error, logger *slog.Logger) (core.DocumentResult, error) {
	message := fmt.Sprintf("%s: %s: %v", stage, core.ErrorKind(cause), cause)
	kind := core.FailureTransient
	if core.IsPermanent(cause) {
		kind = core.FailurePermanent
	}

	logger.Warn("document failed", "document", j.doc.Id, "stage", stage, "kind", kind, "err", cause)

	doc, err := p.documents.Transition(ctx, j.doc.Id, stage, core.StatusFailed, func(d *core.Document) {
		d.Error = message
		d.FailureKind = kind
	})
	if err != nil {
		result := resultFor(j)
		result.Error = message
		return result, fmt.Errorf("document %d: record failure: %w", j.doc.Id, errors.Join(cause, err))
	}
	j.doc = doc

	result := resultFor(j)
	if kind == core.FailurePermanent {
		return result, nil
	}
	return result, fmt.Errorf("document %d: %w", j.doc.Id, cause)
}

func resultFor(j *job) core.DocumentResult {
	return core.DocumentResult{
		DocumentId: j.doc.Id,
		Status:     j.doc.Status,
		Chunks:     len(j.chunks),
		Error:      j.doc.Error,
	}
}

// staleDocuments returns up to n documents stuck in an intermediate status, oldest first.
func (p *Pipeline) staleDocuments(ctx context.Context, n int) ([]*core.Document, error) {
	cutoff := p.now().Add(-p.staleAfter)

	var stale []*core.Document
	for _, status := range []core.DocumentStatus{core.StatusParsing, core.StatusChunking, core.StatusEmbedding} {
		docs, err := p.documents.ListByStatus(ctx, status, 0)
		if err != nil {
			return nil, err
		}
		for _, doc := range docs {
			if doc.UpdatedAt.Before(cutoff) {
				stale = append(stale, doc)
			}
		}
	}

	slices.SortFunc(stale, func(a, b *core.Document) int {
		return cmp.Compare(a.Id, b.Id)
	})
	if len(stale) > n {
		stale = stale[:n]
	}
	return stale, nil
}

// RetryFailed resets up to limit failed documents to pending, oldest first.
// Documents that failed because of their content fail again the same way
// unless their content changes; WithSkipPermanent(true) leaves them alone.
// Processing is not started.
func (p *Pipeline) RetryFailed(ctx context.Context, limit int) (int, error) {
	if limit <= 0 {
		return 0, fmt.Errorf("%w: retry limit must be positive, got %d", core.ErrValidation, limit)
	}

	failed, err := p.documents.ListByStatus(ctx, core.StatusFailed, 0)
	if err != nil {
		return 0, err
	}

	reset := 0
	for _, doc := range failed {
		if reset >= limit {
			break
		}
		if doc.FailureKind == core.FailurePermanent && p.skipPermanent {
			p.logger.Debug("skipping permanent failure", "document", doc.Id, "error", doc.Error)
			continue
		}

		_, err := p.documents.Transition(ctx, doc.Id, core.StatusFailed, core.StatusPending, nil)
		if err != nil {
			if errors.Is(err, storage.ErrConflict) {
				continue
			}
			return reset, err
		}
		reset++
	}

	p.logger.Info("reset failed documents", "count", reset)
	return reset, nil
}

// Stats returns document counts per status and chunk totals.
func (p *Pipeline) Stats(ctx context.Context) (*core.Stats, error) {
	docs, err := p.documents.CountDocuments(ctx)
	if err != nil {
		return nil, err
	}
	chunks, err := p.chunks.CountChunks(ctx)
	if err != nil {
		return nil, err
	}
	return &core.Stats{Documents: docs, Chunks: chunks}, nil
}

// Document returns a document by ID.
func (p *Pipeline) Document(ctx context.Context, id core.ID) (*core.Document, error) {
	return p.documents.GetDocument(ctx, id)
}

// Chunks returns a document's chunks in sequence order.
func (p *Pipeline) Chunks(ctx context.Context, id core.ID) ([]*core.Chunk, error) {
	return p.chunks.GetChunks(ctx, id)
}

// Delete removes a document and its chunks.
func (p *Pipeline) Delete(ctx context.Context, id core.ID) error {
	return p.documents.DeleteDocument(ctx, id)
}

// Release releases resources including worker pools.
// The pipeline should not be used after calling Release.
func (p *Pipeline) Release() {
	if p.embeddingPool != nil {
		p.embeddingPool.Release()
	}
}
