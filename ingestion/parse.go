package ingestion

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/poiesic/lexis/core"
	"github.com/poiesic/lexis/storage"
)

// parseProcessor extracts plain text from a document's raw content.
type parseProcessor struct {
	documents storage.DocumentRepository
	extractor TextExtractor
	logger    *slog.Logger
}

var _ processor = (*parseProcessor)(nil)

func newParseProcessor(documents storage.DocumentRepository, extractor TextExtractor, logger *slog.Logger) *parseProcessor {
	return &parseProcessor{
		documents: documents,
		extractor: extractor,
		logger:    logger.With("processor", "parsing"),
	}
}

func (pp *parseProcessor) status() core.DocumentStatus {
	return core.StatusParsing
}

func (pp *parseProcessor) process(ctx context.Context, j *job) error {
	if err := pp.load(ctx, j); err != nil {
		return err
	}
	pp.logger.Debug("extracted text", "document", j.doc.Id, "chars", len(j.text))

	doc, err := transition(ctx, pp.documents, j.doc, core.StatusChunking)
	if err != nil {
		return err
	}
	j.doc = doc
	return nil
}

// load extracts the document text once per job. Chunking reuses it, and a
// document resumed at chunking extracts again since text is not persisted.
func (pp *parseProcessor) load(ctx context.Context, j *job) error {
	if j.loaded {
		return nil
	}

	raw, err := pp.documents.GetContent(ctx, j.doc.Id)
	if err != nil {
		return err
	}
	text, err := pp.extractor.Extract(ctx, raw, j.doc.ContentType)
	if err != nil {
		return err
	}
	if strings.TrimSpace(text) == "" {
		return fmt.Errorf("%w: %w", core.ErrExtraction, core.ErrNoExtractableText)
	}

	j.text = text
	j.loaded = true
	return nil
}

// transition moves the job's document to the next status, reporting a lost
// claim when another worker changed the document underneath us.
func transition(ctx context.Context, documents storage.DocumentRepository, doc *core.Document, to core.DocumentStatus) (*core.Document, error) {
	updated, err := documents.Transition(ctx, doc.Id, doc.Status, to, nil)
	if err != nil {
		if errors.Is(err, storage.ErrConflict) {
			return nil, fmt.Errorf("%w: %w", ErrLostClaim, err)
		}
		return nil, err
	}
	return updated, nil
}
