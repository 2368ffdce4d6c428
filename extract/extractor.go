package extract

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"unicode/utf8"

	"github.com/poiesic/lexis/core"
)

// HTMLMode selects how HTML documents are flattened.
type HTMLMode int

const (
	// HTMLPlain strips markup and keeps visible text only.
	HTMLPlain HTMLMode = iota
	// HTMLMarkdown renders the document as Markdown, keeping headings and lists.
	HTMLMarkdown
)

// Extractor converts raw document bytes into plain text.
// It is safe for concurrent use.
type Extractor struct {
	htmlMode HTMLMode
	logger   *slog.Logger
}

// Option configures an Extractor.
type Option func(*Extractor) error

// WithHTMLMode selects plain-text or Markdown rendering for HTML.
func WithHTMLMode(mode HTMLMode) Option {
	return func(e *Extractor) error {
		if mode != HTMLPlain && mode != HTMLMarkdown {
			return fmt.Errorf("%w: unknown html mode %d", core.ErrConfiguration, mode)
		}
		e.htmlMode = mode
		return nil
	}
}

// WithLogger sets a custom logger.
// Default is slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(e *Extractor) error {
		if logger == nil {
			logger = slog.Default()
		}
		e.logger = logger
		return nil
	}
}

// New creates an Extractor.
func New(opts ...Option) (*Extractor, error) {
	e := &Extractor{
		htmlMode: HTMLPlain,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		if err := opt(e); err != nil {
			return nil, err
		}
	}
	e.logger = e.logger.With("component", "extractor")
	return e, nil
}

// Extract returns the plain text of raw according to contentType.
// Unsupported or corrupt input fails with core.ErrExtraction. Empty output is
// not an error here; callers decide whether empty text is acceptable.
func (e *Extractor) Extract(ctx context.Context, raw []byte, contentType core.ContentType) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	var (
		text string
		err  error
	)
	switch contentType {
	case core.ContentTypePDF:
		text, err = extractPDF(raw)
	case core.ContentTypeHTML:
		text, err = extractHTML(raw, e.htmlMode)
	case core.ContentTypeText:
		text = toValidUTF8(raw)
	default:
		err = fmt.Errorf("%w: %w: %q", core.ErrExtraction, core.ErrUnsupportedContentType, contentType)
	}
	if err != nil {
		e.logger.Debug("extraction failed", "contentType", contentType, "bytes", len(raw), "err", err)
		return "", err
	}

	text = strings.ReplaceAll(text, "\x00", "")
	e.logger.Debug("extracted text", "contentType", contentType, "bytes", len(raw), "runes", utf8.RuneCountInString(text))
	return text, nil
}

func toValidUTF8(raw []byte) string {
	if utf8.Valid(raw) {
		return string(raw)
	}
	return strings.ToValidUTF8(string(raw), "�")
}
