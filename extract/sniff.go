package extract

import (
	"fmt"

	"github.com/gabriel-vasile/mimetype"
	"github.com/poiesic/lexis/core"
)

// Sniff detects the content type of raw bytes from their leading signature.
// Only the supported document types are recognized.
func Sniff(raw []byte) (core.ContentType, error) {
	mtype := mimetype.Detect(raw)
	switch {
	case mtype.Is("application/pdf"):
		return core.ContentTypePDF, nil
	case mtype.Is("text/html"):
		return core.ContentTypeHTML, nil
	case mtype.Is("text/plain"):
		return core.ContentTypeText, nil
	}
	return "", fmt.Errorf("%w: %w: detected %s", core.ErrValidation, core.ErrUnsupportedContentType, mtype.String())
}
