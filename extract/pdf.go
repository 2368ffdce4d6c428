package extract

import (
	"bytes"
	"encoding/base64"
	"fmt"
	"strings"

	"github.com/gabriel-vasile/mimetype"
	"github.com/ledongthuc/pdf"
	"github.com/poiesic/lexis/core"
)

// extractPDF reads the text of every page, pages separated by a blank line.
// Payloads that arrive base64 encoded are decoded first.
func extractPDF(raw []byte) (text string, err error) {
	data, err := decodePDFPayload(raw)
	if err != nil {
		return "", err
	}

	// The parser panics on some malformed cross-reference tables.
	defer func() {
		if r := recover(); r != nil {
			text = ""
			err = fmt.Errorf("%w: failed to parse PDF: %v", core.ErrExtraction, r)
		}
	}()

	reader, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return "", fmt.Errorf("%w: failed to parse PDF: %w", core.ErrExtraction, err)
	}

	numPages := reader.NumPage()
	if numPages == 0 {
		return "", fmt.Errorf("%w: PDF has no pages", core.ErrExtraction)
	}

	fonts := make(map[string]*pdf.Font)
	pages := make([]string, 0, numPages)
	for i := 1; i <= numPages; i++ {
		page := reader.Page(i)
		if page.V.IsNull() {
			continue
		}
		for _, name := range page.Fonts() {
			if _, ok := fonts[name]; !ok {
				f := page.Font(name)
				fonts[name] = &f
			}
		}
		pageText, err := page.GetPlainText(fonts)
		if err != nil {
			return "", fmt.Errorf("%w: failed to read page %d: %w", core.ErrExtraction, i, err)
		}
		if pageText = strings.TrimSpace(pageText); pageText != "" {
			pages = append(pages, pageText)
		}
	}
	return strings.Join(pages, "\n\n"), nil
}

func decodePDFPayload(raw []byte) ([]byte, error) {
	if len(bytes.TrimSpace(raw)) == 0 {
		return nil, fmt.Errorf("%w: PDF content is empty", core.ErrExtraction)
	}
	if isPDF(raw) {
		return raw, nil
	}
	decoded, err := base64.StdEncoding.DecodeString(string(bytes.TrimSpace(raw)))
	if err != nil {
		return nil, fmt.Errorf("%w: content is neither PDF nor base64: %w", core.ErrExtraction, err)
	}
	if !isPDF(decoded) {
		return nil, fmt.Errorf("%w: decoded content is not a PDF", core.ErrExtraction)
	}
	return decoded, nil
}

func isPDF(data []byte) bool {
	return mimetype.Detect(data).Is("application/pdf")
}
