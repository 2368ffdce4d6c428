package extract

import (
	"context"
	"encoding/base64"
	"testing"

	"github.com/poiesic/lexis/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const samplePage = `<!DOCTYPE html>
<html>
<head><title>Ignored title</title><style>body { color: red; }</style></head>
<body>
  <h1>Export   controls</h1>
  <script>var tracking = "should not appear";</script>
  <p>Semiconductor <b>equipment</b> rules
     were tightened.</p>
  <ul><li>First item</li><li>Second item</li></ul>
</body>
</html>`

func newExtractor(t *testing.T, opts ...Option) *Extractor {
	t.Helper()
	e, err := New(opts...)
	require.NoError(t, err)
	return e
}

func TestExtract_PlainText(t *testing.T) {
	e := newExtractor(t)
	text, err := e.Extract(context.Background(), []byte("hello\x00 world"), core.ContentTypeText)
	require.NoError(t, err)
	assert.Equal(t, "hello world", text)
}

func TestExtract_PlainTextInvalidUTF8(t *testing.T) {
	e := newExtractor(t)
	text, err := e.Extract(context.Background(), []byte{'a', 0xff, 'b'}, core.ContentTypeText)
	require.NoError(t, err)
	assert.Equal(t, "a�b", text)
}

func TestExtract_HTMLPlain(t *testing.T) {
	e := newExtractor(t)
	text, err := e.Extract(context.Background(), []byte(samplePage), core.ContentTypeHTML)
	require.NoError(t, err)

	assert.Contains(t, text, "Export controls")
	assert.Contains(t, text, "Semiconductor equipment rules were tightened.")
	assert.Contains(t, text, "First item\nSecond item")
	assert.NotContains(t, text, "tracking")
	assert.NotContains(t, text, "color: red")
	assert.NotContains(t, text, "Ignored title")
	assert.NotContains(t, text, "<")
}

func TestExtract_HTMLImpliedEndTags(t *testing.T) {
	e := newExtractor(t)
	page := `<!DOCTYPE html><html><head><title>Report</title><meta charset=utf-8><body><p>Grain exports fell sharply.<p>Prices rose.</body></html>`
	text, err := e.Extract(context.Background(), []byte(page), core.ContentTypeHTML)
	require.NoError(t, err)
	assert.Equal(t, "Grain exports fell sharply.\nPrices rose.", text)
}

func TestExtract_HTMLMarkdown(t *testing.T) {
	e := newExtractor(t, WithHTMLMode(HTMLMarkdown))
	text, err := e.Extract(context.Background(), []byte(`<html><body><h1>Title</h1><p>Hello <b>world</b></p></body></html>`), core.ContentTypeHTML)
	require.NoError(t, err)
	assert.Contains(t, text, "# Title")
	assert.Contains(t, text, "**world**")
}

func TestExtract_HTMLOnlyScripts(t *testing.T) {
	e := newExtractor(t)
	text, err := e.Extract(context.Background(), []byte(`<html><script>x()</script></html>`), core.ContentTypeHTML)
	require.NoError(t, err)
	assert.Empty(t, text)
}

func TestExtract_PDFErrors(t *testing.T) {
	e := newExtractor(t)
	tests := []struct {
		name string
		raw  []byte
	}{
		{name: "empty", raw: nil},
		{name: "not a pdf", raw: []byte("definitely not a pdf")},
		{name: "base64 of text", raw: []byte(base64.StdEncoding.EncodeToString([]byte("plain words")))},
		{name: "truncated pdf", raw: []byte("%PDF-1.4\n1 0 obj\n<< /Type /Catalog >>\nendobj\n")},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := e.Extract(context.Background(), tt.raw, core.ContentTypePDF)
			require.Error(t, err)
			assert.ErrorIs(t, err, core.ErrExtraction)
		})
	}
}

func TestExtract_UnsupportedType(t *testing.T) {
	e := newExtractor(t)
	_, err := e.Extract(context.Background(), []byte("x"), core.ContentType("image/png"))
	require.Error(t, err)
	assert.ErrorIs(t, err, core.ErrExtraction)
	assert.ErrorIs(t, err, core.ErrUnsupportedContentType)
}

func TestExtract_CanceledContext(t *testing.T) {
	e := newExtractor(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := e.Extract(ctx, []byte("hello"), core.ContentTypeText)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestWithHTMLMode_Invalid(t *testing.T) {
	_, err := New(WithHTMLMode(HTMLMode(42)))
	assert.ErrorIs(t, err, core.ErrConfiguration)
}

func TestSniff(t *testing.T) {
	tests := []struct {
		name    string
		raw     []byte
		want    core.ContentType
		wantErr bool
	}{
		{name: "pdf", raw: []byte("%PDF-1.7\n%\xe2\xe3\xcf\xd3\n"), want: core.ContentTypePDF},
		{name: "html", raw: []byte("<!DOCTYPE html><html><body>hi</body></html>"), want: core.ContentTypeHTML},
		{name: "text", raw: []byte("just some words\nacross lines\n"), want: core.ContentTypeText},
		{name: "png", raw: []byte("\x89PNG\r\n\x1a\n\x00\x00\x00\rIHDR"), wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Sniff(tt.raw)
			if tt.wantErr {
				assert.ErrorIs(t, err, core.ErrUnsupportedContentType)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}
