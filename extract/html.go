package extract

import (
	"bytes"
	"fmt"
	"io"
	"strings"

	htmltomarkdown "github.com/JohannesKaufmann/html-to-markdown/v2"
	"github.com/poiesic/lexis/core"
	"golang.org/x/net/html"
)

var skippedTags = map[string]bool{
	"script":   true,
	"style":    true,
	"noscript": true,
	"template": true,
	"head":     true,
}

var blockTags = map[string]bool{
	"p": true, "div": true, "br": true, "li": true, "tr": true,
	"h1": true, "h2": true, "h3": true, "h4": true, "h5": true, "h6": true,
	"section": true, "article": true, "header": true, "footer": true,
	"blockquote": true, "pre": true, "table": true, "ul": true, "ol": true,
}

func extractHTML(raw []byte, mode HTMLMode) (string, error) {
	if mode == HTMLMarkdown {
		markdown, err := htmltomarkdown.ConvertString(toValidUTF8(raw))
		if err != nil {
			return "", fmt.Errorf("%w: failed to convert HTML: %w", core.ErrExtraction, err)
		}
		return strings.TrimSpace(markdown), nil
	}
	return htmlText(bytes.NewReader(raw))
}

// htmlText parses the document into a tree and keeps visible text.
// Block-level elements start a new line; runs of inline whitespace collapse to one space.
func htmlText(body io.Reader) (string, error) {
	doc, err := html.Parse(body)
	if err != nil {
		return "", fmt.Errorf("%w: failed to parse HTML: %w", core.ErrExtraction, err)
	}

	var (
		lines []string
		line  []string
	)
	flush := func() {
		if len(line) > 0 {
			lines = append(lines, strings.Join(line, " "))
			line = line[:0]
		}
	}

	var walk func(n *html.Node)
	walk = func(n *html.Node) {
		switch n.Type {
		case html.TextNode:
			line = append(line, strings.Fields(n.Data)...)
			return
		case html.ElementNode:
			if skippedTags[n.Data] {
				return
			}
		}

		block := n.Type == html.ElementNode && blockTags[n.Data]
		if block {
			flush()
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
		if block {
			flush()
		}
	}
	walk(doc)
	flush()
	return strings.Join(lines, "\n"), nil
}
