package resolve

import (
	"strings"
	"unicode"
)

// leadingWords are dropped from the front of a label. Titles and articles do
// not distinguish entities.
var leadingWords = map[string]bool{
	"the": true, "a": true, "an": true,
	"mr": true, "mrs": true, "ms": true, "mx": true, "dr": true,
	"prof": true, "professor": true, "sir": true, "dame": true,
	"hon": true, "honorable": true, "honourable": true,
}

// NormalizeLabel returns the grouping form of an entity label: lowercased,
// whitespace collapsed, surrounding punctuation trimmed and leading articles
// and honorifics removed. A label is never reduced to nothing, so "The" stays
// "the". NormalizeLabel(NormalizeLabel(s)) == NormalizeLabel(s).
func NormalizeLabel(label string) string {
	s := label
	for {
		s = strings.Join(strings.Fields(strings.ToLower(s)), " ")
		s = strings.TrimFunc(s, isTrimmable)

		words := strings.Fields(s)
		if len(words) < 2 || !leadingWords[strings.TrimRight(words[0], ".")] {
			return s
		}
		s = strings.Join(words[1:], " ")
	}
}

func isTrimmable(r rune) bool {
	return unicode.IsSpace(r) || unicode.IsPunct(r) || unicode.IsSymbol(r)
}

// surfaceForm collapses whitespace but keeps casing and punctuation.
func surfaceForm(label string) string {
	return strings.Join(strings.Fields(label), " ")
}
