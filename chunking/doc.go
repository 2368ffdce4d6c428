// Package chunking splits extracted document text into overlapping,
// fixed-size segments.
//
// Segment i starts at i*(size-overlap) runes and spans size runes, clamped to
// the end of the text. Offsets are rune offsets so multi-byte text never
// splits inside a character. Chunking is pure and deterministic, which lets a
// resumed document reuse chunks persisted by an earlier attempt.
package chunking
