package chunking

import (
	"fmt"

	"github.com/poiesic/lexis/core"
)

const (
	// DefaultSize is the default number of runes per segment.
	DefaultSize = 2000

	// DefaultOverlap is the default number of runes shared by neighbouring segments.
	DefaultOverlap = 200
)

// Segment is one window of text with its rune offsets, End exclusive.
type Segment struct {
	Index   int
	Content string
	Start   int
	End     int
}

// Options holds chunking parameters.
type Options struct {
	Size    int
	Overlap int
}

// DefaultOptions returns the default chunking parameters.
func DefaultOptions() Options {
	return Options{Size: DefaultSize, Overlap: DefaultOverlap}
}

// Validate rejects parameters that would stall or skip text.
func (o Options) Validate() error {
	if o.Size <= 0 {
		return fmt.Errorf("%w: chunk size must be positive, got %d", core.ErrConfiguration, o.Size)
	}
	if o.Overlap < 0 {
		return fmt.Errorf("%w: chunk overlap cannot be negative, got %d", core.ErrConfiguration, o.Overlap)
	}
	if o.Overlap >= o.Size {
		return fmt.Errorf("%w: chunk overlap %d must be smaller than size %d", core.ErrConfiguration, o.Overlap, o.Size)
	}
	return nil
}

// Chunk splits text with a sliding window of size runes advancing by size-overlap.
// The final segment may be shorter; a zero-length final segment is never produced.
// Empty text yields no segments.
func Chunk(text string, size, overlap int) ([]Segment, error) {
	opts := Options{Size: size, Overlap: overlap}
	if err := opts.Validate(); err != nil {
		return nil, err
	}

	runes := []rune(text)
	length := len(runes)
	if length == 0 {
		return nil, nil
	}

	step := size - overlap
	segments := make([]Segment, 0, length/step+1)
	for i := 0; ; i++ {
		start := i * step
		if start >= length {
			break
		}
		end := min(start+size, length)
		segments = append(segments, Segment{
			Index:   i,
			Content: string(runes[start:end]),
			Start:   start,
			End:     end,
		})
		if end == length {
			break
		}
	}
	return segments, nil
}

// ChunkWith splits text using the given options.
func ChunkWith(text string, opts Options) ([]Segment, error) {
	return Chunk(text, opts.Size, opts.Overlap)
}
