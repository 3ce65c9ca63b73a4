package fs

import (
	"fmt"
	"strings"
)

// sentenceTerminators are the characters a chunk prefers to end on.
const sentenceTerminators = ".!?\n"

// span is a half-open range of rune indices into the source text.
type span struct {
	start, end int
}

// Split divides text into overlapping chunks of at most chunkSize characters.
//
// Each window is cut just after the last sentence terminator it contains, or at
// the raw boundary when there is none. The next window starts overlap
// characters before the cut. Once the remaining text fits in one window it is
// emitted whole.
func Split(text string, chunkSize, overlap int) ([]string, error) {
	runes := []rune(text)
	spans, err := splitSpans(runes, chunkSize, overlap)
	if err != nil {
		return nil, err
	}

	chunks := make([]string, len(spans))
	for i, s := range spans {
		chunks[i] = string(runes[s.start:s.end])
	}
	return chunks, nil
}

func validateChunkParams(chunkSize, overlap int) error {
	if chunkSize <= 0 {
		return fmt.Errorf("%w: chunk size must be positive, got %d", ErrInvalidParameter, chunkSize)
	}
	if overlap < 0 || overlap >= chunkSize {
		return fmt.Errorf("%w: overlap must be in [0, %d), got %d", ErrInvalidParameter, chunkSize, overlap)
	}
	return nil
}

func splitSpans(text []rune, chunkSize, overlap int) ([]span, error) {
	if err := validateChunkParams(chunkSize, overlap); err != nil {
		return nil, err
	}

	spans := []span{}
	start := 0
	for start < len(text) {
		end := start + chunkSize
		if end >= len(text) {
			spans = append(spans, span{start, len(text)})
			break
		}

		cut := breakPoint(text, start, end)
		// A break this close to the window start would not move the next
		// window forward, so fall back to the raw boundary.
		if cut-overlap <= start {
			cut = end
		}
		spans = append(spans, span{start, cut})
		start = cut - overlap
	}

	return spans, nil
}

// breakPoint returns the position just after the last terminator in
// text(start, end), or end when the window has none.
func breakPoint(text []rune, start, end int) int {
	for i := end - 1; i > start; i-- {
		if strings.ContainsRune(sentenceTerminators, text[i]) {
			return i + 1
		}
	}
	return end
}

// TextChunker implements Chunker using Split.
type TextChunker struct {
	opts ChunkOptions
}

var _ Chunker = (*TextChunker)(nil)

// NewTextChunker creates a new text chunker.
func NewTextChunker(opts ChunkOptions) (*TextChunker, error) {
	if err := validateChunkParams(opts.ChunkSize, opts.ChunkOverlap); err != nil {
		return nil, err
	}
	return &TextChunker{opts: opts}, nil
}

// Options returns the chunker's configuration.
func (c *TextChunker) Options() ChunkOptions {
	return c.opts
}

// Chunk splits content into indexed chunks with their character offsets.
func (c *TextChunker) Chunk(content string) ([]Chunk, error) {
	runes := []rune(content)
	spans, err := splitSpans(runes, c.opts.ChunkSize, c.opts.ChunkOverlap)
	if err != nil {
		return nil, err
	}

	chunks := make([]Chunk, len(spans))
	for i, s := range spans {
		chunks[i] = Chunk{
			Content:    string(runes[s.start:s.end]),
			StartChar:  s.start,
			EndChar:    s.end,
			ChunkIndex: i,
		}
	}
	return chunks, nil
}
