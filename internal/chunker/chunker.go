// Package chunker splits document text into overlapping, bounded windows.
package chunker

import (
	"strings"
	"unicode"

	"github.com/efebarandurmaz/docrag/internal/rag"
)

// DefaultChunkSize is the default number of characters per chunk.
const DefaultChunkSize = 1000

// DefaultChunkOverlap is the default number of characters shared by
// consecutive chunks.
const DefaultChunkOverlap = 200

// Chunker produces windows of at most size runes. Consecutive windows share
// exactly overlap runes, and cut points prefer paragraph breaks, then sentence
// ends, then whitespace.
type Chunker struct {
	size    int
	overlap int
}

// Option configures a Chunker.
type Option func(*Chunker)

// WithChunkSize sets the maximum chunk length in characters.
func WithChunkSize(size int) Option {
	return func(c *Chunker) {
		if size > 0 {
			c.size = size
		}
	}
}

// WithOverlap sets the overlap between consecutive chunks in characters.
func WithOverlap(overlap int) Option {
	return func(c *Chunker) {
		if overlap >= 0 {
			c.overlap = overlap
		}
	}
}

// New creates a Chunker.
func New(opts ...Option) *Chunker {
	c := &Chunker{
		size:    DefaultChunkSize,
		overlap: DefaultChunkOverlap,
	}
	for _, opt := range opts {
		opt(c)
	}

	// Overlap must leave room for progress.
	if c.overlap >= c.size {
		c.overlap = c.size / 4
	}
	return c
}

// Size returns the configured maximum chunk length.
func (c *Chunker) Size() int { return c.size }

// Overlap returns the configured overlap.
func (c *Chunker) Overlap() int { return c.overlap }

// Chunk splits a single text. Empty or whitespace-only input yields no chunks.
func (c *Chunker) Chunk(text string) []rag.Chunk {
	spans := c.Split(text)
	if len(spans) == 0 {
		return nil
	}
	chunks := make([]rag.Chunk, len(spans))
	for i, s := range spans {
		chunks[i] = rag.Chunk{Index: i, Text: s}
	}
	return chunks
}

// ChunkDocument chunks every page in order. Indexes continue across pages.
func (c *Chunker) ChunkDocument(doc rag.Document) []rag.Chunk {
	var chunks []rag.Chunk
	for _, page := range doc.Pages {
		for _, s := range c.Split(page) {
			chunks = append(chunks, rag.Chunk{Index: len(chunks), Text: s})
		}
	}
	return chunks
}

// Split returns the chunk texts for text.
func (c *Chunker) Split(text string) []string {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil
	}

	runes := []rune(text)
	n := len(runes)
	if n <= c.size {
		return []string{text}
	}

	spans := make([]string, 0, n/(c.size-c.overlap)+1)
	start := 0
	for {
		end := start + c.size
		if end >= n {
			spans = append(spans, string(runes[start:]))
			return spans
		}
		end = c.cutPoint(runes, start, end)
		spans = append(spans, string(runes[start:end]))
		start = end - c.overlap
	}
}

// cutPoint moves end back to the best boundary within the back half of the
// window. The result is always past start+overlap so every window advances.
func (c *Chunker) cutPoint(runes []rune, start, end int) int {
	lo := start + c.size/2
	if min := start + c.overlap + 1; lo < min {
		lo = min
	}

	for p := end; p >= lo; p-- {
		if p >= 2 && runes[p-1] == '\n' && runes[p-2] == '\n' {
			return p
		}
	}
	for p := end; p >= lo; p-- {
		if isSentenceEnd(runes[p-1]) && unicode.IsSpace(runes[p]) {
			return p
		}
	}
	for p := end; p >= lo; p-- {
		if unicode.IsSpace(runes[p-1]) {
			return p
		}
	}
	return end
}

func isSentenceEnd(r rune) bool {
	switch r {
	case '.', '!', '?', '。', '！', '？':
		return true
	}
	return false
}
