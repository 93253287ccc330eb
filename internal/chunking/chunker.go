// Package chunking splits content into overlapping word windows that keep their source offsets.
package chunking

import (
	"fmt"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/hyperjump/sakuin/internal/models"
)

// Default window sizes, in words.
const (
	DefaultChunkSize    = 200
	DefaultChunkOverlap = 40
)

// Chunker splits a document's text into ordered chunks.
type Chunker interface {
	Chunk(docID, text string) []*models.ContentChunk
}

// WordChunker splits text into overlapping word-based chunks.
type WordChunker struct {
	chunkSize    int
	chunkOverlap int
}

// NewWordChunker creates a chunker with the given size and overlap (in words).
// Non-positive sizes fall back to the defaults; an overlap >= size degrades to a step of one word.
func NewWordChunker(chunkSize, chunkOverlap int) *WordChunker {
	if chunkSize <= 0 {
		chunkSize = DefaultChunkSize
	}
	if chunkOverlap < 0 {
		chunkOverlap = 0
	}
	return &WordChunker{
		chunkSize:    chunkSize,
		chunkOverlap: chunkOverlap,
	}
}

// ChunkID is the id of chunk i of docID.
func ChunkID(docID string, i int) string {
	return fmt.Sprintf("%s_chunk_%d", docID, i)
}

type span struct {
	start, end int // byte offsets into the source text
}

// Chunk splits text into chunks with overlapping windows. Chunk text is the window's words
// joined by single spaces; StartIndex and EndIndex are byte offsets into text.
// Whitespace-only text yields nil.
func (c *WordChunker) Chunk(docID, text string) []*models.ContentChunk {
	words := wordSpans(text)
	if len(words) == 0 {
		return nil
	}
	step := c.chunkSize - c.chunkOverlap
	if step <= 0 {
		step = 1
	}
	chunks := make([]*models.ContentChunk, 0, len(words)/step+1)
	for i := 0; i < len(words); i += step {
		end := i + c.chunkSize
		if end > len(words) {
			end = len(words)
		}
		parts := make([]string, 0, end-i)
		for _, w := range words[i:end] {
			parts = append(parts, text[w.start:w.end])
		}
		n := len(chunks)
		chunks = append(chunks, &models.ContentChunk{
			ID:         ChunkID(docID, n),
			Text:       strings.Join(parts, " "),
			StartIndex: words[i].start,
			EndIndex:   words[end-1].end,
			Metadata:   models.ChunkMetadata{ChunkNumber: n},
		})
		if end >= len(words) {
			break
		}
	}
	for _, ch := range chunks {
		ch.Metadata.TotalChunks = len(chunks)
	}
	return chunks
}

func wordSpans(text string) []span {
	var spans []span
	start := -1
	for i := 0; i < len(text); {
		r, size := utf8.DecodeRuneInString(text[i:])
		if unicode.IsSpace(r) {
			if start >= 0 {
				spans = append(spans, span{start: start, end: i})
				start = -1
			}
		} else if start < 0 {
			start = i
		}
		i += size
	}
	if start >= 0 {
		spans = append(spans, span{start: start, end: len(text)})
	}
	return spans
}

// Preprocess normalizes text for indexing (trim, collapse whitespace).
func Preprocess(text string) string {
	text = strings.TrimSpace(text)
	var b strings.Builder
	b.Grow(len(text))
	wasSpace := false
	for _, r := range text {
		if unicode.IsSpace(r) {
			if !wasSpace {
				b.WriteRune(' ')
				wasSpace = true
			}
		} else {
			b.WriteRune(r)
			wasSpace = false
		}
	}
	return b.String()
}
