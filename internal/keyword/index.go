// Package keyword provides a BM25 full-text index over chunk text, used as a lexical signal
// next to vector similarity.
package keyword

import (
	"context"

	"github.com/hyperjump/sakuin/internal/models"
)

// SearchOptions optional parameters for keyword search. Nil means use defaults.
type SearchOptions struct {
	// TitleBoost multiplies the score contribution from matches in the title field.
	// Values > 1 make title matches rank higher (e.g. 3.0). Use 1.0 for no boost.
	TitleBoost float64
	// FuzzyEnabled enables fuzzy matching for typo tolerance.
	FuzzyEnabled bool
	// Fuzziness is the maximum Levenshtein edit distance for fuzzy matching (1 or 2).
	// Default is 2 when FuzzyEnabled is true.
	Fuzziness int
	// ChunkIDs, when non-empty, restricts results to these chunks.
	ChunkIDs []string
	// ProjectIDs, when non-empty, restricts results to chunks of these projects.
	ProjectIDs []string
}

// KeywordIndex indexes chunk text per document and scores queries against it.
type KeywordIndex interface {
	// IndexDocument replaces every indexed chunk of docID.
	IndexDocument(ctx context.Context, docID string, meta models.ContentMetadata, chunks []models.ContentChunk) error
	// DeleteDocument removes every chunk of docID. Unknown documents are ignored.
	DeleteDocument(ctx context.Context, docID string) error
	Search(ctx context.Context, query string, limit int, opts *SearchOptions) ([]*KeywordResult, error)
	// DocCount returns the number of indexed chunks.
	DocCount() (uint64, error)
	Close() error
}

// KeywordResult is a single keyword search hit on one chunk.
type KeywordResult struct {
	ChunkID    string
	DocumentID string
	Score      float64
}
