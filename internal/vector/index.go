package vector

import (
	"context"
	"time"

	"github.com/hyperjump/sakuin/internal/models"
)

// VectorIndex holds groups of chunk vectors keyed by document ID and scores queries against them.
// Implementations must be safe for concurrent use.
type VectorIndex interface {
	// Update replaces every vector of docID with entries.
	Update(ctx context.Context, docID string, entries []Entry) error
	// Remove drops docID. Removing an unknown document is not an error.
	Remove(ctx context.Context, docID string) error
	// BatchUpdate applies each update independently; one failure does not undo the others.
	BatchUpdate(ctx context.Context, updates []DocumentVectors) *models.BatchResult
	// Search scores every accepted vector against query.
	Search(ctx context.Context, query []float32, params SearchParams) ([]*VectorResult, error)
	// Optimize compacts internal storage. Implementations may treat it as a no-op.
	Optimize(ctx context.Context) error
	Info() IndexInfo
	// Size returns the number of vectors in the index.
	Size() int
	Close() error
}

// Entry is one chunk vector of a document.
type Entry struct {
	ChunkID    string
	ChunkIndex int
	Vector     []float32
}

// DocumentVectors is the full vector set of one document.
type DocumentVectors struct {
	DocumentID string
	Entries    []Entry
}

// SearchParams bound a search. Accept, when set, limits the candidate set by document ID.
type SearchParams struct {
	TopK      int
	Threshold float64
	Accept    func(docID string) bool
}

// VectorResult is a single vector search hit.
type VectorResult struct {
	DocumentID string
	ChunkID    string
	ChunkIndex int
	Score      float64
}

// IndexInfo describes a named index.
type IndexInfo struct {
	Name           string            `json:"name"`
	Type           string            `json:"type"`
	Dimension      int               `json:"dimension"`
	Metric         Metric            `json:"metric"`
	TotalVectors   int               `json:"total_vectors"`
	TotalDocuments int               `json:"total_documents"`
	EstimatedBytes int64             `json:"estimated_bytes"`
	CreatedAt      time.Time         `json:"created_at"`
	LastOptimized  *time.Time        `json:"last_optimized,omitempty"`
	Configuration  map[string]string `json:"configuration,omitempty"`
}
