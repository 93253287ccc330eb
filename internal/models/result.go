package models

import (
	"errors"
	"time"
)

// SemanticSearchResult is a single search hit. ID is the document id; ChunkID names the matched chunk.
type SemanticSearchResult struct {
	ID         string          `json:"id"`
	ChunkID    string          `json:"chunk_id"`
	ChunkIndex int             `json:"chunk_index"`
	Content    string          `json:"content"`
	Metadata   ContentMetadata `json:"metadata"`
	Score      float64         `json:"score"`
	// Similarity is the vector similarity before any reranking blended Score.
	Similarity float64        `json:"similarity"`
	Chunks     []ContentChunk `json:"chunks,omitempty"`
}

// SemanticSearchResponse is the response of a semantic search.
type SemanticSearchResponse struct {
	Query        string                  `json:"query"`
	Results      []*SemanticSearchResult `json:"results"`
	TotalResults int                     `json:"total_results"`
	SearchTime   int64                   `json:"search_time_ms"`
	UsedFilters  map[string][]string     `json:"used_filters,omitempty"`
	Suggestions  []string                `json:"suggestions,omitempty"`
}

// SourceReference records which document contributed to a RAG context.
type SourceReference struct {
	DocumentID string      `json:"document_id"`
	Title      string      `json:"title,omitempty"`
	Type       ContentType `json:"content_type"`
	ChunkIDs   []string    `json:"chunk_ids"`
	Score      float64     `json:"score"`
}

// RAGContext is a token-bounded bundle of retrieved chunks plus provenance.
type RAGContext struct {
	Query           string            `json:"query"`
	Chunks          []ContentChunk    `json:"chunks"`
	TotalTokens     int               `json:"total_tokens"`
	Sources         []SourceReference `json:"sources"`
	Confidence      float64           `json:"confidence"`
	RetrievalMethod string            `json:"retrieval_method"`
	CreatedAt       time.Time         `json:"created_at"`
}

// BatchItemResult is the outcome of one item of a batch operation.
type BatchItemResult struct {
	ID  string `json:"id"`
	Err error  `json:"-"`
	// Error mirrors Err for JSON output.
	Error string `json:"error,omitempty"`
}

// BatchResult reports per-item success and failure of a best-effort batch operation.
type BatchResult struct {
	Items     []BatchItemResult `json:"items"`
	Succeeded int               `json:"succeeded"`
	Failed    int               `json:"failed"`
}

// Add records the outcome for id.
func (b *BatchResult) Add(id string, err error) {
	item := BatchItemResult{ID: id, Err: err}
	if err != nil {
		item.Error = err.Error()
		b.Failed++
	} else {
		b.Succeeded++
	}
	b.Items = append(b.Items, item)
}

// Err joins all item errors, or returns nil when every item succeeded.
func (b *BatchResult) Err() error {
	if b == nil || b.Failed == 0 {
		return nil
	}
	errs := make([]error, 0, b.Failed)
	for _, it := range b.Items {
		if it.Err != nil {
			errs = append(errs, it.Err)
		}
	}
	return errors.Join(errs...)
}
