package rag

import (
	"context"
	"fmt"
	"sort"

	"github.com/hyperjump/sakuin/internal/keyword"
	"github.com/hyperjump/sakuin/internal/models"
)

// Retrieval methods reported in RAG contexts.
const (
	MethodSemantic = "semantic"
	MethodHybrid   = "hybrid"
)

// Reranker reorders search results. Implementations may rewrite scores.
type Reranker interface {
	Rerank(ctx context.Context, query string, results []*models.SemanticSearchResult) ([]*models.SemanticSearchResult, error)
	// Method names the retrieval method the reranker yields.
	Method() string
}

// ScoreReranker sorts results by descending score, keeping the order of equal scores.
type ScoreReranker struct{}

// Rerank sorts results in place and returns them.
func (ScoreReranker) Rerank(_ context.Context, _ string, results []*models.SemanticSearchResult) ([]*models.SemanticSearchResult, error) {
	sortByScore(results)
	return results, nil
}

// Method returns MethodSemantic.
func (ScoreReranker) Method() string { return MethodSemantic }

// KeywordReranker blends vector similarity with BM25 scores from a keyword index. Keyword
// scores are normalized to [0,1] by the best keyword hit among the results, and the final
// score is (1-alpha)*vector + alpha*keyword.
type KeywordReranker struct {
	index keyword.KeywordIndex
	alpha float64
}

// NewKeywordReranker returns a reranker over index. alpha is clamped to [0,1].
func NewKeywordReranker(index keyword.KeywordIndex, alpha float64) *KeywordReranker {
	alpha = min(max(alpha, 0), 1)
	return &KeywordReranker{index: index, alpha: alpha}
}

// Rerank rescores results against the keyword index restricted to the results' chunks.
func (r *KeywordReranker) Rerank(ctx context.Context, query string, results []*models.SemanticSearchResult) ([]*models.SemanticSearchResult, error) {
	if len(results) == 0 || r.alpha == 0 {
		sortByScore(results)
		return results, nil
	}
	var chunkIDs []string
	for _, res := range results {
		chunkIDs = append(chunkIDs, resultChunkIDs(res)...)
	}
	hits, err := r.index.Search(ctx, query, len(chunkIDs), &keyword.SearchOptions{ChunkIDs: chunkIDs})
	if err != nil {
		return nil, fmt.Errorf("keyword rerank: %w", err)
	}
	byChunk := make(map[string]float64, len(hits))
	var best float64
	for _, h := range hits {
		byChunk[h.ChunkID] = h.Score
		best = max(best, h.Score)
	}
	for _, res := range results {
		var kw float64
		if best > 0 {
			for _, id := range resultChunkIDs(res) {
				kw = max(kw, byChunk[id]/best)
			}
		}
		res.Score = (1-r.alpha)*res.Score + r.alpha*kw
	}
	sortByScore(results)
	return results, nil
}

// Method returns MethodHybrid.
func (r *KeywordReranker) Method() string { return MethodHybrid }

func resultChunkIDs(res *models.SemanticSearchResult) []string {
	if len(res.Chunks) == 0 {
		return []string{res.ChunkID}
	}
	ids := make([]string, len(res.Chunks))
	for i, ch := range res.Chunks {
		ids[i] = ch.ID
	}
	return ids
}

func sortByScore(results []*models.SemanticSearchResult) {
	sort.SliceStable(results, func(i, j int) bool { return results[i].Score > results[j].Score })
}
