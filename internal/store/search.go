package store

import (
	"context"
	"time"

	"github.com/hyperjump/sakuin/internal/models"
	"github.com/hyperjump/sakuin/internal/vector"
	"github.com/hyperjump/sakuin/pkg/utils"
	"go.uber.org/zap"
)

// Search returns up to topK chunk hits scoring at least threshold, best first. Filters restrict
// the candidate documents before scoring. Hits whose document vanished concurrently are dropped.
// Every failure is returned as a *models.SearchError.
func (s *VectorStore) Search(ctx context.Context, embedding []float32, topK int, threshold float64, filters ...models.Filter) ([]*models.SemanticSearchResult, error) {
	start := time.Now()
	results, candidates, err := s.search(ctx, embedding, topK, threshold, filters)
	s.perf.record(time.Since(start), candidates, err)
	if err != nil {
		return nil, &models.SearchError{Err: err}
	}
	return results, nil
}

func (s *VectorStore) search(ctx context.Context, embedding []float32, topK int, threshold float64, filters []models.Filter) ([]*models.SemanticSearchResult, int, error) {
	if topK <= 0 {
		return nil, 0, models.InvalidInputf("topK must be positive, got %d", topK)
	}
	if len(embedding) != s.cfg.Dimension {
		return nil, 0, &models.DimensionError{Expected: s.cfg.Dimension, Actual: len(embedding)}
	}

	params := vector.SearchParams{TopK: topK, Threshold: threshold}
	candidates := -1
	if len(filters) > 0 {
		allowed, err := s.storage.MatchingDocumentIDs(ctx, filters)
		if err != nil {
			return nil, 0, err
		}
		if len(allowed) == 0 {
			return []*models.SemanticSearchResult{}, 0, nil
		}
		candidates = len(allowed)
		params.Accept = func(docID string) bool {
			_, ok := allowed[docID]
			return ok
		}
	}

	release, err := s.acquireIndex(ctx)
	if err != nil {
		return nil, 0, err
	}
	hits, err := s.manager.Search(ctx, s.cfg.IndexName, embedding, params)
	if candidates < 0 {
		if info, infoErr := s.manager.Info(s.cfg.IndexName); infoErr == nil {
			candidates = info.TotalDocuments
		}
	}
	release()
	if err != nil {
		return nil, 0, err
	}
	results, err := s.hydrate(ctx, hits)
	return results, candidates, err
}

// hydrate attaches document metadata and chunk text to vector hits.
func (s *VectorStore) hydrate(ctx context.Context, hits []*vector.VectorResult) ([]*models.SemanticSearchResult, error) {
	if len(hits) == 0 {
		return []*models.SemanticSearchResult{}, nil
	}
	docIDs := make([]string, 0, len(hits))
	chunkIDs := make([]string, 0, len(hits))
	seen := make(map[string]struct{}, len(hits))
	for _, h := range hits {
		if _, ok := seen[h.DocumentID]; !ok {
			seen[h.DocumentID] = struct{}{}
			docIDs = append(docIDs, h.DocumentID)
		}
		chunkIDs = append(chunkIDs, h.ChunkID)
	}
	docs, err := s.storage.GetDocuments(ctx, docIDs)
	if err != nil {
		return nil, err
	}
	chunks, err := s.storage.GetChunksByID(ctx, chunkIDs)
	if err != nil {
		return nil, err
	}

	results := make([]*models.SemanticSearchResult, 0, len(hits))
	for _, h := range hits {
		doc, ok := docs[h.DocumentID]
		if !ok {
			if s.logger != nil {
				s.logger.Debug("dropping hit for missing document", zap.String("id", h.DocumentID))
			}
			continue
		}
		r := &models.SemanticSearchResult{
			ID:         h.DocumentID,
			ChunkID:    h.ChunkID,
			ChunkIndex: h.ChunkIndex,
			Metadata:   doc.Metadata,
			Score:      h.Score,
			Similarity: h.Score,
		}
		if ch, ok := chunks[h.ChunkID]; ok {
			r.Content = Snippet(ch.Text, s.cfg.SnippetLength)
			r.Chunks = []models.ContentChunk{ch}
		}
		results = append(results, r)
	}
	return results, nil
}

// BatchSearch runs one search per embedding. Result i belongs to embeddings[i];
// the first failure aborts the batch.
func (s *VectorStore) BatchSearch(ctx context.Context, embeddings [][]float32, topK int, threshold float64, filters ...models.Filter) ([][]*models.SemanticSearchResult, error) {
	out := make([][]*models.SemanticSearchResult, len(embeddings))
	for i, emb := range embeddings {
		if err := ctx.Err(); err != nil {
			return nil, &models.SearchError{Err: err}
		}
		res, err := s.Search(ctx, emb, topK, threshold, filters...)
		if err != nil {
			return nil, err
		}
		out[i] = res
	}
	return out, nil
}

// Snippet truncates text to at most n runes, appending an ellipsis when cut.
func Snippet(text string, n int) string {
	return utils.Truncate(text, n)
}
