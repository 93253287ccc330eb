// Package rag answers semantic queries over the vector store and assembles token-bounded
// contexts for language models.
package rag

import (
	"context"
	"errors"
	"sync/atomic"
	"time"

	"github.com/hyperjump/sakuin/internal/cache"
	"github.com/hyperjump/sakuin/internal/embedding"
	"github.com/hyperjump/sakuin/internal/models"
	"go.uber.org/zap"
)

// Searcher is the part of the vector store the service queries.
type Searcher interface {
	Search(ctx context.Context, embedding []float32, topK int, threshold float64, filters ...models.Filter) ([]*models.SemanticSearchResult, error)
	// Generation changes on every write; cached responses are keyed on it.
	Generation() uint64
}

// Config holds search and context defaults.
type Config struct {
	DefaultTopK      int
	MaxTopK          int
	DefaultThreshold float64
	// ContextTopK and ContextThreshold drive GetRelevantContext.
	ContextTopK      int
	ContextThreshold float64
	// DefaultMaxTokens is the context budget when the caller passes none.
	DefaultMaxTokens int
	CacheTTL         time.Duration
}

// DefaultConfig returns the stock settings.
func DefaultConfig() Config {
	return Config{
		DefaultTopK:      10,
		MaxTopK:          100,
		DefaultThreshold: 0.5,
		ContextTopK:      20,
		ContextThreshold: 0.6,
		DefaultMaxTokens: 2000,
		CacheTTL:         5 * time.Minute,
	}
}

// Service runs semantic searches and builds RAG contexts.
type Service struct {
	store     Searcher
	embedder  embedding.Embedder
	reranker  Reranker
	estimator TokenEstimator
	cache     *cache.Cache
	cacheGen  atomic.Uint64
	cfg       Config
	logger    *zap.Logger // optional; when set, logs debug events
}

// Option configures a Service.
type Option func(*Service)

// WithLogger sets a logger for debug output.
func WithLogger(l *zap.Logger) Option {
	return func(s *Service) { s.logger = l }
}

// WithReranker replaces the default ScoreReranker.
func WithReranker(r Reranker) Option {
	return func(s *Service) { s.reranker = r }
}

// WithEstimator replaces the default CharClassEstimator.
func WithEstimator(e TokenEstimator) Option {
	return func(s *Service) { s.estimator = e }
}

// WithCache caches search responses in c. Without it responses are not cached.
func WithCache(c *cache.Cache) Option {
	return func(s *Service) { s.cache = c }
}

// NewService creates a service over store and embedder.
func NewService(store Searcher, embedder embedding.Embedder, cfg Config, opts ...Option) *Service {
	def := DefaultConfig()
	if cfg.DefaultTopK <= 0 {
		cfg.DefaultTopK = def.DefaultTopK
	}
	if cfg.MaxTopK <= 0 {
		cfg.MaxTopK = def.MaxTopK
	}
	if cfg.ContextTopK <= 0 {
		cfg.ContextTopK = def.ContextTopK
	}
	if cfg.ContextThreshold == 0 {
		cfg.ContextThreshold = def.ContextThreshold
	}
	if cfg.DefaultMaxTokens <= 0 {
		cfg.DefaultMaxTokens = def.DefaultMaxTokens
	}
	s := &Service{
		store:     store,
		embedder:  embedder,
		reranker:  ScoreReranker{},
		estimator: CharClassEstimator{},
		cfg:       cfg,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Method reports the retrieval method of the configured reranker.
func (s *Service) Method() string {
	return s.reranker.Method()
}

// SemanticSearch embeds query and searches the store. A zero threshold in opts means the
// configured default; pass a negative threshold to keep every hit. Hits are grouped per
// document, best first; with IncludeChunks each result carries its matched chunks. Every
// failure is returned as a *models.SearchError.
func (s *Service) SemanticSearch(ctx context.Context, query string, filters *models.SearchFilters, opts models.SearchOptions) (*models.SemanticSearchResponse, error) {
	start := time.Now()
	req := models.SemanticSearchRequest{Query: query, Filters: filters, Options: opts}
	if err := req.Validate(); err != nil {
		return nil, &models.SearchError{Err: err}
	}
	if err := opts.Validate(s.cfg.DefaultTopK, s.cfg.MaxTopK); err != nil {
		return nil, &models.SearchError{Err: err}
	}
	if opts.Threshold == 0 {
		opts.Threshold = s.cfg.DefaultThreshold
	}

	gen := s.store.Generation()
	if s.cache != nil && s.cacheGen.Swap(gen) != gen {
		// Entries of older generations can never hit again.
		s.cache.Purge()
	}
	key := cache.Key("semanticSearch", query, filters, opts, s.reranker.Method(), gen)
	if cached, ok := cache.Get[*models.SemanticSearchResponse](s.cache, key); ok {
		if s.logger != nil {
			s.logger.Debug("semantic search cache hit", zap.String("query", query))
		}
		return cloneResponse(cached), nil
	}

	vec, err := s.embedder.Embed(ctx, query)
	if err != nil {
		return nil, &models.SearchError{Err: asEmbeddingError(err)}
	}
	results, err := s.store.Search(ctx, vec, opts.TopK, opts.Threshold, filters.ToFilters()...)
	if err != nil {
		return nil, asSearchError(err)
	}

	for _, r := range results {
		r.Similarity = r.Score
	}
	results = groupByDocument(results)
	if !opts.IncludeChunks {
		for _, r := range results {
			r.Chunks = nil
		}
	}
	if opts.EnableReranking {
		if results, err = s.reranker.Rerank(ctx, query, results); err != nil {
			return nil, asSearchError(err)
		}
	}

	resp := &models.SemanticSearchResponse{
		Query:        query,
		Results:      results,
		TotalResults: len(results),
		SearchTime:   time.Since(start).Milliseconds(),
		UsedFilters:  filters.Describe(),
		Suggestions:  suggest(query, results),
	}
	if s.cache != nil {
		s.cache.Set(key, cloneResponse(resp), s.cfg.CacheTTL)
	}
	if s.logger != nil {
		s.logger.Debug("semantic search", zap.String("query", query), zap.Int("results", len(results)),
			zap.Int64("ms", resp.SearchTime))
	}
	return resp, nil
}

// GetRelevantContext retrieves chunks for query and packs them greedily, in relevance order,
// into at most maxTokens estimated tokens. Chunks are never cut: a chunk that would overflow
// ends its result and the next result is tried. An empty projectID searches every project.
func (s *Service) GetRelevantContext(ctx context.Context, query, projectID string, maxTokens int) (*models.RAGContext, error) {
	if maxTokens <= 0 {
		maxTokens = s.cfg.DefaultMaxTokens
	}
	var filters *models.SearchFilters
	if projectID != "" {
		filters = &models.SearchFilters{ProjectIDs: []string{projectID}}
	}
	resp, err := s.SemanticSearch(ctx, query, filters, models.SearchOptions{
		TopK:            s.cfg.ContextTopK,
		Threshold:       s.cfg.ContextThreshold,
		IncludeChunks:   true,
		EnableReranking: true,
	})
	if err != nil {
		return nil, err
	}

	out := &models.RAGContext{
		Query:           query,
		Chunks:          []models.ContentChunk{},
		Sources:         []models.SourceReference{},
		RetrievalMethod: s.reranker.Method(),
		CreatedAt:       time.Now().UTC(),
	}
	var scoreSum float64
	for _, r := range resp.Results {
		if out.TotalTokens >= maxTokens {
			break
		}
		var used []string
		for _, ch := range contextChunks(r) {
			n := s.estimator.Estimate(ch.Text)
			if out.TotalTokens+n > maxTokens {
				break
			}
			out.TotalTokens += n
			out.Chunks = append(out.Chunks, ch)
			used = append(used, ch.ID)
		}
		if len(used) == 0 {
			continue
		}
		scoreSum += r.Similarity
		out.Sources = append(out.Sources, models.SourceReference{
			DocumentID: r.ID,
			Title:      r.Metadata.Source.Title,
			Type:       r.Metadata.Type,
			ChunkIDs:   used,
			Score:      r.Score,
		})
	}
	if len(out.Sources) > 0 {
		out.Confidence = scoreSum / float64(len(out.Sources))
	}
	return out, nil
}

// SearchSimilarContent embeds query and returns the raw chunk hits of the store.
func (s *Service) SearchSimilarContent(ctx context.Context, query, projectID string, topK int, threshold float64) ([]*models.SemanticSearchResult, error) {
	if query == "" {
		return nil, &models.SearchError{Err: models.InvalidInputf("query cannot be empty")}
	}
	vec, err := s.embedder.Embed(ctx, query)
	if err != nil {
		return nil, &models.SearchError{Err: asEmbeddingError(err)}
	}
	var filters []models.Filter
	if projectID != "" {
		filters = append(filters, models.ProjectIDsIn{projectID})
	}
	results, err := s.store.Search(ctx, vec, topK, threshold, filters...)
	if err != nil {
		return nil, asSearchError(err)
	}
	return results, nil
}

// groupByDocument merges chunk hits of the same document into one result positioned at its
// best hit. Chunks keep hit order.
func groupByDocument(hits []*models.SemanticSearchResult) []*models.SemanticSearchResult {
	byDoc := make(map[string]*models.SemanticSearchResult, len(hits))
	out := make([]*models.SemanticSearchResult, 0, len(hits))
	for _, h := range hits {
		g, ok := byDoc[h.ID]
		if !ok {
			g = h
			g.Chunks = append([]models.ContentChunk(nil), h.Chunks...)
			byDoc[h.ID] = g
			out = append(out, g)
			continue
		}
		g.Chunks = append(g.Chunks, h.Chunks...)
	}
	return out
}

// contextChunks returns the chunks a result contributes, falling back to its snippet.
func contextChunks(r *models.SemanticSearchResult) []models.ContentChunk {
	if len(r.Chunks) > 0 {
		return r.Chunks
	}
	return []models.ContentChunk{{ID: r.ChunkID, Text: r.Content}}
}

func cloneResponse(r *models.SemanticSearchResponse) *models.SemanticSearchResponse {
	out := *r
	out.Results = make([]*models.SemanticSearchResult, len(r.Results))
	for i, res := range r.Results {
		c := *res
		c.Chunks = append([]models.ContentChunk(nil), res.Chunks...)
		out.Results[i] = &c
	}
	out.Suggestions = append([]string(nil), r.Suggestions...)
	return &out
}

func asEmbeddingError(err error) error {
	var embErr *models.EmbeddingError
	if errors.As(err, &embErr) {
		return err
	}
	return &models.EmbeddingError{Err: err}
}

func asSearchError(err error) error {
	var se *models.SearchError
	if errors.As(err, &se) {
		return err
	}
	return &models.SearchError{Err: err}
}
