package rag

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/hyperjump/sakuin/internal/cache"
	"github.com/hyperjump/sakuin/internal/embedding"
	"github.com/hyperjump/sakuin/internal/indexer"
	"github.com/hyperjump/sakuin/internal/keyword"
	"github.com/hyperjump/sakuin/internal/models"
	"github.com/hyperjump/sakuin/internal/storage"
	"github.com/hyperjump/sakuin/internal/store"
	"github.com/hyperjump/sakuin/internal/vector"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeSearcher returns copies of fixed results and records its calls.
type fakeSearcher struct {
	results   []*models.SemanticSearchResult
	err       error
	gen       uint64
	calls     int
	topK      int
	threshold float64
	filters   []models.Filter
}

func (f *fakeSearcher) Search(_ context.Context, _ []float32, topK int, threshold float64, filters ...models.Filter) ([]*models.SemanticSearchResult, error) {
	f.calls++
	f.topK, f.threshold, f.filters = topK, threshold, filters
	if f.err != nil {
		return nil, f.err
	}
	out := make([]*models.SemanticSearchResult, len(f.results))
	for i, r := range f.results {
		c := *r
		c.Chunks = append([]models.ContentChunk(nil), r.Chunks...)
		out[i] = &c
	}
	return out, nil
}

func (f *fakeSearcher) Generation() uint64 { return f.gen }

func hit(doc, chunk, text string, score float64) *models.SemanticSearchResult {
	return &models.SemanticSearchResult{
		ID:       doc,
		ChunkID:  chunk,
		Content:  text,
		Score:    score,
		Metadata: models.ContentMetadata{ID: doc, Type: models.ContentTypeDocument, Source: models.SourceInfo{Title: doc + ".txt"}},
		Chunks:   []models.ContentChunk{{ID: chunk, Text: text}},
	}
}

func TestCharClassEstimator(t *testing.T) {
	var e CharClassEstimator
	tests := []struct {
		text string
		want int
	}{
		{"", 0},
		{"abcd", 1},
		{"abcde", 2},
		{"日本語", 2},
		{"日本", 2},
		{"한국어", 2},
		{"abcd日本語", 3},
		{strings.Repeat("x", 400), 100},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, e.Estimate(tt.text), "Estimate(%q)", tt.text)
	}
}

func TestSuggest(t *testing.T) {
	results := []*models.SemanticSearchResult{
		{Content: "Vector index tuning and vector recall"},
		{Content: "Recall depends on index size; an ok go"},
	}
	// recall and vector appear twice; "and" wins the alphabetical tie among singletons.
	assert.Equal(t, []string{"index recall", "index vector", "index and"}, suggest("index", results))
	assert.Empty(t, suggest("q", nil))
}

func TestSemanticSearch_ungroupedAndFilters(t *testing.T) {
	fs := &fakeSearcher{results: []*models.SemanticSearchResult{
		hit("a", "a_chunk_0", "alpha text", 0.9),
		hit("a", "a_chunk_1", "alpha more", 0.8),
	}}
	svc := NewService(fs, embedding.NewMockEmbedder(4), Config{})
	filters := &models.SearchFilters{ProjectIDs: []string{"p1"}, Tags: []string{"x"}}

	resp, err := svc.SemanticSearch(context.Background(), "alpha", filters, models.SearchOptions{})
	require.NoError(t, err)
	assert.Equal(t, 1, resp.TotalResults)
	assert.Nil(t, resp.Results[0].Chunks)
	assert.Equal(t, 0.9, resp.Results[0].Score)
	assert.Equal(t, 10, fs.topK)
	assert.Equal(t, 0.5, fs.threshold)
	assert.Equal(t, []models.Filter{models.ProjectIDsIn{"p1"}, models.TagsAny{"x"}}, fs.filters)
	assert.Equal(t, map[string][]string{"project_ids": {"p1"}, "tags": {"x"}}, resp.UsedFilters)

	withChunks, err := svc.SemanticSearch(context.Background(), "alpha", filters, models.SearchOptions{IncludeChunks: true})
	require.NoError(t, err)
	assert.Equal(t, resp.TotalResults, withChunks.TotalResults)
	assert.Len(t, withChunks.Results[0].Chunks, 2)
}

func TestSemanticSearch_groupsChunks(t *testing.T) {
	fs := &fakeSearcher{results: []*models.SemanticSearchResult{
		hit("a", "a_chunk_1", "one", 0.9),
		hit("b", "b_chunk_0", "two", 0.85),
		hit("a", "a_chunk_0", "three", 0.7),
	}}
	svc := NewService(fs, embedding.NewMockEmbedder(4), Config{})

	resp, err := svc.SemanticSearch(context.Background(), "q", nil, models.SearchOptions{IncludeChunks: true, TopK: 5})
	require.NoError(t, err)
	require.Len(t, resp.Results, 2)
	assert.Equal(t, "a", resp.Results[0].ID)
	assert.Equal(t, 0.9, resp.Results[0].Score)
	require.Len(t, resp.Results[0].Chunks, 2)
	assert.Equal(t, "a_chunk_1", resp.Results[0].Chunks[0].ID)
	assert.Equal(t, "a_chunk_0", resp.Results[0].Chunks[1].ID)
	assert.Equal(t, "b", resp.Results[1].ID)
}

func TestSemanticSearch_errors(t *testing.T) {
	mock := embedding.NewMockEmbedder(4)
	mock.FailOn("boom", errors.New("offline"))
	fs := &fakeSearcher{}
	svc := NewService(fs, mock, Config{})
	ctx := context.Background()

	var se *models.SearchError
	_, err := svc.SemanticSearch(ctx, "", nil, models.SearchOptions{})
	require.ErrorAs(t, err, &se)
	assert.ErrorIs(t, err, models.ErrInvalidInput)

	_, err = svc.SemanticSearch(ctx, "boom", nil, models.SearchOptions{})
	require.ErrorAs(t, err, &se)
	var embErr *models.EmbeddingError
	assert.ErrorAs(t, err, &embErr)
	assert.Equal(t, 0, fs.calls)

	fs.err = &models.StorageError{Op: "read", Err: errors.New("disk")}
	_, err = svc.SemanticSearch(ctx, "ok", nil, models.SearchOptions{})
	require.ErrorAs(t, err, &se)
	var stErr *models.StorageError
	assert.ErrorAs(t, err, &stErr)
}

func TestSemanticSearch_cacheKeyedOnGeneration(t *testing.T) {
	fs := &fakeSearcher{results: []*models.SemanticSearchResult{hit("a", "a_chunk_0", "alpha", 0.9)}}
	svc := NewService(fs, embedding.NewMockEmbedder(4), Config{CacheTTL: time.Minute}, WithCache(cache.New(10, 0)))
	ctx := context.Background()

	first, err := svc.SemanticSearch(ctx, "alpha", nil, models.SearchOptions{})
	require.NoError(t, err)
	first.Results[0].Score = -1 // callers cannot poison the cache

	second, err := svc.SemanticSearch(ctx, "alpha", nil, models.SearchOptions{})
	require.NoError(t, err)
	assert.Equal(t, 1, fs.calls)
	assert.Equal(t, 0.9, second.Results[0].Score)

	fs.gen++
	_, err = svc.SemanticSearch(ctx, "alpha", nil, models.SearchOptions{})
	require.NoError(t, err)
	assert.Equal(t, 2, fs.calls)
	// The entry of the previous generation was purged.
	assert.Equal(t, 1, svc.cache.Len())
}

func TestGetRelevantContext_budget(t *testing.T) {
	// "aaaa" costs 1 token, 40 x's cost 10.
	fs := &fakeSearcher{results: []*models.SemanticSearchResult{
		hit("a", "a_chunk_0", "aaaa", 0.95),
		hit("a", "a_chunk_1", strings.Repeat("x", 40), 0.9),
		hit("a", "a_chunk_2", "bbbb", 0.88),
		hit("b", "b_chunk_0", "cccc", 0.8),
		hit("c", "c_chunk_0", "dddd", 0.7),
	}}
	svc := NewService(fs, embedding.NewMockEmbedder(4), Config{})

	rc, err := svc.GetRelevantContext(context.Background(), "q", "proj", 3)
	require.NoError(t, err)
	assert.Equal(t, 20, fs.topK)
	assert.Equal(t, 0.6, fs.threshold)
	assert.Equal(t, []models.Filter{models.ProjectIDsIn{"proj"}}, fs.filters)

	// a: chunk 0 fits, chunk 1 overflows and ends a. b and c fit.
	ids := make([]string, len(rc.Chunks))
	for i, ch := range rc.Chunks {
		ids[i] = ch.ID
	}
	assert.Equal(t, []string{"a_chunk_0", "b_chunk_0", "c_chunk_0"}, ids)
	assert.Equal(t, 3, rc.TotalTokens)
	assert.LessOrEqual(t, rc.TotalTokens, 3)
	require.Len(t, rc.Sources, 3)
	assert.Equal(t, []string{"a_chunk_0"}, rc.Sources[0].ChunkIDs)
	assert.Equal(t, "a.txt", rc.Sources[0].Title)
	assert.InDelta(t, (0.95+0.8+0.7)/3, rc.Confidence, 1e-9)
	assert.Equal(t, MethodSemantic, rc.RetrievalMethod)
}

// flatReranker overwrites every score, the way a blended rerank can push scores past the raw similarity.
type flatReranker struct{}

func (flatReranker) Rerank(_ context.Context, _ string, results []*models.SemanticSearchResult) ([]*models.SemanticSearchResult, error) {
	for _, r := range results {
		r.Score = 1
	}
	return results, nil
}

func (flatReranker) Method() string { return MethodHybrid }

func TestGetRelevantContext_confidenceIgnoresRerank(t *testing.T) {
	fs := &fakeSearcher{results: []*models.SemanticSearchResult{
		hit("a", "a_chunk_0", "aaaa", 0.9),
		hit("b", "b_chunk_0", "bbbb", 0.7),
	}}
	svc := NewService(fs, embedding.NewMockEmbedder(4), Config{}, WithReranker(flatReranker{}))

	rc, err := svc.GetRelevantContext(context.Background(), "q", "", 100)
	require.NoError(t, err)
	require.Len(t, rc.Sources, 2)
	assert.Equal(t, 1.0, rc.Sources[0].Score)
	assert.InDelta(t, 0.8, rc.Confidence, 1e-9)
	assert.Equal(t, MethodHybrid, rc.RetrievalMethod)
}

func TestGetRelevantContext_neverExceedsBudget(t *testing.T) {
	var results []*models.SemanticSearchResult
	for i, n := range []int{7, 13, 2, 30, 5, 1, 9} {
		results = append(results, hit(string(rune('a'+i)), string(rune('a'+i))+"_chunk_0", strings.Repeat("w", n*4), 0.9))
	}
	fs := &fakeSearcher{results: results}
	svc := NewService(fs, embedding.NewMockEmbedder(4), Config{})
	for budget := 1; budget <= 70; budget++ {
		rc, err := svc.GetRelevantContext(context.Background(), "q", "", budget)
		require.NoError(t, err)
		sum := 0
		for _, ch := range rc.Chunks {
			sum += CharClassEstimator{}.Estimate(ch.Text)
		}
		assert.Equal(t, sum, rc.TotalTokens)
		assert.LessOrEqual(t, rc.TotalTokens, budget)
	}
}

func TestGetRelevantContext_empty(t *testing.T) {
	svc := NewService(&fakeSearcher{}, embedding.NewMockEmbedder(4), Config{})
	rc, err := svc.GetRelevantContext(context.Background(), "q", "", 100)
	require.NoError(t, err)
	assert.Empty(t, rc.Chunks)
	assert.Zero(t, rc.Confidence)
	assert.Zero(t, rc.TotalTokens)
}

func TestSearchSimilarContent(t *testing.T) {
	fs := &fakeSearcher{results: []*models.SemanticSearchResult{hit("a", "a_chunk_0", "alpha", 0.9)}}
	svc := NewService(fs, embedding.NewMockEmbedder(4), Config{})

	res, err := svc.SearchSimilarContent(context.Background(), "alpha", "p", 3, 0.1)
	require.NoError(t, err)
	require.Len(t, res, 1)
	assert.Equal(t, 3, fs.topK)
	assert.Equal(t, 0.1, fs.threshold)
	assert.Equal(t, []models.Filter{models.ProjectIDsIn{"p"}}, fs.filters)

	_, err = svc.SearchSimilarContent(context.Background(), "", "", 3, 0.1)
	assert.ErrorIs(t, err, models.ErrInvalidInput)
}

func TestKeywordReranker(t *testing.T) {
	kw, err := keyword.NewBleveIndex("")
	require.NoError(t, err)
	t.Cleanup(func() { _ = kw.Close() })
	ctx := context.Background()
	meta := models.ContentMetadata{Type: models.ContentTypeDocument}
	require.NoError(t, kw.IndexDocument(ctx, "a", meta, []models.ContentChunk{{ID: "a_chunk_0", Text: "weather report for tokyo"}}))
	require.NoError(t, kw.IndexDocument(ctx, "b", meta, []models.ContentChunk{{ID: "b_chunk_0", Text: "quarterly revenue growth"}}))

	results := []*models.SemanticSearchResult{
		{ID: "a", ChunkID: "a_chunk_0", Score: 0.8},
		{ID: "b", ChunkID: "b_chunk_0", Score: 0.7},
	}
	r := NewKeywordReranker(kw, 0.5)
	out, err := r.Rerank(ctx, "revenue growth", results)
	require.NoError(t, err)
	require.Len(t, out, 2)
	assert.Equal(t, "b", out[0].ID)
	assert.InDelta(t, 0.5*0.7+0.5*1.0, out[0].Score, 1e-9)
	assert.InDelta(t, 0.5*0.8, out[1].Score, 1e-9)
	assert.Equal(t, MethodHybrid, r.Method())

	assert.Equal(t, 1.0, NewKeywordReranker(kw, 3).alpha)
}

func TestService_endToEnd(t *testing.T) {
	ctx := context.Background()
	st := storage.NewMemoryStorage()
	t.Cleanup(func() { _ = st.Close() })
	kw, err := keyword.NewBleveIndex("")
	require.NoError(t, err)
	t.Cleanup(func() { _ = kw.Close() })
	emb := embedding.NewMockEmbedder(16)
	vs, err := store.Open(ctx, st, vector.NewManager(nil), store.Config{IndexName: "default", Dimension: 16}, store.WithKeywordIndex(kw))
	require.NoError(t, err)
	t.Cleanup(func() { _ = vs.Close() })
	idx := indexer.NewIndexer(vs, emb, nil)

	text := "the deployment checklist covers rollback steps"
	id, err := idx.IndexContent(ctx, models.ContentInput{Text: text, Metadata: models.ContentMetadata{ProjectID: "ops"}})
	require.NoError(t, err)
	_, err = idx.IndexContent(ctx, models.ContentInput{Text: "unrelated cooking recipe", Metadata: models.ContentMetadata{ProjectID: "home"}})
	require.NoError(t, err)

	svc := NewService(vs, emb, Config{}, WithReranker(NewKeywordReranker(kw, 0.3)), WithCache(cache.New(100, time.Minute)))
	rc, err := svc.GetRelevantContext(ctx, text, "ops", 1000)
	require.NoError(t, err)
	require.Len(t, rc.Sources, 1)
	assert.Equal(t, id, rc.Sources[0].DocumentID)
	assert.Equal(t, MethodHybrid, rc.RetrievalMethod)
	assert.Equal(t, text, rc.Chunks[0].Text)

	// A write invalidates cached responses.
	require.NoError(t, idx.RemoveIndex(ctx, id))
	rc, err = svc.GetRelevantContext(ctx, text, "ops", 1000)
	require.NoError(t, err)
	assert.Empty(t, rc.Sources)
}
