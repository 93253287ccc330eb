package embedding

import (
	"context"
	"time"

	"github.com/hyperjump/sakuin/internal/cache"
)

// CachedEmbedder memoizes another Embedder's vectors in an LRU cache with expiration.
// Returned slices are copies, so callers may modify them.
type CachedEmbedder struct {
	inner   Embedder
	cache   *cache.Cache
	ttl     time.Duration
	model   string
	workers int
}

// NewCachedEmbedder wraps inner. model distinguishes cache entries of different models
// sharing one cache; workers bounds EmbedBatch concurrency for uncached texts.
func NewCachedEmbedder(inner Embedder, c *cache.Cache, ttl time.Duration, model string, workers int) *CachedEmbedder {
	if c == nil {
		c = cache.New(10000, ttl)
	}
	return &CachedEmbedder{inner: inner, cache: c, ttl: ttl, model: model, workers: workers}
}

func (e *CachedEmbedder) key(text string) string {
	return cache.Key("embed", e.model, e.inner.Dimensions(), text)
}

// Embed returns the cached vector for text or computes and caches it.
// Failures are returned as EmbeddingError.
func (e *CachedEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	k := e.key(text)
	if vec, ok := e.lookup(k); ok {
		return vec, nil
	}
	vec, err := e.inner.Embed(ctx, text)
	if err != nil {
		return nil, wrapEmbeddingError(err)
	}
	e.cache.Set(k, clone(vec), e.ttl)
	return vec, nil
}

// EmbedBatch serves cached texts from the cache and embeds the rest through EmbedAll.
func (e *CachedEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	var missing []string
	var missingIdx []int
	for i, text := range texts {
		if vec, ok := e.lookup(e.key(text)); ok {
			out[i] = vec
			continue
		}
		missing = append(missing, text)
		missingIdx = append(missingIdx, i)
	}
	if len(missing) == 0 {
		return out, nil
	}
	vecs, err := EmbedAll(ctx, e.inner, missing, e.workers)
	if err != nil {
		return nil, err
	}
	for j, vec := range vecs {
		out[missingIdx[j]] = vec
		e.cache.Set(e.key(missing[j]), clone(vec), e.ttl)
	}
	return out, nil
}

// lookup returns a copy of the cached vector under k. An entry whose length no longer
// matches the embedder's dimension is evicted and reported as a miss.
func (e *CachedEmbedder) lookup(k string) ([]float32, bool) {
	vec, ok := cache.Get[[]float32](e.cache, k)
	if !ok {
		return nil, false
	}
	if dims := e.inner.Dimensions(); dims > 0 && len(vec) != dims {
		e.cache.Remove(k)
		return nil, false
	}
	return clone(vec), true
}

// Dimensions returns the wrapped embedder's dimension.
func (e *CachedEmbedder) Dimensions() int {
	return e.inner.Dimensions()
}

// Stats returns the cache counters.
func (e *CachedEmbedder) Stats() cache.Stats {
	return e.cache.Stats()
}

// Close closes the wrapped embedder.
func (e *CachedEmbedder) Close() error {
	return e.inner.Close()
}

func clone(v []float32) []float32 {
	out := make([]float32, len(v))
	copy(out, v)
	return out
}
