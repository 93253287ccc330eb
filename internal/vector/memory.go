package vector

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/hyperjump/sakuin/internal/models"
)

// MemoryIndex is an in-memory vector index using brute-force search.
// Every search is O(n) in the number of stored vectors; suitable until an ANN index replaces it.
type MemoryIndex struct {
	name          string
	dimensions    int
	metric        Metric
	config        map[string]string
	createdAt     time.Time
	lastOptimized *time.Time
	groups        map[string][]Entry
	order         []string // document IDs in insertion order, for stable tie-breaks
	count         int
	mu            sync.RWMutex
}

// NewMemoryIndex creates an in-memory vector index with the given dimension and metric.
func NewMemoryIndex(name string, dimensions int, metric Metric, config map[string]string) (*MemoryIndex, error) {
	if dimensions <= 0 {
		return nil, models.InvalidInputf("dimensions must be positive, got %d", dimensions)
	}
	if metric == "" {
		metric = MetricCosine
	}
	if _, err := ParseMetric(string(metric)); err != nil {
		return nil, fmt.Errorf("%w: %v", models.ErrInvalidInput, err)
	}
	cfg := make(map[string]string, len(config))
	for k, v := range config {
		cfg[k] = v
	}
	return &MemoryIndex{
		name:       name,
		dimensions: dimensions,
		metric:     metric,
		config:     cfg,
		createdAt:  time.Now(),
		groups:     make(map[string][]Entry),
		order:      make([]string, 0),
	}, nil
}

// Type returns the index type identifier.
func (m *MemoryIndex) Type() string {
	return string(IndexTypeMemory)
}

// Update replaces the vectors of docID. All entries are validated before anything changes.
func (m *MemoryIndex) Update(ctx context.Context, docID string, entries []Entry) error {
	if docID == "" {
		return models.InvalidInputf("document id is required")
	}
	copied := make([]Entry, len(entries))
	for i, e := range entries {
		if len(e.Vector) != m.dimensions {
			return &models.DimensionError{Expected: m.dimensions, Actual: len(e.Vector)}
		}
		vec := make([]float32, m.dimensions)
		copy(vec, e.Vector)
		copied[i] = Entry{ChunkID: e.ChunkID, ChunkIndex: e.ChunkIndex, Vector: vec}
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.removeLocked(docID)
	m.groups[docID] = copied
	m.order = append(m.order, docID)
	m.count += len(copied)
	return nil
}

// Remove drops every vector of docID.
func (m *MemoryIndex) Remove(ctx context.Context, docID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.removeLocked(docID)
	return nil
}

func (m *MemoryIndex) removeLocked(docID string) {
	prev, ok := m.groups[docID]
	if !ok {
		return
	}
	m.count -= len(prev)
	delete(m.groups, docID)
	for i, id := range m.order {
		if id == docID {
			m.order = append(m.order[:i], m.order[i+1:]...)
			break
		}
	}
}

// BatchUpdate applies each update in order and reports per-document outcomes.
func (m *MemoryIndex) BatchUpdate(ctx context.Context, updates []DocumentVectors) *models.BatchResult {
	result := &models.BatchResult{}
	for _, u := range updates {
		result.Add(u.DocumentID, m.Update(ctx, u.DocumentID, u.Entries))
	}
	return result
}

// Search scores every accepted vector, keeps scores >= Threshold, and returns the TopK best.
// Equal scores keep insertion order.
func (m *MemoryIndex) Search(ctx context.Context, query []float32, params SearchParams) ([]*VectorResult, error) {
	if len(query) != m.dimensions {
		return nil, &models.DimensionError{Expected: m.dimensions, Actual: len(query)}
	}
	if params.TopK <= 0 {
		return nil, nil
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	scored := make([]*VectorResult, 0)
	for i, docID := range m.order {
		if i%1024 == 0 {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
		}
		if params.Accept != nil && !params.Accept(docID) {
			continue
		}
		for _, e := range m.groups[docID] {
			score := Calculate(query, e.Vector, m.metric)
			if score < params.Threshold {
				continue
			}
			scored = append(scored, &VectorResult{
				DocumentID: docID,
				ChunkID:    e.ChunkID,
				ChunkIndex: e.ChunkIndex,
				Score:      score,
			})
		}
	}
	sort.SliceStable(scored, func(i, j int) bool { return scored[i].Score > scored[j].Score })
	if len(scored) > params.TopK {
		scored = scored[:params.TopK]
	}
	return scored, nil
}

// Optimize copies every vector into one contiguous backing slice and records the time.
func (m *MemoryIndex) Optimize(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	backing := make([]float32, m.count*m.dimensions)
	off := 0
	for _, docID := range m.order {
		entries := m.groups[docID]
		for i := range entries {
			dst := backing[off : off+m.dimensions : off+m.dimensions]
			copy(dst, entries[i].Vector)
			entries[i].Vector = dst
			off += m.dimensions
		}
	}
	now := time.Now()
	m.lastOptimized = &now
	return nil
}

// Info returns a snapshot of the index description and counters.
func (m *MemoryIndex) Info() IndexInfo {
	m.mu.RLock()
	defer m.mu.RUnlock()
	cfg := make(map[string]string, len(m.config))
	for k, v := range m.config {
		cfg[k] = v
	}
	var lastOptimized *time.Time
	if m.lastOptimized != nil {
		t := *m.lastOptimized
		lastOptimized = &t
	}
	return IndexInfo{
		Name:           m.name,
		Type:           m.Type(),
		Dimension:      m.dimensions,
		Metric:         m.metric,
		TotalVectors:   m.count,
		TotalDocuments: len(m.groups),
		EstimatedBytes: m.estimatedBytesLocked(),
		CreatedAt:      m.createdAt,
		LastOptimized:  lastOptimized,
		Configuration:  cfg,
	}
}

// estimatedBytesLocked approximates heap use: 4 bytes per float plus per-entry bookkeeping.
func (m *MemoryIndex) estimatedBytesLocked() int64 {
	const entryOverhead = 64
	var total int64
	for docID, entries := range m.groups {
		total += int64(len(docID)) + entryOverhead
		for _, e := range entries {
			total += int64(len(e.Vector))*4 + int64(len(e.ChunkID)) + entryOverhead
		}
	}
	return total
}

// SetLastOptimized restores a persisted optimization time.
func (m *MemoryIndex) SetLastOptimized(t time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.lastOptimized = &t
}

// SetCreatedAt restores a persisted creation time.
func (m *MemoryIndex) SetCreatedAt(t time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.createdAt = t
}

// Size returns the number of vectors in the index.
func (m *MemoryIndex) Size() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.count
}

// Close is a no-op for MemoryIndex.
func (m *MemoryIndex) Close() error {
	return nil
}
