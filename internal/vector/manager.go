package vector

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/hyperjump/sakuin/internal/models"
	"go.uber.org/zap"
)

// Manager owns every named vector index. Callers address indices by name only;
// the Manager is the sole place indices are created, mutated and dropped.
type Manager struct {
	factory Factory
	indices map[string]VectorIndex
	mu      sync.RWMutex
	logger  *zap.Logger // optional; when set, logs debug events
}

// ManagerOption configures a Manager.
type ManagerOption func(*Manager)

// WithLogger sets a logger for debug output (index created, deleted, optimized).
func WithLogger(l *zap.Logger) ManagerOption {
	return func(m *Manager) { m.logger = l }
}

// NewManager creates an empty manager. A nil factory builds memory indices.
func NewManager(factory Factory, opts ...ManagerOption) *Manager {
	if factory == nil {
		factory = FactoryFor(string(IndexTypeMemory))
	}
	m := &Manager{
		factory: factory,
		indices: make(map[string]VectorIndex),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Create creates the named index. Creating an index that already exists with the same
// dimension and metric returns its info; a conflicting definition is invalid input.
func (m *Manager) Create(name string, dimensions int, metric Metric, config map[string]string) (IndexInfo, error) {
	if name == "" {
		return IndexInfo{}, models.InvalidInputf("index name is required")
	}
	if metric == "" {
		metric = MetricCosine
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if existing, ok := m.indices[name]; ok {
		info := existing.Info()
		if info.Dimension != dimensions || info.Metric != metric {
			return IndexInfo{}, models.InvalidInputf("index %s already exists with dimension %d and metric %s",
				name, info.Dimension, info.Metric)
		}
		return info, nil
	}
	idx, err := m.factory(name, dimensions, metric, config)
	if err != nil {
		return IndexInfo{}, err
	}
	m.indices[name] = idx
	if m.logger != nil {
		m.logger.Debug("vector index created",
			zap.String("name", name), zap.Int("dimension", dimensions), zap.String("metric", string(metric)))
	}
	return idx.Info(), nil
}

// Delete drops the named index.
func (m *Manager) Delete(name string) error {
	m.mu.Lock()
	idx, ok := m.indices[name]
	if ok {
		delete(m.indices, name)
	}
	m.mu.Unlock()
	if !ok {
		return &models.IndexNotFoundError{Name: name}
	}
	if m.logger != nil {
		m.logger.Debug("vector index deleted", zap.String("name", name))
	}
	return idx.Close()
}

// Has reports whether the named index exists.
func (m *Manager) Has(name string) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.indices[name]
	return ok
}

func (m *Manager) get(name string) (VectorIndex, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	idx, ok := m.indices[name]
	if !ok {
		return nil, &models.IndexNotFoundError{Name: name}
	}
	return idx, nil
}

// Update replaces the vectors of docID in the named index.
func (m *Manager) Update(ctx context.Context, name, docID string, entries []Entry) error {
	idx, err := m.get(name)
	if err != nil {
		return err
	}
	return idx.Update(ctx, docID, entries)
}

// Remove drops docID from the named index. Unknown documents are ignored.
func (m *Manager) Remove(ctx context.Context, name, docID string) error {
	idx, err := m.get(name)
	if err != nil {
		return err
	}
	return idx.Remove(ctx, docID)
}

// BatchUpdate applies updates to the named index best-effort, reporting each document.
func (m *Manager) BatchUpdate(ctx context.Context, name string, updates []DocumentVectors) (*models.BatchResult, error) {
	idx, err := m.get(name)
	if err != nil {
		return nil, err
	}
	return idx.BatchUpdate(ctx, updates), nil
}

// Optimize compacts the named index and returns its refreshed info.
func (m *Manager) Optimize(ctx context.Context, name string) (IndexInfo, error) {
	idx, err := m.get(name)
	if err != nil {
		return IndexInfo{}, err
	}
	if err := idx.Optimize(ctx); err != nil {
		return IndexInfo{}, err
	}
	if m.logger != nil {
		m.logger.Debug("vector index optimized", zap.String("name", name), zap.Int("vectors", idx.Size()))
	}
	return idx.Info(), nil
}

// Search runs a query against the named index.
func (m *Manager) Search(ctx context.Context, name string, query []float32, params SearchParams) ([]*VectorResult, error) {
	idx, err := m.get(name)
	if err != nil {
		return nil, err
	}
	return idx.Search(ctx, query, params)
}

// Info describes the named index.
func (m *Manager) Info(name string) (IndexInfo, error) {
	idx, err := m.get(name)
	if err != nil {
		return IndexInfo{}, err
	}
	return idx.Info(), nil
}

// timestampRestorer is implemented by indices whose timestamps can be restored from persistence.
type timestampRestorer interface {
	SetCreatedAt(t time.Time)
	SetLastOptimized(t time.Time)
}

// Restore sets persisted timestamps on the named index. Indices that cannot carry them are left as is.
func (m *Manager) Restore(name string, createdAt time.Time, lastOptimized *time.Time) error {
	idx, err := m.get(name)
	if err != nil {
		return err
	}
	r, ok := idx.(timestampRestorer)
	if !ok {
		return nil
	}
	if !createdAt.IsZero() {
		r.SetCreatedAt(createdAt)
	}
	if lastOptimized != nil {
		r.SetLastOptimized(*lastOptimized)
	}
	return nil
}

// List describes every index, sorted by name.
func (m *Manager) List() []IndexInfo {
	m.mu.RLock()
	out := make([]IndexInfo, 0, len(m.indices))
	for _, idx := range m.indices {
		out = append(out, idx.Info())
	}
	m.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Close closes and drops every index.
func (m *Manager) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	var errs []error
	for name, idx := range m.indices {
		if err := idx.Close(); err != nil {
			errs = append(errs, err)
		}
		delete(m.indices, name)
	}
	return errors.Join(errs...)
}
