package store

import (
	"context"
	"time"

	"github.com/hyperjump/sakuin/internal/models"
	"github.com/hyperjump/sakuin/internal/vector"
	"go.uber.org/zap"
)

// CreateIndex creates and persists a named index. Only the bound index receives stored content.
func (s *VectorStore) CreateIndex(ctx context.Context, name string, dimension int, metric vector.Metric, config map[string]string) (vector.IndexInfo, error) {
	if dimension <= 0 {
		return vector.IndexInfo{}, models.InvalidInputf("index dimension must be positive, got %d", dimension)
	}
	if name == s.cfg.IndexName {
		if metric == "" {
			metric = vector.MetricCosine
		}
		if dimension != s.cfg.Dimension || metric != s.cfg.Metric {
			return vector.IndexInfo{}, models.InvalidInputf("index %s is bound with dimension %d and metric %s",
				name, s.cfg.Dimension, s.cfg.Metric)
		}
		return s.GetIndexInfo(ctx, name)
	}
	existed := s.manager.Has(name)
	info, err := s.manager.Create(name, dimension, metric, config)
	if err != nil {
		return vector.IndexInfo{}, err
	}
	if existed {
		return info, nil
	}
	if err := s.storage.SaveIndex(ctx, indexRecord(info)); err != nil {
		_ = s.manager.Delete(name)
		return vector.IndexInfo{}, asStorageError("save index", err)
	}
	if s.logger != nil {
		s.logger.Info("vector index created", zap.String("name", name), zap.Int("dimension", dimension), zap.String("metric", string(info.Metric)))
	}
	return info, nil
}

// DeleteIndex drops a named index and its persisted definition. Deleting the bound index clears
// only its in-memory vectors; the next operation rebuilds it from storage.
func (s *VectorStore) DeleteIndex(ctx context.Context, name string) error {
	if name == s.cfg.IndexName {
		s.indexMu.Lock()
		defer s.indexMu.Unlock()
	}
	if err := s.manager.Delete(name); err != nil {
		return err
	}
	if err := s.storage.DeleteIndex(ctx, name); err != nil {
		return asStorageError("delete index", err)
	}
	s.gen.Add(1)
	if s.logger != nil {
		s.logger.Info("vector index deleted", zap.String("name", name))
	}
	return nil
}

// OptimizeIndex compacts a named index and records the optimization time.
func (s *VectorStore) OptimizeIndex(ctx context.Context, name string) (vector.IndexInfo, error) {
	if name == s.cfg.IndexName {
		release, err := s.acquireIndex(ctx)
		if err != nil {
			return vector.IndexInfo{}, err
		}
		defer release()
	}
	info, err := s.manager.Optimize(ctx, name)
	if err != nil {
		return vector.IndexInfo{}, err
	}
	at := time.Now().UTC()
	if info.LastOptimized != nil {
		at = *info.LastOptimized
	}
	if err := s.storage.MarkOptimized(ctx, name, at); err != nil {
		return vector.IndexInfo{}, asStorageError("mark optimized", err)
	}
	return info, nil
}

// GetIndexInfo describes a named index. The bound index is rebuilt first if needed.
func (s *VectorStore) GetIndexInfo(ctx context.Context, name string) (vector.IndexInfo, error) {
	if name == s.cfg.IndexName {
		release, err := s.acquireIndex(ctx)
		if err != nil {
			return vector.IndexInfo{}, err
		}
		defer release()
	}
	return s.manager.Info(name)
}

// ListIndices describes every live index, sorted by name.
func (s *VectorStore) ListIndices(ctx context.Context) ([]vector.IndexInfo, error) {
	release, err := s.acquireIndex(ctx)
	if err != nil {
		return nil, err
	}
	defer release()
	return s.manager.List(), nil
}
