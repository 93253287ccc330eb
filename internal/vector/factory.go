package vector

import (
	"fmt"

	"github.com/hyperjump/sakuin/internal/models"
)

// IndexType represents the type of vector index to use.
type IndexType string

const (
	// IndexTypeMemory uses in-memory brute-force search. Good for small datasets (<100k vectors).
	IndexTypeMemory IndexType = "memory"
)

// Factory builds a vector index for a name, dimension, metric and configuration.
type Factory func(name string, dimensions int, metric Metric, config map[string]string) (VectorIndex, error)

// NewVectorIndex creates a vector index of the specified type.
// Supported types: "memory" (default). Approximate indices plug in here without changing callers.
func NewVectorIndex(indexType string, name string, dimensions int, metric Metric, config map[string]string) (VectorIndex, error) {
	switch IndexType(indexType) {
	case IndexTypeMemory, "":
		return NewMemoryIndex(name, dimensions, metric, config)
	default:
		return nil, fmt.Errorf("%w: unknown index type: %s (supported: memory)", models.ErrInvalidInput, indexType)
	}
}

// FactoryFor returns a Factory that always builds indices of indexType.
func FactoryFor(indexType string) Factory {
	return func(name string, dimensions int, metric Metric, config map[string]string) (VectorIndex, error) {
		return NewVectorIndex(indexType, name, dimensions, metric, config)
	}
}
