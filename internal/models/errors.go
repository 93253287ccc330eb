package models

import (
	"errors"
	"fmt"
)

// Sentinel errors. Check with errors.Is.
var (
	// ErrNotFound indicates the requested document or knowledge base does not exist.
	ErrNotFound = errors.New("not found")
	// ErrInvalidInput indicates malformed arguments (bad counts, empty ids, unknown metric).
	ErrInvalidInput = errors.New("invalid input")
)

// IndexNotFoundError is returned when a named vector index does not exist.
type IndexNotFoundError struct {
	Name string
}

func (e *IndexNotFoundError) Error() string {
	return fmt.Sprintf("vector index not found: %s", e.Name)
}

// Is makes errors.Is(err, ErrNotFound) true for missing indices.
func (e *IndexNotFoundError) Is(target error) bool {
	return target == ErrNotFound
}

// DimensionError is returned when a vector's length differs from its index's dimension.
type DimensionError struct {
	Expected int
	Actual   int
}

func (e *DimensionError) Error() string {
	return fmt.Sprintf("invalid dimension: expected %d, got %d", e.Expected, e.Actual)
}

// Is makes errors.Is(err, ErrInvalidInput) true for dimension mismatches.
func (e *DimensionError) Is(target error) bool {
	return target == ErrInvalidInput
}

// StorageError wraps a failure of the persistence backend.
type StorageError struct {
	Op  string
	Err error
}

func (e *StorageError) Error() string {
	if e.Op == "" {
		return fmt.Sprintf("storage error: %v", e.Err)
	}
	return fmt.Sprintf("storage error: %s: %v", e.Op, e.Err)
}

func (e *StorageError) Unwrap() error { return e.Err }

// SearchError wraps any failure that aborted a search.
type SearchError struct {
	Err error
}

func (e *SearchError) Error() string {
	return fmt.Sprintf("search failed: %v", e.Err)
}

func (e *SearchError) Unwrap() error { return e.Err }

// EmbeddingError wraps a failure of the embedding collaborator. It is never retried internally.
type EmbeddingError struct {
	Err error
}

func (e *EmbeddingError) Error() string {
	return fmt.Sprintf("embedding failed: %v", e.Err)
}

func (e *EmbeddingError) Unwrap() error { return e.Err }

// InvalidInputf returns an error wrapping ErrInvalidInput.
func InvalidInputf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalidInput, fmt.Sprintf(format, args...))
}
