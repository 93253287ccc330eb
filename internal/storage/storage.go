// Package storage defines the persistence port for indexed content, vectors, index definitions
// and knowledge bases, with SQLite and in-memory implementations.
package storage

import (
	"context"
	"encoding/binary"
	"fmt"
	"math"
	"time"

	"github.com/hyperjump/sakuin/internal/models"
)

// VectorRecord is the persisted vector of one chunk.
type VectorRecord struct {
	ID         string    `json:"id"`
	DocumentID string    `json:"document_id"`
	ChunkID    string    `json:"chunk_id"`
	ChunkIndex int       `json:"chunk_index"`
	Embedding  []float32 `json:"-"`
	CreatedAt  time.Time `json:"created_at"`
}

// IndexRecord is a persisted vector index definition.
type IndexRecord struct {
	Name          string            `json:"name"`
	Type          string            `json:"type"`
	Dimension     int               `json:"dimension"`
	Metric        string            `json:"metric"`
	CreatedAt     time.Time         `json:"created_at"`
	LastOptimized *time.Time        `json:"last_optimized,omitempty"`
	Configuration map[string]string `json:"configuration,omitempty"`
}

// Stats are row counts of the persisted content.
type Stats struct {
	Documents     int64            `json:"documents"`
	Chunks        int64            `json:"chunks"`
	Vectors       int64            `json:"vectors"`
	ByContentType map[string]int64 `json:"by_content_type"`
	ByStatus      map[string]int64 `json:"by_status"`
}

// Storage persists indexed documents together with their chunks and vectors.
// Implementations must be safe for concurrent use.
type Storage interface {
	// SaveDocument atomically replaces the document, its chunks (doc.Chunks) and its vectors.
	SaveDocument(ctx context.Context, doc *models.IndexedDocument, vectors []VectorRecord) error
	// GetDocument returns the document with its chunks, or an error wrapping models.ErrNotFound.
	GetDocument(ctx context.Context, id string) (*models.IndexedDocument, error)
	// GetDocuments returns the documents (without chunks) that exist among ids.
	GetDocuments(ctx context.Context, ids []string) (map[string]*models.IndexedDocument, error)
	// UpdateMetadata replaces the metadata of an existing document.
	UpdateMetadata(ctx context.Context, id string, meta models.ContentMetadata) error
	// SetStatus records the indexing status of an existing document.
	SetStatus(ctx context.Context, id string, status models.IndexStatus) error
	// DeleteDocument removes the document, its chunks and its vectors. Unknown ids are ignored.
	DeleteDocument(ctx context.Context, id string) error
	// ListDocuments returns documents (without chunks) passing every filter, newest first.
	ListDocuments(ctx context.Context, filters []models.Filter, offset, limit int) ([]*models.IndexedDocument, error)
	// MatchingDocumentIDs returns the ids of all documents passing every filter.
	MatchingDocumentIDs(ctx context.Context, filters []models.Filter) (map[string]struct{}, error)

	GetChunks(ctx context.Context, docID string) ([]models.ContentChunk, error)
	// GetChunksByID returns the chunks that exist among ids.
	GetChunksByID(ctx context.Context, ids []string) (map[string]models.ContentChunk, error)

	GetVectors(ctx context.Context, docID string) ([]VectorRecord, error)
	// LoadVectors streams every vector in document insertion order, then chunk order.
	LoadVectors(ctx context.Context, fn func(VectorRecord) error) error

	SaveIndex(ctx context.Context, rec IndexRecord) error
	GetIndex(ctx context.Context, name string) (*IndexRecord, error)
	DeleteIndex(ctx context.Context, name string) error
	ListIndices(ctx context.Context) ([]IndexRecord, error)
	MarkOptimized(ctx context.Context, name string, at time.Time) error

	SaveKnowledgeBase(ctx context.Context, kb *models.KnowledgeBase) error
	GetKnowledgeBase(ctx context.Context, projectID string) (*models.KnowledgeBase, error)
	DeleteKnowledgeBase(ctx context.Context, projectID string) error

	Stats(ctx context.Context) (*Stats, error)
	Close() error
}

// Backend names accepted by Open.
const (
	BackendSQLite = "sqlite"
	BackendMemory = "memory"
)

// Open returns the storage backend by name. The memory backend ignores dbPath.
func Open(backend, dbPath string) (Storage, error) {
	switch backend {
	case BackendSQLite, "":
		s, err := NewSQLiteStorage(dbPath)
		if err != nil {
			return nil, err
		}
		return s, nil
	case BackendMemory:
		return NewMemoryStorage(), nil
	default:
		return nil, models.InvalidInputf("unknown storage backend: %s (supported: sqlite, memory)", backend)
	}
}

func documentNotFound(id string) error {
	return fmt.Errorf("%w: document %s", models.ErrNotFound, id)
}

func wrapErr(op string, err error) error {
	if err == nil {
		return nil
	}
	return &models.StorageError{Op: op, Err: err}
}

// EncodeVector encodes v as little-endian float32s.
func EncodeVector(v []float32) []byte {
	const size = 4
	out := make([]byte, len(v)*size)
	for i, f := range v {
		binary.LittleEndian.PutUint32(out[i*size:(i+1)*size], math.Float32bits(f))
	}
	return out
}

// DecodeVector decodes little-endian float32s. The length must be a multiple of 4.
func DecodeVector(b []byte) ([]float32, error) {
	const size = 4
	if len(b)%size != 0 {
		return nil, fmt.Errorf("vector blob length %d is not a multiple of %d", len(b), size)
	}
	out := make([]float32, len(b)/size)
	for i := range out {
		out[i] = math.Float32frombits(binary.LittleEndian.Uint32(b[i*size : (i+1)*size]))
	}
	return out, nil
}
