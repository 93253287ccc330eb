package storage

import (
	"context"
	"fmt"
	"maps"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/hyperjump/sakuin/internal/models"
)

// MemoryStorage implements Storage in process memory. Readers load an immutable snapshot;
// writers build a modified copy and swap it in, so a write is never observed half-applied.
type MemoryStorage struct {
	state atomic.Pointer[memoryState]
	mu    sync.Mutex // serializes writers
}

type memoryDoc struct {
	doc     models.IndexedDocument // Chunks held separately
	chunks  []models.ContentChunk
	vectors []VectorRecord
	seq     uint64
}

type memoryState struct {
	docs    map[string]*memoryDoc
	indices map[string]IndexRecord
	kbs     map[string]*models.KnowledgeBase
	seq     uint64
}

// NewMemoryStorage creates an empty in-memory store.
func NewMemoryStorage() *MemoryStorage {
	s := &MemoryStorage{}
	s.state.Store(&memoryState{
		docs:    make(map[string]*memoryDoc),
		indices: make(map[string]IndexRecord),
		kbs:     make(map[string]*models.KnowledgeBase),
	})
	return s
}

// update applies fn to a copy of the current state and publishes it unless fn fails.
func (s *MemoryStorage) update(fn func(st *memoryState) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cur := s.state.Load()
	next := &memoryState{
		docs:    maps.Clone(cur.docs),
		indices: maps.Clone(cur.indices),
		kbs:     maps.Clone(cur.kbs),
		seq:     cur.seq,
	}
	if err := fn(next); err != nil {
		return err
	}
	s.state.Store(next)
	return nil
}

func copyChunks(in []models.ContentChunk) []models.ContentChunk {
	if in == nil {
		return nil
	}
	out := make([]models.ContentChunk, len(in))
	for i, ch := range in {
		out[i] = ch
		out[i].Embedding = nil
		if ch.Metadata.TimeRange != nil {
			tr := *ch.Metadata.TimeRange
			out[i].Metadata.TimeRange = &tr
		}
	}
	return out
}

func copyMetadata(m models.ContentMetadata) models.ContentMetadata {
	m.Tags = append([]string(nil), m.Tags...)
	if m.Source.Page != nil {
		p := *m.Source.Page
		m.Source.Page = &p
	}
	if m.Source.Duration != nil {
		d := *m.Source.Duration
		m.Source.Duration = &d
	}
	return m
}

func copyVectors(in []VectorRecord) []VectorRecord {
	out := make([]VectorRecord, len(in))
	for i, v := range in {
		out[i] = v
		out[i].Embedding = append([]float32(nil), v.Embedding...)
	}
	return out
}

func (d *memoryDoc) view(withChunks bool) *models.IndexedDocument {
	doc := d.doc
	doc.Metadata = copyMetadata(d.doc.Metadata)
	doc.Chunks = nil
	if withChunks {
		doc.Chunks = copyChunks(d.chunks)
	}
	return &doc
}

// SaveDocument replaces the document, chunks and vectors in one swap.
func (s *MemoryStorage) SaveDocument(ctx context.Context, doc *models.IndexedDocument, vectors []VectorRecord) error {
	if err := ctx.Err(); err != nil {
		return wrapErr("save document", err)
	}
	if doc.IndexedAt.IsZero() {
		doc.IndexedAt = time.Now()
	}
	if doc.Status == "" {
		doc.Status = models.IndexStatusCompleted
	}
	doc.VectorCount = len(vectors)
	return s.update(func(st *memoryState) error {
		// Chunk ids are unique across documents, as in the SQLite schema.
		ids := make(map[string]struct{}, len(doc.Chunks))
		for _, ch := range doc.Chunks {
			ids[ch.ID] = struct{}{}
		}
		for id, other := range st.docs {
			if id == doc.ID {
				continue
			}
			for _, oc := range other.chunks {
				if _, dup := ids[oc.ID]; dup {
					return wrapErr("insert chunk", fmt.Errorf("chunk id %s already belongs to document %s", oc.ID, id))
				}
			}
		}
		st.seq++
		stored := *doc
		stored.Metadata = copyMetadata(doc.Metadata)
		stored.Chunks = nil
		vecs := copyVectors(vectors)
		for i := range vecs {
			vecs[i].DocumentID = doc.ID
			if vecs[i].ID == "" {
				vecs[i].ID = vecs[i].ChunkID
			}
			if vecs[i].CreatedAt.IsZero() {
				vecs[i].CreatedAt = doc.IndexedAt
			}
		}
		sort.SliceStable(vecs, func(i, j int) bool { return vecs[i].ChunkIndex < vecs[j].ChunkIndex })
		chunks := copyChunks(doc.Chunks)
		sort.SliceStable(chunks, func(i, j int) bool {
			return chunks[i].Metadata.ChunkNumber < chunks[j].Metadata.ChunkNumber
		})
		st.docs[doc.ID] = &memoryDoc{doc: stored, chunks: chunks, vectors: vecs, seq: st.seq}
		return nil
	})
}

// GetDocument returns a document by ID with its chunks.
func (s *MemoryStorage) GetDocument(ctx context.Context, id string) (*models.IndexedDocument, error) {
	d, ok := s.state.Load().docs[id]
	if !ok {
		return nil, documentNotFound(id)
	}
	return d.view(true), nil
}

// GetDocuments returns the documents that exist among ids.
func (s *MemoryStorage) GetDocuments(ctx context.Context, ids []string) (map[string]*models.IndexedDocument, error) {
	st := s.state.Load()
	out := make(map[string]*models.IndexedDocument, len(ids))
	for _, id := range ids {
		if d, ok := st.docs[id]; ok {
			out[id] = d.view(false)
		}
	}
	return out, nil
}

// UpdateMetadata replaces the metadata of an existing document.
func (s *MemoryStorage) UpdateMetadata(ctx context.Context, id string, meta models.ContentMetadata) error {
	return s.update(func(st *memoryState) error {
		d, ok := st.docs[id]
		if !ok {
			return documentNotFound(id)
		}
		next := *d
		next.doc.Metadata = copyMetadata(meta)
		st.docs[id] = &next
		return nil
	})
}

// SetStatus records the indexing status of an existing document.
func (s *MemoryStorage) SetStatus(ctx context.Context, id string, status models.IndexStatus) error {
	return s.update(func(st *memoryState) error {
		d, ok := st.docs[id]
		if !ok {
			return documentNotFound(id)
		}
		next := *d
		next.doc.Status = status
		st.docs[id] = &next
		return nil
	})
}

// DeleteDocument removes a document with its chunks and vectors.
func (s *MemoryStorage) DeleteDocument(ctx context.Context, id string) error {
	return s.update(func(st *memoryState) error {
		delete(st.docs, id)
		return nil
	})
}

// ListDocuments returns documents passing every filter, newest first.
func (s *MemoryStorage) ListDocuments(ctx context.Context, filters []models.Filter, offset, limit int) ([]*models.IndexedDocument, error) {
	st := s.state.Load()
	matched := make([]*memoryDoc, 0, len(st.docs))
	for _, d := range st.docs {
		if models.MatchAll(filters, &d.doc.Metadata) {
			matched = append(matched, d)
		}
	}
	sort.Slice(matched, func(i, j int) bool {
		if !matched[i].doc.IndexedAt.Equal(matched[j].doc.IndexedAt) {
			return matched[i].doc.IndexedAt.After(matched[j].doc.IndexedAt)
		}
		return matched[i].doc.ID < matched[j].doc.ID
	})
	if offset >= len(matched) {
		return nil, nil
	}
	matched = matched[offset:]
	if limit > 0 && len(matched) > limit {
		matched = matched[:limit]
	}
	out := make([]*models.IndexedDocument, len(matched))
	for i, d := range matched {
		out[i] = d.view(false)
	}
	return out, nil
}

// MatchingDocumentIDs returns the ids of all documents passing every filter.
func (s *MemoryStorage) MatchingDocumentIDs(ctx context.Context, filters []models.Filter) (map[string]struct{}, error) {
	st := s.state.Load()
	out := make(map[string]struct{})
	for id, d := range st.docs {
		if models.MatchAll(filters, &d.doc.Metadata) {
			out[id] = struct{}{}
		}
	}
	return out, nil
}

// GetChunks returns all chunks of a document ordered by chunk number.
func (s *MemoryStorage) GetChunks(ctx context.Context, docID string) ([]models.ContentChunk, error) {
	d, ok := s.state.Load().docs[docID]
	if !ok {
		return nil, nil
	}
	return copyChunks(d.chunks), nil
}

// GetChunksByID returns the chunks that exist among ids.
func (s *MemoryStorage) GetChunksByID(ctx context.Context, ids []string) (map[string]models.ContentChunk, error) {
	want := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		want[id] = struct{}{}
	}
	out := make(map[string]models.ContentChunk, len(ids))
	for _, d := range s.state.Load().docs {
		for _, ch := range copyChunks(d.chunks) {
			if _, ok := want[ch.ID]; ok {
				out[ch.ID] = ch
			}
		}
	}
	return out, nil
}

// GetVectors returns the vectors of a document ordered by chunk index.
func (s *MemoryStorage) GetVectors(ctx context.Context, docID string) ([]VectorRecord, error) {
	d, ok := s.state.Load().docs[docID]
	if !ok {
		return nil, nil
	}
	return copyVectors(d.vectors), nil
}

// LoadVectors streams every vector in document insertion order, then chunk order.
func (s *MemoryStorage) LoadVectors(ctx context.Context, fn func(VectorRecord) error) error {
	st := s.state.Load()
	docs := make([]*memoryDoc, 0, len(st.docs))
	for _, d := range st.docs {
		docs = append(docs, d)
	}
	sort.Slice(docs, func(i, j int) bool { return docs[i].seq < docs[j].seq })
	for _, d := range docs {
		if err := ctx.Err(); err != nil {
			return wrapErr("load vectors", err)
		}
		for _, v := range copyVectors(d.vectors) {
			if err := fn(v); err != nil {
				return err
			}
		}
	}
	return nil
}

// SaveIndex inserts or replaces an index definition.
func (s *MemoryStorage) SaveIndex(ctx context.Context, rec IndexRecord) error {
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now()
	}
	rec.Configuration = maps.Clone(rec.Configuration)
	return s.update(func(st *memoryState) error {
		st.indices[rec.Name] = rec
		return nil
	})
}

// GetIndex returns an index definition, or an IndexNotFoundError.
func (s *MemoryStorage) GetIndex(ctx context.Context, name string) (*IndexRecord, error) {
	rec, ok := s.state.Load().indices[name]
	if !ok {
		return nil, &models.IndexNotFoundError{Name: name}
	}
	rec.Configuration = maps.Clone(rec.Configuration)
	return &rec, nil
}

// DeleteIndex removes an index definition.
func (s *MemoryStorage) DeleteIndex(ctx context.Context, name string) error {
	return s.update(func(st *memoryState) error {
		delete(st.indices, name)
		return nil
	})
}

// ListIndices returns every index definition sorted by name.
func (s *MemoryStorage) ListIndices(ctx context.Context) ([]IndexRecord, error) {
	st := s.state.Load()
	out := make([]IndexRecord, 0, len(st.indices))
	for _, rec := range st.indices {
		rec.Configuration = maps.Clone(rec.Configuration)
		out = append(out, rec)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

// MarkOptimized records the last optimization time of an index.
func (s *MemoryStorage) MarkOptimized(ctx context.Context, name string, at time.Time) error {
	return s.update(func(st *memoryState) error {
		rec, ok := st.indices[name]
		if !ok {
			return &models.IndexNotFoundError{Name: name}
		}
		rec.LastOptimized = &at
		st.indices[name] = rec
		return nil
	})
}

// SaveKnowledgeBase inserts or replaces the knowledge base of a project.
func (s *MemoryStorage) SaveKnowledgeBase(ctx context.Context, kb *models.KnowledgeBase) error {
	cp := copyKnowledgeBase(kb)
	return s.update(func(st *memoryState) error {
		st.kbs[kb.ProjectID] = cp
		return nil
	})
}

// GetKnowledgeBase returns the knowledge base of a project, or an error wrapping models.ErrNotFound.
func (s *MemoryStorage) GetKnowledgeBase(ctx context.Context, projectID string) (*models.KnowledgeBase, error) {
	kb, ok := s.state.Load().kbs[projectID]
	if !ok {
		return nil, fmt.Errorf("%w: knowledge base for project %s", models.ErrNotFound, projectID)
	}
	return copyKnowledgeBase(kb), nil
}

// DeleteKnowledgeBase removes the knowledge base of a project.
func (s *MemoryStorage) DeleteKnowledgeBase(ctx context.Context, projectID string) error {
	return s.update(func(st *memoryState) error {
		delete(st.kbs, projectID)
		return nil
	})
}

func copyKnowledgeBase(kb *models.KnowledgeBase) *models.KnowledgeBase {
	cp := *kb
	cp.DocumentIDs = append([]string(nil), kb.DocumentIDs...)
	cp.Metadata.ContentTypes = append([]models.ContentType(nil), kb.Metadata.ContentTypes...)
	cp.Metadata.Languages = append([]string(nil), kb.Metadata.Languages...)
	cp.Metadata.Tags = append([]string(nil), kb.Metadata.Tags...)
	return &cp
}

// Stats returns row counts.
func (s *MemoryStorage) Stats(ctx context.Context) (*Stats, error) {
	st := s.state.Load()
	out := &Stats{ByContentType: make(map[string]int64), ByStatus: make(map[string]int64)}
	for _, d := range st.docs {
		out.Documents++
		out.Chunks += int64(len(d.chunks))
		out.Vectors += int64(len(d.vectors))
		out.ByContentType[string(d.doc.Metadata.Type)]++
		out.ByStatus[string(d.doc.Status)]++
	}
	return out, nil
}

// Close is a no-op for MemoryStorage.
func (s *MemoryStorage) Close() error {
	return nil
}
