// Package store keeps document metadata, chunks and vectors consistent between the storage
// port and the vector index, and answers filtered k-NN searches over them.
package store

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/hyperjump/sakuin/internal/chunking"
	"github.com/hyperjump/sakuin/internal/keyword"
	"github.com/hyperjump/sakuin/internal/models"
	"github.com/hyperjump/sakuin/internal/storage"
	"github.com/hyperjump/sakuin/internal/vector"
	"go.uber.org/zap"
)

// DefaultSnippetLength is the rune length of result snippets.
const DefaultSnippetLength = 300

// Config binds the store to its active index.
type Config struct {
	IndexName     string
	Dimension     int
	Metric        vector.Metric
	IndexConfig   map[string]string
	SnippetLength int
}

// UpdateRequest is a partial update. Nil fields keep their current value; supplied
// embeddings replace every prior vector.
type UpdateRequest struct {
	Embeddings [][]float32
	Chunks     []models.ContentChunk
	Metadata   *models.ContentMetadata
}

// StoreItem is one document of a batch store.
type StoreItem struct {
	ID         string
	Embeddings [][]float32
	Metadata   models.ContentMetadata
	Chunks     []models.ContentChunk
}

// VectorStore coordinates the storage port, the index manager and an optional keyword index.
type VectorStore struct {
	storage   storage.Storage
	manager   *vector.Manager
	keywords  keyword.KeywordIndex
	cfg       Config
	docLocks  *keyedMutex
	indexMu   sync.RWMutex // write-held while the bound index is rebuilt or dropped
	gen       atomic.Uint64
	perf      *perfCounters
	diskPaths []string
	logger    *zap.Logger // optional; when set, logs debug events
}

// Option configures a VectorStore.
type Option func(*VectorStore)

// WithLogger sets a logger for debug output.
func WithLogger(l *zap.Logger) Option {
	return func(s *VectorStore) { s.logger = l }
}

// WithKeywordIndex keeps a keyword index in sync with chunk text.
func WithKeywordIndex(k keyword.KeywordIndex) Option {
	return func(s *VectorStore) { s.keywords = k }
}

// WithDiskPaths adds paths (e.g. the keyword index directory) to the disk usage report.
func WithDiskPaths(paths ...string) Option {
	return func(s *VectorStore) { s.diskPaths = append(s.diskPaths, paths...) }
}

// Open creates a store over st and manager, restoring every persisted index definition.
// The bound index is rebuilt from stored vectors when any exist; otherwise it is created on first use.
func Open(ctx context.Context, st storage.Storage, manager *vector.Manager, cfg Config, opts ...Option) (*VectorStore, error) {
	if cfg.IndexName == "" {
		return nil, models.InvalidInputf("index name is required")
	}
	if cfg.Dimension <= 0 {
		return nil, models.InvalidInputf("index dimension must be positive, got %d", cfg.Dimension)
	}
	if cfg.Metric == "" {
		cfg.Metric = vector.MetricCosine
	}
	if cfg.SnippetLength <= 0 {
		cfg.SnippetLength = DefaultSnippetLength
	}
	if manager == nil {
		manager = vector.NewManager(nil)
	}
	s := &VectorStore{
		storage:  st,
		manager:  manager,
		cfg:      cfg,
		docLocks: newKeyedMutex(),
		perf:     newPerfCounters(),
	}
	for _, opt := range opts {
		opt(s)
	}

	records, err := st.ListIndices(ctx)
	if err != nil {
		return nil, err
	}
	boundPersisted := false
	for _, rec := range records {
		if rec.Name == cfg.IndexName {
			boundPersisted = true
			continue
		}
		if _, err := manager.Create(rec.Name, rec.Dimension, vector.Metric(rec.Metric), rec.Configuration); err != nil {
			return nil, fmt.Errorf("restore index %s: %w", rec.Name, err)
		}
		if err := manager.Restore(rec.Name, rec.CreatedAt, rec.LastOptimized); err != nil {
			return nil, err
		}
	}
	stats, err := st.Stats(ctx)
	if err != nil {
		return nil, err
	}
	if boundPersisted || stats.Vectors > 0 {
		release, err := s.acquireIndex(ctx)
		if err != nil {
			return nil, err
		}
		release()
	}
	return s, nil
}

// Config returns the bound index configuration.
func (s *VectorStore) Config() Config {
	return s.cfg
}

// Storage returns the underlying storage port.
func (s *VectorStore) Storage() storage.Storage {
	return s.storage
}

// Generation increments on every mutation; caches key on it so entries never outlive a write.
func (s *VectorStore) Generation() uint64 {
	return s.gen.Load()
}

// acquireIndex makes sure the bound index exists and holds it against rebuilds until release.
func (s *VectorStore) acquireIndex(ctx context.Context) (release func(), err error) {
	for {
		s.indexMu.RLock()
		if s.manager.Has(s.cfg.IndexName) {
			return s.indexMu.RUnlock, nil
		}
		s.indexMu.RUnlock()

		s.indexMu.Lock()
		if !s.manager.Has(s.cfg.IndexName) {
			if err := s.buildIndexLocked(ctx); err != nil {
				s.indexMu.Unlock()
				return nil, err
			}
		}
		s.indexMu.Unlock()
	}
}

// buildIndexLocked creates the bound index and loads every stored vector into it.
func (s *VectorStore) buildIndexLocked(ctx context.Context) error {
	name := s.cfg.IndexName
	info, err := s.manager.Create(name, s.cfg.Dimension, s.cfg.Metric, s.cfg.IndexConfig)
	if err != nil {
		return err
	}
	fail := func(err error) error {
		_ = s.manager.Delete(name)
		return err
	}

	rec, err := s.storage.GetIndex(ctx, name)
	var notFound *models.IndexNotFoundError
	switch {
	case errors.As(err, &notFound):
		if err := s.storage.SaveIndex(ctx, indexRecord(info)); err != nil {
			return fail(err)
		}
	case err != nil:
		return fail(err)
	default:
		if rec.Dimension != s.cfg.Dimension || vector.Metric(rec.Metric) != s.cfg.Metric {
			return fail(models.InvalidInputf("index %s is persisted with dimension %d and metric %s, configured %d and %s",
				name, rec.Dimension, rec.Metric, s.cfg.Dimension, s.cfg.Metric))
		}
		if err := s.manager.Restore(name, rec.CreatedAt, rec.LastOptimized); err != nil {
			return fail(err)
		}
	}

	var updates []vector.DocumentVectors
	err = s.storage.LoadVectors(ctx, func(v storage.VectorRecord) error {
		if n := len(updates); n == 0 || updates[n-1].DocumentID != v.DocumentID {
			updates = append(updates, vector.DocumentVectors{DocumentID: v.DocumentID})
		}
		last := &updates[len(updates)-1]
		last.Entries = append(last.Entries, vector.Entry{ChunkID: v.ChunkID, ChunkIndex: v.ChunkIndex, Vector: v.Embedding})
		return nil
	})
	if err != nil {
		return fail(err)
	}
	result, err := s.manager.BatchUpdate(ctx, name, updates)
	if err != nil {
		return fail(err)
	}
	if err := result.Err(); err != nil {
		return fail(fmt.Errorf("rebuild index %s: %w", name, err))
	}
	if s.logger != nil {
		s.logger.Debug("vector index loaded",
			zap.String("name", name), zap.Int("documents", len(updates)), zap.Int("succeeded", result.Succeeded))
	}
	return nil
}

func indexRecord(info vector.IndexInfo) storage.IndexRecord {
	return storage.IndexRecord{
		Name:          info.Name,
		Type:          info.Type,
		Dimension:     info.Dimension,
		Metric:        string(info.Metric),
		CreatedAt:     info.CreatedAt,
		LastOptimized: info.LastOptimized,
		Configuration: info.Configuration,
	}
}

// Store persists a document with its chunks and vectors, then indexes it. Embedding i belongs
// to chunk i; missing chunks get synthesized ids. If indexing fails the stored rows are reverted.
func (s *VectorStore) Store(ctx context.Context, id string, embeddings [][]float32, meta models.ContentMetadata, chunks []models.ContentChunk) error {
	if id == "" {
		return models.InvalidInputf("document id is required")
	}
	if err := s.validateEmbeddings(embeddings); err != nil {
		return err
	}
	if len(chunks) > len(embeddings) {
		return models.InvalidInputf("document %s has %d chunks but %d embeddings", id, len(chunks), len(embeddings))
	}
	meta, err := normalizeMetadata(id, meta)
	if err != nil {
		return err
	}

	release, err := s.acquireIndex(ctx)
	if err != nil {
		return err
	}
	defer release()
	unlock := s.docLocks.Lock(id)
	defer unlock()

	return s.writeLocked(ctx, id, embeddings, meta, chunks)
}

func (s *VectorStore) validateEmbeddings(embeddings [][]float32) error {
	if len(embeddings) == 0 {
		return models.InvalidInputf("at least one embedding is required")
	}
	for _, e := range embeddings {
		if len(e) != s.cfg.Dimension {
			return &models.DimensionError{Expected: s.cfg.Dimension, Actual: len(e)}
		}
	}
	return nil
}

func normalizeMetadata(id string, meta models.ContentMetadata) (models.ContentMetadata, error) {
	meta.ID = id
	if meta.Type == "" {
		meta.Type = models.ContentTypeOther
	}
	if !meta.Type.Valid() {
		return meta, models.InvalidInputf("unknown content type: %s", meta.Type)
	}
	if meta.Timestamp.IsZero() {
		meta.Timestamp = time.Now().UTC()
	}
	return meta, nil
}

// buildChunks pairs each embedding with its chunk, numbering chunks 0..n-1.
func buildChunks(id string, embeddings [][]float32, chunks []models.ContentChunk) ([]models.ContentChunk, []storage.VectorRecord) {
	out := make([]models.ContentChunk, len(embeddings))
	vecs := make([]storage.VectorRecord, len(embeddings))
	for i, emb := range embeddings {
		var ch models.ContentChunk
		if i < len(chunks) {
			ch = chunks[i]
		}
		if ch.ID == "" {
			ch.ID = chunking.ChunkID(id, i)
		}
		ch.Embedding = nil
		ch.Metadata.ChunkNumber = i
		ch.Metadata.TotalChunks = len(embeddings)
		out[i] = ch
		vecs[i] = storage.VectorRecord{
			ID:         ch.ID,
			DocumentID: id,
			ChunkID:    ch.ID,
			ChunkIndex: i,
			Embedding:  append([]float32(nil), emb...),
		}
	}
	return out, vecs
}

// writeLocked replaces the document everywhere. Callers hold the document lock and the index.
func (s *VectorStore) writeLocked(ctx context.Context, id string, embeddings [][]float32, meta models.ContentMetadata, chunks []models.ContentChunk) error {
	prev, prevVecs, err := s.snapshot(ctx, id)
	if err != nil {
		return err
	}

	allChunks, vecs := buildChunks(id, embeddings, chunks)
	doc := &models.IndexedDocument{
		ID:        id,
		Metadata:  meta,
		Chunks:    allChunks,
		IndexedAt: time.Now().UTC(),
		Status:    models.IndexStatusCompleted,
	}
	if err := s.storage.SaveDocument(ctx, doc, vecs); err != nil {
		return asStorageError("save document", err)
	}

	entries := make([]vector.Entry, len(vecs))
	for i, v := range vecs {
		entries[i] = vector.Entry{ChunkID: v.ChunkID, ChunkIndex: v.ChunkIndex, Vector: v.Embedding}
	}
	if err := s.manager.Update(ctx, s.cfg.IndexName, id, entries); err != nil {
		s.revert(ctx, id, prev, prevVecs, false)
		return err
	}
	if s.keywords != nil {
		if err := s.keywords.IndexDocument(ctx, id, meta, allChunks); err != nil {
			s.revert(ctx, id, prev, prevVecs, true)
			return fmt.Errorf("keyword index: %w", err)
		}
	}
	s.gen.Add(1)
	if s.logger != nil {
		s.logger.Debug("document stored", zap.String("id", id), zap.Int("vectors", len(vecs)))
	}
	return nil
}

// snapshot reads the current state of id for reverting a failed write. A missing document yields nil.
func (s *VectorStore) snapshot(ctx context.Context, id string) (*models.IndexedDocument, []storage.VectorRecord, error) {
	prev, err := s.storage.GetDocument(ctx, id)
	if errors.Is(err, models.ErrNotFound) {
		return nil, nil, nil
	}
	if err != nil {
		return nil, nil, asStorageError("read document", err)
	}
	vecs, err := s.storage.GetVectors(ctx, id)
	if err != nil {
		return nil, nil, asStorageError("read vectors", err)
	}
	return prev, vecs, nil
}

// revert restores the previous state of id after a failed write. Revert failures are logged;
// the original error is what the caller sees.
func (s *VectorStore) revert(ctx context.Context, id string, prev *models.IndexedDocument, prevVecs []storage.VectorRecord, indexed bool) {
	// Revert even when ctx was cancelled mid-write.
	ctx = context.WithoutCancel(ctx)
	if err := s.restoreLocked(ctx, id, prev, prevVecs, indexed); err != nil && s.logger != nil {
		s.logger.Warn("failed to revert document write", zap.String("id", id), zap.Error(err))
	}
}

func (s *VectorStore) restoreLocked(ctx context.Context, id string, prev *models.IndexedDocument, prevVecs []storage.VectorRecord, indexed bool) error {
	var errs []error
	if prev == nil {
		errs = append(errs, s.storage.DeleteDocument(ctx, id))
		if indexed {
			errs = append(errs, s.manager.Remove(ctx, s.cfg.IndexName, id))
		}
		if s.keywords != nil {
			errs = append(errs, s.keywords.DeleteDocument(ctx, id))
		}
		return errors.Join(errs...)
	}
	errs = append(errs, s.storage.SaveDocument(ctx, prev, prevVecs))
	if indexed {
		entries := make([]vector.Entry, len(prevVecs))
		for i, v := range prevVecs {
			entries[i] = vector.Entry{ChunkID: v.ChunkID, ChunkIndex: v.ChunkIndex, Vector: v.Embedding}
		}
		errs = append(errs, s.manager.Update(ctx, s.cfg.IndexName, id, entries))
	}
	if s.keywords != nil {
		errs = append(errs, s.keywords.IndexDocument(ctx, id, prev.Metadata, prev.Chunks))
	}
	return errors.Join(errs...)
}

// Snapshot is the stored state of one document at a point in time. A snapshot of a
// missing document restores to absence.
type Snapshot struct {
	ID   string
	doc  *models.IndexedDocument
	vecs []storage.VectorRecord
}

// Exists reports whether the document was stored when the snapshot was taken.
func (sn Snapshot) Exists() bool { return sn.doc != nil }

// Snapshot captures the current state of id so a batch of writes can be rolled back.
func (s *VectorStore) Snapshot(ctx context.Context, id string) (Snapshot, error) {
	unlock := s.docLocks.Lock(id)
	defer unlock()
	doc, vecs, err := s.snapshot(ctx, id)
	if err != nil {
		return Snapshot{}, err
	}
	return Snapshot{ID: id, doc: doc, vecs: vecs}, nil
}

// Restore puts a document back to the state captured by sn, removing it when it did not
// exist then. Restore runs to completion even if ctx is cancelled.
func (s *VectorStore) Restore(ctx context.Context, sn Snapshot) error {
	if sn.ID == "" {
		return models.InvalidInputf("snapshot has no document id")
	}
	ctx = context.WithoutCancel(ctx)
	release, err := s.acquireIndex(ctx)
	if err != nil {
		return err
	}
	defer release()
	unlock := s.docLocks.Lock(sn.ID)
	defer unlock()

	if err := s.restoreLocked(ctx, sn.ID, sn.doc, sn.vecs, true); err != nil {
		return fmt.Errorf("restore %s: %w", sn.ID, err)
	}
	s.gen.Add(1)
	return nil
}

// Remove drops a document from the index, the keyword index and storage. Unknown ids are ignored.
func (s *VectorStore) Remove(ctx context.Context, id string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	release, err := s.acquireIndex(ctx)
	if err != nil {
		return err
	}
	defer release()
	unlock := s.docLocks.Lock(id)
	defer unlock()

	// Storage is the source of truth; the in-memory indexes follow it.
	if err := s.storage.DeleteDocument(ctx, id); err != nil {
		return asStorageError("delete document", err)
	}
	s.gen.Add(1)
	if err := s.manager.Remove(ctx, s.cfg.IndexName, id); err != nil {
		return err
	}
	if s.keywords != nil {
		if err := s.keywords.DeleteDocument(ctx, id); err != nil {
			return fmt.Errorf("keyword index: %w", err)
		}
	}
	if s.logger != nil {
		s.logger.Debug("document removed", zap.String("id", id))
	}
	return nil
}

// Update applies a partial update to an existing document.
func (s *VectorStore) Update(ctx context.Context, id string, req UpdateRequest) error {
	if req.Embeddings == nil && req.Chunks == nil && req.Metadata == nil {
		return models.InvalidInputf("update of %s changes nothing", id)
	}
	if req.Embeddings != nil {
		if err := s.validateEmbeddings(req.Embeddings); err != nil {
			return err
		}
	}

	release, err := s.acquireIndex(ctx)
	if err != nil {
		return err
	}
	defer release()
	unlock := s.docLocks.Lock(id)
	defer unlock()

	cur, err := s.storage.GetDocument(ctx, id)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			return err
		}
		return asStorageError("read document", err)
	}

	meta := cur.Metadata
	if req.Metadata != nil {
		if meta, err = normalizeMetadata(id, *req.Metadata); err != nil {
			return err
		}
	}

	embeddings := req.Embeddings
	if embeddings == nil {
		vecs, err := s.storage.GetVectors(ctx, id)
		if err != nil {
			return asStorageError("read vectors", err)
		}
		embeddings = make([][]float32, len(vecs))
		for i, v := range vecs {
			embeddings[i] = v.Embedding
		}
	}

	chunks := req.Chunks
	switch {
	case chunks != nil && len(chunks) > len(embeddings):
		return models.InvalidInputf("document %s has %d chunks but %d embeddings", id, len(chunks), len(embeddings))
	case chunks == nil:
		// Existing chunk text is kept for the vectors it still covers.
		chunks = cur.Chunks
		if len(chunks) > len(embeddings) {
			chunks = chunks[:len(embeddings)]
		}
	}
	return s.writeLocked(ctx, id, embeddings, meta, chunks)
}

// BatchStore stores each item independently. A failed item does not undo the others;
// every outcome is reported in the result. Items after a cancellation fail with the context error.
func (s *VectorStore) BatchStore(ctx context.Context, items []StoreItem) *models.BatchResult {
	result := &models.BatchResult{}
	for _, item := range items {
		if err := ctx.Err(); err != nil {
			result.Add(item.ID, err)
			continue
		}
		result.Add(item.ID, s.Store(ctx, item.ID, item.Embeddings, item.Metadata, item.Chunks))
	}
	return result
}

// GetDocument returns a stored document with its chunks.
func (s *VectorStore) GetDocument(ctx context.Context, id string) (*models.IndexedDocument, error) {
	doc, err := s.storage.GetDocument(ctx, id)
	if err != nil && !errors.Is(err, models.ErrNotFound) {
		return nil, asStorageError("read document", err)
	}
	return doc, err
}

// ListDocuments returns stored documents passing every filter, newest first.
func (s *VectorStore) ListDocuments(ctx context.Context, offset, limit int, filters ...models.Filter) ([]*models.IndexedDocument, error) {
	docs, err := s.storage.ListDocuments(ctx, filters, offset, limit)
	if err != nil {
		return nil, asStorageError("list documents", err)
	}
	return docs, nil
}

// Close closes the manager's indices. Storage and the keyword index are owned by the caller.
func (s *VectorStore) Close() error {
	return s.manager.Close()
}

func asStorageError(op string, err error) error {
	var se *models.StorageError
	if errors.As(err, &se) {
		return err
	}
	return &models.StorageError{Op: op, Err: err}
}
