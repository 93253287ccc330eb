package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/hyperjump/sakuin/internal/models"
)

// SQLiteStorage implements Storage using SQLite.
type SQLiteStorage struct {
	db   *sql.DB
	path string
}

// NewSQLiteStorage opens or creates a SQLite database at dbPath and initializes the schema.
// Parent directories are created if they do not exist.
func NewSQLiteStorage(dbPath string) (*SQLiteStorage, error) {
	if dbPath == "" {
		return nil, models.InvalidInputf("database path is required")
	}
	if dir := filepath.Dir(dbPath); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}
	db, err := sql.Open("sqlite3", dbPath+"?_foreign_keys=on&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to enable WAL: %w", err)
	}

	if err := initSchema(db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return &SQLiteStorage{db: db, path: dbPath}, nil
}

func initSchema(db *sql.DB) error {
	schema := `
	CREATE TABLE IF NOT EXISTS vector_documents (
		id TEXT PRIMARY KEY,
		project_id TEXT NOT NULL,
		content_type TEXT NOT NULL,
		title TEXT,
		status TEXT NOT NULL DEFAULT 'completed',
		vector_count INTEGER NOT NULL DEFAULT 0,
		created_at TIMESTAMP NOT NULL,
		metadata BLOB
	);

	CREATE INDEX IF NOT EXISTS idx_vector_documents_project ON vector_documents(project_id);
	CREATE INDEX IF NOT EXISTS idx_vector_documents_type ON vector_documents(content_type);

	CREATE TABLE IF NOT EXISTS vector_chunks (
		id TEXT PRIMARY KEY,
		document_id TEXT NOT NULL,
		text TEXT NOT NULL,
		start_index INTEGER NOT NULL,
		end_index INTEGER NOT NULL,
		chunk_number INTEGER NOT NULL,
		total_chunks INTEGER NOT NULL,
		metadata BLOB,
		FOREIGN KEY (document_id) REFERENCES vector_documents(id) ON DELETE CASCADE
	);

	CREATE INDEX IF NOT EXISTS idx_vector_chunks_document ON vector_chunks(document_id, chunk_number);

	CREATE TABLE IF NOT EXISTS vectors (
		id TEXT PRIMARY KEY,
		document_id TEXT NOT NULL,
		chunk_id TEXT NOT NULL,
		chunk_index INTEGER NOT NULL,
		embedding BLOB NOT NULL,
		dimension INTEGER NOT NULL,
		created_at TIMESTAMP NOT NULL,
		FOREIGN KEY (document_id) REFERENCES vector_documents(id) ON DELETE CASCADE
	);

	CREATE INDEX IF NOT EXISTS idx_vectors_document ON vectors(document_id, chunk_index);

	CREATE TABLE IF NOT EXISTS vector_indices (
		name TEXT PRIMARY KEY,
		type TEXT NOT NULL,
		dimension INTEGER NOT NULL,
		metric TEXT NOT NULL,
		created_at TIMESTAMP NOT NULL,
		last_optimized TIMESTAMP,
		configuration BLOB
	);

	CREATE TABLE IF NOT EXISTS knowledge_bases (
		project_id TEXT PRIMARY KEY,
		id TEXT NOT NULL,
		version INTEGER NOT NULL,
		created_at TIMESTAMP NOT NULL,
		updated_at TIMESTAMP NOT NULL,
		data BLOB NOT NULL
	);
	`
	_, err := db.Exec(schema)
	return err
}

// Path returns the database file path.
func (s *SQLiteStorage) Path() string {
	return s.path
}

// SaveDocument replaces the document, chunks and vectors in one transaction.
// The delete-then-insert gives a replaced document a new rowid, so it sorts last on reload.
func (s *SQLiteStorage) SaveDocument(ctx context.Context, doc *models.IndexedDocument, vectors []VectorRecord) error {
	metaJSON, err := json.Marshal(doc.Metadata)
	if err != nil {
		return fmt.Errorf("failed to marshal metadata: %w", err)
	}
	if doc.IndexedAt.IsZero() {
		doc.IndexedAt = time.Now()
	}
	if doc.Status == "" {
		doc.Status = models.IndexStatusCompleted
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return wrapErr("begin", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM vector_documents WHERE id = ?`, doc.ID); err != nil {
		return wrapErr("delete document", err)
	}
	if _, err := tx.ExecContext(ctx,
		`INSERT INTO vector_documents (id, project_id, content_type, title, status, vector_count, created_at, metadata)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		doc.ID, doc.Metadata.ProjectID, string(doc.Metadata.Type), doc.Metadata.Source.Title,
		string(doc.Status), len(vectors), doc.IndexedAt, metaJSON,
	); err != nil {
		return wrapErr("insert document", err)
	}

	chunkStmt, err := tx.PrepareContext(ctx,
		`INSERT INTO vector_chunks (id, document_id, text, start_index, end_index, chunk_number, total_chunks, metadata)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return wrapErr("prepare chunks", err)
	}
	defer chunkStmt.Close()
	for _, ch := range doc.Chunks {
		chMeta, err := json.Marshal(ch.Metadata)
		if err != nil {
			return fmt.Errorf("failed to marshal chunk metadata: %w", err)
		}
		if _, err := chunkStmt.ExecContext(ctx, ch.ID, doc.ID, ch.Text, ch.StartIndex, ch.EndIndex,
			ch.Metadata.ChunkNumber, ch.Metadata.TotalChunks, chMeta); err != nil {
			return wrapErr("insert chunk", err)
		}
	}

	vecStmt, err := tx.PrepareContext(ctx,
		`INSERT INTO vectors (id, document_id, chunk_id, chunk_index, embedding, dimension, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return wrapErr("prepare vectors", err)
	}
	defer vecStmt.Close()
	for _, v := range vectors {
		id := v.ID
		if id == "" {
			id = v.ChunkID
		}
		created := v.CreatedAt
		if created.IsZero() {
			created = doc.IndexedAt
		}
		if _, err := vecStmt.ExecContext(ctx, id, doc.ID, v.ChunkID, v.ChunkIndex,
			EncodeVector(v.Embedding), len(v.Embedding), created); err != nil {
			return wrapErr("insert vector", err)
		}
	}
	doc.VectorCount = len(vectors)
	return wrapErr("commit", tx.Commit())
}

const documentColumns = `id, status, vector_count, created_at, metadata`

func scanDocument(scan func(dest ...any) error) (*models.IndexedDocument, error) {
	var doc models.IndexedDocument
	var status string
	var metaJSON []byte
	if err := scan(&doc.ID, &status, &doc.VectorCount, &doc.IndexedAt, &metaJSON); err != nil {
		return nil, err
	}
	doc.Status = models.IndexStatus(status)
	if len(metaJSON) > 0 {
		if err := json.Unmarshal(metaJSON, &doc.Metadata); err != nil {
			return nil, fmt.Errorf("failed to unmarshal metadata: %w", err)
		}
	}
	return &doc, nil
}

// GetDocument returns a document by ID with its chunks.
func (s *SQLiteStorage) GetDocument(ctx context.Context, id string) (*models.IndexedDocument, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+documentColumns+` FROM vector_documents WHERE id = ?`, id)
	doc, err := scanDocument(row.Scan)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, documentNotFound(id)
	}
	if err != nil {
		return nil, wrapErr("get document", err)
	}
	chunks, err := s.GetChunks(ctx, id)
	if err != nil {
		return nil, err
	}
	doc.Chunks = chunks
	return doc, nil
}

// GetDocuments returns the documents that exist among ids.
func (s *SQLiteStorage) GetDocuments(ctx context.Context, ids []string) (map[string]*models.IndexedDocument, error) {
	out := make(map[string]*models.IndexedDocument, len(ids))
	for _, batch := range batches(ids, 500) {
		rows, err := s.db.QueryContext(ctx,
			`SELECT `+documentColumns+` FROM vector_documents WHERE id IN (`+placeholders(len(batch))+`)`,
			anySlice(batch)...)
		if err != nil {
			return nil, wrapErr("get documents", err)
		}
		for rows.Next() {
			doc, err := scanDocument(rows.Scan)
			if err != nil {
				rows.Close()
				return nil, wrapErr("get documents", err)
			}
			out[doc.ID] = doc
		}
		err = rows.Err()
		rows.Close()
		if err != nil {
			return nil, wrapErr("get documents", err)
		}
	}
	return out, nil
}

// UpdateMetadata replaces the metadata of an existing document.
func (s *SQLiteStorage) UpdateMetadata(ctx context.Context, id string, meta models.ContentMetadata) error {
	metaJSON, err := json.Marshal(meta)
	if err != nil {
		return fmt.Errorf("failed to marshal metadata: %w", err)
	}
	result, err := s.db.ExecContext(ctx,
		`UPDATE vector_documents SET project_id = ?, content_type = ?, title = ?, metadata = ? WHERE id = ?`,
		meta.ProjectID, string(meta.Type), meta.Source.Title, metaJSON, id,
	)
	if err != nil {
		return wrapErr("update metadata", err)
	}
	if n, _ := result.RowsAffected(); n == 0 {
		return documentNotFound(id)
	}
	return nil
}

// SetStatus records the indexing status of an existing document.
func (s *SQLiteStorage) SetStatus(ctx context.Context, id string, status models.IndexStatus) error {
	result, err := s.db.ExecContext(ctx, `UPDATE vector_documents SET status = ? WHERE id = ?`, string(status), id)
	if err != nil {
		return wrapErr("set status", err)
	}
	if n, _ := result.RowsAffected(); n == 0 {
		return documentNotFound(id)
	}
	return nil
}

// DeleteDocument removes a document; chunks and vectors go with it through the foreign keys.
func (s *SQLiteStorage) DeleteDocument(ctx context.Context, id string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM vector_documents WHERE id = ?`, id)
	return wrapErr("delete document", err)
}

// columnFilters pushes project and content type filters into SQL; the rest are checked on the
// decoded metadata.
func columnFilters(filters []models.Filter) (where string, args []any, rest []models.Filter) {
	var clauses []string
	for _, f := range filters {
		switch f := f.(type) {
		case models.ProjectIDsIn:
			clauses = append(clauses, `project_id IN (`+placeholders(len(f))+`)`)
			args = append(args, anySlice(f)...)
		case models.ContentTypesIn:
			clauses = append(clauses, `content_type IN (`+placeholders(len(f))+`)`)
			for _, t := range f {
				args = append(args, string(t))
			}
		case nil:
		default:
			rest = append(rest, f)
		}
	}
	if len(clauses) > 0 {
		where = ` WHERE ` + strings.Join(clauses, ` AND `)
	}
	return where, args, rest
}

// ListDocuments returns documents passing every filter, newest first.
func (s *SQLiteStorage) ListDocuments(ctx context.Context, filters []models.Filter, offset, limit int) ([]*models.IndexedDocument, error) {
	where, args, rest := columnFilters(filters)
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+documentColumns+` FROM vector_documents`+where+` ORDER BY created_at DESC, id`, args...)
	if err != nil {
		return nil, wrapErr("list documents", err)
	}
	defer rows.Close()

	var docs []*models.IndexedDocument
	skipped := 0
	for rows.Next() {
		doc, err := scanDocument(rows.Scan)
		if err != nil {
			return nil, wrapErr("list documents", err)
		}
		if !models.MatchAll(rest, &doc.Metadata) {
			continue
		}
		if skipped < offset {
			skipped++
			continue
		}
		docs = append(docs, doc)
		if limit > 0 && len(docs) >= limit {
			break
		}
	}
	return docs, wrapErr("list documents", rows.Err())
}

// MatchingDocumentIDs returns the ids of all documents passing every filter.
func (s *SQLiteStorage) MatchingDocumentIDs(ctx context.Context, filters []models.Filter) (map[string]struct{}, error) {
	where, args, rest := columnFilters(filters)
	cols := `id`
	if len(rest) > 0 {
		cols = `id, metadata`
	}
	rows, err := s.db.QueryContext(ctx, `SELECT `+cols+` FROM vector_documents`+where, args...)
	if err != nil {
		return nil, wrapErr("match documents", err)
	}
	defer rows.Close()

	out := make(map[string]struct{})
	for rows.Next() {
		var id string
		if len(rest) == 0 {
			if err := rows.Scan(&id); err != nil {
				return nil, wrapErr("match documents", err)
			}
			out[id] = struct{}{}
			continue
		}
		var metaJSON []byte
		if err := rows.Scan(&id, &metaJSON); err != nil {
			return nil, wrapErr("match documents", err)
		}
		var meta models.ContentMetadata
		if err := json.Unmarshal(metaJSON, &meta); err != nil {
			return nil, wrapErr("match documents", err)
		}
		if models.MatchAll(rest, &meta) {
			out[id] = struct{}{}
		}
	}
	return out, wrapErr("match documents", rows.Err())
}

func scanChunk(scan func(dest ...any) error) (models.ContentChunk, string, error) {
	var ch models.ContentChunk
	var docID string
	var metaJSON []byte
	if err := scan(&ch.ID, &docID, &ch.Text, &ch.StartIndex, &ch.EndIndex, &metaJSON); err != nil {
		return ch, "", err
	}
	if len(metaJSON) > 0 {
		if err := json.Unmarshal(metaJSON, &ch.Metadata); err != nil {
			return ch, "", fmt.Errorf("failed to unmarshal chunk metadata: %w", err)
		}
	}
	return ch, docID, nil
}

// GetChunks returns all chunks of a document ordered by chunk number.
func (s *SQLiteStorage) GetChunks(ctx context.Context, docID string) ([]models.ContentChunk, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, document_id, text, start_index, end_index, metadata
		 FROM vector_chunks WHERE document_id = ? ORDER BY chunk_number`, docID)
	if err != nil {
		return nil, wrapErr("get chunks", err)
	}
	defer rows.Close()

	var chunks []models.ContentChunk
	for rows.Next() {
		ch, _, err := scanChunk(rows.Scan)
		if err != nil {
			return nil, wrapErr("get chunks", err)
		}
		chunks = append(chunks, ch)
	}
	return chunks, wrapErr("get chunks", rows.Err())
}

// GetChunksByID returns the chunks that exist among ids.
func (s *SQLiteStorage) GetChunksByID(ctx context.Context, ids []string) (map[string]models.ContentChunk, error) {
	out := make(map[string]models.ContentChunk, len(ids))
	for _, batch := range batches(ids, 500) {
		rows, err := s.db.QueryContext(ctx,
			`SELECT id, document_id, text, start_index, end_index, metadata
			 FROM vector_chunks WHERE id IN (`+placeholders(len(batch))+`)`, anySlice(batch)...)
		if err != nil {
			return nil, wrapErr("get chunks", err)
		}
		for rows.Next() {
			ch, _, err := scanChunk(rows.Scan)
			if err != nil {
				rows.Close()
				return nil, wrapErr("get chunks", err)
			}
			out[ch.ID] = ch
		}
		err = rows.Err()
		rows.Close()
		if err != nil {
			return nil, wrapErr("get chunks", err)
		}
	}
	return out, nil
}

func scanVector(scan func(dest ...any) error) (VectorRecord, error) {
	var v VectorRecord
	var blob []byte
	if err := scan(&v.ID, &v.DocumentID, &v.ChunkID, &v.ChunkIndex, &blob, &v.CreatedAt); err != nil {
		return v, err
	}
	emb, err := DecodeVector(blob)
	if err != nil {
		return v, err
	}
	v.Embedding = emb
	return v, nil
}

// GetVectors returns the vectors of a document ordered by chunk index.
func (s *SQLiteStorage) GetVectors(ctx context.Context, docID string) ([]VectorRecord, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, document_id, chunk_id, chunk_index, embedding, created_at
		 FROM vectors WHERE document_id = ? ORDER BY chunk_index`, docID)
	if err != nil {
		return nil, wrapErr("get vectors", err)
	}
	defer rows.Close()

	var out []VectorRecord
	for rows.Next() {
		v, err := scanVector(rows.Scan)
		if err != nil {
			return nil, wrapErr("get vectors", err)
		}
		out = append(out, v)
	}
	return out, wrapErr("get vectors", rows.Err())
}

// LoadVectors streams every vector in document insertion order, then chunk order.
func (s *SQLiteStorage) LoadVectors(ctx context.Context, fn func(VectorRecord) error) error {
	rows, err := s.db.QueryContext(ctx,
		`SELECT v.id, v.document_id, v.chunk_id, v.chunk_index, v.embedding, v.created_at
		 FROM vectors v JOIN vector_documents d ON d.id = v.document_id
		 ORDER BY d.rowid, v.chunk_index`)
	if err != nil {
		return wrapErr("load vectors", err)
	}
	defer rows.Close()

	for rows.Next() {
		v, err := scanVector(rows.Scan)
		if err != nil {
			return wrapErr("load vectors", err)
		}
		if err := fn(v); err != nil {
			return err
		}
	}
	return wrapErr("load vectors", rows.Err())
}

// SaveIndex inserts or replaces an index definition.
func (s *SQLiteStorage) SaveIndex(ctx context.Context, rec IndexRecord) error {
	cfgJSON, err := json.Marshal(rec.Configuration)
	if err != nil {
		return fmt.Errorf("failed to marshal index configuration: %w", err)
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now()
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT OR REPLACE INTO vector_indices (name, type, dimension, metric, created_at, last_optimized, configuration)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		rec.Name, rec.Type, rec.Dimension, rec.Metric, rec.CreatedAt, rec.LastOptimized, cfgJSON,
	)
	return wrapErr("save index", err)
}

func scanIndex(scan func(dest ...any) error) (IndexRecord, error) {
	var rec IndexRecord
	var lastOptimized sql.NullTime
	var cfgJSON []byte
	if err := scan(&rec.Name, &rec.Type, &rec.Dimension, &rec.Metric, &rec.CreatedAt, &lastOptimized, &cfgJSON); err != nil {
		return rec, err
	}
	if lastOptimized.Valid {
		t := lastOptimized.Time
		rec.LastOptimized = &t
	}
	if len(cfgJSON) > 0 {
		if err := json.Unmarshal(cfgJSON, &rec.Configuration); err != nil {
			return rec, fmt.Errorf("failed to unmarshal index configuration: %w", err)
		}
	}
	return rec, nil
}

// GetIndex returns an index definition, or an IndexNotFoundError.
func (s *SQLiteStorage) GetIndex(ctx context.Context, name string) (*IndexRecord, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT name, type, dimension, metric, created_at, last_optimized, configuration
		 FROM vector_indices WHERE name = ?`, name)
	rec, err := scanIndex(row.Scan)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, &models.IndexNotFoundError{Name: name}
	}
	if err != nil {
		return nil, wrapErr("get index", err)
	}
	return &rec, nil
}

// DeleteIndex removes an index definition. Unknown names are ignored.
func (s *SQLiteStorage) DeleteIndex(ctx context.Context, name string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM vector_indices WHERE name = ?`, name)
	return wrapErr("delete index", err)
}

// ListIndices returns every index definition sorted by name.
func (s *SQLiteStorage) ListIndices(ctx context.Context) ([]IndexRecord, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT name, type, dimension, metric, created_at, last_optimized, configuration
		 FROM vector_indices ORDER BY name`)
	if err != nil {
		return nil, wrapErr("list indices", err)
	}
	defer rows.Close()

	var out []IndexRecord
	for rows.Next() {
		rec, err := scanIndex(rows.Scan)
		if err != nil {
			return nil, wrapErr("list indices", err)
		}
		out = append(out, rec)
	}
	return out, wrapErr("list indices", rows.Err())
}

// MarkOptimized records the last optimization time of an index.
func (s *SQLiteStorage) MarkOptimized(ctx context.Context, name string, at time.Time) error {
	result, err := s.db.ExecContext(ctx, `UPDATE vector_indices SET last_optimized = ? WHERE name = ?`, at, name)
	if err != nil {
		return wrapErr("mark optimized", err)
	}
	if n, _ := result.RowsAffected(); n == 0 {
		return &models.IndexNotFoundError{Name: name}
	}
	return nil
}

// SaveKnowledgeBase inserts or replaces the knowledge base of a project.
func (s *SQLiteStorage) SaveKnowledgeBase(ctx context.Context, kb *models.KnowledgeBase) error {
	data, err := json.Marshal(kb)
	if err != nil {
		return fmt.Errorf("failed to marshal knowledge base: %w", err)
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT OR REPLACE INTO knowledge_bases (project_id, id, version, created_at, updated_at, data)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		kb.ProjectID, kb.ID, kb.Version, kb.CreatedAt, kb.UpdatedAt, data,
	)
	return wrapErr("save knowledge base", err)
}

// GetKnowledgeBase returns the knowledge base of a project, or an error wrapping models.ErrNotFound.
func (s *SQLiteStorage) GetKnowledgeBase(ctx context.Context, projectID string) (*models.KnowledgeBase, error) {
	var data []byte
	err := s.db.QueryRowContext(ctx, `SELECT data FROM knowledge_bases WHERE project_id = ?`, projectID).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: knowledge base for project %s", models.ErrNotFound, projectID)
	}
	if err != nil {
		return nil, wrapErr("get knowledge base", err)
	}
	var kb models.KnowledgeBase
	if err := json.Unmarshal(data, &kb); err != nil {
		return nil, wrapErr("get knowledge base", err)
	}
	return &kb, nil
}

// DeleteKnowledgeBase removes the knowledge base of a project. Unknown projects are ignored.
func (s *SQLiteStorage) DeleteKnowledgeBase(ctx context.Context, projectID string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM knowledge_bases WHERE project_id = ?`, projectID)
	return wrapErr("delete knowledge base", err)
}

// Stats returns row counts.
func (s *SQLiteStorage) Stats(ctx context.Context) (*Stats, error) {
	st := &Stats{ByContentType: make(map[string]int64), ByStatus: make(map[string]int64)}
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM vector_documents`).Scan(&st.Documents); err != nil {
		return nil, wrapErr("stats", err)
	}
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM vector_chunks`).Scan(&st.Chunks); err != nil {
		return nil, wrapErr("stats", err)
	}
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM vectors`).Scan(&st.Vectors); err != nil {
		return nil, wrapErr("stats", err)
	}
	if err := s.groupCount(ctx, `content_type`, st.ByContentType); err != nil {
		return nil, err
	}
	if err := s.groupCount(ctx, `status`, st.ByStatus); err != nil {
		return nil, err
	}
	return st, nil
}

func (s *SQLiteStorage) groupCount(ctx context.Context, column string, into map[string]int64) error {
	rows, err := s.db.QueryContext(ctx, `SELECT `+column+`, COUNT(*) FROM vector_documents GROUP BY `+column)
	if err != nil {
		return wrapErr("stats", err)
	}
	defer rows.Close()
	for rows.Next() {
		var key string
		var n int64
		if err := rows.Scan(&key, &n); err != nil {
			return wrapErr("stats", err)
		}
		into[key] = n
	}
	return wrapErr("stats", rows.Err())
}

// Close closes the database connection.
func (s *SQLiteStorage) Close() error {
	return s.db.Close()
}

func placeholders(n int) string {
	if n <= 0 {
		return ""
	}
	return strings.TrimSuffix(strings.Repeat("?,", n), ",")
}

func anySlice[T any](in []T) []any {
	out := make([]any, len(in))
	for i, v := range in {
		out[i] = v
	}
	return out
}

func batches(ids []string, size int) [][]string {
	var out [][]string
	for len(ids) > size {
		out = append(out, ids[:size])
		ids = ids[size:]
	}
	if len(ids) > 0 {
		out = append(out, ids)
	}
	return out
}
