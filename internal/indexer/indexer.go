// Package indexer turns raw content and files into chunked, embedded documents in the vector store.
package indexer

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/hyperjump/sakuin/internal/chunking"
	"github.com/hyperjump/sakuin/internal/embedding"
	"github.com/hyperjump/sakuin/internal/extract"
	"github.com/hyperjump/sakuin/internal/fileid"
	"github.com/hyperjump/sakuin/internal/models"
	"github.com/hyperjump/sakuin/internal/store"
	"go.uber.org/zap"
)

// Indexer chunks and embeds content and stores it in the vector store.
type Indexer struct {
	store     *store.VectorStore
	embedder  embedding.Embedder
	chunker   chunking.Chunker
	extractor *extract.Extractor
	logger    *zap.Logger // optional; when set, logs debug events
}

// IndexerOption configures an Indexer.
type IndexerOption func(*Indexer)

// WithLogger sets a logger for debug output (file indexed, document removed, etc.).
func WithLogger(l *zap.Logger) IndexerOption {
	return func(idx *Indexer) { idx.logger = l }
}

// WithChunker replaces the default word chunker.
func WithChunker(c chunking.Chunker) IndexerOption {
	return func(idx *Indexer) { idx.chunker = c }
}

// NewIndexer creates an indexer with the given dependencies.
// extractor may be nil; when nil, IndexFile treats all files as plain text.
func NewIndexer(vs *store.VectorStore, embedder embedding.Embedder, extractor *extract.Extractor, opts ...IndexerOption) *Indexer {
	idx := &Indexer{
		store:     vs,
		embedder:  embedder,
		chunker:   chunking.NewWordChunker(chunking.DefaultChunkSize, chunking.DefaultChunkOverlap),
		extractor: extractor,
	}
	for _, opt := range opts {
		opt(idx)
	}
	return idx
}

// IndexContent chunks, embeds and stores input, returning the document id. An empty
// metadata id gets a fresh UUID. When segments are given the text is rebuilt from them and
// each chunk carries the speaker and time span of the segments it covers. Otherwise, when
// pages are given, the text is rebuilt from them and each chunk carries its first page.
func (idx *Indexer) IndexContent(ctx context.Context, input models.ContentInput) (string, error) {
	id := input.Metadata.ID
	if id == "" {
		id = uuid.New().String()
	}

	var (
		text  string
		spans []span
		label func(ch *models.ContentChunk, first, last span)
	)
	switch {
	case len(input.Segments) > 0:
		parts := make([]string, len(input.Segments))
		for i, seg := range input.Segments {
			parts[i] = seg.Text
		}
		text, spans = joinParts(parts)
		label = func(ch *models.ContentChunk, first, last span) {
			ch.Metadata.TimeRange = &models.TimeRange{Start: input.Segments[first.part].Start, End: input.Segments[last.part].End}
			ch.Metadata.Speaker = input.Segments[first.part].Speaker
		}
	case len(input.Pages) > 0:
		parts := make([]string, len(input.Pages))
		for i, p := range input.Pages {
			parts[i] = p.Text
		}
		text, spans = joinParts(parts)
		label = func(ch *models.ContentChunk, first, _ span) {
			page := input.Pages[first.part].Number
			ch.Metadata.Page = &page
		}
	}
	if len(spans) == 0 {
		text = chunking.Preprocess(input.Text)
	}
	if text == "" {
		return "", models.InvalidInputf("content %s has no text", id)
	}
	if input.Metadata.Type == "" && len(input.Segments) > 0 && len(spans) > 0 {
		input.Metadata.Type = models.ContentTypeTranscription
	}

	chunks := idx.chunker.Chunk(id, text)
	texts := make([]string, len(chunks))
	values := make([]models.ContentChunk, len(chunks))
	for i, ch := range chunks {
		texts[i] = ch.Text
		if first, last, ok := overlapping(ch, spans); ok {
			label(ch, first, last)
		}
		values[i] = *ch
	}

	embeddings, err := idx.embedder.EmbedBatch(ctx, texts)
	if err != nil {
		var embErr *models.EmbeddingError
		if !errors.As(err, &embErr) {
			err = &models.EmbeddingError{Err: err}
		}
		return "", err
	}
	if err := idx.store.Store(ctx, id, embeddings, input.Metadata, values); err != nil {
		return "", err
	}
	if idx.logger != nil {
		idx.logger.Debug("content indexed", zap.String("id", id), zap.Int("chunks", len(chunks)))
	}
	return id, nil
}

// RemoveIndex removes a document from the store. Unknown ids are ignored.
func (idx *Indexer) RemoveIndex(ctx context.Context, id string) error {
	if idx.logger != nil {
		idx.logger.Debug("indexer removing document", zap.String("id", id))
	}
	return idx.store.Remove(ctx, id)
}

// Snapshot captures the stored state of a document before a batch overwrites it.
func (idx *Indexer) Snapshot(ctx context.Context, id string) (store.Snapshot, error) {
	return idx.store.Snapshot(ctx, id)
}

// Restore rolls a document back to a snapshot.
func (idx *Indexer) Restore(ctx context.Context, sn store.Snapshot) error {
	return idx.store.Restore(ctx, sn)
}

// span is where one input part landed in the joined text.
type span struct {
	start, end int
	part       int
}

// joinParts preprocesses each part and joins the non-empty ones with single spaces,
// recording where each one landed.
func joinParts(parts []string) (string, []span) {
	var b strings.Builder
	var spans []span
	for i, p := range parts {
		t := chunking.Preprocess(p)
		if t == "" {
			continue
		}
		if b.Len() > 0 {
			b.WriteByte(' ')
		}
		start := b.Len()
		b.WriteString(t)
		spans = append(spans, span{start: start, end: b.Len(), part: i})
	}
	return b.String(), spans
}

// overlapping returns the first and last spans the chunk overlaps.
func overlapping(ch *models.ContentChunk, spans []span) (first, last span, ok bool) {
	for _, sp := range spans {
		if sp.end <= ch.StartIndex || sp.start >= ch.EndIndex {
			continue
		}
		if !ok {
			first, ok = sp, true
		}
		last = sp
	}
	return first, last, ok
}

// IndexFile reads a file from path and indexes it under projectID. The document ID is derived
// from the absolute path so re-indexing updates the same document. If allowedExts is non-empty,
// the file's extension must be in the list (case-insensitive). Skips indexing if the file is
// already indexed with the same modification time (incremental sync).
func (idx *Indexer) IndexFile(ctx context.Context, path string, allowedExts []string, projectID string) error {
	if idx.logger != nil {
		idx.logger.Debug("indexer indexing file", zap.String("path", path))
	}
	absPath, docID, err := fileid.Resolve(path)
	if err != nil {
		return err
	}
	ext := strings.ToLower(filepath.Ext(absPath))
	if len(allowedExts) > 0 && !extensionAllowed(ext, allowedExts) {
		return models.InvalidInputf("extension %q not in allowed list", ext)
	}
	info, err := os.Stat(absPath)
	if err != nil {
		return fmt.Errorf("stat file: %w", err)
	}
	if !info.Mode().IsRegular() {
		return models.InvalidInputf("not a regular file: %s", absPath)
	}
	mtime := info.ModTime().UTC()
	if idx.unchanged(ctx, docID, absPath, mtime, projectID) {
		if idx.logger != nil {
			idx.logger.Debug("indexer skipping unchanged file", zap.String("path", absPath))
		}
		return nil
	}
	doc, err := idx.extractContent(absPath)
	if err != nil {
		return fmt.Errorf("extract content: %w", err)
	}
	if strings.TrimSpace(doc.Text) == "" {
		// Nothing to embed; drop any stale version.
		return idx.RemoveIndex(ctx, docID)
	}
	_, err = idx.IndexContent(ctx, models.ContentInput{
		Text:  doc.Text,
		Pages: doc.Pages,
		Metadata: models.ContentMetadata{
			ID:         docID,
			Type:       models.ContentTypeDocument,
			ProjectID:  projectID,
			DocumentID: docID,
			Timestamp:  mtime,
			Source: models.SourceInfo{
				Title:    filepath.Base(absPath),
				FilePath: absPath,
			},
		},
	})
	if err != nil {
		return err
	}
	if idx.logger != nil {
		idx.logger.Debug("indexer file indexed", zap.String("path", absPath), zap.String("doc_id", docID))
	}
	return nil
}

// unchanged reports whether docID is stored for the same path, project and modification time.
func (idx *Indexer) unchanged(ctx context.Context, docID, absPath string, mtime time.Time, projectID string) bool {
	doc, err := idx.store.GetDocument(ctx, docID)
	if err != nil {
		return false
	}
	return doc.Metadata.Source.FilePath == absPath &&
		doc.Metadata.ProjectID == projectID &&
		doc.Metadata.Timestamp.Equal(mtime)
}

// RemoveFile removes the document indexed for path.
func (idx *Indexer) RemoveFile(ctx context.Context, path string) error {
	_, id, err := fileid.Resolve(path)
	if err != nil {
		return err
	}
	return idx.RemoveIndex(ctx, id)
}

// IndexDirectory walks dir recursively and indexes each regular file whose extension
// is in allowedExts (if non-empty; otherwise all files). Returns the number
// of files indexed and the first error encountered, if any.
func (idx *Indexer) IndexDirectory(ctx context.Context, dir string, allowedExts []string, projectID string) (n int, err error) {
	absDir, err := filepath.Abs(dir)
	if err != nil {
		return 0, fmt.Errorf("absolute path: %w", err)
	}
	info, err := os.Stat(absDir)
	if err != nil {
		return 0, fmt.Errorf("stat directory: %w", err)
	}
	if !info.IsDir() {
		return 0, models.InvalidInputf("not a directory: %s", absDir)
	}
	err = filepath.WalkDir(absDir, func(path string, d os.DirEntry, walkErr error) error {
		if walkErr != nil {
			return walkErr
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		ext := strings.ToLower(filepath.Ext(path))
		if len(allowedExts) > 0 && !extensionAllowed(ext, allowedExts) {
			return nil
		}
		// Resolve symlinks so we only index regular files
		finfo, statErr := os.Stat(path)
		if statErr != nil {
			return nil
		}
		if !finfo.Mode().IsRegular() {
			return nil
		}
		if indexErr := idx.IndexFile(ctx, path, allowedExts, projectID); indexErr != nil {
			return fmt.Errorf("%s: %w", path, indexErr)
		}
		n++
		return nil
	})
	return n, err
}

func (idx *Indexer) extractContent(path string) (*extract.Document, error) {
	if idx.extractor != nil {
		return idx.extractor.Extract(path)
	}
	content, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return &extract.Document{Text: string(content)}, nil
}

func extensionAllowed(ext string, allowed []string) bool {
	extNorm := strings.ToLower(strings.TrimPrefix(ext, "."))
	for _, a := range allowed {
		if strings.ToLower(strings.TrimPrefix(a, ".")) == extNorm {
			return true
		}
	}
	return false
}
