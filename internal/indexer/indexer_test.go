package indexer

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/hyperjump/sakuin/internal/chunking"
	"github.com/hyperjump/sakuin/internal/embedding"
	"github.com/hyperjump/sakuin/internal/extract"
	"github.com/hyperjump/sakuin/internal/fileid"
	"github.com/hyperjump/sakuin/internal/models"
	"github.com/hyperjump/sakuin/internal/storage"
	"github.com/hyperjump/sakuin/internal/store"
	"github.com/hyperjump/sakuin/internal/vector"
	"github.com/xuri/excelize/v2"
)

func TestExtensionAllowed(t *testing.T) {
	tests := []struct {
		ext     string
		allowed []string
		want    bool
	}{
		{".txt", []string{".txt", ".md"}, true},
		{".TXT", []string{".txt"}, true},
		{".md", []string{".txt", ".md"}, true},
		{".go", []string{".txt"}, false},
		{"", []string{".txt"}, false},
		{".rst", []string{".txt", ".md", ".rst"}, true},
	}
	for _, tt := range tests {
		got := extensionAllowed(tt.ext, tt.allowed)
		if got != tt.want {
			t.Errorf("extensionAllowed(%q, %v) = %v, want %v", tt.ext, tt.allowed, got, tt.want)
		}
	}
}

func testIndexer(t *testing.T, embedder embedding.Embedder, extractor *extract.Extractor) (*Indexer, *store.VectorStore) {
	t.Helper()
	st := storage.NewMemoryStorage()
	t.Cleanup(func() { _ = st.Close() })
	vs, err := store.Open(context.Background(), st, vector.NewManager(nil), store.Config{
		IndexName: "default",
		Dimension: embedder.Dimensions(),
	})
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = vs.Close() })
	return NewIndexer(vs, embedder, extractor, WithChunker(chunking.NewWordChunker(4, 1))), vs
}

func mustAbs(path string) string {
	a, err := filepath.Abs(path)
	if err != nil {
		panic(err)
	}
	return a
}

func TestIndexContent(t *testing.T) {
	idx, vs := testIndexer(t, embedding.NewMockEmbedder(8), nil)
	ctx := context.Background()

	id, err := idx.IndexContent(ctx, models.ContentInput{
		Text:     "one two three four five six seven",
		Metadata: models.ContentMetadata{ProjectID: "p1", Type: models.ContentTypeDocument},
	})
	if err != nil {
		t.Fatal(err)
	}
	if id == "" {
		t.Fatal("expected generated id")
	}
	doc, err := vs.GetDocument(ctx, id)
	if err != nil {
		t.Fatal(err)
	}
	// size 4, overlap 1: [0..4) [3..7)
	if len(doc.Chunks) != 2 {
		t.Fatalf("chunks: got %d, want 2", len(doc.Chunks))
	}
	if doc.Chunks[1].Text != "four five six seven" {
		t.Errorf("chunk 1 text: %q", doc.Chunks[1].Text)
	}
	if doc.Chunks[0].ID != chunking.ChunkID(id, 0) {
		t.Errorf("chunk id: %s", doc.Chunks[0].ID)
	}

	emb := embedding.NewMockEmbedder(8)
	q, _ := emb.Embed(ctx, "four five six seven")
	res, err := vs.Search(ctx, q, 1, 0.99)
	if err != nil {
		t.Fatal(err)
	}
	if len(res) != 1 || res[0].ChunkID != chunking.ChunkID(id, 1) {
		t.Errorf("search for exact chunk text: %+v", res)
	}
}

func TestIndexContent_keepsGivenID(t *testing.T) {
	idx, _ := testIndexer(t, embedding.NewMockEmbedder(8), nil)
	id, err := idx.IndexContent(context.Background(), models.ContentInput{
		Text:     "hello",
		Metadata: models.ContentMetadata{ID: "fixed"},
	})
	if err != nil {
		t.Fatal(err)
	}
	if id != "fixed" {
		t.Errorf("id = %s", id)
	}
}

func TestIndexContent_emptyText(t *testing.T) {
	idx, _ := testIndexer(t, embedding.NewMockEmbedder(8), nil)
	_, err := idx.IndexContent(context.Background(), models.ContentInput{Text: "  \n\t "})
	if !errors.Is(err, models.ErrInvalidInput) {
		t.Errorf("expected invalid input, got %v", err)
	}
}

func TestIndexContent_embeddingFailure(t *testing.T) {
	mock := embedding.NewMockEmbedder(8)
	mock.FailOn("broken", errors.New("model offline"))
	idx, vs := testIndexer(t, mock, nil)
	ctx := context.Background()

	_, err := idx.IndexContent(ctx, models.ContentInput{Text: "broken", Metadata: models.ContentMetadata{ID: "x"}})
	var embErr *models.EmbeddingError
	if !errors.As(err, &embErr) {
		t.Fatalf("expected EmbeddingError, got %v", err)
	}
	if _, err := vs.GetDocument(ctx, "x"); !errors.Is(err, models.ErrNotFound) {
		t.Errorf("nothing should be stored after an embedding failure, got %v", err)
	}
}

func TestIndexContent_segments(t *testing.T) {
	idx, vs := testIndexer(t, embedding.NewMockEmbedder(8), nil)
	ctx := context.Background()

	id, err := idx.IndexContent(ctx, models.ContentInput{
		Metadata: models.ContentMetadata{ID: "rec", ProjectID: "p"},
		Segments: []models.TranscriptSegment{
			{Start: 0, End: 4.5, Speaker: "alice", Text: "good morning  everyone"},
			{Start: 4.5, End: 9, Speaker: "bob", Text: "thanks alice lets begin"},
			{Start: 9, End: 10, Speaker: "carol", Text: "   "},
		},
	})
	if err != nil {
		t.Fatal(err)
	}
	doc, err := vs.GetDocument(ctx, id)
	if err != nil {
		t.Fatal(err)
	}
	if doc.Metadata.Type != models.ContentTypeTranscription {
		t.Errorf("type = %s, want transcription", doc.Metadata.Type)
	}
	// words: good morning everyone thanks | thanks alice lets begin
	if len(doc.Chunks) != 2 {
		t.Fatalf("chunks: got %d", len(doc.Chunks))
	}
	first := doc.Chunks[0].Metadata
	if first.Speaker != "alice" || first.TimeRange == nil || first.TimeRange.Start != 0 || first.TimeRange.End != 9 {
		t.Errorf("chunk 0 metadata: %+v", first)
	}
	second := doc.Chunks[1].Metadata
	if second.Speaker != "bob" || second.TimeRange == nil || second.TimeRange.Start != 4.5 || second.TimeRange.End != 9 {
		t.Errorf("chunk 1 metadata: %+v", second)
	}
}

func TestIndexContent_pages(t *testing.T) {
	idx, vs := testIndexer(t, embedding.NewMockEmbedder(8), nil)
	ctx := context.Background()

	id, err := idx.IndexContent(ctx, models.ContentInput{
		Text: "ignored when pages are given",
		Pages: []models.Page{
			{Number: 1, Text: "alpha beta  gamma"},
			{Number: 2, Text: " "},
			{Number: 3, Text: "delta epsilon zeta eta"},
		},
		Metadata: models.ContentMetadata{Type: models.ContentTypeDocument},
	})
	if err != nil {
		t.Fatal(err)
	}
	doc, err := vs.GetDocument(ctx, id)
	if err != nil {
		t.Fatal(err)
	}
	// alpha beta gamma delta | delta epsilon zeta eta
	if len(doc.Chunks) != 2 {
		t.Fatalf("chunks: got %d", len(doc.Chunks))
	}
	if doc.Chunks[0].Text != "alpha beta gamma delta" {
		t.Errorf("chunk 0 text = %q", doc.Chunks[0].Text)
	}
	for i, want := range []int{1, 3} {
		md := doc.Chunks[i].Metadata
		if md.Page == nil || *md.Page != want {
			t.Errorf("chunk %d page = %v, want %d", i, md.Page, want)
		}
		if md.TimeRange != nil || md.Speaker != "" {
			t.Errorf("chunk %d has transcript metadata: %+v", i, md)
		}
	}
	if doc.Metadata.Type != models.ContentTypeDocument {
		t.Errorf("type = %s", doc.Metadata.Type)
	}
}

func TestRemoveIndex(t *testing.T) {
	idx, vs := testIndexer(t, embedding.NewMockEmbedder(8), nil)
	ctx := context.Background()

	id, err := idx.IndexContent(ctx, models.ContentInput{Text: "to be removed"})
	if err != nil {
		t.Fatal(err)
	}
	if err := idx.RemoveIndex(ctx, id); err != nil {
		t.Fatal(err)
	}
	if _, err := vs.GetDocument(ctx, id); !errors.Is(err, models.ErrNotFound) {
		t.Errorf("document should be removed, got %v", err)
	}
	if err := idx.RemoveIndex(ctx, id); err != nil {
		t.Errorf("second remove should be a no-op: %v", err)
	}
}

func TestIndexFile_createAndUpdate(t *testing.T) {
	dir := t.TempDir()
	idx, vs := testIndexer(t, embedding.NewMockEmbedder(8), nil)
	ctx := context.Background()

	fPath := filepath.Join(dir, "doc.txt")
	if err := os.WriteFile(fPath, []byte("Hello world content."), 0600); err != nil {
		t.Fatal(err)
	}
	if err := idx.IndexFile(ctx, fPath, []string{".txt", ".md"}, "proj"); err != nil {
		t.Fatal(err)
	}
	docID := fileid.ForPath(mustAbs(fPath))
	doc, err := vs.GetDocument(ctx, docID)
	if err != nil {
		t.Fatal(err)
	}
	if doc.Metadata.Source.Title != "doc.txt" || doc.Chunks[0].Text != "Hello world content." {
		t.Errorf("unexpected doc: title=%q text=%q", doc.Metadata.Source.Title, doc.Chunks[0].Text)
	}
	if doc.Metadata.Source.FilePath != mustAbs(fPath) || doc.Metadata.ProjectID != "proj" {
		t.Errorf("metadata: %+v", doc.Metadata)
	}

	if err := os.WriteFile(fPath, []byte("Updated content."), 0600); err != nil {
		t.Fatal(err)
	}
	later := time.Now().Add(2 * time.Second)
	if err := os.Chtimes(fPath, later, later); err != nil {
		t.Fatal(err)
	}
	if err := idx.IndexFile(ctx, fPath, []string{".txt"}, "proj"); err != nil {
		t.Fatal(err)
	}
	doc2, err := vs.GetDocument(ctx, docID)
	if err != nil {
		t.Fatal(err)
	}
	if doc2.Chunks[0].Text != "Updated content." {
		t.Errorf("after update: text=%q", doc2.Chunks[0].Text)
	}
}

func TestIndexFile_skipsUnchanged(t *testing.T) {
	dir := t.TempDir()
	mock := embedding.NewMockEmbedder(8)
	idx, _ := testIndexer(t, mock, nil)
	ctx := context.Background()

	fPath := filepath.Join(dir, "same.txt")
	if err := os.WriteFile(fPath, []byte("stable"), 0600); err != nil {
		t.Fatal(err)
	}
	if err := idx.IndexFile(ctx, fPath, nil, ""); err != nil {
		t.Fatal(err)
	}
	calls := mock.Calls()
	if err := idx.IndexFile(ctx, fPath, nil, ""); err != nil {
		t.Fatal(err)
	}
	if mock.Calls() != calls {
		t.Errorf("unchanged file was embedded again: %d -> %d calls", calls, mock.Calls())
	}
	// A different project is a different document state.
	if err := idx.IndexFile(ctx, fPath, nil, "other"); err != nil {
		t.Fatal(err)
	}
	if mock.Calls() == calls {
		t.Error("project change should re-index")
	}
}

func TestIndexFile_extensionFiltered(t *testing.T) {
	dir := t.TempDir()
	idx, _ := testIndexer(t, embedding.NewMockEmbedder(8), nil)

	fPath := filepath.Join(dir, "script.sh")
	if err := os.WriteFile(fPath, []byte("#!/bin/bash"), 0600); err != nil {
		t.Fatal(err)
	}
	err := idx.IndexFile(context.Background(), fPath, []string{".txt", ".md"}, "")
	if !errors.Is(err, models.ErrInvalidInput) {
		t.Errorf("expected invalid input for disallowed extension, got %v", err)
	}
}

func TestIndexFile_removeFile(t *testing.T) {
	dir := t.TempDir()
	idx, vs := testIndexer(t, embedding.NewMockEmbedder(8), nil)
	ctx := context.Background()

	fPath := filepath.Join(dir, "note.md")
	if err := os.WriteFile(fPath, []byte("Note content."), 0600); err != nil {
		t.Fatal(err)
	}
	if err := idx.IndexFile(ctx, fPath, nil, ""); err != nil {
		t.Fatal(err)
	}
	docID := fileid.ForPath(mustAbs(fPath))
	if _, err := vs.GetDocument(ctx, docID); err != nil {
		t.Fatal(err)
	}
	if err := idx.RemoveFile(ctx, fPath); err != nil {
		t.Fatal(err)
	}
	if _, err := vs.GetDocument(ctx, docID); err == nil {
		t.Error("document should be deleted")
	}
}

func TestIndexFile_notRegularFile(t *testing.T) {
	dir := t.TempDir()
	idx, _ := testIndexer(t, embedding.NewMockEmbedder(8), nil)
	if err := idx.IndexFile(context.Background(), dir, []string{".txt"}, ""); err == nil {
		t.Error("expected error for directory")
	}
}

func TestIndexFile_nonexistent(t *testing.T) {
	dir := t.TempDir()
	idx, _ := testIndexer(t, embedding.NewMockEmbedder(8), nil)
	if err := idx.IndexFile(context.Background(), filepath.Join(dir, "missing.txt"), nil, ""); err == nil {
		t.Error("expected error for missing file")
	}
}

func TestIndexFile_excelWithExtractor(t *testing.T) {
	dir := t.TempDir()
	idx, vs := testIndexer(t, embedding.NewMockEmbedder(8), extract.NewExtractor())

	fPath := filepath.Join(dir, "data.xlsx")
	f := excelize.NewFile()
	f.SetCellValue("Sheet1", "A1", "Excel searchable content")
	if _, err := f.NewSheet("Totals"); err != nil {
		t.Fatal(err)
	}
	f.SetCellValue("Totals", "A1", "grand total row")
	if err := f.SaveAs(fPath); err != nil {
		t.Fatalf("SaveAs: %v", err)
	}
	f.Close()

	ctx := context.Background()
	if err := idx.IndexFile(ctx, fPath, []string{".xlsx", ".txt"}, ""); err != nil {
		t.Fatalf("IndexFile: %v", err)
	}
	doc, err := vs.GetDocument(ctx, fileid.ForPath(mustAbs(fPath)))
	if err != nil {
		t.Fatal(err)
	}
	if doc.Metadata.Source.Title != "data.xlsx" || doc.Chunks[0].Text != "Excel searchable content grand" {
		t.Errorf("unexpected doc: title=%q text=%q", doc.Metadata.Source.Title, doc.Chunks[0].Text)
	}
	// "Excel searchable content grand" | "grand total row"
	if len(doc.Chunks) != 2 {
		t.Fatalf("chunks: got %d", len(doc.Chunks))
	}
	for i, want := range []int{1, 2} {
		if p := doc.Chunks[i].Metadata.Page; p == nil || *p != want {
			t.Errorf("chunk %d page = %v, want %d", i, p, want)
		}
	}
}

func TestIndexDirectory(t *testing.T) {
	dir := t.TempDir()
	idx, _ := testIndexer(t, embedding.NewMockEmbedder(8), nil)
	ctx := context.Background()

	sub := filepath.Join(dir, "sub")
	if err := os.Mkdir(sub, 0755); err != nil {
		t.Fatal(err)
	}
	for path, content := range map[string]string{
		filepath.Join(dir, "a.txt"):    "file a",
		filepath.Join(dir, "b.txt"):    "file b",
		filepath.Join(sub, "c.txt"):    "file c",
		filepath.Join(dir, "skip.xyz"): "skip",
	} {
		if err := os.WriteFile(path, []byte(content), 0600); err != nil {
			t.Fatal(err)
		}
	}

	n, err := idx.IndexDirectory(ctx, dir, []string{".txt"}, "p")
	if err != nil {
		t.Fatalf("IndexDirectory: %v", err)
	}
	if n != 3 {
		t.Errorf("IndexDirectory: indexed %d files, want 3", n)
	}
}
