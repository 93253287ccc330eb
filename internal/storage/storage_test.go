package storage

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/hyperjump/sakuin/internal/models"
)

// backends runs fn against every Storage implementation.
func backends(t *testing.T, fn func(t *testing.T, s Storage)) {
	t.Helper()
	t.Run("sqlite", func(t *testing.T) {
		s, err := NewSQLiteStorage(filepath.Join(t.TempDir(), "test.db"))
		if err != nil {
			t.Fatal(err)
		}
		defer s.Close()
		fn(t, s)
	})
	t.Run("memory", func(t *testing.T) {
		s := NewMemoryStorage()
		defer s.Close()
		fn(t, s)
	})
}

func testDoc(id, project string, ct models.ContentType, n int) (*models.IndexedDocument, []VectorRecord) {
	doc := &models.IndexedDocument{
		ID: id,
		Metadata: models.ContentMetadata{
			ID:        id,
			Type:      ct,
			ProjectID: project,
			Language:  "en",
			Tags:      []string{"t-" + project},
			Source:    models.SourceInfo{Title: "Title " + id},
		},
	}
	var vecs []VectorRecord
	for i := 0; i < n; i++ {
		chID := id + "_chunk_" + string(rune('0'+i))
		doc.Chunks = append(doc.Chunks, models.ContentChunk{
			ID:         chID,
			Text:       "text " + chID,
			StartIndex: i * 10,
			EndIndex:   i*10 + 9,
			Metadata: models.ChunkMetadata{
				ChunkNumber: i,
				TotalChunks: n,
				TimeRange:   &models.TimeRange{Start: float64(i), End: float64(i + 1)},
				Speaker:     "alice",
			},
		})
		vecs = append(vecs, VectorRecord{ChunkID: chID, ChunkIndex: i, Embedding: []float32{float32(i), 0.5, -1}})
	}
	return doc, vecs
}

func TestStorage_SaveGetDelete(t *testing.T) {
	backends(t, func(t *testing.T, s Storage) {
		ctx := context.Background()
		doc, vecs := testDoc("doc1", "p1", models.ContentTypeDocument, 2)
		if err := s.SaveDocument(ctx, doc, vecs); err != nil {
			t.Fatal(err)
		}
		if doc.IndexedAt.IsZero() || doc.VectorCount != 2 || doc.Status != models.IndexStatusCompleted {
			t.Errorf("SaveDocument should stamp doc: %+v", doc)
		}

		got, err := s.GetDocument(ctx, "doc1")
		if err != nil {
			t.Fatal(err)
		}
		if got.Metadata.ProjectID != "p1" || got.Metadata.Source.Title != "Title doc1" || got.VectorCount != 2 {
			t.Errorf("got %+v", got)
		}
		if len(got.Chunks) != 2 || got.Chunks[1].Metadata.Speaker != "alice" || got.Chunks[1].Metadata.TimeRange.End != 2 {
			t.Errorf("chunks: %+v", got.Chunks)
		}

		gotVecs, err := s.GetVectors(ctx, "doc1")
		if err != nil {
			t.Fatal(err)
		}
		if len(gotVecs) != 2 || gotVecs[1].Embedding[0] != 1 || gotVecs[1].Embedding[2] != -1 || gotVecs[1].DocumentID != "doc1" {
			t.Errorf("vectors: %+v", gotVecs)
		}

		if err := s.DeleteDocument(ctx, "doc1"); err != nil {
			t.Fatal(err)
		}
		if _, err := s.GetDocument(ctx, "doc1"); !errors.Is(err, models.ErrNotFound) {
			t.Errorf("expected ErrNotFound after delete, got %v", err)
		}
		if chunks, _ := s.GetChunks(ctx, "doc1"); len(chunks) != 0 {
			t.Errorf("chunks should be deleted with the document, got %d", len(chunks))
		}
		if v, _ := s.GetVectors(ctx, "doc1"); len(v) != 0 {
			t.Errorf("vectors should be deleted with the document, got %d", len(v))
		}
		if err := s.DeleteDocument(ctx, "doc1"); err != nil {
			t.Errorf("delete should be idempotent: %v", err)
		}
	})
}

func TestStorage_SaveReplaces(t *testing.T) {
	backends(t, func(t *testing.T, s Storage) {
		ctx := context.Background()
		doc, vecs := testDoc("a", "p", models.ContentTypeDocument, 3)
		if err := s.SaveDocument(ctx, doc, vecs); err != nil {
			t.Fatal(err)
		}
		doc2, vecs2 := testDoc("a", "p", models.ContentTypeDocument, 1)
		if err := s.SaveDocument(ctx, doc2, vecs2); err != nil {
			t.Fatal(err)
		}
		st, err := s.Stats(ctx)
		if err != nil {
			t.Fatal(err)
		}
		if st.Documents != 1 || st.Chunks != 1 || st.Vectors != 1 {
			t.Errorf("replace left stale rows: %+v", st)
		}
	})
}

func TestStorage_DuplicateChunkIDRejected(t *testing.T) {
	backends(t, func(t *testing.T, s Storage) {
		ctx := context.Background()
		doc, vecs := testDoc("a", "p", models.ContentTypeDocument, 1)
		if err := s.SaveDocument(ctx, doc, vecs); err != nil {
			t.Fatal(err)
		}
		other, otherVecs := testDoc("b", "p", models.ContentTypeDocument, 1)
		other.Chunks[0].ID = doc.Chunks[0].ID
		otherVecs[0].ChunkID = doc.Chunks[0].ID
		err := s.SaveDocument(ctx, other, otherVecs)
		var storageErr *models.StorageError
		if !errors.As(err, &storageErr) {
			t.Fatalf("expected StorageError, got %v", err)
		}
		if _, err := s.GetDocument(ctx, "b"); !errors.Is(err, models.ErrNotFound) {
			t.Error("failed save must not leave a partial document")
		}
	})
}

func TestStorage_Filters(t *testing.T) {
	backends(t, func(t *testing.T, s Storage) {
		ctx := context.Background()
		for _, d := range []struct {
			id, project string
			ct          models.ContentType
		}{
			{"t1", "p1", models.ContentTypeTranscription},
			{"d1", "p1", models.ContentTypeDocument},
			{"d2", "p2", models.ContentTypeDocument},
		} {
			doc, vecs := testDoc(d.id, d.project, d.ct, 1)
			if err := s.SaveDocument(ctx, doc, vecs); err != nil {
				t.Fatal(err)
			}
		}
		tests := []struct {
			name    string
			filters []models.Filter
			want    []string
		}{
			{"none", nil, []string{"t1", "d1", "d2"}},
			{"project", []models.Filter{models.ProjectIDsIn{"p1"}}, []string{"t1", "d1"}},
			{"type", []models.Filter{models.ContentTypesIn{models.ContentTypeDocument}}, []string{"d1", "d2"}},
			{"project and type", []models.Filter{models.ProjectIDsIn{"p1"}, models.ContentTypesIn{models.ContentTypeDocument}}, []string{"d1"}},
			{"tags", []models.Filter{models.TagsAny{"t-p2"}}, []string{"d2"}},
			{"language miss", []models.Filter{models.LanguagesIn{"ja"}}, nil},
			{"project and language", []models.Filter{models.ProjectIDsIn{"p2"}, models.LanguagesIn{"en"}}, []string{"d2"}},
		}
		for _, tt := range tests {
			t.Run(tt.name, func(t *testing.T) {
				ids, err := s.MatchingDocumentIDs(ctx, tt.filters)
				if err != nil {
					t.Fatal(err)
				}
				if len(ids) != len(tt.want) {
					t.Fatalf("got %v, want %v", ids, tt.want)
				}
				for _, id := range tt.want {
					if _, ok := ids[id]; !ok {
						t.Errorf("missing %s in %v", id, ids)
					}
				}
				docs, err := s.ListDocuments(ctx, tt.filters, 0, 0)
				if err != nil {
					t.Fatal(err)
				}
				if len(docs) != len(tt.want) {
					t.Errorf("ListDocuments returned %d docs, want %d", len(docs), len(tt.want))
				}
			})
		}
		page, err := s.ListDocuments(ctx, nil, 1, 1)
		if err != nil {
			t.Fatal(err)
		}
		if len(page) != 1 {
			t.Errorf("paged list returned %d docs", len(page))
		}
	})
}

func TestStorage_MetadataAndStatus(t *testing.T) {
	backends(t, func(t *testing.T, s Storage) {
		ctx := context.Background()
		doc, vecs := testDoc("a", "p1", models.ContentTypeDocument, 1)
		if err := s.SaveDocument(ctx, doc, vecs); err != nil {
			t.Fatal(err)
		}
		meta := doc.Metadata
		meta.ProjectID = "p2"
		meta.Type = models.ContentTypeTranscription
		if err := s.UpdateMetadata(ctx, "a", meta); err != nil {
			t.Fatal(err)
		}
		ids, _ := s.MatchingDocumentIDs(ctx, []models.Filter{models.ProjectIDsIn{"p2"}, models.ContentTypesIn{models.ContentTypeTranscription}})
		if _, ok := ids["a"]; !ok {
			t.Error("updated metadata should drive column filters")
		}
		if err := s.UpdateMetadata(ctx, "missing", meta); !errors.Is(err, models.ErrNotFound) {
			t.Errorf("expected ErrNotFound, got %v", err)
		}
		if err := s.SetStatus(ctx, "a", models.IndexStatusFailed); err != nil {
			t.Fatal(err)
		}
		got, _ := s.GetDocuments(ctx, []string{"a", "missing"})
		if len(got) != 1 || got["a"].Status != models.IndexStatusFailed {
			t.Errorf("GetDocuments: %+v", got)
		}
		st, _ := s.Stats(ctx)
		if st.ByStatus["failed"] != 1 || st.ByContentType["transcription"] != 1 {
			t.Errorf("stats: %+v", st)
		}
	})
}

func TestStorage_ChunksByID(t *testing.T) {
	backends(t, func(t *testing.T, s Storage) {
		ctx := context.Background()
		doc, vecs := testDoc("a", "p", models.ContentTypeDocument, 2)
		if err := s.SaveDocument(ctx, doc, vecs); err != nil {
			t.Fatal(err)
		}
		got, err := s.GetChunksByID(ctx, []string{doc.Chunks[1].ID, "nope"})
		if err != nil {
			t.Fatal(err)
		}
		if len(got) != 1 || got[doc.Chunks[1].ID].Text != doc.Chunks[1].Text {
			t.Errorf("got %+v", got)
		}
	})
}

func TestStorage_LoadVectorsOrder(t *testing.T) {
	backends(t, func(t *testing.T, s Storage) {
		ctx := context.Background()
		for _, id := range []string{"first", "second"} {
			doc, vecs := testDoc(id, "p", models.ContentTypeDocument, 2)
			if err := s.SaveDocument(ctx, doc, vecs); err != nil {
				t.Fatal(err)
			}
		}
		// Re-saving moves a document to the end.
		doc, vecs := testDoc("first", "p", models.ContentTypeDocument, 2)
		if err := s.SaveDocument(ctx, doc, vecs); err != nil {
			t.Fatal(err)
		}
		var order []string
		err := s.LoadVectors(ctx, func(v VectorRecord) error {
			order = append(order, v.ChunkID)
			return nil
		})
		if err != nil {
			t.Fatal(err)
		}
		want := []string{"second_chunk_0", "second_chunk_1", "first_chunk_0", "first_chunk_1"}
		if len(order) != len(want) {
			t.Fatalf("got %v", order)
		}
		for i := range want {
			if order[i] != want[i] {
				t.Errorf("order[%d] = %s, want %s", i, order[i], want[i])
			}
		}
		stop := errors.New("stop")
		if err := s.LoadVectors(ctx, func(VectorRecord) error { return stop }); !errors.Is(err, stop) {
			t.Errorf("callback error should propagate, got %v", err)
		}
	})
}

func TestStorage_Indices(t *testing.T) {
	backends(t, func(t *testing.T, s Storage) {
		ctx := context.Background()
		rec := IndexRecord{Name: "idx", Type: "memory", Dimension: 3, Metric: "euclidean",
			Configuration: map[string]string{"k": "v"}}
		if err := s.SaveIndex(ctx, rec); err != nil {
			t.Fatal(err)
		}
		if err := s.SaveIndex(ctx, IndexRecord{Name: "another", Type: "memory", Dimension: 2, Metric: "cosine"}); err != nil {
			t.Fatal(err)
		}
		got, err := s.GetIndex(ctx, "idx")
		if err != nil {
			t.Fatal(err)
		}
		if got.Dimension != 3 || got.Metric != "euclidean" || got.Configuration["k"] != "v" || got.LastOptimized != nil {
			t.Errorf("got %+v", got)
		}
		at := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
		if err := s.MarkOptimized(ctx, "idx", at); err != nil {
			t.Fatal(err)
		}
		got, _ = s.GetIndex(ctx, "idx")
		if got.LastOptimized == nil || !got.LastOptimized.Equal(at) {
			t.Errorf("LastOptimized = %v", got.LastOptimized)
		}
		list, _ := s.ListIndices(ctx)
		if len(list) != 2 || list[0].Name != "another" {
			t.Errorf("list: %+v", list)
		}
		if err := s.DeleteIndex(ctx, "idx"); err != nil {
			t.Fatal(err)
		}
		var notFound *models.IndexNotFoundError
		if _, err := s.GetIndex(ctx, "idx"); !errors.As(err, &notFound) {
			t.Errorf("expected IndexNotFoundError, got %v", err)
		}
		if err := s.MarkOptimized(ctx, "idx", at); !errors.As(err, &notFound) {
			t.Errorf("expected IndexNotFoundError, got %v", err)
		}
	})
}

func TestStorage_KnowledgeBases(t *testing.T) {
	backends(t, func(t *testing.T, s Storage) {
		ctx := context.Background()
		now := time.Now().UTC().Truncate(time.Second)
		kb := &models.KnowledgeBase{
			ID: "kb1", ProjectID: "p1", DocumentCount: 2, ChunkCount: 5, TotalTokens: 100,
			DocumentIDs: []string{"a", "b"}, CreatedAt: now, UpdatedAt: now, Version: 1,
			Metadata: models.KnowledgeBaseMetadata{Languages: []string{"en"}},
		}
		if err := s.SaveKnowledgeBase(ctx, kb); err != nil {
			t.Fatal(err)
		}
		kb.Version = 2
		if err := s.SaveKnowledgeBase(ctx, kb); err != nil {
			t.Fatal(err)
		}
		got, err := s.GetKnowledgeBase(ctx, "p1")
		if err != nil {
			t.Fatal(err)
		}
		if got.Version != 2 || got.ChunkCount != 5 || len(got.DocumentIDs) != 2 || got.Metadata.Languages[0] != "en" {
			t.Errorf("got %+v", got)
		}
		if err := s.DeleteKnowledgeBase(ctx, "p1"); err != nil {
			t.Fatal(err)
		}
		if _, err := s.GetKnowledgeBase(ctx, "p1"); !errors.Is(err, models.ErrNotFound) {
			t.Errorf("expected ErrNotFound, got %v", err)
		}
	})
}

func TestSQLiteStorage_Reopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "db", "test.db")
	s, err := NewSQLiteStorage(path)
	if err != nil {
		t.Fatal(err)
	}
	ctx := context.Background()
	doc, vecs := testDoc("a", "p", models.ContentTypeDocument, 2)
	if err := s.SaveDocument(ctx, doc, vecs); err != nil {
		t.Fatal(err)
	}
	if err := s.Close(); err != nil {
		t.Fatal(err)
	}
	s, err = NewSQLiteStorage(path)
	if err != nil {
		t.Fatal(err)
	}
	defer s.Close()
	n := 0
	if err := s.LoadVectors(ctx, func(VectorRecord) error { n++; return nil }); err != nil {
		t.Fatal(err)
	}
	if n != 2 {
		t.Errorf("expected 2 persisted vectors, got %d", n)
	}
}

func TestVectorCodec(t *testing.T) {
	in := []float32{0, 1.5, -2.25, 3e-8}
	out, err := DecodeVector(EncodeVector(in))
	if err != nil {
		t.Fatal(err)
	}
	for i := range in {
		if in[i] != out[i] {
			t.Errorf("value %d: got %v want %v", i, out[i], in[i])
		}
	}
	if _, err := DecodeVector([]byte{1, 2, 3}); err == nil {
		t.Error("expected error for truncated blob")
	}
}

func TestOpen(t *testing.T) {
	if _, err := Open("memory", ""); err != nil {
		t.Fatal(err)
	}
	s, err := Open("sqlite", filepath.Join(t.TempDir(), "x.db"))
	if err != nil {
		t.Fatal(err)
	}
	_ = s.Close()
	if _, err := Open("postgres", ""); !errors.Is(err, models.ErrInvalidInput) {
		t.Errorf("expected ErrInvalidInput, got %v", err)
	}
}
