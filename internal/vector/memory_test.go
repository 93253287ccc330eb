package vector

import (
	"context"
	"errors"
	"testing"

	"github.com/hyperjump/sakuin/internal/models"
)

func entries(docID string, vecs ...[]float32) []Entry {
	out := make([]Entry, len(vecs))
	for i, v := range vecs {
		out[i] = Entry{ChunkID: docID + "_" + string(rune('0'+i)), ChunkIndex: i, Vector: v}
	}
	return out
}

func TestMemoryIndex_UpdateSearch(t *testing.T) {
	idx, err := NewMemoryIndex("test", 3, MetricCosine, nil)
	if err != nil {
		t.Fatal(err)
	}
	defer idx.Close()
	ctx := context.Background()

	if err := idx.Update(ctx, "a", entries("a", []float32{1, 0, 0})); err != nil {
		t.Fatal(err)
	}
	if err := idx.Update(ctx, "b", entries("b", []float32{0.9, 0.1, 0}, []float32{0, 1, 0})); err != nil {
		t.Fatal(err)
	}
	if idx.Size() != 3 {
		t.Errorf("Size=%d", idx.Size())
	}

	results, err := idx.Search(ctx, []float32{1, 0, 0}, SearchParams{TopK: 2})
	if err != nil {
		t.Fatal(err)
	}
	if len(results) != 2 {
		t.Fatalf("expected 2 results, got %d", len(results))
	}
	if results[0].DocumentID != "a" || results[1].DocumentID != "b" || results[1].ChunkIndex != 0 {
		t.Errorf("unexpected order: %+v %+v", results[0], results[1])
	}
}

func TestMemoryIndex_UpdateReplaces(t *testing.T) {
	idx, _ := NewMemoryIndex("test", 2, MetricCosine, nil)
	ctx := context.Background()
	_ = idx.Update(ctx, "a", entries("a", []float32{1, 0}, []float32{1, 0}))
	if err := idx.Update(ctx, "a", entries("a", []float32{0, 1})); err != nil {
		t.Fatal(err)
	}
	if idx.Size() != 1 {
		t.Fatalf("expected full replace, size=%d", idx.Size())
	}
	results, _ := idx.Search(ctx, []float32{1, 0}, SearchParams{TopK: 5, Threshold: 0.5})
	if len(results) != 0 {
		t.Errorf("old vectors must not match after replace: %+v", results)
	}
}

func TestMemoryIndex_Remove(t *testing.T) {
	idx, _ := NewMemoryIndex("test", 2, MetricCosine, nil)
	ctx := context.Background()
	_ = idx.Update(ctx, "x", entries("x", []float32{1, 0}, []float32{0.5, 0.5}))
	_ = idx.Update(ctx, "y", entries("y", []float32{0, 1}))
	if err := idx.Remove(ctx, "x"); err != nil {
		t.Fatal(err)
	}
	if idx.Size() != 1 {
		t.Errorf("expected size 1, got %d", idx.Size())
	}
	if err := idx.Remove(ctx, "x"); err != nil {
		t.Errorf("remove should be idempotent: %v", err)
	}
	if info := idx.Info(); info.TotalDocuments != 1 {
		t.Errorf("documents: %d", info.TotalDocuments)
	}
}

func TestMemoryIndex_DimensionMismatch(t *testing.T) {
	idx, _ := NewMemoryIndex("test", 3, MetricCosine, nil)
	ctx := context.Background()
	err := idx.Update(ctx, "a", entries("a", []float32{1, 0, 0}, []float32{1, 0}))
	var dimErr *models.DimensionError
	if !errors.As(err, &dimErr) || dimErr.Expected != 3 || dimErr.Actual != 2 {
		t.Fatalf("expected DimensionError, got %v", err)
	}
	if idx.Size() != 0 {
		t.Error("a rejected update must not change the index")
	}
	if _, err := idx.Search(ctx, []float32{1}, SearchParams{TopK: 1}); !errors.As(err, &dimErr) {
		t.Errorf("expected DimensionError for query, got %v", err)
	}
}

func TestMemoryIndex_ThresholdAcceptAndTies(t *testing.T) {
	idx, _ := NewMemoryIndex("test", 2, MetricDotProduct, nil)
	ctx := context.Background()
	_ = idx.Update(ctx, "first", entries("first", []float32{1, 0}))
	_ = idx.Update(ctx, "second", entries("second", []float32{1, 0}))
	_ = idx.Update(ctx, "low", entries("low", []float32{0.1, 0}))

	results, err := idx.Search(ctx, []float32{1, 0}, SearchParams{TopK: 10, Threshold: 0.5})
	if err != nil {
		t.Fatal(err)
	}
	if len(results) != 2 {
		t.Fatalf("threshold should drop low: %d results", len(results))
	}
	if results[0].DocumentID != "first" || results[1].DocumentID != "second" {
		t.Errorf("ties must keep insertion order: %s, %s", results[0].DocumentID, results[1].DocumentID)
	}

	results, _ = idx.Search(ctx, []float32{1, 0}, SearchParams{
		TopK:   10,
		Accept: func(id string) bool { return id == "second" },
	})
	if len(results) != 1 || results[0].DocumentID != "second" {
		t.Errorf("accept filter: %+v", results)
	}
}

func TestMemoryIndex_BatchUpdateBestEffort(t *testing.T) {
	idx, _ := NewMemoryIndex("test", 2, MetricCosine, nil)
	ctx := context.Background()
	res := idx.BatchUpdate(ctx, []DocumentVectors{
		{DocumentID: "ok", Entries: entries("ok", []float32{1, 0})},
		{DocumentID: "bad", Entries: entries("bad", []float32{1, 0, 0})},
		{DocumentID: "ok2", Entries: entries("ok2", []float32{0, 1})},
	})
	if res.Succeeded != 2 || res.Failed != 1 {
		t.Fatalf("batch result: %+v", res)
	}
	if res.Items[1].ID != "bad" || res.Items[1].Err == nil {
		t.Errorf("failure must be reported for bad: %+v", res.Items[1])
	}
	if idx.Size() != 2 {
		t.Errorf("successful items must persist, size=%d", idx.Size())
	}
}

func TestMemoryIndex_OptimizeKeepsResults(t *testing.T) {
	idx, _ := NewMemoryIndex("test", 2, MetricEuclidean, nil)
	ctx := context.Background()
	_ = idx.Update(ctx, "a", entries("a", []float32{1, 0}, []float32{0, 1}))
	_ = idx.Update(ctx, "b", entries("b", []float32{3, 3}))
	before, _ := idx.Search(ctx, []float32{0, 1}, SearchParams{TopK: 3})
	if err := idx.Optimize(ctx); err != nil {
		t.Fatal(err)
	}
	after, _ := idx.Search(ctx, []float32{0, 1}, SearchParams{TopK: 3})
	if len(before) != len(after) {
		t.Fatalf("result count changed: %d vs %d", len(before), len(after))
	}
	for i := range before {
		if before[i].ChunkID != after[i].ChunkID || before[i].Score != after[i].Score {
			t.Errorf("result %d changed: %+v vs %+v", i, before[i], after[i])
		}
	}
	if idx.Info().LastOptimized == nil {
		t.Error("LastOptimized should be set")
	}
	// Updating after optimize must not alias the compacted backing slice.
	_ = idx.Update(ctx, "a", entries("a", []float32{5, 5}))
	if got, _ := idx.Search(ctx, []float32{3, 3}, SearchParams{TopK: 1}); got[0].DocumentID != "b" {
		t.Errorf("expected b closest to (3,3), got %+v", got[0])
	}
}

func TestMemoryIndex_SearchCancelled(t *testing.T) {
	idx, _ := NewMemoryIndex("test", 2, MetricCosine, nil)
	_ = idx.Update(context.Background(), "a", entries("a", []float32{1, 0}))
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := idx.Search(ctx, []float32{1, 0}, SearchParams{TopK: 1}); !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled, got %v", err)
	}
}
