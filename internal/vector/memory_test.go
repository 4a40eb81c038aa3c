package vector

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"testing"

	"github.com/hyperjump/legalease/internal/apperr"
	"github.com/hyperjump/legalease/internal/models"
)

func records(docID string, vecs ...[]float32) []*models.VectorRecord {
	out := make([]*models.VectorRecord, len(vecs))
	for i, v := range vecs {
		out[i] = &models.VectorRecord{
			Chunk: &models.Chunk{
				ID:         fmt.Sprintf("%s_chunk_%d", docID, i),
				DocumentID: docID,
				Index:      i,
				Text:       fmt.Sprintf("chunk %d", i),
				Page:       1,
			},
			Embedding: v,
		}
	}
	return out
}

func TestMemoryIndex_UpsertSearch(t *testing.T) {
	idx, err := NewMemoryIndex(3)
	if err != nil {
		t.Fatal(err)
	}
	defer idx.Close()
	ctx := context.Background()

	if err := idx.Upsert(ctx, "doc_a", records("doc_a",
		[]float32{1, 0, 0},
		[]float32{0.9, 0.1, 0},
		[]float32{0, 1, 0},
	)); err != nil {
		t.Fatal(err)
	}

	results, err := idx.Search(ctx, "doc_a", []float32{2, 0, 0}, 2)
	if err != nil {
		t.Fatal(err)
	}
	if len(results) != 2 {
		t.Fatalf("expected 2 results, got %d", len(results))
	}
	if results[0].Chunk.Index != 0 || results[1].Chunk.Index != 1 {
		t.Errorf("unexpected order: %d, %d", results[0].Chunk.Index, results[1].Chunk.Index)
	}
	if results[0].Score < 0.999 {
		t.Errorf("expected cosine 1 for parallel vectors regardless of magnitude, got %f", results[0].Score)
	}
}

func TestMemoryIndex_FiltersByDocument(t *testing.T) {
	idx, _ := NewMemoryIndex(2)
	ctx := context.Background()
	_ = idx.Upsert(ctx, "doc_a", records("doc_a", []float32{1, 0}, []float32{0, 1}))
	_ = idx.Upsert(ctx, "doc_b", records("doc_b", []float32{1, 0}, []float32{1, 0.1}, []float32{0.5, 0.5}))

	results, err := idx.Search(ctx, "doc_a", []float32{1, 0}, 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(results) != 2 {
		t.Fatalf("expected 2 results for doc_a, got %d", len(results))
	}
	for _, r := range results {
		if r.Chunk.DocumentID != "doc_a" {
			t.Errorf("result from other document: %s", r.Chunk.ID)
		}
	}
	if got, _ := idx.Search(ctx, "missing", []float32{1, 0}, 5); len(got) != 0 {
		t.Errorf("expected no results for unknown document, got %d", len(got))
	}
}

func TestMemoryIndex_TiesBreakByChunkIndex(t *testing.T) {
	idx, _ := NewMemoryIndex(2)
	ctx := context.Background()
	_ = idx.Upsert(ctx, "doc", records("doc",
		[]float32{0, 1}, []float32{1, 0}, []float32{1, 0}, []float32{1, 0},
	))
	for run := 0; run < 5; run++ {
		results, err := idx.Search(ctx, "doc", []float32{1, 0}, 3)
		if err != nil {
			t.Fatal(err)
		}
		for i, want := range []int{1, 2, 3} {
			if results[i].Chunk.Index != want {
				t.Fatalf("run %d: position %d has chunk %d, want %d", run, i, results[i].Chunk.Index, want)
			}
		}
	}
}

func TestMemoryIndex_UpsertReplaces(t *testing.T) {
	idx, _ := NewMemoryIndex(2)
	ctx := context.Background()
	_ = idx.Upsert(ctx, "doc", records("doc", []float32{1, 0}, []float32{0, 1}, []float32{1, 1}))
	_ = idx.Upsert(ctx, "doc", records("doc", []float32{1, 0}))

	n, err := idx.Count(ctx, "doc")
	if err != nil {
		t.Fatal(err)
	}
	if n != 1 {
		t.Errorf("Count after re-upsert = %d, want 1", n)
	}
}

func TestMemoryIndex_DimensionMismatch(t *testing.T) {
	idx, _ := NewMemoryIndex(3)
	ctx := context.Background()
	err := idx.Upsert(ctx, "doc", records("doc", []float32{1, 0}))
	if !apperr.Is(err, apperr.KindIndexInconsistency) {
		t.Errorf("expected IndexInconsistency, got %v", err)
	}
	_ = idx.Upsert(ctx, "doc", records("doc", []float32{1, 0, 0}))
	if _, err := idx.Search(ctx, "doc", []float32{1, 0}, 1); !apperr.Is(err, apperr.KindIndexInconsistency) {
		t.Errorf("expected IndexInconsistency for query, got %v", err)
	}
}

func TestMemoryIndex_AdoptsDimensions(t *testing.T) {
	idx, _ := NewMemoryIndex(0)
	ctx := context.Background()
	if err := idx.Upsert(ctx, "doc", records("doc", []float32{1, 0, 0, 0})); err != nil {
		t.Fatal(err)
	}
	if idx.Dimensions() != 4 {
		t.Errorf("Dimensions() = %d, want 4", idx.Dimensions())
	}
}

func TestMemoryIndex_DeleteAndStats(t *testing.T) {
	idx, _ := NewMemoryIndex(2)
	ctx := context.Background()
	_ = idx.Upsert(ctx, "doc_a", records("doc_a", []float32{1, 0}, []float32{0, 1}))
	_ = idx.Upsert(ctx, "doc_b", records("doc_b", []float32{1, 0}))

	stats, _ := idx.Stats(ctx)
	if stats.TotalDocuments != 2 || stats.TotalChunks != 3 {
		t.Errorf("stats before delete = %+v", stats)
	}
	if err := idx.Delete(ctx, "doc_a"); err != nil {
		t.Fatal(err)
	}
	if err := idx.Delete(ctx, "doc_a"); err != nil {
		t.Errorf("second delete should be a no-op, got %v", err)
	}
	stats, _ = idx.Stats(ctx)
	if stats.TotalDocuments != 1 || stats.TotalChunks != 1 {
		t.Errorf("stats after delete = %+v", stats)
	}
}

func TestMemoryIndex_ConcurrentUpsertIsAtomic(t *testing.T) {
	idx, _ := NewMemoryIndex(2)
	ctx := context.Background()
	small := records("doc", []float32{1, 0}, []float32{0, 1})
	large := records("doc", []float32{1, 0}, []float32{0, 1}, []float32{1, 1}, []float32{1, 2}, []float32{2, 1})
	_ = idx.Upsert(ctx, "doc", small)

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		for i := 0; i < 200; i++ {
			if i%2 == 0 {
				_ = idx.Upsert(ctx, "doc", large)
			} else {
				_ = idx.Upsert(ctx, "doc", small)
			}
		}
	}()
	go func() {
		defer wg.Done()
		for i := 0; i < 200; i++ {
			res, err := idx.Search(ctx, "doc", []float32{1, 0}, 100)
			if err != nil {
				t.Error(err)
				return
			}
			if len(res) != len(small) && len(res) != len(large) {
				t.Errorf("observed partial document with %d records", len(res))
				return
			}
		}
	}()
	wg.Wait()
}

func TestMemoryIndex_SaveLoad(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "idx", "vectors.gob")
	ctx := context.Background()

	idx, _ := NewMemoryIndex(2)
	_ = idx.Upsert(ctx, "doc", records("doc", []float32{1, 0}, []float32{0, 1}))
	if err := idx.Save(path); err != nil {
		t.Fatal(err)
	}

	loaded, _ := NewMemoryIndex(2)
	if err := loaded.Load(path); err != nil {
		t.Fatal(err)
	}
	n, _ := loaded.Count(ctx, "doc")
	if n != 2 {
		t.Fatalf("loaded count = %d, want 2", n)
	}
	res, err := loaded.Search(ctx, "doc", []float32{0, 1}, 1)
	if err != nil {
		t.Fatal(err)
	}
	if res[0].Chunk.ID != "doc_chunk_1" || res[0].Chunk.Text != "chunk 1" {
		t.Errorf("unexpected top hit after load: %+v", res[0].Chunk)
	}

	missing, _ := NewMemoryIndex(2)
	if err := missing.Load(filepath.Join(dir, "nope.gob")); err != nil {
		t.Errorf("loading a missing file should be a no-op, got %v", err)
	}
}
