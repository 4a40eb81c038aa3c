// Package vector provides per-document vector indices and similarity search.
package vector

import (
	"context"

	"github.com/hyperjump/legalease/internal/models"
)

// VectorIndex stores chunk embeddings partitioned by document.
//
// Upsert replaces a document's records atomically: concurrent searches see
// either all old or all new records. Search only considers the given
// document and orders hits by descending cosine similarity, breaking ties by
// ascending chunk index.
type VectorIndex interface {
	Upsert(ctx context.Context, documentID string, records []*models.VectorRecord) error
	Search(ctx context.Context, documentID string, query []float32, k int) ([]*VectorResult, error)
	Delete(ctx context.Context, documentID string) error
	Count(ctx context.Context, documentID string) (int, error)
	Stats(ctx context.Context) (models.IndexStats, error)
	Dimensions() int
	Save(path string) error
	Load(path string) error
	Close() error
}

// VectorResult is a single vector search hit.
type VectorResult struct {
	Chunk *models.Chunk
	Score float64 // cosine similarity in [-1, 1]
}
