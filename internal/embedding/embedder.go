// Package embedding provides text embedding backends and caching.
//
// Every backend maps text to a fixed-length vector. The same embedder must be
// used for chunks and queries so that cosine similarity is meaningful. Backend
// failures are reported as apperr.KindModelUnavailable.
package embedding

import "context"

// Embedder produces vector embeddings for text.
// EmbedBatch is all-or-nothing: on error it returns no vectors.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
	Dimensions() int
	Close() error
}
