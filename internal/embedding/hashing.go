package embedding

import (
	"context"
	"math"

	"github.com/hyperjump/legalease/pkg/utils"
)

// HashingEmbedder is a deterministic lexical embedder. Each content term is
// hashed into one of dimensions buckets with a hash-derived sign, weighted by
// 1+log(tf), and the vector is L2-normalized. Adjacent term pairs contribute
// at half weight. It needs no model files and is used offline and in tests.
type HashingEmbedder struct {
	dimensions int
}

// NewHashingEmbedder returns an embedder producing vectors of the given dimensions.
func NewHashingEmbedder(dimensions int) *HashingEmbedder {
	if dimensions <= 0 {
		dimensions = 384
	}
	return &HashingEmbedder{dimensions: dimensions}
}

// Embed returns the feature-hashed embedding of text. Text without content
// terms embeds to the zero vector.
func (e *HashingEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	counts := make(map[string]float64)
	terms := Terms(text)
	for i, t := range terms {
		counts[t]++
		if i > 0 {
			counts[terms[i-1]+" "+t] += 0.5
		}
	}
	emb := make([]float32, e.dimensions)
	for feature, tf := range counts {
		h := HashString(feature)
		bucket := h % e.dimensions
		sign := float32(1)
		if (h>>16)&1 == 1 {
			sign = -1
		}
		emb[bucket] += sign * float32(1+math.Log(tf))
	}
	utils.NormalizeL2(emb)
	return emb, nil
}

// EmbedBatch calls Embed for each text.
func (e *HashingEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	embeddings := make([][]float32, len(texts))
	for i, text := range texts {
		emb, err := e.Embed(ctx, text)
		if err != nil {
			return nil, err
		}
		embeddings[i] = emb
	}
	return embeddings, nil
}

// Dimensions returns the embedding dimension.
func (e *HashingEmbedder) Dimensions() int {
	return e.dimensions
}

// Close is a no-op.
func (e *HashingEmbedder) Close() error {
	return nil
}
