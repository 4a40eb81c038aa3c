// Package keyword provides lexical (BM25) search over document chunks.
package keyword

import (
	"context"

	"github.com/hyperjump/legalease/internal/models"
)

// SearchOptions optional parameters for keyword search. Nil means use defaults.
type SearchOptions struct {
	// FuzzyEnabled tolerates OCR and typing errors by matching terms within Fuzziness edits.
	FuzzyEnabled bool
	// Fuzziness is the maximum Levenshtein edit distance (1 or 2). Default is 1.
	Fuzziness int
}

// KeywordIndex indexes chunks by document and searches within one document.
type KeywordIndex interface {
	IndexChunks(ctx context.Context, documentID string, chunks []*models.Chunk) error
	Search(ctx context.Context, documentID, query string, limit int, opts *SearchOptions) ([]*KeywordResult, error)
	DeleteDocument(ctx context.Context, documentID string) error
	DocCount() (uint64, error)
	Close() error
}

// KeywordResult is a single keyword search hit. Chunk is rebuilt from stored fields.
type KeywordResult struct {
	Chunk *models.Chunk
	Score float64
}
