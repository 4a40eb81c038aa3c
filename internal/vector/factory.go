package vector

import (
	"context"
	"fmt"

	"github.com/hyperjump/legalease/internal/config"
)

// IndexType represents the type of vector index to use.
type IndexType string

const (
	// IndexTypeMemory uses in-memory brute-force search, persisted with Save/Load.
	IndexTypeMemory IndexType = "memory"
	// IndexTypePgVector stores vectors in PostgreSQL with the pgvector extension.
	IndexTypePgVector IndexType = "pgvector"
)

// NewVectorIndex creates a vector index of the backend named in cfg.
// Supported backends: "memory" (default), "pgvector".
func NewVectorIndex(ctx context.Context, cfg config.VectorConfig, dimensions int) (VectorIndex, error) {
	switch IndexType(cfg.Backend) {
	case IndexTypeMemory, "":
		return NewMemoryIndex(dimensions)
	case IndexTypePgVector:
		if cfg.PostgresURL == "" {
			return nil, fmt.Errorf("pgvector backend requires postgres_url")
		}
		return NewPgVectorIndex(ctx, cfg.PostgresURL, cfg.Table, dimensions)
	default:
		return nil, fmt.Errorf("unknown index type: %s (supported: memory, pgvector)", cfg.Backend)
	}
}
