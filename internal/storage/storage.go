// Package storage persists document metadata and ingestion status.
package storage

import (
	"context"

	"github.com/hyperjump/legalease/internal/models"
)

// Storage defines document metadata persistence. Chunks and embeddings live
// in the vector index; this store tracks what exists and whether it is ready.
type Storage interface {
	SaveDocument(ctx context.Context, doc *models.Document) error
	GetDocument(ctx context.Context, id string) (*models.Document, error)
	SetStatus(ctx context.Context, id string, status models.DocumentStatus, errMsg string) error
	DeleteDocument(ctx context.Context, id string) error
	ListDocuments(ctx context.Context, offset, limit int) ([]*models.Document, error)
	CountDocuments(ctx context.Context) (int64, error)
	Close() error
}
