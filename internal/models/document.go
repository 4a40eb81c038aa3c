// Package models defines core data structures for documents, chunks, and analysis results.
package models

import "time"

// DocumentStatus tracks a document through ingestion.
type DocumentStatus string

const (
	StatusPending DocumentStatus = "pending"
	StatusReady   DocumentStatus = "ready"
	StatusFailed  DocumentStatus = "failed"
)

// Document represents a stored document with metadata.
type Document struct {
	ID         string                 `json:"id" db:"id"`
	Title      string                 `json:"title" db:"title"`
	Source     string                 `json:"source,omitempty" db:"source"`
	Status     DocumentStatus         `json:"status" db:"status"`
	PageCount  int                    `json:"page_count" db:"page_count"`
	CharCount  int                    `json:"char_count" db:"char_count"`
	ChunkCount int                    `json:"chunk_count" db:"chunk_count"`
	Error      string                 `json:"error,omitempty" db:"error"`
	Statistics *DocumentStats         `json:"statistics,omitempty" db:"statistics"`
	Metadata   map[string]interface{} `json:"metadata,omitempty" db:"metadata"`
	CreatedAt  time.Time              `json:"created_at" db:"created_at"`
	UpdatedAt  time.Time              `json:"updated_at" db:"updated_at"`
}

// Chunk is a contiguous span of a document's cleaned text.
// Text always equals the cleaned text between StartOffset and EndOffset.
type Chunk struct {
	ID          string `json:"id"`
	DocumentID  string `json:"document_id"`
	Index       int    `json:"chunk_index"`
	Text        string `json:"text"`
	Page        int    `json:"page_number"`
	Section     string `json:"section,omitempty"`
	StartOffset int    `json:"start_offset"`
	EndOffset   int    `json:"end_offset"`
}

// VectorRecord pairs a chunk with its embedding.
type VectorRecord struct {
	Chunk     *Chunk    `json:"chunk"`
	Embedding []float32 `json:"-"`
}

// RetrievedChunk is a chunk returned by retrieval together with its relevance score.
type RetrievedChunk struct {
	*Chunk
	Score float64 `json:"score"`
}

// Page is the text of one page as produced by extraction.
type Page struct {
	Number int    `json:"number"`
	Text   string `json:"text"`
}

// DocumentInput is the input for ingesting a document.
// Either Pages or Text must be set; Text is treated as a single page.
type DocumentInput struct {
	ID       string                 `json:"document_id,omitempty"`
	Title    string                 `json:"title,omitempty"`
	Source   string                 `json:"source,omitempty"`
	Text     string                 `json:"text,omitempty"`
	Pages    []Page                 `json:"pages,omitempty"`
	Metadata map[string]interface{} `json:"metadata,omitempty"`
}

// DocumentStats summarizes a vectorized document.
type DocumentStats struct {
	TotalChunks      int      `json:"total_chunks"`
	TotalCharacters  int      `json:"total_characters"`
	TotalPages       int      `json:"total_pages"`
	SectionsDetected int      `json:"sections_detected"`
	AvgChunkSize     float64  `json:"avg_chunk_size"`
	Sections         []string `json:"sections,omitempty"`
}

// IngestResult is returned after a document has been vectorized.
type IngestResult struct {
	DocumentID string        `json:"document_id"`
	ChunkCount int           `json:"chunk_count"`
	Statistics DocumentStats `json:"statistics"`
}

// DocumentStatusInfo reports whether a document exists and how far it got.
type DocumentStatusInfo struct {
	Exists     bool           `json:"exists"`
	DocumentID string         `json:"document_id"`
	Status     DocumentStatus `json:"status,omitempty"`
	ChunkCount int            `json:"chunks_count"`
	Statistics *DocumentStats `json:"statistics,omitempty"`
	Document   *Document      `json:"document,omitempty"`
}

// IndexStats reports totals across the vector index.
type IndexStats struct {
	TotalDocuments int `json:"total_documents"`
	TotalChunks    int `json:"total_chunks"`
	KeywordChunks  int `json:"keyword_chunks"`
}
