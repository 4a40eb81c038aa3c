package vector

import (
	"context"
	"encoding/gob"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/hyperjump/legalease/internal/apperr"
	"github.com/hyperjump/legalease/internal/models"
)

// MemoryIndex is an in-memory vector index using brute-force cosine search.
// Each document's records live in an immutable partition that Upsert swaps
// in under the write lock, so readers never observe a partial document.
type MemoryIndex struct {
	dimensions int
	partitions map[string]*partition
	mu         sync.RWMutex
}

type partition struct {
	records []memRecord
}

type memRecord struct {
	chunk  *models.Chunk
	vector []float32
	norm   float64
}

// NewMemoryIndex creates an in-memory vector index. A dimensions of 0 means
// the first Upsert fixes it.
func NewMemoryIndex(dimensions int) (*MemoryIndex, error) {
	if dimensions < 0 {
		return nil, fmt.Errorf("dimensions must not be negative")
	}
	return &MemoryIndex{
		dimensions: dimensions,
		partitions: make(map[string]*partition),
	}, nil
}

// Type returns the index type identifier.
func (m *MemoryIndex) Type() string {
	return string(IndexTypeMemory)
}

// Upsert replaces all records of documentID.
func (m *MemoryIndex) Upsert(ctx context.Context, documentID string, records []*models.VectorRecord) error {
	if documentID == "" {
		return apperr.Errorf(apperr.KindInput, "vector.Upsert", "document id is required")
	}
	p := &partition{records: make([]memRecord, 0, len(records))}
	dims := 0
	for i, r := range records {
		if r == nil || r.Chunk == nil {
			return apperr.Errorf(apperr.KindIndexInconsistency, "vector.Upsert", "record %d has no chunk", i)
		}
		if r.Chunk.DocumentID != documentID {
			return apperr.Errorf(apperr.KindIndexInconsistency, "vector.Upsert",
				"record %d belongs to document %q, not %q", i, r.Chunk.DocumentID, documentID)
		}
		if dims == 0 {
			dims = len(r.Embedding)
		}
		if len(r.Embedding) != dims || dims == 0 {
			return apperr.Errorf(apperr.KindIndexInconsistency, "vector.Upsert",
				"record %d has %d dimensions, batch has %d", i, len(r.Embedding), dims)
		}
		vec := make([]float32, dims)
		copy(vec, r.Embedding)
		chunk := *r.Chunk
		p.records = append(p.records, memRecord{chunk: &chunk, vector: vec, norm: L2Norm(vec)})
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if dims > 0 {
		if m.dimensions == 0 {
			m.dimensions = dims
		} else if dims != m.dimensions {
			return apperr.Errorf(apperr.KindIndexInconsistency, "vector.Upsert",
				"vector dimension mismatch: got %d, expected %d", dims, m.dimensions)
		}
	}
	m.partitions[documentID] = p
	return nil
}

// Search returns the top-k records of documentID by cosine similarity.
func (m *MemoryIndex) Search(ctx context.Context, documentID string, query []float32, k int) ([]*VectorResult, error) {
	m.mu.RLock()
	p := m.partitions[documentID]
	dims := m.dimensions
	m.mu.RUnlock()

	if p == nil || k <= 0 || len(p.records) == 0 {
		return nil, nil
	}
	if len(query) != dims {
		return nil, apperr.Errorf(apperr.KindIndexInconsistency, "vector.Search",
			"query dimension mismatch: got %d, expected %d", len(query), dims)
	}
	qNorm := L2Norm(query)
	results := make([]*VectorResult, len(p.records))
	for i, r := range p.records {
		results[i] = &VectorResult{Chunk: r.chunk, Score: Cosine(query, r.vector, qNorm, r.norm)}
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	SortResults(results)
	if k > len(results) {
		k = len(results)
	}
	return results[:k], nil
}

// Delete removes all records of documentID. Deleting an unknown document is not an error.
func (m *MemoryIndex) Delete(ctx context.Context, documentID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.partitions, documentID)
	return nil
}

// Count returns the number of records stored for documentID.
func (m *MemoryIndex) Count(ctx context.Context, documentID string) (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if p := m.partitions[documentID]; p != nil {
		return len(p.records), nil
	}
	return 0, nil
}

// Stats returns document and chunk totals.
func (m *MemoryIndex) Stats(ctx context.Context) (models.IndexStats, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	stats := models.IndexStats{TotalDocuments: len(m.partitions)}
	for _, p := range m.partitions {
		stats.TotalChunks += len(p.records)
	}
	return stats, nil
}

// Dimensions returns the fixed dimensionality, or 0 if not yet fixed.
func (m *MemoryIndex) Dimensions() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.dimensions
}

type snapshot struct {
	Dimensions int
	Records    []snapshotRecord
}

type snapshotRecord struct {
	Chunk  models.Chunk
	Vector []float32
}

// Save persists the index to path as a gob snapshot. Directory is created if needed.
func (m *MemoryIndex) Save(path string) error {
	if path == "" {
		return nil
	}
	m.mu.RLock()
	snap := snapshot{Dimensions: m.dimensions}
	for _, p := range m.partitions {
		for _, r := range p.records {
			snap.Records = append(snap.Records, snapshotRecord{Chunk: *r.chunk, Vector: r.vector})
		}
	}
	m.mu.RUnlock()

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("create index dir: %w", err)
	}
	tmp := path + ".tmp"
	f, err := os.Create(tmp)
	if err != nil {
		return fmt.Errorf("create index file: %w", err)
	}
	if err := gob.NewEncoder(f).Encode(&snap); err != nil {
		f.Close()
		return fmt.Errorf("encode index: %w", err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("close index file: %w", err)
	}
	return os.Rename(tmp, path)
}

// Load reads the index from path and replaces the in-memory contents.
// If the file does not exist, no error is returned and the index is unchanged.
func (m *MemoryIndex) Load(path string) error {
	if path == "" {
		return nil
	}
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("open index file: %w", err)
	}
	defer f.Close()
	var snap snapshot
	if err := gob.NewDecoder(f).Decode(&snap); err != nil {
		return fmt.Errorf("decode index: %w", err)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.dimensions != 0 && snap.Dimensions != 0 && snap.Dimensions != m.dimensions {
		return fmt.Errorf("dimension mismatch: file has %d, index expects %d", snap.Dimensions, m.dimensions)
	}
	if snap.Dimensions != 0 {
		m.dimensions = snap.Dimensions
	}
	partitions := make(map[string]*partition)
	for i := range snap.Records {
		r := &snap.Records[i]
		p := partitions[r.Chunk.DocumentID]
		if p == nil {
			p = &partition{}
			partitions[r.Chunk.DocumentID] = p
		}
		chunk := r.Chunk
		p.records = append(p.records, memRecord{chunk: &chunk, vector: r.Vector, norm: L2Norm(r.Vector)})
	}
	m.partitions = partitions
	return nil
}

// Close is a no-op for MemoryIndex.
func (m *MemoryIndex) Close() error {
	return nil
}
