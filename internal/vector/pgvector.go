package vector

import (
	"context"
	"errors"
	"fmt"
	"regexp"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pgvector/pgvector-go"

	"github.com/hyperjump/legalease/internal/apperr"
	"github.com/hyperjump/legalease/internal/models"
)

var tableNameRe = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]{0,62}$`)

// PgVectorIndex stores chunk embeddings in PostgreSQL with the pgvector extension.
// Upsert deletes and re-inserts a document's rows in one transaction.
type PgVectorIndex struct {
	pool       *pgxpool.Pool
	table      string
	dimensions int
}

// NewPgVectorIndex connects to connString and ensures the extension, table and indexes exist.
func NewPgVectorIndex(ctx context.Context, connString, table string, dimensions int) (*PgVectorIndex, error) {
	if dimensions <= 0 {
		return nil, fmt.Errorf("dimensions must be positive")
	}
	if table == "" {
		table = "legal_chunks"
	}
	if !tableNameRe.MatchString(table) {
		return nil, fmt.Errorf("invalid table name %q", table)
	}
	pool, err := pgxpool.New(ctx, connString)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	idx := &PgVectorIndex{pool: pool, table: table, dimensions: dimensions}
	if err := idx.initSchema(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return idx, nil
}

func (p *PgVectorIndex) initSchema(ctx context.Context) error {
	stmts := []string{
		"CREATE EXTENSION IF NOT EXISTS vector",
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
			id TEXT PRIMARY KEY,
			document_id TEXT NOT NULL,
			chunk_index INTEGER NOT NULL,
			text TEXT NOT NULL,
			page_number INTEGER NOT NULL DEFAULT 1,
			section TEXT NOT NULL DEFAULT '',
			start_offset INTEGER NOT NULL DEFAULT 0,
			end_offset INTEGER NOT NULL DEFAULT 0,
			embedding vector(%d) NOT NULL
		)`, p.table, p.dimensions),
		fmt.Sprintf("CREATE INDEX IF NOT EXISTS %s_document_idx ON %s (document_id, chunk_index)", p.table, p.table),
	}
	for _, stmt := range stmts {
		if _, err := p.pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("failed to initialize schema: %w", err)
		}
	}
	return nil
}

// Upsert replaces all rows of documentID inside a single transaction.
func (p *PgVectorIndex) Upsert(ctx context.Context, documentID string, records []*models.VectorRecord) error {
	for i, r := range records {
		if r == nil || r.Chunk == nil || r.Chunk.DocumentID != documentID {
			return apperr.Errorf(apperr.KindIndexInconsistency, "vector.Upsert", "record %d does not belong to %q", i, documentID)
		}
		if len(r.Embedding) != p.dimensions {
			return apperr.Errorf(apperr.KindIndexInconsistency, "vector.Upsert",
				"vector dimension mismatch: got %d, expected %d", len(r.Embedding), p.dimensions)
		}
	}

	tx, err := p.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, fmt.Sprintf("DELETE FROM %s WHERE document_id = $1", p.table), documentID); err != nil {
		return fmt.Errorf("failed to delete old chunks: %w", err)
	}
	insert := fmt.Sprintf(`INSERT INTO %s
		(id, document_id, chunk_index, text, page_number, section, start_offset, end_offset, embedding)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`, p.table)
	batch := &pgx.Batch{}
	for _, r := range records {
		c := r.Chunk
		batch.Queue(insert, c.ID, c.DocumentID, c.Index, c.Text, c.Page, c.Section, c.StartOffset, c.EndOffset,
			pgvector.NewVector(r.Embedding))
	}
	if err := tx.SendBatch(ctx, batch).Close(); err != nil {
		return fmt.Errorf("failed to insert chunks: %w", err)
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// Search returns the top-k rows of documentID ordered by cosine distance, then chunk index.
func (p *PgVectorIndex) Search(ctx context.Context, documentID string, query []float32, k int) ([]*VectorResult, error) {
	if k <= 0 {
		return nil, nil
	}
	if len(query) != p.dimensions {
		return nil, apperr.Errorf(apperr.KindIndexInconsistency, "vector.Search",
			"query dimension mismatch: got %d, expected %d", len(query), p.dimensions)
	}
	q := fmt.Sprintf(`SELECT id, document_id, chunk_index, text, page_number, section, start_offset, end_offset,
			1 - (embedding <=> $2) AS score
		FROM %s
		WHERE document_id = $1
		ORDER BY embedding <=> $2, chunk_index
		LIMIT $3`, p.table)
	rows, err := p.pool.Query(ctx, q, documentID, pgvector.NewVector(query), k)
	if err != nil {
		return nil, fmt.Errorf("failed to query chunks: %w", err)
	}
	defer rows.Close()

	var results []*VectorResult
	for rows.Next() {
		c := &models.Chunk{}
		var score float64
		if err := rows.Scan(&c.ID, &c.DocumentID, &c.Index, &c.Text, &c.Page, &c.Section,
			&c.StartOffset, &c.EndOffset, &score); err != nil {
			return nil, fmt.Errorf("failed to scan row: %w", err)
		}
		results = append(results, &VectorResult{Chunk: c, Score: score})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read rows: %w", err)
	}
	SortResults(results)
	return results, nil
}

// Delete removes all rows of documentID.
func (p *PgVectorIndex) Delete(ctx context.Context, documentID string) error {
	if _, err := p.pool.Exec(ctx, fmt.Sprintf("DELETE FROM %s WHERE document_id = $1", p.table), documentID); err != nil {
		return fmt.Errorf("failed to delete chunks: %w", err)
	}
	return nil
}

// Count returns the number of rows stored for documentID.
func (p *PgVectorIndex) Count(ctx context.Context, documentID string) (int, error) {
	var n int
	err := p.pool.QueryRow(ctx, fmt.Sprintf("SELECT COUNT(*) FROM %s WHERE document_id = $1", p.table), documentID).Scan(&n)
	if err != nil && !errors.Is(err, pgx.ErrNoRows) {
		return 0, fmt.Errorf("failed to count chunks: %w", err)
	}
	return n, nil
}

// Stats returns document and chunk totals.
func (p *PgVectorIndex) Stats(ctx context.Context) (models.IndexStats, error) {
	var stats models.IndexStats
	err := p.pool.QueryRow(ctx, fmt.Sprintf("SELECT COUNT(DISTINCT document_id), COUNT(*) FROM %s", p.table)).
		Scan(&stats.TotalDocuments, &stats.TotalChunks)
	if err != nil {
		return stats, fmt.Errorf("failed to read stats: %w", err)
	}
	return stats, nil
}

// Dimensions returns the column dimensionality.
func (p *PgVectorIndex) Dimensions() int {
	return p.dimensions
}

// Save is a no-op; PostgreSQL persists rows.
func (p *PgVectorIndex) Save(string) error { return nil }

// Load is a no-op; PostgreSQL persists rows.
func (p *PgVectorIndex) Load(string) error { return nil }

// Close closes the connection pool.
func (p *PgVectorIndex) Close() error {
	if p.pool != nil {
		p.pool.Close()
	}
	return nil
}
