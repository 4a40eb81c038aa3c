package retrieval

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hyperjump/legalease/internal/apperr"
	"github.com/hyperjump/legalease/internal/config"
	"github.com/hyperjump/legalease/internal/embedding"
	"github.com/hyperjump/legalease/internal/keyword"
	"github.com/hyperjump/legalease/internal/models"
	"github.com/hyperjump/legalease/internal/ranking"
	"github.com/hyperjump/legalease/internal/vector"
)

var leaseChunks = []string{
	"The Tenant shall pay monthly rent of 2,000 USD on the first day of each month.",
	"Either party may terminate this Agreement upon sixty days written notice. This termination clause survives assignment.",
	"The Landlord shall maintain the premises in good repair and condition.",
	"This Agreement is governed by the laws of the State of New York.",
	"The Tenant shall not sublet the premises without prior written consent.",
}

var otherChunks = []string{
	"Termination of this employment contract requires a termination clause review.",
}

type fixture struct {
	embedder *embedding.HashingEmbedder
	vectors  *vector.MemoryIndex
	words    *keyword.BleveIndex
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{embedder: embedding.NewHashingEmbedder(256)}
	var err error
	f.vectors, err = vector.NewMemoryIndex(256)
	require.NoError(t, err)
	f.words, err = keyword.NewBleveIndex("")
	require.NoError(t, err)
	t.Cleanup(func() { _ = f.words.Close() })

	f.add(t, "lease", leaseChunks)
	f.add(t, "other", otherChunks)
	return f
}

func (f *fixture) add(t *testing.T, docID string, texts []string) {
	t.Helper()
	ctx := context.Background()
	vecs, err := f.embedder.EmbedBatch(ctx, texts)
	require.NoError(t, err)
	chunks := make([]*models.Chunk, len(texts))
	records := make([]*models.VectorRecord, len(texts))
	for i, text := range texts {
		chunks[i] = &models.Chunk{
			ID:         fmt.Sprintf("%s_chunk_%d", docID, i),
			DocumentID: docID,
			Index:      i,
			Text:       text,
			Page:       1,
		}
		records[i] = &models.VectorRecord{Chunk: chunks[i], Embedding: vecs[i]}
	}
	require.NoError(t, f.vectors.Upsert(ctx, docID, records))
	require.NoError(t, f.words.IndexChunks(ctx, docID, chunks))
}

func ids(chunks []models.RetrievedChunk) []string {
	out := make([]string, len(chunks))
	for i, c := range chunks {
		out[i] = c.ID
	}
	return out
}

func TestRetrieve_TerminationClause(t *testing.T) {
	f := newFixture(t)
	r := New(f.embedder, f.vectors)

	got, err := r.Retrieve(context.Background(), "lease", "termination clause", 3)
	require.NoError(t, err)
	require.Len(t, got, 3)
	assert.Equal(t, "lease_chunk_1", got[0].ID)
	for i := 1; i < len(got); i++ {
		assert.GreaterOrEqual(t, got[i-1].Score, got[i].Score)
	}
}

func TestRetrieve_OnlyRequestedDocument(t *testing.T) {
	f := newFixture(t)
	r := New(f.embedder, f.vectors, WithKeywordIndex(f.words, 0.5))

	got, err := r.Retrieve(context.Background(), "lease", "termination clause", 10)
	require.NoError(t, err)
	assert.Len(t, got, len(leaseChunks))
	for _, c := range got {
		assert.Equal(t, "lease", c.DocumentID)
	}
}

func TestRetrieve_Deterministic(t *testing.T) {
	f := newFixture(t)
	for _, r := range []Retriever{
		New(f.embedder, f.vectors),
		New(f.embedder, f.vectors, WithKeywordIndex(f.words, 0.3)),
	} {
		first, err := r.Retrieve(context.Background(), "lease", "tenant obligations premises", 4)
		require.NoError(t, err)
		for i := 0; i < 5; i++ {
			again, err := r.Retrieve(context.Background(), "lease", "tenant obligations premises", 4)
			require.NoError(t, err)
			assert.Equal(t, ids(first), ids(again))
		}
	}
}

func TestRetrieve_Hybrid(t *testing.T) {
	f := newFixture(t)
	r := New(f.embedder, f.vectors, WithKeywordIndex(f.words, 0.5))

	got, err := r.Retrieve(context.Background(), "lease", "sublet consent", 2)
	require.NoError(t, err)
	require.NotEmpty(t, got)
	assert.Equal(t, "lease_chunk_4", got[0].ID)
	assert.NotEmpty(t, got[0].Text, "chunk text should be populated")
	assert.LessOrEqual(t, got[0].Score, 1.0)
}

func TestRetrieve_Reranked(t *testing.T) {
	f := newFixture(t)
	r := New(f.embedder, f.vectors, WithRanker(ranking.NewRanker(config.RankingConfig{Weight: 1})))

	got, err := r.Retrieve(context.Background(), "lease", `"written consent"`, len(leaseChunks))
	require.NoError(t, err)
	require.Len(t, got, len(leaseChunks))
	assert.Equal(t, "lease_chunk_4", got[0].ID)
	assert.InDelta(t, 1.0, got[0].Score, 1e-9)
	for i := 1; i < len(got); i++ {
		assert.GreaterOrEqual(t, got[i-1].Score, got[i].Score)
	}

	blended := New(f.embedder, f.vectors,
		WithKeywordIndex(f.words, 0.3),
		WithRanker(ranking.NewRanker(config.RankingConfig{Weight: 0.2})))
	got, err = blended.Retrieve(context.Background(), "lease", "termination clause", 2)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "lease_chunk_1", got[0].ID)
	for _, c := range got {
		assert.Equal(t, "lease", c.DocumentID)
		assert.LessOrEqual(t, c.Score, 1.0)
	}
}

func TestRetrieve_EdgeCases(t *testing.T) {
	f := newFixture(t)
	r := New(f.embedder, f.vectors)
	ctx := context.Background()

	got, err := r.Retrieve(ctx, "lease", "rent", 0)
	require.NoError(t, err)
	assert.Empty(t, got)

	_, err = r.Retrieve(ctx, "lease", "   ", 3)
	assert.True(t, apperr.Is(err, apperr.KindInput))

	got, err = r.Retrieve(ctx, "missing", "rent", 3)
	require.NoError(t, err)
	assert.Empty(t, got)
}

type brokenKeywordIndex struct {
	keyword.KeywordIndex
}

func (brokenKeywordIndex) Search(context.Context, string, string, int, *keyword.SearchOptions) ([]*keyword.KeywordResult, error) {
	return nil, errors.New("index closed")
}

type recordingKeywordIndex struct {
	keyword.KeywordIndex
	opts []*keyword.SearchOptions
}

func (r *recordingKeywordIndex) Search(ctx context.Context, documentID, query string, limit int, opts *keyword.SearchOptions) ([]*keyword.KeywordResult, error) {
	r.opts = append(r.opts, opts)
	return r.KeywordIndex.Search(ctx, documentID, query, limit, opts)
}

func TestRetrieve_KeywordFuzziness(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	exact := &recordingKeywordIndex{KeywordIndex: f.words}
	_, err := New(f.embedder, f.vectors, WithKeywordIndex(exact, 0.5)).Retrieve(ctx, "lease", "sublet", 2)
	require.NoError(t, err)
	require.Len(t, exact.opts, 1)
	assert.Nil(t, exact.opts[0])

	fuzzy := &recordingKeywordIndex{KeywordIndex: f.words}
	r := New(f.embedder, f.vectors, WithKeywordIndex(fuzzy, 1), WithKeywordFuzziness(5))
	got, err := r.Retrieve(ctx, "lease", "sublett consnt", 1)
	require.NoError(t, err)
	require.Len(t, fuzzy.opts, 1)
	require.NotNil(t, fuzzy.opts[0])
	assert.True(t, fuzzy.opts[0].FuzzyEnabled)
	assert.Equal(t, 2, fuzzy.opts[0].Fuzziness, "fuzziness is clamped")
	require.Len(t, got, 1)
	assert.Equal(t, "lease_chunk_4", got[0].ID, "misread terms still find the sublet clause")
}

func TestRetrieve_KeywordFailureFallsBackToVectors(t *testing.T) {
	f := newFixture(t)
	r := New(f.embedder, f.vectors, WithKeywordIndex(brokenKeywordIndex{}, 0.5))

	got, err := r.Retrieve(context.Background(), "lease", "termination clause", 2)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "lease_chunk_1", got[0].ID)
}

type failingEmbedder struct {
	embedding.Embedder
}

func (failingEmbedder) Embed(context.Context, string) ([]float32, error) {
	return nil, apperr.New(apperr.KindModelUnavailable, "test", errors.New("timeout"))
}

func TestRetrieve_EmbeddingFailure(t *testing.T) {
	f := newFixture(t)
	r := New(failingEmbedder{}, f.vectors)

	_, err := r.Retrieve(context.Background(), "lease", "rent", 2)
	assert.True(t, apperr.Is(err, apperr.KindModelUnavailable), "got %v", err)
}

func TestFilterMinScore(t *testing.T) {
	chunks := []models.RetrievedChunk{
		{Chunk: &models.Chunk{ID: "a"}, Score: 0.9},
		{Chunk: &models.Chunk{ID: "b"}, Score: 0.2},
	}
	assert.Len(t, FilterMinScore(chunks, 0), 2)
	assert.Equal(t, []string{"a"}, ids(FilterMinScore(chunks, 0.5)))
	assert.Len(t, chunks, 2, "input must not be modified")
}
