package analysis

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hyperjump/legalease/internal/config"
	"github.com/hyperjump/legalease/internal/models"
)

func sampleResult(docID string, t models.AnalysisType) *models.AnalysisResult {
	return &models.AnalysisResult{
		AnalysisType:      t,
		DocumentID:        docID,
		Timestamp:         time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC),
		ContextChunksUsed: 3,
		Result: &models.RisksPayload{AttentionPoints: []models.RiskItem{
			{RiskText: "The Tenant shall indemnify the Landlord.", Severity: models.SeverityHigh, PageNumber: 2},
		}},
	}
}

func exerciseCache(t *testing.T, c ResultCache) {
	t.Helper()
	ctx := context.Background()

	_, ok, err := c.Get(ctx, "doc_a", models.AnalysisRisks)
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, c.Set(ctx, sampleResult("doc_a", models.AnalysisRisks)))
	require.NoError(t, c.Set(ctx, sampleResult("doc_a", models.AnalysisSummary)))
	require.NoError(t, c.Set(ctx, sampleResult("doc_b", models.AnalysisRisks)))

	got, ok, err := c.Get(ctx, "doc_a", models.AnalysisRisks)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, 3, got.ContextChunksUsed)
	payload, isRisks := got.Result.(*models.RisksPayload)
	require.True(t, isRisks, "result is %T", got.Result)
	assert.Equal(t, models.PageNumber(2), payload.AttentionPoints[0].PageNumber)

	require.NoError(t, c.DeleteDocument(ctx, "doc_a"))
	_, ok, _ = c.Get(ctx, "doc_a", models.AnalysisRisks)
	assert.False(t, ok)
	_, ok, _ = c.Get(ctx, "doc_a", models.AnalysisSummary)
	assert.False(t, ok)
	_, ok, _ = c.Get(ctx, "doc_b", models.AnalysisRisks)
	assert.True(t, ok)
}

func TestMemoryCache(t *testing.T) {
	exerciseCache(t, NewMemoryCache(10, 0))
}

func TestRedisCache(t *testing.T) {
	addr := os.Getenv("LEGALEASE_TEST_REDIS_ADDR")
	if addr == "" {
		t.Skip("LEGALEASE_TEST_REDIS_ADDR not set")
	}
	c, err := NewRedisCache(context.Background(), config.CacheConfig{
		RedisAddr: addr,
		TTL:       time.Minute,
		KeyPrefix: "legalease:test:" + t.Name() + ":",
	})
	require.NoError(t, err)
	t.Cleanup(func() {
		_ = c.DeleteDocument(context.Background(), "doc_a")
		_ = c.DeleteDocument(context.Background(), "doc_b")
		_ = c.Close()
	})
	exerciseCache(t, c)
}

func TestNewResultCache(t *testing.T) {
	c, err := NewResultCache(context.Background(), config.CacheConfig{})
	require.NoError(t, err)
	assert.IsType(t, &MemoryCache{}, c)

	_, err = NewResultCache(context.Background(), config.CacheConfig{Backend: "memcached"})
	assert.Error(t, err)
	_, err = NewResultCache(context.Background(), config.CacheConfig{Backend: "redis"})
	assert.Error(t, err)
}
