package analysis

import (
	"context"
	"strings"
	"time"

	"github.com/hyperjump/legalease/internal/cache"
	"github.com/hyperjump/legalease/internal/models"
)

// ResultCache stores finished analyses keyed by document and analysis type.
type ResultCache interface {
	Get(ctx context.Context, documentID string, t models.AnalysisType) (*models.AnalysisResult, bool, error)
	Set(ctx context.Context, result *models.AnalysisResult) error
	DeleteDocument(ctx context.Context, documentID string) error
	Close() error
}

func resultKey(documentID string, t models.AnalysisType) string {
	return documentID + ":" + string(t)
}

// MemoryCache is an in-process ResultCache.
type MemoryCache struct {
	lru *cache.LRU[string, *models.AnalysisResult]
}

// NewMemoryCache creates a cache of at most capacity results. A zero ttl keeps
// results until they are evicted or their document changes.
func NewMemoryCache(capacity int, ttl time.Duration) *MemoryCache {
	return &MemoryCache{lru: cache.NewLRU[string, *models.AnalysisResult](capacity, ttl)}
}

func (c *MemoryCache) Get(_ context.Context, documentID string, t models.AnalysisType) (*models.AnalysisResult, bool, error) {
	r, ok := c.lru.Get(resultKey(documentID, t))
	return r, ok, nil
}

func (c *MemoryCache) Set(_ context.Context, result *models.AnalysisResult) error {
	c.lru.Set(resultKey(result.DocumentID, result.AnalysisType), result)
	return nil
}

func (c *MemoryCache) DeleteDocument(_ context.Context, documentID string) error {
	prefix := documentID + ":"
	c.lru.DeleteFunc(func(key string) bool { return strings.HasPrefix(key, prefix) })
	return nil
}

func (c *MemoryCache) Close() error { return nil }
