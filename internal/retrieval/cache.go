package retrieval

import (
	"context"
	"strconv"
	"strings"
	"time"

	"github.com/hyperjump/legalease/internal/cache"
	"github.com/hyperjump/legalease/internal/models"
	"github.com/hyperjump/legalease/pkg/utils"
)

// CachedRetriever serves repeated retrievals (the same question asked twice,
// the same stage rerun) from a TTL cache.
type CachedRetriever struct {
	Retriever
	lru *cache.LRU[string, []models.RetrievedChunk]
}

// WithCache wraps r with a cache of the given capacity and TTL.
func WithCache(r Retriever, capacity int, ttl time.Duration) *CachedRetriever {
	return &CachedRetriever{Retriever: r, lru: cache.NewLRU[string, []models.RetrievedChunk](capacity, ttl)}
}

func cacheKey(documentID, query string, k int) string {
	return documentID + "\x00" + strconv.Itoa(k) + "\x00" + utils.NormalizeQuery(query)
}

// Retrieve returns a cached result for (documentID, k, normalized query) or
// retrieves and caches it. Errors are not cached.
func (c *CachedRetriever) Retrieve(ctx context.Context, documentID, query string, k int) ([]models.RetrievedChunk, error) {
	key := cacheKey(documentID, query, k)
	if chunks, ok := c.lru.Get(key); ok {
		return chunks, nil
	}
	chunks, err := c.Retriever.Retrieve(ctx, documentID, query, k)
	if err != nil {
		return nil, err
	}
	c.lru.Set(key, chunks)
	return chunks, nil
}

// InvalidateDocument drops every cached retrieval for documentID.
func (c *CachedRetriever) InvalidateDocument(documentID string) {
	prefix := documentID + "\x00"
	c.lru.DeleteFunc(func(key string) bool { return strings.HasPrefix(key, prefix) })
}
