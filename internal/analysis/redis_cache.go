package analysis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/hyperjump/legalease/internal/config"
	"github.com/hyperjump/legalease/internal/models"
)

// RedisCache is a ResultCache shared by every server pointed at the same Redis.
type RedisCache struct {
	rdb    *goredis.Client
	prefix string
	ttl    time.Duration
}

// NewRedisCache connects to the Redis server in cfg and checks it responds.
func NewRedisCache(ctx context.Context, cfg config.CacheConfig) (*RedisCache, error) {
	if cfg.RedisAddr == "" {
		return nil, errors.New("missing redis address")
	}
	rdb := goredis.NewClient(&goredis.Options{
		Addr:        cfg.RedisAddr,
		Password:    cfg.RedisPassword,
		DB:          cfg.RedisDB,
		DialTimeout: 5 * time.Second,
	})
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	prefix := cfg.KeyPrefix
	if prefix == "" {
		prefix = "legalease:analysis:"
	}
	return &RedisCache{rdb: rdb, prefix: prefix, ttl: cfg.TTL}, nil
}

func (c *RedisCache) key(documentID string, t models.AnalysisType) string {
	return c.prefix + resultKey(documentID, t)
}

func (c *RedisCache) Get(ctx context.Context, documentID string, t models.AnalysisType) (*models.AnalysisResult, bool, error) {
	raw, err := c.rdb.Get(ctx, c.key(documentID, t)).Bytes()
	if errors.Is(err, goredis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("redis get: %w", err)
	}
	result, err := models.DecodeAnalysisResult(raw)
	if err != nil {
		return nil, false, err
	}
	return result, true, nil
}

func (c *RedisCache) Set(ctx context.Context, result *models.AnalysisResult) error {
	raw, err := json.Marshal(result)
	if err != nil {
		return fmt.Errorf("encode result: %w", err)
	}
	if err := c.rdb.Set(ctx, c.key(result.DocumentID, result.AnalysisType), raw, c.ttl).Err(); err != nil {
		return fmt.Errorf("redis set: %w", err)
	}
	return nil
}

// DeleteDocument removes the cached results of every structured analysis type.
func (c *RedisCache) DeleteDocument(ctx context.Context, documentID string) error {
	keys := make([]string, len(models.StructuredAnalysisTypes))
	for i, t := range models.StructuredAnalysisTypes {
		keys[i] = c.key(documentID, t)
	}
	if err := c.rdb.Del(ctx, keys...).Err(); err != nil {
		return fmt.Errorf("redis del: %w", err)
	}
	return nil
}

func (c *RedisCache) Close() error {
	return c.rdb.Close()
}

// NewResultCache builds the cache selected by cfg.Backend.
func NewResultCache(ctx context.Context, cfg config.CacheConfig) (ResultCache, error) {
	switch cfg.Backend {
	case "", "memory":
		return NewMemoryCache(cfg.Capacity, cfg.TTL), nil
	case "redis":
		return NewRedisCache(ctx, cfg)
	}
	return nil, fmt.Errorf("unknown cache backend %q", cfg.Backend)
}
