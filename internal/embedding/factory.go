package embedding

import (
	"fmt"
	"strings"

	"github.com/tmc/langchaingo/llms/ollama"
	"github.com/tmc/langchaingo/llms/openai"
	"go.uber.org/zap"

	"github.com/hyperjump/legalease/internal/config"
)

// Provider names accepted by New.
const (
	ProviderHashing = "hashing"
	ProviderONNX    = "onnx"
	ProviderOllama  = "ollama"
	ProviderOpenAI  = "openai"
)

// New builds the embedder selected by cfg.Provider, wrapped in an LRU cache
// when cfg.CacheSize is positive.
func New(cfg config.EmbeddingConfig, logger *zap.Logger) (Embedder, error) {
	var (
		e   Embedder
		err error
	)
	switch strings.ToLower(cfg.Provider) {
	case "", ProviderHashing:
		e = NewHashingEmbedder(cfg.Dimensions)
	case ProviderONNX:
		e, err = NewONNXEmbedder(cfg.ModelPath, cfg.Dimensions, cfg.MaxTokens)
	case ProviderOllama:
		opts := []ollama.Option{ollama.WithModel(cfg.Model)}
		if cfg.BaseURL != "" {
			opts = append(opts, ollama.WithServerURL(cfg.BaseURL))
		}
		var client *ollama.LLM
		client, err = ollama.New(opts...)
		if err == nil {
			e = newRemote(client, cfg, logger)
		}
	case ProviderOpenAI:
		opts := []openai.Option{openai.WithEmbeddingModel(cfg.Model)}
		if key := config.APIKey(cfg.APIKeyEnv); key != "" {
			opts = append(opts, openai.WithToken(key))
		}
		if cfg.BaseURL != "" {
			opts = append(opts, openai.WithBaseURL(cfg.BaseURL))
		}
		var client *openai.LLM
		client, err = openai.New(opts...)
		if err == nil {
			e = newRemote(client, cfg, logger)
		}
	default:
		return nil, fmt.Errorf("unknown embedding provider %q", cfg.Provider)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to initialize %s embedder: %w", cfg.Provider, err)
	}
	if cfg.CacheSize > 0 {
		return WithCache(e, cfg.CacheSize), nil
	}
	return e, nil
}

func newRemote(client Client, cfg config.EmbeddingConfig, logger *zap.Logger) *RemoteEmbedder {
	return NewRemoteEmbedder(client, cfg.Dimensions,
		WithBatchSize(cfg.BatchSize),
		WithConcurrency(cfg.Concurrency),
		WithTimeout(cfg.Timeout),
		WithLogger(logger),
	)
}
