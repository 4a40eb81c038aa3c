// Package llm wraps chat-completion backends behind a small interface.
package llm

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/ollama"
	"github.com/tmc/langchaingo/llms/openai"
	"github.com/tmc/langchaingo/schema"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/hyperjump/legalease/internal/apperr"
	"github.com/hyperjump/legalease/internal/config"
	"github.com/hyperjump/legalease/pkg/utils"
)

// Model generates a completion for a system prompt and a user message.
// Backend failures are reported as apperr.KindModelUnavailable.
type Model interface {
	Generate(ctx context.Context, system, user string) (string, error)
}

// Provider names accepted by New.
const (
	ProviderOllama = "ollama"
	ProviderOpenAI = "openai"
)

// Client is a Model backed by a langchaingo chat model.
type Client struct {
	llm         llms.Model
	model       string
	temperature float64
	maxTokens   int
	limiter     *rate.Limiter
	logger      *zap.Logger
}

// Option configures a Client.
type Option func(*Client)

// WithTemperature sets the sampling temperature.
func WithTemperature(t float64) Option {
	return func(c *Client) { c.temperature = t }
}

// WithMaxTokens caps the completion length.
func WithMaxTokens(n int) Option {
	return func(c *Client) { c.maxTokens = n }
}

// WithRateLimit limits calls to rps requests per second. Zero disables limiting.
func WithRateLimit(rps float64) Option {
	return func(c *Client) {
		if rps > 0 {
			c.limiter = rate.NewLimiter(rate.Limit(rps), 1)
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(c *Client) { c.logger = l }
}

// NewClient wraps a langchaingo model. model is only used in log fields.
func NewClient(m llms.Model, model string, opts ...Option) *Client {
	c := &Client{llm: m, model: model, temperature: 0.1, maxTokens: 4000}
	for _, opt := range opts {
		opt(c)
	}
	c.logger = utils.OrNop(c.logger)
	return c
}

// Generate implements Model.
func (c *Client) Generate(ctx context.Context, system, user string) (string, error) {
	const op = "llm.Generate"
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return "", apperr.New(apperr.KindModelUnavailable, op, fmt.Errorf("rate limiter: %w", err))
		}
	}
	content := []llms.MessageContent{
		llms.TextParts(schema.ChatMessageTypeSystem, system),
		llms.TextParts(schema.ChatMessageTypeHuman, user),
	}
	start := time.Now()
	resp, err := c.llm.GenerateContent(ctx, content,
		llms.WithTemperature(c.temperature),
		llms.WithMaxTokens(c.maxTokens),
	)
	if err != nil {
		c.logger.Debug("llm call failed", zap.String("model", c.model), zap.Duration("elapsed", time.Since(start)), zap.Error(err))
		return "", apperr.New(apperr.KindModelUnavailable, op, err)
	}
	if resp == nil || len(resp.Choices) == 0 || resp.Choices[0] == nil {
		return "", apperr.New(apperr.KindModelUnavailable, op, errors.New("empty response"))
	}
	c.logger.Debug("llm call",
		zap.String("model", c.model),
		zap.Duration("elapsed", time.Since(start)),
		zap.Int("response_chars", len(resp.Choices[0].Content)),
	)
	return resp.Choices[0].Content, nil
}

// New builds the client selected by cfg.Provider.
func New(cfg config.LLMConfig, logger *zap.Logger) (*Client, error) {
	var (
		m   llms.Model
		err error
	)
	switch strings.ToLower(cfg.Provider) {
	case "", ProviderOllama:
		opts := []ollama.Option{ollama.WithModel(cfg.Model)}
		if cfg.BaseURL != "" {
			opts = append(opts, ollama.WithServerURL(cfg.BaseURL))
		}
		m, err = ollama.New(opts...)
	case ProviderOpenAI:
		opts := []openai.Option{openai.WithModel(cfg.Model)}
		if key := config.APIKey(cfg.APIKeyEnv); key != "" {
			opts = append(opts, openai.WithToken(key))
		}
		if cfg.BaseURL != "" {
			opts = append(opts, openai.WithBaseURL(cfg.BaseURL))
		}
		m, err = openai.New(opts...)
	default:
		return nil, fmt.Errorf("unknown llm provider %q", cfg.Provider)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to initialize %s llm: %w", cfg.Provider, err)
	}
	return NewClient(m, cfg.Model,
		WithTemperature(cfg.Temperature),
		WithMaxTokens(cfg.MaxTokens),
		WithRateLimit(cfg.RateLimit),
		WithLogger(logger),
	), nil
}
