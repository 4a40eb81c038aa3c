package embedding

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/hyperjump/legalease/internal/apperr"
	"github.com/hyperjump/legalease/pkg/utils"
)

// Client is the embedding surface of a langchaingo model (ollama.LLM, openai.LLM).
type Client interface {
	CreateEmbedding(ctx context.Context, texts []string) ([][]float32, error)
}

// RemoteEmbedder calls a hosted embedding model. Batches are split into
// sub-batches that run concurrently, each with its own timeout and one retry.
type RemoteEmbedder struct {
	client      Client
	dimensions  int
	batchSize   int
	concurrency int
	timeout     time.Duration
	backoff     time.Duration
	logger      *zap.Logger
}

// RemoteOption configures a RemoteEmbedder.
type RemoteOption func(*RemoteEmbedder)

// WithBatchSize sets how many texts go into one provider call.
func WithBatchSize(n int) RemoteOption {
	return func(e *RemoteEmbedder) {
		if n > 0 {
			e.batchSize = n
		}
	}
}

// WithConcurrency bounds the number of in-flight provider calls.
func WithConcurrency(n int) RemoteOption {
	return func(e *RemoteEmbedder) {
		if n > 0 {
			e.concurrency = n
		}
	}
}

// WithTimeout sets the per-call timeout.
func WithTimeout(d time.Duration) RemoteOption {
	return func(e *RemoteEmbedder) { e.timeout = d }
}

// WithRetryBackoff sets the wait before the single retry.
func WithRetryBackoff(d time.Duration) RemoteOption {
	return func(e *RemoteEmbedder) { e.backoff = d }
}

// WithLogger sets a logger for retry and failure events.
func WithLogger(l *zap.Logger) RemoteOption {
	return func(e *RemoteEmbedder) { e.logger = utils.OrNop(l) }
}

// NewRemoteEmbedder wraps client. dimensions is the expected vector length;
// responses of any other length are rejected.
func NewRemoteEmbedder(client Client, dimensions int, opts ...RemoteOption) *RemoteEmbedder {
	e := &RemoteEmbedder{
		client:      client,
		dimensions:  dimensions,
		batchSize:   32,
		concurrency: 4,
		timeout:     30 * time.Second,
		backoff:     time.Second,
		logger:      zap.NewNop(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Embed embeds a single text.
func (e *RemoteEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	vecs, err := e.EmbedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vecs[0], nil
}

// EmbedBatch embeds texts in concurrent sub-batches. Any failure fails the whole batch.
func (e *RemoteEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	if len(texts) == 0 {
		return out, nil
	}
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.concurrency)
	for start := 0; start < len(texts); start += e.batchSize {
		start := start
		end := min(start+e.batchSize, len(texts))
		g.Go(func() error {
			vecs, err := e.callWithRetry(gctx, texts[start:end])
			if err != nil {
				return err
			}
			copy(out[start:end], vecs)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}

func (e *RemoteEmbedder) callWithRetry(ctx context.Context, texts []string) ([][]float32, error) {
	vecs, err := e.call(ctx, texts)
	if err == nil {
		return vecs, nil
	}
	e.logger.Warn("embedding call failed, retrying", zap.Int("texts", len(texts)), zap.Error(err))
	select {
	case <-ctx.Done():
		return nil, apperr.New(apperr.KindModelUnavailable, "embedding.EmbedBatch", ctx.Err())
	case <-time.After(e.backoff):
	}
	vecs, err = e.call(ctx, texts)
	if err != nil {
		return nil, apperr.New(apperr.KindModelUnavailable, "embedding.EmbedBatch", err)
	}
	return vecs, nil
}

func (e *RemoteEmbedder) call(ctx context.Context, texts []string) ([][]float32, error) {
	if e.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.timeout)
		defer cancel()
	}
	vecs, err := e.client.CreateEmbedding(ctx, texts)
	if err != nil {
		return nil, err
	}
	if len(vecs) != len(texts) {
		return nil, fmt.Errorf("provider returned %d embeddings for %d texts", len(vecs), len(texts))
	}
	for i, v := range vecs {
		if e.dimensions > 0 && len(v) != e.dimensions {
			return nil, fmt.Errorf("embedding %d has %d dimensions, want %d", i, len(v), e.dimensions)
		}
	}
	return vecs, nil
}

// Dimensions returns the expected embedding dimension.
func (e *RemoteEmbedder) Dimensions() int {
	return e.dimensions
}

// Close is a no-op; langchaingo clients hold no resources.
func (e *RemoteEmbedder) Close() error {
	return nil
}
