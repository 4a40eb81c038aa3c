// Package retrieval selects the chunks of one document that are most relevant
// to a query, combining vector similarity with optional keyword matching.
package retrieval

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"go.uber.org/zap"

	"github.com/hyperjump/legalease/internal/apperr"
	"github.com/hyperjump/legalease/internal/embedding"
	"github.com/hyperjump/legalease/internal/keyword"
	"github.com/hyperjump/legalease/internal/models"
	"github.com/hyperjump/legalease/internal/ranking"
	"github.com/hyperjump/legalease/internal/vector"
	"github.com/hyperjump/legalease/pkg/utils"
)

// Retriever returns the k chunks of documentID most relevant to query,
// ordered by descending score with ties broken by ascending chunk index.
type Retriever interface {
	Retrieve(ctx context.Context, documentID, query string, k int) ([]models.RetrievedChunk, error)
}

// HybridRetriever searches the vector index and, when a keyword index and a
// positive weight are configured, fuses in keyword scores. A ranker, when
// set, rescores the fused candidates before they are cut to k.
type HybridRetriever struct {
	embedder      embedding.Embedder
	vectorIndex   vector.VectorIndex
	keywordIndex  keyword.KeywordIndex
	keywordWeight float64
	fuzziness     int
	ranker        *ranking.Ranker
	logger        *zap.Logger
}

// Option configures a HybridRetriever.
type Option func(*HybridRetriever)

// WithKeywordIndex enables hybrid retrieval. weight is the share of the fused
// score taken by keyword relevance, in [0, 1].
func WithKeywordIndex(k keyword.KeywordIndex, weight float64) Option {
	return func(r *HybridRetriever) {
		r.keywordIndex = k
		r.keywordWeight = clampWeight(weight)
	}
}

// WithKeywordFuzziness lets keyword terms match within n edits, which
// recovers OCR misreads. n is clamped to [0, 2]; 0 disables fuzzy matching.
func WithKeywordFuzziness(n int) Option {
	return func(r *HybridRetriever) {
		switch {
		case n < 0:
			n = 0
		case n > 2:
			n = 2
		}
		r.fuzziness = n
	}
}

// WithRanker enables lexical re-ranking of candidates.
func WithRanker(rk *ranking.Ranker) Option {
	return func(r *HybridRetriever) { r.ranker = rk }
}

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(r *HybridRetriever) { r.logger = l }
}

// New creates a retriever over the given embedder and vector index.
func New(embedder embedding.Embedder, vectorIndex vector.VectorIndex, opts ...Option) *HybridRetriever {
	r := &HybridRetriever{embedder: embedder, vectorIndex: vectorIndex}
	for _, opt := range opts {
		opt(r)
	}
	r.logger = utils.OrNop(r.logger)
	return r
}

func (r *HybridRetriever) hybrid() bool {
	return r.keywordIndex != nil && r.keywordWeight > 0
}

func (r *HybridRetriever) reranking() bool {
	return r.ranker != nil && r.ranker.Weight() > 0
}

// Retrieve implements Retriever.
func (r *HybridRetriever) Retrieve(ctx context.Context, documentID, query string, k int) ([]models.RetrievedChunk, error) {
	if strings.TrimSpace(query) == "" {
		return nil, apperr.Errorf(apperr.KindInput, "retrieval.Retrieve", "query cannot be empty")
	}
	if k <= 0 {
		return nil, nil
	}
	candidates := k
	if r.hybrid() || r.reranking() {
		candidates = k * 2
	}

	var (
		keywordResults  []*keyword.KeywordResult
		semanticResults []*vector.VectorResult
		errChan         = make(chan error, 1)
		wg              sync.WaitGroup
	)

	if r.hybrid() {
		var opts *keyword.SearchOptions
		if r.fuzziness > 0 {
			opts = &keyword.SearchOptions{FuzzyEnabled: true, Fuzziness: r.fuzziness}
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			results, err := r.keywordIndex.Search(ctx, documentID, query, candidates, opts)
			if err != nil {
				// Keyword relevance is a refinement; fall back to vectors alone.
				r.logger.Warn("keyword search failed", zap.String("document_id", documentID), zap.Error(err))
				return
			}
			keywordResults = results
		}()
	}

	wg.Add(1)
	go func() {
		defer wg.Done()
		queryEmbedding, err := r.embedder.Embed(ctx, query)
		if err != nil {
			errChan <- fmt.Errorf("embedding failed: %w", err)
			return
		}
		results, err := r.vectorIndex.Search(ctx, documentID, queryEmbedding, candidates)
		if err != nil {
			errChan <- fmt.Errorf("vector search failed: %w", err)
			return
		}
		semanticResults = results
	}()

	wg.Wait()
	close(errChan)
	if err := <-errChan; err != nil {
		return nil, err
	}

	weight := 0.0
	if r.hybrid() {
		weight = r.keywordWeight
	}
	fused := Fuse(semanticResults, keywordResults, weight)
	if r.reranking() {
		fused = r.ranker.Rerank(query, fused)
	}
	if len(fused) > k {
		fused = fused[:k]
	}
	r.logger.Debug("retrieved chunks",
		zap.String("document_id", documentID),
		zap.Int("k", k),
		zap.Int("semantic", len(semanticResults)),
		zap.Int("keyword", len(keywordResults)),
		zap.Int("returned", len(fused)),
	)
	return fused, nil
}

// FilterMinScore drops chunks scoring below min. A non-positive min keeps everything.
func FilterMinScore(chunks []models.RetrievedChunk, min float64) []models.RetrievedChunk {
	if min <= 0 {
		return chunks
	}
	out := make([]models.RetrievedChunk, 0, len(chunks))
	for _, c := range chunks {
		if c.Score >= min {
			out = append(out, c)
		}
	}
	return out
}

func clampWeight(w float64) float64 {
	switch {
	case w < 0:
		return 0
	case w > 1:
		return 1
	}
	return w
}
