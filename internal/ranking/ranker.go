package ranking

import (
	"sort"

	"github.com/hyperjump/legalease/internal/config"
	"github.com/hyperjump/legalease/internal/models"
)

// Ranker blends lexical scores into retrieval scores.
type Ranker struct {
	scorer *Scorer
	weight float64
}

// NewRanker creates a Ranker from cfg. The weight is clamped to [0, 1].
func NewRanker(cfg config.RankingConfig) *Ranker {
	w := cfg.Weight
	switch {
	case w < 0:
		w = 0
	case w > 1:
		w = 1
	}
	return &Ranker{scorer: NewScorer(cfg), weight: w}
}

// Weight returns the share of the final score taken by lexical evidence.
func (r *Ranker) Weight() float64 {
	return r.weight
}

// Rerank returns chunks rescored as (1-w)*score + w*lexical, where lexical is
// the chunk's lexical score divided by the best one among chunks. The result
// is ordered by descending score, then ascending chunk index. chunks is not
// modified. Without lexical evidence the order and scores are kept.
func (r *Ranker) Rerank(query string, chunks []models.RetrievedChunk) []models.RetrievedChunk {
	out := make([]models.RetrievedChunk, len(chunks))
	copy(out, chunks)
	q := Analyze(query)
	if r.weight == 0 || q.Empty() || len(out) == 0 {
		return out
	}

	texts := make([]string, len(out))
	for i, c := range out {
		texts[i] = c.Text
	}
	stats := NewCorpusStats(q.Terms, texts)
	lexical := make([]float64, len(out))
	best := 0.0
	for i, c := range out {
		lexical[i] = r.scorer.Score(q, c.Chunk, stats)
		best = max(best, lexical[i])
	}
	if best == 0 {
		return out
	}
	for i := range out {
		out[i].Score = (1-r.weight)*out[i].Score + r.weight*lexical[i]/best
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Score != out[j].Score {
			return out[i].Score > out[j].Score
		}
		return out[i].Index < out[j].Index
	})
	return out
}
