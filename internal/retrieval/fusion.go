package retrieval

import (
	"sort"

	"github.com/hyperjump/legalease/internal/keyword"
	"github.com/hyperjump/legalease/internal/models"
	"github.com/hyperjump/legalease/internal/vector"
)

// NormalizeKeywordScores normalizes keyword scores to [0,1] by max, keyed by chunk ID.
func NormalizeKeywordScores(results []*keyword.KeywordResult) map[string]float64 {
	normalized := make(map[string]float64, len(results))
	if len(results) == 0 {
		return normalized
	}
	maxScore := results[0].Score
	for _, r := range results {
		if r.Score > maxScore {
			maxScore = r.Score
		}
	}
	for _, r := range results {
		if maxScore > 0 {
			normalized[r.Chunk.ID] = r.Score / maxScore
		} else {
			normalized[r.Chunk.ID] = 0
		}
	}
	return normalized
}

// Fuse merges semantic and keyword hits by chunk into
// (1-keywordWeight)*semantic + keywordWeight*keyword and sorts them by
// descending score, then ascending chunk index. With a zero weight the
// semantic scores are returned unchanged.
func Fuse(semantic []*vector.VectorResult, keywordHits []*keyword.KeywordResult, keywordWeight float64) []models.RetrievedChunk {
	type fused struct {
		chunk    *models.Chunk
		semantic float64
		keyword  float64
	}
	byID := make(map[string]*fused, len(semantic)+len(keywordHits))
	for _, r := range semantic {
		byID[r.Chunk.ID] = &fused{chunk: r.Chunk, semantic: r.Score}
	}
	if keywordWeight > 0 {
		keywordScores := NormalizeKeywordScores(keywordHits)
		for _, r := range keywordHits {
			if f, ok := byID[r.Chunk.ID]; ok {
				f.keyword = keywordScores[r.Chunk.ID]
			} else {
				byID[r.Chunk.ID] = &fused{chunk: r.Chunk, keyword: keywordScores[r.Chunk.ID]}
			}
		}
	}

	results := make([]models.RetrievedChunk, 0, len(byID))
	for _, f := range byID {
		score := f.semantic
		if keywordWeight > 0 {
			score = (1-keywordWeight)*f.semantic + keywordWeight*f.keyword
		}
		results = append(results, models.RetrievedChunk{Chunk: f.chunk, Score: score})
	}
	sort.Slice(results, func(i, j int) bool {
		if results[i].Score != results[j].Score {
			return results[i].Score > results[j].Score
		}
		return results[i].Index < results[j].Index
	})
	return results
}
