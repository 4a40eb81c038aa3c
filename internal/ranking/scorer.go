package ranking

import (
	"math"
	"strings"

	"github.com/hyperjump/legalease/internal/config"
	"github.com/hyperjump/legalease/internal/models"
)

const (
	defaultPhraseMatchScore        = 120
	defaultSectionMatchScore       = 110
	defaultAllTermsInOrderScore    = 90
	defaultScatteredTermsScore     = 70
	defaultMaxTFIDFMultiplier      = 2.0
	defaultPositionBoostMultiplier = 1.3

	// Matches within this share of a chunk's text get the position boost.
	positionBoostShare = 0.2
	minBoostPrefix     = 100
)

// Scorer computes a lexical relevance score for one chunk.
type Scorer struct {
	phraseMatch     float64
	sectionMatch    float64
	allTermsInOrder float64
	scatteredTerms  float64
	maxTFIDF        float64
	positionBoost   float64
}

// NewScorer creates a Scorer; zero values in cfg take the defaults.
func NewScorer(cfg config.RankingConfig) *Scorer {
	or := func(v, def float64) float64 {
		if v > 0 {
			return v
		}
		return def
	}
	return &Scorer{
		phraseMatch:     or(cfg.PhraseMatchScore, defaultPhraseMatchScore),
		sectionMatch:    or(cfg.SectionMatchScore, defaultSectionMatchScore),
		allTermsInOrder: or(cfg.AllTermsInOrderScore, defaultAllTermsInOrderScore),
		scatteredTerms:  or(cfg.ScatteredTermsScore, defaultScatteredTermsScore),
		maxTFIDF:        or(cfg.MaxTFIDFMultiplier, defaultMaxTFIDFMultiplier),
		positionBoost:   or(cfg.PositionBoostMultiplier, defaultPositionBoostMultiplier),
	}
}

// Score returns the best of the phrase, section heading and term scores,
// boosted when a match occurs near the start of the chunk.
func (s *Scorer) Score(q *Query, chunk *models.Chunk, stats *CorpusStats) float64 {
	if q == nil || chunk == nil || chunk.Text == "" {
		return 0
	}
	score := 0.0
	for _, phrase := range q.Phrases {
		score = max(score, s.phraseScore(phrase, chunk.Text))
	}
	score = max(score, s.sectionScore(q.Terms, chunk.Section))
	score = max(score, s.termScore(q.Terms, chunk.Text, stats))
	if score > 0 && s.matchesEarly(q, chunk.Text) {
		score *= s.positionBoost
	}
	return score
}

func (s *Scorer) phraseScore(phrase, text string) float64 {
	count := strings.Count(strings.Join(strings.Fields(strings.ToLower(text)), " "), phrase)
	if count == 0 {
		return 0
	}
	return s.phraseMatch + math.Min(float64(count-1)*5, 20)
}

// sectionScore rewards chunks whose section heading names the query terms.
func (s *Scorer) sectionScore(terms []string, section string) float64 {
	if section == "" || len(terms) == 0 {
		return 0
	}
	n := CountMatchingTerms(terms, section)
	return s.sectionMatch * float64(n) / float64(len(terms))
}

func (s *Scorer) termScore(terms []string, text string, stats *CorpusStats) float64 {
	if len(terms) == 0 {
		return 0
	}
	n := CountMatchingTerms(terms, text)
	if n == 0 {
		return 0
	}
	var score float64
	switch {
	case n == len(terms) && TermsInOrder(terms, text):
		score = s.allTermsInOrder
	default:
		score = s.scatteredTerms * float64(n) / float64(len(terms))
	}
	return score * s.tfidfMultiplier(terms, text, stats)
}

// tfidfMultiplier scales the term score by the average TF-IDF of the
// matching terms, capped at maxTFIDF.
func (s *Scorer) tfidfMultiplier(terms []string, text string, stats *CorpusStats) float64 {
	lower := strings.ToLower(text)
	words := len(strings.Fields(lower))
	if stats == nil || words == 0 {
		return 1
	}
	total, matching := 0.0, 0
	for _, term := range terms {
		count := strings.Count(lower, term)
		if count == 0 {
			continue
		}
		matching++
		total += float64(count) / float64(words) * stats.IDF(term)
	}
	if matching == 0 {
		return 1
	}
	return math.Min(1+total/float64(matching)*10, s.maxTFIDF)
}

func (s *Scorer) matchesEarly(q *Query, text string) bool {
	lower := strings.ToLower(text)
	limit := max(int(float64(len(lower))*positionBoostShare), minBoostPrefix)
	if len(lower) > limit {
		lower = lower[:limit]
	}
	for _, phrase := range q.Phrases {
		if strings.Contains(lower, phrase) {
			return true
		}
	}
	for _, term := range q.Terms {
		if strings.Contains(lower, term) {
			return true
		}
	}
	return false
}
