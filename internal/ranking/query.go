// Package ranking re-scores retrieved chunks by lexical evidence: exact
// phrases, section headings and TF-IDF weighted term matches.
package ranking

import (
	"math"
	"regexp"
	"strings"

	"github.com/hyperjump/legalease/internal/embedding"
)

// Query is the analyzed form of a retrieval query.
type Query struct {
	// Original is the query as given.
	Original string
	// Terms are stemmed content terms with stop words removed.
	Terms []string
	// Phrases are the lowercased contents of double-quoted spans.
	Phrases []string
}

// Single quotes are left alone: apostrophes are common in legal text.
var phraseRegex = regexp.MustCompile(`"([^"]+)"`)

// Analyze extracts phrases and terms from query. Phrase words also count as terms.
func Analyze(query string) *Query {
	q := &Query{Original: query}
	for _, m := range phraseRegex.FindAllStringSubmatch(query, -1) {
		if phrase := strings.Join(strings.Fields(strings.ToLower(m[1])), " "); phrase != "" {
			q.Phrases = append(q.Phrases, phrase)
		}
	}
	seen := make(map[string]bool)
	for _, term := range embedding.Terms(query) {
		if !seen[term] {
			seen[term] = true
			q.Terms = append(q.Terms, term)
		}
	}
	return q
}

// Empty reports whether the query has nothing to match.
func (q *Query) Empty() bool {
	return len(q.Terms) == 0 && len(q.Phrases) == 0
}

// CorpusStats holds document frequencies over a set of chunks.
type CorpusStats struct {
	TotalDocs      int
	DocFrequencies map[string]int
}

// NewCorpusStats counts, for each term, how many of texts contain it.
func NewCorpusStats(terms []string, texts []string) *CorpusStats {
	stats := &CorpusStats{TotalDocs: len(texts), DocFrequencies: make(map[string]int, len(terms))}
	for _, text := range texts {
		lower := strings.ToLower(text)
		for _, term := range terms {
			if strings.Contains(lower, term) {
				stats.DocFrequencies[term]++
			}
		}
	}
	return stats
}

// IDF is 1 + ln(N/df); rarer terms weigh more. Unseen terms get the rarest weight.
func (c *CorpusStats) IDF(term string) float64 {
	if c == nil || c.TotalDocs == 0 {
		return 1
	}
	df := c.DocFrequencies[term]
	if df == 0 {
		df = 1
	}
	return 1 + math.Log(float64(c.TotalDocs)/float64(df))
}

// CountMatchingTerms counts how many terms occur in text.
func CountMatchingTerms(terms []string, text string) int {
	lower := strings.ToLower(text)
	n := 0
	for _, term := range terms {
		if strings.Contains(lower, term) {
			n++
		}
	}
	return n
}

// TermsInOrder reports whether every term occurs in text in the given order.
func TermsInOrder(terms []string, text string) bool {
	if len(terms) == 0 {
		return false
	}
	lower := strings.ToLower(text)
	pos := 0
	for _, term := range terms {
		i := strings.Index(lower[pos:], term)
		if i == -1 {
			return false
		}
		pos += i + len(term)
	}
	return true
}
