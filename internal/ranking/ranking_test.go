package ranking

import (
	"math"
	"reflect"
	"strings"
	"testing"

	"github.com/hyperjump/legalease/internal/config"
	"github.com/hyperjump/legalease/internal/models"
)

func TestAnalyze(t *testing.T) {
	tests := []struct {
		name        string
		query       string
		wantTerms   []string
		wantPhrases []string
	}{
		{
			name:        "quoted phrase and stop words",
			query:       `"Notice  Period" for the tenant`,
			wantTerms:   []string{"notice", "period", "tenant"},
			wantPhrases: []string{"notice period"},
		},
		{
			name:      "terms sharing a stem are deduplicated",
			query:     "terminate termination",
			wantTerms: []string{"termin"},
		},
		{
			name:      "apostrophes are not phrase delimiters",
			query:     "landlord's obligations",
			wantTerms: []string{"landlo", "obliga"},
		},
		{
			name:  "only stop words",
			query: "what is the",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			q := Analyze(tt.query)
			if q.Original != tt.query {
				t.Errorf("Original = %q", q.Original)
			}
			if !reflect.DeepEqual(q.Terms, tt.wantTerms) && (len(q.Terms) != 0 || len(tt.wantTerms) != 0) {
				t.Errorf("Terms = %v, want %v", q.Terms, tt.wantTerms)
			}
			if !reflect.DeepEqual(q.Phrases, tt.wantPhrases) && (len(q.Phrases) != 0 || len(tt.wantPhrases) != 0) {
				t.Errorf("Phrases = %v, want %v", q.Phrases, tt.wantPhrases)
			}
			if got := q.Empty(); got != (len(tt.wantTerms) == 0 && len(tt.wantPhrases) == 0) {
				t.Errorf("Empty() = %v", got)
			}
		})
	}
}

func TestCorpusStats_IDF(t *testing.T) {
	stats := NewCorpusStats([]string{"rent", "notice"}, []string{
		"Rent is due monthly.",
		"Notice must be given in writing.",
		"Late rent requires notice.",
	})
	if stats.TotalDocs != 3 || stats.DocFrequencies["rent"] != 2 || stats.DocFrequencies["notice"] != 2 {
		t.Fatalf("stats = %+v", stats)
	}
	if got, want := stats.IDF("rent"), 1+math.Log(1.5); math.Abs(got-want) > 1e-9 {
		t.Errorf("IDF(rent) = %v, want %v", got, want)
	}
	if got, want := stats.IDF("unseen"), 1+math.Log(3); math.Abs(got-want) > 1e-9 {
		t.Errorf("IDF(unseen) = %v, want %v", got, want)
	}
	var empty *CorpusStats
	if got := empty.IDF("rent"); got != 1 {
		t.Errorf("nil IDF = %v, want 1", got)
	}
}

func TestTermsInOrder(t *testing.T) {
	terms := []string{"termin", "clause"}
	if !TermsInOrder(terms, "This Termination Clause survives.") {
		t.Error("expected in order")
	}
	if TermsInOrder(terms, "The clause on termination.") {
		t.Error("expected out of order")
	}
	if TermsInOrder(nil, "anything") {
		t.Error("no terms should never be in order")
	}
	if got := CountMatchingTerms(terms, "The clause on renewal."); got != 1 {
		t.Errorf("CountMatchingTerms = %d, want 1", got)
	}
}

func TestScorer_Score(t *testing.T) {
	scorer := NewScorer(config.RankingConfig{})

	t.Run("phrase beats scattered terms", func(t *testing.T) {
		q := Analyze(`"termination clause"`)
		phrase := scorer.Score(q, &models.Chunk{Text: "This termination clause survives assignment."}, nil)
		scattered := scorer.Score(q, &models.Chunk{Text: "The clause on renewal is separate from any termination."}, nil)
		if phrase <= scattered {
			t.Errorf("phrase score %v should exceed scattered score %v", phrase, scattered)
		}
		if want := defaultPhraseMatchScore * defaultPositionBoostMultiplier; math.Abs(phrase-want) > 1e-9 {
			t.Errorf("phrase score = %v, want %v", phrase, want)
		}
	})

	t.Run("section heading match", func(t *testing.T) {
		q := Analyze("confidentiality")
		got := scorer.Score(q, &models.Chunk{Section: "Confidentiality", Text: "The Recipient keeps secrets."}, nil)
		if got != defaultSectionMatchScore {
			t.Errorf("section score = %v, want %v", got, defaultSectionMatchScore)
		}
	})

	t.Run("early matches are boosted", func(t *testing.T) {
		q := Analyze("indemnity")
		filler := strings.Repeat("lorem ipsum ", 30)
		early := scorer.Score(q, &models.Chunk{Text: "Indemnity. " + filler}, nil)
		late := scorer.Score(q, &models.Chunk{Text: filler + "indemnity."}, nil)
		if late != defaultAllTermsInOrderScore {
			t.Errorf("late score = %v, want %v", late, defaultAllTermsInOrderScore)
		}
		if early <= late {
			t.Errorf("early score %v should exceed late score %v", early, late)
		}
	})

	t.Run("no match", func(t *testing.T) {
		q := Analyze("arbitration")
		if got := scorer.Score(q, &models.Chunk{Text: "Rent is due monthly."}, nil); got != 0 {
			t.Errorf("score = %v, want 0", got)
		}
		if got := scorer.Score(q, nil, nil); got != 0 {
			t.Errorf("nil chunk score = %v, want 0", got)
		}
	})

	t.Run("configured scores override defaults", func(t *testing.T) {
		custom := NewScorer(config.RankingConfig{SectionMatchScore: 50})
		got := custom.Score(Analyze("confidentiality"), &models.Chunk{Section: "Confidentiality", Text: "Secrets."}, nil)
		if got != 50 {
			t.Errorf("section score = %v, want 50", got)
		}
	})
}

func retrieved(id string, index int, text string, score float64) models.RetrievedChunk {
	return models.RetrievedChunk{
		Chunk: &models.Chunk{ID: id, Index: index, Text: text},
		Score: score,
	}
}

func chunkIDs(chunks []models.RetrievedChunk) []string {
	out := make([]string, len(chunks))
	for i, c := range chunks {
		out[i] = c.ID
	}
	return out
}

func TestRanker_Rerank(t *testing.T) {
	input := []models.RetrievedChunk{
		retrieved("payment", 0, "Payment is due monthly.", 0.9),
		retrieved("termination", 1, "Either party may terminate on notice.", 0.8),
	}

	t.Run("lexical evidence promotes a chunk", func(t *testing.T) {
		got := NewRanker(config.RankingConfig{Weight: 0.5}).Rerank("terminate", input)
		if ids := chunkIDs(got); !reflect.DeepEqual(ids, []string{"termination", "payment"}) {
			t.Fatalf("order = %v", ids)
		}
		if math.Abs(got[0].Score-0.9) > 1e-9 || math.Abs(got[1].Score-0.45) > 1e-9 {
			t.Errorf("scores = %v, %v; want 0.9, 0.45", got[0].Score, got[1].Score)
		}
		if input[0].Score != 0.9 || input[1].Score != 0.8 || input[0].ID != "payment" {
			t.Error("input was modified")
		}
	})

	t.Run("ties broken by chunk index", func(t *testing.T) {
		tied := []models.RetrievedChunk{
			retrieved("later", 3, "Termination requires notice.", 0.5),
			retrieved("earlier", 1, "Termination requires notice.", 0.5),
		}
		got := NewRanker(config.RankingConfig{Weight: 1}).Rerank("termination", tied)
		if ids := chunkIDs(got); !reflect.DeepEqual(ids, []string{"earlier", "later"}) {
			t.Errorf("order = %v", ids)
		}
	})

	unchanged := []struct {
		name   string
		weight float64
		query  string
	}{
		{name: "zero weight", weight: 0, query: "terminate"},
		{name: "no lexical match", weight: 0.5, query: "arbitration"},
		{name: "stop words only", weight: 0.5, query: "what is the"},
	}
	for _, tt := range unchanged {
		t.Run(tt.name, func(t *testing.T) {
			got := NewRanker(config.RankingConfig{Weight: tt.weight}).Rerank(tt.query, input)
			if ids := chunkIDs(got); !reflect.DeepEqual(ids, []string{"payment", "termination"}) {
				t.Errorf("order = %v", ids)
			}
			if got[0].Score != 0.9 || got[1].Score != 0.8 {
				t.Errorf("scores changed: %v, %v", got[0].Score, got[1].Score)
			}
		})
	}
}

func TestNewRanker_clampsWeight(t *testing.T) {
	if w := NewRanker(config.RankingConfig{Weight: 3}).Weight(); w != 1 {
		t.Errorf("Weight() = %v, want 1", w)
	}
	if w := NewRanker(config.RankingConfig{Weight: -1}).Weight(); w != 0 {
		t.Errorf("Weight() = %v, want 0", w)
	}
}
