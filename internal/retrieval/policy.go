package retrieval

import (
	"github.com/hyperjump/legalease/internal/config"
	"github.com/hyperjump/legalease/internal/models"
)

// Stage is the retrieval query and depth used for one analysis type.
type Stage struct {
	Query    string
	K        int
	MinScore float64
}

// stageQueries are the fixed retrieval queries of the structured analyses.
// Chat uses the user's question instead.
var stageQueries = map[models.AnalysisType]string{
	models.AnalysisSummary:   "document overview main points key information parties purpose",
	models.AnalysisBreakdown: "section article clause paragraph structure headings",
	models.AnalysisMindmap:   "structure sections main points organization",
	models.AnalysisClauses:   "obligations liabilities rights responsibilities conditions terms",
	models.AnalysisDates:     "deadline date time period duration termination renewal payment",
	models.AnalysisRisks:     "risk liability penalty obligation restriction limitation indemnity",
	models.AnalysisEntities:  "party company person organization location address signatory",
}

// Policy maps analysis types to retrieval stages.
type Policy struct {
	topK     map[string]int
	minScore float64
}

// NewPolicy builds a policy from config. Missing top-k entries use config.DefaultTopK.
func NewPolicy(cfg config.RetrievalConfig) *Policy {
	topK := make(map[string]int, len(config.DefaultTopK))
	for t, k := range config.DefaultTopK {
		topK[t] = k
	}
	for t, k := range cfg.TopK {
		if k > 0 {
			topK[t] = k
		}
	}
	return &Policy{topK: topK, minScore: cfg.MinScore}
}

// Stage returns the stage for t. question is used only for chat, which is
// never score-filtered so a question always gets its closest chunks.
func (p *Policy) Stage(t models.AnalysisType, question string) Stage {
	if t == models.AnalysisChat {
		return Stage{Query: question, K: p.topK[string(t)]}
	}
	return Stage{Query: stageQueries[t], K: p.topK[string(t)], MinScore: p.minScore}
}
