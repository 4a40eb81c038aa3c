package models

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
)

// Payload is the typed result of a structured analysis.
type Payload interface {
	Validate() error
}

// NewPayload returns an empty payload for t, or nil for unstructured types.
func NewPayload(t AnalysisType) Payload {
	switch t {
	case AnalysisSummary:
		return &SummaryPayload{}
	case AnalysisClauses:
		return &ClausesPayload{}
	case AnalysisDates:
		return &DatesPayload{}
	case AnalysisRisks:
		return &RisksPayload{}
	case AnalysisEntities:
		return &EntitiesPayload{}
	case AnalysisBreakdown:
		return &BreakdownPayload{}
	case AnalysisMindmap:
		return &MindmapPayload{}
	}
	return nil
}

// PageNumber is a page reference in model output. Models sometimes answer
// with a string ("3", "Page 3", "Unknown"); anything without a number decodes to 0.
type PageNumber int

func (p *PageNumber) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) == 0 || bytes.Equal(b, []byte("null")) {
		*p = 0
		return nil
	}
	if b[0] != '"' {
		var f float64
		if err := json.Unmarshal(b, &f); err != nil {
			return err
		}
		*p = PageNumber(f)
		return nil
	}
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return err
	}
	digits := strings.TrimFunc(s, func(r rune) bool { return r < '0' || r > '9' })
	if i := strings.IndexFunc(digits, func(r rune) bool { return r < '0' || r > '9' }); i >= 0 {
		digits = digits[:i]
	}
	n, err := strconv.Atoi(digits)
	if err != nil {
		n = 0
	}
	*p = PageNumber(n)
	return nil
}

type SummaryPayload struct {
	Summary         string   `json:"summary"`
	DocumentType    string   `json:"document_type"`
	MainPoints      []string `json:"main_points"`
	KeyStakeholders []string `json:"key_stakeholders"`
	Purpose         string   `json:"purpose"`
}

func (p *SummaryPayload) Validate() error {
	if strings.TrimSpace(p.Summary) == "" {
		return errors.New("summary is required")
	}
	return nil
}

type Clause struct {
	ClauseText   string     `json:"clause_text"`
	ClauseType   string     `json:"clause_type"`
	PageNumber   PageNumber `json:"page_number"`
	Section      string     `json:"section"`
	Significance string     `json:"significance"`
}

type ClausesPayload struct {
	ImportantClauses []Clause `json:"important_clauses"`
}

func (p *ClausesPayload) Validate() error {
	if p.ImportantClauses == nil {
		return errors.New("important_clauses is required")
	}
	for i, c := range p.ImportantClauses {
		if strings.TrimSpace(c.ClauseText) == "" {
			return fmt.Errorf("important_clauses[%d]: clause_text is required", i)
		}
	}
	return nil
}

type DateItem struct {
	DateText   string     `json:"date_text"`
	DateValue  string     `json:"date_value"`
	DateType   string     `json:"date_type"`
	PageNumber PageNumber `json:"page_number"`
	Section    string     `json:"section"`
	Context    string     `json:"context"`
}

type DatesPayload struct {
	ImportantDates []DateItem `json:"important_dates"`
}

func (p *DatesPayload) Validate() error {
	if p.ImportantDates == nil {
		return errors.New("important_dates is required")
	}
	for i, d := range p.ImportantDates {
		if strings.TrimSpace(d.DateText) == "" {
			return fmt.Errorf("important_dates[%d]: date_text is required", i)
		}
	}
	return nil
}

// Severity levels used by risk items.
const (
	SeverityHigh   = "high"
	SeverityMedium = "medium"
	SeverityLow    = "low"
)

type RiskItem struct {
	RiskText     string     `json:"risk_text"`
	RiskType     string     `json:"risk_type"`
	Severity     string     `json:"severity"`
	PageNumber   PageNumber `json:"page_number"`
	Section      string     `json:"section"`
	Implications string     `json:"implications"`
}

type RisksPayload struct {
	AttentionPoints []RiskItem `json:"attention_points"`
}

// Validate requires the list and normalizes severities to high, medium or low.
func (p *RisksPayload) Validate() error {
	if p.AttentionPoints == nil {
		return errors.New("attention_points is required")
	}
	for i := range p.AttentionPoints {
		r := &p.AttentionPoints[i]
		if strings.TrimSpace(r.RiskText) == "" {
			return fmt.Errorf("attention_points[%d]: risk_text is required", i)
		}
		switch s := strings.ToLower(strings.TrimSpace(r.Severity)); s {
		case SeverityHigh, SeverityMedium, SeverityLow:
			r.Severity = s
		case "critical":
			r.Severity = SeverityHigh
		default:
			r.Severity = SeverityMedium
		}
	}
	return nil
}

type Party struct {
	Name       string     `json:"name"`
	Role       string     `json:"role"`
	PageNumber PageNumber `json:"page_number"`
	Context    string     `json:"context"`
}

type NamedEntity struct {
	Name       string     `json:"name"`
	Type       string     `json:"type,omitempty"`
	Title      string     `json:"title,omitempty"`
	Context    string     `json:"context,omitempty"`
	PageNumber PageNumber `json:"page_number"`
}

// UnmarshalJSON also accepts a bare string, which becomes the entity name.
func (e *NamedEntity) UnmarshalJSON(b []byte) error {
	if b = bytes.TrimSpace(b); len(b) > 0 && b[0] == '"' {
		*e = NamedEntity{}
		return json.Unmarshal(b, &e.Name)
	}
	type plain NamedEntity
	return json.Unmarshal(b, (*plain)(e))
}

type KeyEntities struct {
	Parties       []Party       `json:"parties"`
	Companies     []NamedEntity `json:"companies"`
	Locations     []NamedEntity `json:"locations"`
	Signatories   []NamedEntity `json:"signatories"`
	OtherEntities []NamedEntity `json:"other_entities"`
}

type EntitiesPayload struct {
	KeyEntities *KeyEntities `json:"key_entities"`
}

func (p *EntitiesPayload) Validate() error {
	if p.KeyEntities == nil {
		return errors.New("key_entities is required")
	}
	return nil
}

// MarshalJSON adds the by_role view next to key_entities. Decoding ignores it.
func (p EntitiesPayload) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		KeyEntities *KeyEntities        `json:"key_entities"`
		ByRole      map[string][]string `json:"by_role"`
	}{p.KeyEntities, p.ByRole()})
}

// ByRole groups party names by role. Roles are lowercased; parties without a role go under "unspecified".
func (p *EntitiesPayload) ByRole() map[string][]string {
	out := make(map[string][]string)
	if p.KeyEntities == nil {
		return out
	}
	for _, party := range p.KeyEntities.Parties {
		role := strings.ToLower(strings.TrimSpace(party.Role))
		if role == "" {
			role = "unspecified"
		}
		out[role] = append(out[role], party.Name)
	}
	for _, s := range p.KeyEntities.Signatories {
		out["signatory"] = append(out["signatory"], s.Name)
	}
	for role := range out {
		sort.Strings(out[role])
	}
	return out
}

type BreakdownSection struct {
	SectionTitle     string             `json:"section_title"`
	SectionSummary   string             `json:"section_summary"`
	KeyPoints        []string           `json:"key_points"`
	ImportantClauses []string           `json:"important_clauses"`
	PageNumbers      []PageNumber       `json:"page_numbers"`
	Subsections      []BreakdownSection `json:"subsections,omitempty"`
}

// UnmarshalJSON also accepts a bare string, which becomes the section title.
func (s *BreakdownSection) UnmarshalJSON(b []byte) error {
	if b = bytes.TrimSpace(b); len(b) > 0 && b[0] == '"' {
		*s = BreakdownSection{}
		return json.Unmarshal(b, &s.SectionTitle)
	}
	type plain BreakdownSection
	return json.Unmarshal(b, (*plain)(s))
}

type BreakdownPayload struct {
	DetailedBreakdown []BreakdownSection `json:"detailed_breakdown"`
}

func (p *BreakdownPayload) Validate() error {
	if p.DetailedBreakdown == nil {
		return errors.New("detailed_breakdown is required")
	}
	return nil
}

type MindmapStructure struct {
	MainSections   []string `json:"main_sections"`
	KeyClauses     []string `json:"key_clauses"`
	ImportantDates []string `json:"important_dates"`
	Risks          []string `json:"risks"`
	Entities       []string `json:"entities"`
}

type Mindmap struct {
	MermaidCode string           `json:"mermaid_code"`
	Structure   MindmapStructure `json:"structure"`
}

type MindmapPayload struct {
	Mindmap *Mindmap `json:"mindmap"`
}

// Validate requires the mindmap object, strips markdown fences from mermaid_code
// and renders it from the structure when it is missing.
func (p *MindmapPayload) Validate() error {
	if p.Mindmap == nil {
		return errors.New("mindmap is required")
	}
	code := strings.TrimSpace(p.Mindmap.MermaidCode)
	code = strings.TrimPrefix(code, "```mermaid")
	code = strings.TrimSuffix(strings.TrimPrefix(code, "```"), "```")
	if code = strings.TrimSpace(code); code == "" {
		code = p.Mindmap.Structure.RenderMermaid("Document")
	}
	p.Mindmap.MermaidCode = code
	return nil
}

// RenderMermaid renders the structure as a mermaid mindmap rooted at root.
func (s MindmapStructure) RenderMermaid(root string) string {
	var b strings.Builder
	b.WriteString("mindmap\n")
	fmt.Fprintf(&b, "  root((%s))\n", mermaidLabel(root))
	branch := func(title string, items []string) {
		if len(items) == 0 {
			return
		}
		fmt.Fprintf(&b, "    %s\n", title)
		for _, item := range items {
			if label := mermaidLabel(item); label != "" {
				fmt.Fprintf(&b, "      %s\n", label)
			}
		}
	}
	branch("Sections", s.MainSections)
	branch("Key Clauses", s.KeyClauses)
	branch("Important Dates", s.ImportantDates)
	branch("Risks", s.Risks)
	branch("Entities", s.Entities)
	return b.String()
}

func mermaidLabel(s string) string {
	s = strings.Join(strings.Fields(s), " ")
	return strings.NewReplacer("(", "", ")", "", "[", "", "]", "", "{", "", "}", "").Replace(s)
}

// FallbackPayload holds the raw model answer when it could not be parsed.
type FallbackPayload struct {
	RawResponse string `json:"raw_response"`
	Note        string `json:"note"`
}

// ChatSource references a chunk used to answer a question.
type ChatSource struct {
	ChunkID string  `json:"chunk_id"`
	Text    string  `json:"text"`
	Page    int     `json:"page"`
	Section string  `json:"section,omitempty"`
	Score   float64 `json:"score"`
}

// ChatPayload is the answer to a question about a document.
type ChatPayload struct {
	Answer      string       `json:"answer"`
	ContextUsed int          `json:"context_used"`
	Sources     []ChatSource `json:"sources"`
}
