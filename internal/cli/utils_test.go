package cli

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/fatih/color"

	"github.com/hyperjump/legalease/internal/models"
)

func init() {
	color.NoColor = true
}

func TestParseOutputFormat(t *testing.T) {
	cases := map[string]OutputFormat{
		"json":  OutputJSON,
		" JSON": OutputJSON,
		"text":  OutputText,
		"":      OutputText,
		"yaml":  OutputText,
	}
	for in, want := range cases {
		if got := ParseOutputFormat(in); got != want {
			t.Errorf("ParseOutputFormat(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestWriteAnalysis_JSON(t *testing.T) {
	result := &models.AnalysisResult{
		AnalysisType:      models.AnalysisClauses,
		DocumentID:        "doc_abc",
		Timestamp:         time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC),
		ContextChunksUsed: 3,
		Result: &models.ClausesPayload{ImportantClauses: []models.Clause{
			{ClauseText: "Either party may terminate.", ClauseType: "termination"},
		}},
	}
	var buf bytes.Buffer
	if err := WriteAnalysis(&buf, result, OutputJSON); err != nil {
		t.Fatalf("WriteAnalysis(json): %v", err)
	}
	var decoded map[string]interface{}
	if err := json.Unmarshal(buf.Bytes(), &decoded); err != nil {
		t.Fatalf("output is not valid JSON: %v\n%s", err, buf.String())
	}
	if decoded["document_id"] != "doc_abc" || decoded["analysis_type"] != "clauses" {
		t.Errorf("decoded = %v", decoded)
	}
}

func TestWriteAnalysis_TextPayloads(t *testing.T) {
	cases := []struct {
		name    string
		payload interface{}
		want    []string
	}{
		{
			name: "summary",
			payload: &models.SummaryPayload{
				Summary: "A services agreement.", DocumentType: "contract",
				MainPoints: []string{"Monthly fee"},
			},
			want: []string{"Type: contract", "A services agreement.", "Main points:", "• Monthly fee"},
		},
		{
			name: "clauses",
			payload: &models.ClausesPayload{ImportantClauses: []models.Clause{
				{ClauseText: "Payment within 30 days.", ClauseType: "payment", Section: "3. Fees", PageNumber: 2},
			}},
			want: []string{"1. [payment] (3. Fees, p. 2)", `"Payment within 30 days."`},
		},
		{
			name: "dates",
			payload: &models.DatesPayload{ImportantDates: []models.DateItem{
				{DateText: "1 March 2026", DateValue: "2026-03-01", DateType: "effective"},
			}},
			want: []string{"• 1 March 2026 (2026-03-01) [effective]"},
		},
		{
			name: "risks",
			payload: &models.RisksPayload{AttentionPoints: []models.RiskItem{
				{RiskText: "Unlimited liability.", RiskType: "liability", Severity: models.SeverityHigh, Implications: "Exposure"},
			}},
			want: []string{"[HIGH] liability", "Exposure"},
		},
		{
			name: "entities",
			payload: &models.EntitiesPayload{KeyEntities: &models.KeyEntities{
				Parties:   []models.Party{{Name: "Acme", Role: "Supplier"}, {Name: "Beta", Role: "customer"}},
				Locations: []models.NamedEntity{{Name: "Berlin"}},
			}},
			want: []string{"customer: Beta", "supplier: Acme", "Locations:", "• Berlin"},
		},
		{
			name: "breakdown",
			payload: &models.BreakdownPayload{DetailedBreakdown: []models.BreakdownSection{
				{SectionTitle: "Term", KeyPoints: []string{"Two years"}, Subsections: []models.BreakdownSection{{SectionTitle: "Renewal"}}},
			}},
			want: []string{"Term\n", "  • Two years", "  Renewal"},
		},
		{
			name:    "mindmap",
			payload: &models.MindmapPayload{Mindmap: &models.Mindmap{MermaidCode: "mindmap\n  root((Doc))"}},
			want:    []string{"root((Doc))"},
		},
		{
			name: "chat",
			payload: &models.ChatPayload{
				Answer:  "Within 30 days.",
				Sources: []models.ChatSource{{ChunkID: "doc_chunk_1", Text: "Invoices are payable", Page: 2}},
			},
			want: []string{"Within 30 days.", "Sources:", "doc_chunk_1 (p. 2): Invoices are payable"},
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			var buf bytes.Buffer
			result := &models.AnalysisResult{AnalysisType: models.AnalysisType(tc.name), DocumentID: "doc_x", Result: tc.payload}
			if err := WriteAnalysis(&buf, result, OutputText); err != nil {
				t.Fatalf("WriteAnalysis: %v", err)
			}
			out := buf.String()
			for _, w := range tc.want {
				if !strings.Contains(out, w) {
					t.Errorf("output missing %q:\n%s", w, out)
				}
			}
		})
	}
}

func TestWriteAnalysis_Degraded(t *testing.T) {
	result := &models.AnalysisResult{
		AnalysisType: models.AnalysisRisks,
		DocumentID:   "doc_x",
		Error:        "malformed_model_output",
		Degradation:  models.DegradationBestEffort,
		Result:       &models.FallbackPayload{RawResponse: "not json", Note: "Response was not in the expected JSON format"},
	}
	var buf bytes.Buffer
	if err := WriteAnalysis(&buf, result, OutputText); err != nil {
		t.Fatalf("WriteAnalysis: %v", err)
	}
	out := buf.String()
	for _, w := range []string{"Degraded result", "not json", "expected JSON format"} {
		if !strings.Contains(out, w) {
			t.Errorf("output missing %q:\n%s", w, out)
		}
	}
}

func TestWriteStatus(t *testing.T) {
	var buf bytes.Buffer
	if err := WriteStatus(&buf, &models.DocumentStatusInfo{DocumentID: "doc_missing"}, OutputText); err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(buf.String(), "doc_missing: not found") {
		t.Errorf("got %q", buf.String())
	}

	buf.Reset()
	info := &models.DocumentStatusInfo{
		Exists: true, DocumentID: "doc_a", Status: models.StatusReady, ChunkCount: 4,
		Statistics: &models.DocumentStats{TotalPages: 2, TotalCharacters: 3000, Sections: []string{"1. Scope"}, SectionsDetected: 1},
		Document:   &models.Document{Title: "MSA"},
	}
	if err := WriteStatus(&buf, info, OutputText); err != nil {
		t.Fatal(err)
	}
	for _, w := range []string{"doc_a ready | 4 chunks", "Title:  MSA", "Pages: 2", "Sections (1): 1. Scope"} {
		if !strings.Contains(buf.String(), w) {
			t.Errorf("output missing %q:\n%s", w, buf.String())
		}
	}
}

func TestWriteDocumentsAndStats(t *testing.T) {
	var buf bytes.Buffer
	docs := []*models.Document{{ID: "doc_a", Title: "Lease", Status: models.StatusReady, ChunkCount: 7}}
	if err := WriteDocuments(&buf, docs, 3, OutputText); err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(buf.String(), "doc_a") || !strings.Contains(buf.String(), "1 of 3 documents") {
		t.Errorf("got %q", buf.String())
	}

	buf.Reset()
	if err := WriteStats(&buf, &models.IndexStats{TotalDocuments: 2, TotalChunks: 9}, OutputJSON); err != nil {
		t.Fatal(err)
	}
	var stats models.IndexStats
	if err := json.Unmarshal(buf.Bytes(), &stats); err != nil {
		t.Fatal(err)
	}
	if stats.TotalDocuments != 2 || stats.TotalChunks != 9 {
		t.Errorf("stats = %+v", stats)
	}
}

func TestWriteIngestResult(t *testing.T) {
	var buf bytes.Buffer
	res := &models.IngestResult{DocumentID: "doc_a", ChunkCount: 5, Statistics: models.DocumentStats{TotalPages: 3}}
	if err := WriteIngestResult(&buf, res, OutputText); err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(buf.String(), "doc_a: 5 chunks, 3 pages") {
		t.Errorf("got %q", buf.String())
	}
}

func TestTruncate(t *testing.T) {
	if got := Truncate("héllo world", 5); got != "héllo..." {
		t.Errorf("Truncate = %q", got)
	}
	if got := Truncate("short", 10); got != "short" {
		t.Errorf("Truncate = %q", got)
	}
}

func TestTruncateWords(t *testing.T) {
	if got := TruncateWords("one two three four", 2); got != "one two..." {
		t.Errorf("TruncateWords = %q", got)
	}
	if got := TruncateWords("one two", 5); got != "one two" {
		t.Errorf("TruncateWords = %q", got)
	}
}
