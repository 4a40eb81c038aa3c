// Package cli renders legalease results for the terminal.
package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/fatih/color"

	"github.com/hyperjump/legalease/internal/models"
)

// OutputFormat is the format for command output.
type OutputFormat string

const (
	// OutputText is human-readable text (default).
	OutputText OutputFormat = "text"
	// OutputJSON is structured JSON for machine consumption.
	OutputJSON OutputFormat = "json"
)

// ParseOutputFormat returns the format named by s; anything but "json" is text.
func ParseOutputFormat(s string) OutputFormat {
	if strings.EqualFold(strings.TrimSpace(s), string(OutputJSON)) {
		return OutputJSON
	}
	return OutputText
}

var (
	heading = color.New(color.FgCyan, color.Bold)
	label   = color.New(color.Bold)
	muted   = color.New(color.FgHiBlack)
	warn    = color.New(color.FgYellow)
)

const rule = "─────────────────────────────────────────────────────────"

func writeJSON(w io.Writer, v interface{}) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// WriteAnalysis writes an analysis or chat result.
func WriteAnalysis(w io.Writer, result *models.AnalysisResult, format OutputFormat) error {
	if format == OutputJSON {
		return writeJSON(w, result)
	}
	heading.Fprintf(w, "\n%s analysis of %s\n", strings.ToUpper(string(result.AnalysisType)), result.DocumentID)
	muted.Fprintf(w, "%d context chunks | %s\n", result.ContextChunksUsed, result.Timestamp.Format("2006-01-02 15:04:05 MST"))
	if result.Degraded() {
		warn.Fprintf(w, "Degraded result (%s): the model answer could not be parsed.\n", result.Error)
	}
	fmt.Fprintln(w, rule)

	switch p := result.Result.(type) {
	case *models.SummaryPayload:
		writeSummary(w, p)
	case *models.ClausesPayload:
		for i, c := range p.ImportantClauses {
			label.Fprintf(w, "%d. [%s] %s\n", i+1, orUnknown(c.ClauseType), location(c.Section, c.PageNumber))
			fmt.Fprintf(w, "   %q\n", c.ClauseText)
			if c.Significance != "" {
				muted.Fprintf(w, "   %s\n", c.Significance)
			}
		}
	case *models.DatesPayload:
		for _, d := range p.ImportantDates {
			label.Fprintf(w, "• %s", d.DateText)
			if d.DateValue != "" {
				fmt.Fprintf(w, " (%s)", d.DateValue)
			}
			fmt.Fprintf(w, " [%s] %s\n", orUnknown(d.DateType), location(d.Section, d.PageNumber))
		}
	case *models.RisksPayload:
		for _, r := range p.AttentionPoints {
			SeverityColor(r.Severity).Fprintf(w, "[%s]", strings.ToUpper(r.Severity))
			fmt.Fprintf(w, " %s %s\n", orUnknown(r.RiskType), location(r.Section, r.PageNumber))
			fmt.Fprintf(w, "   %q\n", r.RiskText)
			if r.Implications != "" {
				muted.Fprintf(w, "   %s\n", r.Implications)
			}
		}
	case *models.EntitiesPayload:
		writeEntities(w, p)
	case *models.BreakdownPayload:
		writeBreakdown(w, p.DetailedBreakdown, 0)
	case *models.MindmapPayload:
		if p.Mindmap != nil {
			fmt.Fprintln(w, p.Mindmap.MermaidCode)
		}
	case *models.ChatPayload:
		fmt.Fprintln(w, p.Answer)
		if len(p.Sources) > 0 {
			label.Fprintln(w, "\nSources:")
			for _, s := range p.Sources {
				muted.Fprintf(w, "  %s %s: %s\n", s.ChunkID, location(s.Section, models.PageNumber(s.Page)), s.Text)
			}
		}
	case *models.FallbackPayload:
		muted.Fprintln(w, p.Note)
		fmt.Fprintln(w, p.RawResponse)
	default:
		return writeJSON(w, result.Result)
	}
	return nil
}

func writeSummary(w io.Writer, p *models.SummaryPayload) {
	if p.DocumentType != "" {
		label.Fprintf(w, "Type: ")
		fmt.Fprintln(w, p.DocumentType)
	}
	fmt.Fprintf(w, "\n%s\n", p.Summary)
	if p.Purpose != "" {
		label.Fprintf(w, "\nPurpose: ")
		fmt.Fprintln(w, p.Purpose)
	}
	writeList(w, "Main points", p.MainPoints)
	writeList(w, "Stakeholders", p.KeyStakeholders)
}

func writeEntities(w io.Writer, p *models.EntitiesPayload) {
	roles := p.ByRole()
	names := make([]string, 0, len(roles))
	for role := range roles {
		names = append(names, role)
	}
	sort.Strings(names)
	for _, role := range names {
		label.Fprintf(w, "%s: ", role)
		fmt.Fprintln(w, strings.Join(roles[role], ", "))
	}
	if p.KeyEntities == nil {
		return
	}
	writeList(w, "Companies", entityNames(p.KeyEntities.Companies))
	writeList(w, "Locations", entityNames(p.KeyEntities.Locations))
	writeList(w, "Other", entityNames(p.KeyEntities.OtherEntities))
}

func entityNames(entities []models.NamedEntity) []string {
	out := make([]string, 0, len(entities))
	for _, e := range entities {
		out = append(out, e.Name)
	}
	return out
}

func writeBreakdown(w io.Writer, sections []models.BreakdownSection, depth int) {
	indent := strings.Repeat("  ", depth)
	for _, s := range sections {
		label.Fprintf(w, "%s%s\n", indent, s.SectionTitle)
		if s.SectionSummary != "" {
			fmt.Fprintf(w, "%s  %s\n", indent, s.SectionSummary)
		}
		for _, kp := range s.KeyPoints {
			fmt.Fprintf(w, "%s  • %s\n", indent, kp)
		}
		writeBreakdown(w, s.Subsections, depth+1)
	}
}

func writeList(w io.Writer, title string, items []string) {
	if len(items) == 0 {
		return
	}
	label.Fprintf(w, "\n%s:\n", title)
	for _, item := range items {
		fmt.Fprintf(w, "  • %s\n", item)
	}
}

func location(section string, page models.PageNumber) string {
	parts := make([]string, 0, 2)
	if section != "" {
		parts = append(parts, section)
	}
	if page > 0 {
		parts = append(parts, fmt.Sprintf("p. %d", page))
	}
	if len(parts) == 0 {
		return ""
	}
	return "(" + strings.Join(parts, ", ") + ")"
}

func orUnknown(s string) string {
	if s == "" {
		return "unspecified"
	}
	return s
}

// SeverityColor returns the color used for a risk severity.
func SeverityColor(severity string) *color.Color {
	switch severity {
	case models.SeverityHigh:
		return color.New(color.FgRed, color.Bold)
	case models.SeverityLow:
		return color.New(color.FgGreen)
	}
	return color.New(color.FgYellow)
}

// StatusColor returns the color used for a document status.
func StatusColor(status models.DocumentStatus) *color.Color {
	switch status {
	case models.StatusReady:
		return color.New(color.FgGreen)
	case models.StatusFailed:
		return color.New(color.FgRed)
	}
	return color.New(color.FgYellow)
}

// WriteIngestResult writes the outcome of one ingest.
func WriteIngestResult(w io.Writer, res *models.IngestResult, format OutputFormat) error {
	if format == OutputJSON {
		return writeJSON(w, res)
	}
	color.New(color.FgGreen).Fprintf(w, "✓ %s", res.DocumentID)
	fmt.Fprintf(w, ": %d chunks, %d pages, %d characters, %d sections\n",
		res.ChunkCount, res.Statistics.TotalPages, res.Statistics.TotalCharacters, res.Statistics.SectionsDetected)
	return nil
}

// WriteStatus writes a document status report.
func WriteStatus(w io.Writer, info *models.DocumentStatusInfo, format OutputFormat) error {
	if format == OutputJSON {
		return writeJSON(w, info)
	}
	if !info.Exists {
		warn.Fprintf(w, "%s: not found\n", info.DocumentID)
		return nil
	}
	label.Fprintf(w, "%s ", info.DocumentID)
	StatusColor(info.Status).Fprintf(w, "%s", info.Status)
	fmt.Fprintf(w, " | %d chunks\n", info.ChunkCount)
	if doc := info.Document; doc != nil {
		if doc.Title != "" {
			fmt.Fprintf(w, "Title:  %s\n", doc.Title)
		}
		if doc.Source != "" {
			fmt.Fprintf(w, "Source: %s\n", doc.Source)
		}
		if doc.Error != "" {
			color.New(color.FgRed).Fprintf(w, "Error:  %s\n", doc.Error)
		}
	}
	if st := info.Statistics; st != nil {
		fmt.Fprintf(w, "Pages: %d | Characters: %d | Avg chunk: %.0f\n", st.TotalPages, st.TotalCharacters, st.AvgChunkSize)
		if len(st.Sections) > 0 {
			fmt.Fprintf(w, "Sections (%d): %s\n", st.SectionsDetected, TruncateWords(strings.Join(st.Sections, "; "), 40))
		}
	}
	return nil
}

// WriteStats writes index totals.
func WriteStats(w io.Writer, stats *models.IndexStats, format OutputFormat) error {
	if format == OutputJSON {
		return writeJSON(w, stats)
	}
	fmt.Fprintf(w, "Documents: %d\nChunks:    %d\nKeyword:   %d\n", stats.TotalDocuments, stats.TotalChunks, stats.KeywordChunks)
	return nil
}

// WriteDocuments writes a document listing.
func WriteDocuments(w io.Writer, docs []*models.Document, total int64, format OutputFormat) error {
	if format == OutputJSON {
		return writeJSON(w, map[string]interface{}{"documents": docs, "total": total})
	}
	for _, d := range docs {
		StatusColor(d.Status).Fprintf(w, "%-8s", d.Status)
		fmt.Fprintf(w, " %-24s %5d chunks  %s\n", d.ID, d.ChunkCount, Truncate(d.Title, 60))
	}
	muted.Fprintf(w, "%d of %d documents\n", len(docs), total)
	return nil
}

// Truncate truncates s to maxLen runes and appends "..." if truncated.
func Truncate(s string, maxLen int) string {
	r := []rune(s)
	if maxLen <= 0 || len(r) <= maxLen {
		return s
	}
	return string(r[:maxLen]) + "..."
}

// TruncateWords returns up to maxWords from the space-separated string.
func TruncateWords(s string, maxWords int) string {
	words := strings.Fields(s)
	if len(words) <= maxWords {
		return s
	}
	return strings.Join(words[:maxWords], " ") + "..."
}
