package indexer

import (
	"regexp"
	"sort"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/hyperjump/legalease/internal/models"
)

var (
	pageFooterRe  = regexp.MustCompile(`(?im)^[ \t]*page[ \t]+\d+[ \t]+of[ \t]+\d+[ \t]*$`)
	blankRunRe    = regexp.MustCompile(`\n{3,}`)
	pageSeparator = "\n\n"
)

// CleanText is a document's cleaned text with page and section layout.
// All offsets are rune offsets into Text.
type CleanText struct {
	Text       string
	PageStarts []int
	PageNums   []int
	Sections   []Section
}

// PageAt returns the page number containing offset, or 1 when no pages are known.
func (t *CleanText) PageAt(offset int) int {
	i := sort.Search(len(t.PageStarts), func(i int) bool { return t.PageStarts[i] > offset })
	if i == 0 {
		return 1
	}
	return t.PageNums[i-1]
}

// PageCount returns the number of non-empty pages.
func (t *CleanText) PageCount() int {
	return len(t.PageStarts)
}

// Preprocess cleans one page of text: drops "Page N of M" footers, collapses
// horizontal whitespace inside lines, trims lines, and collapses blank runs.
func Preprocess(text string) string {
	text = strings.ReplaceAll(text, "\r\n", "\n")
	text = pageFooterRe.ReplaceAllString(text, "")
	lines := strings.Split(text, "\n")
	for i, line := range lines {
		lines[i] = collapseSpaces(line)
	}
	text = strings.Join(lines, "\n")
	text = blankRunRe.ReplaceAllString(text, "\n\n")
	return strings.TrimSpace(text)
}

func collapseSpaces(line string) string {
	var b strings.Builder
	b.Grow(len(line))
	wasSpace := false
	for _, r := range strings.TrimSpace(line) {
		if unicode.IsSpace(r) {
			if !wasSpace {
				b.WriteRune(' ')
				wasSpace = true
			}
			continue
		}
		b.WriteRune(r)
		wasSpace = false
	}
	return b.String()
}

// Clean preprocesses each page and joins non-empty pages, recording where each
// page starts and which section headings appear.
func Clean(pages []models.Page) *CleanText {
	out := &CleanText{}
	var b strings.Builder
	offset := 0
	for i, p := range pages {
		text := Preprocess(p.Text)
		if text == "" {
			continue
		}
		if b.Len() > 0 {
			b.WriteString(pageSeparator)
			offset += utf8.RuneCountInString(pageSeparator)
		}
		num := p.Number
		if num <= 0 {
			num = i + 1
		}
		out.PageStarts = append(out.PageStarts, offset)
		out.PageNums = append(out.PageNums, num)
		b.WriteString(text)
		offset += utf8.RuneCountInString(text)
	}
	out.Text = b.String()
	out.Sections = DetectSections(out.Text)
	return out
}

// Statistics summarizes the cleaned text and its chunks.
func Statistics(doc *CleanText, chunks []*models.Chunk) models.DocumentStats {
	stats := models.DocumentStats{
		TotalChunks:      len(chunks),
		TotalCharacters:  utf8.RuneCountInString(doc.Text),
		TotalPages:       doc.PageCount(),
		SectionsDetected: len(doc.Sections),
	}
	if len(chunks) > 0 {
		total := 0
		for _, ch := range chunks {
			total += ch.EndOffset - ch.StartOffset
		}
		stats.AvgChunkSize = float64(total) / float64(len(chunks))
	}
	for _, s := range doc.Sections {
		stats.Sections = append(stats.Sections, s.Title)
	}
	return stats
}
