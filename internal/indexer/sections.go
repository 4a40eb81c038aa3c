package indexer

import (
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"
)

const maxSectionTitle = 100

// Section is a heading found in document text.
type Section struct {
	Title  string
	Offset int
}

var sectionPatterns = []*regexp.Regexp{
	regexp.MustCompile(`^(?i:article|section|clause|schedule|exhibit|annex|appendix)\s+[0-9IVXLCivxlc]+[A-Za-z]?\b`),
	regexp.MustCompile(`^\d+(\.\d+)*\.?\s+[A-Z][^.!?]{0,80}$`),
	regexp.MustCompile(`^(WHEREAS|NOW,?\s+THEREFORE|IN\s+WITNESS\s+WHEREOF)\b`),
	regexp.MustCompile(`^(?i:parties|recitals|definitions|interpretation|terms(\s+and\s+conditions)?|payment(\s+terms)?|term\s+and\s+termination|termination|confidentiality|indemnification|limitation\s+of\s+liability|governing\s+law|dispute\s+resolution|miscellaneous|signatures?)\s*:?$`),
}

// DetectSections scans text line by line for legal headings and returns them
// in order of appearance with rune offsets.
func DetectSections(text string) []Section {
	var sections []Section
	offset := 0
	for _, line := range strings.Split(text, "\n") {
		trimmed := strings.TrimSpace(line)
		if trimmed != "" && isHeading(trimmed) {
			sections = append(sections, Section{Title: headingTitle(trimmed), Offset: offset})
		}
		offset += utf8.RuneCountInString(line) + 1
	}
	return sections
}

func isHeading(line string) bool {
	for _, re := range sectionPatterns {
		if re.MatchString(line) {
			return true
		}
	}
	return isAllCapsHeading(line)
}

// isAllCapsHeading matches short upper-case lines such as "GOVERNING LAW".
func isAllCapsHeading(line string) bool {
	if utf8.RuneCountInString(line) < 4 || utf8.RuneCountInString(line) > 60 {
		return false
	}
	letters := 0
	for _, r := range line {
		switch {
		case unicode.IsLetter(r):
			if !unicode.IsUpper(r) {
				return false
			}
			letters++
		case unicode.IsSpace(r), unicode.IsDigit(r), strings.ContainsRune(",&-.:'()", r):
		default:
			return false
		}
	}
	return letters >= 4
}

func headingTitle(line string) string {
	line = strings.TrimRight(line, ":")
	if utf8.RuneCountInString(line) <= maxSectionTitle {
		return line
	}
	return string([]rune(line)[:maxSectionTitle])
}
