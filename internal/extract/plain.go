package extract

import (
	"strings"
	"unicode/utf8"

	"github.com/hyperjump/legalease/internal/models"
)

// extractPlain returns content as a single page. Invalid UTF-8 sequences are
// replaced with the replacement character. Form feeds split pages.
func extractPlain(content []byte) ([]models.Page, error) {
	text := string(content)
	if !utf8.ValidString(text) {
		text = strings.ToValidUTF8(text, "\uFFFD")
	}
	if !strings.Contains(text, "\f") {
		return singlePage(text), nil
	}
	parts := strings.Split(text, "\f")
	pages := make([]models.Page, len(parts))
	for i, p := range parts {
		pages[i] = models.Page{Number: i + 1, Text: p}
	}
	return pages, nil
}
