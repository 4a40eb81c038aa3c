package extract

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/hyperjump/legalease/internal/models"
)

const htmlBlockSelector = "p, div, li, tr, br, h1, h2, h3, h4, h5, h6, section, article, blockquote, pre, table"

// extractHTML returns the visible text of an HTML document as one page.
// Block elements end a line so headings stay detectable.
func extractHTML(content []byte) ([]models.Page, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(content))
	if err != nil {
		return nil, fmt.Errorf("parse HTML: %w", err)
	}
	doc.Find("script, style, noscript, template, head").Remove()
	doc.Find(htmlBlockSelector).Each(func(_ int, s *goquery.Selection) {
		s.AppendHtml("\n")
	})
	text := doc.Find("body").Text()
	if strings.TrimSpace(text) == "" {
		text = doc.Text()
	}
	return singlePage(text), nil
}
