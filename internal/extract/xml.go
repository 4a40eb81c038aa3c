package extract

import (
	"archive/zip"
	"bytes"
	"fmt"
	"html"
	"regexp"
	"strings"

	"github.com/hyperjump/legalease/internal/models"
)

var xmlTokenRe = regexp.MustCompile(`<[^>]*>|[^<]+`)

// xmlLayout describes how a word-processing XML body maps to text.
type xmlLayout struct {
	// textElements hold character data that belongs to the document text.
	textElements map[string]bool
	// lineElements end a line when closed.
	lineElements map[string]bool
	// pageBreak reports whether tag starts a new page.
	pageBreak func(name, tag string) bool
	// inline maps empty elements to the text they stand for (tabs, line breaks).
	inline map[string]string
}

// walkXML splits an XML document body into pages of text according to layout.
func walkXML(doc string, layout xmlLayout) []models.Page {
	var pages []models.Page
	var b strings.Builder
	flush := func() {
		pages = append(pages, models.Page{Number: len(pages) + 1, Text: strings.TrimSpace(b.String())})
		b.Reset()
	}
	depth := 0
	for _, tok := range xmlTokenRe.FindAllString(doc, -1) {
		if !strings.HasPrefix(tok, "<") {
			if depth > 0 {
				b.WriteString(html.UnescapeString(tok))
			}
			continue
		}
		if strings.HasPrefix(tok, "<?") || strings.HasPrefix(tok, "<!") {
			continue
		}
		closing := strings.HasPrefix(tok, "</")
		selfClosing := strings.HasSuffix(tok, "/>")
		name := xmlTagName(tok)
		switch {
		case layout.textElements[name] && closing:
			if depth > 0 {
				depth--
			}
		case layout.textElements[name] && !selfClosing:
			depth++
		}
		if closing && layout.lineElements[name] {
			b.WriteByte('\n')
		}
		if !closing && layout.pageBreak != nil && layout.pageBreak(name, tok) {
			flush()
			continue
		}
		if s, ok := layout.inline[name]; ok && !closing {
			b.WriteString(s)
		}
	}
	flush()
	return pages
}

func xmlTagName(tok string) string {
	name := strings.TrimLeft(tok, "</")
	if i := strings.IndexAny(name, " \t\r\n/>"); i >= 0 {
		name = name[:i]
	}
	return name
}

// readZipEntry returns the contents of the named file inside zr.
func readZipEntry(zr *zip.Reader, name string) ([]byte, error) {
	for _, f := range zr.File {
		if f.Name != name {
			continue
		}
		rc, err := f.Open()
		if err != nil {
			return nil, fmt.Errorf("open %s: %w", f.Name, err)
		}
		defer rc.Close()
		var buf bytes.Buffer
		if _, err := buf.ReadFrom(rc); err != nil {
			return nil, fmt.Errorf("read %s: %w", f.Name, err)
		}
		return buf.Bytes(), nil
	}
	return nil, fmt.Errorf("%s not found", name)
}
