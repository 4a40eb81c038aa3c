package e2e

import (
	"archive/zip"
	"bytes"
	"fmt"
	"html"
	"strings"

	"github.com/xuri/excelize/v2"
)

// SupportedFileExtensions is the list of file extensions used in E2E file-based tests.
// PDF is covered by internal/extract tests; no minimal PDF with extractable text is generated here.
var SupportedFileExtensions = []string{
	".txt", ".md", ".rst",
	".docx", ".odt", ".xlsx", ".html",
}

// WriteMinimalFile returns the bytes of a minimal file of the given extension
// holding text. Paragraphs are separated by blank lines.
func WriteMinimalFile(ext, text string) ([]byte, error) {
	switch ext {
	case ".txt", ".md", ".rst":
		return []byte(text), nil
	case ".docx":
		return minimalDocx(paragraphs(text))
	case ".odt":
		return minimalOdt(paragraphs(text))
	case ".xlsx":
		return minimalXlsx(paragraphs(text))
	case ".html":
		return minimalHTML(paragraphs(text)), nil
	default:
		return nil, fmt.Errorf("no fixture for extension %q", ext)
	}
}

func paragraphs(text string) []string {
	var out []string
	for _, p := range strings.Split(text, "\n\n") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func zipFile(name, body string) ([]byte, error) {
	var buf bytes.Buffer
	w := zip.NewWriter(&buf)
	fw, err := w.Create(name)
	if err != nil {
		return nil, err
	}
	if _, err := fw.Write([]byte(body)); err != nil {
		return nil, err
	}
	if err := w.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func minimalDocx(paras []string) ([]byte, error) {
	var b strings.Builder
	b.WriteString(`<w:document xmlns:w="http://schemas.openxmlformats.org/wordprocessingml/2006/main"><w:body>`)
	for _, p := range paras {
		b.WriteString(`<w:p><w:r><w:t>` + html.EscapeString(p) + `</w:t></w:r></w:p>`)
	}
	b.WriteString(`</w:body></w:document>`)
	return zipFile("word/document.xml", b.String())
}

func minimalOdt(paras []string) ([]byte, error) {
	var b strings.Builder
	b.WriteString(`<office:document-content><office:body><office:text>`)
	for _, p := range paras {
		b.WriteString(`<text:p>` + html.EscapeString(p) + `</text:p>`)
	}
	b.WriteString(`</office:text></office:body></office:document-content>`)
	return zipFile("content.xml", b.String())
}

func minimalXlsx(paras []string) ([]byte, error) {
	f := excelize.NewFile()
	defer f.Close()
	for i, p := range paras {
		if err := f.SetCellValue("Sheet1", fmt.Sprintf("A%d", i+1), p); err != nil {
			return nil, err
		}
	}
	var buf bytes.Buffer
	if _, err := f.WriteTo(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func minimalHTML(paras []string) []byte {
	var b strings.Builder
	b.WriteString("<html><head><title>fixture</title></head><body>")
	for _, p := range paras {
		b.WriteString("<p>" + html.EscapeString(p) + "</p>")
	}
	b.WriteString("</body></html>")
	return []byte(b.String())
}
