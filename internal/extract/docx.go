package extract

import (
	"archive/zip"
	"bytes"
	"fmt"
	"regexp"
	"strings"

	"github.com/hyperjump/legalease/internal/models"
)

// docxDocumentXMLPath is the default path to the main document body inside a .docx zip.
const docxDocumentXMLPath = "word/document.xml"

// contentTypesPath is the path to [Content_Types].xml in OOXML packages.
const contentTypesPath = "[Content_Types].xml"

// docxMainContentType is the content type for the main document in DOCX files.
const docxMainContentType = "application/vnd.openxmlformats-officedocument.wordprocessingml.document.main+xml"

// partNameRe extracts PartName from Override elements in [Content_Types].xml.
var partNameRe = regexp.MustCompile(`<Override[^>]+PartName="([^"]+)"[^>]+ContentType="` + regexp.QuoteMeta(docxMainContentType) + `"`)

// partNameRe2 handles the case where ContentType appears before PartName.
var partNameRe2 = regexp.MustCompile(`<Override[^>]+ContentType="` + regexp.QuoteMeta(docxMainContentType) + `"[^>]+PartName="([^"]+)"`)

var docxLayout = xmlLayout{
	textElements: map[string]bool{"w:t": true},
	lineElements: map[string]bool{"w:p": true},
	pageBreak: func(name, tag string) bool {
		return name == "w:br" && strings.Contains(tag, `w:type="page"`)
	},
	inline: map[string]string{"w:tab": "\t", "w:br": "\n", "w:cr": "\n"},
}

// findDocxMainDocumentPath finds the main document path from [Content_Types].xml.
// Returns the path without leading slash, or empty string if not found.
func findDocxMainDocumentPath(zr *zip.Reader) string {
	content, err := readZipEntry(zr, contentTypesPath)
	if err != nil {
		return ""
	}
	// Try both attribute orders
	if matches := partNameRe.FindSubmatch(content); len(matches) > 1 {
		return strings.TrimPrefix(string(matches[1]), "/")
	}
	if matches := partNameRe2.FindSubmatch(content); len(matches) > 1 {
		return strings.TrimPrefix(string(matches[1]), "/")
	}
	return ""
}

// extractDOCX extracts text from .docx bytes. Paragraphs become lines and
// explicit page breaks start a new page. Attributes on <w:p> and <w:t> are
// ignored, which real-world documents rely on heavily.
func extractDOCX(content []byte) ([]models.Page, error) {
	zr, err := zip.NewReader(bytes.NewReader(content), int64(len(content)))
	if err != nil {
		return nil, fmt.Errorf("extract DOCX: not a zip: %w", err)
	}

	docPath := findDocxMainDocumentPath(zr)
	if docPath == "" {
		docPath = docxDocumentXMLPath
	}
	docXML, err := readZipEntry(zr, docPath)
	if err != nil {
		return nil, fmt.Errorf("extract DOCX: %w", err)
	}
	return walkXML(string(docXML), docxLayout), nil
}
