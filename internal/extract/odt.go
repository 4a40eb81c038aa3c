package extract

import (
	"archive/zip"
	"bytes"
	"fmt"

	"github.com/hyperjump/legalease/internal/models"
)

// odtContentPath is the path to the main content inside an OpenDocument zip.
const odtContentPath = "content.xml"

var odtLayout = xmlLayout{
	textElements: map[string]bool{"text:p": true, "text:h": true},
	lineElements: map[string]bool{"text:p": true, "text:h": true},
	pageBreak: func(name, _ string) bool {
		return name == "text:soft-page-break"
	},
	inline: map[string]string{"text:tab": "\t", "text:line-break": "\n", "text:s": " "},
}

// extractODT extracts text from OpenDocument text (.odt) bytes. Headings and
// paragraphs become lines; soft page breaks recorded by the editor split pages.
func extractODT(content []byte) ([]models.Page, error) {
	zr, err := zip.NewReader(bytes.NewReader(content), int64(len(content)))
	if err != nil {
		return nil, fmt.Errorf("extract ODT: not a zip: %w", err)
	}
	contentXML, err := readZipEntry(zr, odtContentPath)
	if err != nil {
		return nil, fmt.Errorf("extract ODT: %w", err)
	}
	return walkXML(string(contentXML), odtLayout), nil
}
