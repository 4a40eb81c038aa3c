// Package extract provides page-aware text extraction from document formats.
package extract

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/hyperjump/legalease/internal/apperr"
	"github.com/hyperjump/legalease/internal/models"
)

// Extractor extracts text pages from document files.
type Extractor struct{}

// NewExtractor returns a new Extractor.
func NewExtractor() *Extractor {
	return &Extractor{}
}

type extractFunc func(content []byte) ([]models.Page, error)

var formats = map[string]extractFunc{
	".pdf":  extractPDF,
	".docx": extractDOCX,
	".odt":  extractODT,
	".xlsx": extractExcel,
	".html": extractHTML,
	".htm":  extractHTML,
	".txt":  extractPlain,
	".md":   extractPlain,
	".rst":  extractPlain,
	"":      extractPlain,
}

// Scanned documents need OCR, which is not supported.
var imageExts = map[string]bool{
	".png": true, ".jpg": true, ".jpeg": true, ".tif": true, ".tiff": true, ".gif": true, ".bmp": true, ".webp": true,
}

// SupportedExtensions returns the extensions ExtractBytes accepts, sorted.
func SupportedExtensions() []string {
	exts := make([]string, 0, len(formats))
	for ext := range formats {
		if ext != "" {
			exts = append(exts, ext)
		}
	}
	sort.Strings(exts)
	return exts
}

// Extract reads the file at path and returns its pages.
func (e *Extractor) Extract(path string) ([]models.Page, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read file: %w", err)
	}
	return e.ExtractBytes(content, filepath.Ext(path))
}

// ExtractBytes extracts pages from content based on the given extension
// (with leading dot, e.g. ".pdf"). Formats without a page model yield a
// single page. Unsupported formats and unreadable content are reported as
// apperr.KindInput.
func (e *Extractor) ExtractBytes(content []byte, ext string) ([]models.Page, error) {
	ext = strings.ToLower(ext)
	if imageExts[ext] {
		return nil, apperr.Errorf(apperr.KindInput, "extract", "image files require OCR, which is not supported: %s", ext)
	}
	fn, ok := formats[ext]
	if !ok {
		return nil, apperr.Errorf(apperr.KindInput, "extract", "unsupported file format: %s", ext)
	}
	pages, err := fn(content)
	if err != nil {
		return nil, apperr.New(apperr.KindInput, "extract", err)
	}
	return pages, nil
}

func singlePage(text string) []models.Page {
	return []models.Page{{Number: 1, Text: text}}
}
