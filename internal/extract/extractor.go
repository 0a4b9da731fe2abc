// Package extract provides text extraction from document formats supported
// by the ingestion pipeline. It feeds the embedded index backend.
package extract

import (
	"path/filepath"
	"strings"
)

// Extractor extracts plain text from document file content.
type Extractor struct{}

// NewExtractor returns a new Extractor.
func NewExtractor() *Extractor {
	return &Extractor{}
}

// Extract returns the text content of the named file. The extension of
// filename selects the format; unknown extensions are treated as plain text.
func (e *Extractor) Extract(filename string, content []byte) (string, error) {
	switch strings.ToLower(filepath.Ext(filename)) {
	case ".pdf":
		return extractPDF(content)
	case ".docx":
		return extractDOCX(content)
	case ".xlsx":
		return extractExcel(content)
	case ".txt", ".md", ".json", ".csv", "":
		return extractPlain(content)
	default:
		return extractPlain(content)
	}
}
