// Package extract turns office, PDF and plain text files into text, keeping the page, slide
// and sheet boundaries of formats that have them.
package extract

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/hyperjump/sakuin/internal/models"
)

// Document is the extracted text of a file. Pages is nil for formats without page structure;
// otherwise Text is the non-empty pages joined by blank lines.
type Document struct {
	Text  string
	Pages []models.Page
}

// paged builds a Document from pages, dropping the blank ones.
func paged(pages []models.Page) *Document {
	doc := &Document{}
	texts := make([]string, 0, len(pages))
	for _, p := range pages {
		p.Text = strings.TrimSpace(p.Text)
		if p.Text == "" {
			continue
		}
		doc.Pages = append(doc.Pages, p)
		texts = append(texts, p.Text)
	}
	doc.Text = strings.Join(texts, "\n\n")
	return doc
}

type parser func(content []byte) (*Document, error)

var parsers = map[string]parser{
	".pdf":  parsePDF,
	".docx": parseDOCX,
	".xlsx": parseXLSX,
	".pptx": parsePPTX,
	".odp":  parseODP,
	".ods":  parseODS,
	".txt":  parsePlain,
	".md":   parsePlain,
	".rst":  parsePlain,
	".json": parsePlain,
}

// Extractor extracts documents from files.
type Extractor struct{}

// NewExtractor returns a new Extractor.
func NewExtractor() *Extractor {
	return &Extractor{}
}

// Extract reads the file at path and extracts its document. ODT and RTF are converted
// straight from disk; unknown extensions are read as plain text.
func (e *Extractor) Extract(path string) (*Document, error) {
	ext := strings.ToLower(filepath.Ext(path))
	if catFormat(ext) {
		return parseCatFile(path)
	}
	content, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read file: %w", err)
	}
	return e.ExtractBytes(content, ext)
}

// ExtractBytes extracts content according to ext, which includes the leading dot.
func (e *Extractor) ExtractBytes(content []byte, ext string) (*Document, error) {
	ext = strings.ToLower(ext)
	if catFormat(ext) {
		return parseCatBytes(content, ext)
	}
	if p, ok := parsers[ext]; ok {
		return p(content)
	}
	return parsePlain(content)
}

// Supported reports whether ext has a dedicated extractor rather than the plain text fallback.
func Supported(ext string) bool {
	ext = strings.ToLower(ext)
	_, ok := parsers[ext]
	return ok || catFormat(ext)
}
