package extract

import (
	"bytes"
	"fmt"

	"github.com/hyperjump/sakuin/internal/models"
	"github.com/ledongthuc/pdf"
)

// parsePDF extracts one page per PDF page, keeping the original page numbers.
func parsePDF(content []byte) (*Document, error) {
	r, err := pdf.NewReader(bytes.NewReader(content), int64(len(content)))
	if err != nil {
		return nil, fmt.Errorf("open PDF: %w", err)
	}
	n := r.NumPage()
	pages := make([]models.Page, 0, n)
	for i := 1; i <= n; i++ {
		p := r.Page(i)
		if p.V.IsNull() {
			continue
		}
		text, err := p.GetPlainText(nil)
		if err != nil {
			return nil, fmt.Errorf("extract PDF page %d: %w", i, err)
		}
		pages = append(pages, models.Page{Number: i, Text: text})
	}
	return paged(pages), nil
}
