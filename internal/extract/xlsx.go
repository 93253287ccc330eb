package extract

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/hyperjump/sakuin/internal/models"
	"github.com/xuri/excelize/v2"
)

// parseXLSX extracts one page per worksheet, labelled with the sheet name. Cells are
// tab separated and rows newline separated.
func parseXLSX(content []byte) (*Document, error) {
	f, err := excelize.OpenReader(bytes.NewReader(content))
	if err != nil {
		return nil, fmt.Errorf("open Excel: %w", err)
	}
	defer f.Close()

	sheets := f.GetSheetList()
	pages := make([]models.Page, 0, len(sheets))
	for i, sheet := range sheets {
		rows, err := f.GetRows(sheet)
		if err != nil {
			return nil, fmt.Errorf("get rows for sheet %q: %w", sheet, err)
		}
		var b strings.Builder
		for _, row := range rows {
			line := strings.TrimRight(strings.Join(row, "\t"), "\t")
			if line == "" {
				continue
			}
			b.WriteString(line)
			b.WriteByte('\n')
		}
		pages = append(pages, models.Page{Number: i + 1, Label: sheet, Text: b.String()})
	}
	return paged(pages), nil
}
