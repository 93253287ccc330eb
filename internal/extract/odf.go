package extract

import (
	"regexp"
	"strings"

	"github.com/hyperjump/sakuin/internal/models"
)

const odfContent = "content.xml"

var (
	odfPara  = regexp.MustCompile(`(?s)<text:(?:p|h)(?:\s[^>]*[^/>])?>(.*?)</text:(?:p|h)>`)
	odfSlide = regexp.MustCompile(`(?s)<draw:page(\s[^>]*)?>(.*?)</draw:page>`)
	odfSheet = regexp.MustCompile(`(?s)<table:table(\s[^>]*)?>(.*?)</table:table>`)
	odfRow   = regexp.MustCompile(`(?s)<table:table-row(?:\s[^>]*)?>(.*?)</table:table-row>`)
	odfCell  = regexp.MustCompile(`(?s)<table:table-cell(?:\s[^>]*[^/>])?>(.*?)</table:table-cell>`)
)

// attr returns the value of name in an element's attribute list.
func attr(attrs, name string) string {
	for _, a := range xmlAttr.FindAllStringSubmatch(attrs, -1) {
		if a[1] == name {
			return a[2]
		}
	}
	return ""
}

// paragraphs returns the text of every paragraph and heading in fragment, one per line.
func paragraphs(fragment string) string {
	var lines []string
	for _, m := range odfPara.FindAllStringSubmatch(fragment, -1) {
		if t := markupText(m[1]); t != "" {
			lines = append(lines, t)
		}
	}
	return strings.Join(lines, "\n")
}

// parseODP extracts one page per slide, labelled with the slide name.
func parseODP(content []byte) (*Document, error) {
	zr, err := openPackage(content, "ODP")
	if err != nil {
		return nil, err
	}
	xml, err := readMember(zr, odfContent, "ODP")
	if err != nil {
		return nil, err
	}
	var pages []models.Page
	for i, m := range odfSlide.FindAllStringSubmatch(xml, -1) {
		pages = append(pages, models.Page{Number: i + 1, Label: attr(m[1], "draw:name"), Text: paragraphs(m[2])})
	}
	return paged(pages), nil
}

// parseODS extracts one page per sheet, labelled with the sheet name. Cells are tab separated
// and rows newline separated.
func parseODS(content []byte) (*Document, error) {
	zr, err := openPackage(content, "ODS")
	if err != nil {
		return nil, err
	}
	xml, err := readMember(zr, odfContent, "ODS")
	if err != nil {
		return nil, err
	}
	var pages []models.Page
	for i, sheet := range odfSheet.FindAllStringSubmatch(xml, -1) {
		var rows []string
		for _, row := range odfRow.FindAllStringSubmatch(sheet[2], -1) {
			var cells []string
			for _, cell := range odfCell.FindAllStringSubmatch(row[1], -1) {
				cells = append(cells, strings.ReplaceAll(paragraphs(cell[1]), "\n", " "))
			}
			if line := strings.TrimRight(strings.Join(cells, "\t"), "\t"); line != "" {
				rows = append(rows, line)
			}
		}
		pages = append(pages, models.Page{Number: i + 1, Label: attr(sheet[1], "table:name"), Text: strings.Join(rows, "\n")})
	}
	return paged(pages), nil
}
