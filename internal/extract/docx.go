package extract

import (
	"archive/zip"
	"html"
	"regexp"
	"strings"

	"github.com/hyperjump/sakuin/internal/models"
)

const defaultDocxBody = "word/document.xml"

var (
	overrideElem = regexp.MustCompile(`<Override\s[^>]*>`)
	xmlAttr      = regexp.MustCompile(`([\w:.-]+)="([^"]*)"`)
	// docxToken matches, in document order, a text run, a paragraph end or a page break.
	docxToken = regexp.MustCompile(`<w:t(?:\s[^>]*)?>([^<]*)</w:t>|</w:p>|<w:br\s[^>]*w:type="page"[^>]*/>|<w:lastRenderedPageBreak/>`)
)

// docxBodyPart finds the main document part named in [Content_Types].xml. Documents saved
// by some tools use word/document2.xml or a macro-enabled content type.
func docxBodyPart(zr *zip.Reader) string {
	types, err := readMember(zr, "[Content_Types].xml", "DOCX")
	if err != nil {
		return defaultDocxBody
	}
	for _, elem := range overrideElem.FindAllString(types, -1) {
		attrs := make(map[string]string, 2)
		for _, a := range xmlAttr.FindAllStringSubmatch(elem, -1) {
			attrs[a[1]] = a[2]
		}
		ct := attrs["ContentType"]
		word := strings.Contains(ct, "wordprocessingml") || strings.Contains(ct, "ms-word")
		if word && strings.HasSuffix(ct, ".main+xml") && attrs["PartName"] != "" {
			return strings.TrimPrefix(attrs["PartName"], "/")
		}
	}
	return defaultDocxBody
}

// parseDOCX extracts the body text, one line per paragraph. Runs are concatenated since Word
// splits words across runs. Explicit and rendered page breaks split the text into pages;
// a document without any breaks has no page structure.
func parseDOCX(content []byte) (*Document, error) {
	zr, err := openPackage(content, "DOCX")
	if err != nil {
		return nil, err
	}
	body, err := readMember(zr, docxBodyPart(zr), "DOCX")
	if err != nil {
		return nil, err
	}

	var (
		pages []models.Page
		lines []string
		para  strings.Builder
	)
	endPara := func() {
		if t := strings.Join(strings.Fields(para.String()), " "); t != "" {
			lines = append(lines, t)
		}
		para.Reset()
	}
	endPage := func() {
		pages = append(pages, models.Page{Number: len(pages) + 1, Text: strings.Join(lines, "\n")})
		lines = nil
	}
	for _, m := range docxToken.FindAllStringSubmatch(body, -1) {
		switch {
		case strings.HasPrefix(m[0], "<w:t"):
			para.WriteString(html.UnescapeString(m[1]))
		case m[0] == "</w:p>":
			endPara()
		default:
			endPara()
			endPage()
		}
	}
	endPara()
	endPage()
	if len(pages) == 1 {
		return &Document{Text: pages[0].Text}, nil
	}
	return paged(pages), nil
}
