package extract

import (
	"cmp"
	"regexp"
	"slices"
	"strconv"
	"strings"

	"github.com/hyperjump/sakuin/internal/models"
)

var (
	slidePart   = regexp.MustCompile(`^ppt/slides/slide(\d+)\.xml$`)
	drawingPara = regexp.MustCompile(`(?s)<a:p[ >].*?</a:p>`)
	drawingRun  = regexp.MustCompile(`<a:t(?:\s[^>]*)?>([^<]*)</a:t>`)
)

// parsePPTX extracts one page per slide, ordered by slide number rather than archive order.
func parsePPTX(content []byte) (*Document, error) {
	zr, err := openPackage(content, "PPTX")
	if err != nil {
		return nil, err
	}
	type slide struct {
		num  int
		name string
	}
	var slides []slide
	for _, f := range zr.File {
		m := slidePart.FindStringSubmatch(f.Name)
		if m == nil {
			continue
		}
		n, _ := strconv.Atoi(m[1])
		slides = append(slides, slide{num: n, name: f.Name})
	}
	slices.SortFunc(slides, func(a, b slide) int { return cmp.Compare(a.num, b.num) })

	pages := make([]models.Page, 0, len(slides))
	for _, s := range slides {
		xml, err := readMember(zr, s.name, "PPTX")
		if err != nil {
			return nil, err
		}
		var lines []string
		for _, para := range drawingPara.FindAllString(xml, -1) {
			if line := strings.TrimSpace(concatRuns(drawingRun, para)); line != "" {
				lines = append(lines, line)
			}
		}
		pages = append(pages, models.Page{Number: s.num, Text: strings.Join(lines, "\n")})
	}
	return paged(pages), nil
}
