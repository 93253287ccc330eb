package extract

import (
	"archive/zip"
	"bytes"
	"fmt"
	"html"
	"io"
	"regexp"
	"strings"
)

// openPackage opens the ZIP container of an OOXML or OpenDocument file.
func openPackage(content []byte, format string) (*zip.Reader, error) {
	zr, err := zip.NewReader(bytes.NewReader(content), int64(len(content)))
	if err != nil {
		return nil, fmt.Errorf("extract %s: not a zip: %w", format, err)
	}
	return zr, nil
}

// readMember returns the contents of the named package member.
func readMember(zr *zip.Reader, name, format string) (string, error) {
	f, err := zr.Open(name)
	if err != nil {
		return "", fmt.Errorf("extract %s: %s: %w", format, name, err)
	}
	defer f.Close()
	data, err := io.ReadAll(f)
	if err != nil {
		return "", fmt.Errorf("extract %s: read %s: %w", format, name, err)
	}
	return string(data), nil
}

var (
	anyTag   = regexp.MustCompile(`<[^>]+>`)
	spaceTag = regexp.MustCompile(`<(?:text:s|text:tab|text:line-break|w:tab|w:br|a:br)\b[^>]*/>`)
)

// markupText strips the tags of an XML fragment, decodes entities and collapses whitespace.
func markupText(fragment string) string {
	fragment = spaceTag.ReplaceAllString(fragment, " ")
	fragment = anyTag.ReplaceAllString(fragment, "")
	return strings.Join(strings.Fields(html.UnescapeString(fragment)), " ")
}

// concatRuns decodes the first submatch of every match of re in fragment and concatenates them.
func concatRuns(re *regexp.Regexp, fragment string) string {
	var b strings.Builder
	for _, m := range re.FindAllStringSubmatch(fragment, -1) {
		b.WriteString(html.UnescapeString(m[1]))
	}
	return b.String()
}
