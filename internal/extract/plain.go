package extract

import (
	"bytes"
	"strings"
	"unicode/utf8"
)

var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

// parsePlain decodes content as UTF-8 text. A byte order mark is dropped, CRLF line ends
// become LF and invalid sequences become U+FFFD.
func parsePlain(content []byte) (*Document, error) {
	content = bytes.TrimPrefix(content, utf8BOM)
	text := string(content)
	if !utf8.ValidString(text) {
		text = strings.ToValidUTF8(text, "\ufffd")
	}
	text = strings.ReplaceAll(text, "\r\n", "\n")
	return &Document{Text: text}, nil
}
