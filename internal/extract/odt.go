package extract

import (
	"fmt"
	"os"
	"strings"

	"github.com/lu4p/cat"
)

// catFormat reports whether ext is converted by cat, which works on files only.
func catFormat(ext string) bool {
	return ext == ".odt" || ext == ".rtf"
}

func parseCatFile(path string) (*Document, error) {
	text, err := cat.File(path)
	if err != nil {
		return nil, fmt.Errorf("extract %s: %w", path, err)
	}
	return &Document{Text: strings.Join(strings.Fields(text), " ")}, nil
}

// parseCatBytes spools content to a temporary file with the given extension so cat can
// detect the format from it.
func parseCatBytes(content []byte, ext string) (*Document, error) {
	f, err := os.CreateTemp("", "sakuin-*"+ext)
	if err != nil {
		return nil, fmt.Errorf("temp file: %w", err)
	}
	defer os.Remove(f.Name())
	if _, err := f.Write(content); err != nil {
		_ = f.Close()
		return nil, fmt.Errorf("temp file: %w", err)
	}
	if err := f.Close(); err != nil {
		return nil, fmt.Errorf("temp file: %w", err)
	}
	return parseCatFile(f.Name())
}
