// Package fileid derives stable document ids for indexed files, so re-indexing a file
// replaces its previous version instead of adding a second document.
package fileid

import (
	"fmt"
	"path/filepath"

	"github.com/google/uuid"
)

// namespace scopes file ids; ids are name-based (version 5) UUIDs of the cleaned path.
var namespace = uuid.NewSHA1(uuid.NameSpaceURL, []byte("https://github.com/hyperjump/sakuin/fileid"))

// ForPath returns the document id of an absolute path. Equivalent spellings of a path
// (trailing slash, "." elements) share an id.
func ForPath(absPath string) string {
	return uuid.NewSHA1(namespace, []byte(filepath.Clean(absPath))).String()
}

// Resolve makes path absolute and returns it with its document id.
func Resolve(path string) (absPath, id string, err error) {
	absPath, err = filepath.Abs(path)
	if err != nil {
		return "", "", fmt.Errorf("absolute path: %w", err)
	}
	return absPath, ForPath(absPath), nil
}
