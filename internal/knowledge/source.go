package knowledge

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/hyperjump/sakuin/internal/extract"
	"github.com/hyperjump/sakuin/internal/fileid"
	"github.com/hyperjump/sakuin/internal/models"
)

// Source lists the content of a project.
type Source interface {
	Transcriptions(ctx context.Context, projectID string) ([]models.ContentInput, error)
	Documents(ctx context.Context, projectID string) ([]models.ContentInput, error)
}

// Directory names below a project directory.
const (
	TranscriptionsDir = "transcriptions"
	DocumentsDir      = "documents"
)

// DirectorySource reads projects laid out as <root>/<project>/transcriptions and
// <root>/<project>/documents. Item ids derive from file paths, so rebuilding a project
// replaces its documents instead of duplicating them.
type DirectorySource struct {
	root      string
	extractor *extract.Extractor
}

// NewDirectorySource returns a source rooted at root. A nil extractor uses extract.NewExtractor.
func NewDirectorySource(root string, extractor *extract.Extractor) *DirectorySource {
	if extractor == nil {
		extractor = extract.NewExtractor()
	}
	return &DirectorySource{root: root, extractor: extractor}
}

// transcriptFile is the JSON form of a transcription.
type transcriptFile struct {
	Title       string                     `json:"title"`
	RecordingID string                     `json:"recording_id"`
	Language    string                     `json:"language"`
	Tags        []string                   `json:"tags"`
	Text        string                     `json:"text"`
	Segments    []models.TranscriptSegment `json:"segments"`
}

// Transcriptions returns every .txt and .json transcription of the project.
func (s *DirectorySource) Transcriptions(ctx context.Context, projectID string) ([]models.ContentInput, error) {
	files, err := s.list(projectID, TranscriptionsDir)
	if err != nil {
		return nil, err
	}
	var out []models.ContentInput
	for _, f := range files {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		ext := strings.ToLower(filepath.Ext(f.path))
		if ext != ".txt" && ext != ".json" {
			continue
		}
		data, err := os.ReadFile(f.path)
		if err != nil {
			return nil, fmt.Errorf("read transcription: %w", err)
		}
		stem := strings.TrimSuffix(filepath.Base(f.path), filepath.Ext(f.path))
		in := models.ContentInput{Metadata: f.metadata(projectID, models.ContentTypeTranscription)}
		in.Metadata.RecordingID = stem
		if ext == ".txt" {
			in.Text = string(data)
			out = append(out, in)
			continue
		}
		var tf transcriptFile
		if err := json.Unmarshal(data, &tf); err != nil {
			return nil, models.InvalidInputf("transcription %s: %v", f.path, err)
		}
		in.Text = tf.Text
		in.Segments = tf.Segments
		in.Metadata.Language = tf.Language
		in.Metadata.Tags = tf.Tags
		if tf.Title != "" {
			in.Metadata.Source.Title = tf.Title
		}
		if tf.RecordingID != "" {
			in.Metadata.RecordingID = tf.RecordingID
		}
		if n := len(tf.Segments); n > 0 {
			d := tf.Segments[n-1].End
			in.Metadata.Source.Duration = &d
		}
		out = append(out, in)
	}
	return out, nil
}

// Documents returns the extracted text of every supported file in the project's documents directory.
func (s *DirectorySource) Documents(ctx context.Context, projectID string) ([]models.ContentInput, error) {
	files, err := s.list(projectID, DocumentsDir)
	if err != nil {
		return nil, err
	}
	var out []models.ContentInput
	for _, f := range files {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if !extract.Supported(filepath.Ext(f.path)) {
			continue
		}
		doc, err := s.extractor.Extract(f.path)
		if err != nil {
			return nil, fmt.Errorf("extract %s: %w", f.path, err)
		}
		if strings.TrimSpace(doc.Text) == "" {
			continue
		}
		in := models.ContentInput{Text: doc.Text, Pages: doc.Pages, Metadata: f.metadata(projectID, models.ContentTypeDocument)}
		in.Metadata.DocumentID = in.Metadata.ID
		out = append(out, in)
	}
	return out, nil
}

type projectFile struct {
	path string
	info os.FileInfo
}

func (f projectFile) metadata(projectID string, t models.ContentType) models.ContentMetadata {
	return models.ContentMetadata{
		ID:        fileid.ForPath(f.path),
		Type:      t,
		ProjectID: projectID,
		Timestamp: f.info.ModTime().UTC(),
		Source: models.SourceInfo{
			Title:    filepath.Base(f.path),
			FilePath: f.path,
		},
	}
}

// list returns the regular files of <root>/<project>/<sub>, sorted by name. A missing
// project is ErrNotFound; a missing sub directory is empty.
func (s *DirectorySource) list(projectID, sub string) ([]projectFile, error) {
	if projectID == "" || projectID != filepath.Base(projectID) || projectID == "." || projectID == ".." {
		return nil, models.InvalidInputf("invalid project id %q", projectID)
	}
	root, err := filepath.Abs(s.root)
	if err != nil {
		return nil, fmt.Errorf("absolute path: %w", err)
	}
	projectDir := filepath.Join(root, projectID)
	if _, err := os.Stat(projectDir); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("%w: project %s", models.ErrNotFound, projectID)
		}
		return nil, err
	}
	entries, err := os.ReadDir(filepath.Join(projectDir, sub))
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].Name() < entries[j].Name() })
	var out []projectFile
	for _, e := range entries {
		if e.IsDir() || strings.HasPrefix(e.Name(), ".") {
			continue
		}
		path := filepath.Join(projectDir, sub, e.Name())
		info, err := os.Stat(path)
		if err != nil || !info.Mode().IsRegular() {
			continue
		}
		out = append(out, projectFile{path: path, info: info})
	}
	return out, nil
}
