// Package models defines core data structures for indexed content, searches, and knowledge bases.
package models

import "time"

// ContentType classifies where indexed content came from.
type ContentType string

const (
	ContentTypeTranscription ContentType = "transcription"
	ContentTypeDocument      ContentType = "document"
	ContentTypeOther         ContentType = "other"
)

// Valid reports whether t is one of the known content types.
func (t ContentType) Valid() bool {
	switch t {
	case ContentTypeTranscription, ContentTypeDocument, ContentTypeOther:
		return true
	}
	return false
}

// SourceInfo describes the origin of a piece of content.
type SourceInfo struct {
	Title    string   `json:"title,omitempty"`
	Author   string   `json:"author,omitempty"`
	URL      string   `json:"url,omitempty"`
	FilePath string   `json:"file_path,omitempty"`
	Page     *int     `json:"page,omitempty"`
	Duration *float64 `json:"duration,omitempty"` // seconds
}

// ContentMetadata identifies and describes an indexed document.
type ContentMetadata struct {
	ID          string      `json:"id"`
	Type        ContentType `json:"content_type"`
	ProjectID   string      `json:"project_id"`
	RecordingID string      `json:"recording_id,omitempty"`
	DocumentID  string      `json:"document_id,omitempty"`
	Timestamp   time.Time   `json:"timestamp"`
	Language    string      `json:"language,omitempty"`
	Tags        []string    `json:"tags,omitempty"`
	Source      SourceInfo  `json:"source"`
}

// TimeRange is a span of seconds inside a recording.
type TimeRange struct {
	Start float64 `json:"start"`
	End   float64 `json:"end"`
}

// ChunkMetadata carries a chunk's position within its document.
type ChunkMetadata struct {
	ChunkNumber int        `json:"chunk_number"`
	TotalChunks int        `json:"total_chunks"`
	TimeRange   *TimeRange `json:"time_range,omitempty"`
	Speaker     string     `json:"speaker,omitempty"`
	// Page is the page, slide or sheet the chunk starts on, for paged sources.
	Page *int `json:"page,omitempty"`
}

// ContentChunk is a contiguous span of a document's text, used for semantic indexing.
type ContentChunk struct {
	ID         string        `json:"id"`
	Text       string        `json:"text"`
	StartIndex int           `json:"start_index"`
	EndIndex   int           `json:"end_index"`
	Embedding  []float32     `json:"-"`
	Metadata   ChunkMetadata `json:"metadata"`
}

// IndexStatus is the indexing state of a document.
type IndexStatus string

const (
	IndexStatusPending   IndexStatus = "pending"
	IndexStatusCompleted IndexStatus = "completed"
	IndexStatusFailed    IndexStatus = "failed"
)

// IndexedDocument is a stored document with its ordered chunks.
type IndexedDocument struct {
	ID          string          `json:"id"`
	Metadata    ContentMetadata `json:"metadata"`
	Chunks      []ContentChunk  `json:"chunks,omitempty"`
	IndexedAt   time.Time       `json:"indexed_at"`
	VectorCount int             `json:"vector_count"`
	Status      IndexStatus     `json:"status"`
}

// ContentInput is the input for indexing raw text through the chunk/embed path.
type ContentInput struct {
	Text     string          `json:"text"`
	Metadata ContentMetadata `json:"metadata"`
	// Segments optionally align the text with speaker turns of a transcription.
	Segments []TranscriptSegment `json:"segments,omitempty"`
	// Pages optionally split the text of a paged document. Ignored when Segments are set.
	Pages []Page `json:"pages,omitempty"`
}

// Page is one page, slide or sheet of a document. Number is 1-based.
type Page struct {
	Number int    `json:"number"`
	Label  string `json:"label,omitempty"`
	Text   string `json:"text"`
}

// TranscriptSegment is one timed speaker turn of a transcription.
type TranscriptSegment struct {
	Start   float64 `json:"start"`
	End     float64 `json:"end"`
	Speaker string  `json:"speaker,omitempty"`
	Text    string  `json:"text"`
}
