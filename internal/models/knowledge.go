package models

import "time"

// KnowledgeStatistics are derived figures about a knowledge base.
type KnowledgeStatistics struct {
	TranscriptionCount    int     `json:"transcription_count"`
	DocumentCount         int     `json:"document_count"`
	AverageChunksPerItem  float64 `json:"average_chunks_per_item"`
	AverageTokensPerChunk float64 `json:"average_tokens_per_chunk"`
	BuildDurationMillis   int64   `json:"build_duration_ms"`
}

// KnowledgeBaseMetadata summarizes the content of a knowledge base.
type KnowledgeBaseMetadata struct {
	ContentTypes []ContentType       `json:"content_types"`
	Languages    []string            `json:"languages"`
	Tags         []string            `json:"tags"`
	Statistics   KnowledgeStatistics `json:"statistics"`
}

// KnowledgeBase is a project-scoped aggregate of indexed content.
type KnowledgeBase struct {
	ID            string                `json:"id"`
	ProjectID     string                `json:"project_id"`
	DocumentCount int                   `json:"document_count"`
	ChunkCount    int                   `json:"chunk_count"`
	TotalTokens   int                   `json:"total_tokens"`
	DocumentIDs   []string              `json:"document_ids"`
	Metadata      KnowledgeBaseMetadata `json:"metadata"`
	CreatedAt     time.Time             `json:"created_at"`
	UpdatedAt     time.Time             `json:"updated_at"`
	Version       int                   `json:"version"`
}
