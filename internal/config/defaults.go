package config

import "time"

// Reranker names accepted in rag.reranker.
const (
	RerankerScore   = "score"
	RerankerKeyword = "keyword"
)

// ApplyDefaults sets default values for any zero values in cfg.
func ApplyDefaults(cfg *Config) {
	if cfg.Server.Host == "" {
		cfg.Server.Host = "localhost"
	}
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8080
	}
	if cfg.Server.RequestTimeout == 0 {
		cfg.Server.RequestTimeout = 60 * time.Second
	}
	if cfg.Storage.Backend == "" {
		cfg.Storage.Backend = "sqlite"
	}
	if cfg.Storage.DatabasePath == "" && cfg.Storage.Backend == "sqlite" {
		cfg.Storage.DatabasePath = "/usr/local/var/sakuin/data/db/sakuin.db"
	}
	if cfg.Storage.KeywordIndexPath == "" && cfg.Storage.Backend == "sqlite" {
		cfg.Storage.KeywordIndexPath = "/usr/local/var/sakuin/data/indices/keyword"
	}
	if cfg.Embedding.Provider == "" {
		cfg.Embedding.Provider = "mock"
	}
	if cfg.Embedding.Dimensions == 0 {
		cfg.Embedding.Dimensions = 384
	}
	if cfg.Embedding.MaxTokens == 0 {
		cfg.Embedding.MaxTokens = 256
	}
	if cfg.Embedding.CacheSize == 0 {
		cfg.Embedding.CacheSize = 10000
	}
	if cfg.Embedding.CacheTTL == 0 {
		cfg.Embedding.CacheTTL = 24 * time.Hour
	}
	if cfg.Embedding.Workers == 0 {
		cfg.Embedding.Workers = 3
	}
	if cfg.Index.Name == "" {
		cfg.Index.Name = "default"
	}
	if cfg.Index.Type == "" {
		cfg.Index.Type = "memory"
	}
	if cfg.Index.Dimension == 0 {
		cfg.Index.Dimension = cfg.Embedding.Dimensions
	}
	if cfg.Index.Metric == "" {
		cfg.Index.Metric = "cosine"
	}
	if cfg.Chunking.ChunkSize == 0 {
		cfg.Chunking.ChunkSize = 200
	}
	if cfg.Chunking.ChunkOverlap == 0 {
		cfg.Chunking.ChunkOverlap = 40
	}
	if cfg.Search.DefaultTopK == 0 {
		cfg.Search.DefaultTopK = 10
	}
	if cfg.Search.MaxTopK == 0 {
		cfg.Search.MaxTopK = 100
	}
	if cfg.Search.DefaultThreshold == 0 {
		cfg.Search.DefaultThreshold = 0.5
	}
	if cfg.RAG.TopK == 0 {
		cfg.RAG.TopK = 20
	}
	if cfg.RAG.Threshold == 0 {
		cfg.RAG.Threshold = 0.6
	}
	if cfg.RAG.MaxTokens == 0 {
		cfg.RAG.MaxTokens = 2000
	}
	if cfg.RAG.Reranker == "" {
		cfg.RAG.Reranker = RerankerScore
	}
	if cfg.RAG.KeywordWeight == 0 {
		cfg.RAG.KeywordWeight = 0.3
	}
	if cfg.RAG.CacheTTL == 0 {
		cfg.RAG.CacheTTL = 5 * time.Minute
	}
	if cfg.RAG.CacheSize == 0 {
		cfg.RAG.CacheSize = 1000
	}
	if cfg.Knowledge.Root == "" {
		cfg.Knowledge.Root = "/usr/local/var/sakuin/data/projects"
	}
	if cfg.Watch.Extensions == nil {
		cfg.Watch.Extensions = []string{".txt", ".md", ".rst", ".pdf", ".docx", ".odt", ".rtf", ".xlsx", ".pptx", ".odp", ".ods"}
	}
	// Recursive defaults to true when unset (nil).
	if len(cfg.Watch.Directories) > 0 && cfg.Watch.Recursive == nil {
		t := true
		cfg.Watch.Recursive = &t
	}
}
