// Package config provides configuration loading and structs for the sakuin engine.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds all configuration for the application.
type Config struct {
	Debug     bool            `yaml:"debug"`
	Server    ServerConfig    `yaml:"server"`
	Storage   StorageConfig   `yaml:"storage"`
	Index     IndexConfig     `yaml:"index"`
	Embedding EmbeddingConfig `yaml:"embedding"`
	Chunking  ChunkingConfig  `yaml:"chunking"`
	Search    SearchConfig    `yaml:"search"`
	RAG       RAGConfig       `yaml:"rag"`
	Knowledge KnowledgeConfig `yaml:"knowledge"`
	Watch     WatchConfig     `yaml:"watch"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Host           string        `yaml:"host"`
	Port           int           `yaml:"port"`
	RequestTimeout time.Duration `yaml:"request_timeout"`
}

// StorageConfig selects the persistence backend and its paths.
type StorageConfig struct {
	Backend          string `yaml:"backend"` // sqlite or memory
	DatabasePath     string `yaml:"database_path"`
	KeywordIndexPath string `yaml:"keyword_index_path"` // empty keeps the keyword index in memory
}

// IndexConfig describes the vector index the store is bound to.
type IndexConfig struct {
	Name      string `yaml:"name"`
	Type      string `yaml:"type"`
	Dimension int    `yaml:"dimension"`
	Metric    string `yaml:"metric"`
}

// EmbeddingConfig selects and tunes the embedding provider.
type EmbeddingConfig struct {
	Provider   string        `yaml:"provider"` // mock, onnx or openai
	Model      string        `yaml:"model"`
	ModelPath  string        `yaml:"model_path"`
	APIKey     string        `yaml:"api_key"`
	BaseURL    string        `yaml:"base_url"`
	Dimensions int           `yaml:"dimensions"`
	MaxTokens  int           `yaml:"max_tokens"`
	CacheSize  int           `yaml:"cache_size"`
	CacheTTL   time.Duration `yaml:"cache_ttl"`
	Workers    int           `yaml:"workers"`
}

// ChunkingConfig holds word-window chunking settings.
type ChunkingConfig struct {
	ChunkSize    int `yaml:"chunk_size"`
	ChunkOverlap int `yaml:"chunk_overlap"`
}

// SearchConfig holds semantic search defaults.
type SearchConfig struct {
	DefaultTopK      int     `yaml:"default_top_k"`
	MaxTopK          int     `yaml:"max_top_k"`
	DefaultThreshold float64 `yaml:"default_threshold"`
}

// RAGConfig holds context assembly settings.
type RAGConfig struct {
	TopK          int           `yaml:"top_k"`
	Threshold     float64       `yaml:"threshold"`
	MaxTokens     int           `yaml:"max_tokens"`
	Reranker      string        `yaml:"reranker"` // score or keyword
	KeywordWeight float64       `yaml:"keyword_weight"`
	CacheTTL      time.Duration `yaml:"cache_ttl"`
	CacheSize     int           `yaml:"cache_size"`
}

// KnowledgeConfig locates project content for knowledge base builds.
type KnowledgeConfig struct {
	Root string `yaml:"root"`
}

// WatchConfig holds directory watch settings.
type WatchConfig struct {
	Directories []string `yaml:"directories"`
	Extensions  []string `yaml:"extensions"`
	Recursive   *bool    `yaml:"recursive"`
	ProjectID   string   `yaml:"project_id"`
}

// RecursiveOrDefault returns whether to watch recursively; defaults to true when unset.
func (w *WatchConfig) RecursiveOrDefault() bool {
	if w.Recursive != nil {
		return *w.Recursive
	}
	return true
}

// Load reads and parses the config file at path, expands paths, and applies defaults.
// Returns an error if the file cannot be read or parsed.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	ApplyDefaults(&cfg)
	if err := Validate(&cfg); err != nil {
		return nil, err
	}

	configDir := filepath.Dir(path)
	cfg.Storage.DatabasePath = expandPath(cfg.Storage.DatabasePath, configDir)
	cfg.Storage.KeywordIndexPath = expandPath(cfg.Storage.KeywordIndexPath, configDir)
	cfg.Embedding.ModelPath = expandPath(cfg.Embedding.ModelPath, configDir)
	cfg.Knowledge.Root = expandPath(cfg.Knowledge.Root, configDir)
	for i := range cfg.Watch.Directories {
		cfg.Watch.Directories[i] = expandPath(cfg.Watch.Directories[i], configDir)
	}
	if cfg.Embedding.APIKey == "" {
		cfg.Embedding.APIKey = os.Getenv("OPENAI_API_KEY")
	}

	return &cfg, nil
}

// Save writes the config to path. Used for persisting watch directory add/remove.
func Save(path string, cfg *Config) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}
	return nil
}

// Validate rejects settings that cannot work together.
func Validate(cfg *Config) error {
	if cfg.Index.Dimension != cfg.Embedding.Dimensions {
		return fmt.Errorf("index dimension %d does not match embedding dimensions %d",
			cfg.Index.Dimension, cfg.Embedding.Dimensions)
	}
	if cfg.Chunking.ChunkOverlap >= cfg.Chunking.ChunkSize {
		return fmt.Errorf("chunk overlap %d must be smaller than chunk size %d",
			cfg.Chunking.ChunkOverlap, cfg.Chunking.ChunkSize)
	}
	if cfg.RAG.KeywordWeight < 0 || cfg.RAG.KeywordWeight > 1 {
		return fmt.Errorf("rag keyword weight must be in [0, 1], got %g", cfg.RAG.KeywordWeight)
	}
	switch cfg.RAG.Reranker {
	case RerankerScore, RerankerKeyword:
	default:
		return fmt.Errorf("unknown rag reranker %q (supported: score, keyword)", cfg.RAG.Reranker)
	}
	return nil
}

// expandPath converts a path to absolute. Paths starting with "./" are relative to configDir;
// other relative paths are relative to the home directory. Empty paths stay empty.
func expandPath(path string, configDir string) string {
	if path == "" || filepath.IsAbs(path) {
		return path
	}
	if strings.HasPrefix(path, "./") || path == "." {
		return filepath.Join(configDir, path)
	}
	if home, err := os.UserHomeDir(); err == nil {
		return filepath.Join(home, path)
	}
	return path
}
