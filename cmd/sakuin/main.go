// Package main is the sakuin CLI entry point.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/hyperjump/sakuin/internal/cache"
	"github.com/hyperjump/sakuin/internal/chunking"
	"github.com/hyperjump/sakuin/internal/config"
	"github.com/hyperjump/sakuin/internal/embedding"
	"github.com/hyperjump/sakuin/internal/extract"
	"github.com/hyperjump/sakuin/internal/indexer"
	"github.com/hyperjump/sakuin/internal/keyword"
	"github.com/hyperjump/sakuin/internal/knowledge"
	"github.com/hyperjump/sakuin/internal/rag"
	"github.com/hyperjump/sakuin/internal/server"
	"github.com/hyperjump/sakuin/internal/storage"
	"github.com/hyperjump/sakuin/internal/store"
	"github.com/hyperjump/sakuin/internal/vector"
	"github.com/hyperjump/sakuin/internal/watcher"
	"github.com/hyperjump/sakuin/pkg/utils"
	"go.uber.org/zap"
)

var version = "dev"

const (
	defaultConfigPath = "/usr/local/etc/sakuin/config.yaml"
	defaultServerURL  = "http://localhost:8080"
)

// loadConfig loads config from path. When path is the default and config.yaml exists in the
// current directory, that file wins so a development checkout uses its own config.
// A missing default config yields the built-in defaults.
func loadConfig(path string) (*config.Config, string, error) {
	if path == defaultConfigPath {
		if cwd, err := os.Getwd(); err == nil {
			fallback := filepath.Join(cwd, "config.yaml")
			if _, err := os.Stat(fallback); err == nil {
				cfg, err := config.Load(fallback)
				if err != nil {
					return nil, "", err
				}
				return cfg, fallback, nil
			}
		}
		if _, err := os.Stat(path); os.IsNotExist(err) {
			cfg := &config.Config{}
			config.ApplyDefaults(cfg)
			return cfg, "", nil
		}
	}
	cfg, err := config.Load(path)
	if err != nil {
		return nil, "", err
	}
	return cfg, path, nil
}

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}
	command := os.Args[1]
	args := os.Args[2:]
	switch command {
	case "server":
		runServer(args)
	case "index":
		runIndex(args)
	case "remove":
		runRemove(args)
	case "search":
		runSearch(args)
	case "context":
		runContext(args)
	case "kb":
		runKnowledgeBase(args)
	case "index-admin":
		runIndexAdmin(args)
	case "status":
		runStatus(args)
	case "version", "--version", "-v":
		fmt.Printf("sakuin version %s\n", version)
	case "help", "--help", "-h":
		printUsage()
	default:
		fmt.Printf("Unknown command: %s\n", command)
		printUsage()
		os.Exit(1)
	}
}

func fatalf(format string, args ...any) {
	fmt.Fprintf(os.Stderr, format+"\n", args...)
	os.Exit(1)
}

// setup loads config, builds a logger and initializes components for a direct-mode command.
func setup(configPath string, debugFlag bool) (*config.Config, *zap.Logger, *Components) {
	cfg, resolved, err := loadConfig(configPath)
	if err != nil {
		fatalf("Failed to load config: %v", err)
	}
	debugMode := cfg.Debug || debugFlag
	logger, err := utils.NewLogger(debugMode)
	if err != nil {
		fatalf("Failed to create logger: %v", err)
	}
	logger.Debug("config loaded", zap.String("config_path", resolved), zap.Bool("debug", debugMode))
	components, err := initializeComponents(context.Background(), cfg, logger, debugMode)
	if err != nil {
		logger.Fatal("Failed to initialize components", zap.Error(err))
	}
	return cfg, logger, components
}

func runServer(args []string) {
	fs := flag.NewFlagSet("server", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "config file path")
	debug := fs.Bool("debug", false, "enable debug logging (file indexing, cache hits, etc.)")
	_ = fs.Parse(args)

	cfg, logger, components := setup(*configPath, *debug)
	defer logger.Sync()
	defer components.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var watch *watcher.Watcher
	if len(cfg.Watch.Directories) > 0 {
		roots := make([]watcher.Root, len(cfg.Watch.Directories))
		for i, dir := range cfg.Watch.Directories {
			roots[i] = watcher.Root{Path: dir, ProjectID: cfg.Watch.ProjectID}
		}
		watch = watcher.New(components.Indexer, roots, cfg.Watch.Extensions, cfg.Watch.RecursiveOrDefault(),
			watcher.WithLogger(logger))
		if err := watch.Start(ctx); err != nil {
			logger.Fatal("Failed to start watcher", zap.Error(err))
		}
		go watch.SyncExistingFiles()
	}

	srv := server.NewServer(components.Store, components.Indexer, components.RAG, components.Knowledge, &cfg.Server, logger)
	go func() {
		if err := srv.Start(); err != nil {
			logger.Fatal("Server failed", zap.Error(err))
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan

	logger.Info("Shutting down...")
	if watch != nil {
		watch.Stop()
	}
	cancel()
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	_ = srv.Stop(shutdownCtx)
}

// Components holds initialized services.
type Components struct {
	Storage   storage.Storage
	Keywords  keyword.KeywordIndex
	Embedder  embedding.Embedder
	Store     *store.VectorStore
	Indexer   *indexer.Indexer
	RAG       *rag.Service
	Knowledge *knowledge.Builder
}

// Close releases every component in reverse dependency order.
func (c *Components) Close() {
	if c.Store != nil {
		_ = c.Store.Close()
	}
	if c.Embedder != nil {
		_ = c.Embedder.Close()
	}
	if c.Keywords != nil {
		_ = c.Keywords.Close()
	}
	if c.Storage != nil {
		_ = c.Storage.Close()
	}
}

func initializeComponents(ctx context.Context, cfg *config.Config, logger *zap.Logger, debug bool) (c *Components, err error) {
	c = &Components{}
	defer func() {
		if err != nil {
			c.Close()
		}
	}()

	c.Storage, err = storage.Open(cfg.Storage.Backend, cfg.Storage.DatabasePath)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize storage: %w", err)
	}
	kw, err := keyword.NewBleveIndex(cfg.Storage.KeywordIndexPath)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize keyword index: %w", err)
	}
	c.Keywords = kw

	inner, err := embedding.New(embedding.Options{
		Provider:   cfg.Embedding.Provider,
		Model:      cfg.Embedding.Model,
		ModelPath:  cfg.Embedding.ModelPath,
		APIKey:     cfg.Embedding.APIKey,
		BaseURL:    cfg.Embedding.BaseURL,
		Dimensions: cfg.Embedding.Dimensions,
		MaxTokens:  cfg.Embedding.MaxTokens,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to initialize embedder: %w", err)
	}
	c.Embedder = embedding.NewCachedEmbedder(inner, cache.New(cfg.Embedding.CacheSize, cfg.Embedding.CacheTTL),
		cfg.Embedding.CacheTTL, cfg.Embedding.Model, cfg.Embedding.Workers)

	metric, err := vector.ParseMetric(cfg.Index.Metric)
	if err != nil {
		return nil, err
	}
	var debugLogger *zap.Logger
	if debug {
		debugLogger = logger
	}
	manager := vector.NewManager(vector.FactoryFor(cfg.Index.Type), vector.WithLogger(debugLogger))
	storeOpts := []store.Option{store.WithKeywordIndex(c.Keywords), store.WithLogger(logger)}
	if cfg.Storage.KeywordIndexPath != "" {
		storeOpts = append(storeOpts, store.WithDiskPaths(cfg.Storage.KeywordIndexPath))
	}
	c.Store, err = store.Open(ctx, c.Storage, manager, store.Config{
		IndexName: cfg.Index.Name,
		Dimension: cfg.Index.Dimension,
		Metric:    metric,
	}, storeOpts...)
	if err != nil {
		return nil, fmt.Errorf("failed to open vector store: %w", err)
	}
	logger.Info("vector store ready",
		zap.String("backend", cfg.Storage.Backend),
		zap.String("index", cfg.Index.Name),
		zap.Int("dimension", cfg.Index.Dimension),
		zap.String("metric", string(metric)))

	extractor := extract.NewExtractor()
	c.Indexer = indexer.NewIndexer(c.Store, c.Embedder, extractor,
		indexer.WithChunker(chunking.NewWordChunker(cfg.Chunking.ChunkSize, cfg.Chunking.ChunkOverlap)),
		indexer.WithLogger(debugLogger))

	var reranker rag.Reranker = rag.ScoreReranker{}
	if cfg.RAG.Reranker == config.RerankerKeyword {
		reranker = rag.NewKeywordReranker(c.Keywords, cfg.RAG.KeywordWeight)
	}
	c.RAG = rag.NewService(c.Store, c.Embedder, rag.Config{
		DefaultTopK:      cfg.Search.DefaultTopK,
		MaxTopK:          cfg.Search.MaxTopK,
		DefaultThreshold: cfg.Search.DefaultThreshold,
		ContextTopK:      cfg.RAG.TopK,
		ContextThreshold: cfg.RAG.Threshold,
		DefaultMaxTokens: cfg.RAG.MaxTokens,
		CacheTTL:         cfg.RAG.CacheTTL,
	},
		rag.WithReranker(reranker),
		rag.WithCache(cache.New(cfg.RAG.CacheSize, cfg.RAG.CacheTTL)),
		rag.WithLogger(debugLogger))

	c.Knowledge = knowledge.NewBuilder(c.Indexer, c.Storage, knowledge.NewDirectorySource(cfg.Knowledge.Root, extractor),
		knowledge.WithLogger(logger))
	return c, nil
}

func printUsage() {
	fmt.Println(`sakuin - Embedded semantic retrieval engine

Usage:
  sakuin server [flags]                         Start the HTTP server
  sakuin index [flags] <file-or-directory>      Index files into a project
  sakuin remove [flags] <id-or-path>            Remove an indexed document
  sakuin search [flags] <query>                 Semantic search
  sakuin context [flags] <query>                Assemble a token-bounded RAG context
  sakuin kb <build|show|delete> [flags] <project>
                                                Manage project knowledge bases
  sakuin index-admin <list|create|info|delete|optimize> [flags] [name]
                                                Manage vector indices
  sakuin status [flags]                         Show storage and search statistics
  sakuin version                                Show version
  sakuin help                                   Show this help

Common Flags:
  --config string    Config file path (default: /usr/local/etc/sakuin/config.yaml)
  --server string    Server URL (default: http://localhost:8080). Use --server "" to open storage directly.
  --output string    Output format: text or json (default: text)

Examples:
  sakuin server --debug
  sakuin index --project acme ./docs
  sakuin search --project acme --top-k 5 "rollback procedure"
  sakuin context --project acme --max-tokens 1500 "what changed in the last release"
  sakuin kb build acme
  sakuin index-admin create --dim 384 --metric euclidean scratch
  sakuin status --output json`)
}
