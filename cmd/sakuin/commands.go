package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"strings"

	"github.com/hyperjump/sakuin/internal/cli"
	"github.com/hyperjump/sakuin/internal/fileid"
	"github.com/hyperjump/sakuin/internal/models"
	"github.com/hyperjump/sakuin/internal/vector"
)

// commonFlags are shared by every command that can talk to a server.
type commonFlags struct {
	configPath *string
	serverURL  *string
	output     *string
	debug      *bool
}

func addCommonFlags(fs *flag.FlagSet) commonFlags {
	return commonFlags{
		configPath: fs.String("config", defaultConfigPath, "config file path"),
		serverURL:  fs.String("server", defaultServerURL, "server URL (empty = use direct storage when server is not running)"),
		output:     fs.String("output", "text", "output format: text or json"),
		debug:      fs.Bool("debug", false, "enable debug logging"),
	}
}

// open returns the backend selected by the flags and a cleanup func.
func (f commonFlags) open() (backend, func()) {
	if *f.serverURL != "" {
		return newHTTPBackend(*f.serverURL), func() {}
	}
	_, logger, components := setup(*f.configPath, *f.debug)
	return localBackend{c: components}, func() {
		components.Close()
		_ = logger.Sync()
	}
}

func (f commonFlags) format() cli.OutputFormat {
	switch *f.output {
	case "text", "json":
		return cli.ParseFormat(*f.output)
	default:
		fatalf("Unknown output format %q; use text or json", *f.output)
		return cli.OutputText
	}
}

func runIndex(args []string) {
	fs := flag.NewFlagSet("index", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "config file path")
	projectID := fs.String("project", "", "project the indexed files belong to")
	debug := fs.Bool("debug", false, "enable debug logging")
	_ = fs.Parse(searchArgsReorder(args))

	if fs.NArg() < 1 {
		fmt.Println("Usage: sakuin index [flags] <file-or-directory>")
		os.Exit(1)
	}
	path := fs.Arg(0)

	cfg, logger, components := setup(*configPath, *debug)
	defer logger.Sync()
	defer components.Close()

	ctx := context.Background()
	info, err := os.Stat(path)
	if err != nil {
		fatalf("Failed to stat path: %v", err)
	}
	if info.IsDir() {
		n, err := components.Indexer.IndexDirectory(ctx, path, cfg.Watch.Extensions, *projectID)
		if err != nil {
			fatalf("Indexing directory failed: %v", err)
		}
		fmt.Printf("Indexed %d file(s) from %s\n", n, path)
		return
	}
	// Single file: no extension filter
	if err := components.Indexer.IndexFile(ctx, path, nil, *projectID); err != nil {
		fatalf("Indexing failed: %v", err)
	}
	_, id, _ := fileid.Resolve(path)
	fmt.Printf("Document indexed successfully: %s\n", id)
}

func runRemove(args []string) {
	fs := flag.NewFlagSet("remove", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "config file path")
	debug := fs.Bool("debug", false, "enable debug logging")
	_ = fs.Parse(args)

	if fs.NArg() < 1 {
		fmt.Println("Usage: sakuin remove [flags] <document-id-or-path>")
		os.Exit(1)
	}
	target := fs.Arg(0)

	_, logger, components := setup(*configPath, *debug)
	defer logger.Sync()
	defer components.Close()

	ctx := context.Background()
	if _, err := os.Stat(target); err == nil {
		if err := components.Indexer.RemoveFile(ctx, target); err != nil {
			fatalf("Removal failed: %v", err)
		}
		fmt.Printf("File removed from index: %s\n", target)
		return
	}
	if err := components.Indexer.RemoveIndex(ctx, target); err != nil {
		fatalf("Removal failed: %v", err)
	}
	fmt.Printf("Document removed: %s\n", target)
}

// buildSearchQuery joins positional args into the query string.
func buildSearchQuery(args []string) string {
	return strings.TrimSpace(strings.Join(args, " "))
}

// searchArgsReorder moves any flags (and their values) that appear after the query
// to the front of the slice so that flag.Parse() sees them. Go's flag package
// stops at the first non-flag argument, so `sakuin search "query" --top-k 5`
// would otherwise leave --top-k unparsed.
func searchArgsReorder(args []string) []string {
	for i, a := range args {
		if len(a) > 0 && a[0] == '-' {
			if i == 0 {
				return args
			}
			reordered := make([]string, 0, len(args))
			reordered = append(reordered, args[i:]...)
			reordered = append(reordered, args[:i]...)
			return reordered
		}
	}
	return args
}

// splitList splits a comma-separated flag value, dropping blanks.
func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

// searchFilters builds filters from comma-separated flag values; nil when all are empty.
func searchFilters(projects, types, languages, tags string) *models.SearchFilters {
	f := &models.SearchFilters{
		ProjectIDs: splitList(projects),
		Languages:  splitList(languages),
		Tags:       splitList(tags),
	}
	for _, t := range splitList(types) {
		f.ContentTypes = append(f.ContentTypes, models.ContentType(t))
	}
	if len(f.ProjectIDs)+len(f.ContentTypes)+len(f.Languages)+len(f.Tags) == 0 {
		return nil
	}
	return f
}

func runSearch(args []string) {
	fs := flag.NewFlagSet("search", flag.ExitOnError)
	common := addCommonFlags(fs)
	topK := fs.Int("top-k", 0, "number of results (0 = server default)")
	threshold := fs.Float64("threshold", 0, "minimum similarity score (0 = server default)")
	projects := fs.String("project", "", "comma-separated project ids")
	types := fs.String("type", "", "comma-separated content types (transcription, document, note)")
	languages := fs.String("language", "", "comma-separated languages")
	tags := fs.String("tag", "", "comma-separated tags")
	chunks := fs.Bool("chunks", false, "group matching chunks per document")
	rerank := fs.Bool("rerank", false, "rerank results with the configured reranker")
	_ = fs.Parse(searchArgsReorder(args))

	query := buildSearchQuery(fs.Args())
	if query == "" {
		fmt.Println("Usage: sakuin search [flags] <query>")
		fs.PrintDefaults()
		os.Exit(1)
	}
	format := common.format()

	b, done := common.open()
	defer done()
	resp, err := b.Search(context.Background(), models.SemanticSearchRequest{
		Query:   query,
		Filters: searchFilters(*projects, *types, *languages, *tags),
		Options: models.SearchOptions{
			TopK:            *topK,
			Threshold:       *threshold,
			IncludeChunks:   *chunks,
			EnableReranking: *rerank,
		},
	})
	if err != nil {
		fatalf("Search failed: %v", err)
	}
	if err := cli.WriteSearchResults(os.Stdout, resp, format); err != nil {
		fatalf("Output failed: %v", err)
	}
}

func runContext(args []string) {
	fs := flag.NewFlagSet("context", flag.ExitOnError)
	common := addCommonFlags(fs)
	projectID := fs.String("project", "", "restrict context to one project")
	maxTokens := fs.Int("max-tokens", 0, "token budget (0 = configured default)")
	_ = fs.Parse(searchArgsReorder(args))

	query := buildSearchQuery(fs.Args())
	if query == "" {
		fmt.Println("Usage: sakuin context [flags] <query>")
		fs.PrintDefaults()
		os.Exit(1)
	}
	format := common.format()

	b, done := common.open()
	defer done()
	rc, err := b.Context(context.Background(), query, *projectID, *maxTokens)
	if err != nil {
		fatalf("Context retrieval failed: %v", err)
	}
	if err := cli.WriteContext(os.Stdout, rc, format); err != nil {
		fatalf("Output failed: %v", err)
	}
}

func runKnowledgeBase(args []string) {
	if len(args) < 1 {
		fmt.Println("Usage: sakuin kb <build|show|delete> [flags] <project>")
		os.Exit(1)
	}
	action := args[0]
	fs := flag.NewFlagSet("kb "+action, flag.ExitOnError)
	common := addCommonFlags(fs)
	transcriptions := fs.Bool("transcriptions", true, "include transcriptions (build)")
	documents := fs.Bool("documents", true, "include documents (build)")
	_ = fs.Parse(searchArgsReorder(args[1:]))

	if fs.NArg() < 1 {
		fmt.Printf("Usage: sakuin kb %s [flags] <project>\n", action)
		os.Exit(1)
	}
	projectID := fs.Arg(0)
	format := common.format()

	b, done := common.open()
	defer done()
	ctx := context.Background()
	switch action {
	case "build":
		kb, err := b.BuildKnowledgeBase(ctx, projectID, *transcriptions, *documents)
		if err != nil {
			fatalf("Knowledge base build failed: %v", err)
		}
		_ = cli.WriteKnowledgeBase(os.Stdout, kb, format)
	case "show":
		kb, err := b.GetKnowledgeBase(ctx, projectID)
		if err != nil {
			fatalf("Knowledge base lookup failed: %v", err)
		}
		_ = cli.WriteKnowledgeBase(os.Stdout, kb, format)
	case "delete":
		if err := b.DeleteKnowledgeBase(ctx, projectID); err != nil {
			fatalf("Knowledge base deletion failed: %v", err)
		}
		fmt.Printf("Knowledge base deleted: %s\n", projectID)
	default:
		fatalf("Unknown kb action: %s (use build, show or delete)", action)
	}
}

func runIndexAdmin(args []string) {
	if len(args) < 1 {
		fmt.Println("Usage: sakuin index-admin <list|create|info|delete|optimize> [flags] [name]")
		os.Exit(1)
	}
	action := args[0]
	fs := flag.NewFlagSet("index-admin "+action, flag.ExitOnError)
	common := addCommonFlags(fs)
	dim := fs.Int("dim", 0, "vector dimension (create)")
	metric := fs.String("metric", "cosine", "similarity metric: cosine, euclidean, dotProduct or manhattan (create)")
	_ = fs.Parse(searchArgsReorder(args[1:]))

	name := fs.Arg(0)
	if action != "list" && name == "" {
		fmt.Printf("Usage: sakuin index-admin %s [flags] <name>\n", action)
		os.Exit(1)
	}
	format := common.format()

	b, done := common.open()
	defer done()
	ctx := context.Background()
	switch action {
	case "list":
		infos, err := b.ListIndices(ctx)
		if err != nil {
			fatalf("Listing indices failed: %v", err)
		}
		_ = cli.WriteIndices(os.Stdout, infos, format)
	case "create":
		info, err := b.CreateIndex(ctx, name, *dim, *metric)
		if err != nil {
			fatalf("Index creation failed: %v", err)
		}
		_ = cli.WriteIndices(os.Stdout, []vector.IndexInfo{info}, format)
	case "info":
		info, err := b.GetIndexInfo(ctx, name)
		if err != nil {
			fatalf("Index lookup failed: %v", err)
		}
		_ = cli.WriteIndices(os.Stdout, []vector.IndexInfo{info}, format)
	case "optimize":
		info, err := b.OptimizeIndex(ctx, name)
		if err != nil {
			fatalf("Index optimization failed: %v", err)
		}
		_ = cli.WriteIndices(os.Stdout, []vector.IndexInfo{info}, format)
	case "delete":
		if err := b.DeleteIndex(ctx, name); err != nil {
			fatalf("Index deletion failed: %v", err)
		}
		fmt.Printf("Index deleted: %s\n", name)
	default:
		fatalf("Unknown index-admin action: %s", action)
	}
}

func runStatus(args []string) {
	fs := flag.NewFlagSet("status", flag.ExitOnError)
	common := addCommonFlags(fs)
	_ = fs.Parse(args)
	format := common.format()

	b, done := common.open()
	defer done()
	stats, perf, err := b.Stats(context.Background())
	if err != nil {
		fatalf("Status failed: %v", err)
	}
	if err := cli.WriteStats(os.Stdout, stats, perf, format); err != nil {
		fatalf("Output failed: %v", err)
	}
}
