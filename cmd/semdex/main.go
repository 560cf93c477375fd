// Package main is the Semdex CLI entry point.
package main

import (
	"bytes"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/hyperjump/semdex/internal/chunker"
	"github.com/hyperjump/semdex/internal/config"
	"github.com/hyperjump/semdex/internal/embedding"
	"github.com/hyperjump/semdex/internal/index"
	"github.com/hyperjump/semdex/internal/indexer"
	"github.com/hyperjump/semdex/internal/models"
	"github.com/hyperjump/semdex/internal/search"
	"github.com/hyperjump/semdex/internal/server"
	"github.com/hyperjump/semdex/internal/storage"
	"github.com/hyperjump/semdex/pkg/utils"
	"go.uber.org/zap"
)

var version = "dev"

const defaultConfigPath = "/usr/local/etc/semdex/config.yaml"

// loadConfig loads config from path. When path is the default, it first looks for
// config.yaml in the current directory (for development); if that exists it is used,
// so that "semdex server" from the project dir uses the project's config.
// Returns the config and the path that was actually loaded.
func loadConfig(path string) (*config.Config, string, error) {
	if path == defaultConfigPath {
		if cwd, cwdErr := os.Getwd(); cwdErr == nil {
			fallback := filepath.Join(cwd, "config.yaml")
			if _, statErr := os.Stat(fallback); statErr == nil {
				cfg, loadErr := config.Load(fallback)
				if loadErr != nil {
					return nil, "", loadErr
				}
				return cfg, fallback, nil
			}
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
	switch command {
	case "server":
		runServer()
	case "search":
		runSearch()
	case "similar":
		runSimilar()
	case "ingest":
		runIngest()
	case "delete":
		runDelete()
	case "stats":
		runStats()
	case "clear":
		runClear()
	case "version", "--version", "-v":
		fmt.Printf("semdex version %s\n", version)
	case "help", "--help", "-h":
		printUsage()
	default:
		fmt.Printf("Unknown command: %s\n", command)
		printUsage()
		os.Exit(1)
	}
}

func runServer() {
	fs := flag.NewFlagSet("server", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "config file path")
	debug := fs.Bool("debug", false, "enable debug logging")
	mock := fs.Bool("mock-embedder", false, "use the deterministic mock embedder instead of the HTTP service")
	_ = fs.Parse(os.Args[2:])

	cfg, resolvedConfigPath, err := loadConfig(*configPath)
	if err != nil {
		fmt.Printf("Failed to load config: %v\n", err)
		os.Exit(1)
	}
	debugMode := cfg.Debug || *debug
	logger, err := utils.NewLogger(debugMode)
	if err != nil {
		fmt.Printf("Failed to create logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	logger.Info("config loaded",
		zap.String("config_path", resolvedConfigPath),
		zap.Bool("debug", debugMode),
	)

	components, err := initializeComponents(cfg, logger, debugMode, *mock)
	if err != nil {
		logger.Fatal("Failed to initialize components", zap.Error(err))
	}
	defer components.Close()

	srv := server.NewServer(components.Engine, components.Indexer, &cfg.Server, logger)
	go func() {
		if err := srv.Start(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("Server failed", zap.Error(err))
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan

	logger.Info("Shutting down...")
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	_ = srv.Stop(ctx)
}

// buildQueryText joins all positional args with spaces so multi-word queries
// work the same with or without shell quoting.
func buildQueryText(args []string) string {
	return strings.TrimSpace(strings.Join(args, " "))
}

func runSearch() {
	fs := flag.NewFlagSet("search", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "config file path (direct mode)")
	serverURL := fs.String("server", "http://localhost:8080", "server URL (empty = open the index directly)")
	topK := fs.Int("top-k", models.DefaultTopK, "number of results")
	threshold := fs.Float64("threshold", models.DefaultThreshold, "minimum similarity score")
	urlFilter := fs.String("url", "", "only return results whose URL matches this regex")
	contentType := fs.String("content-type", "", "content type filter: technical or marketing")
	recency := fs.String("recency", "", "recency filter: recent (30 days) or 6months")
	outputFormat := fs.String("output", "text", "output format: text or json")
	_ = fs.Parse(os.Args[2:])

	queryStr := buildQueryText(fs.Args())
	if queryStr == "" {
		fmt.Println("Usage: semdex search [flags] <query>")
		os.Exit(1)
	}

	filters := map[string]string{}
	if *urlFilter != "" {
		filters["url"] = *urlFilter
	}
	if *contentType != "" {
		filters["content_type"] = *contentType
	}
	if *recency != "" {
		filters["recency"] = *recency
	}
	if len(filters) == 0 {
		filters = nil
	}
	query := &models.SearchQuery{
		Query:     queryStr,
		TopK:      *topK,
		Threshold: threshold,
		Filters:   filters,
	}

	var response *models.SearchResponse
	var err error
	if *serverURL != "" {
		response, err = postViaHTTP(*serverURL, "/api/v1/search", query)
	} else {
		response, err = searchDirect(*configPath, query)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "Search failed: %v\n", err)
		os.Exit(1)
	}
	writeResults(response, *outputFormat)
}

func runSimilar() {
	fs := flag.NewFlagSet("similar", flag.ExitOnError)
	serverURL := fs.String("server", "http://localhost:8080", "server URL")
	topK := fs.Int("top-k", models.DefaultTopK, "number of results")
	threshold := fs.Float64("threshold", models.DefaultSimilarThreshold, "minimum similarity score")
	urlFilter := fs.String("url", "", "only return results whose URL matches this regex")
	outputFormat := fs.String("output", "text", "output format: text or json")
	_ = fs.Parse(os.Args[2:])

	reference := buildQueryText(fs.Args())
	if reference == "" {
		fmt.Println("Usage: semdex similar [flags] <reference text>")
		os.Exit(1)
	}

	query := &models.SimilarQuery{
		Reference: reference,
		TopK:      *topK,
		Threshold: threshold,
		URLFilter: *urlFilter,
	}
	response, err := postViaHTTP(*serverURL, "/api/v1/similar", query)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Similar search failed: %v\n", err)
		os.Exit(1)
	}
	writeResults(response, *outputFormat)
}

func runIngest() {
	fs := flag.NewFlagSet("ingest", flag.ExitOnError)
	serverURL := fs.String("server", "http://localhost:8080", "server URL")
	pageURL := fs.String("url", "", "source URL of the page (required)")
	title := fs.String("title", "", "page title")
	replace := fs.Bool("replace", false, "replace any previously indexed content for this URL")
	_ = fs.Parse(os.Args[2:])

	if *pageURL == "" {
		fmt.Println("Usage: semdex ingest --url <url> [flags] [file]")
		fmt.Println("Reads extracted page text from the file argument, or stdin when omitted.")
		os.Exit(1)
	}

	var content []byte
	var err error
	if fs.NArg() > 0 {
		content, err = os.ReadFile(fs.Arg(0))
	} else {
		content, err = io.ReadAll(os.Stdin)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to read content: %v\n", err)
		os.Exit(1)
	}

	input := &models.PageInput{URL: *pageURL, Title: *title, Content: string(content)}
	path := "/api/v1/pages"
	if *replace {
		path += "?replace=true"
	}
	body, _ := json.Marshal(input)
	resp, err := http.Post(*serverURL+path, "application/json", bytes.NewReader(body))
	if err != nil {
		fmt.Fprintf(os.Stderr, "Request failed: %v\n", err)
		os.Exit(1)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusCreated {
		b, _ := io.ReadAll(resp.Body)
		fmt.Fprintf(os.Stderr, "Ingest failed (%d): %s\n", resp.StatusCode, string(b))
		os.Exit(1)
	}
	var out struct {
		Chunks int `json:"chunks"`
	}
	_ = json.NewDecoder(resp.Body).Decode(&out)
	fmt.Printf("Indexed %s (%d chunks)\n", *pageURL, out.Chunks)
}

func runDelete() {
	fs := flag.NewFlagSet("delete", flag.ExitOnError)
	serverURL := fs.String("server", "http://localhost:8080", "server URL")
	_ = fs.Parse(os.Args[2:])

	if fs.NArg() < 1 {
		fmt.Println("Usage: semdex delete [flags] <url>")
		os.Exit(1)
	}
	pageURL := fs.Arg(0)

	req, _ := http.NewRequest(http.MethodDelete,
		*serverURL+"/api/v1/pages?url="+url.QueryEscape(pageURL), nil)
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Request failed: %v\n", err)
		os.Exit(1)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		b, _ := io.ReadAll(resp.Body)
		fmt.Fprintf(os.Stderr, "Delete failed (%d): %s\n", resp.StatusCode, string(b))
		os.Exit(1)
	}
	var out struct {
		Removed int `json:"removed"`
	}
	_ = json.NewDecoder(resp.Body).Decode(&out)
	fmt.Printf("Deleted %s (%d chunks)\n", pageURL, out.Removed)
}

func runStats() {
	fs := flag.NewFlagSet("stats", flag.ExitOnError)
	serverURL := fs.String("server", "http://localhost:8080", "server URL")
	outputFormat := fs.String("output", "text", "output format: text or json")
	_ = fs.Parse(os.Args[2:])

	resp, err := http.Get(*serverURL + "/api/v1/stats")
	if err != nil {
		fmt.Fprintf(os.Stderr, "Request failed: %v\n", err)
		os.Exit(1)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		b, _ := io.ReadAll(resp.Body)
		fmt.Fprintf(os.Stderr, "Stats failed (%d): %s\n", resp.StatusCode, string(b))
		os.Exit(1)
	}
	var stats models.Stats
	if err := json.NewDecoder(resp.Body).Decode(&stats); err != nil {
		fmt.Fprintf(os.Stderr, "Parse failed: %v\n", err)
		os.Exit(1)
	}

	switch *outputFormat {
	case "json":
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		_ = enc.Encode(&stats)
	case "text":
		fmt.Printf("total_documents:     %d   # count of indexed chunks\n", stats.TotalDocuments)
		fmt.Printf("total_embeddings:    %d\n", stats.TotalEmbeddings)
		fmt.Printf("embedding_dimension: %d\n", stats.EmbeddingDimension)
		fmt.Printf("indexed_urls:        %d\n", stats.IndexedURLs)
		fmt.Printf("model:               %s\n", stats.Model)
		fmt.Printf("chunk_method:        %s\n", stats.ChunkMethod)
		fmt.Printf("storage_path:        %s\n", stats.StoragePath)
		if !stats.LastUpdated.IsZero() {
			fmt.Printf("last_updated:        %s\n", stats.LastUpdated.Format(time.RFC3339))
		}
	default:
		fmt.Fprintf(os.Stderr, "Unknown output format %q; use text or json\n", *outputFormat)
		os.Exit(1)
	}
}

func runClear() {
	fs := flag.NewFlagSet("clear", flag.ExitOnError)
	serverURL := fs.String("server", "http://localhost:8080", "server URL")
	_ = fs.Parse(os.Args[2:])

	req, _ := http.NewRequest(http.MethodDelete, *serverURL+"/api/v1/index", nil)
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Request failed: %v\n", err)
		os.Exit(1)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		b, _ := io.ReadAll(resp.Body)
		fmt.Fprintf(os.Stderr, "Clear failed (%d): %s\n", resp.StatusCode, string(b))
		os.Exit(1)
	}
	fmt.Println("Index cleared")
}

func postViaHTTP(serverURL, path string, query interface{}) (*models.SearchResponse, error) {
	body, err := json.Marshal(query)
	if err != nil {
		return nil, err
	}
	resp, err := http.Post(serverURL+path, "application/json", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		b, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("server returned %d: %s", resp.StatusCode, string(b))
	}
	var response models.SearchResponse
	if err := json.NewDecoder(resp.Body).Decode(&response); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	return &response, nil
}

// searchDirect opens the on-disk index without a running server.
func searchDirect(configPath string, query *models.SearchQuery) (*models.SearchResponse, error) {
	cfg, _, err := loadConfig(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	logger, err := utils.NewLogger(cfg.Debug)
	if err != nil {
		return nil, fmt.Errorf("failed to create logger: %w", err)
	}
	defer logger.Sync()

	components, err := initializeComponents(cfg, logger, cfg.Debug, false)
	if err != nil {
		return nil, err
	}
	defer components.Close()
	return components.Engine.Search(context.Background(), query)
}

func writeResults(response *models.SearchResponse, format string) {
	switch format {
	case "json":
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		if err := enc.Encode(response); err != nil {
			fmt.Fprintf(os.Stderr, "Output failed: %v\n", err)
			os.Exit(1)
		}
	case "text":
		if response.Total == 0 {
			fmt.Println("No results")
			return
		}
		for i, r := range response.Results {
			fmt.Printf("%d. [%.3f] %s\n", i+1, r.Score, r.URL)
			if r.Title != "" {
				fmt.Printf("   %s\n", r.Title)
			}
			fmt.Printf("   %s\n", utils.Truncate(r.Content, 160))
		}
		fmt.Printf("\n%d result(s) in %dms\n", response.Total, response.QueryTime)
	default:
		fmt.Fprintf(os.Stderr, "Unknown output format %q; use text or json\n", format)
		os.Exit(1)
	}
}

// Components holds initialized services.
type Components struct {
	Store    *index.Store
	Provider embedding.Provider
	Disk     *storage.DiskStore
	Engine   *search.Engine
	Indexer  *indexer.Indexer
}

func (c *Components) Close() {
	if c.Provider != nil {
		_ = c.Provider.Close()
	}
	if c.Disk != nil {
		_ = c.Disk.Close()
	}
}

func initializeComponents(cfg *config.Config, logger *zap.Logger, debug, mockEmbedder bool) (*Components, error) {
	var provider embedding.Provider
	if mockEmbedder {
		provider = embedding.NewMockProvider(cfg.Embedding.Dimensions)
	} else {
		httpOpts := []embedding.HTTPProviderOption{}
		if debug {
			httpOpts = append(httpOpts, embedding.WithLogger(logger))
		}
		if key := cfg.Embedding.APIKey(); key != "" {
			httpOpts = append(httpOpts, embedding.WithAPIKey(key))
		}
		provider = embedding.NewHTTPProvider(
			cfg.Embedding.BaseURL,
			cfg.Embedding.Model,
			cfg.Embedding.Dimensions,
			cfg.Embedding.BatchSize,
			httpOpts...,
		)
	}
	if cfg.Embedding.CacheSize > 0 {
		provider = embedding.NewCachedProvider(provider, cfg.Embedding.CacheSize)
	}

	method, err := chunker.ParseMethod(cfg.Index.ChunkMethod)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize chunker: %w", err)
	}
	ck, err := chunker.New(method, cfg.Index.ChunkSize, cfg.Index.ChunkOverlap)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize chunker: %w", err)
	}

	var disk *storage.DiskStore
	if !cfg.Storage.InMemory {
		disk, err = storage.Open(cfg.Storage.IndexPath)
		if err != nil {
			return nil, fmt.Errorf("failed to open index storage: %w", err)
		}
	}

	store := index.New()
	idxOpts := []indexer.Option{}
	engineOpts := []search.Option{}
	if debug {
		idxOpts = append(idxOpts, indexer.WithLogger(logger))
		engineOpts = append(engineOpts, search.WithLogger(logger))
	}
	idx := indexer.New(store, provider, ck, disk, idxOpts...)
	if err := idx.Load(); err != nil {
		if disk != nil {
			_ = disk.Close()
		}
		return nil, fmt.Errorf("failed to load index: %w", err)
	}
	engine := search.NewEngine(store, provider, engineOpts...)

	return &Components{
		Store:    store,
		Provider: provider,
		Disk:     disk,
		Engine:   engine,
		Indexer:  idx,
	}, nil
}

func printUsage() {
	fmt.Println(`semdex - Semantic content index for crawled pages

Usage:
  semdex server [flags]             Start the HTTP server
  semdex search [flags] <query>     Search indexed content
  semdex similar [flags] <text>     Find content similar to a reference text
  semdex ingest [flags] [file]      Index extracted page text (stdin when no file)
  semdex delete [flags] <url>       Remove all chunks of a URL
  semdex stats [flags]              Show index statistics
  semdex clear [flags]              Remove everything from the index
  semdex version                    Show version
  semdex help                       Show this help

Server Flags:
  --config string    Config file path (default: /usr/local/etc/semdex/config.yaml)
  --debug            Enable debug logging
  --mock-embedder    Use the deterministic mock embedder (development only)

Search Flags:
  --server string        Server URL (default: http://localhost:8080). Use empty (--server "") to open the index directly.
  --config string        Config file path (direct mode)
  --top-k int            Number of results (default: 5, max: 100)
  --threshold float      Minimum similarity score (default: 0.3)
  --url string           Only return results whose URL matches this regex
  --content-type string  Filter: technical or marketing
  --recency string       Filter: recent (30 days) or 6months
  --output string        Output format: text or json (default: text)

Ingest Flags:
  --server string    Server URL (default: http://localhost:8080)
  --url string       Source URL of the page (required)
  --title string     Page title
  --replace          Replace previously indexed content for this URL

Examples:
  semdex server
  semdex search "vector database tradeoffs"
  semdex search --content-type technical --recency recent "api authentication"
  semdex similar --threshold 0.9 "some reference paragraph"
  semdex ingest --url https://example.com/docs --title "Docs" page.txt
  semdex delete https://example.com/docs
  semdex stats --output json`)
}
