// Package main is the legalease CLI entry point.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/fatih/color"
	"go.uber.org/zap"

	"github.com/hyperjump/legalease/internal/analysis"
	"github.com/hyperjump/legalease/internal/apperr"
	"github.com/hyperjump/legalease/internal/cli"
	"github.com/hyperjump/legalease/internal/config"
	"github.com/hyperjump/legalease/internal/embedding"
	"github.com/hyperjump/legalease/internal/extract"
	"github.com/hyperjump/legalease/internal/indexer"
	"github.com/hyperjump/legalease/internal/keyword"
	"github.com/hyperjump/legalease/internal/llm"
	"github.com/hyperjump/legalease/internal/models"
	"github.com/hyperjump/legalease/internal/ranking"
	"github.com/hyperjump/legalease/internal/retrieval"
	"github.com/hyperjump/legalease/internal/server"
	"github.com/hyperjump/legalease/internal/storage"
	"github.com/hyperjump/legalease/internal/vector"
	"github.com/hyperjump/legalease/internal/watcher"
	"github.com/hyperjump/legalease/internal/workflow"
	"github.com/hyperjump/legalease/pkg/utils"
)

var version = "dev"

const (
	defaultConfigPath = "/usr/local/etc/legalease/config.yaml"
	defaultServerURL  = "http://localhost:8080"
)

// loadConfig loads config from path. When path is the default and a
// config.yaml exists in the current directory, that file is used instead.
// Returns the config and the path that was actually loaded.
func loadConfig(path string) (*config.Config, string, error) {
	if path == defaultConfigPath {
		if cwd, err := os.Getwd(); err == nil {
			fallback := filepath.Join(cwd, "config.yaml")
			if _, statErr := os.Stat(fallback); statErr == nil {
				path = fallback
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
	args := os.Args[2:]
	switch command {
	case "server":
		runServer(args)
	case "ingest":
		runIngest(args)
	case "analyze":
		runAnalyze(args)
	case "chat":
		runChat(args)
	case "status":
		runStatus(args)
	case "list":
		runList(args)
	case "delete":
		runDelete(args)
	case "stats":
		runStats(args)
	case "watch":
		runWatch(args)
	case "version", "--version", "-v":
		fmt.Printf("legalease version %s\n", version)
	case "help", "--help", "-h":
		printUsage()
	default:
		fmt.Printf("Unknown command: %s\n", command)
		printUsage()
		os.Exit(1)
	}
}

// fail prints err in red and exits. Retryable errors get a hint.
func fail(format string, err error) {
	color.New(color.FgRed).Fprintf(os.Stderr, format+"\n", err)
	switch apperr.KindOf(err) {
	case apperr.KindDocumentNotReady:
		fmt.Fprintln(os.Stderr, "The document is not ingested yet; run `legalease status <id>` or ingest it first.")
	case apperr.KindModelUnavailable:
		fmt.Fprintln(os.Stderr, "The language model did not respond; check the llm settings and try again.")
	}
	os.Exit(1)
}

// argsReorder moves flags that appear after positional arguments to the front
// so flag.Parse sees them ("legalease chat doc_1 question --output json").
func argsReorder(args []string) []string {
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

func runServer(args []string) {
	fs := flag.NewFlagSet("server", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "config file path")
	debug := fs.Bool("debug", false, "enable debug logging")
	_ = fs.Parse(args)

	cfg, resolvedConfigPath, err := loadConfig(*configPath)
	if err != nil {
		fmt.Printf("Failed to load config: %v\n", err)
		os.Exit(1)
	}
	cfg.Debug = cfg.Debug || *debug
	logger, err := utils.NewLogger(cfg.Debug)
	if err != nil {
		fmt.Printf("Failed to create logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()
	logger.Info("config loaded",
		zap.String("config_path", resolvedConfigPath),
		zap.Bool("debug", cfg.Debug),
		zap.String("llm", cfg.LLM.Provider+"/"+cfg.LLM.Model),
		zap.String("vector_backend", cfg.Vector.Backend),
		zap.String("cache_backend", cfg.Cache.Backend),
	)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	components, err := initializeComponents(ctx, cfg, logger)
	if err != nil {
		logger.Fatal("failed to initialize components", zap.Error(err))
	}
	defer components.Close()

	inbox := watcher.New(components.Service, cfg.Watch.Directories, cfg.Watch.Extensions,
		cfg.Watch.RecursiveOrDefault(),
		watcher.WithLogger(logger),
		watcher.WithResultHandler(func(path string, res *models.IngestResult, err error) {
			if err == nil && res != nil {
				logger.Info("inbox file ingested",
					zap.String("path", path),
					zap.String("document_id", res.DocumentID),
					zap.Int("chunks", res.ChunkCount))
			}
		}),
	)
	if err := inbox.Start(ctx); err != nil {
		logger.Fatal("failed to start inbox", zap.Error(err))
	}
	defer inbox.Stop()
	go inbox.SyncExisting()

	srv := server.NewServer(components.Service, cfg, logger, inbox, resolvedConfigPath)
	errCh := make(chan error, 1)
	go func() {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
	case err := <-errCh:
		logger.Error("server failed", zap.Error(err))
	}

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	_ = srv.Stop(shutdownCtx)
}

func runIngest(args []string) {
	fs := flag.NewFlagSet("ingest", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "config file path")
	id := fs.String("id", "", "document ID (single file only; default derived from the path)")
	title := fs.String("title", "", "document title (single file only)")
	outputFormat := fs.String("output", "text", "output format: text or json")
	_ = fs.Parse(argsReorder(args))

	if fs.NArg() < 1 {
		fmt.Println("Usage: legalease ingest [flags] <file-or-directory>")
		os.Exit(1)
	}
	path := fs.Arg(0)
	format := cli.ParseOutputFormat(*outputFormat)

	cfg, _, err := loadConfig(*configPath)
	if err != nil {
		fmt.Printf("Failed to load config: %v\n", err)
		os.Exit(1)
	}
	logger, err := utils.NewLogger(cfg.Debug)
	if err != nil {
		fmt.Printf("Failed to create logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	ctx := context.Background()
	components, err := initializeComponents(ctx, cfg, logger)
	if err != nil {
		logger.Fatal("failed to initialize", zap.Error(err))
	}
	defer components.Close()
	svc := components.Service

	info, err := os.Stat(path)
	if err != nil {
		fail("Failed to stat path: %v", err)
	}
	if info.IsDir() {
		files, err := indexer.ListFiles(path, cfg.Watch.Extensions)
		if err != nil {
			fail("Listing directory failed: %v", err)
		}
		bar := cli.NewProgressBar(os.Stderr, len(files), "Ingesting")
		var failed []string
		n, _ := svc.IngestDirectory(ctx, path, cfg.Watch.Extensions, func(p string, err error) {
			_ = bar.Add(1)
			if err != nil {
				failed = append(failed, fmt.Sprintf("%s: %v", p, err))
			}
		})
		_ = bar.Finish()
		fmt.Fprintln(os.Stderr)
		color.Green("Ingested %d of %d file(s) from %s", n, len(files), path)
		for _, f := range failed {
			color.Red("  ✗ %s", f)
		}
		if len(failed) > 0 {
			components.Close()
			os.Exit(1)
		}
		return
	}

	var res *models.IngestResult
	if *id != "" || *title != "" {
		content, readErr := os.ReadFile(path)
		if readErr != nil {
			fail("Failed to read file: %v", readErr)
		}
		name := *title
		if name == "" {
			name = filepath.Base(path)
		}
		res, err = svc.IngestFile(ctx, filepath.Base(path), content, *id, name)
	} else {
		res, err = svc.IngestPath(ctx, path, nil)
	}
	if errors.Is(err, indexer.ErrUnchanged) {
		color.Yellow("Unchanged since last ingest: %s", path)
		return
	}
	if err != nil {
		fail("Ingest failed: %v", err)
	}
	if err := cli.WriteIngestResult(os.Stdout, res, format); err != nil {
		fail("Output failed: %v", err)
	}
}

// readFlags are the flags shared by the commands that can go through a server.
type readFlags struct {
	configPath *string
	serverURL  *string
	output     *string
	timeout    *time.Duration
}

func addReadFlags(fs *flag.FlagSet) readFlags {
	return readFlags{
		configPath: fs.String("config", defaultConfigPath, "config file path (direct mode)"),
		serverURL:  fs.String("server", defaultServerURL, "server URL (empty = open the indices directly)"),
		output:     fs.String("output", "text", "output format: text or json"),
		timeout:    fs.Duration("timeout", 5*time.Minute, "request timeout"),
	}
}

// withService opens the indices directly and runs fn against the service.
func withService(configPath string, fn func(ctx context.Context, svc *analysis.Service) error) error {
	cfg, _, err := loadConfig(configPath)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	logger, err := utils.NewLogger(cfg.Debug)
	if err != nil {
		return fmt.Errorf("failed to create logger: %w", err)
	}
	defer logger.Sync()
	ctx := context.Background()
	components, err := initializeComponents(ctx, cfg, logger)
	if err != nil {
		return fmt.Errorf("failed to initialize: %w", err)
	}
	defer components.Close()
	return fn(ctx, components.Service)
}

func runAnalyze(args []string) {
	fs := flag.NewFlagSet("analyze", flag.ExitOnError)
	rf := addReadFlags(fs)
	_ = fs.Parse(argsReorder(args))
	if fs.NArg() < 2 {
		fmt.Println("Usage: legalease analyze [flags] <document-id> <summary|clauses|dates|risks|entities|breakdown|mindmap>")
		os.Exit(1)
	}
	documentID := fs.Arg(0)
	t, err := models.ParseAnalysisType(fs.Arg(1))
	if err != nil {
		fail("%v", err)
	}

	var result *models.AnalysisResult
	if *rf.serverURL != "" {
		ctx, cancel := context.WithTimeout(context.Background(), *rf.timeout)
		defer cancel()
		result, err = newAPIClient(*rf.serverURL, *rf.timeout).analyze(ctx, documentID, t)
	} else {
		err = withService(*rf.configPath, func(ctx context.Context, svc *analysis.Service) error {
			var runErr error
			result, runErr = svc.Analyze(ctx, documentID, t)
			return runErr
		})
	}
	if err != nil {
		fail("Analysis failed: %v", err)
	}
	if err := cli.WriteAnalysis(os.Stdout, result, cli.ParseOutputFormat(*rf.output)); err != nil {
		fail("Output failed: %v", err)
	}
}

func runChat(args []string) {
	fs := flag.NewFlagSet("chat", flag.ExitOnError)
	rf := addReadFlags(fs)
	_ = fs.Parse(argsReorder(args))
	if fs.NArg() < 2 {
		fmt.Println("Usage: legalease chat [flags] <document-id> <question>")
		os.Exit(1)
	}
	documentID := fs.Arg(0)
	question := strings.TrimSpace(strings.Join(fs.Args()[1:], " "))

	var (
		result *models.AnalysisResult
		err    error
	)
	if *rf.serverURL != "" {
		ctx, cancel := context.WithTimeout(context.Background(), *rf.timeout)
		defer cancel()
		result, err = newAPIClient(*rf.serverURL, *rf.timeout).chat(ctx, documentID, question)
	} else {
		err = withService(*rf.configPath, func(ctx context.Context, svc *analysis.Service) error {
			var runErr error
			result, runErr = svc.Chat(ctx, documentID, question)
			return runErr
		})
	}
	if err != nil {
		fail("Chat failed: %v", err)
	}
	if err := cli.WriteAnalysis(os.Stdout, result, cli.ParseOutputFormat(*rf.output)); err != nil {
		fail("Output failed: %v", err)
	}
}

func runStatus(args []string) {
	fs := flag.NewFlagSet("status", flag.ExitOnError)
	rf := addReadFlags(fs)
	_ = fs.Parse(argsReorder(args))
	if fs.NArg() < 1 {
		fmt.Println("Usage: legalease status [flags] <document-id>")
		os.Exit(1)
	}
	documentID := fs.Arg(0)

	var (
		info *models.DocumentStatusInfo
		err  error
	)
	if *rf.serverURL != "" {
		ctx, cancel := context.WithTimeout(context.Background(), *rf.timeout)
		defer cancel()
		info, err = newAPIClient(*rf.serverURL, *rf.timeout).status(ctx, documentID)
	} else {
		err = withService(*rf.configPath, func(ctx context.Context, svc *analysis.Service) error {
			var runErr error
			info, runErr = svc.Status(ctx, documentID)
			return runErr
		})
	}
	if err != nil {
		fail("Status failed: %v", err)
	}
	if err := cli.WriteStatus(os.Stdout, info, cli.ParseOutputFormat(*rf.output)); err != nil {
		fail("Output failed: %v", err)
	}
}

func runStats(args []string) {
	fs := flag.NewFlagSet("stats", flag.ExitOnError)
	rf := addReadFlags(fs)
	_ = fs.Parse(args)

	var (
		stats *models.IndexStats
		err   error
	)
	if *rf.serverURL != "" {
		ctx, cancel := context.WithTimeout(context.Background(), *rf.timeout)
		defer cancel()
		stats, err = newAPIClient(*rf.serverURL, *rf.timeout).stats(ctx)
	} else {
		err = withService(*rf.configPath, func(ctx context.Context, svc *analysis.Service) error {
			var runErr error
			stats, runErr = svc.Stats(ctx)
			return runErr
		})
	}
	if err != nil {
		fail("Stats failed: %v", err)
	}
	if err := cli.WriteStats(os.Stdout, stats, cli.ParseOutputFormat(*rf.output)); err != nil {
		fail("Output failed: %v", err)
	}
}

func runList(args []string) {
	fs := flag.NewFlagSet("list", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "config file path")
	offset := fs.Int("offset", 0, "number of documents to skip")
	limit := fs.Int("limit", 50, "maximum number of documents")
	outputFormat := fs.String("output", "text", "output format: text or json")
	_ = fs.Parse(args)

	err := withService(*configPath, func(ctx context.Context, svc *analysis.Service) error {
		docs, total, err := svc.ListDocuments(ctx, *offset, *limit)
		if err != nil {
			return err
		}
		return cli.WriteDocuments(os.Stdout, docs, total, cli.ParseOutputFormat(*outputFormat))
	})
	if err != nil {
		fail("List failed: %v", err)
	}
}

func runDelete(args []string) {
	fs := flag.NewFlagSet("delete", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "config file path")
	_ = fs.Parse(args)
	if fs.NArg() < 1 {
		fmt.Println("Usage: legalease delete [flags] <document-id>")
		os.Exit(1)
	}
	documentID := fs.Arg(0)
	err := withService(*configPath, func(ctx context.Context, svc *analysis.Service) error {
		return svc.Delete(ctx, documentID)
	})
	if err != nil {
		fail("Deletion failed: %v", err)
	}
	color.Green("Document deleted: %s", documentID)
}

func runWatch(args []string) {
	if len(args) < 1 {
		fmt.Println("Usage: legalease watch <add|remove|list> [path]")
		fmt.Println("  legalease watch add <path>     Add an inbox directory")
		fmt.Println("  legalease watch remove <path>  Remove an inbox directory")
		fmt.Println("  legalease watch list           List inbox directories")
		os.Exit(1)
	}
	sub := args[0]
	fs := flag.NewFlagSet("watch", flag.ExitOnError)
	serverURL := fs.String("server", defaultServerURL, "server URL")
	_ = fs.Parse(argsReorder(args[1:]))

	client := newAPIClient(*serverURL, 30*time.Second)
	ctx := context.Background()
	switch sub {
	case "add", "remove":
		if fs.NArg() < 1 {
			fmt.Printf("Usage: legalease watch %s <path>\n", sub)
			os.Exit(1)
		}
		path, _ := filepath.Abs(fs.Arg(0))
		if sub == "add" {
			if err := client.watchAdd(ctx, path); err != nil {
				fail("Add failed: %v", err)
			}
			color.Green("Added: %s", path)
			return
		}
		if err := client.watchRemove(ctx, path); err != nil {
			fail("Remove failed: %v", err)
		}
		color.Green("Removed: %s", path)
	case "list":
		dirs, err := client.watchList(ctx)
		if err != nil {
			fail("List failed: %v", err)
		}
		for _, d := range dirs {
			fmt.Println(d)
		}
	default:
		fmt.Printf("Unknown watch subcommand: %s\n", sub)
		os.Exit(1)
	}
}

// Components holds initialized services.
type Components struct {
	Storage      storage.Storage
	Embedder     embedding.Embedder
	VectorIndex  vector.VectorIndex
	KeywordIndex keyword.KeywordIndex
	Results      analysis.ResultCache
	Service      *analysis.Service

	vectorPath string
	logger     *zap.Logger
}

// Close persists the vector index and releases every component.
func (c *Components) Close() {
	if c.VectorIndex != nil {
		if c.vectorPath != "" {
			if err := c.VectorIndex.Save(c.vectorPath); err != nil {
				c.logger.Warn("vector index save failed", zap.String("path", c.vectorPath), zap.Error(err))
			}
		}
		_ = c.VectorIndex.Close()
	}
	if c.Results != nil {
		_ = c.Results.Close()
	}
	if c.KeywordIndex != nil {
		_ = c.KeywordIndex.Close()
	}
	if c.Embedder != nil {
		_ = c.Embedder.Close()
	}
	if c.Storage != nil {
		_ = c.Storage.Close()
	}
}

func initializeComponents(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*Components, error) {
	c := &Components{vectorPath: cfg.Storage.VectorIndexPath, logger: utils.OrNop(logger)}
	abort := func(err error) (*Components, error) {
		c.vectorPath = ""
		c.Close()
		return nil, err
	}

	for _, p := range []string{cfg.Storage.DatabasePath, cfg.Storage.KeywordIndexPath, cfg.Storage.VectorIndexPath} {
		if p != "" {
			if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
				return abort(fmt.Errorf("failed to create data directory: %w", err))
			}
		}
	}

	store, err := storage.NewSQLiteStorage(cfg.Storage.DatabasePath)
	if err != nil {
		return abort(fmt.Errorf("failed to initialize storage: %w", err))
	}
	c.Storage = store

	embedder, err := embedding.New(cfg.Embedding, logger)
	if err != nil {
		return abort(err)
	}
	c.Embedder = embedder

	vectorIndex, err := vector.NewVectorIndex(ctx, cfg.Vector, embedder.Dimensions())
	if err != nil {
		return abort(fmt.Errorf("failed to initialize vector index: %w", err))
	}
	c.VectorIndex = vectorIndex
	if c.vectorPath != "" {
		if loadErr := vectorIndex.Load(c.vectorPath); loadErr != nil {
			c.logger.Warn("vector index load skipped", zap.String("path", c.vectorPath), zap.Error(loadErr))
		}
	}

	keywordIndex, err := keyword.NewBleveIndex(cfg.Storage.KeywordIndexPath)
	if err != nil {
		return abort(fmt.Errorf("failed to initialize keyword index: %w", err))
	}
	c.KeywordIndex = keywordIndex

	results, err := analysis.NewResultCache(ctx, cfg.Cache)
	if err != nil {
		return abort(fmt.Errorf("failed to initialize result cache: %w", err))
	}
	c.Results = results

	model, err := llm.New(cfg.LLM, logger)
	if err != nil {
		return abort(err)
	}

	idx := indexer.NewIndexer(store, embedder, vectorIndex, cfg.Chunking, extract.NewExtractor(),
		indexer.WithKeywordIndex(keywordIndex),
		indexer.WithLogger(logger),
	)
	retrievalOpts := []retrieval.Option{
		retrieval.WithKeywordIndex(keywordIndex, cfg.Retrieval.KeywordWeight),
		retrieval.WithKeywordFuzziness(cfg.Retrieval.KeywordFuzziness),
		retrieval.WithLogger(logger),
	}
	if cfg.Retrieval.Ranking.EnabledOrDefault() {
		retrievalOpts = append(retrievalOpts, retrieval.WithRanker(ranking.NewRanker(cfg.Retrieval.Ranking)))
	}
	retriever := retrieval.WithCache(
		retrieval.New(embedder, vectorIndex, retrievalOpts...),
		cfg.Retrieval.CacheSize, cfg.Retrieval.CacheTTL,
	)
	wf := workflow.New(retriever, retrieval.NewPolicy(cfg.Retrieval), model,
		workflow.WithTimeout(cfg.LLM.Timeout),
		workflow.WithRetryBackoff(cfg.LLM.RetryBackoff),
		workflow.WithLogger(logger),
	)
	svc, err := analysis.NewService(analysis.Deps{
		Storage:    store,
		Indexer:    idx,
		Vectors:    vectorIndex,
		Keywords:   keywordIndex,
		Workflow:   wf,
		Results:    results,
		Retrievals: retriever,
		Logger:     logger,
	})
	if err != nil {
		return abort(err)
	}
	c.Service = svc
	return c, nil
}

func printUsage() {
	fmt.Println(`legalease - Legal document analysis over retrieval-augmented generation

Usage:
  legalease server [flags]                        Start the HTTP server and inbox watcher
  legalease ingest [flags] <file-or-directory>    Ingest a document or every document in a directory
  legalease analyze [flags] <id> <type>           Run an analysis (summary, clauses, dates, risks, entities, breakdown, mindmap)
  legalease chat [flags] <id> <question>          Ask a question about a document
  legalease status [flags] <id>                   Show a document's ingestion status
  legalease list [flags]                          List ingested documents
  legalease delete [flags] <id>                   Delete a document and its cached results
  legalease stats [flags]                         Show index totals
  legalease watch <add|remove|list>               Manage inbox directories of a running server
  legalease version                               Show version
  legalease help                                  Show this help

Common Flags:
  --config string    Config file path (default: /usr/local/etc/legalease/config.yaml, or ./config.yaml when present)
  --output string    Output format: text or json (default: text)

Server Flags:
  --debug            Enable debug logging

Ingest Flags:
  --id string        Document ID for a single file (default: derived from the absolute path)
  --title string     Document title for a single file

Analyze, Chat, Status and Stats Flags:
  --server string    Server URL (default: http://localhost:8080). Use --server "" to open the indices directly.
  --timeout duration Request timeout (default: 5m)

Examples:
  legalease server
  legalease ingest contracts/
  legalease ingest --id msa-2026 --title "Master Services Agreement" msa.pdf
  legalease analyze msa-2026 risks
  legalease analyze --output json msa-2026 clauses
  legalease chat msa-2026 "When are invoices due?"
  legalease status msa-2026
  legalease watch add ~/legal/inbox`)
}
