// Package main is the docpile CLI entry point.
package main

import (
	"bytes"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/docpile/docpile/internal/backend"
	"github.com/docpile/docpile/internal/catalog"
	"github.com/docpile/docpile/internal/category"
	"github.com/docpile/docpile/internal/cli"
	"github.com/docpile/docpile/internal/config"
	"github.com/docpile/docpile/internal/ingest"
	"github.com/docpile/docpile/internal/models"
	"github.com/docpile/docpile/internal/scanner"
	"github.com/docpile/docpile/internal/server"
	"github.com/docpile/docpile/internal/storage"
	"github.com/docpile/docpile/internal/watcher"
	"github.com/docpile/docpile/pkg/utils"
)

var version = "dev"

const defaultConfigPath = "/usr/local/etc/docpile/config.yaml"

// loadConfig loads config from path. When path is the default, it first looks
// for config.yaml in the current directory (for development); if that exists
// it is used. Returns the config and the path that was actually loaded.
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
	case "scan":
		runIngestJob(true)
	case "ingest":
		runIngestJob(false)
	case "stores":
		runStores()
	case "status":
		runStatus()
	case "version", "--version", "-v":
		fmt.Printf("docpile version %s\n", version)
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

	components, err := initializeComponents(cfg, logger)
	if err != nil {
		logger.Fatal("Failed to initialize components", zap.Error(err))
	}
	defer components.Close()

	if err := components.Catalog.LoadCache(context.Background()); err != nil {
		logger.Warn("store cache load failed", zap.Error(err))
	}

	watchCtx, watchCancel := context.WithCancel(context.Background())
	defer watchCancel()
	var watchSvc *watcher.Watcher
	if len(cfg.Watch.Directories) > 0 {
		orch := components.Orchestrator
		defaultStore := cfg.Ingest.DefaultStore
		watchSvc = watcher.New(
			cfg.Watch.Directories,
			cfg.Ingest.Extensions,
			func(path string) {
				out, err := orch.IngestFile(context.Background(), defaultStore, path)
				if err != nil {
					logger.Warn("watch ingest failed", zap.String("path", path), zap.Error(err))
					return
				}
				logger.Info("watch ingest",
					zap.String("path", path),
					zap.String("status", string(out.Status)),
					zap.String("category", out.Category))
			},
			watcher.WithLogger(logger),
		)
		if err := watchSvc.Start(watchCtx); err != nil {
			logger.Fatal("Failed to start watcher", zap.Error(err))
		}
		if cfg.Watch.SyncOnStart {
			go watchSvc.SyncExisting()
		}
	}

	srv := server.NewServer(
		components.Orchestrator,
		ingest.NewJobs(),
		components.Catalog,
		components.Storage,
		components.Detector,
		cfg,
		logger,
	)
	go func() {
		if err := srv.Start(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("Server failed", zap.Error(err))
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan

	logger.Info("Shutting down...")
	if watchSvc != nil {
		watchSvc.Stop()
	}
	watchCancel()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	_ = srv.Stop(ctx)
}

// runIngestJob handles both "scan" (dry run) and "ingest".
func runIngestJob(scanOnly bool) {
	name := "ingest"
	if scanOnly {
		name = "scan"
	}
	args := argsReorder(os.Args[2:])

	fs := flag.NewFlagSet(name, flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "config file path")
	serverURL := fs.String("server", "http://localhost:8080", "server URL (empty = direct access when server is not running)")
	storeName := fs.String("store", "", "target store name (default from config)")
	batchSize := fs.Int("batch-size", 0, "files per batch (default from config)")
	categorize := fs.Bool("categorize", true, "infer categories from paths")
	outputFormat := fs.String("output", "text", "output format: text or json")
	_ = fs.Parse(args)

	if fs.NArg() < 1 {
		fmt.Printf("Usage: docpile %s [flags] <directory>\n", name)
		os.Exit(1)
	}
	dir, _ := filepath.Abs(fs.Arg(0))

	format, err := parseOutputFormat(*outputFormat)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	req := models.IngestRequest{
		SourceDirectory: dir,
		StoreName:       *storeName,
		AutoCategorize:  *categorize,
		BatchSize:       *batchSize,
		ScanOnly:        scanOnly,
	}

	if *serverURL != "" {
		// Use HTTP API when server is running (avoids SQLite/Bleve lock conflict).
		if req.StoreName == "" {
			req.StoreName = "documents"
		}
		report, err := ingestViaHTTP(*serverURL, req)
		if err != nil {
			fmt.Fprintf(os.Stderr, "%s failed: %v\n", name, err)
			os.Exit(1)
		}
		if err := cli.WriteReport(os.Stdout, report, format); err != nil {
			fmt.Fprintf(os.Stderr, "Output failed: %v\n", err)
			os.Exit(1)
		}
		return
	}

	// Direct access (when server is not running).
	cfg, _, err := loadConfig(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}
	logger, err := utils.NewLogger(cfg.Debug)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to create logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	components, err := initializeComponents(cfg, logger)
	if err != nil {
		logger.Fatal("Failed to initialize", zap.Error(err))
	}
	defer components.Close()

	if req.StoreName == "" {
		req.StoreName = cfg.Ingest.DefaultStore
	}

	ctx := context.Background()
	var report *models.Report
	if scanOnly {
		report, err = components.Orchestrator.Preview(ctx, req)
	} else {
		report, err = components.Orchestrator.Execute(ctx, req)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "%s failed: %v\n", name, err)
		os.Exit(1)
	}
	if err := cli.WriteReport(os.Stdout, report, format); err != nil {
		fmt.Fprintf(os.Stderr, "Output failed: %v\n", err)
		os.Exit(1)
	}
	if report.FailedCount > 0 {
		os.Exit(2)
	}
}

func ingestViaHTTP(serverURL string, req models.IngestRequest) (*models.Report, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return nil, err
	}
	resp, err := http.Post(serverURL+"/api/v1/ingest", "application/json", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		b, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("server returned %d: %s", resp.StatusCode, string(b))
	}
	var report models.Report
	if err := json.NewDecoder(resp.Body).Decode(&report); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	return &report, nil
}

func runStores() {
	if len(os.Args) < 3 {
		fmt.Println("Usage: docpile stores <list|create> [flags]")
		fmt.Println("  docpile stores list             List stores")
		fmt.Println("  docpile stores create <name>    Create a store")
		os.Exit(1)
	}
	sub := os.Args[2]
	fs := flag.NewFlagSet("stores", flag.ExitOnError)
	serverURL := fs.String("server", "http://localhost:8080", "server URL")
	displayName := fs.String("display-name", "", "display name for create")
	_ = fs.Parse(argsReorder(os.Args[3:]))

	switch sub {
	case "list":
		resp, err := http.Get(*serverURL + "/api/v1/stores")
		if err != nil {
			fmt.Fprintf(os.Stderr, "List failed: %v\n", err)
			os.Exit(1)
		}
		defer resp.Body.Close()
		var out struct {
			Stores []models.Store `json:"stores"`
		}
		if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
			fmt.Fprintf(os.Stderr, "Decode failed: %v\n", err)
			os.Exit(1)
		}
		if len(out.Stores) == 0 {
			fmt.Println("No stores.")
			return
		}
		for _, s := range out.Stores {
			fmt.Printf("%-20s %-30s %d document(s)\n", s.Name, s.RemoteID, s.DocumentCount)
		}
	case "create":
		if fs.NArg() < 1 {
			fmt.Println("Usage: docpile stores create [flags] <name>")
			os.Exit(1)
		}
		body, _ := json.Marshal(map[string]string{
			"name":         fs.Arg(0),
			"display_name": *displayName,
		})
		resp, err := http.Post(*serverURL+"/api/v1/stores", "application/json", bytes.NewReader(body))
		if err != nil {
			fmt.Fprintf(os.Stderr, "Create failed: %v\n", err)
			os.Exit(1)
		}
		defer resp.Body.Close()
		if resp.StatusCode != http.StatusOK {
			b, _ := io.ReadAll(resp.Body)
			fmt.Fprintf(os.Stderr, "Create failed: server returned %d: %s\n", resp.StatusCode, string(b))
			os.Exit(1)
		}
		var s models.Store
		if err := json.NewDecoder(resp.Body).Decode(&s); err != nil {
			fmt.Fprintf(os.Stderr, "Decode failed: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("Store ready: %s (remote %s)\n", s.Name, s.RemoteID)
	default:
		fmt.Printf("Unknown stores subcommand: %s\n", sub)
		os.Exit(1)
	}
}

func runStatus() {
	fs := flag.NewFlagSet("status", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "config file path")
	serverURL := fs.String("server", "http://localhost:8080", "server URL (empty = direct access)")
	outputFormat := fs.String("output", "text", "output format: text or json")
	_ = fs.Parse(os.Args[2:])

	type statusResponse struct {
		Documents int64                  `json:"documents"`
		Stores    int                    `json:"stores"`
		Config    map[string]interface{} `json:"config,omitempty"`
	}
	var status statusResponse

	if *serverURL != "" {
		resp, err := http.Get(*serverURL + "/api/v1/status")
		if err != nil {
			fmt.Fprintf(os.Stderr, "Status failed: %v\n", err)
			os.Exit(1)
		}
		defer resp.Body.Close()
		if resp.StatusCode != http.StatusOK {
			b, _ := io.ReadAll(resp.Body)
			fmt.Fprintf(os.Stderr, "Status failed: server returned %d: %s\n", resp.StatusCode, string(b))
			os.Exit(1)
		}
		if err := json.NewDecoder(resp.Body).Decode(&status); err != nil {
			fmt.Fprintf(os.Stderr, "Decode failed: %v\n", err)
			os.Exit(1)
		}
	} else {
		cfg, _, err := loadConfig(*configPath)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
			os.Exit(1)
		}
		logger, err := utils.NewLogger(cfg.Debug)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Failed to create logger: %v\n", err)
			os.Exit(1)
		}
		defer logger.Sync()
		components, err := initializeComponents(cfg, logger)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Failed to initialize: %v\n", err)
			os.Exit(1)
		}
		defer components.Close()

		ctx := context.Background()
		docCount, err := components.Storage.CountDocuments(ctx)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Count documents failed: %v\n", err)
			os.Exit(1)
		}
		stores, err := components.Storage.ListStores(ctx)
		if err != nil {
			fmt.Fprintf(os.Stderr, "List stores failed: %v\n", err)
			os.Exit(1)
		}
		status = statusResponse{
			Documents: docCount,
			Stores:    len(stores),
			Config: map[string]interface{}{
				"backend_kind":  cfg.Backend.Kind,
				"database_path": cfg.Storage.DatabasePath,
				"batch_size":    cfg.Ingest.BatchSize,
			},
		}
	}

	switch *outputFormat {
	case "json":
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		if err := enc.Encode(status); err != nil {
			fmt.Fprintf(os.Stderr, "Output failed: %v\n", err)
			os.Exit(1)
		}
	case "text":
		fmt.Printf("documents: %d\n", status.Documents)
		fmt.Printf("stores:    %d\n", status.Stores)
		for k, v := range status.Config {
			fmt.Printf("%-14s %v\n", k+":", v)
		}
	default:
		fmt.Fprintf(os.Stderr, "Unknown output format %q; use text or json\n", *outputFormat)
		os.Exit(1)
	}
}

// parseOutputFormat maps a flag value to a cli.OutputFormat.
func parseOutputFormat(s string) (cli.OutputFormat, error) {
	switch s {
	case "text":
		return cli.OutputText, nil
	case "json":
		return cli.OutputJSON, nil
	default:
		return "", fmt.Errorf("unknown output format %q; use text or json", s)
	}
}

// argsReorder moves flags (and their values) that appear after positional
// arguments to the front so flag.Parse() sees them. The flag package stops at
// the first non-flag argument, so "docpile ingest ./docs --store x" would
// otherwise leave --store unparsed.
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

// Components holds initialized services.
type Components struct {
	Storage      storage.MetadataStore
	Backend      backend.IndexBackend
	Catalog      *catalog.Catalog
	Detector     *category.Detector
	Orchestrator *ingest.Orchestrator
}

func (c *Components) Close() {
	if c.Storage != nil {
		_ = c.Storage.Close()
	}
	if c.Backend != nil {
		_ = c.Backend.Close()
	}
}

func initializeComponents(cfg *config.Config, logger *zap.Logger) (*Components, error) {
	store, err := storage.NewSQLiteStore(cfg.Storage.DatabasePath)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize storage: %w", err)
	}

	var idx backend.IndexBackend
	switch cfg.Backend.Kind {
	case "http":
		idx = backend.NewHTTPBackend(
			cfg.Backend.BaseURL,
			cfg.Backend.APIKey,
			backend.WithHTTPLogger(logger),
			backend.WithTimeout(time.Duration(cfg.Backend.TimeoutSeconds)*time.Second),
			backend.WithRateLimit(cfg.Backend.RateLimit, cfg.Backend.RateBurst),
		)
	case "embedded":
		idx, err = backend.NewEmbeddedBackend(cfg.Backend.IndexPath, backend.WithEmbeddedLogger(logger))
		if err != nil {
			_ = store.Close()
			return nil, fmt.Errorf("failed to initialize embedded backend: %w", err)
		}
	default:
		_ = store.Close()
		return nil, fmt.Errorf("unknown backend kind %q", cfg.Backend.Kind)
	}

	cat := catalog.New(store, idx, catalog.WithLogger(logger))
	det := category.NewDefaultDetector()
	sc := scanner.New(scanner.WithExtensions(cfg.Ingest.Extensions))
	orch := ingest.New(sc, det, cat, store, idx,
		ingest.WithLogger(logger),
		ingest.WithBatchSize(cfg.Ingest.BatchSize),
		ingest.WithMaxWorkers(cfg.Ingest.MaxWorkers),
	)

	return &Components{
		Storage:      store,
		Backend:      idx,
		Catalog:      cat,
		Detector:     det,
		Orchestrator: orch,
	}, nil
}

func printUsage() {
	fmt.Println(`docpile - bulk document ingestion for search indexing

Usage:
  docpile server [flags]              Start the HTTP server
  docpile scan [flags] <directory>    Dry run: scan and categorize only
  docpile ingest [flags] <directory>  Ingest a directory into a store
  docpile stores <list|create>        Manage stores
  docpile status [flags]              Show document/store counts
  docpile version                     Show version
  docpile help                        Show this help

Server Flags:
  --config string    Config file path (default: /usr/local/etc/docpile/config.yaml)
  --debug            Enable debug logging

Scan/Ingest Flags:
  --config string    Config file path (for direct access mode)
  --server string    Server URL (default: http://localhost:8080). Use empty (--server "") for direct access when the server is not running.
  --store string     Target store name (default from config)
  --batch-size int   Files per upload batch (default from config)
  --categorize       Infer categories from paths (default: true)
  --output string    Output format: text or json (default: text)

Stores Flags:
  --server string        Server URL (default: http://localhost:8080)
  --display-name string  Display name for create

Status Flags:
  --config string    Config file path (for direct access mode)
  --server string    Server URL (default: http://localhost:8080). Use empty (--server "") for direct access.
  --output string    Output format: text or json (default: text)

Examples:
  docpile server
  docpile scan ./documents
  docpile ingest --store tender_docs ./documents
  docpile ingest --server "" --store tender_docs ./documents
  docpile stores create tender_docs --display-name "Tender Documents"
  docpile stores list
  docpile status --output json`)
}
