// Package main provides the cite CLI entry point.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/matsen/citegraph/internal/config"
	"github.com/matsen/citegraph/internal/crossref"
	"github.com/matsen/citegraph/internal/embedding"
	"github.com/matsen/citegraph/internal/ingest"
	"github.com/matsen/citegraph/internal/storage"
)

// Version is set at build time via ldflags
var Version = "dev"

// humanOutput controls whether to use human-readable output
var humanOutput bool

// configPath overrides the config file location
var configPath string

// cfg is the effective configuration, loaded before every command.
var cfg *config.Config

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := rootCmd.ExecuteContext(ctx)
	stop()
	if err != nil {
		// Print the error since we have SilenceErrors: true
		fmt.Fprintf(os.Stderr, "Error: %s\n", err)
		os.Exit(ExitError)
	}
}

var rootCmd = &cobra.Command{
	Use:   "cite",
	Short: "Citation graph builder for paper collections",
	Long: `cite builds citation graphs for collections of research papers.

Seed papers are imported from JSONL, Crossref topic searches or PDFs.
'cite graph build' resolves their references against the collection and
Crossref, adds newly discovered papers and walks the graph breadth- or
depth-first up to a depth ceiling. Runs can execute in-process or on a
Redis-backed worker.

All commands output JSON by default for AI agent integration.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var err error
		if configPath != "" {
			cfg, err = config.LoadFile(configPath)
		} else {
			cfg, err = config.Load()
		}
		if err != nil {
			exitWithError(ExitConfigError, "loading config: %v", err)
		}
		setupLogging(cfg.LogLevel)
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().BoolVar(&humanOutput, "human", false, "Use human-readable output instead of JSON")
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "Config file (default: "+config.Path()+")")
	rootCmd.Version = Version
}

// setupLogging installs a text slog handler on stderr.
func setupLogging(level string) {
	lvl, err := config.ParseLevel(level)
	if err != nil {
		lvl = slog.LevelInfo
	}
	handler := slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: lvl})
	slog.SetDefault(slog.New(handler))
}

// mustOpenDatabase opens the SQLite database, exits on error.
// The caller is responsible for calling Close() on the returned DB.
func mustOpenDatabase() *storage.DB {
	if err := os.MkdirAll(filepath.Dir(cfg.DBPath), 0o755); err != nil {
		exitWithError(ExitConfigError, "creating database directory: %v", err)
	}
	db, err := storage.OpenDB(cfg.DBPath)
	if err != nil {
		exitWithError(ExitError, "opening database: %v", err)
	}
	return db
}

// newRegistry builds the Crossref client from configuration.
func newRegistry() *crossref.Client {
	opts := []crossref.ClientOption{crossref.WithBaseURL(cfg.CrossrefBaseURL)}
	if cfg.CrossrefMailto != "" {
		opts = append(opts, crossref.WithMailto(cfg.CrossrefMailto))
	}
	return crossref.NewClient(opts...)
}

// mustNewEmbedder builds the configured embedding provider, exits on error.
func mustNewEmbedder() embedding.Provider {
	p, err := embedding.NewProvider(cfg.Embedding())
	if err != nil {
		exitWithError(ExitConfigError, "configuring embeddings: %v", err)
	}
	return p
}

// warnIfEmbedderDown logs a warning when the embedding backend does not
// answer. Papers are still stored, with zero vectors.
func warnIfEmbedderDown(ctx context.Context, p embedding.Provider) {
	checker, ok := p.(embedding.Checker)
	if !ok {
		return
	}
	if err := checker.Available(ctx); err != nil {
		slog.WarnContext(ctx, "embedding backend unavailable, abstracts will get zero vectors",
			"model", p.ModelName(), "error", err)
	}
}

// newImporter wires an ingest.Importer to db.
func newImporter(ctx context.Context, db *storage.DB) *ingest.Importer {
	embedder := mustNewEmbedder()
	warnIfEmbedderDown(ctx, embedder)
	return ingest.New(db, newRegistry(), embedder,
		ingest.WithMaxTopicPapers(cfg.MaxTopicPapers),
		ingest.WithLogger(slog.Default()))
}

// mustGetCollection exits with ExitNotFound when the collection is unknown.
func mustGetCollection(ctx context.Context, db *storage.DB, id string) {
	err := db.View(ctx, func(tx *storage.Tx) error {
		c, err := tx.GetCollection(ctx, id)
		if err != nil {
			return err
		}
		if c == nil {
			return fmt.Errorf("%w: %s", storage.ErrCollectionNotFound, id)
		}
		return nil
	})
	if err != nil {
		exitWithError(exitCodeFor(err), "%v", err)
	}
}
