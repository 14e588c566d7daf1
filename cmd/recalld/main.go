// Package main implements the recalld daemon and its management CLI.
package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/fyrsmithlabs/recalld/internal/chunker"
	"github.com/fyrsmithlabs/recalld/internal/config"
	"github.com/fyrsmithlabs/recalld/internal/conversation"
	"github.com/fyrsmithlabs/recalld/internal/embeddings"
	"github.com/fyrsmithlabs/recalld/internal/facts"
	"github.com/fyrsmithlabs/recalld/internal/files"
	"github.com/fyrsmithlabs/recalld/internal/logging"
	"github.com/fyrsmithlabs/recalld/internal/tenant"
	"github.com/fyrsmithlabs/recalld/internal/vectorstore"
)

var (
	configPath string
	userID     string

	version = "dev"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "recalld",
	Short: "Personal assistant memory daemon",
	Long: `recalld stores and retrieves a personal assistant's memory: uploaded
documents, extracted user facts, and conversation history, all indexed
by embedding similarity and partitioned per user.`,
	Version:       version,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "Path to config file (YAML)")
	rootCmd.PersistentFlags().StringVar(&userID, "user", "", "User the command operates on (required)")
}

// deps bundles the constructed service graph.
type deps struct {
	cfg      *config.Config
	logger   *logging.Logger
	embedder embeddings.Provider
	stores   *vectorstore.Provider
	files    *files.Service
	facts    *facts.Store
	convs    *conversation.Store
}

// buildDeps loads configuration and wires every service explicitly.
func buildDeps() (*deps, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}

	logger, err := logging.NewLogger(&logging.Config{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
	})
	if err != nil {
		return nil, fmt.Errorf("creating logger: %w", err)
	}

	metrics := embeddings.NewMetrics(logger.Underlying())
	svc, err := embeddings.NewService(embeddings.Config{
		BaseURL:   cfg.Embedding.BaseURL,
		Model:     cfg.Embedding.Model,
		Dimension: cfg.Embedding.Dimension,
		Timeout:   cfg.Embedding.Timeout.Duration(),
	}, metrics)
	if err != nil {
		return nil, fmt.Errorf("creating embedding service: %w", err)
	}
	embedder := embeddings.NewFailSoft(svc, cfg.Embedding.Model, logger, metrics)

	stores, err := vectorstore.NewProvider(vectorstore.ProviderConfig{
		DataDir:   cfg.DataDir,
		Dimension: cfg.Embedding.Dimension,
	}, embedder, logger)
	if err != nil {
		return nil, fmt.Errorf("creating vector stores: %w", err)
	}

	// The chunker gets the raw service, not the fail-soft wrapper: an
	// embedding failure must surface as an error so it can fall back to
	// fixed windows instead of chunking on zero vectors.
	chunk, err := chunker.New(chunker.Config{
		SimilarityThreshold: cfg.Chunker.SimilarityThreshold,
		WindowSize:          cfg.Chunker.WindowSize,
		WindowOverlap:       cfg.Chunker.WindowOverlap,
	}, svc, logger)
	if err != nil {
		return nil, fmt.Errorf("creating chunker: %w", err)
	}

	fileSvc, err := files.NewService(cfg.DataDir, stores, chunk, embedder, logger)
	if err != nil {
		return nil, fmt.Errorf("creating file service: %w", err)
	}

	factStore, err := facts.NewStore(facts.Config{
		DedupThreshold: cfg.Facts.DedupThreshold,
		RebuildEvery:   cfg.Facts.RebuildEvery,
	}, cfg.DataDir, stores, embedder, logger)
	if err != nil {
		return nil, fmt.Errorf("creating fact store: %w", err)
	}

	convStore, err := conversation.NewStore(conversation.Config{
		HistoryDays:  cfg.Conversation.HistoryDays,
		HistoryLimit: cfg.Conversation.HistoryLimit,
	}, stores, embedder, logger)
	if err != nil {
		return nil, fmt.Errorf("creating conversation store: %w", err)
	}

	return &deps{
		cfg:      cfg,
		logger:   logger,
		embedder: embedder,
		stores:   stores,
		files:    fileSvc,
		facts:    factStore,
		convs:    convStore,
	}, nil
}

// tenantContext returns a context carrying the --user tenant.
func tenantContext(ctx context.Context) (context.Context, error) {
	info := &tenant.Info{UserID: userID}
	if err := info.Validate(); err != nil {
		return nil, fmt.Errorf("--user: %w", err)
	}
	return tenant.WithInfo(ctx, info), nil
}
