package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/iammorganparry/neurograph/internal/api"
	"github.com/iammorganparry/neurograph/internal/compress"
	"github.com/iammorganparry/neurograph/internal/config"
	"github.com/iammorganparry/neurograph/internal/consolidate"
	"github.com/iammorganparry/neurograph/internal/diag"
	"github.com/iammorganparry/neurograph/internal/embedding"
	"github.com/iammorganparry/neurograph/internal/graph"
	"github.com/iammorganparry/neurograph/internal/patterns"
	"github.com/iammorganparry/neurograph/internal/store"
)

func main() {
	// Optional .env for local development; absence is not an error.
	_ = godotenv.Load()

	// Logger
	logLevel := slog.LevelInfo
	if os.Getenv("LOG_LEVEL") == "debug" {
		logLevel = slog.LevelDebug
	}
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: logLevel}))
	slog.SetDefault(logger)

	// Config
	cfg, err := config.Load()
	if err != nil {
		logger.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	// SQLite. Store unavailability at first access is the one fatal
	// precondition of the pipeline.
	db, err := store.Open(cfg.DBPath)
	if err != nil {
		logger.Error("failed to open database", "error", err)
		os.Exit(1)
	}
	defer db.Close()

	// Embedding
	codec := embedding.NewCodec(cfg.EmbeddingDim)
	var embedder embedding.Embedder
	var embedderHealth api.EmbedderHealth
	if cfg.EmbeddingProvider == "ollama" {
		ollamaClient := embedding.NewOllamaClient(cfg.OllamaBaseURL, cfg.EmbeddingModel)
		if err := ollamaClient.HealthCheck(); err != nil {
			logger.Warn("ollama not available at startup, will retry on first use", "error", err)
		}
		embedder = ollamaClient
		embedderHealth = ollamaClient
	} else {
		embedder = embedding.NewHashEmbedder(cfg.EmbeddingDim)
	}
	embedder = embedding.NewMemoEmbedder(embedder)

	// Diagnostics
	diags := diag.NewRecorder(logger)

	// Graph derivation
	edges := graph.NewEdgeWriter(db)
	det := graph.NewDeterministicDeriver(edges, diags, logger)
	sem := graph.NewSemanticDeriver(db, edges, codec, embedder, diags, graph.SemanticConfig{
		SameTypeThreshold:  cfg.SameTypeThreshold,
		CrossTypeThreshold: cfg.CrossTypeThreshold,
		BridgeThreshold:    cfg.BridgeThreshold,
		MaxEdgesPerNode:    cfg.MaxEdgesPerNode,
	})

	// Pattern extraction
	ext := patterns.NewExtractor(db, codec, embedder, diags, logger, cfg.CatalogueWindow)

	// Compression bridge
	var factory compress.Factory
	if cfg.CompressorURL != "" {
		factory = func() (compress.Compressor, error) {
			return compress.NewHTTPCompressor(cfg.CompressorURL)
		}
	}
	bridge := compress.NewBridge(db, codec, factory, diags, logger, cfg.CompressWindow)

	// Orchestrator
	orch := consolidate.New(db, codec, det, sem, ext, bridge, diags, logger, consolidate.Options{
		TemporalWindow:      cfg.TemporalWindow,
		SemanticWindow:      cfg.SemanticWindow,
		PatternWindow:       cfg.PatternWindow,
		TrajectoryWindow:    cfg.TrajectoryWindow,
		TrajectoryTolerance: time.Duration(cfg.TrajectoryToleranceSecs) * time.Second,
		CoEditLinks:         cfg.CoEditLinks,
		PatternLinks:        cfg.PatternLinks,
	})

	// Metrics
	var registry *prometheus.Registry
	if cfg.MetricsEnabled {
		registry = prometheus.NewRegistry()
		registry.MustRegister(
			collectors.NewGoCollector(),
			collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		)
	}

	// Router
	router := api.NewRouter(db, orch, embedderHealth, registry, cfg.AuthToken, logger)

	// Server
	addr := fmt.Sprintf(":%d", cfg.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      router,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	// Graceful shutdown
	done := make(chan os.Signal, 1)
	signal.Notify(done, os.Interrupt, syscall.SIGTERM)

	go func() {
		logger.Info("neurograph server starting", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	<-done
	logger.Info("shutting down...")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		logger.Error("shutdown error", "error", err)
	}

	logger.Info("server stopped")
}
