// Kestrel - Near-real-time transaction fraud scoring.
// Copyright (c) 2025 opensource.finance
// Licensed under the Apache License 2.0

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

	"github.com/opensource-finance/kestrel/internal/alerts"
	"github.com/opensource-finance/kestrel/internal/api"
	"github.com/opensource-finance/kestrel/internal/bus"
	"github.com/opensource-finance/kestrel/internal/cache"
	"github.com/opensource-finance/kestrel/internal/domain"
	"github.com/opensource-finance/kestrel/internal/ml"
	"github.com/opensource-finance/kestrel/internal/pipeline"
	"github.com/opensource-finance/kestrel/internal/profile"
	"github.com/opensource-finance/kestrel/internal/repository"
	"github.com/opensource-finance/kestrel/internal/rules"
	"github.com/opensource-finance/kestrel/internal/worker"
)

// Version information (set via ldflags)
var (
	Version   = "dev"
	Commit    = "none"
	BuildDate = "unknown"
)

func main() {
	// Initialize structured logger
	logLevel := slog.LevelInfo
	if os.Getenv("KESTREL_DEBUG") == "true" {
		logLevel = slog.LevelDebug
	}
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: logLevel,
	}))
	slog.SetDefault(logger)

	slog.Info("starting kestrel",
		"version", Version,
		"commit", Commit,
		"build_date", BuildDate,
	)

	// Load configuration
	cfg := domain.DefaultConfig()

	// Check for Pro tier via environment
	if os.Getenv("KESTREL_TIER") == "pro" {
		cfg = domain.ProConfig()
		slog.Info("running in Pro tier mode")
	}
	if url := os.Getenv("KESTREL_ML_URL"); url != "" {
		cfg.ML.URL = url
	}

	slog.Info("configuration loaded",
		"tier", cfg.Tier,
		"repository", cfg.Repository.Driver,
		"cache", cfg.Cache.Type,
		"eventbus", cfg.EventBus.Type,
		"ml_enabled", cfg.ML.URL != "",
	)

	// Create context with cancellation
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Handle shutdown signals
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		sig := <-sigCh
		slog.Info("received shutdown signal", "signal", sig)
		cancel()
	}()

	// Initialize Repository
	repo, err := repository.New(cfg.Repository)
	if err != nil {
		slog.Error("failed to initialize repository", "error", err)
		os.Exit(1)
	}
	defer repo.Close()
	slog.Info("repository initialized", "driver", cfg.Repository.Driver)

	// Initialize Cache
	cacheImpl, err := cache.New(cfg.Cache)
	if err != nil {
		slog.Error("failed to initialize cache", "error", err)
		os.Exit(1)
	}
	defer cacheImpl.Close()
	slog.Info("cache initialized", "type", cfg.Cache.Type)

	// Initialize EventBus
	busImpl, err := bus.New(cfg.EventBus)
	if err != nil {
		slog.Error("failed to initialize event bus", "error", err)
		os.Exit(1)
	}
	defer busImpl.Close()
	slog.Info("event bus initialized", "type", cfg.EventBus.Type)

	// Initialize profile stores on top of the cache
	stores := profile.NewStores(cacheImpl)
	slog.Info("profile stores initialized")

	// Initialize custom rule engine
	engine, err := rules.NewEngine()
	if err != nil {
		slog.Error("failed to initialize rule engine", "error", err)
		os.Exit(1)
	}

	// Load custom rules from database (no hardcoded defaults - configure via API)
	if err := loadRulesFromDatabase(ctx, repo, engine); err != nil {
		slog.Error("failed to load custom rules", "error", err)
		os.Exit(1)
	}
	slog.Info("rule engine initialized", "custom_rules", engine.Count())

	// Initialize ML scoring client. With an empty URL it scores 0.0.
	scorer := ml.NewClient(cfg.ML, logger)

	// Initialize alert ring and scoring pipeline
	ring := alerts.NewRing(cfg.Pipeline.AlertRingSize)
	pipe := pipeline.New(repo, stores, engine, scorer, busImpl, ring, logger)
	slog.Info("pipeline initialized", "alert_ring_size", cfg.Pipeline.AlertRingSize)

	// Start consuming incoming transactions
	consumer := worker.NewWorker(busImpl, pipe, logger)
	if err := consumer.Start(cfg.Pipeline.Workers); err != nil {
		slog.Error("failed to start workers", "error", err)
		os.Exit(1)
	}

	// Initialize Server
	srv := api.NewServer(cfg.Server, repo, cacheImpl, busImpl, engine, ring, Version)

	// Start Server in goroutine
	go func() {
		if err := srv.Start(); err != nil && err != http.ErrServerClosed {
			slog.Error("server failed", "error", err)
			os.Exit(1)
		}
	}()

	slog.Info("kestrel is ready",
		"host", cfg.Server.Host,
		"port", cfg.Server.Port,
	)

	printBanner(cfg, Version)

	// Wait for shutdown signal
	<-ctx.Done()
	slog.Info("shutting down...")

	// Stop the workers first so in-flight transactions drain
	if err := consumer.Stop(); err != nil {
		slog.Error("failed to stop workers", "error", err)
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("server forced to shutdown", "error", err)
	}

	slog.Info("kestrel shutdown complete")
}

// loadRulesFromDatabase loads custom rules from the database into the engine.
// All custom rules must be configured via POST /api/rules - no hardcoded defaults.
func loadRulesFromDatabase(ctx context.Context, repo domain.Repository, engine *rules.Engine) error {
	if err := engine.ReloadFromRepository(ctx, repo); err != nil {
		slog.Warn("failed to load custom rules from database", "error", err)
		return nil // Start with empty rules - they can be added via API
	}

	if engine.Count() == 0 {
		slog.Info("no custom rules in database - configure via POST /api/rules")
	}
	return nil
}

func printBanner(cfg *domain.Config, version string) {
	fmt.Println()
	fmt.Println("  ╔═════════════════════════════════════════════╗")
	fmt.Println("  ║                🦅 KESTREL                   ║")
	fmt.Println("  ║       Transaction Fraud Scoring             ║")
	fmt.Println("  ║      Every transaction, every rule.         ║")
	fmt.Println("  ╚═════════════════════════════════════════════╝")
	fmt.Println()
	fmt.Printf("  Version:  %s\n", version)
	fmt.Printf("  Tier:     %s\n", cfg.Tier)
	fmt.Printf("  Server:   http://%s:%d\n", cfg.Server.Host, cfg.Server.Port)
	fmt.Println()
	fmt.Println("  Endpoints:")
	fmt.Println("    POST /api/transactions               - Submit a transaction for scoring")
	fmt.Println("    GET  /api/transactions/{id}          - Get transaction by ID")
	fmt.Println("    GET  /api/processed/{id}             - Get scoring result by transaction ID")
	fmt.Println("    GET  /api/fraud-alerts               - Recent fraud alerts")
	fmt.Println("    GET  /api/analytics/summary          - Aggregate fraud statistics")
	fmt.Println("    GET  /api/analytics/transactions/riskiest - Highest scoring transactions")
	fmt.Println("    GET  /api/analytics/rules/distribution    - Triggered rule counts")
	fmt.Println("    GET  /api/rules                      - List custom rules")
	fmt.Println("    POST /api/rules                      - Create a custom rule")
	fmt.Println("    POST /api/rules/reload               - Hot-reload custom rules")
	fmt.Println("    GET  /health                         - Health check")
	fmt.Println()
}
