// SwarmOS orchestrator server — provides the HTTP API, routes LLM
// traffic across providers, and drives multi-agent task execution.
package main

import (
	"context"
	"flag"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/swarmos-ai/swarmos/pkg/api"
	"github.com/swarmos-ai/swarmos/pkg/cleanup"
	"github.com/swarmos-ai/swarmos/pkg/config"
	"github.com/swarmos-ai/swarmos/pkg/database"
	"github.com/swarmos-ai/swarmos/pkg/llm"
	"github.com/swarmos-ai/swarmos/pkg/memory"
	"github.com/swarmos-ai/swarmos/pkg/orchestrator"
	"github.com/swarmos-ai/swarmos/pkg/services"
	"github.com/swarmos-ai/swarmos/pkg/tools"
	"github.com/swarmos-ai/swarmos/pkg/version"
)

func main() {
	envPath := flag.String("env", "", "Path to a .env file (defaults to ./.env when present)")
	flag.Parse()

	slog.Info("Starting SwarmOS", "version", version.Full())

	ctx := context.Background()

	// 1. Configuration: env vars, provider registry, model preferences
	cfg, err := config.Load(*envPath)
	if err != nil {
		slog.Error("Failed to load configuration", "error", err)
		os.Exit(1)
	}
	slog.Info("Configuration loaded",
		"providers", cfg.Providers.CloudNames(),
		"http_addr", cfg.HTTPAddr)

	// 2. Durable tier: PostgreSQL with embedded migrations. The server
	// degrades to memory-only operation when the database is unreachable.
	var dbClient *database.Client
	var durable *memory.DurableStore
	dbClient, err = database.NewClientFromURL(ctx, cfg.DatabaseURL)
	if err != nil {
		slog.Warn("Database unavailable, running memory-only", "error", err)
		dbClient = nil
	} else {
		defer dbClient.Close()
		durable = memory.NewDurableStore(dbClient.Pool())
		slog.Info("Connected to PostgreSQL database")
	}

	// 3. Memory tiers: ephemeral always, vector when configured, durable
	// when the database is up
	ephemeral := memory.NewEphemeralStore()
	defer ephemeral.Close()

	var vector memory.VectorTier
	if cfg.VectorDir != "" {
		vectorStore, vErr := memory.NewVectorStore(cfg.VectorDir)
		if vErr != nil {
			slog.Warn("Vector store unavailable, continuing without semantic tier", "error", vErr)
		} else {
			defer vectorStore.Close()
			vector = vectorStore
			slog.Info("Vector store opened", "dir", cfg.VectorDir)
		}
	}

	var entryStore memory.EntryStore
	if durable != nil {
		entryStore = durable
	}
	mem := memory.NewManager(ephemeral, vector, entryStore)

	// 4. LLM router with per-provider circuit breakers
	router := llm.NewRouter(cfg)

	// 5. Tool registry
	toolRegistry := tools.NewRegistry()
	toolRegistry.Register(tools.NewWebSearchTool(cfg.TavilyAPIKey, cfg.BraveAPIKey, router, cfg.ToolTimeout))
	toolRegistry.Register(tools.NewFetchURLTool(cfg.ToolTimeout))
	slog.Info("Tools registered", "tools", toolRegistry.Names())

	// 6. Orchestrator and task service
	orchDeps := orchestrator.Deps{
		Config: cfg,
		LLM:    router,
		Memory: mem,
		Tools:  toolRegistry,
	}
	if durable != nil {
		orchDeps.Store = durable
	}
	orch := orchestrator.New(orchDeps)

	var taskStore services.TaskStore
	if durable != nil {
		taskStore = durable
	}
	taskService := services.NewTaskService(orch, taskStore)

	// Retention janitor, only meaningful with a durable tier.
	if durable != nil {
		retention := cleanup.NewService(durable, cfg.TaskRetention, cfg.MemoryRetention, cfg.CleanupInterval)
		retention.Start(ctx)
		defer retention.Stop()
	}

	// 7. HTTP server
	server := api.NewServer(api.Deps{
		Config:       cfg,
		Orchestrator: orch,
		Tasks:        taskService,
		Memory:       mem,
		Tools:        toolRegistry,
		Router:       router,
		DB:           dbClient,
	})

	httpServer := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           server.Routes(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("HTTP server listening", "addr", cfg.HTTPAddr)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("HTTP server error", "error", err)
			errCh <- err
		}
	}()

	slog.Info("SwarmOS started successfully")

	// 8. Wait for shutdown signal or server error
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGTERM, syscall.SIGINT)

	select {
	case sig := <-sigCh:
		slog.Info("Shutdown signal received", "signal", sig)
	case err := <-errCh:
		slog.Error("Server error triggered shutdown", "error", err)
	}

	// 9. Graceful shutdown: stop accepting requests, let in-flight tasks
	// checkpoint through their next pipeline stage
	shutdownCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		slog.Error("HTTP server shutdown error", "error", err)
	}

	slog.Info("Shutdown complete")
}
