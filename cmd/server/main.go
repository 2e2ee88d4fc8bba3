// Geek intake server: websocket issue intake and provider matching.
package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/joho/godotenv"

	"github.com/ashureev/geek-intake/internal/agent"
	"github.com/ashureev/geek-intake/internal/api"
	"github.com/ashureev/geek-intake/internal/channel"
	"github.com/ashureev/geek-intake/internal/chat"
	"github.com/ashureev/geek-intake/internal/config"
	"github.com/ashureev/geek-intake/internal/extractor"
	"github.com/ashureev/geek-intake/internal/identity"
	"github.com/ashureev/geek-intake/internal/llm"
	"github.com/ashureev/geek-intake/internal/llm/openai"
	"github.com/ashureev/geek-intake/internal/matching"
	"github.com/ashureev/geek-intake/internal/metrics"
	"github.com/ashureev/geek-intake/internal/middleware"
	"github.com/ashureev/geek-intake/internal/store"
	"github.com/ashureev/geek-intake/internal/tools"
)

func main() {
	if err := godotenv.Load(); err != nil {
		slog.Info("No .env file found, using environment variables")
	}

	cfg, err := config.Load()
	if err != nil {
		slog.Error("Failed to load configuration", "error", err)
		os.Exit(1)
	}

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: cfg.LogLevel,
	}))
	slog.SetDefault(logger)

	slog.Info("Starting server", "port", cfg.Port, "dev", cfg.IsDevelopment(), "model", cfg.LLM.Model)

	// Initialize dependencies.
	repo, err := store.NewSQLite(cfg.DBPath)
	if err != nil {
		slog.Error("Failed to initialize database", "error", err)
		os.Exit(1)
	}
	defer func() {
		if closeErr := repo.Close(); closeErr != nil {
			slog.Error("Failed to close repository", "error", closeErr)
		}
	}()

	if err := repo.Ping(context.Background()); err != nil {
		slog.Error("Database health check failed", "error", err)
		os.Exit(1)
	}
	slog.Info("Database connected")

	// Reasoning service.
	provider := openai.New(&llm.Config{
		BaseURL:    cfg.LLM.BaseURL,
		APIKey:     cfg.LLM.APIKey,
		Model:      cfg.LLM.Model,
		MaxRetries: cfg.LLM.MaxRetries,
	}, cfg.LLM.Timeout, logger)

	counter, err := agent.NewTiktokenCounter(cfg.LLM.Model)
	if err != nil {
		slog.Warn("Tokenizer unavailable, approximating token counts", "error", err)
		counter = agent.RuneCounter{}
	}

	catalog := tools.NewCatalog(repo, cfg.ToolsCacheTTL, logger)
	var assistant agent.Processor = agent.NewAssistant(
		provider,
		agent.NewRegistry(catalog.Tools()...),
		agent.NewMemory(cfg.LLM.MemoryTokenBudget, counter),
		agent.Config{
			MaxToolRounds:  cfg.LLM.MaxToolRounds,
			MaxConcurrency: int64(cfg.LLM.MaxConcurrency),
			Now:            time.Now,
		},
		logger,
	)

	issues, err := extractor.New(assistant, logger)
	if err != nil {
		slog.Error("Failed to initialize issue extractor", "error", err)
		os.Exit(1)
	}
	engine := matching.NewEngine(repo, logger)

	// Initialize services.
	registry := channel.NewRegistry()
	orch := chat.NewOrchestrator(assistant, repo, issues, engine, chat.Config{
		StreamTokens:  cfg.Chat.StreamTokens,
		MatchPageSize: cfg.MatchPageSize,
		LLMTimeout:    cfg.LLM.Timeout,
	}, logger)

	limiter := middleware.NewRateLimiter(cfg.Chat.RateLimit, cfg.Chat.RateWindow)
	defer limiter.Stop()

	// Initialize handlers.
	baseHandler := api.NewHandler(repo, catalog, engine, cfg.MatchPageSize)
	healthHandler := api.NewHealthHandler(repo, 5*time.Second)
	wsHandler := chat.NewWebSocketHandler(orch, registry, cfg.Chat.IdleTimeout, cfg.AllowedOrigins, cfg.IsDevelopment())
	limitedWS := limiter.Limit(func(r *http.Request) string {
		return identity.UserIDFromContext(r.Context())
	})(wsHandler)

	// Setup router.
	r := chi.NewRouter()

	// Global middleware.
	r.Use(chiMiddleware.RequestID)
	r.Use(chiMiddleware.RealIP)
	r.Use(chiMiddleware.Logger)
	r.Use(chiMiddleware.Recoverer)
	r.Use(middleware.CORS(cfg.AllowedOrigins))

	// Public routes.
	healthHandler.RegisterHealth(r)
	r.Handle("/metrics", metrics.Handler())

	baseHandler.RegisterChatRoutes(r, limitedWS)
	baseHandler.RegisterGeekRoutes(r)
	baseHandler.RegisterSeekerRoutes(r)
	baseHandler.RegisterIssueRoutes(r)

	// Create server.
	// Websocket sessions are long-lived, so there is no WriteTimeout.
	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      r,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 0,
		IdleTimeout:  120 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Start server.
	go func() {
		slog.Info("Server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("Server failed", "error", err)
			os.Exit(1)
		}
	}()

	// Wait for shutdown signal.
	<-ctx.Done()
	stop()

	slog.Info("Shutting down gracefully...")

	// Hijacked websocket connections are not tracked by Shutdown.
	registry.CloseAll()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("Server forced to shutdown", "error", err)
		os.Exit(1)
	}

	slog.Info("Server stopped successfully")
}
