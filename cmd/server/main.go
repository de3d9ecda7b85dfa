// Robofeed - robot persona social feed server
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

	"github.com/ashureev/robofeed/internal/api"
	"github.com/ashureev/robofeed/internal/config"
	"github.com/ashureev/robofeed/internal/gate"
	"github.com/ashureev/robofeed/internal/generation"
	"github.com/ashureev/robofeed/internal/identity"
	"github.com/ashureev/robofeed/internal/middleware"
	"github.com/ashureev/robofeed/internal/notify"
	"github.com/ashureev/robofeed/internal/planner"
	"github.com/ashureev/robofeed/internal/scheduler"
	"github.com/ashureev/robofeed/internal/seed"
	"github.com/ashureev/robofeed/internal/store"
	"github.com/ashureev/robofeed/internal/worldctx"
	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/joho/godotenv"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	if err := godotenv.Load(); err != nil {
		slog.Info("No .env file found, using environment variables")
	}

	cfg, err := config.Load()
	if err != nil {
		slog.Error("Failed to load configuration", "error", err)
		os.Exit(1)
	}

	slog.Info("Starting server", "port", cfg.Port, "dev", cfg.IsDevelopment(), "generation_enabled", cfg.Generation.Enabled)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

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

	if err := repo.Ping(ctx); err != nil {
		slog.Error("Database health check failed", "error", err)
		os.Exit(1)
	}
	slog.Info("Database connected")

	world, err := worldctx.NewProvider(cfg.WorldCachePath)
	if err != nil {
		slog.Error("Failed to load world cache", "error", err)
		os.Exit(1)
	}

	if err := seed.LoadAndApply(ctx, cfg.SeedPath, repo, world); err != nil {
		slog.Error("Failed to apply seed", "path", cfg.SeedPath, "error", err)
		os.Exit(1)
	}
	slog.Info("Seed applied", "path", cfg.SeedPath, "worlds", len(world.Worlds()))

	if cfg.SeedWatch {
		err := seed.Watch(ctx, cfg.SeedPath, seed.DefaultDebounce, func() {
			if err := seed.LoadAndApply(ctx, cfg.SeedPath, repo, world); err != nil {
				slog.Error("Seed reload failed", "path", cfg.SeedPath, "error", err)
				return
			}
			slog.Info("Seed reloaded", "path", cfg.SeedPath)
		})
		if err != nil {
			slog.Warn("Seed watch disabled", "error", err)
		}
	}

	precedence, err := gate.ParsePrecedence(cfg.Scheduler.Precedence)
	if err != nil {
		slog.Error("Invalid gate precedence", "error", err)
		os.Exit(1)
	}
	probGate := gate.NewSeeded(gate.Policy{
		Precedence:    precedence,
		Multiplier:    cfg.Scheduler.ThresholdMultiplier,
		DelayUnit:     cfg.Scheduler.ReplyDelayUnit,
		PostFrequency: cfg.Scheduler.PostFrequency,
	}, cfg.Scheduler.GateSeed)

	gen := generation.NewClient(generation.ClientConfig{
		Enabled:     cfg.Generation.Enabled,
		BaseURL:     cfg.Generation.APIURL,
		APIKey:      cfg.Generation.APIKey,
		Timeout:     cfg.Generation.Timeout,
		HourlyLimit: cfg.Generation.HourlyLimit,
		DailyLimit:  cfg.Generation.DailyLimit,
	}, logger)

	plans := planner.New(repo, gen, world, planner.Config{
		PendingTTL:  cfg.Scheduler.PlanPendingTTL,
		Concurrency: cfg.Scheduler.PlanConcurrency,
	}, logger)

	hub := notify.NewHub(cfg.Notify.DedupWindow, logger)
	hub.StartHeartbeat(ctx, cfg.Notify.HeartbeatInterval)

	sched := scheduler.New(scheduler.Deps{
		Repo:      repo,
		Gate:      probGate,
		Planner:   plans,
		Generator: gen,
		World:     world,
		Publisher: hub,
	}, scheduler.Config{
		Interval:       cfg.Scheduler.TickInterval,
		Concurrency:    cfg.Scheduler.TickConcurrency,
		TargetLookback: cfg.Scheduler.TargetLookback,
	}, logger)

	jobs, err := scheduler.NewJobs(repo, sched.Stats(), scheduler.JobsConfig{
		ArchiveSchedule:    cfg.Archive.Schedule,
		Retention:          cfg.Archive.Retention,
		StatsResetSchedule: cfg.Scheduler.StatsResetSchedule,
	}, logger)
	if err != nil {
		slog.Error("Failed to schedule maintenance jobs", "error", err)
		os.Exit(1)
	}

	// Initialize handlers.
	apiHandler := api.NewHandler(repo, plans, sched, world, hub)
	wsHandler := notify.NewWebSocketHandler(hub, cfg.FrontendURL, cfg.IsDevelopment(), logger)

	// Setup router.
	r := chi.NewRouter()

	// Global middleware.
	r.Use(chiMiddleware.RequestID)
	r.Use(chiMiddleware.RealIP)
	r.Use(chiMiddleware.Logger)
	r.Use(chiMiddleware.Recoverer)
	r.Use(chiMiddleware.Heartbeat("/health"))
	r.Use(middleware.CORS(cfg.AllowedOrigins(), identity.UserHeaderName, identity.ConnHeaderName))

	apiHandler.RegisterRoutes(r)

	// WebSocket endpoint.
	r.With(identity.Middleware(cfg.IsDevelopment())).Get("/ws/feed", wsHandler.ServeHTTP)

	// WebSocket connections are long-lived, so no WriteTimeout.
	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      r,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 0,
		IdleTimeout:  120 * time.Second,
	}

	sched.Start(ctx)
	jobs.Start()

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

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("Server forced to shutdown", "error", err)
	}

	jobs.Stop()
	sched.Wait()
	hub.CloseAll()

	slog.Info("Server stopped successfully")
}
