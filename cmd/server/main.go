// VetCheck - pet health triage server
package main

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/joho/godotenv"

	"github.com/ashureev/vetcheck/internal/api"
	"github.com/ashureev/vetcheck/internal/config"
	"github.com/ashureev/vetcheck/internal/engine"
	"github.com/ashureev/vetcheck/internal/healthz"
	"github.com/ashureev/vetcheck/internal/middleware"
	"github.com/ashureev/vetcheck/internal/store"
	"github.com/ashureev/vetcheck/internal/telemetry"
)

const serviceName = "vetcheck"

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
		Level: cfg.SlogLevel(),
	}))
	slog.SetDefault(logger)

	slog.Info("Starting server", "port", cfg.Port, "dev", cfg.IsDevelopment())

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Telemetry.
	providers, err := telemetry.NewProviders(ctx, cfg.Telemetry.OTLPEndpoint, serviceName, cfg.Telemetry.OTLPInsecure)
	if err != nil {
		slog.Error("Failed to initialize telemetry", "error", err)
		os.Exit(1)
	}
	providers.SetGlobal()
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := providers.Shutdown(shutdownCtx); err != nil {
			slog.Error("Failed to flush telemetry", "error", err)
		}
	}()
	metrics, err := telemetry.NewInstruments(providers.MeterProvider)
	if err != nil {
		slog.Error("Failed to register metrics", "error", err)
		os.Exit(1)
	}

	// Initialize dependencies.
	repo, err := store.Open(ctx, cfg.DatabaseURL)
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
	slog.Info("Database connected", "postgres", cfg.UsesPostgres())

	images, vqa := newImageAnalyzer(cfg, logger, metrics)
	replies, err := newReplyGenerator(ctx, cfg, logger, metrics)
	if err != nil {
		slog.Error("Failed to initialize chat provider", "error", err)
		os.Exit(1)
	}
	directory := newDirectory(cfg, logger, metrics)

	eng := engine.New(repo, images, replies, directory,
		engine.WithRecentTurns(cfg.RecentTurns),
		engine.WithMaxMessageLength(cfg.MaxMessageLength),
		engine.WithMaxImageBytes(cfg.MaxImageBytes),
		engine.WithLogger(logger),
		engine.WithInstruments(metrics),
	)

	limiter := api.NewRateLimiter(cfg.RateLimitPerMinute)
	evictionDone := limiter.StartEviction(ctx, 5*time.Minute)

	// Start idle sweeper.
	sweeperDone := eng.StartIdleSweeper(ctx, cfg.SweepInterval, cfg.SessionIdleTimeout, func(id string) {
		limiter.Forget(api.SessionKey(id))
	})

	// gRPC health.
	checker := healthz.NewChecker(repo, images, cfg.Vision.ProbeTimeout)
	grpcHealth := healthz.NewServer(checker, logger)
	watchDone := grpcHealth.Watch(ctx, 30*time.Second)
	lis, err := net.Listen("tcp", cfg.GRPCHealthAddr)
	if err != nil {
		slog.Error("Failed to listen for gRPC health", "addr", cfg.GRPCHealthAddr, "error", err)
		os.Exit(1)
	}
	go func() {
		slog.Info("gRPC health listening", "addr", cfg.GRPCHealthAddr)
		if err := grpcHealth.Serve(lis); err != nil {
			slog.Error("gRPC health server failed", "error", err)
		}
	}()

	origins := middleware.ParseOrigins(cfg.FrontendURL)
	if len(origins) == 0 {
		origins = []string{"*"}
	}

	handlerOpts := []api.Option{
		api.WithRateLimiter(limiter),
		api.WithMaxImageBytes(cfg.MaxImageBytes),
		api.WithRadiusKm(cfg.Lookup.RadiusKm),
		api.WithOriginPatterns(origins),
		api.WithLogger(logger),
	}
	if vqa != nil {
		handlerOpts = append(handlerOpts, api.WithQuestionAsker(vqa))
	}
	handler := api.NewHandler(eng, directory, handlerOpts...)
	healthHandler := api.NewHealthHandler(checker)

	// Setup router.
	r := chi.NewRouter()

	// Global middleware.
	r.Use(chiMiddleware.RequestID)
	r.Use(chiMiddleware.RealIP)
	r.Use(chiMiddleware.Logger)
	r.Use(chiMiddleware.Recoverer)
	r.Use(chiMiddleware.Heartbeat("/ping"))
	r.Use(middleware.CORS(middleware.CORSOptions{AllowedOrigins: origins, MaxAge: 600}))

	healthHandler.RegisterHealth(r)
	handler.RegisterRoutes(r)

	// No WriteTimeout: /ws/chat connections are long-lived.
	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      r,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 0,
		IdleTimeout:  120 * time.Second,
	}

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
	grpcHealth.Stop()
	<-sweeperDone
	<-evictionDone
	<-watchDone

	slog.Info("Server stopped successfully")
}
