package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"github.com/lesprima/attempt-service/internal/auth"
	"github.com/lesprima/attempt-service/internal/config"
	"github.com/lesprima/attempt-service/internal/database"
	"github.com/lesprima/attempt-service/internal/engine"
	"github.com/lesprima/attempt-service/internal/gateway"
	"github.com/lesprima/attempt-service/internal/handler"
	"github.com/lesprima/attempt-service/internal/logger"
	"github.com/lesprima/attempt-service/internal/router"
	"github.com/lesprima/attempt-service/internal/store"
	memorystore "github.com/lesprima/attempt-service/internal/store/memory"
	postgresstore "github.com/lesprima/attempt-service/internal/store/postgres"
	redisstore "github.com/lesprima/attempt-service/internal/store/redis"
	"github.com/lesprima/attempt-service/internal/validator"
	"github.com/lesprima/attempt-service/internal/worker"
)

func main() {
	// ─── Load Configuration ────────────────────────────────────────────
	cfg := config.Load()

	// ─── Initialize Logger ─────────────────────────────────────────────
	log := logger.Setup(cfg.LogLevel, cfg.LogFormat)
	log.Info().
		Str("port", cfg.ServerPort).
		Str("mode", cfg.GinMode).
		Str("store", cfg.AttemptStore).
		Msg("Starting Lesprima Attempt Service")

	// ─── Initialize Validator ──────────────────────────────────────────
	validator.Setup()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// ─── Select Snapshot Store ─────────────────────────────────────────
	var snapshots store.Store
	switch cfg.AttemptStore {
	case "postgres":
		pool, err := database.NewPostgresPool(ctx, cfg, log)
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to connect to PostgreSQL")
		}
		defer pool.Close()
		snapshots = postgresstore.NewStore(pool)
	case "memory":
		log.Warn().Msg("Using in-memory snapshot store; attempts will not survive a restart")
		snapshots = memorystore.NewStore()
	default:
		rdb, err := database.NewRedisClient(ctx, cfg, log)
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to connect to Redis")
		}
		defer rdb.Close()
		snapshots = redisstore.NewStore(rdb)
	}

	// ─── Initialize Gateway and Engine ─────────────────────────────────
	gw := gateway.NewHTTPGateway(cfg.CenterAPIURL, cfg.CenterAPIToken, cfg.GatewayTimeout, log)
	registry := engine.NewRegistry(engine.Deps{
		Gateway: gw,
		Store:   snapshots,
		Log:     log,
	})

	tokenValidator := auth.NewTokenValidator(cfg.JWTSecret)

	// ─── Initialize Handlers ──────────────────────────────────────────
	handlers := &router.Handlers{
		Attempt: handler.NewAttemptHandler(registry, log),
		WS:      handler.NewWSHandler(registry, log, cfg.AllowedOrigins),
	}

	// ─── Start Background Workers ─────────────────────────────────────
	workerCtx, workerCancel := context.WithCancel(context.Background())

	sweeper := worker.NewSweeperWorker(snapshots, cfg.SnapshotRetention, cfg.SweepInterval, log)
	go sweeper.Start(workerCtx)

	// ─── Setup Router ──────────────────────────────────────────────────
	r := router.SetupRouter(tokenValidator, registry, handlers, cfg)

	// ─── Create HTTP Server ────────────────────────────────────────────
	srv := &http.Server{
		Addr:    ":" + cfg.ServerPort,
		Handler: r,
	}

	// ─── Start Server in Goroutine ─────────────────────────────────────
	go func() {
		log.Info().Str("addr", ":"+cfg.ServerPort).Msg("Server listening")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("Server error")
		}
	}()

	// ─── Graceful Shutdown ─────────────────────────────────────────────
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	sig := <-quit

	log.Info().Str("signal", sig.String()).Msg("Shutting down gracefully...")

	// Stop accepting new HTTP requests (5s timeout). Active attempts are
	// already durable through write-through snapshots, so nothing else
	// needs flushing.
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("HTTP server shutdown error")
	}

	workerCancel()

	log.Info().Msg("Shutdown complete")
}

// init sets zerolog global defaults before main runs.
func init() {
	zerolog.TimeFieldFormat = time.RFC3339
}
