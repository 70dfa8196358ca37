// Package main is the entry point for the DreamTrip API server.
// Its sole responsibility is wiring dependencies together and starting the server.
// No business logic belongs here.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"
	"github.com/joho/godotenv"
	"github.com/pressly/goose/v3"
	"github.com/redis/go-redis/v9"

	"github.com/pkordes/dreamtrip/backend/internal/config"
	"github.com/pkordes/dreamtrip/backend/internal/export"
	"github.com/pkordes/dreamtrip/backend/internal/handler"
	"github.com/pkordes/dreamtrip/backend/internal/interpreter"
	"github.com/pkordes/dreamtrip/backend/internal/middleware"
	"github.com/pkordes/dreamtrip/backend/internal/planner"
	"github.com/pkordes/dreamtrip/backend/internal/repo"
	"github.com/pkordes/dreamtrip/backend/internal/service"
	"github.com/pkordes/dreamtrip/backend/internal/stream"
	"github.com/pkordes/dreamtrip/backend/internal/triplock"
	"github.com/pkordes/dreamtrip/backend/migrations"
)

func main() {
	// --- Config -----------------------------------------------------------
	// A missing .env is normal in containers; real env vars always win.
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		// Use plain stderr before the logger is configured.
		slog.Error("configuration error", "error", err)
		os.Exit(1)
	}

	// --- Logger -----------------------------------------------------------
	var logLevel slog.Level
	if err := logLevel.UnmarshalText([]byte(cfg.LogLevel)); err != nil {
		logLevel = slog.LevelInfo
	}
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: logLevel,
	}))
	slog.SetDefault(logger)

	ctx := context.Background()

	// --- Database ---------------------------------------------------------
	pool, err := pgxpool.New(ctx, cfg.DatabaseURL)
	if err != nil {
		slog.Error("failed to create database pool", "error", err)
		os.Exit(1)
	}
	defer pool.Close()

	// Verify the DB is reachable before accepting traffic.
	if err := pool.Ping(ctx); err != nil {
		slog.Error("failed to connect to database", "error", err)
		os.Exit(1)
	}
	slog.Info("database connection established")

	if cfg.RunMigrations {
		if err := migrate(ctx, pool); err != nil {
			slog.Error("failed to run migrations", "error", err)
			os.Exit(1)
		}
	}

	// --- Redis (optional) -------------------------------------------------
	var (
		locks      triplock.Locker = triplock.NewLocal()
		redisCli   *redis.Client
		hubOptions []stream.Option
	)
	heads := service.NewHeads(cfg.ItineraryCacheTTL)
	if cfg.RedisURL != "" {
		opts, err := redis.ParseURL(cfg.RedisURL)
		if err != nil {
			slog.Error("invalid REDIS_URL", "error", err)
			os.Exit(1)
		}
		redisCli = redis.NewClient(opts)
		defer redisCli.Close()
		if err := redisCli.Ping(ctx).Err(); err != nil {
			slog.Error("failed to connect to redis", "error", err)
			os.Exit(1)
		}
		locks = triplock.NewRedis(redisCli, cfg.TripLockTTL, logger)
		hubOptions = append(hubOptions,
			stream.WithRedis(redisCli),
			// Commits made by other workers refresh this worker's cache.
			stream.OnRemote(func(ev stream.Event) {
				heads.Put(service.Snapshot{Trip: ev.Trip, Version: ev.Version})
			}),
		)
		slog.Info("redis connection established; distributed locks enabled")
	}
	hub := stream.NewHub(logger, hubOptions...)
	defer hub.Close()

	// --- Interpreter ------------------------------------------------------
	interp, err := newInterpreter(ctx, cfg.Interpreter)
	if err != nil {
		slog.Error("failed to build interpreter", "provider", cfg.Interpreter.Provider, "error", err)
		os.Exit(1)
	}
	slog.Info("interpreter ready", "provider", cfg.Interpreter.Provider)

	// --- Services ---------------------------------------------------------
	tripRepo := repo.NewTripRepo(pool)
	versionRepo := repo.NewItineraryRepo(pool)
	sessionRepo := repo.NewSessionRepo(pool)

	estimator := planner.NewTableEstimator()
	rec := service.NewReconciler(tripRepo, versionRepo, locks, heads, logger,
		service.WithPublisher(hub),
		service.WithCommitTimeout(cfg.CommitTimeout),
	)
	conv := service.NewConversationService(sessionRepo, interp, cfg.Interpreter.Timeout, cfg.Interpreter.HistoryLimit, logger)
	coord := service.NewCoordinator(tripRepo, versionRepo, conv, rec, heads, estimator, planner.NewSkeleton(estimator), logger)
	trips := service.NewTripService(tripRepo, versionRepo, rec, heads, locks)

	zones, err := export.NewZoneFinder()
	if err != nil {
		slog.Warn("timezone lookup unavailable; calendars will use UTC", "error", err)
	}
	exports := service.NewExportService(tripRepo, versionRepo, zones)

	// --- Router -----------------------------------------------------------
	// Middleware is applied in order: RequestID → RealIP → Logger → Recoverer → CORS → body limit.
	r := chi.NewRouter()
	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(middleware.NewSlogLogger(logger))
	r.Use(chimiddleware.Recoverer)
	r.Use(middleware.NewCORSHandler(cfg.CORSOrigins))
	r.Use(middleware.NewMaxBodySizeHandler(cfg.MaxBodyBytes))

	handler.NewServer(trips, coord, exports, hub, logger).Routes(r)

	// --- HTTP Server ------------------------------------------------------
	// A chat request may wait for the interpreter and then for a commit.
	writeTimeout := cfg.Interpreter.Timeout + cfg.CommitTimeout + 10*time.Second
	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      r,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: writeTimeout,
		IdleTimeout:  60 * time.Second,
	}

	// Graceful shutdown: wait for OS signal, then give in-flight requests
	// up to 15 seconds to complete before forcefully closing.
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		slog.Info("server starting", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	<-stop
	slog.Info("shutting down server")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("shutdown error", "error", err)
		os.Exit(1)
	}
	slog.Info("server stopped")
}

// migrate applies the embedded goose migrations through a database/sql view
// of the pool.
func migrate(ctx context.Context, pool *pgxpool.Pool) error {
	db := stdlib.OpenDBFromPool(pool)

	provider, err := goose.NewProvider(goose.DialectPostgres, db, migrations.FS)
	if err != nil {
		return fmt.Errorf("create goose provider: %w", err)
	}
	results, err := provider.Up(ctx)
	if err != nil {
		return fmt.Errorf("apply migrations: %w", err)
	}
	for _, res := range results {
		slog.Info("migration applied", "version", res.Source.Version, "duration", res.Duration)
	}
	return nil
}

func newInterpreter(ctx context.Context, cfg config.InterpreterConfig) (service.Interpreter, error) {
	switch cfg.Provider {
	case config.ProviderArk:
		return interpreter.NewArk(ctx, interpreter.ArkConfig{
			APIKey:  cfg.ArkAPIKey,
			Model:   cfg.ArkModel,
			BaseURL: cfg.ArkBaseURL,
			Region:  cfg.ArkRegion,
		})
	case config.ProviderOpenAI:
		return interpreter.NewOpenAI(interpreter.OpenAIConfig{
			APIKey:  cfg.OpenAIAPIKey,
			Model:   cfg.OpenAIModel,
			BaseURL: cfg.OpenAIBaseURL,
		})
	default:
		return interpreter.NewRules(), nil
	}
}
