package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/boddenberg/account-actor-go/internal/config"
	"github.com/boddenberg/account-actor-go/internal/domain"
	"github.com/boddenberg/account-actor-go/internal/handler"
	"github.com/boddenberg/account-actor-go/internal/infra/cache"
	"github.com/boddenberg/account-actor-go/internal/infra/memory"
	"github.com/boddenberg/account-actor-go/internal/infra/observability"
	"github.com/boddenberg/account-actor-go/internal/infra/postgres"
	"github.com/boddenberg/account-actor-go/internal/infra/resilience"
	"github.com/boddenberg/account-actor-go/internal/infra/sqlite"
	"github.com/boddenberg/account-actor-go/internal/infra/supabase"
	"github.com/boddenberg/account-actor-go/internal/port"
	"github.com/boddenberg/account-actor-go/internal/service"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

func main() {
	// --- Load .env file (for local development) ---
	if err := config.LoadDotEnv(".env"); err != nil {
		fmt.Fprintf(os.Stderr, "failed to read .env: %v\n", err)
		os.Exit(1)
	}

	// --- Config ---
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "invalid configuration: %v\n", err)
		os.Exit(1)
	}

	// --- Logger ---
	logger := observability.NewLogger(cfg.LogLevel)
	defer logger.Sync()

	logger.Info("configuration loaded",
		zap.Int("port", cfg.Port),
		zap.String("log_level", cfg.LogLevel),
		zap.String("event_store", cfg.EventStore),
		zap.Duration("idle_timeout", cfg.IdleTimeout),
		zap.Duration("flush_interval", cfg.FlushInterval),
		zap.Bool("flush_on_evict", cfg.FlushOnEvict),
		zap.Duration("cache_ttl", cfg.CacheTTL),
	)

	// --- Tracing ---
	shutdownTracer, err := observability.InitTracer(cfg.OTLPEndpoint, "accountd")
	if err != nil {
		logger.Fatal("failed to init tracer", zap.Error(err))
	}
	defer shutdownTracer(context.Background())

	// --- Metrics ---
	metrics := observability.NewMetrics()

	// --- Event store ---
	store, ready, closeStore, err := openStore(cfg, logger)
	if err != nil {
		logger.Fatal("failed to open event store", zap.Error(err))
	}
	defer closeStore()

	// --- Actors ---
	registry := cache.NewRegistry(metrics, logger)
	views := cache.New[*domain.AccountView](cfg.CacheTTL)
	defer views.Close()

	actorCtx, stopActors := context.WithCancel(context.Background())
	defer stopActors()

	svc := service.NewAccountService(actorCtx, registry, store, views, service.ServiceConfig{
		IdleTimeout:          cfg.IdleTimeout,
		FlushOnEvict:         cfg.FlushOnEvict,
		MaxConcurrentFlushes: cfg.MaxConcurrentFlushes,
		StoreName:            cfg.EventStore,
	}, metrics, logger)

	// --- Router ---
	router := handler.NewRouter(svc, ready, metrics, logger)

	// --- Server ---
	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      router,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("server starting", zap.Int("port", cfg.Port))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server failed: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		return svc.RunFlusher(gctx, cfg.FlushInterval)
	})
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("server shutting down...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()

		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Error("server forced shutdown", zap.Error(err))
		}
		if err := svc.FlushAll(shutdownCtx); err != nil {
			logger.Error("final flush failed", zap.Error(err))
		}
		stopActors()
		if err := svc.Wait(shutdownCtx); err != nil {
			logger.Warn("actors did not stop in time", zap.Error(err))
		}
		return nil
	})

	if err := g.Wait(); err != nil {
		logger.Error("accountd exited with error", zap.Error(err))
		return
	}
	logger.Info("server stopped")
}

// openStore builds the configured event store and its readiness probe.
func openStore(cfg *config.Config, logger *zap.Logger) (port.EventStore, handler.ReadinessCheck, func(), error) {
	switch cfg.EventStore {
	case config.StoreSQLite:
		s, err := sqlite.Open(cfg.SQLitePath)
		if err != nil {
			return nil, nil, nil, err
		}
		logger.Info("using SQLite event store", zap.String("path", cfg.SQLitePath))
		ready := func(r *http.Request) error { return s.Ping(r.Context()) }
		return s, ready, func() { _ = s.Close() }, nil

	case config.StorePostgres:
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		s, err := postgres.Connect(ctx, postgres.Config{
			DatabaseURL: cfg.DatabaseURL,
			MaxConns:    cfg.PGMaxConns,
		}, logger)
		if err != nil {
			return nil, nil, nil, err
		}
		ready := func(r *http.Request) error { return s.Ping(r.Context()) }
		return s, ready, s.Close, nil

	case config.StoreSupabase:
		logger.Info("using Supabase event store", zap.String("supabase_url", cfg.SupabaseURL))
		s := supabase.NewClient(
			&http.Client{Timeout: cfg.HTTPTimeout},
			cfg.SupabaseURL,
			cfg.SupabaseAnonKey,
			cfg.SupabaseServiceKey,
			resilience.NewCircuitBreaker("supabase"),
			resilience.Config{
				MaxRetries:     cfg.MaxRetries,
				InitialBackoff: cfg.InitialBackoff,
				MaxBackoff:     cfg.MaxBackoff,
			},
			logger,
		)
		ready := func(r *http.Request) error { return s.Ping(r.Context()) }
		return s, ready, func() {}, nil

	default:
		logger.Warn("using in-memory event store, events are lost on restart")
		return memory.NewStore(), nil, func() {}, nil
	}
}
