/*
main.go - Application entry point

PURPOSE:
  Initializes and starts the commission ledger server.
  Handles configuration, dependency injection, and graceful shutdown.

STARTUP SEQUENCE:
  1. Load configuration from the environment (config.Load)
  2. Build the zerolog logger
  3. Open the configured store (sqlite, postgres, redis or memory)
  4. Bootstrap settings and default brands
  5. Start the totals reconciliation scheduler
  6. Configure the HTTP router and serve

COMMAND-LINE FLAGS:
  -addr    Overrides APP_ADDR
  -seed    Loads the demo scenario at startup (replaces all data)

GRACEFUL SHUTDOWN:
  On SIGINT/SIGTERM:
  1. Stop accepting new connections
  2. Wait for active requests to complete (30s timeout)
  3. Stop the scheduler
  4. Close the store

EXAMPLES:
  # SQLite file next to the binary
  ./server

  # Postgres
  STORE_DRIVER=postgres PG_DSN="postgres://localhost/commission" ./server

  # Redis, JSON logs
  APP_ENV=production STORE_DRIVER=redis REDIS_ADDR=cache:6379 ./server

  # Throwaway demo
  STORE_DRIVER=memory ./server -seed

SEE ALSO:
  - config/config.go: Environment variables
  - api/server.go: Router configuration
*/
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"github.com/warp/commission-ledger/api"
	"github.com/warp/commission-ledger/config"
	"github.com/warp/commission-ledger/ledger"
	"github.com/warp/commission-ledger/logger"
	"github.com/warp/commission-ledger/store/kv"
	"github.com/warp/commission-ledger/store/memory"
	"github.com/warp/commission-ledger/store/sqlstore"
)

const shutdownTimeout = 30 * time.Second

// backend is what main needs from a store beyond the ledger contract.
type backend interface {
	ledger.TxStore
	api.Pinger
	io.Closer
}

func main() {
	addr := flag.String("addr", "", "HTTP listen address (overrides APP_ADDR)")
	seed := flag.Bool("seed", false, "load the demo scenario at startup")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "invalid configuration: %v\n", err)
		os.Exit(1)
	}
	if *addr != "" {
		cfg.AppAddr = *addr
	}

	log := logger.New(logger.Config{Env: cfg.AppEnv, Level: cfg.LogLevel})

	if err := run(cfg, *seed, log); err != nil {
		log.Fatal().Err(err).Msg("server failed")
	}
}

func run(cfg *config.Config, seed bool, log zerolog.Logger) error {
	ctx := context.Background()

	store, err := openStore(ctx, cfg)
	if err != nil {
		return fmt.Errorf("open %s store: %w", cfg.StoreDriver, err)
	}
	defer store.Close()
	log.Info().Str("driver", cfg.StoreDriver).Msg("store opened")

	mgr := ledger.NewManager(store,
		ledger.WithLogger(log.With().Str("component", "ledger").Logger()),
		ledger.WithBrandPolicy(cfg.BrandPolicy()),
		ledger.WithDefaultSettings(cfg.Settings()),
	)
	if err := mgr.Bootstrap(ctx); err != nil {
		return fmt.Errorf("bootstrap: %w", err)
	}
	if seed {
		if err := api.LoadScenario(ctx, mgr, "demo", time.Now()); err != nil {
			return fmt.Errorf("seed: %w", err)
		}
		log.Info().Msg("demo scenario loaded")
	}

	scheduler := api.NewReconciliationScheduler(mgr, log)
	scheduler.Interval = cfg.ReconcileInterval
	scheduler.Start()
	defer scheduler.Stop()

	handler := api.NewHandler(mgr)
	handler.Store = store
	handler.Scheduler = scheduler
	handler.DevMode = !cfg.IsProduction()

	router := api.NewRouter(handler, api.RouterOptions{
		Logger:             log,
		AllowedOrigins:     cfg.CORSAllowedOrigins,
		RateLimitPerMinute: cfg.RateLimitPerMinute,
		RequestTimeout:     cfg.AppRequestTimeout,
		Production:         cfg.IsProduction(),
	})

	server := &http.Server{
		Addr:         cfg.AppAddr,
		Handler:      router,
		ReadTimeout:  cfg.AppReadTimeout,
		WriteTimeout: cfg.AppWriteTimeout,
		IdleTimeout:  60 * time.Second,
	}

	serveErr := make(chan error, 1)
	go func() {
		log.Info().Str("addr", cfg.AppAddr).Str("env", cfg.AppEnv).Msg("server starting")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	select {
	case err := <-serveErr:
		return err
	case sig := <-quit:
		log.Info().Str("signal", sig.String()).Msg("shutting down server")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	log.Info().Msg("server stopped")
	return nil
}

func openStore(ctx context.Context, cfg *config.Config) (backend, error) {
	switch cfg.StoreDriver {
	case config.DriverSQLite:
		return sqlstore.OpenSQLite(cfg.SQLitePath)
	case config.DriverPostgres:
		return sqlstore.OpenPostgres(ctx, cfg.PGDSN)
	case config.DriverRedis:
		return kv.Connect(ctx, kv.Options{
			Addr:        cfg.RedisAddr,
			Password:    cfg.RedisPassword,
			DB:          cfg.RedisDB,
			Prefix:      cfg.RedisPrefix,
			RetryWindow: cfg.RedisRetryWindow,
		})
	case config.DriverMemory:
		return memoryBackend{memory.New()}, nil
	default:
		return nil, fmt.Errorf("unknown store driver %q", cfg.StoreDriver)
	}
}

// memoryBackend gives the in-memory store the health and lifecycle hooks
// the other drivers have.
type memoryBackend struct{ *memory.Memory }

func (memoryBackend) Ping(context.Context) error { return nil }

func (memoryBackend) Close() error { return nil }
