/*
main.go - Application entry point

PURPOSE:
  Initializes and starts the leave ledger server. Handles configuration,
  dependency injection, and graceful shutdown.

STARTUP SEQUENCE:
  1. Load configuration (.env, config file, environment)
  2. Build the zap logger
  3. Open the configured store (sqlite, postgres or memory)
  4. Build the leave service with clock, logger and metrics
  5. Apply the policy seed file, if any
  6. Start the policy expiry scheduler
  7. Start the HTTP server with graceful shutdown

COMMAND-LINE FLAGS:
  -config  Path to a config file (default: ./config.yaml if present)

ENVIRONMENT:
  PORT, STORE_DRIVER, SQLITE_PATH, DATABASE_URL, LOG_LEVEL, LOG_FORMAT,
  TIMEZONE, POLICY_SEED_FILE, EXPIRY_SWEEP_INTERVAL, CORS_ORIGINS,
  ENABLE_SCENARIOS.
  See config/config.go for defaults.

GRACEFUL SHUTDOWN:
  On SIGINT/SIGTERM:
  1. Stop the expiry scheduler
  2. Stop accepting new connections
  3. Wait for active requests to complete (30s timeout)
  4. Close the store

EXAMPLES:
  # Run with file database
  SQLITE_PATH=./data/leave.db ./server

  # Run against PostgreSQL
  STORE_DRIVER=postgres DATABASE_URL=postgres://localhost/leave ./server

  # Run in memory with a seed file
  STORE_DRIVER=memory POLICY_SEED_FILE=./seed.json ./server

SEE ALSO:
  - api/server.go: Router configuration
  - api/handlers.go: HTTP handlers
  - config/config.go: Configuration keys
*/
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/zap"

	"github.com/warp/leave-ledger/api"
	"github.com/warp/leave-ledger/config"
	"github.com/warp/leave-ledger/generic"
	"github.com/warp/leave-ledger/leave"
	"github.com/warp/leave-ledger/store/memory"
	"github.com/warp/leave-ledger/store/postgres"
	"github.com/warp/leave-ledger/store/sqlite"
)

// closableStore is a leave.TxStore that owns resources.
type closableStore interface {
	leave.TxStore
	api.Resetter
	Close() error
}

func main() {
	configPath := flag.String("config", "", "Path to config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	logger, err := config.NewLogger(cfg.Log)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to build logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	if err := run(cfg, logger); err != nil {
		logger.Fatal("server failed", zap.Error(err))
	}
}

func run(cfg *config.Config, logger *zap.Logger) error {
	ctx := context.Background()

	// Initialize store
	store, err := openStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer store.Close()
	logger.Info("store opened", zap.String("driver", cfg.StoreDriver))

	// Metrics
	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	svc := leave.NewService(store,
		leave.WithClock(generic.SystemClock{Location: cfg.Location}),
		leave.WithLogger(logger),
		leave.WithMetrics(leave.NewMetrics(registry)),
	)

	// Initialize handler
	handler := api.NewHandler(svc, logger)
	if cfg.EnableScenarios {
		handler.Resetter = store
		logger.Warn("demo scenarios enabled, loading one wipes the store")
	}

	if cfg.PolicySeedFile != "" {
		seed, err := handler.PolicyFactory.LoadSeedFile(cfg.PolicySeedFile)
		if err != nil {
			return err
		}
		if err := handler.PolicyFactory.Seed(ctx, svc, seed, logger); err != nil {
			return fmt.Errorf("failed to apply seed: %w", err)
		}
	}

	scheduler := api.NewExpiryScheduler(svc, logger)
	scheduler.CheckInterval = cfg.ExpirySweepInterval
	scheduler.Start()
	defer scheduler.Stop()

	router := api.NewRouter(handler, api.RouterOptions{
		CORSOrigins: cfg.CORSOrigins,
		Gatherer:    registry,
	})

	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Start server in goroutine
	serverErr := make(chan error, 1)
	go func() {
		logger.Info("server starting", zap.Int("port", cfg.Port))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	select {
	case err := <-serverErr:
		return err
	case <-quit:
	}

	logger.Info("shutting down server")
	scheduler.Stop()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server forced to shutdown: %w", err)
	}

	logger.Info("server stopped")
	return nil
}

func openStore(ctx context.Context, cfg *config.Config) (closableStore, error) {
	switch cfg.StoreDriver {
	case config.DriverMemory:
		return memory.New(), nil
	case config.DriverPostgres:
		return postgres.New(ctx, cfg.DatabaseURL)
	default:
		return sqlite.New(cfg.SQLitePath)
	}
}
