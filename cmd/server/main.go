/*
main.go - Application entry point

PURPOSE:
  Initializes and starts the library lending server.
  Handles configuration, dependency injection, and graceful shutdown.

STARTUP SEQUENCE:
  1. Load configuration (defaults, YAML file, LIBRARY_* environment)
  2. Configure logging
  3. Build the engine (store, rules, services, notice worker)
  4. Start the background scheduler (mining, reminders, reconciliation)
  5. Configure the HTTP router and serve

COMMAND-LINE FLAGS:
  -config  Path to a YAML config file (default: $LIBRARY_CONFIG or ./library.yaml)
  -addr    Listen address, overrides server.addr
  -db      SQLite database path, overrides database.path
           Use ":memory:" for an in-memory database

GRACEFUL SHUTDOWN:
  On SIGINT/SIGTERM:
  1. Stop accepting new connections
  2. Wait for active requests to complete (server.shutdown_timeout)
  3. Stop the scheduler
  4. Stop the notice worker and close the database

EXAMPLES:
  # Run with file database
  ./server -db=./data/library.db

  # Run in memory with demo data via the API
  ./server -db=":memory:"
  curl -XPOST localhost:8080/api/scenarios/load -d '{"scenario_id":"busy-semester"}'

SEE ALSO:
  - bootstrap/bootstrap.go: Component wiring
  - api/server.go: Router configuration
  - config/config.go: Configuration keys
*/
package main

import (
	"context"
	"errors"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/warp/lending-engine/api"
	"github.com/warp/lending-engine/bootstrap"
	"github.com/warp/lending-engine/config"
	"github.com/warp/lending-engine/logging"
)

func main() {
	// Flags
	configPath := flag.String("config", "", "YAML config file")
	addr := flag.String("addr", "", "HTTP listen address (overrides server.addr)")
	dbPath := flag.String("db", "", "SQLite database path (overrides database.path)")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log := logging.Logger()
		log.Fatal().Err(err).Msg("failed to load configuration")
	}
	if *addr != "" {
		cfg.Server.Addr = *addr
	}
	if *dbPath != "" {
		cfg.Database.Path = *dbPath
	}
	logging.Init(cfg.Log)
	log := logging.With("server")

	engine, err := bootstrap.Build(context.Background(), cfg, bootstrap.Options{})
	if err != nil {
		log.Fatal().Err(err).Msg("failed to initialize engine")
	}
	defer engine.Close()

	// Background jobs
	scheduler := api.NewScheduler(logging.With("scheduler"))
	for _, j := range api.StandardJobs(engine.Loans, engine.Recs, api.Intervals{
		Mining:    cfg.Mining.Interval,
		DueNotice: cfg.Notices.DueSoonInterval,
		Reconcile: cfg.Lending.ReconcileInterval,
	}) {
		scheduler.Add(j)
	}
	scheduler.Start()
	defer scheduler.Stop()

	// Router
	handler := api.NewHandler(engine.Loans, engine.Recs, logging.With("api"))
	handler.RuleStore = engine.Store
	handler.Resetter = engine.Store
	router := api.NewRouter(handler, api.RouterOptions{
		CORSOrigins: cfg.Server.CORSOrigins,
		RateLimit:   cfg.Server.RateLimit,
		RateWindow:  cfg.Server.RateWindow,
	})

	server := &http.Server{
		Addr:         cfg.Server.Addr,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Start server in goroutine
	go func() {
		log.Info().Str("addr", cfg.Server.Addr).Msg("server starting")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("server failed")
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("shutting down server")

	ctx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		log.Error().Err(err).Msg("server forced to shutdown")
	}

	log.Info().Msg("server stopped")
}
