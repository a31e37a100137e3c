/*
main.go - Application entry point

PURPOSE:
  Initializes and starts the ledger engine server. Handles
  configuration, dependency injection, and graceful shutdown.

STARTUP SEQUENCE:
  1. Parse command-line flags, load configuration
  2. Initialize the SQLite store (pool, schema migration)
  3. Create auth and ledger services
  4. Configure HTTP router
  5. Start server with graceful shutdown

COMMAND-LINE FLAGS:
  -config  Optional YAML configuration file. Environment variables
           (LEDGER_*) override both the file and the defaults.

GRACEFUL SHUTDOWN:
  On SIGINT/SIGTERM:
  1. Stop accepting new connections
  2. Wait for active requests to complete (30s timeout)
  3. Close the connection pool
  4. Exit

EXAMPLES:
  # Run with defaults (ledger.db in the working directory)
  ./server

  # Run with a config file
  ./server -config=./ledger.yaml

  # Run with an in-memory database
  LEDGER_DB_PATH=":memory:" ./server

SEE ALSO:
  - config/config.go: Configuration knobs
  - api/server.go: Router configuration
  - store/sqlite/store.go: Database implementation
*/
package main

import (
	"context"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/agristock/ledger-engine/api"
	"github.com/agristock/ledger-engine/auth"
	"github.com/agristock/ledger-engine/config"
	"github.com/agristock/ledger-engine/ledger"
	"github.com/agristock/ledger-engine/store/sqlite"
)

func main() {
	configPath := flag.String("config", "", "YAML configuration file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		zap.NewExample().Fatal("failed to load configuration", zap.Error(err))
	}

	var log *zap.Logger
	if cfg.Server.Env == "production" {
		log, err = zap.NewProduction()
	} else {
		log, err = zap.NewDevelopment()
	}
	if err != nil {
		panic(err)
	}
	defer log.Sync()

	store, err := sqlite.New(cfg.DB.Path, sqlite.Config{
		MaxConnections: cfg.DB.MaxConnections,
		AcquireTimeout: cfg.DB.AcquireTimeout,
		BusyTimeout:    time.Duration(cfg.DB.BusyTimeoutMS) * time.Millisecond,
		RetryAttempts:  cfg.DB.MaxRetries,
		RetryBaseDelay: cfg.DB.RetryBaseDelay,
	}, log)
	if err != nil {
		log.Fatal("failed to initialize database", zap.Error(err))
	}
	defer store.Close()

	authSvc := auth.NewService(store, cfg.Auth.Secret, cfg.Auth.TokenTTL, log)
	ledgerSvc := ledger.NewService(store, log)
	handler := api.NewHandler(ledgerSvc, authSvc, store, log)
	router := api.NewRouter(handler, log)

	server := &http.Server{
		Addr:         cfg.Server.Addr(),
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Info("server starting",
			zap.String("addr", cfg.Server.Addr()),
			zap.String("db", cfg.DB.Path),
			zap.String("env", cfg.Server.Env))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal("server failed", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("shutting down server")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		log.Fatal("server forced to shutdown", zap.Error(err))
	}

	log.Info("server stopped")
}
