/*
main.go - Application entry point

PURPOSE:
  Initializes and starts the gamification engine server.
  Handles configuration, dependency injection, and graceful shutdown.

STARTUP SEQUENCE:
  1. Load log and server config from the environment
  2. Open the store selected by DB_DRIVER
  3. Seed the default shop catalog (SEED_CATALOG)
  4. Create API handler and router
  5. Start server with graceful shutdown

ENVIRONMENT:
  HTTP_ADDR           Listen address (default :8080)
  DB_DRIVER           sqlite | postgres | memory (default sqlite)
  SQLITE_PATH         SQLite file, ":memory:" allowed (default ./data/game.db)
  DATABASE_URL        PostgreSQL DSN, required for DB_DRIVER=postgres
  ENGINE_MAX_RETRIES  Attempts per mutation on version conflicts (default 3)
  CORS_ORIGINS        Comma-separated allowed origins (default *)
  SEED_CATALOG        Save the default shop items at startup (default true)
  LOG_LEVEL           zerolog level (default info)
  LOG_PRETTY          Human-readable console logs (default false)

GRACEFUL SHUTDOWN:
  On SIGINT/SIGTERM:
  1. Stop accepting new connections
  2. Wait for active requests to complete (30s timeout)
  3. Close database connection
  4. Exit

SEE ALSO:
  - api/server.go: Router configuration
  - config/config.go: Environment parsing
  - store/open.go: Backend selection
*/
package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/warp/gamify-engine/api"
	"github.com/warp/gamify-engine/config"
	"github.com/warp/gamify-engine/logging"
	"github.com/warp/gamify-engine/store"
)

func main() {
	logCfg, err := config.LoadLog()
	if err != nil {
		panic(err)
	}
	logger := logging.Init(logCfg)

	cfg, err := config.LoadServer()
	if err != nil {
		log.Fatal().Err(err).Msg("load server config failed")
	}

	ctx := context.Background()
	backend, closeStore, err := store.Open(ctx, cfg)
	if err != nil {
		log.Fatal().Err(err).Str("driver", cfg.DBDriver).Msg("store init failed")
	}
	defer closeStore()

	if cfg.SeedCatalog {
		if err := api.SeedCatalog(ctx, backend); err != nil {
			log.Fatal().Err(err).Msg("seed catalog failed")
		}
	}

	handler := api.NewHandler(backend, logger)
	handler.Engine.MaxRetries = cfg.MaxRetries

	router := api.NewRouter(handler, api.Options{
		AllowedOrigins: cfg.CORSOrigins,
		AccessLog:      logging.Writer(),
	})

	server := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	// Start server in goroutine
	go func() {
		log.Info().Str("addr", cfg.HTTPAddr).Str("driver", cfg.DBDriver).Msg("http listening")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("server failed")
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("shutting down server")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("server forced to shutdown")
		return
	}
	log.Info().Msg("server stopped")
}
