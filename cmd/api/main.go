package main

import (
	"context"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/dvloznov/finance-manager/internal/api"
	"github.com/dvloznov/finance-manager/internal/app"
	"github.com/dvloznov/finance-manager/internal/config"
	"github.com/dvloznov/finance-manager/internal/jobs"
	"github.com/dvloznov/finance-manager/internal/jobs/inmemory"
	"github.com/dvloznov/finance-manager/internal/logger"
)

func main() {
	envFile := flag.String("env", "", "Path to a .env file (defaults to ./.env when present)")
	port := flag.String("port", "", "HTTP server port (overrides PORT)")
	flag.Parse()

	cfg, err := config.Load(*envFile)
	if err != nil {
		bootLog := logger.New()
		bootLog.Fatal().Err(err).Msg("Failed to load configuration")
	}
	if *port != "" {
		cfg.Port = *port
	}

	log := logger.NewWithOptions(cfg.LogLevel, cfg.LogFormat)

	if err := cfg.Validate(); err != nil {
		log.Fatal().Err(err).Msg("Invalid configuration")
	}

	ctx := context.Background()

	svc, auditStore, backend, err := app.NewService(ctx, cfg, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize ledger service")
	}
	defer backend.Close()

	// Initialize job infrastructure
	jobStore := inmemory.NewStore()
	jobQueue := inmemory.NewQueue(100, jobStore)

	workerCtx, cancelWorker := context.WithCancel(logger.WithContext(ctx, log))
	defer cancelWorker()

	if err := jobQueue.Start(workerCtx, jobs.NewReconcileHandler(svc)); err != nil {
		log.Fatal().Err(err).Msg("Failed to start reconcile worker")
	}

	deps := api.Deps{
		Ledger:         svc,
		Jobs:           jobQueue,
		JobStore:       jobStore,
		RequestTimeout: cfg.RequestTimeout,
		Log:            log,
	}
	// a nil *audit.Store must not become a non-nil interface
	if auditStore != nil {
		deps.Audit = auditStore
	}

	server := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      api.NewRouter(deps),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: cfg.RequestTimeout + 5*time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Info().
			Str("port", cfg.Port).
			Str("backend", cfg.Backend).
			Msg("Starting API server")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("Failed to start server")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Server forced to shutdown")
	}

	// Let in-flight reconcile jobs finish before the backend closes.
	if err := jobQueue.Stop(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Error stopping job queue")
	}
	cancelWorker()

	if err := jobQueue.Close(); err != nil {
		log.Error().Err(err).Msg("Failed to close job queue")
	}

	log.Info().Msg("Server exited")
}
