package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/dvloznov/finance-manager/internal/app"
	"github.com/dvloznov/finance-manager/internal/config"
	"github.com/dvloznov/finance-manager/internal/jobs"
	"github.com/dvloznov/finance-manager/internal/jobs/inmemory"
	"github.com/dvloznov/finance-manager/internal/logger"
)

// The worker recomputes registry balances on a fixed interval, logging
// drift and, with -apply, rewriting drifted balances.
func main() {
	envFile := flag.String("env", "", "Path to a .env file (defaults to ./.env when present)")
	interval := flag.Duration("interval", time.Hour, "Time between balance recomputations")
	apply := flag.Bool("apply", false, "Rewrite drifted registry balances instead of only reporting them")
	flag.Parse()

	cfg, err := config.Load(*envFile)
	if err != nil {
		bootLog := logger.New()
		bootLog.Fatal().Err(err).Msg("Failed to load configuration")
	}
	log := logger.NewWithOptions(cfg.LogLevel, cfg.LogFormat)

	if err := cfg.Validate(); err != nil {
		log.Fatal().Err(err).Msg("Invalid configuration")
	}

	ctx, cancel := context.WithCancel(logger.WithContext(context.Background(), log))
	defer cancel()

	svc, _, backend, err := app.NewService(ctx, cfg, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize ledger service")
	}
	defer backend.Close()

	jobQueue := inmemory.NewQueue(1, inmemory.NewStore())
	if err := jobQueue.Start(ctx, jobs.NewReconcileHandler(svc)); err != nil {
		log.Fatal().Err(err).Msg("Failed to start job consumer")
	}

	scheduler := &jobs.Scheduler{
		Publisher:  jobQueue,
		Interval:   *interval,
		Apply:      *apply,
		MaxRetries: 2,
	}
	go func() {
		if err := scheduler.Run(ctx); err != nil {
			log.Error().Err(err).Msg("Scheduler stopped")
			cancel()
		}
	}()

	log.Info().
		Dur("interval", *interval).
		Bool("apply", *apply).
		Str("backend", cfg.Backend).
		Msg("Reconcile worker started")

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	select {
	case <-quit:
	case <-ctx.Done():
	}

	log.Info().Msg("Shutting down reconcile worker...")
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := jobQueue.Stop(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Error during graceful shutdown")
	}

	log.Info().Msg("Reconcile worker exited")
}
