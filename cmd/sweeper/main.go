package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"github.com/healthfirst/provider-scheduling/internal/config"
	"github.com/healthfirst/provider-scheduling/internal/db"
	"github.com/healthfirst/provider-scheduling/internal/metrics"
	"github.com/healthfirst/provider-scheduling/internal/schedule"
)

// The sweeper periodically blocks AVAILABLE slots whose end time has
// passed, so searches never offer slots that can no longer be booked.
func main() {
	cfg, err := config.Load()
	if err != nil {
		errLog := zerolog.New(os.Stderr)
		errLog.Fatal().Err(err).Msg("config load error")
	}

	log := zerolog.New(os.Stdout).With().Timestamp().Str("service", "sweeper").Logger()
	log.Info().Str("env", cfg.Env).Dur("interval", cfg.SweepInterval).Msg("sweeper starting up")

	rootCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	pgCtx, cancelPg := context.WithTimeout(rootCtx, 10*time.Second)
	pgPool, err := db.ConnectPostgres(pgCtx, cfg.PostgresDSN)
	cancelPg()
	if err != nil {
		log.Fatal().Err(err).Msg("postgres connection error")
	}
	defer pgPool.Close()
	log.Info().Msg("connected to Postgres")

	repo := schedule.NewPgRepository(pgPool)
	m := metrics.NewSchedulingMetrics(nil)

	runOnce(rootCtx, repo, m, log)

	ticker := time.NewTicker(cfg.SweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-rootCtx.Done():
			log.Info().Msg("shutdown signal received, stopping sweeper")
			return
		case <-ticker.C:
			runOnce(rootCtx, repo, m, log)
		}
	}
}

func runOnce(ctx context.Context, repo schedule.Repository, m *metrics.SchedulingMetrics, log zerolog.Logger) {
	runCtx, cancel := context.WithTimeout(ctx, 20*time.Second)
	defer cancel()

	start := time.Now()
	blocked, err := repo.BlockPastOpenSlots(runCtx, start.UTC())
	if err != nil {
		log.Error().Err(err).Msg("sweep run error")
		return
	}
	m.ObserveSweptSlots(blocked)
	log.Info().Int64("blocked", blocked).Dur("took", time.Since(start)).Msg("sweep run complete")
}
