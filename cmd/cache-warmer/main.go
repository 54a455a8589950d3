package main

import (
	"context"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/hackgods/pool-availability/internal/app"
	"github.com/hackgods/pool-availability/internal/availability"
	"github.com/hackgods/pool-availability/internal/config"
	"github.com/hackgods/pool-availability/internal/logging"
	"github.com/hackgods/pool-availability/internal/telemetry"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("config load error")
	}
	logging.Setup(cfg.Env, cfg.LogLevel, cfg.ServiceName+"-warmer")

	if !cfg.CacheEnabled {
		log.Warn().Msg("CACHE_ENABLED is false, cache-warmer has nothing to do")
		return
	}

	log.Info().
		Str("env", cfg.Env).
		Dur("interval", cfg.WarmInterval).
		Int("horizon_days", cfg.HorizonDays).
		Msg("cache-warmer starting up")

	rootCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	shutdownTracing, err := telemetry.Setup(rootCtx, telemetry.Config{
		Enabled:      cfg.OTelEnabled,
		ServiceName:  cfg.ServiceName + "-warmer",
		OTLPEndpoint: cfg.OTelEndpoint,
		SampleRatio:  cfg.OTelSamplingRatio,
	})
	if err != nil {
		log.Fatal().Err(err).Msg("tracing setup error")
	}
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = shutdownTracing(ctx)
	}()

	deps, err := app.Open(rootCtx, cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("startup error")
	}
	defer deps.Close()

	// Run once at startup
	runOnce(rootCtx, deps.Engine, cfg.HorizonDays)

	ticker := time.NewTicker(cfg.WarmInterval)
	defer ticker.Stop()

	for {
		select {
		case <-rootCtx.Done():
			log.Info().Msg("shutdown signal received, stopping cache-warmer")
			return
		case <-ticker.C:
			runOnce(rootCtx, deps.Engine, cfg.HorizonDays)
		}
	}
}

// runOnce refreshes every pool's date list. One failing pool does not stop
// the others.
func runOnce(ctx context.Context, engine *availability.Engine, horizonDays int) {
	runCtx, cancel := context.WithTimeout(ctx, 60*time.Second)
	defer cancel()

	start := time.Now()
	ids, err := engine.ListPoolIDs(runCtx)
	if err != nil {
		log.Error().Err(err).Msg("warm run error")
		return
	}

	failed := 0
	for _, id := range ids {
		if _, err := engine.RefreshPoolDates(runCtx, id, horizonDays); err != nil {
			failed++
			log.Warn().Err(err).Str("pool_id", id.String()).Msg("pool dates refresh failed")
		}
	}
	log.Info().
		Int("pools", len(ids)).
		Int("failed", failed).
		Dur("took", time.Since(start)).
		Msg("warm run complete")
}
