package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/QTest-hq/codehealth/internal/config"
	healthnats "github.com/QTest-hq/codehealth/internal/nats"
	"github.com/QTest-hq/codehealth/internal/worker"
)

func main() {
	// Setup logging
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	if os.Getenv("ENV") != "production" {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	}

	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load configuration")
	}
	zerolog.SetGlobalLevel(cfg.Level())

	// Determine worker type from env
	workerType := os.Getenv("WORKER_TYPE")
	if workerType == "" {
		workerType = "all"
	}

	if cfg.NATSURL == "" {
		log.Fatal().Msg("NATS_URL is required to watch analysis events")
	}
	natsClient, err := healthnats.NewClient(cfg.NATSURL, "codehealth-worker")
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to NATS")
	}
	defer natsClient.Close()

	pool, err := worker.NewPool(worker.PoolConfig{
		WorkerType: workerType,
		NATS:       natsClient,
		Alert:      worker.LogAlert,
	})
	if err != nil {
		log.Fatal().Err(err).Msg("failed to create worker pool")
	}

	// Setup graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		<-quit
		log.Info().Msg("worker pool is shutting down...")
		cancel()
	}()

	log.Info().Str("type", workerType).Msg("starting worker pool")
	if err := pool.Run(ctx); err != nil {
		log.Fatal().Err(err).Msg("worker pool error")
	}

	log.Info().Msg("worker pool stopped")
}
