package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/QTest-hq/codehealth/internal/analyzer"
	"github.com/QTest-hq/codehealth/internal/api"
	"github.com/QTest-hq/codehealth/internal/config"
	"github.com/QTest-hq/codehealth/internal/db"
	"github.com/QTest-hq/codehealth/internal/nats"
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
	if err := cfg.Validate(); err != nil {
		log.Fatal().Err(err).Msg("invalid configuration")
	}
	zerolog.SetGlobalLevel(cfg.Level())

	ctx := context.Background()

	project := config.DefaultProjectConfig()
	project.Workers = cfg.Workers
	project.MaxFiles = cfg.MaxFiles

	var (
		sinks []analyzer.Sink
		opts  []api.Option
	)

	// Optional Postgres mirror
	if cfg.DatabaseURL != "" {
		database, err := db.New(ctx, cfg.DatabaseURL)
		if err != nil {
			log.Fatal().Err(err).Msg("failed to connect to database")
		}
		defer database.Close()

		store := db.NewStore(database)
		if err := store.EnsureSchema(ctx); err != nil {
			log.Fatal().Err(err).Msg("failed to apply schema")
		}
		sinks = append(sinks, store)
		opts = append(opts, api.WithRunStore(store))
	}

	// Optional event stream
	if cfg.NATSURL != "" {
		client, err := nats.NewClient(cfg.NATSURL, "codehealth-api")
		if err != nil {
			log.Fatal().Err(err).Msg("failed to connect to NATS")
		}
		defer client.Close()

		if err := client.SetupStreams(ctx); err != nil {
			log.Fatal().Err(err).Msg("failed to set up streams")
		}
		sinks = append(sinks, nats.NewPublisher(client))
		opts = append(opts, api.WithEventStream(client))
	}

	runner := analyzer.NewRunnerFromProject(project, cfg.GraphCacheSize, sinks...)
	srv := api.NewServer(cfg, runner, opts...)

	// Start server
	httpServer := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      srv.Router(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 5 * time.Minute,
		IdleTimeout:  60 * time.Second,
	}

	// Graceful shutdown
	done := make(chan bool)
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		<-quit
		log.Info().Msg("server is shutting down...")

		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		if err := httpServer.Shutdown(ctx); err != nil {
			log.Error().Err(err).Msg("could not gracefully shutdown the server")
		}
		close(done)
	}()

	log.Info().
		Int("port", cfg.Port).
		Str("output_dir", cfg.OutputDir).
		Int("workers", cfg.Workers).
		Msg("starting API server")
	if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		log.Fatal().Err(err).Msg("could not listen on port")
	}

	<-done
	log.Info().Msg("server stopped")
}
