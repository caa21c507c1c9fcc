// Package main runs a single headless departure board that follows a fixed
// position, logs the board on every refresh and accepts remote commands.
package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"

	"github.com/stationboard/stationboard/internal/api/handler"
	"github.com/stationboard/stationboard/internal/config"
	"github.com/stationboard/stationboard/internal/location"
	"github.com/stationboard/stationboard/internal/telemetry"
	"github.com/stationboard/stationboard/internal/widget"
	"github.com/stationboard/stationboard/internal/worker"
)

// Version and BuildTime are set at compile time via ldflags
var (
	Version   = "dev"
	BuildTime = "unknown"
)

// logInterval is how often the current board is written to the log.
const logInterval = 30 * time.Second

func main() {
	const serviceName = "stationboard-worker"

	cfg, err := config.Load(os.Getenv(config.EnvConfigFile))
	if err != nil {
		zerolog.New(os.Stderr).Fatal().Err(err).Msg("invalid configuration")
	}

	log := zerolog.New(os.Stdout).
		Level(cfg.Level()).
		With().
		Timestamp().
		Str("service", serviceName).
		Str("version", Version).
		Logger()

	log.Info().
		Str("build_time", BuildTime).
		Float64("lat", cfg.Worker.Lat).
		Float64("lon", cfg.Worker.Lon).
		Msg("starting stationboard worker")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	tp, err := telemetry.Init(ctx, telemetry.Config{
		ServiceName:    serviceName,
		ServiceVersion: Version,
		Environment:    cfg.Env,
		OTLPEndpoint:   cfg.Telemetry.OTLPEndpoint,
		Enabled:        cfg.Telemetry.Enabled,
		SampleRatio:    cfg.Telemetry.SampleRatio,
	})
	if err != nil {
		log.Fatal().Err(err).Msg("failed to initialize telemetry")
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if shutdownErr := tp.Shutdown(shutdownCtx); shutdownErr != nil {
			log.Error().Err(shutdownErr).Msg("failed to shutdown telemetry")
		}
	}()

	stack, err := widget.NewStack(cfg, log)
	if err != nil {
		log.Error().Err(err).Msg("failed to initialize transit stack")
		os.Exit(1) //nolint:gocritic // intentional exit, telemetry cleanup is best-effort
	}

	metrics := &worker.RefreshMetrics{}
	session := widget.NewSession(widget.SessionConfig{
		ID:         "worker",
		Provider:   location.NewFixed(cfg.Worker.Coordinate()),
		Resolver:   stack.Resolver,
		Aggregator: stack.Aggregator,
		Alerts:     stack.Alerts,
		Scheduler:  stack.Scheduler,
		Metrics:    metrics,
		Logger:     log,
		BoardLimit: stack.BoardLimit,
	})
	defer session.Close()

	if err := session.Locate(ctx); err != nil {
		log.Warn().Err(err).Msg("initial locate failed")
	}

	if cfg.Worker.PubSubEnabled() {
		commands, err := worker.NewPubSubHandler(ctx, worker.PubSubConfig{
			ProjectID:        cfg.Worker.PubSubProject,
			SubscriptionName: cfg.Worker.PubSubSubscription,
			Target:           session,
			Logger:           log,
		})
		if err != nil {
			log.Error().Err(err).Msg("failed to create pub/sub handler")
			os.Exit(1)
		}
		defer commands.Close()

		go func() {
			if err := commands.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
				log.Error().Err(err).Msg("pub/sub receiver stopped")
			}
		}()
	} else {
		log.Info().Msg("pub/sub not configured, remote commands disabled")
	}

	ops := handler.NewOpsHandler(handler.OpsHandlerConfig{
		Version:   Version,
		BuildTime: BuildTime,
		Registry:  stack.Registry,
		Refresh:   metrics.Snapshot,
	})

	r := chi.NewRouter()
	r.Use(chimiddleware.Recoverer)
	r.Get("/health", ops.HealthCheck)
	r.Get("/status", ops.SystemStatus)

	server := &http.Server{
		Addr:         ":" + strconv.Itoa(cfg.Worker.HealthPort),
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
	}

	go func() {
		log.Info().Str("addr", server.Addr).Msg("health server listening")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error().Err(err).Msg("health server error")
			stop()
		}
	}()

	ticker := time.NewTicker(logInterval)
	defer ticker.Stop()

	var lastGeneration uint64
	for {
		select {
		case <-ctx.Done():
			log.Info().Msg("shutting down worker")
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			if err := server.Shutdown(shutdownCtx); err != nil {
				log.Error().Err(err).Msg("health server forced to shutdown")
			}
			return
		case <-ticker.C:
			snap := session.Snapshot()
			if snap.Generation != lastGeneration {
				lastGeneration = snap.Generation
				log.Info().Uint64("generation", snap.Generation).Msg("location changed")
			}
			logBoard(log, snap)
		}
	}
}
