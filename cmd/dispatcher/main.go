package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	config "github.com/maheshrc27/postflow/configs"
	"github.com/maheshrc27/postflow/internal/api"
	"github.com/maheshrc27/postflow/internal/api/handlers"
	"github.com/maheshrc27/postflow/internal/api/middleware"
	"github.com/maheshrc27/postflow/internal/app"
	"github.com/maheshrc27/postflow/internal/dispatcher"
	"github.com/maheshrc27/postflow/internal/logger"
	"github.com/maheshrc27/postflow/internal/metrics"
	"github.com/maheshrc27/postflow/internal/observability"
	"github.com/maheshrc27/postflow/internal/queue"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog/log"
)

var version = "dev"

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		logger.New("info", false)
		log.Error().Err(err).Msg("invalid configuration")
		os.Exit(1)
	}
	logger.New(cfg.LogLevel, cfg.LogPretty)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	shutdownOTel, err := observability.SetupOTel(ctx, cfg.OTEL, version)
	if err != nil {
		log.Error().Err(err).Msg("failed to set up tracing")
		os.Exit(1)
	}
	metrics.MustRegister(prometheus.DefaultRegisterer)

	a, err := app.New(ctx, cfg)
	if err != nil {
		log.Error().Err(err).Msg("failed to start dispatcher")
		os.Exit(1)
	}

	runner := dispatcher.NewRunner(a.Dispatcher, a.RefreshJob.RefreshTokens, cfg.Dispatch.Interval, cfg.Dispatch.RefreshSweep)

	var worker interface{ Shutdown() }
	if a.Queue != nil {
		srv := queue.NewServer(a.RedisOpt)
		if err := srv.Start(a.Queue.Mux()); err != nil {
			log.Error().Err(err).Msg("could not start notification worker")
			a.Close()
			os.Exit(1)
		}
		worker = srv
	}

	ops := api.NewApp(
		handlers.NewOpsHandler(a.Ping, runner),
		middleware.NewAuthMiddleware(cfg.SecretKey),
		prometheus.DefaultGatherer,
	)
	go func() {
		log.Info().Str("addr", cfg.OpsAddr).Msg("ops server listening")
		if err := ops.Listen(cfg.OpsAddr); err != nil {
			log.Error().Err(err).Msg("ops server stopped")
		}
	}()

	if err := runner.Run(ctx); err != nil {
		log.Error().Err(err).Msg("dispatcher failed")
	}

	gracefulShutdown(a, ops.ShutdownWithTimeout, worker, shutdownOTel)
}

func gracefulShutdown(a *app.App, shutdownOps func(time.Duration) error, worker interface{ Shutdown() }, shutdownOTel func(context.Context) error) {
	log.Info().Msg("shutting down")
	if err := shutdownOps(5 * time.Second); err != nil {
		log.Error().Err(err).Msg("failed to shut down ops server")
	}
	if worker != nil {
		worker.Shutdown()
	}
	a.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := shutdownOTel(ctx); err != nil {
		log.Error().Err(err).Msg("failed to flush traces")
	}
	log.Info().Msg("shutdown complete")
}
