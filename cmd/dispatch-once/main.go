// Command dispatch-once runs a single dispatch tick and exits.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	config "github.com/maheshrc27/postflow/configs"
	"github.com/maheshrc27/postflow/internal/app"
	"github.com/maheshrc27/postflow/internal/logger"
	"github.com/rs/zerolog/log"
)

func main() {
	os.Exit(run())
}

func run() int {
	cfg, err := config.LoadConfig()
	if err != nil {
		logger.New("info", false)
		log.Error().Err(err).Msg("invalid configuration")
		return 1
	}
	logger.New(cfg.LogLevel, cfg.LogPretty)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := app.New(ctx, cfg)
	if err != nil {
		log.Error().Err(err).Msg("failed to start dispatcher")
		return 1
	}
	defer a.Close()

	report, err := a.Dispatcher.Tick(ctx)
	if err != nil {
		log.Error().Err(err).Msg("dispatch failed")
		return 1
	}
	log.Info().
		Str("tick_id", report.TickID).
		Int("due", report.Due).
		Int("published", report.Published).
		Int("failed", report.Failed).
		Int("skipped", report.Skipped).
		Int("deferred", report.Deferred).
		Msg("dispatch complete")
	return 0
}
