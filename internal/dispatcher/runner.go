package dispatcher

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog/log"
)

type Ticker interface {
	Tick(ctx context.Context) (Report, error)
}

// Runner drives the dispatcher: a tick every Interval, the refresh sweep every
// SweepEvery and an immediate tick whenever Trigger is called.
type Runner struct {
	ticker     Ticker
	sweep      func(ctx context.Context)
	interval   time.Duration
	sweepEvery time.Duration
	trigger    chan struct{}
}

func NewRunner(t Ticker, sweep func(ctx context.Context), interval, sweepEvery time.Duration) *Runner {
	if interval <= 0 {
		interval = 5 * time.Second
	}
	if sweepEvery <= 0 {
		sweepEvery = 10 * time.Minute
	}
	return &Runner{
		ticker:     t,
		sweep:      sweep,
		interval:   interval,
		sweepEvery: sweepEvery,
		trigger:    make(chan struct{}, 1),
	}
}

// Trigger asks for a tick as soon as possible. Requests made while one is
// already queued collapse into it.
func (r *Runner) Trigger() {
	select {
	case r.trigger <- struct{}{}:
	default:
	}
}

// Run blocks until ctx is done, then waits for the running tick and sweep to
// finish. Jobs run on a context that is not cancelled by ctx.
func (r *Runner) Run(ctx context.Context) error {
	jobCtx := context.WithoutCancel(ctx)
	logger := cronLogger{}
	c := cron.New(cron.WithLogger(logger), cron.WithChain(
		cron.Recover(logger),
		cron.SkipIfStillRunning(logger),
	))

	if _, err := c.AddFunc("@every "+r.interval.String(), func() { r.tick(jobCtx) }); err != nil {
		return fmt.Errorf("schedule dispatch tick: %w", err)
	}
	if r.sweep != nil {
		if _, err := c.AddFunc("@every "+r.sweepEvery.String(), func() { r.sweep(jobCtx) }); err != nil {
			return fmt.Errorf("schedule refresh sweep: %w", err)
		}
	}

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for {
			select {
			case <-ctx.Done():
				return
			case <-r.trigger:
				r.tick(jobCtx)
			}
		}
	}()

	c.Start()
	log.Info().Dur("interval", r.interval).Dur("sweep_every", r.sweepEvery).Msg("dispatcher started")

	<-ctx.Done()
	log.Info().Msg("dispatcher stopping, waiting for running jobs")
	<-c.Stop().Done()
	wg.Wait()
	log.Info().Msg("dispatcher stopped")
	return nil
}

func (r *Runner) tick(ctx context.Context) {
	if _, err := r.ticker.Tick(ctx); err != nil {
		log.Error().Err(err).Msg("dispatch tick failed")
	}
}

type cronLogger struct{}

func (cronLogger) Info(msg string, keysAndValues ...interface{}) {
	log.Debug().Fields(keysAndValues).Msg("cron: " + msg)
}

func (cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	log.Error().Err(err).Fields(keysAndValues).Msg("cron: " + msg)
}
