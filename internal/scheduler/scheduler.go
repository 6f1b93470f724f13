package scheduler

import (
	"context"
	"time"

	"github.com/rs/zerolog"
)

// TickFunc is invoked on every refresh.
type TickFunc func(ctx context.Context, at time.Time) error

// Options tune scheduler behaviour.
type Options struct {
	Interval     time.Duration
	Immediate    bool
	StartupDelay time.Duration
}

// Scheduler drives periodic refreshes for the lifetime of a context.
type Scheduler struct {
	opts   Options
	logger zerolog.Logger
}

// New constructs a Scheduler instance.
func New(opts Options, logger zerolog.Logger) *Scheduler {
	if opts.Interval <= 0 {
		panic("scheduler interval must be positive")
	}
	return &Scheduler{opts: opts, logger: logger.With().Str("component", "scheduler").Logger()}
}

// Interval returns the configured refresh period.
func (s *Scheduler) Interval() time.Duration {
	return s.opts.Interval
}

// Run blocks, invoking tick once up front (when Immediate is set) and then
// every Interval until ctx is cancelled. The ticker is stopped on return so
// nothing fires after teardown.
func (s *Scheduler) Run(ctx context.Context, tick TickFunc) error {
	if s.opts.StartupDelay > 0 {
		timer := time.NewTimer(s.opts.StartupDelay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}

	if s.opts.Immediate {
		s.fire(ctx, tick, time.Now().UTC())
	}

	ticker := time.NewTicker(s.opts.Interval)
	defer ticker.Stop()

	s.logger.Debug().Dur("interval", s.opts.Interval).Msg("refresh loop started")
	for {
		select {
		case <-ctx.Done():
			s.logger.Debug().Msg("refresh loop stopped")
			return ctx.Err()
		case at := <-ticker.C:
			s.fire(ctx, tick, at.UTC())
		}
	}
}

func (s *Scheduler) fire(ctx context.Context, tick TickFunc, at time.Time) {
	if ctx.Err() != nil {
		return
	}
	if err := tick(ctx, at); err != nil {
		s.logger.Error().Err(err).Time("at", at).Msg("tick execution failed")
	}
}
