// Package schedule drives recurring evaluation cycles: every interval
// it lists all mission slots and evaluates each one through a bounded
// worker pool, dispatching outcomes to the notifier.
package schedule

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/veillant/huntd/hunter"
	"github.com/veillant/huntd/missions"
)

// Lister enumerates the mission slots to evaluate; implemented by
// *missions.Store.
type Lister interface {
	Missions(ctx context.Context) ([]missions.Ref, error)
}

// Evaluator runs one evaluation; implemented by *hunter.Engine.
type Evaluator interface {
	Evaluate(ctx context.Context, issuer string, index int) hunter.Outcome
}

// Config configures the scheduler.
type Config struct {
	// Interval between cycles. Default: 5 minutes.
	Interval time.Duration
	// Concurrency bounds parallel evaluations within a cycle. Default: 4.
	Concurrency int
}

func (c *Config) defaults() {
	if c.Interval <= 0 {
		c.Interval = 5 * time.Minute
	}
	if c.Concurrency <= 0 {
		c.Concurrency = 4
	}
}

// Scheduler runs evaluation cycles until its context is cancelled.
type Scheduler struct {
	lister   Lister
	eval     Evaluator
	notifier hunter.Notifier
	config   Config
	logger   *slog.Logger
}

// New creates a Scheduler.
func New(lister Lister, eval Evaluator, notifier hunter.Notifier, cfg Config, logger *slog.Logger) *Scheduler {
	cfg.defaults()
	if logger == nil {
		logger = slog.Default()
	}
	return &Scheduler{
		lister:   lister,
		eval:     eval,
		notifier: notifier,
		config:   cfg,
		logger:   logger,
	}
}

// Run evaluates all missions once immediately, then on every tick.
// Blocks until ctx is cancelled.
func (s *Scheduler) Run(ctx context.Context) {
	ticker := time.NewTicker(s.config.Interval)
	defer ticker.Stop()

	s.logger.Info("schedule: started", "interval", s.config.Interval,
		"concurrency", s.config.Concurrency)

	s.RunCycle(ctx)
	for {
		select {
		case <-ctx.Done():
			s.logger.Info("schedule: stopped")
			return
		case <-ticker.C:
			s.RunCycle(ctx)
		}
	}
}

// RunCycle evaluates every mission slot once. Evaluations of distinct
// missions run concurrently up to the configured bound; the engine's
// per-mission lock keeps same-slot evaluations serialized. One failed
// mission never aborts the rest of the cycle.
func (s *Scheduler) RunCycle(ctx context.Context) {
	refs, err := s.lister.Missions(ctx)
	if err != nil {
		s.logger.Error("schedule: list missions", "error", err)
		return
	}
	if len(refs) == 0 {
		return
	}

	start := time.Now()
	sem := make(chan struct{}, s.config.Concurrency)
	var wg sync.WaitGroup
	var changed, failed int64
	var mu sync.Mutex

	for _, ref := range refs {
		if ctx.Err() != nil {
			break
		}
		wg.Add(1)
		sem <- struct{}{}
		go func(ref missions.Ref) {
			defer wg.Done()
			defer func() { <-sem }()

			out := s.eval.Evaluate(ctx, ref.Issuer, ref.Index)
			hunter.Dispatch(ctx, s.notifier, s.logger, ref.Issuer, out)

			mu.Lock()
			switch out.Status {
			case hunter.StatusChanged:
				changed++
			case hunter.StatusFailed:
				failed++
			}
			mu.Unlock()
		}(ref)
	}
	wg.Wait()

	s.logger.Info("schedule: cycle complete", "missions", len(refs),
		"changed", changed, "failed", failed, "duration", time.Since(start))
}
