package source

// scheduler.go runs sources on cron schedules.
//
// The scheduler is long-running and context-aware for graceful shutdown. It
// logs failures but does not stop the application when an individual run
// fails; the next tick tries again.

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"
)

// DefaultRunTimeout bounds one scheduled source run.
var DefaultRunTimeout = 10 * time.Minute

// Scheduler triggers source runs on cron expressions.
type Scheduler struct {
	runner *Runner
	cron   *cron.Cron
}

// NewScheduler wraps a runner in a cron scheduler.
func NewScheduler(runner *Runner) *Scheduler {
	return &Scheduler{
		runner: runner,
		cron:   cron.New(),
	}
}

// Add schedules one source on a cron expression ("0 3 * * *", "@daily",
// "@every 12h").
func (s *Scheduler) Add(sourceName, spec string) error {
	if !s.runner.Has(sourceName) {
		return fmt.Errorf("unknown source %q", sourceName)
	}

	_, err := s.cron.AddFunc(spec, func() {
		ctx, cancel := context.WithTimeout(context.Background(), DefaultRunTimeout)
		defer cancel()
		if _, err := s.runner.Run(ctx, sourceName); err != nil {
			slog.Error("scheduled source run failed", "source", sourceName, "error", err)
		}
	})
	if err != nil {
		return fmt.Errorf("schedule %s (%q): %w", sourceName, spec, err)
	}

	slog.Info("source scheduled", "source", sourceName, "cron", spec)
	return nil
}

// Jobs returns the number of scheduled entries.
func (s *Scheduler) Jobs() int {
	return len(s.cron.Entries())
}

// Start begins running schedules in the background. A scheduler with no
// entries is a no-op.
func (s *Scheduler) Start() {
	if s.Jobs() == 0 {
		return
	}
	slog.Info("source scheduler started", "jobs", s.Jobs())
	s.cron.Start()
}

// Stop halts scheduling and waits for running jobs, up to the context.
func (s *Scheduler) Stop(ctx context.Context) error {
	done := s.cron.Stop()
	select {
	case <-done.Done():
		slog.Info("source scheduler stopped")
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
