package retention

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
)

// Scheduler runs retention sweeps on a cron schedule.
type Scheduler struct {
	pruner  *Pruner
	cron    *cron.Cron
	mu      sync.Mutex
	logger  *slog.Logger
	running bool
}

// NewScheduler creates a scheduler for the given pruner.
func NewScheduler(pruner *Pruner) *Scheduler {
	return &Scheduler{
		pruner: pruner,
		cron:   cron.New(),
		logger: slog.Default().With("component", "trace.retention.scheduler"),
	}
}

// Start validates the schedule, registers the sweep job, and kicks off
// one immediate sweep so bounds are enforced right after startup.
// Retention disabled or an empty schedule is a no-op.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.pruner.config.Enabled {
		s.logger.Info("retention disabled, scheduler not started")
		return nil
	}
	if s.pruner.config.Schedule == "" {
		s.logger.Info("retention schedule not configured, scheduler not started")
		return nil
	}

	if _, err := cron.ParseStandard(s.pruner.config.Schedule); err != nil {
		return fmt.Errorf("invalid retention schedule %q: %w", s.pruner.config.Schedule, err)
	}

	if _, err := s.cron.AddFunc(s.pruner.config.Schedule, func() {
		s.runSweep(ctx)
	}); err != nil {
		return fmt.Errorf("failed to schedule retention sweep: %w", err)
	}

	s.cron.Start()
	s.running = true

	s.logger.Info("retention scheduler started",
		"schedule", s.pruner.config.Schedule,
		"max_age_days", s.pruner.config.MaxAgeDays,
		"max_count", s.pruner.config.MaxCount,
	)

	// Catch-up sweep so a gateway that was stopped past its bounds
	// does not wait a full interval.
	go s.runSweep(ctx)

	go func() {
		<-ctx.Done()
		s.Stop()
	}()

	return nil
}

// runSweep executes one sweep. Failures are logged, never propagated;
// a broken backend must not take the scheduler down with it.
func (s *Scheduler) runSweep(ctx context.Context) {
	deleted, err := s.pruner.Prune(ctx)
	if err != nil {
		s.logger.Error("retention sweep failed", "error", err)
		return
	}
	if deleted > 0 {
		s.logger.Info("scheduled retention sweep completed", "deleted_count", deleted)
	}
}

// Stop stops the scheduler and waits for a running sweep to finish.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.cron != nil && s.running {
		ctx := s.cron.Stop()
		<-ctx.Done()
		s.running = false
		s.logger.Info("retention scheduler stopped")
	}
}

// IsRunning reports whether the scheduler is active.
func (s *Scheduler) IsRunning() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

// NextRun returns the next scheduled sweep time, or nil when the
// scheduler is not running.
func (s *Scheduler) NextRun() *time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.cron == nil {
		return nil
	}
	entries := s.cron.Entries()
	if len(entries) == 0 {
		return nil
	}
	next := entries[0].Next
	return &next
}
