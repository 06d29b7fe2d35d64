// Package rollover retires closed spend buckets on a schedule.
//
// Windows roll over implicitly: a new day or month produces a new bucket
// id, so fresh spend lands in a fresh bucket and alert severities reset
// on first evaluation of the new bucket. The sweeper's job is bookkeeping
// after the fact: once a closed bucket has aged past the retention
// horizon it is marked retired. Retired records stay in storage for
// audit; nothing is deleted.
package rollover

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"costwise-hq/costwise/pkg/config"
	"costwise-hq/costwise/pkg/ledger"
	"costwise-hq/costwise/pkg/ledger/storage"
)

// Sweeper retires aged-out spend buckets on a cron schedule.
type Sweeper struct {
	backend storage.Backend
	cfg     config.RolloverConfig
	cron    *cron.Cron
	mu      sync.Mutex
	logger  *slog.Logger
	running bool
	now     func() time.Time
}

// NewSweeper creates a sweeper over the ledger backend.
func NewSweeper(backend storage.Backend, cfg config.RolloverConfig) *Sweeper {
	return &Sweeper{
		backend: backend,
		cfg:     cfg,
		cron:    cron.New(),
		logger:  slog.Default().With("component", "rollover"),
		now:     time.Now,
	}
}

// Start schedules the sweep. An empty schedule disables it.
func (s *Sweeper) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.cfg.Schedule == "" {
		s.logger.Info("rollover schedule not configured, skipping sweeper")
		return nil
	}

	if _, err := cron.ParseStandard(s.cfg.Schedule); err != nil {
		return fmt.Errorf("invalid cron schedule %q: %w", s.cfg.Schedule, err)
	}

	_, err := s.cron.AddFunc(s.cfg.Schedule, func() {
		s.runSweep(ctx)
	})
	if err != nil {
		return fmt.Errorf("failed to schedule sweep: %w", err)
	}

	s.cron.Start()
	s.running = true

	s.logger.Info("rollover sweeper started",
		"schedule", s.cfg.Schedule,
		"retain_days", s.cfg.RetainDays,
	)

	go func() {
		<-ctx.Done()
		s.Stop()
	}()

	return nil
}

// runSweep executes one sweep cycle.
func (s *Sweeper) runSweep(ctx context.Context) {
	s.logger.Info("starting scheduled bucket sweep")

	retired, err := s.Sweep(ctx)
	if err != nil {
		s.logger.Error("scheduled sweep failed",
			"error", err,
		)
		return
	}

	if retired > 0 {
		s.logger.Info("scheduled sweep completed",
			"retired_count", retired,
		)
	} else {
		s.logger.Debug("scheduled sweep completed, no buckets retired")
	}
}

// Sweep retires daily buckets older than the retention horizon and
// monthly buckets older than the horizon's month. Bucket ids sort
// lexicographically by date, so "before cutoff" is a string comparison.
func (s *Sweeper) Sweep(ctx context.Context) (int, error) {
	cutoff := s.now().UTC().AddDate(0, 0, -s.cfg.RetainDays)

	daily, err := s.backend.RetireBuckets(ctx, string(ledger.WindowDaily), cutoff.Format("2006-01-02"))
	if err != nil {
		return 0, fmt.Errorf("failed to retire daily buckets: %w", err)
	}

	monthly, err := s.backend.RetireBuckets(ctx, string(ledger.WindowMonthly), cutoff.Format("2006-01"))
	if err != nil {
		return daily, fmt.Errorf("failed to retire monthly buckets: %w", err)
	}

	return daily + monthly, nil
}

// Stop stops the scheduler and waits for a running sweep to complete.
func (s *Sweeper) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.cron != nil && s.running {
		ctx := s.cron.Stop()
		<-ctx.Done()
		s.running = false
		s.logger.Info("rollover sweeper stopped")
	}
}

// NextRun returns the next scheduled sweep time, or nil when disabled.
func (s *Sweeper) NextRun() *time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()

	entries := s.cron.Entries()
	if len(entries) == 0 {
		return nil
	}
	next := entries[0].Next
	return &next
}
