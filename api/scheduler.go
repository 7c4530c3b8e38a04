/*
scheduler.go - Background trigger for the flexitime jobs

PURPOSE:
  Periodically wakes up and runs flexitime.Jobs.RunDaily once per
  calendar day: roll call locking, system presence, auto-lock, and on
  Mondays the weekly drafts, balance recalculation and alerts.

DESIGN:
  - Runs a background goroutine with configurable check interval
  - Remembers the last day it ran; later ticks on the same day are no-ops
  - A failed run is retried on the next tick

CONFIGURATION:
  - CheckInterval: How often to check (default: 1 hour)
  - Enabled: Whether scheduler is active (default: true)

USAGE:
  scheduler := NewJobScheduler(handler.Jobs, logger)
  scheduler.Start()
  // ... later
  scheduler.Stop()

SEE ALSO:
  - handlers.go: RunJobs endpoint (manual trigger)
  - flexitime/jobs.go: The jobs themselves
*/
package api

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/warp/flexitime-engine/flexitime"
)

// DailyRunner is the part of flexitime.Jobs the scheduler drives.
type DailyRunner interface {
	RunDaily(ctx context.Context) (flexitime.JobReport, error)
}

// JobScheduler runs the daily jobs from a ticker.
type JobScheduler struct {
	Jobs          DailyRunner
	CheckInterval time.Duration
	Enabled       bool
	Clock         flexitime.Clock
	Logger        zerolog.Logger

	ticker *time.Ticker
	stop   chan struct{}
	cancel context.CancelFunc
	wg     sync.WaitGroup
	mu     sync.Mutex

	// runMu serializes ticks and guards lastRun.
	runMu   sync.Mutex
	lastRun string
}

// NewJobScheduler creates a new scheduler.
func NewJobScheduler(jobs DailyRunner, logger zerolog.Logger) *JobScheduler {
	return &JobScheduler{
		Jobs:          jobs,
		CheckInterval: 1 * time.Hour,
		Enabled:       true,
		Logger:        logger.With().Str("component", "scheduler").Logger(),
	}
}

// Start begins the scheduler.
func (s *JobScheduler) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.Enabled {
		s.Logger.Info().Msg("scheduler disabled, not starting")
		return
	}
	if s.ticker != nil {
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	s.ticker = time.NewTicker(s.CheckInterval)
	s.stop = make(chan struct{})
	s.cancel = cancel
	s.wg.Add(1)

	go s.run(ctx)

	s.Logger.Info().Dur("interval", s.CheckInterval).Msg("scheduler started")
}

// Stop cancels a running tick and waits for it to return.
func (s *JobScheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.ticker != nil {
		s.ticker.Stop()
		close(s.stop)
		s.cancel()
		s.wg.Wait()
		s.ticker = nil
		s.cancel = nil
		s.Logger.Info().Msg("scheduler stopped")
	}
}

func (s *JobScheduler) run(ctx context.Context) {
	defer s.wg.Done()

	// Run immediately on start
	s.Tick(ctx)

	for {
		select {
		case <-s.ticker.C:
			s.Tick(ctx)
		case <-s.stop:
			return
		}
	}
}

// Tick runs the daily jobs unless they already ran today. It reports
// whether a run happened. Safe to call while the scheduler is running.
func (s *JobScheduler) Tick(ctx context.Context) bool {
	s.runMu.Lock()
	defer s.runMu.Unlock()

	today := s.Clock.Today().String()
	if s.lastRun == today {
		return false
	}

	start := time.Now()
	report, err := s.Jobs.RunDaily(ctx)
	if err != nil {
		s.Logger.Error().Err(err).Str("day", today).Msg("daily jobs failed")
		return false
	}
	s.lastRun = today

	s.Logger.Info().
		Str("day", today).
		Dur("took", time.Since(start)).
		Int64("presence_locked", report.PresenceLocked).
		Int("presence_created", report.PresenceCreated).
		Int("weeks_locked", report.WeeksLocked).
		Int("drafts_created", report.DraftsCreated).
		Int("balances_updated", report.BalancesUpdated).
		Int("timesheet_notices", report.TimesheetNotices).
		Int("balance_alerts", report.BalanceAlerts).
		Int("reminders", report.Reminders).
		Msg("daily jobs completed")
	return true
}
