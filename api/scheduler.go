/*
scheduler.go - Automated monthly snapshot scheduler

PURPOSE:
  Generates performance snapshots for every active trainer shortly after
  each month closes, so payout data exists even when nobody triggers
  generation by hand.

DESIGN:
  - Cron-driven: runs at 03:00 on the 1st of every month
  - Generates snapshots for the month that just ended
  - Regeneration is idempotent, so overlapping manual runs are harmless
  - Finalized snapshots are skipped by the engine and surface as
    per-trainer failures in the logs, never as a scheduler crash

CONFIGURATION:
  - Spec: Cron expression (default: "0 3 1 * *")
  - Enabled: Whether the scheduler is active (default: true)

USAGE:
  scheduler := NewSnapshotScheduler(handler, logger)
  scheduler.Start()
  // ... later
  scheduler.Stop()

SEE ALSO:
  - handlers.go: GenerateAll endpoint (manual generation)
  - engine/snapshot.go: Generator.GenerateAll
*/
package api

import (
	"context"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"

	"github.com/playbook/studio-engine/engine"
)

// SnapshotScheduler generates last month's snapshots on a cron schedule.
type SnapshotScheduler struct {
	Handler *Handler
	Logger  zerolog.Logger
	Spec    string
	Enabled bool

	cron *cron.Cron
}

// NewSnapshotScheduler creates a scheduler with the default monthly spec.
func NewSnapshotScheduler(handler *Handler, logger zerolog.Logger) *SnapshotScheduler {
	return &SnapshotScheduler{
		Handler: handler,
		Logger:  logger,
		Spec:    "0 3 1 * *",
		Enabled: true,
	}
}

// Start begins the scheduler.
func (s *SnapshotScheduler) Start() error {
	if !s.Enabled {
		s.Logger.Info().Msg("scheduler disabled, not starting")
		return nil
	}

	// The target month is computed on the UTC clock; the schedule must
	// fire on the same clock or a local-time host near midnight would
	// generate the wrong month.
	s.cron = cron.New(cron.WithLocation(time.UTC))
	if _, err := s.cron.AddFunc(s.Spec, s.generateLastMonth); err != nil {
		return err
	}
	s.cron.Start()

	s.Logger.Info().Str("spec", s.Spec).Msg("snapshot scheduler started")
	return nil
}

// Stop stops the scheduler and waits for a running job to finish.
func (s *SnapshotScheduler) Stop() {
	if s.cron != nil {
		<-s.cron.Stop().Done()
		s.Logger.Info().Msg("snapshot scheduler stopped")
	}
}

func (s *SnapshotScheduler) generateLastMonth() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	month := engine.MonthOf(time.Now().UTC()).Previous()
	result, err := s.Handler.Generator.GenerateAll(ctx, month)
	if err != nil {
		s.Logger.Error().Err(err).Str("month", month.String()).Msg("scheduled generation failed")
		return
	}

	evt := s.Logger.Info()
	if result.Failed > 0 {
		evt = s.Logger.Warn()
		for _, f := range result.Failures {
			s.Logger.Warn().
				Str("trainer_id", string(f.TrainerID)).
				Str("month", month.String()).
				Err(f.Err).
				Msg("trainer snapshot failed")
		}
	}
	evt.
		Str("month", month.String()).
		Int("generated", result.Generated).
		Int("failed", result.Failed).
		Msg("scheduled snapshot generation completed")
}
