package core

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog"
)

const schedulerInterval = 30 * time.Second

// Scheduler polls the settings row and starts the backup workflow when a
// scheduled run comes due. The compare-and-swap claim in ClaimDueRun keeps
// multiple workers from double-starting.
type Scheduler struct {
	logger   zerolog.Logger
	settings *SettingsService
	backup   *BackupService
	interval time.Duration
}

func NewScheduler(logger zerolog.Logger, settings *SettingsService, backup *BackupService) *Scheduler {
	return &Scheduler{
		logger:   logger.With().Str("component", "scheduler").Logger(),
		settings: settings,
		backup:   backup,
		interval: schedulerInterval,
	}
}

// Run blocks until ctx is cancelled.
func (s *Scheduler) Run(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	s.logger.Info().Dur("interval", s.interval).Msg("scheduler started")
	for {
		select {
		case <-ctx.Done():
			s.logger.Info().Msg("scheduler stopped")
			return
		case <-ticker.C:
			s.tick(ctx)
		}
	}
}

func (s *Scheduler) tick(ctx context.Context) {
	claimed, err := s.settings.ClaimDueRun(ctx, time.Now().UTC())
	if err != nil {
		s.logger.Error().Err(err).Msg("scheduler claim failed")
		return
	}
	if !claimed {
		return
	}

	runID, err := s.backup.RunNow(ctx)
	if err != nil {
		// Losing to a manual run is fine; the schedule already advanced.
		if errors.Is(err, ErrRunInProgress) {
			s.logger.Info().Msg("scheduled run skipped, a run is already in progress")
			return
		}
		s.logger.Error().Err(err).Msg("scheduled run failed to start")
		return
	}
	s.logger.Info().Str("run_id", runID).Msg("scheduled backup started")
}
