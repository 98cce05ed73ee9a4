// -----------------------------------------------------------------------
// Scheduler Service - Periodic maintenance: stale job reaping and expired
// cache sweeping
// -----------------------------------------------------------------------

package scheduler

import (
	"context"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/ternarybob/arbor"
	"github.com/ternarybob/tracto/internal/common"
	"github.com/ternarybob/tracto/internal/interfaces"
	"github.com/ternarybob/tracto/internal/models"
)

const maintenanceTimeout = 5 * time.Minute

// Service runs background maintenance on a cron schedule. A stale running
// job is one whose worker stopped heartbeating, typically after a crash;
// reaping moves it to a terminal error so its batch can settle.
type Service struct {
	storage        interfaces.StorageManager
	config         *common.SchedulerConfig
	cron           *cron.Cron
	staleThreshold time.Duration
	cacheTTL       time.Duration
	logger         arbor.ILogger
}

// NewService creates the maintenance scheduler
func NewService(storage interfaces.StorageManager, cfg *common.SchedulerConfig, cacheTTL time.Duration, logger arbor.ILogger) *Service {
	threshold := 10 * time.Minute
	if cfg.StaleJobThreshold != "" {
		if parsed, err := time.ParseDuration(cfg.StaleJobThreshold); err == nil && parsed > 0 {
			threshold = parsed
		}
	}

	return &Service{
		storage:        storage,
		config:         cfg,
		cron:           cron.New(),
		staleThreshold: threshold,
		cacheTTL:       cacheTTL,
		logger:         logger,
	}
}

// Start registers the maintenance jobs and begins the schedule
func (s *Service) Start() error {
	staleSchedule := s.config.StaleJobSchedule
	if staleSchedule == "" {
		staleSchedule = "*/5 * * * *"
	}
	sweepSchedule := s.config.CacheSweepSchedule
	if sweepSchedule == "" {
		sweepSchedule = "0 * * * *"
	}

	if _, err := s.cron.AddFunc(staleSchedule, s.reapStaleJobs); err != nil {
		return err
	}
	if _, err := s.cron.AddFunc(sweepSchedule, s.sweepCache); err != nil {
		return err
	}

	s.cron.Start()
	s.logger.Info().
		Str("stale_job_schedule", staleSchedule).
		Str("cache_sweep_schedule", sweepSchedule).
		Dur("stale_threshold", s.staleThreshold).
		Msg("Maintenance scheduler started")
	return nil
}

// Stop stops the scheduler, waiting for any running maintenance to finish
func (s *Service) Stop() {
	ctx := s.cron.Stop()
	<-ctx.Done()
	s.logger.Info().Msg("Maintenance scheduler stopped")
}

// ReapStaleJobsNow triggers an immediate reaping pass, used by tests and
// the admin surface.
func (s *Service) ReapStaleJobsNow() {
	s.reapStaleJobs()
}

// SweepCacheNow triggers an immediate cache sweep
func (s *Service) SweepCacheNow() {
	s.sweepCache()
}

func (s *Service) reapStaleJobs() {
	ctx, cancel := context.WithTimeout(context.Background(), maintenanceTimeout)
	defer cancel()

	stale, err := s.storage.JobStorage().GetStaleRunningJobs(ctx, s.staleThreshold)
	if err != nil {
		s.logger.Error().Err(err).Msg("Stale job scan failed")
		return
	}
	if len(stale) == 0 {
		return
	}

	reaped := 0
	for _, job := range stale {
		job.MarkError(&models.ErrorInfo{
			Kind:    models.ErrorKindInternal,
			Message: "job abandoned: no heartbeat within threshold",
			Step:    openStepName(job),
		})
		if err := s.storage.JobStorage().SaveJob(ctx, job); err != nil {
			s.logger.Error().Err(err).Str("job_id", job.ID).Msg("Failed to reap stale job")
			continue
		}
		reaped++
	}

	s.logger.Warn().
		Int("found", len(stale)).
		Int("reaped", reaped).
		Dur("threshold", s.staleThreshold).
		Msg("Stale running jobs reaped")
}

func (s *Service) sweepCache() {
	ctx, cancel := context.WithTimeout(context.Background(), maintenanceTimeout)
	defer cancel()

	removed, err := s.storage.CacheStorage().SweepExpired(ctx, s.cacheTTL)
	if err != nil {
		s.logger.Error().Err(err).Msg("Cache sweep failed")
		return
	}
	if removed > 0 {
		s.logger.Info().
			Int("removed", removed).
			Dur("ttl", s.cacheTTL).
			Msg("Expired cache entries swept")
	}
}

func openStepName(job *models.Job) string {
	if step := job.OpenStep(); step != nil {
		return step.Name
	}
	return ""
}
