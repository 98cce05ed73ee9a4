package orchestrator

import (
	"context"
	"errors"

	"github.com/ternarybob/tracto/internal/cache"
	"github.com/ternarybob/tracto/internal/common"
	"github.com/ternarybob/tracto/internal/interfaces"
	"github.com/ternarybob/tracto/internal/models"
	"github.com/ternarybob/tracto/internal/registry"
	"github.com/ternarybob/tracto/internal/tracker"
)

const cacheLookupStep = "cache_lookup"

// execute drives one job from pending to its single terminal state. Every
// exit path of this function leaves the job terminal and persisted.
func (s *Service) execute(jobID string) {
	ctx := s.ctx

	job, err := s.storage.JobStorage().GetJob(ctx, jobID)
	if err != nil {
		s.logger.Error().Err(err).Str("job_id", jobID).Msg("Cannot load queued job")
		return
	}
	if job.IsTerminal() {
		// Cancelled while queued
		return
	}
	if job.CancelRequested {
		job.Steps = append(job.Steps, models.NewCancelledStep("cancelled before execution started"))
		job.MarkError(&models.ErrorInfo{
			Kind:    models.ErrorKindCancelled,
			Message: "cancelled before execution started",
			Step:    "cancel",
		})
		if s.persistTerminal(ctx, job) {
			s.afterTerminal(ctx, job)
		}
		return
	}

	proc, err := s.processors.Get(job.Kind)
	if err != nil {
		job.MarkError(&models.ErrorInfo{
			Kind:    models.ErrorKindValidation,
			Message: err.Error(),
		})
		if s.persistTerminal(ctx, job) {
			s.afterTerminal(ctx, job)
		}
		return
	}

	jobCtx, cancelJob := context.WithCancel(ctx)
	s.registerCancel(job.ID, cancelJob)
	defer s.unregisterCancel(job.ID)

	job.MarkRunning()
	s.persist(ctx, job)

	track := tracker.New()
	runner := &persistingRunner{svc: s, job: job, track: track}
	fingerprint := cache.Fingerprint(job.Kind, job.Input)

	result, gateErr := s.gate.GetOrCompute(jobCtx, job.Kind, fingerprint, job.UseCache,
		func(computeCtx context.Context) (map[string]interface{}, models.ResourceUsage, error) {
			procResult, procErr := proc.Run(computeCtx, job, runner)
			if procErr != nil {
				return nil, models.ResourceUsage{}, procErr
			}
			usage, usageErr := s.calculator.Usage(procResult.Consumption)
			if usageErr != nil {
				return nil, models.ResourceUsage{}, models.NewProcessorFailure("resource accounting failed: %v", usageErr)
			}
			return procResult.Payload, usage, nil
		})

	job.Steps = track.Steps()

	if gateErr != nil {
		procErr := models.AsProcessorError(gateErr)
		errInfo := &models.ErrorInfo{
			Kind:    procErr.Kind,
			Message: procErr.Message,
			Step:    track.LastStepName(),
		}
		job.MarkError(errInfo)
		s.logger.Warn().
			Str("job_id", job.ID).
			Str("error_kind", string(errInfo.Kind)).
			Str("step", errInfo.Step).
			Msg("Job failed")
		if s.persistTerminal(ctx, job) {
			s.afterTerminal(ctx, job)
		}
		return
	}

	if result.FromCache {
		// The processor never ran for this job; record the reuse as a
		// synthetic step so the timeline stays complete.
		if err := track.RecordCachedStep(cacheLookupStep); err != nil {
			s.logger.Warn().Err(err).Str("job_id", job.ID).Msg("Could not record cache reuse step")
		}
		job.Steps = track.Steps()
		job.FromCache = true
	}
	job.Resources = result.Resources

	job.MarkSuccess(result.Payload)
	if !s.persistTerminal(ctx, job) {
		return
	}

	s.logger.Info().
		Str("job_id", job.ID).
		Str("kind", string(job.Kind)).
		Bool("from_cache", job.FromCache).
		Float64("total_units", job.Resources.TotalUnits).
		Msg("Job completed")
	s.afterTerminal(ctx, job)
}

// afterTerminal recomputes the owning batch's aggregate and, when the batch
// has just become terminal, hands the webhook payload to the notifier. The
// notified-once guard lives on the batch record.
func (s *Service) afterTerminal(ctx context.Context, job *models.Job) {
	if job.BatchID == "" {
		return
	}

	report, err := s.batches.Status(ctx, job.BatchID)
	if err != nil {
		if !errors.Is(err, models.ErrBatchNotFound) {
			s.logger.Error().Err(err).Str("batch_id", job.BatchID).Msg("Cannot derive batch status")
		}
		return
	}
	if !report.Status.IsTerminal() || report.CallbackURL == "" {
		return
	}

	first, err := s.batches.MarkNotified(ctx, job.BatchID)
	if err != nil {
		s.logger.Error().Err(err).Str("batch_id", job.BatchID).Msg("Cannot mark batch notified")
		return
	}
	if !first {
		return
	}

	payload := buildBatchPayload(ctx, s.storage.JobStorage(), report)
	url := report.CallbackURL
	common.SafeGo(s.logger, "webhook-"+job.BatchID, func() {
		s.notifier.Notify(s.ctx, url, payload)
	})
}

func buildBatchPayload(ctx context.Context, jobs interfaces.JobStorage, report *registry.StatusReport) *models.WebhookPayload {
	payload := &models.WebhookPayload{
		BatchID:   report.BatchID,
		Status:    string(report.Status),
		Resources: report.Resources,
		Jobs:      make([]models.WebhookJobOutcome, 0, len(report.Jobs)),
	}
	for _, member := range report.Jobs {
		outcome := models.WebhookJobOutcome{
			JobID:     member.JobID,
			Status:    member.Status,
			FromCache: member.FromCache,
			Error:     member.Error,
		}
		if job, err := jobs.GetJob(ctx, member.JobID); err == nil {
			outcome.Resources = job.Resources
		}
		payload.Jobs = append(payload.Jobs, outcome)
	}
	return payload
}

// persist saves the job, logging rather than failing on storage errors so
// the lifecycle always completes in memory.
func (s *Service) persist(ctx context.Context, job *models.Job) {
	if err := s.storage.JobStorage().SaveJob(ctx, job); err != nil {
		s.logger.Error().Err(err).Str("job_id", job.ID).Msg("Failed to persist job state")
	}
}

// persistTerminal saves the job's terminal state unless another writer got
// there first: the stale-job reaper may have already recorded a terminal
// error for a slow worker, and a batch cascade delete may have removed the
// record entirely. The first durable terminal transition wins; returns
// true when this write was it.
func (s *Service) persistTerminal(ctx context.Context, job *models.Job) bool {
	stored, err := s.storage.JobStorage().GetJob(ctx, job.ID)
	if err != nil {
		if errors.Is(err, models.ErrJobNotFound) {
			s.logger.Warn().Str("job_id", job.ID).Msg("Job deleted while executing, dropping result")
			return false
		}
	} else if stored.IsTerminal() {
		s.logger.Warn().
			Str("job_id", job.ID).
			Str("stored_status", string(stored.Status)).
			Msg("Job already terminal in storage, keeping the first transition")
		return false
	}

	s.persist(ctx, job)
	return true
}

func (s *Service) registerCancel(jobID string, cancel context.CancelFunc) {
	s.cancelMu.Lock()
	s.cancels[jobID] = cancel
	s.cancelMu.Unlock()
}

func (s *Service) unregisterCancel(jobID string) {
	s.cancelMu.Lock()
	if cancel, ok := s.cancels[jobID]; ok {
		cancel()
		delete(s.cancels, jobID)
	}
	s.cancelMu.Unlock()
}

// persistingRunner wraps the step tracker so each completed step is flushed
// to storage with a heartbeat, keeping the stored timeline current while
// the job runs.
type persistingRunner struct {
	svc   *Service
	job   *models.Job
	track *tracker.Tracker
}

var _ interfaces.StepRunner = (*persistingRunner)(nil)

func (r *persistingRunner) Step(ctx context.Context, name string, fn func(ctx context.Context) error) error {
	err := r.track.Step(ctx, name, fn)
	r.job.Steps = r.track.Steps()
	r.job.UpdateHeartbeat()
	r.svc.persist(ctx, r.job)
	return err
}
