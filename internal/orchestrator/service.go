// -----------------------------------------------------------------------
// Job Orchestrator - Owns the job lifecycle from submission to terminal
// state: dispatch, step tracking, cache gating, resource accounting and
// webhook notification
// -----------------------------------------------------------------------

package orchestrator

import (
	"context"
	"fmt"
	"sync"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/tracto/internal/cache"
	"github.com/ternarybob/tracto/internal/common"
	"github.com/ternarybob/tracto/internal/interfaces"
	"github.com/ternarybob/tracto/internal/models"
	"github.com/ternarybob/tracto/internal/processors"
	"github.com/ternarybob/tracto/internal/registry"
	"github.com/ternarybob/tracto/internal/resources"
)

// JobRequest describes one job submission
type JobRequest struct {
	Kind     models.ProcessorKind   `json:"kind"`
	Input    models.InputDescriptor `json:"input"`
	UseCache *bool                  `json:"use_cache,omitempty"`
}

// Service drives jobs from pending to exactly one terminal state. Jobs are
// queued at submission and executed by a fixed set of workers; each worker
// runs one job at a time through its processor's phases under step tracking.
type Service struct {
	storage    interfaces.StorageManager
	processors *processors.Registry
	batches    *registry.Service
	gate       *cache.Gate
	calculator *resources.Calculator
	notifier   interfaces.WebhookNotifier
	logger     arbor.ILogger

	queue       chan string
	concurrency int

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	// cancels maps running job IDs to their per-job cancel functions so
	// Cancel can interrupt a job between steps.
	cancelMu sync.Mutex
	cancels  map[string]context.CancelFunc
}

// NewService creates the orchestrator
func NewService(
	storage interfaces.StorageManager,
	procRegistry *processors.Registry,
	batches *registry.Service,
	gate *cache.Gate,
	calculator *resources.Calculator,
	notifier interfaces.WebhookNotifier,
	workers common.WorkersConfig,
	logger arbor.ILogger,
) *Service {
	concurrency := workers.Concurrency
	if concurrency <= 0 {
		concurrency = 4
	}
	queueDepth := workers.QueueDepth
	if queueDepth <= 0 {
		queueDepth = 256
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Service{
		storage:     storage,
		processors:  procRegistry,
		batches:     batches,
		gate:        gate,
		calculator:  calculator,
		notifier:    notifier,
		logger:      logger,
		queue:       make(chan string, queueDepth),
		concurrency: concurrency,
		ctx:         ctx,
		cancel:      cancel,
		cancels:     make(map[string]context.CancelFunc),
	}
}

// Start launches the worker goroutines
func (s *Service) Start() {
	s.logger.Info().
		Int("workers", s.concurrency).
		Int("queue_depth", cap(s.queue)).
		Msg("Starting job orchestrator")

	for i := 0; i < s.concurrency; i++ {
		s.wg.Add(1)
		workerID := i
		common.SafeGo(s.logger, fmt.Sprintf("orchestrator-worker-%d", workerID), func() {
			defer s.wg.Done()
			s.worker(workerID)
		})
	}
}

// Stop drains the workers and waits for in-flight jobs to finish their
// current step.
func (s *Service) Stop() {
	s.cancel()
	s.wg.Wait()
	s.logger.Info().Msg("Job orchestrator stopped")
}

// Submit validates and persists a new pending job, optionally attaching it
// to an existing batch, then queues it for execution.
func (s *Service) Submit(ctx context.Context, req JobRequest, batchID string) (*models.Job, error) {
	if _, err := s.processors.Get(req.Kind); err != nil {
		return nil, err
	}

	useCache := true
	if req.UseCache != nil {
		useCache = *req.UseCache
	}

	job := models.NewJob(req.Kind, req.Input, useCache)
	if err := job.Validate(); err != nil {
		return nil, err
	}

	if batchID != "" {
		// A fresh batch ID creates the batch on first attach
		if err := s.batches.EnsureAttached(ctx, batchID, job.ID); err != nil {
			return nil, err
		}
		job.BatchID = batchID
	}

	if err := s.storage.JobStorage().SaveJob(ctx, job); err != nil {
		if job.BatchID != "" {
			s.rollbackAttach(ctx, job.BatchID, job.ID)
		}
		return nil, fmt.Errorf("failed to persist job: %w", err)
	}

	if err := s.enqueue(job.ID); err != nil {
		// A job that never reaches the queue must not linger as pending:
		// nothing would ever run it, and its batch could never go terminal.
		s.rollbackSubmit(ctx, job)
		return nil, err
	}

	s.logger.Info().
		Str("job_id", job.ID).
		Str("kind", string(job.Kind)).
		Str("batch_id", job.BatchID).
		Bool("use_cache", useCache).
		Msg("Job submitted")
	return job, nil
}

// rollbackSubmit removes a persisted job that could not be queued, undoing
// its batch membership first.
func (s *Service) rollbackSubmit(ctx context.Context, job *models.Job) {
	if job.BatchID != "" {
		s.rollbackAttach(ctx, job.BatchID, job.ID)
	}
	if err := s.storage.JobStorage().DeleteJob(ctx, job.ID); err != nil {
		s.logger.Error().Err(err).Str("job_id", job.ID).Msg("Failed to remove unqueued job")
	}
}

func (s *Service) rollbackAttach(ctx context.Context, batchID, jobID string) {
	if err := s.batches.DetachJob(ctx, batchID, jobID); err != nil {
		s.logger.Error().Err(err).
			Str("batch_id", batchID).
			Str("job_id", jobID).
			Msg("Failed to detach unqueued job from batch")
	}
}

// SubmitBatch creates a batch and submits its member jobs. Submission stops
// at the first failing request; that job is rolled back by Submit, while
// already-queued members remain attached and run normally.
func (s *Service) SubmitBatch(ctx context.Context, requests []JobRequest, callbackURL string) (*models.Batch, []*models.Job, error) {
	if len(requests) == 0 {
		return nil, nil, models.NewValidationError("batch requires at least one job")
	}
	for _, req := range requests {
		if _, err := s.processors.Get(req.Kind); err != nil {
			return nil, nil, err
		}
	}

	batch, err := s.batches.CreateBatch(ctx, callbackURL)
	if err != nil {
		return nil, nil, err
	}

	jobs := make([]*models.Job, 0, len(requests))
	for _, req := range requests {
		job, err := s.Submit(ctx, req, batch.ID)
		if err != nil {
			return nil, nil, fmt.Errorf("batch %s submission failed: %w", batch.ID, err)
		}
		jobs = append(jobs, job)
	}
	return batch, jobs, nil
}

// Cancel stops a job. Pending jobs transition straight to a terminal
// cancelled error; running jobs get a cancel request honored at the next
// step boundary. Terminal jobs cannot be cancelled.
func (s *Service) Cancel(ctx context.Context, jobID string) error {
	job, err := s.storage.JobStorage().GetJob(ctx, jobID)
	if err != nil {
		return err
	}
	if job.IsTerminal() {
		return fmt.Errorf("%w: %s", models.ErrJobAlreadyTerminal, jobID)
	}

	job.CancelRequested = true
	if job.Status == models.JobStatusPending {
		job.Steps = append(job.Steps, models.NewCancelledStep("cancelled before execution started"))
		job.MarkError(&models.ErrorInfo{
			Kind:    models.ErrorKindCancelled,
			Message: "cancelled before execution started",
			Step:    "cancel",
		})
	}
	if err := s.storage.JobStorage().SaveJob(ctx, job); err != nil {
		return fmt.Errorf("failed to persist cancellation: %w", err)
	}

	s.cancelMu.Lock()
	if cancelJob, ok := s.cancels[jobID]; ok {
		cancelJob()
	}
	s.cancelMu.Unlock()

	s.logger.Info().
		Str("job_id", jobID).
		Str("status", string(job.Status)).
		Msg("Job cancellation requested")

	if job.IsTerminal() {
		s.afterTerminal(ctx, job)
	}
	return nil
}

// Retry clones a terminal job into a fresh pending job and queues it. The
// original job is never mutated; the clone records its origin in RetryOf.
func (s *Service) Retry(ctx context.Context, jobID string) (*models.Job, error) {
	job, err := s.storage.JobStorage().GetJob(ctx, jobID)
	if err != nil {
		return nil, err
	}
	if !job.IsTerminal() {
		return nil, models.NewValidationError("job %s is not terminal, cannot retry", jobID)
	}

	clone := job.Clone()
	if clone.BatchID != "" {
		if err := s.batches.AttachJob(ctx, clone.BatchID, clone.ID); err != nil {
			// Batch deleted since the original ran: retry as standalone
			clone.BatchID = ""
		}
	}

	if err := s.storage.JobStorage().SaveJob(ctx, clone); err != nil {
		if clone.BatchID != "" {
			s.rollbackAttach(ctx, clone.BatchID, clone.ID)
		}
		return nil, fmt.Errorf("failed to persist retry job: %w", err)
	}
	if err := s.enqueue(clone.ID); err != nil {
		s.rollbackSubmit(ctx, clone)
		return nil, err
	}

	s.logger.Info().
		Str("job_id", clone.ID).
		Str("retry_of", jobID).
		Msg("Job retry submitted")
	return clone, nil
}

func (s *Service) enqueue(jobID string) error {
	select {
	case s.queue <- jobID:
		return nil
	case <-s.ctx.Done():
		return fmt.Errorf("orchestrator is shutting down")
	default:
		return models.NewResourceLimitError("job queue is full")
	}
}

func (s *Service) worker(id int) {
	s.logger.Debug().Int("worker_id", id).Msg("Worker started")
	for {
		select {
		case jobID := <-s.queue:
			s.execute(jobID)
		case <-s.ctx.Done():
			s.logger.Debug().Int("worker_id", id).Msg("Worker stopping")
			return
		}
	}
}
