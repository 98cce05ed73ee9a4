// -----------------------------------------------------------------------
// Batch Registry Service - Groups jobs and derives aggregate batch status
// -----------------------------------------------------------------------

package registry

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/tracto/internal/common"
	"github.com/ternarybob/tracto/internal/interfaces"
	"github.com/ternarybob/tracto/internal/models"
)

// Service manages batch membership and derives aggregate status from member
// jobs. Aggregate status is recomputed on every read and never stored;
// member jobs remain the single source of truth.
type Service struct {
	storage      interfaces.StorageManager
	deletePolicy string
	logger       arbor.ILogger

	// Per-batch mutexes serialize membership writes and the notified-once
	// check. Striping keeps the map bounded.
	mu    sync.Mutex
	locks map[uint32]*sync.Mutex
}

const lockStripes = 64

// NewService creates a batch registry over the given storage
func NewService(storage interfaces.StorageManager, deletePolicy string, logger arbor.ILogger) *Service {
	if deletePolicy == "" {
		deletePolicy = common.BatchDeleteDetach
	}
	return &Service{
		storage:      storage,
		deletePolicy: deletePolicy,
		logger:       logger,
		locks:        make(map[uint32]*sync.Mutex),
	}
}

// StatusReport is the derived view of a batch at read time
type StatusReport struct {
	BatchID     string               `json:"batch_id"`
	Status      models.BatchStatus   `json:"status"`
	Jobs        []JobSummary         `json:"jobs"`
	Resources   models.ResourceUsage `json:"resources_used"`
	CallbackURL string               `json:"callback_url,omitempty"`
	CreatedAt   time.Time            `json:"created_at"`
	NotifiedAt  *time.Time           `json:"notified_at,omitempty"`
}

// JobSummary is the per-member slice of a batch status report
type JobSummary struct {
	JobID     string               `json:"job_id"`
	Kind      models.ProcessorKind `json:"kind"`
	Status    models.JobStatus     `json:"status"`
	FromCache bool                 `json:"from_cache,omitempty"`
	Error     *models.ErrorInfo    `json:"error,omitempty"`
}

// CreateBatch creates a new batch with an optional callback URL
func (s *Service) CreateBatch(ctx context.Context, callbackURL string) (*models.Batch, error) {
	batch := models.NewBatch(callbackURL)
	if err := s.storage.BatchStorage().SaveBatch(ctx, batch); err != nil {
		return nil, fmt.Errorf("failed to create batch: %w", err)
	}

	s.logger.Info().
		Str("batch_id", batch.ID).
		Bool("has_callback", callbackURL != "").
		Msg("Batch created")
	return batch, nil
}

// AttachJob adds a job to batch membership. Attachment happens during
// submission, before the job is dispatched.
func (s *Service) AttachJob(ctx context.Context, batchID, jobID string) error {
	lock := s.batchLock(batchID)
	lock.Lock()
	defer lock.Unlock()

	batch, err := s.storage.BatchStorage().GetBatch(ctx, batchID)
	if err != nil {
		return err
	}
	if batch.Contains(jobID) {
		return nil
	}

	batch.JobIDs = append(batch.JobIDs, jobID)
	if err := s.storage.BatchStorage().SaveBatch(ctx, batch); err != nil {
		return fmt.Errorf("failed to attach job %s to batch %s: %w", jobID, batchID, err)
	}
	return nil
}

// EnsureAttached adds a job to batch membership, creating the batch under
// the caller-supplied ID first when it is not known yet. Used by job
// submission, where a fresh batch ID implies batch creation.
func (s *Service) EnsureAttached(ctx context.Context, batchID, jobID string) error {
	lock := s.batchLock(batchID)
	lock.Lock()
	defer lock.Unlock()

	batch, err := s.storage.BatchStorage().GetBatch(ctx, batchID)
	if errors.Is(err, models.ErrBatchNotFound) {
		batch = &models.Batch{
			ID:        batchID,
			JobIDs:    []string{jobID},
			CreatedAt: time.Now().UTC(),
		}
		if saveErr := s.storage.BatchStorage().SaveBatch(ctx, batch); saveErr != nil {
			return fmt.Errorf("failed to create batch %s: %w", batchID, saveErr)
		}
		s.logger.Info().
			Str("batch_id", batchID).
			Str("job_id", jobID).
			Msg("Batch created on first attach")
		return nil
	}
	if err != nil {
		return err
	}
	if batch.Contains(jobID) {
		return nil
	}

	batch.JobIDs = append(batch.JobIDs, jobID)
	if err := s.storage.BatchStorage().SaveBatch(ctx, batch); err != nil {
		return fmt.Errorf("failed to attach job %s to batch %s: %w", jobID, batchID, err)
	}
	return nil
}

// DetachJob removes a job from batch membership. Used to undo an attach
// when submission fails after the job was registered.
func (s *Service) DetachJob(ctx context.Context, batchID, jobID string) error {
	lock := s.batchLock(batchID)
	lock.Lock()
	defer lock.Unlock()

	batch, err := s.storage.BatchStorage().GetBatch(ctx, batchID)
	if err != nil {
		return err
	}
	if !batch.Contains(jobID) {
		return nil
	}

	members := make([]string, 0, len(batch.JobIDs))
	for _, id := range batch.JobIDs {
		if id != jobID {
			members = append(members, id)
		}
	}
	batch.JobIDs = members
	if err := s.storage.BatchStorage().SaveBatch(ctx, batch); err != nil {
		return fmt.Errorf("failed to detach job %s from batch %s: %w", jobID, batchID, err)
	}
	return nil
}

// GetBatch returns the raw batch record
func (s *Service) GetBatch(ctx context.Context, batchID string) (*models.Batch, error) {
	return s.storage.BatchStorage().GetBatch(ctx, batchID)
}

// Status derives the current aggregate view of a batch from its member
// jobs. Nothing is cached: two successive reads may differ as members
// reach terminal states.
func (s *Service) Status(ctx context.Context, batchID string) (*StatusReport, error) {
	batch, err := s.storage.BatchStorage().GetBatch(ctx, batchID)
	if err != nil {
		return nil, err
	}

	jobs, err := s.memberJobs(ctx, batch)
	if err != nil {
		return nil, err
	}

	report := &StatusReport{
		BatchID:     batch.ID,
		Jobs:        make([]JobSummary, 0, len(jobs)),
		CallbackURL: batch.CallbackURL,
		CreatedAt:   batch.CreatedAt,
		NotifiedAt:  batch.NotifiedAt,
	}

	statuses := make([]models.JobStatus, 0, len(jobs))
	for _, job := range jobs {
		statuses = append(statuses, job.Status)
		report.Resources.Add(job.Resources)
		report.Jobs = append(report.Jobs, JobSummary{
			JobID:     job.ID,
			Kind:      job.Kind,
			Status:    job.Status,
			FromCache: job.FromCache,
			Error:     job.Error,
		})
	}
	report.Status = models.ComputeBatchStatus(statuses)
	return report, nil
}

// MarkNotified stamps NotifiedAt exactly once. Returns true when this call
// won the race and the caller should deliver the webhook.
func (s *Service) MarkNotified(ctx context.Context, batchID string) (bool, error) {
	lock := s.batchLock(batchID)
	lock.Lock()
	defer lock.Unlock()

	batch, err := s.storage.BatchStorage().GetBatch(ctx, batchID)
	if err != nil {
		return false, err
	}
	if batch.NotifiedAt != nil {
		return false, nil
	}

	now := time.Now().UTC()
	batch.NotifiedAt = &now
	if err := s.storage.BatchStorage().SaveBatch(ctx, batch); err != nil {
		return false, fmt.Errorf("failed to mark batch %s notified: %w", batchID, err)
	}
	return true, nil
}

// Delete removes a batch. Under the detach policy member jobs survive with
// their BatchID cleared; under cascade they are deleted with the batch.
func (s *Service) Delete(ctx context.Context, batchID string) error {
	lock := s.batchLock(batchID)
	lock.Lock()
	defer lock.Unlock()

	batch, err := s.storage.BatchStorage().GetBatch(ctx, batchID)
	if err != nil {
		return err
	}

	jobs, err := s.memberJobs(ctx, batch)
	if err != nil {
		return err
	}

	for _, job := range jobs {
		switch s.deletePolicy {
		case common.BatchDeleteCascade:
			if err := s.storage.JobStorage().DeleteJob(ctx, job.ID); err != nil {
				return fmt.Errorf("failed to cascade delete job %s: %w", job.ID, err)
			}
		default:
			job.BatchID = ""
			if err := s.storage.JobStorage().SaveJob(ctx, job); err != nil {
				return fmt.Errorf("failed to detach job %s: %w", job.ID, err)
			}
		}
	}

	if err := s.storage.BatchStorage().DeleteBatch(ctx, batchID); err != nil {
		return err
	}

	s.logger.Info().
		Str("batch_id", batchID).
		Str("policy", s.deletePolicy).
		Int("jobs", len(jobs)).
		Msg("Batch deleted")
	return nil
}

// memberJobs loads the batch members in membership order. Jobs deleted out
// of band are skipped rather than failing the whole read.
func (s *Service) memberJobs(ctx context.Context, batch *models.Batch) ([]*models.Job, error) {
	jobs := make([]*models.Job, 0, len(batch.JobIDs))
	for _, jobID := range batch.JobIDs {
		job, err := s.storage.JobStorage().GetJob(ctx, jobID)
		if err != nil {
			if errors.Is(err, models.ErrJobNotFound) {
				continue
			}
			return nil, err
		}
		jobs = append(jobs, job)
	}
	return jobs, nil
}

func (s *Service) batchLock(batchID string) *sync.Mutex {
	stripe := fnv32(batchID) % lockStripes

	s.mu.Lock()
	defer s.mu.Unlock()
	lock, ok := s.locks[stripe]
	if !ok {
		lock = &sync.Mutex{}
		s.locks[stripe] = lock
	}
	return lock
}

func fnv32(s string) uint32 {
	const prime = 16777619
	hash := uint32(2166136261)
	for i := 0; i < len(s); i++ {
		hash ^= uint32(s[i])
		hash *= prime
	}
	return hash
}
