package interfaces

import (
	"context"
	"time"

	"github.com/ternarybob/tracto/internal/models"
)

// JobListOptions filters and paginates job listings
type JobListOptions struct {
	Status   string
	BatchID  string
	Kind     string
	Limit    int
	Offset   int
	OrderBy  string
	OrderDir string
}

// JobStorage persists job records
type JobStorage interface {
	SaveJob(ctx context.Context, job *models.Job) error
	GetJob(ctx context.Context, jobID string) (*models.Job, error)
	ListJobs(ctx context.Context, opts *JobListOptions) ([]*models.Job, error)
	CountJobs(ctx context.Context, opts *JobListOptions) (int, error)
	GetJobsByBatch(ctx context.Context, batchID string) ([]*models.Job, error)
	GetStaleRunningJobs(ctx context.Context, threshold time.Duration) ([]*models.Job, error)
	DeleteJob(ctx context.Context, jobID string) error
}

// BatchStorage persists batch records
type BatchStorage interface {
	SaveBatch(ctx context.Context, batch *models.Batch) error
	GetBatch(ctx context.Context, batchID string) (*models.Batch, error)
	ListBatches(ctx context.Context, limit, offset int) ([]*models.Batch, error)
	DeleteBatch(ctx context.Context, batchID string) error
}

// CacheStorage persists memoized processor results
type CacheStorage interface {
	SaveEntry(ctx context.Context, entry *models.CacheEntry) error
	GetEntry(ctx context.Context, fingerprint string) (*models.CacheEntry, bool, error)
	DeleteEntry(ctx context.Context, fingerprint string) error
	SweepExpired(ctx context.Context, ttl time.Duration) (int, error)
}

// WebhookStorage persists delivery markers for the dashboard layer
type WebhookStorage interface {
	SaveDelivery(ctx context.Context, delivery *models.WebhookDelivery) error
	GetDeliveriesByBatch(ctx context.Context, batchID string) ([]*models.WebhookDelivery, error)
}

// StorageManager provides access to all storage interfaces
type StorageManager interface {
	JobStorage() JobStorage
	BatchStorage() BatchStorage
	CacheStorage() CacheStorage
	WebhookStorage() WebhookStorage
	Close() error
}
