package registry

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/arbor"
	"github.com/ternarybob/tracto/internal/common"
	"github.com/ternarybob/tracto/internal/interfaces"
	"github.com/ternarybob/tracto/internal/models"
	badgerstore "github.com/ternarybob/tracto/internal/storage/badger"
)

func newTestStorage(t *testing.T) interfaces.StorageManager {
	t.Helper()
	manager, err := badgerstore.NewManager(arbor.NewLogger(), &common.BadgerConfig{
		Path: filepath.Join(t.TempDir(), "registry-test"),
	})
	require.NoError(t, err)
	t.Cleanup(func() { manager.Close() })
	return manager
}

func newTestService(t *testing.T, policy string) (*Service, interfaces.StorageManager) {
	storage := newTestStorage(t)
	return NewService(storage, policy, arbor.NewLogger()), storage
}

func saveJob(t *testing.T, storage interfaces.StorageManager, job *models.Job) {
	t.Helper()
	require.NoError(t, storage.JobStorage().SaveJob(context.Background(), job))
}

func attachMember(t *testing.T, svc *Service, storage interfaces.StorageManager, batchID string, status models.JobStatus) *models.Job {
	t.Helper()
	job := models.NewJob(models.KindMetadata, models.InputDescriptor{Path: "/tmp/x"}, true)
	job.BatchID = batchID
	switch status {
	case models.JobStatusSuccess:
		job.MarkRunning()
		job.MarkSuccess(map[string]interface{}{"ok": true})
	case models.JobStatusError:
		job.MarkRunning()
		job.MarkError(&models.ErrorInfo{Kind: models.ErrorKindProcessor, Message: "boom"})
	case models.JobStatusRunning:
		job.MarkRunning()
	}
	saveJob(t, storage, job)
	require.NoError(t, svc.AttachJob(context.Background(), batchID, job.ID))
	return job
}

func TestService_CreateAndAttach(t *testing.T) {
	svc, storage := newTestService(t, common.BatchDeleteDetach)
	ctx := context.Background()

	batch, err := svc.CreateBatch(ctx, "https://example.com/hook")
	require.NoError(t, err)
	require.NotEmpty(t, batch.ID)

	job := attachMember(t, svc, storage, batch.ID, models.JobStatusPending)

	loaded, err := svc.GetBatch(ctx, batch.ID)
	require.NoError(t, err)
	assert.True(t, loaded.Contains(job.ID))
	assert.Equal(t, "https://example.com/hook", loaded.CallbackURL)

	// Re-attaching the same job is a no-op
	require.NoError(t, svc.AttachJob(ctx, batch.ID, job.ID))
	loaded, err = svc.GetBatch(ctx, batch.ID)
	require.NoError(t, err)
	assert.Len(t, loaded.JobIDs, 1)
}

func TestService_AttachToMissingBatch(t *testing.T) {
	svc, _ := newTestService(t, common.BatchDeleteDetach)
	err := svc.AttachJob(context.Background(), "batch_missing", "job_x")
	assert.ErrorIs(t, err, models.ErrBatchNotFound)
}

func TestService_EnsureAttachedCreatesBatch(t *testing.T) {
	svc, _ := newTestService(t, common.BatchDeleteDetach)
	ctx := context.Background()

	require.NoError(t, svc.EnsureAttached(ctx, "batch_fresh", "job_1"))

	loaded, err := svc.GetBatch(ctx, "batch_fresh")
	require.NoError(t, err)
	assert.True(t, loaded.Contains("job_1"))

	// Second attach lands in the existing batch
	require.NoError(t, svc.EnsureAttached(ctx, "batch_fresh", "job_2"))
	require.NoError(t, svc.EnsureAttached(ctx, "batch_fresh", "job_2"))
	loaded, err = svc.GetBatch(ctx, "batch_fresh")
	require.NoError(t, err)
	assert.Equal(t, []string{"job_1", "job_2"}, loaded.JobIDs)
}

func TestService_DetachJobRemovesMembership(t *testing.T) {
	svc, _ := newTestService(t, common.BatchDeleteDetach)
	ctx := context.Background()

	require.NoError(t, svc.EnsureAttached(ctx, "batch_d", "job_1"))
	require.NoError(t, svc.EnsureAttached(ctx, "batch_d", "job_2"))

	require.NoError(t, svc.DetachJob(ctx, "batch_d", "job_1"))
	loaded, err := svc.GetBatch(ctx, "batch_d")
	require.NoError(t, err)
	assert.Equal(t, []string{"job_2"}, loaded.JobIDs)

	// Detaching an unknown member is a no-op
	require.NoError(t, svc.DetachJob(ctx, "batch_d", "job_missing"))

	err = svc.DetachJob(ctx, "batch_missing", "job_1")
	assert.ErrorIs(t, err, models.ErrBatchNotFound)
}

func TestService_StatusRecomputedPerRead(t *testing.T) {
	svc, storage := newTestService(t, common.BatchDeleteDetach)
	ctx := context.Background()

	batch, err := svc.CreateBatch(ctx, "")
	require.NoError(t, err)

	attachMember(t, svc, storage, batch.ID, models.JobStatusSuccess)
	attachMember(t, svc, storage, batch.ID, models.JobStatusError)
	pending := attachMember(t, svc, storage, batch.ID, models.JobStatusPending)

	report, err := svc.Status(ctx, batch.ID)
	require.NoError(t, err)
	assert.Equal(t, models.BatchStatusPending, report.Status)
	assert.Len(t, report.Jobs, 3)

	// The last member reaching a terminal state flips the aggregate
	pending.MarkRunning()
	pending.MarkSuccess(map[string]interface{}{"ok": true})
	saveJob(t, storage, pending)

	report, err = svc.Status(ctx, batch.ID)
	require.NoError(t, err)
	assert.Equal(t, models.BatchStatusPartial, report.Status)
}

func TestService_StatusAggregatesResources(t *testing.T) {
	svc, storage := newTestService(t, common.BatchDeleteDetach)
	ctx := context.Background()

	batch, err := svc.CreateBatch(ctx, "")
	require.NoError(t, err)

	first := attachMember(t, svc, storage, batch.ID, models.JobStatusSuccess)
	first.Resources = models.ResourceUsage{ComputeUnits: 2, StorageUnits: 1, TotalUnits: 3}
	saveJob(t, storage, first)

	second := attachMember(t, svc, storage, batch.ID, models.JobStatusSuccess)
	second.Resources = models.ResourceUsage{ComputeUnits: 4, StorageUnits: 0.5, TotalUnits: 4.5}
	saveJob(t, storage, second)

	report, err := svc.Status(ctx, batch.ID)
	require.NoError(t, err)
	assert.Equal(t, models.BatchStatusSuccess, report.Status)
	assert.InDelta(t, 6.0, report.Resources.ComputeUnits, 1e-9)
	assert.InDelta(t, 1.5, report.Resources.StorageUnits, 1e-9)
	assert.InDelta(t, 7.5, report.Resources.TotalUnits, 1e-9)
}

func TestService_EmptyBatchStatus(t *testing.T) {
	svc, _ := newTestService(t, common.BatchDeleteDetach)
	ctx := context.Background()

	batch, err := svc.CreateBatch(ctx, "")
	require.NoError(t, err)

	report, err := svc.Status(ctx, batch.ID)
	require.NoError(t, err)
	assert.Equal(t, models.BatchStatusEmpty, report.Status)
}

func TestService_MarkNotifiedOnlyOnce(t *testing.T) {
	svc, _ := newTestService(t, common.BatchDeleteDetach)
	ctx := context.Background()

	batch, err := svc.CreateBatch(ctx, "https://example.com/hook")
	require.NoError(t, err)

	first, err := svc.MarkNotified(ctx, batch.ID)
	require.NoError(t, err)
	assert.True(t, first)

	second, err := svc.MarkNotified(ctx, batch.ID)
	require.NoError(t, err)
	assert.False(t, second)
}

func TestService_DeleteDetachKeepsJobs(t *testing.T) {
	svc, storage := newTestService(t, common.BatchDeleteDetach)
	ctx := context.Background()

	batch, err := svc.CreateBatch(ctx, "")
	require.NoError(t, err)
	job := attachMember(t, svc, storage, batch.ID, models.JobStatusSuccess)

	require.NoError(t, svc.Delete(ctx, batch.ID))

	_, err = svc.GetBatch(ctx, batch.ID)
	assert.ErrorIs(t, err, models.ErrBatchNotFound)

	survivor, err := storage.JobStorage().GetJob(ctx, job.ID)
	require.NoError(t, err)
	assert.Empty(t, survivor.BatchID)
}

func TestService_DeleteCascadeRemovesJobs(t *testing.T) {
	svc, storage := newTestService(t, common.BatchDeleteCascade)
	ctx := context.Background()

	batch, err := svc.CreateBatch(ctx, "")
	require.NoError(t, err)
	job := attachMember(t, svc, storage, batch.ID, models.JobStatusSuccess)

	require.NoError(t, svc.Delete(ctx, batch.ID))

	_, err = storage.JobStorage().GetJob(ctx, job.ID)
	assert.ErrorIs(t, err, models.ErrJobNotFound)
}
