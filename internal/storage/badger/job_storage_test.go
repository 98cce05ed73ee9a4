package badger

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/arbor"
	"github.com/ternarybob/tracto/internal/common"
	"github.com/ternarybob/tracto/internal/interfaces"
	"github.com/ternarybob/tracto/internal/models"
)

func newTestDB(t *testing.T) *BadgerDB {
	t.Helper()

	logger := arbor.NewLogger()
	db, err := NewBadgerDB(logger, &common.BadgerConfig{Path: t.TempDir()})
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func TestJobStoragePersistence(t *testing.T) {
	db := newTestDB(t)
	logger := arbor.NewLogger()
	storage := NewJobStorage(db, logger)
	ctx := context.Background()

	job := models.NewJob(models.KindPDF, models.InputDescriptor{Path: "/tmp/report.pdf"}, true)
	job.BatchID = "batch_persist"
	require.NoError(t, storage.SaveJob(ctx, job))

	loaded, err := storage.GetJob(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, job.ID, loaded.ID)
	assert.Equal(t, models.JobStatusPending, loaded.Status)
	assert.Equal(t, models.KindPDF, loaded.Kind)
	assert.Equal(t, "/tmp/report.pdf", loaded.Input.Path)

	// Terminal transition round-trips with steps and usage
	loaded.MarkRunning()
	loaded.Steps = append(loaded.Steps, models.ProcessingStep{
		Name:      "validate",
		Status:    models.StepStatusSuccess,
		StartedAt: time.Now().UTC(),
	})
	loaded.Resources = models.ResourceUsage{ComputeUnits: 2, StorageUnits: 1, TotalUnits: 3}
	loaded.MarkSuccess(map[string]interface{}{"pages": 4})
	require.NoError(t, storage.SaveJob(ctx, loaded))

	final, err := storage.GetJob(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, models.JobStatusSuccess, final.Status)
	assert.Len(t, final.Steps, 1)
	assert.NotNil(t, final.CompletedAt)
	assert.Equal(t, 3.0, final.Resources.TotalUnits)
}

func TestJobStorageNotFound(t *testing.T) {
	db := newTestDB(t)
	storage := NewJobStorage(db, arbor.NewLogger())

	_, err := storage.GetJob(context.Background(), "job_missing")
	assert.ErrorIs(t, err, models.ErrJobNotFound)
}

func TestJobStorageListAndCount(t *testing.T) {
	db := newTestDB(t)
	storage := NewJobStorage(db, arbor.NewLogger())
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		job := models.NewJob(models.KindMetadata, models.InputDescriptor{Path: "/tmp/f"}, false)
		job.BatchID = "batch_list"
		require.NoError(t, storage.SaveJob(ctx, job))
	}
	other := models.NewJob(models.KindYoutube, models.InputDescriptor{URL: "https://youtu.be/x"}, false)
	other.MarkRunning()
	require.NoError(t, storage.SaveJob(ctx, other))

	members, err := storage.GetJobsByBatch(ctx, "batch_list")
	require.NoError(t, err)
	assert.Len(t, members, 3)

	count, err := storage.CountJobs(ctx, &interfaces.JobListOptions{BatchID: "batch_list"})
	require.NoError(t, err)
	assert.Equal(t, 3, count)

	running, err := storage.ListJobs(ctx, &interfaces.JobListOptions{Status: string(models.JobStatusRunning)})
	require.NoError(t, err)
	require.Len(t, running, 1)
	assert.Equal(t, other.ID, running[0].ID)
}

func TestJobStorageStaleRunningJobs(t *testing.T) {
	db := newTestDB(t)
	storage := NewJobStorage(db, arbor.NewLogger())
	ctx := context.Background()

	stale := models.NewJob(models.KindPDF, models.InputDescriptor{Path: "/tmp/a"}, false)
	stale.MarkRunning()
	old := time.Now().UTC().Add(-30 * time.Minute)
	stale.LastHeartbeat = &old
	require.NoError(t, storage.SaveJob(ctx, stale))

	fresh := models.NewJob(models.KindPDF, models.InputDescriptor{Path: "/tmp/b"}, false)
	fresh.MarkRunning()
	require.NoError(t, storage.SaveJob(ctx, fresh))

	found, err := storage.GetStaleRunningJobs(ctx, 10*time.Minute)
	require.NoError(t, err)
	require.Len(t, found, 1)
	assert.Equal(t, stale.ID, found[0].ID)
}

func TestBatchStorageRoundTrip(t *testing.T) {
	db := newTestDB(t)
	storage := NewBatchStorage(db, arbor.NewLogger())
	ctx := context.Background()

	batch := models.NewBatch("https://example.com/hook")
	batch.JobIDs = append(batch.JobIDs, "job_1", "job_2")
	require.NoError(t, storage.SaveBatch(ctx, batch))

	loaded, err := storage.GetBatch(ctx, batch.ID)
	require.NoError(t, err)
	assert.Equal(t, []string{"job_1", "job_2"}, loaded.JobIDs)
	assert.Equal(t, "https://example.com/hook", loaded.CallbackURL)

	_, err = storage.GetBatch(ctx, "batch_missing")
	assert.ErrorIs(t, err, models.ErrBatchNotFound)

	require.NoError(t, storage.DeleteBatch(ctx, batch.ID))
	_, err = storage.GetBatch(ctx, batch.ID)
	assert.ErrorIs(t, err, models.ErrBatchNotFound)
}

func TestCacheStorageSweep(t *testing.T) {
	db := newTestDB(t)
	storage := NewCacheStorage(db, arbor.NewLogger())
	ctx := context.Background()

	expired := &models.CacheEntry{
		Fingerprint: "fp_old",
		Kind:        models.KindPDF,
		Result:      map[string]interface{}{"pages": 1},
		StoredAt:    time.Now().UTC().Add(-48 * time.Hour),
	}
	current := &models.CacheEntry{
		Fingerprint: "fp_new",
		Kind:        models.KindPDF,
		Result:      map[string]interface{}{"pages": 2},
		StoredAt:    time.Now().UTC(),
	}
	require.NoError(t, storage.SaveEntry(ctx, expired))
	require.NoError(t, storage.SaveEntry(ctx, current))

	removed, err := storage.SweepExpired(ctx, 24*time.Hour)
	require.NoError(t, err)
	assert.Equal(t, 1, removed)

	_, found, err := storage.GetEntry(ctx, "fp_old")
	require.NoError(t, err)
	assert.False(t, found)

	entry, found, err := storage.GetEntry(ctx, "fp_new")
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, 2, int(entry.Result["pages"].(float64)))
}
