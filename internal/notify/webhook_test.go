package notify

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/arbor"
	"github.com/ternarybob/tracto/internal/common"
	"github.com/ternarybob/tracto/internal/models"
)

type memoryWebhookStorage struct {
	mu         sync.Mutex
	deliveries []*models.WebhookDelivery
}

func (s *memoryWebhookStorage) SaveDelivery(_ context.Context, delivery *models.WebhookDelivery) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.deliveries = append(s.deliveries, delivery)
	return nil
}

func (s *memoryWebhookStorage) GetDeliveriesByBatch(_ context.Context, batchID string) ([]*models.WebhookDelivery, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*models.WebhookDelivery
	for _, d := range s.deliveries {
		if d.BatchID == batchID {
			out = append(out, d)
		}
	}
	return out, nil
}

func (s *memoryWebhookStorage) last(t *testing.T) *models.WebhookDelivery {
	t.Helper()
	s.mu.Lock()
	defer s.mu.Unlock()
	require.NotEmpty(t, s.deliveries)
	return s.deliveries[len(s.deliveries)-1]
}

func newTestService(storage *memoryWebhookStorage, maxAttempts int) *Service {
	return NewService(&common.WebhookConfig{
		MaxAttempts:    maxAttempts,
		InitialBackoff: "1ms",
		Timeout:        "500ms",
		RatePerSecond:  1000,
	}, storage, arbor.NewLogger())
}

func terminalPayload(batchID string) *models.WebhookPayload {
	return &models.WebhookPayload{
		BatchID: batchID,
		Status:  string(models.BatchStatusSuccess),
		Jobs: []models.WebhookJobOutcome{
			{JobID: "job_1", Status: models.JobStatusSuccess},
		},
		Resources: models.ResourceUsage{TotalUnits: 2},
	}
}

func TestNotify_DeliversPayload(t *testing.T) {
	var received atomic.Value
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		body, _ := io.ReadAll(r.Body)
		received.Store(body)
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	storage := &memoryWebhookStorage{}
	svc := newTestService(storage, 3)

	svc.Notify(context.Background(), server.URL, terminalPayload("batch_1"))

	var payload models.WebhookPayload
	require.NotNil(t, received.Load())
	require.NoError(t, json.Unmarshal(received.Load().([]byte), &payload))
	assert.Equal(t, "batch_1", payload.BatchID)
	assert.Equal(t, "success", payload.Status)
	require.Len(t, payload.Jobs, 1)
	assert.Equal(t, "job_1", payload.Jobs[0].JobID)

	delivery := storage.last(t)
	assert.Equal(t, models.DeliveryStatusDelivered, delivery.Status)
	assert.Equal(t, 1, delivery.Attempts)
	assert.NotNil(t, delivery.CompletedAt)
}

func TestNotify_RetriesUntilSuccess(t *testing.T) {
	var hits int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&hits, 1) < 3 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	storage := &memoryWebhookStorage{}
	svc := newTestService(storage, 5)

	svc.Notify(context.Background(), server.URL, terminalPayload("batch_retry"))

	assert.Equal(t, int32(3), atomic.LoadInt32(&hits))
	delivery := storage.last(t)
	assert.Equal(t, models.DeliveryStatusDelivered, delivery.Status)
	assert.Equal(t, 3, delivery.Attempts)
}

func TestNotify_ExhaustsRetriesAndRecordsFailure(t *testing.T) {
	var hits int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&hits, 1)
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	storage := &memoryWebhookStorage{}
	svc := newTestService(storage, 3)

	svc.Notify(context.Background(), server.URL, terminalPayload("batch_fail"))

	assert.Equal(t, int32(3), atomic.LoadInt32(&hits))
	delivery := storage.last(t)
	assert.Equal(t, models.DeliveryStatusFailed, delivery.Status)
	assert.Equal(t, 3, delivery.Attempts)
	assert.Contains(t, delivery.LastError, "status 500")
}

func TestNotify_UnreachableHostRecordsFailure(t *testing.T) {
	storage := &memoryWebhookStorage{}
	svc := newTestService(storage, 2)

	// Reserved TEST-NET address, connection refused or timed out
	svc.Notify(context.Background(), "http://192.0.2.1:9/hook", terminalPayload("batch_down"))

	delivery := storage.last(t)
	assert.Equal(t, models.DeliveryStatusFailed, delivery.Status)
	assert.NotEmpty(t, delivery.LastError)
}

func TestNotify_ContextCancellationStopsRetrying(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	storage := &memoryWebhookStorage{}
	svc := NewService(&common.WebhookConfig{
		MaxAttempts:    10,
		InitialBackoff: "5s",
		Timeout:        "2s",
		RatePerSecond:  1000,
	}, storage, arbor.NewLogger())

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(50 * time.Millisecond)
		cancel()
	}()

	start := time.Now()
	svc.Notify(ctx, server.URL, terminalPayload("batch_cancel"))
	assert.Less(t, time.Since(start), 2*time.Second)

	delivery := storage.last(t)
	assert.Equal(t, models.DeliveryStatusFailed, delivery.Status)
}
