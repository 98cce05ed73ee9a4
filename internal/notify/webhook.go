// -----------------------------------------------------------------------
// Webhook Notifier - Delivers terminal batch events to callback URLs
// -----------------------------------------------------------------------

package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/tracto/internal/common"
	"github.com/ternarybob/tracto/internal/interfaces"
	"github.com/ternarybob/tracto/internal/models"
	"golang.org/x/time/rate"
)

// Service delivers webhook payloads with bounded retries. Delivery is
// strictly one way: a failed delivery leaves a marker in webhook storage
// but never touches the job or batch state it reports.
type Service struct {
	client         *http.Client
	storage        interfaces.WebhookStorage
	limiter        *rate.Limiter
	maxAttempts    int
	initialBackoff time.Duration
	logger         arbor.ILogger
}

var _ interfaces.WebhookNotifier = (*Service)(nil)

// NewService creates the webhook notifier from config
func NewService(cfg *common.WebhookConfig, storage interfaces.WebhookStorage, logger arbor.ILogger) *Service {
	maxAttempts := cfg.MaxAttempts
	if maxAttempts <= 0 {
		maxAttempts = 3
	}

	backoff := time.Second
	if cfg.InitialBackoff != "" {
		if parsed, err := time.ParseDuration(cfg.InitialBackoff); err == nil && parsed > 0 {
			backoff = parsed
		}
	}

	timeout := 10 * time.Second
	if cfg.Timeout != "" {
		if parsed, err := time.ParseDuration(cfg.Timeout); err == nil && parsed > 0 {
			timeout = parsed
		}
	}

	ratePerSecond := cfg.RatePerSecond
	if ratePerSecond <= 0 {
		ratePerSecond = 10
	}

	return &Service{
		client:         &http.Client{Timeout: timeout},
		storage:        storage,
		limiter:        rate.NewLimiter(rate.Limit(ratePerSecond), 1),
		maxAttempts:    maxAttempts,
		initialBackoff: backoff,
		logger:         logger,
	}
}

// Notify delivers the payload to the callback URL, retrying with doubling
// backoff up to the attempt ceiling. The delivery record is persisted with
// the final outcome either way.
func (s *Service) Notify(ctx context.Context, url string, payload *models.WebhookPayload) {
	delivery := &models.WebhookDelivery{
		ID:        common.NewDeliveryID(),
		BatchID:   payload.BatchID,
		URL:       url,
		Status:    models.DeliveryStatusPending,
		CreatedAt: time.Now().UTC(),
	}

	body, err := json.Marshal(payload)
	if err != nil {
		s.recordOutcome(ctx, delivery, models.DeliveryStatusFailed, fmt.Sprintf("marshal failed: %v", err))
		return
	}

	backoff := s.initialBackoff
	var lastErr string

	for attempt := 1; attempt <= s.maxAttempts; attempt++ {
		delivery.Attempts = attempt

		if err := s.limiter.Wait(ctx); err != nil {
			s.recordOutcome(ctx, delivery, models.DeliveryStatusFailed, fmt.Sprintf("delivery aborted: %v", err))
			return
		}

		if err := s.post(ctx, url, body); err != nil {
			lastErr = err.Error()
			s.logger.Warn().
				Str("url", url).
				Str("batch_id", payload.BatchID).
				Int("attempt", attempt).
				Err(err).
				Msg("Webhook delivery attempt failed")

			if attempt < s.maxAttempts {
				select {
				case <-time.After(backoff):
					backoff *= 2
				case <-ctx.Done():
					s.recordOutcome(ctx, delivery, models.DeliveryStatusFailed, fmt.Sprintf("delivery aborted: %v", ctx.Err()))
					return
				}
			}
			continue
		}

		s.logger.Info().
			Str("url", url).
			Str("batch_id", payload.BatchID).
			Int("attempt", attempt).
			Msg("Webhook delivered")
		s.recordOutcome(ctx, delivery, models.DeliveryStatusDelivered, "")
		return
	}

	s.logger.Error().
		Str("url", url).
		Str("batch_id", payload.BatchID).
		Int("attempts", s.maxAttempts).
		Msg("Webhook delivery exhausted retries")
	s.recordOutcome(ctx, delivery, models.DeliveryStatusFailed, lastErr)
}

func (s *Service) post(ctx context.Context, url string, body []byte) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("callback returned status %d", resp.StatusCode)
	}
	return nil
}

func (s *Service) recordOutcome(ctx context.Context, delivery *models.WebhookDelivery, status models.DeliveryStatus, lastErr string) {
	delivery.Status = status
	delivery.LastError = lastErr
	now := time.Now().UTC()
	delivery.CompletedAt = &now

	if err := s.storage.SaveDelivery(ctx, delivery); err != nil {
		s.logger.Error().
			Err(err).
			Str("delivery_id", delivery.ID).
			Msg("Failed to persist webhook delivery record")
	}
}
