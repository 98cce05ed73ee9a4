package badger

import (
	"context"
	"fmt"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/tracto/internal/interfaces"
	"github.com/ternarybob/tracto/internal/models"
	"github.com/timshannon/badgerhold/v4"
)

// WebhookStorage implements the WebhookStorage interface for Badger
type WebhookStorage struct {
	db     *BadgerDB
	logger arbor.ILogger
}

// NewWebhookStorage creates a new WebhookStorage instance
func NewWebhookStorage(db *BadgerDB, logger arbor.ILogger) interfaces.WebhookStorage {
	return &WebhookStorage{
		db:     db,
		logger: logger,
	}
}

func (s *WebhookStorage) SaveDelivery(ctx context.Context, delivery *models.WebhookDelivery) error {
	if delivery == nil {
		return fmt.Errorf("delivery is nil")
	}
	if delivery.ID == "" {
		return fmt.Errorf("delivery ID is required")
	}

	if err := s.db.Store().Upsert(delivery.ID, delivery); err != nil {
		return fmt.Errorf("failed to save webhook delivery: %w", err)
	}
	return nil
}

func (s *WebhookStorage) GetDeliveriesByBatch(ctx context.Context, batchID string) ([]*models.WebhookDelivery, error) {
	var deliveries []models.WebhookDelivery
	if err := s.db.Store().Find(&deliveries, badgerhold.Where("BatchID").Eq(batchID).SortBy("CreatedAt")); err != nil {
		return nil, fmt.Errorf("failed to get webhook deliveries: %w", err)
	}

	result := make([]*models.WebhookDelivery, len(deliveries))
	for i := range deliveries {
		result[i] = &deliveries[i]
	}
	return result, nil
}
