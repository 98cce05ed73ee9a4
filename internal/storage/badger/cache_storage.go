package badger

import (
	"context"
	"fmt"
	"time"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/tracto/internal/interfaces"
	"github.com/ternarybob/tracto/internal/models"
	"github.com/timshannon/badgerhold/v4"
)

// CacheStorage implements the CacheStorage interface for Badger
type CacheStorage struct {
	db     *BadgerDB
	logger arbor.ILogger
}

// NewCacheStorage creates a new CacheStorage instance
func NewCacheStorage(db *BadgerDB, logger arbor.ILogger) interfaces.CacheStorage {
	return &CacheStorage{
		db:     db,
		logger: logger,
	}
}

func (s *CacheStorage) SaveEntry(ctx context.Context, entry *models.CacheEntry) error {
	if entry == nil {
		return fmt.Errorf("cache entry is nil")
	}
	if entry.Fingerprint == "" {
		return fmt.Errorf("cache entry fingerprint is required")
	}

	if err := s.db.Store().Upsert(entry.Fingerprint, entry); err != nil {
		return fmt.Errorf("failed to save cache entry: %w", err)
	}
	return nil
}

func (s *CacheStorage) GetEntry(ctx context.Context, fingerprint string) (*models.CacheEntry, bool, error) {
	var entry models.CacheEntry
	if err := s.db.Store().Get(fingerprint, &entry); err != nil {
		if err == badgerhold.ErrNotFound {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("failed to get cache entry: %w", err)
	}
	return &entry, true, nil
}

func (s *CacheStorage) DeleteEntry(ctx context.Context, fingerprint string) error {
	if err := s.db.Store().Delete(fingerprint, &models.CacheEntry{}); err != nil {
		if err == badgerhold.ErrNotFound {
			return nil
		}
		return fmt.Errorf("failed to delete cache entry: %w", err)
	}
	return nil
}

// SweepExpired removes entries older than the TTL and returns the count removed
func (s *CacheStorage) SweepExpired(ctx context.Context, ttl time.Duration) (int, error) {
	if ttl <= 0 {
		return 0, nil
	}
	cutoff := time.Now().UTC().Add(-ttl)

	var expired []models.CacheEntry
	if err := s.db.Store().Find(&expired, badgerhold.Where("StoredAt").Lt(cutoff)); err != nil {
		return 0, fmt.Errorf("failed to find expired cache entries: %w", err)
	}

	removed := 0
	for i := range expired {
		if err := s.DeleteEntry(ctx, expired[i].Fingerprint); err != nil {
			s.logger.Warn().Err(err).Str("fingerprint", expired[i].Fingerprint).Msg("Failed to delete expired cache entry")
			continue
		}
		removed++
	}
	return removed, nil
}
