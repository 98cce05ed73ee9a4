// Package cache provides the idempotency gate in front of processor
// invocations. Results are memoized by content fingerprint; concurrent
// requests for the same fingerprint share one underlying computation.
package cache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/tracto/internal/interfaces"
	"github.com/ternarybob/tracto/internal/models"
	"golang.org/x/sync/singleflight"
)

// ComputeFunc produces a fresh result when the gate misses
type ComputeFunc func(ctx context.Context) (map[string]interface{}, models.ResourceUsage, error)

// Result is what the gate hands back to the orchestrator
type Result struct {
	Payload   map[string]interface{}
	Resources models.ResourceUsage
	FromCache bool
}

// Gate implements get-or-compute over the cache storage with single-flight
// execution per fingerprint. Failed computes are never cached, so a later
// request retries.
//
// Write policy: a request that bypasses the read (use_cache=false) still
// populates the cache after a successful compute when writeOnBypass is set.
// This is the single documented policy flag - there is no per-call-site
// variation.
type Gate struct {
	storage       interfaces.CacheStorage
	group         singleflight.Group
	ttl           time.Duration
	writeOnBypass bool
	logger        arbor.ILogger
}

// NewGate creates a cache gate over the given storage
func NewGate(storage interfaces.CacheStorage, ttl time.Duration, writeOnBypass bool, logger arbor.ILogger) *Gate {
	return &Gate{
		storage:       storage,
		ttl:           ttl,
		writeOnBypass: writeOnBypass,
		logger:        logger,
	}
}

// GetOrCompute returns the cached result for fingerprint when present,
// otherwise invokes compute exactly once across concurrent callers and
// caches its successful result. useCache=false skips the lookup.
func (g *Gate) GetOrCompute(ctx context.Context, kind models.ProcessorKind, fingerprint string, useCache bool, compute ComputeFunc) (*Result, error) {
	if useCache {
		entry, found, err := g.storage.GetEntry(ctx, fingerprint)
		if err != nil {
			g.logger.Warn().Err(err).Str("fingerprint", fingerprint).Msg("Cache lookup failed, computing")
		} else if found && !entry.IsExpired(g.ttl, time.Now().UTC()) {
			g.logger.Debug().Str("fingerprint", fingerprint).Msg("Cache hit")
			return &Result{
				Payload:   entry.Result,
				Resources: entry.Resources,
				FromCache: true,
			}, nil
		}
	}

	// Single-flight: concurrent callers with the same fingerprint subscribe
	// to the one in-progress computation instead of each invoking compute.
	// The closure runs synchronously in the leader's goroutine, so ran tells
	// this caller whether its own compute executed. singleflight's shared
	// flag cannot: it is true for the leader too once waiters joined.
	ran := false
	value, err, _ := g.group.Do(fingerprint, func() (interface{}, error) {
		ran = true
		payload, usage, computeErr := compute(ctx)
		if computeErr != nil {
			return nil, computeErr
		}

		if useCache || g.writeOnBypass {
			entry := &models.CacheEntry{
				Fingerprint: fingerprint,
				Kind:        kind,
				Result:      payload,
				Resources:   usage,
				StoredAt:    time.Now().UTC(),
			}
			if saveErr := g.storage.SaveEntry(ctx, entry); saveErr != nil {
				g.logger.Warn().Err(saveErr).Str("fingerprint", fingerprint).Msg("Failed to populate cache")
			}
		}

		return &Result{Payload: payload, Resources: usage}, nil
	})
	if err != nil {
		// Typed processor errors pass through so the caller's classification
		// survives; anything else becomes a cache compute failure.
		var procErr *models.ProcessorError
		if errors.As(err, &procErr) {
			return nil, err
		}
		return nil, &models.ProcessorError{
			Kind:    models.ErrorKindCacheCompute,
			Message: fmt.Sprintf("compute for %s failed: %v", fingerprint, err),
		}
	}

	result := value.(*Result)
	if !ran {
		// Waiters observe the leader's result; report it as reuse so callers
		// do not double-count work.
		copied := *result
		copied.FromCache = true
		g.logger.Debug().Str("fingerprint", fingerprint).Msg("Joined in-flight computation")
		return &copied, nil
	}
	return result, nil
}

// Invalidate removes the entry for a fingerprint
func (g *Gate) Invalidate(ctx context.Context, fingerprint string) error {
	return g.storage.DeleteEntry(ctx, fingerprint)
}
