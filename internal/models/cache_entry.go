package models

import "time"

// CacheEntry memoizes a successful processor result under its content
// fingerprint. Entry lifetime is independent of any single job and may
// outlive the batch that created it.
type CacheEntry struct {
	Fingerprint string                 `json:"fingerprint" badgerhold:"key"`
	Kind        ProcessorKind          `json:"kind"`
	Result      map[string]interface{} `json:"result"`
	Resources   ResourceUsage          `json:"resources"`
	StoredAt    time.Time              `json:"stored_at"`
}

// IsExpired reports whether the entry is older than the given TTL
func (e *CacheEntry) IsExpired(ttl time.Duration, now time.Time) bool {
	if ttl <= 0 {
		return false
	}
	return now.Sub(e.StoredAt) > ttl
}
