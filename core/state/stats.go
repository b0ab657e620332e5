package state

import "sync/atomic"

// CacheStats tracks query cache performance counters.
type CacheStats struct {
	hits   atomic.Int64
	misses atomic.Int64
	stores atomic.Int64
}

// NewCacheStats creates a zeroed counter set.
func NewCacheStats() *CacheStats {
	return &CacheStats{}
}

// RecordHit records a cache hit.
func (s *CacheStats) RecordHit() {
	s.hits.Add(1)
}

// RecordMiss records a cache miss.
func (s *CacheStats) RecordMiss() {
	s.misses.Add(1)
}

// RecordStore records an admitted store.
func (s *CacheStats) RecordStore() {
	s.stores.Add(1)
}

// Hits returns the total number of cache hits.
func (s *CacheStats) Hits() int64 {
	return s.hits.Load()
}

// Misses returns the total number of cache misses.
func (s *CacheStats) Misses() int64 {
	return s.misses.Load()
}

// Stores returns the total number of admitted stores.
func (s *CacheStats) Stores() int64 {
	return s.stores.Load()
}

// HitRate returns the hit fraction of all lookups, zero when none happened.
func (s *CacheStats) HitRate() float64 {
	total := s.Hits() + s.Misses()
	if total == 0 {
		return 0
	}
	return float64(s.Hits()) / float64(total)
}

// Reset zeroes all counters.
func (s *CacheStats) Reset() {
	s.hits.Store(0)
	s.misses.Store(0)
	s.stores.Store(0)
}
