package state

import (
	"sync"
	"time"

	"github.com/dgraph-io/ristretto"

	"github.com/adalundhe/volition/core/bayes"
	"github.com/adalundhe/volition/core/config"
)

const (
	defaultNumCounters = 10_000
	defaultMaxCost     = 1 << 16
	defaultBufferItems = 64
	defaultTTL         = 5 * time.Minute
)

// QueryCache memoizes inference results keyed by state identity and
// version, so any state mutation implicitly invalidates its entries. Stale
// versions fall out through the TTL and the cost-based eviction policy.
type QueryCache struct {
	cache  *ristretto.Cache
	ttl    time.Duration
	stats  *CacheStats
	mu     sync.RWMutex
	closed bool
}

// NewQueryCache builds a cache from the configuration, filling in defaults
// for unset size fields.
func NewQueryCache(cfg config.CacheConfig) (*QueryCache, error) {
	if cfg.NumCounters <= 0 {
		cfg.NumCounters = defaultNumCounters
	}
	if cfg.MaxCost <= 0 {
		cfg.MaxCost = defaultMaxCost
	}
	if cfg.BufferItems <= 0 {
		cfg.BufferItems = defaultBufferItems
	}
	if cfg.TTL <= 0 {
		cfg.TTL = defaultTTL
	}

	cache, err := ristretto.NewCache(&ristretto.Config{
		NumCounters: cfg.NumCounters,
		MaxCost:     cfg.MaxCost,
		BufferItems: cfg.BufferItems,
	})
	if err != nil {
		return nil, err
	}

	return &QueryCache{
		cache: cache,
		ttl:   cfg.TTL,
		stats: NewCacheStats(),
	}, nil
}

// Prob retrieves a cached probability table.
func (qc *QueryCache) Prob(key string) (*bayes.ProbabilityTable, bool) {
	value, found := qc.get(key)
	if !found {
		return nil, false
	}
	table, ok := value.(*bayes.ProbabilityTable)
	if !ok {
		qc.stats.RecordMiss()
		return nil, false
	}
	return table, true
}

// StoreProb caches a probability table, costed by row count.
func (qc *QueryCache) StoreProb(key string, table *bayes.ProbabilityTable) bool {
	if table == nil {
		return false
	}
	return qc.set(key, table, int64(table.Size())+1)
}

// Util retrieves a cached utility table.
func (qc *QueryCache) Util(key string) (*bayes.UtilityTable, bool) {
	value, found := qc.get(key)
	if !found {
		return nil, false
	}
	table, ok := value.(*bayes.UtilityTable)
	if !ok {
		qc.stats.RecordMiss()
		return nil, false
	}
	return table, true
}

// StoreUtil caches a utility table, costed by row count.
func (qc *QueryCache) StoreUtil(key string, table *bayes.UtilityTable) bool {
	if table == nil {
		return false
	}
	return qc.set(key, table, int64(table.Size())+1)
}

func (qc *QueryCache) get(key string) (any, bool) {
	qc.mu.RLock()
	if qc.closed {
		qc.mu.RUnlock()
		return nil, false
	}
	qc.mu.RUnlock()

	value, found := qc.cache.Get(key)
	if !found {
		qc.stats.RecordMiss()
		return nil, false
	}
	qc.stats.RecordHit()
	return value, true
}

func (qc *QueryCache) set(key string, value any, cost int64) bool {
	qc.mu.RLock()
	if qc.closed {
		qc.mu.RUnlock()
		return false
	}
	qc.mu.RUnlock()

	stored := qc.cache.SetWithTTL(key, value, cost, qc.ttl)
	if stored {
		qc.stats.RecordStore()
	}
	return stored
}

// Wait blocks until pending stores have been admitted or dropped.
func (qc *QueryCache) Wait() {
	qc.mu.RLock()
	if qc.closed {
		qc.mu.RUnlock()
		return
	}
	qc.mu.RUnlock()

	qc.cache.Wait()
}

// Clear removes all entries.
func (qc *QueryCache) Clear() {
	qc.mu.RLock()
	if qc.closed {
		qc.mu.RUnlock()
		return
	}
	qc.mu.RUnlock()

	qc.cache.Clear()
	qc.stats.Reset()
}

// Close releases the cache. Further operations become no-ops.
func (qc *QueryCache) Close() {
	qc.mu.Lock()
	defer qc.mu.Unlock()

	if qc.closed {
		return
	}
	qc.closed = true
	qc.cache.Close()
}

// Stats returns the cache performance counters.
func (qc *QueryCache) Stats() *CacheStats {
	return qc.stats
}
