package ledger

import (
	"sync"
	"time"
)

// spendCache is a TTL read cache over backend spend totals.
//
// The enforcement gate reads spend through this cache so admission
// checks never wait on storage in the common case. Entries are refreshed
// lazily on expiry and written through by MergeUsage, so staleness is
// bounded by the TTL.
type spendCache struct {
	ttl time.Duration
	mu  sync.RWMutex
	m   map[string]cacheEntry
	now func() time.Time
}

type cacheEntry struct {
	total    float64
	storedAt time.Time
}

func newSpendCache(ttl time.Duration) *spendCache {
	return &spendCache{
		ttl: ttl,
		m:   make(map[string]cacheEntry),
		now: time.Now,
	}
}

// get returns the cached total. fresh is false when the entry is absent
// or older than the TTL; the stale value (if any) is still returned so
// callers can fall back to it when the backend is unreachable.
func (c *spendCache) get(key string) (total float64, fresh, present bool) {
	c.mu.RLock()
	entry, ok := c.m[key]
	c.mu.RUnlock()

	if !ok {
		return 0, false, false
	}
	return entry.total, c.now().Sub(entry.storedAt) < c.ttl, true
}

// put stores a total, resetting its freshness clock.
func (c *spendCache) put(key string, total float64) {
	c.mu.Lock()
	c.m[key] = cacheEntry{total: total, storedAt: c.now()}
	c.mu.Unlock()
}
