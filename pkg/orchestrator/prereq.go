package orchestrator

import (
	"sync"
	"time"

	"github.com/stratagem-ai/stratagem/pkg/marketdata"
)

// marketDataConsumers names the tools that need candles before they run.
// The controller fetches data for them automatically when the run has none.
var marketDataConsumers = map[string]bool{
	"run_backtest": true,
}

// cachedSnapshot pairs a snapshot with its fetch time for staleness checks.
type cachedSnapshot struct {
	snap      *marketdata.Snapshot
	fetchedAt time.Time
}

// MarketCache holds recently fetched snapshots keyed by symbol and
// timeframe. It is shared across runs so back-to-back requests for the same
// pair reuse one fetch.
type MarketCache struct {
	mu      sync.Mutex
	ttl     time.Duration
	entries map[string]cachedSnapshot
	now     func() time.Time
}

// NewMarketCache creates a cache whose entries expire after ttl.
func NewMarketCache(ttl time.Duration) *MarketCache {
	return &MarketCache{
		ttl:     ttl,
		entries: make(map[string]cachedSnapshot),
		now:     time.Now,
	}
}

// Get returns a cached snapshot when one exists and is still fresh. An
// entry whose age has reached the TTL counts as stale.
func (c *MarketCache) Get(symbol, timeframe string) (*marketdata.Snapshot, bool) {
	if c == nil {
		return nil, false
	}
	key := marketdata.CacheKey(symbol, timeframe)

	c.mu.Lock()
	defer c.mu.Unlock()
	entry, ok := c.entries[key]
	if !ok {
		return nil, false
	}
	if c.now().Sub(entry.fetchedAt) >= c.ttl {
		delete(c.entries, key)
		return nil, false
	}
	return entry.snap, true
}

// Fresh reports whether data fetched at t is still inside the TTL.
func (c *MarketCache) Fresh(fetchedAt time.Time) bool {
	if c == nil {
		return false
	}
	return c.now().Sub(fetchedAt) < c.ttl
}

// Put stores a snapshot under its symbol and timeframe.
func (c *MarketCache) Put(snap *marketdata.Snapshot) {
	if c == nil || snap == nil || len(snap.Candles) == 0 {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[snap.Key()] = cachedSnapshot{snap: snap, fetchedAt: c.now()}
}

// Len returns the number of cached entries, expired or not.
func (c *MarketCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}
