package orchestrator

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stratagem-ai/stratagem/pkg/marketdata"
)

func TestMarketCacheHit(t *testing.T) {
	cache := NewMarketCache(15 * time.Minute)
	cache.Put(marketdata.SyntheticSnapshot("BTCUSDT", "1h", 10))

	snap, ok := cache.Get("BTCUSDT", "1h")
	require.True(t, ok)
	assert.Equal(t, "BTCUSDT", snap.Symbol)
	assert.Len(t, snap.Candles, 10)
}

func TestMarketCacheKeyNormalization(t *testing.T) {
	cache := NewMarketCache(15 * time.Minute)
	cache.Put(marketdata.SyntheticSnapshot("btcusdt", "1H", 10))

	_, ok := cache.Get("BTCUSDT", "1h")
	assert.True(t, ok, "lookups must be case-insensitive")
}

func TestMarketCacheMiss(t *testing.T) {
	cache := NewMarketCache(15 * time.Minute)
	_, ok := cache.Get("ETHUSDT", "1h")
	assert.False(t, ok)
}

func TestMarketCacheExpiry(t *testing.T) {
	cache := NewMarketCache(15 * time.Minute)
	now := time.Now()
	cache.now = func() time.Time { return now }
	cache.Put(marketdata.SyntheticSnapshot("BTCUSDT", "1h", 10))

	// One nanosecond short of the TTL is still fresh.
	cache.now = func() time.Time { return now.Add(15*time.Minute - time.Nanosecond) }
	_, ok := cache.Get("BTCUSDT", "1h")
	assert.True(t, ok)

	// Exactly at the TTL the entry is stale.
	cache.now = func() time.Time { return now.Add(15 * time.Minute) }
	_, ok = cache.Get("BTCUSDT", "1h")
	assert.False(t, ok)
	assert.Equal(t, 0, cache.Len(), "stale entries are evicted on read")
}

func TestMarketCacheIgnoresEmptySnapshots(t *testing.T) {
	cache := NewMarketCache(15 * time.Minute)
	cache.Put(nil)
	cache.Put(&marketdata.Snapshot{Symbol: "BTCUSDT", Timeframe: "1h"})
	assert.Equal(t, 0, cache.Len())
}
