package marketdata

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCacheKeyNormalizes(t *testing.T) {
	assert.Equal(t, "BTCUSDT:1h", CacheKey("btcusdt", "1H"))
	assert.Equal(t, "BTCUSDT:1h", CacheKey(" BTCUSDT ", " 1h "))
}

func TestSnapshotKey(t *testing.T) {
	snap := &Snapshot{Symbol: "ethusdt", Timeframe: "4H"}
	assert.Equal(t, "ETHUSDT:4h", snap.Key())
}

func TestSyntheticSnapshotDeterministic(t *testing.T) {
	a := SyntheticSnapshot("BTCUSDT", "1h", 50)
	b := SyntheticSnapshot("BTCUSDT", "1h", 50)
	require.Len(t, a.Candles, 50)
	assert.Equal(t, a.Candles, b.Candles, "same key must yield the same series")

	c := SyntheticSnapshot("ETHUSDT", "1h", 50)
	assert.NotEqual(t, a.Candles[0].Close, c.Candles[0].Close, "different symbols diverge")
}

func TestSyntheticSnapshotCandleShape(t *testing.T) {
	snap := SyntheticSnapshot("BTCUSDT", "1h", 10)
	for i, c := range snap.Candles {
		assert.GreaterOrEqual(t, c.High, c.Open, "candle %d", i)
		assert.GreaterOrEqual(t, c.High, c.Close, "candle %d", i)
		assert.LessOrEqual(t, c.Low, c.Open, "candle %d", i)
		assert.LessOrEqual(t, c.Low, c.Close, "candle %d", i)
		assert.Positive(t, c.Volume, "candle %d", i)
	}
	gap := snap.Candles[1].OpenTime.Sub(snap.Candles[0].OpenTime)
	assert.Equal(t, time.Hour, gap)
}

func TestKlinesParsesExchangeFormat(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/v3/klines", r.URL.Path)
		assert.Equal(t, "BTCUSDT", r.URL.Query().Get("symbol"))
		assert.Equal(t, "1h", r.URL.Query().Get("interval"))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`[
			[1700000000000,"100.0","110.0","95.0","105.0","1234.5",1700003599999,"0","0","0","0","0"],
			[1700003600000,"105.0","112.0","101.0","108.0","2345.6",1700007199999,"0","0","0","0","0"]
		]`))
	}))
	defer srv.Close()

	client := NewClient(srv.URL)
	snap, err := client.Klines(context.Background(), "btcusdt", "1h", 2)
	require.NoError(t, err)
	require.Len(t, snap.Candles, 2)
	assert.Equal(t, "BTCUSDT", snap.Symbol)
	assert.Equal(t, 100.0, snap.Candles[0].Open)
	assert.Equal(t, 105.0, snap.Candles[0].Close)
	assert.Equal(t, 108.0, snap.Candles[1].Close)
	assert.False(t, snap.FetchedAt.IsZero())
}

func TestKlinesUpstreamError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"code":-1121,"msg":"Invalid symbol."}`, http.StatusBadRequest)
	}))
	defer srv.Close()

	client := NewClient(srv.URL)
	_, err := client.Klines(context.Background(), "NOPE", "1h", 10)
	require.Error(t, err)
}
