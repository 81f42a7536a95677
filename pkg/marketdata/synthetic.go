package marketdata

import (
	"hash/fnv"
	"math"
	"math/rand"
	"time"
)

// SyntheticSnapshot generates a deterministic candle series for a
// symbol/timeframe pair. Used when no live market connection is configured
// and in tests; the series is seeded by the key so repeated calls agree.
func SyntheticSnapshot(symbol, timeframe string, count int) *Snapshot {
	if count <= 0 {
		count = defaultLimit
	}

	h := fnv.New64a()
	_, _ = h.Write([]byte(CacheKey(symbol, timeframe)))
	rng := rand.New(rand.NewSource(int64(h.Sum64())))

	step := intervalDuration(timeframe)
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

	price := 100.0 + rng.Float64()*900.0
	candles := make([]Candle, 0, count)
	for i := 0; i < count; i++ {
		// Random walk with a slow sine drift so crossover strategies
		// produce a realistic number of signals.
		drift := math.Sin(float64(i)/37.0) * 0.004
		change := (rng.Float64()-0.5)*0.02 + drift
		open := price
		price = open * (1 + change)
		high := math.Max(open, price) * (1 + rng.Float64()*0.005)
		low := math.Min(open, price) * (1 - rng.Float64()*0.005)

		candles = append(candles, Candle{
			OpenTime: start.Add(time.Duration(i) * step),
			Open:     open,
			High:     high,
			Low:      low,
			Close:    price,
			Volume:   1000 + rng.Float64()*5000,
		})
	}

	return &Snapshot{
		Symbol:    symbol,
		Timeframe: timeframe,
		Candles:   candles,
		FetchedAt: time.Now(),
	}
}

func intervalDuration(timeframe string) time.Duration {
	switch timeframe {
	case "1m":
		return time.Minute
	case "5m":
		return 5 * time.Minute
	case "15m":
		return 15 * time.Minute
	case "4h":
		return 4 * time.Hour
	case "1d":
		return 24 * time.Hour
	default:
		return time.Hour
	}
}
