package backtest

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stratagem-ai/stratagem/pkg/marketdata"
	"github.com/stratagem-ai/stratagem/pkg/strategy"
)

func testPlan() strategy.Plan {
	return strategy.Normalize(strategy.Plan{Symbol: "BTCUSDT", Timeframe: "1h"})
}

func TestRunIsDeterministic(t *testing.T) {
	plan := testPlan()
	candles := marketdata.SyntheticSnapshot("BTCUSDT", "1h", 400).Candles

	a, err := Run(plan, candles)
	require.NoError(t, err)
	b, err := Run(plan, candles)
	require.NoError(t, err)
	assert.Equal(t, a, b)
	assert.Equal(t, 400, a.CandlesUsed)
}

func TestRunProducesTradesOnOscillatingSeries(t *testing.T) {
	plan := testPlan()
	candles := marketdata.SyntheticSnapshot("BTCUSDT", "1h", 500).Candles

	res, err := Run(plan, candles)
	require.NoError(t, err)
	assert.Greater(t, res.Trades, 0, "a sine-drifted walk must trigger crossovers")
	assert.Equal(t, res.NetProfit, res.FinalEquity-plan.Capital)
	if res.Trades > 0 {
		assert.InDelta(t, float64(res.Wins)/float64(res.Trades), res.WinRate, 1e-9)
	}
	assert.GreaterOrEqual(t, res.MaxDrawdown, 0.0)
}

func TestRunRejectsShortSeries(t *testing.T) {
	plan := testPlan()
	candles := marketdata.SyntheticSnapshot("BTCUSDT", "1h", plan.SlowPeriod+1).Candles

	_, err := Run(plan, candles)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not enough candles")
}

func TestQuickTruncates(t *testing.T) {
	plan := testPlan()
	candles := marketdata.SyntheticSnapshot("BTCUSDT", "1h", 500).Candles

	res, err := Quick(plan, candles, 100)
	require.NoError(t, err)
	assert.Equal(t, 100, res.CandlesUsed)
	assert.True(t, res.QuickPass)
}

func TestQuickWithoutLimitUsesAll(t *testing.T) {
	plan := testPlan()
	candles := marketdata.SyntheticSnapshot("BTCUSDT", "1h", 120).Candles

	res, err := Quick(plan, candles, 0)
	require.NoError(t, err)
	assert.Equal(t, 120, res.CandlesUsed)
}

func TestStopLossClosesPosition(t *testing.T) {
	plan := testPlan()
	plan.FastPeriod = 2
	plan.SlowPeriod = 4
	plan.StopLossPct = 1.0
	plan.TakeProfitPct = 50.0

	// Rise to force a bullish crossover, then crash through the stop.
	prices := []float64{100, 100, 100, 100, 100, 101, 103, 106, 50, 50, 50, 50}
	candles := make([]marketdata.Candle, len(prices))
	for i, p := range prices {
		candles[i] = marketdata.Candle{Open: p, High: p, Low: p, Close: p}
	}

	res, err := Run(plan, candles)
	require.NoError(t, err)
	require.Greater(t, res.Trades, 0)
	assert.Less(t, res.NetProfit, 0.0)
}

func TestSMA(t *testing.T) {
	closes := []float64{1, 2, 3, 4, 5}
	assert.Equal(t, 4.0, sma(closes, 3))
	assert.Equal(t, 3.0, sma(closes, 5))
	assert.Equal(t, 0.0, sma(closes, 6), "insufficient history yields zero")
}
