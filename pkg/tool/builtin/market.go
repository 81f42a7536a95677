package builtin

import (
	"context"
	"fmt"

	"github.com/stratagem-ai/stratagem/pkg/marketdata"
	"github.com/stratagem-ai/stratagem/pkg/tool"
)

const defaultKlineLimit = 500

// FetchMarketDataTool retrieves recent candles for a symbol and timeframe.
// It is also the tool the controller triggers automatically when another
// tool needs market data the run does not have yet.
type FetchMarketDataTool struct {
	Client *marketdata.Client // nil means synthetic data only
}

func (t *FetchMarketDataTool) Name() string  { return "fetch_market_data" }
func (t *FetchMarketDataTool) Label() string { return "Fetch Market Data" }

func (t *FetchMarketDataTool) Description() string {
	return "Fetch recent OHLCV candles for a trading pair and timeframe."
}

func (t *FetchMarketDataTool) RequiresApproval() bool { return false }

func (t *FetchMarketDataTool) Parameters() tool.ParameterSchema {
	return tool.ParameterSchema{
		Type: "object",
		Properties: map[string]tool.PropertySchema{
			"symbol": {
				Type:        "string",
				Description: "Trading pair symbol, e.g. BTCUSDT",
			},
			"timeframe": {
				Type:        "string",
				Description: "Candle interval",
				Default:     "1h",
				Enum:        []string{"1m", "5m", "15m", "1h", "4h", "1d"},
			},
			"limit": {
				Type:        "integer",
				Description: "Number of candles to fetch",
				Default:     defaultKlineLimit,
			},
		},
		Required: []string{"symbol", "timeframe"},
	}
}

func (t *FetchMarketDataTool) Execute(ctx context.Context, params map[string]any) (*tool.Result, error) {
	symbol := stringParam(params, "symbol")
	if symbol == "" {
		return tool.Fail("symbol is required"), nil
	}
	timeframe := stringParam(params, "timeframe")
	if timeframe == "" {
		timeframe = "1h"
	}
	limit := intParam(params, "limit")
	if limit <= 0 {
		limit = defaultKlineLimit
	}

	var (
		snap      *marketdata.Snapshot
		synthetic bool
	)
	if t.Client != nil {
		fetched, err := t.Client.Klines(ctx, symbol, timeframe, limit)
		if err != nil {
			return tool.Fail("fetch market data: " + err.Error()), nil
		}
		snap = fetched
	} else {
		snap = marketdata.SyntheticSnapshot(symbol, timeframe, limit)
		synthetic = true
	}

	if len(snap.Candles) == 0 {
		return tool.Fail(fmt.Sprintf("no candles returned for %s %s", symbol, timeframe)), nil
	}

	last := snap.Candles[len(snap.Candles)-1]
	return &tool.Result{
		Success: true,
		Data: map[string]any{
			"snapshot":     snap,
			"symbol":       snap.Symbol,
			"timeframe":    snap.Timeframe,
			"candle_count": len(snap.Candles),
			"last_close":   last.Close,
			"synthetic":    synthetic,
		},
	}, nil
}
