package builtin

import (
	"context"

	"github.com/stratagem-ai/stratagem/pkg/backtest"
	"github.com/stratagem-ai/stratagem/pkg/marketdata"
	"github.com/stratagem-ai/stratagem/pkg/tool"
)

const defaultBacktestCandles = 500

// RunBacktestTool simulates the current strategy plan over historical
// candles. It prefers the snapshot fetched earlier in the run and falls back
// to synthetic candles so the simulation always has data to work with.
type RunBacktestTool struct{}

func (t *RunBacktestTool) Name() string  { return "run_backtest" }
func (t *RunBacktestTool) Label() string { return "Run Backtest" }

func (t *RunBacktestTool) Description() string {
	return "Simulate the current strategy plan over historical candles and report trades, win rate, profit and drawdown."
}

func (t *RunBacktestTool) RequiresApproval() bool { return false }

func (t *RunBacktestTool) Parameters() tool.ParameterSchema {
	return tool.ParameterSchema{
		Type: "object",
		Properties: map[string]tool.PropertySchema{
			"plan": {
				Type:        "object",
				Description: "Strategy plan to simulate; defaults to the plan produced earlier in this conversation turn",
			},
			"candles": {
				Type:        "integer",
				Description: "Number of candles to simulate over",
				Default:     defaultBacktestCandles,
			},
		},
	}
}

func (t *RunBacktestTool) Execute(ctx context.Context, params map[string]any) (*tool.Result, error) {
	plan, ok := planFromParams(params)
	if !ok {
		return tool.Fail("no strategy plan available; call generate_strategy first"), nil
	}

	count := intParam(params, "candles")
	if count <= 0 {
		count = defaultBacktestCandles
	}

	snap, haveSnap := snapshotFromParams(params)
	if !haveSnap {
		snap = marketdata.SyntheticSnapshot(plan.Symbol, plan.Timeframe, count)
	}
	candles := snap.Candles
	if len(candles) > count {
		candles = candles[len(candles)-count:]
	}

	result, err := backtest.Run(plan, candles)
	if err != nil {
		return tool.Fail("backtest failed: " + err.Error()), nil
	}

	return &tool.Result{
		Success: true,
		Data: map[string]any{
			"trades":       result.Trades,
			"wins":         result.Wins,
			"win_rate":     result.WinRate,
			"net_profit":   result.NetProfit,
			"return_pct":   result.ReturnPct,
			"max_drawdown": result.MaxDrawdown,
			"final_equity": result.FinalEquity,
			"candles_used": result.CandlesUsed,
			"synthetic":    !haveSnap,
			"summary":      result.Summary(),
		},
	}, nil
}
