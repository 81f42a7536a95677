package orchestrator

import (
	"fmt"

	"github.com/stratagem-ai/stratagem/pkg/backtest"
	"github.com/stratagem-ai/stratagem/pkg/marketdata"
	"github.com/stratagem-ai/stratagem/pkg/strategy"
)

// Verdict is the advisory outcome of the quick validation backtest run
// after code generation. A failed verdict never undoes the generated
// artifact; it only annotates the planner transcript and the final reply.
type Verdict struct {
	Passed    bool    `json:"passed"`
	Trades    int     `json:"trades"`
	MinTrades int     `json:"min_trades"`
	ReturnPct float64 `json:"return_pct"`
	Detail    string  `json:"detail,omitempty"`
}

// report renders the verdict as a short observation for the planner. A
// below-minimum trade count carries an explicit instruction to revise.
func (v *Verdict) report() string {
	summary := fmt.Sprintf("Quick validation backtest: %d trade(s), %.2f%% return.", v.Trades, v.ReturnPct)
	if v.Trades < v.MinTrades {
		return fmt.Sprintf("%s That is below the minimum of %d trades; revise the strategy plan before proceeding.", summary, v.MinTrades)
	}
	if !v.Passed {
		return fmt.Sprintf("%s The strategy was unprofitable over this sample (%s).", summary, v.Detail)
	}
	return summary
}

// Validator runs a quick backtest against freshly generated strategy code.
type Validator struct {
	MinTrades int
	Candles   int
	Disabled  bool
}

// Validate simulates the plan over the given snapshot, falling back to
// synthetic candles when the run fetched none.
func (v Validator) Validate(plan strategy.Plan, snap *marketdata.Snapshot) (*Verdict, error) {
	if snap == nil || len(snap.Candles) == 0 {
		snap = marketdata.SyntheticSnapshot(plan.Symbol, plan.Timeframe, v.Candles)
	}

	result, err := backtest.Quick(plan, snap.Candles, v.Candles)
	if err != nil {
		return nil, fmt.Errorf("validation backtest: %w", err)
	}

	verdict := &Verdict{
		Trades:    result.Trades,
		MinTrades: v.MinTrades,
		ReturnPct: result.ReturnPct,
	}
	switch {
	case result.Trades < v.MinTrades:
		verdict.Detail = fmt.Sprintf("only %d trade(s) over %d candles", result.Trades, result.CandlesUsed)
	case result.NetProfit <= 0:
		verdict.Detail = fmt.Sprintf("unprofitable over %d candles", result.CandlesUsed)
	default:
		verdict.Passed = true
	}
	return verdict, nil
}
