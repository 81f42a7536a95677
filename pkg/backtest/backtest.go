// Package backtest runs a deterministic simulation of a strategy plan over
// a candle series. It is intentionally low fidelity: close-to-close fills,
// full-position sizing, no slippage model.
package backtest

import (
	"fmt"
	"math"

	"github.com/stratagem-ai/stratagem/pkg/marketdata"
	"github.com/stratagem-ai/stratagem/pkg/strategy"
)

// Result summarizes one simulation.
type Result struct {
	Trades       int     `json:"trades"`
	Wins         int     `json:"wins"`
	WinRate      float64 `json:"win_rate"`
	NetProfit    float64 `json:"net_profit"`
	ReturnPct    float64 `json:"return_pct"`
	MaxDrawdown  float64 `json:"max_drawdown_pct"`
	FinalEquity  float64 `json:"final_equity"`
	CandlesUsed  int     `json:"candles_used"`
	QuickPass    bool    `json:"quick_pass,omitempty"`
}

// Summary renders a compact human-readable report.
func (r Result) Summary() string {
	return fmt.Sprintf("%d trades, %.0f%% win rate, %.2f%% return, %.2f%% max drawdown",
		r.Trades, r.WinRate*100, r.ReturnPct, r.MaxDrawdown)
}

// Run simulates the plan over the full candle series.
func Run(p strategy.Plan, candles []marketdata.Candle) (Result, error) {
	return run(p, candles, false)
}

// Quick simulates over a truncated series. It trades fidelity for speed and
// is used as a fast sanity check after code generation.
func Quick(p strategy.Plan, candles []marketdata.Candle, limit int) (Result, error) {
	if limit > 0 && len(candles) > limit {
		candles = candles[:limit]
	}
	res, err := run(p, candles, true)
	return res, err
}

func run(p strategy.Plan, candles []marketdata.Candle, quick bool) (Result, error) {
	p = strategy.Normalize(p)
	if len(candles) <= p.SlowPeriod+1 {
		return Result{}, fmt.Errorf("not enough candles: have %d, need more than %d", len(candles), p.SlowPeriod+1)
	}

	closes := make([]float64, len(candles))
	for i, c := range candles {
		closes[i] = c.Close
	}

	equity := p.Capital
	peak := equity
	maxDrawdown := 0.0
	fee := p.FeePct / 100

	var (
		inPosition bool
		entryPrice float64
		trades     int
		wins       int
	)

	closePosition := func(exitPrice float64) {
		gross := equity * (exitPrice/entryPrice - 1)
		cost := equity*fee + equity*(exitPrice/entryPrice)*fee
		equity += gross - cost
		trades++
		if gross-cost > 0 {
			wins++
		}
		inPosition = false
		if equity > peak {
			peak = equity
		}
		if dd := (peak - equity) / peak * 100; dd > maxDrawdown {
			maxDrawdown = dd
		}
	}

	for i := p.SlowPeriod + 1; i < len(closes); i++ {
		price := closes[i]

		if inPosition {
			// Stop-loss and take-profit checked before crossover exits.
			if price <= entryPrice*(1-p.StopLossPct/100) || price >= entryPrice*(1+p.TakeProfitPct/100) {
				closePosition(price)
				continue
			}
		}

		fast := sma(closes[:i+1], p.FastPeriod)
		slow := sma(closes[:i+1], p.SlowPeriod)
		prevFast := sma(closes[:i], p.FastPeriod)
		prevSlow := sma(closes[:i], p.SlowPeriod)

		switch {
		case !inPosition && prevFast <= prevSlow && fast > slow:
			inPosition = true
			entryPrice = price
		case inPosition && prevFast >= prevSlow && fast < slow:
			closePosition(price)
		}
	}

	// Force-close any open position at the final candle.
	if inPosition {
		closePosition(closes[len(closes)-1])
	}

	winRate := 0.0
	if trades > 0 {
		winRate = float64(wins) / float64(trades)
	}

	return Result{
		Trades:      trades,
		Wins:        wins,
		WinRate:     winRate,
		NetProfit:   equity - p.Capital,
		ReturnPct:   (equity/p.Capital - 1) * 100,
		MaxDrawdown: maxDrawdown,
		FinalEquity: math.Round(equity*100) / 100,
		CandlesUsed: len(candles),
		QuickPass:   quick,
	}, nil
}

func sma(closes []float64, period int) float64 {
	if period <= 0 || len(closes) < period {
		return 0
	}
	sum := 0.0
	for _, v := range closes[len(closes)-period:] {
		sum += v
	}
	return sum / float64(period)
}
