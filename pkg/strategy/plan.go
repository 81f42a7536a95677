// Package strategy defines the trading strategy plan artifact and its
// derived executable form.
package strategy

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Defaults applied when a plan leaves risk or sizing parameters unset.
const (
	MinStopLossPct    = 1.0
	MinTakeProfitPct  = 2.0
	DefaultCapital    = 10_000.0
	DefaultFeePct     = 0.1
	DefaultFastPeriod = 9
	DefaultSlowPeriod = 21
)

// Plan is a structured strategy description produced by the planner.
type Plan struct {
	Name          string   `json:"name"`
	Symbol        string   `json:"symbol"`
	Timeframe     string   `json:"timeframe"`
	Indicators    []string `json:"indicators,omitempty"`
	EntryRule     string   `json:"entry_rule"`
	ExitRule      string   `json:"exit_rule"`
	FastPeriod    int      `json:"fast_period,omitempty"`
	SlowPeriod    int      `json:"slow_period,omitempty"`
	StopLossPct   float64  `json:"stop_loss_pct"`
	TakeProfitPct float64  `json:"take_profit_pct"`
	Capital       float64  `json:"capital"`
	FeePct        float64  `json:"fee_pct"`
}

// Normalize fills defaults and clamps risk parameters to sane minimums.
// Returns a copy; the input is not mutated.
func Normalize(p Plan) Plan {
	if strings.TrimSpace(p.Name) == "" {
		p.Name = fmt.Sprintf("%s %s strategy", strings.ToUpper(p.Symbol), p.Timeframe)
	}
	p.Symbol = strings.ToUpper(strings.TrimSpace(p.Symbol))
	p.Timeframe = strings.ToLower(strings.TrimSpace(p.Timeframe))
	if p.Timeframe == "" {
		p.Timeframe = "1h"
	}
	if p.FastPeriod <= 0 {
		p.FastPeriod = DefaultFastPeriod
	}
	if p.SlowPeriod <= p.FastPeriod {
		p.SlowPeriod = DefaultSlowPeriod
		if p.SlowPeriod <= p.FastPeriod {
			p.SlowPeriod = p.FastPeriod * 2
		}
	}
	if p.StopLossPct < MinStopLossPct {
		p.StopLossPct = MinStopLossPct
	}
	if p.TakeProfitPct < MinTakeProfitPct {
		p.TakeProfitPct = MinTakeProfitPct
	}
	if p.Capital <= 0 {
		p.Capital = DefaultCapital
	}
	if p.FeePct <= 0 {
		p.FeePct = DefaultFeePct
	}
	if p.EntryRule == "" {
		p.EntryRule = fmt.Sprintf("fast SMA(%d) crosses above slow SMA(%d)", p.FastPeriod, p.SlowPeriod)
	}
	if p.ExitRule == "" {
		p.ExitRule = fmt.Sprintf("fast SMA(%d) crosses below slow SMA(%d)", p.FastPeriod, p.SlowPeriod)
	}
	if len(p.Indicators) == 0 {
		p.Indicators = []string{
			fmt.Sprintf("SMA(%d)", p.FastPeriod),
			fmt.Sprintf("SMA(%d)", p.SlowPeriod),
		}
	}
	return p
}

// FromMap decodes a plan from loosely typed tool result data.
func FromMap(data map[string]any) (Plan, error) {
	var p Plan
	raw, err := json.Marshal(data)
	if err != nil {
		return p, fmt.Errorf("encode plan data: %w", err)
	}
	if err := json.Unmarshal(raw, &p); err != nil {
		return p, fmt.Errorf("decode plan: %w", err)
	}
	return p, nil
}

// ToMap encodes the plan for tool result payloads.
func (p Plan) ToMap() map[string]any {
	raw, _ := json.Marshal(p)
	var out map[string]any
	_ = json.Unmarshal(raw, &out)
	return out
}

// Summary renders a one-line human-readable description.
func (p Plan) Summary() string {
	return fmt.Sprintf("%s on %s/%s: entry when %s, exit when %s, SL %.1f%% TP %.1f%%",
		p.Name, p.Symbol, p.Timeframe, p.EntryRule, p.ExitRule, p.StopLossPct, p.TakeProfitPct)
}
