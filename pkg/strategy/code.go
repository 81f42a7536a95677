package strategy

import (
	"fmt"
	"strings"
	"text/template"
)

// Code is the derived executable form of a plan: a standalone script that a
// backtest runner can execute against a candle series.
type Code struct {
	Language string `json:"language"`
	Source   string `json:"source"`
	PlanName string `json:"plan_name"`
}

var codeTemplate = template.Must(template.New("strategy").Parse(`# {{.Name}}
# Auto-generated strategy for {{.Symbol}} ({{.Timeframe}})

SYMBOL = "{{.Symbol}}"
TIMEFRAME = "{{.Timeframe}}"
FAST_PERIOD = {{.FastPeriod}}
SLOW_PERIOD = {{.SlowPeriod}}
STOP_LOSS_PCT = {{printf "%.2f" .StopLossPct}}
TAKE_PROFIT_PCT = {{printf "%.2f" .TakeProfitPct}}
CAPITAL = {{printf "%.2f" .Capital}}
FEE_PCT = {{printf "%.3f" .FeePct}}


def signal(closes):
    if len(closes) < SLOW_PERIOD + 1:
        return "hold"
    fast = sum(closes[-FAST_PERIOD:]) / FAST_PERIOD
    slow = sum(closes[-SLOW_PERIOD:]) / SLOW_PERIOD
    prev_fast = sum(closes[-FAST_PERIOD-1:-1]) / FAST_PERIOD
    prev_slow = sum(closes[-SLOW_PERIOD-1:-1]) / SLOW_PERIOD
    if prev_fast <= prev_slow and fast > slow:
        return "buy"  # {{.EntryRule}}
    if prev_fast >= prev_slow and fast < slow:
        return "sell"  # {{.ExitRule}}
    return "hold"
`))

// Render produces executable strategy code from a normalized plan.
func Render(p Plan) (Code, error) {
	p = Normalize(p)
	var buf strings.Builder
	if err := codeTemplate.Execute(&buf, p); err != nil {
		return Code{}, fmt.Errorf("render strategy code: %w", err)
	}
	return Code{
		Language: "python",
		Source:   buf.String(),
		PlanName: p.Name,
	}, nil
}
