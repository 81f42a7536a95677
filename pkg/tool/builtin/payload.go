package builtin

import (
	"github.com/stratagem-ai/stratagem/pkg/marketdata"
	"github.com/stratagem-ai/stratagem/pkg/strategy"
)

// Payload keys under which the controller shares run-scoped artifacts with
// tools. Planner-supplied arguments never use these names; the double
// underscore prefix keeps the two namespaces apart.
const (
	PayloadPlan     = "__plan"
	PayloadCode     = "__code"
	PayloadSnapshot = "__snapshot"
)

// planFromParams resolves the working strategy plan for a tool call. A plan
// passed explicitly by the planner under "plan" wins over the run artifact.
func planFromParams(params map[string]any) (strategy.Plan, bool) {
	if raw, ok := params["plan"].(map[string]any); ok {
		if p, err := strategy.FromMap(raw); err == nil && p.Symbol != "" {
			return strategy.Normalize(p), true
		}
	}
	if p, ok := params[PayloadPlan].(strategy.Plan); ok && p.Symbol != "" {
		return p, true
	}
	return strategy.Plan{}, false
}

// snapshotFromParams resolves the market data snapshot shared by the run.
func snapshotFromParams(params map[string]any) (*marketdata.Snapshot, bool) {
	snap, ok := params[PayloadSnapshot].(*marketdata.Snapshot)
	if !ok || snap == nil || len(snap.Candles) == 0 {
		return nil, false
	}
	return snap, true
}

// codeFromParams resolves generated strategy code shared by the run.
func codeFromParams(params map[string]any) (strategy.Code, bool) {
	if c, ok := params[PayloadCode].(strategy.Code); ok && c.Source != "" {
		return c, true
	}
	return strategy.Code{}, false
}
