package orchestrator

import (
	"github.com/stratagem-ai/stratagem/pkg/marketdata"
	"github.com/stratagem-ai/stratagem/pkg/model"
	"github.com/stratagem-ai/stratagem/pkg/strategy"
	"github.com/stratagem-ai/stratagem/pkg/tool"
	"github.com/stratagem-ai/stratagem/pkg/tool/builtin"
)

// RunState accumulates everything one run produces: the planner transcript,
// the artifacts tools emitted, and the call records for the final reply.
// It is owned by a single run goroutine and never shared.
type RunState struct {
	ConversationID string
	UserID         string
	UserMessage    string

	Messages []model.Message

	Plan     *strategy.Plan
	Code     *strategy.Code
	Snapshot *marketdata.Snapshot
	SavedID  string

	// Validated guards the post-codegen validation backtest. It is set when
	// validation runs, whether or not the validator succeeded, and resets
	// when a new plan replaces the current one.
	Validated bool
	Verdict   *Verdict

	Iterations int
	Records    []ToolCallRecord
	Usage      model.Usage
}

// reducer folds a successful tool result into the run state.
type reducer func(state *RunState, data map[string]any)

// reducers maps tool names to their state updates. Tools without an entry
// leave the state untouched.
var reducers = map[string]reducer{
	"generate_strategy": func(state *RunState, data map[string]any) {
		raw, ok := data["plan"].(map[string]any)
		if !ok {
			return
		}
		p, err := strategy.FromMap(raw)
		if err != nil {
			return
		}
		p = strategy.Normalize(p)
		state.Plan = &p
		state.Validated = false
		state.Verdict = nil
	},
	"generate_backtest_code": func(state *RunState, data map[string]any) {
		src, _ := data["source"].(string)
		if src == "" {
			return
		}
		lang, _ := data["language"].(string)
		name, _ := data["plan_name"].(string)
		state.Code = &strategy.Code{Language: lang, Source: src, PlanName: name}
	},
	"fetch_market_data": func(state *RunState, data map[string]any) {
		if snap, ok := data["snapshot"].(*marketdata.Snapshot); ok && snap != nil {
			state.Snapshot = snap
		}
	},
	"save_strategy": func(state *RunState, data map[string]any) {
		if id, ok := data["strategy_id"].(string); ok {
			state.SavedID = id
		}
	},
}

// apply folds a tool result into the state via the reducer table.
func (s *RunState) apply(toolName string, result *tool.Result) {
	if result == nil || !result.Success {
		return
	}
	if r, ok := reducers[toolName]; ok {
		r(s, result.Data)
	}
}

// payload builds the execution payload for a tool call: planner arguments
// merged with run context and shared artifacts. Planner arguments cannot
// collide with the reserved keys.
func (s *RunState) payload(args map[string]any, callID string) map[string]any {
	merged := make(map[string]any, len(args)+7)
	for k, v := range args {
		merged[k] = v
	}
	merged[tool.ParamUserID] = s.UserID
	merged[tool.ParamConversationID] = s.ConversationID
	merged[tool.ParamUserMessage] = s.UserMessage
	merged[tool.ParamCallID] = callID
	if s.Plan != nil {
		merged[builtin.PayloadPlan] = *s.Plan
	}
	if s.Code != nil {
		merged[builtin.PayloadCode] = *s.Code
	}
	if s.Snapshot != nil {
		merged[builtin.PayloadSnapshot] = s.Snapshot
	}
	return merged
}
