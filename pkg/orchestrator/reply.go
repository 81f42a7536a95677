package orchestrator

import (
	"fmt"
	"strings"

	"github.com/stratagem-ai/stratagem/pkg/model"
)

// Action classifies how a run terminated. Every reply carries exactly one.
type Action string

const (
	ActionCompleted        Action = "completed"
	ActionClarification    Action = "needs_clarification"
	ActionApprovalRejected Action = "approval_rejected"
	ActionApprovalTimedOut Action = "approval_timed_out"
	ActionApprovalFailed   Action = "approval_failed"
	ActionUnknownTool      Action = "unknown_tool"
	ActionToolFailed       Action = "tool_failed"
	ActionPlannerFailed    Action = "planner_failed"
	ActionMaxIterations    Action = "max_iterations"
)

// maxIterationsReply is the fallback when the loop budget runs out and no
// artifacts were produced.
const maxIterationsReply = "I could not finish within the step limit. Please try a simpler or more specific request."

// plannerFailedReply is the apology shown when the planning model cannot be
// reached.
const plannerFailedReply = "I am sorry, I could not reach the planning service just now. Please try again in a moment."

// Reply is the normalized result of one orchestration run.
type Reply struct {
	Content    string           `json:"content"`
	Action     Action           `json:"action"`
	Thinking   string           `json:"thinking,omitempty"`
	Validation *Verdict         `json:"validation,omitempty"`
	ToolCalls  []ToolCallRecord `json:"tool_calls,omitempty"`
	Iterations int              `json:"iterations"`
	Usage      model.Usage      `json:"usage"`
}

// ToolCallRecord captures a single tool invocation for the reply transcript.
type ToolCallRecord struct {
	ID         string `json:"id"`
	Name       string `json:"name"`
	Arguments  string `json:"arguments"`
	Success    bool   `json:"success"`
	Error      string `json:"error,omitempty"`
	DurationMS int64  `json:"duration_ms"`
}

// finalize normalizes a terminal reply: content is trimmed, thinking blocks
// are stripped into their own field, and the validation advisory is appended
// when the validator flagged the strategy. The same state always produces
// the same reply text.
func finalize(reply *Reply, state *RunState) *Reply {
	thinking, content := model.ExtractThinkingContent(reply.Content)
	if thinking != "" && reply.Thinking == "" {
		reply.Thinking = thinking
	}
	reply.Content = strings.TrimSpace(content)

	if reply.Validation == nil {
		reply.Validation = state.Verdict
	}

	if reply.Content == "" {
		if reply.Action == ActionMaxIterations {
			reply.Content = exhaustedSummary(state)
		} else {
			reply.Content = fallbackContent(reply.Action)
		}
	}

	if reply.Validation != nil && !reply.Validation.Passed && reply.Action == ActionCompleted {
		reply.Content += "\n\n" + advisoryNote(reply.Validation)
	}

	reply.ToolCalls = state.Records
	reply.Iterations = state.Iterations
	reply.Usage = state.Usage
	return reply
}

func fallbackContent(action Action) string {
	switch action {
	case ActionMaxIterations:
		return maxIterationsReply
	case ActionApprovalRejected:
		return "The requested action was not approved, so I stopped here."
	case ActionApprovalTimedOut:
		return "The approval request expired before anyone decided, so I stopped here."
	default:
		return "Done."
	}
}

// artifactSummary reports whatever the run managed to produce, or "" when
// nothing was.
func artifactSummary(state *RunState) string {
	var parts []string
	if state.Plan != nil {
		parts = append(parts, fmt.Sprintf("I drafted the strategy %q for %s on the %s timeframe.", state.Plan.Name, state.Plan.Symbol, state.Plan.Timeframe))
	}
	if state.Verdict != nil {
		parts = append(parts, fmt.Sprintf("A quick validation backtest produced %d trade(s) with a %.2f%% return.", state.Verdict.Trades, state.Verdict.ReturnPct))
	}
	if state.SavedID != "" {
		parts = append(parts, fmt.Sprintf("The strategy was saved with id %s.", state.SavedID))
	}
	return strings.Join(parts, " ")
}

// exhaustedSummary is the best-effort reply when the iteration budget ran
// out.
func exhaustedSummary(state *RunState) string {
	if summary := artifactSummary(state); summary != "" {
		return "I ran out of steps before finishing. " + summary
	}
	return maxIterationsReply
}

func advisoryNote(v *Verdict) string {
	if v.Trades < v.MinTrades {
		return fmt.Sprintf("Note: a quick validation backtest produced only %d trade(s); results with fewer than %d trades are not statistically meaningful.", v.Trades, v.MinTrades)
	}
	return fmt.Sprintf("Note: a quick validation backtest was unprofitable (%.2f%% return). Consider revisiting the strategy parameters.", v.ReturnPct)
}
