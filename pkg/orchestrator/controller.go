// Package orchestrator runs the bounded planning loop between the model and
// the tool registry: plan, act, observe, until the model answers in plain
// text or the iteration budget runs out.
package orchestrator

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/stratagem-ai/stratagem/pkg/approval"
	"github.com/stratagem-ai/stratagem/pkg/logging"
	"github.com/stratagem-ai/stratagem/pkg/marketdata"
	"github.com/stratagem-ai/stratagem/pkg/model"
	"github.com/stratagem-ai/stratagem/pkg/storage"
	"github.com/stratagem-ai/stratagem/pkg/telemetry"
	"github.com/stratagem-ai/stratagem/pkg/tool"
)

const (
	defaultMaxIterations = 6
	defaultHistoryTurns  = 20
)

const systemPrompt = `You are a trading strategy assistant. You help users design, backtest, and save trading strategies using the available tools.

Call tools when the user's request needs them. Work step by step: generate a strategy before backtesting it, and backtest before saving. When you have what you need, answer the user directly in plain text.`

// ModelClient is the planner interface the controller drives.
type ModelClient interface {
	ChatCompletion(ctx context.Context, req model.ChatRequest) (*model.ChatResponse, error)
}

// Config wires a Controller.
type Config struct {
	Models        ModelClient
	Model         string
	Registry      *tool.Registry
	Gate          *approval.Gate
	Store         *storage.Store
	Cache         *MarketCache
	Validator     Validator
	Notifier      *Notifier
	Logger        *logging.Logger
	MaxIterations int
	HistoryTurns  int
}

// Request is one user turn handed to the controller.
type Request struct {
	ConversationID string
	UserID         string
	Message        string
}

// Controller owns the plan/act/observe loop. One Controller serves many
// concurrent conversations; per-run state lives in RunState.
type Controller struct {
	cfg    Config
	logger *logging.Logger
}

// New creates a Controller from config.
func New(cfg Config) (*Controller, error) {
	if cfg.Models == nil {
		return nil, fmt.Errorf("orchestrator needs a model client")
	}
	if cfg.Registry == nil {
		return nil, fmt.Errorf("orchestrator needs a tool registry")
	}
	if cfg.MaxIterations <= 0 {
		cfg.MaxIterations = defaultMaxIterations
	}
	if cfg.HistoryTurns <= 0 {
		cfg.HistoryTurns = defaultHistoryTurns
	}
	if cfg.Logger == nil {
		cfg.Logger = logging.Nop()
	}
	if cfg.Notifier == nil {
		cfg.Notifier = &Notifier{}
	}
	return &Controller{cfg: cfg, logger: cfg.Logger}, nil
}

// Run executes one user turn to a terminal reply.
func (c *Controller) Run(ctx context.Context, req Request) (*Reply, error) {
	if strings.TrimSpace(req.Message) == "" {
		return nil, fmt.Errorf("empty message")
	}
	if req.ConversationID == "" {
		return nil, fmt.Errorf("conversation id is required")
	}

	started := time.Now()
	logger := c.logger.WithConversation(req.ConversationID)

	state := &RunState{
		ConversationID: req.ConversationID,
		UserID:         req.UserID,
		UserMessage:    req.Message,
	}
	state.Messages = c.initialMessages(req)

	c.cfg.Notifier.event(telemetry.EventRunStarted, req.ConversationID, "", map[string]any{
		"user_id": req.UserID,
	})
	logger.Info(logging.CategoryOrchestrator, "run_started", "", map[string]any{"user_id": req.UserID})

	c.appendTurn(req.ConversationID, "user", req.Message)

	reply, err := c.loop(ctx, state)
	if err != nil {
		c.cfg.Notifier.event(telemetry.EventRunCompleted, req.ConversationID, "", map[string]any{
			"error": err.Error(),
		})
		logger.Error(logging.CategoryOrchestrator, "run_failed", err.Error(), nil)
		return nil, err
	}

	reply = finalize(reply, state)
	c.appendTurn(req.ConversationID, "assistant", reply.Content)

	telemetry.RecordRun(string(reply.Action), time.Since(started))
	c.cfg.Notifier.event(telemetry.EventRunCompleted, req.ConversationID, "", map[string]any{
		"action":     string(reply.Action),
		"iterations": reply.Iterations,
	})
	logger.Info(logging.CategoryOrchestrator, "run_completed", "", map[string]any{
		"action":     string(reply.Action),
		"iterations": reply.Iterations,
	})
	return reply, nil
}

// loop is the bounded plan/act/observe cycle. It returns a reply for every
// terminal outcome except context cancellation, which surfaces as an error.
func (c *Controller) loop(ctx context.Context, state *RunState) (*Reply, error) {
	toolDefs := c.cfg.Registry.ToOpenAIFunctions()

	for iteration := 0; iteration < c.cfg.MaxIterations; iteration++ {
		state.Iterations = iteration + 1

		if err := ctx.Err(); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrRunCancelled, err)
		}

		msg, finishReason, err := c.plan(ctx, state, toolDefs)
		if err != nil {
			c.logger.WithConversation(state.ConversationID).Error(logging.CategoryPlanner, "planner_failed", err.Error(), nil)
			return &Reply{Content: plannerFailedReply, Action: ActionPlannerFailed}, nil
		}

		if len(msg.ToolCalls) == 0 {
			if strings.TrimSpace(msg.Content) == "" {
				if finishReason == "stop" {
					// The planner signalled it is done without saying
					// anything; fall back to whatever the run produced.
					return &Reply{Content: artifactSummary(state), Action: ActionCompleted}, nil
				}
				// An empty round makes no progress but is not an error;
				// the next round gets another chance.
				continue
			}
			return &Reply{Content: msg.Content, Action: ActionCompleted}, nil
		}

		state.Messages = append(state.Messages, model.Message{
			Role:      "assistant",
			Content:   msg.Content,
			ToolCalls: msg.ToolCalls,
		})

		for _, call := range msg.ToolCalls {
			reply, observation, err := c.dispatch(ctx, state, call)
			if err != nil {
				return nil, err
			}
			if reply != nil {
				return reply, nil
			}
			state.Messages = append(state.Messages, model.Message{
				Role:       "tool",
				ToolCallID: call.ID,
				Name:       call.Function.Name,
				Content:    observation,
			})
		}
	}

	return &Reply{Action: ActionMaxIterations}, nil
}

// plan makes one planner call and returns the assistant message with its
// finish reason.
func (c *Controller) plan(ctx context.Context, state *RunState, toolDefs []map[string]any) (*model.Message, string, error) {
	c.cfg.Notifier.event(telemetry.EventPlannerCalled, state.ConversationID, "", map[string]any{
		"iteration": state.Iterations,
	})
	telemetry.RecordPlannerRequest(c.cfg.Model)

	req := model.ChatRequest{
		Model:    c.cfg.Model,
		Messages: state.Messages,
		Tools:    toolDefs,
	}
	if len(toolDefs) > 0 {
		req.ToolChoice = "auto"
	}

	resp, err := c.cfg.Models.ChatCompletion(ctx, req)
	if err != nil {
		c.cfg.Notifier.event(telemetry.EventPlannerFailed, state.ConversationID, "", map[string]any{
			"error": err.Error(),
		})
		return nil, "", err
	}
	if len(resp.Choices) == 0 {
		return nil, "", fmt.Errorf("planner returned no choices")
	}

	state.Usage.PromptTokens += resp.Usage.PromptTokens
	state.Usage.CompletionTokens += resp.Usage.CompletionTokens
	state.Usage.TotalTokens += resp.Usage.TotalTokens

	choice := resp.Choices[0]
	msg := choice.Message
	for i := range msg.ToolCalls {
		if msg.ToolCalls[i].ID == "" {
			msg.ToolCalls[i].ID = fmt.Sprintf("call-%d-%d", state.Iterations, i+1)
		}
	}
	return &msg, choice.FinishReason, nil
}

// dispatch handles one planned tool call. It returns a terminal reply, or
// an observation string to feed back to the planner, or an error.
func (c *Controller) dispatch(ctx context.Context, state *RunState, call model.ToolCall) (*Reply, string, error) {
	name := call.Function.Name
	logger := c.logger.WithConversation(state.ConversationID)

	t, ok := c.cfg.Registry.Get(name)
	if !ok {
		// A hallucinated tool name will not fix itself by looping.
		err := &UnknownToolError{Tool: name}
		c.cfg.Notifier.event(telemetry.EventToolFailed, state.ConversationID, call.ID, map[string]any{
			"tool": name, "error": err.Error(),
		})
		logger.Error(logging.CategoryTool, "unknown_tool", err.Error(), nil)
		state.Records = append(state.Records, ToolCallRecord{
			ID: call.ID, Name: name, Arguments: call.Function.Arguments, Error: err.Error(),
		})
		return &Reply{
			Content: fmt.Sprintf("I tried to use a capability (%s) that is not available, so I stopped here.", name),
			Action:  ActionUnknownTool,
		}, "", nil
	}

	args := map[string]any{}
	if raw := strings.TrimSpace(call.Function.Arguments); raw != "" {
		if err := json.Unmarshal([]byte(raw), &args); err != nil {
			// Degrades to an empty-argument object; unlike an unknown
			// tool, the call itself is still worth attempting.
			logger.Warn(logging.CategoryTool, "malformed_arguments", err.Error(), map[string]any{"tool": name})
			args = map[string]any{}
		}
	}

	if t.RequiresApproval() {
		if reply, err := c.awaitApproval(ctx, state, t, call, args); err != nil || reply != nil {
			return reply, "", err
		}
	}

	if marketDataConsumers[name] && !c.snapshotCovers(state) {
		if reply, err := c.injectMarketData(ctx, state, call.ID); err != nil || reply != nil {
			return reply, "", err
		}
	}

	result, record := c.execute(ctx, state, t, call.ID, args)
	state.Records = append(state.Records, record)

	if result.NeedsClarification {
		return &Reply{Content: result.Clarification, Action: ActionClarification}, "", nil
	}
	if !result.Success {
		logger.Error(logging.CategoryTool, "tool_failed", result.Error, map[string]any{"tool": name})
		return &Reply{
			Content: fmt.Sprintf("The %s step failed (%s), so I stopped here.", name, result.Error),
			Action:  ActionToolFailed,
		}, "", nil
	}

	state.apply(name, result)

	observation := tool.ResultJSON(result)
	if name == "generate_backtest_code" {
		if report := c.validateGenerated(state, call.ID); report != "" {
			observation += "\n" + report
		}
	}

	return nil, observation, nil
}

// execute runs one tool with telemetry and timing. Execution errors are
// folded into failed results so the caller has one failure shape to handle.
func (c *Controller) execute(ctx context.Context, state *RunState, t tool.Tool, callID string, args map[string]any) (*tool.Result, ToolCallRecord) {
	name := t.Name()
	payload := state.payload(args, callID)

	c.cfg.Notifier.event(telemetry.EventToolStarted, state.ConversationID, callID, map[string]any{"tool": name})
	telemetry.RecordToolCall(name)

	started := time.Now()
	result, err := t.Execute(ctx, payload)
	elapsed := time.Since(started)
	telemetry.RecordToolDuration(name, elapsed)

	if err != nil {
		result = tool.Fail(err.Error())
	}
	if result == nil {
		result = tool.Fail("tool returned no result")
	}

	record := ToolCallRecord{
		ID:         callID,
		Name:       name,
		Success:    result.Success,
		Error:      result.Error,
		DurationMS: elapsed.Milliseconds(),
	}
	if raw, err := json.Marshal(args); err == nil {
		record.Arguments = string(raw)
	}

	eventType := telemetry.EventToolCompleted
	if !result.Success && !result.NeedsClarification {
		eventType = telemetry.EventToolFailed
	}
	c.cfg.Notifier.event(eventType, state.ConversationID, callID, map[string]any{
		"tool":        name,
		"duration_ms": elapsed.Milliseconds(),
	})
	return result, record
}

// snapshotCovers reports whether the run's snapshot matches the requested
// market scope and is still inside the freshness TTL. A plan that switched
// symbol or timeframe mid-run invalidates the snapshot.
func (c *Controller) snapshotCovers(state *RunState) bool {
	snap := state.Snapshot
	if snap == nil || len(snap.Candles) == 0 {
		return false
	}
	symbol, timeframe := state.marketScope()
	if symbol != "" && snap.Key() != marketdata.CacheKey(symbol, timeframe) {
		return false
	}
	return c.cfg.Cache.Fresh(snap.FetchedAt)
}

// injectMarketData satisfies a tool's candle prerequisite before it runs:
// fresh cache entries are reused, otherwise fetch_market_data is triggered
// as if the planner had asked for it.
func (c *Controller) injectMarketData(ctx context.Context, state *RunState, callID string) (*Reply, error) {
	symbol, timeframe := state.marketScope()
	if symbol == "" {
		return nil, nil
	}

	if snap, ok := c.cfg.Cache.Get(symbol, timeframe); ok {
		state.Snapshot = snap
		return nil, nil
	}

	fetcher, ok := c.cfg.Registry.Get("fetch_market_data")
	if !ok {
		return nil, nil
	}

	c.cfg.Notifier.event(telemetry.EventToolAutoTriggered, state.ConversationID, callID, map[string]any{
		"tool":      fetcher.Name(),
		"symbol":    symbol,
		"timeframe": timeframe,
	})
	c.logger.WithConversation(state.ConversationID).Info(logging.CategoryMarket, "prerequisite_fetch", "", map[string]any{
		"symbol": symbol, "timeframe": timeframe,
	})

	result, record := c.execute(ctx, state, fetcher, callID+"-prereq", map[string]any{
		"symbol":    symbol,
		"timeframe": timeframe,
	})
	state.Records = append(state.Records, record)

	if result.Success {
		state.apply(fetcher.Name(), result)
		c.cfg.Cache.Put(state.Snapshot)
		if summary := snapshotSummary(state.Snapshot); summary != "" {
			state.Messages = append(state.Messages, model.Message{Role: "system", Content: summary})
		}
	}
	// A failed fetch is not terminal; the consumer falls back to
	// synthetic candles.
	return nil, nil
}

// snapshotSummary renders fetched supporting data for the planner.
func snapshotSummary(snap *marketdata.Snapshot) string {
	if snap == nil || len(snap.Candles) == 0 {
		return ""
	}
	last := snap.Candles[len(snap.Candles)-1]
	return fmt.Sprintf("Market data for %s %s was fetched automatically: %d candles, last close %.4f.",
		snap.Symbol, snap.Timeframe, len(snap.Candles), last.Close)
}

// awaitApproval suspends the run until the gate resolves. Rejection and
// timeout both terminate the run, with distinct actions.
func (c *Controller) awaitApproval(ctx context.Context, state *RunState, t tool.Tool, call model.ToolCall, args map[string]any) (*Reply, error) {
	if c.cfg.Gate == nil {
		return nil, nil
	}

	req := approval.Request{
		CallID:         call.ID,
		ConversationID: state.ConversationID,
		UserID:         state.UserID,
		ToolName:       t.Name(),
		ToolLabel:      t.Label(),
		Params:         args,
		RequestedAt:    time.Now(),
	}

	c.cfg.Notifier.event(telemetry.EventApprovalRequested, state.ConversationID, call.ID, map[string]any{
		"tool": t.Name(),
	})

	decision, err := c.cfg.Gate.Submit(ctx, req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, fmt.Errorf("%w: %v", ErrRunCancelled, err)
		}
		// A gate failure that is not a cancellation, such as a duplicate
		// call id, ends the run with its own failure class.
		c.logger.WithConversation(state.ConversationID).Error(logging.CategoryApproval, "approval_workflow_failed", err.Error(), map[string]any{"tool": t.Name()})
		state.Records = append(state.Records, ToolCallRecord{
			ID: call.ID, Name: t.Name(), Error: err.Error(),
		})
		return &Reply{
			Content: "Something went wrong while requesting approval, so I stopped here.",
			Action:  ActionApprovalFailed,
		}, nil
	}

	telemetry.RecordApproval(string(decision.Status))

	switch decision.Status {
	case approval.StatusApproved:
		// Operator overrides replace the planner's arguments key by key.
		for k, v := range decision.Overrides {
			args[k] = v
		}
		c.cfg.Notifier.event(telemetry.EventApprovalResolved, state.ConversationID, call.ID, map[string]any{
			"status": string(decision.Status), "decided_by": decision.DecidedBy,
		})
		return nil, nil
	case approval.StatusTimedOut:
		c.cfg.Notifier.event(telemetry.EventApprovalTimedOut, state.ConversationID, call.ID, nil)
		state.Records = append(state.Records, ToolCallRecord{
			ID: call.ID, Name: t.Name(), Error: "approval timed out",
		})
		return &Reply{Action: ActionApprovalTimedOut}, nil
	default:
		c.cfg.Notifier.event(telemetry.EventApprovalResolved, state.ConversationID, call.ID, map[string]any{
			"status": string(decision.Status), "decided_by": decision.DecidedBy,
		})
		state.Records = append(state.Records, ToolCallRecord{
			ID: call.ID, Name: t.Name(), Error: "approval rejected",
		})
		// Operator feedback, when given, is the reply verbatim.
		content := decision.Reason
		if content == "" {
			content = "The requested action was not approved, so I stopped here."
		}
		return &Reply{Content: content, Action: ActionApprovalRejected}, nil
	}
}

// validateGenerated runs the advisory backtest after code generation, at
// most once per run. The guard is set before validating so a failed
// validator never retries, and the guard resets when a new plan replaces
// the current one. It returns a compact report for the planner transcript.
func (c *Controller) validateGenerated(state *RunState, callID string) string {
	if state.Validated || c.cfg.Validator.Disabled || state.Plan == nil {
		return ""
	}
	state.Validated = true

	c.cfg.Notifier.event(telemetry.EventValidatorStarted, state.ConversationID, callID, nil)

	verdict, err := c.cfg.Validator.Validate(*state.Plan, state.Snapshot)
	if err != nil {
		c.logger.WithConversation(state.ConversationID).Warn(logging.CategoryOrchestrator, "validation_failed", err.Error(), nil)
		c.cfg.Notifier.event(telemetry.EventValidatorFinished, state.ConversationID, callID, map[string]any{
			"error": err.Error(),
		})
		return ""
	}

	state.Verdict = verdict
	c.cfg.Notifier.event(telemetry.EventValidatorFinished, state.ConversationID, callID, map[string]any{
		"passed": verdict.Passed,
		"trades": verdict.Trades,
	})
	return verdict.report()
}

// initialMessages builds the planner transcript: system prompt, recent
// persisted history, then the new user message.
func (c *Controller) initialMessages(req Request) []model.Message {
	messages := []model.Message{{Role: "system", Content: systemPrompt}}
	if c.cfg.Store != nil {
		history, err := c.cfg.Store.History(req.ConversationID, c.cfg.HistoryTurns)
		if err != nil {
			c.logger.Warn(logging.CategoryStorage, "history_load_failed", err.Error(), nil)
		} else {
			messages = append(messages, history...)
		}
	}
	return append(messages, model.Message{Role: "user", Content: req.Message})
}

func (c *Controller) appendTurn(conversationID, role, content string) {
	if c.cfg.Store == nil || content == "" {
		return
	}
	if err := c.cfg.Store.AppendTurn(conversationID, role, content); err != nil {
		c.logger.Warn(logging.CategoryStorage, "append_turn_failed", err.Error(), nil)
	}
}

// marketScope resolves which symbol and timeframe a prerequisite fetch
// should target, preferring the working plan.
func (s *RunState) marketScope() (symbol, timeframe string) {
	if s.Plan != nil {
		return s.Plan.Symbol, s.Plan.Timeframe
	}
	return "", ""
}
