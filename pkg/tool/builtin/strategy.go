// Package builtin provides the built-in strategy tools the planner can call.
package builtin

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"strings"

	"github.com/stratagem-ai/stratagem/pkg/model"
	"github.com/stratagem-ai/stratagem/pkg/strategy"
	"github.com/stratagem-ai/stratagem/pkg/tool"
)

// PlannerClient is the completion capability strategy generation may use.
type PlannerClient interface {
	ChatCompletion(ctx context.Context, req model.ChatRequest) (*model.ChatResponse, error)
}

var symbolPattern = regexp.MustCompile(`\b[A-Z]{2,10}(?:USDT|USDC|USD|EUR|BTC)\b`)

// GenerateStrategyTool produces a structured strategy plan. When a planner
// client is configured the plan is drafted by the model; otherwise a
// crossover template seeded from the request is used.
type GenerateStrategyTool struct {
	Client PlannerClient
	Model  string
}

func (t *GenerateStrategyTool) Name() string  { return "generate_strategy" }
func (t *GenerateStrategyTool) Label() string { return "Generate Strategy" }

func (t *GenerateStrategyTool) Description() string {
	return "Generate a structured trading strategy plan (entry/exit rules, risk parameters) for a symbol and timeframe."
}

func (t *GenerateStrategyTool) RequiresApproval() bool { return false }

func (t *GenerateStrategyTool) Parameters() tool.ParameterSchema {
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
			"risk": {
				Type:        "string",
				Description: "Risk appetite shaping stop-loss/take-profit defaults",
				Enum:        []string{"conservative", "balanced", "aggressive"},
			},
			"name": {
				Type:        "string",
				Description: "Optional strategy name",
			},
		},
		Required: []string{"symbol"},
	}
}

func (t *GenerateStrategyTool) Execute(ctx context.Context, params map[string]any) (*tool.Result, error) {
	symbol := stringParam(params, "symbol")
	if symbol == "" {
		// Fall back to scanning the originating user message.
		msg := stringParam(params, tool.ParamUserMessage)
		symbol = symbolPattern.FindString(strings.ToUpper(msg))
	}
	if symbol == "" {
		return tool.Clarify("Which trading pair should the strategy target? For example BTCUSDT or ETHUSDT."), nil
	}

	plan := strategy.Plan{
		Name:      stringParam(params, "name"),
		Symbol:    symbol,
		Timeframe: stringParam(params, "timeframe"),
	}
	applyRisk(&plan, stringParam(params, "risk"))

	if t.Client != nil {
		if drafted, err := t.draftWithModel(ctx, params, plan); err == nil {
			plan = drafted
		}
		// Model drafting is opportunistic; the template plan stands in on failure.
	}

	plan = strategy.Normalize(plan)
	return &tool.Result{
		Success: true,
		Data: map[string]any{
			"plan":    plan.ToMap(),
			"summary": plan.Summary(),
		},
	}, nil
}

func (t *GenerateStrategyTool) draftWithModel(ctx context.Context, params map[string]any, seed strategy.Plan) (strategy.Plan, error) {
	prompt := fmt.Sprintf(`Draft a trading strategy plan as a single JSON object with keys:
name, symbol, timeframe, entry_rule, exit_rule, fast_period, slow_period, stop_loss_pct, take_profit_pct.
Symbol: %s. Timeframe: %s. User request: %s
Respond with JSON only.`, seed.Symbol, seed.Timeframe, stringParam(params, tool.ParamUserMessage))

	resp, err := t.Client.ChatCompletion(ctx, model.ChatRequest{
		Model:     t.Model,
		Messages:  []model.Message{{Role: "user", Content: prompt}},
		MaxTokens: 600,
	})
	if err != nil {
		return seed, err
	}
	if len(resp.Choices) == 0 {
		return seed, fmt.Errorf("model returned no choices")
	}

	content := resp.Choices[0].Message.Content
	start := strings.Index(content, "{")
	end := strings.LastIndex(content, "}")
	if start < 0 || end <= start {
		return seed, fmt.Errorf("no JSON object in model output")
	}

	var drafted strategy.Plan
	if err := json.Unmarshal([]byte(content[start:end+1]), &drafted); err != nil {
		return seed, fmt.Errorf("decode drafted plan: %w", err)
	}
	if drafted.Symbol == "" {
		drafted.Symbol = seed.Symbol
	}
	if drafted.Timeframe == "" {
		drafted.Timeframe = seed.Timeframe
	}
	return drafted, nil
}

func applyRisk(p *strategy.Plan, risk string) {
	switch risk {
	case "conservative":
		p.StopLossPct = 1.0
		p.TakeProfitPct = 2.0
	case "aggressive":
		p.StopLossPct = 3.0
		p.TakeProfitPct = 9.0
	case "balanced":
		p.StopLossPct = 2.0
		p.TakeProfitPct = 4.0
	}
}

func stringParam(params map[string]any, key string) string {
	if params == nil {
		return ""
	}
	if v, ok := params[key].(string); ok {
		return strings.TrimSpace(v)
	}
	return ""
}

func intParam(params map[string]any, key string) int {
	if params == nil {
		return 0
	}
	switch v := params[key].(type) {
	case float64:
		return int(v)
	case int:
		return v
	}
	return 0
}
