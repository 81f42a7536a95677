package builtin

import (
	"context"

	"github.com/stratagem-ai/stratagem/pkg/strategy"
	"github.com/stratagem-ai/stratagem/pkg/tool"
)

// GenerateCodeTool renders runnable backtest code from the current strategy
// plan.
type GenerateCodeTool struct{}

func (t *GenerateCodeTool) Name() string  { return "generate_backtest_code" }
func (t *GenerateCodeTool) Label() string { return "Generate Backtest Code" }

func (t *GenerateCodeTool) Description() string {
	return "Render runnable backtest code for the current strategy plan."
}

func (t *GenerateCodeTool) RequiresApproval() bool { return false }

func (t *GenerateCodeTool) Parameters() tool.ParameterSchema {
	return tool.ParameterSchema{
		Type: "object",
		Properties: map[string]tool.PropertySchema{
			"plan": {
				Type:        "object",
				Description: "Strategy plan to render; defaults to the plan produced earlier in this conversation turn",
			},
		},
	}
}

func (t *GenerateCodeTool) Execute(ctx context.Context, params map[string]any) (*tool.Result, error) {
	plan, ok := planFromParams(params)
	if !ok {
		return tool.Fail("no strategy plan available; call generate_strategy first"), nil
	}

	code, err := strategy.Render(plan)
	if err != nil {
		return tool.Fail("render backtest code: " + err.Error()), nil
	}

	return &tool.Result{
		Success: true,
		Data: map[string]any{
			"language":  code.Language,
			"source":    code.Source,
			"plan_name": code.PlanName,
		},
	}, nil
}
