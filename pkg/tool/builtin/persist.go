package builtin

import (
	"context"
	"crypto/rand"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/stratagem-ai/stratagem/pkg/storage"
	"github.com/stratagem-ai/stratagem/pkg/strategy"
	"github.com/stratagem-ai/stratagem/pkg/tool"
)

// SaveStrategyTool persists the current strategy plan and code. Saving is a
// side-effecting action and therefore requires approval.
type SaveStrategyTool struct {
	Store *storage.Store
}

func (t *SaveStrategyTool) Name() string  { return "save_strategy" }
func (t *SaveStrategyTool) Label() string { return "Save Strategy" }

func (t *SaveStrategyTool) Description() string {
	return "Persist the current strategy plan and generated code under the user's account."
}

func (t *SaveStrategyTool) RequiresApproval() bool { return true }

func (t *SaveStrategyTool) Parameters() tool.ParameterSchema {
	return tool.ParameterSchema{
		Type: "object",
		Properties: map[string]tool.PropertySchema{
			"name": {
				Type:        "string",
				Description: "Name to save the strategy under; defaults to the plan name",
			},
		},
	}
}

func (t *SaveStrategyTool) Execute(ctx context.Context, params map[string]any) (*tool.Result, error) {
	if t.Store == nil {
		return tool.Fail("strategy storage is not configured"), nil
	}

	plan, ok := planFromParams(params)
	if !ok {
		return tool.Fail("no strategy plan available; call generate_strategy first"), nil
	}
	if name := stringParam(params, "name"); name != "" {
		plan.Name = name
	}

	code, haveCode := codeFromParams(params)
	if !haveCode {
		rendered, err := strategy.Render(plan)
		if err != nil {
			return tool.Fail("render strategy code: " + err.Error()), nil
		}
		code = rendered
	}

	id := ulid.MustNew(ulid.Timestamp(time.Now()), rand.Reader).String()
	saved, err := t.Store.SaveStrategy(id, stringParam(params, tool.ParamUserID), plan, code)
	if err != nil {
		return tool.Fail("save strategy: " + err.Error()), nil
	}

	return &tool.Result{
		Success: true,
		Data: map[string]any{
			"strategy_id": saved.ID,
			"name":        saved.Name,
			"symbol":      saved.Symbol,
			"timeframe":   saved.Timeframe,
			"created_at":  saved.CreatedAt.Format(time.RFC3339),
		},
	}, nil
}
