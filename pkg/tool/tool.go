// Package tool defines the capability contract the planner can invoke and
// the registry that maps tool names to implementations.
package tool

import (
	"context"
	"encoding/json"
)

// ContextKeys merged into every execution payload by the controller.
const (
	ParamUserID         = "__user_id"
	ParamConversationID = "__conversation_id"
	ParamUserMessage    = "__user_message"
	ParamCallID         = "__tool_call_id"
)

// ParameterSchema defines the parameters a tool accepts.
type ParameterSchema struct {
	Type       string                    `json:"type"`
	Properties map[string]PropertySchema `json:"properties"`
	Required   []string                  `json:"required,omitempty"`
}

// PropertySchema defines a single parameter.
type PropertySchema struct {
	Type        string   `json:"type"`
	Description string   `json:"description"`
	Default     any      `json:"default,omitempty"`
	Enum        []string `json:"enum,omitempty"`
}

// Result represents the outcome of a tool execution.
type Result struct {
	Success            bool           `json:"success"`
	Data               map[string]any `json:"data,omitempty"`
	Error              string         `json:"error,omitempty"`
	NeedsClarification bool           `json:"needs_clarification,omitempty"`
	Clarification      string         `json:"clarification,omitempty"`
}

// Clarify builds a needs-clarification result. It is not a failure: the run
// terminates with the question instead of a summary.
func Clarify(question string) *Result {
	return &Result{Success: false, NeedsClarification: true, Clarification: question}
}

// Fail builds an unsuccessful result with an error message.
func Fail(msg string) *Result {
	return &Result{Success: false, Error: msg}
}

// Tool represents a capability the planner can call.
type Tool interface {
	Name() string
	Label() string
	Description() string
	Parameters() ParameterSchema
	RequiresApproval() bool
	Execute(ctx context.Context, params map[string]any) (*Result, error)
}

// ToOpenAIFunction converts a tool to OpenAI function calling format.
func ToOpenAIFunction(t Tool) map[string]any {
	return map[string]any{
		"type": "function",
		"function": map[string]any{
			"name":        t.Name(),
			"description": t.Description(),
			"parameters":  t.Parameters(),
		},
	}
}

// ResultJSON renders a result for the planner transcript.
func ResultJSON(r *Result) string {
	if r == nil {
		return "{}"
	}
	data, err := json.Marshal(r)
	if err != nil {
		return `{"success":false,"error":"unencodable result"}`
	}
	return string(data)
}
