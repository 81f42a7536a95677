package model

import (
	"fmt"
	"strings"
)

// Message represents a chat message exchanged with the planner.
type Message struct {
	Role       string     `json:"role"` // user, assistant, system, tool
	Content    string     `json:"content,omitempty"`
	ToolCalls  []ToolCall `json:"tool_calls,omitempty"`   // For assistant messages with tool calls
	ToolCallID string     `json:"tool_call_id,omitempty"` // For tool response messages
	Name       string     `json:"name,omitempty"`         // Tool name for tool messages
}

// ToolCall represents a function/tool call requested by the planner.
type ToolCall struct {
	ID       string       `json:"id"`
	Type     string       `json:"type"` // Always "function" for now
	Function FunctionCall `json:"function"`
}

// FunctionCall represents the function being called.
type FunctionCall struct {
	Name      string `json:"name"`
	Arguments string `json:"arguments"` // JSON string
}

// ChatRequest represents a request to the chat completion API.
type ChatRequest struct {
	Model       string           `json:"model"`
	Messages    []Message        `json:"messages"`
	Temperature float64          `json:"temperature,omitempty"`
	MaxTokens   int              `json:"max_tokens,omitempty"`
	Tools       []map[string]any `json:"tools,omitempty"`       // OpenAI function definitions
	ToolChoice  string           `json:"tool_choice,omitempty"` // "auto", "none", or specific function
}

// ChatResponse represents a chat completion response.
type ChatResponse struct {
	ID      string   `json:"id"`
	Model   string   `json:"model"`
	Choices []Choice `json:"choices"`
	Usage   Usage    `json:"usage"`
}

// Choice represents a completion choice.
type Choice struct {
	Index        int     `json:"index"`
	Message      Message `json:"message"`
	FinishReason string  `json:"finish_reason"`
}

// Usage represents token usage information.
type Usage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// ErrorResponse represents an API error response body.
type ErrorResponse struct {
	Error ErrorDetail `json:"error"`
}

// ErrorDetail contains error information.
type ErrorDetail struct {
	Message string `json:"message"`
	Type    string `json:"type"`
	Code    string `json:"code"`
}

// APIError represents a structured API error.
type APIError struct {
	StatusCode int
	Message    string
	Type       string
	Code       string
}

func (e *APIError) Error() string {
	if e.Type != "" && e.Code != "" {
		return fmt.Sprintf("HTTP %d: %s (type: %s, code: %s)", e.StatusCode, e.Message, e.Type, e.Code)
	}
	return fmt.Sprintf("HTTP %d: %s", e.StatusCode, e.Message)
}

// IsRateLimitError returns true if this is a rate limit error.
func (e *APIError) IsRateLimitError() bool {
	return e.StatusCode == 429
}

// ExtractThinkingContent splits <think>...</think> reasoning segments from
// visible content. Models that emit reasoning inline use this tag convention;
// the reasoning is surfaced separately and never echoed to the user verbatim.
func ExtractThinkingContent(raw string) (thinking, content string) {
	const open, close = "<think>", "</think>"

	rest := raw
	var thoughts []string
	for {
		start := strings.Index(rest, open)
		if start < 0 {
			break
		}
		end := strings.Index(rest[start:], close)
		if end < 0 {
			// Unterminated think tag: treat the remainder as reasoning.
			thoughts = append(thoughts, strings.TrimSpace(rest[start+len(open):]))
			rest = rest[:start]
			break
		}
		thoughts = append(thoughts, strings.TrimSpace(rest[start+len(open):start+end]))
		rest = rest[:start] + rest[start+end+len(close):]
	}

	return strings.Join(thoughts, "\n"), strings.TrimSpace(rest)
}
