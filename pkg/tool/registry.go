package tool

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/stratagem-ai/stratagem/pkg/logging"
)

// Registry manages all available tools. It is written only at process
// start; afterwards it is a read-mostly shared structure safe for
// concurrent runs.
type Registry struct {
	mu     sync.RWMutex
	tools  map[string]Tool
	logger *logging.Logger
}

// NewRegistry creates an empty tool registry.
func NewRegistry(logger *logging.Logger) *Registry {
	return &Registry{
		tools:  make(map[string]Tool),
		logger: logger,
	}
}

// Register registers a tool. Registering a name twice overwrites the
// earlier entry; the overwrite is logged so test-time re-registration stays
// possible without masking accidental collisions in production wiring.
func (r *Registry) Register(t Tool) {
	if r == nil || t == nil {
		return
	}
	name := strings.TrimSpace(t.Name())
	if name == "" {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.tools[name]; exists {
		r.logger.Warn(logging.CategoryTool, "tool_overwritten",
			"duplicate tool registration overwrites earlier entry",
			map[string]any{"tool": name})
	}
	r.tools[name] = t
}

// Get returns a tool by name.
func (r *Registry) Get(name string) (Tool, bool) {
	if r == nil {
		return nil, false
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.tools[name]
	return t, ok
}

// List returns all registered tools in name order.
func (r *Registry) List() []Tool {
	if r == nil {
		return nil
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	tools := make([]Tool, 0, len(r.tools))
	for _, t := range r.tools {
		tools = append(tools, t)
	}
	sort.Slice(tools, func(i, j int) bool { return tools[i].Name() < tools[j].Name() })
	return tools
}

// Count returns the number of registered tools.
func (r *Registry) Count() int {
	if r == nil {
		return 0
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.tools)
}

// Execute runs a tool by name.
func (r *Registry) Execute(ctx context.Context, name string, params map[string]any) (*Result, error) {
	if name == "" {
		return nil, fmt.Errorf("tool name cannot be empty")
	}
	t, ok := r.Get(name)
	if !ok {
		return nil, fmt.Errorf("tool not found: %s", name)
	}
	if ctx == nil {
		ctx = context.Background()
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if params == nil {
		params = map[string]any{}
	}
	return t.Execute(ctx, params)
}

// ToOpenAIFunctions converts all tools to OpenAI function calling format.
func (r *Registry) ToOpenAIFunctions() []map[string]any {
	tools := r.List()
	functions := make([]map[string]any, 0, len(tools))
	for _, t := range tools {
		functions = append(functions, ToOpenAIFunction(t))
	}
	return functions
}
