// Package tools provides the named tool registry agents call during
// processing: web search across pluggable vendors and URL fetching.
package tools

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
)

// Tool is one named callable. Implementations return (value, error); the
// registry converts errors into structured payloads so tool invocation
// never raises to the caller.
type Tool interface {
	Name() string
	Description() string
	Execute(ctx context.Context, params map[string]any) (any, error)
}

// Registry dispatches tool calls by name.
type Registry struct {
	mu    sync.RWMutex
	tools map[string]Tool
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{tools: make(map[string]Tool)}
}

// Register adds a tool, replacing any previous tool of the same name.
func (r *Registry) Register(t Tool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.tools[t.Name()] = t
}

// Names returns the registered tool names.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.tools))
	for name := range r.tools {
		names = append(names, name)
	}
	return names
}

// Execute runs a tool by name. Errors — including unknown tools — come
// back as {"error": ...} payloads, never as raised errors.
func (r *Registry) Execute(ctx context.Context, name string, params map[string]any) any {
	r.mu.RLock()
	tool, ok := r.tools[name]
	r.mu.RUnlock()
	if !ok {
		return map[string]any{"error": fmt.Sprintf("unknown tool: %s", name)}
	}

	value, err := tool.Execute(ctx, params)
	if err != nil {
		slog.Warn("tool call failed", "tool", name, "error", err)
		return map[string]any{"error": err.Error()}
	}
	return value
}

// stringParam reads a string parameter, with "" when absent.
func stringParam(params map[string]any, key string) string {
	if v, ok := params[key].(string); ok {
		return v
	}
	return ""
}

// intParam reads an integer parameter, tolerating JSON float64 values.
func intParam(params map[string]any, key string, fallback int) int {
	switch v := params[key].(type) {
	case int:
		return v
	case float64:
		return int(v)
	default:
		return fallback
	}
}
