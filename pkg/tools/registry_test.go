package tools

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

type stubTool struct {
	name  string
	value any
	err   error
}

func (s *stubTool) Name() string        { return s.name }
func (s *stubTool) Description() string { return "stub" }

func (s *stubTool) Execute(context.Context, map[string]any) (any, error) {
	return s.value, s.err
}

func TestRegistry_ExecuteDispatchesByName(t *testing.T) {
	r := NewRegistry()
	r.Register(&stubTool{name: "echo", value: "hello"})

	out := r.Execute(context.Background(), "echo", nil)
	assert.Equal(t, "hello", out)
}

func TestRegistry_UnknownToolIsErrorPayload(t *testing.T) {
	r := NewRegistry()

	out := r.Execute(context.Background(), "nope", nil)
	payload, ok := out.(map[string]any)
	assert.True(t, ok)
	assert.Contains(t, payload["error"], "unknown tool")
}

func TestRegistry_ToolErrorBecomesPayloadNotPanic(t *testing.T) {
	r := NewRegistry()
	r.Register(&stubTool{name: "flaky", err: errors.New("backend down")})

	out := r.Execute(context.Background(), "flaky", nil)
	payload, ok := out.(map[string]any)
	assert.True(t, ok)
	assert.Equal(t, "backend down", payload["error"])
}

func TestRegistry_Names(t *testing.T) {
	r := NewRegistry()
	r.Register(&stubTool{name: "a"})
	r.Register(&stubTool{name: "b"})
	assert.ElementsMatch(t, []string{"a", "b"}, r.Names())
}

func TestParamHelpers(t *testing.T) {
	params := map[string]any{
		"query": "golang",
		"max":   float64(7), // JSON numbers decode as float64
	}
	assert.Equal(t, "golang", stringParam(params, "query"))
	assert.Equal(t, "", stringParam(params, "missing"))
	assert.Equal(t, 7, intParam(params, "max", 5))
	assert.Equal(t, 5, intParam(params, "missing", 5))
}
