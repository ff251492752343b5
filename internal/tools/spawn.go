package tools

import (
	"context"
	"fmt"
)

// Spawner runs a bounded child-agent iteration loop against a prompt and
// returns its final reply. Implemented by internal/agent so that tools
// doesn't import agent (which imports tools) — spawn_subagent depends on
// this interface rather than a concrete type.
type Spawner interface {
	RunSubagent(ctx context.Context, prompt string, maxIterations int) (string, error)
}

// SpawnSubagentTool lets the model delegate a bounded sub-task to a fresh
// agent iteration loop (spec.md §1: "child-agent spawning" is in scope).
type SpawnSubagentTool struct {
	spawner       Spawner
	maxIterations int
}

func NewSpawnSubagentTool(spawner Spawner, maxIterations int) *SpawnSubagentTool {
	if maxIterations <= 0 {
		maxIterations = 5
	}
	return &SpawnSubagentTool{spawner: spawner, maxIterations: maxIterations}
}

func (t *SpawnSubagentTool) Name() string { return "spawn_subagent" }
func (t *SpawnSubagentTool) Description() string {
	return "Delegate a bounded, self-contained task to a fresh sub-agent and return its final answer."
}
func (t *SpawnSubagentTool) Parameters() map[string]interface{} {
	return map[string]interface{}{
		"type": "object",
		"properties": map[string]interface{}{
			"prompt": map[string]interface{}{"type": "string", "description": "The full task description for the sub-agent"},
		},
		"required": []string{"prompt"},
	}
}

func (t *SpawnSubagentTool) Execute(ctx context.Context, args map[string]interface{}) *ToolResult {
	prompt, ok := args["prompt"].(string)
	if !ok || prompt == "" {
		return ErrorResult("prompt is required")
	}
	if t.spawner == nil {
		return ErrorResult("subagent spawning not configured")
	}

	reply, err := t.spawner.RunSubagent(ctx, prompt, t.maxIterations)
	if err != nil {
		return &ToolResult{ForLLM: fmt.Sprintf("subagent failed: %v", err), IsError: true, Err: err}
	}
	return plainResult(reply)
}
