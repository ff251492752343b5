package tools

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"time"
)

const truncateMarker = "[... truncated %d characters ...]"

// TruncateOutput applies the head+tail split spec.md §4 describes for tool
// results longer than 4000 characters. Exported so the agent loop can apply
// the same truncation to a tool result before feeding it back to the model.
func TruncateOutput(s string) string {
	return truncateOutput(s)
}

// truncateOutput is the unexported implementation shared by ExecTool and
// TruncateOutput.
func truncateOutput(s string) string {
	const limit = 4000
	if len(s) <= limit {
		return s
	}
	head := s[:limit/2]
	tail := s[len(s)-limit/2:]
	return head + fmt.Sprintf(truncateMarker, len(s)-limit) + tail
}

// ExecTool runs a shell command with a bounded timeout. It is the sole
// target of gate pattern matching (spec.md §4.7).
type ExecTool struct {
	workspace string
	restrict  bool
	timeout   time.Duration
}

func NewExecTool(workspace string, restrict bool) *ExecTool {
	return &ExecTool{workspace: workspace, restrict: restrict, timeout: 30 * time.Second}
}

func (t *ExecTool) Name() string        { return "exec" }
func (t *ExecTool) Description() string { return "Execute a shell command in the workspace directory." }
func (t *ExecTool) Parameters() map[string]interface{} {
	return map[string]interface{}{
		"type": "object",
		"properties": map[string]interface{}{
			"command": map[string]interface{}{"type": "string", "description": "Shell command to run"},
		},
		"required": []string{"command"},
	}
}

func (t *ExecTool) SetContext(ctx ExecContext) {
	if ctx.WorkspaceDir != "" {
		t.workspace = ctx.WorkspaceDir
	}
	if ctx.ExecTimeoutMs > 0 {
		t.timeout = time.Duration(ctx.ExecTimeoutMs) * time.Millisecond
	}
}

func (t *ExecTool) Execute(ctx context.Context, args map[string]interface{}) *ToolResult {
	command, _ := args["command"].(string)
	if command == "" {
		return ErrorResult("command is required")
	}

	runCtx, cancel := context.WithTimeout(ctx, t.timeout)
	defer cancel()

	cmd := exec.CommandContext(runCtx, "sh", "-c", command)
	cmd.Dir = t.workspace

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()

	output := stdout.String()
	if stderr.Len() > 0 {
		output += "\n[stderr]\n" + stderr.String()
	}
	output = truncateOutput(output)

	if err != nil {
		if runCtx.Err() != nil {
			return ErrorResult(fmt.Sprintf("command timed out after %s", t.timeout))
		}
		return &ToolResult{ForLLM: fmt.Sprintf("Error: %v\n%s", err, output), IsError: true, Err: err}
	}
	return plainResult(output)
}
