package tools

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/janus-run/janus/internal/gate"
)

type echoTool struct {
	name     string
	lastCtx  ExecContext
	contextd bool
}

func (e *echoTool) Name() string                     { return e.name }
func (e *echoTool) Description() string              { return "echoes args" }
func (e *echoTool) Parameters() map[string]interface{} {
	return map[string]interface{}{"type": "object"}
}
func (e *echoTool) Execute(ctx context.Context, args map[string]interface{}) *ToolResult {
	return &ToolResult{ForLLM: "ok"}
}
func (e *echoTool) SetContext(ctx ExecContext) {
	e.lastCtx = ctx
	e.contextd = true
}

func TestExecuteUnknownTool(t *testing.T) {
	r := NewRegistry()
	result := r.ExecuteWithContext(context.Background(), "nope", nil, ExecContext{}, nil)
	if !result.IsError {
		t.Fatal("expected error for unknown tool")
	}
}

func TestExecuteDeniedByAllowList(t *testing.T) {
	r := NewRegistry()
	r.Register(&echoTool{name: "exec"})

	result := r.ExecuteWithContext(context.Background(), "exec", nil, ExecContext{ToolAllow: []string{"read_file"}}, nil)
	if !result.IsError {
		t.Fatal("expected deny when tool absent from allow list")
	}
}

func TestExecuteDeniedByDenyList(t *testing.T) {
	r := NewRegistry()
	r.Register(&echoTool{name: "exec"})

	result := r.ExecuteWithContext(context.Background(), "exec", nil, ExecContext{ToolDeny: []string{"exec"}}, nil)
	if !result.IsError {
		t.Fatal("expected deny when tool present in deny list")
	}
}

func TestExecuteGateBlocksUnconfirmed(t *testing.T) {
	r := NewRegistry()
	r.Register(&echoTool{name: "exec"})
	r.SetGate(gate.New([]string{"rm -rf"}, gate.AutoDenyConfirmer, time.Second))

	result := r.ExecuteWithContext(context.Background(), "exec", map[string]interface{}{"command": "rm -rf /"}, ExecContext{}, nil)
	if !result.IsError {
		t.Fatal("expected gate to block unconfirmed destructive command")
	}
	if !strings.HasPrefix(result.ForLLM, "Action denied by user:") {
		t.Fatalf("expected denial message prefix, got %q", result.ForLLM)
	}
}

func TestExecuteDeniedByDenyListMessage(t *testing.T) {
	r := NewRegistry()
	r.Register(&echoTool{name: "exec"})

	result := r.ExecuteWithContext(context.Background(), "exec", nil, ExecContext{ToolDeny: []string{"exec"}}, nil)
	want := `Error: Tool "exec" is not available for this user.`
	if result.ForLLM != want {
		t.Fatalf("expected %q, got %q", want, result.ForLLM)
	}
}

func TestExecuteInjectsContext(t *testing.T) {
	r := NewRegistry()
	tool := &echoTool{name: "read_file"}
	r.Register(tool)

	execCtx := ExecContext{WorkspaceDir: "/workspace", ChatID: "c1", UserID: "u1"}
	result := r.ExecuteWithContext(context.Background(), "read_file", nil, execCtx, nil)
	if result.IsError {
		t.Fatalf("unexpected error: %+v", result)
	}
	if !tool.contextd || tool.lastCtx.WorkspaceDir != "/workspace" {
		t.Fatalf("expected context injected before execute, got %+v", tool.lastCtx)
	}
}

func TestExecutePanicNormalizedToError(t *testing.T) {
	r := NewRegistry()
	r.Register(panicTool{})
	result := r.ExecuteWithContext(context.Background(), "panics", nil, ExecContext{}, nil)
	if !result.IsError {
		t.Fatal("expected panic normalized to an error result")
	}
}

type panicTool struct{}

func (panicTool) Name() string                                          { return "panics" }
func (panicTool) Description() string                                   { return "" }
func (panicTool) Parameters() map[string]interface{}                    { return map[string]interface{}{} }
func (panicTool) Execute(ctx context.Context, args map[string]interface{}) *ToolResult {
	panic("boom")
}
