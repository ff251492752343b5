// Package tools implements the tool registry and execution pipeline
// (spec.md §4.7): safety gates, per-user allow/deny enforcement, and
// contextual parameter injection. Grounded on the teacher's
// pkg/tools/message.go and pkg/tools/memory_search.go call shapes — the
// registry and ToolResult types themselves weren't in the retrieval pack,
// so they're reconstructed from those call sites and pkg/agent/loop.go's
// usage (al.tools.ExecuteWithContext, al.tools.Get, al.tools.ToProviderDefs).
package tools

import (
	"context"

	"github.com/janus-run/janus/internal/providers"
)

// ToolResult is returned by every tool execution.
type ToolResult struct {
	ForLLM  string // content fed back into the conversation
	ForUser string // content delivered directly to the user, if non-empty
	Silent  bool   // true if the user already saw the result (e.g. message tool)
	IsError bool
	Err     error
}

func ErrorResult(msg string) *ToolResult {
	return &ToolResult{ForLLM: "Error: " + msg, IsError: true}
}

func SilentResult(forLLM string) *ToolResult {
	return &ToolResult{ForLLM: forLLM, Silent: true}
}

// plainResult is a visible (non-silent) success result.
func plainResult(content string) *ToolResult {
	return &ToolResult{ForLLM: content}
}

// Tool is the minimal contract every tool implements.
type Tool interface {
	Name() string
	Description() string
	Parameters() map[string]interface{}
	Execute(ctx context.Context, args map[string]interface{}) *ToolResult
}

// ExecContext carries the per-call state a ContextualTool may need (spec.md
// §4.7: "ctx carries {workspace dir, exec deny patterns, exec timeout, max
// file size, current chat-id, current user-id, user tool allow/deny,
// content policy}").
type ExecContext struct {
	WorkspaceDir     string
	ExecDenyPatterns []string
	ExecTimeoutMs    int
	MaxFileSize      int64
	Channel          string
	ChatID           string
	UserID           string
	ToolAllow        []string
	ToolDeny         []string
	ContentPolicy    string
}

// ContextualTool is implemented by tools that need per-call context
// injected before Execute runs.
type ContextualTool interface {
	Tool
	SetContext(ctx ExecContext)
}

// AsyncCallback lets a tool report a result after Execute has already
// returned (e.g. a long-running subagent spawn).
type AsyncCallback func(ctx context.Context, result *ToolResult)

// AsyncTool is implemented by tools that may deliver their real result
// later via callback instead of (or in addition to) their immediate
// return value.
type AsyncTool interface {
	Tool
	ExecuteAsync(ctx context.Context, args map[string]interface{}, callback AsyncCallback) *ToolResult
}

// toProviderDef converts a Tool's schema into the provider wire format.
func toProviderDef(t Tool) providers.ToolDefinition {
	return providers.ToolDefinition{
		Type: "function",
		Function: providers.FunctionDefinition{
			Name:        t.Name(),
			Description: t.Description(),
			Parameters:  t.Parameters(),
		},
	}
}
