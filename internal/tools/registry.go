package tools

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/janus-run/janus/internal/gate"
	"github.com/janus-run/janus/internal/logger"
	"github.com/janus-run/janus/internal/providers"
)

// Registry holds a name→tool map and enforces the exact ordering spec.md
// §4.7 lists: unknown tool, allow list, deny list, gate confirmation,
// execute.
type Registry struct {
	mu    sync.RWMutex
	tools map[string]Tool
	gate  *gate.Gate
}

func NewRegistry() *Registry {
	return &Registry{tools: make(map[string]Tool)}
}

func (r *Registry) Register(t Tool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.tools[t.Name()] = t
}

func (r *Registry) Get(name string) (Tool, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.tools[name]
	return t, ok
}

// SetGate wires the safety gate used at step 4 of the enforcement order.
func (r *Registry) SetGate(g *gate.Gate) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.gate = g
}

// ToProviderDefs exposes every registered tool's schema for the LLM call.
func (r *Registry) ToProviderDefs() []providers.ToolDefinition {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.tools))
	for name := range r.tools {
		names = append(names, name)
	}
	sort.Strings(names)

	defs := make([]providers.ToolDefinition, 0, len(names))
	for _, name := range names {
		defs = append(defs, toProviderDef(r.tools[name]))
	}
	return defs
}

// Summaries renders one "- name: description" line per registered tool,
// filtered by an optional per-user allow/deny list, for the context
// builder's identity section (spec.md §4.8 section 1).
func (r *Registry) Summaries(allow, deny []string) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.tools))
	for name := range r.tools {
		names = append(names, name)
	}
	sort.Strings(names)

	var out []string
	for _, name := range names {
		if len(allow) > 0 && !contains(allow, name) {
			continue
		}
		if len(deny) > 0 && contains(deny, name) {
			continue
		}
		out = append(out, fmt.Sprintf("- %s: %s", name, r.tools[name].Description()))
	}
	return out
}

func (r *Registry) availableNames() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.tools))
	for name := range r.tools {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// ExecuteWithContext applies per-call ExecContext to any ContextualTool
// before invoking Execute, and forwards an async callback for tools that
// implement AsyncTool.
func (r *Registry) ExecuteWithContext(ctx context.Context, name string, args map[string]interface{}, execCtx ExecContext, callback AsyncCallback) *ToolResult {
	r.mu.RLock()
	t, ok := r.tools[name]
	r.mu.RUnlock()

	if !ok {
		return ErrorResult(fmt.Sprintf("unknown tool %q; available tools: %s", name, strings.Join(r.availableNames(), ", ")))
	}

	if len(execCtx.ToolAllow) > 0 && !contains(execCtx.ToolAllow, name) {
		return ErrorResult(fmt.Sprintf("Tool %q is not available for this user.", name))
	}
	if len(execCtx.ToolDeny) > 0 && contains(execCtx.ToolDeny, name) {
		return ErrorResult(fmt.Sprintf("Tool %q is not available for this user.", name))
	}

	r.mu.RLock()
	g := r.gate
	r.mu.RUnlock()
	if g != nil && g.Matches(name, args) {
		if !g.Confirm(ctx, name, args) {
			return &ToolResult{ForLLM: fmt.Sprintf("Action denied by user: %s", name), IsError: true}
		}
	}

	if ct, ok := t.(ContextualTool); ok {
		ct.SetContext(execCtx)
	}

	return r.invoke(ctx, t, args, callback)
}

func (r *Registry) invoke(ctx context.Context, t Tool, args map[string]interface{}, callback AsyncCallback) (result *ToolResult) {
	defer func() {
		if rec := recover(); rec != nil {
			logger.ErrorCF("tools", "tool execution panicked", map[string]interface{}{
				"tool":  t.Name(),
				"error": fmt.Sprintf("%v", rec),
			})
			result = ErrorResult(fmt.Sprintf("tool %q panicked: %v", t.Name(), rec))
		}
	}()

	if at, ok := t.(AsyncTool); ok && callback != nil {
		return at.ExecuteAsync(ctx, args, callback)
	}
	return t.Execute(ctx, args)
}

func contains(list []string, item string) bool {
	for _, v := range list {
		if v == item {
			return true
		}
	}
	return false
}
