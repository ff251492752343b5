package mcp

import (
	"context"
	"fmt"

	"github.com/janus-run/janus/internal/tools"
)

// BridgeTool wraps one tool exposed by a remote MCP server as a local
// tools.Tool, so the registry and agent loop can't tell the difference
// between a native tool and an MCP-backed one.
type BridgeTool struct {
	manager    *Manager
	serverName string
	def        ToolDefinition
}

func NewBridgeTool(manager *Manager, serverName string, def ToolDefinition) *BridgeTool {
	return &BridgeTool{manager: manager, serverName: serverName, def: def}
}

func (t *BridgeTool) Name() string {
	return fmt.Sprintf("mcp_%s_%s", t.serverName, t.def.Name)
}

func (t *BridgeTool) Description() string {
	return fmt.Sprintf("[MCP:%s] %s", t.serverName, t.def.Description)
}

func (t *BridgeTool) Parameters() map[string]interface{} {
	if t.def.InputSchema != nil {
		return t.def.InputSchema
	}
	return map[string]interface{}{"type": "object", "properties": map[string]interface{}{}}
}

func (t *BridgeTool) Execute(ctx context.Context, args map[string]interface{}) *tools.ToolResult {
	result, err := t.manager.CallTool(ctx, t.serverName, t.def.Name, args)
	if err != nil {
		return tools.ErrorResult(fmt.Sprintf("MCP tool %s/%s error: %v", t.serverName, t.def.Name, err))
	}
	return tools.SilentResult(result)
}

// RegisterTools adapts every tool currently advertised by every connected
// MCP server into the registry, returning the count registered.
func RegisterTools(manager *Manager, registry *tools.Registry) int {
	n := 0
	for serverName, defs := range manager.AllTools() {
		for _, def := range defs {
			registry.Register(NewBridgeTool(manager, serverName, def))
			n++
		}
	}
	return n
}
