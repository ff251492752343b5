package tools

import (
	"context"
	"fmt"

	"github.com/janus-run/janus/internal/memory"
)

// MemorySearchTool adapts the teacher's pkg/tools/memory_search.go to the
// SQLite-backed hybrid index instead of chromem-go-only search.
type MemorySearchTool struct {
	index *memory.Index
	scope *memory.Scope
}

func NewMemorySearchTool(index *memory.Index) *MemorySearchTool {
	return &MemorySearchTool{index: index}
}

func (t *MemorySearchTool) Name() string { return "search_memory" }
func (t *MemorySearchTool) Description() string {
	return "Search your memory of past conversations and knowledge about the user. Call this proactively whenever prior context might help."
}
func (t *MemorySearchTool) Parameters() map[string]interface{} {
	return map[string]interface{}{
		"type": "object",
		"properties": map[string]interface{}{
			"query": map[string]interface{}{"type": "string", "description": "Natural language search query"},
			"limit": map[string]interface{}{"type": "integer", "description": "Maximum number of results to return (default: 5)"},
		},
		"required": []string{"query"},
	}
}

// SetContext narrows search to the calling user's scope.
func (t *MemorySearchTool) SetContext(ctx ExecContext) {
	if ctx.UserID != "" {
		t.scope = &memory.Scope{Kind: "user", ID: ctx.UserID}
	}
}

func (t *MemorySearchTool) Execute(ctx context.Context, args map[string]interface{}) *ToolResult {
	query, ok := args["query"].(string)
	if !ok || query == "" {
		return ErrorResult("query is required")
	}

	limit := 5
	if l, ok := args["limit"].(float64); ok && int(l) > 0 {
		limit = int(l)
	}

	results, err := t.index.HybridSearch(ctx, query, limit, t.scope)
	if err != nil {
		return ErrorResult(fmt.Sprintf("memory search failed: %v", err))
	}
	return SilentResult(memory.FormatResults(results))
}
