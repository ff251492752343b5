package tools

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// resolvePath confines a tool-supplied relative path to the workspace
// directory when restrict is true, mirroring the teacher's restrict-to-
// workspace convention inferred from pkg/agent/loop.go's
// NewReadFileTool(workspace, restrict) call shape.
func resolvePath(workspace string, restrict bool, rel string) (string, error) {
	if rel == "" {
		return "", fmt.Errorf("path is required")
	}
	full := rel
	if !filepath.IsAbs(full) {
		full = filepath.Join(workspace, rel)
	}
	full = filepath.Clean(full)

	if restrict {
		absWorkspace, err := filepath.Abs(workspace)
		if err != nil {
			return "", fmt.Errorf("resolving workspace: %w", err)
		}
		absFull, err := filepath.Abs(full)
		if err != nil {
			return "", fmt.Errorf("resolving path: %w", err)
		}
		if absFull != absWorkspace && !strings.HasPrefix(absFull, absWorkspace+string(os.PathSeparator)) {
			return "", fmt.Errorf("path %q escapes the workspace directory", rel)
		}
	}
	return full, nil
}

type ReadFileTool struct {
	workspace string
	restrict  bool
	maxSize   int64
}

func NewReadFileTool(workspace string, restrict bool) *ReadFileTool {
	return &ReadFileTool{workspace: workspace, restrict: restrict, maxSize: 1 << 20}
}

func (t *ReadFileTool) Name() string        { return "read_file" }
func (t *ReadFileTool) Description() string { return "Read the contents of a file." }
func (t *ReadFileTool) Parameters() map[string]interface{} {
	return map[string]interface{}{
		"type": "object",
		"properties": map[string]interface{}{
			"path": map[string]interface{}{"type": "string", "description": "Path to the file, relative to the workspace"},
		},
		"required": []string{"path"},
	}
}

func (t *ReadFileTool) SetContext(ctx ExecContext) {
	if ctx.WorkspaceDir != "" {
		t.workspace = ctx.WorkspaceDir
	}
	if ctx.MaxFileSize > 0 {
		t.maxSize = ctx.MaxFileSize
	}
}

func (t *ReadFileTool) Execute(ctx context.Context, args map[string]interface{}) *ToolResult {
	rel, _ := args["path"].(string)
	path, err := resolvePath(t.workspace, t.restrict, rel)
	if err != nil {
		return ErrorResult(err.Error())
	}

	info, err := os.Stat(path)
	if err != nil {
		return ErrorResult(fmt.Sprintf("stat %s: %v", rel, err))
	}
	if info.Size() > t.maxSize {
		return ErrorResult(fmt.Sprintf("%s is %d bytes, exceeds max file size %d", rel, info.Size(), t.maxSize))
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return ErrorResult(fmt.Sprintf("read %s: %v", rel, err))
	}
	return plainResult(string(data))
}

type WriteFileTool struct {
	workspace string
	restrict  bool
}

func NewWriteFileTool(workspace string, restrict bool) *WriteFileTool {
	return &WriteFileTool{workspace: workspace, restrict: restrict}
}

func (t *WriteFileTool) Name() string        { return "write_file" }
func (t *WriteFileTool) Description() string { return "Write content to a file, creating or overwriting it." }
func (t *WriteFileTool) Parameters() map[string]interface{} {
	return map[string]interface{}{
		"type": "object",
		"properties": map[string]interface{}{
			"path":    map[string]interface{}{"type": "string", "description": "Path to the file, relative to the workspace"},
			"content": map[string]interface{}{"type": "string", "description": "Content to write"},
		},
		"required": []string{"path", "content"},
	}
}

func (t *WriteFileTool) SetContext(ctx ExecContext) {
	if ctx.WorkspaceDir != "" {
		t.workspace = ctx.WorkspaceDir
	}
}

func (t *WriteFileTool) Execute(ctx context.Context, args map[string]interface{}) *ToolResult {
	rel, _ := args["path"].(string)
	content, _ := args["content"].(string)
	path, err := resolvePath(t.workspace, t.restrict, rel)
	if err != nil {
		return ErrorResult(err.Error())
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return ErrorResult(fmt.Sprintf("create parent dir: %v", err))
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		return ErrorResult(fmt.Sprintf("write %s: %v", rel, err))
	}
	return plainResult(fmt.Sprintf("Wrote %d bytes to %s", len(content), rel))
}

type EditFileTool struct {
	workspace string
	restrict  bool
}

func NewEditFileTool(workspace string, restrict bool) *EditFileTool {
	return &EditFileTool{workspace: workspace, restrict: restrict}
}

func (t *EditFileTool) Name() string        { return "edit_file" }
func (t *EditFileTool) Description() string { return "Replace an exact substring in a file with new content." }
func (t *EditFileTool) Parameters() map[string]interface{} {
	return map[string]interface{}{
		"type": "object",
		"properties": map[string]interface{}{
			"path":       map[string]interface{}{"type": "string"},
			"old_string": map[string]interface{}{"type": "string"},
			"new_string": map[string]interface{}{"type": "string"},
		},
		"required": []string{"path", "old_string", "new_string"},
	}
}

func (t *EditFileTool) SetContext(ctx ExecContext) {
	if ctx.WorkspaceDir != "" {
		t.workspace = ctx.WorkspaceDir
	}
}

func (t *EditFileTool) Execute(ctx context.Context, args map[string]interface{}) *ToolResult {
	rel, _ := args["path"].(string)
	oldStr, _ := args["old_string"].(string)
	newStr, _ := args["new_string"].(string)

	path, err := resolvePath(t.workspace, t.restrict, rel)
	if err != nil {
		return ErrorResult(err.Error())
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return ErrorResult(fmt.Sprintf("read %s: %v", rel, err))
	}

	content := string(data)
	count := strings.Count(content, oldStr)
	if count == 0 {
		return ErrorResult(fmt.Sprintf("old_string not found in %s", rel))
	}
	if count > 1 {
		return ErrorResult(fmt.Sprintf("old_string is not unique in %s (%d occurrences)", rel, count))
	}

	updated := strings.Replace(content, oldStr, newStr, 1)
	if err := os.WriteFile(path, []byte(updated), 0o644); err != nil {
		return ErrorResult(fmt.Sprintf("write %s: %v", rel, err))
	}
	return plainResult(fmt.Sprintf("Edited %s", rel))
}

type AppendFileTool struct {
	workspace string
	restrict  bool
}

func NewAppendFileTool(workspace string, restrict bool) *AppendFileTool {
	return &AppendFileTool{workspace: workspace, restrict: restrict}
}

func (t *AppendFileTool) Name() string        { return "append_file" }
func (t *AppendFileTool) Description() string { return "Append content to the end of a file, creating it if needed." }
func (t *AppendFileTool) Parameters() map[string]interface{} {
	return map[string]interface{}{
		"type": "object",
		"properties": map[string]interface{}{
			"path":    map[string]interface{}{"type": "string"},
			"content": map[string]interface{}{"type": "string"},
		},
		"required": []string{"path", "content"},
	}
}

func (t *AppendFileTool) SetContext(ctx ExecContext) {
	if ctx.WorkspaceDir != "" {
		t.workspace = ctx.WorkspaceDir
	}
}

func (t *AppendFileTool) Execute(ctx context.Context, args map[string]interface{}) *ToolResult {
	rel, _ := args["path"].(string)
	content, _ := args["content"].(string)
	path, err := resolvePath(t.workspace, t.restrict, rel)
	if err != nil {
		return ErrorResult(err.Error())
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return ErrorResult(fmt.Sprintf("create parent dir: %v", err))
	}
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return ErrorResult(fmt.Sprintf("open %s: %v", rel, err))
	}
	defer f.Close()
	if _, err := f.WriteString(content); err != nil {
		return ErrorResult(fmt.Sprintf("append %s: %v", rel, err))
	}
	return plainResult(fmt.Sprintf("Appended %d bytes to %s", len(content), rel))
}

type ListDirTool struct {
	workspace string
	restrict  bool
}

func NewListDirTool(workspace string, restrict bool) *ListDirTool {
	return &ListDirTool{workspace: workspace, restrict: restrict}
}

func (t *ListDirTool) Name() string        { return "list_dir" }
func (t *ListDirTool) Description() string { return "List entries in a directory." }
func (t *ListDirTool) Parameters() map[string]interface{} {
	return map[string]interface{}{
		"type": "object",
		"properties": map[string]interface{}{
			"path": map[string]interface{}{"type": "string", "description": "Directory path, relative to the workspace (default '.')"},
		},
	}
}

func (t *ListDirTool) SetContext(ctx ExecContext) {
	if ctx.WorkspaceDir != "" {
		t.workspace = ctx.WorkspaceDir
	}
}

func (t *ListDirTool) Execute(ctx context.Context, args map[string]interface{}) *ToolResult {
	rel, _ := args["path"].(string)
	if rel == "" {
		rel = "."
	}
	path, err := resolvePath(t.workspace, t.restrict, rel)
	if err != nil {
		return ErrorResult(err.Error())
	}

	entries, err := os.ReadDir(path)
	if err != nil {
		return ErrorResult(fmt.Sprintf("list %s: %v", rel, err))
	}

	var sb strings.Builder
	for _, e := range entries {
		suffix := ""
		if e.IsDir() {
			suffix = "/"
		}
		sb.WriteString(e.Name() + suffix + "\n")
	}
	return plainResult(sb.String())
}
