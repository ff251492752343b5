// Package mcpserver implements the JSON-RPC-over-stdio side of the MCP
// protocol (spec.md §6 editor integration): every registered tool is
// exposed as an MCP tool, and every loaded skill is exposed as an MCP
// prompt, so an editor or other MCP-speaking client can drive the agent's
// tool registry directly. Framing matches the teacher's pkg/mcp/client.go
// JSON-RPC 2.0 message shape, newline-delimited over stdin/stdout.
package mcpserver

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"

	"github.com/janus-run/janus/internal/logger"
	"github.com/janus-run/janus/internal/skills"
	"github.com/janus-run/janus/internal/tools"
)

type request struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      json.RawMessage `json:"id,omitempty"`
	Method  string          `json:"method"`
	Params  json.RawMessage `json:"params,omitempty"`
}

type response struct {
	JSONRPC string      `json:"jsonrpc"`
	ID      json.RawMessage `json:"id,omitempty"`
	Result  interface{} `json:"result,omitempty"`
	Error   *rpcError   `json:"error,omitempty"`
}

type rpcError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

// Server serves the MCP protocol over an arbitrary reader/writer pair,
// newline-delimited JSON-RPC 2.0 in both directions.
type Server struct {
	toolRegistry *tools.Registry
	skillLoader  *skills.Loader
	execCtx      tools.ExecContext
}

func New(toolRegistry *tools.Registry, skillLoader *skills.Loader, execCtx tools.ExecContext) *Server {
	return &Server{toolRegistry: toolRegistry, skillLoader: skillLoader, execCtx: execCtx}
}

// Serve reads one JSON-RPC request per line from r and writes one response
// per line to w, until r returns EOF or ctx is cancelled.
func (s *Server) Serve(ctx context.Context, r io.Reader, w io.Writer) error {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 1024*1024), 1024*1024)

	for scanner.Scan() {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}

		var req request
		if err := json.Unmarshal(line, &req); err != nil {
			logger.WarnCF("mcpserver", "failed to parse request", map[string]interface{}{"error": err.Error()})
			continue
		}

		resp := s.dispatch(ctx, req)
		if resp == nil {
			// notification; no response expected
			continue
		}
		data, err := json.Marshal(resp)
		if err != nil {
			continue
		}
		if _, err := w.Write(append(data, '\n')); err != nil {
			return fmt.Errorf("write response: %w", err)
		}
	}
	return scanner.Err()
}

func (s *Server) dispatch(ctx context.Context, req request) *response {
	switch req.Method {
	case "initialize":
		return s.handleInitialize(req)
	case "notifications/initialized":
		return nil
	case "tools/list":
		return s.handleToolsList(req)
	case "tools/call":
		return s.handleToolsCall(ctx, req)
	case "prompts/list":
		return s.handlePromptsList(req)
	case "prompts/get":
		return s.handlePromptsGet(req)
	default:
		if req.ID == nil {
			return nil
		}
		return &response{JSONRPC: "2.0", ID: req.ID, Error: &rpcError{Code: -32601, Message: "method not found: " + req.Method}}
	}
}

func (s *Server) handleInitialize(req request) *response {
	result := map[string]interface{}{
		"protocolVersion": "2024-11-05",
		"capabilities": map[string]interface{}{
			"tools":   map[string]interface{}{},
			"prompts": map[string]interface{}{},
		},
		"serverInfo": map[string]interface{}{
			"name":    "janus",
			"version": "1.0.0",
		},
	}
	return &response{JSONRPC: "2.0", ID: req.ID, Result: result}
}

func (s *Server) handleToolsList(req request) *response {
	defs := s.toolRegistry.ToProviderDefs()
	mcpTools := make([]map[string]interface{}, 0, len(defs))
	for _, d := range defs {
		mcpTools = append(mcpTools, map[string]interface{}{
			"name":        d.Function.Name,
			"description": d.Function.Description,
			"inputSchema": d.Function.Parameters,
		})
	}
	return &response{JSONRPC: "2.0", ID: req.ID, Result: map[string]interface{}{"tools": mcpTools}}
}

func (s *Server) handleToolsCall(ctx context.Context, req request) *response {
	var params struct {
		Name      string                 `json:"name"`
		Arguments map[string]interface{} `json:"arguments"`
	}
	if err := json.Unmarshal(req.Params, &params); err != nil {
		return &response{JSONRPC: "2.0", ID: req.ID, Error: &rpcError{Code: -32602, Message: "invalid params: " + err.Error()}}
	}

	result := s.toolRegistry.ExecuteWithContext(ctx, params.Name, params.Arguments, s.execCtx, nil)
	content := []map[string]string{{"type": "text", "text": result.ForLLM}}
	return &response{JSONRPC: "2.0", ID: req.ID, Result: map[string]interface{}{
		"content": content,
		"isError": result.IsError,
	}}
}

func (s *Server) handlePromptsList(req request) *response {
	var prompts []map[string]interface{}
	if s.skillLoader != nil {
		for _, sk := range s.skillLoader.List() {
			prompts = append(prompts, map[string]interface{}{
				"name":        sk.Name,
				"description": sk.Description,
			})
		}
	}
	return &response{JSONRPC: "2.0", ID: req.ID, Result: map[string]interface{}{"prompts": prompts}}
}

func (s *Server) handlePromptsGet(req request) *response {
	var params struct {
		Name string `json:"name"`
	}
	if err := json.Unmarshal(req.Params, &params); err != nil {
		return &response{JSONRPC: "2.0", ID: req.ID, Error: &rpcError{Code: -32602, Message: "invalid params: " + err.Error()}}
	}

	if s.skillLoader != nil {
		for _, sk := range s.skillLoader.List() {
			if sk.Name == params.Name {
				return &response{JSONRPC: "2.0", ID: req.ID, Result: map[string]interface{}{
					"description": sk.Description,
					"messages": []map[string]interface{}{
						{"role": "user", "content": map[string]string{"type": "text", "text": sk.Body}},
					},
				}}
			}
		}
	}
	return &response{JSONRPC: "2.0", ID: req.ID, Error: &rpcError{Code: -32602, Message: "unknown prompt: " + params.Name}}
}
