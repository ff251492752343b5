// Package mcp implements a client bridge to externally hosted MCP tool
// servers (spec.md §6 editor integration, expanded to network-hosted
// servers) so tools registered by a remote MCP server can be exercised by
// the agent loop like any other tool.Tool. Transport is a websocket
// connection carrying newline-free JSON-RPC 2.0 frames, one frame per
// websocket message.
package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"github.com/janus-run/janus/internal/config"
	"github.com/janus-run/janus/internal/logger"
)

type jsonRPCRequest struct {
	JSONRPC string      `json:"jsonrpc"`
	ID      int64       `json:"id,omitempty"`
	Method  string      `json:"method"`
	Params  interface{} `json:"params,omitempty"`
}

type jsonRPCResponse struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      int64           `json:"id"`
	Result  json.RawMessage `json:"result,omitempty"`
	Error   *jsonRPCError   `json:"error,omitempty"`
}

type jsonRPCError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

// ToolDefinition is a tool as advertised by an MCP server's tools/list.
type ToolDefinition struct {
	Name        string                 `json:"name"`
	Description string                 `json:"description"`
	InputSchema map[string]interface{} `json:"inputSchema"`
}

// Server is a live websocket connection to one MCP server.
type Server struct {
	Name string
	URL  string

	conn   *websocket.Conn
	mu     sync.Mutex
	nextID atomic.Int64
	tools  []ToolDefinition

	pending   map[int64]chan *jsonRPCResponse
	pendingMu sync.Mutex
}

// Manager owns a set of MCP server connections keyed by name.
type Manager struct {
	mu      sync.RWMutex
	servers map[string]*Server
}

func NewManager() *Manager {
	return &Manager{servers: make(map[string]*Server)}
}

// StartFromConfig dials every enabled server listed in config, logging and
// skipping any that fail to connect or initialize rather than aborting the
// whole set.
func (m *Manager) StartFromConfig(ctx context.Context, servers []config.MCPServerConfig) {
	for _, cfg := range servers {
		if !cfg.Enabled {
			continue
		}
		if err := m.Connect(ctx, cfg.Name, cfg.URL); err != nil {
			logger.WarnCF("mcp", "failed to connect MCP server", map[string]interface{}{
				"name":  cfg.Name,
				"url":   cfg.URL,
				"error": err.Error(),
			})
		}
	}
}

// Connect dials an MCP server over websocket, performs the initialize
// handshake, and discovers its tools.
func (m *Manager) Connect(ctx context.Context, name, url string) error {
	m.mu.Lock()
	if _, exists := m.servers[name]; exists {
		m.mu.Unlock()
		return fmt.Errorf("MCP server %q already connected", name)
	}
	m.mu.Unlock()

	conn, _, err := websocket.DefaultDialer.DialContext(ctx, url, nil)
	if err != nil {
		return fmt.Errorf("dial %s: %w", url, err)
	}

	s := &Server{
		Name:    name,
		URL:     url,
		conn:    conn,
		pending: make(map[int64]chan *jsonRPCResponse),
	}
	go s.readLoop()

	if err := s.initialize(ctx); err != nil {
		s.Close()
		return fmt.Errorf("initialize %s: %w", name, err)
	}

	tools, err := s.listTools(ctx)
	if err != nil {
		s.Close()
		return fmt.Errorf("list tools from %s: %w", name, err)
	}
	s.tools = tools

	m.mu.Lock()
	m.servers[name] = s
	m.mu.Unlock()

	logger.InfoCF("mcp", "MCP server connected", map[string]interface{}{
		"name":  name,
		"tools": len(tools),
		"url":   url,
	})
	return nil
}

// AllTools returns every tool across every connected server, keyed by
// server name.
func (m *Manager) AllTools() map[string][]ToolDefinition {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make(map[string][]ToolDefinition, len(m.servers))
	for name, s := range m.servers {
		out[name] = s.tools
	}
	return out
}

// CallTool invokes a tool on a specific connected server.
func (m *Manager) CallTool(ctx context.Context, serverName, toolName string, args map[string]interface{}) (string, error) {
	m.mu.RLock()
	s, ok := m.servers[serverName]
	m.mu.RUnlock()
	if !ok {
		return "", fmt.Errorf("MCP server %q not connected", serverName)
	}
	return s.callTool(ctx, toolName, args)
}

// CloseAll disconnects every server.
func (m *Manager) CloseAll() {
	m.mu.Lock()
	defer m.mu.Unlock()
	for name, s := range m.servers {
		s.Close()
		logger.InfoCF("mcp", "MCP server disconnected", map[string]interface{}{"name": name})
	}
	m.servers = make(map[string]*Server)
}

func (s *Server) Close() {
	s.conn.Close()
}

func (s *Server) readLoop() {
	for {
		_, data, err := s.conn.ReadMessage()
		if err != nil {
			s.failPending(err)
			return
		}
		var resp jsonRPCResponse
		if err := json.Unmarshal(data, &resp); err != nil {
			continue
		}
		s.pendingMu.Lock()
		ch, ok := s.pending[resp.ID]
		if ok {
			delete(s.pending, resp.ID)
		}
		s.pendingMu.Unlock()
		if ok {
			ch <- &resp
		}
	}
}

func (s *Server) failPending(err error) {
	s.pendingMu.Lock()
	defer s.pendingMu.Unlock()
	for id, ch := range s.pending {
		ch <- &jsonRPCResponse{ID: id, Error: &jsonRPCError{Message: err.Error()}}
		delete(s.pending, id)
	}
}

func (s *Server) call(ctx context.Context, method string, params interface{}) (*jsonRPCResponse, error) {
	id := s.nextID.Add(1)
	ch := make(chan *jsonRPCResponse, 1)
	s.pendingMu.Lock()
	s.pending[id] = ch
	s.pendingMu.Unlock()

	s.mu.Lock()
	err := s.conn.WriteJSON(jsonRPCRequest{JSONRPC: "2.0", ID: id, Method: method, Params: params})
	s.mu.Unlock()
	if err != nil {
		s.pendingMu.Lock()
		delete(s.pending, id)
		s.pendingMu.Unlock()
		return nil, fmt.Errorf("write to MCP server: %w", err)
	}

	select {
	case resp := <-ch:
		return resp, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-time.After(30 * time.Second):
		s.pendingMu.Lock()
		delete(s.pending, id)
		s.pendingMu.Unlock()
		return nil, fmt.Errorf("MCP call %q timed out", method)
	}
}

func (s *Server) notify(method string, params interface{}) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.conn.WriteJSON(jsonRPCRequest{JSONRPC: "2.0", Method: method, Params: params})
}

func (s *Server) initialize(ctx context.Context) error {
	resp, err := s.call(ctx, "initialize", map[string]interface{}{
		"protocolVersion": "2024-11-05",
		"capabilities":    map[string]interface{}{},
		"clientInfo":      map[string]interface{}{"name": "janus", "version": "1.0.0"},
	})
	if err != nil {
		return err
	}
	if resp.Error != nil {
		return fmt.Errorf("initialize error: %s", resp.Error.Message)
	}
	return s.notify("notifications/initialized", nil)
}

func (s *Server) listTools(ctx context.Context) ([]ToolDefinition, error) {
	resp, err := s.call(ctx, "tools/list", nil)
	if err != nil {
		return nil, err
	}
	if resp.Error != nil {
		return nil, fmt.Errorf("tools/list error: %s", resp.Error.Message)
	}
	var result struct {
		Tools []ToolDefinition `json:"tools"`
	}
	if err := json.Unmarshal(resp.Result, &result); err != nil {
		return nil, fmt.Errorf("parse tools list: %w", err)
	}
	return result.Tools, nil
}

func (s *Server) callTool(ctx context.Context, name string, args map[string]interface{}) (string, error) {
	resp, err := s.call(ctx, "tools/call", map[string]interface{}{"name": name, "arguments": args})
	if err != nil {
		return "", err
	}
	if resp.Error != nil {
		return "", fmt.Errorf("tools/call error: %s", resp.Error.Message)
	}

	var result struct {
		Content []struct {
			Type string `json:"type"`
			Text string `json:"text"`
		} `json:"content"`
	}
	if err := json.Unmarshal(resp.Result, &result); err != nil {
		return string(resp.Result), nil
	}
	var texts []string
	for _, c := range result.Content {
		if c.Type == "text" {
			texts = append(texts, c.Text)
		}
	}
	if len(texts) > 0 {
		return texts[0], nil
	}
	return string(resp.Result), nil
}
