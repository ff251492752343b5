package mcp

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gorilla/websocket"
)

// fakeServer speaks just enough MCP JSON-RPC over websocket to exercise the
// client: initialize, tools/list with one tool, and tools/call echoing args.
func fakeServer(t *testing.T) *httptest.Server {
	t.Helper()
	upgrader := websocket.Upgrader{}

	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			t.Fatal(err)
		}
		defer conn.Close()

		for {
			var req jsonRPCRequest
			if err := conn.ReadJSON(&req); err != nil {
				return
			}

			switch req.Method {
			case "initialize":
				conn.WriteJSON(jsonRPCResponse{JSONRPC: "2.0", ID: req.ID, Result: json.RawMessage(`{}`)})
			case "notifications/initialized":
				// no response expected for a notification
			case "tools/list":
				result, _ := json.Marshal(map[string]interface{}{
					"tools": []ToolDefinition{{Name: "echo", Description: "echoes input"}},
				})
				conn.WriteJSON(jsonRPCResponse{JSONRPC: "2.0", ID: req.ID, Result: result})
			case "tools/call":
				result, _ := json.Marshal(map[string]interface{}{
					"content": []map[string]string{{"type": "text", "text": "echoed"}},
				})
				conn.WriteJSON(jsonRPCResponse{JSONRPC: "2.0", ID: req.ID, Result: result})
			}
		}
	}))
}

func wsURL(httpURL string) string {
	return "ws" + httpURL[len("http"):]
}

func TestConnectDiscoversTools(t *testing.T) {
	srv := fakeServer(t)
	defer srv.Close()

	m := NewManager()
	if err := m.Connect(context.Background(), "fake", wsURL(srv.URL)); err != nil {
		t.Fatal(err)
	}
	defer m.CloseAll()

	all := m.AllTools()
	if len(all["fake"]) != 1 || all["fake"][0].Name != "echo" {
		t.Fatalf("expected one discovered tool named echo, got %+v", all)
	}
}

func TestCallToolReturnsTextContent(t *testing.T) {
	srv := fakeServer(t)
	defer srv.Close()

	m := NewManager()
	if err := m.Connect(context.Background(), "fake", wsURL(srv.URL)); err != nil {
		t.Fatal(err)
	}
	defer m.CloseAll()

	out, err := m.CallTool(context.Background(), "fake", "echo", map[string]interface{}{"x": 1})
	if err != nil {
		t.Fatal(err)
	}
	if out != "echoed" {
		t.Fatalf("expected %q, got %q", "echoed", out)
	}
}

func TestCallToolUnknownServer(t *testing.T) {
	m := NewManager()
	if _, err := m.CallTool(context.Background(), "missing", "x", nil); err == nil {
		t.Fatal("expected an error for an unconnected server")
	}
}
