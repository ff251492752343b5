package mcp

import (
	"context"
	"testing"

	"github.com/janus-run/janus/internal/tools"
)

func TestRegisterToolsAndExecute(t *testing.T) {
	srv := fakeServer(t)
	defer srv.Close()

	m := NewManager()
	if err := m.Connect(context.Background(), "fake", wsURL(srv.URL)); err != nil {
		t.Fatal(err)
	}
	defer m.CloseAll()

	registry := tools.NewRegistry()
	n := RegisterTools(m, registry)
	if n != 1 {
		t.Fatalf("expected 1 registered tool, got %d", n)
	}

	tool, ok := registry.Get("mcp_fake_echo")
	if !ok {
		t.Fatal("expected mcp_fake_echo to be registered")
	}
	if tool.Description() != "[MCP:fake] echoes input" {
		t.Fatalf("unexpected description: %q", tool.Description())
	}

	result := tool.Execute(context.Background(), map[string]interface{}{})
	if result.ForLLM != "echoed" || !result.Silent {
		t.Fatalf("unexpected result: %+v", result)
	}
}
