package mcpserver

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/janus-run/janus/internal/skills"
	"github.com/janus-run/janus/internal/tools"
)

type echoTool struct{}

func (echoTool) Name() string        { return "echo" }
func (echoTool) Description() string { return "echoes its input" }
func (echoTool) Parameters() map[string]interface{} {
	return map[string]interface{}{"type": "object", "properties": map[string]interface{}{}}
}
func (echoTool) Execute(ctx context.Context, args map[string]interface{}) *tools.ToolResult {
	return &tools.ToolResult{ForLLM: "ok"}
}

func newTestServer(t *testing.T) *Server {
	t.Helper()
	reg := tools.NewRegistry()
	reg.Register(echoTool{})

	dir := t.TempDir()
	skillDir := filepath.Join(dir, "greet")
	if err := os.MkdirAll(skillDir, 0o755); err != nil {
		t.Fatal(err)
	}
	content := "---\nname: greet\ndescription: says hello\n---\n\nSay hello."
	if err := os.WriteFile(filepath.Join(skillDir, "SKILL.md"), []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	loader := skills.NewLoader(dir, "", "")

	return New(reg, loader, tools.ExecContext{})
}

func roundTrip(t *testing.T, s *Server, requests []string) []map[string]interface{} {
	t.Helper()
	in := strings.NewReader(strings.Join(requests, "\n") + "\n")
	var out bytes.Buffer
	if err := s.Serve(context.Background(), in, &out); err != nil {
		t.Fatal(err)
	}

	var responses []map[string]interface{}
	dec := json.NewDecoder(&out)
	for dec.More() {
		var m map[string]interface{}
		if err := dec.Decode(&m); err != nil {
			t.Fatal(err)
		}
		responses = append(responses, m)
	}
	return responses
}

func TestInitializeAndToolsList(t *testing.T) {
	s := newTestServer(t)
	responses := roundTrip(t, s, []string{
		`{"jsonrpc":"2.0","id":1,"method":"initialize","params":{}}`,
		`{"jsonrpc":"2.0","method":"notifications/initialized"}`,
		`{"jsonrpc":"2.0","id":2,"method":"tools/list"}`,
	})

	if len(responses) != 2 {
		t.Fatalf("expected 2 responses (notification gets none), got %d: %+v", len(responses), responses)
	}

	toolsResult := responses[1]["result"].(map[string]interface{})
	toolList := toolsResult["tools"].([]interface{})
	if len(toolList) != 1 {
		t.Fatalf("expected 1 tool, got %+v", toolList)
	}
	first := toolList[0].(map[string]interface{})
	if first["name"] != "echo" {
		t.Fatalf("expected echo tool, got %+v", first)
	}
}

func TestToolsCallExecutesRegisteredTool(t *testing.T) {
	s := newTestServer(t)
	responses := roundTrip(t, s, []string{
		`{"jsonrpc":"2.0","id":1,"method":"tools/call","params":{"name":"echo","arguments":{}}}`,
	})

	result := responses[0]["result"].(map[string]interface{})
	content := result["content"].([]interface{})
	first := content[0].(map[string]interface{})
	if first["text"] != "ok" {
		t.Fatalf("expected ok, got %+v", first)
	}
}

func TestPromptsListAndGet(t *testing.T) {
	s := newTestServer(t)
	responses := roundTrip(t, s, []string{
		`{"jsonrpc":"2.0","id":1,"method":"prompts/list"}`,
		`{"jsonrpc":"2.0","id":2,"method":"prompts/get","params":{"name":"greet"}}`,
	})

	list := responses[0]["result"].(map[string]interface{})["prompts"].([]interface{})
	if len(list) != 1 {
		t.Fatalf("expected 1 prompt, got %+v", list)
	}

	got := responses[1]["result"].(map[string]interface{})
	if got["description"] != "says hello" {
		t.Fatalf("unexpected prompt get result: %+v", got)
	}
}

func TestUnknownMethodReturnsError(t *testing.T) {
	s := newTestServer(t)
	responses := roundTrip(t, s, []string{
		`{"jsonrpc":"2.0","id":1,"method":"nope"}`,
	})

	errObj, ok := responses[0]["error"].(map[string]interface{})
	if !ok {
		t.Fatalf("expected an error response, got %+v", responses[0])
	}
	if errObj["code"].(float64) != -32601 {
		t.Fatalf("expected method-not-found code, got %+v", errObj)
	}
}
