package agent

import (
	"context"
	"fmt"
	"path/filepath"
	"testing"

	"github.com/janus-run/janus/internal/bus"
	"github.com/janus-run/janus/internal/config"
	"github.com/janus-run/janus/internal/gate"
	"github.com/janus-run/janus/internal/providers"
	"github.com/janus-run/janus/internal/session"
	"github.com/janus-run/janus/internal/skills"
	"github.com/janus-run/janus/internal/tools"
	"github.com/janus-run/janus/internal/userprofile"
)

// scriptedChatProvider returns one scripted response per call, sticking on
// the last entry once exhausted.
type scriptedChatProvider struct {
	responses []*providers.LLMResponse
	i         int
}

func (p *scriptedChatProvider) GetDefaultModel() string { return "test-model" }

func (p *scriptedChatProvider) Chat(ctx context.Context, messages []providers.Message, toolDefs []providers.ToolDefinition, model string, options map[string]interface{}) (*providers.LLMResponse, error) {
	r := p.responses[p.i]
	if p.i < len(p.responses)-1 {
		p.i++
	}
	return r, nil
}

type echoTool struct{}

func (echoTool) Name() string        { return "message" }
func (echoTool) Description() string { return "Sends a message to the user." }
func (echoTool) Parameters() map[string]interface{} {
	return map[string]interface{}{"type": "object"}
}
func (echoTool) Execute(ctx context.Context, args map[string]interface{}) *tools.ToolResult {
	return &tools.ToolResult{ForLLM: "recovered", Silent: true}
}

type execStubTool struct{}

func (execStubTool) Name() string        { return "exec" }
func (execStubTool) Description() string { return "Runs a shell command." }
func (execStubTool) Parameters() map[string]interface{} {
	return map[string]interface{}{"type": "object"}
}
func (execStubTool) Execute(ctx context.Context, args map[string]interface{}) *tools.ToolResult {
	return tools.ErrorResult("should not run")
}

func newTestLoop(t *testing.T, toolRegistry *tools.Registry, provider providers.LLMProvider) *AgentLoop {
	t.Helper()
	workspace := t.TempDir()
	cfg := config.Defaults()
	cfg.Workspace.Dir = workspace
	cfg.Agent.MaxIterations = 5
	cfg.Agent.ToolRetries = 0

	sessions := session.NewStore(filepath.Join(workspace, "sessions"))
	registry := providers.NewRegistry(providers.Entry{Name: "stub", Provider: provider, Priority: 0})
	skillsLoader := skills.NewLoader(filepath.Join(workspace, "skills"), "", "")
	cb := NewContextBuilder(workspace, skillsLoader, nil, nil, cfg.Agent)

	return NewAgentLoop(cfg, nil, sessions, registry, cb, toolRegistry, nil, nil, nil, nil)
}

func TestProcessDirectNoToolCallsReturnsContent(t *testing.T) {
	tr := tools.NewRegistry()
	tr.Register(echoTool{})

	provider := &scriptedChatProvider{responses: []*providers.LLMResponse{
		{Content: "hello there"},
	}}

	loop := newTestLoop(t, tr, provider)
	got, err := loop.ProcessDirect(context.Background(), "hi", "cli", "1")
	if err != nil {
		t.Fatal(err)
	}
	if got != "hello there" {
		t.Fatalf("expected %q, got %q", "hello there", got)
	}
}

func TestProcessDirectToolCallThenSuccess(t *testing.T) {
	tr := tools.NewRegistry()
	tr.Register(echoTool{})

	provider := &scriptedChatProvider{responses: []*providers.LLMResponse{
		{
			ToolCalls: []providers.ToolCall{
				{ID: "call-1", Type: "function", Name: "message", Arguments: map[string]interface{}{"text": "hi"}},
			},
		},
		{Content: "recovered"},
	}}

	loop := newTestLoop(t, tr, provider)
	got, err := loop.ProcessDirect(context.Background(), "hi", "cli", "1")
	if err != nil {
		t.Fatal(err)
	}
	if got != "recovered" {
		t.Fatalf("expected %q, got %q", "recovered", got)
	}
}

func TestGateDeniesDestructiveExec(t *testing.T) {
	tr := tools.NewRegistry()
	tr.Register(execStubTool{})
	tr.SetGate(gate.New([]string{"rm -rf"}, gate.AutoDenyConfirmer, 0))

	provider := &scriptedChatProvider{responses: []*providers.LLMResponse{
		{
			ToolCalls: []providers.ToolCall{
				{ID: "call-1", Type: "function", Name: "exec", Arguments: map[string]interface{}{"command": "rm -rf /"}},
			},
		},
		{Content: "done"},
	}}

	loop := newTestLoop(t, tr, provider)
	_, err := loop.ProcessDirect(context.Background(), "clean up", "cli", "1")
	if err != nil {
		t.Fatal(err)
	}

	history := loop.sessions.GetHistory("cli:1")
	var toolMsg *providers.Message
	for i := range history {
		if history[i].Role == "tool" {
			toolMsg = &history[i]
		}
	}
	if toolMsg == nil {
		t.Fatal("expected a tool-result message in history")
	}
	want := "Action denied by user: exec"
	if toolMsg.Content[:len(want)] != want {
		t.Fatalf("expected tool result to start with %q, got %q", want, toolMsg.Content)
	}
}

func TestPerUserToolDenyMessage(t *testing.T) {
	tr := tools.NewRegistry()
	tr.Register(execStubTool{})

	provider := &scriptedChatProvider{responses: []*providers.LLMResponse{
		{
			ToolCalls: []providers.ToolCall{
				{ID: "call-1", Type: "function", Name: "exec", Arguments: map[string]interface{}{"command": "ls"}},
			},
		},
		{Content: "done"},
	}}

	loop := newTestLoop(t, tr, provider)
	cfg := config.Defaults()
	cfg.Users = []config.UserConfig{
		{
			ID:         "alice",
			Identities: []config.UserIdentity{{Channel: "cli", ChannelUserID: "u1"}},
			Tools:      config.AllowDenyConfig{Deny: []string{"exec"}},
		},
	}
	loop.profiles = userprofile.NewResolver(&cfg)

	opts := ProcessOptions{
		Channel:      "cli",
		ChatID:       "2",
		SessionKey:   "cli:2",
		UserMessage:  "run ls",
		Mode:         ModeFull,
		User:         &bus.UserBinding{UserID: "alice", ChannelUserID: "u1"},
		SendResponse: false,
	}

	_, err := loop.runAgentLoop(context.Background(), opts)
	if err != nil {
		t.Fatal(err)
	}

	history := loop.sessions.GetHistory(opts.SessionKey)
	var toolMsg *providers.Message
	for i := range history {
		if history[i].Role == "tool" {
			toolMsg = &history[i]
		}
	}
	if toolMsg == nil {
		t.Fatal("expected a tool-result message in history")
	}
	want := `Error: Tool "exec" is not available for this user.`
	if toolMsg.Content != want {
		t.Fatalf("expected %q, got %q", want, toolMsg.Content)
	}
}

func TestMaxIterationsReached(t *testing.T) {
	tr := tools.NewRegistry()
	tr.Register(echoTool{})

	responses := make([]*providers.LLMResponse, 0, 6)
	for i := 0; i < 6; i++ {
		responses = append(responses, &providers.LLMResponse{
			ToolCalls: []providers.ToolCall{
				{ID: fmt.Sprintf("call-%d", i), Type: "function", Name: "message", Arguments: map[string]interface{}{}},
			},
		})
	}
	provider := &scriptedChatProvider{responses: responses}

	loop := newTestLoop(t, tr, provider)
	loop.cfg.Agent.MaxIterations = 3

	got, err := loop.ProcessDirect(context.Background(), "keep going", "cli", "3")
	if err != nil {
		t.Fatal(err)
	}
	want := "I reached the maximum number of steps"
	if len(got) < len(want) || got[:len(want)] != want {
		t.Fatalf("expected max-iterations message, got %q", got)
	}
}

func TestModelCommandHotSwap(t *testing.T) {
	tr := tools.NewRegistry()
	provider := &scriptedChatProvider{responses: []*providers.LLMResponse{{Content: "unused"}}}
	loop := newTestLoop(t, tr, provider)

	if _, handled := loop.handleModelCommand("/model gpt-4o"); !handled {
		t.Fatal("expected /model command to be handled")
	}
	if loop.GetModel() != "gpt-4o" {
		t.Fatalf("expected model swapped to gpt-4o, got %q", loop.GetModel())
	}
}
