// Package providers implements the LLM provider registry (spec.md §4.6):
// the Message/LLMProvider/StreamingProvider contract, concrete Claude and
// OpenAI-compatible providers, and the priority/purpose-routed registry
// that generalizes the teacher's two-provider FallbackProvider.
package providers

import (
	"context"

	"github.com/janus-run/janus/internal/media"
)

// Message is one entry in a conversation transcript. Grounded on the call
// shape used throughout the teacher's pkg/agent/loop.go (providers.Message
// with Role/Content/ToolCalls/ToolCallID) — the teacher's pack does not
// carry the type's own definition, so it is reconstructed from those call
// sites. ContentParts mirrors the teacher's own `userMsg.ContentParts =
// msg.Media` assignment (pkg/agent/loop.go's interrupt-injection path) for
// carrying images/files alongside text.
type Message struct {
	Role         string // "system" | "user" | "assistant" | "tool"
	Content      string
	ContentParts []media.ContentPart // multimodal attachments on user messages
	ToolCalls    []ToolCall          // set on assistant messages that requested tools
	ToolCallID   string              // set on tool-result messages
}

// ToolCall is a single tool invocation requested by the model.
type ToolCall struct {
	ID        string
	Type      string // "function"
	Name      string
	Arguments map[string]interface{}
	Function  *FunctionCall
}

// FunctionCall carries the raw JSON-encoded arguments as returned by
// providers that emit function-call deltas rather than parsed maps.
type FunctionCall struct {
	Name      string
	Arguments string
}

// ToolDefinition is a tool's JSON-schema advertised to the model.
type ToolDefinition struct {
	Type     string
	Function FunctionDefinition
}

type FunctionDefinition struct {
	Name        string
	Description string
	Parameters  map[string]interface{}
}

// UsageInfo reports token accounting for one call (spec.md "Supplemented
// features": token/cost tracking).
type UsageInfo struct {
	PromptTokens     int
	CompletionTokens int
	TotalTokens      int
}

// LLMResponse is the normalized result of a chat call.
type LLMResponse struct {
	Content      string
	ToolCalls    []ToolCall
	FinishReason string // "stop" | "tool_calls" | "length"
	Usage        *UsageInfo
}

// StreamCallback receives incremental content chunks during ChatStream.
type StreamCallback func(chunk string)

// LLMProvider is the minimal contract every backend implements.
type LLMProvider interface {
	Chat(ctx context.Context, messages []Message, tools []ToolDefinition, model string, options map[string]interface{}) (*LLMResponse, error)
	GetDefaultModel() string
}

// StreamingProvider is an optional capability; providers that don't
// implement it are adapted by the registry into a single-chunk emit
// (spec.md §4.6 streaming adapter).
type StreamingProvider interface {
	ChatStream(ctx context.Context, messages []Message, tools []ToolDefinition, model string, options map[string]interface{}, onContent StreamCallback) (*LLMResponse, error)
}
