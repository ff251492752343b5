package providers

import (
	"context"
	"errors"
	"testing"
)

type stubProvider struct {
	model      string
	err        error
	response   *LLMResponse
	calls      int
	streamable bool
}

func (s *stubProvider) GetDefaultModel() string { return s.model }

func (s *stubProvider) Chat(ctx context.Context, messages []Message, tools []ToolDefinition, model string, options map[string]interface{}) (*LLMResponse, error) {
	s.calls++
	if s.err != nil {
		return nil, s.err
	}
	return s.response, nil
}

type streamingStub struct {
	stubProvider
	chunks []string
}

func (s *streamingStub) ChatStream(ctx context.Context, messages []Message, tools []ToolDefinition, model string, options map[string]interface{}, onContent StreamCallback) (*LLMResponse, error) {
	s.calls++
	if s.err != nil {
		return nil, s.err
	}
	for _, c := range s.chunks {
		onContent(c)
	}
	return s.response, nil
}

func TestRegistryFailover(t *testing.T) {
	fail := &stubProvider{model: "fail-model", err: errors.New("boom")}
	good := &stubProvider{model: "good-model", response: &LLMResponse{Content: "recovered"}}

	r := NewRegistry(
		Entry{Name: "fail", Provider: fail, DefaultModel: "fail-model", Priority: 0},
		Entry{Name: "good", Provider: good, DefaultModel: "good-model", Priority: 1},
	)

	resp, err := r.Chat(context.Background(), []Message{{Role: "user", Content: "hi"}}, nil, "", nil)
	if err != nil {
		t.Fatalf("chat: %v", err)
	}
	if resp.Content != "recovered" {
		t.Fatalf("expected recovered, got %q", resp.Content)
	}
	if fail.calls != 1 {
		t.Fatalf("expected fail provider called once, got %d", fail.calls)
	}
	if good.calls != 1 {
		t.Fatalf("expected good provider called once, got %d", good.calls)
	}
}

func TestRegistryPurposeRouting(t *testing.T) {
	general := &stubProvider{model: "general", response: &LLMResponse{Content: "general-reply"}}
	summarizer := &stubProvider{model: "summarizer", response: &LLMResponse{Content: "summary-reply"}}

	r := NewRegistry(
		Entry{Name: "general", Provider: general, DefaultModel: "general", Priority: 0, PurposeTags: []string{"chat"}},
		Entry{Name: "summarizer", Provider: summarizer, DefaultModel: "summarizer", Priority: 1, PurposeTags: []string{"summarize"}},
	)

	resp, err := r.Chat(context.Background(), nil, nil, "summarize", nil)
	if err != nil {
		t.Fatalf("chat: %v", err)
	}
	if resp.Content != "summary-reply" {
		t.Fatalf("expected routing to summarizer, got %q", resp.Content)
	}

	// Unknown purpose falls back to all entries (never no-match).
	resp2, err := r.Chat(context.Background(), nil, nil, "unknown-purpose", nil)
	if err != nil {
		t.Fatalf("chat with unknown purpose: %v", err)
	}
	if resp2.Content != "general-reply" {
		t.Fatalf("expected fallback to highest-priority entry, got %q", resp2.Content)
	}
}

func TestRegistryStreamingAdapter(t *testing.T) {
	nonStreaming := &stubProvider{model: "m", response: &LLMResponse{Content: "full content"}}
	r := NewRegistry(Entry{Name: "p", Provider: nonStreaming, DefaultModel: "m", Priority: 0})

	var chunks []string
	resp, err := r.ChatStream(context.Background(), nil, nil, "", nil, func(chunk string) {
		chunks = append(chunks, chunk)
	})
	if err != nil {
		t.Fatalf("chat stream: %v", err)
	}
	if len(chunks) != 1 || chunks[0] != "full content" {
		t.Fatalf("expected exactly one chunk equal to full content, got %v", chunks)
	}
	if resp.Content != "full content" {
		t.Fatalf("expected final response content, got %q", resp.Content)
	}
}
