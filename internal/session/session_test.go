package session

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/janus-run/janus/internal/providers"
)

func TestAppendAndReload(t *testing.T) {
	dir := t.TempDir()
	s := NewStore(dir)

	key := "cli:main"
	s.AddMessage(key, "user", "hi")
	s.AddMessage(key, "assistant", "hello")

	s2 := NewStore(dir)
	history := s2.GetHistory(key)
	if len(history) != 2 {
		t.Fatalf("expected 2 messages after reload, got %d", len(history))
	}
	if history[0].Role != "user" || history[0].Content != "hi" {
		t.Fatalf("unexpected first message: %+v", history[0])
	}
	if history[1].Role != "assistant" || history[1].Content != "hello" {
		t.Fatalf("unexpected second message: %+v", history[1])
	}
}

func TestOrphanToolPrefixStrippedOnLoad(t *testing.T) {
	dir := t.TempDir()
	s := NewStore(dir)
	key := "cli:orphan"

	// Simulate a crash that left tool-role messages at the head with no
	// preceding assistant+tool_calls message surviving.
	s.AddFullMessage(key, providers.Message{Role: "tool", Content: "orphaned result 1", ToolCallID: "tc1"})
	s.AddFullMessage(key, providers.Message{Role: "tool", Content: "orphaned result 2", ToolCallID: "tc2"})
	s.AddMessage(key, "user", "hello")
	s.AddMessage(key, "assistant", "hi there")

	s2 := NewStore(dir)
	history := s2.GetHistory(key)
	if len(history) != 2 {
		t.Fatalf("expected orphan tool prefix stripped down to 2 messages, got %d: %+v", len(history), history)
	}
	if history[0].Role != "user" || history[0].Content != "hello" {
		t.Fatalf("expected history to begin at the user message, got %+v", history[0])
	}
}

func TestTruncateAndSummarize(t *testing.T) {
	dir := t.TempDir()
	s := NewStore(dir)
	key := "cli:summarize"

	for i := 0; i < 10; i++ {
		s.AddMessage(key, "user", "msg")
	}
	s.SetSummary(key, "a condensed summary")
	s.TruncateHistory(key, 4)
	if err := s.Save(key); err != nil {
		t.Fatalf("save: %v", err)
	}

	s2 := NewStore(dir)
	if got := s2.GetSummary(key); got != "a condensed summary" {
		t.Fatalf("expected summary to persist, got %q", got)
	}
	if history := s2.GetHistory(key); len(history) != 4 {
		t.Fatalf("expected truncated history of 4, got %d", len(history))
	}
}

func TestCorruptMetadataRestartsFresh(t *testing.T) {
	dir := t.TempDir()
	key := "cli:corrupt"
	path := filepath.Join(dir, sanitizeKey(key)+".jsonl")
	if err := os.WriteFile(path, []byte("not json at all\n{\"role\":\"user\",\"content\":\"hi\"}\n"), 0o644); err != nil {
		t.Fatalf("seed corrupt file: %v", err)
	}

	s := NewStore(dir)
	history := s.GetHistory(key)
	if len(history) != 0 {
		t.Fatalf("expected fresh empty session on corrupt metadata, got %d messages", len(history))
	}
}
