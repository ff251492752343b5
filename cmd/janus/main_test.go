package main

import (
	"os"
	"path/filepath"
	"testing"
)

func TestProviderKind(t *testing.T) {
	if got := providerKind("anthropic"); got != "claude" {
		t.Fatalf("expected claude, got %s", got)
	}
	if got := providerKind("openrouter"); got != "openai-compat" {
		t.Fatalf("expected openai-compat, got %s", got)
	}
}

func TestBuildProviderUnknownKind(t *testing.T) {
	if _, err := buildProvider("made-up", "key", "", "model"); err == nil {
		t.Fatal("expected error for unknown provider kind")
	}
}

func TestLoadConfigRequiresAPIKey(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("ANTHROPIC_API_KEY", "")
	t.Setenv("OPENAI_API_KEY", "")
	t.Setenv("OPENROUTER_API_KEY", "")
	t.Setenv("DEEPSEEK_API_KEY", "")
	t.Setenv("GROQ_API_KEY", "")

	if _, err := loadConfig(dir, ""); err == nil {
		t.Fatal("expected error when no API key is configured anywhere")
	}
}

func TestLoadConfigPicksUpEnvKey(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("ANTHROPIC_API_KEY", "test-key")

	cfg, err := loadConfig(dir, "")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.LLM.APIKey != "test-key" {
		t.Fatalf("expected api key from env, got %q", cfg.LLM.APIKey)
	}
	if cfg.Workspace.Dir != dir {
		t.Fatalf("expected workspace dir %q, got %q", dir, cfg.Workspace.Dir)
	}
}

func TestOnboardScaffoldsWorkspace(t *testing.T) {
	dir := t.TempDir()
	target := filepath.Join(dir, "ws")

	if code := runOnboard([]string{target}); code != 0 {
		t.Fatalf("expected exit code 0, got %d", code)
	}

	for _, want := range []string{filepath.Join("memory", "MEMORY.md"), "HEARTBEAT.md", "config.json", "memory", "sessions", "skills"} {
		if _, err := os.Stat(filepath.Join(target, want)); err != nil {
			t.Fatalf("expected %s to exist: %v", want, err)
		}
	}
}
