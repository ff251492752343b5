package metrics

import (
	"bufio"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
)

func TestRecordAppendsJSONLWithComputedCost(t *testing.T) {
	dir := t.TempDir()
	tracker := NewTracker(dir)

	tracker.Record(TokenEvent{
		SessionKey:   "terminal:onboard",
		Model:        "claude-sonnet-4-5-20250929",
		InputTokens:  1000,
		OutputTokens: 500,
		Iteration:    1,
	})
	tracker.Record(TokenEvent{
		SessionKey:   "terminal:onboard",
		Model:        "claude-sonnet-4-5-20250929",
		InputTokens:  2000,
		OutputTokens: 100,
		Iteration:    2,
	})

	f, err := os.Open(filepath.Join(dir, "metrics", "tokens.jsonl"))
	if err != nil {
		t.Fatalf("expected tokens.jsonl to exist: %v", err)
	}
	defer f.Close()

	var lines []TokenEvent
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		var ev TokenEvent
		if err := json.Unmarshal(scanner.Bytes(), &ev); err != nil {
			t.Fatalf("invalid jsonl line: %v", err)
		}
		lines = append(lines, ev)
	}
	if len(lines) != 2 {
		t.Fatalf("expected 2 lines, got %d", len(lines))
	}

	first := lines[0]
	if first.Timestamp == "" {
		t.Error("expected timestamp to be filled in")
	}
	wantCost := float64(1000)*3.0/1e6 + float64(500)*15.0/1e6
	if diff := first.CostUSD - wantCost; diff > 1e-9 || diff < -1e-9 {
		t.Errorf("CostUSD = %v, want %v", first.CostUSD, wantCost)
	}
}

func TestCalculateCostFallsBackToDefaultPricing(t *testing.T) {
	got := calculateCost("some-unlisted-model", 1_000_000, 0, 0, 0)
	want := 3.0
	if got != want {
		t.Errorf("calculateCost() = %v, want %v", got, want)
	}
}

func TestCalculateCostIncludesCacheTiers(t *testing.T) {
	got := calculateCost("claude-opus-4-20250514", 0, 0, 1_000_000, 1_000_000)
	want := 1.5 + 18.75
	if got != want {
		t.Errorf("calculateCost() = %v, want %v", got, want)
	}
}
