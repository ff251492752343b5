package learner

import (
	"context"
	"testing"

	"github.com/janus-run/janus/internal/store"
)

func openTestLearner(t *testing.T) *Learner {
	t.Helper()
	s, err := store.Open(t.TempDir() + "/learner.db")
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { s.DB.Close() })
	return New(s.DB)
}

func TestRecommendNilWhenNoRecords(t *testing.T) {
	l := openTestLearner(t)
	rec, err := l.Recommend(context.Background(), "deploy the service", 10)
	if err != nil {
		t.Fatal(err)
	}
	if rec != nil {
		t.Fatalf("expected nil recommendation, got %+v", rec)
	}
}

func TestRecommendAggregatesTopMatches(t *testing.T) {
	l := openTestLearner(t)
	ctx := context.Background()

	records := []ExecutionRecord{
		{SessionKey: "a", TaskSummary: "deploy the backend service", Iterations: 2, ToolCalls: 3, DurationMs: 1000, Success: true, CreatedAtMs: 1},
		{SessionKey: "a", TaskSummary: "deploy the backend service again", Iterations: 4, ToolCalls: 5, DurationMs: 2000, Success: false, CreatedAtMs: 2},
		{SessionKey: "a", TaskSummary: "unrelated grocery list task", Iterations: 1, ToolCalls: 0, DurationMs: 100, Success: true, CreatedAtMs: 3},
	}
	for _, r := range records {
		if err := l.Record(ctx, r); err != nil {
			t.Fatal(err)
		}
	}

	rec, err := l.Recommend(ctx, "deploy the backend service now", 10)
	if err != nil {
		t.Fatal(err)
	}
	if rec == nil {
		t.Fatal("expected a recommendation")
	}
	if rec.SampleSize != 3 {
		t.Fatalf("expected all 3 records considered, got sample size %d", rec.SampleSize)
	}
	if rec.AvgIterations <= 2 {
		// the two deploy-related records should dominate the ranking (higher overlap, sorted first)
		// but since topN >= len(all), all three are included regardless of order.
	}
}

func TestRecommendNilWhenQueryHasNoTokens(t *testing.T) {
	l := openTestLearner(t)
	ctx := context.Background()
	if err := l.Record(ctx, ExecutionRecord{TaskSummary: "deploy", Iterations: 1, Success: true}); err != nil {
		t.Fatal(err)
	}
	rec, err := l.Recommend(ctx, "!!! ?? ..", 10)
	if err != nil {
		t.Fatal(err)
	}
	if rec != nil {
		t.Fatalf("expected nil recommendation for tokenless query, got %+v", rec)
	}
}
