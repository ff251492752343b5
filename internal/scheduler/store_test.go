package scheduler

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/janus-run/janus/internal/store"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := store.Open(filepath.Join(t.TempDir(), "scheduler.db"))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { s.DB.Close() })
	return NewStore(s.DB)
}

func TestAddComputesNextRunAndDefaultsEnabled(t *testing.T) {
	s := openTestStore(t)
	job, err := s.Add(context.Background(), Job{
		Name:         "daily-report",
		ScheduleKind: "every",
		ScheduleExpr: "60000",
		Prompt:       "send the daily report",
		Channel:      "system",
		ChatID:       "cron:daily-report",
	})
	if err != nil {
		t.Fatal(err)
	}
	if job.ID == "" {
		t.Fatal("expected an assigned id")
	}
	if !job.Enabled {
		t.Fatal("expected job to default to enabled")
	}
	if job.NextRunMs == 0 {
		t.Fatal("expected next-run-at to be computed")
	}
}

func TestUpsertByNameUpdatesExisting(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	first, err := s.Upsert(ctx, Job{Name: "heartbeat-task", ScheduleKind: "every", ScheduleExpr: "60000", Prompt: "v1", Channel: "system", ChatID: "c1"})
	if err != nil {
		t.Fatal(err)
	}

	second, err := s.Upsert(ctx, Job{Name: "heartbeat-task", ScheduleKind: "every", ScheduleExpr: "120000", Prompt: "v2", Channel: "system", ChatID: "c1", Enabled: true})
	if err != nil {
		t.Fatal(err)
	}

	if second.ID != first.ID {
		t.Fatalf("expected upsert to reuse the existing id, got %s vs %s", second.ID, first.ID)
	}
	if second.Prompt != "v2" {
		t.Fatalf("expected prompt updated to v2, got %q", second.Prompt)
	}

	all, err := s.List(ctx, true)
	if err != nil {
		t.Fatal(err)
	}
	if len(all) != 1 {
		t.Fatalf("expected exactly one job after upsert, got %d", len(all))
	}
}

func TestRecordRunResetsConsecutiveErrorsOnSuccess(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	job, err := s.Add(ctx, Job{Name: "flaky", ScheduleKind: "every", ScheduleExpr: "60000", Prompt: "p", Channel: "system", ChatID: "c"})
	if err != nil {
		t.Fatal(err)
	}

	job.ConsecutiveErrors = 2
	if err := s.RecordRun(ctx, job, Run{StartedAtMs: 1000, FinishedAtMs: 1100, Success: false, Error: "boom"}); err != nil {
		t.Fatal(err)
	}

	failed, err := s.GetByID(ctx, job.ID)
	if err != nil {
		t.Fatal(err)
	}
	if failed.ConsecutiveErrors != 3 {
		t.Fatalf("expected consecutive errors to bump to 3, got %d", failed.ConsecutiveErrors)
	}

	if err := s.RecordRun(ctx, failed, Run{StartedAtMs: 2000, FinishedAtMs: 2100, Success: true}); err != nil {
		t.Fatal(err)
	}

	recovered, err := s.GetByID(ctx, job.ID)
	if err != nil {
		t.Fatal(err)
	}
	if recovered.ConsecutiveErrors != 0 {
		t.Fatalf("expected consecutive errors reset to 0, got %d", recovered.ConsecutiveErrors)
	}

	runs, err := s.ListRuns(ctx, job.ID, 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(runs) != 2 {
		t.Fatalf("expected 2 recorded runs, got %d", len(runs))
	}
}
