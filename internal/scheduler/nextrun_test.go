package scheduler

import (
	"testing"
	"time"
)

func TestNextRunAtFuture(t *testing.T) {
	now := time.Date(2026, 7, 30, 12, 0, 0, 0, time.UTC)
	future := now.Add(time.Hour).Format(time.RFC3339)

	next, err := NextRun("at", future, "", now, time.Time{})
	if err != nil {
		t.Fatal(err)
	}
	if next == nil {
		t.Fatal("expected a next run time")
	}
	if !next.Equal(now.Add(time.Hour)) {
		t.Fatalf("expected %v, got %v", now.Add(time.Hour), *next)
	}
}

func TestNextRunAtPastReturnsNil(t *testing.T) {
	now := time.Date(2026, 7, 30, 12, 0, 0, 0, time.UTC)
	past := now.Add(-time.Hour).Format(time.RFC3339)

	next, err := NextRun("at", past, "", now, time.Time{})
	if err != nil {
		t.Fatal(err)
	}
	if next != nil {
		t.Fatalf("expected nil, got %v", *next)
	}
}

func TestNextRunEveryWithoutLastRun(t *testing.T) {
	now := time.Date(2026, 7, 30, 12, 0, 0, 0, time.UTC)

	next, err := NextRun("every", "60000", "", now, time.Time{})
	if err != nil {
		t.Fatal(err)
	}
	want := now.Add(60 * time.Second)
	if !next.Equal(want) {
		t.Fatalf("expected %v, got %v", want, *next)
	}
}

func TestNextRunEveryUsesLastRunWhenLater(t *testing.T) {
	now := time.Date(2026, 7, 30, 12, 0, 0, 0, time.UTC)
	lastRun := now.Add(30 * time.Second)

	next, err := NextRun("every", "60000", "", now, lastRun)
	if err != nil {
		t.Fatal(err)
	}
	want := lastRun.Add(60 * time.Second)
	if !next.Equal(want) {
		t.Fatalf("expected %v, got %v", want, *next)
	}
}

func TestNextRunInvalidCronReturnsNilNoError(t *testing.T) {
	now := time.Date(2026, 7, 30, 12, 0, 0, 0, time.UTC)

	next, err := NextRun("cron", "not a cron expr", "", now, time.Time{})
	if err != nil {
		t.Fatal(err)
	}
	if next != nil {
		t.Fatalf("expected nil for invalid cron expression, got %v", *next)
	}
}

func TestNextRunValidCron(t *testing.T) {
	now := time.Date(2026, 7, 30, 12, 0, 0, 0, time.UTC)

	// Every day at 09:00.
	next, err := NextRun("cron", "0 9 * * *", "UTC", now, time.Time{})
	if err != nil {
		t.Fatal(err)
	}
	if next == nil {
		t.Fatal("expected a next run time")
	}
	if next.Hour() != 9 || next.Minute() != 0 {
		t.Fatalf("expected 09:00, got %v", *next)
	}
}

func TestParseScheduleEvery(t *testing.T) {
	kind, expr, ok := parseSchedule("every 30m")
	if !ok {
		t.Fatal("expected parse to succeed")
	}
	if kind != "every" || expr != "1800000" {
		t.Fatalf("expected every/1800000, got %s/%s", kind, expr)
	}
}

func TestParseScheduleCron(t *testing.T) {
	kind, expr, ok := parseSchedule("0 9 * * *")
	if !ok {
		t.Fatal("expected parse to succeed")
	}
	if kind != "cron" || expr != "0 9 * * *" {
		t.Fatalf("expected cron/0 9 * * *, got %s/%s", kind, expr)
	}
}

func TestParseScheduleUnrecognized(t *testing.T) {
	_, _, ok := parseSchedule("whenever I feel like it")
	if ok {
		t.Fatal("expected parse to fail for unrecognized schedule")
	}
}
