package scheduler

import (
	"context"
	"fmt"
	"time"

	"github.com/janus-run/janus/internal/bus"
	"github.com/janus-run/janus/internal/logger"
)

const tickInterval = 60 * time.Second

// Scheduler ties the job store to a 60-second ticker that fires due jobs
// onto the message bus as system-origin inbound messages (spec.md §4.9).
type Scheduler struct {
	store  *Store
	msgBus *bus.MessageBus
	now    func() time.Time
}

func New(store *Store, msgBus *bus.MessageBus) *Scheduler {
	return &Scheduler{store: store, msgBus: msgBus, now: time.Now}
}

// Run starts the ticker loop; it blocks until ctx is cancelled (spec.md
// §4.9: "Start/stop is tied to a cancellation token").
func (s *Scheduler) Run(ctx context.Context) error {
	ticker := time.NewTicker(tickInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			s.tick(ctx)
		}
	}
}

func (s *Scheduler) tick(ctx context.Context) {
	jobs, err := s.store.List(ctx, false)
	if err != nil {
		logger.ErrorCF("scheduler", "failed to list jobs", map[string]interface{}{"error": err.Error()})
		return
	}

	now := s.now().UTC()
	for _, job := range jobs {
		if job.NextRunMs == 0 || job.NextRunMs > now.UnixMilli() {
			continue
		}
		if job.ConsecutiveErrors > 0 && !s.backoffElapsed(job, now) {
			continue
		}
		s.fire(ctx, job)
	}
}

// backoffElapsed checks `now - last-run-at ≥ BACKOFF[min(consecutive-errors-1, 4)]`.
func (s *Scheduler) backoffElapsed(job Job, now time.Time) bool {
	idx := job.ConsecutiveErrors - 1
	if idx > len(BackoffLadder)-1 {
		idx = len(BackoffLadder) - 1
	}
	required := BackoffLadder[idx]
	lastRun := time.UnixMilli(job.LastRunMs)
	return now.Sub(lastRun) >= required
}

// fire publishes the job as a system-origin inbound message and records
// the run outcome (spec.md §4.9, §7 "Scheduler execution error").
func (s *Scheduler) fire(ctx context.Context, job Job) {
	started := s.now().UTC().UnixMilli()

	content := fmt.Sprintf("[Cron job: %s]\n\n%s", job.Name, job.Prompt)
	err := s.msgBus.PublishInbound(ctx, bus.InboundMessage{
		Channel:    "system",
		ChatID:     fmt.Sprintf("cron:%s", job.ID),
		Content:    content,
		Timestamp:  time.UnixMilli(started).UTC(),
		SessionKey: fmt.Sprintf("system:cron:%s", job.ID),
	})

	run := Run{StartedAtMs: started, FinishedAtMs: s.now().UTC().UnixMilli()}
	if err != nil {
		run.Success = false
		run.Error = err.Error()
		logger.ErrorCF("scheduler", "cron job publish failed", map[string]interface{}{"job": job.Name, "error": err.Error()})
	} else {
		run.Success = true
	}

	if recErr := s.store.RecordRun(ctx, job, run); recErr != nil {
		logger.ErrorCF("scheduler", "failed to record cron run", map[string]interface{}{"job": job.Name, "error": recErr.Error()})
	}
}
