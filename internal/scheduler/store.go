// Package scheduler implements durable cron-style job scheduling (spec.md
// §4.9): CRUD over the relational store's cron_jobs/cron_runs tables,
// deterministic next-run computation for at/every/cron schedule kinds, a
// 60-second ticker with an error backoff ladder, and a HEARTBEAT.md bullet
// parser that upserts jobs by name. Grounded on vanducng-goclaw's
// cmd/gateway_cron.go fire-through-bus shape for the ticker→publish flow;
// next-run cron evaluation is the first component in the workspace to
// exercise adhocore/gronx, which the teacher's own go.mod lists but no
// kept teacher file actually calls.
package scheduler

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Job is one durable scheduled task (spec.md §3, §4.9).
type Job struct {
	ID                 string
	Name               string
	ScheduleKind        string // "at" | "every" | "cron"
	ScheduleExpr        string
	Timezone            string
	Prompt              string
	Channel             string
	ChatID              string
	Enabled             bool
	ConsecutiveErrors   int
	NextRunMs           int64
	LastRunMs           int64
	CreatedAtMs         int64
	UpdatedAtMs         int64
}

// Run is one recorded firing of a Job.
type Run struct {
	ID           string
	JobID        string
	StartedAtMs  int64
	FinishedAtMs int64
	Success      bool
	Error        string
}

// Store is the relational CRUD layer over cron_jobs/cron_runs.
type Store struct {
	db *sql.DB
}

func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
}

// Add assigns an id, computes next-run-at, defaults enabled=true, and
// inserts the job (spec.md §4.9: "add (assigns id, computes next-run-at,
// defaults enabled=true)").
func (s *Store) Add(ctx context.Context, j Job) (Job, error) {
	if j.ID == "" {
		j.ID = uuid.NewString()
	}
	j.Enabled = true
	now := nowMs()
	j.CreatedAtMs = now
	j.UpdatedAtMs = now

	next, err := NextRun(j.ScheduleKind, j.ScheduleExpr, j.Timezone, time.UnixMilli(now), time.Time{})
	if err != nil {
		return Job{}, fmt.Errorf("compute next run: %w", err)
	}
	if next != nil {
		j.NextRunMs = next.UnixMilli()
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO cron_jobs
			(id, name, schedule_kind, schedule_expr, timezone, prompt, channel, chat_id,
			 enabled, consecutive_errors, next_run_ms, last_run_ms, created_at_ms, updated_at_ms)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, 1, 0, ?, 0, ?, ?)`,
		j.ID, j.Name, j.ScheduleKind, j.ScheduleExpr, j.Timezone, j.Prompt, j.Channel, j.ChatID,
		j.NextRunMs, j.CreatedAtMs, j.UpdatedAtMs)
	if err != nil {
		return Job{}, fmt.Errorf("insert cron job: %w", err)
	}
	return j, nil
}

// Update applies a partial patch and always recomputes next-run-at
// (spec.md §4.9: "update (partial patch; always recomputes next-run-at)").
// String fields are replaced only when the patch value is non-empty, but
// Enabled is always set to patch.Enabled, so a patch with Enabled false
// disables the job.
func (s *Store) Update(ctx context.Context, id string, patch Job) (Job, error) {
	existing, err := s.GetByID(ctx, id)
	if err != nil {
		return Job{}, err
	}

	if patch.Name != "" {
		existing.Name = patch.Name
	}
	if patch.ScheduleKind != "" {
		existing.ScheduleKind = patch.ScheduleKind
	}
	if patch.ScheduleExpr != "" {
		existing.ScheduleExpr = patch.ScheduleExpr
	}
	if patch.Timezone != "" {
		existing.Timezone = patch.Timezone
	}
	if patch.Prompt != "" {
		existing.Prompt = patch.Prompt
	}
	if patch.Channel != "" {
		existing.Channel = patch.Channel
	}
	if patch.ChatID != "" {
		existing.ChatID = patch.ChatID
	}
	existing.Enabled = patch.Enabled
	existing.UpdatedAtMs = nowMs()

	var lastRun time.Time
	if existing.LastRunMs > 0 {
		lastRun = time.UnixMilli(existing.LastRunMs)
	}
	next, err := NextRun(existing.ScheduleKind, existing.ScheduleExpr, existing.Timezone, time.Now().UTC(), lastRun)
	if err != nil {
		return Job{}, fmt.Errorf("compute next run: %w", err)
	}
	if next != nil {
		existing.NextRunMs = next.UnixMilli()
	} else {
		existing.NextRunMs = 0
	}

	_, err = s.db.ExecContext(ctx, `
		UPDATE cron_jobs SET
			name=?, schedule_kind=?, schedule_expr=?, timezone=?, prompt=?, channel=?, chat_id=?,
			enabled=?, next_run_ms=?, updated_at_ms=?
		WHERE id=?`,
		existing.Name, existing.ScheduleKind, existing.ScheduleExpr, existing.Timezone, existing.Prompt,
		existing.Channel, existing.ChatID, boolToInt(existing.Enabled), existing.NextRunMs, existing.UpdatedAtMs, id)
	if err != nil {
		return Job{}, fmt.Errorf("update cron job: %w", err)
	}
	return existing, nil
}

// Upsert inserts a new job by name, or patches an existing one with the
// same name (spec.md §4.9: "upsert-by-name is required for the heartbeat
// integration").
func (s *Store) Upsert(ctx context.Context, j Job) (Job, error) {
	existing, err := s.GetByName(ctx, j.Name)
	if err == nil {
		return s.Update(ctx, existing.ID, j)
	}
	if err != sql.ErrNoRows {
		return Job{}, err
	}
	return s.Add(ctx, j)
}

func (s *Store) Remove(ctx context.Context, id string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM cron_jobs WHERE id=?`, id)
	return err
}

// List returns enabled jobs, or all jobs when includeDisabled is true
// (spec.md §4.9: "list (optionally including disabled)").
func (s *Store) List(ctx context.Context, includeDisabled bool) ([]Job, error) {
	query := `SELECT id, name, schedule_kind, schedule_expr, timezone, prompt, channel, chat_id,
		enabled, consecutive_errors, next_run_ms, last_run_ms, created_at_ms, updated_at_ms
		FROM cron_jobs`
	if !includeDisabled {
		query += ` WHERE enabled=1`
	}
	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Job
	for rows.Next() {
		var j Job
		var enabled int
		if err := rows.Scan(&j.ID, &j.Name, &j.ScheduleKind, &j.ScheduleExpr, &j.Timezone, &j.Prompt,
			&j.Channel, &j.ChatID, &enabled, &j.ConsecutiveErrors, &j.NextRunMs, &j.LastRunMs,
			&j.CreatedAtMs, &j.UpdatedAtMs); err != nil {
			return nil, err
		}
		j.Enabled = enabled != 0
		out = append(out, j)
	}
	return out, rows.Err()
}

func (s *Store) GetByID(ctx context.Context, id string) (Job, error) {
	return s.scanOne(ctx, `WHERE id=?`, id)
}

func (s *Store) GetByName(ctx context.Context, name string) (Job, error) {
	return s.scanOne(ctx, `WHERE name=?`, name)
}

func (s *Store) scanOne(ctx context.Context, where string, arg interface{}) (Job, error) {
	row := s.db.QueryRowContext(ctx, `SELECT id, name, schedule_kind, schedule_expr, timezone, prompt,
		channel, chat_id, enabled, consecutive_errors, next_run_ms, last_run_ms, created_at_ms, updated_at_ms
		FROM cron_jobs `+where, arg)

	var j Job
	var enabled int
	err := row.Scan(&j.ID, &j.Name, &j.ScheduleKind, &j.ScheduleExpr, &j.Timezone, &j.Prompt,
		&j.Channel, &j.ChatID, &enabled, &j.ConsecutiveErrors, &j.NextRunMs, &j.LastRunMs,
		&j.CreatedAtMs, &j.UpdatedAtMs)
	if err != nil {
		return Job{}, err
	}
	j.Enabled = enabled != 0
	return j, nil
}

// RecordRun inserts a run-history row and updates the job's
// consecutive-errors/last-run/next-run bookkeeping (spec.md §4.9, §7
// "Scheduler execution error").
func (s *Store) RecordRun(ctx context.Context, job Job, run Run) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO cron_runs (id, job_id, started_at_ms, finished_at_ms, success, error)
		VALUES (?, ?, ?, ?, ?, ?)`,
		uuidOrNew(run.ID), job.ID, run.StartedAtMs, run.FinishedAtMs, boolToInt(run.Success), run.Error)
	if err != nil {
		return fmt.Errorf("insert cron run: %w", err)
	}

	consecutiveErrors := job.ConsecutiveErrors
	if run.Success {
		consecutiveErrors = 0
	} else {
		consecutiveErrors++
	}

	var lastRun time.Time
	if run.StartedAtMs > 0 {
		lastRun = time.UnixMilli(run.StartedAtMs)
	}
	next, nextErr := NextRun(job.ScheduleKind, job.ScheduleExpr, job.Timezone, time.Now().UTC(), lastRun)
	var nextMs int64
	if nextErr == nil && next != nil {
		nextMs = next.UnixMilli()
	}

	_, err = s.db.ExecContext(ctx, `
		UPDATE cron_jobs SET consecutive_errors=?, last_run_ms=?, next_run_ms=?, updated_at_ms=?
		WHERE id=?`,
		consecutiveErrors, run.StartedAtMs, nextMs, nowMs(), job.ID)
	return err
}

// ListRuns returns the most recent runs for a job, newest first (spec.md
// §4.9: "get run-history(job-id, limit)").
func (s *Store) ListRuns(ctx context.Context, jobID string, limit int) ([]Run, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, job_id, started_at_ms, finished_at_ms, success, error
		FROM cron_runs WHERE job_id=? ORDER BY started_at_ms DESC LIMIT ?`, jobID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Run
	for rows.Next() {
		var r Run
		var success int
		if err := rows.Scan(&r.ID, &r.JobID, &r.StartedAtMs, &r.FinishedAtMs, &success, &r.Error); err != nil {
			return nil, err
		}
		r.Success = success != 0
		out = append(out, r)
	}
	return out, rows.Err()
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func uuidOrNew(id string) string {
	if id != "" {
		return id
	}
	return uuid.NewString()
}

func nowMs() int64 {
	return time.Now().UTC().UnixMilli()
}
