package scheduler

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"regexp"
	"strconv"
	"strings"

	"github.com/janus-run/janus/internal/logger"
)

var (
	headingPattern = regexp.MustCompile(`^##\s+(.+)$`)
	fieldPattern   = regexp.MustCompile(`^-\s*([a-zA-Z]+)\s*:\s*(.+)$`)
	everyPattern   = regexp.MustCompile(`^every\s+(\d+)\s*([mhd])$`)
	cronPattern    = regexp.MustCompile(`^(\S+\s+\S+\s+\S+\s+\S+\s+\S+)$`)
)

type heartbeatTask struct {
	name     string
	schedule string
	task     string
}

// LoadHeartbeat parses HEARTBEAT.md's "level-2 heading = task name; body
// contains bullet lines `- schedule: ...` and `- task: ...`" format (spec.md
// §6 HEARTBEAT.md format) and upserts each recognized task by name.
func LoadHeartbeat(ctx context.Context, path string, store *Store, channel, chatID string) error {
	f, err := os.Open(path)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("open heartbeat file: %w", err)
	}
	defer f.Close()

	tasks := parseHeartbeat(f)
	for _, t := range tasks {
		kind, expr, ok := parseSchedule(t.schedule)
		if !ok {
			logger.WarnCF("scheduler", "skipping heartbeat task with unrecognized schedule", map[string]interface{}{"task": t.name, "schedule": t.schedule})
			continue
		}

		job := Job{
			Name:         t.name,
			ScheduleKind: kind,
			ScheduleExpr: expr,
			Timezone:     "UTC",
			Prompt:       t.task,
			Channel:      channel,
			ChatID:       chatID,
		}
		if _, err := store.Upsert(ctx, job); err != nil {
			logger.ErrorCF("scheduler", "failed to upsert heartbeat task", map[string]interface{}{"task": t.name, "error": err.Error()})
		}
	}
	return nil
}

func parseHeartbeat(f *os.File) []heartbeatTask {
	var tasks []heartbeatTask
	var current *heartbeatTask

	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())

		if m := headingPattern.FindStringSubmatch(line); m != nil {
			if current != nil {
				tasks = append(tasks, *current)
			}
			current = &heartbeatTask{name: strings.TrimSpace(m[1])}
			continue
		}

		if current == nil {
			continue
		}

		if m := fieldPattern.FindStringSubmatch(line); m != nil {
			switch strings.ToLower(m[1]) {
			case "schedule":
				current.schedule = strings.TrimSpace(m[2])
			case "task":
				current.task = strings.TrimSpace(m[2])
			}
		}
	}
	if current != nil {
		tasks = append(tasks, *current)
	}
	return tasks
}

// parseSchedule turns "every <N><m|h|d>" into an ("every", millisecond)
// pair, or a literal 5-field cron string into ("cron", expr).
func parseSchedule(raw string) (kind, expr string, ok bool) {
	raw = strings.TrimSpace(raw)

	if m := everyPattern.FindStringSubmatch(raw); m != nil {
		n, err := strconv.Atoi(m[1])
		if err != nil {
			return "", "", false
		}
		var unitMs int64
		switch m[2] {
		case "m":
			unitMs = 60_000
		case "h":
			unitMs = 3_600_000
		case "d":
			unitMs = 86_400_000
		}
		return "every", strconv.FormatInt(int64(n)*unitMs, 10), true
	}

	if cronPattern.MatchString(raw) {
		return "cron", raw, true
	}

	return "", "", false
}
