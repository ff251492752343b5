package scheduler

import (
	"fmt"
	"time"

	"github.com/adhocore/gronx"

	"github.com/janus-run/janus/internal/logger"
)

// BackoffLadder is consulted when a job's consecutive-errors count is > 0
// (spec.md §4.9 ticker backoff).
var BackoffLadder = []time.Duration{30 * time.Second, 60 * time.Second, 5 * time.Minute, 15 * time.Minute, 60 * time.Minute}

// NextRun is the deterministic function of schedule-kind spec.md §4.9
// describes. Returns nil with no error when the schedule naturally
// produces no further runs ("at" in the past); returns nil with a logged
// warning (and no error) for invalid expressions, matching the spec's
// "log a warning and return null" wording rather than surfacing a hard
// error to the caller.
func NextRun(kind, expr, timezone string, now, lastRun time.Time) (*time.Time, error) {
	switch kind {
	case "at":
		ts, err := time.Parse(time.RFC3339, expr)
		if err != nil {
			logger.WarnCF("scheduler", "invalid 'at' schedule expression", map[string]interface{}{"expr": expr, "error": err.Error()})
			return nil, nil
		}
		if ts.After(now) {
			return &ts, nil
		}
		return nil, nil

	case "every":
		var intervalMs int64
		if _, err := fmt.Sscanf(expr, "%d", &intervalMs); err != nil || intervalMs <= 0 {
			logger.WarnCF("scheduler", "invalid 'every' schedule expression", map[string]interface{}{"expr": expr})
			return nil, nil
		}
		base := now
		if !lastRun.IsZero() && lastRun.After(base) {
			base = lastRun
		}
		next := base.Add(time.Duration(intervalMs) * time.Millisecond)
		return &next, nil

	case "cron":
		loc := time.UTC
		if timezone != "" {
			if l, err := time.LoadLocation(timezone); err == nil {
				loc = l
			} else {
				logger.WarnCF("scheduler", "unknown cron timezone, defaulting to UTC", map[string]interface{}{"timezone": timezone})
			}
		}
		ref := now.In(loc)
		next, err := gronx.NextTickAfter(expr, ref, false)
		if err != nil {
			logger.WarnCF("scheduler", "invalid cron expression", map[string]interface{}{"expr": expr, "error": err.Error()})
			return nil, nil
		}
		utc := next.UTC()
		return &utc, nil

	default:
		logger.WarnCF("scheduler", "unknown schedule kind", map[string]interface{}{"kind": kind})
		return nil, nil
	}
}
