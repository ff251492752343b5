// Package learner implements the append-only ExecutionRecord log and
// similarity-based recommendation (spec.md §4.12). Storage is the
// learner_records table internal/store already migrates; the JSONL-append
// shape is adapted from the teacher's pkg/metrics/tracker.go, generalized
// from token-cost-only events to the full ExecutionRecord the spec names.
package learner

import (
	"context"
	"database/sql"
	"sort"
	"strconv"
	"strings"

	"github.com/google/uuid"
)

// ExecutionRecord is one completed agent-loop run.
type ExecutionRecord struct {
	ID          string
	SessionKey  string
	TaskSummary string
	ToolsUsed   []string
	Iterations  int
	ToolCalls   int
	DurationMs  int64
	Success     bool
	Error       string
	CreatedAtMs int64
}

// Recommendation aggregates the top-N most similar past records.
type Recommendation struct {
	AvgDurationMs   float64
	AvgIterations   float64 // rounded to 1 decimal
	AvgToolCalls    float64 // rounded to 1 decimal
	SuccessRate     float64 // rounded to 2 decimals
	SampleSize      int
	Warnings        []string
}

// Learner persists execution records and computes recommendations.
type Learner struct {
	db *sql.DB
}

func New(db *sql.DB) *Learner {
	return &Learner{db: db}
}

// Record appends one execution record.
func (l *Learner) Record(ctx context.Context, rec ExecutionRecord) error {
	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}
	_, err := l.db.ExecContext(ctx, `
		INSERT INTO learner_records
			(id, session_key, task_summary, tools_used, iterations, tool_calls, duration_ms, success, error, created_at_ms)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.ID, rec.SessionKey, rec.TaskSummary, strings.Join(rec.ToolsUsed, ","),
		rec.Iterations, rec.ToolCalls, rec.DurationMs, boolToInt(rec.Success), rec.Error, rec.CreatedAtMs,
	)
	return err
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

// tokenize extracts lowercased alphanumeric tokens of length > 2 (spec.md
// §4.12 similarity rule).
func tokenize(s string) []string {
	var out []string
	var cur strings.Builder
	flush := func() {
		if cur.Len() > 2 {
			out = append(out, cur.String())
		}
		cur.Reset()
	}
	for _, r := range strings.ToLower(s) {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') {
			cur.WriteRune(r)
		} else {
			flush()
		}
	}
	flush()
	return out
}

type scored struct {
	rec     ExecutionRecord
	overlap int
}

// Recommend finds the topN (default 10) most similar past records to
// taskSummary by token overlap and aggregates them. Returns nil if no
// records exist, or if taskSummary yields no tokens (even when records exist).
func (l *Learner) Recommend(ctx context.Context, taskSummary string, topN int) (*Recommendation, error) {
	if topN <= 0 {
		topN = 10
	}

	queryTokens := tokenize(taskSummary)
	queryTokenSet := make(map[string]bool, len(queryTokens))
	for _, t := range queryTokens {
		queryTokenSet[t] = true
	}

	rows, err := l.db.QueryContext(ctx, `
		SELECT id, session_key, task_summary, tools_used, iterations, tool_calls,
		       duration_ms, success, error, created_at_ms
		FROM learner_records`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var all []ExecutionRecord
	for rows.Next() {
		var r ExecutionRecord
		var toolsCSV string
		var successInt int
		if err := rows.Scan(&r.ID, &r.SessionKey, &r.TaskSummary, &toolsCSV, &r.Iterations,
			&r.ToolCalls, &r.DurationMs, &successInt, &r.Error, &r.CreatedAtMs); err != nil {
			return nil, err
		}
		r.Success = successInt != 0
		if toolsCSV != "" {
			r.ToolsUsed = strings.Split(toolsCSV, ",")
		}
		all = append(all, r)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	if len(all) == 0 {
		return nil, nil
	}
	if len(queryTokenSet) == 0 {
		return nil, nil
	}

	scoredRecords := make([]scored, 0, len(all))
	for _, r := range all {
		overlap := 0
		for _, t := range tokenize(r.TaskSummary) {
			if queryTokenSet[t] {
				overlap++
			}
		}
		scoredRecords = append(scoredRecords, scored{rec: r, overlap: overlap})
	}

	sort.Slice(scoredRecords, func(i, j int) bool {
		if scoredRecords[i].overlap != scoredRecords[j].overlap {
			return scoredRecords[i].overlap > scoredRecords[j].overlap
		}
		return scoredRecords[i].rec.CreatedAtMs > scoredRecords[j].rec.CreatedAtMs
	})

	if topN > len(scoredRecords) {
		topN = len(scoredRecords)
	}
	top := scoredRecords[:topN]

	var totalDuration, totalIterations, totalToolCalls float64
	var successCount int
	for _, s := range top {
		totalDuration += float64(s.rec.DurationMs)
		totalIterations += float64(s.rec.Iterations)
		totalToolCalls += float64(s.rec.ToolCalls)
		if s.rec.Success {
			successCount++
		}
	}
	n := float64(len(top))

	rec := &Recommendation{
		AvgDurationMs: totalDuration / n,
		AvgIterations: round1(totalIterations / n),
		AvgToolCalls:  round1(totalToolCalls / n),
		SuccessRate:   round2(float64(successCount) / n),
		SampleSize:    len(top),
	}

	if rec.AvgIterations > 3 {
		rec.Warnings = append(rec.Warnings, "consider breaking into smaller steps")
	}
	if rec.SuccessRate < 0.7 {
		rec.Warnings = append(rec.Warnings, "low success rate — be careful")
	}

	return rec, nil
}

func round1(f float64) float64 {
	v, _ := strconv.ParseFloat(strconv.FormatFloat(f, 'f', 1, 64), 64)
	return v
}

func round2(f float64) float64 {
	v, _ := strconv.ParseFloat(strconv.FormatFloat(f, 'f', 2, 64), 64)
	return v
}
