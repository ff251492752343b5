// Package summarizer implements the extract-then-compact pipeline
// (spec.md §4.11): a memory flush of the oldest half of a session's
// messages into today's daily note, followed by a summary of the whole
// session stored back through the session store (which also trims the
// log). Grounded on the teacher's pkg/agent/loop.go summarizeSession /
// summarizeBatch flow, split out of the agent loop into its own package
// since nothing about it depends on tool execution or context building —
// only the session store and provider registry.
package summarizer

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/janus-run/janus/internal/logger"
	"github.com/janus-run/janus/internal/providers"
	"github.com/janus-run/janus/internal/session"
)

const flushInstruction = `Extract important facts, decisions, and learnings from this conversation excerpt. Be concise — bullet points only. If nothing worth remembering, respond with NONE.`

const summarizeInstruction = `Summarize concisely: decisions, key context, current state.`

const keepLastMessages = 4

// Summarizer runs the flush-then-summarize pipeline for one session.
type Summarizer struct {
	sessions  *session.Store
	registry  *providers.Registry
	workspace string
	now       func() time.Time
}

func New(sessions *session.Store, registry *providers.Registry, workspace string) *Summarizer {
	return &Summarizer{sessions: sessions, registry: registry, workspace: workspace, now: time.Now}
}

// Run splits the session's messages in half, flushes the oldest half's
// durable facts to today's daily note, then summarizes the whole session
// and trims the log via the session store.
func (s *Summarizer) Run(ctx context.Context, sessionKey string) error {
	history := s.sessions.GetHistory(sessionKey)
	if len(history) == 0 {
		return nil
	}

	mid := len(history) / 2
	oldestHalf := history[:mid]

	if len(oldestHalf) > 0 {
		if err := s.flush(ctx, oldestHalf); err != nil {
			logger.WarnCF("summarizer", "memory flush failed", map[string]interface{}{"session": sessionKey, "error": err.Error()})
		}
	}

	existingSummary := s.sessions.GetSummary(sessionKey)
	summary, err := s.summarize(ctx, history, existingSummary)
	if err != nil {
		return fmt.Errorf("summarize session: %w", err)
	}

	return s.sessions.Summarize(sessionKey, summary, keepLastMessages)
}

func (s *Summarizer) flush(ctx context.Context, batch []providers.Message) error {
	transcript := flattenTranscript(batch)
	messages := []providers.Message{
		{Role: "system", Content: flushInstruction},
		{Role: "user", Content: transcript},
	}

	resp, err := s.registry.Chat(ctx, messages, nil, "flush", nil)
	if err != nil {
		return err
	}

	reply := strings.TrimSpace(resp.Content)
	if reply == "NONE" || reply == "" {
		return nil
	}

	return s.appendToDailyNote(reply)
}

func (s *Summarizer) summarize(ctx context.Context, history []providers.Message, existingSummary string) (string, error) {
	transcript := flattenTranscript(history)
	userContent := transcript
	if existingSummary != "" {
		userContent = "Previous summary:\n" + existingSummary + "\n\nTranscript:\n" + transcript
	}

	messages := []providers.Message{
		{Role: "system", Content: summarizeInstruction},
		{Role: "user", Content: userContent},
	}

	resp, err := s.registry.Chat(ctx, messages, nil, "summarize", nil)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(resp.Content), nil
}

func flattenTranscript(messages []providers.Message) string {
	var sb strings.Builder
	for _, m := range messages {
		if m.Role == "tool" {
			continue
		}
		fmt.Fprintf(&sb, "%s: %s\n", m.Role, m.Content)
	}
	return sb.String()
}

func (s *Summarizer) appendToDailyNote(notes string) error {
	dir := filepath.Join(s.workspace, "memory")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}

	path := filepath.Join(dir, s.now().Format("2006-01-02")+".md")
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return err
	}
	defer f.Close()

	_, err = fmt.Fprintf(f, "\n## Session notes\n%s\n", notes)
	return err
}
