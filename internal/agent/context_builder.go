// Package agent implements the context builder and agent loop (spec.md
// §4.8, §4.10): the coordinator that turns one inbound message into one
// assistant reply through zero or more tool-use iterations. Grounded on
// the teacher's pkg/agent/context.go (section-join-with-`---` pattern,
// BuildMessages/BuildSpecialistMessages shape) and pkg/agent/loop.go (the
// entire runAgentLoop/runLLMIteration/drainInterrupts/maybeSummarize
// control flow), generalized to the spec's emergency-compression,
// toolRetries, and budget-trim requirements the teacher doesn't implement
// verbatim.
package agent

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/janus-run/janus/internal/config"
	"github.com/janus-run/janus/internal/learner"
	"github.com/janus-run/janus/internal/logger"
	"github.com/janus-run/janus/internal/memory"
	"github.com/janus-run/janus/internal/skills"
	"github.com/janus-run/janus/internal/tools"
	"github.com/janus-run/janus/internal/userprofile"
)

// Mode selects the full or minimal context-builder profile (spec.md §4.8).
type Mode string

const (
	ModeFull    Mode = "full"
	ModeMinimal Mode = "minimal"
)

const sectionSeparator = "\n\n---\n\n"

const skillsPolicy = `Skills extend your capabilities with specific instructions for a task. Load ONE skill's full instructions at a time via read_file on its location, only when the task clearly matches it — do not load a skill "just in case."`

// ContextBuilder assembles the system prompt from the eleven ordered
// sections spec.md §4.8 names.
type ContextBuilder struct {
	workspace    string
	homeDir      string
	skillsLoader *skills.Loader
	memoryIndex  *memory.Index
	learner      *learner.Learner
	agentCfg     config.AgentConfig
	now          func() time.Time
}

func NewContextBuilder(workspace string, skillsLoader *skills.Loader, memoryIndex *memory.Index, lrn *learner.Learner, agentCfg config.AgentConfig) *ContextBuilder {
	home, _ := os.UserHomeDir()
	return &ContextBuilder{
		workspace:    workspace,
		homeDir:      home,
		skillsLoader: skillsLoader,
		memoryIndex:  memoryIndex,
		learner:      lrn,
		agentCfg:     agentCfg,
		now:          time.Now,
	}
}

// BuildInput carries everything the prompt sections need for one call.
type BuildInput struct {
	Mode         Mode
	ToolRegistry *tools.Registry
	ToolAllow    []string
	ToolDeny     []string
	SkillAllow   []string
	SkillDeny    []string
	Profile      *userprofile.Profile
	Scope        *memory.Scope
	UserID       string
	Channel      string
	ChatID       string
	UserMessage  string
	HasUserMsg   bool
	SessionSummary string
}

// BuildSystemPrompt joins the ordered sections with the `---` delimiter.
func (cb *ContextBuilder) BuildSystemPrompt(ctx context.Context, in BuildInput) string {
	var parts []string

	// 1. identity (always)
	parts = append(parts, cb.identitySection(in))

	// 2. user (if a user binding is present)
	if in.Profile != nil {
		if s := cb.userSection(in.Profile); s != "" {
			parts = append(parts, s)
		}
	}

	if in.Mode != ModeMinimal {
		// 3. ego
		if s := cb.readHomeFile("EGO.md"); s != "" {
			parts = append(parts, "# Ego\n\n"+s)
		}
		// 4. agents
		if s := cb.readWorkspaceFile("AGENTS.md"); s != "" {
			parts = append(parts, "# Agents\n\n"+s)
		}
		// 5. heartbeat
		if s := cb.readWorkspaceFile("HEARTBEAT.md"); s != "" {
			parts = append(parts, "# Heartbeat\n\n"+s)
		}
		// 6. project
		if s := cb.readWorkspaceFile("JANUS.md"); s != "" {
			parts = append(parts, "# Project\n\n"+s)
		}
	}

	// 7. skills (always)
	parts = append(parts, cb.skillsSection(in))

	if in.Mode != ModeMinimal {
		// 8. memory
		parts = append(parts, cb.memorySection(ctx, in))

		// 9. learner (only if >3 similar samples)
		if s := cb.learnerSection(ctx, in); s != "" {
			parts = append(parts, s)
		}
	}

	// 10. session
	parts = append(parts, cb.sessionSection(in))

	// 11. previous_summary
	if in.SessionSummary != "" {
		parts = append(parts, "# Previous Summary\n\n"+in.SessionSummary)
	}

	return strings.Join(parts, sectionSeparator)
}

func (cb *ContextBuilder) identitySection(in BuildInput) string {
	now := cb.now().Format("2006-01-02 15:04 (Monday)")
	workspacePath, _ := filepath.Abs(cb.workspace)

	var toolsBlock string
	if in.ToolRegistry != nil {
		summaries := in.ToolRegistry.Summaries(in.ToolAllow, in.ToolDeny)
		if len(summaries) > 0 {
			toolsBlock = "\n\n## Available Tools\n\n" + strings.Join(summaries, "\n")
		}
	}

	return fmt.Sprintf(`# Identity

Current time: %s
Workspace: %s%s`, now, workspacePath, toolsBlock)
}

func (cb *ContextBuilder) userSection(p *userprofile.Profile) string {
	var sb strings.Builder
	sb.WriteString("# User\n\n")
	if p.DisplayName != "" {
		fmt.Fprintf(&sb, "Name: %s\n", p.DisplayName)
	}
	if p.UserID != "" {
		fmt.Fprintf(&sb, "User ID: %s\n", p.UserID)
	}
	if p.Doc != "" {
		fmt.Fprintf(&sb, "\n%s\n", p.Doc)
	}
	return sb.String()
}

func (cb *ContextBuilder) readWorkspaceFile(name string) string {
	data, err := os.ReadFile(filepath.Join(cb.workspace, name))
	if err != nil {
		return ""
	}
	return string(data)
}

func (cb *ContextBuilder) readHomeFile(name string) string {
	if cb.homeDir == "" {
		return ""
	}
	data, err := os.ReadFile(filepath.Join(cb.homeDir, ".janus", name))
	if err != nil {
		return ""
	}
	return string(data)
}

func (cb *ContextBuilder) skillsSection(in BuildInput) string {
	var sb strings.Builder
	sb.WriteString("# Skills\n\n")
	sb.WriteString(skillsPolicy)
	sb.WriteString("\n\n")

	if cb.skillsLoader == nil {
		return strings.TrimRight(sb.String(), "\n")
	}

	all := skills.Filtered(cb.skillsLoader.List(), in.SkillAllow, in.SkillDeny)

	maxEntries := cb.agentCfg.MaxSkillsInPrompt
	if maxEntries <= 0 {
		maxEntries = 150
	}
	maxChars := cb.agentCfg.MaxSkillsPromptChars
	if maxChars <= 0 {
		maxChars = 30000
	}

	var bodyLen int
	var truncated bool
	for i, s := range all {
		if i >= maxEntries {
			truncated = true
			break
		}

		var entry string
		if s.Always {
			entry = fmt.Sprintf("<skill name=%q always=\"true\">\n%s\n</skill>\n", s.Name, s.Body)
		} else {
			entry = fmt.Sprintf("<skill name=%q description=%q location=%q/>\n", s.Name, s.Description, s.Location)
		}

		if bodyLen+len(entry) > maxChars {
			truncated = true
			break
		}
		sb.WriteString(entry)
		bodyLen += len(entry)
	}

	if truncated {
		sb.WriteString(fmt.Sprintf("\n[... %d additional skills truncated ...]\n", len(all)-countWritten(sb.String())))
	}

	return strings.TrimRight(sb.String(), "\n")
}

// countWritten is a best-effort skill-entry count used only for the
// truncation message; exact precision isn't load-bearing.
func countWritten(s string) int {
	return strings.Count(s, "<skill ")
}

func (cb *ContextBuilder) memorySection(ctx context.Context, in BuildInput) string {
	if cb.memoryIndex != nil && in.HasUserMsg {
		results, err := cb.memoryIndex.HybridSearch(ctx, in.UserMessage, 5, in.Scope)
		if err == nil && len(results) > 0 {
			section := "# Memory\n\n" + memory.FormatResults(results)
			if note := cb.todayNote(); note != "" {
				section += "\n\n## Today\n\n" + note
			}
			return section
		}
		if err != nil {
			logger.WarnCF("agent", "memory search failed, falling back to raw dump", map[string]interface{}{"error": err.Error()})
		}
	}

	// Fallback: full dump of MEMORY.md plus the last three daily notes.
	var sb strings.Builder
	sb.WriteString("# Memory\n\n")
	if s := cb.readMemoryFile("MEMORY.md"); s != "" {
		sb.WriteString(s)
		sb.WriteString("\n\n")
	}
	for _, note := range cb.recentDailyNotes(3) {
		sb.WriteString(note)
		sb.WriteString("\n\n")
	}
	return strings.TrimRight(sb.String(), "\n")
}

func (cb *ContextBuilder) readMemoryFile(name string) string {
	data, err := os.ReadFile(filepath.Join(cb.workspace, "memory", name))
	if err != nil {
		return ""
	}
	return string(data)
}

func (cb *ContextBuilder) todayNote() string {
	name := cb.now().Format("2006-01-02") + ".md"
	return cb.readMemoryFile(name)
}

func (cb *ContextBuilder) recentDailyNotes(n int) []string {
	dir := filepath.Join(cb.workspace, "memory")
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil
	}

	var names []string
	for _, e := range entries {
		if !e.IsDir() && strings.HasSuffix(e.Name(), ".md") && e.Name() != "MEMORY.md" {
			names = append(names, e.Name())
		}
	}
	sort.Sort(sort.Reverse(sort.StringSlice(names)))

	if len(names) > n {
		names = names[:n]
	}
	var out []string
	for _, name := range names {
		if data, err := os.ReadFile(filepath.Join(dir, name)); err == nil {
			out = append(out, string(data))
		}
	}
	return out
}

func (cb *ContextBuilder) learnerSection(ctx context.Context, in BuildInput) string {
	if cb.learner == nil || !in.HasUserMsg {
		return ""
	}
	rec, err := cb.learner.Recommend(ctx, in.UserMessage, 10)
	if err != nil {
		logger.WarnCF("agent", "learner recommendation failed", map[string]interface{}{"error": err.Error()})
		return ""
	}
	if rec == nil || rec.SampleSize <= 3 {
		return ""
	}

	var sb strings.Builder
	sb.WriteString("# Similar Past Tasks\n\n")
	fmt.Fprintf(&sb, "Based on %d similar past tasks: avg duration %.0fms, avg iterations %.1f, avg tool calls %.1f, success rate %.2f.\n",
		rec.SampleSize, rec.AvgDurationMs, rec.AvgIterations, rec.AvgToolCalls, rec.SuccessRate)
	for _, w := range rec.Warnings {
		fmt.Fprintf(&sb, "- %s\n", w)
	}
	return sb.String()
}

func (cb *ContextBuilder) sessionSection(in BuildInput) string {
	var sb strings.Builder
	sb.WriteString("# Session\n\n")
	fmt.Fprintf(&sb, "Channel: %s\nChat ID: %s\n", in.Channel, in.ChatID)
	if in.UserID != "" {
		fmt.Fprintf(&sb, "User ID: %s\n", in.UserID)
	}
	if in.Scope != nil {
		fmt.Fprintf(&sb, "Scope: %s:%s\n", in.Scope.Kind, in.Scope.ID)
	}
	return strings.TrimRight(sb.String(), "\n")
}
