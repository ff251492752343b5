package providers

import (
	"context"
	"fmt"
	"sort"

	"github.com/janus-run/janus/internal/logger"
)

// Entry is one named provider registration (spec.md §4.6).
type Entry struct {
	Name         string
	Provider     LLMProvider
	DefaultModel string
	PurposeTags  []string
	Priority     int // lower is better
}

// Registry generalizes the teacher's two-provider FallbackProvider to N
// named, priority-ordered, purpose-filtered providers with failover.
// Stateless across calls: it never retries the same provider on the same
// call, and candidate order is recomputed from scratch every call.
type Registry struct {
	entries []Entry
}

func NewRegistry(entries ...Entry) *Registry {
	r := &Registry{entries: append([]Entry(nil), entries...)}
	sort.SliceStable(r.entries, func(i, j int) bool { return r.entries[i].Priority < r.entries[j].Priority })
	return r
}

// candidates filters entries by purpose tag (an entry with no tags matches
// every purpose), falling back to the full list
// if the purpose filter yields nothing (spec.md: "never throws no-match
// when any entry exists").
func (r *Registry) candidates(purpose string) []Entry {
	if purpose == "" {
		return r.entries
	}
	var matched []Entry
	for _, e := range r.entries {
		if len(e.PurposeTags) == 0 {
			matched = append(matched, e)
			continue
		}
		for _, tag := range e.PurposeTags {
			if tag == purpose {
				matched = append(matched, e)
				break
			}
		}
	}
	if len(matched) == 0 {
		return r.entries
	}
	return matched
}

// Chat tries candidates in priority order, logging and continuing past
// errors; on exhaustion it raises the last error.
func (r *Registry) Chat(ctx context.Context, messages []Message, tools []ToolDefinition, purpose string, options map[string]interface{}) (*LLMResponse, error) {
	candidates := r.candidates(purpose)
	if len(candidates) == 0 {
		return nil, fmt.Errorf("provider registry: no providers registered")
	}

	var lastErr error
	for _, e := range candidates {
		model := e.DefaultModel
		if m, ok := options["model"].(string); ok && m != "" {
			model = m
		}
		resp, err := e.Provider.Chat(ctx, messages, tools, model, options)
		if err == nil {
			return resp, nil
		}
		logger.WarnCF("providers", "provider call failed, trying next candidate", map[string]interface{}{
			"provider": e.Name,
			"purpose":  purpose,
			"error":    err.Error(),
		})
		lastErr = err
	}
	return nil, fmt.Errorf("provider registry: all candidates exhausted: %w", lastErr)
}

// ChatStream mirrors Chat; candidates without native streaming degrade to
// a single Chat call whose full content is emitted as one chunk.
func (r *Registry) ChatStream(ctx context.Context, messages []Message, tools []ToolDefinition, purpose string, options map[string]interface{}, onContent StreamCallback) (*LLMResponse, error) {
	candidates := r.candidates(purpose)
	if len(candidates) == 0 {
		return nil, fmt.Errorf("provider registry: no providers registered")
	}

	var lastErr error
	for _, e := range candidates {
		model := e.DefaultModel
		if m, ok := options["model"].(string); ok && m != "" {
			model = m
		}

		var resp *LLMResponse
		var err error
		if sp, ok := e.Provider.(StreamingProvider); ok {
			resp, err = sp.ChatStream(ctx, messages, tools, model, options, onContent)
		} else {
			resp, err = e.Provider.Chat(ctx, messages, tools, model, options)
			if err == nil {
				onContent(resp.Content)
			}
		}
		if err == nil {
			return resp, nil
		}
		logger.WarnCF("providers", "streaming provider call failed, trying next candidate", map[string]interface{}{
			"provider": e.Name,
			"purpose":  purpose,
			"error":    err.Error(),
		})
		lastErr = err
	}
	return nil, fmt.Errorf("provider registry: all streaming candidates exhausted: %w", lastErr)
}

// Len reports the number of registered entries, for diagnostics.
func (r *Registry) Len() int { return len(r.entries) }
