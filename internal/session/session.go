// Package session implements the per-conversation append-only log (spec.md
// §4.4): atomic temp-write-then-rename persistence, an in-memory cache, and
// orphan-tool-prefix repair on load. Grounded on the teacher's
// pkg/state/topic_mapping.go atomic-write pattern and the call shape used
// throughout pkg/agent/loop.go (GetHistory/GetSummary/AddMessage/
// AddFullMessage/SetSummary/TruncateHistory/Save) — the teacher's own
// session package was not present in the retrieval pack, so its contract is
// reconstructed from those call sites and from spec.md §4.4's explicit
// on-disk format.
package session

import (
	"bufio"
	"encoding/json"
	"fmt"
	"math/rand"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/janus-run/janus/internal/logger"
	"github.com/janus-run/janus/internal/providers"
)

// Metadata is the first line of a session file.
type Metadata struct {
	Type         string `json:"_type"`
	Key          string `json:"key"`
	Created      string `json:"created"`
	Updated      string `json:"updated"`
	MessageCount int    `json:"messageCount"`
	Summary      string `json:"summary,omitempty"`
}

// entry is one line of a session file after the metadata header: either a
// metadata record (unused after the first line) or a message record.
type entry struct {
	Role       string `json:"role"`
	Content    string `json:"content"`
	ToolCallID string `json:"tool_call_id,omitempty"`
	ToolCalls  []struct {
		ID        string                 `json:"id"`
		Name      string                 `json:"name"`
		Arguments map[string]interface{} `json:"arguments"`
	} `json:"tool_calls,omitempty"`
}

type sessionState struct {
	meta    Metadata
	history []providers.Message
}

// Store is the process-wide session cache and on-disk persistence layer.
// Cache entries are owned by the store; callers get copies of the history
// slice, not references, so that summarize's in-place rewrite can't alias a
// caller's slice (spec.md §9 ownership note).
type Store struct {
	mu      sync.Mutex
	dir     string
	entries map[string]*sessionState
}

func NewStore(dir string) *Store {
	os.MkdirAll(dir, 0o755)
	return &Store{dir: dir, entries: make(map[string]*sessionState)}
}

// sanitizeKey substitutes path-unsafe characters (spec.md §4.4: "channel:chat-id
// with path-unsafe characters substituted").
func sanitizeKey(key string) string {
	replacer := strings.NewReplacer(":", "_", "/", "_", "\\", "_", " ", "_")
	return replacer.Replace(key)
}

func (s *Store) path(key string) string {
	return filepath.Join(s.dir, sanitizeKey(key)+".jsonl")
}

// getOrCreate returns the cached session, loading from disk or creating a
// fresh one if absent.
func (s *Store) getOrCreate(key string) *sessionState {
	if st, ok := s.entries[key]; ok {
		return st
	}

	st := s.loadFromDisk(key)
	if st == nil {
		now := time.Now().UTC().Format(time.RFC3339)
		st = &sessionState{meta: Metadata{Type: "metadata", Key: key, Created: now, Updated: now}}
	}
	s.entries[key] = st
	return st
}

// loadFromDisk parses the on-disk file, stripping any orphan tool-role
// prefix. Corrupt metadata restarts with an empty session; invalid message
// lines are skipped with a warning (spec.md §4.4, §9.2 "Session parse
// error").
func (s *Store) loadFromDisk(key string) *sessionState {
	f, err := os.Open(s.path(key))
	if err != nil {
		return nil
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	var meta Metadata
	if !scanner.Scan() {
		return nil
	}
	if err := json.Unmarshal(scanner.Bytes(), &meta); err != nil || meta.Type != "metadata" {
		logger.WarnCF("session", "corrupt session metadata, starting fresh", map[string]interface{}{"key": key})
		now := time.Now().UTC().Format(time.RFC3339)
		return &sessionState{meta: Metadata{Type: "metadata", Key: key, Created: now, Updated: now}}
	}

	var history []providers.Message
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(strings.TrimSpace(string(line))) == 0 {
			continue
		}
		var e entry
		if err := json.Unmarshal(line, &e); err != nil {
			logger.WarnCF("session", "skipping invalid session message line", map[string]interface{}{"key": key})
			continue
		}
		msg := providers.Message{Role: e.Role, Content: e.Content, ToolCallID: e.ToolCallID}
		for _, tc := range e.ToolCalls {
			msg.ToolCalls = append(msg.ToolCalls, providers.ToolCall{ID: tc.ID, Name: tc.Name, Arguments: tc.Arguments})
		}
		history = append(history, msg)
	}

	return &sessionState{meta: meta, history: stripOrphanToolPrefix(history)}
}

// stripOrphanToolPrefix discards any leading run of tool-role messages not
// preceded by a surviving assistant+tool_calls pair (spec.md §4: "the
// history passed to the LLM begins at message k+1" when a log starts with
// k ≥ 1 tool-role messages).
func stripOrphanToolPrefix(history []providers.Message) []providers.Message {
	i := 0
	for i < len(history) && history[i].Role == "tool" {
		i++
	}
	if i == 0 {
		return history
	}
	logger.WarnCF("session", "stripped orphan tool-role prefix", map[string]interface{}{"count": i})
	return history[i:]
}

// GetHistory returns a copy of the cached message history.
func (s *Store) GetHistory(key string) []providers.Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	st := s.getOrCreate(key)
	out := make([]providers.Message, len(st.history))
	copy(out, st.history)
	return out
}

// GetSummary returns the session's stored summary text, if any.
func (s *Store) GetSummary(key string) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.getOrCreate(key).meta.Summary
}

// AddMessage appends a plain text message and persists.
func (s *Store) AddMessage(key, role, content string) {
	s.AddFullMessage(key, providers.Message{Role: role, Content: content})
}

// AddFullMessage appends an arbitrary message (including tool_calls /
// tool_call_id) and persists.
func (s *Store) AddFullMessage(key string, msg providers.Message) {
	s.mu.Lock()
	defer s.mu.Unlock()
	st := s.getOrCreate(key)
	st.history = append(st.history, msg)
	st.meta.MessageCount = len(st.history)
	st.meta.Updated = time.Now().UTC().Format(time.RFC3339)
	s.saveLocked(key, st)
}

// SetSummary stores a summary string in the session's metadata.
func (s *Store) SetSummary(key, summary string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	st := s.getOrCreate(key)
	st.meta.Summary = summary
	st.meta.Updated = time.Now().UTC().Format(time.RFC3339)
}

// TruncateHistory keeps only the last n messages (spec.md §4.4 summarize:
// "keep the last 4 messages").
func (s *Store) TruncateHistory(key string, n int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	st := s.getOrCreate(key)
	if len(st.history) > n {
		st.history = append([]providers.Message(nil), st.history[len(st.history)-n:]...)
	}
	st.meta.MessageCount = len(st.history)
}

// Summarize stores a summary and trims history to the last keepLast
// messages in one atomic persisted update (spec.md §4.11: "store the
// result via the Session Store's summarize operation, which also trims
// the log").
func (s *Store) Summarize(key, summary string, keepLast int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	st := s.getOrCreate(key)
	st.meta.Summary = summary
	if len(st.history) > keepLast {
		st.history = append([]providers.Message(nil), st.history[len(st.history)-keepLast:]...)
	}
	st.meta.MessageCount = len(st.history)
	st.meta.Updated = time.Now().UTC().Format(time.RFC3339)
	return s.saveLocked(key, st)
}

// Save persists the current in-memory state to disk atomically.
func (s *Store) Save(key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.saveLocked(key, s.getOrCreate(key))
}

func (s *Store) saveLocked(key string, st *sessionState) error {
	var buf strings.Builder
	metaLine, err := json.Marshal(st.meta)
	if err != nil {
		return fmt.Errorf("marshal session metadata: %w", err)
	}
	buf.Write(metaLine)
	buf.WriteByte('\n')

	for _, msg := range st.history {
		e := entry{Role: msg.Role, Content: msg.Content, ToolCallID: msg.ToolCallID}
		for _, tc := range msg.ToolCalls {
			e.ToolCalls = append(e.ToolCalls, struct {
				ID        string                 `json:"id"`
				Name      string                 `json:"name"`
				Arguments map[string]interface{} `json:"arguments"`
			}{ID: tc.ID, Name: tc.Name, Arguments: tc.Arguments})
		}
		line, err := json.Marshal(e)
		if err != nil {
			return fmt.Errorf("marshal session message: %w", err)
		}
		buf.Write(line)
		buf.WriteByte('\n')
	}

	path := s.path(key)
	tmp := fmt.Sprintf("%s.%d.tmp", path, rand.Int63())
	if err := os.WriteFile(tmp, []byte(buf.String()), 0o644); err != nil {
		return fmt.Errorf("write temp session file: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("rename temp session file: %w", err)
	}
	return nil
}
