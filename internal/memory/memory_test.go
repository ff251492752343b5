package memory

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/janus-run/janus/internal/store"
)

func openTestIndex(t *testing.T) *Index {
	t.Helper()
	s, err := store.Open(filepath.Join(t.TempDir(), "janus.db"))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	idx := NewIndex(s, NewLocalHashEmbedder())
	return idx
}

func TestSplitIntoChunksHeadingsAndPreamble(t *testing.T) {
	content := "Intro text.\n\n## First\nfirst body\n\n## Second\nsecond body\n"
	chunks := SplitIntoChunks("Doc Title", content)
	if len(chunks) != 3 {
		t.Fatalf("expected 3 chunks (preamble + 2 headings), got %d: %+v", len(chunks), chunks)
	}
	if chunks[0].Heading != "Doc Title" {
		t.Fatalf("expected preamble heading to use title, got %q", chunks[0].Heading)
	}
	if chunks[1].Heading != "First" || chunks[2].Heading != "Second" {
		t.Fatalf("unexpected headings: %+v", chunks)
	}
}

func TestSplitIntoChunksSubdividesLongSections(t *testing.T) {
	para := "word "
	var long string
	for i := 0; i < 300; i++ {
		long += para
	}
	content := "## Big\n" + long + "\n\n" + long
	chunks := SplitIntoChunks("", content)
	if len(chunks) < 2 {
		t.Fatalf("expected long section subdivided into multiple chunks, got %d", len(chunks))
	}
	for _, c := range chunks {
		if len(c.Content) > maxChunkChars+len(para) {
			t.Fatalf("chunk exceeds max size: %d chars", len(c.Content))
		}
	}
}

func TestIndexFileAndKeywordSearch(t *testing.T) {
	idx := openTestIndex(t)
	ctx := context.Background()

	err := idx.IndexFile(ctx, "notes.md", "Notes", "## Storage\nWe decided to use SQLite for persistence.\n", "shared", "global", "", false)
	if err != nil {
		t.Fatalf("index file: %v", err)
	}

	results, err := idx.KeywordSearch(ctx, "sqlite persistence", 5, nil)
	if err != nil {
		t.Fatalf("keyword search: %v", err)
	}
	if len(results) != 1 {
		t.Fatalf("expected 1 result, got %d", len(results))
	}
	if results[0].Heading != "Storage" {
		t.Fatalf("unexpected heading: %q", results[0].Heading)
	}
}

func TestKeywordSearchEvergreenSkipsDecay(t *testing.T) {
	idx := openTestIndex(t)
	old := time.Now().Add(-60 * 24 * time.Hour)
	idx.now = func() time.Time { return time.Now() }

	ctx := context.Background()
	// Seed directly so we can control updated_at_ms to be old.
	if err := idx.IndexFile(ctx, evergreenSource, "Memory", "## Facts\nthe sky is blue\n", "shared", "global", "", false); err != nil {
		t.Fatalf("index evergreen: %v", err)
	}
	_, err := idx.db.Exec(`UPDATE memory_chunks SET updated_at_ms = ? WHERE source = ?`, old.UnixMilli(), evergreenSource)
	if err != nil {
		t.Fatalf("backdate: %v", err)
	}

	results, err := idx.KeywordSearch(ctx, "sky blue", 5, nil)
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if len(results) != 1 {
		t.Fatalf("expected 1 result, got %d", len(results))
	}
	// evergreen chunk's decay must be 1.0 regardless of age, so score == base
	if results[0].Score <= 0 {
		t.Fatalf("expected positive score for evergreen chunk, got %f", results[0].Score)
	}
}

func TestScopeFilterUserRules(t *testing.T) {
	results := []Result{
		{ID: "a", Owner: "shared", ScopeKind: "global"},
		{ID: "b", Owner: "u1", ScopeKind: "user", ScopeID: "u1"},
		{ID: "c", Owner: "u2", ScopeKind: "user", ScopeID: "u2"},
		{ID: "d", Owner: "shared", ScopeKind: "family", ScopeID: "f1"},
	}

	filtered := filterScope(results, &Scope{Kind: "user", ID: "u1"})
	if len(filtered) != 2 {
		t.Fatalf("expected 2 results for user scope, got %d: %+v", len(filtered), filtered)
	}
	ids := map[string]bool{}
	for _, r := range filtered {
		ids[r.ID] = true
	}
	if !ids["a"] || !ids["b"] {
		t.Fatalf("expected global(a) and own-user(b) chunks, got %+v", filtered)
	}
}

func TestScopeFilterFamilyRules(t *testing.T) {
	results := []Result{
		{ID: "a", Owner: "shared", ScopeKind: "global"},
		{ID: "b", Owner: "u1", ScopeKind: "user", ScopeID: "u1"},
		{ID: "d", Owner: "shared", ScopeKind: "family", ScopeID: "f1"},
	}
	filtered := filterScope(results, &Scope{Kind: "family", ID: "f1"})
	if len(filtered) != 2 {
		t.Fatalf("expected 2 results for family scope, got %d: %+v", len(filtered), filtered)
	}
}

func TestHybridSearchFusesBranches(t *testing.T) {
	idx := openTestIndex(t)
	ctx := context.Background()

	if err := idx.IndexFile(ctx, "notes.md", "Notes", "## Plan\nWe will ship the SQLite backed memory index next sprint.\n", "shared", "global", "", true); err != nil {
		t.Fatalf("index: %v", err)
	}

	results, err := idx.HybridSearch(ctx, "sqlite memory index", 5, nil)
	if err != nil {
		t.Fatalf("hybrid search: %v", err)
	}
	if len(results) == 0 {
		t.Fatal("expected at least one fused result")
	}
}
