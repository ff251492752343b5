// Package memory implements the hybrid keyword/vector memory index
// (spec.md §4.5): SQLite+FTS5 keyword search with temporal decay, a
// brute-force cosine vector search with an optional chromem-go mirror, and
// Reciprocal Rank Fusion across both. Grounded on the teacher's
// pkg/memory/vectorstore.go (Search/SearchScoped/FormatResults shapes,
// provenance formatting), adapted from chromem-go-only storage to SQLite as
// the source of truth per SPEC_FULL.md's domain-stack decision.
package memory

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/binary"
	"fmt"
	"math"
	"sort"
	"strings"
	"time"

	"github.com/philippgille/chromem-go"

	"github.com/janus-run/janus/internal/logger"
	"github.com/janus-run/janus/internal/store"
)

const (
	evergreenSource = "MEMORY.md"
	decayHalfLife   = 30 * 24 * time.Hour
	rrfK            = 60
)

// Scope mirrors bus.Scope without importing the bus package (avoids an
// import cycle: bus -> media, memory -> store only).
type Scope struct {
	Kind string // "user" | "family"
	ID   string
}

// Result is one scored memory hit.
type Result struct {
	ID        string
	Source    string
	Heading   string
	Content   string
	Score     float64
	Owner     string
	ScopeKind string
	ScopeID   string
	Evergreen bool
	UpdatedAt time.Time
}

// Index is the memory subsystem's entry point.
type Index struct {
	db       *sql.DB
	embedder Embedder
	mirror   *chromem.Collection // optional vector mirror
	now      func() time.Time
}

// NewIndex wires a store.Store and an Embedder into a queryable index.
func NewIndex(s *store.Store, embedder Embedder) *Index {
	if embedder == nil {
		embedder = NewLocalHashEmbedder()
	}
	return &Index{db: s.DB, embedder: embedder, now: time.Now}
}

// WithChromemMirror attaches an optional chromem-go collection that mirrors
// every indexed chunk, for callers who want chromem's own ANN search path
// in addition to the brute-force cosine scan (spec.md §4.5 "optionally
// mirrored").
func (idx *Index) WithChromemMirror(c *chromem.Collection) { idx.mirror = c }

// IndexFile deletes all prior chunks for (source, owner, scope) and inserts
// fresh ones in a single transaction (spec.md §4.5 indexFile).
func (idx *Index) IndexFile(ctx context.Context, source, title, content, owner, scopeKind, scopeID string, withEmbeddings bool) error {
	chunks := SplitIntoChunks(title, content)

	tx, err := idx.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin index transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM memory_chunks WHERE source = ? AND owner = ? AND scope_kind = ? AND scope_id = ?`,
		source, owner, scopeKind, scopeID); err != nil {
		return fmt.Errorf("delete prior chunks: %w", err)
	}

	now := idx.now().UnixMilli()
	evergreen := source == evergreenSource

	for i, c := range chunks {
		id := chunkID(source, owner, scopeKind, scopeID, i)

		var embedding []byte
		if withEmbeddings {
			vec, err := idx.embedder.Embed(ctx, c.Content)
			if err != nil {
				logger.WarnCF("memory", "embedding failed, indexing without vector", map[string]interface{}{"error": err.Error()})
			} else {
				embedding = encodeVector(vec)
			}
		}

		if _, err := tx.ExecContext(ctx, `INSERT INTO memory_chunks
			(id, source, heading, content, owner, scope_kind, scope_id, evergreen, embedding, created_at_ms, updated_at_ms)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			id, source, c.Heading, c.Content, owner, scopeKind, scopeID, boolToInt(evergreen), embedding, now, now); err != nil {
			return fmt.Errorf("insert chunk: %w", err)
		}

		if idx.mirror != nil {
			_ = idx.mirror.AddDocument(ctx, chromem.Document{ID: id, Content: c.Content, Metadata: map[string]string{
				"source": source, "owner": owner, "scope_kind": scopeKind, "scope_id": scopeID,
			}})
		}
	}

	return tx.Commit()
}

func chunkID(source, owner, scopeKind, scopeID string, idx int) string {
	sum := sha256.Sum256([]byte(fmt.Sprintf("%s|%s|%s|%s|%d", source, owner, scopeKind, scopeID, idx)))
	return fmt.Sprintf("%x", sum[:8])
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func encodeVector(vec []float32) []byte {
	buf := make([]byte, 4*len(vec))
	for i, v := range vec {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(v))
	}
	return buf
}

func decodeVector(buf []byte) []float32 {
	vec := make([]float32, len(buf)/4)
	for i := range vec {
		vec[i] = math.Float32frombits(binary.LittleEndian.Uint32(buf[i*4:]))
	}
	return vec
}

// sanitizeQuery lowercases and keeps alphanumeric words of length ≥3
// (spec.md §4.5 Keyword search).
func sanitizeQuery(query string) []string {
	var words []string
	for _, tok := range tokenize(query) {
		if len(tok) >= 3 {
			words = append(words, tok)
		}
	}
	return words
}

// KeywordSearch runs an FTS5 MATCH query, rescores by temporal decay, and
// returns up to limit results.
func (idx *Index) KeywordSearch(ctx context.Context, query string, limit int, scope *Scope) ([]Result, error) {
	words := sanitizeQuery(query)
	if len(words) == 0 {
		return nil, nil
	}
	matchExpr := strings.Join(words, " OR ")

	fetch := limit * 5
	rows, err := idx.db.QueryContext(ctx, `
		SELECT mc.id, mc.source, mc.heading, mc.content, mc.owner, mc.scope_kind, mc.scope_id,
		       mc.evergreen, mc.updated_at_ms, bm25(memory_chunks_fts) AS rank
		FROM memory_chunks_fts
		JOIN memory_chunks mc ON mc.rowid = memory_chunks_fts.rowid
		WHERE memory_chunks_fts MATCH ?
		ORDER BY rank
		LIMIT ?`, matchExpr, fetch)
	if err != nil {
		return nil, fmt.Errorf("fts query: %w", err)
	}
	defer rows.Close()

	now := idx.now()
	var results []Result
	for rows.Next() {
		var r Result
		var evergreenInt int
		var updatedMs int64
		var rank float64
		if err := rows.Scan(&r.ID, &r.Source, &r.Heading, &r.Content, &r.Owner, &r.ScopeKind, &r.ScopeID,
			&evergreenInt, &updatedMs, &rank); err != nil {
			return nil, fmt.Errorf("scan fts row: %w", err)
		}
		r.Evergreen = evergreenInt != 0
		r.UpdatedAt = time.UnixMilli(updatedMs)

		base := -rank // bm25 is lower-is-better; negate so higher is better
		decay := 1.0
		if !r.Evergreen {
			age := now.Sub(r.UpdatedAt)
			decay = math.Pow(0.5, float64(age)/float64(decayHalfLife))
		}
		r.Score = base * decay
		results = append(results, r)
	}

	results = filterScope(results, scope)
	sort.SliceStable(results, func(i, j int) bool { return results[i].Score > results[j].Score })
	if len(results) > limit {
		results = results[:limit]
	}
	return results, nil
}

// VectorSearch computes the query embedding and does a brute-force cosine
// scan against every chunk that has a stored embedding, keeping the top
// 2×limit (spec.md §4.5 Vector search).
func (idx *Index) VectorSearch(ctx context.Context, query string, limit int, scope *Scope) ([]Result, error) {
	queryVec, err := idx.embedder.Embed(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}

	rows, err := idx.db.QueryContext(ctx, `
		SELECT id, source, heading, content, owner, scope_kind, scope_id, evergreen, updated_at_ms, embedding
		FROM memory_chunks WHERE embedding IS NOT NULL`)
	if err != nil {
		return nil, fmt.Errorf("query chunks: %w", err)
	}
	defer rows.Close()

	var results []Result
	for rows.Next() {
		var r Result
		var evergreenInt int
		var updatedMs int64
		var embedding []byte
		if err := rows.Scan(&r.ID, &r.Source, &r.Heading, &r.Content, &r.Owner, &r.ScopeKind, &r.ScopeID,
			&evergreenInt, &updatedMs, &embedding); err != nil {
			return nil, fmt.Errorf("scan chunk row: %w", err)
		}
		r.Evergreen = evergreenInt != 0
		r.UpdatedAt = time.UnixMilli(updatedMs)
		r.Score = cosineSimilarity(queryVec, decodeVector(embedding))
		results = append(results, r)
	}

	results = filterScope(results, scope)
	sort.SliceStable(results, func(i, j int) bool { return results[i].Score > results[j].Score })
	top := limit * 2
	if len(results) > top {
		results = results[:top]
	}
	return results, nil
}

// HybridSearch runs both branches and fuses by Reciprocal Rank Fusion with
// k=60. If the vector branch errors, it degrades to keyword-only (spec.md
// §4.5 Hybrid search).
func (idx *Index) HybridSearch(ctx context.Context, query string, limit int, scope *Scope) ([]Result, error) {
	keyword, err := idx.KeywordSearch(ctx, query, limit*2, scope)
	if err != nil {
		return nil, fmt.Errorf("keyword search: %w", err)
	}

	vector, vecErr := idx.VectorSearch(ctx, query, limit, scope)
	if vecErr != nil {
		logger.WarnCF("memory", "vector search failed, degrading to keyword-only", map[string]interface{}{"error": vecErr.Error()})
		if len(keyword) > limit {
			keyword = keyword[:limit]
		}
		return keyword, nil
	}

	fused := make(map[string]float64)
	byID := make(map[string]Result)
	apply := func(list []Result) {
		for rank, r := range list {
			fused[r.ID] += 1.0 / float64(rrfK+rank+1)
			byID[r.ID] = r
		}
	}
	apply(keyword)
	apply(vector)

	var out []Result
	for id, score := range fused {
		r := byID[id]
		r.Score = score
		out = append(out, r)
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Score > out[j].Score })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// filterScope applies spec.md §4.5's scope-filter boolean rules.
func filterScope(results []Result, scope *Scope) []Result {
	if scope == nil {
		return results
	}

	var out []Result
	for _, r := range results {
		switch scope.Kind {
		case "user":
			if (r.Owner == "shared" && r.ScopeKind == "global") ||
				(r.Owner == scope.ID && r.ScopeKind == "user" && r.ScopeID == scope.ID) {
				out = append(out, r)
			}
		case "family":
			if (r.Owner == "shared" && r.ScopeKind == "global") ||
				(r.Owner == "shared" && r.ScopeKind == "family" && r.ScopeID == scope.ID) {
				out = append(out, r)
			}
		default:
			if r.ScopeKind == "global" {
				out = append(out, r)
			}
		}
	}
	return out
}

// FormatResults renders results as a human-readable markdown block,
// grounded on teacher pkg/memory/vectorstore.go's FormatResults.
func FormatResults(results []Result) string {
	if len(results) == 0 {
		return "No memories found."
	}
	var sb strings.Builder
	sb.WriteString("## Memory\n")
	for _, r := range results {
		date := r.UpdatedAt.Format("2006-01-02")
		heading := r.Heading
		if heading != "" {
			heading = " (" + heading + ")"
		}
		preview := r.Content
		runes := []rune(preview)
		if len(runes) > 300 {
			preview = string(runes[:300]) + "..."
		}
		sb.WriteString(fmt.Sprintf("- [%s, %s%s] %s\n", date, r.Source, heading, preview))
	}
	return sb.String()
}
