package memory

import (
	"context"
	"hash/fnv"
	"math"
	"strings"
)

const embeddingDims = 256

// Embedder computes a fixed-dimension vector for a chunk of text.
// indexWithEmbeddings (spec.md §4.5) is optional: any Embedder plugs in,
// including one backed by a remote provider.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// LocalHashEmbedder is a dependency-free local embedding model: a hashed
// bag-of-words projected into a fixed-width vector and L2-normalized. It
// needs no network call and no model weights, matching the "local model"
// wording in spec.md §4.5 without inventing a fabricated ML dependency —
// no example repo in the corpus ships a local embedding model library, so
// this is the standard-library fallback (see DESIGN.md).
type LocalHashEmbedder struct{}

func NewLocalHashEmbedder() *LocalHashEmbedder { return &LocalHashEmbedder{} }

func (LocalHashEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	vec := make([]float32, embeddingDims)
	for _, tok := range tokenize(text) {
		h := fnv.New32a()
		h.Write([]byte(tok))
		idx := int(h.Sum32()) % embeddingDims
		if idx < 0 {
			idx += embeddingDims
		}
		vec[idx] += 1.0
	}

	var norm float64
	for _, v := range vec {
		norm += float64(v) * float64(v)
	}
	norm = math.Sqrt(norm)
	if norm == 0 {
		return vec, nil
	}
	for i := range vec {
		vec[i] = float32(float64(vec[i]) / norm)
	}
	return vec, nil
}

func tokenize(text string) []string {
	var toks []string
	var cur strings.Builder
	for _, r := range strings.ToLower(text) {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') {
			cur.WriteRune(r)
		} else if cur.Len() > 0 {
			toks = append(toks, cur.String())
			cur.Reset()
		}
	}
	if cur.Len() > 0 {
		toks = append(toks, cur.String())
	}
	return toks
}

func cosineSimilarity(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot, na, nb float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}
