package rag

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sort"

	"github.com/capitalize-ai/voicechat/internal/llm"
)

// ErrDimensionMismatch is returned when vectors of different sizes meet.
var ErrDimensionMismatch = errors.New("embedding dimension mismatch")

// Chunk is a unit of retrieval.
type Chunk struct {
	Document string `json:"document"`
	Index    int    `json:"index"`
	Text     string `json:"text"`
}

// Result is a chunk with its similarity to the query.
type Result struct {
	Chunk
	Score float64 `json:"score"`
}

type entry struct {
	chunk  Chunk
	vector []float32
	norm   float64
}

// Index is an immutable nearest-neighbour index over chunk embeddings.
type Index struct {
	entries   []entry
	model     string
	documents int
}

// NewIndex builds an index from chunks and their vectors, embedded with
// model. Queries must be embedded with the same model.
func NewIndex(chunks []Chunk, vectors [][]float32, model string, documents int) (*Index, error) {
	if len(chunks) != len(vectors) {
		return nil, fmt.Errorf("have %d chunks but %d vectors", len(chunks), len(vectors))
	}

	entries := make([]entry, len(chunks))
	dim := -1
	for i, c := range chunks {
		v := vectors[i]
		if dim >= 0 && len(v) != dim {
			return nil, ErrDimensionMismatch
		}
		dim = len(v)
		entries[i] = entry{chunk: c, vector: v, norm: norm(v)}
	}

	return &Index{entries: entries, model: model, documents: documents}, nil
}

// Len returns the number of chunks in the index.
func (x *Index) Len() int { return len(x.entries) }

// Documents returns the number of documents the index was built from.
func (x *Index) Documents() int { return x.documents }

// Model returns the embedding model the index was built with.
func (x *Index) Model() string { return x.model }

// Search embeds query with embedder and returns the k most similar chunks,
// best first.
func (x *Index) Search(ctx context.Context, embedder llm.Embedder, query string, k int) ([]Result, error) {
	if m := embedder.Model(); m != x.model {
		return nil, fmt.Errorf("query embedder %q does not match index model %q", m, x.model)
	}
	vectors, err := embedder.Embed(ctx, []string{query})
	if err != nil {
		return nil, fmt.Errorf("failed to embed query: %w", err)
	}
	if len(vectors) != 1 {
		return nil, fmt.Errorf("expected 1 query embedding, got %d", len(vectors))
	}
	return x.SearchVector(vectors[0], k)
}

// SearchVector returns the k chunks most similar to q, best first. Ties keep
// index order.
func (x *Index) SearchVector(q []float32, k int) ([]Result, error) {
	qn := norm(q)
	results := make([]Result, 0, len(x.entries))

	for _, e := range x.entries {
		if len(e.vector) != len(q) {
			return nil, ErrDimensionMismatch
		}
		results = append(results, Result{Chunk: e.chunk, Score: cosine(q, e.vector, qn, e.norm)})
	}

	sort.SliceStable(results, func(i, j int) bool {
		return results[i].Score > results[j].Score
	})

	if k > 0 && len(results) > k {
		results = results[:k]
	}
	return results, nil
}

func norm(v []float32) float64 {
	var sum float64
	for _, f := range v {
		sum += float64(f) * float64(f)
	}
	return math.Sqrt(sum)
}

func cosine(a, b []float32, na, nb float64) float64 {
	if na == 0 || nb == 0 {
		return 0
	}
	var dot float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
	}
	return dot / (na * nb)
}
