package classify

import (
	"context"
	"fmt"
	"hash/fnv"
	"math"
	"strings"
	"time"
)

// Embedder produces a vector embedding for a piece of text. It may be a
// remote call; callers bound it with a timeout.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// HashingEmbedder is the default local Embedder: tokens are feature-hashed
// into a fixed-dimension bag vector and L2-normalized. Deterministic and
// cheap, adequate for keyword-adjacent similarity without a model server.
type HashingEmbedder struct {
	Dim int
}

// DefaultEmbeddingDim is used when no dimension is configured.
const DefaultEmbeddingDim = 256

// NewHashingEmbedder returns an embedder with the given dimension, or
// DefaultEmbeddingDim when dim is not positive.
func NewHashingEmbedder(dim int) HashingEmbedder {
	if dim <= 0 {
		dim = DefaultEmbeddingDim
	}
	return HashingEmbedder{Dim: dim}
}

// Embed implements Embedder.
func (h HashingEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	dim := h.Dim
	if dim <= 0 {
		dim = DefaultEmbeddingDim
	}

	vec := make([]float32, dim)
	for token := range tokenize(text) {
		hasher := fnv.New32a()
		_, _ = hasher.Write([]byte(token))
		vec[hasher.Sum32()%uint32(dim)]++
	}

	normalize(vec)
	return vec, nil
}

// Cosine returns the cosine similarity of two vectors, clamped to [0,1].
// Mismatched or zero vectors score zero.
func Cosine(a, b []float32) float64 {
	if len(a) == 0 || len(a) != len(b) {
		return 0
	}

	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 0
	}

	sim := dot / (math.Sqrt(normA) * math.Sqrt(normB))
	if sim < 0 {
		return 0
	}
	if sim > 1 {
		return 1
	}
	return sim
}

// SimilarityScorer compares a message embedding against the precomputed
// capability embedding table. The table is read-only after construction.
type SimilarityScorer struct {
	Embedder Embedder
	Table    map[string][]float32
	Timeout  time.Duration
}

// NewSimilarityScorer builds a scorer over the given embedding table.
func NewSimilarityScorer(embedder Embedder, table map[string][]float32, timeout time.Duration) *SimilarityScorer {
	return &SimilarityScorer{Embedder: embedder, Table: table, Timeout: timeout}
}

// BuildEmbeddingTable precomputes capability embeddings from description
// text, keyed by capability id. Used at startup when no externally built
// table is supplied.
func BuildEmbeddingTable(ctx context.Context, embedder Embedder, descriptions map[string]string) (map[string][]float32, error) {
	table := make(map[string][]float32, len(descriptions))
	for id, text := range descriptions {
		id = strings.TrimSpace(id)
		if id == "" {
			continue
		}
		vec, err := embedder.Embed(ctx, text)
		if err != nil {
			return nil, fmt.Errorf("embed capability %q: %w", id, err)
		}
		table[id] = vec
	}
	return table, nil
}

// Score embeds the message and returns per-capability cosine similarity.
// An embedder failure or timeout is returned to the caller, which
// degrades to lexical-only scoring.
func (s *SimilarityScorer) Score(ctx context.Context, message string) (map[string]float64, error) {
	if s == nil || s.Embedder == nil || len(s.Table) == 0 {
		return nil, nil
	}

	if s.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.Timeout)
		defer cancel()
	}

	vec, err := s.Embedder.Embed(ctx, message)
	if err != nil {
		return nil, err
	}

	scores := make(map[string]float64, len(s.Table))
	for id, ref := range s.Table {
		scores[id] = Cosine(vec, ref)
	}
	return scores, nil
}

func normalize(vec []float32) {
	var norm float64
	for _, v := range vec {
		norm += float64(v) * float64(v)
	}
	if norm == 0 {
		return
	}
	norm = math.Sqrt(norm)
	for i := range vec {
		vec[i] = float32(float64(vec[i]) / norm)
	}
}
