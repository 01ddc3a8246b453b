// Package embeddings provides the deterministic text embedding used by
// the shard retriever, behind a provider interface so a heavier model
// can be swapped in by an integrating layer.
package embeddings

import (
	"context"
	"fmt"
	"hash/fnv"
	"math"
	"strings"
)

// ErrInvalidConfig is returned when provider construction fails validation.
var ErrInvalidConfig = fmt.Errorf("embeddings: invalid config")

// Provider generates an embedding vector for a piece of text.
type Provider interface {
	// Embed returns the embedding for text. Implementations backed by a
	// network service must respect ctx cancellation.
	Embed(ctx context.Context, text string) ([]float32, error)

	// Dimension returns the fixed width of produced vectors.
	Dimension() int
}

// HashedProvider is the default embedding: a fixed-width hashed
// bag-of-terms projection. Each term hashes to a bucket via FNV-1a and
// the resulting vector is L2-normalized. Deterministic and local; it
// never fails.
type HashedProvider struct {
	dimension int
}

// NewHashedProvider creates a HashedProvider with the given vector
// width (default 64 when dimension <= 0).
func NewHashedProvider(dimension int) *HashedProvider {
	if dimension <= 0 {
		dimension = 64
	}
	return &HashedProvider{dimension: dimension}
}

// Embed projects text into the hashed term space.
func (p *HashedProvider) Embed(_ context.Context, text string) ([]float32, error) {
	vec := make([]float32, p.dimension)
	for _, term := range tokenize(text) {
		h := fnv.New32a()
		h.Write([]byte(term))
		vec[int(h.Sum32())%p.dimension]++
	}
	normalize(vec)
	return vec, nil
}

// Dimension returns the configured vector width.
func (p *HashedProvider) Dimension() int {
	return p.dimension
}

// tokenize lowercases and splits text into alphanumeric terms.
func tokenize(text string) []string {
	return strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !('a' <= r && r <= 'z' || '0' <= r && r <= '9')
	})
}

// normalize scales vec to unit length in place. The zero vector stays
// zero.
func normalize(vec []float32) {
	var sum float64
	for _, v := range vec {
		sum += float64(v) * float64(v)
	}
	if sum == 0 {
		return
	}
	norm := math.Sqrt(sum)
	for i := range vec {
		vec[i] = float32(float64(vec[i]) / norm)
	}
}

// Cosine returns the cosine similarity of two vectors. Mismatched
// lengths or zero vectors score 0.
func Cosine(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
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
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}

// Compile-time check that HashedProvider implements Provider.
var _ Provider = (*HashedProvider)(nil)
