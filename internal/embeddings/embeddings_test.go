package embeddings

import (
	"context"
	"fmt"
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHashedProvider_Deterministic(t *testing.T) {
	p := NewHashedProvider(64)

	first, err := p.Embed(context.Background(), "never commit secrets to the repository")
	require.NoError(t, err)
	second, err := p.Embed(context.Background(), "never commit secrets to the repository")
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.Len(t, first, 64)
}

func TestHashedProvider_DefaultDimension(t *testing.T) {
	assert.Equal(t, 64, NewHashedProvider(0).Dimension())
	assert.Equal(t, 64, NewHashedProvider(-5).Dimension())
	assert.Equal(t, 128, NewHashedProvider(128).Dimension())
}

func TestHashedProvider_UnitNorm(t *testing.T) {
	p := NewHashedProvider(32)

	vec, err := p.Embed(context.Background(), "run the test suite before every push")
	require.NoError(t, err)

	var sum float64
	for _, v := range vec {
		sum += float64(v) * float64(v)
	}
	assert.InDelta(t, 1.0, sum, 1e-5)
}

func TestHashedProvider_EmptyText(t *testing.T) {
	p := NewHashedProvider(16)

	vec, err := p.Embed(context.Background(), "")
	require.NoError(t, err)
	assert.Len(t, vec, 16)
	for _, v := range vec {
		assert.Zero(t, v)
	}
}

func TestHashedProvider_CaseInsensitive(t *testing.T) {
	p := NewHashedProvider(64)

	lower, err := p.Embed(context.Background(), "never force push")
	require.NoError(t, err)
	upper, err := p.Embed(context.Background(), "NEVER Force PUSH")
	require.NoError(t, err)
	assert.Equal(t, lower, upper)
}

func TestCosine(t *testing.T) {
	p := NewHashedProvider(64)
	ctx := context.Background()

	a, err := p.Embed(ctx, "rotate credentials and secrets regularly")
	require.NoError(t, err)
	b, err := p.Embed(ctx, "rotate credentials and secrets regularly")
	require.NoError(t, err)
	c, err := p.Embed(ctx, "prefer table driven tests")
	require.NoError(t, err)

	assert.InDelta(t, 1.0, Cosine(a, b), 1e-5, "identical text scores 1")
	assert.Less(t, Cosine(a, c), Cosine(a, b), "unrelated text scores lower")
}

func TestCosine_Degenerate(t *testing.T) {
	assert.Zero(t, Cosine(nil, nil))
	assert.Zero(t, Cosine([]float32{1, 0}, []float32{1, 0, 0}), "mismatched lengths")
	assert.Zero(t, Cosine([]float32{0, 0}, []float32{1, 0}), "zero vector")
}

func TestTokenize(t *testing.T) {
	assert.Equal(t, []string{"never", "commit", "api", "keys2"}, tokenize("Never commit API keys2!"))
	assert.Empty(t, tokenize("--- ///"))
}

// stubProvider returns a fixed vector after an optional delay.
type stubProvider struct {
	vec   []float32
	err   error
	delay time.Duration
}

func (s *stubProvider) Embed(ctx context.Context, _ string) ([]float32, error) {
	if s.delay > 0 {
		select {
		case <-time.After(s.delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	return s.vec, s.err
}

func (s *stubProvider) Dimension() int { return len(s.vec) }

func TestBoundedProvider_PassThrough(t *testing.T) {
	inner := &stubProvider{vec: []float32{1, 2, 3}}
	p := NewBoundedProvider(inner, time.Second)

	vec, err := p.Embed(context.Background(), "anything")
	require.NoError(t, err)
	assert.Equal(t, []float32{1, 2, 3}, vec)
	assert.Equal(t, 3, p.Dimension())
}

func TestBoundedProvider_TimeoutFallsBack(t *testing.T) {
	inner := &stubProvider{vec: make([]float32, 8), delay: 500 * time.Millisecond}
	p := NewBoundedProvider(inner, 20*time.Millisecond)

	vec, err := p.Embed(context.Background(), "fallback on slow provider")
	require.NoError(t, err)
	assert.Len(t, vec, 8)

	want, err := NewHashedProvider(8).Embed(context.Background(), "fallback on slow provider")
	require.NoError(t, err)
	assert.Equal(t, want, vec, "timeout yields the deterministic hashed embedding")
}

func TestBoundedProvider_ErrorFallsBack(t *testing.T) {
	inner := &stubProvider{vec: make([]float32, 8), err: fmt.Errorf("upstream unavailable")}
	p := NewBoundedProvider(inner, time.Second)

	vec, err := p.Embed(context.Background(), "fallback on error")
	require.NoError(t, err)

	want, _ := NewHashedProvider(8).Embed(context.Background(), "fallback on error")
	assert.Equal(t, want, vec)
}

func TestBoundedProvider_NaNFree(t *testing.T) {
	p := NewBoundedProvider(&stubProvider{vec: make([]float32, 4)}, time.Second)

	vec, err := p.Embed(context.Background(), "text")
	require.NoError(t, err)
	for _, v := range vec {
		assert.False(t, math.IsNaN(float64(v)))
	}
}
