package embeddings

import (
	"context"
	"time"
)

// BoundedProvider wraps a (possibly network-backed) Provider with a
// wall-clock budget. When the wrapped provider exceeds the budget or
// fails, the call falls back to the deterministic hashed embedding at
// the same dimension, so retrieval always completes.
type BoundedProvider struct {
	inner    Provider
	fallback *HashedProvider
	timeout  time.Duration
}

// NewBoundedProvider wraps inner with the given budget (default 2s when
// timeout <= 0).
func NewBoundedProvider(inner Provider, timeout time.Duration) *BoundedProvider {
	if timeout <= 0 {
		timeout = 2 * time.Second
	}
	return &BoundedProvider{
		inner:    inner,
		fallback: NewHashedProvider(inner.Dimension()),
		timeout:  timeout,
	}
}

type embedResult struct {
	vec []float32
	err error
}

// Embed calls the wrapped provider under the budget, falling back to
// the hashed embedding on timeout or error. The fallback never fails,
// so neither does Embed.
func (p *BoundedProvider) Embed(ctx context.Context, text string) ([]float32, error) {
	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	ch := make(chan embedResult, 1)
	go func() {
		vec, err := p.inner.Embed(ctx, text)
		ch <- embedResult{vec: vec, err: err}
	}()

	select {
	case res := <-ch:
		if res.err != nil {
			return p.fallback.Embed(context.Background(), text)
		}
		return res.vec, nil
	case <-ctx.Done():
		return p.fallback.Embed(context.Background(), text)
	}
}

// Dimension returns the wrapped provider's vector width.
func (p *BoundedProvider) Dimension() int {
	return p.inner.Dimension()
}

var _ Provider = (*BoundedProvider)(nil)
