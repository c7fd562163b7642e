package embedding

import (
	"context"
	"sync"
)

// MemoEmbedder wraps an Embedder with content-hash memoization so a sweep
// never generates the same vector twice. The cache is process-local; the
// durable copy is the embedding backfilled onto the source row.
type MemoEmbedder struct {
	inner Embedder

	mu    sync.Mutex
	cache map[string][]float32
}

// NewMemoEmbedder wraps inner with memoization.
func NewMemoEmbedder(inner Embedder) *MemoEmbedder {
	return &MemoEmbedder{
		inner: inner,
		cache: make(map[string][]float32),
	}
}

// Embed returns the embedding for text, generating it at most once.
func (e *MemoEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	hash := ContentHash(text)

	e.mu.Lock()
	vec, ok := e.cache[hash]
	e.mu.Unlock()
	if ok {
		return vec, nil
	}

	vec, err := e.inner.Embed(ctx, text)
	if err != nil {
		return nil, err
	}

	e.mu.Lock()
	e.cache[hash] = vec
	e.mu.Unlock()
	return vec, nil
}

var _ Embedder = (*MemoEmbedder)(nil)
