package embedding

import (
	"context"
	"crypto/sha256"
	"encoding/binary"
	"fmt"
	"math"
	"strings"
)

// Embedder generates an embedding vector for a piece of text.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// HashEmbedder produces deterministic embeddings without any external
// model by hashing token trigrams into a fixed-length vector. Quality is
// far below a real model, but identical content always maps to the same
// vector, which is what the consolidation pipeline needs when no
// embedding service is reachable.
type HashEmbedder struct {
	dim int
}

// NewHashEmbedder returns a deterministic local embedder of the given
// dimension.
func NewHashEmbedder(dim int) *HashEmbedder {
	return &HashEmbedder{dim: dim}
}

// Embed hashes the text's tokens and trigrams into a normalized vector.
func (e *HashEmbedder) Embed(_ context.Context, text string) ([]float32, error) {
	vec := make([]float32, e.dim)
	tokens := strings.Fields(strings.ToLower(text))
	if len(tokens) == 0 {
		tokens = []string{text}
	}

	bump := func(s string, weight float32) {
		h := sha256.Sum256([]byte(s))
		idx := binary.LittleEndian.Uint32(h[0:4]) % uint32(e.dim)
		sign := float32(1)
		if h[4]&1 == 1 {
			sign = -1
		}
		vec[idx] += sign * weight
	}

	for _, tok := range tokens {
		bump(tok, 1)
		for i := 0; i+3 <= len(tok); i++ {
			bump(tok[i:i+3], 0.5)
		}
	}

	var norm float64
	for _, f := range vec {
		norm += float64(f) * float64(f)
	}
	if norm == 0 {
		return nil, fmt.Errorf("hash embedder: empty projection for %q", text)
	}
	inv := float32(1 / math.Sqrt(norm))
	for i := range vec {
		vec[i] *= inv
	}
	return vec, nil
}

// ContentHash computes a SHA-256 hash of text content, used as the
// memoization key for generated embeddings.
func ContentHash(text string) string {
	h := sha256.Sum256([]byte(text))
	return fmt.Sprintf("%x", h)
}
