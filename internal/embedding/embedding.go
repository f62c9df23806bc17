// Package embedding defines the embedding model boundary used during
// ingestion and query-time vector search.
package embedding

import (
	"context"

	"github.com/ragforge/rag-mcp/internal/apperrors"
)

// Embedder turns text into a fixed-dimension vector for one tenant's
// configured embedding model. Implementations are expected to call out
// to an external model-serving endpoint; this package only defines the
// boundary the rest of the system programs against.
type Embedder interface {
	Embed(ctx context.Context, tenantID, text string) ([]float32, error)
}

// staticEmbedder is a deterministic, dependency-free Embedder used by
// tests and by deployments that have not yet wired a real model
// endpoint. It hashes text into a fixed-size vector rather than
// returning a constant, so cosine similarity still distinguishes
// distinct inputs during integration tests.
type staticEmbedder struct {
	dimension int
}

// NewStaticEmbedder returns an Embedder producing deterministic,
// content-derived vectors of the given dimension.
func NewStaticEmbedder(dimension int) Embedder {
	if dimension <= 0 {
		dimension = 256
	}
	return &staticEmbedder{dimension: dimension}
}

func (e *staticEmbedder) Embed(ctx context.Context, tenantID, text string) ([]float32, error) {
	if text == "" {
		return nil, apperrors.Validation("text", "embedding input must not be empty")
	}

	vec := make([]float32, e.dimension)
	var h uint32 = 2166136261
	for i := 0; i < len(text); i++ {
		h ^= uint32(text[i])
		h *= 16777619
		vec[int(h)%e.dimension] += 1
	}
	return vec, nil
}
