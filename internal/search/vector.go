package search

import (
	"context"

	"github.com/ragforge/rag-mcp/internal/adapters/vector"
	"github.com/ragforge/rag-mcp/internal/embedding"
)

// VectorArm adapts an embedding.Embedder plus a vector.Store into the
// VectorSearcher boundary hybrid.Search depends on.
type VectorArm struct {
	embedder embedding.Embedder
	store    *vector.Store
}

// NewVectorArm constructs the vector search arm.
func NewVectorArm(embedder embedding.Embedder, store *vector.Store) *VectorArm {
	return &VectorArm{embedder: embedder, store: store}
}

// SearchVector embeds queryText and searches tenantID's vector index.
func (a *VectorArm) SearchVector(ctx context.Context, tenantID, queryText string, topK int) ([]Hit, error) {
	vec, err := a.embedder.Embed(ctx, tenantID, queryText)
	if err != nil {
		return nil, err
	}

	matches, err := a.store.Search(ctx, tenantID, vec, topK)
	if err != nil {
		return nil, err
	}

	hits := make([]Hit, 0, len(matches))
	for _, m := range matches {
		hits = append(hits, Hit{
			DocumentID: m.DocumentID,
			ChunkID:    m.ChunkID,
			Score:      m.Score,
		})
	}
	return hits, nil
}
