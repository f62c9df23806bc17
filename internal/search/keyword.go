package search

import (
	"context"

	"github.com/ragforge/rag-mcp/internal/adapters/keyword"
)

// KeywordArm adapts a keyword.Store into the KeywordSearcher boundary
// hybrid.Search depends on.
type KeywordArm struct {
	store *keyword.Store
}

// NewKeywordArm constructs the keyword search arm.
func NewKeywordArm(store *keyword.Store) *KeywordArm {
	return &KeywordArm{store: store}
}

// SearchKeyword runs a BM25 match query against tenantID's index.
func (a *KeywordArm) SearchKeyword(ctx context.Context, tenantID, queryText string, topK int) ([]Hit, error) {
	raw, err := a.store.Search(ctx, tenantID, queryText, topK)
	if err != nil {
		return nil, err
	}

	hits := make([]Hit, 0, len(raw))
	for _, h := range raw {
		hits = append(hits, Hit{
			DocumentID: h.DocumentID,
			ChunkID:    h.ChunkID,
			Score:      h.Score,
			Snippet:    h.Snippet,
		})
	}
	return hits, nil
}
