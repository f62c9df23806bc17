// Package search implements hybrid retrieval: independent vector and
// keyword arms, each bounded by a 500ms timeout, merged by a weighted
// score fusion with a three-tier fallback when one arm fails.
package search

import (
	"context"
	"sort"
	"time"

	"github.com/ragforge/rag-mcp/internal/apperrors"
	"github.com/ragforge/rag-mcp/internal/observability"
)

// Mode records which arms actually contributed to a Result set.
type Mode string

const (
	ModeHybrid      Mode = "hybrid"
	ModeVectorOnly  Mode = "vector_only"
	ModeKeywordOnly Mode = "keyword_only"
	ModeFailed      Mode = "failed"
)

// Hit is one document-level search hit after fusion.
type Hit struct {
	DocumentID string
	ChunkID    string
	Score      float32
	Snippet    string
}

// Outcome is the full result of a hybrid search call, mirroring the
// fields the original implementation returns so callers can tell
// clients exactly how a result set was produced.
type Outcome struct {
	Hits              []Hit
	Mode              Mode
	VectorSucceeded   bool
	KeywordSucceeded  bool
	FallbackTriggered bool
}

// VectorSearcher is the vector arm's boundary, implemented by VectorArm
// (internal/adapters/vector.Store plus an embedding step).
type VectorSearcher interface {
	SearchVector(ctx context.Context, tenantID, queryText string, topK int) ([]Hit, error)
}

// KeywordSearcher is the keyword arm's boundary, implemented by
// KeywordArm over internal/adapters/keyword.Store.
type KeywordSearcher interface {
	SearchKeyword(ctx context.Context, tenantID, queryText string, topK int) ([]Hit, error)
}

// Config tunes fusion weights and the per-arm timeout.
type Config struct {
	VectorWeight  float64
	KeywordWeight float64
	PerArmTimeout time.Duration
}

// DefaultConfig returns the standard fusion weights and arm timeout.
func DefaultConfig() Config {
	return Config{VectorWeight: 0.6, KeywordWeight: 0.4, PerArmTimeout: 500 * time.Millisecond}
}

// Service runs the hybrid search pipeline.
type Service struct {
	vector  VectorSearcher
	keyword KeywordSearcher
	config  Config
	logger  observability.Logger
}

// NewService constructs a hybrid Service over the two search arms.
func NewService(vector VectorSearcher, keyword KeywordSearcher, config Config, logger observability.Logger) *Service {
	if config.VectorWeight == 0 && config.KeywordWeight == 0 {
		config = DefaultConfig()
	}
	if logger == nil {
		logger = observability.NewNoopLogger()
	}
	return &Service{vector: vector, keyword: keyword, config: config, logger: logger}
}

// Search runs both arms concurrently, each bounded by config.PerArmTimeout,
// then fuses or falls back depending on which arms succeeded. The
// context handed to each arm is derived from ctx so cancellation of the
// parent request still propagates into both goroutines.
func (s *Service) Search(ctx context.Context, tenantID, queryText string, topK int) (Outcome, error) {
	if queryText == "" {
		return Outcome{}, apperrors.Validation("search_query", "search query must not be empty")
	}
	if topK <= 0 {
		topK = 10
	}

	type armResult struct {
		hits    []Hit
		success bool
	}

	vectorCh := make(chan armResult, 1)
	keywordCh := make(chan armResult, 1)

	go func() {
		vectorCh <- s.runArm(ctx, "vector", topK, func(armCtx context.Context) ([]Hit, error) {
			return s.vector.SearchVector(armCtx, tenantID, queryText, topK)
		})
	}()
	go func() {
		keywordCh <- s.runArm(ctx, "keyword", topK, func(armCtx context.Context) ([]Hit, error) {
			return s.keyword.SearchKeyword(armCtx, tenantID, queryText, topK)
		})
	}()

	vectorRes := <-vectorCh
	keywordRes := <-keywordCh

	outcome := Outcome{VectorSucceeded: vectorRes.success, KeywordSucceeded: keywordRes.success}

	switch {
	case vectorRes.success && keywordRes.success:
		outcome.Mode = ModeHybrid
		outcome.Hits = s.mergeAndRerank(vectorRes.hits, keywordRes.hits, topK)
	case vectorRes.success && !keywordRes.success:
		outcome.Mode = ModeVectorOnly
		outcome.FallbackTriggered = true
		outcome.Hits = truncate(vectorRes.hits, topK)
		s.logger.Warn("hybrid search falling back to vector only", map[string]interface{}{"tenant_id": tenantID})
	case !vectorRes.success && keywordRes.success:
		outcome.Mode = ModeKeywordOnly
		outcome.FallbackTriggered = true
		outcome.Hits = truncate(keywordRes.hits, topK)
		s.logger.Warn("hybrid search falling back to keyword only", map[string]interface{}{"tenant_id": tenantID})
	default:
		outcome.Mode = ModeFailed
		outcome.FallbackTriggered = true
		s.logger.Error("hybrid search failed: both arms unavailable", map[string]interface{}{"tenant_id": tenantID})
	}

	return outcome, nil
}

// runArm executes search within config.PerArmTimeout, converting a
// timeout or an error into (nil, false) rather than propagating it, so
// the caller in Search only inspects the success flag; an arm that
// returned no hits still reports success.
func (s *Service) runArm(ctx context.Context, name string, topK int, search func(context.Context) ([]Hit, error)) struct {
	hits    []Hit
	success bool
} {
	type result struct {
		hits []Hit
		err  error
	}

	armCtx, cancel := context.WithTimeout(ctx, s.config.PerArmTimeout)
	defer cancel()

	resultCh := make(chan result, 1)
	go func() {
		hits, err := search(armCtx)
		resultCh <- result{hits: hits, err: err}
	}()

	select {
	case <-armCtx.Done():
		s.logger.Warn(name+" search timed out", map[string]interface{}{"timeout": s.config.PerArmTimeout.String()})
		return struct {
			hits    []Hit
			success bool
		}{nil, false}
	case res := <-resultCh:
		if res.err != nil {
			s.logger.Error(name+" search failed", map[string]interface{}{"error": res.err.Error()})
			return struct {
				hits    []Hit
				success bool
			}{nil, false}
		}
		return struct {
			hits    []Hit
			success bool
		}{res.hits, true}
	}
}

// mergeAndRerank fuses the two arms' hits by weighted score, keyed on
// document ID, matching the original _merge_and_rerank.
func (s *Service) mergeAndRerank(vectorHits, keywordHits []Hit, topK int) []Hit {
	totalWeight := s.config.VectorWeight + s.config.KeywordWeight
	if totalWeight == 0 {
		totalWeight = 1
	}
	vWeight := s.config.VectorWeight / totalWeight
	kWeight := s.config.KeywordWeight / totalWeight

	type fused struct {
		hit   Hit
		score float64
	}

	byDoc := make(map[string]*fused)
	order := make([]string, 0)

	for _, h := range vectorHits {
		byDoc[h.DocumentID] = &fused{hit: h, score: float64(h.Score) * vWeight}
		order = append(order, h.DocumentID)
	}
	for _, h := range keywordHits {
		if f, ok := byDoc[h.DocumentID]; ok {
			f.score += float64(h.Score) * kWeight
			if f.hit.Snippet == "" {
				f.hit.Snippet = h.Snippet
			}
		} else {
			byDoc[h.DocumentID] = &fused{hit: h, score: float64(h.Score) * kWeight}
			order = append(order, h.DocumentID)
		}
	}

	merged := make([]Hit, 0, len(byDoc))
	for _, docID := range order {
		f := byDoc[docID]
		f.hit.Score = float32(f.score)
		merged = append(merged, f.hit)
	}

	// order already lists documents in vector-arm order followed by
	// keyword-only additions in keyword-arm order, so a stable sort on
	// score alone preserves that ordering as the tie-break without an
	// extra key.
	sort.SliceStable(merged, func(i, j int) bool {
		return merged[i].Score > merged[j].Score
	})

	return truncate(merged, topK)
}

func truncate(hits []Hit, topK int) []Hit {
	if topK > 0 && len(hits) > topK {
		return hits[:topK]
	}
	return hits
}
