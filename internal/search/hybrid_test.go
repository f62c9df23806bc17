package search_test

import (
	"context"
	"errors"
	"testing"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"go.uber.org/goleak"

	"github.com/ragforge/rag-mcp/internal/search"
)

func TestHybridSearch(t *testing.T) {
	RegisterFailHandler(Fail)
	RunSpecs(t, "Hybrid Search Suite")
}

type stubVector struct {
	hits  []search.Hit
	err   error
	delay time.Duration
}

func (s stubVector) SearchVector(ctx context.Context, tenantID, queryText string, topK int) ([]search.Hit, error) {
	if s.delay > 0 {
		select {
		case <-time.After(s.delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if s.err != nil {
		return nil, s.err
	}
	return s.hits, nil
}

type stubKeyword struct {
	hits  []search.Hit
	err   error
	delay time.Duration
}

func (s stubKeyword) SearchKeyword(ctx context.Context, tenantID, queryText string, topK int) ([]search.Hit, error) {
	if s.delay > 0 {
		select {
		case <-time.After(s.delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if s.err != nil {
		return nil, s.err
	}
	return s.hits, nil
}

var _ = Describe("hybrid search fusion", func() {
	AfterEach(func() {
		goleak.VerifyNone(GinkgoT(), goleak.IgnoreTopFunction("github.com/onsi/ginkgo/v2/internal.(*Suite).runNode"))
	})

	It("fuses both arms when both succeed (S1)", func() {
		vec := stubVector{hits: []search.Hit{
			{DocumentID: "alpha", Score: 0.9},
			{DocumentID: "beta", Score: 0.7},
			{DocumentID: "gamma", Score: 0.1},
		}}
		kw := stubKeyword{hits: []search.Hit{
			{DocumentID: "alpha", Score: 0.8},
			{DocumentID: "beta", Score: 0.6},
			{DocumentID: "gamma", Score: 0.05},
		}}

		svc := search.NewService(vec, kw, search.DefaultConfig(), nil)
		outcome, err := svc.Search(context.Background(), "t1", "alpha beta", 10)

		Expect(err).NotTo(HaveOccurred())
		Expect(outcome.Mode).To(Equal(search.ModeHybrid))
		Expect(outcome.FallbackTriggered).To(BeFalse())
		Expect(outcome.Hits).To(HaveLen(3))
		Expect(outcome.Hits[0].DocumentID).To(Equal("alpha"))
		Expect(outcome.Hits[1].DocumentID).To(Equal("beta"))
		Expect(outcome.Hits[2].DocumentID).To(Equal("gamma"))
	})

	It("falls back to vector-only when the keyword arm fails (S2)", func() {
		vec := stubVector{hits: []search.Hit{
			{DocumentID: "alpha", Score: 0.9},
			{DocumentID: "beta", Score: 0.5},
		}}
		kw := stubKeyword{err: errors.New("keyword backend unavailable")}

		svc := search.NewService(vec, kw, search.DefaultConfig(), nil)
		outcome, err := svc.Search(context.Background(), "t1", "alpha beta", 10)

		Expect(err).NotTo(HaveOccurred())
		Expect(outcome.Mode).To(Equal(search.ModeVectorOnly))
		Expect(outcome.FallbackTriggered).To(BeTrue())
		Expect(outcome.Hits).To(HaveLen(2))
		Expect(outcome.Hits[0].DocumentID).To(Equal("alpha"))
	})

	It("falls back to keyword-only when the vector arm times out", func() {
		vec := stubVector{hits: []search.Hit{{DocumentID: "alpha", Score: 0.9}}, delay: time.Second}
		kw := stubKeyword{hits: []search.Hit{{DocumentID: "beta", Score: 0.5}}}

		svc := search.NewService(vec, kw, search.Config{VectorWeight: 0.6, KeywordWeight: 0.4, PerArmTimeout: 20 * time.Millisecond}, nil)
		outcome, err := svc.Search(context.Background(), "t1", "query", 10)

		Expect(err).NotTo(HaveOccurred())
		Expect(outcome.Mode).To(Equal(search.ModeKeywordOnly))
		Expect(outcome.FallbackTriggered).To(BeTrue())
		Expect(outcome.VectorSucceeded).To(BeFalse())
		Expect(outcome.KeywordSucceeded).To(BeTrue())
	})

	It("reports failed mode with empty results when both arms fail (S3)", func() {
		vec := stubVector{err: errors.New("boom")}
		kw := stubKeyword{err: errors.New("boom")}

		svc := search.NewService(vec, kw, search.DefaultConfig(), nil)
		outcome, err := svc.Search(context.Background(), "t1", "query", 10)

		Expect(err).NotTo(HaveOccurred())
		Expect(outcome.Mode).To(Equal(search.ModeFailed))
		Expect(outcome.FallbackTriggered).To(BeTrue())
		Expect(outcome.Hits).To(BeEmpty())
	})

	It("rejects an empty query before dispatching either arm", func() {
		svc := search.NewService(stubVector{}, stubKeyword{}, search.DefaultConfig(), nil)
		_, err := svc.Search(context.Background(), "t1", "", 10)
		Expect(err).To(HaveOccurred())
	})

	It("truncates fused results to k", func() {
		vec := stubVector{hits: []search.Hit{
			{DocumentID: "a", Score: 0.9}, {DocumentID: "b", Score: 0.8}, {DocumentID: "c", Score: 0.7},
		}}
		kw := stubKeyword{}
		svc := search.NewService(vec, kw, search.DefaultConfig(), nil)
		outcome, err := svc.Search(context.Background(), "t1", "q", 2)
		Expect(err).NotTo(HaveOccurred())
		Expect(outcome.Hits).To(HaveLen(2))
	})
})
