// Package keyword implements the tenant-scoped keyword search adapter
// over OpenSearch, one index per tenant so a query can never be
// constructed in a way that crosses tenants.
package keyword

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"

	"github.com/opensearch-project/opensearch-go/v2"
	"github.com/opensearch-project/opensearch-go/v2/opensearchapi"

	"github.com/ragforge/rag-mcp/internal/apperrors"
)

// Store is the tenant-scoped keyword search adapter.
type Store struct {
	client *opensearch.Client
}

// New dials cfg and verifies cluster health, grounded on the
// connect-then-healthcheck pattern used for the other OpenSearch
// clients in the example pack.
func New(ctx context.Context, addresses []string, username, password string) (*Store, error) {
	client, err := opensearch.NewClient(opensearch.Config{
		Addresses: addresses,
		Username:  username,
		Password:  password,
	})
	if err != nil {
		return nil, fmt.Errorf("keyword: create client: %w", err)
	}
	if _, err := client.Info(); err != nil {
		return nil, fmt.Errorf("keyword: cluster healthcheck: %w", err)
	}
	return &Store{client: client}, nil
}

func indexName(tenantID string) string {
	return "docs-" + tenantID
}

type document struct {
	ChunkID    string `json:"chunk_id"`
	DocumentID string `json:"document_id"`
	Content    string `json:"content"`
}

// IndexChunk upserts one searchable chunk of a document.
func (s *Store) IndexChunk(ctx context.Context, tenantID, documentID, chunkID, content string) error {
	body, err := json.Marshal(document{ChunkID: chunkID, DocumentID: documentID, Content: content})
	if err != nil {
		return apperrors.Wrap(apperrors.KindInternal, "FR-KEYWORD-001", err)
	}
	req := opensearchapi.IndexRequest{
		Index:      indexName(tenantID),
		DocumentID: chunkID,
		Body:       bytes.NewReader(body),
	}
	res, err := req.Do(ctx, s.client)
	if err != nil {
		return apperrors.Wrap(apperrors.KindTransient, "FR-KEYWORD-002", fmt.Errorf("keyword: index chunk: %w", err))
	}
	defer res.Body.Close()
	if res.IsError() {
		return apperrors.New(apperrors.KindTransient, "FR-KEYWORD-002", fmt.Sprintf("keyword: index chunk: %s", res.Status()))
	}
	return nil
}

// DeleteDocument removes every chunk belonging to documentID.
func (s *Store) DeleteDocument(ctx context.Context, tenantID, documentID string) error {
	query := map[string]any{
		"query": map[string]any{
			"term": map[string]any{"document_id": documentID},
		},
	}
	body, err := json.Marshal(query)
	if err != nil {
		return apperrors.Wrap(apperrors.KindInternal, "FR-KEYWORD-003", err)
	}
	req := opensearchapi.DeleteByQueryRequest{
		Index: []string{indexName(tenantID)},
		Body:  bytes.NewReader(body),
	}
	res, err := req.Do(ctx, s.client)
	if err != nil {
		return apperrors.Wrap(apperrors.KindTransient, "FR-KEYWORD-004", fmt.Errorf("keyword: delete document: %w", err))
	}
	defer res.Body.Close()
	if res.IsError() {
		return apperrors.New(apperrors.KindTransient, "FR-KEYWORD-004", fmt.Sprintf("keyword: delete document: %s", res.Status()))
	}
	return nil
}

// Hit is one scored keyword search result.
type Hit struct {
	DocumentID string
	ChunkID    string
	Score      float32
	Snippet    string
}

type searchResponse struct {
	Hits struct {
		Hits []struct {
			ID     string          `json:"_id"`
			Score  float32         `json:"_score"`
			Source document        `json:"_source"`
			Highlight map[string][]string `json:"highlight"`
		} `json:"hits"`
	} `json:"hits"`
}

// Search runs a BM25 match query against tenantID's index, returning up
// to topK hits ranked by OpenSearch's relevance score.
func (s *Store) Search(ctx context.Context, tenantID, queryText string, topK int) ([]Hit, error) {
	body, err := json.Marshal(map[string]any{
		"size": topK,
		"query": map[string]any{
			"match": map[string]any{"content": queryText},
		},
		"highlight": map[string]any{
			"fields": map[string]any{"content": map[string]any{}},
		},
	})
	if err != nil {
		return nil, apperrors.Wrap(apperrors.KindInternal, "FR-KEYWORD-005", err)
	}

	req := opensearchapi.SearchRequest{
		Index: []string{indexName(tenantID)},
		Body:  bytes.NewReader(body),
	}
	res, err := req.Do(ctx, s.client)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.KindTransient, "FR-KEYWORD-006", fmt.Errorf("keyword: search: %w", err))
	}
	defer res.Body.Close()
	if res.IsError() {
		return nil, apperrors.New(apperrors.KindTransient, "FR-KEYWORD-006", fmt.Sprintf("keyword: search: %s", res.Status()))
	}

	var parsed searchResponse
	if err := json.NewDecoder(res.Body).Decode(&parsed); err != nil {
		return nil, apperrors.Wrap(apperrors.KindInternal, "FR-KEYWORD-007", fmt.Errorf("keyword: decode search response: %w", err))
	}

	hits := make([]Hit, 0, len(parsed.Hits.Hits))
	for _, h := range parsed.Hits.Hits {
		snippet := h.Source.Content
		if lines := h.Highlight["content"]; len(lines) > 0 {
			snippet = lines[0]
		}
		hits = append(hits, Hit{
			DocumentID: h.Source.DocumentID,
			ChunkID:    h.ID,
			Score:      h.Score,
			Snippet:    snippet,
		})
	}
	return hits, nil
}

// ExportAll scrolls the tenant's full index, used by rag_backup_tenant_data
// to dump the keyword component.
func (s *Store) ExportAll(ctx context.Context, tenantID string) ([]Hit, error) {
	body, err := json.Marshal(map[string]any{
		"size":  10000,
		"query": map[string]any{"match_all": map[string]any{}},
	})
	if err != nil {
		return nil, apperrors.Wrap(apperrors.KindInternal, "FR-KEYWORD-009", err)
	}
	req := opensearchapi.SearchRequest{
		Index: []string{indexName(tenantID)},
		Body:  bytes.NewReader(body),
	}
	res, err := req.Do(ctx, s.client)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.KindTransient, "FR-KEYWORD-010", fmt.Errorf("keyword: export all: %w", err))
	}
	defer res.Body.Close()
	if res.IsError() {
		return nil, apperrors.New(apperrors.KindTransient, "FR-KEYWORD-010", fmt.Sprintf("keyword: export all: %s", res.Status()))
	}

	var parsed searchResponse
	if err := json.NewDecoder(res.Body).Decode(&parsed); err != nil {
		return nil, apperrors.Wrap(apperrors.KindInternal, "FR-KEYWORD-011", fmt.Errorf("keyword: decode export response: %w", err))
	}
	hits := make([]Hit, 0, len(parsed.Hits.Hits))
	for _, h := range parsed.Hits.Hits {
		hits = append(hits, Hit{DocumentID: h.Source.DocumentID, ChunkID: h.ID, Snippet: h.Source.Content})
	}
	return hits, nil
}

// Count reports the number of indexed chunks for tenantID.
func (s *Store) Count(ctx context.Context, tenantID string) (int, error) {
	req := opensearchapi.CountRequest{Index: []string{indexName(tenantID)}}
	res, err := req.Do(ctx, s.client)
	if err != nil {
		return 0, apperrors.Wrap(apperrors.KindTransient, "FR-KEYWORD-012", fmt.Errorf("keyword: count: %w", err))
	}
	defer res.Body.Close()
	if res.IsError() {
		return 0, nil
	}
	var parsed struct {
		Count int `json:"count"`
	}
	if err := json.NewDecoder(res.Body).Decode(&parsed); err != nil {
		return 0, apperrors.Wrap(apperrors.KindInternal, "FR-KEYWORD-013", err)
	}
	return parsed.Count, nil
}

// HealthCheck reports whether the OpenSearch cluster is reachable.
func (s *Store) HealthCheck(ctx context.Context) error {
	if _, err := s.client.Info(); err != nil {
		return apperrors.Wrap(apperrors.KindTransient, "FR-KEYWORD-008", err)
	}
	return nil
}
