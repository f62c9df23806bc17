package embedding

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/ragforge/rag-mcp/internal/apperrors"
	"github.com/ragforge/rag-mcp/internal/resilience"
)

// HTTPEmbedder calls an external model-serving endpoint over HTTP,
// guarded by a circuit breaker so a degraded embedding service fails
// fast instead of stacking up blocked ingestion/search requests.
type HTTPEmbedder struct {
	endpoint string
	client   *http.Client
	breaker  *resilience.ExternalBreaker
}

// NewHTTPEmbedder constructs an HTTPEmbedder posting to endpoint.
func NewHTTPEmbedder(endpoint string, timeout time.Duration) *HTTPEmbedder {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &HTTPEmbedder{
		endpoint: endpoint,
		client:   &http.Client{Timeout: timeout},
		breaker:  resilience.NewExternalBreaker("embedding-endpoint", 5, 30*time.Second),
	}
}

type embedRequest struct {
	TenantID string `json:"tenant_id"`
	Text     string `json:"text"`
}

type embedResponse struct {
	Vector []float32 `json:"vector"`
}

// Embed posts text to the configured endpoint and returns the model's
// embedding vector.
func (e *HTTPEmbedder) Embed(ctx context.Context, tenantID, text string) ([]float32, error) {
	if text == "" {
		return nil, apperrors.Validation("text", "embedding input must not be empty")
	}

	return e.breaker.Execute(ctx, func(ctx context.Context) ([]float32, error) {
		body, err := json.Marshal(embedRequest{TenantID: tenantID, Text: text})
		if err != nil {
			return nil, apperrors.Wrap(apperrors.KindInternal, "FR-EMBED-001", err)
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.endpoint, bytes.NewReader(body))
		if err != nil {
			return nil, apperrors.Wrap(apperrors.KindInternal, "FR-EMBED-001", err)
		}
		req.Header.Set("Content-Type", "application/json")

		resp, err := e.client.Do(req)
		if err != nil {
			return nil, apperrors.Wrap(apperrors.KindTransient, "FR-EMBED-002", fmt.Errorf("embedding: request failed: %w", err))
		}
		defer resp.Body.Close()

		if resp.StatusCode >= 500 {
			return nil, apperrors.New(apperrors.KindTransient, "FR-EMBED-002", fmt.Sprintf("embedding endpoint returned %d", resp.StatusCode))
		}
		if resp.StatusCode != http.StatusOK {
			return nil, apperrors.New(apperrors.KindInternal, "FR-EMBED-004", fmt.Sprintf("embedding endpoint returned %d", resp.StatusCode))
		}

		var parsed embedResponse
		if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
			return nil, apperrors.Wrap(apperrors.KindInternal, "FR-EMBED-004", fmt.Errorf("embedding: decode response: %w", err))
		}
		return parsed.Vector, nil
	})
}
