package audit_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ragforge/rag-mcp/internal/audit"
	"github.com/ragforge/rag-mcp/internal/models"
	"github.com/ragforge/rag-mcp/internal/reqcontext"
)

type recordingStore struct {
	mu      sync.Mutex
	entries []models.AuditLog
}

func (s *recordingStore) InsertAuditLog(ctx context.Context, entry models.AuditLog) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries = append(s.entries, entry)
	return nil
}

func (s *recordingStore) snapshot() []models.AuditLog {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]models.AuditLog, len(s.entries))
	copy(out, s.entries)
	return out
}

func TestLogger_PersistsPreAndPostExecution(t *testing.T) {
	store := &recordingStore{}
	logger := audit.NewLogger(audit.Config{QueueSize: 8, WorkerCount: 1}, store, nil, nil)

	rc := reqcontext.RequestContext{TenantID: "tenant-a", UserID: "user-1", Role: reqcontext.RoleEndUser}
	logger.LogPreExecution(rc, "rag_search")
	logger.LogPostExecution(rc, "rag_search", true, 10*time.Millisecond, "ok", nil)
	logger.Close()

	entries := store.snapshot()
	require.Len(t, entries, 2)
	for _, e := range entries {
		require.NotNil(t, e.TenantID)
		assert.Equal(t, "tenant-a", *e.TenantID)
		assert.Equal(t, "rag_search", e.Action)
	}
}

func TestLogger_TruncatesLongSummary(t *testing.T) {
	store := &recordingStore{}
	logger := audit.NewLogger(audit.Config{QueueSize: 8, WorkerCount: 1}, store, nil, nil)

	longSummary := ""
	for i := 0; i < 600; i++ {
		longSummary += "x"
	}
	rc := reqcontext.RequestContext{TenantID: "tenant-a"}
	logger.LogPostExecution(rc, "rag_ingest", true, time.Millisecond, longSummary, nil)
	logger.Close()

	entries := store.snapshot()
	require.Len(t, entries, 1)
	summary, _ := entries[0].Details["result_summary"].(string)
	assert.LessOrEqual(t, len(summary), 503)
}

func TestLogger_NilStoreDoesNotPanic(t *testing.T) {
	logger := audit.NewLogger(audit.Config{QueueSize: 4, WorkerCount: 1}, nil, nil, nil)
	rc := reqcontext.RequestContext{TenantID: "tenant-a"}
	logger.LogPreExecution(rc, "rag_search")
	logger.Close()
}

func TestLogger_CloseDrainsInFlightEvents(t *testing.T) {
	store := &recordingStore{}
	logger := audit.NewLogger(audit.DefaultConfig(), store, nil, nil)

	rc := reqcontext.RequestContext{TenantID: "tenant-a"}
	for i := 0; i < 50; i++ {
		logger.LogPostExecution(rc, "rag_search", true, time.Millisecond, "ok", nil)
	}
	logger.Close()

	assert.Len(t, store.snapshot(), 50)
}
