// Package audit implements the fire-and-forget audit trail, grounded on
// the pre/post execution phases of the original platform's audit
// middleware: every tool call is logged both before and after
// execution, and neither log write may add latency to the caller's
// request.
package audit

import (
	"context"
	"sync"
	"time"

	"github.com/ragforge/rag-mcp/internal/models"
	"github.com/ragforge/rag-mcp/internal/observability"
	"github.com/ragforge/rag-mcp/internal/reqcontext"
)

const maxResultSummaryLen = 500

// Store persists AuditLog rows. It is implemented by the relational
// adapter; audit.Logger never blocks a caller on it failing.
type Store interface {
	InsertAuditLog(ctx context.Context, entry models.AuditLog) error
}

// Event is a single audit record queued for asynchronous persistence.
type Event struct {
	Phase        string // "pre_execution" or "post_execution"
	Tool         string
	RequestCtx   reqcontext.RequestContext
	Success      bool
	DurationMS   int64
	ResultSummary string
	Err          error
	Timestamp    time.Time
}

// Logger queues Events onto a bounded channel drained by a small worker
// pool, so a slow or unavailable Store never delays a tool invocation.
// A full queue drops the event and increments a counter rather than
// blocking: audit completeness is best-effort by design, never at the
// cost of added latency.
type Logger struct {
	store   Store
	logger  observability.Logger
	metrics observability.MetricsClient
	queue   chan Event
	workers sync.WaitGroup
}

// Config tunes the worker pool.
type Config struct {
	QueueSize   int
	WorkerCount int
}

// DefaultConfig returns a modestly sized queue and worker pool.
func DefaultConfig() Config {
	return Config{QueueSize: 1024, WorkerCount: 4}
}

// NewLogger starts cfg.WorkerCount background workers draining the
// queue into store. Callers must call Close during shutdown to drain
// in-flight events.
func NewLogger(cfg Config, store Store, logger observability.Logger, metrics observability.MetricsClient) *Logger {
	if cfg.QueueSize <= 0 {
		cfg = DefaultConfig()
	}
	if logger == nil {
		logger = observability.NewNoopLogger()
	}
	if metrics == nil {
		metrics = observability.NewNoopMetrics()
	}

	l := &Logger{
		store:   store,
		logger:  logger,
		metrics: metrics,
		queue:   make(chan Event, cfg.QueueSize),
	}

	l.workers.Add(cfg.WorkerCount)
	for i := 0; i < cfg.WorkerCount; i++ {
		go l.worker()
	}

	return l
}

func (l *Logger) worker() {
	defer l.workers.Done()
	for ev := range l.queue {
		l.persist(ev)
	}
}

func (l *Logger) persist(ev Event) {
	if l.store == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	details := map[string]interface{}{
		"phase":       ev.Phase,
		"success":     ev.Success,
		"auth_method": string(ev.RequestCtx.AuthMethod),
		"role":        string(ev.RequestCtx.Role),
		"ip_address":  ev.RequestCtx.IPAddress,
		"session_id":  ev.RequestCtx.SessionID,
	}
	if ev.DurationMS > 0 {
		details["duration_ms"] = ev.DurationMS
	}
	if ev.ResultSummary != "" {
		details["result_summary"] = ev.ResultSummary
	}
	if ev.Err != nil {
		details["error"] = ev.Err.Error()
	}

	entry := models.AuditLog{
		Action:       ev.Tool,
		ResourceType: "mcp_tool",
		Details:      details,
		Timestamp:    ev.Timestamp,
	}
	if ev.RequestCtx.TenantID != "" {
		tenantID := ev.RequestCtx.TenantID
		entry.TenantID = &tenantID
	}
	if ev.RequestCtx.UserID != "" {
		userID := ev.RequestCtx.UserID
		entry.UserID = &userID
	}

	if err := l.store.InsertAuditLog(ctx, entry); err != nil {
		l.logger.Warn("failed to persist audit log", map[string]interface{}{"error": err.Error(), "tool": ev.Tool})
		l.metrics.IncrementCounter("audit_persist_failures_total", 1)
	}
}

func (l *Logger) enqueue(ev Event) {
	select {
	case l.queue <- ev:
	default:
		l.metrics.IncrementCounter("audit_events_dropped_total", 1)
		l.logger.Warn("audit queue full, dropping event", map[string]interface{}{"tool": ev.Tool, "phase": ev.Phase})
	}
}

// LogPreExecution queues an optimistic "the call started" record,
// mirroring the original middleware's pre_execution phase which assumes
// success since the handler has not run yet.
func (l *Logger) LogPreExecution(rc reqcontext.RequestContext, tool string) {
	l.enqueue(Event{Phase: "pre_execution", Tool: tool, RequestCtx: rc, Success: true, Timestamp: time.Now()})
}

// LogPostExecution queues the outcome of a completed tool call. summary
// is truncated to at most 500 bytes, including the "..." marker.
func (l *Logger) LogPostExecution(rc reqcontext.RequestContext, tool string, success bool, duration time.Duration, summary string, err error) {
	if len(summary) > maxResultSummaryLen {
		summary = summary[:maxResultSummaryLen-3] + "..."
	}
	l.enqueue(Event{
		Phase:         "post_execution",
		Tool:          tool,
		RequestCtx:    rc,
		Success:       success,
		DurationMS:    duration.Milliseconds(),
		ResultSummary: summary,
		Err:           err,
		Timestamp:     time.Now(),
	})
}

// Close stops accepting new events and waits for in-flight ones to
// drain, used during graceful shutdown.
func (l *Logger) Close() {
	close(l.queue)
	l.workers.Wait()
}
