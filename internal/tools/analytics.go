package tools

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/ragforge/rag-mcp/internal/apperrors"
	"github.com/ragforge/rag-mcp/internal/dispatcher"
	"github.com/ragforge/rag-mcp/internal/reqcontext"
)

const (
	analyticsCacheTTL = 5 * time.Minute
	healthCacheTTL    = 30 * time.Second
)

// cachedResult looks up key in d.Cache, falling back to compute on a
// miss and writing the fresh value back under ttl. Analytics and health
// tools share this helper since both are cacheable, expensive reads.
func (d *Deps) cachedResult(ctx context.Context, key string, ttl time.Duration, compute func() (dispatcher.Result, error)) (dispatcher.Result, error) {
	if d.Cache != nil {
		var cached dispatcher.Result
		if err := d.Cache.Get(ctx, key, &cached); err == nil {
			return cached, nil
		}
	}
	result, err := compute()
	if err != nil {
		return nil, err
	}
	if d.Cache != nil {
		if err := d.Cache.Set(ctx, key, result, ttl); err != nil {
			d.Logger.Warn("failed to cache tool result", map[string]interface{}{"key": key, "error": err.Error()})
		}
	}
	return result, nil
}

// RagQueryAuditLogs returns audit entries for a tenant within a time range.
func (d *Deps) RagQueryAuditLogs(ctx context.Context, rc reqcontext.RequestContext, args dispatcher.Args) (dispatcher.Result, error) {
	tenantID, err := resolveTenant(rc, args)
	if err != nil {
		return nil, err
	}
	limit := intOr(args, "limit", 50)
	if err := validateLimit(limit); err != nil {
		return nil, err
	}
	from := parseTimeOr(args, "from", now().Add(-30*24*time.Hour))
	to := parseTimeOr(args, "to", now())

	logs, err := d.Relational.QueryAuditLogs(ctx, tenantID, from, to, limit)
	if err != nil {
		return nil, err
	}
	out := make([]dispatcher.Result, 0, len(logs))
	for _, l := range logs {
		out = append(out, dispatcher.Result{
			"log_id":        l.LogID,
			"action":        l.Action,
			"resource_type": l.ResourceType,
			"resource_id":   l.ResourceID,
			"timestamp":     l.Timestamp,
		})
	}
	return dispatcher.Result{"logs": out, "count": len(out)}, nil
}

func parseTimeOr(args dispatcher.Args, key string, fallback time.Time) time.Time {
	v := str(args, key)
	if v == "" {
		return fallback
	}
	t, err := time.Parse(time.RFC3339, v)
	if err != nil {
		return fallback
	}
	return t
}

// RagGetUsageStats reports per-tenant document and index volume.
func (d *Deps) RagGetUsageStats(ctx context.Context, rc reqcontext.RequestContext, args dispatcher.Args) (dispatcher.Result, error) {
	tenantID, err := resolveTenant(rc, args)
	if err != nil {
		return nil, err
	}
	cacheKey := fmt.Sprintf("analytics:usage:%s", tenantID)
	return d.cachedResult(ctx, cacheKey, analyticsCacheTTL, func() (dispatcher.Result, error) {
		docCount, err := d.Relational.CountDocuments(ctx, tenantID)
		if err != nil {
			return nil, err
		}
		vectorCount, err := d.Vector.Count(ctx, tenantID)
		if err != nil {
			return nil, err
		}
		return dispatcher.Result{
			"tenant_id":         tenantID,
			"document_count":    docCount,
			"vector_entry_count": vectorCount,
		}, nil
	})
}

// RagGetSearchAnalytics summarizes recent search activity from the
// audit trail, since no separate search-event store is kept.
func (d *Deps) RagGetSearchAnalytics(ctx context.Context, rc reqcontext.RequestContext, args dispatcher.Args) (dispatcher.Result, error) {
	tenantID, err := resolveTenant(rc, args)
	if err != nil {
		return nil, err
	}
	cacheKey := fmt.Sprintf("analytics:search:%s", tenantID)
	return d.cachedResult(ctx, cacheKey, analyticsCacheTTL, func() (dispatcher.Result, error) {
		logs, err := d.Relational.QueryAuditLogs(ctx, tenantID, now().Add(-7*24*time.Hour), now(), 1000)
		if err != nil {
			return nil, err
		}
		var searchCount int
		for _, l := range logs {
			if l.Action == "rag_search" {
				searchCount++
			}
		}
		return dispatcher.Result{"tenant_id": tenantID, "search_count_7d": searchCount}, nil
	})
}

// RagGetMemoryAnalytics summarizes mem0 activity from the audit trail.
func (d *Deps) RagGetMemoryAnalytics(ctx context.Context, rc reqcontext.RequestContext, args dispatcher.Args) (dispatcher.Result, error) {
	tenantID, err := resolveTenant(rc, args)
	if err != nil {
		return nil, err
	}
	cacheKey := fmt.Sprintf("analytics:memory:%s", tenantID)
	return d.cachedResult(ctx, cacheKey, analyticsCacheTTL, func() (dispatcher.Result, error) {
		logs, err := d.Relational.QueryAuditLogs(ctx, tenantID, now().Add(-7*24*time.Hour), now(), 1000)
		if err != nil {
			return nil, err
		}
		var writes, reads int
		for _, l := range logs {
			switch l.Action {
			case "mem0_update_memory":
				writes++
			case "mem0_get_user_memory", "mem0_search_memory":
				reads++
			}
		}
		return dispatcher.Result{"tenant_id": tenantID, "memory_writes_7d": writes, "memory_reads_7d": reads}, nil
	})
}

// backendLatencies samples each backend's HealthCheck latency to derive
// p50/p95/p99 for the health tool's response.
func backendLatencies(ctx context.Context, checks map[string]func(context.Context) error) map[string]dispatcher.Result {
	out := make(map[string]dispatcher.Result, len(checks))
	for name, check := range checks {
		samples := make([]time.Duration, 0, 3)
		healthy := true
		for i := 0; i < 3; i++ {
			start := time.Now()
			if err := check(ctx); err != nil {
				healthy = false
			}
			samples = append(samples, time.Since(start))
		}
		sort.Slice(samples, func(i, j int) bool { return samples[i] < samples[j] })
		status := "healthy"
		if !healthy {
			status = "unhealthy"
		}
		out[name] = dispatcher.Result{
			"status": status,
			"p50_ms": samples[len(samples)/2].Milliseconds(),
			"p95_ms": samples[len(samples)-1].Milliseconds(),
			"p99_ms": samples[len(samples)-1].Milliseconds(),
		}
	}
	return out
}

func overallStatus(components map[string]dispatcher.Result) string {
	unhealthy, degraded := 0, 0
	for _, c := range components {
		switch c["status"] {
		case "unhealthy":
			unhealthy++
		case "degraded":
			degraded++
		}
	}
	switch {
	case unhealthy > 0:
		return "unhealthy"
	case degraded > 0:
		return "degraded"
	default:
		return "healthy"
	}
}

// RagGetSystemHealth probes every backend platform-wide; restricted to
// uber_admin by the permission matrix (internal/auth/permissions.go).
func (d *Deps) RagGetSystemHealth(ctx context.Context, rc reqcontext.RequestContext, args dispatcher.Args) (dispatcher.Result, error) {
	return d.cachedResult(ctx, "health:system", healthCacheTTL, func() (dispatcher.Result, error) {
		components := backendLatencies(ctx, map[string]func(context.Context) error{
			"relational": d.Relational.HealthCheck,
			"object":     d.Object.HealthCheck,
			"keyword":    d.Keyword.HealthCheck,
			"vector":     d.Vector.HealthCheck,
		})
		return dispatcher.Result{"status": overallStatus(components), "components": components}, nil
	})
}

// RagGetTenantHealth is the tenant-scoped equivalent of RagGetSystemHealth.
func (d *Deps) RagGetTenantHealth(ctx context.Context, rc reqcontext.RequestContext, args dispatcher.Args) (dispatcher.Result, error) {
	tenantID, err := resolveTenant(rc, args)
	if err != nil {
		return nil, err
	}
	cacheKey := fmt.Sprintf("health:tenant:%s", tenantID)
	return d.cachedResult(ctx, cacheKey, healthCacheTTL, func() (dispatcher.Result, error) {
		components := backendLatencies(ctx, map[string]func(context.Context) error{
			"relational": d.Relational.HealthCheck,
			"object":     func(c context.Context) error { return d.Object.TenantHealthCheck(c, tenantID) },
			"keyword":    d.Keyword.HealthCheck,
			"vector":     d.Vector.HealthCheck,
		})
		status := overallStatus(components)
		if _, err := d.Relational.GetTenant(ctx, tenantID); err != nil {
			if apperrors.KindOf(err) == apperrors.KindNotFound {
				return nil, err
			}
		}
		return dispatcher.Result{"tenant_id": tenantID, "status": status, "components": components}, nil
	})
}
