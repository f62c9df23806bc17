// Package tools implements the tool handlers: the leaf business logic
// invoked by internal/dispatcher once the middleware pipeline has
// authenticated, tenant-scoped, rate-limited, and authorized a call.
package tools

import (
	"time"

	"github.com/google/uuid"

	"github.com/ragforge/rag-mcp/internal/adapters/keyword"
	"github.com/ragforge/rag-mcp/internal/adapters/object"
	"github.com/ragforge/rag-mcp/internal/adapters/relational"
	"github.com/ragforge/rag-mcp/internal/adapters/vector"
	"github.com/ragforge/rag-mcp/internal/apperrors"
	"github.com/ragforge/rag-mcp/internal/auth"
	"github.com/ragforge/rag-mcp/internal/cache"
	"github.com/ragforge/rag-mcp/internal/dispatcher"
	"github.com/ragforge/rag-mcp/internal/embedding"
	"github.com/ragforge/rag-mcp/internal/observability"
	"github.com/ragforge/rag-mcp/internal/reqcontext"
	"github.com/ragforge/rag-mcp/internal/search"
)

// Deps bundles every collaborator a tool handler may need. Handlers are
// methods on *Deps rather than free functions so they share one set of
// wired backends, the way the teacher's handler structs close over a
// single service container.
type Deps struct {
	Relational  *relational.Store
	Vector      *vector.Store
	Object      *object.Store
	Keyword     *keyword.Store
	Embedder    embedding.Embedder
	Hybrid      *search.Service
	Auth        *auth.Service
	Cache       cache.Cache
	Logger      observability.Logger
	Metrics     observability.MetricsClient
	BackupRoot  string
}

// Register wires every tool handler into registry, keyed by the exact
// names in the permission matrix (internal/auth/permissions.go) so a
// handler can never be reachable under a name the matrix doesn't know.
func Register(registry *dispatcher.Registry, d *Deps) {
	registry.Register("rag_ingest", d.RagIngest)
	registry.Register("rag_delete_document", d.RagDeleteDocument)
	registry.Register("rag_get_document", d.RagGetDocument)
	registry.Register("rag_list_documents", d.RagListDocuments)
	registry.Register("rag_search", d.RagSearch)

	registry.Register("mem0_get_user_memory", d.Mem0GetUserMemory)
	registry.Register("mem0_update_memory", d.Mem0UpdateMemory)
	registry.Register("mem0_search_memory", d.Mem0SearchMemory)

	registry.Register("rag_register_tenant", d.RagRegisterTenant)
	registry.Register("rag_delete_tenant", d.RagDeleteTenant)
	registry.Register("rag_update_subscription_tier", d.RagUpdateSubscriptionTier)
	registry.Register("rag_get_subscription_tier", d.RagGetSubscriptionTier)
	registry.Register("rag_configure_tenant_models", d.RagConfigureTenantModels)
	registry.Register("rag_update_tenant_config", d.RagUpdateTenantConfig)
	registry.Register("rag_list_templates", d.RagListTemplates)
	registry.Register("rag_get_template", d.RagGetTemplate)
	registry.Register("rag_list_tools", d.RagListTools)

	registry.Register("rag_query_audit_logs", d.RagQueryAuditLogs)
	registry.Register("rag_get_usage_stats", d.RagGetUsageStats)
	registry.Register("rag_get_search_analytics", d.RagGetSearchAnalytics)
	registry.Register("rag_get_memory_analytics", d.RagGetMemoryAnalytics)
	registry.Register("rag_get_system_health", d.RagGetSystemHealth)
	registry.Register("rag_get_tenant_health", d.RagGetTenantHealth)

	registry.Register("rag_backup_tenant_data", d.RagBackupTenantData)
	registry.Register("rag_restore_tenant_data", d.RagRestoreTenantData)
	registry.Register("rag_rebuild_index", d.RagRebuildIndex)
	registry.Register("rag_validate_backup", d.RagValidateBackup)

	registry.Register("rag_export_tenant_data", d.RagExportTenantData)
	registry.Register("rag_export_user_data", d.RagExportUserData)
}

// --- argument helpers ---------------------------------------------------

func str(args dispatcher.Args, key string) string {
	v, _ := args[key].(string)
	return v
}

func strOr(args dispatcher.Args, key, fallback string) string {
	if v := str(args, key); v != "" {
		return v
	}
	return fallback
}

func boolOr(args dispatcher.Args, key string, fallback bool) bool {
	if v, ok := args[key].(bool); ok {
		return v
	}
	return fallback
}

// intOr reads an integer-valued argument. JSON-decoded arguments arrive
// as float64, so both representations are accepted.
func intOr(args dispatcher.Args, key string, fallback int) int {
	switch v := args[key].(type) {
	case float64:
		return int(v)
	case int:
		return v
	default:
		return fallback
	}
}

func stringMap(args dispatcher.Args, key string) map[string]interface{} {
	if m, ok := args[key].(map[string]interface{}); ok {
		return m
	}
	return map[string]interface{}{}
}

// resolveTenant applies the cross-tenant authorization rule to an
// optional tenant_id argument via reqcontext.AuthorizeTenant, returning
// the tenant to act on, or a KindAuthorization error when the requested
// tenant is rejected.
func resolveTenant(rc reqcontext.RequestContext, args dispatcher.Args) (string, error) {
	requested := str(args, "tenant_id")
	tenantID, ok := rc.AuthorizeTenant(requested)
	if !ok {
		return "", apperrors.Authorization("tenant_id parameter does not match the caller's tenant")
	}
	return tenantID, nil
}

func newID() string { return uuid.New().String() }

func now() time.Time { return time.Now().UTC() }

func validateLimit(limit int) error {
	if limit <= 0 || limit > 100 {
		return apperrors.Validation("limit", "limit must be between 1 and 100")
	}
	return nil
}
