package auth

import (
	"github.com/ragforge/rag-mcp/internal/apperrors"
	"github.com/ragforge/rag-mcp/internal/reqcontext"
)

// toolPermissions is the static tool-to-allowed-roles matrix, kept as a
// flat map rather than derived from the role hierarchy. Every entry is
// an upward-closed set of roles: the uber_admin-only tools
// (rag_get_system_health, rag_restore_tenant_data, rag_delete_tenant,
// ...) are the entries whose least-privileged role is uber_admin.
var toolPermissions = map[string]map[reqcontext.Role]bool{
	"rag_list_tools": allOf(reqcontext.RoleUberAdmin, reqcontext.RoleTenantAdmin, reqcontext.RoleProjectAdmin, reqcontext.RoleEndUser),

	"rag_register_tenant":         allOf(reqcontext.RoleUberAdmin),
	"rag_list_templates":          allOf(reqcontext.RoleUberAdmin, reqcontext.RoleTenantAdmin, reqcontext.RoleProjectAdmin, reqcontext.RoleEndUser),
	"rag_get_template":            allOf(reqcontext.RoleUberAdmin, reqcontext.RoleTenantAdmin, reqcontext.RoleProjectAdmin, reqcontext.RoleEndUser),
	"rag_configure_tenant_models": allOf(reqcontext.RoleUberAdmin, reqcontext.RoleTenantAdmin),
	"rag_update_tenant_config":    allOf(reqcontext.RoleUberAdmin, reqcontext.RoleTenantAdmin),
	"rag_delete_tenant":           allOf(reqcontext.RoleUberAdmin),

	"rag_ingest":          allOf(reqcontext.RoleUberAdmin, reqcontext.RoleTenantAdmin, reqcontext.RoleProjectAdmin),
	"rag_delete_document": allOf(reqcontext.RoleUberAdmin, reqcontext.RoleTenantAdmin, reqcontext.RoleProjectAdmin),
	"rag_get_document":    allOf(reqcontext.RoleUberAdmin, reqcontext.RoleTenantAdmin, reqcontext.RoleProjectAdmin, reqcontext.RoleEndUser),
	"rag_list_documents":  allOf(reqcontext.RoleUberAdmin, reqcontext.RoleTenantAdmin, reqcontext.RoleProjectAdmin, reqcontext.RoleEndUser),

	"rag_search": allOf(reqcontext.RoleUberAdmin, reqcontext.RoleTenantAdmin, reqcontext.RoleProjectAdmin, reqcontext.RoleEndUser),

	"mem0_get_user_memory": allOf(reqcontext.RoleUberAdmin, reqcontext.RoleTenantAdmin, reqcontext.RoleProjectAdmin, reqcontext.RoleEndUser),
	"mem0_update_memory":   allOf(reqcontext.RoleUberAdmin, reqcontext.RoleTenantAdmin, reqcontext.RoleProjectAdmin, reqcontext.RoleEndUser),
	"mem0_search_memory":   allOf(reqcontext.RoleUberAdmin, reqcontext.RoleTenantAdmin, reqcontext.RoleProjectAdmin, reqcontext.RoleEndUser),

	"rag_query_audit_logs": allOf(reqcontext.RoleUberAdmin, reqcontext.RoleTenantAdmin),

	"rag_get_usage_stats":       allOf(reqcontext.RoleUberAdmin, reqcontext.RoleTenantAdmin),
	"rag_get_search_analytics":  allOf(reqcontext.RoleUberAdmin, reqcontext.RoleTenantAdmin),
	"rag_get_memory_analytics":  allOf(reqcontext.RoleUberAdmin, reqcontext.RoleTenantAdmin),
	"rag_get_system_health":     allOf(reqcontext.RoleUberAdmin),
	"rag_get_tenant_health":     allOf(reqcontext.RoleUberAdmin, reqcontext.RoleTenantAdmin),

	"rag_backup_tenant_data":  allOf(reqcontext.RoleUberAdmin, reqcontext.RoleTenantAdmin),
	"rag_restore_tenant_data": allOf(reqcontext.RoleUberAdmin),
	"rag_rebuild_index":       allOf(reqcontext.RoleUberAdmin, reqcontext.RoleTenantAdmin),
	"rag_validate_backup":     allOf(reqcontext.RoleUberAdmin, reqcontext.RoleTenantAdmin),

	"rag_export_tenant_data": allOf(reqcontext.RoleUberAdmin, reqcontext.RoleTenantAdmin),
	// rag_export_user_data is reachable by every role because its handler
	// (resolveMemoryUser) always permits a caller to export their own
	// records; reaching for someone else's is what raises the role floor,
	// enforced inside the handler rather than the matrix.
	"rag_export_user_data": allOf(reqcontext.RoleUberAdmin, reqcontext.RoleTenantAdmin, reqcontext.RoleProjectAdmin, reqcontext.RoleEndUser),

	"rag_update_subscription_tier": allOf(reqcontext.RoleUberAdmin),
	"rag_get_subscription_tier":    allOf(reqcontext.RoleUberAdmin, reqcontext.RoleTenantAdmin),
}

func allOf(roles ...reqcontext.Role) map[reqcontext.Role]bool {
	m := make(map[reqcontext.Role]bool, len(roles))
	for _, r := range roles {
		m[r] = true
	}
	return m
}

// CanAccessTool reports whether role may invoke toolName. An unknown
// tool name is never accessible, regardless of role.
func CanAccessTool(role reqcontext.Role, toolName string) bool {
	return toolPermissions[toolName][role]
}

// CheckToolPermission returns a KindAuthorization error with code
// FR-ERROR-003 if role cannot invoke toolName.
func CheckToolPermission(role reqcontext.Role, toolName string) error {
	if CanAccessTool(role, toolName) {
		return nil
	}
	return apperrors.New(apperrors.KindAuthorization, "FR-ERROR-003",
		"role '"+string(role)+"' does not have permission to access tool '"+toolName+"'")
}

// RequiredRoleFor returns the least-privileged role allowed to invoke
// toolName, for informational responses. ok is false for unknown tools.
func RequiredRoleFor(toolName string) (role reqcontext.Role, ok bool) {
	allowed, exists := toolPermissions[toolName]
	if !exists || len(allowed) == 0 {
		return "", false
	}
	hierarchy := []reqcontext.Role{
		reqcontext.RoleEndUser,
		reqcontext.RoleProjectAdmin,
		reqcontext.RoleTenantAdmin,
		reqcontext.RoleUberAdmin,
	}
	for _, r := range hierarchy {
		if allowed[r] {
			return r, true
		}
	}
	return "", false
}

// ToolNames returns every tool name the matrix knows about, used by
// rag_list_tools to enumerate the full catalog.
func ToolNames() []string {
	names := make([]string, 0, len(toolPermissions))
	for name := range toolPermissions {
		names = append(names, name)
	}
	return names
}
