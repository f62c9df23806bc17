package auth_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ragforge/rag-mcp/internal/apperrors"
	"github.com/ragforge/rag-mcp/internal/auth"
	"github.com/ragforge/rag-mcp/internal/reqcontext"
)

func TestCanAccessTool_UberAdminOnlyTools(t *testing.T) {
	for _, tool := range []string{"rag_register_tenant", "rag_delete_tenant", "rag_get_system_health", "rag_restore_tenant_data"} {
		assert.True(t, auth.CanAccessTool(reqcontext.RoleUberAdmin, tool), "uber_admin should access %s", tool)
		assert.False(t, auth.CanAccessTool(reqcontext.RoleTenantAdmin, tool), "tenant_admin should not access %s despite outranking lower roles", tool)
	}
}

func TestCanAccessTool_EndUserSearchAllowed(t *testing.T) {
	assert.True(t, auth.CanAccessTool(reqcontext.RoleEndUser, "rag_search"))
	assert.True(t, auth.CanAccessTool(reqcontext.RoleEndUser, "rag_get_document"))
}

func TestCanAccessTool_EndUserCannotIngest(t *testing.T) {
	assert.False(t, auth.CanAccessTool(reqcontext.RoleEndUser, "rag_ingest"))
	assert.False(t, auth.CanAccessTool(reqcontext.RoleEndUser, "rag_delete_document"))
}

func TestCanAccessTool_UnknownToolAlwaysDenied(t *testing.T) {
	assert.False(t, auth.CanAccessTool(reqcontext.RoleUberAdmin, "rag_does_not_exist"))
}

func TestCheckToolPermission_ReturnsAuthorizationKind(t *testing.T) {
	err := auth.CheckToolPermission(reqcontext.RoleEndUser, "rag_ingest")
	require.Error(t, err)
	appErr, ok := apperrors.As(err)
	require.True(t, ok)
	assert.Equal(t, apperrors.KindAuthorization, appErr.Kind)
}

func TestCheckToolPermission_AllowedReturnsNil(t *testing.T) {
	assert.NoError(t, auth.CheckToolPermission(reqcontext.RoleProjectAdmin, "rag_ingest"))
}

func TestRequiredRoleFor_LeastPrivilegedWins(t *testing.T) {
	role, ok := auth.RequiredRoleFor("rag_search")
	require.True(t, ok)
	assert.Equal(t, reqcontext.RoleEndUser, role)

	role, ok = auth.RequiredRoleFor("rag_get_system_health")
	require.True(t, ok)
	assert.Equal(t, reqcontext.RoleUberAdmin, role)
}

func TestRequiredRoleFor_UnknownTool(t *testing.T) {
	_, ok := auth.RequiredRoleFor("rag_does_not_exist")
	assert.False(t, ok)
}

func TestToolNames_IncludesKnownTools(t *testing.T) {
	names := auth.ToolNames()
	assert.Contains(t, names, "rag_search")
	assert.Contains(t, names, "rag_ingest")
}
