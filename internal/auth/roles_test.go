package auth_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ragforge/rag-mcp/internal/auth"
	"github.com/ragforge/rag-mcp/internal/reqcontext"
)

func TestParseRole_CanonicalRoles(t *testing.T) {
	cases := map[string]reqcontext.Role{
		"end_user":     reqcontext.RoleEndUser,
		"project_admin": reqcontext.RoleProjectAdmin,
		"tenant_admin": reqcontext.RoleTenantAdmin,
		"uber_admin":   reqcontext.RoleUberAdmin,
	}
	for raw, want := range cases {
		got, err := auth.ParseRole(raw)
		require.NoError(t, err)
		assert.Equal(t, want, got)
	}
}

func TestParseRole_LegacyAliases(t *testing.T) {
	cases := map[string]reqcontext.Role{
		"user":   reqcontext.RoleEndUser,
		"viewer": reqcontext.RoleEndUser,
	}
	for raw, want := range cases {
		got, err := auth.ParseRole(raw)
		require.NoError(t, err)
		assert.Equal(t, want, got)
	}
}

func TestParseRole_Unknown(t *testing.T) {
	_, err := auth.ParseRole("not-a-role")
	assert.Error(t, err)
}

func TestAtLeast_HierarchyOrdering(t *testing.T) {
	assert.True(t, auth.AtLeast(reqcontext.RoleTenantAdmin, reqcontext.RoleProjectAdmin))
	assert.True(t, auth.AtLeast(reqcontext.RoleUberAdmin, reqcontext.RoleEndUser))
	assert.False(t, auth.AtLeast(reqcontext.RoleProjectAdmin, reqcontext.RoleTenantAdmin))
	assert.True(t, auth.AtLeast(reqcontext.RoleEndUser, reqcontext.RoleEndUser))
}

func TestRoleCapabilities_EveryRoleDescribed(t *testing.T) {
	for _, role := range []reqcontext.Role{
		reqcontext.RoleEndUser, reqcontext.RoleProjectAdmin, reqcontext.RoleTenantAdmin, reqcontext.RoleUberAdmin,
	} {
		cap := auth.RoleCapabilities(role)
		assert.NotEmpty(t, cap.Description, "expected capabilities for role %q", role)
	}
}
