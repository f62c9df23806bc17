package reqcontext_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ragforge/rag-mcp/internal/reqcontext"
)

func TestWithContextAndFromContext_RoundTrip(t *testing.T) {
	rc := reqcontext.RequestContext{TenantID: "tenant-a", UserID: "user-1", Role: reqcontext.RoleTenantAdmin}
	ctx := reqcontext.WithContext(context.Background(), rc)

	got, ok := reqcontext.FromContext(ctx)
	require.True(t, ok)
	assert.Equal(t, rc, got)
}

func TestFromContext_MissingReturnsFalse(t *testing.T) {
	_, ok := reqcontext.FromContext(context.Background())
	assert.False(t, ok)
}

func TestMustFromContext_PanicsWhenMissing(t *testing.T) {
	assert.Panics(t, func() {
		reqcontext.MustFromContext(context.Background())
	})
}

func TestIsUberAdmin(t *testing.T) {
	assert.True(t, reqcontext.RequestContext{Role: reqcontext.RoleUberAdmin}.IsUberAdmin())
	assert.False(t, reqcontext.RequestContext{Role: reqcontext.RoleTenantAdmin}.IsUberAdmin())
}

func TestAuthorizeTenant_SameTenantAlwaysAllowed(t *testing.T) {
	rc := reqcontext.RequestContext{TenantID: "tenant-a", Role: reqcontext.RoleEndUser}
	got, ok := rc.AuthorizeTenant("tenant-a")
	assert.True(t, ok)
	assert.Equal(t, "tenant-a", got)
}

func TestAuthorizeTenant_EmptyParamDefaultsToOwnTenant(t *testing.T) {
	rc := reqcontext.RequestContext{TenantID: "tenant-a", Role: reqcontext.RoleEndUser}
	got, ok := rc.AuthorizeTenant("")
	assert.True(t, ok)
	assert.Equal(t, "tenant-a", got)
}

func TestAuthorizeTenant_CrossTenantDeniedForNonAdmin(t *testing.T) {
	rc := reqcontext.RequestContext{TenantID: "tenant-a", Role: reqcontext.RoleTenantAdmin}
	_, ok := rc.AuthorizeTenant("tenant-b")
	assert.False(t, ok)
}

func TestAuthorizeTenant_CrossTenantAllowedForUberAdmin(t *testing.T) {
	rc := reqcontext.RequestContext{TenantID: "", Role: reqcontext.RoleUberAdmin}
	got, ok := rc.AuthorizeTenant("tenant-b")
	assert.True(t, ok)
	assert.Equal(t, "tenant-b", got)
}
