package tools

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ragforge/rag-mcp/internal/apperrors"
	"github.com/ragforge/rag-mcp/internal/dispatcher"
	"github.com/ragforge/rag-mcp/internal/reqcontext"
)

func TestStr_MissingKeyReturnsEmpty(t *testing.T) {
	assert.Equal(t, "", str(dispatcher.Args{}, "missing"))
}

func TestStr_NonStringValueReturnsEmpty(t *testing.T) {
	assert.Equal(t, "", str(dispatcher.Args{"k": 5}, "k"))
}

func TestStrOr_FallsBackWhenEmpty(t *testing.T) {
	assert.Equal(t, "fallback", strOr(dispatcher.Args{}, "k", "fallback"))
	assert.Equal(t, "value", strOr(dispatcher.Args{"k": "value"}, "k", "fallback"))
}

func TestBoolOr_FallsBackForNonBool(t *testing.T) {
	assert.True(t, boolOr(dispatcher.Args{}, "k", true))
	assert.False(t, boolOr(dispatcher.Args{"k": false}, "k", true))
}

func TestIntOr_AcceptsFloat64FromJSON(t *testing.T) {
	assert.Equal(t, 42, intOr(dispatcher.Args{"k": float64(42)}, "k", 0))
	assert.Equal(t, 7, intOr(dispatcher.Args{"k": 7}, "k", 0))
	assert.Equal(t, 5, intOr(dispatcher.Args{}, "k", 5))
}

func TestStringMap_ReturnsEmptyMapWhenAbsent(t *testing.T) {
	assert.Equal(t, map[string]interface{}{}, stringMap(dispatcher.Args{}, "k"))
}

func TestValidateLimit_RejectsOutOfRange(t *testing.T) {
	assert.NoError(t, validateLimit(1))
	assert.NoError(t, validateLimit(100))
	assert.Error(t, validateLimit(0))
	assert.Error(t, validateLimit(101))
}

func TestResolveTenant_DefaultsToCallerTenant(t *testing.T) {
	rc := reqcontext.RequestContext{TenantID: "tenant-a", Role: reqcontext.RoleEndUser}
	tenantID, err := resolveTenant(rc, dispatcher.Args{})
	require.NoError(t, err)
	assert.Equal(t, "tenant-a", tenantID)
}

func TestResolveTenant_RejectsCrossTenantForNonAdmin(t *testing.T) {
	rc := reqcontext.RequestContext{TenantID: "tenant-a", Role: reqcontext.RoleTenantAdmin}
	_, err := resolveTenant(rc, dispatcher.Args{"tenant_id": "tenant-b"})
	require.Error(t, err)
	appErr, ok := apperrors.As(err)
	require.True(t, ok)
	assert.Equal(t, apperrors.KindAuthorization, appErr.Kind)
}

func TestResolveTenant_AllowsCrossTenantForUberAdmin(t *testing.T) {
	rc := reqcontext.RequestContext{TenantID: "", Role: reqcontext.RoleUberAdmin}
	tenantID, err := resolveTenant(rc, dispatcher.Args{"tenant_id": "tenant-b"})
	require.NoError(t, err)
	assert.Equal(t, "tenant-b", tenantID)
}
