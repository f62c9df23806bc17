package dispatcher_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ragforge/rag-mcp/internal/apperrors"
	"github.com/ragforge/rag-mcp/internal/auth"
	"github.com/ragforge/rag-mcp/internal/dispatcher"
	"github.com/ragforge/rag-mcp/internal/models"
	"github.com/ragforge/rag-mcp/internal/reqcontext"
)

type fakeTenantLookup struct {
	tenants map[string]*models.Tenant
	configs map[string]*models.TenantConfiguration
}

func newFakeTenantLookup() *fakeTenantLookup {
	return &fakeTenantLookup{
		tenants: map[string]*models.Tenant{
			"tenant-a": {TenantID: "tenant-a", DisplayName: "Tenant A"},
		},
		configs: map[string]*models.TenantConfiguration{},
	}
}

func (f *fakeTenantLookup) GetTenant(ctx context.Context, tenantID string) (*models.Tenant, error) {
	t, ok := f.tenants[tenantID]
	if !ok {
		return nil, apperrors.NotFound("tenant not found")
	}
	return t, nil
}

func (f *fakeTenantLookup) GetTenantConfiguration(ctx context.Context, tenantID string) (*models.TenantConfiguration, error) {
	cfg, ok := f.configs[tenantID]
	if !ok {
		return &models.TenantConfiguration{TenantID: tenantID, RateLimitEnabled: false}, nil
	}
	return cfg, nil
}

func newTestDispatcher(t *testing.T, tenants *fakeTenantLookup) (*dispatcher.Dispatcher, *dispatcher.Registry, *auth.Service) {
	t.Helper()
	authService := auth.NewService(auth.ServiceConfig{JWTSecret: "test-secret", JWTExpiration: time.Hour}, nil, nil, nil)
	registry := dispatcher.NewRegistry()
	registry.Register("rag_search", func(ctx context.Context, rc reqcontext.RequestContext, args dispatcher.Args) (dispatcher.Result, error) {
		return dispatcher.Result{"tenant_id": rc.TenantID, "query": args["query"]}, nil
	})
	registry.Register("rag_delete_tenant", func(ctx context.Context, rc reqcontext.RequestContext, args dispatcher.Args) (dispatcher.Result, error) {
		return dispatcher.Result{"deleted": true}, nil
	})
	d := dispatcher.New(registry, authService, tenants, nil, nil, nil, nil)
	return d, registry, authService
}

func tokenFor(t *testing.T, authService *auth.Service, identity auth.Identity) string {
	t.Helper()
	tok, err := authService.GenerateJWT(identity)
	require.NoError(t, err)
	return tok
}

func TestDispatch_AllowsPermittedRole(t *testing.T) {
	tenants := newFakeTenantLookup()
	d, _, authService := newTestDispatcher(t, tenants)
	token := tokenFor(t, authService, auth.Identity{UserID: "u1", TenantID: "tenant-a", Role: reqcontext.RoleEndUser})

	result, err := d.Dispatch(context.Background(), "rag_search", dispatcher.Credentials{BearerToken: token}, dispatcher.Args{"query": "hello"})

	require.NoError(t, err)
	assert.Equal(t, "tenant-a", result["tenant_id"])
	assert.Equal(t, "hello", result["query"])
}

func TestDispatch_RejectsUnauthorizedRole(t *testing.T) {
	tenants := newFakeTenantLookup()
	d, _, authService := newTestDispatcher(t, tenants)
	token := tokenFor(t, authService, auth.Identity{UserID: "u1", TenantID: "tenant-a", Role: reqcontext.RoleEndUser})

	_, err := d.Dispatch(context.Background(), "rag_delete_tenant", dispatcher.Credentials{BearerToken: token}, dispatcher.Args{})

	require.Error(t, err)
	appErr, ok := apperrors.As(err)
	require.True(t, ok)
	assert.Equal(t, apperrors.KindAuthorization, appErr.Kind)
}

func TestDispatch_UnknownTool(t *testing.T) {
	tenants := newFakeTenantLookup()
	d, _, authService := newTestDispatcher(t, tenants)
	token := tokenFor(t, authService, auth.Identity{UserID: "u1", TenantID: "tenant-a", Role: reqcontext.RoleUberAdmin})

	_, err := d.Dispatch(context.Background(), "rag_not_a_real_tool", dispatcher.Credentials{BearerToken: token}, dispatcher.Args{})

	require.Error(t, err)
	appErr, ok := apperrors.As(err)
	require.True(t, ok)
	assert.Equal(t, apperrors.KindValidation, appErr.Kind)
}

func TestDispatch_NoCredential(t *testing.T) {
	tenants := newFakeTenantLookup()
	d, _, _ := newTestDispatcher(t, tenants)

	_, err := d.Dispatch(context.Background(), "rag_search", dispatcher.Credentials{}, dispatcher.Args{"query": "hi"})

	require.Error(t, err)
	appErr, ok := apperrors.As(err)
	require.True(t, ok)
	assert.Equal(t, apperrors.KindAuthentication, appErr.Kind)
}

func TestDispatch_UnknownTenantRejected(t *testing.T) {
	tenants := newFakeTenantLookup()
	d, _, authService := newTestDispatcher(t, tenants)
	token := tokenFor(t, authService, auth.Identity{UserID: "u1", TenantID: "tenant-ghost", Role: reqcontext.RoleEndUser})

	_, err := d.Dispatch(context.Background(), "rag_search", dispatcher.Credentials{BearerToken: token}, dispatcher.Args{"query": "hi"})

	require.Error(t, err)
	appErr, ok := apperrors.As(err)
	require.True(t, ok)
	assert.Equal(t, apperrors.KindTenantIsolation, appErr.Kind)
}

func TestDispatch_SoftDeletedTenantRejected(t *testing.T) {
	tenants := newFakeTenantLookup()
	deletedAt := time.Now().Add(-time.Hour)
	tenants.tenants["tenant-b"] = &models.Tenant{TenantID: "tenant-b", DisplayName: "Tenant B", DeletedAt: &deletedAt}
	d, _, authService := newTestDispatcher(t, tenants)
	token := tokenFor(t, authService, auth.Identity{UserID: "u1", TenantID: "tenant-b", Role: reqcontext.RoleEndUser})

	_, err := d.Dispatch(context.Background(), "rag_search", dispatcher.Credentials{BearerToken: token}, dispatcher.Args{"query": "hi"})

	require.Error(t, err)
	appErr, ok := apperrors.As(err)
	require.True(t, ok)
	assert.Equal(t, apperrors.KindTenantIsolation, appErr.Kind)
}

func TestDispatch_UberAdminTenantHeaderOverride(t *testing.T) {
	tenants := newFakeTenantLookup()
	d, _, authService := newTestDispatcher(t, tenants)
	token := tokenFor(t, authService, auth.Identity{UserID: "root", TenantID: "", Role: reqcontext.RoleUberAdmin})

	result, err := d.Dispatch(context.Background(), "rag_search", dispatcher.Credentials{
		BearerToken:    token,
		TenantIDHeader: "tenant-a",
	}, dispatcher.Args{"query": "hi"})

	require.NoError(t, err)
	assert.Equal(t, "tenant-a", result["tenant_id"])
}

func TestDispatch_ValidationErrorOnMissingRequiredArg(t *testing.T) {
	tenants := newFakeTenantLookup()
	d, _, authService := newTestDispatcher(t, tenants)
	token := tokenFor(t, authService, auth.Identity{UserID: "u1", TenantID: "tenant-a", Role: reqcontext.RoleEndUser})

	_, err := d.Dispatch(context.Background(), "rag_search", dispatcher.Credentials{BearerToken: token}, dispatcher.Args{})

	require.Error(t, err)
	appErr, ok := apperrors.As(err)
	require.True(t, ok)
	assert.Equal(t, apperrors.KindValidation, appErr.Kind)
}
