// Package reqcontext implements the ambient request-scoped value set:
// tenant_id, user_id, role, auth_method, session_id, and the caller's
// IP address. It is populated by the middleware pipeline stages and
// read by every tool handler and backend adapter, never the other way
// around.
package reqcontext

import "context"

// Role is a caller's role within a tenant, or across tenants for
// UBER_ADMIN. Values are ordered least to most privileged for the
// role-hierarchy helpers in internal/auth.
type Role string

const (
	RoleEndUser     Role = "end_user"
	RoleProjectAdmin Role = "project_admin"
	RoleTenantAdmin  Role = "tenant_admin"
	RoleUberAdmin    Role = "uber_admin"
)

// AuthMethod records which credential type the caller authenticated with.
type AuthMethod string

const (
	AuthMethodAPIKey AuthMethod = "api_key"
	AuthMethodJWT    AuthMethod = "jwt"
)

// RequestContext is the ambient, read-mostly per-request record. It is a
// value type: once constructed by the pipeline, it is never mutated, only
// replaced (via WithContext) by a later stage adding more fields.
type RequestContext struct {
	TenantID   string
	UserID     string
	Role       Role
	AuthMethod AuthMethod
	SessionID  string
	IPAddress  string
}

type contextKey struct{}

// WithContext returns a new context.Context carrying rc. Every
// suspension point (goroutine, adapter call) must be handed this
// derived context, never the parent, which is what makes propagation
// across the hybrid-search arms mandatory rather than optional: a
// goroutine started from ctx automatically carries rc because
// context.Context values are immutable and inherited.
func WithContext(ctx context.Context, rc RequestContext) context.Context {
	return context.WithValue(ctx, contextKey{}, rc)
}

// FromContext extracts the RequestContext populated by the middleware
// pipeline. ok is false only for contexts that never passed through the
// authentication and tenant-extraction stages, which should never
// happen for a tool handler invoked through the dispatcher.
func FromContext(ctx context.Context) (RequestContext, bool) {
	rc, ok := ctx.Value(contextKey{}).(RequestContext)
	return rc, ok
}

// MustFromContext panics if ctx has no RequestContext. It exists for
// adapter code that is only ever reachable downstream of the pipeline,
// where a missing context is a programming error, not a runtime one.
func MustFromContext(ctx context.Context) RequestContext {
	rc, ok := FromContext(ctx)
	if !ok {
		panic("reqcontext: no RequestContext on context; pipeline stages did not run")
	}
	return rc
}

// IsUberAdmin reports whether the context's caller is platform-wide.
func (rc RequestContext) IsUberAdmin() bool { return rc.Role == RoleUberAdmin }

// AuthorizeTenant enforces that any access to a tenant-scoped resource
// uses ctx.TenantID, except an admin-role caller passing a parameter
// equal to ctx.TenantID (same-tenant), or an uber_admin caller passing
// any tenant (an explicit cross-tenant gesture). It returns the tenant
// ID that should actually be used for the lookup.
func (rc RequestContext) AuthorizeTenant(paramTenantID string) (string, bool) {
	if paramTenantID == "" || paramTenantID == rc.TenantID {
		return rc.TenantID, true
	}
	if rc.Role == RoleUberAdmin {
		return paramTenantID, true
	}
	return "", false
}
