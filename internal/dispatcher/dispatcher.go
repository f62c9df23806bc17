// Package dispatcher implements the tool registry and the fixed,
// ordered middleware pipeline: authenticate, extract tenant, rate
// limit, authorize, then run the handler wrapped in audit and
// observability stages that must fire on every exit path.
package dispatcher

import (
	"context"
	"fmt"
	"time"

	"github.com/ragforge/rag-mcp/internal/apperrors"
	"github.com/ragforge/rag-mcp/internal/audit"
	"github.com/ragforge/rag-mcp/internal/auth"
	"github.com/ragforge/rag-mcp/internal/models"
	"github.com/ragforge/rag-mcp/internal/observability"
	"github.com/ragforge/rag-mcp/internal/ratelimit"
	"github.com/ragforge/rag-mcp/internal/reqcontext"
)

// Args is the JSON-object argument bag every tool call carries, and
// Result is the JSON-object it returns. Handlers exchange these rather
// than transport-specific types so the same Handler runs whether it was
// invoked over the MCP stdio transport, MCP-over-HTTP, or a test.
type Args map[string]interface{}
type Result map[string]interface{}

// Handler is one tool's leaf implementation (C9). It receives the
// RequestContext the pipeline has already populated and must never
// read tenant/user/role from anywhere else.
type Handler func(ctx context.Context, rc reqcontext.RequestContext, args Args) (Result, error)

// TenantLookup is the tenant-extraction stage's boundary onto the
// relational adapter, kept narrow so the dispatcher does not depend on
// the full relational.Store surface.
type TenantLookup interface {
	GetTenant(ctx context.Context, tenantID string) (*models.Tenant, error)
	GetTenantConfiguration(ctx context.Context, tenantID string) (*models.TenantConfiguration, error)
}

// Credentials carries the raw, transport-level authentication material
// a caller presented, before any stage has validated it. One of
// APIKey/BearerToken must be set. TenantIDHeader is only honored for
// uber_admin callers performing an explicit cross-tenant call.
type Credentials struct {
	APIKey         string
	BearerToken    string
	TenantIDHeader string
	SessionID      string
	IPAddress      string
}

// Registry maps tool name to Handler.
type Registry struct {
	handlers map[string]Handler
}

// NewRegistry returns an empty Registry.
func NewRegistry() *Registry {
	return &Registry{handlers: make(map[string]Handler)}
}

// Register adds or replaces the handler for name.
func (r *Registry) Register(name string, h Handler) {
	r.handlers[name] = h
}

// Lookup returns the handler for name, if any.
func (r *Registry) Lookup(name string) (Handler, bool) {
	h, ok := r.handlers[name]
	return h, ok
}

// Names returns every registered tool name.
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.handlers))
	for name := range r.handlers {
		names = append(names, name)
	}
	return names
}

// Dispatcher runs the middleware pipeline in front of the Registry.
type Dispatcher struct {
	registry    *Registry
	authService *auth.Service
	tenants     TenantLookup
	rateLimiter *ratelimit.Limiter
	auditLogger *audit.Logger
	logger      observability.Logger
	metrics     observability.MetricsClient
}

// New constructs a Dispatcher over registry, wiring in the pipeline
// stages' collaborators. auditLogger and rateLimiter may be nil to
// disable those stages, since both are optional by configuration.
func New(registry *Registry, authService *auth.Service, tenants TenantLookup, rateLimiter *ratelimit.Limiter, auditLogger *audit.Logger, logger observability.Logger, metrics observability.MetricsClient) *Dispatcher {
	if logger == nil {
		logger = observability.NewNoopLogger()
	}
	if metrics == nil {
		metrics = observability.NewNoopMetrics()
	}
	return &Dispatcher{
		registry:    registry,
		authService: authService,
		tenants:     tenants,
		rateLimiter: rateLimiter,
		auditLogger: auditLogger,
		logger:      logger,
		metrics:     metrics,
	}
}

// Dispatch runs toolName through the full pipeline: authenticate,
// extract tenant, rate limit, authorize, audit+observability-wrapped
// execution. It is the single entry point every transport (stdio MCP,
// MCP-over-HTTP) calls through.
func (d *Dispatcher) Dispatch(ctx context.Context, toolName string, creds Credentials, args Args) (result Result, err error) {
	start := time.Now()

	identity, err := d.authenticate(ctx, creds)
	if err != nil {
		return nil, err
	}

	rc, err := d.extractTenant(ctx, *identity, creds)
	if err != nil {
		return nil, err
	}
	ctx = reqcontext.WithContext(ctx, rc)

	if err := d.rateLimit(ctx, rc); err != nil {
		return nil, err
	}

	handler, ok := d.registry.Lookup(toolName)
	if !ok {
		return nil, apperrors.New(apperrors.KindValidation, "FR-DISPATCH-001", fmt.Sprintf("unknown tool %q", toolName)).WithField("tool_name")
	}

	if err := auth.CheckToolPermission(rc.Role, toolName); err != nil {
		return nil, err
	}

	if err := validateArgs(toolName, args); err != nil {
		return nil, err
	}

	ctx, endSpan := observability.StartSpan(ctx, "tool."+toolName)

	d.auditPreExecution(rc, toolName)
	defer func() {
		d.auditPostExecution(rc, toolName, err == nil, time.Since(start), result, err)
		endSpan(err)
		d.metrics.RecordHistogram("tool_invocation_duration_seconds", time.Since(start).Seconds(), map[string]string{"tool": toolName})
		status := "success"
		if err != nil {
			status = string(apperrors.KindOf(err))
		}
		d.metrics.IncrementCounterWithLabels("tool_invocations_total", 1, map[string]string{"tool": toolName, "status": status})
	}()

	result, err = handler(ctx, rc, args)
	return result, err
}

func (d *Dispatcher) authenticate(ctx context.Context, creds Credentials) (*auth.Identity, error) {
	switch {
	case creds.BearerToken != "":
		identity, err := d.authService.ValidateJWT(ctx, creds.BearerToken)
		if err != nil {
			return nil, apperrors.Wrap(apperrors.KindAuthentication, "FR-AUTH-001", err)
		}
		return identity, nil
	case creds.APIKey != "":
		identity, err := d.authService.ValidateAPIKey(ctx, creds.APIKey)
		if err != nil {
			return nil, apperrors.Wrap(apperrors.KindAuthentication, "FR-AUTH-001", err)
		}
		return identity, nil
	default:
		return nil, apperrors.New(apperrors.KindAuthentication, "FR-AUTH-002", "no credential provided")
	}
}

// extractTenant resolves the caller's tenant. A resolved tenant is
// validated to exist and not be soft-deleted; an unresolved tenant is
// only tolerated for uber_admin callers invoking a platform-scoped tool
// (rag_register_tenant, rag_list_templates, rag_get_system_health, ...),
// which read tenant_id out of their own arguments instead of ctx.
func (d *Dispatcher) extractTenant(ctx context.Context, identity auth.Identity, creds Credentials) (reqcontext.RequestContext, error) {
	tenantID := identity.TenantID
	if identity.Role == reqcontext.RoleUberAdmin && creds.TenantIDHeader != "" {
		tenantID = creds.TenantIDHeader
	}

	if tenantID == "" && identity.Role != reqcontext.RoleUberAdmin {
		return reqcontext.RequestContext{}, apperrors.New(apperrors.KindTenantIsolation, "FR-TENANT-003", "caller has no associated tenant")
	}

	if tenantID != "" {
		tenant, err := d.tenants.GetTenant(ctx, tenantID)
		if err != nil {
			return reqcontext.RequestContext{}, apperrors.New(apperrors.KindTenantIsolation, "FR-TENANT-004", "tenant does not exist")
		}
		if tenant.SoftDeleted() {
			return reqcontext.RequestContext{}, apperrors.New(apperrors.KindTenantIsolation, "FR-TENANT-005", "tenant has been deleted")
		}
	}

	return reqcontext.RequestContext{
		TenantID:   tenantID,
		UserID:     identity.UserID,
		Role:       identity.Role,
		AuthMethod: identity.AuthMethod,
		SessionID:  creds.SessionID,
		IPAddress:  creds.IPAddress,
	}, nil
}

// rateLimit enforces the tenant's configured request budget. It is a
// no-op when the dispatcher was built without a rate limiter, or when
// the request has no tenant (platform-scoped uber_admin calls are not
// rate limited).
func (d *Dispatcher) rateLimit(ctx context.Context, rc reqcontext.RequestContext) error {
	if d.rateLimiter == nil || rc.TenantID == "" {
		return nil
	}
	perMinute := 0
	if cfg, err := d.tenants.GetTenantConfiguration(ctx, rc.TenantID); err == nil {
		if !cfg.RateLimitEnabled {
			return nil
		}
		perMinute = cfg.RateLimitPerMinute
	}
	return d.rateLimiter.Allow(ctx, rc.TenantID, perMinute)
}

func (d *Dispatcher) auditPreExecution(rc reqcontext.RequestContext, toolName string) {
	if d.auditLogger != nil {
		d.auditLogger.LogPreExecution(rc, toolName)
	}
}

func (d *Dispatcher) auditPostExecution(rc reqcontext.RequestContext, toolName string, success bool, duration time.Duration, result Result, err error) {
	if d.auditLogger == nil {
		return
	}
	d.auditLogger.LogPostExecution(rc, toolName, success, duration, summarize(result), err)
}

func summarize(result Result) string {
	if result == nil {
		return ""
	}
	return fmt.Sprintf("%v", result)
}
