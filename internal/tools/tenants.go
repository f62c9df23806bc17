package tools

import (
	"context"
	"crypto/rand"
	"encoding/hex"

	"github.com/ragforge/rag-mcp/internal/apperrors"
	"github.com/ragforge/rag-mcp/internal/auth"
	"github.com/ragforge/rag-mcp/internal/dispatcher"
	"github.com/ragforge/rag-mcp/internal/models"
	"github.com/ragforge/rag-mcp/internal/reqcontext"
)

// tierQuotas is the per-minute rate-limit budget written into a
// tenant's configuration whenever its subscription tier changes.
var tierQuotas = map[models.SubscriptionTier]int{
	models.TierFree:       60,
	models.TierBasic:      300,
	models.TierPremium:    1000,
	models.TierEnterprise: 5000,
}

func generateAPIKey() (string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return hex.EncodeToString(buf), nil
}

// RagRegisterTenant provisions a new tenant, its configuration, a first
// admin user, and the API key handed back to the caller once.
func (d *Deps) RagRegisterTenant(ctx context.Context, rc reqcontext.RequestContext, args dispatcher.Args) (dispatcher.Result, error) {
	displayName := str(args, "display_name")
	if displayName == "" {
		return nil, apperrors.Validation("display_name", "display_name is required")
	}
	adminEmail := str(args, "admin_email")
	if adminEmail == "" {
		return nil, apperrors.Validation("admin_email", "admin_email is required")
	}
	tier := models.SubscriptionTier(strOr(args, "tier", string(models.TierFree)))
	if _, ok := tierQuotas[tier]; !ok {
		return nil, apperrors.Validation("tier", "unknown subscription tier")
	}

	tenantID := newID()
	var domain *string
	if v := str(args, "domain"); v != "" {
		domain = &v
	}
	var templateName *string
	if v := str(args, "template_name"); v != "" {
		templateName = &v
	}

	tenant := models.Tenant{
		TenantID:    tenantID,
		DisplayName: displayName,
		Domain:      domain,
		Tier:        tier,
		CreatedAt:   now(),
		UpdatedAt:   now(),
	}
	cfg := models.TenantConfiguration{
		TenantID:           tenantID,
		TemplateName:       templateName,
		EmbeddingModel:     "default",
		LLMModel:           "default",
		EmbeddingDimension: 256,
		RateLimitPerMinute: tierQuotas[tier],
		RateLimitEnabled:   true,
		DataIsolation:      true,
		AuditLoggingEnabled: true,
	}
	if err := d.Relational.InsertTenant(ctx, tenant, cfg); err != nil {
		return nil, err
	}

	adminUserID := newID()
	user := models.User{
		UserID:    adminUserID,
		TenantID:  tenantID,
		Email:     adminEmail,
		Role:      string(reqcontext.RoleTenantAdmin),
		CreatedAt: now(),
	}
	if err := d.Relational.InsertUser(ctx, user); err != nil {
		return nil, err
	}

	rawKey, err := generateAPIKey()
	if err != nil {
		return nil, apperrors.Wrap(apperrors.KindInternal, "FR-TENANT-006", err)
	}
	prefix := rawKey
	if len(prefix) > 8 {
		prefix = prefix[:8]
	}
	key := models.TenantAPIKey{
		KeyID:     newID(),
		TenantID:  tenantID,
		Name:      "default",
		KeyHash:   auth.HashAPIKey(rawKey),
		KeyPrefix: prefix,
		CreatedAt: now(),
	}
	if err := d.Relational.InsertTenantAPIKey(ctx, key); err != nil {
		return nil, err
	}

	return dispatcher.Result{
		"tenant_id":     tenantID,
		"admin_user_id": adminUserID,
		"api_key":       rawKey,
	}, nil
}

// RagDeleteTenant performs a soft or hard tenant delete depending on
// the requested delete_type.
func (d *Deps) RagDeleteTenant(ctx context.Context, rc reqcontext.RequestContext, args dispatcher.Args) (dispatcher.Result, error) {
	tenantID := str(args, "tenant_id")
	if tenantID == "" {
		return nil, apperrors.Validation("tenant_id", "tenant_id is required")
	}
	confirmation := str(args, "confirmation")
	deleteType := str(args, "delete_type")

	switch deleteType {
	case "soft":
		if confirmation != "SOFT_DELETE" {
			return nil, apperrors.Validation("confirmation", `soft delete requires confirmation="SOFT_DELETE"`)
		}
		if err := d.Relational.SoftDeleteTenant(ctx, tenantID); err != nil {
			return nil, err
		}
		return dispatcher.Result{"tenant_id": tenantID, "status": "soft_deleted"}, nil

	case "hard":
		if confirmation != "DELETE" {
			return nil, apperrors.Validation("confirmation", `hard delete requires confirmation="DELETE"`)
		}
		safetyBackup, err := d.createBackup(ctx, tenantID, "full", "")
		if err != nil {
			return nil, apperrors.Wrap(apperrors.KindInternal, "FR-TENANT-007", err)
		}

		if objects, err := d.Object.ListTenantObjects(ctx, tenantID); err == nil {
			for _, key := range objects {
				if err := d.Object.DeleteObjectByKey(ctx, tenantID, key); err != nil {
					d.Logger.Warn("hard delete tenant: object removal failed", map[string]interface{}{"key": key, "error": err.Error()})
				}
			}
			if err := d.Object.DeleteTenantBucket(ctx, tenantID); err != nil {
				d.Logger.Warn("hard delete tenant: bucket removal failed", map[string]interface{}{"tenant_id": tenantID, "error": err.Error()})
			}
		}
		if err := d.Relational.HardDeleteTenant(ctx, tenantID); err != nil {
			return nil, err
		}
		return dispatcher.Result{
			"tenant_id":          tenantID,
			"status":              "hard_deleted",
			"safety_backup_id":    safetyBackup.BackupID,
			"audit_logs_retained": true,
		}, nil

	default:
		return nil, apperrors.Validation("delete_type", "delete_type must be 'soft' or 'hard'")
	}
}

// RagUpdateSubscriptionTier updates a tenant's tier and propagates the
// associated rate-limit quota into its configuration.
func (d *Deps) RagUpdateSubscriptionTier(ctx context.Context, rc reqcontext.RequestContext, args dispatcher.Args) (dispatcher.Result, error) {
	tenantID := str(args, "tenant_id")
	if tenantID == "" {
		return nil, apperrors.Validation("tenant_id", "tenant_id is required")
	}
	tier := models.SubscriptionTier(str(args, "tier"))
	quota, ok := tierQuotas[tier]
	if !ok {
		return nil, apperrors.Validation("tier", "unknown subscription tier")
	}

	if err := d.Relational.UpdateTenantTier(ctx, tenantID, tier); err != nil {
		return nil, err
	}
	cfg, err := d.Relational.GetTenantConfiguration(ctx, tenantID)
	if err != nil {
		return nil, err
	}
	cfg.RateLimitPerMinute = quota
	if err := d.Relational.UpdateTenantConfiguration(ctx, *cfg); err != nil {
		return nil, err
	}

	return dispatcher.Result{"tenant_id": tenantID, "tier": string(tier), "rate_limit_per_minute": quota}, nil
}

// RagGetSubscriptionTier returns a tenant's current tier.
func (d *Deps) RagGetSubscriptionTier(ctx context.Context, rc reqcontext.RequestContext, args dispatcher.Args) (dispatcher.Result, error) {
	tenantID, err := resolveTenant(rc, args)
	if err != nil {
		return nil, err
	}
	tenant, err := d.Relational.GetTenant(ctx, tenantID)
	if err != nil {
		return nil, err
	}
	return dispatcher.Result{"tenant_id": tenantID, "tier": string(tenant.Tier)}, nil
}

// RagConfigureTenantModels updates a tenant's embedding/LLM model choice.
func (d *Deps) RagConfigureTenantModels(ctx context.Context, rc reqcontext.RequestContext, args dispatcher.Args) (dispatcher.Result, error) {
	tenantID, err := resolveTenant(rc, args)
	if err != nil {
		return nil, err
	}
	cfg, err := d.Relational.GetTenantConfiguration(ctx, tenantID)
	if err != nil {
		return nil, err
	}
	cfg.EmbeddingModel = strOr(args, "embedding_model", cfg.EmbeddingModel)
	cfg.LLMModel = strOr(args, "llm_model", cfg.LLMModel)
	cfg.EmbeddingDimension = intOr(args, "embedding_dimension", cfg.EmbeddingDimension)

	if err := d.Relational.UpdateTenantConfiguration(ctx, *cfg); err != nil {
		return nil, err
	}
	return dispatcher.Result{
		"tenant_id":           tenantID,
		"embedding_model":     cfg.EmbeddingModel,
		"llm_model":           cfg.LLMModel,
		"embedding_dimension": cfg.EmbeddingDimension,
	}, nil
}

// RagUpdateTenantConfig updates rate-limit and compliance flags.
func (d *Deps) RagUpdateTenantConfig(ctx context.Context, rc reqcontext.RequestContext, args dispatcher.Args) (dispatcher.Result, error) {
	tenantID, err := resolveTenant(rc, args)
	if err != nil {
		return nil, err
	}
	cfg, err := d.Relational.GetTenantConfiguration(ctx, tenantID)
	if err != nil {
		return nil, err
	}
	cfg.RateLimitPerMinute = intOr(args, "rate_limit_per_minute", cfg.RateLimitPerMinute)
	cfg.RateLimitEnabled = boolOr(args, "rate_limit_enabled", cfg.RateLimitEnabled)
	cfg.DataIsolation = boolOr(args, "data_isolation", cfg.DataIsolation)
	cfg.AuditLoggingEnabled = boolOr(args, "audit_logging_enabled", cfg.AuditLoggingEnabled)

	if err := d.Relational.UpdateTenantConfiguration(ctx, *cfg); err != nil {
		return nil, err
	}
	return dispatcher.Result{
		"tenant_id":             tenantID,
		"rate_limit_per_minute": cfg.RateLimitPerMinute,
		"rate_limit_enabled":    cfg.RateLimitEnabled,
		"data_isolation":        cfg.DataIsolation,
		"audit_logging_enabled": cfg.AuditLoggingEnabled,
	}, nil
}

// RagListTemplates returns the global template catalog.
func (d *Deps) RagListTemplates(ctx context.Context, rc reqcontext.RequestContext, args dispatcher.Args) (dispatcher.Result, error) {
	templates, err := d.Relational.ListTemplates(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]dispatcher.Result, 0, len(templates))
	for _, t := range templates {
		out = append(out, dispatcher.Result{
			"name":        t.Name,
			"domain_type": string(t.DomainType),
			"description": t.Description,
		})
	}
	return dispatcher.Result{"templates": out}, nil
}

// RagGetTemplate fetches one template by name.
func (d *Deps) RagGetTemplate(ctx context.Context, rc reqcontext.RequestContext, args dispatcher.Args) (dispatcher.Result, error) {
	name := str(args, "name")
	if name == "" {
		return nil, apperrors.Validation("name", "name is required")
	}
	t, err := d.Relational.GetTemplate(ctx, name)
	if err != nil {
		return nil, err
	}
	return dispatcher.Result{
		"name":        t.Name,
		"domain_type": string(t.DomainType),
		"description": t.Description,
	}, nil
}

// RagListTools enumerates the tools visible to the caller's role, using
// the capability descriptions from the ported legacy role module.
func (d *Deps) RagListTools(ctx context.Context, rc reqcontext.RequestContext, args dispatcher.Args) (dispatcher.Result, error) {
	names := auth.ToolNames()
	available := make([]string, 0, len(names))
	for _, name := range names {
		if auth.CanAccessTool(rc.Role, name) {
			available = append(available, name)
		}
	}
	capability := auth.RoleCapabilities(rc.Role)
	return dispatcher.Result{
		"tools":        available,
		"role":         string(rc.Role),
		"description":  capability.Description,
		"capabilities": capability.Capabilities,
		"restrictions": capability.Restrictions,
	}, nil
}
