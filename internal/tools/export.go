package tools

import (
	"context"

	"github.com/ragforge/rag-mcp/internal/apperrors"
	"github.com/ragforge/rag-mcp/internal/auth"
	"github.com/ragforge/rag-mcp/internal/dispatcher"
	"github.com/ragforge/rag-mcp/internal/reqcontext"
)

// RagExportTenantData dumps a tenant's documents and configuration in a
// portable form, read directly from the relational store; it writes no
// files and does not use the backup component writers.
func (d *Deps) RagExportTenantData(ctx context.Context, rc reqcontext.RequestContext, args dispatcher.Args) (dispatcher.Result, error) {
	tenantID, err := resolveTenant(rc, args)
	if err != nil {
		return nil, err
	}

	docs, err := d.Relational.ListAllDocuments(ctx, tenantID)
	if err != nil {
		return nil, err
	}
	tenant, err := d.Relational.GetTenant(ctx, tenantID)
	if err != nil {
		return nil, err
	}
	cfg, err := d.Relational.GetTenantConfiguration(ctx, tenantID)
	if err != nil {
		return nil, err
	}

	exported := make([]dispatcher.Result, 0, len(docs))
	for _, doc := range docs {
		exported = append(exported, dispatcher.Result{
			"document_id":    doc.DocumentID,
			"title":          doc.Title,
			"version_number": doc.VersionNumber,
			"created_at":     doc.CreatedAt,
			"updated_at":     doc.UpdatedAt,
			"deleted":        doc.Deleted(),
		})
	}

	return dispatcher.Result{
		"tenant_id":     tenantID,
		"tenant":        dispatcher.Result{"display_name": tenant.DisplayName, "tier": string(tenant.Tier)},
		"configuration": dispatcher.Result{"embedding_model": cfg.EmbeddingModel, "llm_model": cfg.LLMModel},
		"documents":     exported,
		"document_count": len(exported),
	}, nil
}

// RagExportUserData implements a GDPR-style data export: a user's own
// memory records, plus (for project_admin and above) any other user's
// on request.
func (d *Deps) RagExportUserData(ctx context.Context, rc reqcontext.RequestContext, args dispatcher.Args) (dispatcher.Result, error) {
	userID, err := resolveMemoryUser(rc, args)
	if err != nil {
		return nil, err
	}
	if userID != rc.UserID && !auth.AtLeast(rc.Role, reqcontext.RoleProjectAdmin) {
		return nil, apperrors.Authorization("cannot export another user's data")
	}

	records, err := d.Relational.ListUserMemory(ctx, rc.TenantID, userID)
	if err != nil {
		return nil, err
	}
	memory := make([]dispatcher.Result, 0, len(records))
	for _, rec := range records {
		memory = append(memory, dispatcher.Result{
			"key":        rec.Key,
			"value":      rec.Value,
			"updated_at": rec.UpdatedAt,
		})
	}

	return dispatcher.Result{
		"user_id":      userID,
		"tenant_id":    rc.TenantID,
		"memory":       memory,
		"memory_count": len(memory),
	}, nil
}
