package tools

import (
	"context"
	"strings"

	"github.com/ragforge/rag-mcp/internal/apperrors"
	"github.com/ragforge/rag-mcp/internal/auth"
	"github.com/ragforge/rag-mcp/internal/dispatcher"
	"github.com/ragforge/rag-mcp/internal/models"
	"github.com/ragforge/rag-mcp/internal/reqcontext"
)

// resolveMemoryUser implements the "own user_id only" restriction: a
// caller may always act on their own records; acting on someone else's
// requires at least project_admin.
func resolveMemoryUser(rc reqcontext.RequestContext, args dispatcher.Args) (string, error) {
	requested := str(args, "user_id")
	if requested == "" || requested == rc.UserID {
		return rc.UserID, nil
	}
	if auth.AtLeast(rc.Role, reqcontext.RoleProjectAdmin) {
		return requested, nil
	}
	return "", apperrors.Authorization("cannot access another user's memory records")
}

// Mem0GetUserMemory fetches one memory record by key.
func (d *Deps) Mem0GetUserMemory(ctx context.Context, rc reqcontext.RequestContext, args dispatcher.Args) (dispatcher.Result, error) {
	userID, err := resolveMemoryUser(rc, args)
	if err != nil {
		return nil, err
	}
	key := str(args, "key")
	if key == "" {
		return nil, apperrors.Validation("key", "key is required")
	}

	rec, err := d.Relational.GetUserMemory(ctx, rc.TenantID, userID, key)
	if err != nil {
		return nil, err
	}
	return dispatcher.Result{
		"user_id":    rec.UserID,
		"key":        rec.Key,
		"value":      rec.Value,
		"updated_at": rec.UpdatedAt,
	}, nil
}

// Mem0UpdateMemory creates or replaces one memory record.
func (d *Deps) Mem0UpdateMemory(ctx context.Context, rc reqcontext.RequestContext, args dispatcher.Args) (dispatcher.Result, error) {
	userID, err := resolveMemoryUser(rc, args)
	if err != nil {
		return nil, err
	}
	key := str(args, "key")
	if key == "" {
		return nil, apperrors.Validation("key", "key is required")
	}
	value := stringMap(args, "value")

	rec := models.UserMemoryRecord{
		TenantID:  rc.TenantID,
		UserID:    userID,
		Key:       key,
		Value:     value,
		UpdatedAt: now(),
	}
	if err := d.Relational.UpsertUserMemory(ctx, rec); err != nil {
		return nil, err
	}
	return dispatcher.Result{"user_id": userID, "key": key, "status": "saved"}, nil
}

// Mem0SearchMemory substring-matches a query against each record's key
// and serialized value, the minimal "implemented minimally" scope
// SPEC_FULL.md calls for.
func (d *Deps) Mem0SearchMemory(ctx context.Context, rc reqcontext.RequestContext, args dispatcher.Args) (dispatcher.Result, error) {
	userID, err := resolveMemoryUser(rc, args)
	if err != nil {
		return nil, err
	}
	query := strings.ToLower(str(args, "query"))
	if query == "" {
		return nil, apperrors.Validation("query", "query must not be empty")
	}

	records, err := d.Relational.ListUserMemory(ctx, rc.TenantID, userID)
	if err != nil {
		return nil, err
	}

	matches := make([]dispatcher.Result, 0, len(records))
	for _, rec := range records {
		if strings.Contains(strings.ToLower(rec.Key), query) || valueContains(rec.Value, query) {
			matches = append(matches, dispatcher.Result{
				"key":        rec.Key,
				"value":      rec.Value,
				"updated_at": rec.UpdatedAt,
			})
		}
	}
	return dispatcher.Result{"matches": matches, "count": len(matches)}, nil
}

func valueContains(value map[string]interface{}, query string) bool {
	for k, v := range value {
		if strings.Contains(strings.ToLower(k), query) {
			return true
		}
		if s, ok := v.(string); ok && strings.Contains(strings.ToLower(s), query) {
			return true
		}
	}
	return false
}
