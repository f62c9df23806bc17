// Package relational implements the tenant-scoped relational adapter
// over Postgres, grounded on the teacher's sqlx/lib/pq repository
// style. Every read and write runs inside a
// transaction that first sets the RLS session variables Postgres row
// security policies key off of, so tenant isolation is enforced by the
// database itself, not only by application code.
package relational

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/ragforge/rag-mcp/internal/adapters"
	"github.com/ragforge/rag-mcp/internal/apperrors"
	"github.com/ragforge/rag-mcp/internal/models"
	"github.com/ragforge/rag-mcp/internal/reqcontext"
)

func jsonMarshal(v interface{}) ([]byte, error)      { return json.Marshal(v) }
func jsonUnmarshal(data []byte, v interface{}) error { return json.Unmarshal(data, v) }

// Store is the tenant-scoped relational adapter.
type Store struct {
	db *sqlx.DB
}

// New wraps an already-connected sqlx.DB.
func New(db *sqlx.DB) *Store {
	return &Store{db: db}
}

// Connect opens a new Postgres connection pool from dsn.
func Connect(dsn string, maxOpen, maxIdle int, connMaxLifetime time.Duration) (*sqlx.DB, error) {
	db, err := sqlx.Connect("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("relational: connect: %w", err)
	}
	db.SetMaxOpenConns(maxOpen)
	db.SetMaxIdleConns(maxIdle)
	db.SetConnMaxLifetime(connMaxLifetime)
	return db, nil
}

// withTenantSession runs fn inside a transaction that has first set
// the RLS session variables for tenantID and role, so every adapter
// call carries tenant context into the database layer, not only the
// application layer.
func (s *Store) withTenantSession(ctx context.Context, tenantID string, role reqcontext.Role, fn func(tx *sqlx.Tx) error) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return apperrors.Wrap(apperrors.KindTransient, "FR-DB-001", fmt.Errorf("relational: begin tx: %w", err))
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `SELECT set_config('app.current_tenant_id', $1, true)`, tenantID); err != nil {
		return apperrors.Wrap(apperrors.KindTransient, "FR-DB-002", fmt.Errorf("relational: set tenant session var: %w", err))
	}
	if _, err := tx.ExecContext(ctx, `SELECT set_config('app.current_role', $1, true)`, string(role)); err != nil {
		return apperrors.Wrap(apperrors.KindTransient, "FR-DB-002", fmt.Errorf("relational: set role session var: %w", err))
	}

	if err := fn(tx); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return apperrors.Wrap(apperrors.KindTransient, "FR-DB-003", fmt.Errorf("relational: commit: %w", err))
	}
	return nil
}

// GetDocument fetches a document by ID, scoped to tenantID both via the
// RLS session variable and an explicit WHERE clause, and verifies the
// result via adapters.RequireTenant as defense in depth.
func (s *Store) GetDocument(ctx context.Context, rc reqcontext.RequestContext, documentID string) (*models.Document, error) {
	var doc models.Document
	err := s.withTenantSession(ctx, rc.TenantID, rc.Role, func(tx *sqlx.Tx) error {
		const query = `
			SELECT document_id, tenant_id, owner_user_id, title, content_hash,
			       version_number, created_at, updated_at, deleted_at
			FROM documents
			WHERE document_id = $1 AND tenant_id = $2 AND deleted_at IS NULL
		`
		return tx.GetContext(ctx, &doc, query, documentID, rc.TenantID)
	})
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperrors.NotFound("document not found")
		}
		if _, ok := apperrors.As(err); ok {
			return nil, err
		}
		return nil, apperrors.Wrap(apperrors.KindTransient, "FR-DB-004", err)
	}
	if err := adapters.RequireTenant(rc.TenantID, doc.TenantID); err != nil {
		return nil, err
	}
	return &doc, nil
}

// ListDocuments returns up to limit documents for the tenant, ordered
// newest first.
func (s *Store) ListDocuments(ctx context.Context, rc reqcontext.RequestContext, limit, offset int) ([]models.Document, error) {
	var docs []models.Document
	err := s.withTenantSession(ctx, rc.TenantID, rc.Role, func(tx *sqlx.Tx) error {
		const query = `
			SELECT document_id, tenant_id, owner_user_id, title, content_hash,
			       version_number, created_at, updated_at, deleted_at
			FROM documents
			WHERE tenant_id = $1 AND deleted_at IS NULL
			ORDER BY created_at DESC
			LIMIT $2 OFFSET $3
		`
		return tx.SelectContext(ctx, &docs, query, rc.TenantID, limit, offset)
	})
	if err != nil {
		return nil, apperrors.Wrap(apperrors.KindTransient, "FR-DB-005", err)
	}
	return docs, nil
}

// InsertDocument creates a document and its first version row
// transactionally.
func (s *Store) InsertDocument(ctx context.Context, rc reqcontext.RequestContext, doc models.Document, version models.DocumentVersion) error {
	return s.withTenantSession(ctx, rc.TenantID, rc.Role, func(tx *sqlx.Tx) error {
		const insertDoc = `
			INSERT INTO documents (document_id, tenant_id, owner_user_id, title, content_hash, version_number, created_at, updated_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $7)
		`
		if _, err := tx.ExecContext(ctx, insertDoc, doc.DocumentID, doc.TenantID, doc.OwnerUserID, doc.Title, doc.ContentHash, doc.VersionNumber, doc.CreatedAt); err != nil {
			return apperrors.Wrap(apperrors.KindTransient, "FR-DB-006", fmt.Errorf("relational: insert document: %w", err))
		}

		const insertVersion = `
			INSERT INTO document_versions (version_id, document_id, tenant_id, version_number, content_hash, created_by, change_summary, created_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		`
		if _, err := tx.ExecContext(ctx, insertVersion, version.VersionID, version.DocumentID, version.TenantID, version.VersionNumber, version.ContentHash, version.CreatedBy, version.ChangeSummary, version.CreatedAt); err != nil {
			return apperrors.Wrap(apperrors.KindTransient, "FR-DB-006", fmt.Errorf("relational: insert document version: %w", err))
		}
		return nil
	})
}

// SoftDeleteDocument marks a document as deleted without removing its
// row, the default delete behavior for every tenant-scoped resource.
func (s *Store) SoftDeleteDocument(ctx context.Context, rc reqcontext.RequestContext, documentID string) error {
	return s.withTenantSession(ctx, rc.TenantID, rc.Role, func(tx *sqlx.Tx) error {
		const query = `UPDATE documents SET deleted_at = $1 WHERE document_id = $2 AND tenant_id = $3 AND deleted_at IS NULL`
		res, err := tx.ExecContext(ctx, query, time.Now(), documentID, rc.TenantID)
		if err != nil {
			return apperrors.Wrap(apperrors.KindTransient, "FR-DB-007", fmt.Errorf("relational: soft delete document: %w", err))
		}
		n, _ := res.RowsAffected()
		if n == 0 {
			return apperrors.NotFound("document not found")
		}
		return nil
	})
}

// HardDeleteDocument permanently removes a document row and its
// versions, gated by the caller having already validated the
// confirmation literal required of destructive operations.
func (s *Store) HardDeleteDocument(ctx context.Context, rc reqcontext.RequestContext, documentID string) error {
	return s.withTenantSession(ctx, rc.TenantID, rc.Role, func(tx *sqlx.Tx) error {
		if _, err := tx.ExecContext(ctx, `DELETE FROM document_versions WHERE document_id = $1 AND tenant_id = $2`, documentID, rc.TenantID); err != nil {
			return apperrors.Wrap(apperrors.KindTransient, "FR-DB-008", fmt.Errorf("relational: delete versions: %w", err))
		}
		res, err := tx.ExecContext(ctx, `DELETE FROM documents WHERE document_id = $1 AND tenant_id = $2`, documentID, rc.TenantID)
		if err != nil {
			return apperrors.Wrap(apperrors.KindTransient, "FR-DB-008", fmt.Errorf("relational: delete document: %w", err))
		}
		n, _ := res.RowsAffected()
		if n == 0 {
			return apperrors.NotFound("document not found")
		}
		return nil
	})
}

// GetTenant fetches a tenant by ID. This is the one read path that
// uber_admin callers may use cross-tenant, so it does not run inside
// withTenantSession's RLS scoping and instead is guarded purely by the
// authorization stage having already verified the caller's role.
func (s *Store) GetTenant(ctx context.Context, tenantID string) (*models.Tenant, error) {
	var t models.Tenant
	const query = `SELECT tenant_id, display_name, domain, tier, created_at, updated_at, deleted_at FROM tenants WHERE tenant_id = $1`
	if err := s.db.GetContext(ctx, &t, query, tenantID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperrors.NotFound("tenant not found")
		}
		return nil, apperrors.Wrap(apperrors.KindTransient, "FR-DB-009", err)
	}
	return &t, nil
}

// InsertTenant creates a new tenant and its configuration row.
func (s *Store) InsertTenant(ctx context.Context, t models.Tenant, cfg models.TenantConfiguration) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return apperrors.Wrap(apperrors.KindTransient, "FR-DB-001", err)
	}
	defer func() { _ = tx.Rollback() }()

	const insertTenant = `
		INSERT INTO tenants (tenant_id, display_name, domain, tier, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $5)
	`
	if _, err := tx.ExecContext(ctx, insertTenant, t.TenantID, t.DisplayName, t.Domain, t.Tier, t.CreatedAt); err != nil {
		if isUniqueViolation(err) {
			return apperrors.New(apperrors.KindConflict, "FR-TENANT-002", "tenant already exists")
		}
		return apperrors.Wrap(apperrors.KindTransient, "FR-DB-010", fmt.Errorf("relational: insert tenant: %w", err))
	}

	const insertConfig = `
		INSERT INTO tenant_configurations (tenant_id, template_name, embedding_model, llm_model, embedding_dimension, rate_limit_per_minute, rate_limit_enabled, data_isolation, audit_logging_enabled)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`
	if _, err := tx.ExecContext(ctx, insertConfig, cfg.TenantID, cfg.TemplateName, cfg.EmbeddingModel, cfg.LLMModel, cfg.EmbeddingDimension, cfg.RateLimitPerMinute, cfg.RateLimitEnabled, cfg.DataIsolation, cfg.AuditLoggingEnabled); err != nil {
		return apperrors.Wrap(apperrors.KindTransient, "FR-DB-010", fmt.Errorf("relational: insert tenant config: %w", err))
	}

	if err := tx.Commit(); err != nil {
		return apperrors.Wrap(apperrors.KindTransient, "FR-DB-003", err)
	}
	return nil
}

// SoftDeleteTenant marks a tenant deleted, retaining its row (and audit
// trail) for the compliance retention window.
func (s *Store) SoftDeleteTenant(ctx context.Context, tenantID string) error {
	const query = `UPDATE tenants SET deleted_at = $1 WHERE tenant_id = $2 AND deleted_at IS NULL`
	res, err := s.db.ExecContext(ctx, query, time.Now(), tenantID)
	if err != nil {
		return apperrors.Wrap(apperrors.KindTransient, "FR-DB-011", err)
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return apperrors.NotFound("tenant not found")
	}
	return nil
}

// GetTenantConfiguration fetches a tenant's model/rate-limit settings.
func (s *Store) GetTenantConfiguration(ctx context.Context, tenantID string) (*models.TenantConfiguration, error) {
	var cfg models.TenantConfiguration
	const query = `
		SELECT tenant_id, template_name, embedding_model, llm_model, embedding_dimension,
		       rate_limit_per_minute, rate_limit_enabled, data_isolation, audit_logging_enabled
		FROM tenant_configurations WHERE tenant_id = $1
	`
	if err := s.db.GetContext(ctx, &cfg, query, tenantID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperrors.NotFound("tenant configuration not found")
		}
		return nil, apperrors.Wrap(apperrors.KindTransient, "FR-DB-012", err)
	}
	return &cfg, nil
}

// ListTemplates returns the global template catalog; Template rows are
// globally unique, not tenant-scoped.
func (s *Store) ListTemplates(ctx context.Context) ([]models.Template, error) {
	var templates []models.Template
	const query = `SELECT name, domain_type, description, created_at FROM templates ORDER BY name`
	if err := s.db.SelectContext(ctx, &templates, query); err != nil {
		return nil, apperrors.Wrap(apperrors.KindTransient, "FR-DB-013", err)
	}
	return templates, nil
}

// GetTemplate fetches one template by name.
func (s *Store) GetTemplate(ctx context.Context, name string) (*models.Template, error) {
	var t models.Template
	const query = `SELECT name, domain_type, description, created_at FROM templates WHERE name = $1`
	if err := s.db.GetContext(ctx, &t, query, name); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperrors.NotFound("template not found")
		}
		return nil, apperrors.Wrap(apperrors.KindTransient, "FR-DB-014", err)
	}
	return &t, nil
}

// InsertAuditLog persists a single audit entry, implementing
// audit.Store for the fire-and-forget audit logger.
func (s *Store) InsertAuditLog(ctx context.Context, entry models.AuditLog) error {
	const query = `
		INSERT INTO audit_logs (log_id, tenant_id, user_id, action, resource_type, resource_id, timestamp)
		VALUES (gen_random_uuid(), $1, $2, $3, $4, $5, $6)
	`
	if _, err := s.db.ExecContext(ctx, query, entry.TenantID, entry.UserID, entry.Action, entry.ResourceType, entry.ResourceID, entry.Timestamp); err != nil {
		return fmt.Errorf("relational: insert audit log: %w", err)
	}
	return nil
}

// QueryAuditLogs returns audit entries for a tenant within [from, to],
// used by rag_query_audit_logs.
func (s *Store) QueryAuditLogs(ctx context.Context, tenantID string, from, to time.Time, limit int) ([]models.AuditLog, error) {
	var logs []models.AuditLog
	const query = `
		SELECT log_id, tenant_id, user_id, action, resource_type, resource_id, timestamp
		FROM audit_logs
		WHERE tenant_id = $1 AND timestamp BETWEEN $2 AND $3
		ORDER BY timestamp DESC
		LIMIT $4
	`
	if err := s.db.SelectContext(ctx, &logs, query, tenantID, from, to, limit); err != nil {
		return nil, apperrors.Wrap(apperrors.KindTransient, "FR-DB-015", err)
	}
	return logs, nil
}

// HealthCheck verifies database connectivity for the health tools.
func (s *Store) HealthCheck(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	if err := s.db.PingContext(ctx); err != nil {
		return apperrors.Wrap(apperrors.KindTransient, "FR-DB-016", err)
	}
	return nil
}

// GetDocumentByHash implements the dedup lookup required before every
// ingest: (tenant_id, content_hash) is unique for non-deleted documents.
func (s *Store) GetDocumentByHash(ctx context.Context, tenantID, contentHash string) (*models.Document, error) {
	var doc models.Document
	const query = `
		SELECT document_id, tenant_id, owner_user_id, title, content_hash,
		       version_number, created_at, updated_at, deleted_at
		FROM documents
		WHERE tenant_id = $1 AND content_hash = $2 AND deleted_at IS NULL
	`
	if err := s.db.GetContext(ctx, &doc, query, tenantID, contentHash); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperrors.NotFound("document not found")
		}
		return nil, apperrors.Wrap(apperrors.KindTransient, "FR-DB-017", err)
	}
	return &doc, nil
}

// GetDocumentIncludingDeleted fetches a document regardless of its
// soft-delete tombstone, used by rag_delete_document's idempotency
// check: deleting an already soft-deleted document yields
// already_deleted and is a no-op.
func (s *Store) GetDocumentIncludingDeleted(ctx context.Context, tenantID, documentID string) (*models.Document, error) {
	var doc models.Document
	const query = `
		SELECT document_id, tenant_id, owner_user_id, title, content_hash,
		       version_number, created_at, updated_at, deleted_at
		FROM documents
		WHERE document_id = $1 AND tenant_id = $2
	`
	if err := s.db.GetContext(ctx, &doc, query, documentID, tenantID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperrors.NotFound("document not found")
		}
		return nil, apperrors.Wrap(apperrors.KindTransient, "FR-DB-018", err)
	}
	return &doc, nil
}

// ReingestDocument snapshots the document's current state into
// DocumentVersion and bumps its row to the new hash/version/title, for
// re-ingesting new content under the same document_id.
func (s *Store) ReingestDocument(ctx context.Context, rc reqcontext.RequestContext, doc models.Document, snapshot models.DocumentVersion) error {
	return s.withTenantSession(ctx, rc.TenantID, rc.Role, func(tx *sqlx.Tx) error {
		const insertVersion = `
			INSERT INTO document_versions (version_id, document_id, tenant_id, version_number, content_hash, created_by, change_summary, created_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		`
		if _, err := tx.ExecContext(ctx, insertVersion, snapshot.VersionID, snapshot.DocumentID, snapshot.TenantID, snapshot.VersionNumber, snapshot.ContentHash, snapshot.CreatedBy, snapshot.ChangeSummary, snapshot.CreatedAt); err != nil {
			return apperrors.Wrap(apperrors.KindTransient, "FR-DB-019", fmt.Errorf("relational: snapshot document version: %w", err))
		}

		const updateDoc = `
			UPDATE documents
			SET title = $1, content_hash = $2, version_number = $3, updated_at = $4
			WHERE document_id = $5 AND tenant_id = $6
		`
		if _, err := tx.ExecContext(ctx, updateDoc, doc.Title, doc.ContentHash, doc.VersionNumber, doc.UpdatedAt, doc.DocumentID, doc.TenantID); err != nil {
			return apperrors.Wrap(apperrors.KindTransient, "FR-DB-019", fmt.Errorf("relational: update document: %w", err))
		}
		return nil
	})
}

// ListAllDocuments enumerates every non-deleted document for tenantID,
// unpaginated, used by vector ID resolution, backup, and index rebuild.
func (s *Store) ListAllDocuments(ctx context.Context, tenantID string) ([]models.Document, error) {
	var docs []models.Document
	const query = `
		SELECT document_id, tenant_id, owner_user_id, title, content_hash,
		       version_number, created_at, updated_at, deleted_at
		FROM documents
		WHERE tenant_id = $1 AND deleted_at IS NULL
		ORDER BY document_id
	`
	if err := s.db.SelectContext(ctx, &docs, query, tenantID); err != nil {
		return nil, apperrors.Wrap(apperrors.KindTransient, "FR-DB-020", err)
	}
	return docs, nil
}

// CountDocuments returns the number of non-deleted documents for
// tenantID, used by rag_get_usage_stats.
func (s *Store) CountDocuments(ctx context.Context, tenantID string) (int, error) {
	var n int
	const query = `SELECT count(*) FROM documents WHERE tenant_id = $1 AND deleted_at IS NULL`
	if err := s.db.GetContext(ctx, &n, query, tenantID); err != nil {
		return 0, apperrors.Wrap(apperrors.KindTransient, "FR-DB-021", err)
	}
	return n, nil
}

// UpdateTenantConfiguration persists changes to a tenant's model,
// rate-limit, or compliance configuration (rag_update_subscription_tier,
// rag_configure_tenant_models, rag_update_tenant_config).
func (s *Store) UpdateTenantConfiguration(ctx context.Context, cfg models.TenantConfiguration) error {
	const query = `
		UPDATE tenant_configurations
		SET embedding_model = $1, llm_model = $2, embedding_dimension = $3,
		    rate_limit_per_minute = $4, rate_limit_enabled = $5,
		    data_isolation = $6, audit_logging_enabled = $7
		WHERE tenant_id = $8
	`
	res, err := s.db.ExecContext(ctx, query, cfg.EmbeddingModel, cfg.LLMModel, cfg.EmbeddingDimension,
		cfg.RateLimitPerMinute, cfg.RateLimitEnabled, cfg.DataIsolation, cfg.AuditLoggingEnabled, cfg.TenantID)
	if err != nil {
		return apperrors.Wrap(apperrors.KindTransient, "FR-DB-022", err)
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return apperrors.NotFound("tenant configuration not found")
	}
	return nil
}

// UpdateTenantTier persists a tenant's subscription tier change.
func (s *Store) UpdateTenantTier(ctx context.Context, tenantID string, tier models.SubscriptionTier) error {
	const query = `UPDATE tenants SET tier = $1, updated_at = $2 WHERE tenant_id = $3`
	res, err := s.db.ExecContext(ctx, query, tier, time.Now(), tenantID)
	if err != nil {
		return apperrors.Wrap(apperrors.KindTransient, "FR-DB-023", err)
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return apperrors.NotFound("tenant not found")
	}
	return nil
}

// HardDeleteTenant removes every tenant-scoped relational row. Audit
// logs are explicitly excluded: their retention must survive tenant
// deletion for compliance.
func (s *Store) HardDeleteTenant(ctx context.Context, tenantID string) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return apperrors.Wrap(apperrors.KindTransient, "FR-DB-001", err)
	}
	defer func() { _ = tx.Rollback() }()

	stmts := []string{
		`DELETE FROM document_versions WHERE tenant_id = $1`,
		`DELETE FROM documents WHERE tenant_id = $1`,
		`DELETE FROM user_memory WHERE tenant_id = $1`,
		`DELETE FROM users WHERE tenant_id = $1`,
		`DELETE FROM tenant_api_keys WHERE tenant_id = $1`,
		`DELETE FROM tenant_configurations WHERE tenant_id = $1`,
		`DELETE FROM tenants WHERE tenant_id = $1`,
	}
	for _, stmt := range stmts {
		if _, err := tx.ExecContext(ctx, stmt, tenantID); err != nil {
			return apperrors.Wrap(apperrors.KindTransient, "FR-DB-024", fmt.Errorf("relational: hard delete tenant: %w", err))
		}
	}
	return tx.Commit()
}

// InsertUser creates a tenant-scoped user, used by rag_register_tenant
// to provision the tenant's first admin.
func (s *Store) InsertUser(ctx context.Context, u models.User) error {
	const query = `
		INSERT INTO users (user_id, tenant_id, email, role, created_at)
		VALUES ($1, $2, $3, $4, $5)
	`
	if _, err := s.db.ExecContext(ctx, query, u.UserID, u.TenantID, u.Email, u.Role, u.CreatedAt); err != nil {
		if isUniqueViolation(err) {
			return apperrors.New(apperrors.KindConflict, "FR-USER-001", "email already registered")
		}
		return apperrors.Wrap(apperrors.KindTransient, "FR-DB-025", fmt.Errorf("relational: insert user: %w", err))
	}
	return nil
}

// InsertTenantAPIKey persists a salted API key hash for tenantID.
func (s *Store) InsertTenantAPIKey(ctx context.Context, key models.TenantAPIKey) error {
	const query = `
		INSERT INTO tenant_api_keys (key_id, tenant_id, name, key_hash, key_prefix, expires_at, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`
	if _, err := s.db.ExecContext(ctx, query, key.KeyID, key.TenantID, key.Name, key.KeyHash, key.KeyPrefix, key.ExpiresAt, key.CreatedAt); err != nil {
		return apperrors.Wrap(apperrors.KindTransient, "FR-DB-026", fmt.Errorf("relational: insert tenant api key: %w", err))
	}
	return nil
}

// GetUserMemory fetches one user's memory record by key, scoped to
// (tenant_id, user_id) per the mem0_* contracts in SPEC_FULL.md.
func (s *Store) GetUserMemory(ctx context.Context, tenantID, userID, key string) (*models.UserMemoryRecord, error) {
	var row struct {
		TenantID  string    `db:"tenant_id"`
		UserID    string    `db:"user_id"`
		Key       string    `db:"key"`
		Value     []byte    `db:"value"`
		UpdatedAt time.Time `db:"updated_at"`
	}
	const query = `SELECT tenant_id, user_id, key, value, updated_at FROM user_memory WHERE tenant_id = $1 AND user_id = $2 AND key = $3`
	if err := s.db.GetContext(ctx, &row, query, tenantID, userID, key); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperrors.NotFound("memory record not found")
		}
		return nil, apperrors.Wrap(apperrors.KindTransient, "FR-DB-027", err)
	}
	rec := &models.UserMemoryRecord{TenantID: row.TenantID, UserID: row.UserID, Key: row.Key, UpdatedAt: row.UpdatedAt}
	if err := jsonUnmarshal(row.Value, &rec.Value); err != nil {
		return nil, apperrors.Wrap(apperrors.KindInternal, "FR-DB-028", err)
	}
	return rec, nil
}

// ListUserMemory returns every memory record for (tenantID, userID),
// used by mem0_search_memory's in-application substring filter.
func (s *Store) ListUserMemory(ctx context.Context, tenantID, userID string) ([]models.UserMemoryRecord, error) {
	var rows []struct {
		TenantID  string    `db:"tenant_id"`
		UserID    string    `db:"user_id"`
		Key       string    `db:"key"`
		Value     []byte    `db:"value"`
		UpdatedAt time.Time `db:"updated_at"`
	}
	const query = `SELECT tenant_id, user_id, key, value, updated_at FROM user_memory WHERE tenant_id = $1 AND user_id = $2 ORDER BY updated_at DESC`
	if err := s.db.SelectContext(ctx, &rows, query, tenantID, userID); err != nil {
		return nil, apperrors.Wrap(apperrors.KindTransient, "FR-DB-029", err)
	}
	records := make([]models.UserMemoryRecord, 0, len(rows))
	for _, row := range rows {
		rec := models.UserMemoryRecord{TenantID: row.TenantID, UserID: row.UserID, Key: row.Key, UpdatedAt: row.UpdatedAt}
		if err := jsonUnmarshal(row.Value, &rec.Value); err != nil {
			continue
		}
		records = append(records, rec)
	}
	return records, nil
}

// UpsertUserMemory creates or replaces one memory record.
func (s *Store) UpsertUserMemory(ctx context.Context, rec models.UserMemoryRecord) error {
	data, err := jsonMarshal(rec.Value)
	if err != nil {
		return apperrors.Wrap(apperrors.KindInternal, "FR-DB-030", err)
	}
	const query = `
		INSERT INTO user_memory (tenant_id, user_id, key, value, updated_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (tenant_id, user_id, key) DO UPDATE SET value = EXCLUDED.value, updated_at = EXCLUDED.updated_at
	`
	if _, err := s.db.ExecContext(ctx, query, rec.TenantID, rec.UserID, rec.Key, data, rec.UpdatedAt); err != nil {
		return apperrors.Wrap(apperrors.KindTransient, "FR-DB-031", fmt.Errorf("relational: upsert user memory: %w", err))
	}
	return nil
}

func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return pqErr.Code == "23505"
	}
	return false
}
