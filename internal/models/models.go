// Package models holds the tenant-scoped data model shared by the
// relational adapter, the audit logger, the dispatcher, and the tool
// handlers.
package models

import "time"

// SubscriptionTier is a tenant's billing tier.
type SubscriptionTier string

const (
	TierFree       SubscriptionTier = "free"
	TierBasic      SubscriptionTier = "basic"
	TierPremium    SubscriptionTier = "premium"
	TierEnterprise SubscriptionTier = "enterprise"
)

// Tenant is the root of ownership: every tenant-scoped record and every
// tenant-scoped backend resource carries this tenant_id.
type Tenant struct {
	TenantID     string           `db:"tenant_id" json:"tenant_id"`
	DisplayName  string           `db:"display_name" json:"display_name"`
	Domain       *string          `db:"domain" json:"domain,omitempty"`
	Tier         SubscriptionTier `db:"tier" json:"tier"`
	CreatedAt    time.Time        `db:"created_at" json:"created_at"`
	UpdatedAt    time.Time        `db:"updated_at" json:"updated_at"`
	// DeletedAt marks a tenant as soft-deleted without erasing the row,
	// so retention and compliance queries can still find it.
	DeletedAt *time.Time `db:"deleted_at" json:"deleted_at,omitempty"`
}

// SoftDeleted reports whether the tenant has been soft-deleted
// (DeletedAt is set); the retention window is not checked.
func (t Tenant) SoftDeleted() bool { return t.DeletedAt != nil }

// TenantConfiguration is 1:1 with Tenant.
type TenantConfiguration struct {
	TenantID           string         `db:"tenant_id" json:"tenant_id"`
	TemplateName       *string        `db:"template_name" json:"template_name,omitempty"`
	EmbeddingModel     string         `db:"embedding_model" json:"embedding_model"`
	LLMModel           string         `db:"llm_model" json:"llm_model"`
	EmbeddingDimension int            `db:"embedding_dimension" json:"embedding_dimension"`
	ComplianceFlags    map[string]any `db:"-" json:"compliance_flags,omitempty"`
	RateLimitPerMinute int            `db:"rate_limit_per_minute" json:"rate_limit_per_minute"`
	RateLimitEnabled   bool           `db:"rate_limit_enabled" json:"rate_limit_enabled"`
	DataIsolation      bool           `db:"data_isolation" json:"data_isolation"`
	AuditLoggingEnabled bool          `db:"audit_logging_enabled" json:"audit_logging_enabled"`
	Custom             map[string]any `db:"-" json:"custom,omitempty"`
}

// DomainType classifies a Template.
type DomainType string

const (
	DomainFintech         DomainType = "fintech"
	DomainHealthcare      DomainType = "healthcare"
	DomainRetail          DomainType = "retail"
	DomainCustomerService DomainType = "customer_service"
	DomainCustom          DomainType = "custom"
)

// Template is globally unique by name and immutable once created,
// barring administrative correction.
type Template struct {
	Name                 string         `db:"name" json:"name"`
	DomainType           DomainType     `db:"domain_type" json:"domain_type"`
	Description          string         `db:"description" json:"description"`
	ComplianceChecklist  []string       `db:"-" json:"compliance_checklist,omitempty"`
	DefaultConfiguration map[string]any `db:"-" json:"default_configuration,omitempty"`
	CustomizationOptions map[string]any `db:"-" json:"customization_options,omitempty"`
	CreatedAt            time.Time      `db:"created_at" json:"created_at"`
}

// User is a tenant-scoped identity. Role holds the stored role string,
// which may be a legacy alias; internal/auth.ParseRole normalizes it
// when the user authenticates.
type User struct {
	UserID    string `db:"user_id" json:"user_id"`
	TenantID  string `db:"tenant_id" json:"tenant_id"`
	Email     string `db:"email" json:"email"`
	Role      string `db:"role" json:"role"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
}

// Document is tenant- and user-scoped.
type Document struct {
	DocumentID     string         `db:"document_id" json:"document_id"`
	TenantID       string         `db:"tenant_id" json:"tenant_id"`
	OwnerUserID    string         `db:"owner_user_id" json:"owner_user_id"`
	Title          string         `db:"title" json:"title"`
	ContentHash    string         `db:"content_hash" json:"content_hash"`
	Metadata       map[string]any `db:"-" json:"metadata,omitempty"`
	VersionNumber  int            `db:"version_number" json:"version_number"`
	CreatedAt      time.Time      `db:"created_at" json:"created_at"`
	UpdatedAt      time.Time      `db:"updated_at" json:"updated_at"`
	DeletedAt      *time.Time     `db:"deleted_at" json:"deleted_at,omitempty"`
}

// Deleted reports whether the document is a soft-delete tombstone.
func (d Document) Deleted() bool { return d.DeletedAt != nil }

// DocumentVersion is an append-only snapshot.
type DocumentVersion struct {
	VersionID     string         `db:"version_id" json:"version_id"`
	DocumentID    string         `db:"document_id" json:"document_id"`
	TenantID      string         `db:"tenant_id" json:"tenant_id"`
	VersionNumber int            `db:"version_number" json:"version_number"`
	ContentHash   string         `db:"content_hash" json:"content_hash"`
	CreatedBy     string         `db:"created_by" json:"created_by"`
	ChangeSummary string         `db:"change_summary" json:"change_summary"`
	Metadata      map[string]any `db:"-" json:"metadata,omitempty"`
	CreatedAt     time.Time      `db:"created_at" json:"created_at"`
}

// AuditLog is immutable and append-only; retention survives tenant
// deletion per compliance.
type AuditLog struct {
	LogID        string         `db:"log_id" json:"log_id"`
	TenantID     *string        `db:"tenant_id" json:"tenant_id,omitempty"`
	UserID       *string        `db:"user_id" json:"user_id,omitempty"`
	Action       string         `db:"action" json:"action"`
	ResourceType string         `db:"resource_type" json:"resource_type"`
	ResourceID   *string        `db:"resource_id" json:"resource_id,omitempty"`
	Details      map[string]any `db:"-" json:"details,omitempty"`
	Timestamp    time.Time      `db:"timestamp" json:"timestamp"`
}

// TenantAPIKey is a tenant-scoped credential; the plaintext key is never
// stored, only its unsalted SHA-256 hash (auth.HashAPIKey). No per-key
// salt is kept.
type TenantAPIKey struct {
	KeyID     string     `db:"key_id" json:"key_id"`
	TenantID  string     `db:"tenant_id" json:"tenant_id"`
	Name      string     `db:"name" json:"name"`
	KeyHash   string     `db:"key_hash" json:"-"`
	KeyPrefix string     `db:"key_prefix" json:"key_prefix"`
	ExpiresAt *time.Time `db:"expires_at" json:"expires_at,omitempty"`
	CreatedAt time.Time  `db:"created_at" json:"created_at"`
}

// UserMemoryRecord backs the mem0_* tools: a per-user, per-tenant
// key/value document.
type UserMemoryRecord struct {
	TenantID  string         `db:"tenant_id" json:"tenant_id"`
	UserID    string         `db:"user_id" json:"user_id"`
	Key       string         `db:"key" json:"key"`
	Value     map[string]any `db:"-" json:"value"`
	UpdatedAt time.Time      `db:"updated_at" json:"updated_at"`
}
