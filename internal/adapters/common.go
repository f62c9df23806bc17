// Package adapters holds the helper shared by the tenant-scoped backend
// adapters (relational, vector, object, keyword). Every adapter method
// takes an explicit tenantID; only the relational GetDocument and the
// object adapter's validateBucket compare it against the tenant of the
// resource they resolve. The vector and keyword adapters do not.
package adapters

import "github.com/ragforge/rag-mcp/internal/apperrors"

// RequireTenant returns a tenant_isolation error if resourceTenantID
// does not match requestTenantID. It is called by the relational
// adapter's GetDocument and by the object adapter's validateBucket; the
// vector and keyword adapters do not call it.
func RequireTenant(requestTenantID, resourceTenantID string) error {
	if requestTenantID == resourceTenantID {
		return nil
	}
	return apperrors.TenantIsolation("resource belongs to a different tenant")
}
