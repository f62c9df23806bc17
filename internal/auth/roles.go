package auth

import (
	"fmt"
	"strings"

	"github.com/ragforge/rag-mcp/internal/reqcontext"
)

// roleRank orders roles least to most privileged, mirroring the
// hierarchy comment on reqcontext.Role.
var roleRank = map[reqcontext.Role]int{
	reqcontext.RoleEndUser:      0,
	reqcontext.RoleProjectAdmin: 1,
	reqcontext.RoleTenantAdmin:  2,
	reqcontext.RoleUberAdmin:    3,
}

// ParseRole normalizes a role string, including the legacy "user" and
// "viewer" names which both map to end_user.
func ParseRole(roleStr string) (reqcontext.Role, error) {
	lower := strings.ToLower(strings.TrimSpace(roleStr))
	switch lower {
	case "user", "viewer":
		return reqcontext.RoleEndUser, nil
	}
	for r := range roleRank {
		if string(r) == lower {
			return r, nil
		}
	}
	return "", fmt.Errorf("auth: invalid role %q", roleStr)
}

// AtLeast reports whether role meets or exceeds the given minimum in
// the role hierarchy.
func AtLeast(role, minimum reqcontext.Role) bool {
	return roleRank[role] >= roleRank[minimum]
}

// RoleCapability describes what a role can and cannot do, surfaced by
// the rag_list_tools discovery tool.
type RoleCapability struct {
	Description  string
	Capabilities []string
	Restrictions []string
}

var roleCapabilities = map[reqcontext.Role]RoleCapability{
	reqcontext.RoleUberAdmin: {
		Description: "Platform-level access across all tenants",
		Capabilities: []string{
			"register and delete tenants",
			"configure any tenant's models and subscription tier",
			"restore tenant data from backup",
			"view platform-wide system health",
		},
	},
	reqcontext.RoleTenantAdmin: {
		Description: "Tenant-level access within their own tenant",
		Capabilities: []string{
			"ingest and delete documents",
			"configure tenant models",
			"query audit logs and usage analytics",
			"back up and rebuild the tenant's index",
		},
		Restrictions: []string{
			"cannot access another tenant's data",
			"cannot restore from backup (uber_admin only)",
			"cannot delete the tenant itself",
		},
	},
	reqcontext.RoleProjectAdmin: {
		Description: "Project-level access within a tenant",
		Capabilities: []string{
			"ingest and delete documents",
			"search and retrieve documents",
		},
		Restrictions: []string{
			"cannot view audit logs or analytics",
			"cannot configure tenant models",
		},
	},
	reqcontext.RoleEndUser: {
		Description: "User-level read-only access with user-scoped memory",
		Capabilities: []string{
			"search documents",
			"read document contents",
			"manage their own memory records",
		},
		Restrictions: []string{
			"cannot ingest or delete documents",
			"cannot view audit logs, analytics, or backups",
		},
	},
}

// RoleCapabilities returns the descriptive capability set for role.
func RoleCapabilities(role reqcontext.Role) RoleCapability {
	return roleCapabilities[role]
}
