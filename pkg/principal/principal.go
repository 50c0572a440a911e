// Package principal carries the authenticated (user, tenant) pair for one
// request as a plain value, so business functions can be called directly
// from tests.
package principal

import "github.com/bwmarrin/snowflake"

// RoleType is the derived role of a user within one tenant. It is
// computed from the membership and tenant rows on every request, never
// stored.
type RoleType string

const (
	RoleOwner       RoleType = "owner"
	RoleBranchAdmin RoleType = "branch_admin"
	RoleStaff       RoleType = "staff"
)

// Principal is the authenticated identity scoped to one tenant.
type Principal struct {
	UserID   snowflake.ID
	TenantID snowflake.ID
	// OrgID is the root organization of the active tenant. Equal to
	// TenantID when the active tenant is itself an organization.
	OrgID          snowflake.ID
	Role           RoleType
	PinnedBranchID *snowflake.ID
}

// IsOwner reports whether the principal carries the owner role type.
func (p Principal) IsOwner() bool {
	return p.Role == RoleOwner
}

// Pinned returns the pinned branch id, or zero when unpinned.
func (p Principal) Pinned() snowflake.ID {
	if p.PinnedBranchID == nil {
		return 0
	}
	return *p.PinnedBranchID
}

// OperatesOnBranch reports whether the principal's active tenant is a
// branch rather than the organization root.
func (p Principal) OperatesOnBranch() bool {
	return p.TenantID != p.OrgID
}
