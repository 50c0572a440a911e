package domain

import (
	"github.com/bwmarrin/snowflake"

	"github.com/dukahub/dukahub/pkg/principal"
)

// DeriveRoleType computes the effective role type for a membership on
// its tenant. Pure: same rows in, same value out, on every process.
func DeriveRoleType(m Membership, t Tenant) principal.RoleType {
	if m.Role != RoleAdmin {
		return principal.RoleStaff
	}
	if t.IsOrganization() {
		if m.BranchID == nil || m.IsOwner {
			return principal.RoleOwner
		}
		return principal.RoleBranchAdmin
	}
	return principal.RoleBranchAdmin
}

// PinnedBranch returns the branch a membership is pinned to, if any.
// Admins on an organization root are never pinned for authorization
// purposes unless the membership says so.
func PinnedBranch(m Membership) *snowflake.ID {
	return m.BranchID
}

// CanSwitch decides whether a user holding the given memberships may
// switch from tenant `from` to `target`.
//
// The rule: a direct active membership always allows the switch. An
// active membership on the target's parent allows it when the
// membership role is admin (the super-user rule, independent of any
// branch pin), or when the role is staff and the membership is pinned
// to exactly the target branch.
func CanSwitch(memberships []Membership, from snowflake.ID, target Tenant) error {
	if target.ID == from {
		return nil
	}

	for _, m := range memberships {
		if !m.IsActive {
			continue
		}
		if m.TenantID == target.ID {
			return nil
		}
	}

	if target.ParentID != nil {
		for _, m := range memberships {
			if !m.IsActive || m.TenantID != *target.ParentID {
				continue
			}
			if m.Role == RoleAdmin {
				return nil
			}
			if m.BranchID != nil && *m.BranchID == target.ID {
				return nil
			}
		}
	}

	return ErrSwitchForbidden
}
