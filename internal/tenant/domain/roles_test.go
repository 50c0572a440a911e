package domain

import (
	"testing"

	"github.com/bwmarrin/snowflake"
	"github.com/stretchr/testify/assert"

	"github.com/dukahub/dukahub/pkg/principal"
)

func idp(v int64) *snowflake.ID {
	id := snowflake.ID(v)
	return &id
}

func TestDeriveRoleType(t *testing.T) {
	org := Tenant{ID: 1}
	branch := Tenant{ID: 2, ParentID: idp(1)}

	tests := []struct {
		name       string
		membership Membership
		tenant     Tenant
		want       principal.RoleType
	}{
		{
			name:       "staff on org",
			membership: Membership{Role: RoleStaff},
			tenant:     org,
			want:       principal.RoleStaff,
		},
		{
			name:       "staff on branch",
			membership: Membership{Role: RoleStaff, BranchID: idp(2)},
			tenant:     branch,
			want:       principal.RoleStaff,
		},
		{
			name:       "unpinned admin on org is owner",
			membership: Membership{Role: RoleAdmin},
			tenant:     org,
			want:       principal.RoleOwner,
		},
		{
			name:       "pinned admin on org is branch admin",
			membership: Membership{Role: RoleAdmin, BranchID: idp(2)},
			tenant:     org,
			want:       principal.RoleBranchAdmin,
		},
		{
			name:       "pinned admin flagged owner keeps ownership",
			membership: Membership{Role: RoleAdmin, BranchID: idp(2), IsOwner: true},
			tenant:     org,
			want:       principal.RoleOwner,
		},
		{
			name:       "admin on branch is branch admin",
			membership: Membership{Role: RoleAdmin},
			tenant:     branch,
			want:       principal.RoleBranchAdmin,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, DeriveRoleType(tt.membership, tt.tenant))
		})
	}
}

func TestCanSwitch(t *testing.T) {
	const (
		orgID      snowflake.ID = 100
		branchAID  snowflake.ID = 101
		branchBID  snowflake.ID = 102
		foreignOrg snowflake.ID = 200
	)
	branchA := Tenant{ID: branchAID, ParentID: idp(int64(orgID))}
	branchB := Tenant{ID: branchBID, ParentID: idp(int64(orgID))}
	org := Tenant{ID: orgID}

	adminOnOrg := Membership{TenantID: orgID, Role: RoleAdmin, IsActive: true}
	pinnedAdminOnOrg := Membership{TenantID: orgID, Role: RoleAdmin, BranchID: idp(int64(branchAID)), IsActive: true}
	staffPinnedA := Membership{TenantID: orgID, Role: RoleStaff, BranchID: idp(int64(branchAID)), IsActive: true}
	staffUnpinned := Membership{TenantID: orgID, Role: RoleStaff, IsActive: true}
	directOnA := Membership{TenantID: branchAID, Role: RoleStaff, IsActive: true}
	inactiveAdmin := Membership{TenantID: orgID, Role: RoleAdmin, IsActive: false}

	tests := []struct {
		name        string
		memberships []Membership
		from        snowflake.ID
		target      Tenant
		wantErr     error
	}{
		{
			name:        "same tenant is always allowed",
			memberships: nil,
			from:        orgID,
			target:      org,
			wantErr:     nil,
		},
		{
			name:        "direct membership on target",
			memberships: []Membership{directOnA},
			from:        orgID,
			target:      branchA,
			wantErr:     nil,
		},
		{
			name:        "org admin reaches any branch",
			memberships: []Membership{adminOnOrg},
			from:        orgID,
			target:      branchB,
			wantErr:     nil,
		},
		{
			name:        "pinned org admin still reaches another branch",
			memberships: []Membership{pinnedAdminOnOrg},
			from:        orgID,
			target:      branchB,
			wantErr:     nil,
		},
		{
			name:        "staff pinned to the target branch",
			memberships: []Membership{staffPinnedA},
			from:        orgID,
			target:      branchA,
			wantErr:     nil,
		},
		{
			name:        "staff pinned elsewhere is refused",
			memberships: []Membership{staffPinnedA},
			from:        orgID,
			target:      branchB,
			wantErr:     ErrSwitchForbidden,
		},
		{
			name:        "unpinned staff cannot descend into a branch",
			memberships: []Membership{staffUnpinned},
			from:        orgID,
			target:      branchA,
			wantErr:     ErrSwitchForbidden,
		},
		{
			name:        "inactive membership grants nothing",
			memberships: []Membership{inactiveAdmin},
			from:        branchAID,
			target:      branchB,
			wantErr:     ErrSwitchForbidden,
		},
		{
			name:        "no path to a foreign organization",
			memberships: []Membership{adminOnOrg},
			from:        orgID,
			target:      Tenant{ID: foreignOrg},
			wantErr:     ErrSwitchForbidden,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := CanSwitch(tt.memberships, tt.from, tt.target)
			if tt.wantErr == nil {
				assert.NoError(t, err)
			} else {
				assert.ErrorIs(t, err, tt.wantErr)
			}
		})
	}
}
