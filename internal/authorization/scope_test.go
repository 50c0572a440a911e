package authorization

import (
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/stretchr/testify/assert"

	tenantdomain "github.com/dukahub/dukahub/internal/tenant/domain"
	"github.com/dukahub/dukahub/pkg/principal"
)

func pin(v int64) *snowflake.ID {
	id := snowflake.ID(v)
	return &id
}

func TestCheckBranchScope(t *testing.T) {
	const (
		orgID   snowflake.ID = 10
		branchA snowflake.ID = 11
		branchB snowflake.ID = 12
	)

	tests := []struct {
		name      string
		principal principal.Principal
		action    string
		branchID  snowflake.ID
		wantErr   error
	}{
		{
			name:      "zero branch targets the active tenant",
			principal: principal.Principal{TenantID: orgID, OrgID: orgID, Role: principal.RoleStaff},
			action:    ActionSaleCreate,
			branchID:  0,
		},
		{
			name:      "own tenant is in scope",
			principal: principal.Principal{TenantID: branchA, OrgID: orgID, Role: principal.RoleStaff},
			action:    ActionSaleCreate,
			branchID:  branchA,
		},
		{
			name:      "owner reaches any branch",
			principal: principal.Principal{TenantID: orgID, OrgID: orgID, Role: principal.RoleOwner},
			action:    ActionStockEdit,
			branchID:  branchB,
		},
		{
			name:      "own-sales reads are filtered by row not branch",
			principal: principal.Principal{TenantID: orgID, OrgID: orgID, Role: principal.RoleStaff},
			action:    ActionSaleViewOwn,
			branchID:  branchB,
		},
		{
			name:      "pinned member reaches the pinned branch",
			principal: principal.Principal{TenantID: orgID, OrgID: orgID, Role: principal.RoleStaff, PinnedBranchID: pin(int64(branchA))},
			action:    ActionSaleCreate,
			branchID:  branchA,
		},
		{
			name:      "pinned member is refused elsewhere",
			principal: principal.Principal{TenantID: orgID, OrgID: orgID, Role: principal.RoleStaff, PinnedBranchID: pin(int64(branchA))},
			action:    ActionSaleCreate,
			branchID:  branchB,
			wantErr:   ErrForbidden,
		},
		{
			name:      "unpinned branch admin cannot cross branches",
			principal: principal.Principal{TenantID: branchA, OrgID: orgID, Role: principal.RoleBranchAdmin},
			action:    ActionStockEdit,
			branchID:  branchB,
			wantErr:   ErrForbidden,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := CheckBranchScope(tt.principal, tt.action, tt.branchID)
			if tt.wantErr == nil {
				assert.NoError(t, err)
			} else {
				assert.ErrorIs(t, err, tt.wantErr)
			}
		})
	}
}

func TestSubscriptionPermitsMutation(t *testing.T) {
	now := time.Date(2026, time.March, 10, 12, 0, 0, 0, time.UTC)
	future := now.Add(72 * time.Hour)
	past := now.Add(-72 * time.Hour)

	tests := []struct {
		name    string
		status  tenantdomain.SubscriptionStatus
		nbd     *time.Time
		wantErr error
	}{
		{"trial mutates freely", tenantdomain.SubscriptionTrial, nil, nil},
		{"active mutates freely", tenantdomain.SubscriptionActive, &future, nil},
		{"cancelled keeps capability until the paid period lapses", tenantdomain.SubscriptionCancelled, &future, nil},
		{"cancelled past the period is read-only", tenantdomain.SubscriptionCancelled, &past, ErrSubscriptionExpired},
		{"cancelled with no billing date is read-only", tenantdomain.SubscriptionCancelled, nil, ErrSubscriptionExpired},
		{"expired is read-only", tenantdomain.SubscriptionExpired, &future, ErrSubscriptionExpired},
		{"unknown status denies", tenantdomain.SubscriptionStatus("bogus"), nil, ErrSubscriptionExpired},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := SubscriptionPermitsMutation(tt.status, tt.nbd, now)
			if tt.wantErr == nil {
				assert.NoError(t, err)
			} else {
				assert.ErrorIs(t, err, tt.wantErr)
			}
		})
	}
}

func TestIsMutating(t *testing.T) {
	assert.True(t, IsMutating(ActionSaleCreate))
	assert.True(t, IsMutating(ActionStockEdit))
	assert.True(t, IsMutating(ActionCatalogEdit))
	assert.True(t, IsMutating(ActionMemberManage))
	assert.True(t, IsMutating(ActionSettingsEdit))

	assert.False(t, IsMutating(ActionDashboardView))
	assert.False(t, IsMutating(ActionReportsView))
	assert.False(t, IsMutating(ActionSaleViewAll))
	assert.False(t, IsMutating(ActionSaleViewOwn))
	// Subscription management stays open so an expired tenant can pay.
	assert.False(t, IsMutating(ActionSubscriptionManage))
}
