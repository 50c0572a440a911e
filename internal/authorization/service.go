// Package authorization is the per-request gate: it decides whether a
// principal may perform an action in a tenant, optionally targeting a
// specific branch.
package authorization

import (
	"context"
	"errors"

	"github.com/bwmarrin/snowflake"

	"github.com/dukahub/dukahub/pkg/principal"
)

// Objects and actions form a closed set. The action string embeds its
// object ("sale.create") so policies stay greppable.
const (
	ObjectDashboard    = "dashboard"
	ObjectReports      = "reports"
	ObjectSale         = "sale"
	ObjectCatalog      = "catalog"
	ObjectStock        = "stock"
	ObjectMember       = "member"
	ObjectSettings     = "settings"
	ObjectSubscription = "subscription"
)

const (
	ActionDashboardView      = "dashboard.view"
	ActionReportsView        = "reports.view"
	ActionSaleCreate         = "sale.create"
	ActionSaleViewAll        = "sale.view_all"
	ActionSaleViewOwn        = "sale.view_own"
	ActionCatalogEdit        = "catalog.edit"
	ActionStockEdit          = "stock.edit"
	ActionMemberManage       = "member.manage"
	ActionSettingsEdit       = "settings.edit"
	ActionSubscriptionManage = "subscription.manage"
)

var (
	ErrForbidden           = errors.New("forbidden")
	ErrInvalidAction       = errors.New("invalid_action")
	ErrInvalidObject       = errors.New("invalid_object")
	ErrInvalidTenant       = errors.New("invalid_tenant")
	ErrSubscriptionExpired = errors.New("subscription_expired")
)

type Service interface {
	// Authorize decides whether p may perform action on object,
	// targeting branchID (zero targets p's own tenant). It applies
	// the role matrix, the branch-scope restriction, and the
	// subscription cross-cut, in that order.
	Authorize(ctx context.Context, p principal.Principal, object, action string, branchID snowflake.ID) error
	// AuthorizeSystem grants the background scheduler its own
	// capability check within one tenant.
	AuthorizeSystem(ctx context.Context, orgID snowflake.ID, object, action string) error
}

// ObjectForAction maps an action to its object.
func ObjectForAction(action string) (string, bool) {
	switch action {
	case ActionDashboardView:
		return ObjectDashboard, true
	case ActionReportsView:
		return ObjectReports, true
	case ActionSaleCreate, ActionSaleViewAll, ActionSaleViewOwn:
		return ObjectSale, true
	case ActionCatalogEdit:
		return ObjectCatalog, true
	case ActionStockEdit:
		return ObjectStock, true
	case ActionMemberManage:
		return ObjectMember, true
	case ActionSettingsEdit:
		return ObjectSettings, true
	case ActionSubscriptionManage:
		return ObjectSubscription, true
	default:
		return "", false
	}
}

// IsMutating reports whether an action writes state. Mutating actions
// are the ones the subscription cross-cut collapses on expiry.
func IsMutating(action string) bool {
	switch action {
	case ActionSaleCreate, ActionCatalogEdit, ActionStockEdit, ActionMemberManage, ActionSettingsEdit:
		return true
	default:
		return false
	}
}
