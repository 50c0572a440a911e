package authorization

import (
	"context"
	_ "embed"
	"fmt"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/casbin/casbin/v2"
	"github.com/casbin/casbin/v2/model"
	gormadapter "github.com/casbin/gorm-adapter/v3"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/dukahub/dukahub/internal/clock"
	tenantdomain "github.com/dukahub/dukahub/internal/tenant/domain"
	"github.com/dukahub/dukahub/pkg/principal"
)

//go:embed model.conf
var modelText string

type Params struct {
	fx.In

	DB       *gorm.DB
	Log      *zap.Logger
	Enforcer *casbin.SyncedEnforcer
	Clock    clock.Clock
}

type ServiceImpl struct {
	db       *gorm.DB
	log      *zap.Logger
	enforcer *casbin.SyncedEnforcer
	clk      clock.Clock
}

func NewEnforcer(db *gorm.DB) (*casbin.SyncedEnforcer, error) {
	adapter, err := gormadapter.NewAdapterByDB(db)
	if err != nil {
		return nil, err
	}
	m, err := model.NewModelFromString(modelText)
	if err != nil {
		return nil, err
	}
	enforcer, err := casbin.NewSyncedEnforcer(m, adapter)
	if err != nil {
		return nil, err
	}
	enforcer.EnableAutoSave(true)
	enforcer.EnableAutoBuildRoleLinks(true)
	if err := enforcer.LoadPolicy(); err != nil {
		return nil, err
	}
	if err := seedPolicies(enforcer); err != nil {
		return nil, err
	}
	enforcer.BuildRoleLinks()
	return enforcer, nil
}

func NewService(p Params) Service {
	return &ServiceImpl{
		db:       p.DB,
		log:      p.Log.Named("authorization.service"),
		enforcer: p.Enforcer,
		clk:      p.Clock,
	}
}

func (s *ServiceImpl) Authorize(ctx context.Context, p principal.Principal, object, action string, branchID snowflake.ID) error {
	object = strings.TrimSpace(object)
	if object == "" {
		return ErrInvalidObject
	}
	action = strings.TrimSpace(action)
	if _, ok := ObjectForAction(action); !ok {
		return ErrInvalidAction
	}
	if p.UserID == 0 || p.TenantID == 0 || p.OrgID == 0 {
		return ErrInvalidTenant
	}

	subject := fmt.Sprintf("user:%s", p.UserID)
	domain := fmt.Sprintf("tenant:%s", p.OrgID)
	roleName := fmt.Sprintf("role:%s", string(p.Role))
	if err := s.ensureGrouping(subject, roleName, domain); err != nil {
		return err
	}

	allowed, err := s.enforcer.Enforce(subject, domain, object, action)
	if err != nil {
		return err
	}
	if !allowed {
		s.logDenied(p, object, action, "matrix")
		return ErrForbidden
	}

	if err := CheckBranchScope(p, action, branchID); err != nil {
		s.logDenied(p, object, action, "branch_scope")
		return err
	}

	if IsMutating(action) {
		if err := s.checkSubscription(ctx, p.OrgID); err != nil {
			return err
		}
	}
	return nil
}

func (s *ServiceImpl) AuthorizeSystem(ctx context.Context, orgID snowflake.ID, object, action string) error {
	if orgID == 0 {
		return ErrInvalidTenant
	}
	domain := fmt.Sprintf("tenant:%s", orgID)
	if err := s.ensureGrouping("system", "role:system", domain); err != nil {
		return err
	}
	allowed, err := s.enforcer.Enforce("system", domain, object, action)
	if err != nil {
		return err
	}
	if !allowed {
		return ErrForbidden
	}
	return nil
}

// CheckBranchScope applies the branch restriction of the permission
// matrix. Owners reach every branch of their organization; everyone
// else only the branch they operate on or are pinned to. Pure.
func CheckBranchScope(p principal.Principal, action string, branchID snowflake.ID) error {
	if branchID == 0 || branchID == p.TenantID {
		return nil
	}
	if p.Role == principal.RoleOwner {
		return nil
	}
	// Per-user reads are not branch-crossing: the row filter on the
	// query restricts them already.
	if action == ActionSaleViewOwn {
		return nil
	}
	if pinned := p.Pinned(); pinned != 0 && pinned == branchID {
		return nil
	}
	return ErrForbidden
}

// SubscriptionPermitsMutation is the subscription cross-cut: trial and
// active tenants mutate freely, cancelled tenants retain capability
// until the paid period lapses, expired tenants are read-only. Pure.
func SubscriptionPermitsMutation(status tenantdomain.SubscriptionStatus, nextBillingDate *time.Time, now time.Time) error {
	switch status {
	case tenantdomain.SubscriptionTrial, tenantdomain.SubscriptionActive:
		return nil
	case tenantdomain.SubscriptionCancelled:
		if nextBillingDate != nil && now.Before(*nextBillingDate) {
			return nil
		}
		return ErrSubscriptionExpired
	case tenantdomain.SubscriptionExpired:
		return ErrSubscriptionExpired
	default:
		return ErrSubscriptionExpired
	}
}

func (s *ServiceImpl) checkSubscription(ctx context.Context, orgID snowflake.ID) error {
	var row struct {
		SubscriptionStatus string     `gorm:"column:subscription_status"`
		NextBillingDate    *time.Time `gorm:"column:next_billing_date"`
	}
	if err := s.db.WithContext(ctx).Raw(
		`SELECT subscription_status, next_billing_date
		 FROM tenants
		 WHERE id = ?
		 LIMIT 1`,
		orgID,
	).Scan(&row).Error; err != nil {
		return err
	}
	if strings.TrimSpace(row.SubscriptionStatus) == "" {
		return ErrInvalidTenant
	}
	return SubscriptionPermitsMutation(
		tenantdomain.SubscriptionStatus(row.SubscriptionStatus),
		row.NextBillingDate,
		s.clk.Now(),
	)
}

func (s *ServiceImpl) ensureGrouping(subject string, roleName string, domain string) error {
	existing, err := s.enforcer.GetFilteredGroupingPolicy(0, subject, "", domain)
	if err != nil {
		return err
	}
	for _, rule := range existing {
		if len(rule) < 2 {
			continue
		}
		if rule[1] != roleName {
			params := make([]interface{}, 0, len(rule))
			for _, value := range rule {
				params = append(params, value)
			}
			_, _ = s.enforcer.RemoveGroupingPolicy(params...)
		}
	}

	has, err := s.enforcer.HasGroupingPolicy(subject, roleName, domain)
	if err != nil {
		return err
	}
	if has {
		return nil
	}
	_, err = s.enforcer.AddGroupingPolicy(subject, roleName, domain)
	return err
}

func (s *ServiceImpl) logDenied(p principal.Principal, object, action, reason string) {
	s.log.Debug("authorization denied",
		zap.String("user_id", p.UserID.String()),
		zap.String("tenant_id", p.TenantID.String()),
		zap.String("object", object),
		zap.String("action", action),
		zap.String("reason", reason),
	)
}

func seedPolicies(enforcer *casbin.SyncedEnforcer) error {
	policies := [][]string{
		// Owner: every capability, every branch.
		{"role:owner", ObjectDashboard, ActionDashboardView},
		{"role:owner", ObjectReports, ActionReportsView},
		{"role:owner", ObjectSale, ActionSaleCreate},
		{"role:owner", ObjectSale, ActionSaleViewAll},
		{"role:owner", ObjectSale, ActionSaleViewOwn},
		{"role:owner", ObjectCatalog, ActionCatalogEdit},
		{"role:owner", ObjectStock, ActionStockEdit},
		{"role:owner", ObjectMember, ActionMemberManage},
		{"role:owner", ObjectSettings, ActionSettingsEdit},
		{"role:owner", ObjectSubscription, ActionSubscriptionManage},

		// Branch admin: full capability within the own branch; the
		// branch scope check narrows the reach.
		{"role:branch_admin", ObjectDashboard, ActionDashboardView},
		{"role:branch_admin", ObjectReports, ActionReportsView},
		{"role:branch_admin", ObjectSale, ActionSaleCreate},
		{"role:branch_admin", ObjectSale, ActionSaleViewAll},
		{"role:branch_admin", ObjectSale, ActionSaleViewOwn},
		{"role:branch_admin", ObjectCatalog, ActionCatalogEdit},
		{"role:branch_admin", ObjectStock, ActionStockEdit},
		{"role:branch_admin", ObjectMember, ActionMemberManage},

		// Staff: sell and see their own sales.
		{"role:staff", ObjectSale, ActionSaleCreate},
		{"role:staff", ObjectSale, ActionSaleViewOwn},

		// System: the scheduler and other automated processes.
		{"role:system", ObjectSubscription, ActionSubscriptionManage},
		{"role:system", ObjectDashboard, ActionDashboardView},
		{"role:system", ObjectReports, ActionReportsView},
	}

	for _, policy := range policies {
		if _, err := enforcer.AddPolicy(policy[0], policy[1], policy[2]); err != nil {
			return err
		}
	}
	return nil
}
