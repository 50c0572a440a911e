// Package domain contains persistence models for the tenant service.
package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/datatypes"
)

// SubscriptionStatus is the lifecycle state of a tenant's subscription.
type SubscriptionStatus string

const (
	SubscriptionTrial     SubscriptionStatus = "trial"
	SubscriptionActive    SubscriptionStatus = "active"
	SubscriptionCancelled SubscriptionStatus = "cancelled"
	SubscriptionExpired   SubscriptionStatus = "expired"
)

// Membership roles. Role type (owner, branch_admin, staff) is derived,
// never stored.
const (
	RoleAdmin = "admin"
	RoleStaff = "staff"
)

// Tenant represents an organization (parent_id null) or one of its
// branches (parent_id set, exactly one level deep).
type Tenant struct {
	ID         snowflake.ID  `gorm:"primaryKey" json:"id"`
	Subdomain  string        `gorm:"type:text;not null;uniqueIndex:ux_tenants_subdomain" json:"subdomain"`
	Name       string        `gorm:"type:text;not null" json:"name"`
	OwnerEmail string        `gorm:"type:text;column:owner_email" json:"owner_email"`
	ParentID   *snowflake.ID `gorm:"column:parent_id;index" json:"parent_id,omitempty"`

	Currency string  `gorm:"type:text;not null" json:"currency"`
	TaxRate  float64 `gorm:"column:tax_rate;not null" json:"tax_rate"`
	Timezone string  `gorm:"type:text;not null" json:"timezone"`

	SubscriptionStatus   SubscriptionStatus `gorm:"type:text;not null;default:'trial'" json:"subscription_status"`
	TrialEndsAt          *time.Time         `gorm:"column:trial_ends_at" json:"trial_ends_at,omitempty"`
	NextBillingDate      *time.Time         `gorm:"column:next_billing_date" json:"next_billing_date,omitempty"`
	LastPaymentDate      *time.Time         `gorm:"column:last_payment_date" json:"last_payment_date,omitempty"`
	AutoRenewalEnabled   bool               `gorm:"column:auto_renewal_enabled" json:"auto_renewal_enabled"`
	GatewayAuthorization string             `gorm:"type:text;column:gateway_authorization" json:"-"`
	SavedBranchSelection datatypes.JSON     `gorm:"type:jsonb;column:saved_branch_selection" json:"saved_branch_selection,omitempty"`

	// Stored per tenant but not enforced by the core.
	MaxUsers    int `gorm:"column:max_users;not null;default:0" json:"max_users"`
	MaxProducts int `gorm:"column:max_products;not null;default:0" json:"max_products"`

	IsActive  bool      `gorm:"column:is_active;not null;default:true" json:"is_active"`
	CreatedAt time.Time `gorm:"not null;default:CURRENT_TIMESTAMP" json:"created_at"`
	UpdatedAt time.Time `gorm:"not null;default:CURRENT_TIMESTAMP" json:"updated_at"`
}

// TableName sets the database table name.
func (Tenant) TableName() string { return "tenants" }

// IsOrganization reports whether the tenant is a root organization.
func (t Tenant) IsOrganization() bool { return t.ParentID == nil }

// BelongsTo reports whether the tenant is the organization itself or
// one of its direct branches.
func (t Tenant) BelongsTo(orgID snowflake.ID) bool {
	if t.ID == orgID {
		return true
	}
	return t.ParentID != nil && *t.ParentID == orgID
}

// Membership links a user to one tenant.
type Membership struct {
	ID       snowflake.ID `gorm:"primaryKey" json:"id"`
	TenantID snowflake.ID `gorm:"not null;index;uniqueIndex:ux_memberships_tenant_user,priority:1" json:"tenant_id"`
	UserID   snowflake.ID `gorm:"not null;index;uniqueIndex:ux_memberships_tenant_user,priority:2" json:"user_id"`
	Role     string       `gorm:"type:text;not null" json:"role"`
	// BranchID pins the member to one branch of the tenant. It
	// restricts staff, never admins.
	BranchID *snowflake.ID `gorm:"column:branch_id" json:"branch_id,omitempty"`
	IsOwner  bool          `gorm:"column:is_owner;not null;default:false" json:"is_owner"`
	IsActive bool          `gorm:"column:is_active;not null;default:true" json:"is_active"`
	JoinedAt time.Time     `gorm:"column:joined_at;not null;default:CURRENT_TIMESTAMP" json:"joined_at"`
}

// TableName sets the database table name.
func (Membership) TableName() string { return "memberships" }
