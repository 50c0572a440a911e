package domain

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"

	"github.com/dukahub/dukahub/pkg/principal"
)

type Service interface {
	RegisterOrganization(ctx context.Context, req RegisterOrganizationRequest) (*TenantResponse, error)
	CreateBranch(ctx context.Context, p principal.Principal, req CreateBranchRequest) (*TenantResponse, error)
	Get(ctx context.Context, p principal.Principal, id snowflake.ID) (*TenantResponse, error)
	GetBySubdomain(ctx context.Context, subdomain string) (*Tenant, error)
	ListBranches(ctx context.Context, p principal.Principal) ([]TenantResponse, error)
	UpdateSettings(ctx context.Context, p principal.Principal, req UpdateSettingsRequest) (*TenantResponse, error)
	Suspend(ctx context.Context, p principal.Principal, id snowflake.ID) error
	Unsuspend(ctx context.Context, p principal.Principal, id snowflake.ID) error

	AddMember(ctx context.Context, p principal.Principal, req AddMemberRequest) (*MemberResponse, error)
	UpdateMember(ctx context.Context, p principal.Principal, req UpdateMemberRequest) (*MemberResponse, error)
	DeactivateMember(ctx context.Context, p principal.Principal, memberID snowflake.ID) error
	ListMembers(ctx context.Context, p principal.Principal) ([]MemberResponse, error)

	// ResolvePrincipal recomputes the caller's role type from the
	// current membership rows. Called on every request.
	ResolvePrincipal(ctx context.Context, userID, tenantID snowflake.ID) (*principal.Principal, error)
	SwitchTenant(ctx context.Context, userID, fromTenantID, targetTenantID snowflake.ID) (*principal.Principal, error)
}

// StockBootstrapper creates the zero-quantity branch stock rows a new
// branch needs for every existing product of its organization.
// Implemented by the stock service and wired through fx.
type StockBootstrapper interface {
	EnsureBranchRows(ctx context.Context, orgID, branchID snowflake.ID) error
}

type RegisterOrganizationRequest struct {
	Name        string `json:"name"`
	Subdomain   string `json:"subdomain"`
	OwnerEmail  string `json:"owner_email"`
	OwnerUserID snowflake.ID
	Currency    string  `json:"currency"`
	TaxRate     float64 `json:"tax_rate"`
	Timezone    string  `json:"timezone"`
}

type CreateBranchRequest struct {
	Name      string `json:"name"`
	Subdomain string `json:"subdomain"`
}

type UpdateSettingsRequest struct {
	Name     *string  `json:"name,omitempty"`
	Currency *string  `json:"currency,omitempty"`
	TaxRate  *float64 `json:"tax_rate,omitempty"`
	Timezone *string  `json:"timezone,omitempty"`
}

type AddMemberRequest struct {
	UserID   snowflake.ID `json:"user_id"`
	Role     string       `json:"role"`
	BranchID *snowflake.ID `json:"branch_id,omitempty"`
}

type UpdateMemberRequest struct {
	MemberID snowflake.ID  `json:"member_id"`
	Role     *string       `json:"role,omitempty"`
	BranchID *snowflake.ID `json:"branch_id,omitempty"`
	IsActive *bool         `json:"is_active,omitempty"`
}

type TenantResponse struct {
	ID                 string             `json:"id"`
	Subdomain          string             `json:"subdomain"`
	Name               string             `json:"name"`
	ParentID           string             `json:"parent_id,omitempty"`
	Currency           string             `json:"currency"`
	TaxRate            float64            `json:"tax_rate"`
	Timezone           string             `json:"timezone"`
	SubscriptionStatus SubscriptionStatus `json:"subscription_status"`
	TrialEndsAt        *time.Time         `json:"trial_ends_at,omitempty"`
	NextBillingDate    *time.Time         `json:"next_billing_date,omitempty"`
	IsActive           bool               `json:"is_active"`
}

type MemberResponse struct {
	ID       string     `json:"id"`
	UserID   string     `json:"user_id"`
	Role     string     `json:"role"`
	RoleType string     `json:"role_type"`
	BranchID string     `json:"branch_id,omitempty"`
	IsActive bool       `json:"is_active"`
	JoinedAt time.Time  `json:"joined_at"`
}

var (
	ErrInvalidName        = errors.New("invalid_name")
	ErrInvalidSubdomain   = errors.New("invalid_subdomain")
	ErrInvalidTimezone    = errors.New("invalid_timezone")
	ErrInvalidRole        = errors.New("invalid_role")
	ErrInvalidBranch      = errors.New("invalid_branch")
	ErrSubdomainTaken     = errors.New("subdomain_taken")
	ErrTenantNotFound     = errors.New("tenant_not_found")
	ErrMemberNotFound     = errors.New("member_not_found")
	ErrMemberExists       = errors.New("member_exists")
	ErrNotAMember         = errors.New("not_a_member")
	ErrInactive           = errors.New("inactive")
	ErrBranchNesting      = errors.New("branch_nesting_not_allowed")
	ErrSwitchForbidden    = errors.New("switch_forbidden")
	ErrForbidden          = errors.New("forbidden")
)
