// Package domain defines the subscription ledger contracts: the price
// book math, the tenant lifecycle state machine, and the idempotent
// gateway verification protocol.
package domain

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"

	tenantdomain "github.com/dukahub/dukahub/internal/tenant/domain"
	"github.com/dukahub/dukahub/pkg/principal"
)

var (
	ErrInvalidCycle       = errors.New("invalid_cycle")
	ErrInvalidReference   = errors.New("invalid_reference")
	ErrUnknownBranch      = errors.New("unknown_branch")
	ErrBranchNotCovered   = errors.New("branch_not_covered")
	ErrBranchCovered      = errors.New("branch_already_covered")
	ErrNotCancellable     = errors.New("not_cancellable")
	ErrNotReactivatable   = errors.New("not_reactivatable")
	ErrNotSubscribed      = errors.New("not_subscribed")
	ErrNoAuthorization    = errors.New("no_authorization")
	ErrGatewayUnavailable = errors.New("gateway_unavailable")
	ErrGatewayDeclined    = errors.New("gateway_declined")
)

type InitializeRequest struct {
	Cycle     BillingCycle   `json:"cycle" binding:"required"`
	BranchIDs []snowflake.ID `json:"branch_ids"`
}

type InitializeResponse struct {
	AuthorizationURL string `json:"authorization_url"`
	Reference        string `json:"reference"`
	Amount           int64  `json:"amount"`
	Currency         string `json:"currency"`
}

type VerifyResult struct {
	Reference       string            `json:"reference"`
	Status          TransactionStatus `json:"status"`
	SubscriptionEnd *time.Time        `json:"subscription_end,omitempty"`
	Branches        []snowflake.ID    `json:"branches_enabled"`
}

type Status struct {
	SubscriptionStatus tenantdomain.SubscriptionStatus `json:"subscription_status"`
	TrialEndsAt        *time.Time                      `json:"trial_ends_at,omitempty"`
	NextBillingDate    *time.Time                      `json:"next_billing_date,omitempty"`
	LastPaymentDate    *time.Time                      `json:"last_payment_date,omitempty"`
	AutoRenewalEnabled bool                            `json:"auto_renewal_enabled"`
	CoveredBranches    []BranchSubscription            `json:"covered_branches"`
	Prices             map[BillingCycle]int64          `json:"prices"`
}

// RenewalPlan is the reconciled auto-renewal charge: the saved branch
// selection validated against the branches that still exist.
type RenewalPlan struct {
	Cycle     BillingCycle   `json:"cycle"`
	BranchIDs []snowflake.ID `json:"branch_ids"`
	Amount    int64          `json:"amount"`
}

type Service interface {
	Status(ctx context.Context, p principal.Principal) (*Status, error)

	// Initialize creates a pending transaction for a full cycle covering
	// the main location plus the selected branches and returns the
	// gateway redirect.
	Initialize(ctx context.Context, p principal.Principal, req InitializeRequest) (*InitializeResponse, error)

	// Verify settles a pending transaction. Safe under arbitrary
	// repetition and concurrency: a settled reference returns its cached
	// outcome without touching the gateway.
	Verify(ctx context.Context, reference string) (*VerifyResult, error)

	// AddBranchMidCycle initializes a pro-rata transaction for one more
	// branch; its verify attaches the branch until the current
	// next_billing_date.
	AddBranchMidCycle(ctx context.Context, p principal.Principal, branchID snowflake.ID) (*InitializeResponse, error)

	Cancel(ctx context.Context, p principal.Principal) error
	Reactivate(ctx context.Context, p principal.Principal) error

	EnableAutoRenewal(ctx context.Context, p principal.Principal) error
	DisableAutoRenewal(ctx context.Context, p principal.Principal) error

	// ReconcileAutoRenewal validates the saved branch selection against
	// the tenant's existing branches and prices the renewal. Read-only;
	// the gateway's recurring charge performs the actual payment.
	ReconcileAutoRenewal(ctx context.Context, tenantID snowflake.ID) (*RenewalPlan, error)

	// Expire transitions a past-due tenant to expired and deactivates
	// the period's branch coverage. Used by the scheduler.
	Expire(ctx context.Context, tenantID snowflake.ID, now time.Time) error
}
