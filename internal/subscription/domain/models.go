package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/datatypes"
)

type BillingCycle string

const (
	CycleMonthly    BillingCycle = "monthly"
	CycleSemiAnnual BillingCycle = "semi_annual"
	CycleAnnual     BillingCycle = "annual"
)

func (c BillingCycle) Valid() bool {
	switch c {
	case CycleMonthly, CycleSemiAnnual, CycleAnnual:
		return true
	}
	return false
}

// Months is the period length a paid cycle covers.
func (c BillingCycle) Months() int {
	switch c {
	case CycleSemiAnnual:
		return 6
	case CycleAnnual:
		return 12
	default:
		return 1
	}
}

type TransactionStatus string

const (
	TransactionPending TransactionStatus = "pending"
	TransactionSuccess TransactionStatus = "success"
	TransactionFailed  TransactionStatus = "failed"
)

// SubscriptionTransaction is the ledger row for one gateway charge.
// Reference is the externally visible idempotency key. Amount is in
// currency minor units. Prorata marks a mid-cycle branch add whose
// SubscriptionEnd was fixed at initialize time instead of being
// derived from the cycle at verify time.
type SubscriptionTransaction struct {
	ID                   snowflake.ID      `gorm:"primaryKey" json:"id"`
	TenantID             snowflake.ID      `gorm:"not null;index" json:"tenant_id"`
	Reference            string            `gorm:"size:64;not null;uniqueIndex:ux_subscription_transactions_reference" json:"reference"`
	Amount               int64             `gorm:"not null" json:"amount"`
	Currency             string            `gorm:"size:3;not null" json:"currency"`
	BillingCycle         BillingCycle      `gorm:"size:16;not null" json:"billing_cycle"`
	Status               TransactionStatus `gorm:"size:16;not null;default:'pending'" json:"status"`
	Prorata              bool              `gorm:"not null;default:false" json:"prorata"`
	BranchIDs            datatypes.JSON    `gorm:"type:jsonb" json:"branch_ids,omitempty"`
	SubscriptionStart    *time.Time        `json:"subscription_start,omitempty"`
	SubscriptionEnd      *time.Time        `json:"subscription_end,omitempty"`
	GatewayAuthorization string            `gorm:"size:255" json:"-"`
	CreatedAt            time.Time         `json:"created_at"`
	UpdatedAt            time.Time         `json:"updated_at"`
}

func (SubscriptionTransaction) TableName() string {
	return "subscription_transactions"
}

// BranchSubscription records that a transaction covered a branch for a
// period. The unique (transaction_id, tenant_id) key is the verify
// idempotency backstop: a racing duplicate verify loses on insert.
type BranchSubscription struct {
	ID                snowflake.ID `gorm:"primaryKey" json:"id"`
	TransactionID     snowflake.ID `gorm:"not null;uniqueIndex:ux_branch_subscriptions_tx_tenant" json:"transaction_id"`
	TenantID          snowflake.ID `gorm:"not null;uniqueIndex:ux_branch_subscriptions_tx_tenant;index" json:"tenant_id"`
	IsMainLocation    bool         `gorm:"not null;default:false" json:"is_main_location"`
	SubscriptionStart time.Time    `gorm:"not null" json:"subscription_start"`
	SubscriptionEnd   time.Time    `gorm:"not null;index" json:"subscription_end"`
	IsActive          bool         `gorm:"not null;default:true" json:"is_active"`
	CreatedAt         time.Time    `json:"created_at"`
	UpdatedAt         time.Time    `json:"updated_at"`
}

func (BranchSubscription) TableName() string {
	return "branch_subscriptions"
}
