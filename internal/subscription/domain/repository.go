package domain

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

type Repository interface {
	WithTx(tx *gorm.DB) Repository

	CreateTransaction(ctx context.Context, tx *SubscriptionTransaction) error
	GetTransactionByReference(ctx context.Context, reference string) (*SubscriptionTransaction, error)
	UpdateTransaction(ctx context.Context, tx *SubscriptionTransaction) error
	ListTransactions(ctx context.Context, tenantID snowflake.ID) ([]SubscriptionTransaction, error)

	CreateBranchSubscriptions(ctx context.Context, rows []BranchSubscription) error
	ListBranchSubscriptionsByTransaction(ctx context.Context, transactionID snowflake.ID) ([]BranchSubscription, error)
	ListActiveBranchSubscriptions(ctx context.Context, tenantIDs []snowflake.ID) ([]BranchSubscription, error)

	// DeactivateBranchSubscriptions ends the coverage of rows whose
	// period closed at or before cutoff.
	DeactivateBranchSubscriptions(ctx context.Context, tenantIDs []snowflake.ID, cutoff time.Time) error
}
