package repository

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"

	"github.com/dukahub/dukahub/internal/subscription/domain"
)

type RepositoryImpl struct {
	db *gorm.DB
}

func NewRepository(db *gorm.DB) domain.Repository {
	return &RepositoryImpl{db: db}
}

func (r *RepositoryImpl) WithTx(tx *gorm.DB) domain.Repository {
	return &RepositoryImpl{db: tx}
}

func (r *RepositoryImpl) CreateTransaction(ctx context.Context, tx *domain.SubscriptionTransaction) error {
	return r.db.WithContext(ctx).Create(tx).Error
}

func (r *RepositoryImpl) GetTransactionByReference(ctx context.Context, reference string) (*domain.SubscriptionTransaction, error) {
	var tx domain.SubscriptionTransaction
	err := r.db.WithContext(ctx).
		Where("reference = ?", reference).
		First(&tx).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, domain.ErrInvalidReference
		}
		return nil, err
	}
	return &tx, nil
}

func (r *RepositoryImpl) UpdateTransaction(ctx context.Context, tx *domain.SubscriptionTransaction) error {
	return r.db.WithContext(ctx).Save(tx).Error
}

func (r *RepositoryImpl) ListTransactions(ctx context.Context, tenantID snowflake.ID) ([]domain.SubscriptionTransaction, error) {
	var txs []domain.SubscriptionTransaction
	err := r.db.WithContext(ctx).
		Where("tenant_id = ?", tenantID).
		Order("id DESC").
		Find(&txs).Error
	return txs, err
}

func (r *RepositoryImpl) CreateBranchSubscriptions(ctx context.Context, rows []domain.BranchSubscription) error {
	if len(rows) == 0 {
		return nil
	}
	return r.db.WithContext(ctx).Create(rows).Error
}

func (r *RepositoryImpl) ListBranchSubscriptionsByTransaction(ctx context.Context, transactionID snowflake.ID) ([]domain.BranchSubscription, error) {
	var rows []domain.BranchSubscription
	err := r.db.WithContext(ctx).
		Where("transaction_id = ?", transactionID).
		Order("id ASC").
		Find(&rows).Error
	return rows, err
}

func (r *RepositoryImpl) ListActiveBranchSubscriptions(ctx context.Context, tenantIDs []snowflake.ID) ([]domain.BranchSubscription, error) {
	var rows []domain.BranchSubscription
	err := r.db.WithContext(ctx).
		Where("tenant_id IN ? AND is_active = ?", tenantIDs, true).
		Order("subscription_end DESC").
		Find(&rows).Error
	return rows, err
}

func (r *RepositoryImpl) DeactivateBranchSubscriptions(ctx context.Context, tenantIDs []snowflake.ID, cutoff time.Time) error {
	return r.db.WithContext(ctx).
		Model(&domain.BranchSubscription{}).
		Where("tenant_id IN ? AND is_active = ? AND subscription_end <= ?", tenantIDs, true, cutoff).
		Update("is_active", false).Error
}
