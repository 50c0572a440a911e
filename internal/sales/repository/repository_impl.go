package repository

import (
	"context"
	"errors"
	"strconv"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"

	"github.com/dukahub/dukahub/internal/sales/domain"
	"github.com/dukahub/dukahub/pkg/db/pagination"
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

func (r *RepositoryImpl) CreateSale(ctx context.Context, sale *domain.Sale) error {
	return r.db.WithContext(ctx).Create(sale).Error
}

func (r *RepositoryImpl) GetSale(ctx context.Context, saleID snowflake.ID) (*domain.Sale, error) {
	var sale domain.Sale
	err := r.db.WithContext(ctx).
		Preload("Items", func(db *gorm.DB) *gorm.DB {
			return db.Order("position ASC")
		}).
		Where("id = ?", saleID).
		First(&sale).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, domain.ErrSaleNotFound
		}
		return nil, err
	}
	return &sale, nil
}

func (r *RepositoryImpl) ListSales(ctx context.Context, tenantIDs []snowflake.ID, req domain.ListSalesRequest) ([]domain.Sale, *pagination.PageInfo, error) {
	pageSize := req.Page.PageSize
	if pageSize <= 0 {
		pageSize = 50
	}

	query := r.db.WithContext(ctx).
		Where("tenant_id IN ?", tenantIDs).
		Order("id DESC").
		Limit(pageSize + 1)

	if req.CashierID != nil {
		query = query.Where("user_id = ?", *req.CashierID)
	}
	if req.From != nil {
		query = query.Where("created_at >= ?", *req.From)
	}
	if req.To != nil {
		query = query.Where("created_at < ?", *req.To)
	}
	if req.Page.PageToken != "" {
		cursor, err := pagination.DecodeCursor(req.Page.PageToken)
		if err != nil {
			return nil, nil, err
		}
		lastID, err := strconv.ParseInt(cursor.ID, 10, 64)
		if err != nil {
			return nil, nil, err
		}
		query = query.Where("id < ?", lastID)
	}

	var sales []domain.Sale
	if err := query.Find(&sales).Error; err != nil {
		return nil, nil, err
	}

	info := &pagination.PageInfo{}
	if len(sales) > pageSize {
		sales = sales[:pageSize]
		info.HasMore = true
		token, err := pagination.EncodeCursor(pagination.Cursor{
			ID: sales[len(sales)-1].ID.String(),
		})
		if err != nil {
			return nil, nil, err
		}
		info.NextPageToken = token
	}
	return sales, info, nil
}

func (r *RepositoryImpl) UpdateFlags(ctx context.Context, saleID snowflake.ID, emailSent, whatsappSent *bool) error {
	updates := map[string]interface{}{}
	if emailSent != nil {
		updates["email_sent"] = *emailSent
	}
	if whatsappSent != nil {
		updates["whatsapp_sent"] = *whatsappSent
	}
	if len(updates) == 0 {
		return nil
	}
	result := r.db.WithContext(ctx).
		Model(&domain.Sale{}).
		Where("id = ?", saleID).
		Updates(updates)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return domain.ErrSaleNotFound
	}
	return nil
}
