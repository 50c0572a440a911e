package repository

import (
	"context"
	"errors"
	"strconv"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/dukahub/dukahub/internal/stock/domain"
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

func (r *RepositoryImpl) GetForUpdate(ctx context.Context, branchID, productID snowflake.ID) (*domain.BranchStock, error) {
	query := r.db.WithContext(ctx)
	// sqlite cannot parse FOR UPDATE; its single-writer model already
	// serializes the mutation.
	if r.db.Dialector.Name() != "sqlite" {
		query = query.Clauses(clause.Locking{Strength: "UPDATE"})
	}
	var stock domain.BranchStock
	err := query.
		Where("tenant_id = ? AND product_id = ?", branchID, productID).
		First(&stock).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, domain.ErrStockNotFound
		}
		return nil, err
	}
	return &stock, nil
}

func (r *RepositoryImpl) Get(ctx context.Context, branchID, productID snowflake.ID) (*domain.BranchStock, error) {
	var stock domain.BranchStock
	err := r.db.WithContext(ctx).
		Where("tenant_id = ? AND product_id = ?", branchID, productID).
		First(&stock).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, domain.ErrStockNotFound
		}
		return nil, err
	}
	return &stock, nil
}

func (r *RepositoryImpl) Save(ctx context.Context, stock *domain.BranchStock) error {
	return r.db.WithContext(ctx).Save(stock).Error
}

func (r *RepositoryImpl) CreateRows(ctx context.Context, rows []domain.BranchStock) error {
	if len(rows) == 0 {
		return nil
	}
	return r.db.WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		CreateInBatches(rows, 200).Error
}

func (r *RepositoryImpl) CreateMovement(ctx context.Context, movement *domain.StockMovement) error {
	return r.db.WithContext(ctx).Create(movement).Error
}

func (r *RepositoryImpl) ListMovements(ctx context.Context, req domain.ListMovementsRequest) ([]domain.StockMovement, *pagination.PageInfo, error) {
	pageSize := req.Page.PageSize
	if pageSize <= 0 {
		pageSize = 50
	}

	query := r.db.WithContext(ctx).
		Where("tenant_id = ?", req.BranchID).
		Order("id DESC").
		Limit(pageSize + 1)

	if req.ProductID != nil {
		query = query.Where("product_id = ?", *req.ProductID)
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

	var movements []domain.StockMovement
	if err := query.Find(&movements).Error; err != nil {
		return nil, nil, err
	}

	info := &pagination.PageInfo{}
	if len(movements) > pageSize {
		movements = movements[:pageSize]
		info.HasMore = true
		token, err := pagination.EncodeCursor(pagination.Cursor{
			ID: movements[len(movements)-1].ID.String(),
		})
		if err != nil {
			return nil, nil, err
		}
		info.NextPageToken = token
	}
	return movements, info, nil
}

func (r *RepositoryImpl) LowStock(ctx context.Context, branchID snowflake.ID) ([]domain.LowStockRow, error) {
	var rows []domain.LowStockRow
	err := r.db.WithContext(ctx).
		Table("branch_stocks AS bs").
		Select("bs.product_id, p.sku, p.name, bs.quantity, bs.reorder_level").
		Joins("JOIN products p ON p.id = bs.product_id").
		Where("bs.tenant_id = ?", branchID).
		Where("p.is_service = ?", false).
		Where("p.is_available = ?", true).
		Where("bs.quantity <= bs.reorder_level").
		Order("bs.quantity ASC").
		Find(&rows).Error
	return rows, err
}
