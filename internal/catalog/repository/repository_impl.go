package repository

import (
	"context"
	"errors"
	"strings"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"

	"github.com/dukahub/dukahub/internal/catalog/domain"
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

func (r *RepositoryImpl) CreateProduct(ctx context.Context, product *domain.Product) error {
	return r.db.WithContext(ctx).Create(product).Error
}

func (r *RepositoryImpl) GetProduct(ctx context.Context, orgID, productID snowflake.ID) (*domain.Product, error) {
	var product domain.Product
	err := r.db.WithContext(ctx).
		Where("tenant_id = ? AND id = ?", orgID, productID).
		First(&product).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, domain.ErrProductNotFound
		}
		return nil, err
	}
	return &product, nil
}

func (r *RepositoryImpl) UpdateProduct(ctx context.Context, product *domain.Product) error {
	return r.db.WithContext(ctx).Save(product).Error
}

func (r *RepositoryImpl) ListProducts(ctx context.Context, orgID snowflake.ID) ([]domain.Product, error) {
	var products []domain.Product
	err := r.db.WithContext(ctx).
		Where("tenant_id = ?", orgID).
		Order("id ASC").
		Find(&products).Error
	return products, err
}

func (r *RepositoryImpl) ListEffective(ctx context.Context, orgID, stockTenantID snowflake.ID, filter domain.EffectiveFilter) ([]domain.EffectiveProduct, error) {
	query := r.db.WithContext(ctx).
		Table("products AS p").
		Select("p.*, bs.quantity AS quantity, bs.reorder_level AS stock_reorder_level").
		Joins("JOIN branch_stocks bs ON bs.product_id = p.id AND bs.tenant_id = ?", stockTenantID).
		Where("p.tenant_id = ?", orgID)

	if !filter.IncludeUnavailable {
		query = query.Where("p.is_available = ?", true)
	}
	if filter.CategoryID != nil {
		query = query.Where("p.category_id = ?", *filter.CategoryID)
	}
	if search := strings.TrimSpace(filter.Search); search != "" {
		pattern := "%" + strings.ToLower(search) + "%"
		query = query.Where("LOWER(p.name) LIKE ? OR LOWER(p.sku) LIKE ?", pattern, pattern)
	}

	var rows []domain.EffectiveProduct
	if err := query.Order("p.name ASC").Find(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}

func (r *RepositoryImpl) CreateCategory(ctx context.Context, category *domain.Category) error {
	return r.db.WithContext(ctx).Create(category).Error
}

func (r *RepositoryImpl) GetCategory(ctx context.Context, orgID, categoryID snowflake.ID) (*domain.Category, error) {
	var category domain.Category
	err := r.db.WithContext(ctx).
		Where("tenant_id = ? AND id = ?", orgID, categoryID).
		First(&category).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, domain.ErrCategoryNotFound
		}
		return nil, err
	}
	return &category, nil
}

func (r *RepositoryImpl) ListCategories(ctx context.Context, orgID snowflake.ID) ([]domain.Category, error) {
	var categories []domain.Category
	err := r.db.WithContext(ctx).
		Where("tenant_id = ?", orgID).
		Order("name ASC").
		Find(&categories).Error
	return categories, err
}

func (r *RepositoryImpl) CreateUnit(ctx context.Context, unit *domain.Unit) error {
	return r.db.WithContext(ctx).Create(unit).Error
}

func (r *RepositoryImpl) GetUnit(ctx context.Context, orgID, unitID snowflake.ID) (*domain.Unit, error) {
	var unit domain.Unit
	err := r.db.WithContext(ctx).
		Where("tenant_id = ? AND id = ?", orgID, unitID).
		First(&unit).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, domain.ErrUnknownUnit
		}
		return nil, err
	}
	return &unit, nil
}

func (r *RepositoryImpl) ListUnits(ctx context.Context, orgID snowflake.ID) ([]domain.Unit, error) {
	var units []domain.Unit
	err := r.db.WithContext(ctx).
		Where("tenant_id = ?", orgID).
		Order("name ASC").
		Find(&units).Error
	return units, err
}
