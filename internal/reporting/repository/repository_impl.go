package repository

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/dukahub/dukahub/internal/reporting/domain"
)

// SaleTotal is one sale's timestamp and total, the raw material for
// the local-date grouping done in the service.
type SaleTotal struct {
	CreatedAt time.Time
	Total     decimal.Decimal
}

type Repository interface {
	Totals(ctx context.Context, tenantIDs []snowflake.ID, from, to time.Time) (decimal.Decimal, int64, error)
	SaleTotals(ctx context.Context, tenantIDs []snowflake.ID, from, to time.Time) ([]SaleTotal, error)
	TopProducts(ctx context.Context, tenantIDs []snowflake.ID, from, to time.Time, limit int) ([]domain.TopProduct, error)
	VarianceByProduct(ctx context.Context, tenantIDs []snowflake.ID, from, to time.Time) ([]domain.VarianceRow, error)
	VarianceByStaff(ctx context.Context, tenantIDs []snowflake.ID, from, to time.Time) ([]domain.VarianceRow, error)
	VarianceByBranch(ctx context.Context, tenantIDs []snowflake.ID, from, to time.Time) ([]domain.VarianceRow, error)
}

type RepositoryImpl struct {
	db *gorm.DB
}

func NewRepository(db *gorm.DB) Repository {
	return &RepositoryImpl{db: db}
}

func (r *RepositoryImpl) Totals(ctx context.Context, tenantIDs []snowflake.ID, from, to time.Time) (decimal.Decimal, int64, error) {
	var row struct {
		Revenue    decimal.Decimal `gorm:"column:revenue"`
		SalesCount int64           `gorm:"column:sales_count"`
	}
	err := r.db.WithContext(ctx).Raw(
		`SELECT COALESCE(SUM(total), 0) AS revenue, COUNT(*) AS sales_count
		 FROM sales
		 WHERE tenant_id IN ? AND created_at >= ? AND created_at < ?`,
		tenantIDs, from, to,
	).Scan(&row).Error
	if err != nil {
		return decimal.Zero, 0, err
	}
	return row.Revenue, row.SalesCount, nil
}

func (r *RepositoryImpl) SaleTotals(ctx context.Context, tenantIDs []snowflake.ID, from, to time.Time) ([]SaleTotal, error) {
	var rows []SaleTotal
	err := r.db.WithContext(ctx).Raw(
		`SELECT created_at, total
		 FROM sales
		 WHERE tenant_id IN ? AND created_at >= ? AND created_at < ?
		 ORDER BY created_at ASC`,
		tenantIDs, from, to,
	).Scan(&rows).Error
	return rows, err
}

func (r *RepositoryImpl) TopProducts(ctx context.Context, tenantIDs []snowflake.ID, from, to time.Time, limit int) ([]domain.TopProduct, error) {
	var rows []domain.TopProduct
	err := r.db.WithContext(ctx).Raw(
		`SELECT si.product_id, si.sku, si.name,
		        COALESCE(SUM(si.unit_price * si.quantity), 0) AS revenue,
		        COALESCE(SUM(si.quantity), 0) AS quantity
		 FROM sale_items si
		 JOIN sales s ON s.id = si.sale_id
		 WHERE s.tenant_id IN ? AND s.created_at >= ? AND s.created_at < ?
		 GROUP BY si.product_id, si.sku, si.name
		 ORDER BY revenue DESC
		 LIMIT ?`,
		tenantIDs, from, to, limit,
	).Scan(&rows).Error
	return rows, err
}

func (r *RepositoryImpl) VarianceByProduct(ctx context.Context, tenantIDs []snowflake.ID, from, to time.Time) ([]domain.VarianceRow, error) {
	var rows []domain.VarianceRow
	err := r.db.WithContext(ctx).Raw(
		`SELECT si.product_id AS key_id, si.name AS key_name,
		        COUNT(DISTINCT si.sale_id) AS total_sales,
		        COUNT(DISTINCT CASE WHEN si.is_price_override THEN si.sale_id END) AS override_sales,
		        COALESCE(SUM(CASE WHEN si.is_price_override THEN si.variance * si.quantity ELSE 0 END), 0) AS variance_sum
		 FROM sale_items si
		 JOIN sales s ON s.id = si.sale_id
		 WHERE s.tenant_id IN ? AND s.created_at >= ? AND s.created_at < ?
		 GROUP BY si.product_id, si.name`,
		tenantIDs, from, to,
	).Scan(&rows).Error
	return rows, err
}

func (r *RepositoryImpl) VarianceByStaff(ctx context.Context, tenantIDs []snowflake.ID, from, to time.Time) ([]domain.VarianceRow, error) {
	var rows []domain.VarianceRow
	err := r.db.WithContext(ctx).Raw(
		`SELECT s.user_id AS key_id,
		        COUNT(DISTINCT s.id) AS total_sales,
		        COUNT(DISTINCT CASE WHEN si.is_price_override THEN s.id END) AS override_sales,
		        COALESCE(SUM(CASE WHEN si.is_price_override THEN si.variance * si.quantity ELSE 0 END), 0) AS variance_sum
		 FROM sales s
		 JOIN sale_items si ON si.sale_id = s.id
		 WHERE s.tenant_id IN ? AND s.created_at >= ? AND s.created_at < ?
		 GROUP BY s.user_id`,
		tenantIDs, from, to,
	).Scan(&rows).Error
	return rows, err
}

func (r *RepositoryImpl) VarianceByBranch(ctx context.Context, tenantIDs []snowflake.ID, from, to time.Time) ([]domain.VarianceRow, error) {
	var rows []domain.VarianceRow
	err := r.db.WithContext(ctx).Raw(
		`SELECT s.tenant_id AS key_id,
		        COUNT(DISTINCT s.id) AS total_sales,
		        COUNT(DISTINCT CASE WHEN si.is_price_override THEN s.id END) AS override_sales,
		        COALESCE(SUM(CASE WHEN si.is_price_override THEN si.variance * si.quantity ELSE 0 END), 0) AS variance_sum
		 FROM sales s
		 JOIN sale_items si ON si.sale_id = s.id
		 WHERE s.tenant_id IN ? AND s.created_at >= ? AND s.created_at < ?
		 GROUP BY s.tenant_id`,
		tenantIDs, from, to,
	).Scan(&rows).Error
	return rows, err
}
