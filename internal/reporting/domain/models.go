// Package domain defines the reporting read models. Reporting never
// writes; it aggregates sales the tenant's own services recorded.
package domain

import (
	"context"
	"errors"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"

	"github.com/dukahub/dukahub/pkg/principal"
)

type VarianceDimension string

const (
	DimensionProduct VarianceDimension = "product"
	DimensionStaff   VarianceDimension = "staff"
	DimensionBranch  VarianceDimension = "branch"
)

func (d VarianceDimension) Valid() bool {
	switch d {
	case DimensionProduct, DimensionStaff, DimensionBranch:
		return true
	}
	return false
}

var (
	ErrInvalidRange     = errors.New("invalid_range")
	ErrInvalidDimension = errors.New("invalid_dimension")
	ErrForbidden        = errors.New("forbidden")
)

// DashboardRequest bounds the report by tenant-local dates
// ("2006-01-02"); the service converts them to UTC instants using the
// tenant's timezone before querying.
type DashboardRequest struct {
	BranchID snowflake.ID
	FromDate string
	ToDate   string
}

type DayRevenue struct {
	Date       string          `json:"date"`
	Revenue    decimal.Decimal `json:"revenue"`
	SalesCount int64           `json:"sales_count"`
}

type TopProduct struct {
	ProductID snowflake.ID    `json:"product_id"`
	SKU       string          `json:"sku"`
	Name      string          `json:"name"`
	Revenue   decimal.Decimal `json:"revenue"`
	Quantity  int64           `json:"quantity"`
}

type Dashboard struct {
	Revenue      decimal.Decimal `json:"revenue"`
	SalesCount   int64           `json:"sales_count"`
	RevenueByDay []DayRevenue    `json:"revenue_by_day"`
	TopProducts  []TopProduct    `json:"top_products"`
}

type VarianceRequest struct {
	Dimension VarianceDimension
	BranchID  snowflake.ID
	FromDate  string
	ToDate    string
}

// VarianceRow aggregates price overrides for one key of the chosen
// dimension. Sale counts are distinct sales, never item rows: a sale
// with three overridden lines of one product counts once.
type VarianceRow struct {
	KeyID         snowflake.ID    `json:"key_id"`
	KeyName       string          `json:"key_name,omitempty"`
	TotalSales    int64           `json:"total_sales_in_scope"`
	OverrideSales int64           `json:"sales_with_override"`
	VarianceSum   decimal.Decimal `json:"variance_sum"`
	OverrideRate  float64         `json:"override_rate"`
}

type Service interface {
	Dashboard(ctx context.Context, p principal.Principal, req DashboardRequest) (*Dashboard, error)
	PriceVariance(ctx context.Context, p principal.Principal, req VarianceRequest) ([]VarianceRow, error)
}
