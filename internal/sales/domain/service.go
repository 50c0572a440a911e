// Package domain defines the point-of-sale contracts: atomic sale
// creation with VAT extraction, price-override tracking, and the
// receipt flags.
package domain

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"

	"github.com/dukahub/dukahub/pkg/db/pagination"
	"github.com/dukahub/dukahub/pkg/principal"
)

var (
	ErrSaleNotFound         = errors.New("sale_not_found")
	ErrEmptySale            = errors.New("empty_sale")
	ErrInvalidQuantity      = errors.New("invalid_quantity")
	ErrInvalidPrice         = errors.New("invalid_price")
	ErrInvalidPaymentMethod = errors.New("invalid_payment_method")
	ErrUnknownProduct       = errors.New("unknown_product")
	ErrForbidden            = errors.New("forbidden")
)

// SaleItemInput's PriceOverride replaces the catalog selling price for
// this line when set; the difference is recorded as variance.
type SaleItemInput struct {
	ProductID     snowflake.ID     `json:"product_id" binding:"required"`
	Quantity      int64            `json:"quantity" binding:"required"`
	PriceOverride *decimal.Decimal `json:"price_override,omitempty"`
}

type CreateSaleRequest struct {
	BranchID      snowflake.ID    `json:"branch_id"`
	Items         []SaleItemInput `json:"items" binding:"required"`
	PaymentMethod PaymentMethod   `json:"payment_method" binding:"required"`
	CustomerName  string          `json:"customer_name"`
	CustomerEmail string          `json:"customer_email"`
	CustomerPhone string          `json:"customer_phone"`
}

type ListSalesRequest struct {
	BranchID  snowflake.ID
	CashierID *snowflake.ID
	From      *time.Time
	To        *time.Time
	Page      pagination.Pagination
}

type Service interface {
	// CreateSale runs one serializable transaction: validate every item
	// against the branch's effective catalog, extract VAT from the
	// inclusive total, decrement stock, and write the sale with its
	// item snapshots.
	CreateSale(ctx context.Context, p principal.Principal, req CreateSaleRequest) (*Sale, error)

	GetSale(ctx context.Context, p principal.Principal, saleID snowflake.ID) (*Sale, error)

	// ListSales filters by range, branch, and cashier. Staff callers
	// are pinned to their own sales regardless of the filter.
	ListSales(ctx context.Context, p principal.Principal, req ListSalesRequest) ([]Sale, *pagination.PageInfo, error)

	MarkEmailSent(ctx context.Context, p principal.Principal, saleID snowflake.ID) error
	MarkWhatsappSent(ctx context.Context, p principal.Principal, saleID snowflake.ID) error
}
