// Package domain defines the catalog contracts: org-scoped products
// with per-org SKU uniqueness, categories and units, and the
// effective-catalog view branches read from.
package domain

import (
	"context"
	"errors"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/dukahub/dukahub/pkg/principal"
)

var (
	ErrProductNotFound    = errors.New("product_not_found")
	ErrDuplicateSKU       = errors.New("duplicate_sku")
	ErrInvalidName        = errors.New("invalid_name")
	ErrInvalidSKU         = errors.New("invalid_sku")
	ErrInvalidPrice       = errors.New("invalid_price")
	ErrServiceHasStock    = errors.New("service_has_stock")
	ErrUnknownCategory    = errors.New("unknown_category")
	ErrUnknownUnit        = errors.New("unknown_unit")
	ErrCategoryNotFound   = errors.New("category_not_found")
	ErrDuplicateCategory  = errors.New("duplicate_category")
	ErrDuplicateUnit      = errors.New("duplicate_unit")
	ErrBranchHasNoCatalog = errors.New("branch_has_no_catalog")
)

// StockProvisioner creates the zero-quantity stock rows that make a new
// product visible to the organization and all of its branches. It runs
// inside the product-creation transaction. Implemented by the stock
// service; wired through fx.
type StockProvisioner interface {
	EnsureProductRows(ctx context.Context, tx *gorm.DB, orgID, productID snowflake.ID, reorderLevel int64) error
}

type CreateProductRequest struct {
	SKU          string          `json:"sku" binding:"required"`
	Name         string          `json:"name" binding:"required"`
	CategoryID   snowflake.ID    `json:"category_id" binding:"required"`
	UnitID       snowflake.ID    `json:"unit_id" binding:"required"`
	BaseCost     decimal.Decimal `json:"base_cost"`
	SellingPrice decimal.Decimal `json:"selling_price" binding:"required"`
	IsService    bool            `json:"is_service"`
	ImageKey     string          `json:"image_key"`
	ReorderLevel int64           `json:"reorder_level"`
}

type UpdateProductRequest struct {
	SKU          *string          `json:"sku,omitempty"`
	Name         *string          `json:"name,omitempty"`
	CategoryID   *snowflake.ID    `json:"category_id,omitempty"`
	UnitID       *snowflake.ID    `json:"unit_id,omitempty"`
	BaseCost     *decimal.Decimal `json:"base_cost,omitempty"`
	SellingPrice *decimal.Decimal `json:"selling_price,omitempty"`
	ImageKey     *string          `json:"image_key,omitempty"`
	ReorderLevel *int64           `json:"reorder_level,omitempty"`
	IsAvailable  *bool            `json:"is_available,omitempty"`
}

type ListProductsRequest struct {
	// BranchViewID lets an organization caller view a specific branch's
	// quantities. Branch callers always see their own.
	BranchViewID       *snowflake.ID
	Search             string
	CategoryID         *snowflake.ID
	IncludeUnavailable bool
}

type Service interface {
	CreateProduct(ctx context.Context, p principal.Principal, req CreateProductRequest) (*Product, error)
	UpdateProduct(ctx context.Context, p principal.Principal, productID snowflake.ID, req UpdateProductRequest) (*Product, error)
	DeactivateProduct(ctx context.Context, p principal.Principal, productID snowflake.ID) error
	GetProduct(ctx context.Context, p principal.Principal, productID snowflake.ID) (*Product, error)

	// ListProducts returns the effective catalog for the caller: branch
	// callers get the parent organization's products joined to their own
	// stock rows, organization callers get their products with the main
	// location's quantities unless BranchViewID says otherwise.
	ListProducts(ctx context.Context, p principal.Principal, req ListProductsRequest) ([]EffectiveProduct, error)

	GetCategories(ctx context.Context, p principal.Principal) ([]Category, error)
	CreateCategory(ctx context.Context, p principal.Principal, name string) (*Category, error)
	GetUnits(ctx context.Context, p principal.Principal) ([]Unit, error)
	CreateUnit(ctx context.Context, p principal.Principal, name, abbreviation string) (*Unit, error)

	// EnsureDefaults seeds the default categories and units for a new
	// organization. Idempotent.
	EnsureDefaults(ctx context.Context, orgID snowflake.ID) error
}
