package domain

import (
	"context"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

type EffectiveFilter struct {
	Search             string
	CategoryID         *snowflake.ID
	IncludeUnavailable bool
}

type Repository interface {
	WithTx(tx *gorm.DB) Repository

	CreateProduct(ctx context.Context, product *Product) error
	GetProduct(ctx context.Context, orgID, productID snowflake.ID) (*Product, error)
	UpdateProduct(ctx context.Context, product *Product) error
	ListProducts(ctx context.Context, orgID snowflake.ID) ([]Product, error)

	// ListEffective joins the organization's products against one
	// branch's stock rows. stockTenantID is the branch whose quantities
	// the caller views; for the organization itself it is orgID.
	ListEffective(ctx context.Context, orgID, stockTenantID snowflake.ID, filter EffectiveFilter) ([]EffectiveProduct, error)

	CreateCategory(ctx context.Context, category *Category) error
	GetCategory(ctx context.Context, orgID, categoryID snowflake.ID) (*Category, error)
	ListCategories(ctx context.Context, orgID snowflake.ID) ([]Category, error)

	CreateUnit(ctx context.Context, unit *Unit) error
	GetUnit(ctx context.Context, orgID, unitID snowflake.ID) (*Unit, error)
	ListUnits(ctx context.Context, orgID snowflake.ID) ([]Unit, error)
}
