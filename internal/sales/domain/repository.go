package domain

import (
	"context"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"

	"github.com/dukahub/dukahub/pkg/db/pagination"
)

type Repository interface {
	WithTx(tx *gorm.DB) Repository

	CreateSale(ctx context.Context, sale *Sale) error
	GetSale(ctx context.Context, saleID snowflake.ID) (*Sale, error)
	ListSales(ctx context.Context, tenantIDs []snowflake.ID, req ListSalesRequest) ([]Sale, *pagination.PageInfo, error)
	UpdateFlags(ctx context.Context, saleID snowflake.ID, emailSent, whatsappSent *bool) error
}
