package domain

import (
	"context"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"

	"github.com/dukahub/dukahub/pkg/db/pagination"
)

type Repository interface {
	WithTx(tx *gorm.DB) Repository

	// GetForUpdate loads the stock row under SELECT ... FOR UPDATE. Only
	// meaningful inside a transaction.
	GetForUpdate(ctx context.Context, branchID, productID snowflake.ID) (*BranchStock, error)
	Get(ctx context.Context, branchID, productID snowflake.ID) (*BranchStock, error)
	Save(ctx context.Context, stock *BranchStock) error

	// CreateRows inserts zero-quantity rows, ignoring ones that exist.
	CreateRows(ctx context.Context, rows []BranchStock) error

	CreateMovement(ctx context.Context, movement *StockMovement) error
	ListMovements(ctx context.Context, req ListMovementsRequest) ([]StockMovement, *pagination.PageInfo, error)
	LowStock(ctx context.Context, branchID snowflake.ID) ([]LowStockRow, error)
}
