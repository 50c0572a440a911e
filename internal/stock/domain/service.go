// Package domain defines the stock contracts: per-branch quantities,
// the append-only movement ledger, and the locked mutation protocol
// sales and receiving share.
package domain

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"

	"github.com/dukahub/dukahub/pkg/db/pagination"
	"github.com/dukahub/dukahub/pkg/principal"
)

var (
	ErrStockNotFound     = errors.New("stock_not_found")
	ErrInsufficientStock = errors.New("insufficient_stock")
	ErrNotTracked        = errors.New("not_tracked")
	ErrInvalidReason     = errors.New("invalid_reason")
	ErrInvalidDelta      = errors.New("invalid_delta")
	ErrForbidden         = errors.New("forbidden")
)

type ApplyMovementRequest struct {
	BranchID  snowflake.ID   `json:"branch_id"`
	ProductID snowflake.ID   `json:"product_id" binding:"required"`
	Delta     int64          `json:"delta" binding:"required"`
	Reason    MovementReason `json:"reason" binding:"required"`
	Reference string         `json:"reference"`
}

// MovementInput is one line of a bulk mutation. Bulk callers own the
// surrounding transaction.
type MovementInput struct {
	ProductID snowflake.ID
	Delta     int64
	Reason    MovementReason
	Reference string
}

type ListMovementsRequest struct {
	BranchID  snowflake.ID
	ProductID *snowflake.ID
	From      *time.Time
	To        *time.Time
	Page      pagination.Pagination
}

type Service interface {
	// ApplyMovement locks the stock row, applies the delta, and appends
	// the movement, all in one transaction. Service products are
	// rejected with ErrNotTracked, quantities never go negative.
	ApplyMovement(ctx context.Context, p principal.Principal, req ApplyMovementRequest) (*BranchStock, error)

	// BulkApply applies several movements inside the caller's
	// transaction, locking rows in product-id order so concurrent sales
	// cannot deadlock each other.
	BulkApply(ctx context.Context, tx *gorm.DB, orgID, branchID, actorID snowflake.ID, movements []MovementInput) error

	GetQuantity(ctx context.Context, p principal.Principal, branchID, productID snowflake.ID) (*BranchStock, error)
	ListMovements(ctx context.Context, p principal.Principal, req ListMovementsRequest) ([]StockMovement, *pagination.PageInfo, error)
	LowStock(ctx context.Context, p principal.Principal, branchID snowflake.ID) ([]LowStockRow, error)

	// EnsureBranchRows backfills zero-quantity rows for every product of
	// the organization when a branch is created.
	EnsureBranchRows(ctx context.Context, orgID, branchID snowflake.ID) error

	// EnsureProductRows creates zero-quantity rows in the organization
	// and all of its branches for a new product. Runs inside the
	// product-creation transaction.
	EnsureProductRows(ctx context.Context, tx *gorm.DB, orgID, productID snowflake.ID, reorderLevel int64) error
}
