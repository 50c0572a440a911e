package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
)

type MovementReason string

const (
	ReasonSale    MovementReason = "sale"
	ReasonReceive MovementReason = "receive"
	ReasonAdjust  MovementReason = "adjust"
	ReasonReturn  MovementReason = "return"
)

func (r MovementReason) Valid() bool {
	switch r {
	case ReasonSale, ReasonReceive, ReasonAdjust, ReasonReturn:
		return true
	}
	return false
}

// BranchStock is one branch's quantity of one product. TenantID is the
// branch (or the organization itself for its main location).
type BranchStock struct {
	ID           snowflake.ID `gorm:"primaryKey" json:"id"`
	TenantID     snowflake.ID `gorm:"not null;uniqueIndex:ux_branch_stocks_tenant_product" json:"tenant_id"`
	ProductID    snowflake.ID `gorm:"not null;uniqueIndex:ux_branch_stocks_tenant_product;index" json:"product_id"`
	Quantity     int64        `gorm:"not null;default:0" json:"quantity"`
	ReorderLevel int64        `gorm:"not null;default:0" json:"reorder_level"`
	CreatedAt    time.Time    `json:"created_at"`
	UpdatedAt    time.Time    `json:"updated_at"`
}

func (BranchStock) TableName() string {
	return "branch_stocks"
}

// StockMovement is append-only; the stock row is its running sum.
type StockMovement struct {
	ID        snowflake.ID   `gorm:"primaryKey" json:"id"`
	TenantID  snowflake.ID   `gorm:"not null;index:idx_stock_movements_tenant_product" json:"tenant_id"`
	ProductID snowflake.ID   `gorm:"not null;index:idx_stock_movements_tenant_product" json:"product_id"`
	Delta     int64          `gorm:"not null" json:"delta"`
	Reason    MovementReason `gorm:"size:16;not null" json:"reason"`
	Reference string         `gorm:"size:64;index" json:"reference,omitempty"`
	ActorID   snowflake.ID   `gorm:"not null" json:"actor_id"`
	CreatedAt time.Time      `json:"created_at"`
}

func (StockMovement) TableName() string {
	return "stock_movements"
}

// LowStockRow joins a stock row at or below its reorder level with the
// product it belongs to.
type LowStockRow struct {
	ProductID    snowflake.ID `json:"product_id"`
	SKU          string       `json:"sku"`
	Name         string       `json:"name"`
	Quantity     int64        `json:"quantity"`
	ReorderLevel int64        `json:"reorder_level"`
}
