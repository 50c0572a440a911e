package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
)

// Product belongs to the organization, never to a branch. Branches see
// it through their stock rows.
type Product struct {
	ID           snowflake.ID    `gorm:"primaryKey" json:"id"`
	TenantID     snowflake.ID    `gorm:"not null;index;uniqueIndex:ux_products_tenant_sku" json:"tenant_id"`
	SKU          string          `gorm:"size:64;not null;uniqueIndex:ux_products_tenant_sku" json:"sku"`
	Name         string          `gorm:"size:255;not null" json:"name"`
	CategoryID   snowflake.ID    `gorm:"not null;index" json:"category_id"`
	UnitID       snowflake.ID    `gorm:"not null" json:"unit_id"`
	BaseCost     decimal.Decimal `gorm:"type:decimal(20,2);not null" json:"base_cost"`
	SellingPrice decimal.Decimal `gorm:"type:decimal(20,2);not null" json:"selling_price"`
	IsService    bool            `gorm:"not null;default:false" json:"is_service"`
	ImageKey     string          `gorm:"size:255" json:"image_key,omitempty"`
	ReorderLevel int64           `gorm:"not null;default:0" json:"reorder_level"`
	IsAvailable  bool            `gorm:"not null;default:true" json:"is_available"`
	CreatedAt    time.Time       `json:"created_at"`
	UpdatedAt    time.Time       `json:"updated_at"`
}

func (Product) TableName() string {
	return "products"
}

type Category struct {
	ID        snowflake.ID `gorm:"primaryKey" json:"id"`
	TenantID  snowflake.ID `gorm:"not null;uniqueIndex:ux_categories_tenant_name" json:"tenant_id"`
	Name      string       `gorm:"size:128;not null;uniqueIndex:ux_categories_tenant_name" json:"name"`
	CreatedAt time.Time    `json:"created_at"`
	UpdatedAt time.Time    `json:"updated_at"`
}

func (Category) TableName() string {
	return "categories"
}

type Unit struct {
	ID           snowflake.ID `gorm:"primaryKey" json:"id"`
	TenantID     snowflake.ID `gorm:"not null;uniqueIndex:ux_units_tenant_name" json:"tenant_id"`
	Name         string       `gorm:"size:64;not null;uniqueIndex:ux_units_tenant_name" json:"name"`
	Abbreviation string       `gorm:"size:16" json:"abbreviation"`
	CreatedAt    time.Time    `json:"created_at"`
	UpdatedAt    time.Time    `json:"updated_at"`
}

func (Unit) TableName() string {
	return "units"
}

// EffectiveProduct is one row of a branch's effective catalog: the
// organization's product joined to the viewing branch's stock row.
type EffectiveProduct struct {
	Product
	Quantity          int64 `json:"quantity"`
	StockReorderLevel int64 `json:"stock_reorder_level"`
}
