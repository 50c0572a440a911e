package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
)

type PaymentMethod string

const (
	PaymentCash         PaymentMethod = "cash"
	PaymentCard         PaymentMethod = "card"
	PaymentMobileMoney  PaymentMethod = "mobile_money"
	PaymentBankTransfer PaymentMethod = "bank_transfer"
)

func (m PaymentMethod) Valid() bool {
	switch m {
	case PaymentCash, PaymentCard, PaymentMobileMoney, PaymentBankTransfer:
		return true
	}
	return false
}

// Sale is one point-of-sale transaction. TenantID is the branch where
// it happened, TaxRate the tenant rate snapshotted at sale time. All
// amounts are VAT-inclusive in the tenant currency.
type Sale struct {
	ID            snowflake.ID    `gorm:"primaryKey" json:"id"`
	TenantID      snowflake.ID    `gorm:"not null;index:idx_sales_tenant_created" json:"tenant_id"`
	UserID        snowflake.ID    `gorm:"not null;index" json:"user_id"`
	Subtotal      decimal.Decimal `gorm:"type:decimal(20,2);not null" json:"subtotal"`
	Tax           decimal.Decimal `gorm:"type:decimal(20,2);not null" json:"tax"`
	Total         decimal.Decimal `gorm:"type:decimal(20,2);not null" json:"total"`
	TaxRate       float64         `gorm:"not null" json:"tax_rate"`
	Currency      string          `gorm:"size:3;not null" json:"currency"`
	PaymentMethod PaymentMethod   `gorm:"size:16;not null" json:"payment_method"`
	CustomerName  string          `gorm:"size:255" json:"customer_name,omitempty"`
	CustomerEmail string          `gorm:"size:255" json:"customer_email,omitempty"`
	CustomerPhone string          `gorm:"size:32" json:"customer_phone,omitempty"`
	EmailSent     bool            `gorm:"not null;default:false" json:"email_sent"`
	WhatsappSent  bool            `gorm:"not null;default:false" json:"whatsapp_sent"`
	CreatedAt     time.Time       `gorm:"index:idx_sales_tenant_created" json:"created_at"`
	UpdatedAt     time.Time       `json:"updated_at"`

	Items []SaleItem `gorm:"foreignKey:SaleID" json:"items,omitempty"`
}

func (Sale) TableName() string {
	return "sales"
}

// SaleItem snapshots the product at sale time. Variance is the signed
// difference between the charged price and the catalog price; Position
// preserves the caller's item order.
type SaleItem struct {
	ID              snowflake.ID    `gorm:"primaryKey" json:"id"`
	SaleID          snowflake.ID    `gorm:"not null;index" json:"sale_id"`
	ProductID       snowflake.ID    `gorm:"not null;index" json:"product_id"`
	SKU             string          `gorm:"size:64;not null" json:"sku"`
	Name            string          `gorm:"size:255;not null" json:"name"`
	Quantity        int64           `gorm:"not null" json:"quantity"`
	UnitPrice       decimal.Decimal `gorm:"type:decimal(20,2);not null" json:"unit_price"`
	SellingPrice    decimal.Decimal `gorm:"type:decimal(20,2);not null" json:"selling_price"`
	Variance        decimal.Decimal `gorm:"type:decimal(20,2);not null" json:"variance"`
	IsPriceOverride bool            `gorm:"not null;default:false" json:"is_price_override"`
	Position        int             `gorm:"not null" json:"position"`
	CreatedAt       time.Time       `json:"created_at"`
}

func (SaleItem) TableName() string {
	return "sale_items"
}
