package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// ProductVariant is an optional option axis (size, color, ...) on a product.
type ProductVariant struct {
	ID            int64           `gorm:"column:id;primaryKey;autoIncrement"`
	ProductID     int64           `gorm:"column:product_id;not null;index"`
	Name          string          `gorm:"column:name;not null"`
	Value         string          `gorm:"column:value;not null"`
	PriceModifier decimal.Decimal `gorm:"column:price_modifier;type:numeric(12,2);not null;default:0"`
	Stock         int             `gorm:"column:stock;not null;default:0"`
	SKU           *string         `gorm:"column:sku;uniqueIndex"`
	Active        bool            `gorm:"column:active;not null;default:true"`
	CreatedAt     time.Time       `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt     time.Time       `gorm:"column:updated_at;autoUpdateTime"`
}
