package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Product is a sellable catalog entry. Deletion is a soft deactivation.
type Product struct {
	ID          int64            `gorm:"column:id;primaryKey;autoIncrement"`
	ProductCode *string          `gorm:"column:product_code;uniqueIndex"`
	Name        string           `gorm:"column:name;not null"`
	Description *string          `gorm:"column:description"`
	Price       decimal.Decimal  `gorm:"column:price;type:numeric(12,2);not null"`
	Barcode     *string          `gorm:"column:barcode"`
	Category    *string          `gorm:"column:category;index"`
	Image       *string          `gorm:"column:image"`
	Stock       int              `gorm:"column:stock;not null;default:0"`
	Active      bool             `gorm:"column:active;not null;default:true"`
	Variants    []ProductVariant `gorm:"foreignKey:ProductID"`
	CreatedAt   time.Time        `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt   time.Time        `gorm:"column:updated_at;autoUpdateTime"`
}
