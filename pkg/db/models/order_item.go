package models

import "github.com/shopspring/decimal"

// OrderItem is an immutable line of an order. Name and price are copied from
// the product at purchase time.
type OrderItem struct {
	ID          int64           `gorm:"column:id;primaryKey;autoIncrement"`
	OrderID     int64           `gorm:"column:order_id;not null;index"`
	ProductID   int64           `gorm:"column:product_id;not null;index"`
	ProductName string          `gorm:"column:product_name;not null"`
	Price       decimal.Decimal `gorm:"column:price;type:numeric(12,2);not null"`
	Quantity    int             `gorm:"column:quantity;not null"`
}
