package models

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/angelmondragon/ohya-backend/pkg/enums"
)

// Order is the header row of one checkout. UserID is nullable for imported
// legacy orders.
type Order struct {
	ID              int64             `gorm:"column:id;primaryKey;autoIncrement"`
	UserID          *int64            `gorm:"column:user_id;index"`
	OrderNumber     string            `gorm:"column:order_number;not null;uniqueIndex"`
	Total           decimal.Decimal   `gorm:"column:total;type:numeric(12,2);not null"`
	Status          enums.OrderStatus `gorm:"column:status;type:text;not null;default:'pending';index"`
	BankProof       *string           `gorm:"column:bank_proof"`
	ShippingName    string            `gorm:"column:shipping_name;not null"`
	ShippingPhone   string            `gorm:"column:shipping_phone;not null"`
	ShippingAddress string            `gorm:"column:shipping_address;not null"`
	Items           []OrderItem       `gorm:"foreignKey:OrderID"`
	CreatedAt       time.Time         `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt       time.Time         `gorm:"column:updated_at;autoUpdateTime"`
}
