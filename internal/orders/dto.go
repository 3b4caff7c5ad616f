package orders

import (
	"time"

	"github.com/angelmondragon/ohya-backend/internal/uploads"
	"github.com/angelmondragon/ohya-backend/pkg/db/models"
	"github.com/angelmondragon/ohya-backend/pkg/enums"
	"github.com/shopspring/decimal"
)

// LineInput is one requested line as submitted by the client.
type LineInput struct {
	ProductID int64            `json:"productId"`
	Quantity  int              `json:"quantity"`
	Price     *decimal.Decimal `json:"price"`
}

// ShippingInput carries the delivery contact for an order.
type ShippingInput struct {
	Name    string `json:"name"`
	Phone   string `json:"phone"`
	Address string `json:"address"`
}

// CreateOrderInput is the payload accepted by Service.Create. Proof is the
// optional payment screenshot still to be stored.
type CreateOrderInput struct {
	Items    []LineInput      `json:"items"`
	Total    *decimal.Decimal `json:"total"`
	Shipping ShippingInput    `json:"shipping"`
	Proof    *uploads.File    `json:"-"`
}

// CreateOrderResult is returned once an order is committed.
type CreateOrderResult struct {
	OrderID     int64             `json:"orderId"`
	OrderNumber string            `json:"orderNumber"`
	Total       decimal.Decimal   `json:"total"`
	Status      enums.OrderStatus `json:"status"`
}

// ListParams are the filters a caller may pass to Service.List.
type ListParams struct {
	Status *enums.OrderStatus
	UserID *int64
	Limit  int
	Cursor string
}

// OrderItemDTO is a stored line plus the product's current catalog data.
type OrderItemDTO struct {
	ID                 int64           `json:"id"`
	ProductID          int64           `json:"productId"`
	ProductName        string          `json:"productName"`
	Price              decimal.Decimal `json:"price"`
	Quantity           int             `json:"quantity"`
	Subtotal           decimal.Decimal `json:"subtotal"`
	CurrentProductName *string         `json:"currentProductName,omitempty"`
	ProductCode        *string         `json:"productCode,omitempty"`
}

// OrderDTO is the API shape of an order with its items.
type OrderDTO struct {
	ID              int64             `json:"id"`
	OrderNumber     string            `json:"orderNumber"`
	UserID          *int64            `json:"userId,omitempty"`
	CustomerName    *string           `json:"customerName,omitempty"`
	CustomerEmail   *string           `json:"customerEmail,omitempty"`
	Total           decimal.Decimal   `json:"total"`
	Status          enums.OrderStatus `json:"status"`
	HasBankProof    bool              `json:"hasBankProof"`
	ShippingName    string            `json:"shippingName"`
	ShippingPhone   string            `json:"shippingPhone"`
	ShippingAddress string            `json:"shippingAddress"`
	Items           []OrderItemDTO    `json:"items"`
	CreatedAt       time.Time         `json:"createdAt"`
	UpdatedAt       time.Time         `json:"updatedAt"`
}

// OrderList wraps a page of orders plus the next page cursor.
type OrderList struct {
	Orders     []OrderDTO `json:"orders"`
	NextCursor string     `json:"nextCursor,omitempty"`
}

// StockShortage describes one line that could not be fulfilled.
type StockShortage struct {
	ProductID int64 `json:"productId"`
	Requested int   `json:"requested"`
	Available int   `json:"available"`
}

func toOrderDTO(order models.Order, products map[int64]models.Product, users map[int64]models.User) OrderDTO {
	dto := OrderDTO{
		ID:              order.ID,
		OrderNumber:     order.OrderNumber,
		UserID:          order.UserID,
		Total:           order.Total,
		Status:          order.Status,
		HasBankProof:    order.BankProof != nil && *order.BankProof != "",
		ShippingName:    order.ShippingName,
		ShippingPhone:   order.ShippingPhone,
		ShippingAddress: order.ShippingAddress,
		Items:           make([]OrderItemDTO, 0, len(order.Items)),
		CreatedAt:       order.CreatedAt,
		UpdatedAt:       order.UpdatedAt,
	}
	if users != nil && order.UserID != nil {
		if user, ok := users[*order.UserID]; ok {
			name, email := user.Name, user.Email
			dto.CustomerName = &name
			dto.CustomerEmail = &email
		}
	}
	for _, item := range order.Items {
		line := OrderItemDTO{
			ID:          item.ID,
			ProductID:   item.ProductID,
			ProductName: item.ProductName,
			Price:       item.Price,
			Quantity:    item.Quantity,
			Subtotal:    item.Price.Mul(decimal.NewFromInt(int64(item.Quantity))),
		}
		if product, ok := products[item.ProductID]; ok {
			name := product.Name
			line.CurrentProductName = &name
			line.ProductCode = product.ProductCode
		}
		dto.Items = append(dto.Items, line)
	}
	return dto
}
