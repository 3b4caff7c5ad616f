package orders

import (
	"context"

	"github.com/angelmondragon/ohya-backend/pkg/db/models"
	"github.com/angelmondragon/ohya-backend/pkg/enums"
	"github.com/angelmondragon/ohya-backend/pkg/pagination"
	"gorm.io/gorm"
)

// ListFilters narrows order queries.
type ListFilters struct {
	UserID *int64
	Status *enums.OrderStatus
}

// Repository exposes persistence helpers for orders and the product stock they
// hold.
type Repository interface {
	WithTx(tx *gorm.DB) Repository

	FindActiveProduct(ctx context.Context, productID int64) (*models.Product, error)
	DecrementStock(ctx context.Context, productID int64, qty int) (bool, error)
	RestoreStock(ctx context.Context, productID int64, qty int) error
	ProductsByIDs(ctx context.Context, ids []int64) (map[int64]models.Product, error)
	UsersByIDs(ctx context.Context, ids []int64) (map[int64]models.User, error)

	CreateOrder(ctx context.Context, order *models.Order) error
	CreateOrderItems(ctx context.Context, items []models.OrderItem) error
	FindOrder(ctx context.Context, id int64) (*models.Order, error)
	ListOrders(ctx context.Context, filters ListFilters, params pagination.Params) ([]models.Order, error)
	UpdateStatus(ctx context.Context, id int64, from, to enums.OrderStatus) (bool, error)
	DeleteOrder(ctx context.Context, id int64) error
}
