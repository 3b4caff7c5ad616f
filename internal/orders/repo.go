package orders

import (
	"context"
	"errors"
	"time"

	"github.com/angelmondragon/ohya-backend/pkg/db"
	"github.com/angelmondragon/ohya-backend/pkg/db/models"
	"github.com/angelmondragon/ohya-backend/pkg/enums"
	"github.com/angelmondragon/ohya-backend/pkg/pagination"
	"gorm.io/gorm"
)

// errNumberTaken is returned by CreateOrder when the order number collides
// with an existing row.
var errNumberTaken = errors.New("order number already in use")

type repository struct {
	db *gorm.DB
}

// NewRepository builds an orders repository bound to the provided DB.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) FindActiveProduct(ctx context.Context, productID int64) (*models.Product, error) {
	var product models.Product
	err := r.db.WithContext(ctx).
		Where("id = ? AND active = ?", productID, true).
		Take(&product).Error
	if err != nil {
		return nil, err
	}
	return &product, nil
}

// DecrementStock removes qty units only while enough stock remains. It reports
// false when the guard rejected the update.
func (r *repository) DecrementStock(ctx context.Context, productID int64, qty int) (bool, error) {
	res := r.db.WithContext(ctx).Exec(
		`UPDATE products SET stock = stock - ?, updated_at = ? WHERE id = ? AND stock >= ?`,
		qty, time.Now().UTC(), productID, qty,
	)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

func (r *repository) RestoreStock(ctx context.Context, productID int64, qty int) error {
	return r.db.WithContext(ctx).Exec(
		`UPDATE products SET stock = stock + ?, updated_at = ? WHERE id = ?`,
		qty, time.Now().UTC(), productID,
	).Error
}

func (r *repository) ProductsByIDs(ctx context.Context, ids []int64) (map[int64]models.Product, error) {
	out := make(map[int64]models.Product, len(ids))
	if len(ids) == 0 {
		return out, nil
	}
	var rows []models.Product
	if err := r.db.WithContext(ctx).Where("id IN ?", ids).Find(&rows).Error; err != nil {
		return nil, err
	}
	for _, row := range rows {
		out[row.ID] = row
	}
	return out, nil
}

func (r *repository) UsersByIDs(ctx context.Context, ids []int64) (map[int64]models.User, error) {
	out := make(map[int64]models.User, len(ids))
	if len(ids) == 0 {
		return out, nil
	}
	var rows []models.User
	if err := r.db.WithContext(ctx).Select("id", "name", "email").Where("id IN ?", ids).Find(&rows).Error; err != nil {
		return nil, err
	}
	for _, row := range rows {
		out[row.ID] = row
	}
	return out, nil
}

func (r *repository) CreateOrder(ctx context.Context, order *models.Order) error {
	err := r.db.WithContext(ctx).Omit("Items").Create(order).Error
	if db.IsUniqueViolation(err, "") {
		return errNumberTaken
	}
	return err
}

func (r *repository) CreateOrderItems(ctx context.Context, items []models.OrderItem) error {
	if len(items) == 0 {
		return nil
	}
	return r.db.WithContext(ctx).Create(&items).Error
}

func (r *repository) FindOrder(ctx context.Context, id int64) (*models.Order, error) {
	var order models.Order
	err := r.db.WithContext(ctx).
		Preload("Items", func(tx *gorm.DB) *gorm.DB { return tx.Order("id ASC") }).
		Where("id = ?", id).
		Take(&order).Error
	if err != nil {
		return nil, err
	}
	return &order, nil
}

// ListOrders returns newest orders first with their items, reading one row
// past the limit so callers can detect another page.
func (r *repository) ListOrders(ctx context.Context, filters ListFilters, params pagination.Params) ([]models.Order, error) {
	query := r.db.WithContext(ctx).
		Model(&models.Order{}).
		Preload("Items", func(tx *gorm.DB) *gorm.DB { return tx.Order("id ASC") })

	if filters.UserID != nil {
		query = query.Where("user_id = ?", *filters.UserID)
	}
	if filters.Status != nil {
		query = query.Where("status = ?", *filters.Status)
	}
	if cursor, err := pagination.ParseCursor(params.Cursor); err != nil {
		return nil, err
	} else if cursor != nil {
		query = query.Where("id < ?", cursor.ID)
	}

	var orders []models.Order
	if err := query.Order("id DESC").Limit(pagination.LimitWithBuffer(params.Limit)).Find(&orders).Error; err != nil {
		return nil, err
	}
	return orders, nil
}

// UpdateStatus moves the order from one status to another and reports false
// when the row no longer holds the expected status.
func (r *repository) UpdateStatus(ctx context.Context, id int64, from, to enums.OrderStatus) (bool, error) {
	res := r.db.WithContext(ctx).
		Model(&models.Order{}).
		Where("id = ? AND status = ?", id, from).
		Updates(map[string]any{"status": to, "updated_at": time.Now().UTC()})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

// DeleteOrder removes the items before the header.
func (r *repository) DeleteOrder(ctx context.Context, id int64) error {
	if err := r.db.WithContext(ctx).Where("order_id = ?", id).Delete(&models.OrderItem{}).Error; err != nil {
		return err
	}
	res := r.db.WithContext(ctx).Where("id = ?", id).Delete(&models.Order{})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}
