package product

import (
	"context"
	"strings"

	"github.com/angelmondragon/ohya-backend/pkg/db/models"
	"gorm.io/gorm"
)

// ListFilter narrows catalog queries.
type ListFilter struct {
	Category        string
	Query           string
	IncludeInactive bool
}

// Repository wires together all product-related persistence helpers.
type Repository struct {
	db *gorm.DB
}

// NewRepository builds a repository tied to the provided GORM DB.
func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

// WithTx returns a repository bound to the provided transaction.
func (r *Repository) WithTx(tx *gorm.DB) *Repository {
	return &Repository{db: tx}
}

// FindByID loads the product with all of its variants regardless of state.
func (r *Repository) FindByID(ctx context.Context, id int64) (*models.Product, error) {
	var product models.Product
	err := r.db.WithContext(ctx).
		Preload("Variants", func(tx *gorm.DB) *gorm.DB { return tx.Order("id ASC") }).
		Where("id = ?", id).
		Take(&product).Error
	if err != nil {
		return nil, err
	}
	return &product, nil
}

// FindActive loads an active product with its active variants.
func (r *Repository) FindActive(ctx context.Context, id int64) (*models.Product, error) {
	var product models.Product
	err := r.db.WithContext(ctx).
		Preload("Variants", func(tx *gorm.DB) *gorm.DB {
			return tx.Where("active = ?", true).Order("id ASC")
		}).
		Where("id = ? AND active = ?", id, true).
		Take(&product).Error
	if err != nil {
		return nil, err
	}
	return &product, nil
}

// ActiveByIDs returns the active products among ids keyed by id.
func (r *Repository) ActiveByIDs(ctx context.Context, ids []int64) (map[int64]models.Product, error) {
	out := make(map[int64]models.Product, len(ids))
	if len(ids) == 0 {
		return out, nil
	}
	var rows []models.Product
	if err := r.db.WithContext(ctx).Where("id IN ? AND active = ?", ids, true).Find(&rows).Error; err != nil {
		return nil, err
	}
	for _, row := range rows {
		out[row.ID] = row
	}
	return out, nil
}

// List returns one page of products ordered by name plus the total match count.
func (r *Repository) List(ctx context.Context, filter ListFilter, offset, limit int) ([]models.Product, int64, error) {
	query := r.db.WithContext(ctx).Model(&models.Product{})
	if !filter.IncludeInactive {
		query = query.Where("active = ?", true)
	}
	if category := strings.TrimSpace(filter.Category); category != "" {
		query = query.Where("category = ?", category)
	}
	if q := strings.ToLower(strings.TrimSpace(filter.Query)); q != "" {
		like := "%" + q + "%"
		query = query.Where("(LOWER(name) LIKE ? OR LOWER(COALESCE(product_code, '')) LIKE ?)", like, like)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	var rows []models.Product
	if err := query.Order("name ASC").Order("id ASC").Offset(offset).Limit(limit).Find(&rows).Error; err != nil {
		return nil, 0, err
	}
	return rows, total, nil
}

// Categories lists the distinct categories of active products.
func (r *Repository) Categories(ctx context.Context) ([]string, error) {
	var categories []string
	err := r.db.WithContext(ctx).
		Model(&models.Product{}).
		Where("active = ? AND category IS NOT NULL AND category <> ''", true).
		Distinct().
		Order("category ASC").
		Pluck("category", &categories).Error
	if err != nil {
		return nil, err
	}
	return categories, nil
}

// CreateProduct inserts a new product row.
func (r *Repository) CreateProduct(ctx context.Context, product *models.Product) (*models.Product, error) {
	if err := r.db.WithContext(ctx).Omit("Variants").Create(product).Error; err != nil {
		return nil, err
	}
	return product, nil
}

// UpdateProduct updates an existing product row.
func (r *Repository) UpdateProduct(ctx context.Context, product *models.Product) (*models.Product, error) {
	if err := r.db.WithContext(ctx).Omit("Variants").Save(product).Error; err != nil {
		return nil, err
	}
	return product, nil
}

// SetActive flips the soft-delete flag.
func (r *Repository) SetActive(ctx context.Context, id int64, active bool) error {
	res := r.db.WithContext(ctx).Model(&models.Product{}).Where("id = ?", id).Update("active", active)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

// SetImage stores the upload reference of the product image.
func (r *Repository) SetImage(ctx context.Context, id int64, ref string) error {
	res := r.db.WithContext(ctx).Model(&models.Product{}).Where("id = ?", id).Update("image", ref)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

// CreateVariant inserts a variant row.
func (r *Repository) CreateVariant(ctx context.Context, variant *models.ProductVariant) (*models.ProductVariant, error) {
	if err := r.db.WithContext(ctx).Create(variant).Error; err != nil {
		return nil, err
	}
	return variant, nil
}

// DeactivateVariant soft-deletes a variant of the given product.
func (r *Repository) DeactivateVariant(ctx context.Context, productID, variantID int64) error {
	res := r.db.WithContext(ctx).
		Model(&models.ProductVariant{}).
		Where("id = ? AND product_id = ?", variantID, productID).
		Update("active", false)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}
