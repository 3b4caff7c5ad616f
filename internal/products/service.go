package product

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/angelmondragon/ohya-backend/internal/uploads"
	"github.com/angelmondragon/ohya-backend/pkg/auth"
	"github.com/angelmondragon/ohya-backend/pkg/db"
	"github.com/angelmondragon/ohya-backend/pkg/db/models"
	"github.com/angelmondragon/ohya-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/ohya-backend/pkg/errors"
	"github.com/angelmondragon/ohya-backend/pkg/logger"
	"github.com/angelmondragon/ohya-backend/pkg/pagination"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

const (
	maxNameLength = 200
	maxCodeLength = 64
)

// Service exposes the public catalog and admin product management.
type Service interface {
	List(ctx context.Context, actor auth.Actor, input ListProductsInput) (*ProductListResult, error)
	Get(ctx context.Context, actor auth.Actor, productID int64) (*ProductDTO, error)
	Categories(ctx context.Context) ([]string, error)
	Create(ctx context.Context, actor auth.Actor, input CreateProductInput) (*ProductDTO, error)
	Update(ctx context.Context, actor auth.Actor, productID int64, input UpdateProductInput) (*ProductDTO, error)
	Deactivate(ctx context.Context, actor auth.Actor, productID int64) error
	SetImage(ctx context.Context, actor auth.Actor, productID int64, file uploads.File) (*ProductDTO, error)
	CreateVariant(ctx context.Context, actor auth.Actor, productID int64, input CreateVariantInput) (*VariantDTO, error)
	DeactivateVariant(ctx context.Context, actor auth.Actor, productID, variantID int64) error
}

// ListProductsInput captures catalog filters and offset paging.
type ListProductsInput struct {
	Category        string
	Query           string
	IncludeInactive bool
	Page            int
	PageSize        int
}

// CreateProductInput holds the validated payload to create a product.
type CreateProductInput struct {
	ProductCode *string          `json:"productCode"`
	Name        string           `json:"name" validate:"required,max=200"`
	Description *string          `json:"description"`
	Price       *decimal.Decimal `json:"price" validate:"required,gte=0"`
	Barcode     *string          `json:"barcode"`
	Category    *string          `json:"category"`
	Stock       int              `json:"stock" validate:"min=0"`
}

// UpdateProductInput holds optional mutation values for a product.
type UpdateProductInput struct {
	ProductCode *string          `json:"productCode"`
	Name        *string          `json:"name"`
	Description *string          `json:"description"`
	Price       *decimal.Decimal `json:"price" validate:"omitempty,gte=0"`
	Barcode     *string          `json:"barcode"`
	Category    *string          `json:"category"`
	Stock       *int             `json:"stock"`
	Active      *bool            `json:"active"`
}

// CreateVariantInput describes a new product option.
type CreateVariantInput struct {
	Name          string           `json:"name" validate:"required,max=100"`
	Value         string           `json:"value" validate:"required,max=100"`
	PriceModifier *decimal.Decimal `json:"priceModifier"`
	Stock         int              `json:"stock" validate:"min=0"`
	SKU           *string          `json:"sku"`
}

type imageStore interface {
	Store(ctx context.Context, kind enums.UploadKind, file uploads.File) (string, error)
	Remove(ctx context.Context, ref string) error
}

type service struct {
	repo   *Repository
	images imageStore
	logg   *logger.Logger
}

// NewService constructs a product service instance.
func NewService(repo *Repository, images imageStore, logg *logger.Logger) (Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("product repository required")
	}
	if images == nil {
		return nil, fmt.Errorf("image store required")
	}
	if logg == nil {
		return nil, fmt.Errorf("logger required")
	}
	return &service{repo: repo, images: images, logg: logg}, nil
}

func (s *service) List(ctx context.Context, actor auth.Actor, input ListProductsInput) (*ProductListResult, error) {
	if input.IncludeInactive && !actor.IsAdmin() {
		return nil, pkgerrors.New(pkgerrors.CodeForbidden, "admin role required to list inactive products")
	}
	page := input.Page
	if page <= 0 {
		page = 1
	}
	size := pagination.NormalizeLimit(input.PageSize)

	rows, total, err := s.repo.List(ctx, ListFilter{
		Category:        input.Category,
		Query:           input.Query,
		IncludeInactive: input.IncludeInactive,
	}, (page-1)*size, size)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeStorage, err, "list products")
	}

	result := &ProductListResult{
		Products: make([]ProductDTO, 0, len(rows)),
		Total:    total,
		Page:     page,
		PageSize: size,
	}
	for _, row := range rows {
		result.Products = append(result.Products, toProductDTO(row))
	}
	return result, nil
}

// Get returns an active product. Admins also see inactive products and
// variants.
func (s *service) Get(ctx context.Context, actor auth.Actor, productID int64) (*ProductDTO, error) {
	var (
		product *models.Product
		err     error
	)
	if actor.IsAdmin() {
		product, err = s.repo.FindByID(ctx, productID)
	} else {
		product, err = s.repo.FindActive(ctx, productID)
	}
	if err != nil {
		return nil, notFoundOrStorage(err, "load product")
	}
	dto := toProductDTO(*product)
	return &dto, nil
}

func (s *service) Categories(ctx context.Context) ([]string, error) {
	categories, err := s.repo.Categories(ctx)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeStorage, err, "list categories")
	}
	if categories == nil {
		categories = []string{}
	}
	return categories, nil
}

func (s *service) Create(ctx context.Context, actor auth.Actor, input CreateProductInput) (*ProductDTO, error) {
	if err := requireAdmin(actor); err != nil {
		return nil, err
	}

	name := strings.TrimSpace(input.Name)
	details := map[string]string{}
	if name == "" {
		details["name"] = "is required"
	} else if len(name) > maxNameLength {
		details["name"] = fmt.Sprintf("must be at most %d characters", maxNameLength)
	}
	if input.Price == nil {
		details["price"] = "is required"
	} else if input.Price.IsNegative() {
		details["price"] = "must not be negative"
	}
	if input.Stock < 0 {
		details["stock"] = "must not be negative"
	}
	code := trimmedOrNil(input.ProductCode)
	if code != nil && len(*code) > maxCodeLength {
		details["productCode"] = fmt.Sprintf("must be at most %d characters", maxCodeLength)
	}
	if len(details) > 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "validation failed").WithDetails(details)
	}

	product := &models.Product{
		ProductCode: code,
		Name:        name,
		Description: trimmedOrNil(input.Description),
		Price:       input.Price.Round(2),
		Barcode:     trimmedOrNil(input.Barcode),
		Category:    trimmedOrNil(input.Category),
		Stock:       input.Stock,
		Active:      true,
	}
	if _, err := s.repo.CreateProduct(ctx, product); err != nil {
		return nil, writeError(err, "create product")
	}

	s.logg.Info(s.logg.WithField(ctx, "product_id", product.ID), "product created")
	dto := toProductDTO(*product)
	return &dto, nil
}

func (s *service) Update(ctx context.Context, actor auth.Actor, productID int64, input UpdateProductInput) (*ProductDTO, error) {
	if err := requireAdmin(actor); err != nil {
		return nil, err
	}

	product, err := s.repo.FindByID(ctx, productID)
	if err != nil {
		return nil, notFoundOrStorage(err, "load product")
	}
	if err := applyUpdateToProduct(product, input); err != nil {
		return nil, err
	}
	if _, err := s.repo.UpdateProduct(ctx, product); err != nil {
		return nil, writeError(err, "update product")
	}

	s.logg.Info(s.logg.WithField(ctx, "product_id", product.ID), "product updated")
	dto := toProductDTO(*product)
	return &dto, nil
}

// Deactivate hides the product from the catalog. Order items keep pointing
// at the row.
func (s *service) Deactivate(ctx context.Context, actor auth.Actor, productID int64) error {
	if err := requireAdmin(actor); err != nil {
		return err
	}
	if err := s.repo.SetActive(ctx, productID, false); err != nil {
		return notFoundOrStorage(err, "deactivate product")
	}
	s.logg.Info(s.logg.WithField(ctx, "product_id", productID), "product deactivated")
	return nil
}

func (s *service) SetImage(ctx context.Context, actor auth.Actor, productID int64, file uploads.File) (*ProductDTO, error) {
	if err := requireAdmin(actor); err != nil {
		return nil, err
	}
	product, err := s.repo.FindByID(ctx, productID)
	if err != nil {
		return nil, notFoundOrStorage(err, "load product")
	}

	ref, err := s.images.Store(ctx, enums.UploadKindProductImage, file)
	if err != nil {
		return nil, err
	}
	if err := s.repo.SetImage(ctx, productID, ref); err != nil {
		if rmErr := s.images.Remove(ctx, ref); rmErr != nil {
			s.logg.Warn(s.logg.WithField(ctx, "upload_ref", ref), "failed to remove orphaned product image")
		}
		return nil, notFoundOrStorage(err, "set product image")
	}

	if product.Image != nil && *product.Image != "" && *product.Image != ref {
		if err := s.images.Remove(ctx, *product.Image); err != nil {
			s.logg.Warn(s.logg.WithField(ctx, "upload_ref", *product.Image), "failed to remove previous product image")
		}
	}

	product.Image = &ref
	dto := toProductDTO(*product)
	return &dto, nil
}

func (s *service) CreateVariant(ctx context.Context, actor auth.Actor, productID int64, input CreateVariantInput) (*VariantDTO, error) {
	if err := requireAdmin(actor); err != nil {
		return nil, err
	}

	name := strings.TrimSpace(input.Name)
	value := strings.TrimSpace(input.Value)
	details := map[string]string{}
	if name == "" {
		details["name"] = "is required"
	}
	if value == "" {
		details["value"] = "is required"
	}
	if input.Stock < 0 {
		details["stock"] = "must not be negative"
	}
	if len(details) > 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "validation failed").WithDetails(details)
	}

	if _, err := s.repo.FindByID(ctx, productID); err != nil {
		return nil, notFoundOrStorage(err, "load product")
	}

	modifier := decimal.Zero
	if input.PriceModifier != nil {
		modifier = input.PriceModifier.Round(2)
	}
	variant := &models.ProductVariant{
		ProductID:     productID,
		Name:          name,
		Value:         value,
		PriceModifier: modifier,
		Stock:         input.Stock,
		SKU:           trimmedOrNil(input.SKU),
		Active:        true,
	}
	if _, err := s.repo.CreateVariant(ctx, variant); err != nil {
		return nil, writeError(err, "create variant")
	}
	dto := toVariantDTO(*variant)
	return &dto, nil
}

func (s *service) DeactivateVariant(ctx context.Context, actor auth.Actor, productID, variantID int64) error {
	if err := requireAdmin(actor); err != nil {
		return err
	}
	if err := s.repo.DeactivateVariant(ctx, productID, variantID); err != nil {
		return notFoundOrStorage(err, "deactivate variant")
	}
	return nil
}

func applyUpdateToProduct(product *models.Product, input UpdateProductInput) error {
	details := map[string]string{}

	if input.Name != nil {
		name := strings.TrimSpace(*input.Name)
		switch {
		case name == "":
			details["name"] = "must not be empty"
		case len(name) > maxNameLength:
			details["name"] = fmt.Sprintf("must be at most %d characters", maxNameLength)
		default:
			product.Name = name
		}
	}
	if input.Price != nil {
		if input.Price.IsNegative() {
			details["price"] = "must not be negative"
		} else {
			product.Price = input.Price.Round(2)
		}
	}
	if input.Stock != nil {
		if *input.Stock < 0 {
			details["stock"] = "must not be negative"
		} else {
			product.Stock = *input.Stock
		}
	}
	if input.ProductCode != nil {
		product.ProductCode = trimmedOrNil(input.ProductCode)
	}
	if input.Description != nil {
		product.Description = trimmedOrNil(input.Description)
	}
	if input.Barcode != nil {
		product.Barcode = trimmedOrNil(input.Barcode)
	}
	if input.Category != nil {
		product.Category = trimmedOrNil(input.Category)
	}
	if input.Active != nil {
		product.Active = *input.Active
	}

	if len(details) > 0 {
		return pkgerrors.New(pkgerrors.CodeValidation, "validation failed").WithDetails(details)
	}
	return nil
}

func requireAdmin(actor auth.Actor) error {
	if !actor.IsAuthenticated() {
		return pkgerrors.New(pkgerrors.CodeUnauthorized, "authentication required")
	}
	if !actor.IsAdmin() {
		return pkgerrors.New(pkgerrors.CodeForbidden, "admin role required")
	}
	return nil
}

func notFoundOrStorage(err error, action string) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return pkgerrors.New(pkgerrors.CodeNotFound, "product not found")
	}
	return pkgerrors.Wrap(pkgerrors.CodeStorage, err, action)
}

func writeError(err error, action string) error {
	if db.IsUniqueViolation(err, "") {
		return pkgerrors.Wrap(pkgerrors.CodeConflict, err, "product code or sku already exists")
	}
	return pkgerrors.Wrap(pkgerrors.CodeStorage, err, action)
}

func trimmedOrNil(value *string) *string {
	if value == nil {
		return nil
	}
	trimmed := strings.TrimSpace(*value)
	if trimmed == "" {
		return nil
	}
	return &trimmed
}
