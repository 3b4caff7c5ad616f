package product

import (
	"time"

	"github.com/angelmondragon/ohya-backend/pkg/db/models"
	"github.com/shopspring/decimal"
)

// ProductDTO is the catalog payload returned to clients.
type ProductDTO struct {
	ID          int64           `json:"id"`
	ProductCode *string         `json:"productCode,omitempty"`
	Name        string          `json:"name"`
	Description *string         `json:"description,omitempty"`
	Price       decimal.Decimal `json:"price"`
	Barcode     *string         `json:"barcode,omitempty"`
	Category    *string         `json:"category,omitempty"`
	Image       *string         `json:"image,omitempty"`
	Stock       int             `json:"stock"`
	Active      bool            `json:"active"`
	Variants    []VariantDTO    `json:"variants,omitempty"`
	CreatedAt   time.Time       `json:"createdAt"`
	UpdatedAt   time.Time       `json:"updatedAt"`
}

// VariantDTO exposes a product option and its price adjustment.
type VariantDTO struct {
	ID            int64           `json:"id"`
	Name          string          `json:"name"`
	Value         string          `json:"value"`
	PriceModifier decimal.Decimal `json:"priceModifier"`
	Stock         int             `json:"stock"`
	SKU           *string         `json:"sku,omitempty"`
	Active        bool            `json:"active"`
}

// ProductListResult wraps one page of the catalog.
type ProductListResult struct {
	Products []ProductDTO `json:"products"`
	Total    int64        `json:"total"`
	Page     int          `json:"page"`
	PageSize int          `json:"pageSize"`
}

func toProductDTO(p models.Product) ProductDTO {
	dto := ProductDTO{
		ID:          p.ID,
		ProductCode: p.ProductCode,
		Name:        p.Name,
		Description: p.Description,
		Price:       p.Price,
		Barcode:     p.Barcode,
		Category:    p.Category,
		Image:       p.Image,
		Stock:       p.Stock,
		Active:      p.Active,
		CreatedAt:   p.CreatedAt,
		UpdatedAt:   p.UpdatedAt,
	}
	for _, v := range p.Variants {
		dto.Variants = append(dto.Variants, toVariantDTO(v))
	}
	return dto
}

func toVariantDTO(v models.ProductVariant) VariantDTO {
	return VariantDTO{
		ID:            v.ID,
		Name:          v.Name,
		Value:         v.Value,
		PriceModifier: v.PriceModifier,
		Stock:         v.Stock,
		SKU:           v.SKU,
		Active:        v.Active,
	}
}
