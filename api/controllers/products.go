package controllers

import (
	"net/http"
	"strings"

	"github.com/angelmondragon/ohya-backend/api/middleware"
	"github.com/angelmondragon/ohya-backend/api/responses"
	"github.com/angelmondragon/ohya-backend/api/validators"
	product "github.com/angelmondragon/ohya-backend/internal/products"
	pkgerrors "github.com/angelmondragon/ohya-backend/pkg/errors"
	"github.com/angelmondragon/ohya-backend/pkg/logger"
)

const (
	imageField      = "image"
	defaultPageSize = 20
	maxPageSize     = 100
)

func productServiceUnavailable(w http.ResponseWriter, r *http.Request, logg *logger.Logger) {
	responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "product service unavailable"))
}

// ProductList serves the catalog. includeInactive is set on the admin route only.
func ProductList(svc product.Service, includeInactive bool, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			productServiceUnavailable(w, r, logg)
			return
		}

		page, err := validators.ParseQueryInt(r, "page", 1, 1, 100000)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		pageSize, err := validators.ParseQueryInt(r, "pageSize", defaultPageSize, 1, maxPageSize)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		result, err := svc.List(r.Context(), middleware.ActorFromContext(r.Context()), product.ListProductsInput{
			Category:        validators.QueryString(r, "category", 100),
			Query:           validators.QueryString(r, "q", 100),
			IncludeInactive: includeInactive,
			Page:            page,
			PageSize:        pageSize,
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, result)
	}
}

// ProductDetail returns one product with its variants.
func ProductDetail(svc product.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			productServiceUnavailable(w, r, logg)
			return
		}
		productID, err := validators.ParsePathID(r, "productId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		dto, err := svc.Get(r.Context(), middleware.ActorFromContext(r.Context()), productID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, dto)
	}
}

// ProductCategories lists the categories of active products.
func ProductCategories(svc product.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			productServiceUnavailable(w, r, logg)
			return
		}
		categories, err := svc.Categories(r.Context())
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, categories)
	}
}

// AdminCreateProduct adds a product to the catalog.
func AdminCreateProduct(svc product.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			productServiceUnavailable(w, r, logg)
			return
		}
		var payload product.CreateProductInput
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		dto, err := svc.Create(r.Context(), middleware.ActorFromContext(r.Context()), payload)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, dto)
	}
}

// AdminUpdateProduct applies a partial update.
func AdminUpdateProduct(svc product.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			productServiceUnavailable(w, r, logg)
			return
		}
		productID, err := validators.ParsePathID(r, "productId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		var payload product.UpdateProductInput
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		dto, err := svc.Update(r.Context(), middleware.ActorFromContext(r.Context()), productID, payload)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, dto)
	}
}

// AdminDeactivateProduct hides a product from the catalog.
func AdminDeactivateProduct(svc product.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			productServiceUnavailable(w, r, logg)
			return
		}
		productID, err := validators.ParsePathID(r, "productId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		if err := svc.Deactivate(r.Context(), middleware.ActorFromContext(r.Context()), productID); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, map[string]any{"id": productID, "active": false})
	}
}

// AdminProductImage replaces the product image from a multipart upload.
func AdminProductImage(svc product.Service, maxImageBytes int64, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			productServiceUnavailable(w, r, logg)
			return
		}
		productID, err := validators.ParsePathID(r, "productId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		if !validators.IsMultipart(r) {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeValidation, "multipart/form-data body required"))
			return
		}
		if err := validators.ParseMultipart(w, r, maxImageBytes+(1<<20)); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		defer func() { _ = r.MultipartForm.RemoveAll() }()

		file, err := validators.FormFile(r, imageField)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		if file == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeValidation, "image file is required").
				WithDetails(map[string]any{"field": imageField}))
			return
		}
		defer validators.CloseFile(file)

		dto, err := svc.SetImage(r.Context(), middleware.ActorFromContext(r.Context()), productID, *file)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, dto)
	}
}

// AdminCreateVariant adds an option to a product.
func AdminCreateVariant(svc product.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			productServiceUnavailable(w, r, logg)
			return
		}
		productID, err := validators.ParsePathID(r, "productId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		var payload product.CreateVariantInput
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		payload.Name = strings.TrimSpace(payload.Name)
		payload.Value = strings.TrimSpace(payload.Value)
		dto, err := svc.CreateVariant(r.Context(), middleware.ActorFromContext(r.Context()), productID, payload)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, dto)
	}
}

// AdminDeactivateVariant hides a variant.
func AdminDeactivateVariant(svc product.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			productServiceUnavailable(w, r, logg)
			return
		}
		productID, err := validators.ParsePathID(r, "productId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		variantID, err := validators.ParsePathID(r, "variantId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		if err := svc.DeactivateVariant(r.Context(), middleware.ActorFromContext(r.Context()), productID, variantID); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, map[string]any{"id": variantID, "active": false})
	}
}
