package controllers

import (
	"bytes"
	"context"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/textproto"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/ohya-backend/api/middleware"
	product "github.com/angelmondragon/ohya-backend/internal/products"
	"github.com/angelmondragon/ohya-backend/internal/uploads"
	"github.com/angelmondragon/ohya-backend/pkg/auth"
	"github.com/angelmondragon/ohya-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/ohya-backend/pkg/errors"
)

type stubProductService struct {
	listInput     product.ListProductsInput
	createInput   product.CreateProductInput
	updateID      int64
	updateInput   product.UpdateProductInput
	imageBytes    []byte
	imageName     string
	variantInput  product.CreateVariantInput
	deactivatedID int64
	getErr        error
}

func (s *stubProductService) List(ctx context.Context, actor auth.Actor, input product.ListProductsInput) (*product.ProductListResult, error) {
	s.listInput = input
	return &product.ProductListResult{Products: []product.ProductDTO{}, Page: input.Page, PageSize: input.PageSize}, nil
}

func (s *stubProductService) Get(ctx context.Context, actor auth.Actor, productID int64) (*product.ProductDTO, error) {
	if s.getErr != nil {
		return nil, s.getErr
	}
	return &product.ProductDTO{ID: productID, Name: "Lamp", Price: decimal.NewFromInt(10)}, nil
}

func (s *stubProductService) Categories(ctx context.Context) ([]string, error) {
	return []string{"home", "office"}, nil
}

func (s *stubProductService) Create(ctx context.Context, actor auth.Actor, input product.CreateProductInput) (*product.ProductDTO, error) {
	s.createInput = input
	return &product.ProductDTO{ID: 1, Name: input.Name, Price: *input.Price}, nil
}

func (s *stubProductService) Update(ctx context.Context, actor auth.Actor, productID int64, input product.UpdateProductInput) (*product.ProductDTO, error) {
	s.updateID = productID
	s.updateInput = input
	return &product.ProductDTO{ID: productID}, nil
}

func (s *stubProductService) Deactivate(ctx context.Context, actor auth.Actor, productID int64) error {
	s.deactivatedID = productID
	return nil
}

func (s *stubProductService) SetImage(ctx context.Context, actor auth.Actor, productID int64, file uploads.File) (*product.ProductDTO, error) {
	data, err := io.ReadAll(file.Reader)
	if err != nil {
		return nil, err
	}
	s.imageBytes = data
	s.imageName = file.Filename
	return &product.ProductDTO{ID: productID}, nil
}

func (s *stubProductService) CreateVariant(ctx context.Context, actor auth.Actor, productID int64, input product.CreateVariantInput) (*product.VariantDTO, error) {
	s.variantInput = input
	return &product.VariantDTO{ID: 3, Name: input.Name, Value: input.Value}, nil
}

func (s *stubProductService) DeactivateVariant(ctx context.Context, actor auth.Actor, productID, variantID int64) error {
	s.deactivatedID = variantID
	return nil
}

func adminRequest(method, target string, body io.Reader, params map[string]string) *http.Request {
	req := httptest.NewRequest(method, target, body)
	rctx := chi.NewRouteContext()
	for k, v := range params {
		rctx.URLParams.Add(k, v)
	}
	ctx := context.WithValue(req.Context(), chi.RouteCtxKey, rctx)
	ctx = middleware.WithActor(ctx, auth.NewActor(1, enums.RoleAdmin))
	return req.WithContext(ctx)
}

func TestProductListParsesFilters(t *testing.T) {
	svc := &stubProductService{}
	resp := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/api/v1/products?category=home&q=lamp&page=2&pageSize=5", nil)

	ProductList(svc, false, nil).ServeHTTP(resp, req)

	require.Equal(t, http.StatusOK, resp.Code, resp.Body.String())
	assert.Equal(t, product.ListProductsInput{Category: "home", Query: "lamp", Page: 2, PageSize: 5}, svc.listInput)
}

func TestProductListRejectsOversizedPage(t *testing.T) {
	svc := &stubProductService{}
	resp := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/api/v1/products?pageSize=500", nil)

	ProductList(svc, false, nil).ServeHTTP(resp, req)

	assert.Equal(t, http.StatusBadRequest, resp.Code)
}

func TestAdminProductListIncludesInactive(t *testing.T) {
	svc := &stubProductService{}
	resp := httptest.NewRecorder()

	ProductList(svc, true, nil).ServeHTTP(resp, adminRequest(http.MethodGet, "/api/admin/v1/products", nil, nil))

	require.Equal(t, http.StatusOK, resp.Code)
	assert.True(t, svc.listInput.IncludeInactive)
	assert.Equal(t, 1, svc.listInput.Page)
	assert.Equal(t, defaultPageSize, svc.listInput.PageSize)
}

func TestProductDetailMapsNotFound(t *testing.T) {
	svc := &stubProductService{getErr: pkgerrors.New(pkgerrors.CodeNotFound, "product not found")}
	resp := httptest.NewRecorder()

	ProductDetail(svc, nil).ServeHTTP(resp, adminRequest(http.MethodGet, "/api/v1/products/9", nil, map[string]string{"productId": "9"}))

	assert.Equal(t, http.StatusNotFound, resp.Code)
}

func TestProductDetailRejectsBadID(t *testing.T) {
	resp := httptest.NewRecorder()

	ProductDetail(&stubProductService{}, nil).ServeHTTP(resp, adminRequest(http.MethodGet, "/api/v1/products/abc", nil, map[string]string{"productId": "abc"}))

	assert.Equal(t, http.StatusBadRequest, resp.Code)
}

func TestProductCategories(t *testing.T) {
	resp := httptest.NewRecorder()
	ProductCategories(&stubProductService{}, nil).ServeHTTP(resp, httptest.NewRequest(http.MethodGet, "/api/v1/categories", nil))

	require.Equal(t, http.StatusOK, resp.Code)
	assert.Contains(t, resp.Body.String(), `"home"`)
}

func TestAdminCreateProduct(t *testing.T) {
	svc := &stubProductService{}
	resp := httptest.NewRecorder()
	body := strings.NewReader(`{"name":"Desk","price":"149.90","stock":4}`)

	AdminCreateProduct(svc, nil).ServeHTTP(resp, adminRequest(http.MethodPost, "/api/admin/v1/products", body, nil))

	require.Equal(t, http.StatusCreated, resp.Code, resp.Body.String())
	assert.Equal(t, "Desk", svc.createInput.Name)
	require.NotNil(t, svc.createInput.Price)
	assert.True(t, svc.createInput.Price.Equal(decimal.RequireFromString("149.90")))
}

func TestAdminCreateProductRequiresPrice(t *testing.T) {
	svc := &stubProductService{}
	resp := httptest.NewRecorder()

	AdminCreateProduct(svc, nil).ServeHTTP(resp, adminRequest(http.MethodPost, "/api/admin/v1/products", strings.NewReader(`{"name":"Desk"}`), nil))

	assert.Equal(t, http.StatusBadRequest, resp.Code)
	assert.Empty(t, svc.createInput.Name)
}

func TestAdminUpdateProduct(t *testing.T) {
	svc := &stubProductService{}
	resp := httptest.NewRecorder()
	req := adminRequest(http.MethodPatch, "/api/admin/v1/products/4", strings.NewReader(`{"stock":12}`), map[string]string{"productId": "4"})

	AdminUpdateProduct(svc, nil).ServeHTTP(resp, req)

	require.Equal(t, http.StatusOK, resp.Code)
	assert.Equal(t, int64(4), svc.updateID)
	require.NotNil(t, svc.updateInput.Stock)
	assert.Equal(t, 12, *svc.updateInput.Stock)
	assert.Nil(t, svc.updateInput.Name)
}

func TestAdminDeactivateProduct(t *testing.T) {
	svc := &stubProductService{}
	resp := httptest.NewRecorder()

	AdminDeactivateProduct(svc, nil).ServeHTTP(resp, adminRequest(http.MethodDelete, "/api/admin/v1/products/6", nil, map[string]string{"productId": "6"}))

	require.Equal(t, http.StatusOK, resp.Code)
	assert.Equal(t, int64(6), svc.deactivatedID)
}

func TestAdminProductImage(t *testing.T) {
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	header := make(textproto.MIMEHeader)
	header.Set("Content-Disposition", `form-data; name="image"; filename="lamp.png"`)
	header.Set("Content-Type", "image/png")
	part, err := mw.CreatePart(header)
	require.NoError(t, err)
	_, err = part.Write([]byte("png-bytes"))
	require.NoError(t, err)
	require.NoError(t, mw.Close())

	svc := &stubProductService{}
	req := adminRequest(http.MethodPost, "/api/admin/v1/products/2/image", &buf, map[string]string{"productId": "2"})
	req.Header.Set("Content-Type", mw.FormDataContentType())
	resp := httptest.NewRecorder()

	AdminProductImage(svc, 1<<20, nil).ServeHTTP(resp, req)

	require.Equal(t, http.StatusOK, resp.Code, resp.Body.String())
	assert.Equal(t, "png-bytes", string(svc.imageBytes))
	assert.Equal(t, "lamp.png", svc.imageName)
}

func TestAdminProductImageRequiresMultipart(t *testing.T) {
	resp := httptest.NewRecorder()
	req := adminRequest(http.MethodPost, "/api/admin/v1/products/2/image", strings.NewReader(`{}`), map[string]string{"productId": "2"})
	req.Header.Set("Content-Type", "application/json")

	AdminProductImage(&stubProductService{}, 1<<20, nil).ServeHTTP(resp, req)

	assert.Equal(t, http.StatusBadRequest, resp.Code)
}

func TestAdminCreateVariant(t *testing.T) {
	svc := &stubProductService{}
	resp := httptest.NewRecorder()
	req := adminRequest(http.MethodPost, "/api/admin/v1/products/2/variants", strings.NewReader(`{"name":" Color ","value":"Red","stock":3}`), map[string]string{"productId": "2"})

	AdminCreateVariant(svc, nil).ServeHTTP(resp, req)

	require.Equal(t, http.StatusCreated, resp.Code, resp.Body.String())
	assert.Equal(t, "Color", svc.variantInput.Name)
	assert.Equal(t, 3, svc.variantInput.Stock)
}

func TestAdminDeactivateVariant(t *testing.T) {
	svc := &stubProductService{}
	resp := httptest.NewRecorder()
	req := adminRequest(http.MethodDelete, "/api/admin/v1/products/2/variants/8", nil, map[string]string{"productId": "2", "variantId": "8"})

	AdminDeactivateVariant(svc, nil).ServeHTTP(resp, req)

	require.Equal(t, http.StatusOK, resp.Code)
	assert.Equal(t, int64(8), svc.deactivatedID)
}

func TestProductHandlersWithoutService(t *testing.T) {
	resp := httptest.NewRecorder()
	ProductCategories(nil, nil).ServeHTTP(resp, httptest.NewRequest(http.MethodGet, "/api/v1/categories", nil))
	assert.Equal(t, http.StatusInternalServerError, resp.Code)
}
