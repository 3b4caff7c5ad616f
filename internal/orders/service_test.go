package orders

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/angelmondragon/ohya-backend/internal/uploads"
	"github.com/angelmondragon/ohya-backend/pkg/auth"
	"github.com/angelmondragon/ohya-backend/pkg/db/dbtest"
	"github.com/angelmondragon/ohya-backend/pkg/db/models"
	"github.com/angelmondragon/ohya-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/ohya-backend/pkg/errors"
)

func seedProductWithID(t *testing.T, f *fixture, id int64, price string, stock int) models.Product {
	t.Helper()
	code := fmt.Sprintf("P-%03d", id)
	product := models.Product{
		ID:          id,
		ProductCode: &code,
		Name:        fmt.Sprintf("Product %d", id),
		Price:       decimal.RequireFromString(price),
		Stock:       stock,
		Active:      true,
	}
	require.NoError(t, f.client.DB().Create(&product).Error)
	return product
}

func TestCreateAndListOwnOrder(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, Options{})
	seedProductWithID(t, f, 7, "100", 10)

	result, err := f.svc.Create(ctx, f.customer, orderInput("200", line(7, 2, "100")))
	require.NoError(t, err)
	require.NotEmpty(t, result.OrderNumber)
	require.True(t, strings.HasPrefix(result.OrderNumber, "OH"))
	require.Equal(t, enums.OrderStatusPending, result.Status)
	require.True(t, result.Total.Equal(decimal.NewFromInt(200)))

	list, err := f.svc.List(ctx, f.customer, ListParams{})
	require.NoError(t, err)
	require.Len(t, list.Orders, 1)
	order := list.Orders[0]
	assert.Equal(t, result.OrderID, order.ID)
	assert.True(t, order.Total.Equal(decimal.NewFromInt(200)))
	require.Len(t, order.Items, 1)
	assert.Equal(t, 2, order.Items[0].Quantity)
	assert.Equal(t, int64(7), order.Items[0].ProductID)
	assert.True(t, order.Items[0].Subtotal.Equal(decimal.NewFromInt(200)))
	require.NotNil(t, order.Items[0].ProductCode)
	assert.Equal(t, "P-007", *order.Items[0].ProductCode)
	assert.Nil(t, order.CustomerEmail, "customers do not get customer annotations")

	assert.Equal(t, 8, dbtest.Stock(t, f.client, 7))
	assert.Equal(t, []int64{f.customer.UserID}, f.carts.cleared)
}

func TestCreateRequiresAuthentication(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, Options{})
	product := dbtest.SeedProduct(t, f.client, "Tea", "5", 3)

	input := orderInput("5", line(product.ID, 1, "5"))
	input.Proof = &uploads.File{Filename: "proof.png", Reader: strings.NewReader("x")}

	_, err := f.svc.Create(ctx, auth.Anonymous(), input)
	require.True(t, pkgerrors.Is(err, pkgerrors.CodeUnauthorized), "got %v", err)

	assert.Zero(t, dbtest.Count(t, f.client, "orders"))
	assert.Zero(t, dbtest.Count(t, f.client, "order_items"))
	assert.Equal(t, 3, dbtest.Stock(t, f.client, product.ID))
	assert.Empty(t, f.proofs.stored)
}

func TestCreateValidation(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, Options{})
	product := dbtest.SeedProduct(t, f.client, "Tea", "5", 3)

	cases := map[string]CreateOrderInput{
		"no items":       orderInput("0"),
		"zero quantity":  orderInput("0", line(product.ID, 0, "5")),
		"negative price": orderInput("5", line(product.ID, 1, "-5")),
		"total mismatch": orderInput("11", line(product.ID, 2, "5")),
		"missing total": func() CreateOrderInput {
			in := orderInput("5", line(product.ID, 1, "5"))
			in.Total = nil
			return in
		}(),
		"missing shipping": func() CreateOrderInput {
			in := orderInput("5", line(product.ID, 1, "5"))
			in.Shipping.Address = "   "
			return in
		}(),
		"price changed":   orderInput("8", line(product.ID, 2, "4")),
		"unknown product": orderInput("5", line(product.ID+100, 1, "5")),
	}
	for name, input := range cases {
		_, err := f.svc.Create(ctx, f.customer, input)
		assert.True(t, pkgerrors.Is(err, pkgerrors.CodeValidation), "%s: got %v", name, err)
	}
	assert.Zero(t, dbtest.Count(t, f.client, "orders"))
	assert.Equal(t, 3, dbtest.Stock(t, f.client, product.ID))
}

func TestCreateAcceptsTotalWithinTolerance(t *testing.T) {
	f := newFixture(t, Options{})
	product := dbtest.SeedProduct(t, f.client, "Tea", "3.33", 10)

	result, err := f.svc.Create(context.Background(), f.customer, orderInput("10.00", line(product.ID, 3, "3.33")))
	require.NoError(t, err)
	assert.True(t, result.Total.Equal(decimal.RequireFromString("9.99")))
}

func TestCreateRejectsInactiveProduct(t *testing.T) {
	f := newFixture(t, Options{})
	product := dbtest.SeedProduct(t, f.client, "Tea", "5", 3)
	require.NoError(t, f.client.DB().Model(&models.Product{}).Where("id = ?", product.ID).Update("active", false).Error)

	_, err := f.svc.Create(context.Background(), f.customer, orderInput("5", line(product.ID, 1, "5")))
	assert.True(t, pkgerrors.Is(err, pkgerrors.CodeValidation))
}

func TestCreateInsufficientStockLeavesNoTrace(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, Options{})
	plenty := dbtest.SeedProduct(t, f.client, "Rice", "2", 50)
	scarce := dbtest.SeedProduct(t, f.client, "Saffron", "10", 1)

	input := orderInput("24", line(plenty.ID, 2, "2"), line(scarce.ID, 2, "10"))
	input.Proof = &uploads.File{Filename: "proof.png", Reader: strings.NewReader("x")}

	_, err := f.svc.Create(ctx, f.customer, input)
	typed := pkgerrors.As(err)
	require.NotNil(t, typed)
	require.Equal(t, pkgerrors.CodeInsufficient, typed.Code())
	details, ok := typed.Details().(map[string]any)
	require.True(t, ok)
	shortages, ok := details["items"].([]StockShortage)
	require.True(t, ok)
	require.Equal(t, []StockShortage{{ProductID: scarce.ID, Requested: 2, Available: 1}}, shortages)

	assert.Equal(t, 50, dbtest.Stock(t, f.client, plenty.ID))
	assert.Equal(t, 1, dbtest.Stock(t, f.client, scarce.ID))
	assert.Zero(t, dbtest.Count(t, f.client, "orders"))
	assert.Equal(t, f.proofs.stored, f.proofs.removed, "stored proof is removed when the order fails")
	assert.Empty(t, f.carts.cleared)
}

type failingItemsRepo struct {
	Repository
}

func (r failingItemsRepo) WithTx(tx *gorm.DB) Repository {
	return failingItemsRepo{Repository: r.Repository.WithTx(tx)}
}

func (r failingItemsRepo) CreateOrderItems(context.Context, []models.OrderItem) error {
	return errors.New("disk I/O error")
}

func TestCreateRollsBackWhenItemsFail(t *testing.T) {
	f := newFixtureWithRepo(t, Options{}, func(repo Repository) Repository {
		return failingItemsRepo{Repository: repo}
	})
	product := dbtest.SeedProduct(t, f.client, "Tea", "5", 3)

	_, err := f.svc.Create(context.Background(), f.customer, orderInput("10", line(product.ID, 2, "5")))
	require.True(t, pkgerrors.Is(err, pkgerrors.CodeStorage), "got %v", err)

	assert.Zero(t, dbtest.Count(t, f.client, "orders"), "header must not survive")
	assert.Zero(t, dbtest.Count(t, f.client, "order_items"))
	assert.Equal(t, 3, dbtest.Stock(t, f.client, product.ID), "stock decrement must roll back")
}

type decrementRecorder struct {
	Repository
	calls *[]int64
}

func (r decrementRecorder) WithTx(tx *gorm.DB) Repository {
	return decrementRecorder{Repository: r.Repository.WithTx(tx), calls: r.calls}
}

func (r decrementRecorder) DecrementStock(ctx context.Context, productID int64, qty int) (bool, error) {
	*r.calls = append(*r.calls, productID)
	return r.Repository.DecrementStock(ctx, productID, qty)
}

func TestCreateLocksStockInProductOrder(t *testing.T) {
	var calls []int64
	f := newFixtureWithRepo(t, Options{}, func(repo Repository) Repository {
		return decrementRecorder{Repository: repo, calls: &calls}
	})
	seedProductWithID(t, f, 3, "1", 10)
	seedProductWithID(t, f, 9, "2", 10)
	seedProductWithID(t, f, 5, "3", 10)

	input := orderInput("14", line(9, 2, "2"), line(3, 1, "1"), line(5, 3, "3"))
	_, err := f.svc.Create(context.Background(), f.customer, input)
	require.NoError(t, err)

	assert.Equal(t, []int64{3, 5, 9}, calls)
	assert.Equal(t, 9, dbtest.Stock(t, f.client, 3))
	assert.Equal(t, 7, dbtest.Stock(t, f.client, 5))
	assert.Equal(t, 8, dbtest.Stock(t, f.client, 9))
	assert.Equal(t, int64(9), input.Items[0].ProductID, "caller's lines are left untouched")
}

func TestConcurrentOrdersForLastUnit(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, Options{})
	product := dbtest.SeedProduct(t, f.client, "Last one", "9", 1)

	actors := []auth.Actor{f.customer, f.other}
	errs := make([]error, len(actors))
	var wg sync.WaitGroup
	for i, actor := range actors {
		wg.Add(1)
		go func(i int, actor auth.Actor) {
			defer wg.Done()
			_, errs[i] = f.svc.Create(ctx, actor, orderInput("9", line(product.ID, 1, "9")))
		}(i, actor)
	}
	wg.Wait()

	var succeeded, short int
	for _, err := range errs {
		switch {
		case err == nil:
			succeeded++
		case pkgerrors.Is(err, pkgerrors.CodeInsufficient):
			short++
		default:
			t.Fatalf("unexpected error: %v", err)
		}
	}
	assert.Equal(t, 1, succeeded)
	assert.Equal(t, 1, short)
	assert.Equal(t, 0, dbtest.Stock(t, f.client, product.ID))
	assert.Equal(t, int64(1), dbtest.Count(t, f.client, "orders"))
}

func TestResubmissionCreatesDistinctOrders(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, Options{})
	product := dbtest.SeedProduct(t, f.client, "Tea", "5", 10)

	first, err := f.svc.Create(ctx, f.customer, orderInput("5", line(product.ID, 1, "5")))
	require.NoError(t, err)
	second, err := f.svc.Create(ctx, f.customer, orderInput("5", line(product.ID, 1, "5")))
	require.NoError(t, err)

	assert.NotEqual(t, first.OrderID, second.OrderID)
	assert.NotEqual(t, first.OrderNumber, second.OrderNumber)
	assert.Equal(t, 8, dbtest.Stock(t, f.client, product.ID))
}

func TestCreateRetriesOnNumberCollision(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, Options{Numbers: sequenceNumbers("OH-A", "OH-A", "OH-B")})
	product := dbtest.SeedProduct(t, f.client, "Tea", "5", 10)

	first, err := f.svc.Create(ctx, f.customer, orderInput("5", line(product.ID, 1, "5")))
	require.NoError(t, err)
	require.Equal(t, "OH-A", first.OrderNumber)

	second, err := f.svc.Create(ctx, f.customer, orderInput("5", line(product.ID, 1, "5")))
	require.NoError(t, err)
	require.Equal(t, "OH-B", second.OrderNumber)

	assert.Equal(t, 8, dbtest.Stock(t, f.client, product.ID), "the collided attempt must not keep its decrement")
	assert.Equal(t, int64(2), dbtest.Count(t, f.client, "order_items"))
}

func TestCreateGivesUpAfterMaxAttempts(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, Options{Numbers: sequenceNumbers("OH-SAME"), MaxNumberAttempts: 3})
	product := dbtest.SeedProduct(t, f.client, "Tea", "5", 10)

	_, err := f.svc.Create(ctx, f.customer, orderInput("5", line(product.ID, 1, "5")))
	require.NoError(t, err)

	_, err = f.svc.Create(ctx, f.customer, orderInput("5", line(product.ID, 1, "5")))
	require.True(t, pkgerrors.Is(err, pkgerrors.CodeConflict), "got %v", err)
	assert.Equal(t, 9, dbtest.Stock(t, f.client, product.ID))
	assert.Equal(t, int64(1), dbtest.Count(t, f.client, "orders"))
}

func TestCreateKeepsOrderWhenCartClearFails(t *testing.T) {
	f := newFixture(t, Options{})
	f.carts.err = errors.New("redis down")
	product := dbtest.SeedProduct(t, f.client, "Tea", "5", 10)

	_, err := f.svc.Create(context.Background(), f.customer, orderInput("5", line(product.ID, 1, "5")))
	require.NoError(t, err)
	assert.Equal(t, int64(1), dbtest.Count(t, f.client, "orders"))
}

func TestCreateStoresProofReference(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, Options{})
	product := dbtest.SeedProduct(t, f.client, "Tea", "5", 10)

	input := orderInput("5", line(product.ID, 1, "5"))
	input.Proof = &uploads.File{Filename: "proof.png", Reader: strings.NewReader("x")}
	result, err := f.svc.Create(ctx, f.customer, input)
	require.NoError(t, err)

	_, err = f.svc.ProofReference(ctx, f.customer, result.OrderID)
	require.True(t, pkgerrors.Is(err, pkgerrors.CodeForbidden))

	ref, err := f.svc.ProofReference(ctx, f.admin, result.OrderID)
	require.NoError(t, err)
	assert.Equal(t, "uploads/payments/proof-1.png", ref)

	order, err := f.svc.Get(ctx, f.customer, result.OrderID)
	require.NoError(t, err)
	assert.True(t, order.HasBankProof)
}

func TestCreateFailsWhenProofStoreFails(t *testing.T) {
	f := newFixture(t, Options{})
	f.proofs.storeErr = pkgerrors.New(pkgerrors.CodeValidation, "file type not allowed")
	product := dbtest.SeedProduct(t, f.client, "Tea", "5", 10)

	input := orderInput("5", line(product.ID, 1, "5"))
	input.Proof = &uploads.File{Filename: "proof.exe", Reader: strings.NewReader("MZ")}
	_, err := f.svc.Create(context.Background(), f.customer, input)
	require.True(t, pkgerrors.Is(err, pkgerrors.CodeValidation))
	assert.Equal(t, 10, dbtest.Stock(t, f.client, product.ID))
}

func TestListVisibilityAndFilters(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, Options{})
	product := dbtest.SeedProduct(t, f.client, "Tea", "5", 100)

	mine, err := f.svc.Create(ctx, f.customer, orderInput("5", line(product.ID, 1, "5")))
	require.NoError(t, err)
	theirs, err := f.svc.Create(ctx, f.other, orderInput("10", line(product.ID, 2, "5")))
	require.NoError(t, err)
	_, err = f.svc.UpdateStatus(ctx, f.admin, theirs.OrderID, enums.OrderStatusProcessing)
	require.NoError(t, err)

	own, err := f.svc.List(ctx, f.customer, ListParams{})
	require.NoError(t, err)
	require.Len(t, own.Orders, 1)
	assert.Equal(t, mine.OrderID, own.Orders[0].ID)

	all, err := f.svc.List(ctx, f.admin, ListParams{})
	require.NoError(t, err)
	require.Len(t, all.Orders, 2)
	assert.Equal(t, theirs.OrderID, all.Orders[0].ID, "newest first")
	require.NotNil(t, all.Orders[0].CustomerEmail)
	assert.Equal(t, "ben@example.com", *all.Orders[0].CustomerEmail)

	status := enums.OrderStatusProcessing
	processing, err := f.svc.List(ctx, f.admin, ListParams{Status: &status})
	require.NoError(t, err)
	require.Len(t, processing.Orders, 1)
	assert.Equal(t, theirs.OrderID, processing.Orders[0].ID)

	bad := enums.OrderStatus("shipped")
	_, err = f.svc.List(ctx, f.admin, ListParams{Status: &bad})
	assert.True(t, pkgerrors.Is(err, pkgerrors.CodeValidation))

	_, err = f.svc.List(ctx, auth.Anonymous(), ListParams{})
	assert.True(t, pkgerrors.Is(err, pkgerrors.CodeUnauthorized))

	_, err = f.svc.Get(ctx, f.customer, theirs.OrderID)
	assert.True(t, pkgerrors.Is(err, pkgerrors.CodeNotFound), "other customers' orders are hidden")
}

func TestListPaginates(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, Options{})
	product := dbtest.SeedProduct(t, f.client, "Tea", "5", 100)
	for i := 0; i < 3; i++ {
		_, err := f.svc.Create(ctx, f.customer, orderInput("5", line(product.ID, 1, "5")))
		require.NoError(t, err)
	}

	page1, err := f.svc.List(ctx, f.customer, ListParams{Limit: 2})
	require.NoError(t, err)
	require.Len(t, page1.Orders, 2)
	require.NotEmpty(t, page1.NextCursor)

	page2, err := f.svc.List(ctx, f.customer, ListParams{Limit: 2, Cursor: page1.NextCursor})
	require.NoError(t, err)
	require.Len(t, page2.Orders, 1)
	assert.Empty(t, page2.NextCursor)
	assert.Less(t, page2.Orders[0].ID, page1.Orders[1].ID)

	_, err = f.svc.List(ctx, f.customer, ListParams{Cursor: "!!"})
	assert.True(t, pkgerrors.Is(err, pkgerrors.CodeValidation))
}

func TestUpdateStatusLifecycle(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, Options{})
	product := dbtest.SeedProduct(t, f.client, "Tea", "5", 10)

	created, err := f.svc.Create(ctx, f.customer, orderInput("10", line(product.ID, 2, "5")))
	require.NoError(t, err)

	_, err = f.svc.UpdateStatus(ctx, f.customer, created.OrderID, enums.OrderStatusProcessing)
	require.True(t, pkgerrors.Is(err, pkgerrors.CodeForbidden))

	_, err = f.svc.UpdateStatus(ctx, f.admin, created.OrderID, enums.OrderStatus("shipped"))
	require.True(t, pkgerrors.Is(err, pkgerrors.CodeValidation))

	order, err := f.svc.UpdateStatus(ctx, f.admin, created.OrderID, enums.OrderStatusProcessing)
	require.NoError(t, err)
	assert.Equal(t, enums.OrderStatusProcessing, order.Status)

	order, err = f.svc.UpdateStatus(ctx, f.admin, created.OrderID, enums.OrderStatusProcessing)
	require.NoError(t, err, "same status is a no-op")
	assert.Equal(t, enums.OrderStatusProcessing, order.Status)

	order, err = f.svc.UpdateStatus(ctx, f.admin, created.OrderID, enums.OrderStatusCompleted)
	require.NoError(t, err)
	assert.Equal(t, enums.OrderStatusCompleted, order.Status)

	_, err = f.svc.UpdateStatus(ctx, f.admin, created.OrderID, enums.OrderStatusCancelled)
	require.True(t, pkgerrors.Is(err, pkgerrors.CodeStateConflict), "completed orders cannot be cancelled")
	_, err = f.svc.UpdateStatus(ctx, f.admin, created.OrderID, enums.OrderStatusPending)
	require.True(t, pkgerrors.Is(err, pkgerrors.CodeStateConflict))

	assert.Equal(t, 8, dbtest.Stock(t, f.client, product.ID))

	_, err = f.svc.UpdateStatus(ctx, f.admin, created.OrderID+99, enums.OrderStatusCompleted)
	require.True(t, pkgerrors.Is(err, pkgerrors.CodeNotFound))
}

func TestCancelRestoresStock(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, Options{})
	product := dbtest.SeedProduct(t, f.client, "Tea", "5", 10)

	created, err := f.svc.Create(ctx, f.customer, orderInput("15", line(product.ID, 3, "5")))
	require.NoError(t, err)
	require.Equal(t, 7, dbtest.Stock(t, f.client, product.ID))

	order, err := f.svc.UpdateStatus(ctx, f.admin, created.OrderID, enums.OrderStatusCancelled)
	require.NoError(t, err)
	assert.Equal(t, enums.OrderStatusCancelled, order.Status)
	assert.Equal(t, 10, dbtest.Stock(t, f.client, product.ID))

	_, err = f.svc.UpdateStatus(ctx, f.admin, created.OrderID, enums.OrderStatusProcessing)
	require.True(t, pkgerrors.Is(err, pkgerrors.CodeStateConflict))
	assert.Equal(t, 10, dbtest.Stock(t, f.client, product.ID))
}

func TestDeleteRemovesItemsThenHeader(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, Options{})
	tea := dbtest.SeedProduct(t, f.client, "Tea", "5", 10)
	rice := dbtest.SeedProduct(t, f.client, "Rice", "2", 10)

	input := orderInput("14", line(tea.ID, 2, "5"), line(rice.ID, 2, "2"))
	input.Proof = &uploads.File{Filename: "proof.png", Reader: strings.NewReader("x")}
	created, err := f.svc.Create(ctx, f.customer, input)
	require.NoError(t, err)
	require.Equal(t, int64(2), dbtest.Count(t, f.client, "order_items"))

	require.True(t, pkgerrors.Is(f.svc.Delete(ctx, f.customer, created.OrderID), pkgerrors.CodeForbidden))

	require.NoError(t, f.svc.Delete(ctx, f.admin, created.OrderID))
	assert.Zero(t, dbtest.Count(t, f.client, "orders"))
	assert.Zero(t, dbtest.Count(t, f.client, "order_items"))
	assert.Equal(t, 10, dbtest.Stock(t, f.client, tea.ID))
	assert.Equal(t, 10, dbtest.Stock(t, f.client, rice.ID))
	assert.Equal(t, []string{"uploads/payments/proof-1.png"}, f.proofs.removed)

	err = f.svc.Delete(ctx, f.admin, created.OrderID)
	assert.True(t, pkgerrors.Is(err, pkgerrors.CodeNotFound))
}

func TestDeleteCompletedOrderKeepsStock(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, Options{})
	product := dbtest.SeedProduct(t, f.client, "Tea", "5", 10)

	created, err := f.svc.Create(ctx, f.customer, orderInput("5", line(product.ID, 1, "5")))
	require.NoError(t, err)
	_, err = f.svc.UpdateStatus(ctx, f.admin, created.OrderID, enums.OrderStatusCompleted)
	require.NoError(t, err)

	require.NoError(t, f.svc.Delete(ctx, f.admin, created.OrderID))
	assert.Equal(t, 9, dbtest.Stock(t, f.client, product.ID))
}

func TestNewServiceRequiresDependencies(t *testing.T) {
	client := dbtest.Open(t)
	repo := NewRepository(client.DB())

	_, err := NewService(nil, client, &fakeProofs{}, nil, Options{})
	assert.Error(t, err)
	_, err = NewService(repo, nil, &fakeProofs{}, nil, Options{})
	assert.Error(t, err)
	_, err = NewService(repo, client, nil, nil, Options{})
	assert.Error(t, err)
	_, err = NewService(repo, client, &fakeProofs{}, nil, Options{TotalTolerance: decimal.NewFromInt(-1)})
	assert.Error(t, err)
}
