package orders

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/angelmondragon/ohya-backend/internal/uploads"
	"github.com/angelmondragon/ohya-backend/pkg/auth"
	"github.com/angelmondragon/ohya-backend/pkg/db/models"
	"github.com/angelmondragon/ohya-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/ohya-backend/pkg/errors"
	"github.com/angelmondragon/ohya-backend/pkg/logger"
	"github.com/angelmondragon/ohya-backend/pkg/metrics"
	"github.com/angelmondragon/ohya-backend/pkg/pagination"
	"github.com/shopspring/decimal"
	"go.uber.org/multierr"
	"gorm.io/gorm"
)

const (
	defaultNumberPrefix = "OH"
	defaultMaxAttempts  = 3
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type proofStore interface {
	Store(ctx context.Context, kind enums.UploadKind, file uploads.File) (string, error)
	Remove(ctx context.Context, ref string) error
}

type cartClearer interface {
	Clear(ctx context.Context, userID int64) error
}

// Service defines the order lifecycle operations.
type Service interface {
	Create(ctx context.Context, actor auth.Actor, input CreateOrderInput) (*CreateOrderResult, error)
	List(ctx context.Context, actor auth.Actor, params ListParams) (*OrderList, error)
	Get(ctx context.Context, actor auth.Actor, orderID int64) (*OrderDTO, error)
	UpdateStatus(ctx context.Context, actor auth.Actor, orderID int64, status enums.OrderStatus) (*OrderDTO, error)
	Delete(ctx context.Context, actor auth.Actor, orderID int64) error
	ProofReference(ctx context.Context, actor auth.Actor, orderID int64) (string, error)
}

// Options tunes order creation. Zero values fall back to defaults.
type Options struct {
	NumberPrefix      string
	MaxNumberAttempts int
	TotalTolerance    decimal.Decimal
	Numbers           NumberGenerator
	Metrics           *metrics.OrderMetrics
	Logger            *logger.Logger
	Now               func() time.Time
}

type service struct {
	repo        Repository
	tx          txRunner
	proofs      proofStore
	carts       cartClearer
	numbers     NumberGenerator
	maxAttempts int
	tolerance   decimal.Decimal
	metrics     *metrics.OrderMetrics
	logg        *logger.Logger
	now         func() time.Time
}

// NewService wires the order service. carts may be nil when no session cart
// needs clearing.
func NewService(repo Repository, tx txRunner, proofs proofStore, carts cartClearer, opts Options) (Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("orders repository required")
	}
	if tx == nil {
		return nil, fmt.Errorf("transaction runner required")
	}
	if proofs == nil {
		return nil, fmt.Errorf("proof store required")
	}
	if opts.TotalTolerance.IsNegative() {
		return nil, fmt.Errorf("total tolerance must not be negative")
	}

	prefix := opts.NumberPrefix
	if prefix == "" {
		prefix = defaultNumberPrefix
	}
	numbers := opts.Numbers
	if numbers == nil {
		numbers = RandomNumbers(prefix)
	}
	attempts := opts.MaxNumberAttempts
	if attempts <= 0 {
		attempts = defaultMaxAttempts
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	logg := opts.Logger
	if logg == nil {
		logg = logger.New(logger.Options{ServiceName: "orders"})
	}

	return &service{
		repo:        repo,
		tx:          tx,
		proofs:      proofs,
		carts:       carts,
		numbers:     numbers,
		maxAttempts: attempts,
		tolerance:   opts.TotalTolerance,
		metrics:     opts.Metrics,
		logg:        logg,
		now:         now,
	}, nil
}

func (s *service) Create(ctx context.Context, actor auth.Actor, input CreateOrderInput) (*CreateOrderResult, error) {
	started := time.Now()
	result, err := s.create(ctx, actor, input)
	if err != nil {
		s.metrics.IncFailure(failureReason(err))
		s.metrics.ObserveCreate("failure", time.Since(started))
		return nil, err
	}
	s.metrics.IncCreated()
	s.metrics.ObserveCreate("success", time.Since(started))
	return result, nil
}

func (s *service) create(ctx context.Context, actor auth.Actor, input CreateOrderInput) (*CreateOrderResult, error) {
	if !actor.IsAuthenticated() {
		return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "sign in to place an order")
	}
	ctx = s.logg.WithField(ctx, "user_id", actor.UserID)

	shipping, total, err := ValidateCreateInput(input, s.tolerance)
	if err != nil {
		return nil, err
	}

	var proofRef string
	if input.Proof != nil {
		proofRef, err = s.proofs.Store(ctx, enums.UploadKindPaymentProof, *input.Proof)
		if err != nil {
			return nil, err
		}
	}

	order, err := s.placeWithRetry(ctx, actor, input.Items, total, shipping, proofRef)
	if err != nil {
		if proofRef != "" {
			if rmErr := s.proofs.Remove(ctx, proofRef); rmErr != nil {
				err = multierr.Append(err, fmt.Errorf("removing payment proof %s: %w", proofRef, rmErr))
			}
		}
		return nil, err
	}

	ctx = s.logg.WithOrderID(ctx, order.ID)
	if s.carts != nil {
		if clearErr := s.carts.Clear(ctx, actor.UserID); clearErr != nil {
			s.logg.Warn(s.logg.WithField(ctx, "error", clearErr.Error()), "order placed but cart was not cleared")
		}
	}
	s.logg.Info(s.logg.WithField(ctx, "order_number", order.OrderNumber), "order placed")

	return &CreateOrderResult{
		OrderID:     order.ID,
		OrderNumber: order.OrderNumber,
		Total:       order.Total,
		Status:      order.Status,
	}, nil
}

// placeWithRetry runs the order transaction, regenerating the order number when
// the unique index rejects it.
func (s *service) placeWithRetry(ctx context.Context, actor auth.Actor, lines []LineInput, total decimal.Decimal, shipping ShippingInput, proofRef string) (*models.Order, error) {
	for attempt := 1; attempt <= s.maxAttempts; attempt++ {
		number, err := s.numbers(s.now())
		if err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "generate order number")
		}

		order, err := s.place(ctx, actor, lines, total, shipping, proofRef, number)
		if err == nil {
			return order, nil
		}
		if !errors.Is(err, errNumberTaken) {
			return nil, err
		}

		s.metrics.IncNumberRetry()
		s.logg.Warn(s.logg.WithFields(ctx, map[string]any{
			"order_number": number,
			"attempt":      attempt,
		}), "order number collision")
	}
	return nil, pkgerrors.New(pkgerrors.CodeConflict, "could not allocate a unique order number").
		WithDetails(map[string]any{"attempts": s.maxAttempts})
}

// place reserves stock and writes the header and items in one transaction.
func (s *service) place(ctx context.Context, actor auth.Actor, lines []LineInput, total decimal.Decimal, shipping ShippingInput, proofRef, number string) (*models.Order, error) {
	var created *models.Order
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)

		// rows are locked in product id order so concurrent orders cannot deadlock
		ordered := slices.Clone(lines)
		slices.SortStableFunc(ordered, func(a, b LineInput) int { return cmp.Compare(a.ProductID, b.ProductID) })

		items := make([]models.OrderItem, 0, len(ordered))
		var shortages []StockShortage
		for _, line := range ordered {
			product, err := repo.FindActiveProduct(ctx, line.ProductID)
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return pkgerrors.New(pkgerrors.CodeValidation, "product is not available").
					WithDetails(map[string]any{"productId": line.ProductID})
			}
			if err != nil {
				return pkgerrors.Wrap(pkgerrors.CodeStorage, err, "load product")
			}
			if !product.Price.Equal(*line.Price) {
				return pkgerrors.New(pkgerrors.CodeValidation, "product price has changed").
					WithDetails(map[string]any{
						"productId": line.ProductID,
						"submitted": line.Price.StringFixed(2),
						"current":   product.Price.StringFixed(2),
					})
			}

			ok, err := repo.DecrementStock(ctx, line.ProductID, line.Quantity)
			if err != nil {
				return pkgerrors.Wrap(pkgerrors.CodeStorage, err, "reserve stock")
			}
			if !ok {
				shortages = append(shortages, StockShortage{
					ProductID: line.ProductID,
					Requested: line.Quantity,
					Available: product.Stock,
				})
				continue
			}

			items = append(items, models.OrderItem{
				ProductID:   product.ID,
				ProductName: product.Name,
				Price:       product.Price,
				Quantity:    line.Quantity,
			})
		}
		if len(shortages) > 0 {
			return pkgerrors.New(pkgerrors.CodeInsufficient, "insufficient stock").
				WithDetails(map[string]any{"items": shortages})
		}

		userID := actor.UserID
		order := &models.Order{
			UserID:          &userID,
			OrderNumber:     number,
			Total:           total,
			Status:          enums.OrderStatusPending,
			ShippingName:    shipping.Name,
			ShippingPhone:   shipping.Phone,
			ShippingAddress: shipping.Address,
		}
		if proofRef != "" {
			order.BankProof = &proofRef
		}
		if err := repo.CreateOrder(ctx, order); err != nil {
			if errors.Is(err, errNumberTaken) {
				return err
			}
			return pkgerrors.Wrap(pkgerrors.CodeStorage, err, "create order")
		}

		for i := range items {
			items[i].OrderID = order.ID
		}
		if err := repo.CreateOrderItems(ctx, items); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeStorage, err, "create order items")
		}

		order.Items = items
		created = order
		return nil
	})
	if err != nil {
		return nil, err
	}
	return created, nil
}

func (s *service) List(ctx context.Context, actor auth.Actor, params ListParams) (*OrderList, error) {
	if !actor.IsAuthenticated() {
		return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "authentication required")
	}
	if params.Status != nil && !params.Status.IsValid() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "invalid status filter").
			WithDetails(map[string]any{"status": params.Status.String()})
	}
	if _, err := pagination.ParseCursor(params.Cursor); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid cursor")
	}

	filters := ListFilters{Status: params.Status}
	if actor.IsAdmin() {
		filters.UserID = params.UserID
	} else {
		userID := actor.UserID
		filters.UserID = &userID
	}

	limit := pagination.NormalizeLimit(params.Limit)
	rows, err := s.repo.ListOrders(ctx, filters, pagination.Params{Limit: limit, Cursor: params.Cursor})
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeStorage, err, "list orders")
	}

	var nextCursor string
	if len(rows) > limit {
		rows = rows[:limit]
		nextCursor = pagination.EncodeCursor(pagination.Cursor{ID: rows[len(rows)-1].ID})
	}

	dtos, err := s.present(ctx, actor, rows)
	if err != nil {
		return nil, err
	}
	return &OrderList{Orders: dtos, NextCursor: nextCursor}, nil
}

func (s *service) Get(ctx context.Context, actor auth.Actor, orderID int64) (*OrderDTO, error) {
	if !actor.IsAuthenticated() {
		return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "authentication required")
	}
	order, err := s.loadVisible(ctx, actor, orderID)
	if err != nil {
		return nil, err
	}
	dtos, err := s.present(ctx, actor, []models.Order{*order})
	if err != nil {
		return nil, err
	}
	return &dtos[0], nil
}

func (s *service) UpdateStatus(ctx context.Context, actor auth.Actor, orderID int64, status enums.OrderStatus) (*OrderDTO, error) {
	if err := requireAdmin(actor); err != nil {
		return nil, err
	}
	if !status.IsValid() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "invalid status").
			WithDetails(map[string]any{"status": status.String()})
	}
	ctx = s.logg.WithOrderID(ctx, orderID)

	var from enums.OrderStatus
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)

		order, err := repo.FindOrder(ctx, orderID)
		if err != nil {
			return notFoundOrStorage(err, orderID)
		}
		from = order.Status
		if from == status {
			return nil
		}
		if !CanTransition(from, status) {
			return pkgerrors.New(pkgerrors.CodeStateConflict, "status transition not allowed").
				WithDetails(map[string]any{"from": from, "to": status})
		}

		if status == enums.OrderStatusCancelled && from.HoldsStock() {
			if err := restoreItems(ctx, repo, order.Items); err != nil {
				return err
			}
		}

		ok, err := repo.UpdateStatus(ctx, orderID, from, status)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeStorage, err, "update order status")
		}
		if !ok {
			return pkgerrors.New(pkgerrors.CodeConflict, "order status changed concurrently")
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	if from != status {
		s.metrics.IncTransition(from.String(), status.String())
		s.logg.Info(s.logg.WithFields(ctx, map[string]any{
			"from": from.String(),
			"to":   status.String(),
		}), "order status updated")
	}
	return s.Get(ctx, actor, orderID)
}

func (s *service) Delete(ctx context.Context, actor auth.Actor, orderID int64) error {
	if err := requireAdmin(actor); err != nil {
		return err
	}
	ctx = s.logg.WithOrderID(ctx, orderID)

	var proofRef string
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)

		order, err := repo.FindOrder(ctx, orderID)
		if err != nil {
			return notFoundOrStorage(err, orderID)
		}
		if order.Status.HoldsStock() {
			if err := restoreItems(ctx, repo, order.Items); err != nil {
				return err
			}
		}
		if err := repo.DeleteOrder(ctx, orderID); err != nil {
			return notFoundOrStorage(err, orderID)
		}
		if order.BankProof != nil {
			proofRef = *order.BankProof
		}
		return nil
	})
	if err != nil {
		return err
	}

	if proofRef != "" {
		if rmErr := s.proofs.Remove(ctx, proofRef); rmErr != nil {
			s.logg.Warn(s.logg.WithField(ctx, "error", rmErr.Error()), "order deleted but payment proof was not removed")
		}
	}
	s.logg.Info(ctx, "order deleted")
	return nil
}

func (s *service) ProofReference(ctx context.Context, actor auth.Actor, orderID int64) (string, error) {
	if err := requireAdmin(actor); err != nil {
		return "", err
	}
	order, err := s.repo.FindOrder(ctx, orderID)
	if err != nil {
		return "", notFoundOrStorage(err, orderID)
	}
	if order.BankProof == nil || *order.BankProof == "" {
		return "", pkgerrors.New(pkgerrors.CodeNotFound, "order has no payment proof")
	}
	return *order.BankProof, nil
}

// loadVisible returns the order when the caller owns it or is an admin.
// Orders of other customers are reported as missing.
func (s *service) loadVisible(ctx context.Context, actor auth.Actor, orderID int64) (*models.Order, error) {
	order, err := s.repo.FindOrder(ctx, orderID)
	if err != nil {
		return nil, notFoundOrStorage(err, orderID)
	}
	if actor.IsAdmin() {
		return order, nil
	}
	if order.UserID == nil || *order.UserID != actor.UserID {
		return nil, pkgerrors.NotFound("order", orderID)
	}
	return order, nil
}

// present maps rows to DTOs, adding current product data and, for admins, the
// customer's name and email.
func (s *service) present(ctx context.Context, actor auth.Actor, rows []models.Order) ([]OrderDTO, error) {
	productSet := map[int64]struct{}{}
	userSet := map[int64]struct{}{}
	for _, row := range rows {
		for _, item := range row.Items {
			productSet[item.ProductID] = struct{}{}
		}
		if row.UserID != nil {
			userSet[*row.UserID] = struct{}{}
		}
	}

	products, err := s.repo.ProductsByIDs(ctx, keys(productSet))
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeStorage, err, "load order products")
	}
	var users map[int64]models.User
	if actor.IsAdmin() {
		users, err = s.repo.UsersByIDs(ctx, keys(userSet))
		if err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeStorage, err, "load order customers")
		}
	}

	out := make([]OrderDTO, 0, len(rows))
	for _, row := range rows {
		out = append(out, toOrderDTO(row, products, users))
	}
	return out, nil
}

func restoreItems(ctx context.Context, repo Repository, items []models.OrderItem) error {
	for _, item := range items {
		if err := repo.RestoreStock(ctx, item.ProductID, item.Quantity); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeStorage, err, "restore stock")
		}
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

func notFoundOrStorage(err error, orderID int64) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return pkgerrors.NotFound("order", orderID)
	}
	return pkgerrors.Wrap(pkgerrors.CodeStorage, err, "load order")
}

func failureReason(err error) string {
	typed := pkgerrors.As(err)
	if typed == nil {
		return metrics.ReasonStorage
	}
	switch typed.Code() {
	case pkgerrors.CodeValidation:
		return metrics.ReasonValidation
	case pkgerrors.CodeUnauthorized, pkgerrors.CodeForbidden:
		return metrics.ReasonUnauthorized
	case pkgerrors.CodeInsufficient:
		return metrics.ReasonStock
	case pkgerrors.CodeConflict:
		return metrics.ReasonConflict
	case pkgerrors.CodeDependency:
		return metrics.ReasonUpload
	default:
		return metrics.ReasonStorage
	}
}

func keys(set map[int64]struct{}) []int64 {
	out := make([]int64, 0, len(set))
	for id := range set {
		out = append(out, id)
	}
	return out
}
