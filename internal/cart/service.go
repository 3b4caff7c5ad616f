package cart

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/ohya-backend/pkg/auth"
	"github.com/angelmondragon/ohya-backend/pkg/db/models"
	pkgerrors "github.com/angelmondragon/ohya-backend/pkg/errors"
	"github.com/angelmondragon/ohya-backend/pkg/logger"
)

const (
	// DefaultTTL is how long an untouched cart survives.
	DefaultTTL = 7 * 24 * time.Hour

	maxLines    = 100
	maxQuantity = 999
)

type store interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key string, value any, ttl time.Duration) error
	Del(ctx context.Context, keys ...string) error
	CartKey(userID int64) string
}

type productLookup interface {
	ActiveByIDs(ctx context.Context, ids []int64) (map[int64]models.Product, error)
}

// Line is one stored cart entry.
type Line struct {
	ProductID int64 `json:"productId"`
	Quantity  int   `json:"quantity"`
}

type record struct {
	Lines     []Line    `json:"lines"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// Item is a cart line priced against the current catalog.
type Item struct {
	ProductID int64           `json:"productId"`
	Name      string          `json:"name"`
	Price     decimal.Decimal `json:"price"`
	Quantity  int             `json:"quantity"`
	Subtotal  decimal.Decimal `json:"subtotal"`
	Image     *string         `json:"image,omitempty"`
	Available int             `json:"available"`
}

// Cart is the priced view returned to clients. The items and total feed
// directly into an order submission.
type Cart struct {
	Items     []Item          `json:"items"`
	Total     decimal.Decimal `json:"total"`
	UpdatedAt *time.Time      `json:"updatedAt,omitempty"`
}

// Service keeps one cart per signed-in user in redis.
type Service struct {
	store    store
	products productLookup
	ttl      time.Duration
	logg     *logger.Logger
	now      func() time.Time
}

// NewService wires the session cart.
func NewService(store store, products productLookup, ttl time.Duration, logg *logger.Logger) (*Service, error) {
	if store == nil {
		return nil, fmt.Errorf("cart store required")
	}
	if products == nil {
		return nil, fmt.Errorf("product lookup required")
	}
	if logg == nil {
		return nil, fmt.Errorf("logger required")
	}
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Service{store: store, products: products, ttl: ttl, logg: logg, now: time.Now}, nil
}

// Get returns the caller's cart. Lines whose product is no longer active are
// dropped from the view.
func (s *Service) Get(ctx context.Context, actor auth.Actor) (*Cart, error) {
	if !actor.IsAuthenticated() {
		return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "authentication required")
	}
	rec, err := s.load(ctx, actor.UserID)
	if err != nil {
		return nil, err
	}
	return s.price(ctx, rec)
}

// Replace stores the given lines as the caller's cart. Duplicate products are
// merged; quantities above current stock are rejected.
func (s *Service) Replace(ctx context.Context, actor auth.Actor, lines []Line) (*Cart, error) {
	if !actor.IsAuthenticated() {
		return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "authentication required")
	}
	merged, err := mergeLines(lines)
	if err != nil {
		return nil, err
	}

	ids := make([]int64, 0, len(merged))
	for _, line := range merged {
		ids = append(ids, line.ProductID)
	}
	products, err := s.products.ActiveByIDs(ctx, ids)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeStorage, err, "load cart products")
	}
	details := map[string]any{}
	for _, line := range merged {
		product, ok := products[line.ProductID]
		switch {
		case !ok:
			details[fmt.Sprint(line.ProductID)] = "product is not available"
		case line.Quantity > product.Stock:
			details[fmt.Sprint(line.ProductID)] = fmt.Sprintf("only %d in stock", product.Stock)
		}
	}
	if len(details) > 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "cart contains unavailable items").WithDetails(details)
	}

	rec := record{Lines: merged, UpdatedAt: s.now().UTC()}
	payload, err := json.Marshal(rec)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "encode cart")
	}
	if err := s.store.Set(ctx, s.store.CartKey(actor.UserID), payload, s.ttl); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "save cart")
	}
	return s.price(ctx, &rec)
}

// Clear drops the user's cart.
func (s *Service) Clear(ctx context.Context, userID int64) error {
	if userID <= 0 {
		return nil
	}
	if err := s.store.Del(ctx, s.store.CartKey(userID)); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "clear cart")
	}
	return nil
}

func (s *Service) load(ctx context.Context, userID int64) (*record, error) {
	raw, err := s.store.Get(ctx, s.store.CartKey(userID))
	if errors.Is(err, redis.Nil) {
		return &record{}, nil
	}
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load cart")
	}
	var rec record
	if err := json.Unmarshal([]byte(raw), &rec); err != nil {
		s.logg.Warn(s.logg.WithField(ctx, "user_id", userID), "discarding unreadable cart")
		return &record{}, nil
	}
	return &rec, nil
}

func (s *Service) price(ctx context.Context, rec *record) (*Cart, error) {
	cart := &Cart{Items: []Item{}, Total: decimal.Zero}
	if !rec.UpdatedAt.IsZero() {
		updated := rec.UpdatedAt
		cart.UpdatedAt = &updated
	}
	if len(rec.Lines) == 0 {
		return cart, nil
	}

	ids := make([]int64, 0, len(rec.Lines))
	for _, line := range rec.Lines {
		ids = append(ids, line.ProductID)
	}
	products, err := s.products.ActiveByIDs(ctx, ids)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeStorage, err, "load cart products")
	}

	for _, line := range rec.Lines {
		product, ok := products[line.ProductID]
		if !ok {
			continue
		}
		subtotal := product.Price.Mul(decimal.NewFromInt(int64(line.Quantity)))
		cart.Items = append(cart.Items, Item{
			ProductID: product.ID,
			Name:      product.Name,
			Price:     product.Price,
			Quantity:  line.Quantity,
			Subtotal:  subtotal,
			Image:     product.Image,
			Available: product.Stock,
		})
		cart.Total = cart.Total.Add(subtotal)
	}
	return cart, nil
}

func mergeLines(lines []Line) ([]Line, error) {
	if len(lines) > maxLines {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("cart may hold at most %d lines", maxLines))
	}
	quantities := map[int64]int{}
	for i, line := range lines {
		if line.ProductID <= 0 || line.Quantity <= 0 {
			return nil, pkgerrors.New(pkgerrors.CodeValidation, "invalid cart line").
				WithDetails(map[string]any{"index": i})
		}
		if line.Quantity > maxQuantity || quantities[line.ProductID] > maxQuantity-line.Quantity {
			return nil, quantityTooLarge(line.ProductID)
		}
		quantities[line.ProductID] += line.Quantity
	}

	merged := make([]Line, 0, len(quantities))
	for id, qty := range quantities {
		merged = append(merged, Line{ProductID: id, Quantity: qty})
	}
	sort.Slice(merged, func(i, j int) bool { return merged[i].ProductID < merged[j].ProductID })
	return merged, nil
}

func quantityTooLarge(productID int64) error {
	return pkgerrors.New(pkgerrors.CodeValidation, "quantity too large").
		WithDetails(map[string]any{"productId": productID, "max": maxQuantity})
}
