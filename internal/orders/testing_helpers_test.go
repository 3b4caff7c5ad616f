package orders

import (
	"context"
	"fmt"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/ohya-backend/internal/uploads"
	"github.com/angelmondragon/ohya-backend/pkg/auth"
	"github.com/angelmondragon/ohya-backend/pkg/db"
	"github.com/angelmondragon/ohya-backend/pkg/db/dbtest"
	"github.com/angelmondragon/ohya-backend/pkg/enums"
	"github.com/angelmondragon/ohya-backend/pkg/logger"
)

type fakeProofs struct {
	mu       sync.Mutex
	stored   []string
	removed  []string
	storeErr error
}

func (f *fakeProofs) Store(_ context.Context, kind enums.UploadKind, _ uploads.File) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.storeErr != nil {
		return "", f.storeErr
	}
	ref := fmt.Sprintf("uploads/%s/proof-%d.png", kind.Dir(), len(f.stored)+1)
	f.stored = append(f.stored, ref)
	return ref, nil
}

func (f *fakeProofs) Remove(_ context.Context, ref string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.removed = append(f.removed, ref)
	return nil
}

type fakeCarts struct {
	mu      sync.Mutex
	cleared []int64
	err     error
}

func (f *fakeCarts) Clear(_ context.Context, userID int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.cleared = append(f.cleared, userID)
	return f.err
}

type fixture struct {
	client   *db.Client
	svc      Service
	proofs   *fakeProofs
	carts    *fakeCarts
	customer auth.Actor
	other    auth.Actor
	admin    auth.Actor
}

func newFixture(t *testing.T, opts Options) *fixture {
	t.Helper()
	return newFixtureWithRepo(t, opts, nil)
}

func newFixtureWithRepo(t *testing.T, opts Options, wrap func(Repository) Repository) *fixture {
	t.Helper()

	client := dbtest.Open(t)
	customer := dbtest.SeedUser(t, client, "ana@example.com", false)
	other := dbtest.SeedUser(t, client, "ben@example.com", false)
	admin := dbtest.SeedUser(t, client, "admin@example.com", true)

	var repo Repository = NewRepository(client.DB())
	if wrap != nil {
		repo = wrap(repo)
	}
	if opts.Logger == nil {
		opts.Logger = logger.New(logger.Options{ServiceName: "orders-test", Output: io.Discard})
	}
	if opts.TotalTolerance.IsZero() {
		opts.TotalTolerance = decimal.RequireFromString("0.01")
	}

	proofs := &fakeProofs{}
	carts := &fakeCarts{}
	svc, err := NewService(repo, client, proofs, carts, opts)
	require.NoError(t, err)

	return &fixture{
		client:   client,
		svc:      svc,
		proofs:   proofs,
		carts:    carts,
		customer: auth.NewActor(customer.ID, enums.RoleCustomer),
		other:    auth.NewActor(other.ID, enums.RoleCustomer),
		admin:    auth.NewActor(admin.ID, enums.RoleAdmin),
	}
}

func dec(value string) *decimal.Decimal {
	d := decimal.RequireFromString(value)
	return &d
}

func orderInput(total string, lines ...LineInput) CreateOrderInput {
	return CreateOrderInput{
		Items: lines,
		Total: dec(total),
		Shipping: ShippingInput{
			Name:    "Ana Ruiz",
			Phone:   "555-0100",
			Address: "Calle 1, Quito",
		},
	}
}

func line(productID int64, qty int, price string) LineInput {
	return LineInput{ProductID: productID, Quantity: qty, Price: dec(price)}
}

func sequenceNumbers(values ...string) NumberGenerator {
	var mu sync.Mutex
	i := 0
	return func(time.Time) (string, error) {
		mu.Lock()
		defer mu.Unlock()
		value := values[i%len(values)]
		i++
		return value, nil
	}
}
