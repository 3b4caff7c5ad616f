// Package dbtest opens throwaway sqlite databases for package tests.
package dbtest

import (
	"context"
	"fmt"
	"testing"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/ohya-backend/pkg/config"
	"github.com/angelmondragon/ohya-backend/pkg/db"
	"github.com/angelmondragon/ohya-backend/pkg/db/models"
	"github.com/angelmondragon/ohya-backend/pkg/migrate"
)

// Open returns a migrated in-memory sqlite client that is closed when the test
// ends. Every call gets its own database.
func Open(t testing.TB) *db.Client {
	t.Helper()

	ctx := context.Background()
	dsn := fmt.Sprintf("file:ohya_%s?mode=memory&cache=shared", uuid.NewString())
	client, err := db.New(ctx, config.DBConfig{Driver: config.DBDriverSQLite, DSN: dsn}, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Close() })

	require.NoError(t, migrate.Up(ctx, client, ""))
	return client
}

// SeedUser inserts a user row and returns it.
func SeedUser(t testing.TB, client *db.Client, email string, admin bool) models.User {
	t.Helper()

	user := models.User{
		Email:        email,
		PasswordHash: "not-a-real-hash",
		Name:         "User " + email,
		IsAdmin:      admin,
	}
	require.NoError(t, client.DB().Create(&user).Error)
	return user
}

// SeedProduct inserts an active product with the given price and stock.
func SeedProduct(t testing.TB, client *db.Client, name string, price string, stock int) models.Product {
	t.Helper()

	product := models.Product{
		Name:   name,
		Price:  decimal.RequireFromString(price),
		Stock:  stock,
		Active: true,
	}
	require.NoError(t, client.DB().Create(&product).Error)
	return product
}

// Stock reads the current stock of a product.
func Stock(t testing.TB, client *db.Client, productID int64) int {
	t.Helper()

	var product models.Product
	require.NoError(t, client.DB().Select("stock").Where("id = ?", productID).Take(&product).Error)
	return product.Stock
}

// Count returns the row count of a table.
func Count(t testing.TB, client *db.Client, table string) int64 {
	t.Helper()

	var n int64
	require.NoError(t, client.DB().Table(table).Count(&n).Error)
	return n
}
