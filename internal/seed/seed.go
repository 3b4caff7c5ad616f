// Package seed provisions the bootstrap admin account and a starter catalog.
package seed

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/angelmondragon/ohya-backend/internal/users"
	"github.com/angelmondragon/ohya-backend/pkg/config"
	"github.com/angelmondragon/ohya-backend/pkg/db"
	"github.com/angelmondragon/ohya-backend/pkg/db/models"
	"github.com/angelmondragon/ohya-backend/pkg/logger"
	"github.com/angelmondragon/ohya-backend/pkg/security"
)

// Result reports what a run inserted.
type Result struct {
	AdminCreated     bool
	ProductsInserted int
}

type sampleProduct struct {
	name        string
	description string
	price       string
	category    string
	image       string
	stock       int
}

var sampleProducts = []sampleProduct{
	{"Aroma Diffuser", "Ultrasonic diffuser with seven light settings", "599", "Wellness", "/uploads/products/diffuser1.jpg", 50},
	{"Couples Massage Set", "Massage oil set with warming effect", "399", "Massage", "/uploads/products/massage1.jpg", 30},
	{"Silk Sleep Set", "Two-piece silk sleepwear, black", "299", "Apparel", "/uploads/products/silk1.jpg", 25},
	{"Starter Gift Box", "Curated starter box for first-time shoppers", "888", "Gift Sets", "/uploads/products/gift1.jpg", 20},
	{"Hydrating Gel", "Water-based hydrating gel, fragrance free", "158", "Care", "/uploads/products/gel1.jpg", 100},
	{"Scented Candle Trio", "Three soy candles in travel tins", "249", "Wellness", "/uploads/products/candle1.jpg", 40},
}

// Run creates the configured admin when no admin exists and inserts the sample
// catalog when the products table is empty. Running it twice changes nothing.
func Run(ctx context.Context, client *db.Client, cfg config.Config, logg *logger.Logger) (Result, error) {
	if client == nil {
		return Result{}, fmt.Errorf("db client is required")
	}

	var result Result
	err := client.WithTx(ctx, func(tx *gorm.DB) error {
		created, err := ensureAdmin(ctx, tx, cfg.Seed, cfg.Password)
		if err != nil {
			return err
		}
		result.AdminCreated = created

		inserted, err := ensureProducts(ctx, tx)
		if err != nil {
			return err
		}
		result.ProductsInserted = inserted
		return nil
	})
	if err != nil {
		return Result{}, err
	}

	if logg != nil {
		ctx = logg.WithFields(ctx, map[string]any{
			"admin_created":     result.AdminCreated,
			"products_inserted": result.ProductsInserted,
		})
		logg.Info(ctx, "seed complete")
	}
	return result, nil
}

func ensureAdmin(ctx context.Context, tx *gorm.DB, seedCfg config.SeedConfig, pwCfg config.PasswordConfig) (bool, error) {
	repo := users.NewRepository(tx)
	exists, err := repo.AdminExists(ctx)
	if err != nil {
		return false, fmt.Errorf("check admin: %w", err)
	}
	if exists {
		return false, nil
	}
	if seedCfg.AdminEmail == "" || seedCfg.AdminPassword == "" {
		return false, fmt.Errorf("admin email and password are required to seed")
	}

	hash, err := security.HashPassword(seedCfg.AdminPassword, pwCfg)
	if err != nil {
		return false, fmt.Errorf("hash admin password: %w", err)
	}
	name := seedCfg.AdminName
	if name == "" {
		name = "Administrator"
	}
	if _, err := repo.Create(ctx, users.CreateUserDTO{
		Email:        seedCfg.AdminEmail,
		PasswordHash: hash,
		Name:         name,
		IsAdmin:      true,
	}); err != nil {
		return false, fmt.Errorf("create admin: %w", err)
	}
	return true, nil
}

func ensureProducts(ctx context.Context, tx *gorm.DB) (int, error) {
	var count int64
	if err := tx.WithContext(ctx).Model(&models.Product{}).Count(&count).Error; err != nil {
		return 0, fmt.Errorf("count products: %w", err)
	}
	if count > 0 {
		return 0, nil
	}

	rows := make([]models.Product, 0, len(sampleProducts))
	for _, p := range sampleProducts {
		description := p.description
		category := p.category
		image := p.image
		rows = append(rows, models.Product{
			Name:        p.name,
			Description: &description,
			Price:       decimal.RequireFromString(p.price),
			Category:    &category,
			Image:       &image,
			Stock:       p.stock,
			Active:      true,
		})
	}
	if err := tx.WithContext(ctx).Omit("Variants").Create(&rows).Error; err != nil {
		return 0, fmt.Errorf("insert products: %w", err)
	}
	return len(rows), nil
}
