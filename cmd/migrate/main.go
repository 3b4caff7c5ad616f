package main

import (
	"context"
	"database/sql"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"github.com/angelmondragon/ohya-backend/internal/seed"
	"github.com/angelmondragon/ohya-backend/pkg/config"
	"github.com/angelmondragon/ohya-backend/pkg/db"
	"github.com/angelmondragon/ohya-backend/pkg/logger"
	"github.com/angelmondragon/ohya-backend/pkg/migrate"
)

type options struct {
	cmd     string
	dir     string
	name    string
	version string
}

func main() {
	_ = godotenv.Load()

	opts := options{}
	flag.StringVar(&opts.cmd, "cmd", "up", "up|up-by-one|down|redo|status|version|create|validate|seed")
	flag.StringVar(&opts.dir, "dir", migrate.DefaultDir, "goose migrations directory")
	flag.StringVar(&opts.name, "name", "", "migration name (create)")
	flag.StringVar(&opts.version, "version", "", "target version YYYYMMDDHHMMSS (version)")
	flag.Parse()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, opts); err != nil {
		fmt.Fprintf(os.Stderr, "migrate %s: %v\n", opts.cmd, err)
		stop()
		os.Exit(1)
	}
}

func run(ctx context.Context, opts options) error {
	// offline commands work without config or a database
	switch opts.cmd {
	case "create":
		if opts.name == "" {
			return errors.New("missing -name")
		}
		path, err := migrate.CreateSQLMigration(opts.dir, opts.name)
		if err != nil {
			return err
		}
		fmt.Println("created migration:", path)
		return nil
	case "validate":
		if err := migrate.ValidateDir(opts.dir); err != nil {
			return err
		}
		fmt.Println("migration validation passed")
		return nil
	}

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	logg := logger.New(logger.Options{
		ServiceName: "ohya-migrate",
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		WarnStack:   cfg.App.LogWarnStack,
		Format:      cfg.App.LogFormat,
	})
	ctx = logg.WithFields(ctx, map[string]any{
		"env":       cfg.App.Env,
		"cmd":       opts.cmd,
		"dir":       opts.dir,
		"db_driver": cfg.DB.Driver,
	})

	client, err := db.New(ctx, cfg.DB, logg)
	if err != nil {
		return fmt.Errorf("connect database: %w", err)
	}
	defer client.Close()

	logg.Info(ctx, "migrate.start")

	switch opts.cmd {
	case "up":
		err = migrate.Up(ctx, client, opts.dir)
	case "seed":
		err = runSeed(ctx, client, cfg, logg, opts.dir)
	case "version":
		if opts.version == "" {
			return errors.New("missing -version")
		}
		err = withSQL(client, func(sqlDB *sql.DB) error {
			return migrate.MigrateToVersion(ctx, sqlDB, opts.dir, opts.version)
		})
	default:
		if client.Driver() == config.DBDriverSQLite {
			return fmt.Errorf("%q is only supported for postgres; sqlite schemas come from the models", opts.cmd)
		}
		err = withSQL(client, func(sqlDB *sql.DB) error {
			return migrate.Run(ctx, sqlDB, opts.dir, opts.cmd)
		})
	}
	if err != nil {
		return err
	}

	logg.Info(ctx, "migrate.done")
	return nil
}

func runSeed(ctx context.Context, client *db.Client, cfg *config.Config, logg *logger.Logger, dir string) error {
	if err := migrate.Up(ctx, client, dir); err != nil {
		return err
	}
	result, err := seed.Run(ctx, client, *cfg, logg)
	if err != nil {
		return fmt.Errorf("seed: %w", err)
	}
	fmt.Printf("seed complete: admin_created=%t products_inserted=%d\n", result.AdminCreated, result.ProductsInserted)
	return nil
}

func withSQL(client *db.Client, fn func(*sql.DB) error) error {
	sqlDB, err := client.DB().DB()
	if err != nil {
		return fmt.Errorf("extracting sql.DB: %w", err)
	}
	return fn(sqlDB)
}
