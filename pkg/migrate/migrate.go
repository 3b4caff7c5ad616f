package migrate

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"

	"github.com/pressly/goose/v3"

	"github.com/angelmondragon/ohya-backend/pkg/config"
	"github.com/angelmondragon/ohya-backend/pkg/db"
	"github.com/angelmondragon/ohya-backend/pkg/db/models"
)

const (
	DefaultDir = "pkg/migrate/migrations"
	dialect    = "postgres"

	versionLayout = "20060102150405"
)

// sqlCommands are the goose commands the CLI forwards as-is.
var sqlCommands = map[string]struct{}{
	"up":        {},
	"up-by-one": {},
	"down":      {},
	"redo":      {},
	"status":    {},
	"version":   {},
}

var (
	ErrNoDB           = errors.New("db is required")
	ErrUnknownCommand = errors.New("unknown migration command")
	ErrInvalidVersion = errors.New("invalid migration version")
)

// Run forwards command to goose against the SQL migrations in dir.
func Run(ctx context.Context, sqlDB *sql.DB, dir string, command string, args ...string) error {
	if err := prepare(sqlDB, dir); err != nil {
		return err
	}
	if _, ok := sqlCommands[command]; !ok {
		return fmt.Errorf("%w: %q", ErrUnknownCommand, command)
	}
	if err := goose.RunContext(ctx, command, sqlDB, dir, args...); err != nil {
		return fmt.Errorf("goose %s: %w", command, err)
	}
	return nil
}

// CurrentVersion reports the last applied migration version.
func CurrentVersion(sqlDB *sql.DB) (int64, error) {
	if sqlDB == nil {
		return 0, ErrNoDB
	}
	if err := goose.SetDialect(dialect); err != nil {
		return 0, fmt.Errorf("set goose dialect: %w", err)
	}
	v, err := goose.GetDBVersion(sqlDB)
	if err != nil {
		return 0, fmt.Errorf("get db version: %w", err)
	}
	return v, nil
}

// MigrateToVersion moves the schema up or down until target is the applied
// version.
func MigrateToVersion(ctx context.Context, sqlDB *sql.DB, dir string, targetVersion string) error {
	target, err := ParseVersion(targetVersion)
	if err != nil {
		return err
	}
	if err := prepare(sqlDB, dir); err != nil {
		return err
	}

	current, err := CurrentVersion(sqlDB)
	if err != nil {
		return err
	}

	switch {
	case current < target:
		err = goose.UpToContext(ctx, sqlDB, dir, target)
	case current > target:
		err = goose.DownToContext(ctx, sqlDB, dir, target)
	}
	if err != nil {
		return fmt.Errorf("goose migrate %d -> %d: %w", current, target, err)
	}
	return nil
}

// ParseVersion accepts a YYYYMMDDHHMMSS migration version.
func ParseVersion(raw string) (int64, error) {
	if len(raw) != len(versionLayout) {
		return 0, fmt.Errorf("%w %q: expected %d digits", ErrInvalidVersion, raw, len(versionLayout))
	}
	v, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || v <= 0 {
		return 0, fmt.Errorf("%w %q", ErrInvalidVersion, raw)
	}
	return v, nil
}

// Up brings the schema current for the client's driver. Postgres runs the
// goose SQL files; sqlite is built from the gorm models.
func Up(ctx context.Context, client *db.Client, dir string) error {
	if client == nil {
		return ErrNoDB
	}
	if client.Driver() == config.DBDriverSQLite {
		if err := client.DB().WithContext(ctx).AutoMigrate(models.All()...); err != nil {
			return fmt.Errorf("sqlite automigrate: %w", err)
		}
		return nil
	}

	sqlDB, err := client.DB().DB()
	if err != nil {
		return fmt.Errorf("extracting sql.DB: %w", err)
	}
	return Run(ctx, sqlDB, dir, "up")
}

func prepare(sqlDB *sql.DB, dir string) error {
	if sqlDB == nil {
		return ErrNoDB
	}
	if dir == "" {
		return errors.New("migrations dir is required")
	}
	if err := goose.SetDialect(dialect); err != nil {
		return fmt.Errorf("set goose dialect: %w", err)
	}
	return nil
}
