package migrate

import (
	"context"
	"fmt"

	"github.com/angelmondragon/ohya-backend/pkg/config"
	"github.com/angelmondragon/ohya-backend/pkg/db"
	"github.com/angelmondragon/ohya-backend/pkg/logger"
)

// MaybeRunAuto brings the schema current at startup when the auto-migrate flag
// is set. Postgres backends only auto-run in dev; the embedded sqlite file has
// no separate migration step, so it always honors the flag.
func MaybeRunAuto(ctx context.Context, cfg *config.Config, logg *logger.Logger, client *db.Client) error {
	if !cfg.FeatureFlags.AutoMigrate {
		return nil
	}
	if client.Driver() != config.DBDriverSQLite && !cfg.App.IsDev() {
		return nil
	}

	meta := map[string]any{"env": cfg.App.Env, "dir": DefaultDir, "db_driver": client.Driver()}
	ctx = logg.WithFields(ctx, meta)
	logg.Info(ctx, "running schema migrations (auto-run)")

	if err := Up(ctx, client, DefaultDir); err != nil {
		return fmt.Errorf("running migrations: %w", err)
	}

	logg.Info(ctx, "schema migrations completed")
	return nil
}
