package migrate

import (
	"context"
	"fmt"

	"github.com/angelmondragon/feedledger-backend/pkg/config"
	"github.com/angelmondragon/feedledger-backend/pkg/db"
	"github.com/angelmondragon/feedledger-backend/pkg/logger"
)

// MaybeRunDev brings the schema up on boot. It only runs in dev with
// FEEDLEDGER_AUTO_MIGRATE set, or whenever the database is sqlite since
// sqlite has no separate migrate step.
func MaybeRunDev(ctx context.Context, cfg *config.Config, logg *logger.Logger, client *db.Client) error {
	conn := client.DB()
	sqlite := db.IsSQLite(conn)
	if !sqlite && !(cfg.App.IsDev() && cfg.FeatureFlags.AutoMigrate) {
		return nil
	}

	ctx = logg.WithFields(ctx, map[string]any{"env": cfg.App.Env, "sqlite": sqlite})
	if err := Apply(ctx, conn, logg, DefaultDir, CmdUp, ""); err != nil {
		return fmt.Errorf("boot migrations: %w", err)
	}
	logg.Info(ctx, "schema is up to date")
	return nil
}
