package migrate

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strconv"

	"github.com/pressly/goose/v3"
	"gorm.io/gorm"

	"github.com/angelmondragon/feedledger-backend/pkg/db"
	"github.com/angelmondragon/feedledger-backend/pkg/db/models"
	"github.com/angelmondragon/feedledger-backend/pkg/logger"
)

// DefaultDir is relative to the repository root.
const DefaultDir = "pkg/migrate/migrations"

// Commands accepted by Apply.
const (
	CmdUp      = "up"
	CmdDown    = "down"
	CmdStatus  = "status"
	CmdVersion = "version"
)

// Apply runs command against conn. Postgres goes through goose using the
// SQL files in dir; the migrations rely on postgres enums and partial
// indexes. Sqlite only supports "up", which builds the schema from the
// gorm models. target is the YYYYMMDDHHMMSS version for CmdVersion.
func Apply(ctx context.Context, conn *gorm.DB, logg *logger.Logger, dir, command, target string) error {
	if conn == nil {
		return errors.New("db is required")
	}
	if db.IsSQLite(conn) {
		if command != CmdUp {
			return fmt.Errorf("command %q is not supported on sqlite", command)
		}
		if err := conn.WithContext(ctx).AutoMigrate(models.All()...); err != nil {
			return fmt.Errorf("auto-migrate sqlite schema: %w", err)
		}
		return nil
	}

	sqlDB, err := conn.DB()
	if err != nil {
		return fmt.Errorf("extract sql.DB: %w", err)
	}
	provider, err := goose.NewProvider(goose.DialectPostgres, sqlDB, os.DirFS(dir))
	if err != nil {
		return fmt.Errorf("load migrations from %s: %w", dir, err)
	}

	var results []*goose.MigrationResult
	switch command {
	case CmdUp:
		results, err = provider.Up(ctx)
	case CmdDown:
		var res *goose.MigrationResult
		res, err = provider.Down(ctx)
		if res != nil {
			results = append(results, res)
		}
	case CmdVersion:
		results, err = toVersion(ctx, provider, target)
	case CmdStatus:
		return logStatus(ctx, provider, logg)
	default:
		return fmt.Errorf("unknown migrate command %q", command)
	}
	logResults(ctx, logg, results)
	if err != nil {
		return fmt.Errorf("goose %s: %w", command, err)
	}
	return nil
}

func toVersion(ctx context.Context, provider *goose.Provider, target string) ([]*goose.MigrationResult, error) {
	version, err := ParseVersion(target)
	if err != nil {
		return nil, err
	}
	current, err := provider.GetDBVersion(ctx)
	if err != nil {
		return nil, fmt.Errorf("get db version: %w", err)
	}
	switch {
	case current < version:
		return provider.UpTo(ctx, version)
	case current > version:
		return provider.DownTo(ctx, version)
	}
	return nil, nil
}

func logResults(ctx context.Context, logg *logger.Logger, results []*goose.MigrationResult) {
	if logg == nil {
		return
	}
	for _, res := range results {
		if res == nil || res.Source == nil {
			continue
		}
		logg.Info(logg.WithFields(ctx, map[string]any{
			"version":     res.Source.Version,
			"direction":   res.Direction,
			"duration_ms": res.Duration.Milliseconds(),
		}), "migration applied")
	}
}

func logStatus(ctx context.Context, provider *goose.Provider, logg *logger.Logger) error {
	statuses, err := provider.Status(ctx)
	if err != nil {
		return fmt.Errorf("goose status: %w", err)
	}
	if logg == nil {
		return nil
	}
	for _, st := range statuses {
		fields := map[string]any{"version": st.Source.Version, "state": string(st.State)}
		if !st.AppliedAt.IsZero() {
			fields["applied_at"] = st.AppliedAt
		}
		logg.Info(logg.WithFields(ctx, fields), "migration status")
	}
	return nil
}

// ParseVersion validates a YYYYMMDDHHMMSS migration version.
func ParseVersion(value string) (int64, error) {
	if len(value) != len(versionLayout) {
		return 0, fmt.Errorf("invalid version %q (expected YYYYMMDDHHMMSS)", value)
	}
	version, err := strconv.ParseInt(value, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid version %q (expected YYYYMMDDHHMMSS): %w", value, err)
	}
	return version, nil
}
