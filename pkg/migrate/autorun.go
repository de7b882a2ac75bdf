package migrate

import (
	"context"
	"fmt"

	"github.com/qrseal/qrseal-backend/pkg/config"
	"github.com/qrseal/qrseal-backend/pkg/db"
	"github.com/qrseal/qrseal-backend/pkg/logger"
)

// MaybeRunDev brings the schema up at boot, but only in dev with the
// auto-migrate flag set. Other environments run cmd/migrate explicitly.
func MaybeRunDev(ctx context.Context, cfg *config.Config, logg *logger.Logger, client *db.Client) error {
	if !cfg.App.IsDev() || !cfg.FeatureFlags.AutoMigrate {
		return nil
	}
	logg.Info(logg.WithField(ctx, "sqlite", cfg.FeatureFlags.UseSQLite), "auto-migrating dev schema")
	return Up(ctx, client, DefaultDir, cfg.FeatureFlags.UseSQLite, logg)
}

// Up migrates client to the latest schema. SQLite gets the mirrored DDL,
// everything else the goose files under dir.
func Up(ctx context.Context, client *db.Client, dir string, sqlite bool, logg *logger.Logger) error {
	if sqlite {
		return ApplySQLite(ctx, client.DB())
	}
	runner, err := OpenRunner(client, dir, logg)
	if err != nil {
		return err
	}
	return runner.Up(ctx)
}

// OpenRunner builds a goose runner on client's pool.
func OpenRunner(client *db.Client, dir string, logg *logger.Logger) (*Runner, error) {
	sqlDB, err := client.DB().DB()
	if err != nil {
		return nil, fmt.Errorf("unwrap sql.DB: %w", err)
	}
	return NewRunner(sqlDB, dir, logg)
}
