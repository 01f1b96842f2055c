package commands

import (
	"context"
	"errors"
	"fmt"

	"github.com/robalyx/repbot/internal/database"
	"github.com/robalyx/repbot/internal/database/migrations"
	"github.com/robalyx/repbot/internal/database/postgres"
	"github.com/robalyx/repbot/internal/setup/config"
	"github.com/uptrace/bun/migrate"
	"go.uber.org/zap"
)

var (
	ErrFileRequired = errors.New("FILE argument required")
	ErrPostgresOnly = errors.New("migrations only apply to the postgres storage driver")
)

// CLIDependencies holds the common dependencies needed by CLI commands.
type CLIDependencies struct {
	Config *config.Config
	Logger *zap.Logger
}

// OpenStore opens the configured reputation store.
func (d *CLIDependencies) OpenStore(ctx context.Context) (database.Store, error) {
	store, err := database.Open(ctx, &d.Config.Common, d.Logger, false)
	if err != nil {
		return nil, fmt.Errorf("failed to open store: %w", err)
	}

	return store, nil
}

// withMigrator connects to PostgreSQL and runs fn with a migrator.
func (d *CLIDependencies) withMigrator(fn func(migrator *migrate.Migrator) error) error {
	if d.Config.Common.Storage.Driver != config.DriverPostgres {
		return ErrPostgresOnly
	}

	db := postgres.Connect(&d.Config.Common.PostgreSQL, d.Logger)
	defer db.Close()

	return fn(migrate.NewMigrator(db, migrations.Migrations))
}
