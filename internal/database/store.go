// Package database stores reputation totals.
package database

import (
	"context"
	"errors"
	"fmt"

	"github.com/disgoorg/snowflake/v2"
	"github.com/robalyx/repbot/internal/database/postgres"
	"github.com/robalyx/repbot/internal/database/sqlite"
	"github.com/robalyx/repbot/internal/database/types"
	"github.com/robalyx/repbot/internal/setup/config"
	"go.uber.org/zap"
)

// ErrUnknownDriver indicates the configured storage driver is not supported.
var ErrUnknownDriver = errors.New("unknown storage driver")

// Store defines the operations every reputation backend must implement.
type Store interface {
	// GetTotal returns the user's total, or 0 when the user has none.
	GetTotal(ctx context.Context, userID snowflake.ID) (int64, error)
	// AddDelta adds delta to the user's total and returns the new total.
	AddDelta(ctx context.Context, userID snowflake.ID, delta int64) (int64, error)
	// SetTotal overwrites the user's total.
	SetTotal(ctx context.Context, userID snowflake.ID, total int64) error
	// TopN returns the n highest totals, highest first.
	TopN(ctx context.Context, n int) ([]types.RepTotal, error)
	// Close releases the underlying connections.
	Close() error
}

// Open connects to the backend selected by common.storage.driver.
// autoMigrate only applies to PostgreSQL; the SQLite schema is always created.
func Open(ctx context.Context, cfg *config.CommonConfig, logger *zap.Logger, autoMigrate bool) (Store, error) {
	switch cfg.Storage.Driver {
	case config.DriverSQLite, "":
		store, err := sqlite.Open(ctx, cfg.Storage.SQLitePath, cfg.Storage.PoolSize, logger)
		if err != nil {
			return nil, fmt.Errorf("failed to open sqlite store: %w", err)
		}

		return store, nil
	case config.DriverPostgres:
		store, err := postgres.NewConnection(ctx, &cfg.PostgreSQL, logger, autoMigrate)
		if err != nil {
			return nil, fmt.Errorf("failed to open postgres store: %w", err)
		}

		return store, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownDriver, cfg.Storage.Driver)
	}
}
