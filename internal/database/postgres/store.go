// Package postgres implements the reputation store on PostgreSQL using bun.
package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/bytedance/sonic"
	"github.com/disgoorg/snowflake/v2"
	"github.com/robalyx/repbot/internal/database/dbretry"
	"github.com/robalyx/repbot/internal/database/migrations"
	"github.com/robalyx/repbot/internal/database/types"
	"github.com/robalyx/repbot/internal/setup/config"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/driver/pgdriver"
	"github.com/uptrace/bun/extra/bunjson"
	"github.com/uptrace/bun/migrate"
	"go.uber.org/zap"
)

// sonicProvider is a JSON provider that uses Sonic for encoding and decoding.
type sonicProvider struct{}

func (sonicProvider) Marshal(v any) ([]byte, error) {
	return sonic.Marshal(v)
}

func (sonicProvider) Unmarshal(data []byte, v any) error {
	return sonic.Unmarshal(data, v)
}

func (sonicProvider) NewEncoder(w io.Writer) bunjson.Encoder {
	return sonic.ConfigDefault.NewEncoder(w)
}

func (sonicProvider) NewDecoder(r io.Reader) bunjson.Decoder {
	return sonic.ConfigDefault.NewDecoder(r)
}

// Store keeps reputation totals in PostgreSQL.
type Store struct {
	db     *bun.DB
	logger *zap.Logger
}

// NewConnection establishes a new database connection and returns a Store.
func NewConnection(
	ctx context.Context, config *config.PostgreSQL, logger *zap.Logger, autoMigrate bool,
) (*Store, error) {
	db := Connect(config, logger)

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to reach database: %w", err)
	}

	// Run migrations if requested
	if autoMigrate {
		migrator := migrate.NewMigrator(db, migrations.Migrations)
		if err := migrator.Init(ctx); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("failed to initialize migrations: %w", err)
		}

		group, err := migrator.Migrate(ctx)
		if err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("failed to run migrations: %w", err)
		}

		if !group.IsZero() {
			logger.Info("Automatically ran migrations", zap.String("group", group.String()))
		}
	}

	logger.Info("Database connection established")

	return &Store{db: db, logger: logger}, nil
}

// Connect opens a bun handle without touching the schema.
// The migration tool uses it directly.
func Connect(config *config.PostgreSQL, logger *zap.Logger) *bun.DB {
	sqldb := sql.OpenDB(pgdriver.NewConnector(
		pgdriver.WithAddr(fmt.Sprintf("%s:%d", config.Host, config.Port)),
		pgdriver.WithUser(config.User),
		pgdriver.WithPassword(config.Password),
		pgdriver.WithDatabase(config.DBName),
		pgdriver.WithInsecure(true),
		pgdriver.WithApplicationName("repbot"),
	))

	// Set connection pool settings
	sqldb.SetMaxOpenConns(config.MaxOpenConns)
	sqldb.SetMaxIdleConns(config.MaxIdleConns)
	sqldb.SetConnMaxLifetime(time.Duration(config.MaxLifetime) * time.Minute)
	sqldb.SetConnMaxIdleTime(time.Duration(config.MaxIdleTime) * time.Minute)

	// Set Sonic as the JSON provider
	bunjson.SetProvider(sonicProvider{})

	db := bun.NewDB(sqldb, pgdialect.New())
	db.AddQueryHook(NewHook(logger))

	return db
}

// GetTotal returns the user's total, or 0 when the user has none.
func (s *Store) GetTotal(ctx context.Context, userID snowflake.ID) (int64, error) {
	return dbretry.Operation(ctx, func(ctx context.Context) (int64, error) {
		var total types.RepTotal

		err := s.db.NewSelect().
			Model(&total).
			Where("user_id = ?", uint64(userID)).
			Scan(ctx)
		if errors.Is(err, sql.ErrNoRows) {
			return 0, nil
		}

		if err != nil {
			return 0, fmt.Errorf("failed to get total: %w (userID=%d)", err, userID)
		}

		return total.Total, nil
	})
}

// AddDelta adds delta to the user's total and returns the new total.
// Only failures that prove nothing was written are retried.
func (s *Store) AddDelta(ctx context.Context, userID snowflake.ID, delta int64) (int64, error) {
	return dbretry.NonIdempotent(ctx, func(ctx context.Context) (int64, error) {
		var total int64

		err := s.db.NewRaw(`
			INSERT INTO rep_totals (user_id, rep_total) VALUES (?, ?)
			ON CONFLICT (user_id) DO UPDATE SET rep_total = rep_totals.rep_total + EXCLUDED.rep_total
			RETURNING rep_total
		`, uint64(userID), delta).Scan(ctx, &total)
		if err != nil {
			return 0, fmt.Errorf("failed to add delta: %w (userID=%d)", err, userID)
		}

		return total, nil
	})
}

// SetTotal overwrites the user's total.
func (s *Store) SetTotal(ctx context.Context, userID snowflake.ID, total int64) error {
	return dbretry.NoResult(ctx, func(ctx context.Context) error {
		_, err := s.db.NewInsert().
			Model(&types.RepTotal{UserID: uint64(userID), Total: total}).
			On("CONFLICT (user_id) DO UPDATE").
			Set("rep_total = EXCLUDED.rep_total").
			Exec(ctx)
		if err != nil {
			return fmt.Errorf("failed to set total: %w (userID=%d)", err, userID)
		}

		return nil
	})
}

// TopN returns the n highest totals, highest first. Ties are ordered by user id.
func (s *Store) TopN(ctx context.Context, n int) ([]types.RepTotal, error) {
	return dbretry.Operation(ctx, func(ctx context.Context) ([]types.RepTotal, error) {
		var totals []types.RepTotal

		err := s.db.NewSelect().
			Model(&totals).
			OrderExpr("rep_total DESC, user_id ASC").
			Limit(n).
			Scan(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to get top totals: %w", err)
		}

		return totals, nil
	})
}

// Close gracefully shuts down the database connection.
func (s *Store) Close() error {
	err := s.db.Close()
	if err != nil {
		s.logger.Error("Failed to close database connection", zap.Error(err))
		return err
	}

	s.logger.Info("Database connection closed")

	return nil
}
