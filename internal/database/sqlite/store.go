// Package sqlite implements the reputation store on a local SQLite file.
package sqlite

import (
	"context"
	"fmt"

	"github.com/disgoorg/snowflake/v2"
	"github.com/robalyx/repbot/internal/database/dbretry"
	"github.com/robalyx/repbot/internal/database/types"
	"go.uber.org/zap"
	"zombiezen.com/go/sqlite"
	"zombiezen.com/go/sqlite/sqlitex"
)

const schema = `
	CREATE TABLE IF NOT EXISTS rep_totals (
		user_id INTEGER PRIMARY KEY,
		rep_total INTEGER NOT NULL
	)
`

// Store keeps reputation totals in SQLite.
type Store struct {
	pool   *sqlitex.Pool
	logger *zap.Logger
}

// Open opens (creating if needed) the database at path with poolSize connections.
func Open(ctx context.Context, path string, poolSize int, logger *zap.Logger) (*Store, error) {
	if poolSize <= 0 {
		poolSize = 1
	}

	pool, err := sqlitex.NewPool(path, sqlitex.PoolOptions{
		Flags:       sqlite.OpenCreate | sqlite.OpenReadWrite | sqlite.OpenWAL,
		PoolSize:    poolSize,
		PrepareConn: prepareConn,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open SQLite database: %w", err)
	}

	s := &Store{
		pool:   pool,
		logger: logger.Named("sqlite_store"),
	}

	err = s.withConn(ctx, func(conn *sqlite.Conn) error {
		return sqlitex.ExecuteTransient(conn, schema, nil)
	})
	if err != nil {
		_ = pool.Close()
		return nil, fmt.Errorf("failed to create schema: %w", err)
	}

	s.logger.Info("SQLite store opened", zap.String("path", path), zap.Int("poolSize", poolSize))

	return s, nil
}

func prepareConn(conn *sqlite.Conn) error {
	return sqlitex.ExecuteTransient(conn, "PRAGMA busy_timeout = 5000;", nil)
}

// withConn borrows a pooled connection for the duration of fn.
func (s *Store) withConn(ctx context.Context, fn func(conn *sqlite.Conn) error) error {
	conn, err := s.pool.Take(ctx)
	if err != nil {
		return fmt.Errorf("failed to take connection: %w", err)
	}
	defer s.pool.Put(conn)

	return fn(conn)
}

// GetTotal returns the user's total, or 0 when the user has none.
func (s *Store) GetTotal(ctx context.Context, userID snowflake.ID) (int64, error) {
	return dbretry.Operation(ctx, func(ctx context.Context) (int64, error) {
		var total int64

		err := s.withConn(ctx, func(conn *sqlite.Conn) error {
			return sqlitex.Execute(conn, "SELECT rep_total FROM rep_totals WHERE user_id = ?", &sqlitex.ExecOptions{
				Args: []any{int64(userID)},
				ResultFunc: func(stmt *sqlite.Stmt) error {
					total = stmt.ColumnInt64(0)
					return nil
				},
			})
		})
		if err != nil {
			return 0, fmt.Errorf("failed to get total: %w (userID=%d)", err, userID)
		}

		return total, nil
	})
}

// AddDelta adds delta to the user's total and returns the new total.
// Only failures that prove nothing was written are retried.
func (s *Store) AddDelta(ctx context.Context, userID snowflake.ID, delta int64) (int64, error) {
	return dbretry.NonIdempotent(ctx, func(ctx context.Context) (int64, error) {
		var total int64

		err := s.withConn(ctx, func(conn *sqlite.Conn) error {
			return sqlitex.Execute(conn, `
				INSERT INTO rep_totals (user_id, rep_total) VALUES (?, ?)
				ON CONFLICT (user_id) DO UPDATE SET rep_total = rep_total + excluded.rep_total
				RETURNING rep_total
			`, &sqlitex.ExecOptions{
				Args: []any{int64(userID), delta},
				ResultFunc: func(stmt *sqlite.Stmt) error {
					total = stmt.ColumnInt64(0)
					return nil
				},
			})
		})
		if err != nil {
			return 0, fmt.Errorf("failed to add delta: %w (userID=%d)", err, userID)
		}

		return total, nil
	})
}

// SetTotal overwrites the user's total.
func (s *Store) SetTotal(ctx context.Context, userID snowflake.ID, total int64) error {
	return dbretry.NoResult(ctx, func(ctx context.Context) error {
		err := s.withConn(ctx, func(conn *sqlite.Conn) error {
			return sqlitex.Execute(conn, `
				INSERT INTO rep_totals (user_id, rep_total) VALUES (?, ?)
				ON CONFLICT (user_id) DO UPDATE SET rep_total = excluded.rep_total
			`, &sqlitex.ExecOptions{
				Args: []any{int64(userID), total},
			})
		})
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

		err := s.withConn(ctx, func(conn *sqlite.Conn) error {
			return sqlitex.Execute(conn, `
				SELECT user_id, rep_total FROM rep_totals
				ORDER BY rep_total DESC, user_id ASC
				LIMIT ?
			`, &sqlitex.ExecOptions{
				Args: []any{n},
				ResultFunc: func(stmt *sqlite.Stmt) error {
					totals = append(totals, types.RepTotal{
						UserID: uint64(stmt.ColumnInt64(0)),
						Total:  stmt.ColumnInt64(1),
					})
					return nil
				},
			})
		})
		if err != nil {
			return nil, fmt.Errorf("failed to get top totals: %w", err)
		}

		return totals, nil
	})
}

// Close closes every pooled connection.
func (s *Store) Close() error {
	if err := s.pool.Close(); err != nil {
		s.logger.Error("Failed to close SQLite store", zap.Error(err))
		return err
	}

	s.logger.Info("SQLite store closed")

	return nil
}
