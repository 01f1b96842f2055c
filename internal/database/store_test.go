package database_test

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/disgoorg/snowflake/v2"
	"github.com/robalyx/repbot/internal/database"
	"github.com/robalyx/repbot/internal/setup/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

func TestOpenSQLite(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	cfg := &config.CommonConfig{Storage: config.Storage{
		Driver:     config.DriverSQLite,
		SQLitePath: filepath.Join(t.TempDir(), "reviews.db"),
		PoolSize:   2,
	}}

	store, err := database.Open(ctx, cfg, zaptest.NewLogger(t), false)
	require.NoError(t, err)
	defer store.Close()

	require.NoError(t, store.SetTotal(ctx, snowflake.ID(7), 12))

	total, err := store.AddDelta(ctx, snowflake.ID(7), -2)
	require.NoError(t, err)
	assert.Equal(t, int64(10), total)

	top, err := store.TopN(ctx, 5)
	require.NoError(t, err)
	require.Len(t, top, 1)
	assert.Equal(t, uint64(7), top[0].UserID)
}

func TestOpenUnknownDriver(t *testing.T) {
	t.Parallel()

	cfg := &config.CommonConfig{Storage: config.Storage{Driver: "mysql"}}

	_, err := database.Open(context.Background(), cfg, zaptest.NewLogger(t), false)
	require.ErrorIs(t, err, database.ErrUnknownDriver)
}
