package setup_test

import (
	"context"
	"path/filepath"
	"strconv"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/disgoorg/snowflake/v2"
	"github.com/robalyx/repbot/internal/forum"
	"github.com/robalyx/repbot/internal/setup"
	"github.com/robalyx/repbot/internal/setup/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testConfig(t *testing.T) *config.Config {
	t.Helper()

	cfg := &config.Config{}
	cfg.Common.Debug = config.Debug{LogLevel: "debug", MaxLogsToKeep: 2, MaxLogLines: 1000}
	cfg.Common.Storage = config.Storage{
		Driver:     config.DriverSQLite,
		SQLitePath: filepath.Join(t.TempDir(), "reviews.db"),
		PoolSize:   2,
	}
	cfg.Bot.Forum.NotificationTTL = forum.DefaultNotificationTTL

	return cfg
}

func TestInitializeWithSQLiteAndMemoryLedger(t *testing.T) {
	t.Parallel()

	ctx := context.Background()

	app, err := setup.InitializeWithConfig(ctx, testConfig(t), "config", setup.Options{
		Component:  "bot",
		LogDir:     t.TempDir(),
		WithStore:  true,
		WithLedger: true,
	})
	require.NoError(t, err)
	defer app.Cleanup(ctx)

	require.NotNil(t, app.Store)
	assert.IsType(t, &forum.MemoryLedger{}, app.Ledger)

	total, err := app.Store.AddDelta(ctx, snowflake.ID(42), 3)
	require.NoError(t, err)
	assert.Equal(t, int64(3), total)
}

func TestInitializeWithRedisLedger(t *testing.T) {
	t.Parallel()

	mr := miniredis.RunT(t)
	port, err := strconv.Atoi(mr.Port())
	require.NoError(t, err)

	cfg := testConfig(t)
	cfg.Common.Redis = config.Redis{Enabled: true, Host: mr.Host(), Port: port}

	ctx := context.Background()

	app, err := setup.InitializeWithConfig(ctx, cfg, "config", setup.Options{
		Component:  "bot",
		LogDir:     t.TempDir(),
		WithLedger: true,
	})
	require.NoError(t, err)
	defer app.Cleanup(ctx)

	assert.Nil(t, app.Store)
	assert.IsType(t, &forum.RedisLedger{}, app.Ledger)

	require.NoError(t, app.Ledger.Set(ctx, 1, 2))

	id, ok, err := app.Ledger.Get(ctx, 1)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, snowflake.ID(2), id)
}
