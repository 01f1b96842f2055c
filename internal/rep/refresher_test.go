package rep_test

import (
	"context"
	"testing"
	"time"

	"github.com/robalyx/repbot/internal/discord/rate"
	"github.com/robalyx/repbot/internal/platform"
	"github.com/robalyx/repbot/internal/rep"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

func setupRefresher(t *testing.T, fake *fakePlatform, store *memoryStore) *rep.Refresher {
	t.Helper()

	return rep.NewRefresher(
		fake,
		staticGuilds{guildID},
		store,
		rep.NewRoleAssigner(fake, testTiers),
		rate.New(time.Millisecond, 0),
		rep.RefreshConfig{Interval: time.Hour, Concurrency: 2},
		zaptest.NewLogger(t),
	)
}

func TestRefreshOnce(t *testing.T) {
	t.Parallel()

	fake := newFakePlatform(
		platform.Member{GuildID: guildID, UserID: aliceID, DisplayName: "alice"},
		platform.Member{GuildID: guildID, UserID: bobID, DisplayName: "bob (3 rep)"},
		platform.Member{GuildID: guildID, UserID: carolID, DisplayName: "carol"},
		platform.Member{GuildID: guildID, UserID: otherID, DisplayName: "helper bot", Bot: true},
	)
	store := newMemoryStore()
	store.totals[aliceID] = 25
	store.totals[bobID] = 0

	stats := setupRefresher(t, fake, store).RefreshOnce(t.Context())

	assert.Equal(t, rep.RefreshStats{Guilds: 1, Members: 3, Skipped: 1, Failed: 0}, stats)
	assert.ElementsMatch(t, []roleCall{
		{Op: "add", UserID: aliceID, RoleID: positiveRole},
		{Op: "nick", UserID: aliceID, Nick: "alice (25 rep)"},
		{Op: "nick", UserID: bobID, Nick: "bob"},
	}, fake.roleCalls())
}

func TestRefreshOnceCountsFailures(t *testing.T) {
	t.Parallel()

	t.Run("role edits fail", func(t *testing.T) {
		t.Parallel()

		fake := newFakePlatform(platform.Member{GuildID: guildID, UserID: aliceID, DisplayName: "alice"})
		fake.failRole = true
		store := newMemoryStore()
		store.totals[aliceID] = 7

		stats := setupRefresher(t, fake, store).RefreshOnce(t.Context())
		assert.Equal(t, 1, stats.Failed)
	})

	t.Run("store read fails", func(t *testing.T) {
		t.Parallel()

		fake := newFakePlatform(platform.Member{GuildID: guildID, UserID: aliceID, DisplayName: "alice (9 rep)"})
		store := newMemoryStore()
		store.failRead = true

		stats := setupRefresher(t, fake, store).RefreshOnce(t.Context())
		assert.Equal(t, 1, stats.Failed)
		assert.Empty(t, fake.roleCalls())
	})

	t.Run("member listing fails", func(t *testing.T) {
		t.Parallel()

		fake := newFakePlatform()
		fake.failList = true

		stats := setupRefresher(t, fake, newMemoryStore()).RefreshOnce(t.Context())
		assert.Equal(t, rep.RefreshStats{}, stats)
	})
}

func TestRefresherRunStopsOnCancel(t *testing.T) {
	t.Parallel()

	fake := newFakePlatform(platform.Member{GuildID: guildID, UserID: aliceID, DisplayName: "alice"})
	store := newMemoryStore()
	store.totals[aliceID] = 1

	refresher := setupRefresher(t, fake, store)

	ctx, cancel := context.WithCancel(t.Context())
	done := make(chan struct{})

	go func() {
		defer close(done)
		refresher.Run(ctx)
	}()

	require.Eventually(t, func() bool {
		return len(fake.roleCalls()) == 1
	}, time.Second, 5*time.Millisecond)

	cancel()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("refresher did not stop")
	}

	assert.Equal(t, []roleCall{{Op: "nick", UserID: aliceID, Nick: "alice (1 rep)"}}, fake.roleCalls())
}

func TestRefresherSkipsEmptyGuildList(t *testing.T) {
	t.Parallel()

	fake := newFakePlatform(platform.Member{GuildID: guildID, UserID: aliceID, DisplayName: "alice"})
	refresher := rep.NewRefresher(fake, staticGuilds(nil), newMemoryStore(),
		rep.NewRoleAssigner(fake, testTiers), nil, rep.RefreshConfig{}, zaptest.NewLogger(t))

	assert.Equal(t, rep.RefreshStats{}, refresher.RefreshOnce(t.Context()))
	assert.Empty(t, fake.roleCalls())
}
