package commands_test

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"sync"
	"testing"

	"github.com/disgoorg/snowflake/v2"
	"github.com/robalyx/repbot/internal/commands"
	"github.com/robalyx/repbot/internal/database/types"
	"github.com/robalyx/repbot/internal/platform"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

const (
	guildID      = snowflake.ID(1)
	logChannelID = snowflake.ID(200)
	adminRoleID  = snowflake.ID(300)
)

var (
	admin  = platform.Member{GuildID: guildID, UserID: 401, DisplayName: "Admin", RoleIDs: []snowflake.ID{adminRoleID}}
	member = platform.Member{GuildID: guildID, UserID: 402, DisplayName: "Casey"}
)

var errStore = errors.New("database unavailable")

type fakeStore struct {
	mu     sync.Mutex
	totals map[snowflake.ID]int64
	fail   bool
}

func (s *fakeStore) GetTotal(_ context.Context, userID snowflake.ID) (int64, error) {
	if s.fail {
		return 0, errStore
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	return s.totals[userID], nil
}

func (s *fakeStore) AddDelta(_ context.Context, userID snowflake.ID, delta int64) (int64, error) {
	if s.fail {
		return 0, errStore
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.totals[userID] += delta

	return s.totals[userID], nil
}

func (s *fakeStore) TopN(_ context.Context, n int) ([]types.RepTotal, error) {
	if s.fail {
		return nil, errStore
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	totals := make([]types.RepTotal, 0, len(s.totals))
	for id, total := range s.totals {
		totals = append(totals, types.RepTotal{UserID: uint64(id), Total: total})
	}

	slices.SortFunc(totals, func(a, b types.RepTotal) int {
		if c := cmp.Compare(b.Total, a.Total); c != 0 {
			return c
		}

		return cmp.Compare(a.UserID, b.UserID)
	})

	return totals[:min(n, len(totals))], nil
}

type fakeMembers map[snowflake.ID]string

func (m fakeMembers) Member(_ context.Context, guildID, userID snowflake.ID) (platform.Member, error) {
	name, ok := m[userID]
	if !ok {
		return platform.Member{}, errors.New("unknown member")
	}

	return platform.Member{GuildID: guildID, UserID: userID, DisplayName: name}, nil
}

type roleCall struct {
	UserID snowflake.ID
	Total  int64
}

type fakeRoles struct {
	calls []roleCall
}

func (r *fakeRoles) RefreshRoles(_ context.Context, _, userID snowflake.ID, total int64) {
	r.calls = append(r.calls, roleCall{UserID: userID, Total: total})
}

type fakeToggle struct {
	enabled bool
}

func (f *fakeToggle) SetEnabled(enabled bool) { f.enabled = enabled }
func (f *fakeToggle) Enabled() bool           { return f.enabled }

type sentMessage struct {
	ChannelID snowflake.ID
	Message   platform.OutgoingMessage
}

type fakeMessenger struct {
	sent []sentMessage
}

func (m *fakeMessenger) SendMessage(_ context.Context, channelID snowflake.ID, msg platform.OutgoingMessage) (snowflake.ID, error) {
	m.sent = append(m.sent, sentMessage{ChannelID: channelID, Message: msg})
	return snowflake.ID(len(m.sent)), nil
}

func (m *fakeMessenger) DeleteMessage(context.Context, snowflake.ID, snowflake.ID) error {
	return nil
}

type fixture struct {
	service   *commands.Service
	store     *fakeStore
	roles     *fakeRoles
	toggle    *fakeToggle
	messenger *fakeMessenger
}

func setup(t *testing.T) *fixture {
	t.Helper()

	f := &fixture{
		store:     &fakeStore{totals: make(map[snowflake.ID]int64)},
		roles:     &fakeRoles{},
		toggle:    &fakeToggle{enabled: true},
		messenger: &fakeMessenger{},
	}

	members := fakeMembers{401: "Admin", 402: "Casey", 403: "Robin"}
	f.service = commands.NewService(f.store, members, f.roles, f.toggle, f.messenger, commands.Config{
		LogChannelID: logChannelID,
		AdminRoleID:  adminRoleID,
	}, zaptest.NewLogger(t))

	return f
}

func TestAddRep(t *testing.T) {
	t.Parallel()

	f := setup(t)
	f.store.totals[member.UserID] = 3

	resp := f.service.AddRep(context.Background(), admin, member, 5)
	assert.Equal(t, commands.Response{Content: "Added 5 rep to Casey!"}, resp)
	assert.Equal(t, int64(8), f.store.totals[member.UserID])
	assert.Equal(t, []roleCall{{UserID: member.UserID, Total: 8}}, f.roles.calls)

	require.Len(t, f.messenger.sent, 1)
	audit := f.messenger.sent[0]
	assert.Equal(t, logChannelID, audit.ChannelID)
	assert.Equal(t, "<@401> added 5 rep to <@402>. New total: 8", audit.Message.Content)
	assert.Nil(t, audit.Message.AllowUserMentions)
}

func TestAddRepRejected(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		caller  platform.Member
		amount  int64
		fail    bool
		content string
	}{
		{name: "not admin", caller: member, amount: 1, content: "You do not have permission to use this command."},
		{name: "zero amount", caller: admin, amount: 0, content: "Amount must not be zero."},
		{name: "store failure", caller: admin, amount: 1, fail: true, content: "Failed to update reputation. Please try again later."},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			f := setup(t)
			f.store.fail = tt.fail

			resp := f.service.AddRep(context.Background(), tt.caller, member, tt.amount)
			assert.Equal(t, commands.Response{Content: tt.content, Ephemeral: true}, resp)
			assert.Empty(t, f.roles.calls)
			assert.Empty(t, f.messenger.sent)
		})
	}
}

func TestRatings(t *testing.T) {
	t.Parallel()

	f := setup(t)
	f.store.totals[member.UserID] = -2

	// No privilege needed
	resp := f.service.Ratings(context.Background(), member)
	assert.Equal(t, commands.Response{Content: "Casey has -2 reputation points."}, resp)

	resp = f.service.Ratings(context.Background(), platform.Member{UserID: 999, DisplayName: "Nobody"})
	assert.Equal(t, "Nobody has 0 reputation points.", resp.Content)

	f.store.fail = true
	resp = f.service.Ratings(context.Background(), member)
	assert.True(t, resp.Ephemeral)
}

func TestLeaderboard(t *testing.T) {
	t.Parallel()

	f := setup(t)
	f.store.totals[402] = 12
	f.store.totals[403] = 30
	f.store.totals[777] = 5

	resp := f.service.Leaderboard(context.Background(), admin)
	assert.False(t, resp.Ephemeral)
	assert.Equal(t, strings.Join([]string{
		"**Top 20 Reputation Leaderboard:**",
		"1. Robin — 30 rep",
		"2. Casey — 12 rep",
		"3. User ID: 777 — 5 rep",
	}, "\n"), resp.Content)
}

func TestLeaderboardLimit(t *testing.T) {
	t.Parallel()

	f := setup(t)
	for i := range 25 {
		f.store.totals[snowflake.ID(1000+i)] = int64(i)
	}

	resp := f.service.Leaderboard(context.Background(), admin)
	lines := strings.Split(resp.Content, "\n")
	require.Len(t, lines, commands.LeaderboardSize+1)
	assert.Equal(t, fmt.Sprintf("20. User ID: %d — 5 rep", 1005), lines[20])
}

func TestLeaderboardEdgeCases(t *testing.T) {
	t.Parallel()

	f := setup(t)

	resp := f.service.Leaderboard(context.Background(), admin)
	assert.Equal(t, commands.Response{Content: "No reputation data found."}, resp)

	resp = f.service.Leaderboard(context.Background(), member)
	assert.Equal(t, commands.Response{Content: "You do not have permission to use this command.", Ephemeral: true}, resp)

	f.store.fail = true
	resp = f.service.Leaderboard(context.Background(), admin)
	assert.True(t, resp.Ephemeral)
}

func TestForumChecker(t *testing.T) {
	t.Parallel()

	f := setup(t)
	ctx := context.Background()

	resp := f.service.ForumChecker(ctx, admin, "Disable")
	assert.Equal(t, commands.Response{Content: "Forum checker disabled."}, resp)
	assert.False(t, f.toggle.Enabled())

	resp = f.service.ForumChecker(ctx, admin, "enable")
	assert.Equal(t, commands.Response{Content: "Forum checker enabled."}, resp)
	assert.True(t, f.toggle.Enabled())

	resp = f.service.ForumChecker(ctx, admin, "maybe")
	assert.Equal(t, commands.Response{Content: "Usage: /forumchecker <enable|disable>", Ephemeral: true}, resp)
	assert.True(t, f.toggle.Enabled())

	resp = f.service.ForumChecker(ctx, member, "disable")
	assert.True(t, resp.Ephemeral)
	assert.True(t, f.toggle.Enabled())

	require.Len(t, f.messenger.sent, 2)
	assert.Equal(t, "<@401> disabled the forum checker.", f.messenger.sent[0].Message.Content)
}

func TestNoAdminRoleConfigured(t *testing.T) {
	t.Parallel()

	service := commands.NewService(&fakeStore{totals: map[snowflake.ID]int64{}}, nil, nil, nil, nil,
		commands.Config{}, zaptest.NewLogger(t))

	assert.False(t, service.IsPrivileged(admin))
	assert.True(t, service.Leaderboard(context.Background(), admin).Ephemeral)
}
