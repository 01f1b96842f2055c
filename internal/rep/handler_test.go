package rep_test

import (
	"testing"

	"github.com/disgoorg/snowflake/v2"
	"github.com/robalyx/repbot/internal/platform"
	"github.com/robalyx/repbot/internal/rep"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

type handlerFixture struct {
	handler  *rep.Handler
	platform *fakePlatform
	store    *memoryStore
}

func setupHandler(t *testing.T) *handlerFixture {
	t.Helper()

	fake := newFakePlatform(
		platform.Member{GuildID: guildID, UserID: aliceID, DisplayName: "alice"},
		platform.Member{GuildID: guildID, UserID: bobID, DisplayName: "bob"},
	)
	store := newMemoryStore()
	roles := rep.NewRoleAssigner(fake, testTiers)
	handler := rep.NewHandler(fake, store, roles, repChan, zaptest.NewLogger(t)).
		WithPicker(func(int) int { return 2 })

	return &handlerFixture{handler: handler, platform: fake, store: store}
}

func ratingMessage(author snowflake.ID, content string, mentions ...platform.Mention) platform.Message {
	return platform.Message{
		ID:        555,
		ChannelID: repChan,
		GuildID:   guildID,
		AuthorID:  author,
		Content:   content,
		Mentions:  mentions,
	}
}

var (
	botMention   = platform.Mention{UserID: botID, Bot: true}
	aliceMention = platform.Mention{UserID: aliceID}
	bobMention   = platform.Mention{UserID: bobID}
	carolMention = platform.Mention{UserID: carolID}
)

func TestHandlerPositiveRating(t *testing.T) {
	t.Parallel()

	f := setupHandler(t)
	f.handler.HandleMessage(t.Context(), ratingMessage(bobID, "<@900> <@101> 10/10", botMention, aliceMention))

	assert.Equal(t, int64(1), f.store.totals[aliceID])

	require.Len(t, f.platform.sent, 1)
	reply := f.platform.sent[0]
	assert.Equal(t, "<@101> received **+1 rep** from <@102>. Total: **1**", reply.Content)
	require.NotNil(t, reply.ReplyTo)
	assert.Equal(t, snowflake.ID(555), *reply.ReplyTo)
	assert.ElementsMatch(t, []snowflake.ID{aliceID, bobID}, reply.AllowUserMentions)

	assert.Equal(t, []roleCall{{Op: "nick", UserID: aliceID, Nick: "alice (1 rep)"}}, f.platform.roleCalls())
}

func TestHandlerNegativeRating(t *testing.T) {
	t.Parallel()

	f := setupHandler(t)
	f.store.totals[aliceID] = 5

	f.handler.HandleMessage(t.Context(), ratingMessage(bobID, "<@900> <@101> scammer", botMention, aliceMention))

	assert.Equal(t, int64(4), f.store.totals[aliceID])
	require.Len(t, f.platform.sent, 1)
	assert.Equal(t, "<@101> received **-1 rep** from <@102>. Total: **4**", f.platform.sent[0].Content)
}

func TestHandlerRejections(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		author   snowflake.ID
		content  string
		mentions []platform.Mention
		want     string
	}{
		{
			name:     "self rating",
			author:   bobID,
			content:  "<@900> <@102> 10/10",
			mentions: []platform.Mention{botMention, bobMention},
			want:     "<@102>, you cannot rate yourself.",
		},
		{
			name:     "several targets",
			author:   bobID,
			content:  "<@900> <@101> <@103> 10/10",
			mentions: []platform.Mention{botMention, aliceMention, carolMention},
			want:     "<@102>, please rate one user at a time.",
		},
		{
			name:     "missing rating phrase",
			author:   bobID,
			content:  "<@900> <@101> thanks",
			mentions: []platform.Mention{botMention, aliceMention},
			want:     "<@102>, please include a clear rating (e.g., 10/10 or scammer).",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			f := setupHandler(t)
			f.handler.HandleMessage(t.Context(), ratingMessage(tt.author, tt.content, tt.mentions...))

			assert.Empty(t, f.store.totals)
			require.Len(t, f.platform.sent, 1)
			assert.Equal(t, tt.want, f.platform.sent[0].Content)
			assert.Equal(t, []snowflake.ID{tt.author}, f.platform.sent[0].AllowUserMentions)
			assert.Empty(t, f.platform.roleCalls())
		})
	}
}

func TestHandlerSelfMentionWithTarget(t *testing.T) {
	t.Parallel()

	f := setupHandler(t)
	f.handler.HandleMessage(t.Context(),
		ratingMessage(bobID, "<@900> <@102> <@101> great", botMention, bobMention, aliceMention))

	assert.Equal(t, int64(1), f.store.totals[aliceID])
	assert.Zero(t, f.store.totals[bobID])
}

func TestHandlerCorrection(t *testing.T) {
	t.Parallel()

	f := setupHandler(t)
	f.handler.HandleMessage(t.Context(), ratingMessage(bobID, "<@101> 10/10", aliceMention))

	assert.Empty(t, f.store.totals)
	require.Len(t, f.platform.sent, 1)
	assert.Equal(t, "Rep doesn't count unless you mention me, <@102>. Try again!", f.platform.sent[0].Content)
	require.NotNil(t, f.platform.sent[0].ReplyTo)
}

func TestHandlerIgnores(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		msg  platform.Message
	}{
		{
			name: "other channel",
			msg: func() platform.Message {
				msg := ratingMessage(bobID, "<@900> <@101> 10/10", botMention, aliceMention)
				msg.ChannelID = repChan + 1

				return msg
			}(),
		},
		{
			name: "bot author",
			msg: func() platform.Message {
				msg := ratingMessage(otherID, "<@900> <@101> 10/10", botMention, aliceMention)
				msg.AuthorBot = true

				return msg
			}(),
		},
		{name: "no mentions", msg: ratingMessage(bobID, "10/10")},
		{name: "only bot mentioned", msg: ratingMessage(bobID, "<@900> 10/10", botMention)},
		{name: "mention without rating", msg: ratingMessage(bobID, "<@101> thanks", aliceMention)},
		{
			name: "only bots targeted",
			msg:  ratingMessage(bobID, "<@900> <@904> 10/10", botMention, platform.Mention{UserID: otherID, Bot: true}),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			f := setupHandler(t)
			f.handler.HandleMessage(t.Context(), tt.msg)

			assert.Empty(t, f.store.totals)
			assert.Empty(t, f.platform.sent)
		})
	}
}

func TestHandlerStoreFailure(t *testing.T) {
	t.Parallel()

	f := setupHandler(t)
	f.store.failAdd = true

	f.handler.HandleMessage(t.Context(), ratingMessage(bobID, "<@900> <@101> 10/10", botMention, aliceMention))

	require.Len(t, f.platform.sent, 1)
	assert.Contains(t, f.platform.sent[0].Content, "could not be saved")
	assert.Empty(t, f.platform.roleCalls())
}

func TestHandlerSendFailureStillUpdatesRoles(t *testing.T) {
	t.Parallel()

	f := setupHandler(t)
	f.platform.failSend = true
	f.store.totals[aliceID] = 4

	f.handler.HandleMessage(t.Context(), ratingMessage(bobID, "<@900> <@101> legit", botMention, aliceMention))

	assert.Equal(t, int64(5), f.store.totals[aliceID])
	assert.Equal(t, []roleCall{
		{Op: "add", UserID: aliceID, RoleID: starterRole},
		{Op: "nick", UserID: aliceID, Nick: "alice (5 rep)"},
	}, f.platform.roleCalls())
}
