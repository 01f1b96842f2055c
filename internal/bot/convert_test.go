package bot

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/disgoorg/disgo/discord"
	"github.com/disgoorg/disgo/rest"
	"github.com/disgoorg/snowflake/v2"
	"github.com/robalyx/repbot/internal/platform"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestToMessage(t *testing.T) {
	t.Parallel()

	guildID := snowflake.ID(1)
	refID := snowflake.ID(55)

	msg := toMessage(discord.Message{
		ID:               10,
		ChannelID:        20,
		GuildID:          &guildID,
		Author:           discord.User{ID: 30},
		Content:          "@alice +1 great trade",
		Mentions:         []discord.User{{ID: 40}, {ID: 50, Bot: true}},
		MessageReference: &discord.MessageReference{MessageID: &refID},
		Member:           &discord.Member{RoleIDs: []snowflake.ID{7}},
	})

	assert.Equal(t, snowflake.ID(10), msg.ID)
	assert.Equal(t, snowflake.ID(20), msg.ChannelID)
	assert.Equal(t, guildID, msg.GuildID)
	assert.Equal(t, snowflake.ID(30), msg.AuthorID)
	assert.False(t, msg.AuthorBot)
	assert.Equal(t, []platform.Mention{{UserID: 40}, {UserID: 50, Bot: true}}, msg.Mentions)
	require.NotNil(t, msg.ReferenceID)
	assert.Equal(t, refID, *msg.ReferenceID)
	assert.True(t, msg.HasRole(7))
}

func TestToMessageMinimal(t *testing.T) {
	t.Parallel()

	msg := toMessage(discord.Message{ID: 1, Author: discord.User{ID: 2, Bot: true}})

	assert.True(t, msg.AuthorBot)
	assert.Zero(t, msg.GuildID)
	assert.Nil(t, msg.ReferenceID)
	assert.Empty(t, msg.Mentions)
	assert.Empty(t, msg.AuthorRoleIDs)
}

func TestToTags(t *testing.T) {
	t.Parallel()

	tags := toTags([]discord.ChannelTag{{ID: 1, Name: "Missing Price"}, {ID: 2, Name: "Missing Location"}})

	assert.Equal(t, []platform.Tag{{ID: 1, Name: "Missing Price"}, {ID: 2, Name: "Missing Location"}}, tags)
	assert.Empty(t, toTags(nil))
}

func TestToMessageCreate(t *testing.T) {
	t.Parallel()

	t.Run("reply with allowed ping", func(t *testing.T) {
		t.Parallel()

		replyTo := snowflake.ID(9)
		create := toMessageCreate(platform.OutgoingMessage{
			Content:           "hello",
			ReplyTo:           &replyTo,
			AllowUserMentions: []snowflake.ID{3},
		})

		assert.Equal(t, "hello", create.Content)
		require.NotNil(t, create.MessageReference)
		assert.Equal(t, replyTo, *create.MessageReference.MessageID)
		require.NotNil(t, create.AllowedMentions)
		assert.Equal(t, []snowflake.ID{3}, create.AllowedMentions.Users)
		assert.Empty(t, create.AllowedMentions.Parse)
		assert.False(t, create.AllowedMentions.RepliedUser)
	})

	t.Run("no pings", func(t *testing.T) {
		t.Parallel()

		create := toMessageCreate(platform.OutgoingMessage{Content: "<@1> hi"})

		assert.Nil(t, create.MessageReference)
		require.NotNil(t, create.AllowedMentions)
		assert.NotNil(t, create.AllowedMentions.Users)
		assert.Empty(t, create.AllowedMentions.Users)
	})
}

func TestIsRetryableREST(t *testing.T) {
	t.Parallel()

	restError := func(code int) error {
		return fmt.Errorf("wrapped: %w", &rest.Error{Response: &http.Response{StatusCode: code}})
	}

	tests := []struct {
		name string
		err  error
		want bool
	}{
		{name: "not found", err: restError(http.StatusNotFound), want: false},
		{name: "forbidden", err: restError(http.StatusForbidden), want: false},
		{name: "rate limited", err: restError(http.StatusTooManyRequests), want: true},
		{name: "server error", err: restError(http.StatusBadGateway), want: true},
		{name: "canceled", err: context.Canceled, want: false},
		{name: "network", err: errors.New("connection reset by peer"), want: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, isRetryableREST(tt.err))
		})
	}
}

func TestSlashCommands(t *testing.T) {
	t.Parallel()

	names := make([]string, 0, 4)
	for _, cmd := range SlashCommands() {
		names = append(names, cmd.CommandName())
	}

	assert.Equal(t, []string{"addrep", "ratings", "leaderboard", "forumchecker"}, names)
}
