package bot

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/cenkalti/backoff/v4"
	"github.com/disgoorg/disgo/bot"
	"github.com/disgoorg/disgo/discord"
	"github.com/disgoorg/disgo/rest"
	"github.com/disgoorg/snowflake/v2"
	"github.com/robalyx/repbot/internal/platform"
	"github.com/robalyx/repbot/pkg/utils"
)

const (
	// maxMessagesPerPage is Discord's page size for message history.
	maxMessagesPerPage = 100
	// maxMembersPerPage is Discord's page size for member listing.
	maxMembersPerPage = 1000

	auditReason = "Reputation tier update"
)

var (
	ErrNotForumChannel = errors.New("channel is not a forum channel")
	ErrNotThread       = errors.New("channel is not a thread")
)

// Adapter exposes the Discord client through the platform capabilities
// used by the forum checker, the rep handler, the sticky keeper and the commands.
type Adapter struct {
	client bot.Client
}

// NewAdapter wraps a disgo client.
func NewAdapter(client bot.Client) *Adapter {
	return &Adapter{client: client}
}

// SelfID returns the bot's own user id.
func (a *Adapter) SelfID() snowflake.ID {
	return a.client.ID()
}

// SendMessage posts a message and returns its id.
func (a *Adapter) SendMessage(ctx context.Context, channelID snowflake.ID, msg platform.OutgoingMessage) (snowflake.ID, error) {
	sent, err := a.client.Rest().CreateMessage(channelID, toMessageCreate(msg), rest.WithCtx(ctx))
	if err != nil {
		return 0, fmt.Errorf("failed to send message: %w (channelID=%s)", err, channelID)
	}

	return sent.ID, nil
}

// DeleteMessage removes a message.
func (a *Adapter) DeleteMessage(ctx context.Context, channelID, messageID snowflake.ID) error {
	if err := a.client.Rest().DeleteMessage(channelID, messageID, rest.WithCtx(ctx)); err != nil {
		return fmt.Errorf("failed to delete message: %w (messageID=%s)", err, messageID)
	}

	return nil
}

// RecentMessages returns up to limit messages, newest first.
func (a *Adapter) RecentMessages(ctx context.Context, channelID snowflake.ID, limit int) ([]platform.Message, error) {
	out := make([]platform.Message, 0, limit)

	var before snowflake.ID

	for len(out) < limit {
		pageSize := min(limit-len(out), maxMessagesPerPage)

		page, err := withRetry(ctx, func() ([]discord.Message, error) {
			return a.client.Rest().GetMessages(channelID, 0, before, 0, pageSize, rest.WithCtx(ctx))
		})
		if err != nil {
			return out, fmt.Errorf("failed to fetch messages: %w (channelID=%s)", err, channelID)
		}

		for _, msg := range page {
			out = append(out, toMessage(msg))
		}

		if len(page) < pageSize {
			break
		}

		before = page[len(page)-1].ID
	}

	return out, nil
}

// AvailableTags returns the tag catalog of a forum channel.
func (a *Adapter) AvailableTags(ctx context.Context, forumID snowflake.ID) ([]platform.Tag, error) {
	if channel, ok := a.client.Caches().Channel(forumID); ok {
		if forum, ok := channel.(discord.GuildForumChannel); ok {
			return toTags(forum.AvailableTags), nil
		}
	}

	channel, err := withRetry(ctx, func() (discord.Channel, error) {
		return a.client.Rest().GetChannel(forumID, rest.WithCtx(ctx))
	})
	if err != nil {
		return nil, fmt.Errorf("failed to fetch forum channel: %w (forumID=%s)", err, forumID)
	}

	forum, ok := channel.(discord.GuildForumChannel)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotForumChannel, forumID)
	}

	return toTags(forum.AvailableTags), nil
}

// SetAppliedTags replaces the applied tags of a thread.
func (a *Adapter) SetAppliedTags(ctx context.Context, threadID snowflake.ID, tags []snowflake.ID) error {
	applied := append([]snowflake.ID{}, tags...)

	_, err := a.client.Rest().UpdateChannel(threadID, discord.GuildPostUpdate{
		AppliedTags: &applied,
	}, rest.WithCtx(ctx))
	if err != nil {
		return fmt.Errorf("failed to update thread tags: %w (threadID=%s)", err, threadID)
	}

	return nil
}

// StarterMessage returns the opening post of a forum thread, which shares the thread's id.
func (a *Adapter) StarterMessage(ctx context.Context, thread platform.Thread) (platform.Message, error) {
	msg, err := withRetry(ctx, func() (*discord.Message, error) {
		return a.client.Rest().GetMessage(thread.ID, thread.ID, rest.WithCtx(ctx))
	})
	if err != nil {
		return platform.Message{}, fmt.Errorf("failed to fetch starter message: %w (threadID=%s)", err, thread.ID)
	}

	return toMessage(*msg), nil
}

// Thread resolves a thread channel, preferring the gateway cache.
func (a *Adapter) Thread(ctx context.Context, channelID snowflake.ID) (platform.Thread, error) {
	if channel, ok := a.client.Caches().Channel(channelID); ok {
		if thread, ok := channel.(discord.GuildThread); ok {
			return toThread(thread), nil
		}

		return platform.Thread{}, fmt.Errorf("%w: %s", ErrNotThread, channelID)
	}

	channel, err := withRetry(ctx, func() (discord.Channel, error) {
		return a.client.Rest().GetChannel(channelID, rest.WithCtx(ctx))
	})
	if err != nil {
		return platform.Thread{}, fmt.Errorf("failed to fetch channel: %w (channelID=%s)", err, channelID)
	}

	thread, ok := channel.(discord.GuildThread)
	if !ok {
		return platform.Thread{}, fmt.Errorf("%w: %s", ErrNotThread, channelID)
	}

	return toThread(thread), nil
}

// Member looks up a guild member, preferring the gateway cache.
func (a *Adapter) Member(ctx context.Context, guildID, userID snowflake.ID) (platform.Member, error) {
	if member, ok := a.client.Caches().Member(guildID, userID); ok {
		return toMember(guildID, member), nil
	}

	member, err := withRetry(ctx, func() (*discord.Member, error) {
		return a.client.Rest().GetMember(guildID, userID, rest.WithCtx(ctx))
	})
	if err != nil {
		return platform.Member{}, fmt.Errorf("failed to fetch member: %w (userID=%s)", err, userID)
	}

	return toMember(guildID, *member), nil
}

// ListMembers pages through every member of a guild.
func (a *Adapter) ListMembers(ctx context.Context, guildID snowflake.ID) ([]platform.Member, error) {
	var (
		out   []platform.Member
		after snowflake.ID
	)

	for {
		page, err := withRetry(ctx, func() ([]discord.Member, error) {
			return a.client.Rest().GetMembers(guildID, maxMembersPerPage, after, rest.WithCtx(ctx))
		})
		if err != nil {
			return out, fmt.Errorf("failed to list members: %w (guildID=%s)", err, guildID)
		}

		for _, member := range page {
			out = append(out, toMember(guildID, member))
		}

		if len(page) < maxMembersPerPage {
			return out, nil
		}

		after = page[len(page)-1].User.ID
	}
}

// AddRole grants a role.
func (a *Adapter) AddRole(ctx context.Context, guildID, userID, roleID snowflake.ID) error {
	err := a.client.Rest().AddMemberRole(guildID, userID, roleID, rest.WithCtx(ctx), rest.WithReason(auditReason))
	if err != nil {
		return fmt.Errorf("failed to add role: %w (roleID=%s)", err, roleID)
	}

	return nil
}

// RemoveRole revokes a role.
func (a *Adapter) RemoveRole(ctx context.Context, guildID, userID, roleID snowflake.ID) error {
	err := a.client.Rest().RemoveMemberRole(guildID, userID, roleID, rest.WithCtx(ctx), rest.WithReason(auditReason))
	if err != nil {
		return fmt.Errorf("failed to remove role: %w (roleID=%s)", err, roleID)
	}

	return nil
}

// SetNickname changes a member's nickname.
func (a *Adapter) SetNickname(ctx context.Context, guildID, userID snowflake.ID, nickname string) error {
	_, err := a.client.Rest().UpdateMember(guildID, userID, discord.MemberUpdate{
		Nick: &nickname,
	}, rest.WithCtx(ctx), rest.WithReason(auditReason))
	if err != nil {
		return fmt.Errorf("failed to set nickname: %w (userID=%s)", err, userID)
	}

	return nil
}

// withRetry retries an idempotent REST read, giving up at once on client errors.
func withRetry[T any](ctx context.Context, operation func() (T, error)) (T, error) {
	return utils.WithRetry(ctx, func() (T, error) {
		result, err := operation()
		if err != nil && !isRetryableREST(err) {
			return result, backoff.Permanent(err)
		}

		return result, err
	}, utils.GetRESTRetryOptions())
}

// isRetryableREST reports whether a REST error is worth another attempt.
// Client errors other than 429 are permanent; disgo already waits out rate limits.
func isRetryableREST(err error) bool {
	if errors.Is(err, context.Canceled) {
		return false
	}

	var restErr *rest.Error
	if errors.As(err, &restErr) && restErr.Response != nil {
		code := restErr.Response.StatusCode
		return code == http.StatusTooManyRequests || code >= http.StatusInternalServerError
	}

	return true
}
