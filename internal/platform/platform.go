// Package platform holds the chat platform read model shared by the forum checker,
// the reputation handler and the sticky keeper. The Discord adapter in internal/bot
// converts gateway and REST types into these values.
package platform

import (
	"context"
	"slices"
	"time"

	"github.com/disgoorg/snowflake/v2"
)

// Thread is a forum thread as seen by the bot.
type Thread struct {
	ID          snowflake.ID
	GuildID     snowflake.ID
	ParentID    snowflake.ID
	OwnerID     snowflake.ID
	Name        string
	AppliedTags []snowflake.ID
}

// CreatedAt returns the creation time encoded in the thread snowflake.
func (t Thread) CreatedAt() time.Time {
	return t.ID.Time()
}

// Age returns how old the thread is relative to now.
func (t Thread) Age(now time.Time) time.Duration {
	return now.Sub(t.CreatedAt())
}

// Mention is a user mentioned in a message.
type Mention struct {
	UserID snowflake.ID
	Bot    bool
}

// Message is an inbound chat message.
type Message struct {
	ID            snowflake.ID
	ChannelID     snowflake.ID
	GuildID       snowflake.ID
	AuthorID      snowflake.ID
	AuthorBot     bool
	AuthorRoleIDs []snowflake.ID
	Content       string
	ReferenceID   *snowflake.ID
	Mentions      []Mention
}

// RepliesTo reports whether the message is a direct reply to messageID.
func (m Message) RepliesTo(messageID snowflake.ID) bool {
	return m.ReferenceID != nil && *m.ReferenceID == messageID
}

// MentionsUser reports whether userID is mentioned in the message.
func (m Message) MentionsUser(userID snowflake.ID) bool {
	return slices.ContainsFunc(m.Mentions, func(mention Mention) bool {
		return mention.UserID == userID
	})
}

// HasRole reports whether the author holds roleID. A zero roleID never matches.
func (m Message) HasRole(roleID snowflake.ID) bool {
	return roleID != 0 && slices.Contains(m.AuthorRoleIDs, roleID)
}

// Tag is an entry of a forum's tag catalog.
type Tag struct {
	ID   snowflake.ID
	Name string
}

// Member is a guild member with the fields needed for role and nickname management.
type Member struct {
	GuildID     snowflake.ID
	UserID      snowflake.ID
	DisplayName string
	RoleIDs     []snowflake.ID
	Bot         bool
}

// HasRole reports whether the member holds roleID.
func (m Member) HasRole(roleID snowflake.ID) bool {
	return slices.Contains(m.RoleIDs, roleID)
}

// OutgoingMessage is a message the bot sends.
type OutgoingMessage struct {
	Content string
	// ReplyTo references the message being answered, if any.
	ReplyTo *snowflake.ID
	// AllowUserMentions restricts pings to these users. Nil means no pings.
	AllowUserMentions []snowflake.ID
}

// Messenger sends and deletes messages in channels and threads.
type Messenger interface {
	// SendMessage posts a message and returns its id.
	SendMessage(ctx context.Context, channelID snowflake.ID, msg OutgoingMessage) (snowflake.ID, error)
	// DeleteMessage removes a message.
	DeleteMessage(ctx context.Context, channelID, messageID snowflake.ID) error
}

// History reads recent messages of a channel or thread.
type History interface {
	// RecentMessages returns up to limit messages, newest first.
	RecentMessages(ctx context.Context, channelID snowflake.ID, limit int) ([]Message, error)
}

// MentionUser formats a user mention.
func MentionUser(userID snowflake.ID) string {
	return "<@" + userID.String() + ">"
}
