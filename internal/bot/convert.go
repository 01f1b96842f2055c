package bot

import (
	"github.com/disgoorg/disgo/discord"
	"github.com/disgoorg/snowflake/v2"
	"github.com/robalyx/repbot/internal/platform"
)

// toMessage converts a gateway or REST message.
func toMessage(msg discord.Message) platform.Message {
	out := platform.Message{
		ID:        msg.ID,
		ChannelID: msg.ChannelID,
		AuthorID:  msg.Author.ID,
		AuthorBot: msg.Author.Bot,
		Content:   msg.Content,
	}

	if msg.GuildID != nil {
		out.GuildID = *msg.GuildID
	}

	if msg.Member != nil {
		out.AuthorRoleIDs = msg.Member.RoleIDs
	}

	if msg.MessageReference != nil && msg.MessageReference.MessageID != nil {
		id := *msg.MessageReference.MessageID
		out.ReferenceID = &id
	}

	if len(msg.Mentions) > 0 {
		out.Mentions = make([]platform.Mention, 0, len(msg.Mentions))
		for _, user := range msg.Mentions {
			out.Mentions = append(out.Mentions, platform.Mention{UserID: user.ID, Bot: user.Bot})
		}
	}

	return out
}

// toThread converts a thread channel.
func toThread(thread discord.GuildThread) platform.Thread {
	out := platform.Thread{
		ID:          thread.ID(),
		GuildID:     thread.GuildID(),
		OwnerID:     thread.OwnerID,
		Name:        thread.Name(),
		AppliedTags: thread.AppliedTags,
	}

	if parentID := thread.ParentID(); parentID != nil {
		out.ParentID = *parentID
	}

	return out
}

// toMember converts a guild member.
func toMember(guildID snowflake.ID, member discord.Member) platform.Member {
	return platform.Member{
		GuildID:     guildID,
		UserID:      member.User.ID,
		DisplayName: member.EffectiveName(),
		RoleIDs:     member.RoleIDs,
		Bot:         member.User.Bot,
	}
}

// toTags converts a forum tag catalog.
func toTags(tags []discord.ChannelTag) []platform.Tag {
	out := make([]platform.Tag, 0, len(tags))
	for _, tag := range tags {
		out = append(out, platform.Tag{ID: tag.ID, Name: tag.Name})
	}

	return out
}

// toMessageCreate builds an outgoing message. Only the listed users can be pinged
// and replies never ping the replied-to author on their own.
func toMessageCreate(msg platform.OutgoingMessage) discord.MessageCreate {
	users := msg.AllowUserMentions
	if users == nil {
		users = []snowflake.ID{}
	}

	create := discord.MessageCreate{
		Content: msg.Content,
		AllowedMentions: &discord.AllowedMentions{
			Parse: []discord.AllowedMentionType{},
			Users: users,
		},
	}

	if msg.ReplyTo != nil {
		replyTo := *msg.ReplyTo
		create.MessageReference = &discord.MessageReference{MessageID: &replyTo}
	}

	return create
}
