package bot

import (
	"context"
	"time"

	"github.com/disgoorg/disgo/discord"
	"github.com/disgoorg/disgo/events"
	"github.com/robalyx/repbot/internal/commands"
	"github.com/robalyx/repbot/internal/platform"
	"go.uber.org/zap"
)

const (
	optionUser   = "user"
	optionAmount = "amount"
	optionState  = "state"

	msgGuildOnly     = "This command can only be used in a server."
	msgUnknown       = "This command is not available."
	msgMemberMissing = "That user is not a member of this server."
	msgInternalError = "Internal error. Please report this to an administrator."

	commandTimeout = 30 * time.Second
)

// SlashCommands returns the guild commands the bot registers.
func SlashCommands() []discord.ApplicationCommandCreate {
	return []discord.ApplicationCommandCreate{
		discord.SlashCommandCreate{
			Name:        commands.NameAddRep,
			Description: "Add reputation to a user",
			Options: []discord.ApplicationCommandOption{
				discord.ApplicationCommandOptionUser{
					Name:        optionUser,
					Description: "User to give reputation to",
					Required:    true,
				},
				discord.ApplicationCommandOptionInt{
					Name:        optionAmount,
					Description: "Amount of reputation to add, negative to remove",
					Required:    true,
				},
			},
		},
		discord.SlashCommandCreate{
			Name:        commands.NameRatings,
			Description: "Show a user's reputation",
			Options: []discord.ApplicationCommandOption{
				discord.ApplicationCommandOptionUser{
					Name:        optionUser,
					Description: "User to look up",
					Required:    true,
				},
			},
		},
		discord.SlashCommandCreate{
			Name:        commands.NameLeaderboard,
			Description: "Show the reputation leaderboard",
		},
		discord.SlashCommandCreate{
			Name:        commands.NameForumChecker,
			Description: "Enable or disable the forum checker",
			Options: []discord.ApplicationCommandOption{
				discord.ApplicationCommandOptionString{
					Name:        optionState,
					Description: "New state of the forum checker",
					Required:    true,
					Choices: []discord.ApplicationCommandOptionChoiceString{
						{Name: "enable", Value: "enable"},
						{Name: "disable", Value: "disable"},
					},
				},
			},
		},
	}
}

// handleApplicationCommandInteraction defers the response and runs the command in a goroutine.
func (b *Bot) handleApplicationCommandInteraction(event *events.ApplicationCommandInteractionCreate) {
	go func() {
		// Defer response to prevent Discord timeout while processing
		if err := event.DeferCreateMessage(false); err != nil {
			b.logger.Error("Failed to defer create message", zap.Error(err))
			return
		}

		data := event.SlashCommandInteractionData()

		start := time.Now()
		defer func() {
			if r := recover(); r != nil {
				b.logger.Error("Panic in application command interaction handler", zap.Any("panic", r))
				b.respond(event, commands.Response{Content: msgInternalError, Ephemeral: true})
			}
			b.logger.Debug("Application command interaction handled",
				zap.String("command", data.CommandName()),
				zap.Duration("duration", time.Since(start)))
		}()

		ctx, cancel := context.WithTimeout(context.Background(), commandTimeout)
		defer cancel()

		b.respond(event, b.runCommand(ctx, event, data))
	}()
}

// runCommand resolves the caller and options and calls the command service.
func (b *Bot) runCommand(
	ctx context.Context, event *events.ApplicationCommandInteractionCreate, data discord.SlashCommandInteractionData,
) commands.Response {
	guildID := event.GuildID()
	resolved := event.Member()

	if guildID == nil || resolved == nil {
		return commands.Response{Content: msgGuildOnly, Ephemeral: true}
	}

	caller := toMember(*guildID, resolved.Member)

	switch data.CommandName() {
	case commands.NameAddRep:
		target, ok := b.targetMember(ctx, caller, data)
		if !ok {
			return commands.Response{Content: msgMemberMissing, Ephemeral: true}
		}

		amount, _ := data.OptInt(optionAmount)

		return b.commands.AddRep(ctx, caller, target, int64(amount))

	case commands.NameRatings:
		target, ok := b.targetMember(ctx, caller, data)
		if !ok {
			return commands.Response{Content: msgMemberMissing, Ephemeral: true}
		}

		return b.commands.Ratings(ctx, target)

	case commands.NameLeaderboard:
		return b.commands.Leaderboard(ctx, caller)

	case commands.NameForumChecker:
		state, _ := data.OptString(optionState)
		return b.commands.ForumChecker(ctx, caller, state)

	default:
		return commands.Response{Content: msgUnknown, Ephemeral: true}
	}
}

// targetMember resolves the user option to a member of the caller's guild.
func (b *Bot) targetMember(
	ctx context.Context, caller platform.Member, data discord.SlashCommandInteractionData,
) (platform.Member, bool) {
	user, ok := data.OptUser(optionUser)
	if !ok {
		return platform.Member{}, false
	}

	member, err := b.adapter.Member(ctx, caller.GuildID, user.ID)
	if err != nil {
		b.logger.Debug("Failed to resolve command target",
			zap.Uint64("userID", uint64(user.ID)),
			zap.Error(err))

		return platform.Member{}, false
	}

	return member, true
}

// respond edits the deferred reply. Ephemeral replies replace it with a followup
// only the caller can see, since a deferred public reply cannot turn ephemeral.
func (b *Bot) respond(event *events.ApplicationCommandInteractionCreate, resp commands.Response) {
	rest := event.Client().Rest()
	noPings := &discord.AllowedMentions{Parse: []discord.AllowedMentionType{}}

	if !resp.Ephemeral {
		_, err := rest.UpdateInteractionResponse(event.ApplicationID(), event.Token(), discord.MessageUpdate{
			Content:         &resp.Content,
			AllowedMentions: noPings,
		})
		if err != nil {
			b.logger.Error("Failed to update interaction response", zap.Error(err))
		}

		return
	}

	if err := rest.DeleteInteractionResponse(event.ApplicationID(), event.Token()); err != nil {
		b.logger.Warn("Failed to delete deferred response", zap.Error(err))
	}

	_, err := rest.CreateFollowupMessage(event.ApplicationID(), event.Token(), discord.MessageCreate{
		Content:         resp.Content,
		Flags:           discord.MessageFlagEphemeral,
		AllowedMentions: noPings,
	})
	if err != nil {
		b.logger.Error("Failed to send ephemeral response", zap.Error(err))
	}
}
