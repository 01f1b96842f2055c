package events

import (
	"fmt"
	"slices"
	"sync"

	"github.com/disgoorg/disgo/bot"
	"github.com/disgoorg/disgo/discord"
	"github.com/disgoorg/disgo/events"
	"github.com/disgoorg/snowflake/v2"
	"go.uber.org/zap"
)

// GuildEventHandler tracks the guilds the bot serves and registers
// the slash commands in each of them.
type GuildEventHandler struct {
	commands []discord.ApplicationCommandCreate
	mu       sync.RWMutex
	guilds   map[snowflake.ID]struct{}
	logger   *zap.Logger
}

// NewGuildEventHandler creates a new instance of the guild event handler.
func NewGuildEventHandler(commands []discord.ApplicationCommandCreate, logger *zap.Logger) *GuildEventHandler {
	return &GuildEventHandler{
		commands: commands,
		guilds:   make(map[snowflake.ID]struct{}),
		logger:   logger.Named("guild_events"),
	}
}

// Guilds returns the tracked guild ids in ascending order.
func (h *GuildEventHandler) Guilds() []snowflake.ID {
	h.mu.RLock()
	defer h.mu.RUnlock()

	out := make([]snowflake.ID, 0, len(h.guilds))
	for id := range h.guilds {
		out = append(out, id)
	}

	slices.Sort(out)

	return out
}

// Track starts tracking a guild. It reports whether the guild was new.
func (h *GuildEventHandler) Track(guildID snowflake.ID) bool {
	h.mu.Lock()
	defer h.mu.Unlock()

	if _, ok := h.guilds[guildID]; ok {
		return false
	}

	h.guilds[guildID] = struct{}{}

	return true
}

// Untrack stops tracking a guild.
func (h *GuildEventHandler) Untrack(guildID snowflake.ID) {
	h.mu.Lock()
	defer h.mu.Unlock()

	delete(h.guilds, guildID)
}

// OnGuildReady handles guilds delivered while the gateway session starts.
func (h *GuildEventHandler) OnGuildReady(event *events.GuildReady) {
	if h.Track(event.Guild.ID) {
		h.registerGuildCommands(event.Client(), event.Guild.ID)
	}
}

// OnGuildJoin handles the event when the bot joins a new guild.
func (h *GuildEventHandler) OnGuildJoin(event *events.GuildJoin) {
	h.logger.Info("Bot joined a new guild",
		zap.Uint64("guildID", uint64(event.Guild.ID)),
		zap.String("guild_name", event.Guild.Name))

	if h.Track(event.Guild.ID) {
		h.registerGuildCommands(event.Client(), event.Guild.ID)
	}
}

// OnGuildLeave handles the event when the bot is removed from a guild.
func (h *GuildEventHandler) OnGuildLeave(event *events.GuildLeave) {
	h.logger.Info("Bot left a guild", zap.Uint64("guildID", uint64(event.GuildID)))
	h.Untrack(event.GuildID)
}

// registerGuildCommands registers the bot's commands for a specific guild.
func (h *GuildEventHandler) registerGuildCommands(client bot.Client, guildID snowflake.ID) {
	if err := h.setGuildCommands(client, guildID); err != nil {
		h.logger.Error("Failed to register guild commands",
			zap.Uint64("guildID", uint64(guildID)),
			zap.Error(err))

		return
	}

	h.logger.Debug("Successfully registered guild commands",
		zap.Uint64("guildID", uint64(guildID)),
		zap.Int("count", len(h.commands)))
}

func (h *GuildEventHandler) setGuildCommands(client bot.Client, guildID snowflake.ID) error {
	_, err := client.Rest().SetGuildCommands(client.ApplicationID(), guildID, h.commands)
	if err != nil {
		return fmt.Errorf("failed to register guild commands: %w", err)
	}

	return nil
}
