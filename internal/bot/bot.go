// Package bot connects the reputation, forum and sticky features to Discord.
package bot

import (
	"context"
	"errors"
	"time"

	"github.com/disgoorg/disgo"
	"github.com/disgoorg/disgo/bot"
	"github.com/disgoorg/disgo/cache"
	"github.com/disgoorg/disgo/events"
	"github.com/disgoorg/disgo/gateway"
	"github.com/disgoorg/snowflake/v2"
	botEvents "github.com/robalyx/repbot/internal/bot/events"
	"github.com/robalyx/repbot/internal/commands"
	"github.com/robalyx/repbot/internal/discord/rate"
	"github.com/robalyx/repbot/internal/forum"
	"github.com/robalyx/repbot/internal/platform"
	"github.com/robalyx/repbot/internal/rep"
	"github.com/robalyx/repbot/internal/setup"
	"github.com/robalyx/repbot/internal/sticky"
	"go.uber.org/zap"
)

// eventTimeout bounds the work done for a single gateway event.
const eventTimeout = 2 * time.Minute

var (
	ErrMissingToken = errors.New("discord token is not configured")
	ErrMissingStore = errors.New("bot requires a store and a notification ledger")
)

// Bot owns the Discord client and routes gateway events to the features.
type Bot struct {
	client    bot.Client
	adapter   *Adapter
	checker   *forum.Checker
	rep       *rep.Handler
	refresher *rep.Refresher
	sticky    *sticky.Keeper
	commands  *commands.Service
	guilds    *botEvents.GuildEventHandler
	forumID   snowflake.ID
	repID     snowflake.ID
	stickyID  snowflake.ID
	logger    *zap.Logger
}

// New builds the Discord client and every feature from the app's config and services.
func New(app *setup.App, locations []string) (*Bot, error) {
	cfg := app.Config.Bot
	if cfg.Discord.Token == "" {
		return nil, ErrMissingToken
	}

	if app.Store == nil || app.Ledger == nil {
		return nil, ErrMissingStore
	}

	logger := app.Logger.Named("bot")

	b := &Bot{
		guilds:   botEvents.NewGuildEventHandler(SlashCommands(), logger),
		forumID:  snowflake.ID(cfg.Channels.Forum),
		repID:    snowflake.ID(cfg.Channels.Rep),
		stickyID: snowflake.ID(cfg.Channels.Sticky),
		logger:   logger,
	}

	// Configure Discord client with required gateway intents and event handlers
	client, err := disgo.New(cfg.Discord.Token,
		bot.WithGatewayConfigOpts(
			gateway.WithIntents(
				gateway.IntentGuilds,
				gateway.IntentGuildMessages,
				gateway.IntentMessageContent,
				gateway.IntentGuildMembers,
			),
		),
		bot.WithCacheConfigOpts(
			cache.WithCaches(cache.FlagGuilds, cache.FlagChannels, cache.FlagMembers, cache.FlagRoles),
		),
		bot.WithEventListeners(&events.ListenerAdapter{
			OnReady:                         b.handleReady,
			OnGuildReady:                    b.guilds.OnGuildReady,
			OnGuildJoin:                     b.guilds.OnGuildJoin,
			OnGuildLeave:                    b.guilds.OnGuildLeave,
			OnGuildMessageCreate:            b.handleGuildMessageCreate,
			OnThreadCreate:                  b.handleThreadCreate,
			OnApplicationCommandInteraction: b.handleApplicationCommandInteraction,
		}),
	)
	if err != nil {
		return nil, err
	}

	b.client = client
	b.adapter = NewAdapter(client)

	tiers := make([]rep.RoleTier, 0, len(cfg.Roles.Tiers))
	for _, tier := range cfg.Roles.Tiers {
		tiers = append(tiers, rep.RoleTier{Threshold: tier.Threshold, RoleID: snowflake.ID(tier.RoleID)})
	}

	roles := rep.NewRoleAssigner(b.adapter, tiers)
	logChannelID := snowflake.ID(cfg.Channels.Log)
	adminRoleID := snowflake.ID(cfg.Roles.AdminRoleID)

	b.checker = forum.NewChecker(b.adapter, app.Ledger, forum.NewLocationMatcher(locations), forum.Config{
		ForumID:            b.forumID,
		LogChannelID:       logChannelID,
		AdminRoleID:        adminRoleID,
		MissingPriceTag:    cfg.Forum.MissingPriceTag,
		MissingLocationTag: cfg.Forum.MissingLocationTag,
		ClearCommand:       cfg.Forum.ClearCommand,
		MaxThreadAge:       cfg.Forum.MaxThreadAge,
		HistoryScanLimit:   cfg.Forum.HistoryScanLimit,
	}, logger)
	b.rep = rep.NewHandler(b.adapter, app.Store, roles, b.repID, logger)
	b.refresher = rep.NewRefresher(b.adapter, b.guilds, app.Store, roles,
		rate.New(cfg.Refresh.MinInterval, cfg.Refresh.Jitter),
		rep.RefreshConfig{
			Interval:     cfg.Refresh.Interval,
			InitialDelay: cfg.Refresh.InitialDelay,
			Concurrency:  cfg.Refresh.Concurrency,
		}, logger)
	b.sticky = sticky.NewKeeper(b.adapter, b.stickyID, cfg.StickyMessage, logger)
	b.commands = commands.NewService(app.Store, b.adapter, b.rep, b.checker, b.adapter, commands.Config{
		LogChannelID: logChannelID,
		AdminRoleID:  adminRoleID,
	}, logger)

	logger.Info("Bot initialized",
		zap.Int("locations", len(locations)),
		zap.Int("tiers", len(tiers)),
		zap.Bool("forum", b.forumID != 0),
		zap.Bool("rep", b.repID != 0),
		zap.Bool("sticky", b.sticky.Enabled()))

	return b, nil
}

// Start opens the gateway connection.
func (b *Bot) Start(ctx context.Context) error {
	b.logger.Info("Starting bot")
	return b.client.OpenGateway(ctx)
}

// RunRefresher runs the periodic role refresh until ctx ends.
func (b *Bot) RunRefresher(ctx context.Context) {
	b.refresher.Run(ctx)
}

// Close gracefully shuts down the Discord gateway connection.
func (b *Bot) Close(ctx context.Context) {
	b.logger.Info("Closing bot")
	b.client.Close(ctx)
}

// handleReady cleans up stale sticky messages once the session is up.
func (b *Bot) handleReady(event *events.Ready) {
	b.logger.Info("Bot is ready",
		zap.String("user", event.User.Username),
		zap.Int("guilds", len(event.Guilds)))

	b.runEvent("ready", func(ctx context.Context) {
		b.sticky.Ensure(ctx)
	})
}

// handleGuildMessageCreate routes a message to the rep handler, the sticky keeper and,
// for forum threads, the forum checker.
func (b *Bot) handleGuildMessageCreate(event *events.GuildMessageCreate) {
	msg := toMessage(event.Message)
	if msg.GuildID == 0 {
		msg.GuildID = event.GuildID
	}

	b.runEvent("message_create", func(ctx context.Context) {
		b.rep.HandleMessage(ctx, msg)
		b.sticky.OnMessage(ctx, msg)

		if b.forumID == 0 || msg.ChannelID == b.repID || msg.ChannelID == b.stickyID {
			return
		}

		thread, err := b.adapter.Thread(ctx, msg.ChannelID)
		if err != nil {
			if !errors.Is(err, ErrNotThread) {
				b.logger.Debug("Failed to resolve message channel",
					zap.Uint64("channelID", uint64(msg.ChannelID)),
					zap.Error(err))
			}

			return
		}

		b.checker.HandleMessage(ctx, thread, msg)
	})
}

// handleThreadCreate checks the title of a new forum thread.
func (b *Bot) handleThreadCreate(event *events.ThreadCreate) {
	thread := toThread(event.Thread)

	b.runEvent("thread_create", func(ctx context.Context) {
		b.checker.HandleThreadCreate(ctx, thread)
	})
}

// runEvent handles an event in its own goroutine with a timeout and panic recovery.
func (b *Bot) runEvent(name string, fn func(ctx context.Context)) {
	go func() {
		start := time.Now()
		defer func() {
			if r := recover(); r != nil {
				b.logger.Error("Panic in event handler",
					zap.String("event", name),
					zap.Any("panic", r))
			}
			b.logger.Debug("Event handled",
				zap.String("event", name),
				zap.Duration("duration", time.Since(start)))
		}()

		ctx, cancel := context.WithTimeout(context.Background(), eventTimeout)
		defer cancel()

		fn(ctx)
	}()
}

var (
	_ forum.Platform   = (*Adapter)(nil)
	_ rep.Platform     = (*Adapter)(nil)
	_ rep.RoleEditor   = (*Adapter)(nil)
	_ rep.MemberLister = (*Adapter)(nil)
	_ sticky.Platform  = (*Adapter)(nil)
	_ platform.History = (*Adapter)(nil)
)
