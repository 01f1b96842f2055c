// Package sticky keeps a help message at the bottom of the rep channel.
package sticky

import (
	"context"
	"strings"
	"sync"

	"github.com/disgoorg/snowflake/v2"
	"github.com/robalyx/repbot/internal/platform"
	"go.uber.org/zap"
)

// Marker identifies sticky messages posted by the bot.
const Marker = "[REP-STICKY]"

// staleScanLimit bounds how far back Ensure looks for stickies from a previous run.
const staleScanLimit = 50

// DefaultContent explains how to rate users correctly.
const DefaultContent = Marker + "\n" +
	"**How to have rep counted correctly:**\n" +
	"- Rate by mentioning the bot AND the user in the designated rep channel.\n" +
	"- Include a clear rating phrase (e.g. `10/10`, `+1`, or `scammer`).\n" +
	"- Do NOT rate yourself.\n" +
	"- Make sure your rating message is NOT from a bot account and contains the mentioned user.\n" +
	"- Edits to old posts may not trigger rechecks, reply with a proper rating message if needed.\n" +
	"\nThis message is maintained by the bot and will always appear at the bottom."

// Platform is everything the keeper needs from the chat platform.
type Platform interface {
	platform.Messenger
	platform.History
	SelfID() snowflake.ID
}

// Keeper reposts the sticky message after every user message in its channel.
type Keeper struct {
	platform  Platform
	channelID snowflake.ID
	content   string
	mu        sync.Mutex
	lastID    snowflake.ID
	logger    *zap.Logger
}

// NewKeeper creates a keeper. A zero channelID disables it.
// Custom content gets the marker prepended so stale copies can be found later.
func NewKeeper(p Platform, channelID snowflake.ID, content string, logger *zap.Logger) *Keeper {
	switch {
	case content == "":
		content = DefaultContent
	case !strings.HasPrefix(content, Marker):
		content = Marker + "\n" + content
	}

	return &Keeper{
		platform:  p,
		channelID: channelID,
		content:   content,
		logger:    logger.Named("sticky"),
	}
}

// Enabled reports whether a sticky channel is configured.
func (k *Keeper) Enabled() bool {
	return k.channelID != 0
}

// LastID returns the id of the current sticky message, or zero.
func (k *Keeper) LastID() snowflake.ID {
	k.mu.Lock()
	defer k.mu.Unlock()

	return k.lastID
}

// OnMessage moves the sticky below a new user message in the sticky channel.
func (k *Keeper) OnMessage(ctx context.Context, msg platform.Message) {
	if !k.Enabled() || msg.ChannelID != k.channelID || msg.AuthorBot {
		return
	}

	k.mu.Lock()
	defer k.mu.Unlock()

	k.repost(ctx)
}

// Ensure removes stickies left behind by an earlier run and posts a fresh one.
func (k *Keeper) Ensure(ctx context.Context) {
	if !k.Enabled() {
		return
	}

	k.mu.Lock()
	defer k.mu.Unlock()

	history, err := k.platform.RecentMessages(ctx, k.channelID, staleScanLimit)
	if err != nil {
		k.logger.Warn("Failed to read sticky channel history", zap.Error(err))
	}

	selfID := k.platform.SelfID()

	for _, msg := range history {
		if msg.AuthorID != selfID || !strings.HasPrefix(msg.Content, Marker) || msg.ID == k.lastID {
			continue
		}

		if err := k.platform.DeleteMessage(ctx, k.channelID, msg.ID); err != nil {
			k.logger.Warn("Failed to delete stale sticky",
				zap.Uint64("messageID", uint64(msg.ID)),
				zap.Error(err))
		}
	}

	k.repost(ctx)
}

// repost requires k.mu.
func (k *Keeper) repost(ctx context.Context) {
	if k.lastID != 0 {
		if err := k.platform.DeleteMessage(ctx, k.channelID, k.lastID); err != nil {
			k.logger.Debug("Could not delete previous sticky",
				zap.Uint64("messageID", uint64(k.lastID)),
				zap.Error(err))
		}

		k.lastID = 0
	}

	id, err := k.platform.SendMessage(ctx, k.channelID, platform.OutgoingMessage{Content: k.content})
	if err != nil {
		k.logger.Error("Failed to send sticky message", zap.Error(err))
		return
	}

	k.lastID = id
}
