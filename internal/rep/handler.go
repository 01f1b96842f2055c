// Package rep implements mention-based reputation ratings, tier roles and the
// periodic nickname refresh.
package rep

import (
	"context"
	"fmt"
	"math/rand/v2"
	"strings"

	"github.com/disgoorg/snowflake/v2"
	"github.com/robalyx/repbot/internal/platform"
	"go.uber.org/zap"
)

const mentionPlaceholder = "{mention}"

// correctionMessages remind users that ratings only count when the bot is mentioned.
var correctionMessages = []string{
	"Hey {mention}, you forgot to mention me first to count rep.",
	"Oi {mention}, you gotta tag me AND the user for rep to work, genius!",
	"Rep doesn't count unless you mention me, {mention}. Try again!",
	"Pro tip: Mention the bot and the user, {mention}, or your rep won't count!",
	"Hey everyone look! {mention} doesn't know how to do this properly.",
}

// TotalReader reads reputation totals.
type TotalReader interface {
	GetTotal(ctx context.Context, userID snowflake.ID) (int64, error)
}

// Store reads and changes reputation totals.
type Store interface {
	TotalReader
	AddDelta(ctx context.Context, userID snowflake.ID, delta int64) (int64, error)
}

// MemberReader looks up guild members.
type MemberReader interface {
	Member(ctx context.Context, guildID, userID snowflake.ID) (platform.Member, error)
}

// Platform is everything the rating handler needs from the chat platform.
type Platform interface {
	platform.Messenger
	MemberReader
	SelfID() snowflake.ID
}

// Handler turns rating messages in the rep channel into score changes.
type Handler struct {
	platform  Platform
	store     Store
	roles     *RoleAssigner
	channelID snowflake.ID
	pick      func(n int) int
	logger    *zap.Logger
}

// NewHandler creates a handler for the rep channel.
func NewHandler(p Platform, store Store, roles *RoleAssigner, channelID snowflake.ID, logger *zap.Logger) *Handler {
	return &Handler{
		platform:  p,
		store:     store,
		roles:     roles,
		channelID: channelID,
		pick:      rand.IntN,
		logger:    logger.Named("rep_handler"),
	}
}

// WithPicker replaces the random choice of correction message. Used by tests.
func (h *Handler) WithPicker(pick func(n int) int) *Handler {
	h.pick = pick
	return h
}

// HandleMessage processes a message posted anywhere; only the rep channel is considered.
func (h *Handler) HandleMessage(ctx context.Context, msg platform.Message) {
	if h.channelID == 0 || msg.ChannelID != h.channelID || msg.AuthorBot || len(msg.Mentions) == 0 {
		return
	}

	selfID := h.platform.SelfID()

	if msg.MentionsUser(selfID) {
		if len(msg.Mentions) > 1 {
			h.handleRating(ctx, msg, selfID)
		}

		return
	}

	if HasRatingPhrase(msg.Content) {
		h.sendCorrection(ctx, msg)
	}
}

func (h *Handler) handleRating(ctx context.Context, msg platform.Message, selfID snowflake.ID) {
	targets := ratingTargets(msg, selfID)
	if len(targets) == 0 {
		return
	}

	var others []snowflake.ID

	for _, id := range targets {
		if id != msg.AuthorID {
			others = append(others, id)
		}
	}

	author := platform.MentionUser(msg.AuthorID)

	switch {
	case len(others) == 0:
		h.reply(ctx, msg, author+", you cannot rate yourself.", msg.AuthorID)
		return
	case len(others) > 1:
		h.reply(ctx, msg, author+", please rate one user at a time.", msg.AuthorID)
		return
	}

	rating := ParseRating(msg.Content)
	if rating == RatingNone {
		h.reply(ctx, msg, author+", please include a clear rating (e.g., 10/10 or scammer).", msg.AuthorID)
		return
	}

	target := others[0]

	total, err := h.store.AddDelta(ctx, target, rating.Delta())
	if err != nil {
		h.logger.Error("Failed to save rating",
			zap.Uint64("targetID", uint64(target)),
			zap.Uint64("authorID", uint64(msg.AuthorID)),
			zap.Error(err))
		h.reply(ctx, msg, author+", your rating could not be saved. Please try again later.", msg.AuthorID)

		return
	}

	h.logger.Info("Rating recorded",
		zap.Uint64("targetID", uint64(target)),
		zap.Uint64("authorID", uint64(msg.AuthorID)),
		zap.Int64("delta", rating.Delta()),
		zap.Int64("total", total))

	h.reply(ctx, msg,
		fmt.Sprintf("%s received **%s rep** from %s. Total: **%d**",
			platform.MentionUser(target), rating.Sign(), author, total),
		target, msg.AuthorID)

	h.RefreshRoles(ctx, msg.GuildID, target, total)
}

// RefreshRoles re-applies the tier role and nickname for one member.
func (h *Handler) RefreshRoles(ctx context.Context, guildID, userID snowflake.ID, total int64) {
	if h.roles == nil {
		return
	}

	member, err := h.platform.Member(ctx, guildID, userID)
	if err != nil {
		h.logger.Warn("Failed to fetch member for role update",
			zap.Uint64("userID", uint64(userID)),
			zap.Error(err))

		return
	}

	_ = h.roles.Apply(ctx, h.logger, member, total)
}

func (h *Handler) sendCorrection(ctx context.Context, msg platform.Message) {
	template := correctionMessages[h.pick(len(correctionMessages))]
	content := strings.ReplaceAll(template, mentionPlaceholder, platform.MentionUser(msg.AuthorID))

	h.reply(ctx, msg, content, msg.AuthorID)
}

func (h *Handler) reply(ctx context.Context, msg platform.Message, content string, ping ...snowflake.ID) {
	_, err := h.platform.SendMessage(ctx, msg.ChannelID, platform.OutgoingMessage{
		Content:           content,
		ReplyTo:           &msg.ID,
		AllowUserMentions: ping,
	})
	if err != nil {
		h.logger.Error("Failed to send reply",
			zap.Uint64("channelID", uint64(msg.ChannelID)),
			zap.Uint64("messageID", uint64(msg.ID)),
			zap.Error(err))
	}
}

// ratingTargets returns the distinct mentioned humans other than the bot, in mention order.
func ratingTargets(msg platform.Message, selfID snowflake.ID) []snowflake.ID {
	var targets []snowflake.ID

	seen := make(map[snowflake.ID]struct{}, len(msg.Mentions))
	for _, mention := range msg.Mentions {
		if mention.UserID == selfID || mention.Bot {
			continue
		}

		if _, ok := seen[mention.UserID]; ok {
			continue
		}

		seen[mention.UserID] = struct{}{}
		targets = append(targets, mention.UserID)
	}

	return targets
}
