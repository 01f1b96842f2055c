// Package commands implements the slash command behavior independent of the gateway library.
package commands

import (
	"context"
	"fmt"
	"strings"

	"github.com/disgoorg/snowflake/v2"
	"github.com/robalyx/repbot/internal/database/types"
	"github.com/robalyx/repbot/internal/platform"
	"github.com/robalyx/repbot/internal/rep"
	"go.uber.org/zap"
)

// Command names.
const (
	NameAddRep       = "addrep"
	NameRatings      = "ratings"
	NameLeaderboard  = "leaderboard"
	NameForumChecker = "forumchecker"
)

// LeaderboardSize is the number of entries shown by the leaderboard command.
const LeaderboardSize = 20

const (
	msgNoPermission     = "You do not have permission to use this command."
	msgForumUsage       = "Usage: /forumchecker <enable|disable>"
	msgLeaderboardEmpty = "No reputation data found."
	msgLeaderboardTitle = "**Top 20 Reputation Leaderboard:**"
)

// Response is the reply to a command invocation.
type Response struct {
	Content   string
	Ephemeral bool
}

// Store is the reputation storage used by commands.
type Store interface {
	rep.Store
	TopN(ctx context.Context, n int) ([]types.RepTotal, error)
}

// RoleRefresher re-applies a member's tier role and nickname.
type RoleRefresher interface {
	RefreshRoles(ctx context.Context, guildID, userID snowflake.ID, total int64)
}

// ForumToggle switches the forum checker on and off.
type ForumToggle interface {
	SetEnabled(enabled bool)
	Enabled() bool
}

// Service executes commands on behalf of a caller.
type Service struct {
	store        Store
	members      rep.MemberReader
	roles        RoleRefresher
	forum        ForumToggle
	messenger    platform.Messenger
	logChannelID snowflake.ID
	adminRoleID  snowflake.ID
	logger       *zap.Logger
}

// Config holds the ids the command service needs.
type Config struct {
	LogChannelID snowflake.ID
	AdminRoleID  snowflake.ID
}

// NewService creates a command service. roles, forum and messenger may be nil.
func NewService(
	store Store,
	members rep.MemberReader,
	roles RoleRefresher,
	forum ForumToggle,
	messenger platform.Messenger,
	config Config,
	logger *zap.Logger,
) *Service {
	return &Service{
		store:        store,
		members:      members,
		roles:        roles,
		forum:        forum,
		messenger:    messenger,
		logChannelID: config.LogChannelID,
		adminRoleID:  config.AdminRoleID,
		logger:       logger.Named("commands"),
	}
}

// IsPrivileged reports whether the caller holds the admin role.
// Without a configured admin role nobody is privileged.
func (s *Service) IsPrivileged(caller platform.Member) bool {
	return s.adminRoleID != 0 && caller.HasRole(s.adminRoleID)
}

// AddRep adds amount to the target's total.
func (s *Service) AddRep(ctx context.Context, caller, target platform.Member, amount int64) Response {
	if !s.IsPrivileged(caller) {
		return denied()
	}

	if amount == 0 {
		return Response{Content: "Amount must not be zero.", Ephemeral: true}
	}

	total, err := s.store.AddDelta(ctx, target.UserID, amount)
	if err != nil {
		s.logger.Error("Failed to add rep",
			zap.Uint64("callerID", uint64(caller.UserID)),
			zap.Uint64("targetID", uint64(target.UserID)),
			zap.Int64("amount", amount),
			zap.Error(err))

		return Response{Content: "Failed to update reputation. Please try again later.", Ephemeral: true}
	}

	s.logger.Info("Rep added by admin",
		zap.Uint64("callerID", uint64(caller.UserID)),
		zap.Uint64("targetID", uint64(target.UserID)),
		zap.Int64("amount", amount),
		zap.Int64("total", total))

	if s.roles != nil {
		s.roles.RefreshRoles(ctx, target.GuildID, target.UserID, total)
	}

	s.audit(ctx, fmt.Sprintf("%s added %d rep to %s. New total: %d",
		platform.MentionUser(caller.UserID), amount, platform.MentionUser(target.UserID), total))

	return Response{Content: fmt.Sprintf("Added %d rep to %s!", amount, target.DisplayName)}
}

// Ratings shows the target's total.
func (s *Service) Ratings(ctx context.Context, target platform.Member) Response {
	total, err := s.store.GetTotal(ctx, target.UserID)
	if err != nil {
		s.logger.Error("Failed to read rep",
			zap.Uint64("targetID", uint64(target.UserID)),
			zap.Error(err))

		return Response{Content: "Failed to read reputation. Please try again later.", Ephemeral: true}
	}

	return Response{Content: fmt.Sprintf("%s has %d reputation points.", target.DisplayName, total)}
}

// Leaderboard lists the highest totals.
func (s *Service) Leaderboard(ctx context.Context, caller platform.Member) Response {
	if !s.IsPrivileged(caller) {
		return denied()
	}

	totals, err := s.store.TopN(ctx, LeaderboardSize)
	if err != nil {
		s.logger.Error("Failed to fetch leaderboard", zap.Error(err))
		return Response{Content: "Error fetching leaderboard. Please try again later.", Ephemeral: true}
	}

	if len(totals) == 0 {
		return Response{Content: msgLeaderboardEmpty}
	}

	var b strings.Builder
	b.WriteString(msgLeaderboardTitle)

	for i, entry := range totals {
		fmt.Fprintf(&b, "\n%d. %s — %d rep", i+1, s.displayName(ctx, caller.GuildID, snowflake.ID(entry.UserID)), entry.Total)
	}

	return Response{Content: b.String()}
}

// ForumChecker enables or disables the forum checker.
func (s *Service) ForumChecker(ctx context.Context, caller platform.Member, state string) Response {
	if !s.IsPrivileged(caller) {
		return denied()
	}

	if s.forum == nil {
		return Response{Content: "The forum checker is not configured.", Ephemeral: true}
	}

	var enabled bool

	switch strings.ToLower(strings.TrimSpace(state)) {
	case "enable":
		enabled = true
	case "disable":
		enabled = false
	default:
		return Response{Content: msgForumUsage, Ephemeral: true}
	}

	s.forum.SetEnabled(enabled)

	word := "disabled"
	if enabled {
		word = "enabled"
	}

	s.logger.Info("Forum checker toggled",
		zap.Uint64("callerID", uint64(caller.UserID)),
		zap.Bool("enabled", enabled))
	s.audit(ctx, fmt.Sprintf("%s %s the forum checker.", platform.MentionUser(caller.UserID), word))

	return Response{Content: "Forum checker " + word + "."}
}

// displayName resolves a member name, falling back to the raw id.
func (s *Service) displayName(ctx context.Context, guildID, userID snowflake.ID) string {
	if s.members != nil {
		member, err := s.members.Member(ctx, guildID, userID)
		if err == nil && member.DisplayName != "" {
			return member.DisplayName
		}
	}

	return "User ID: " + userID.String()
}

// audit posts a line to the log channel without pinging anyone.
func (s *Service) audit(ctx context.Context, content string) {
	if s.messenger == nil || s.logChannelID == 0 {
		return
	}

	if _, err := s.messenger.SendMessage(ctx, s.logChannelID, platform.OutgoingMessage{Content: content}); err != nil {
		s.logger.Warn("Failed to send audit message", zap.Error(err))
	}
}

func denied() Response {
	return Response{Content: msgNoPermission, Ephemeral: true}
}
