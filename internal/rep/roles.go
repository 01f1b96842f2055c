package rep

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"regexp"
	"slices"
	"unicode/utf8"

	"github.com/disgoorg/snowflake/v2"
	"github.com/robalyx/repbot/internal/platform"
	"github.com/robalyx/repbot/pkg/utils"
	"go.uber.org/zap"
)

// MaxNicknameLength is Discord's nickname limit in characters.
const MaxNicknameLength = 32

// repSuffixPattern matches a trailing "(N rep)" suffix and the spaces before it.
var repSuffixPattern = regexp.MustCompile(`\s*\(\d+\s*rep\)$`)

// RoleTier grants RoleID to members whose total reaches Threshold.
type RoleTier struct {
	Threshold int64
	RoleID    snowflake.ID
}

// RoleEditor changes member roles and nicknames on the platform.
type RoleEditor interface {
	AddRole(ctx context.Context, guildID, userID, roleID snowflake.ID) error
	RemoveRole(ctx context.Context, guildID, userID, roleID snowflake.ID) error
	SetNickname(ctx context.Context, guildID, userID snowflake.ID, nickname string) error
}

// RoleAssigner keeps a member's tier role and nickname suffix in line with their total.
type RoleAssigner struct {
	editor RoleEditor
	tiers  []RoleTier
}

// NewRoleAssigner creates an assigner. Tiers are sorted by descending threshold and
// tiers without a role are dropped.
func NewRoleAssigner(editor RoleEditor, tiers []RoleTier) *RoleAssigner {
	sorted := slices.DeleteFunc(slices.Clone(tiers), func(tier RoleTier) bool {
		return tier.RoleID == 0
	})
	slices.SortFunc(sorted, func(a, b RoleTier) int {
		return cmp.Compare(b.Threshold, a.Threshold)
	})

	return &RoleAssigner{
		editor: editor,
		tiers:  sorted,
	}
}

// WithEditor returns a copy of the assigner that edits through editor.
func (a *RoleAssigner) WithEditor(editor RoleEditor) *RoleAssigner {
	return &RoleAssigner{
		editor: editor,
		tiers:  a.tiers,
	}
}

// Tiers returns the tier table, highest threshold first.
func (a *RoleAssigner) Tiers() []RoleTier {
	return slices.Clone(a.tiers)
}

// TierFor returns the highest tier whose threshold is at most total.
func (a *RoleAssigner) TierFor(total int64) (RoleTier, bool) {
	for _, tier := range a.tiers {
		if total >= tier.Threshold {
			return tier, true
		}
	}

	return RoleTier{}, false
}

// Apply converges the member's tier roles and nickname. Every failed platform call is
// logged through logger and returned joined; successful calls still take effect.
func (a *RoleAssigner) Apply(ctx context.Context, logger *zap.Logger, member platform.Member, total int64) error {
	var errs []error

	target, hasTarget := a.TierFor(total)

	for _, tier := range a.tiers {
		if hasTarget && tier.RoleID == target.RoleID {
			continue
		}

		if !member.HasRole(tier.RoleID) {
			continue
		}

		if err := a.editor.RemoveRole(ctx, member.GuildID, member.UserID, tier.RoleID); err != nil {
			logger.Warn("Failed to remove tier role",
				zap.Uint64("userID", uint64(member.UserID)),
				zap.Uint64("roleID", uint64(tier.RoleID)),
				zap.Error(err))
			errs = append(errs, fmt.Errorf("remove role %s: %w", tier.RoleID, err))

			continue
		}

		logger.Info("Removed tier role",
			zap.Uint64("userID", uint64(member.UserID)),
			zap.Uint64("roleID", uint64(tier.RoleID)))
	}

	if hasTarget && !member.HasRole(target.RoleID) {
		if err := a.editor.AddRole(ctx, member.GuildID, member.UserID, target.RoleID); err != nil {
			logger.Warn("Failed to assign tier role",
				zap.Uint64("userID", uint64(member.UserID)),
				zap.Uint64("roleID", uint64(target.RoleID)),
				zap.Error(err))
			errs = append(errs, fmt.Errorf("add role %s: %w", target.RoleID, err))
		} else {
			logger.Info("Assigned tier role",
				zap.Uint64("userID", uint64(member.UserID)),
				zap.Uint64("roleID", uint64(target.RoleID)),
				zap.Int64("total", total))
		}
	}

	nickname := Nickname(member.DisplayName, total)
	if nickname != member.DisplayName {
		if err := a.editor.SetNickname(ctx, member.GuildID, member.UserID, nickname); err != nil {
			logger.Warn("Failed to update nickname",
				zap.Uint64("userID", uint64(member.UserID)),
				zap.String("nickname", nickname),
				zap.Error(err))
			errs = append(errs, fmt.Errorf("set nickname: %w", err))
		} else {
			logger.Info("Updated nickname",
				zap.Uint64("userID", uint64(member.UserID)),
				zap.String("nickname", nickname))
		}
	}

	return errors.Join(errs...)
}

// Nickname strips any "(N rep)" suffix from displayName and appends the current total
// when it is positive. The base name is shortened so the result fits the nickname limit.
func Nickname(displayName string, total int64) string {
	base := repSuffixPattern.ReplaceAllString(displayName, "")
	if total <= 0 {
		return base
	}

	suffix := fmt.Sprintf(" (%d rep)", total)
	base = utils.TruncateRunes(base, MaxNicknameLength-utf8.RuneCountInString(suffix))

	return base + suffix
}
