package rep

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/disgoorg/snowflake/v2"
	"github.com/robalyx/repbot/internal/discord/rate"
	"github.com/robalyx/repbot/internal/platform"
	"github.com/robalyx/repbot/pkg/utils"
	"github.com/sourcegraph/conc/pool"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"golang.org/x/sync/semaphore"
)

const (
	// DefaultRefreshInterval is the time between two refresh passes.
	DefaultRefreshInterval = time.Hour
	// DefaultRefreshConcurrency bounds concurrent member updates.
	DefaultRefreshConcurrency = 4
)

// MemberLister pages through every member of a guild.
type MemberLister interface {
	ListMembers(ctx context.Context, guildID snowflake.ID) ([]platform.Member, error)
}

// GuildSource returns the guilds the bot currently serves.
type GuildSource interface {
	Guilds() []snowflake.ID
}

// RefreshConfig controls the refresh schedule.
type RefreshConfig struct {
	Interval     time.Duration
	InitialDelay time.Duration
	Concurrency  int
}

// RefreshStats summarizes one refresh pass.
type RefreshStats struct {
	Guilds  int
	Members int
	Skipped int
	Failed  int
}

// Refresher periodically reapplies tier roles and nickname suffixes to every member.
type Refresher struct {
	lister  MemberLister
	guilds  GuildSource
	store   TotalReader
	roles   *RoleAssigner
	config  RefreshConfig
	logger  *zap.Logger
	quiet   *zap.Logger
	limiter *rate.Limiter
}

// NewRefresher creates a refresher. Every role or nickname edit waits for a limiter
// slot; per-member logging is raised to error level so a pass stays quiet.
func NewRefresher(
	lister MemberLister, guilds GuildSource, store TotalReader, roles *RoleAssigner,
	limiter *rate.Limiter, config RefreshConfig, logger *zap.Logger,
) *Refresher {
	if config.Interval <= 0 {
		config.Interval = DefaultRefreshInterval
	}

	if config.Concurrency <= 0 {
		config.Concurrency = DefaultRefreshConcurrency
	}

	logger = logger.Named("rep_refresher")

	return &Refresher{
		lister:  lister,
		guilds:  guilds,
		store:   store,
		roles:   roles.WithEditor(&pacedEditor{editor: roles.editor, limiter: limiter}),
		config:  config,
		logger:  logger,
		quiet:   logger.WithOptions(zap.IncreaseLevel(zapcore.ErrorLevel)),
		limiter: limiter,
	}
}

// Run refreshes after the initial delay and then on every interval until ctx ends.
func (r *Refresher) Run(ctx context.Context) {
	r.logger.Info("Rep refresher started",
		zap.Duration("initialDelay", r.config.InitialDelay),
		zap.Duration("interval", r.config.Interval))

	if utils.ContextSleepWithLog(ctx, r.config.InitialDelay, r.logger,
		"Context cancelled during initial delay, stopping rep refresher") == utils.SleepCancelled {
		return
	}

	for {
		start := time.Now()
		stats := r.RefreshOnce(ctx)

		r.logger.Info("Rep nickname refresh completed",
			zap.Int("guilds", stats.Guilds),
			zap.Int("members", stats.Members),
			zap.Int("skipped", stats.Skipped),
			zap.Int("failed", stats.Failed),
			zap.Duration("duration", time.Since(start)))

		if utils.ContextSleepWithLog(ctx, r.config.Interval, r.logger,
			"Context cancelled, stopping rep refresher") == utils.SleepCancelled {
			return
		}
	}
}

// RefreshOnce runs a single pass over every known guild.
func (r *Refresher) RefreshOnce(ctx context.Context) RefreshStats {
	var (
		stats   RefreshStats
		members atomic.Int64
		skipped atomic.Int64
		failed  atomic.Int64
	)

	for _, guildID := range r.guilds.Guilds() {
		if utils.ContextGuard(ctx) {
			break
		}

		list, err := r.lister.ListMembers(ctx, guildID)
		if err != nil {
			r.logger.Error("Failed to list guild members",
				zap.Uint64("guildID", uint64(guildID)),
				zap.Error(err))

			continue
		}

		stats.Guilds++

		var (
			p   = pool.New().WithContext(ctx)
			sem = semaphore.NewWeighted(int64(r.config.Concurrency))
		)

		for _, member := range list {
			if member.Bot {
				skipped.Add(1)
				continue
			}

			p.Go(func(ctx context.Context) error {
				if err := sem.Acquire(ctx, 1); err != nil {
					return fmt.Errorf("failed to acquire semaphore: %w", err)
				}
				defer sem.Release(1)

				members.Add(1)

				total, err := r.store.GetTotal(ctx, member.UserID)
				if err != nil {
					r.quiet.Error("Failed to read total, skipping member",
						zap.Uint64("userID", uint64(member.UserID)),
						zap.Error(err))
					failed.Add(1)

					return nil
				}

				if err := r.roles.Apply(ctx, r.quiet, member, total); err != nil {
					failed.Add(1)
				}

				return nil
			})
		}

		if err := p.Wait(); err != nil {
			r.logger.Warn("Refresh interrupted",
				zap.Uint64("guildID", uint64(guildID)),
				zap.Error(err))
		}
	}

	stats.Members = int(members.Load())
	stats.Skipped = int(skipped.Load())
	stats.Failed = int(failed.Load())

	return stats
}

// pacedEditor waits for a limiter slot before each platform edit.
type pacedEditor struct {
	editor  RoleEditor
	limiter *rate.Limiter
}

func (e *pacedEditor) AddRole(ctx context.Context, guildID, userID, roleID snowflake.ID) error {
	if err := e.wait(ctx); err != nil {
		return err
	}

	return e.editor.AddRole(ctx, guildID, userID, roleID)
}

func (e *pacedEditor) RemoveRole(ctx context.Context, guildID, userID, roleID snowflake.ID) error {
	if err := e.wait(ctx); err != nil {
		return err
	}

	return e.editor.RemoveRole(ctx, guildID, userID, roleID)
}

func (e *pacedEditor) SetNickname(ctx context.Context, guildID, userID snowflake.ID, nickname string) error {
	if err := e.wait(ctx); err != nil {
		return err
	}

	return e.editor.SetNickname(ctx, guildID, userID, nickname)
}

func (e *pacedEditor) wait(ctx context.Context) error {
	if e.limiter == nil {
		return nil
	}

	return e.limiter.WaitForNextSlot(ctx)
}
