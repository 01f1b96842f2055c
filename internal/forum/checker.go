// Package forum checks marketplace forum posts for a price and a location.
//
// Missing information is tracked with "missing" tags on the thread and a single
// notification to the thread owner. The owner answers the notification by replying
// to it directly, which triggers a recheck. Compliance state is never stored: it is
// derived from the applied tags and the notification ledger on every event.
package forum

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/disgoorg/snowflake/v2"
	"github.com/robalyx/repbot/internal/platform"
	"go.uber.org/zap"
)

const (
	// DefaultMaxThreadAge freezes compliance checks on older threads.
	DefaultMaxThreadAge = 24 * time.Hour
	// DefaultClearCommand lets admins clear a thread.
	DefaultClearCommand = "!clear"
	// DefaultHistoryScanLimit bounds how many thread messages a clear inspects.
	DefaultHistoryScanLimit = 100

	missingPriceLabel    = "a price"
	missingLocationLabel = "a location (city)"
)

// Platform is everything the checker needs from the chat platform.
type Platform interface {
	TagCatalog
	ThreadEditor
	platform.Messenger
	platform.History

	// StarterMessage returns the first message of a forum thread.
	StarterMessage(ctx context.Context, thread platform.Thread) (platform.Message, error)
	// SelfID returns the bot's own user id.
	SelfID() snowflake.ID
}

// Config holds the static settings of the checker.
type Config struct {
	ForumID            snowflake.ID
	LogChannelID       snowflake.ID
	AdminRoleID        snowflake.ID
	MissingPriceTag    string
	MissingLocationTag string
	ClearCommand       string
	MaxThreadAge       time.Duration
	HistoryScanLimit   int
}

// Checker runs the forum compliance workflow.
type Checker struct {
	platform Platform
	ledger   Ledger
	tags     *TagReconciler
	matcher  *LocationMatcher
	config   Config
	locks    *threadLocks
	applied  *appliedTags
	enabled  atomic.Bool
	ignoreMu sync.RWMutex
	ignored  map[snowflake.ID]struct{}
	now      func() time.Time
	logger   *zap.Logger
}

// NewChecker creates an enabled checker.
func NewChecker(
	p Platform, ledger Ledger, matcher *LocationMatcher, config Config, logger *zap.Logger,
) *Checker {
	if config.ClearCommand == "" {
		config.ClearCommand = DefaultClearCommand
	}

	if config.MaxThreadAge <= 0 {
		config.MaxThreadAge = DefaultMaxThreadAge
	}

	if config.HistoryScanLimit <= 0 {
		config.HistoryScanLimit = DefaultHistoryScanLimit
	}

	logger = logger.Named("forum_checker")

	c := &Checker{
		platform: p,
		ledger:   ledger,
		tags:     NewTagReconciler(p, logger),
		matcher:  matcher,
		config:   config,
		locks:    newThreadLocks(),
		applied:  newAppliedTags(config.MaxThreadAge),
		ignored:  make(map[snowflake.ID]struct{}),
		now:      time.Now,
		logger:   logger,
	}
	c.enabled.Store(true)

	return c
}

// WithClock replaces the time source used for thread age checks. Used by tests.
func (c *Checker) WithClock(now func() time.Time) *Checker {
	c.now = now
	return c
}

// SetEnabled turns thread and message checks on or off for every thread.
func (c *Checker) SetEnabled(enabled bool) {
	c.enabled.Store(enabled)
	c.logger.Info("Forum checker toggled", zap.Bool("enabled", enabled))
}

// Enabled reports whether checks run.
func (c *Checker) Enabled() bool {
	return c.enabled.Load()
}

// IsIgnored reports whether an admin cleared the thread during this session.
func (c *Checker) IsIgnored(threadID snowflake.ID) bool {
	c.ignoreMu.RLock()
	defer c.ignoreMu.RUnlock()

	_, ok := c.ignored[threadID]

	return ok
}

func (c *Checker) ignore(threadID snowflake.ID) {
	c.ignoreMu.Lock()
	defer c.ignoreMu.Unlock()

	c.ignored[threadID] = struct{}{}
}

// HandleThreadCreate tags a new forum thread based on its title alone.
func (c *Checker) HandleThreadCreate(ctx context.Context, thread platform.Thread) {
	if !c.Enabled() || thread.ParentID != c.config.ForumID {
		return
	}

	unlock := c.locks.Lock(thread.ID)
	defer unlock()

	// The owner's post was already checked with more than the title to go on
	if c.applied.seen(thread.ID) {
		c.logger.Debug("Thread already checked, skipping title check",
			zap.Uint64("threadID", uint64(thread.ID)))

		return
	}

	priceTag, locationTag := c.resolveTags(ctx)
	result := Classify(c.matcher, thread.Name)
	c.reconcile(ctx, thread, result, priceTag, locationTag)

	c.logger.Debug("Checked new thread",
		zap.Uint64("threadID", uint64(thread.ID)),
		zap.Bool("priceFound", result.PriceFound),
		zap.Bool("locationFound", result.LocationFound))
}

// HandleMessage runs the admin clear, first post and follow-up checks for a message
// posted in a thread of the monitored forum.
func (c *Checker) HandleMessage(ctx context.Context, thread platform.Thread, msg platform.Message) {
	if thread.ParentID != c.config.ForumID || c.IsIgnored(thread.ID) {
		return
	}

	unlock := c.locks.Lock(thread.ID)
	defer unlock()

	// An admin may have cleared the thread while we waited for the lock
	if c.IsIgnored(thread.ID) {
		return
	}

	if c.isClearCommand(msg) {
		c.Clear(ctx, thread, msg)
		return
	}

	if !c.Enabled() || msg.AuthorBot {
		return
	}

	defer c.ledger.Sweep(ctx)

	if age := thread.Age(c.now()); age > c.config.MaxThreadAge {
		c.logger.Debug("Thread too old, skipping checks",
			zap.Uint64("threadID", uint64(thread.ID)),
			zap.Duration("age", age))

		return
	}

	priceTag, locationTag := c.resolveTags(ctx)
	thread = c.handleFirstPost(ctx, thread, msg, priceTag, locationTag)
	c.handleFollowUp(ctx, thread, msg, priceTag, locationTag)
}

// reconcile applies the classification on top of the last tags the checker left on
// the thread and remembers the outcome.
func (c *Checker) reconcile(
	ctx context.Context, thread platform.Thread, result Classification, priceTag, locationTag *platform.Tag,
) []snowflake.ID {
	thread = c.applied.merge(thread, priceTag, locationTag)
	updated := c.tags.Reconcile(ctx, thread, result, priceTag, locationTag)

	if priceTag != nil || locationTag != nil {
		c.applied.record(thread.ID, updated, c.now())
	}

	return updated
}

// handleFirstPost checks the owner's post when the thread has not been notified yet.
// It returns the thread with the tags assumed after reconciliation.
func (c *Checker) handleFirstPost(
	ctx context.Context, thread platform.Thread, msg platform.Message, priceTag, locationTag *platform.Tag,
) platform.Thread {
	if msg.AuthorID != thread.OwnerID {
		return thread
	}

	_, notified, err := c.ledger.Get(ctx, thread.ID)
	if err != nil {
		c.logger.Error("Failed to read notification ledger",
			zap.Uint64("threadID", uint64(thread.ID)),
			zap.Error(err))

		return thread
	}

	if notified {
		return thread
	}

	result := Classify(c.matcher, thread.Name, msg.Content)
	thread.AppliedTags = c.reconcile(ctx, thread, result, priceTag, locationTag)

	missing := missingItems(thread.AppliedTags, result, priceTag, locationTag)
	if len(missing) == 0 {
		return thread
	}

	content := fmt.Sprintf(
		"%s, your post is missing %s in the title or message. "+
			"Please edit the thread title or message to include the missing info, "+
			"then reply to this message to remove the tags.",
		platform.MentionUser(msg.AuthorID), strings.Join(missing, " and "),
	)

	c.notify(ctx, thread, msg, content)

	return thread
}

// handleFollowUp rechecks the thread when someone replies to the live notification.
func (c *Checker) handleFollowUp(
	ctx context.Context, thread platform.Thread, msg platform.Message, priceTag, locationTag *platform.Tag,
) {
	notificationID, ok, err := c.ledger.Get(ctx, thread.ID)
	if err != nil {
		c.logger.Error("Failed to read notification ledger",
			zap.Uint64("threadID", uint64(thread.ID)),
			zap.Error(err))

		return
	}

	if !ok || !msg.RepliesTo(notificationID) {
		return
	}

	texts := []string{thread.Name}

	starter, err := c.platform.StarterMessage(ctx, thread)
	if err != nil {
		c.logger.Debug("Starter message unavailable",
			zap.Uint64("threadID", uint64(thread.ID)),
			zap.Error(err))
	} else {
		texts = append(texts, starter.Content)
	}

	texts = append(texts, msg.Content)

	result := Classify(c.matcher, texts...)
	updated := c.reconcile(ctx, thread, result, priceTag, locationTag)

	missing := missingItems(updated, result, priceTag, locationTag)
	if len(missing) == 0 {
		c.resolve(ctx, thread, msg)
		return
	}

	content := fmt.Sprintf(
		"%s, your post is still missing %s in the title or message. "+
			"Please edit the thread title or message and reply **directly to this message** for me to recheck.",
		platform.MentionUser(msg.AuthorID), strings.Join(missing, " and "),
	)

	c.notify(ctx, thread, msg, content)
}

// notify sends a notification and makes it the live one for the thread.
func (c *Checker) notify(ctx context.Context, thread platform.Thread, msg platform.Message, content string) {
	notificationID, err := c.platform.SendMessage(ctx, thread.ID, platform.OutgoingMessage{
		Content:           content,
		AllowUserMentions: []snowflake.ID{msg.AuthorID},
	})
	if err != nil {
		c.logger.Error("Failed to send notification",
			zap.Uint64("threadID", uint64(thread.ID)),
			zap.Error(err))

		return
	}

	if err := c.ledger.Set(ctx, thread.ID, notificationID); err != nil {
		c.logger.Error("Failed to record notification",
			zap.Uint64("threadID", uint64(thread.ID)),
			zap.Uint64("notificationID", uint64(notificationID)),
			zap.Error(err))

		return
	}

	c.logger.Info("Sent missing info notification",
		zap.Uint64("threadID", uint64(thread.ID)),
		zap.Uint64("notificationID", uint64(notificationID)))
}

// resolve confirms a compliant thread and forgets its notification.
func (c *Checker) resolve(ctx context.Context, thread platform.Thread, msg platform.Message) {
	_, err := c.platform.SendMessage(ctx, thread.ID, platform.OutgoingMessage{
		Content:           platform.MentionUser(msg.AuthorID) + ", all required info found! Tags removed. Thank you.",
		ReplyTo:           &msg.ID,
		AllowUserMentions: []snowflake.ID{msg.AuthorID},
	})
	if err != nil {
		c.logger.Error("Failed to send confirmation",
			zap.Uint64("threadID", uint64(thread.ID)),
			zap.Error(err))
	}

	if err := c.ledger.Pop(ctx, thread.ID); err != nil {
		c.logger.Error("Failed to remove notification",
			zap.Uint64("threadID", uint64(thread.ID)),
			zap.Error(err))

		return
	}

	c.logger.Info("All info found, notification removed", zap.Uint64("threadID", uint64(thread.ID)))
}

// Clear strips the missing tags, deletes the bot's messages and stops checking the thread.
func (c *Checker) Clear(ctx context.Context, thread platform.Thread, msg platform.Message) {
	priceTag, locationTag := c.resolveTags(ctx)
	c.tags.Strip(ctx, c.applied.merge(thread, priceTag, locationTag), priceTag, locationTag)
	c.applied.forget(thread.ID)

	selfID := c.platform.SelfID()
	commandDeleted := false

	history, err := c.platform.RecentMessages(ctx, thread.ID, c.config.HistoryScanLimit)
	if err != nil {
		c.logger.Error("Failed to read thread history",
			zap.Uint64("threadID", uint64(thread.ID)),
			zap.Error(err))
	}

	for _, past := range history {
		if past.AuthorID != selfID && past.ID != msg.ID {
			continue
		}

		if err := c.platform.DeleteMessage(ctx, thread.ID, past.ID); err != nil {
			c.logger.Warn("Failed to delete message",
				zap.Uint64("threadID", uint64(thread.ID)),
				zap.Uint64("messageID", uint64(past.ID)),
				zap.Error(err))

			continue
		}

		if past.ID == msg.ID {
			commandDeleted = true
		}
	}

	if !commandDeleted {
		if err := c.platform.DeleteMessage(ctx, thread.ID, msg.ID); err != nil {
			c.logger.Warn("Failed to delete clear command",
				zap.Uint64("threadID", uint64(thread.ID)),
				zap.Error(err))
		}
	}

	if err := c.ledger.Pop(ctx, thread.ID); err != nil {
		c.logger.Error("Failed to remove notification",
			zap.Uint64("threadID", uint64(thread.ID)),
			zap.Error(err))
	}

	c.ignore(thread.ID)

	c.logger.Info("Thread cleared by admin",
		zap.Uint64("threadID", uint64(thread.ID)),
		zap.Uint64("adminID", uint64(msg.AuthorID)))

	if c.config.LogChannelID == 0 {
		return
	}

	_, err = c.platform.SendMessage(ctx, c.config.LogChannelID, platform.OutgoingMessage{
		Content: fmt.Sprintf("%s cleared missing info tags on <#%s> as admin.",
			platform.MentionUser(msg.AuthorID), thread.ID),
	})
	if err != nil {
		c.logger.Warn("Failed to send log message", zap.Error(err))
	}
}

func (c *Checker) isClearCommand(msg platform.Message) bool {
	return !msg.AuthorBot &&
		strings.EqualFold(strings.TrimSpace(msg.Content), c.config.ClearCommand) &&
		msg.HasRole(c.config.AdminRoleID)
}

// resolveTags looks up the configured missing tags. Unknown names resolve to nil.
func (c *Checker) resolveTags(ctx context.Context) (priceTag, locationTag *platform.Tag) {
	catalog, err := c.platform.AvailableTags(ctx, c.config.ForumID)
	if err != nil {
		c.logger.Error("Failed to fetch forum tags",
			zap.Uint64("forumID", uint64(c.config.ForumID)),
			zap.Error(err))

		return nil, nil
	}

	return FindTag(catalog, c.config.MissingPriceTag), FindTag(catalog, c.config.MissingLocationTag)
}

// missingItems lists what is still missing, judged by the tags left applied.
func missingItems(tags []snowflake.ID, result Classification, priceTag, locationTag *platform.Tag) []string {
	var missing []string

	if !result.PriceFound && hasTag(tags, priceTag) {
		missing = append(missing, missingPriceLabel)
	}

	if !result.LocationFound && hasTag(tags, locationTag) {
		missing = append(missing, missingLocationLabel)
	}

	return missing
}
