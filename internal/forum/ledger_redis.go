package forum

import (
	"context"
	"fmt"
	"time"

	"github.com/disgoorg/snowflake/v2"
	"github.com/redis/rueidis"
	"go.uber.org/zap"
)

// NotificationKeyPrefix identifies ledger entries in Redis.
const NotificationKeyPrefix = "forum:notification:"

// RedisLedger stores ledger entries in Redis with a native expiry,
// so entries survive a restart of the bot.
type RedisLedger struct {
	client rueidis.Client
	ttl    time.Duration
	logger *zap.Logger
}

// NewRedisLedger creates a Redis-backed ledger. A non-positive TTL uses the default.
func NewRedisLedger(client rueidis.Client, ttl time.Duration, logger *zap.Logger) *RedisLedger {
	if ttl <= 0 {
		ttl = DefaultNotificationTTL
	}

	return &RedisLedger{
		client: client,
		ttl:    ttl,
		logger: logger.Named("notification_ledger"),
	}
}

// Set records the notification with the ledger TTL.
func (l *RedisLedger) Set(ctx context.Context, threadID, notificationID snowflake.ID) error {
	cmd := l.client.B().Set().Key(notificationKey(threadID)).Value(notificationID.String()).Ex(l.ttl).Build()
	if err := l.client.Do(ctx, cmd).Error(); err != nil {
		return fmt.Errorf("failed to set notification for thread %s: %w", threadID, err)
	}

	return nil
}

// Get returns the live notification for the thread. Redis drops expired keys itself.
func (l *RedisLedger) Get(ctx context.Context, threadID snowflake.ID) (snowflake.ID, bool, error) {
	value, err := l.client.Do(ctx, l.client.B().Get().Key(notificationKey(threadID)).Build()).ToString()
	if err != nil {
		if rueidis.IsRedisNil(err) {
			return 0, false, nil
		}

		return 0, false, fmt.Errorf("failed to get notification for thread %s: %w", threadID, err)
	}

	notificationID, err := snowflake.Parse(value)
	if err != nil {
		l.logger.Warn("Invalid notification id in Redis, dropping entry",
			zap.Uint64("threadID", uint64(threadID)),
			zap.String("value", value))

		_ = l.Pop(ctx, threadID)

		return 0, false, nil
	}

	return notificationID, true, nil
}

// Pop deletes the entry for the thread.
func (l *RedisLedger) Pop(ctx context.Context, threadID snowflake.ID) error {
	if err := l.client.Do(ctx, l.client.B().Del().Key(notificationKey(threadID)).Build()).Error(); err != nil {
		return fmt.Errorf("failed to delete notification for thread %s: %w", threadID, err)
	}

	return nil
}

// Sweep is a no-op since Redis expires keys on its own.
func (l *RedisLedger) Sweep(context.Context) {}

func notificationKey(threadID snowflake.ID) string {
	return NotificationKeyPrefix + threadID.String()
}
