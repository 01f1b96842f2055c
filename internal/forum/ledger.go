package forum

import (
	"context"
	"sync"
	"time"

	"github.com/disgoorg/snowflake/v2"
)

// DefaultNotificationTTL is how long a notification stays answerable.
const DefaultNotificationTTL = 24 * time.Hour

// Ledger remembers the last notification sent to each thread.
// A thread has at most one live entry; entries older than the TTL are treated as absent.
type Ledger interface {
	// Set records notificationID as the live notification for the thread.
	Set(ctx context.Context, threadID, notificationID snowflake.ID) error
	// Get returns the live notification for the thread, deleting it if it has expired.
	Get(ctx context.Context, threadID snowflake.ID) (snowflake.ID, bool, error)
	// Pop removes any entry for the thread.
	Pop(ctx context.Context, threadID snowflake.ID) error
	// Sweep removes every expired entry.
	Sweep(ctx context.Context)
}

type ledgerEntry struct {
	notificationID snowflake.ID
	sentAt         time.Time
}

// MemoryLedger is an in-process Ledger.
type MemoryLedger struct {
	mu      sync.Mutex
	entries map[snowflake.ID]ledgerEntry
	ttl     time.Duration
	now     func() time.Time
}

// NewMemoryLedger creates a ledger with the given TTL. A non-positive TTL uses the default.
func NewMemoryLedger(ttl time.Duration) *MemoryLedger {
	if ttl <= 0 {
		ttl = DefaultNotificationTTL
	}

	return &MemoryLedger{
		entries: make(map[snowflake.ID]ledgerEntry),
		ttl:     ttl,
		now:     time.Now,
	}
}

// WithClock replaces the time source. Used by tests.
func (l *MemoryLedger) WithClock(now func() time.Time) *MemoryLedger {
	l.now = now
	return l
}

// Set records or overwrites the entry with the current time.
func (l *MemoryLedger) Set(_ context.Context, threadID, notificationID snowflake.ID) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.entries[threadID] = ledgerEntry{notificationID: notificationID, sentAt: l.now()}

	return nil
}

// Get returns the notification id unless the entry has expired.
func (l *MemoryLedger) Get(_ context.Context, threadID snowflake.ID) (snowflake.ID, bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	entry, ok := l.entries[threadID]
	if !ok {
		return 0, false, nil
	}

	if l.now().Sub(entry.sentAt) > l.ttl {
		delete(l.entries, threadID)
		return 0, false, nil
	}

	return entry.notificationID, true, nil
}

// Pop removes any entry for the thread.
func (l *MemoryLedger) Pop(_ context.Context, threadID snowflake.ID) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	delete(l.entries, threadID)

	return nil
}

// Sweep removes all expired entries.
func (l *MemoryLedger) Sweep(_ context.Context) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	for threadID, entry := range l.entries {
		if now.Sub(entry.sentAt) > l.ttl {
			delete(l.entries, threadID)
		}
	}
}

// Len returns the number of stored entries, expired or not.
func (l *MemoryLedger) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()

	return len(l.entries)
}
