package forum

import (
	"slices"
	"sync"
	"time"

	"github.com/disgoorg/snowflake/v2"
	"github.com/robalyx/repbot/internal/platform"
)

// appliedTags remembers which missing tags the checker last left on each thread.
// A thread snapshot can predate an edit made by another event for the same thread,
// so the remembered state wins for the tags the checker owns. Other tags always
// come from the snapshot.
type appliedTags struct {
	mu      sync.Mutex
	entries map[snowflake.ID]appliedEntry
	ttl     time.Duration
}

type appliedEntry struct {
	tags []snowflake.ID
	at   time.Time
}

func newAppliedTags(ttl time.Duration) *appliedTags {
	return &appliedTags{
		entries: make(map[snowflake.ID]appliedEntry),
		ttl:     ttl,
	}
}

// seen reports whether the checker has reconciled the thread before.
func (a *appliedTags) seen(threadID snowflake.ID) bool {
	a.mu.Lock()
	defer a.mu.Unlock()

	_, ok := a.entries[threadID]

	return ok
}

// merge returns the thread with its managed tags replaced by the remembered ones.
func (a *appliedTags) merge(thread platform.Thread, managed ...*platform.Tag) platform.Thread {
	a.mu.Lock()
	entry, ok := a.entries[thread.ID]
	a.mu.Unlock()

	if !ok {
		return thread
	}

	isManaged := func(id snowflake.ID) bool {
		return slices.ContainsFunc(managed, func(tag *platform.Tag) bool {
			return tag != nil && tag.ID == id
		})
	}

	merged := slices.DeleteFunc(slices.Clone(thread.AppliedTags), isManaged)
	for _, id := range entry.tags {
		if isManaged(id) && !slices.Contains(merged, id) {
			merged = append(merged, id)
		}
	}

	thread.AppliedTags = merged

	return thread
}

// record stores the tags left on a thread and drops entries for threads past checking age.
func (a *appliedTags) record(threadID snowflake.ID, tags []snowflake.ID, now time.Time) {
	a.mu.Lock()
	defer a.mu.Unlock()

	for id, entry := range a.entries {
		if now.Sub(entry.at) > a.ttl {
			delete(a.entries, id)
		}
	}

	a.entries[threadID] = appliedEntry{tags: slices.Clone(tags), at: now}
}

func (a *appliedTags) forget(threadID snowflake.ID) {
	a.mu.Lock()
	defer a.mu.Unlock()

	delete(a.entries, threadID)
}
