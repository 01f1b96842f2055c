package forum

import (
	"sync"

	"github.com/disgoorg/snowflake/v2"
)

// threadLocks serializes work per thread while letting different threads proceed in parallel.
// Entries are dropped once no goroutine holds or waits on them.
type threadLocks struct {
	mu    sync.Mutex
	locks map[snowflake.ID]*threadLock
}

type threadLock struct {
	mu   sync.Mutex
	refs int
}

func newThreadLocks() *threadLocks {
	return &threadLocks{locks: make(map[snowflake.ID]*threadLock)}
}

// Lock blocks until the caller owns the thread and returns the matching unlock func.
func (t *threadLocks) Lock(threadID snowflake.ID) func() {
	t.mu.Lock()

	lock, ok := t.locks[threadID]
	if !ok {
		lock = &threadLock{}
		t.locks[threadID] = lock
	}

	lock.refs++
	t.mu.Unlock()

	lock.mu.Lock()

	return func() {
		lock.mu.Unlock()

		t.mu.Lock()
		lock.refs--

		if lock.refs == 0 {
			delete(t.locks, threadID)
		}
		t.mu.Unlock()
	}
}
