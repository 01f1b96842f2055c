// Package rate paces bulk Discord REST calls such as the hourly member refresh.
package rate

import (
	"context"
	"math/rand"
	"sync"
	"time"
)

// Limiter spaces out Discord API requests with random jitter.
type Limiter struct {
	mu          sync.Mutex
	lastRequest time.Time
	minInterval time.Duration
	maxJitter   time.Duration
	rng         *rand.Rand
}

// New creates a limiter with a base interval and jitter.
// baseInterval=1s and jitter=200ms results in delays between 800ms and 1200ms.
// A zero jitter gives a fixed spacing.
func New(baseInterval, jitter time.Duration) *Limiter {
	if jitter > baseInterval {
		jitter = baseInterval
	}

	return &Limiter{
		lastRequest: time.Now().Add(-baseInterval),
		minInterval: baseInterval,
		maxJitter:   jitter,
		rng:         rand.New(rand.NewSource(time.Now().UnixNano())), //nolint:gosec // pacing only
	}
}

// WaitForNextSlot blocks until enough time has passed since the last request.
// Concurrent callers are handed consecutive slots.
func (r *Limiter) WaitForNextSlot(ctx context.Context) error {
	r.mu.Lock()

	targetDelay := r.minInterval
	if r.maxJitter > 0 {
		targetDelay += time.Duration(r.rng.Int63n(int64(r.maxJitter*2))) - r.maxJitter
	}

	slot := r.lastRequest.Add(targetDelay)
	if now := time.Now(); slot.Before(now) {
		slot = now
	}

	r.lastRequest = slot
	r.mu.Unlock()

	waitDuration := time.Until(slot)
	if waitDuration <= 0 {
		return ctx.Err()
	}

	timer := time.NewTimer(waitDuration)
	defer timer.Stop()

	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
