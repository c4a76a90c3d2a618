// Package progression orchestrates the solve pipeline: puzzle attempt,
// alarm escalation on exhausted budgets, and atomic reward application,
// serialized per player.
package progression

import (
	"context"
	"errors"
	"sync"
	"time"
)

// ErrLockTimeout is returned when the per-player lock could not be acquired
// within the configured bound. It is retryable: the caller may resubmit.
var ErrLockTimeout = errors.New("player lock acquisition timed out")

// LockArena provides per-key mutual exclusion. Locks for different keys are
// fully independent; there is no global lock. Acquisition is bounded so a
// stuck holder cannot wedge followers forever.
type LockArena struct {
	mu      sync.Mutex
	locks   map[int64]chan struct{}
	timeout time.Duration
}

// NewLockArena creates a LockArena with the given acquisition timeout.
//
// Precondition: timeout > 0.
func NewLockArena(timeout time.Duration) *LockArena {
	return &LockArena{
		locks:   make(map[int64]chan struct{}),
		timeout: timeout,
	}
}

// sem returns the semaphore channel for key, creating it on first use.
// Entries are retained for the process lifetime; the arena is bounded by
// the active player population.
func (a *LockArena) sem(key int64) chan struct{} {
	a.mu.Lock()
	defer a.mu.Unlock()
	ch, ok := a.locks[key]
	if !ok {
		ch = make(chan struct{}, 1)
		a.locks[key] = ch
	}
	return ch
}

// Acquire takes the lock for key, waiting up to the arena timeout or until
// ctx is cancelled. The returned release function must be called exactly
// once on every exit path.
//
// Postcondition: on nil error the caller holds the key's lock.
func (a *LockArena) Acquire(ctx context.Context, key int64) (func(), error) {
	ch := a.sem(key)

	timer := time.NewTimer(a.timeout)
	defer timer.Stop()

	select {
	case ch <- struct{}{}:
		var once sync.Once
		return func() {
			once.Do(func() { <-ch })
		}, nil
	case <-timer.C:
		return nil, ErrLockTimeout
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}
