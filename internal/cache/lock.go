package cache

import (
	"context"
	"sync"
	"time"

	"github.com/riverstone/edgeproxy/internal/resilience"
)

// Lock is a single-flight coordinator bound to one duration: among
// concurrent fills of the same cache key, only one proceeds and the rest
// wait, for at most Duration, before giving up.
type Lock struct {
	Duration time.Duration

	mu   sync.Mutex
	keys map[string]*resilience.Semaphore
}

func newLock(duration time.Duration) *Lock {
	return &Lock{
		Duration: duration,
		keys:     make(map[string]*resilience.Semaphore),
	}
}

func (l *Lock) semaphoreFor(key string) *resilience.Semaphore {
	l.mu.Lock()
	defer l.mu.Unlock()

	sem, ok := l.keys[key]
	if !ok {
		sem = resilience.NewSemaphore(1)
		l.keys[key] = sem
	}
	return sem
}

// Acquire blocks until the single-flight slot for key is free or Duration
// elapses, whichever comes first.
func (l *Lock) Acquire(ctx context.Context, key string) error {
	sem := l.semaphoreFor(key)
	boundedCtx, cancel := context.WithTimeout(ctx, l.Duration)
	defer cancel()
	return sem.Acquire(boundedCtx)
}

// Release frees the single-flight slot for key.
func (l *Lock) Release(key string) {
	l.mu.Lock()
	sem, ok := l.keys[key]
	l.mu.Unlock()
	if ok {
		sem.Release()
	}
}

// acceptedLockDurations are the only values that register a distinct
// lock slot; any other configured duration disables locking rather than
// erroring.
var acceptedLockDurations = []time.Duration{
	1 * time.Second,
	2 * time.Second,
	3 * time.Second,
}

// LockRegistry holds the process-wide lock singletons, one per accepted
// duration. Each slot is independently lazily initialized: two cache
// plugins configured at 1s and 2s get distinct coordinators, unlike the
// bug this replaces where every duration aliased one shared cell.
type LockRegistry struct {
	mu    sync.Mutex
	locks map[time.Duration]*Lock
}

// NewLockRegistry creates an empty registry.
func NewLockRegistry() *LockRegistry {
	return &LockRegistry{locks: make(map[time.Duration]*Lock)}
}

// Get returns the lock slot for duration, creating it on first use. ok is
// false if duration is not one of the three accepted values, in which
// case locking is disabled for that configuration rather than erroring.
func (r *LockRegistry) Get(duration time.Duration) (lock *Lock, ok bool) {
	accepted := false
	for _, d := range acceptedLockDurations {
		if d == duration {
			accepted = true
			break
		}
	}
	if !accepted {
		return nil, false
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	l, exists := r.locks[duration]
	if !exists {
		l = newLock(duration)
		r.locks[duration] = l
	}
	return l, true
}
