package cache

import (
	"context"
	"testing"
	"time"
)

func TestLockRegistryAcceptedDurations(t *testing.T) {
	r := NewLockRegistry()

	for _, d := range []time.Duration{time.Second, 2 * time.Second, 3 * time.Second} {
		lock, ok := r.Get(d)
		if !ok {
			t.Fatalf("expected duration %s to be accepted", d)
		}
		if lock.Duration != d {
			t.Errorf("lock.Duration = %s, want %s", lock.Duration, d)
		}
	}
}

func TestLockRegistryRejectsOtherDurations(t *testing.T) {
	r := NewLockRegistry()
	if _, ok := r.Get(500 * time.Millisecond); ok {
		t.Error("expected non-accepted duration to disable locking")
	}
	if _, ok := r.Get(5 * time.Second); ok {
		t.Error("expected non-accepted duration to disable locking")
	}
}

func TestLockRegistryDistinctSlotsPerDuration(t *testing.T) {
	r := NewLockRegistry()

	one, _ := r.Get(time.Second)
	two, _ := r.Get(2 * time.Second)

	if one == two {
		t.Error("expected 1s and 2s to be distinct registry slots, not aliases of the same lock")
	}

	// Repeated construction at the same duration returns the same instance.
	oneAgain, _ := r.Get(time.Second)
	if one != oneAgain {
		t.Error("expected repeated construction at the same duration to return the same instance")
	}
}

func TestLockAcquireRelease(t *testing.T) {
	r := NewLockRegistry()
	lock, _ := r.Get(time.Second)

	ctx := context.Background()
	if err := lock.Acquire(ctx, "key1"); err != nil {
		t.Fatalf("Acquire: %v", err)
	}
	lock.Release("key1")

	if err := lock.Acquire(ctx, "key1"); err != nil {
		t.Fatalf("Acquire after release: %v", err)
	}
	lock.Release("key1")
}

func TestLockBlocksSiblingsSharingKey(t *testing.T) {
	r := NewLockRegistry()
	lock, _ := r.Get(time.Second)

	ctx := context.Background()
	if err := lock.Acquire(ctx, "shared"); err != nil {
		t.Fatalf("Acquire: %v", err)
	}
	defer lock.Release("shared")

	boundedCtx, cancel := context.WithTimeout(ctx, 30*time.Millisecond)
	defer cancel()

	if err := lock.Acquire(boundedCtx, "shared"); err == nil {
		t.Error("expected second Acquire on the same key to block until timeout")
	}
}

func TestLockDoesNotBlockDistinctKeys(t *testing.T) {
	r := NewLockRegistry()
	lock, _ := r.Get(time.Second)

	ctx := context.Background()
	if err := lock.Acquire(ctx, "key-a"); err != nil {
		t.Fatalf("Acquire key-a: %v", err)
	}
	defer lock.Release("key-a")

	if err := lock.Acquire(ctx, "key-b"); err != nil {
		t.Fatalf("Acquire key-b should not block on key-a: %v", err)
	}
	lock.Release("key-b")
}
