package cache

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryBackend_BasicOperations(t *testing.T) {
	b := NewMemoryBackend(DefaultMemoryCapacityBytes)
	defer b.Close()

	ctx := context.Background()

	t.Run("put and get", func(t *testing.T) {
		err := b.Put(ctx, "key1", &Entry{Body: []byte("value1"), CreatedAt: time.Now()})
		require.NoError(t, err)

		entry, ok, err := b.Get(ctx, "key1")
		require.NoError(t, err)
		require.True(t, ok)
		assert.Equal(t, []byte("value1"), entry.Body)
	})

	t.Run("get non-existent key", func(t *testing.T) {
		entry, ok, err := b.Get(ctx, "non-existent")
		require.NoError(t, err)
		assert.False(t, ok)
		assert.Nil(t, entry)
	})

	t.Run("remove", func(t *testing.T) {
		err := b.Put(ctx, "key2", &Entry{Body: []byte("value2"), CreatedAt: time.Now()})
		require.NoError(t, err)

		err = b.Remove(ctx, "key2")
		require.NoError(t, err)

		_, ok, err := b.Get(ctx, "key2")
		require.NoError(t, err)
		assert.False(t, ok)
	})

	t.Run("overwrite", func(t *testing.T) {
		err := b.Put(ctx, "key3", &Entry{Body: []byte("value3"), CreatedAt: time.Now()})
		require.NoError(t, err)

		err = b.Put(ctx, "key3", &Entry{Body: []byte("value3-updated"), CreatedAt: time.Now()})
		require.NoError(t, err)

		entry, ok, err := b.Get(ctx, "key3")
		require.NoError(t, err)
		require.True(t, ok)
		assert.Equal(t, []byte("value3-updated"), entry.Body)
	})
}

func TestMemoryBackend_TTL(t *testing.T) {
	b := NewMemoryBackend(DefaultMemoryCapacityBytes)
	defer b.Close()

	ctx := context.Background()

	t.Run("expiration", func(t *testing.T) {
		err := b.Put(ctx, "ttl-key", &Entry{
			Body:      []byte("value"),
			CreatedAt: time.Now(),
			TTL:       50 * time.Millisecond,
		})
		require.NoError(t, err)

		_, ok, err := b.Get(ctx, "ttl-key")
		require.NoError(t, err)
		assert.True(t, ok)

		time.Sleep(70 * time.Millisecond)

		_, ok, err = b.Get(ctx, "ttl-key")
		require.NoError(t, err)
		assert.False(t, ok)
	})

	t.Run("zero TTL never expires", func(t *testing.T) {
		err := b.Put(ctx, "no-ttl", &Entry{Body: []byte("value"), CreatedAt: time.Now()})
		require.NoError(t, err)

		time.Sleep(10 * time.Millisecond)

		_, ok, err := b.Get(ctx, "no-ttl")
		require.NoError(t, err)
		assert.True(t, ok)
	})
}

func TestMemoryBackend_ByteSizeEviction(t *testing.T) {
	// Capacity for only roughly 3 entries of 100 bytes each.
	b := NewMemoryBackend(320)
	defer b.Close()

	ctx := context.Background()

	for i := 0; i < 10; i++ {
		key := string(rune('a' + i))
		err := b.Put(ctx, key, &Entry{Body: make([]byte, 100), CreatedAt: time.Now()})
		require.NoError(t, err)
	}

	assert.LessOrEqual(t, b.Len(), 4)

	// Most recently inserted key must still be present (LRU keeps the hot end).
	_, ok, err := b.Get(ctx, "j")
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestMemoryBackend_CapacityCeiling(t *testing.T) {
	b := NewMemoryBackend(MaxMemoryCapacityBytes * 4)
	defer b.Close()

	assert.Equal(t, int64(MaxMemoryCapacityBytes), b.capacityBytes)
}

func TestMemoryBackend_Stats(t *testing.T) {
	b := NewMemoryBackend(DefaultMemoryCapacityBytes)
	defer b.Close()

	ctx := context.Background()

	_ = b.Put(ctx, "stats-key", &Entry{Body: []byte("value"), CreatedAt: time.Now()})
	_, _, _ = b.Get(ctx, "stats-key") // hit
	_, _, _ = b.Get(ctx, "stats-key") // hit
	_, _, _ = b.Get(ctx, "missing")   // miss

	stats := b.Stats()
	assert.Equal(t, int64(2), stats.Hits)
	assert.Equal(t, int64(1), stats.Misses)
	assert.Equal(t, int64(1), stats.Sets)
}

func TestMemoryBackend_Concurrent(t *testing.T) {
	b := NewMemoryBackend(DefaultMemoryCapacityBytes)
	defer b.Close()

	ctx := context.Background()
	var wg sync.WaitGroup

	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			key := string(rune('a' + (i % 26)))
			_ = b.Put(ctx, key, &Entry{Body: []byte("value"), CreatedAt: time.Now()})
		}(i)
	}

	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			key := string(rune('a' + (i % 26)))
			_, _, _ = b.Get(ctx, key)
		}(i)
	}

	wg.Wait()
}
