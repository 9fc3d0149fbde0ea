package cache

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
)

func newTestRedisBackend(t *testing.T) (*RedisBackend, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	return NewRedisBackend(client, "edgeproxy-test"), mr
}

func TestRedisBackendPutGet(t *testing.T) {
	b, _ := newTestRedisBackend(t)
	ctx := context.Background()

	err := b.Put(ctx, "key1", &Entry{
		Status:    200,
		Body:      []byte("hello"),
		CreatedAt: time.Now(),
	})
	require.NoError(t, err)

	entry, ok, err := b.Get(ctx, "key1")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, []byte("hello"), entry.Body)
	require.Equal(t, 200, entry.Status)
}

func TestRedisBackendMiss(t *testing.T) {
	b, _ := newTestRedisBackend(t)
	_, ok, err := b.Get(context.Background(), "missing")
	require.NoError(t, err)
	require.False(t, ok)
}

func TestRedisBackendTTLExpiry(t *testing.T) {
	b, mr := newTestRedisBackend(t)
	ctx := context.Background()

	err := b.Put(ctx, "ttl-key", &Entry{
		Body:      []byte("value"),
		CreatedAt: time.Now(),
		TTL:       time.Second,
	})
	require.NoError(t, err)

	mr.FastForward(2 * time.Second)

	_, ok, err := b.Get(ctx, "ttl-key")
	require.NoError(t, err)
	require.False(t, ok)
}

func TestRedisBackendRemove(t *testing.T) {
	b, _ := newTestRedisBackend(t)
	ctx := context.Background()

	_ = b.Put(ctx, "key2", &Entry{Body: []byte("v"), CreatedAt: time.Now()})
	require.NoError(t, b.Remove(ctx, "key2"))

	_, ok, err := b.Get(ctx, "key2")
	require.NoError(t, err)
	require.False(t, ok)
}

func TestRedisBackendStats(t *testing.T) {
	b, _ := newTestRedisBackend(t)
	ctx := context.Background()

	_ = b.Put(ctx, "k", &Entry{Body: []byte("v"), CreatedAt: time.Now()})
	_, _, _ = b.Get(ctx, "k")
	_, _, _ = b.Get(ctx, "missing")

	stats := b.Stats()
	require.Equal(t, int64(1), stats.Hits)
	require.Equal(t, int64(1), stats.Misses)
	require.Equal(t, int64(1), stats.Sets)
}
