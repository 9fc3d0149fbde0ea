// Package cache provides the HTTP response cache backends, key builder,
// eviction manager, cacheability predictor, and single-flight lock
// registry used by the cache plugin.
package cache

import (
	"context"
	"time"
)

// Entry is a single cached HTTP response.
type Entry struct {
	Status    int
	Header    map[string][]string
	Body      []byte
	CreatedAt time.Time
	TTL       time.Duration
}

// Expired reports whether the entry has outlived its TTL as of now.
func (e *Entry) Expired(now time.Time) bool {
	if e.TTL <= 0 {
		return false
	}
	return now.After(e.CreatedAt.Add(e.TTL))
}

// Size estimates the entry's footprint in bytes, used by the eviction
// manager's byte-bounded accounting.
func (e *Entry) Size() int64 {
	size := int64(len(e.Body))
	for k, vs := range e.Header {
		size += int64(len(k))
		for _, v := range vs {
			size += int64(len(v))
		}
	}
	return size
}

// Stats reports backend counters. Reading/Writing mirror the in-flight
// counters a backend exposes so the cache plugin can snapshot them into
// request state; Hits/Misses/Sets/Removes support observability.
type Stats struct {
	Reading int64
	Writing int64
	Hits    int64
	Misses  int64
	Sets    int64
	Removes int64
}

// Backend is the storage interface shared by the memory, file, and Redis
// cache variants. The cache plugin is variant-agnostic.
type Backend interface {
	// Get retrieves an entry. A nil entry with ok=false means a miss.
	Get(ctx context.Context, key string) (entry *Entry, ok bool, err error)

	// Put stores an entry under key.
	Put(ctx context.Context, key string, entry *Entry) error

	// Remove deletes key, if present. Removing an absent key is not an error.
	Remove(ctx context.Context, key string) error

	// Stats returns a snapshot of backend counters.
	Stats() Stats

	// Close releases any resources held by the backend.
	Close() error
}
