// Package cache re-exports the proxy's internal caching types for external
// callers that want to construct or inspect a cache backend directly
// (for example, a host embedding this module as a library) without
// reaching into internal packages.
package cache

import (
	"github.com/riverstone/edgeproxy/internal/cache"
)

type (
	// Entry is a single cached response.
	Entry = cache.Entry
	// Stats is a snapshot of backend counters.
	Stats = cache.Stats
	// Backend is the storage interface every cache tier implements.
	Backend = cache.Backend
	// Key is a computed cache key pair (textual primary form + combined digest).
	Key = cache.Key
	// EvictionManager is the LRU-by-bytes accounting capability.
	EvictionManager = cache.EvictionManager
	// Predictor is the cacheability-history capability.
	Predictor = cache.Predictor
	// Lock is a single-flight lock bounded by a fixed duration.
	Lock = cache.Lock
	// LockRegistry hands out Locks keyed by accepted durations.
	LockRegistry = cache.LockRegistry
	// BackendConfig describes backend-selection inputs.
	BackendConfig = cache.BackendConfig
	// MemoryBackend is the in-process, byte-size-bounded backend.
	MemoryBackend = cache.MemoryBackend
	// FileBackend is the disk-backed backend.
	FileBackend = cache.FileBackend
	// RedisBackend is the remote, shared backend.
	RedisBackend = cache.RedisBackend
	// LRUEviction is the default EvictionManager implementation.
	LRUEviction = cache.LRUEviction
	// BoundedPredictor is the default Predictor implementation.
	BoundedPredictor = cache.BoundedPredictor
	// Singletons bundles the process-wide cache services a host constructs
	// once at startup and shares across every cache plugin instance.
	Singletons = cache.Singletons
)

const (
	// DefaultMemoryCapacityBytes is the in-memory backend's default size.
	DefaultMemoryCapacityBytes = cache.DefaultMemoryCapacityBytes
	// MaxMemoryCapacityBytes is the in-memory backend's hard ceiling.
	MaxMemoryCapacityBytes = cache.MaxMemoryCapacityBytes
	// HistoryCapacity bounds the predictor's cacheability history.
	HistoryCapacity = cache.HistoryCapacity
)

var (
	// BuildKey computes a deterministic cache key from prefix/method/uri.
	BuildKey = cache.BuildKey
	// BuildPrefix constructs a namespace-aware cache key prefix.
	BuildPrefix = cache.BuildPrefix
	// SelectBackend chooses a storage tier per BackendConfig's precedence.
	SelectBackend = cache.SelectBackend
	// NewMemoryBackend constructs a capacity-bounded in-memory backend.
	NewMemoryBackend = cache.NewMemoryBackend
	// NewFileBackend constructs a disk-backed backend rooted at a directory.
	NewFileBackend = cache.NewFileBackend
	// NewRedisBackend constructs a backend against a live Redis client.
	NewRedisBackend = cache.NewRedisBackend
	// NewLRUEviction constructs the default EvictionManager.
	NewLRUEviction = cache.NewLRUEviction
	// NewBoundedPredictor constructs the default Predictor.
	NewBoundedPredictor = cache.NewBoundedPredictor
	// NewLockRegistry constructs an empty lock registry.
	NewLockRegistry = cache.NewLockRegistry
	// NewSingletons constructs the process-wide cache services once.
	NewSingletons = cache.NewSingletons
)
