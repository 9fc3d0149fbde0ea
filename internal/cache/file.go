package cache

import (
	"context"
	"crypto/sha256"
	"encoding/gob"
	"encoding/hex"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/fsnotify/fsnotify"
)

// FileBackend persists entries under a root directory, one file per key.
// Disk is the only capacity bound; a fsnotify watcher on the root
// directory reconciles in-memory size accounting when entries are
// removed out-of-band (an operator clearing disk space directly).
type FileBackend struct {
	root   string
	logger *slog.Logger

	mu    sync.RWMutex
	sizes map[string]int64

	watcher *fsnotify.Watcher
	done    chan struct{}

	reading atomic.Int64
	writing atomic.Int64
	hits    atomic.Int64
	misses  atomic.Int64
	sets    atomic.Int64
	removes atomic.Int64
}

// NewFileBackend creates a backend rooted at root, creating the directory
// if necessary and starting a watcher goroutine to reconcile external
// deletions.
func NewFileBackend(root string, logger *slog.Logger) (*FileBackend, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("create cache root: %w", err)
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("create fs watcher: %w", err)
	}
	if err := watcher.Add(root); err != nil {
		watcher.Close()
		return nil, fmt.Errorf("watch cache root: %w", err)
	}

	b := &FileBackend{
		root:    root,
		logger:  logger,
		sizes:   make(map[string]int64),
		watcher: watcher,
		done:    make(chan struct{}),
	}

	go b.watchLoop()

	return b, nil
}

func (b *FileBackend) watchLoop() {
	for {
		select {
		case event, ok := <-b.watcher.Events:
			if !ok {
				return
			}
			if event.Op&(fsnotify.Remove|fsnotify.Rename) != 0 {
				key := filepath.Base(event.Name)
				b.mu.Lock()
				delete(b.sizes, key)
				b.mu.Unlock()
				b.logger.Debug("cache file removed externally", "key", key)
			}
		case werr, ok := <-b.watcher.Errors:
			if !ok {
				return
			}
			b.logger.Warn("cache directory watch error", "error", werr)
		case <-b.done:
			return
		}
	}
}

// pathFor maps a cache key to a filesystem path, hashing the key so
// arbitrary characters (and any path traversal attempt embedded in a
// request URI) never reach the filesystem layer directly.
func (b *FileBackend) pathFor(key string) (filename, full string) {
	sum := sha256.Sum256([]byte(key))
	filename = hex.EncodeToString(sum[:])
	return filename, filepath.Join(b.root, filename)
}

type fileRecord struct {
	Status    int
	Header    map[string][]string
	Body      []byte
	CreatedAt time.Time
	TTL       time.Duration
}

// Get reads and decodes the entry for key, treating an expired entry or a
// missing file as a miss.
func (b *FileBackend) Get(ctx context.Context, key string) (*Entry, bool, error) {
	b.reading.Add(1)
	defer b.reading.Add(-1)

	_, full := b.pathFor(key)
	f, err := os.Open(full)
	if err != nil {
		if os.IsNotExist(err) {
			b.misses.Add(1)
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("open cache file: %w", err)
	}
	defer f.Close()

	var rec fileRecord
	if err := gob.NewDecoder(f).Decode(&rec); err != nil {
		b.misses.Add(1)
		return nil, false, fmt.Errorf("decode cache file: %w", err)
	}

	entry := &Entry{Status: rec.Status, Header: rec.Header, Body: rec.Body, CreatedAt: rec.CreatedAt, TTL: rec.TTL}
	if entry.Expired(time.Now()) {
		b.misses.Add(1)
		_ = b.Remove(ctx, key)
		return nil, false, nil
	}

	b.hits.Add(1)
	return entry, true, nil
}

// Put writes entry to disk, overwriting any existing file for key.
func (b *FileBackend) Put(ctx context.Context, key string, entry *Entry) error {
	b.writing.Add(1)
	defer b.writing.Add(-1)

	filename, full := b.pathFor(key)

	tmp := full + ".tmp"
	f, err := os.Create(tmp)
	if err != nil {
		return fmt.Errorf("create cache file: %w", err)
	}

	rec := fileRecord{Status: entry.Status, Header: entry.Header, Body: entry.Body, CreatedAt: entry.CreatedAt, TTL: entry.TTL}
	if err := gob.NewEncoder(f).Encode(rec); err != nil {
		f.Close()
		os.Remove(tmp)
		return fmt.Errorf("encode cache file: %w", err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("close cache file: %w", err)
	}
	if err := os.Rename(tmp, full); err != nil {
		return fmt.Errorf("rename cache file: %w", err)
	}

	b.mu.Lock()
	b.sizes[filename] = entry.Size()
	b.mu.Unlock()

	b.sets.Add(1)
	return nil
}

// Remove deletes the file for key, if present.
func (b *FileBackend) Remove(ctx context.Context, key string) error {
	filename, full := b.pathFor(key)
	err := os.Remove(full)
	if err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("remove cache file: %w", err)
	}

	b.mu.Lock()
	delete(b.sizes, filename)
	b.mu.Unlock()

	b.removes.Add(1)
	return nil
}

// Stats returns a snapshot of backend counters.
func (b *FileBackend) Stats() Stats {
	return Stats{
		Reading: b.reading.Load(),
		Writing: b.writing.Load(),
		Hits:    b.hits.Load(),
		Misses:  b.misses.Load(),
		Sets:    b.sets.Load(),
		Removes: b.removes.Load(),
	}
}

// Close stops the directory watcher.
func (b *FileBackend) Close() error {
	close(b.done)
	return b.watcher.Close()
}

var _ Backend = (*FileBackend)(nil)
