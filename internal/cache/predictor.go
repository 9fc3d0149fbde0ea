package cache

import (
	"container/list"
	"sync"
)

// Predictor is the capability interface the cacheability predictor
// exposes: Cacheable answers whether a request fingerprint is likely
// worth caching based on bounded history, and Record feeds back the
// outcome so future predictions improve.
type Predictor interface {
	Cacheable(fingerprint string) bool
	Record(fingerprint string, cacheable bool)
}

// HistoryCapacity bounds the predictor's fingerprint history.
const HistoryCapacity = 128

// BoundedPredictor answers Cacheable in O(1) against a fixed-capacity
// bounded history of the most recent 128 fingerprints and their recorded
// outcome.
type BoundedPredictor struct {
	mu    sync.Mutex
	order *list.List
	index map[string]*list.Element
}

type predictorEntry struct {
	fingerprint string
	cacheable   bool
}

// NewBoundedPredictor creates a predictor with the fixed 128-entry history.
func NewBoundedPredictor() *BoundedPredictor {
	return &BoundedPredictor{
		order: list.New(),
		index: make(map[string]*list.Element),
	}
}

// Cacheable reports the recorded outcome for fingerprint, or true if it
// has never been seen (optimistic default: try caching until proven not
// worth it).
func (p *BoundedPredictor) Cacheable(fingerprint string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()

	elem, ok := p.index[fingerprint]
	if !ok {
		return true
	}
	return elem.Value.(*predictorEntry).cacheable
}

// Record stores the outcome for fingerprint, evicting the oldest entry
// once the history exceeds HistoryCapacity.
func (p *BoundedPredictor) Record(fingerprint string, cacheable bool) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if elem, ok := p.index[fingerprint]; ok {
		elem.Value.(*predictorEntry).cacheable = cacheable
		p.order.MoveToFront(elem)
		return
	}

	elem := p.order.PushFront(&predictorEntry{fingerprint: fingerprint, cacheable: cacheable})
	p.index[fingerprint] = elem

	for p.order.Len() > HistoryCapacity {
		back := p.order.Back()
		entry := back.Value.(*predictorEntry)
		p.order.Remove(back)
		delete(p.index, entry.fingerprint)
	}
}

// Len returns the number of fingerprints currently tracked.
func (p *BoundedPredictor) Len() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.order.Len()
}

var _ Predictor = (*BoundedPredictor)(nil)
