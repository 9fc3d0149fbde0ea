package cache

import (
	"fmt"
	"testing"
)

func TestBoundedPredictorDefaultOptimistic(t *testing.T) {
	p := NewBoundedPredictor()
	if !p.Cacheable("never-seen") {
		t.Error("unseen fingerprint should default to cacheable")
	}
}

func TestBoundedPredictorRecordAndRecall(t *testing.T) {
	p := NewBoundedPredictor()
	p.Record("fp1", false)
	if p.Cacheable("fp1") {
		t.Error("expected recorded non-cacheable outcome to be recalled")
	}

	p.Record("fp2", true)
	if !p.Cacheable("fp2") {
		t.Error("expected recorded cacheable outcome to be recalled")
	}
}

func TestBoundedPredictorHistoryBound(t *testing.T) {
	p := NewBoundedPredictor()
	for i := 0; i < HistoryCapacity+10; i++ {
		p.Record(fmt.Sprintf("fp-%d", i), false)
	}
	if p.Len() != HistoryCapacity {
		t.Errorf("Len() = %d, want %d", p.Len(), HistoryCapacity)
	}

	// The oldest entries should have been evicted, reverting to the
	// optimistic default.
	if !p.Cacheable("fp-0") {
		return
	}
	t.Error("expected oldest fingerprint to be evicted from history")
}

func TestBoundedPredictorUpdateRefreshesRecency(t *testing.T) {
	p := NewBoundedPredictor()
	p.Record("fp1", false)
	for i := 0; i < HistoryCapacity-1; i++ {
		p.Record(fmt.Sprintf("fp-%d", i), false)
	}
	// fp1 is still within capacity; re-recording should keep it fresh.
	p.Record("fp1", true)
	if !p.Cacheable("fp1") {
		t.Error("expected updated outcome for fp1")
	}

	// One more new fingerprint evicts the oldest entry: fp-0, not the
	// refreshed fp1. An evicted fp-0 reverts to the optimistic default.
	p.Record("fp-extra", false)
	if !p.Cacheable("fp-0") {
		t.Error("expected fp-0, not the refreshed fp1, to be evicted as oldest")
	}
}
