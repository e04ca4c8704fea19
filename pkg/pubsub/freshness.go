// Per-(publisher, writer) DataSetMessage sequence-number freshness
// tracking (spec §4.5 / §8). Shaped after a GroupPeerTable pattern: a
// lock-guarded map keyed by a composite peer identity, holding one
// replay-detection state per peer, with a trust-first policy for a
// never-before-seen peer. A 32-bit rollover-aware counter behind a
// sliding-window bitmap is the classic way to do this, but OPC UA's
// DataSetMessage sequence number is only 16 bits wide and spec.md defines
// its own, simpler freshness law directly rather than a sliding window, so
// FreshnessTracker re-derives that law from the same modular-arithmetic
// idiom instead of reusing a bitmap.
package pubsub

import "sync"

// freshnessWindow is the acceptance threshold (spec §4.5): a diff below this
// (out of the 16-bit modulus) means the received sequence number is newer
// than the last one accepted.
const freshnessWindow = 1 << 14

// peerKey identifies one (publisher, writer) pair being tracked.
type peerKey struct {
	publisherID string // PublisherId's wire value, formatted so any of the four id types compare equal
	writerID    uint16
}

// GapEvent describes a dropped message reported to a configured gap
// callback.
type GapEvent struct {
	PublisherID string
	WriterID    uint16
	PreviousSN  uint16
	ReceivedSN  uint16
}

// GapCallback is invoked when a message is dropped for failing the
// freshness check.
type GapCallback func(GapEvent)

// FreshnessTracker maintains the last-accepted sequence number per
// (publisher-id, writer-id) pair.
type FreshnessTracker struct {
	mu    sync.Mutex
	last  map[peerKey]uint16
	onGap GapCallback
}

// NewFreshnessTracker creates an empty tracker. onGap may be nil.
func NewFreshnessTracker(onGap GapCallback) *FreshnessTracker {
	return &FreshnessTracker{
		last:  make(map[peerKey]uint16),
		onGap: onGap,
	}
}

// Check applies spec.md §4.5's freshness law: diff = (received - 1 - last)
// mod 2^16; diff < 2^14 means received is newer and is accepted. The very
// first message seen for a (publisher, writer) pair is always accepted,
// establishing the baseline (the same trust-first policy as
// GroupPeerTable.CheckCounter).
func (t *FreshnessTracker) Check(publisherID string, writerID uint16, receivedSN uint16) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	key := peerKey{publisherID: publisherID, writerID: writerID}
	last, known := t.last[key]
	if !known {
		t.last[key] = receivedSN
		return true
	}

	diff := uint16(receivedSN - 1 - last)
	if diff < freshnessWindow {
		t.last[key] = receivedSN
		return true
	}

	if t.onGap != nil {
		t.onGap(GapEvent{
			PublisherID: publisherID,
			WriterID:    writerID,
			PreviousSN:  last,
			ReceivedSN:  receivedSN,
		})
	}
	return false
}

// Forget drops tracking state for a (publisher, writer) pair, e.g. when a
// reader group is reconfigured.
func (t *FreshnessTracker) Forget(publisherID string, writerID uint16) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.last, peerKey{publisherID: publisherID, writerID: writerID})
}

// Count returns the number of (publisher, writer) pairs currently tracked.
func (t *FreshnessTracker) Count() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.last)
}
