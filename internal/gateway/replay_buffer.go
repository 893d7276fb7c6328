package gateway

import "sync"

type replayEntry struct {
	seq  int64
	data []byte
}

// ReplayBuffer keeps the most recent envelopes of one key, oldest first.
type ReplayBuffer struct {
	mu      sync.RWMutex
	entries []replayEntry
	head    int // oldest entry once the buffer is full
	size    int
}

// NewReplayBuffer creates a buffer holding up to capacity envelopes.
func NewReplayBuffer(capacity int) *ReplayBuffer {
	if capacity <= 0 {
		capacity = 500
	}
	return &ReplayBuffer{entries: make([]replayEntry, 0, capacity), size: capacity}
}

// Push stores an envelope, evicting the oldest when full. Envelopes are
// immutable once built, so data is kept without copying.
func (rb *ReplayBuffer) Push(seq int64, data []byte) {
	rb.mu.Lock()
	defer rb.mu.Unlock()
	if len(rb.entries) < rb.size {
		rb.entries = append(rb.entries, replayEntry{seq: seq, data: data})
		return
	}
	rb.entries[rb.head] = replayEntry{seq: seq, data: data}
	rb.head = (rb.head + 1) % rb.size
}

// Since returns the envelopes with seq > afterSeq in sequence order.
func (rb *ReplayBuffer) Since(afterSeq int64) [][]byte {
	rb.mu.RLock()
	defer rb.mu.RUnlock()
	var out [][]byte
	n := len(rb.entries)
	for i := 0; i < n; i++ {
		e := rb.entries[(rb.head+i)%n]
		if e.seq > afterSeq {
			out = append(out, e.data)
		}
	}
	return out
}

func (rb *ReplayBuffer) Len() int {
	rb.mu.RLock()
	defer rb.mu.RUnlock()
	return len(rb.entries)
}
