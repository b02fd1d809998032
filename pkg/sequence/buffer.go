package sequence

import (
	"sync"

	"github.com/tradekit/bookfeed/pkg/messaging"
)

// DefaultBufferLimit caps how many deltas may queue up while a snapshot is
// still in flight. Past this the feed is considered wedged and the buffer
// forces a resync rather than grow without bound.
const DefaultBufferLimit = 1000

// PendingBuffer holds level updates that arrive before a snapshot.
type PendingBuffer struct {
	mu    sync.Mutex
	limit int
	msgs  []*messaging.LevelMessage
}

// NewPendingBuffer creates a buffer holding at most limit messages. A limit
// of zero or below uses DefaultBufferLimit.
func NewPendingBuffer(limit int) *PendingBuffer {
	if limit <= 0 {
		limit = DefaultBufferLimit
	}
	return &PendingBuffer{limit: limit}
}

// Push queues msg. When the buffer is full it discards everything queued,
// drops msg too, and reports overflow: the caller must request a fresh
// snapshot.
func (b *PendingBuffer) Push(msg *messaging.LevelMessage) (overflow bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if len(b.msgs) >= b.limit {
		b.msgs = nil
		return true
	}
	b.msgs = append(b.msgs, msg)
	return false
}

// Drain returns the queued messages in arrival order and empties the buffer
func (b *PendingBuffer) Drain() []*messaging.LevelMessage {
	b.mu.Lock()
	defer b.mu.Unlock()
	msgs := b.msgs
	b.msgs = nil
	return msgs
}

// Len reports how many messages are queued
func (b *PendingBuffer) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.msgs)
}

// Clear empties the buffer without returning anything
func (b *PendingBuffer) Clear() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.msgs = nil
}
