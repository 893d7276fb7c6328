package observer

import (
	"context"
	"sync"

	"github.com/google/uuid"
)

// FanOut broadcasts values to N buffered output channels.
// If an output channel is full, the value is dropped for that consumer to
// prevent a slow consumer from blocking the pipeline.
type FanOut[T any] struct {
	mu      sync.RWMutex
	outputs map[uuid.UUID]chan T
	order   []uuid.UUID
	bufSize int
	closed  bool

	// OnDrop is called when a value is dropped for a subscriber.
	OnDrop func(id uuid.UUID, v T)
}

// NewFanOut creates a FanOut with the given buffer size for output channels.
func NewFanOut[T any](outputBufferSize int) *FanOut[T] {
	return &FanOut[T]{
		outputs: make(map[uuid.UUID]chan T),
		bufSize: outputBufferSize,
	}
}

// Subscribe creates and returns a new output channel and its id.
// Subscribing to a closed FanOut returns an already closed channel.
func (f *FanOut[T]) Subscribe() (uuid.UUID, <-chan T) {
	id := uuid.New()
	ch := make(chan T, f.bufSize)
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		close(ch)
		return id, ch
	}
	f.outputs[id] = ch
	f.order = append(f.order, id)
	return id, ch
}

// Unsubscribe closes and removes the output channel for id.
func (f *FanOut[T]) Unsubscribe(id uuid.UUID) {
	f.mu.Lock()
	defer f.mu.Unlock()
	ch, ok := f.outputs[id]
	if !ok {
		return
	}
	close(ch)
	delete(f.outputs, id)
	for i, o := range f.order {
		if o == id {
			f.order = append(f.order[:i], f.order[i+1:]...)
			break
		}
	}
}

// Publish offers v to every subscriber without blocking.
func (f *FanOut[T]) Publish(v T) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	if f.closed {
		return
	}
	for _, id := range f.order {
		select {
		case f.outputs[id] <- v:
		default:
			if f.OnDrop != nil {
				f.OnDrop(id, v)
			}
		}
	}
}

// Run reads from the input channel and fans out to all subscribers.
// Blocks until ctx is cancelled or input is closed, then closes all outputs.
func (f *FanOut[T]) Run(ctx context.Context, input <-chan T) {
	defer f.Close()
	for {
		select {
		case <-ctx.Done():
			return
		case v, ok := <-input:
			if !ok {
				return
			}
			f.Publish(v)
		}
	}
}

// Close closes every output channel. Further publishes are ignored.
func (f *FanOut[T]) Close() {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return
	}
	f.closed = true
	for _, id := range f.order {
		close(f.outputs[id])
	}
	f.outputs = map[uuid.UUID]chan T{}
	f.order = nil
}

// ChannelStat holds the length and capacity of one subscriber channel.
// Used for reporting channel saturation.
type ChannelStat struct {
	Len int
	Cap int
}

func (f *FanOut[T]) ChannelStats() []ChannelStat {
	f.mu.RLock()
	defer f.mu.RUnlock()
	stats := make([]ChannelStat, len(f.order))
	for i, id := range f.order {
		ch := f.outputs[id]
		stats[i] = ChannelStat{Len: len(ch), Cap: cap(ch)}
	}
	return stats
}
