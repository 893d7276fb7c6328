package redis

import (
	"context"
	"errors"
	"sync"

	"trading-chartsv1/internal/logger"
	"trading-chartsv1/internal/model"
)

const defaultMaxBuffered = 10000

// BufferedPublisher wraps an UpdatePublisher with a circuit breaker. While
// the circuit is open, updates are buffered locally and flushed when it
// closes again. It implements model.UpdatePublisher.
type BufferedPublisher struct {
	pub model.UpdatePublisher
	cb  *CircuitBreaker
	ctx context.Context
	log *logger.Logger

	mu     sync.Mutex
	buffer []model.Update
	maxBuf int // oldest updates are dropped beyond this

	OnBuffer func()          // called when an update is buffered
	OnDrop   func()          // called when a buffered update is dropped
	OnFlush  func(count int) // called after flushing buffered updates
}

// NewBufferedPublisher wraps pub. ctx bounds the background flushes.
func NewBufferedPublisher(ctx context.Context, pub model.UpdatePublisher, cb *CircuitBreaker, maxBufferSize int, log *logger.Logger) *BufferedPublisher {
	if maxBufferSize <= 0 {
		maxBufferSize = defaultMaxBuffered
	}
	if log == nil {
		log = logger.Nop()
	}
	bp := &BufferedPublisher{
		pub:    pub,
		cb:     cb,
		ctx:    ctx,
		log:    log.Component("buffered-publisher"),
		buffer: make([]model.Update, 0, 256),
		maxBuf: maxBufferSize,
	}

	prev := cb.OnStateChange
	cb.OnStateChange = func(from, to State) {
		if prev != nil {
			prev(from, to)
		}
		bp.log.Warn("circuit state change", logger.StringField("from", from.String()), logger.StringField("to", to.String()))
		if to == StateClosed {
			go bp.Flush()
		}
	}
	return bp
}

// PublishUpdate publishes through the breaker. An update rejected by an
// open circuit is buffered and nil is returned. Publish errors are returned
// and the update is buffered for retry.
func (bp *BufferedPublisher) PublishUpdate(ctx context.Context, u model.Update) error {
	err := bp.cb.Execute(func() error { return bp.pub.PublishUpdate(ctx, u) })
	switch {
	case err == nil:
		return nil
	case errors.Is(err, ErrCircuitOpen):
		bp.bufferUpdate(u)
		return nil
	default:
		bp.bufferUpdate(u)
		return err
	}
}

func (bp *BufferedPublisher) bufferUpdate(u model.Update) {
	bp.mu.Lock()
	defer bp.mu.Unlock()

	if len(bp.buffer) >= bp.maxBuf {
		bp.buffer = bp.buffer[1:]
		if bp.OnDrop != nil {
			bp.OnDrop()
		}
	}
	bp.buffer = append(bp.buffer, u)
	if bp.OnBuffer != nil {
		bp.OnBuffer()
	}
}

// Flush replays buffered updates in order. Updates that fail again are put
// back at the front of the buffer.
func (bp *BufferedPublisher) Flush() {
	bp.mu.Lock()
	if len(bp.buffer) == 0 {
		bp.mu.Unlock()
		return
	}
	toFlush := bp.buffer
	bp.buffer = make([]model.Update, 0, 256)
	bp.mu.Unlock()

	flushed := 0
	for i, u := range toFlush {
		if err := bp.pub.PublishUpdate(bp.ctx, u); err != nil {
			bp.log.Error("flush failed", logger.IntField("remaining", len(toFlush)-i), logger.ErrorField(err))
			bp.requeue(toFlush[i:])
			break
		}
		flushed++
	}

	if flushed > 0 {
		bp.log.Info("flushed buffered updates", logger.IntField("count", flushed))
	}
	if bp.OnFlush != nil {
		bp.OnFlush(flushed)
	}
}

func (bp *BufferedPublisher) requeue(rest []model.Update) {
	bp.mu.Lock()
	defer bp.mu.Unlock()
	merged := append(append(make([]model.Update, 0, len(rest)+len(bp.buffer)), rest...), bp.buffer...)
	if over := len(merged) - bp.maxBuf; over > 0 {
		merged = merged[over:]
	}
	bp.buffer = merged
}

// PendingCount returns the number of buffered updates.
func (bp *BufferedPublisher) PendingCount() int {
	bp.mu.Lock()
	defer bp.mu.Unlock()
	return len(bp.buffer)
}

// Breaker returns the wrapped circuit breaker.
func (bp *BufferedPublisher) Breaker() *CircuitBreaker { return bp.cb }
