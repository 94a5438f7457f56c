package redis

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"czsc-engine/internal/freq"
	"czsc-engine/internal/model"
)

// BufferedPublisher wraps a Publisher. While the breaker is open, strokes
// are buffered locally and flushed in order once it closes again.
type BufferedPublisher struct {
	pub *Publisher
	ctx context.Context

	mu     sync.Mutex
	buffer []BIMessage
	maxBuf int // max buffered strokes before dropping oldest (default: 10000)

	flushMu sync.Mutex

	// Callbacks
	OnBuffer func()          // called when a stroke is buffered
	OnFlush  func(count int) // called after flushing buffered strokes
}

// NewBufferedPublisher creates a BufferedPublisher wrapping p. ctx bounds
// the background flushes.
func NewBufferedPublisher(ctx context.Context, p *Publisher, maxBufferSize int) *BufferedPublisher {
	if maxBufferSize <= 0 {
		maxBufferSize = 10000
	}
	bp := &BufferedPublisher{
		pub:    p,
		ctx:    ctx,
		buffer: make([]BIMessage, 0, 256),
		maxBuf: maxBufferSize,
	}

	p.cb.mu.Lock()
	prev := p.cb.OnStateChange
	p.cb.OnStateChange = func(from, to State) {
		if prev != nil {
			prev(from, to)
		}
		if to == StateClosed {
			go bp.Flush()
		}
	}
	p.cb.mu.Unlock()

	return bp
}

// PublishBI publishes through the breaker, buffering while it is open.
// Errors other than an open circuit are returned.
func (bp *BufferedPublisher) PublishBI(ctx context.Context, symbol string, f freq.Freq, bi model.BI) error {
	msg := NewBIMessage(symbol, f, bi)
	err := bp.pub.publish(ctx, msg)
	if errors.Is(err, ErrCircuitOpen) {
		bp.bufferMessage(msg)
		return nil // buffered, not lost
	}
	return err
}

func (bp *BufferedPublisher) bufferMessage(msg BIMessage) {
	bp.mu.Lock()
	defer bp.mu.Unlock()

	if len(bp.buffer) >= bp.maxBuf {
		bp.buffer = bp.buffer[1:]
	}
	bp.buffer = append(bp.buffer, msg)

	if bp.OnBuffer != nil {
		bp.OnBuffer()
	}
}

// Flush republishes buffered strokes. Strokes that fail again are put back
// at the front of the buffer.
func (bp *BufferedPublisher) Flush() {
	bp.flushMu.Lock()
	defer bp.flushMu.Unlock()

	bp.mu.Lock()
	if len(bp.buffer) == 0 {
		bp.mu.Unlock()
		return
	}
	toFlush := bp.buffer
	bp.buffer = make([]BIMessage, 0, 256)
	bp.mu.Unlock()

	flushed := 0
	for i, msg := range toFlush {
		if err := bp.pub.publish(bp.ctx, msg); err != nil {
			bp.mu.Lock()
			bp.buffer = append(append([]BIMessage(nil), toFlush[i:]...), bp.buffer...)
			bp.mu.Unlock()
			bp.pub.log.Warn("flush interrupted", slog.Int("flushed", flushed), slog.Int("pending", len(toFlush)-i), slog.Any("error", err))
			break
		}
		flushed++
	}

	if flushed > 0 {
		bp.pub.log.Info("flushed buffered strokes", slog.Int("count", flushed))
	}
	if bp.OnFlush != nil {
		bp.OnFlush(flushed)
	}
}

// PendingCount returns the number of buffered strokes waiting to be flushed.
func (bp *BufferedPublisher) PendingCount() int {
	bp.mu.Lock()
	defer bp.mu.Unlock()
	return len(bp.buffer)
}

// Underlying returns the wrapped publisher.
func (bp *BufferedPublisher) Underlying() *Publisher {
	return bp.pub
}
