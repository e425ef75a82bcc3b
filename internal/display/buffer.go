// Package display holds the most recent frame rendered by the target and
// hands out scoped read access to it.
package display

import (
	"context"
	"sync"

	"go.uber.org/zap"

	"github.com/xkilldash9x/vzpilot/api/schemas"
)

// Buffer is an in-memory FrameSource. A producer publishes whole frames; readers
// acquire the current one under a read lock and must call release when done.
type Buffer struct {
	mu        sync.RWMutex
	frame     *schemas.Frame
	sequence  uint64
	logger    *zap.Logger
	listeners []func(seq uint64)
}

// NewBuffer creates an empty buffer. Acquire returns a nil frame until the first Publish.
func NewBuffer(logger *zap.Logger) *Buffer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Buffer{logger: logger.Named("display")}
}

// Publish replaces the current frame. It blocks until in-flight readers release.
func (b *Buffer) Publish(f *schemas.Frame) {
	b.mu.Lock()
	b.frame = f
	b.sequence++
	seq := b.sequence
	listeners := b.listeners
	b.mu.Unlock()

	for _, fn := range listeners {
		fn(seq)
	}
}

// OnPublish registers fn to be called after every Publish with the new sequence number.
func (b *Buffer) OnPublish(fn func(seq uint64)) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.listeners = append(b.listeners, fn)
}

// Sequence is the number of frames published so far.
func (b *Buffer) Sequence() uint64 {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.sequence
}

// Acquire implements schemas.FrameSource. The returned release func is idempotent.
func (b *Buffer) Acquire(ctx context.Context) (*schemas.Frame, func(), error) {
	if err := ctx.Err(); err != nil {
		return nil, func() {}, err
	}
	b.mu.RLock()
	var once sync.Once
	return b.frame, func() { once.Do(b.mu.RUnlock) }, nil
}
